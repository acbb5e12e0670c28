// Package sse 解析生成接口的推送流（text/event-stream）
package sse

import (
	"encoding/json"
	"strings"
)

const (
	// DefaultEventType 未声明 event 字段时的事件类型
	DefaultEventType = "message"
	// DataEventType 裸标记片段归入的事件类型
	DataEventType = "data"
	// EndEventType 流结束后由客户端补发的事件类型
	EndEventType = "end"

	// bareMarkupThreshold 缓冲区超过该长度且含标记、又没有帧结构时按裸 HTML 输出
	bareMarkupThreshold = 64
)

// Event 一个完整的推送事件
type Event struct {
	Type string
	ID   string
	Data string
}

// Decode 将 data 按 JSON 解码
func (e Event) Decode(v any) error {
	return json.Unmarshal([]byte(e.Data), v)
}

// Parser 增量解析器：容忍任意读边界、CRLF/LF 混用与无帧的裸 HTML 生产者。
// 非并发安全，每条流一个实例。
type Parser struct {
	buf string
	// pendingCR 上一次输入以 \r 结尾，等待判断是否为 CRLF
	pendingCR bool
}

// NewParser 创建解析器
func NewParser() *Parser {
	return &Parser{}
}

// Feed 输入一段原始数据，返回其中已完整的事件
func (p *Parser) Feed(chunk string) []Event {
	if chunk == "" {
		return nil
	}
	if p.pendingCR {
		chunk = "\r" + chunk
		p.pendingCR = false
	}
	if strings.HasSuffix(chunk, "\r") {
		chunk = chunk[:len(chunk)-1]
		p.pendingCR = true
	}
	p.buf += strings.ReplaceAll(chunk, "\r\n", "\n")

	var events []Event
	for {
		idx := strings.Index(p.buf, "\n\n")
		if idx < 0 {
			break
		}
		block := p.buf[:idx]
		p.buf = p.buf[idx+2:]
		if !looksFramed(block) {
			if strings.TrimSpace(block) != "" {
				events = append(events, Event{Type: DataEventType, Data: block})
			}
			continue
		}
		if ev, ok := parseBlock(block); ok {
			events = append(events, ev)
		}
	}

	if p.isBareMarkup() {
		events = append(events, Event{Type: DataEventType, Data: p.buf})
		p.buf = ""
	}
	return events
}

// Flush 流结束时调用：解析残留的未终止块，无法识别的残留按 data 事件输出
func (p *Parser) Flush() []Event {
	rest := p.buf
	if p.pendingCR {
		rest += "\r"
	}
	p.buf, p.pendingCR = "", false

	if strings.TrimSpace(rest) == "" {
		return nil
	}
	if looksFramed(rest) {
		if ev, ok := parseBlock(strings.TrimRight(rest, "\r\n")); ok {
			return []Event{ev}
		}
	}
	return []Event{{Type: DataEventType, Data: rest}}
}

// Remainder 尚未构成完整事件的缓冲内容
func (p *Parser) Remainder() string {
	return p.buf
}

func (p *Parser) isBareMarkup() bool {
	return len(p.buf) > bareMarkupThreshold &&
		strings.Contains(p.buf, "<") &&
		!looksFramed(p.buf)
}

func looksFramed(s string) bool {
	s = strings.TrimLeft(s, "\n")
	for _, prefix := range []string{"event:", "data:", "id:", "retry:", ":"} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

// parseBlock 解析单个块；不含任何字段时返回 ok=false
func parseBlock(block string) (Event, bool) {
	ev := Event{Type: DefaultEventType}
	var data []string
	seen := false

	for _, line := range strings.Split(block, "\n") {
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		field, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			if v := strings.TrimSpace(value); v != "" {
				ev.Type = v
			}
			seen = true
		case "data":
			data = append(data, value)
			seen = true
		case "id":
			ev.ID = strings.TrimSpace(value)
			seen = true
		}
	}
	if !seen {
		return Event{}, false
	}
	ev.Data = strings.Join(data, "\n")
	return ev, true
}
