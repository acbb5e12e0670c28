package pipeline

import (
	"context"
	"errors"
	"io"
	"regexp"
	"strings"

	"sitegen-ai-api/internal/application/routing"
	"sitegen-ai-api/internal/domain/entity"
	"sitegen-ai-api/internal/workflow/port"
)

var documentTagRe = regexp.MustCompile(`(?i)<html[\s>]`)

const emptyOutputPlaceholder = "<h1>New Site</h1><p>No content produced.</p>"

// Accumulation 累积结果
type Accumulation struct {
	// Content 去除完成标记后的原始输出
	Content string
	// Markup 补全脚手架后的页面
	Markup   string
	Tokens   int
	Provider entity.ProviderName
	Model    entity.Model
	// Degraded 内容来自兜底占位流
	Degraded bool
	// Failed 流以 error 块结束
	Failed bool
}

// Accumulate 按生产顺序读取块流直到完成标记、done 或 error 块。
// ctx 取消时停止读取、关闭上游并返回 ctx.Err()。onChunk 可为 nil。
func Accumulate(ctx context.Context, stream port.ChunkStream, onChunk func(entity.ResponseChunk)) (*Accumulation, error) {
	defer stream.Close()

	acc := &Accumulation{}
	var buf strings.Builder

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if acc.Provider == "" && chunk.Provider != "" {
			acc.Provider = chunk.Provider
			acc.Model = chunk.Model
		}
		if routing.IsFallback(chunk) {
			acc.Degraded = true
		}
		if onChunk != nil {
			onChunk(chunk)
		}

		if chunk.Type == entity.ChunkError {
			buf.WriteString(errorMarker(chunk.Content))
			acc.Failed = true
			break
		}
		if chunk.IsContent() {
			buf.WriteString(chunk.Content)
			if chunk.Tokens > 0 {
				acc.Tokens += chunk.Tokens
			} else {
				acc.Tokens++
			}
			if markerInTail(&buf, len(chunk.Content)) {
				break
			}
		}
		if chunk.Done {
			break
		}
	}

	acc.Content = StripMarker(buf.String())
	acc.Markup = Finalize(acc.Content)
	return acc, nil
}

// markerInTail 只检查新写入的块及其前 len(marker)-1 字节，跨块的标记也能命中
func markerInTail(buf *strings.Builder, written int) bool {
	s := buf.String()
	from := max(len(s)-written-len(entity.CompletionMarker)+1, 0)
	return strings.Contains(s[from:], entity.CompletionMarker)
}

// StripMarker 去除所有完成标记
func StripMarker(raw string) string {
	return strings.TrimSpace(strings.ReplaceAll(raw, entity.CompletionMarker, ""))
}

// Finalize 不是完整文档时包裹最小脚手架，空输出使用占位内容
func Finalize(markup string) string {
	if documentTagRe.MatchString(markup) {
		return markup
	}
	if markup == "" {
		markup = emptyOutputPlaceholder
	}
	return strings.Join([]string{
		"<!doctype html>",
		`<html lang="en">`,
		"<head>",
		`<meta charset="utf-8"/>`,
		`<meta name="viewport" content="width=device-width, initial-scale=1"/>`,
		"<title>Generated Site</title>",
		"</head>",
		"<body>",
		"<main>",
		markup,
		"</main>",
		"</body>",
		"</html>",
	}, "\n")
}

// errorMarker 错误信息写成 HTML 注释，转义后不能提前闭合注释
func errorMarker(msg string) string {
	msg = strings.ReplaceAll(msg, "--", "- -")
	msg = strings.ReplaceAll(msg, ">", "&gt;")
	return "\n<!-- ERROR: " + msg + " -->"
}
