package sse

import (
	"bytes"
	"strings"
	"testing"

	ginsse "github.com/gin-contrib/sse"
)

func TestFeedSingleEvent(t *testing.T) {
	p := NewParser()
	events := p.Feed("event: credits\ndata: {\"remaining\":90}\n\n")

	if len(events) != 1 || events[0].Type != "credits" {
		t.Fatalf("events = %+v", events)
	}
	var payload struct {
		Remaining int `json:"remaining"`
	}
	if err := events[0].Decode(&payload); err != nil || payload.Remaining != 90 {
		t.Fatalf("payload = %+v, %v", payload, err)
	}
	if p.Remainder() != "" {
		t.Fatalf("remainder = %q", p.Remainder())
	}
}

func TestFeedAcrossReads(t *testing.T) {
	p := NewParser()
	if events := p.Feed("event: data\ndata: <div><p>Hello "); len(events) != 0 {
		t.Fatalf("partial block emitted %+v", events)
	}
	events := p.Feed("world</p></div>\n\n")
	if len(events) != 1 || events[0].Type != "data" || events[0].Data != "<div><p>Hello world</p></div>" {
		t.Fatalf("events = %+v", events)
	}
}

func TestLineEndings(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
	}{
		{"crlf", []string{"event: progress\r\ndata: {\"pct\":50}\r\n\r\n"}},
		{"mixed", []string{"event: progress\r\ndata: {\"pct\":50}\n\r\n"}},
		{"cr split from lf", []string{"event: progress\r", "\ndata: {\"pct\":50}\r\n\r", "\n"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewParser()
			var events []Event
			for _, c := range tt.chunks {
				events = append(events, p.Feed(c)...)
			}
			if len(events) != 1 || events[0].Type != "progress" || events[0].Data != `{"pct":50}` {
				t.Fatalf("events = %+v", events)
			}
		})
	}
}

func TestMultiLineDataAndComments(t *testing.T) {
	p := NewParser()
	events := p.Feed(": keep-alive\n\nid: 7\ndata: line one\ndata: line two\n\n")
	if len(events) != 1 {
		t.Fatalf("events = %+v", events)
	}
	ev := events[0]
	if ev.Type != DefaultEventType || ev.ID != "7" || ev.Data != "line one\nline two" {
		t.Fatalf("event = %+v", ev)
	}
}

func TestBareMarkup(t *testing.T) {
	p := NewParser()
	if events := p.Feed("<section>short</section>"); len(events) != 0 {
		t.Fatalf("small bare chunk emitted early: %+v", events)
	}
	big := "<main>" + strings.Repeat("generated content ", 5) + "</main>"
	events := p.Feed(big)
	if len(events) != 1 || events[0].Type != DataEventType || !strings.HasSuffix(events[0].Data, "</main>") {
		t.Fatalf("events = %+v", events)
	}
	if p.Remainder() != "" {
		t.Fatalf("remainder = %q", p.Remainder())
	}

	// 有帧结构的长块不能被当作裸标记提前吐出
	framed := "event: data\ndata: " + big
	if events := NewParser().Feed(framed); len(events) != 0 {
		t.Fatalf("framed partial block emitted: %+v", events)
	}
}

func TestFlush(t *testing.T) {
	p := NewParser()
	p.Feed("event: done\ndata: {\"success\":true}")
	events := p.Flush()
	if len(events) != 1 || events[0].Type != "done" || events[0].Data != `{"success":true}` {
		t.Fatalf("flushed = %+v", events)
	}

	p.Feed("<p>tail</p>")
	events = p.Flush()
	if len(events) != 1 || events[0].Type != DataEventType || events[0].Data != "<p>tail</p>" {
		t.Fatalf("flushed bare = %+v", events)
	}
	if events := p.Flush(); events != nil {
		t.Fatalf("second flush = %+v", events)
	}
}

func TestParsesGinEncodedFrames(t *testing.T) {
	var buf bytes.Buffer
	frames := []ginsse.Event{
		{Event: "reserved", Data: map[string]int{"amount": 10}},
		{Event: "data", Data: "<h1>Hello</h1>\n<p>Content</p>"},
		{Event: "done", Data: map[string]bool{"success": true}},
	}
	for _, f := range frames {
		if err := ginsse.Encode(&buf, f); err != nil {
			t.Fatal(err)
		}
	}

	p := NewParser()
	var events []Event
	raw := buf.String()
	for i := 0; i < len(raw); i += 7 {
		end := min(i+7, len(raw))
		events = append(events, p.Feed(raw[i:end])...)
	}
	events = append(events, p.Flush()...)

	if len(events) != 3 {
		t.Fatalf("events = %+v", events)
	}
	if events[1].Data != "<h1>Hello</h1>\n<p>Content</p>" {
		t.Fatalf("multi-line data = %q", events[1].Data)
	}
	var reserved struct{ Amount int }
	if err := events[0].Decode(&reserved); err != nil || reserved.Amount != 10 {
		t.Fatalf("reserved = %+v, %v", reserved, err)
	}
}
