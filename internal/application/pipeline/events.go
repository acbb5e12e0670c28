package pipeline

import "sitegen-ai-api/internal/domain/entity"

// EventType 推送给客户端的事件名
type EventType string

const (
	EventReserved   EventType = "reserved"
	EventCredits    EventType = "credits"
	EventProgress   EventType = "progress"
	EventData       EventType = "data"
	EventValidation EventType = "validation"
	EventError      EventType = "error"
	EventDone       EventType = "done"
	EventAborted    EventType = "aborted"
)

// Event 流水线进度事件；Data 为下列载荷之一，data 事件为 HTML 片段字符串
type Event struct {
	Type EventType
	Data any
}

// Sink 事件接收方，按产生顺序同步调用
type Sink func(Event)

type ReservedPayload struct {
	Amount int64 `json:"amount"`
}

type CreditsPayload struct {
	Remaining int64 `json:"remaining"`
}

type ProgressPayload struct {
	Pct int `json:"pct"`
}

type ErrorPayload struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}

type DonePayload struct {
	Success      bool   `json:"success"`
	Degraded     bool   `json:"degraded,omitempty"`
	GenerationID string `json:"generationId,omitempty"`
	WebsiteID    string `json:"websiteId,omitempty"`
	TokensUsed   int    `json:"tokensUsed,omitempty"`
}

type AbortedPayload struct{}

func validationEvent(v entity.ValidationResult) Event {
	return Event{Type: EventValidation, Data: v}
}
