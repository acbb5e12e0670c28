package messaging

import (
	"context"
	"fmt"

	"sitegen-ai-api/internal/domain/service"
)

// UsageHandler 把站点生成事件中的用量交给记录器落库
func UsageHandler(recorder service.LLMUsageRecorder) MessageHandler {
	return func(ctx context.Context, msg *Message) error {
		var evt SiteGeneratedMessage
		if err := msg.UnmarshalPayload(&evt); err != nil {
			return fmt.Errorf("decode site generated payload: %w", err)
		}
		if evt.UserID == "" {
			evt.UserID = msg.UserID
		}
		return recorder.Record(ctx, evt.UsageInput())
	}
}
