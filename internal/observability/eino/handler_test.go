package eino

import (
	"context"
	"errors"
	"testing"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"sitegen-ai-api/internal/domain/service"
	"sitegen-ai-api/pkg/metrics"
)

func TestChatModelHandlerRecordsSuccess(t *testing.T) {
	h := newChatModelCallbackHandler()
	ctx := service.WithOperationProvider(context.Background(), "generatePage", "obs-openai")
	info := &einocb.RunInfo{Name: "openai", Type: "OpenAI"}

	before := testutil.ToFloat64(metrics.LLMCallTotal.WithLabelValues("obs-openai", "gpt-4o-mini", "success"))
	ctx = h.OnStart(ctx, info, &model.CallbackInput{Config: &model.Config{Model: "gpt-4o-mini"}})
	h.OnEnd(ctx, info, &model.CallbackOutput{TokenUsage: &model.TokenUsage{PromptTokens: 10, CompletionTokens: 5}})

	after := testutil.ToFloat64(metrics.LLMCallTotal.WithLabelValues("obs-openai", "gpt-4o-mini", "success"))
	if after-before != 1 {
		t.Fatalf("success counter delta = %v", after-before)
	}
	completion := testutil.ToFloat64(metrics.LLMTokensUsed.WithLabelValues("obs-openai", "gpt-4o-mini", "completion"))
	if completion < 5 {
		t.Fatalf("completion tokens = %v", completion)
	}
}

func TestChatModelHandlerDrainsStreamOutput(t *testing.T) {
	h := newChatModelCallbackHandler()
	ctx := service.WithOperationProvider(context.Background(), "generatePage", "obs-gemini")
	ctx = h.OnStart(ctx, nil, &model.CallbackInput{Config: &model.Config{Model: "gemini-1.5-flash"}})

	counter := metrics.LLMCallTotal.WithLabelValues("obs-gemini", "gemini-1.5-flash", "success")
	before := testutil.ToFloat64(counter)

	sr := schema.StreamReaderFromArray([]*model.CallbackOutput{
		{Message: schema.AssistantMessage("<h1>", nil)},
		{Message: schema.AssistantMessage("</h1>", nil), TokenUsage: &model.TokenUsage{CompletionTokens: 2}},
	})
	h.OnEndWithStreamOutput(ctx, nil, sr)

	deadline := time.Now().Add(2 * time.Second)
	for testutil.ToFloat64(counter)-before < 1 {
		if time.Now().After(deadline) {
			t.Fatal("stream output was not drained")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestChatModelHandlerRecordsError(t *testing.T) {
	h := newChatModelCallbackHandler()
	ctx := service.WithOperationProvider(context.Background(), "generatePage", "obs-err")
	ctx = h.OnStart(ctx, nil, &model.CallbackInput{Config: &model.Config{Model: "gpt-4o"}})
	h.OnError(ctx, nil, errors.New("503 Service Unavailable"))

	if got := testutil.ToFloat64(metrics.LLMCallTotal.WithLabelValues("obs-err", "gpt-4o", "error")); got != 1 {
		t.Fatalf("error counter = %v", got)
	}
}
