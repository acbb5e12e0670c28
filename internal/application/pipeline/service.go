package pipeline

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"sitegen-ai-api/internal/application/admission"
	"sitegen-ai-api/internal/domain/entity"
	"sitegen-ai-api/internal/domain/repository"
	"sitegen-ai-api/internal/domain/service"
	"sitegen-ai-api/internal/infrastructure/messaging"
	"sitegen-ai-api/internal/workflow/port"
	apperrors "sitegen-ai-api/pkg/errors"
	"sitegen-ai-api/pkg/logger"
	"sitegen-ai-api/pkg/metrics"
	"sitegen-ai-api/pkg/tracer"
)

const (
	progressAdmitted   = 5
	progressStreaming  = 10
	progressStreamCap  = 90
	progressValidating = 95
	progressComplete   = 100
	// 每累积这么多 token 推进 1%
	tokensPerPercent = 20
)

// SitePublisher 站点生成完成事件发布方
type SitePublisher interface {
	PublishSiteGenerated(ctx context.Context, evt *messaging.SiteGeneratedMessage) (string, error)
}

// GenerateInput 一次生成入口请求
type GenerateInput struct {
	UserID      string
	Plan        entity.Plan
	// Identifier 限流标识，默认使用 UserID
	Identifier  string
	Description string
	Preferences entity.UserPreferences
	Snapshot    *entity.WebsiteSnapshot
	Options     Options
}

// Service 带准入控制的生成服务：预留 -> 生成 -> 提交或退还
type Service struct {
	pipeline  *Pipeline
	admission *admission.Controller

	// 以下协作方均可为 nil
	cache     port.GenerationCache
	websites  repository.WebsiteRepository
	publisher SitePublisher
	usage     service.LLMUsageRecorder
}

// NewService 创建生成服务
func NewService(
	pipeline *Pipeline,
	admissionCtl *admission.Controller,
	cache port.GenerationCache,
	websites repository.WebsiteRepository,
	publisher SitePublisher,
	usage service.LLMUsageRecorder,
) *Service {
	return &Service{
		pipeline:  pipeline,
		admission: admissionCtl,
		cache:     cache,
		websites:  websites,
		publisher: publisher,
		usage:     usage,
	}
}

// Run 执行一次完整生成并通过 sink 按序推送事件。
// 拒绝：error + done{success:false}，不扣费。
// 客户端断开：停止读取、退还预留并推送 aborted。
// 兜底输出：照常推送 data/validation，但退还预留并以 done{degraded:true} 结束。
func (s *Service) Run(ctx context.Context, in GenerateInput, sink Sink) {
	generationID := uuid.NewString()
	ctx = logger.WithContext(ctx, logger.UserIDKey, in.UserID)
	ctx = logger.WithContext(ctx, logger.GenerationIDKey, generationID)
	op := in.Options.Operation
	if op == "" {
		op = entity.OperationGeneratePage
	}
	start := time.Now()

	ctx, span := tracer.Start(ctx, "pipeline.Run", trace.WithAttributes(
		attribute.String("generation.id", generationID),
		attribute.String("generation.operation", string(op)),
	))
	defer span.End()

	metrics.ActiveGenerations.Inc()
	defer metrics.ActiveGenerations.Dec()

	res, err := s.admission.Admit(ctx, admission.Request{
		UserID:     in.UserID,
		Plan:       in.Plan,
		Operation:  op,
		Identifier: in.Identifier,
	})
	if err != nil {
		logger.Info(ctx, "generation rejected", "operation", op, "reason", admission.Reason(err), "error", err.Error())
		metrics.GenerationTotal.WithLabelValues(string(op), "rejected").Inc()
		sink(errorEvent(err))
		sink(Event{Type: EventDone, Data: DonePayload{Success: false}})
		return
	}
	res.GenerationID = generationID

	sink(Event{Type: EventReserved, Data: ReservedPayload{Amount: res.Amount}})
	sink(Event{Type: EventCredits, Data: CreditsPayload{Remaining: res.Remaining}})
	sink(Event{Type: EventProgress, Data: ProgressPayload{Pct: progressAdmitted}})

	opts := in.Options
	opts.Operation = op
	opts.OnChunk = s.chunkForwarder(sink)

	result, err := s.pipeline.GenerateWebsite(ctx, in.Description, in.Preferences, in.Snapshot, opts)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			s.abort(ctx, res, op, sink)
			return
		}
		logger.Error(ctx, "generation failed", err)
		tracer.RecordError(span, err)
		metrics.GenerationTotal.WithLabelValues(string(op), "failed").Inc()
		remaining := s.refund(ctx, res)
		sink(errorEvent(err))
		sink(Event{Type: EventCredits, Data: CreditsPayload{Remaining: remaining}})
		sink(Event{Type: EventDone, Data: DonePayload{Success: false, GenerationID: generationID}})
		return
	}
	acc := result.Accumulation
	span.SetAttributes(
		attribute.String("generation.provider", string(acc.Provider)),
		attribute.Int("generation.tokens", acc.Tokens),
		attribute.Bool("generation.degraded", acc.Degraded),
	)

	sink(Event{Type: EventProgress, Data: ProgressPayload{Pct: progressValidating}})
	sink(validationEvent(result.Validation))

	duration := time.Since(start)
	metrics.GenerationDuration.WithLabelValues(string(op)).Observe(duration.Seconds())
	s.recordUsage(ctx, in.UserID, generationID, op, acc, duration)

	// 以 error 块结束的流不计费，也不落库
	if acc.Failed {
		logger.Warn(ctx, "generation stream ended with error chunk", "provider", acc.Provider)
		metrics.GenerationTotal.WithLabelValues(string(op), "failed").Inc()
		remaining := s.refund(ctx, res)
		sink(errorEvent(apperrors.ErrGenerationFailed))
		sink(Event{Type: EventCredits, Data: CreditsPayload{Remaining: remaining}})
		sink(Event{Type: EventDone, Data: DonePayload{Success: false, GenerationID: generationID}})
		return
	}

	if acc.Degraded {
		metrics.GenerationTotal.WithLabelValues(string(op), "degraded").Inc()
		remaining := s.refund(ctx, res)
		s.publish(ctx, in.UserID, generationID, "", op, result, duration)
		sink(Event{Type: EventCredits, Data: CreditsPayload{Remaining: remaining}})
		sink(Event{Type: EventDone, Data: DonePayload{
			Success:      false,
			Degraded:     true,
			GenerationID: generationID,
		}})
		return
	}

	res.Commit(ctx)
	metrics.GenerationTotal.WithLabelValues(string(op), "success").Inc()

	result.Website.ID = generationID
	result.Website.UserID = in.UserID
	websiteID := s.save(ctx, result.Website)
	s.storeCache(ctx, result)
	s.publish(ctx, in.UserID, generationID, websiteID, op, result, duration)

	sink(Event{Type: EventProgress, Data: ProgressPayload{Pct: progressComplete}})
	sink(Event{Type: EventDone, Data: DonePayload{
		Success:      true,
		GenerationID: generationID,
		WebsiteID:    websiteID,
		TokensUsed:   acc.Tokens,
	}})
}

// chunkForwarder 把内容块作为 data 片段推送，并按 token 数推进进度
func (s *Service) chunkForwarder(sink Sink) func(entity.ResponseChunk) {
	tokens, lastPct := 0, 0
	return func(c entity.ResponseChunk) {
		if !c.IsContent() {
			return
		}
		if fragment := strings.ReplaceAll(c.Content, entity.CompletionMarker, ""); strings.TrimSpace(fragment) != "" {
			sink(Event{Type: EventData, Data: fragment})
		}
		if c.Tokens > 0 {
			tokens += c.Tokens
		} else {
			tokens++
		}
		pct := min(progressStreamCap, progressStreaming+tokens/tokensPerPercent)
		if pct > lastPct {
			lastPct = pct
			sink(Event{Type: EventProgress, Data: ProgressPayload{Pct: pct}})
		}
	}
}

func (s *Service) abort(ctx context.Context, res *admission.Reservation, op entity.Operation, sink Sink) {
	logger.Info(ctx, "generation aborted by client")
	metrics.GenerationTotal.WithLabelValues(string(op), "aborted").Inc()
	s.refund(ctx, res)
	sink(Event{Type: EventAborted, Data: AbortedPayload{}})
}

// refund 结算不能被请求取消打断
func (s *Service) refund(ctx context.Context, res *admission.Reservation) int64 {
	remaining, err := res.Refund(context.WithoutCancel(ctx))
	if err != nil {
		logger.Error(ctx, "failed to refund reservation", err, "amount", res.Amount)
	}
	return remaining
}

func (s *Service) save(ctx context.Context, website *entity.Website) string {
	if s.websites == nil {
		return ""
	}
	id, err := s.websites.Save(context.WithoutCancel(ctx), website)
	if err != nil {
		logger.Error(ctx, "failed to save website", err, "website_id", website.ID)
		return ""
	}
	return id
}

func (s *Service) storeCache(ctx context.Context, result *Result) {
	if s.cache == nil || result.Accumulation.Provider == entity.ProviderCache || result.Accumulation.Failed {
		return
	}
	if err := s.cache.Store(context.WithoutCancel(ctx), result.Request, result.Accumulation.Content); err != nil {
		logger.Warn(ctx, "failed to cache generation", "error", err)
	}
}

func (s *Service) recordUsage(ctx context.Context, userID, generationID string, op entity.Operation, acc *Accumulation, d time.Duration) {
	if s.usage == nil {
		return
	}
	err := s.usage.Record(context.WithoutCancel(ctx), service.LLMUsageInput{
		UserID:       userID,
		GenerationID: generationID,
		Operation:    string(op),
		Provider:     string(acc.Provider),
		Model:        string(acc.Model),
		Tokens:       acc.Tokens,
		DurationMs:   int(d.Milliseconds()),
		Degraded:     acc.Degraded,
	})
	if err != nil {
		logger.Warn(ctx, "failed to record llm usage", "error", err)
	}
}

func (s *Service) publish(ctx context.Context, userID, generationID, websiteID string, op entity.Operation, result *Result, d time.Duration) {
	if s.publisher == nil {
		return
	}
	acc := result.Accumulation
	_, err := s.publisher.PublishSiteGenerated(context.WithoutCancel(ctx), &messaging.SiteGeneratedMessage{
		GenerationID: generationID,
		UserID:       userID,
		WebsiteID:    websiteID,
		Operation:    string(op),
		Provider:     string(acc.Provider),
		Model:        string(acc.Model),
		Tokens:       acc.Tokens,
		DurationMs:   int(d.Milliseconds()),
		Degraded:     acc.Degraded,
		Passed:       result.Validation.Passed,
		IssueCount:   len(result.Issues),
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		logger.Warn(ctx, "failed to publish site generated event", "error", err)
	}
}

func errorEvent(err error) Event {
	appErr := apperrors.AsAppError(err)
	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	msg := appErr.Message
	if appErr.Detail != "" {
		msg = appErr.Detail
	}
	return Event{Type: EventError, Data: ErrorPayload{
		Status:  status,
		Message: msg,
		Reason:  admission.Reason(err),
	}}
}
