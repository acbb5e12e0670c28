package routing

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/cloudwego/eino/schema"

	"sitegen-ai-api/internal/application/recovery"
	"sitegen-ai-api/internal/config"
	"sitegen-ai-api/internal/domain/entity"
	"sitegen-ai-api/internal/workflow/port"
	apperrors "sitegen-ai-api/pkg/errors"
)

type fakeProvider struct {
	name    entity.ProviderName
	enabled bool
	models  []entity.Model
	calls   atomic.Int32
	gen     func(req entity.GenerationRequest) (port.ChunkStream, error)
}

func (p *fakeProvider) Name() entity.ProviderName { return p.name }
func (p *fakeProvider) Enabled() bool             { return p.enabled }

func (p *fakeProvider) Supports(m entity.Model) bool {
	for _, x := range p.models {
		if x == m {
			return true
		}
	}
	return false
}

func (p *fakeProvider) Generate(_ context.Context, req entity.GenerationRequest) (port.ChunkStream, error) {
	p.calls.Add(1)
	if p.gen != nil {
		return p.gen(req)
	}
	return okStream(p.name, req.Model, "<p>"+string(p.name)+"</p>"), nil
}

func okStream(name entity.ProviderName, m entity.Model, content string) port.ChunkStream {
	return schema.StreamReaderFromArray([]entity.ResponseChunk{
		{Type: entity.ChunkToken, Content: content, Provider: name, Model: m},
		{Type: entity.ChunkText, Content: entity.CompletionMarker, Done: true, Provider: name, Model: m},
	})
}

type fakeCache struct {
	markup string
	err    error
}

func (c *fakeCache) Lookup(context.Context, entity.GenerationRequest) (string, bool, error) {
	if c.err != nil {
		return "", false, c.err
	}
	return c.markup, c.markup != "", nil
}

func (c *fakeCache) Store(context.Context, entity.GenerationRequest, string) error { return nil }

func openai(enabled bool) *fakeProvider {
	return &fakeProvider{name: entity.ProviderOpenAI, enabled: enabled,
		models: []entity.Model{entity.ModelAuto, entity.ModelGPT4oMini, entity.ModelGPT41, entity.ModelGPT4o}}
}

func gemini(enabled bool) *fakeProvider {
	return &fakeProvider{name: entity.ProviderGemini, enabled: enabled,
		models: []entity.Model{entity.ModelAuto, entity.ModelGemini15Flash, entity.ModelGemini15Pro}}
}

func testRouter(cache port.GenerationCache, providers ...port.Provider) *Router {
	cfg := &config.Config{
		App: config.AppConfig{Env: "test"},
		LLM: config.LLMConfig{FallbackChain: []string{"openai", "gemini"}},
	}
	return NewRouter(cfg, providers, cache).WithPolicy(recovery.Policy{MaxRetries: 2})
}

func collect(t *testing.T, sr port.ChunkStream) []entity.ResponseChunk {
	t.Helper()
	defer sr.Close()
	var out []entity.ResponseChunk
	for {
		c, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		out = append(out, c)
	}
}

func TestSelectAutoUsesPriorityOrder(t *testing.T) {
	cases := []struct {
		name   string
		oa, gm bool
		want   entity.ProviderName
	}{
		{"both enabled prefers openai", true, true, entity.ProviderOpenAI},
		{"openai disabled falls to gemini", false, true, entity.ProviderGemini},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := testRouter(nil, gemini(tc.gm), openai(tc.oa))
			p, err := r.Select(entity.GenerationRequest{Model: entity.ModelAuto})
			if err != nil {
				t.Fatalf("Select: %v", err)
			}
			if p.Name() != tc.want {
				t.Fatalf("selected %s, want %s", p.Name(), tc.want)
			}
		})
	}
}

func TestPriorityFollowsFallbackChainThenRegistration(t *testing.T) {
	extra := &fakeProvider{name: entity.ProviderAnthropic, enabled: true}
	r := testRouter(nil, extra, gemini(true), openai(true))
	got := r.Priority()
	want := []entity.ProviderName{entity.ProviderOpenAI, entity.ProviderGemini, entity.ProviderAnthropic}
	if len(got) != len(want) {
		t.Fatalf("priority = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("priority = %v, want %v", got, want)
		}
	}
}

func TestExplicitModelOnDisabledProviderIsRaisedWithoutRetry(t *testing.T) {
	oa := openai(true)
	gm := gemini(false)
	r := testRouter(nil, oa, gm)

	_, err := r.GenerateStream(context.Background(), entity.GenerationRequest{Model: entity.ModelGemini15Pro})
	if !errors.Is(err, apperrors.ErrNoProviderAvailable) {
		t.Fatalf("err = %v", err)
	}
	if oa.calls.Load() != 0 || gm.calls.Load() != 0 {
		t.Fatalf("providers were invoked: openai=%d gemini=%d", oa.calls.Load(), gm.calls.Load())
	}
}

func TestUnservedModelHasNoProvider(t *testing.T) {
	r := testRouter(nil, openai(true), gemini(true))
	_, err := r.GenerateStream(context.Background(), entity.GenerationRequest{Model: entity.ModelClaude3Opus})
	if !errors.Is(err, apperrors.ErrNoProviderAvailable) {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(apperrors.AsAppError(err).Detail, "No AI provider available for requested model") {
		t.Fatalf("detail = %q", apperrors.AsAppError(err).Detail)
	}
}

func TestTransientFailureDowngradesToAuto(t *testing.T) {
	oa := openai(true)
	oa.gen = func(req entity.GenerationRequest) (port.ChunkStream, error) {
		if req.Model != entity.ModelAuto {
			return nil, errors.New("status code: 503, Service Unavailable")
		}
		return okStream(entity.ProviderOpenAI, req.Model, "<p>auto</p>"), nil
	}
	r := testRouter(nil, oa)

	sr, err := r.GenerateStream(context.Background(), entity.GenerationRequest{Model: entity.ModelGPT41})
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}
	chunks := collect(t, sr)
	if chunks[0].Content != "<p>auto</p>" || chunks[0].Model != entity.ModelAuto {
		t.Fatalf("first chunk = %+v", chunks[0])
	}
	if oa.calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", oa.calls.Load())
	}
}

func TestExhaustedRetriesYieldFallbackDocument(t *testing.T) {
	oa := openai(true)
	oa.gen = func(entity.GenerationRequest) (port.ChunkStream, error) {
		return nil, errors.New("ECONNRESET")
	}
	r := testRouter(nil, oa)

	sr, err := r.GenerateStream(context.Background(), entity.GenerationRequest{Model: entity.ModelAuto})
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}
	chunks := collect(t, sr)
	if len(chunks) != 3 {
		t.Fatalf("chunks = %+v", chunks)
	}
	if chunks[0].Content != "<!-- FALLBACK START -->\n" || !IsFallback(chunks[0]) {
		t.Fatalf("first chunk = %+v", chunks[0])
	}
	if !strings.Contains(chunks[1].Content, "<h1>AI generation temporarily unavailable</h1>") ||
		!strings.Contains(chunks[1].Content, "<p>"+FallbackMessage+"</p>") {
		t.Fatalf("fallback document = %q", chunks[1].Content)
	}
	last := chunks[2]
	if !last.Done || last.Content != entity.CompletionMarker {
		t.Fatalf("last chunk = %+v", last)
	}
	// 3 次主调用 + 每次失败后的 1 次降级
	if got := oa.calls.Load(); got != 6 {
		t.Fatalf("calls = %d, want 6", got)
	}
}

func TestFallbackStreamEscapesMessage(t *testing.T) {
	chunks := collect(t, FallbackStream(entity.GenerationRequest{}, `<script>alert("x")</script>`))
	if strings.Contains(chunks[1].Content, "<script>") {
		t.Fatalf("message not escaped: %q", chunks[1].Content)
	}
	if !strings.Contains(chunks[1].Content, "&lt;script&gt;") {
		t.Fatalf("escaped message missing: %q", chunks[1].Content)
	}
}

func TestCachedResultReplaysOnTransientFailure(t *testing.T) {
	oa := openai(true)
	oa.gen = func(entity.GenerationRequest) (port.ChunkStream, error) {
		return nil, errors.New("429 Too Many Requests")
	}
	r := testRouter(&fakeCache{markup: "<main>cached</main>"}, oa)

	sr, err := r.GenerateStream(context.Background(), entity.GenerationRequest{Model: entity.ModelAuto})
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}
	chunks := collect(t, sr)
	if chunks[0].Content != "<main>cached</main>" || chunks[0].Provider != entity.ProviderCache {
		t.Fatalf("first chunk = %+v", chunks[0])
	}
	if oa.calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", oa.calls.Load())
	}
}

func TestCacheErrorDoesNotBlockRecovery(t *testing.T) {
	oa := openai(true)
	var n atomic.Int32
	oa.gen = func(req entity.GenerationRequest) (port.ChunkStream, error) {
		if n.Add(1) == 1 {
			return nil, errors.New("timeout")
		}
		return okStream(entity.ProviderOpenAI, req.Model, "<p>ok</p>"), nil
	}
	r := testRouter(&fakeCache{err: errors.New("redis: connection refused")}, oa)

	sr, err := r.GenerateStream(context.Background(), entity.GenerationRequest{Model: entity.ModelAuto})
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}
	if chunks := collect(t, sr); chunks[0].Content != "<p>ok</p>" {
		t.Fatalf("chunks = %+v", chunks)
	}
}
