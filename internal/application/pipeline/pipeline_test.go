package pipeline

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/eino/schema"

	"sitegen-ai-api/internal/application/admission"
	"sitegen-ai-api/internal/application/routing"
	"sitegen-ai-api/internal/application/safety"
	"sitegen-ai-api/internal/domain/entity"
	"sitegen-ai-api/internal/domain/repository"
	"sitegen-ai-api/internal/domain/service"
	"sitegen-ai-api/internal/infrastructure/messaging"
	"sitegen-ai-api/internal/workflow/port"
	apperrors "sitegen-ai-api/pkg/errors"
)

func tokens(contents ...string) []entity.ResponseChunk {
	out := make([]entity.ResponseChunk, 0, len(contents))
	for i, c := range contents {
		out = append(out, entity.ResponseChunk{
			Type:     entity.ChunkToken,
			Content:  c,
			Done:     i == len(contents)-1,
			Provider: entity.ProviderOpenAI,
			Model:    entity.ModelGPT4oMini,
		})
	}
	return out
}

type fakeRouter struct {
	mu     sync.Mutex
	reqs   []entity.GenerationRequest
	stream func(req entity.GenerationRequest) (port.ChunkStream, error)
}

func (r *fakeRouter) GenerateStream(_ context.Context, req entity.GenerationRequest) (port.ChunkStream, error) {
	r.mu.Lock()
	r.reqs = append(r.reqs, req)
	r.mu.Unlock()
	return r.stream(req)
}

func staticRouter(chunks []entity.ResponseChunk) *fakeRouter {
	return &fakeRouter{stream: func(entity.GenerationRequest) (port.ChunkStream, error) {
		return schema.StreamReaderFromArray(chunks), nil
	}}
}

func TestAccumulateStripsCompletionMarker(t *testing.T) {
	stream := schema.StreamReaderFromArray(tokens("<h1>Hello</h1>", "<p>Content</p>", entity.CompletionMarker))
	acc, err := Accumulate(context.Background(), stream, nil)
	if err != nil {
		t.Fatal(err)
	}
	if acc.Content != "<h1>Hello</h1><p>Content</p>" {
		t.Fatalf("content = %q", acc.Content)
	}
	if !strings.HasPrefix(acc.Markup, "<!doctype html>") || !strings.Contains(acc.Markup, "<main>\n<h1>Hello</h1><p>Content</p>\n</main>") {
		t.Fatalf("markup = %q", acc.Markup)
	}
	if acc.Tokens != 3 || acc.Provider != entity.ProviderOpenAI || acc.Failed || acc.Degraded {
		t.Fatalf("acc = %+v", acc)
	}
}

func TestAccumulateStopsAtSplitMarker(t *testing.T) {
	chunks := []entity.ResponseChunk{
		{Type: entity.ChunkToken, Content: "<p>body</p><!-- COMP"},
		{Type: entity.ChunkToken, Content: "LETE -->", Tokens: 4},
		{Type: entity.ChunkToken, Content: "<p>after</p>"},
	}
	acc, err := Accumulate(context.Background(), schema.StreamReaderFromArray(chunks), nil)
	if err != nil {
		t.Fatal(err)
	}
	if acc.Content != "<p>body</p>" || acc.Tokens != 5 {
		t.Fatalf("acc = %+v", acc)
	}
}

func TestAccumulateLongStreamMarkerAcrossChunks(t *testing.T) {
	var chunks []entity.ResponseChunk
	for range 5000 {
		chunks = append(chunks, entity.ResponseChunk{Type: entity.ChunkToken, Content: "<b>"})
	}
	half := len(entity.CompletionMarker) / 2
	chunks = append(chunks,
		entity.ResponseChunk{Type: entity.ChunkToken, Content: entity.CompletionMarker[:half]},
		entity.ResponseChunk{Type: entity.ChunkToken, Content: entity.CompletionMarker[half : half+1]},
		entity.ResponseChunk{Type: entity.ChunkToken, Content: entity.CompletionMarker[half+1:]},
		entity.ResponseChunk{Type: entity.ChunkToken, Content: "<p>after</p>"},
	)
	acc, err := Accumulate(context.Background(), schema.StreamReaderFromArray(chunks), nil)
	if err != nil {
		t.Fatal(err)
	}
	if acc.Content != strings.Repeat("<b>", 5000) || acc.Tokens != 5003 {
		t.Fatalf("tokens = %d, content tail = %q", acc.Tokens, acc.Content[max(len(acc.Content)-20, 0):])
	}
}

func TestMarkerInTail(t *testing.T) {
	var buf strings.Builder
	buf.WriteString(entity.CompletionMarker + strings.Repeat("x", 100))
	if markerInTail(&buf, 1) {
		t.Fatal("marker far before the new chunk must not be rescanned")
	}
	buf.WriteString(entity.CompletionMarker)
	if !markerInTail(&buf, len(entity.CompletionMarker)) {
		t.Fatal("marker in the new chunk must be found")
	}
}

func TestAccumulateErrorChunk(t *testing.T) {
	chunks := []entity.ResponseChunk{
		{Type: entity.ChunkText, Content: "<p>partial</p>"},
		{Type: entity.ChunkError, Content: "upstream --> broke", Done: true},
		{Type: entity.ChunkText, Content: "<p>ignored</p>"},
	}
	acc, err := Accumulate(context.Background(), schema.StreamReaderFromArray(chunks), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !acc.Failed {
		t.Fatal("error chunk must mark the accumulation failed")
	}
	want := "<p>partial</p>\n<!-- ERROR: upstream - -&gt; broke -->"
	if acc.Content != want {
		t.Fatalf("content = %q, want %q", acc.Content, want)
	}
}

func TestAccumulateIgnoresJSONAndStopsOnDone(t *testing.T) {
	chunks := []entity.ResponseChunk{
		{Type: entity.ChunkJSON, Content: `{"k":1}`},
		{Type: entity.ChunkText, Content: "<html><body>full</body></html>"},
		{Type: entity.ChunkJSON, Content: "{}", Done: true},
		{Type: entity.ChunkText, Content: "late"},
	}
	acc, err := Accumulate(context.Background(), schema.StreamReaderFromArray(chunks), nil)
	if err != nil {
		t.Fatal(err)
	}
	if acc.Markup != "<html><body>full</body></html>" {
		t.Fatalf("full documents must not be wrapped: %q", acc.Markup)
	}
}

func TestFinalizeEmptyOutput(t *testing.T) {
	out := Finalize(StripMarker("  " + entity.CompletionMarker + "\n"))
	if !strings.Contains(out, emptyOutputPlaceholder) || !strings.Contains(out, "<title>Generated Site</title>") {
		t.Fatalf("finalized = %q", out)
	}
}

func TestAccumulateHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sr, sw := schema.Pipe[entity.ResponseChunk](0)
	producerDone := make(chan bool, 1)
	go func() {
		defer sw.Close()
		sw.Send(entity.ResponseChunk{Type: entity.ChunkToken, Content: "<p>one</p>"}, nil)
		closed := sw.Send(entity.ResponseChunk{Type: entity.ChunkToken, Content: "<p>two</p>"}, nil)
		producerDone <- closed
	}()

	_, err := Accumulate(ctx, sr, func(entity.ResponseChunk) { cancel() })
	if err != context.Canceled {
		t.Fatalf("err = %v", err)
	}
	if closed := <-producerDone; !closed {
		t.Fatal("producer was not told the reader went away")
	}
}

func TestGenerateWebsiteBuildsRequestAndValidates(t *testing.T) {
	router := staticRouter(tokens("<h1>Hello</h1>", "<p>Content</p>", entity.CompletionMarker))
	p := NewPipeline(router, safety.NewLayer(entity.SafetyStrict, nil, nil))

	snapshot := &entity.WebsiteSnapshot{Theme: &entity.ThemeTokens{Colors: map[string]string{"primary": "#333"}}}
	res, err := p.GenerateWebsite(context.Background(), "A bakery landing page", entity.UserPreferences{
		Brand: &entity.Brand{Name: "Crumb"},
	}, snapshot, Options{})
	if err != nil {
		t.Fatal(err)
	}

	req := router.reqs[0]
	if req.Model != entity.ModelAuto || req.Operation != entity.OperationGeneratePage || !req.Stream {
		t.Fatalf("request = %+v", req)
	}
	if len(req.Context.Constraints) != 5 || req.Context.CurrentDesign != snapshot {
		t.Fatalf("context = %+v", req.Context)
	}
	if !strings.Contains(req.Prompt, "A bakery landing page") || !strings.Contains(req.Prompt, "- Name: Crumb") {
		t.Fatalf("prompt = %q", req.Prompt)
	}
	if req.Context.UserPreferences.DesignStyle != entity.DesignStyleMinimal {
		t.Fatalf("preferences defaults not applied: %+v", req.Context.UserPreferences)
	}

	if !res.Validation.Passed || len(res.Issues) != 0 {
		t.Fatalf("validation = %+v", res.Validation)
	}
	w := res.Website
	if len(w.Pages) != 1 || w.IndexHTML() != res.Accumulation.Markup || w.Theme != snapshot.Theme {
		t.Fatalf("website = %+v", w)
	}
	if w.Metadata.Provider != entity.ProviderOpenAI || w.Metadata.Model != entity.ModelGPT4oMini || w.Metadata.Confidence != 0.8 || w.Metadata.TokensUsed != 3 {
		t.Fatalf("metadata = %+v", w.Metadata)
	}
}

func TestGenerateWebsiteSafetyLevelOverride(t *testing.T) {
	router := staticRouter(tokens(`<img src="x.png">`, entity.CompletionMarker))
	p := NewPipeline(router, nil)

	strict, _ := p.GenerateWebsite(context.Background(), "x", entity.UserPreferences{}, nil, Options{})
	minimal, _ := p.GenerateWebsite(context.Background(), "x", entity.UserPreferences{}, nil, Options{SafetyLevel: entity.SafetyMinimal})
	if strict.Validation.Passed || !minimal.Validation.Passed {
		t.Fatalf("strict=%v minimal=%v", strict.Validation.Passed, minimal.Validation.Passed)
	}
}

// --- Service ---

type recordingSink struct {
	events []Event
	onData func()
}

func (s *recordingSink) sink(ev Event) {
	s.events = append(s.events, ev)
	if ev.Type == EventData && s.onData != nil {
		s.onData()
	}
}

func (s *recordingSink) types() []EventType {
	out := make([]EventType, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Type)
	}
	return out
}

func (s *recordingSink) first(t EventType) (Event, bool) {
	for _, ev := range s.events {
		if ev.Type == t {
			return ev, true
		}
	}
	return Event{}, false
}

func (s *recordingSink) last() Event {
	return s.events[len(s.events)-1]
}

type memWebsites struct {
	saved []*entity.Website
}

func (m *memWebsites) Save(_ context.Context, w *entity.Website) (string, error) {
	m.saved = append(m.saved, w)
	return w.ID, nil
}

func (m *memWebsites) GetByID(context.Context, string) (*entity.Website, error) {
	return nil, apperrors.ErrNotFound
}

func (m *memWebsites) ListByUser(context.Context, string, repository.Pagination) (*repository.PagedResult[*entity.Website], error) {
	return nil, nil
}

type memCache struct {
	stored map[string]string
}

func (c *memCache) Lookup(context.Context, entity.GenerationRequest) (string, bool, error) {
	return "", false, nil
}

func (c *memCache) Store(_ context.Context, req entity.GenerationRequest, markup string) error {
	if c.stored == nil {
		c.stored = map[string]string{}
	}
	c.stored[req.Prompt] = markup
	return nil
}

type memPublisher struct {
	events []*messaging.SiteGeneratedMessage
}

func (p *memPublisher) PublishSiteGenerated(_ context.Context, evt *messaging.SiteGeneratedMessage) (string, error) {
	p.events = append(p.events, evt)
	return "1-0", nil
}

type memUsage struct {
	records []service.LLMUsageInput
}

func (u *memUsage) Record(_ context.Context, in service.LLMUsageInput) error {
	u.records = append(u.records, in)
	return nil
}

type serviceFixture struct {
	svc       *Service
	router    *fakeRouter
	credits   *admission.Credits
	websites  *memWebsites
	cache     *memCache
	publisher *memPublisher
	usage     *memUsage
}

func newServiceFixture(router *fakeRouter, startingBalance int64) *serviceFixture {
	credits := admission.NewCredits(admission.NewMemoryCounterStore(), nil, nil, startingBalance)
	f := &serviceFixture{
		router:    router,
		credits:   credits,
		websites:  &memWebsites{},
		cache:     &memCache{},
		publisher: &memPublisher{},
		usage:     &memUsage{},
	}
	f.svc = NewService(
		NewPipeline(router, safety.NewLayer(entity.SafetyStrict, nil, nil)),
		admission.NewController(credits, nil, nil),
		f.cache, f.websites, f.publisher, f.usage,
	)
	return f
}

func (f *serviceFixture) balance(t *testing.T, user string) int64 {
	t.Helper()
	b, err := f.credits.Balance(context.Background(), user)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestRunSuccessCommitsAndPersists(t *testing.T) {
	f := newServiceFixture(staticRouter(tokens("<h1>Hello</h1>", "<p>Content</p>", entity.CompletionMarker)), 100)
	rec := &recordingSink{}

	f.svc.Run(context.Background(), GenerateInput{UserID: "u1", Description: "bakery"}, rec.sink)

	types := rec.types()
	wantPrefix := []EventType{EventReserved, EventCredits, EventProgress, EventData}
	for i, want := range wantPrefix {
		if types[i] != want {
			t.Fatalf("events = %v", types)
		}
	}
	if ev, _ := rec.first(EventReserved); ev.Data.(ReservedPayload).Amount != 10 {
		t.Fatalf("reserved = %+v", ev.Data)
	}
	if ev, _ := rec.first(EventCredits); ev.Data.(CreditsPayload).Remaining != 90 {
		t.Fatalf("credits = %+v", ev.Data)
	}

	var fragments []string
	for _, ev := range rec.events {
		if ev.Type == EventData {
			fragments = append(fragments, ev.Data.(string))
		}
	}
	if strings.Join(fragments, "") != "<h1>Hello</h1><p>Content</p>" {
		t.Fatalf("fragments = %q", fragments)
	}

	v, ok := rec.first(EventValidation)
	if !ok || !v.Data.(entity.ValidationResult).Passed {
		t.Fatalf("validation = %+v", v)
	}
	done := rec.last()
	payload := done.Data.(DonePayload)
	if done.Type != EventDone || !payload.Success || payload.WebsiteID == "" || payload.WebsiteID != payload.GenerationID {
		t.Fatalf("done = %+v", done)
	}

	if b := f.balance(t, "u1"); b != 90 {
		t.Fatalf("balance = %d", b)
	}
	if len(f.websites.saved) != 1 || f.websites.saved[0].UserID != "u1" {
		t.Fatalf("saved = %+v", f.websites.saved)
	}
	if len(f.cache.stored) != 1 {
		t.Fatalf("cache = %+v", f.cache.stored)
	}
	if len(f.publisher.events) != 1 || f.publisher.events[0].WebsiteID != payload.WebsiteID || !f.publisher.events[0].Passed {
		t.Fatalf("published = %+v", f.publisher.events)
	}
	if len(f.usage.records) != 1 || f.usage.records[0].Tokens != 3 || f.usage.records[0].Provider != "openai" {
		t.Fatalf("usage = %+v", f.usage.records)
	}
}

func TestRunRejectsWithoutProviderWork(t *testing.T) {
	f := newServiceFixture(staticRouter(tokens("<p>x</p>", entity.CompletionMarker)), 5)
	rec := &recordingSink{}

	f.svc.Run(context.Background(), GenerateInput{UserID: "u1", Description: "x"}, rec.sink)

	if len(rec.events) != 2 || rec.events[0].Type != EventError || rec.events[1].Type != EventDone {
		t.Fatalf("events = %v", rec.types())
	}
	errPayload := rec.events[0].Data.(ErrorPayload)
	if errPayload.Status != 402 || errPayload.Reason != admission.ReasonInsufficientCredits {
		t.Fatalf("error = %+v", errPayload)
	}
	if rec.events[1].Data.(DonePayload).Success {
		t.Fatal("rejection must not succeed")
	}
	if len(f.router.reqs) != 0 {
		t.Fatal("router must not be invoked after rejection")
	}
	if b := f.balance(t, "u1"); b != 5 {
		t.Fatalf("balance = %d", b)
	}
}

func TestRunFallbackRefundsAndDegrades(t *testing.T) {
	router := &fakeRouter{stream: func(req entity.GenerationRequest) (port.ChunkStream, error) {
		return routing.FallbackStream(req, routing.FallbackMessage), nil
	}}
	f := newServiceFixture(router, 100)
	rec := &recordingSink{}

	f.svc.Run(context.Background(), GenerateInput{UserID: "u1", Description: "x"}, rec.sink)

	if _, ok := rec.first(EventData); !ok {
		t.Fatal("fallback document must still be delivered")
	}
	if _, ok := rec.first(EventValidation); !ok {
		t.Fatal("fallback document must still be validated")
	}
	done := rec.last().Data.(DonePayload)
	if done.Success || !done.Degraded {
		t.Fatalf("done = %+v", done)
	}
	if b := f.balance(t, "u1"); b != 100 {
		t.Fatalf("balance = %d, want refund", b)
	}
	if len(f.websites.saved) != 0 || len(f.cache.stored) != 0 {
		t.Fatal("degraded output must not be saved or cached")
	}
	if len(f.usage.records) != 1 || !f.usage.records[0].Degraded {
		t.Fatalf("usage = %+v", f.usage.records)
	}
}

func TestRunErrorChunkRefunds(t *testing.T) {
	f := newServiceFixture(staticRouter([]entity.ResponseChunk{
		{Type: entity.ChunkToken, Content: "<h1>Hel", Provider: entity.ProviderOpenAI},
		{Type: entity.ChunkError, Content: "connection reset", Done: true, Provider: entity.ProviderOpenAI},
	}), 100)
	rec := &recordingSink{}

	f.svc.Run(context.Background(), GenerateInput{UserID: "u1", Description: "x"}, rec.sink)

	ev, ok := rec.first(EventError)
	if !ok || ev.Data.(ErrorPayload).Status != 500 {
		t.Fatalf("events = %v", rec.types())
	}
	done := rec.last()
	if done.Type != EventDone || done.Data.(DonePayload).Success {
		t.Fatalf("done = %+v", done)
	}
	if b := f.balance(t, "u1"); b != 100 {
		t.Fatalf("balance = %d, want refund", b)
	}
	if len(f.websites.saved) != 0 || len(f.cache.stored) != 0 || len(f.publisher.events) != 0 {
		t.Fatal("failed generation must not be saved, cached or published")
	}
}

func TestRunAbortRefunds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	router := &fakeRouter{stream: func(entity.GenerationRequest) (port.ChunkStream, error) {
		sr, sw := schema.Pipe[entity.ResponseChunk](0)
		go func() {
			defer sw.Close()
			for _, c := range tokens("<p>one</p>", "<p>two</p>", entity.CompletionMarker) {
				if closed := sw.Send(c, nil); closed {
					return
				}
			}
		}()
		return sr, nil
	}}
	f := newServiceFixture(router, 100)
	rec := &recordingSink{onData: cancel}

	f.svc.Run(ctx, GenerateInput{UserID: "u1", Description: "x"}, rec.sink)

	if last := rec.last(); last.Type != EventAborted {
		t.Fatalf("events = %v", rec.types())
	}
	if _, ok := rec.first(EventDone); ok {
		t.Fatal("aborted generation must not send done")
	}
	if b := f.balance(t, "u1"); b != 100 {
		t.Fatalf("balance = %d, want refund", b)
	}
	if len(f.websites.saved) != 0 {
		t.Fatal("aborted generation must not be saved")
	}
}

func TestRunConfigurationErrorRefunds(t *testing.T) {
	router := &fakeRouter{stream: func(entity.GenerationRequest) (port.ChunkStream, error) {
		return nil, apperrors.ErrNoProviderAvailable.WithDetail("No AI provider available for requested model: claude-3-opus")
	}}
	f := newServiceFixture(router, 100)
	rec := &recordingSink{}

	f.svc.Run(context.Background(), GenerateInput{
		UserID:  "u1",
		Options: Options{Model: entity.ModelClaude3Opus},
	}, rec.sink)

	ev, ok := rec.first(EventError)
	if !ok {
		t.Fatalf("events = %v", rec.types())
	}
	payload := ev.Data.(ErrorPayload)
	if payload.Status != 503 || !strings.Contains(payload.Message, "claude-3-opus") || payload.Reason != "" {
		t.Fatalf("error = %+v", payload)
	}
	if c, _ := rec.first(EventCredits); c.Data.(CreditsPayload).Remaining != 90 {
		t.Fatalf("first credits event = %+v", c.Data)
	}
	if rec.last().Type != EventDone || rec.last().Data.(DonePayload).Success {
		t.Fatalf("events = %v", rec.types())
	}
	if b := f.balance(t, "u1"); b != 100 {
		t.Fatalf("balance = %d, want refund", b)
	}
}
