package redis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"sitegen-ai-api/internal/application/admission"
	"sitegen-ai-api/internal/config"
	"sitegen-ai-api/internal/domain/entity"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return Wrap(rdb), mr
}

func TestCounterStoreReserve(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestClient(t)
	s := NewCounterStore(client)

	v, err := s.InitIfAbsent(ctx, "credits:u1", 100)
	if err != nil || v != 100 {
		t.Fatalf("InitIfAbsent = %d, %v", v, err)
	}
	if v, _ := s.InitIfAbsent(ctx, "credits:u1", 5); v != 100 {
		t.Fatalf("InitIfAbsent overwrote existing value: %d", v)
	}

	remaining, ok, err := s.DecrIfSufficient(ctx, "credits:u1", 101)
	if err != nil || ok || remaining != 100 {
		t.Fatalf("over-reserve = %d, %v, %v", remaining, ok, err)
	}
	remaining, ok, err = s.DecrIfSufficient(ctx, "credits:u1", 100)
	if err != nil || !ok || remaining != 0 {
		t.Fatalf("exact reserve = %d, %v, %v", remaining, ok, err)
	}
	if got, _ := mr.Get("credits:u1"); got != "0" {
		t.Fatalf("stored value = %q", got)
	}

	if v, _ := s.IncrBy(ctx, "credits:u1", 10); v != 10 {
		t.Fatalf("IncrBy = %d", v)
	}
	if v, _ := s.Get(ctx, "credits:missing"); v != 0 {
		t.Fatalf("Get(missing) = %d", v)
	}
	if _, ok, _ := s.DecrIfSufficient(ctx, "credits:missing", 1); ok {
		t.Fatal("missing key must not be reservable")
	}
}

func TestCounterStoreConcurrentReservations(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)
	credits := admission.NewCredits(NewCounterStore(client), nil, nil, 100)
	if _, err := credits.Ensure(ctx, "u1"); err != nil {
		t.Fatal(err)
	}

	var ok atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := credits.Reserve(ctx, "u1", 7); err == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()

	if ok.Load() != 14 {
		t.Fatalf("successful reservations = %d, want 14", ok.Load())
	}
	if b, _ := credits.Balance(ctx, "u1"); b != 2 {
		t.Fatalf("balance = %d, want 2", b)
	}
}

func TestCounterStoreUnavailable(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestClient(t)
	credits := admission.NewCredits(NewCounterStore(client), nil, nil, 100)
	mr.Close()

	if _, err := credits.Ensure(ctx, "u1"); err == nil {
		t.Fatal("expected store error")
	}
}

func TestRateLimiterWindow(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestClient(t)
	l := NewRateLimiter(client)
	now := time.UnixMilli(1_700_000_000_000)

	for i, member := range []string{"a", "b", "c"} {
		allowed, remaining, err := l.Hit(ctx, "ratelimit:ip", member, 3, time.Minute, now)
		if err != nil || !allowed || remaining != int64(2-i) {
			t.Fatalf("hit %d = %v, %d, %v", i, allowed, remaining, err)
		}
	}
	if allowed, _, _ := l.Hit(ctx, "ratelimit:ip", "d", 3, time.Minute, now); allowed {
		t.Fatal("fourth hit must be denied")
	}
	if n, _ := mr.ZMembers("ratelimit:ip"); len(n) != 3 {
		t.Fatalf("members = %v", n)
	}

	if allowed, _, _ := l.Hit(ctx, "ratelimit:ip", "e", 3, time.Minute, now.Add(time.Minute+time.Millisecond)); !allowed {
		t.Fatal("hits outside the window must age out")
	}
}

func TestRateLimiterRelease(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestClient(t)
	l := NewRateLimiter(client)
	now := time.UnixMilli(1_700_000_000_000)

	for _, member := range []string{"a", "b"} {
		if allowed, _, err := l.Hit(ctx, "ratelimit:u1", member, 2, time.Minute, now); err != nil || !allowed {
			t.Fatalf("hit %s = %v, %v", member, allowed, err)
		}
	}
	if err := l.Release(ctx, "ratelimit:u1", "a"); err != nil {
		t.Fatal(err)
	}
	if err := l.Release(ctx, "ratelimit:u1", "missing"); err != nil {
		t.Fatalf("releasing an unknown member: %v", err)
	}
	if n, _ := mr.ZMembers("ratelimit:u1"); len(n) != 1 || n[0] != "b" {
		t.Fatalf("members = %v", n)
	}
	if allowed, remaining, _ := l.Hit(ctx, "ratelimit:u1", "c", 2, time.Minute, now); !allowed || remaining != 0 {
		t.Fatal("released slot must be reusable")
	}
}

func TestAdmissionControllerReleasesRedisWindow(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestClient(t)
	store := NewRateLimiter(client)
	credits := admission.NewCredits(NewCounterStore(client), admission.DefaultPricing(), nil, 5)
	daily := admission.NewRateLimiter(store, "daily", config.RateLimitConfig{KeyPrefix: "daily:"})
	ctrl := admission.NewController(credits, nil, daily)
	req := admission.Request{UserID: "f", Plan: entity.PlanFree, Operation: entity.OperationGeneratePage}

	for i := 0; i < 2; i++ {
		if _, err := ctrl.Admit(ctx, req); admission.Reason(err) != admission.ReasonInsufficientCredits {
			t.Fatalf("admit %d: %v", i, err)
		}
	}
	if mr.Exists("daily:generatePage:f") {
		if n, _ := mr.ZMembers("daily:generatePage:f"); len(n) != 0 {
			t.Fatalf("rejected admissions kept window members: %v", n)
		}
	}
	if _, err := credits.Grant(ctx, "f", 100); err != nil {
		t.Fatal(err)
	}
	if _, err := ctrl.Admit(ctx, req); err != nil {
		t.Fatalf("admit after grant: %v", err)
	}
}

func TestAdmissionLimiterFailsOpenWhenRedisDown(t *testing.T) {
	client, mr := newTestClient(t)
	l := admission.NewRateLimiter(NewRateLimiter(client), "test", config.RateLimitConfig{MaxRequests: 1})
	mr.Close()

	d := l.Check(context.Background(), "ip")
	if !d.Allowed || !d.FailOpen {
		t.Fatalf("decision = %+v", d)
	}
}

func TestGenerationCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestClient(t)
	gc := NewGenerationCache(NewCache(client), time.Hour)
	req := entity.GenerationRequest{Prompt: "bakery", Model: entity.ModelAuto, Operation: entity.OperationGeneratePage}

	if _, ok, err := gc.Lookup(ctx, req); ok || err != nil {
		t.Fatalf("empty cache lookup = %v, %v", ok, err)
	}
	if err := gc.Store(ctx, req, "<main>bakery</main>"); err != nil {
		t.Fatalf("Store: %v", err)
	}
	got, ok, err := gc.Lookup(ctx, req)
	if err != nil || !ok || got != "<main>bakery</main>" {
		t.Fatalf("Lookup = %q, %v, %v", got, ok, err)
	}
	if ttl := mr.TTL(GenerationKey(req)); ttl != time.Hour {
		t.Fatalf("ttl = %v", ttl)
	}

	other := req
	other.Prompt = "florist"
	if GenerationKey(other) == GenerationKey(req) {
		t.Fatal("different prompts must map to different keys")
	}
	if _, ok, _ := gc.Lookup(ctx, other); ok {
		t.Fatal("unexpected hit for a different prompt")
	}
}
