package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"sitegen-ai-api/internal/domain/service"
)

type captureRecorder struct {
	mu  sync.Mutex
	got []service.LLMUsageInput
}

func (r *captureRecorder) Record(_ context.Context, in service.LLMUsageInput) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, in)
	return nil
}

func newRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb, mr
}

func sampleEvent() *SiteGeneratedMessage {
	return &SiteGeneratedMessage{
		GenerationID: "gen-1",
		UserID:       "u1",
		WebsiteID:    "site-1",
		Operation:    "generatePage",
		Provider:     "openai",
		Model:        "auto",
		Tokens:       120,
		DurationMs:   900,
		Passed:       true,
		CreatedAt:    time.Now().UTC(),
	}
}

func TestPublishSiteGenerated(t *testing.T) {
	rdb, mr := newRedis(t)
	p := NewProducer(rdb, 10)

	id, err := p.PublishSiteGenerated(context.Background(), sampleEvent())
	if err != nil || id == "" {
		t.Fatalf("PublishSiteGenerated = %q, %v", id, err)
	}

	entries, err := mr.Stream(string(StreamSiteGenerated))
	if err != nil || len(entries) != 1 {
		t.Fatalf("stream entries = %v, %v", entries, err)
	}
	values := entries[0].Values
	if len(values) != 2 || values[0] != "data" {
		t.Fatalf("entry values = %v", values)
	}
	var msg Message
	if err := json.Unmarshal([]byte(values[1]), &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Type != TypeSiteGenerated || msg.UserID != "u1" || msg.ID != "gen-1" {
		t.Fatalf("message = %+v", msg)
	}
}

func TestUsageHandlerDecodesEvent(t *testing.T) {
	rec := &captureRecorder{}
	msg, err := NewMessage("gen-1", TypeSiteGenerated, "u1", sampleEvent())
	if err != nil {
		t.Fatal(err)
	}
	if err := UsageHandler(rec)(context.Background(), msg); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(rec.got) != 1 || rec.got[0].Tokens != 120 || rec.got[0].GenerationID != "gen-1" || rec.got[0].Provider != "openai" {
		t.Fatalf("recorded = %+v", rec.got)
	}

	bad := &Message{ID: "x", Type: TypeSiteGenerated, Payload: json.RawMessage(`"not an object"`)}
	if err := UsageHandler(rec)(context.Background(), bad); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestConsumerDeliversPublishedEvents(t *testing.T) {
	rdb, _ := newRedis(t)
	rec := &captureRecorder{}

	c := NewConsumer(rdb, ConsumerConfig{
		Stream:       StreamSiteGenerated,
		Group:        ConsumerGroupUsageWriter,
		ConsumerName: "test-worker",
		BlockTimeout: 50 * time.Millisecond,
	})
	c.RegisterHandler(TypeSiteGenerated, UsageHandler(rec))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	if _, err := NewProducer(rdb, 0).PublishSiteGenerated(ctx, sampleEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for {
		rec.mu.Lock()
		n := len(rec.got)
		rec.mu.Unlock()
		if n == 1 {
			return
		}
		select {
		case <-deadline:
			t.Fatal("event was not consumed")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestConsumerMovesExhaustedMessagesToDLQ(t *testing.T) {
	rdb, mr := newRedis(t)

	c := NewConsumer(rdb, ConsumerConfig{
		Stream:       StreamSiteGenerated,
		Group:        ConsumerGroupUsageWriter,
		ConsumerName: "test-worker",
		BlockTimeout: 50 * time.Millisecond,
		RetryLimit:   1,
	})
	c.RegisterHandler(TypeSiteGenerated, func(context.Context, *Message) error {
		return errors.New("postgres down")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	if _, err := NewProducer(rdb, 0).PublishSiteGenerated(ctx, sampleEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for {
		entries, _ := mr.Stream(StreamSiteGenerated.DLQStream())
		if len(entries) == 1 {
			if !strings.Contains(entries[0].Values[1], "postgres down") {
				t.Fatalf("dlq entry = %v", entries[0].Values)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("message was not dead-lettered")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestBackoffGrowsToMax(t *testing.T) {
	cfg := BackoffConfig{Initial: time.Second, Max: 5 * time.Second, Multiplier: 2}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, w := range want {
		if got := cfg.CalculateBackoff(i); got != w {
			t.Fatalf("CalculateBackoff(%d) = %v, want %v", i, got, w)
		}
	}
}
