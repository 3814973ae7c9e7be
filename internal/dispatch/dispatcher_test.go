package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sroepkeee/orderhub-notify/internal/channel"
	"github.com/sroepkeee/orderhub-notify/internal/queue"
	"github.com/sroepkeee/orderhub-notify/internal/ratelimit"
)

// fakeAdapter replays a scripted sequence of errors, nil meaning success.
type fakeAdapter struct {
	errs  []error
	calls int
	sent  []string
}

func (a *fakeAdapter) Send(ctx context.Context, address, content string, media *queue.MediaPayload) (*channel.Result, error) {
	idx := a.calls
	a.calls++
	if idx < len(a.errs) && a.errs[idx] != nil {
		return nil, a.errs[idx]
	}
	a.sent = append(a.sent, address)
	return &channel.Result{ProviderMessageID: "prov-1"}, nil
}

func newTestDispatcher(store queue.Store, adapter channel.Adapter) *Dispatcher {
	limiter := ratelimit.NewWithClock(
		ratelimit.Config{PerMinute: 100, PerHour: 1000},
		time.Now,
		func(time.Duration) time.Duration { return 0 },
	)
	d := New(store, limiter, adapter, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	d.sleep = func(time.Duration) {}
	return d
}

func enqueue(t *testing.T, store queue.Store, m *queue.Message) *queue.Message {
	t.Helper()
	if m.RecipientAddress == "" {
		m.RecipientAddress = "5511999990000"
	}
	if m.Content == "" {
		m.Content = "mensagem"
	}
	if err := store.Enqueue(context.Background(), m); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	return m
}

func TestProcessCycleSuccess(t *testing.T) {
	store := queue.NewMemoryStore()
	adapter := &fakeAdapter{}
	d := newTestDispatcher(store, adapter)

	m := enqueue(t, store, &queue.Message{})

	sent, err := d.ProcessCycle(context.Background())
	if err != nil {
		t.Fatalf("ProcessCycle failed: %v", err)
	}
	if sent != 1 {
		t.Fatalf("sent %d messages, want 1", sent)
	}

	got, _ := store.GetByID(context.Background(), m.ID)
	if got.Status != queue.StatusSent {
		t.Errorf("status = %s, want sent", got.Status)
	}
	if got.SentAt == nil {
		t.Error("SentAt not recorded")
	}
	if len(adapter.sent) != 1 || adapter.sent[0] != "5511999990000" {
		t.Errorf("adapter sends = %v", adapter.sent)
	}
}

func TestProcessCycleRetryThenTerminal(t *testing.T) {
	store := queue.NewMemoryStore()
	adapter := &fakeAdapter{errs: []error{errors.New("provider rejected")}}
	d := newTestDispatcher(store, adapter)
	ctx := context.Background()

	m := enqueue(t, store, &queue.Message{Attempts: 2, MaxAttempts: 3})

	if _, err := d.ProcessCycle(ctx); err != nil {
		t.Fatalf("ProcessCycle failed: %v", err)
	}
	got, _ := store.GetByID(ctx, m.ID)
	if got.Status != queue.StatusFailed {
		t.Fatalf("status = %s, want failed after exhausting attempts", got.Status)
	}
	if got.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", got.Attempts)
	}
	if got.ErrorMessage == "" {
		t.Error("terminal failure should record the provider error")
	}

	// Terminally failed messages never come back in a later poll.
	due, _ := store.PendingDue(ctx, time.Now().Add(time.Hour), 10)
	if len(due) != 0 {
		t.Errorf("terminal message still polled: %v", due)
	}
}

func TestProcessCycleRequeuesWithBackoff(t *testing.T) {
	store := queue.NewMemoryStore()
	adapter := &fakeAdapter{errs: []error{errors.New("transient")}}
	d := newTestDispatcher(store, adapter)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return base }

	m := enqueue(t, store, &queue.Message{})

	if _, err := d.ProcessCycle(ctx); err != nil {
		t.Fatalf("ProcessCycle failed: %v", err)
	}
	got, _ := store.GetByID(ctx, m.ID)
	if got.Status != queue.StatusPending {
		t.Fatalf("status = %s, want pending for retry", got.Status)
	}
	if got.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", got.Attempts)
	}
	// First retry backs off 2^1 seconds.
	if got.ScheduledFor == nil || !got.ScheduledFor.Equal(base.Add(2*time.Second)) {
		t.Errorf("ScheduledFor = %v, want %v", got.ScheduledFor, base.Add(2*time.Second))
	}
}

func TestProcessCycleChannelDownAbortsCycle(t *testing.T) {
	store := queue.NewMemoryStore()
	adapter := &fakeAdapter{errs: []error{channel.ErrChannelDown}}
	d := newTestDispatcher(store, adapter)
	ctx := context.Background()

	first := enqueue(t, store, &queue.Message{ID: "first", Priority: queue.PriorityCritical})
	second := enqueue(t, store, &queue.Message{ID: "second", Priority: queue.PriorityNormal})

	sent, err := d.ProcessCycle(ctx)
	if err != nil {
		t.Fatalf("ProcessCycle failed: %v", err)
	}
	if sent != 0 {
		t.Errorf("sent %d messages through a dead channel", sent)
	}
	if adapter.calls != 1 {
		t.Errorf("adapter called %d times, want 1 before aborting", adapter.calls)
	}

	// An outage burns no attempts; both messages wait for the next cycle.
	for _, m := range []*queue.Message{first, second} {
		got, _ := store.GetByID(ctx, m.ID)
		if got.Status != queue.StatusPending {
			t.Errorf("message %s status = %s, want pending", m.ID, got.Status)
		}
		if got.Attempts != 0 {
			t.Errorf("message %s attempts = %d, want 0", m.ID, got.Attempts)
		}
	}
}

func TestProcessCycleRateLimitExhaustion(t *testing.T) {
	store := queue.NewMemoryStore()
	adapter := &fakeAdapter{}
	limiter := ratelimit.NewWithClock(
		ratelimit.Config{PerMinute: 2, PerHour: 1000},
		time.Now,
		func(time.Duration) time.Duration { return 0 },
	)
	d := New(store, limiter, adapter, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	d.sleep = func(time.Duration) {}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		enqueue(t, store, &queue.Message{})
	}

	sent, err := d.ProcessCycle(ctx)
	if err != nil {
		t.Fatalf("ProcessCycle failed: %v", err)
	}
	if sent != 2 {
		t.Fatalf("sent %d messages, want the 2 the window allows", sent)
	}
	if n, _ := store.CountByStatus(ctx, queue.StatusPending); n != 1 {
		t.Errorf("%d messages pending, want the deferred 1", n)
	}
}

func TestProcessCycleSkipsCancelledRace(t *testing.T) {
	store := queue.NewMemoryStore()
	adapter := &fakeAdapter{}
	d := newTestDispatcher(store, adapter)
	ctx := context.Background()

	m := enqueue(t, store, &queue.Message{})

	// Operator cancels between the poll and the claim.
	if ok, _ := store.Transition(ctx, m.ID, queue.StatusPending, queue.StatusCancelled, queue.Update{}); !ok {
		t.Fatal("cancel transition should apply")
	}

	sent, err := d.ProcessCycle(ctx)
	if err != nil {
		t.Fatalf("ProcessCycle failed: %v", err)
	}
	if sent != 0 || adapter.calls != 0 {
		t.Errorf("cancelled message reached the adapter (sent=%d, calls=%d)", sent, adapter.calls)
	}
	got, _ := store.GetByID(ctx, m.ID)
	if got.Status != queue.StatusCancelled {
		t.Errorf("status = %s, want cancelled", got.Status)
	}
}

func TestSweep(t *testing.T) {
	store := queue.NewMemoryStore()
	d := newTestDispatcher(store, &fakeAdapter{})
	ctx := context.Background()

	base := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return base }

	enqueue(t, store, &queue.Message{ID: "old-sent", Status: queue.StatusSent, CreatedAt: base.Add(-48 * time.Hour)})
	enqueue(t, store, &queue.Message{ID: "new-sent", Status: queue.StatusSent, CreatedAt: base.Add(-time.Hour)})
	enqueue(t, store, &queue.Message{ID: "old-failed", Status: queue.StatusFailed, CreatedAt: base.Add(-48 * time.Hour)})

	n, err := d.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if n != 1 {
		t.Errorf("swept %d messages, want 1", n)
	}
	if m, _ := store.GetByID(ctx, "old-failed"); m == nil {
		t.Error("sweep must only touch sent messages")
	}
}
