package alerts

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sroepkeee/orderhub-notify/internal/orders"
	"github.com/sroepkeee/orderhub-notify/internal/queue"
	"github.com/sroepkeee/orderhub-notify/internal/routing"
)

type fakeManagerStore struct {
	managers []*routing.PhaseManager
}

func (f *fakeManagerStore) ActiveByPhase(ctx context.Context, orgID, phase string) ([]*routing.PhaseManager, error) {
	return nil, nil
}
func (f *fakeManagerStore) ActiveAll(ctx context.Context, orgID string) ([]*routing.PhaseManager, error) {
	return f.managers, nil
}

type failingMirror struct{ calls int }

func (m *failingMirror) Publish(ctx context.Context, a *Alert) error {
	m.calls++
	return errors.New("broker unreachable")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func alertSubscriber(name, phone string) *routing.PhaseManager {
	return &routing.PhaseManager{
		Name:                name,
		WhatsappAddress:     phone,
		Active:              true,
		ReceiveUrgentAlerts: true,
		ReceiveDailySummary: true,
	}
}

// firingStore trips two detectors: delayed orders (critical) and overdue
// items (high). Everything else stays quiet.
func firingStore(now time.Time) *stubOrderStore {
	items := make([]*orders.Item, overdueItemsMin)
	for i := range items {
		items[i] = &orders.Item{Description: "item"}
	}
	return &stubOrderStore{
		overdue:      []*orders.Order{overdueOrder("PED-01", 3, 500, now)},
		overdueItems: items,
		now:          now,
	}
}

func TestGeneratorRunFanOut(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	store := queue.NewMemoryStore()
	mirror := &failingMirror{}
	g := NewGenerator(
		firingStore(now),
		store,
		&fakeManagerStore{managers: []*routing.PhaseManager{
			alertSubscriber("Ana", "11 98888-0001"),
			alertSubscriber("Bruno", "11 98888-0002"),
		}},
		mirror,
		"org-1",
		discardLogger(),
	)
	g.now = func() time.Time { return now }

	sum, err := g.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if sum.AlertsGenerated != 2 {
		t.Fatalf("generated %d alerts, want 2", sum.AlertsGenerated)
	}
	if sum.MessagesQueued != 4 {
		t.Fatalf("queued %d messages, want 2 alerts x 2 recipients = 4", sum.MessagesQueued)
	}
	if sum.Managers != 2 {
		t.Errorf("resolved %d managers, want 2", sum.Managers)
	}
	// Critical alerts sort before high ones.
	if sum.AlertTypes[0] != TypeDelayedOrders {
		t.Errorf("alert order = %v, want delayed_orders first", sum.AlertTypes)
	}
	// Mirror failures are swallowed, never aborting the run.
	if mirror.calls != 2 {
		t.Errorf("mirror called %d times, want once per alert", mirror.calls)
	}

	// The fan-out staggers sends: 5s between recipients, 30s between alerts.
	pending, err := store.PendingDue(context.Background(), now.Add(time.Hour), 10)
	if err != nil {
		t.Fatalf("PendingDue failed: %v", err)
	}
	offsets := map[time.Duration]bool{}
	for _, m := range pending {
		if m.ScheduledFor == nil {
			t.Fatalf("queued alert message has no schedule: %+v", m)
		}
		offsets[m.ScheduledFor.Sub(now)] = true
	}
	for _, want := range []time.Duration{0, 5 * time.Second, 30 * time.Second, 35 * time.Second} {
		if !offsets[want] {
			t.Errorf("missing stagger offset %v in %v", want, offsets)
		}
	}

	// Queued messages carry the smart-alert type tag.
	if pending[0].MessageType != queue.SmartAlertType(TypeDelayedOrders) {
		t.Errorf("message type = %q, want %q", pending[0].MessageType, queue.SmartAlertType(TypeDelayedOrders))
	}
}

func TestGeneratorRunNoAlerts(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	store := queue.NewMemoryStore()
	g := NewGenerator(&stubOrderStore{now: now}, store,
		&fakeManagerStore{managers: []*routing.PhaseManager{alertSubscriber("Ana", "11 98888-0001")}},
		nil, "org-1", discardLogger())
	g.now = func() time.Time { return now }

	sum, err := g.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if sum.AlertsGenerated != 0 || sum.MessagesQueued != 0 {
		t.Errorf("quiet store produced %+v, want empty summary", sum)
	}
}

func TestGeneratorRunNoSubscribers(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	store := queue.NewMemoryStore()
	g := NewGenerator(firingStore(now), store, &fakeManagerStore{}, nil, "org-1", discardLogger())
	g.now = func() time.Time { return now }

	sum, err := g.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if sum.AlertsGenerated == 0 {
		t.Fatal("detectors should still run without subscribers")
	}
	if sum.MessagesQueued != 0 {
		t.Errorf("queued %d messages with nobody subscribed", sum.MessagesQueued)
	}
}

func TestRunDailySummary(t *testing.T) {
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	store := queue.NewMemoryStore()
	g := NewGenerator(
		&stubOrderStore{
			now:             now,
			overdue:         []*orders.Order{overdueOrder("PED-01", 2, 100, now)},
			deliveredByWeek: map[int]int{0: 9},
		},
		store,
		&fakeManagerStore{managers: []*routing.PhaseManager{
			alertSubscriber("Ana", "11 98888-0001"),
			{Name: "SemResumo", WhatsappAddress: "11 98888-0002", Active: true, ReceiveUrgentAlerts: true},
		}},
		nil, "org-1", discardLogger())
	g.now = func() time.Time { return now }

	queued, err := g.RunDailySummary(context.Background())
	if err != nil {
		t.Fatalf("RunDailySummary failed: %v", err)
	}
	if queued != 1 {
		t.Fatalf("queued %d summaries, want 1 (only the daily-summary subscriber)", queued)
	}

	pending, _ := store.PendingDue(context.Background(), now.Add(time.Minute), 10)
	if len(pending) != 1 {
		t.Fatalf("store holds %d messages, want 1", len(pending))
	}
	if pending[0].MessageType != queue.TypeScheduledReport {
		t.Errorf("message type = %q, want %q", pending[0].MessageType, queue.TypeScheduledReport)
	}
}
