package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sroepkeee/orderhub-notify/internal/metrics"
	"github.com/sroepkeee/orderhub-notify/internal/orders"
	"github.com/sroepkeee/orderhub-notify/internal/queue"
	"github.com/sroepkeee/orderhub-notify/internal/render"
	"github.com/sroepkeee/orderhub-notify/internal/routing"
)

// Fan-out pacing keeps a burst of alerts from eating the whole rate-limit
// window at dispatch time.
const (
	perRecipientStagger = 5 * time.Second
	perAlertStagger     = 30 * time.Second
)

// Mirror cross-posts alerts to a secondary channel for review. Failures are
// logged and swallowed; the primary queue path never depends on it.
type Mirror interface {
	Publish(ctx context.Context, a *Alert) error
}

// Summary is the alert entrypoint response.
type Summary struct {
	AlertsGenerated int      `json:"alerts_generated"`
	MessagesQueued  int      `json:"messages_queued"`
	Managers        int      `json:"managers"`
	AlertTypes      []string `json:"alert_types"`
}

// Generator runs the detector battery on a schedule and fans the resulting
// alerts out to every subscribed manager, organization-wide.
type Generator struct {
	orders   orders.Store
	queue    queue.Store
	managers routing.ManagerStore
	mirror   Mirror
	orgID    string
	log      *slog.Logger
	now      func() time.Time
}

func NewGenerator(o orders.Store, q queue.Store, m routing.ManagerStore, mirror Mirror, orgID string, log *slog.Logger) *Generator {
	return &Generator{
		orders:   o,
		queue:    q,
		managers: m,
		mirror:   mirror,
		orgID:    orgID,
		log:      log,
		now:      time.Now,
	}
}

// Run evaluates every detector, sorts alerts by priority and enqueues the
// fan-out. Detector failures are logged and skipped; one broken metric scan
// must not silence the others.
func (g *Generator) Run(ctx context.Context) (*Summary, error) {
	now := g.now()
	generated := g.detect(ctx, now)

	summary := &Summary{AlertTypes: []string{}}
	summary.AlertsGenerated = len(generated)
	for _, a := range generated {
		summary.AlertTypes = append(summary.AlertTypes, a.Type)
		metrics.AlertsGenerated.WithLabelValues(a.Type).Inc()
	}
	if len(generated) == 0 {
		return summary, nil
	}

	managers, err := g.managers.ActiveAll(ctx, g.orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to load managers for alert fan-out: %w", err)
	}
	recipients := routing.Resolve(managers, routing.TypeUrgentAlert)
	summary.Managers = len(recipients)
	if len(recipients) == 0 {
		g.log.Info("alerts generated but no subscribed managers", "alerts", len(generated))
		return summary, nil
	}

	for ai, a := range generated {
		for ri, r := range recipients {
			scheduledFor := now.
				Add(time.Duration(ai) * perAlertStagger).
				Add(time.Duration(ri) * perRecipientStagger)
			msg := &queue.Message{
				RecipientAddress: r.Address,
				RecipientName:    r.Name,
				MessageType:      queue.SmartAlertType(a.Type),
				Content:          a.Message,
				Priority:         a.Priority,
				ScheduledFor:     &scheduledFor,
				Metadata:         alertMetadata(a),
			}
			if err := g.queue.Enqueue(ctx, msg); err != nil {
				return nil, fmt.Errorf("failed to enqueue %s alert: %w", a.Type, err)
			}
			metrics.MessagesQueued.WithLabelValues("alerts").Inc()
			summary.MessagesQueued++
		}

		if g.mirror != nil {
			if err := g.mirror.Publish(ctx, a); err != nil {
				g.log.Warn("alert mirror failed", "type", a.Type, "error", err)
			}
		}
	}

	g.log.Info("alert cycle finished",
		"alerts", summary.AlertsGenerated,
		"queued", summary.MessagesQueued,
		"managers", summary.Managers)
	return summary, nil
}

// detect runs the battery concurrently. Detectors are independent and must
// not block on each other.
func (g *Generator) detect(ctx context.Context, now time.Time) []*Alert {
	battery := Battery()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results []*Alert
	)
	for name, det := range battery {
		wg.Add(1)
		go func(name string, det Detector) {
			defer wg.Done()
			a, err := det(ctx, g.orders, now)
			if err != nil {
				g.log.Warn("detector failed", "detector", name, "error", err)
				return
			}
			if a == nil {
				return
			}
			mu.Lock()
			results = append(results, a)
			mu.Unlock()
		}(name, det)
	}
	wg.Wait()

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Priority != results[j].Priority {
			return results[i].Priority < results[j].Priority
		}
		return results[i].Type < results[j].Type
	})
	return results
}

// RunDailySummary enqueues the scheduled digest for managers opted into
// daily summaries.
func (g *Generator) RunDailySummary(ctx context.Context) (int, error) {
	now := g.now()

	overdue, err := g.orders.OverdueOpen(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to build daily summary: %w", err)
	}
	dueSoon, err := g.orders.DueWithin(ctx, now, 24*time.Hour)
	if err != nil {
		return 0, fmt.Errorf("failed to build daily summary: %w", err)
	}
	delivered, err := g.orders.DeliveredBetween(ctx, now.AddDate(0, 0, -7), now)
	if err != nil {
		return 0, fmt.Errorf("failed to build daily summary: %w", err)
	}

	content := fmt.Sprintf(
		"Resumo diário - %s\nPedidos em atraso: %d\nEntregas nas próximas 24h: %d\nEntregues nos últimos 7 dias: %d",
		render.FormatDate(now), len(overdue), len(dueSoon), delivered)

	managers, err := g.managers.ActiveAll(ctx, g.orgID)
	if err != nil {
		return 0, fmt.Errorf("failed to load managers for daily summary: %w", err)
	}
	recipients := routing.Resolve(managers, routing.TypeDailySummary)

	queued := 0
	for ri, r := range recipients {
		scheduledFor := now.Add(time.Duration(ri) * perRecipientStagger)
		msg := &queue.Message{
			RecipientAddress: r.Address,
			RecipientName:    r.Name,
			MessageType:      queue.TypeScheduledReport,
			Content:          content,
			Priority:         queue.PriorityNormal,
			ScheduledFor:     &scheduledFor,
		}
		if err := g.queue.Enqueue(ctx, msg); err != nil {
			return queued, fmt.Errorf("failed to enqueue daily summary: %w", err)
		}
		metrics.MessagesQueued.WithLabelValues("summary").Inc()
		queued++
	}
	return queued, nil
}

func alertMetadata(a *Alert) map[string]string {
	md := map[string]string{"alert_type": a.Type}
	for k, v := range a.Metadata {
		md[k] = v
	}
	return md
}
