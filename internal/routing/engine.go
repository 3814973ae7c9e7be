package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sroepkeee/orderhub-notify/internal/metrics"
	"github.com/sroepkeee/orderhub-notify/internal/orders"
	"github.com/sroepkeee/orderhub-notify/internal/queue"
	"github.com/sroepkeee/orderhub-notify/internal/render"
)

// ErrOrderNotFound is a hard input error: the event referenced an order the
// store does not know.
var ErrOrderNotFound = errors.New("order not found")

// OrderEvent is the routing entrypoint payload for one status transition.
type OrderEvent struct {
	OrderID          string `json:"order_id"`
	OldStatus        string `json:"old_status"`
	NewStatus        string `json:"new_status"`
	OrderType        string `json:"order_type,omitempty"`
	OrderCategory    string `json:"order_category,omitempty"`
	NotificationType string `json:"notification_type,omitempty"`
	CustomMessage    string `json:"custom_message,omitempty"`
}

// Notification records one queued message in a RouteResult.
type Notification struct {
	MessageID string `json:"message_id"`
	Address   string `json:"address"`
	Name      string `json:"name,omitempty"`
}

// RouteResult reports what a status transition produced. Zero notifications
// with no error means a configuration miss, which is expected.
type RouteResult struct {
	Phase             string         `json:"phase,omitempty"`
	TriggerUsed       string         `json:"trigger_used,omitempty"`
	NotificationsSent int            `json:"notifications_sent"`
	Notifications     []Notification `json:"notifications"`
}

// Engine translates order-status transitions into queued messages.
type Engine struct {
	queue    queue.Store
	orders   orders.Store
	triggers TriggerStore
	managers ManagerStore
	log      *slog.Logger
	now      func() time.Time
}

func NewEngine(q queue.Store, o orders.Store, t TriggerStore, m ManagerStore, log *slog.Logger) *Engine {
	return &Engine{
		queue:    q,
		orders:   o,
		triggers: t,
		managers: m,
		log:      log,
		now:      time.Now,
	}
}

// Route runs the full pipeline: phase mapping, trigger selection, recipient
// resolution, rendering and enqueueing. Configuration misses return a
// successful empty result.
func (e *Engine) Route(ctx context.Context, ev OrderEvent) (*RouteResult, error) {
	if ev.OrderID == "" || ev.NewStatus == "" {
		return nil, fmt.Errorf("order event needs order_id and new_status")
	}

	order, err := e.orders.Get(ctx, ev.OrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order %s: %w", ev.OrderID, err)
	}
	if order == nil {
		return nil, fmt.Errorf("order %s: %w", ev.OrderID, ErrOrderNotFound)
	}

	category := ev.OrderCategory
	if category == "" {
		category = order.Category
	}

	result := &RouteResult{Notifications: []Notification{}}

	phase, ok := PhaseFor(ev.NewStatus, category)
	if !ok {
		e.log.Info("status has no phase mapping, nothing to route",
			"order_id", ev.OrderID, "status", ev.NewStatus)
		return result, nil
	}
	result.Phase = phase

	matched, err := e.triggers.ActiveForStatus(ctx, order.OrgID, ev.NewStatus)
	if err != nil {
		return nil, fmt.Errorf("failed to load triggers: %w", err)
	}
	trigger := SelectTrigger(matched)
	if trigger == nil {
		trigger = fallbackTrigger(phase)
	}
	result.TriggerUsed = trigger.Name

	nt := e.notificationType(ev, trigger)

	managers, err := e.managers.ActiveByPhase(ctx, order.OrgID, phase)
	if err != nil {
		return nil, fmt.Errorf("failed to load phase managers: %w", err)
	}
	recipients := Resolve(managers, nt)
	if len(recipients) == 0 {
		e.log.Info("no eligible recipients for phase",
			"order_id", ev.OrderID, "phase", phase, "type", string(nt))
		return result, nil
	}

	content := e.renderContent(ev, trigger, order, phase)

	scheduledFor := e.now().Add(time.Duration(trigger.DelayMinutes) * time.Minute)
	for _, r := range recipients {
		msg := &queue.Message{
			RecipientAddress: r.Address,
			RecipientName:    r.Name,
			MessageType:      queue.TypePhaseManagerAlert,
			Content:          content,
			Priority:         trigger.Priority,
			ScheduledFor:     &scheduledFor,
			Metadata: map[string]string{
				"order_id":   order.ID,
				"phase":      phase,
				"trigger_id": trigger.ID,
			},
		}
		if err := e.queue.Enqueue(ctx, msg); err != nil {
			return nil, fmt.Errorf("failed to enqueue notification for %s: %w", r.Address, err)
		}
		metrics.MessagesQueued.WithLabelValues("routing").Inc()
		result.Notifications = append(result.Notifications, Notification{
			MessageID: msg.ID,
			Address:   r.Address,
			Name:      r.Name,
		})
	}
	result.NotificationsSent = len(result.Notifications)

	e.log.Info("order event routed",
		"order_id", order.ID, "status", ev.NewStatus, "phase", phase,
		"trigger", trigger.Name, "recipients", result.NotificationsSent)
	return result, nil
}

func (e *Engine) notificationType(ev OrderEvent, trigger *TriggerConfig) NotificationType {
	if ev.NotificationType != "" {
		return NotificationType(ev.NotificationType)
	}
	if trigger.Priority == queue.PriorityCritical {
		return TypeUrgentAlert
	}
	if FirstTouch(ev.NewStatus) {
		return TypeNewOrder
	}
	return TypeStatusChange
}

func (e *Engine) renderContent(ev OrderEvent, trigger *TriggerConfig, order *orders.Order, phase string) string {
	if ev.CustomMessage != "" {
		return ev.CustomMessage
	}

	fields := render.Fields{
		OrderNumber:   order.Number,
		CustomerName:  order.CustomerName,
		TotalValue:    order.TotalValue(),
		HasTotal:      len(order.Items) > 0,
		StatusLabel:   ev.NewStatus,
		DeliveryDate:  order.DeliveryDate,
		ItemCount:     len(order.Items),
		PhaseLabel:    PhaseLabel(phase),
		PriorityLabel: order.PriorityLabel,
		Now:           e.now(),
	}
	for _, it := range order.Items {
		fields.Items = append(fields.Items, render.ItemLine{
			Description: it.Description,
			Quantity:    it.Quantity,
		})
	}

	if trigger.CustomTemplate != "" {
		return render.Custom(trigger.CustomTemplate, fields)
	}

	opts := trigger.Include
	if opts.Header == "" {
		opts.Header = fallbackHeader(phase)
	}
	return render.Compose(opts, fields)
}
