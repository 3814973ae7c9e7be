package alerts

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sroepkeee/orderhub-notify/internal/orders"
	"github.com/sroepkeee/orderhub-notify/internal/queue"
	"github.com/sroepkeee/orderhub-notify/internal/render"
	"github.com/sroepkeee/orderhub-notify/internal/routing"
)

// Detector thresholds. Deliberately package constants, not org
// configuration: see DESIGN.md.
const (
	slaCriticalWindow    = 24 * time.Hour
	slaCriticalMin       = 3
	bottleneckMin        = 5
	pendingMaterialDays  = 3
	pendingMaterialMin   = 3
	freightExpiry        = 48 * time.Hour
	freightExpiredMin    = 3
	trendDropThreshold   = 0.20
	overdueItemsMin      = 5
	stuckItemDays        = 5
	stuckItemsMin        = 5
	delayedOrdersListed  = 5
)

// bottleneckDays is the per-phase residence threshold before an order
// counts as stuck.
var bottleneckDays = map[string]int{
	routing.PhasePurchases:        4,
	routing.PhaseProductionClient: 7,
	routing.PhaseProductionStock:  10,
	routing.PhaseLaboratory:       3,
	routing.PhaseFreightQuote:     2,
	routing.PhaseLogistics:        3,
}

// A Detector inspects business metrics and produces at most one alert when
// its condition crosses the threshold. Detectors are side-effect-free.
type Detector func(ctx context.Context, store orders.Store, now time.Time) (*Alert, error)

// Battery is the fixed set of detectors the generator runs every cycle.
func Battery() map[string]Detector {
	return map[string]Detector{
		TypeDelayedOrders:   DetectDelayedOrders,
		TypeSLACritical:     DetectSLACritical,
		TypeBottleneck:      DetectBottlenecks,
		TypePendingMaterial: DetectPendingMaterial,
		TypeExpiredFreight:  DetectExpiredFreightQuotes,
		TypeNegativeTrend:   DetectNegativeTrend,
		TypeOverdueItems:    DetectOverdueItems,
		TypeStuckItems:      DetectStuckItems,
	}
}

// DetectDelayedOrders fires on any open order past its delivery date. The
// message lists the top entries by value; the total covers every overdue
// order, not just the listed ones.
func DetectDelayedOrders(ctx context.Context, store orders.Store, now time.Time) (*Alert, error) {
	overdue, err := store.OverdueOpen(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("delayed orders scan failed: %w", err)
	}
	if len(overdue) == 0 {
		return nil, nil
	}

	var total float64
	for _, o := range overdue {
		total += o.TotalValue()
	}
	sort.SliceStable(overdue, func(i, j int) bool {
		return overdue[i].TotalValue() > overdue[j].TotalValue()
	})

	var b strings.Builder
	fmt.Fprintf(&b, "%d pedido(s) em atraso, total %s\n", len(overdue), render.FormatCurrency(total))
	listed := overdue
	if len(listed) > delayedOrdersListed {
		listed = listed[:delayedOrdersListed]
	}
	for _, o := range listed {
		days := -render.DaysUntil(now, *o.DeliveryDate)
		fmt.Fprintf(&b, "- %s (%s): %d dia(s) de atraso, %s\n",
			o.Number, o.CustomerName, days, render.FormatCurrency(o.TotalValue()))
	}

	return &Alert{
		Type:     TypeDelayedOrders,
		Priority: queue.PriorityCritical,
		Message:  b.String(),
		Metadata: map[string]string{
			"count":       strconv.Itoa(len(overdue)),
			"total_value": fmt.Sprintf("%.2f", total),
		},
	}, nil
}

// DetectSLACritical fires when enough open orders are due inside the SLA
// window.
func DetectSLACritical(ctx context.Context, store orders.Store, now time.Time) (*Alert, error) {
	due, err := store.DueWithin(ctx, now, slaCriticalWindow)
	if err != nil {
		return nil, fmt.Errorf("sla scan failed: %w", err)
	}
	if len(due) < slaCriticalMin {
		return nil, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d pedido(s) vencem nas próximas 24h:\n", len(due))
	for _, o := range due {
		fmt.Fprintf(&b, "- %s (%s): entrega %s\n", o.Number, o.CustomerName, render.FormatDate(*o.DeliveryDate))
	}

	return &Alert{
		Type:     TypeSLACritical,
		Priority: queue.PriorityCritical,
		Message:  b.String(),
		Metadata: map[string]string{"count": strconv.Itoa(len(due))},
	}, nil
}

// DetectBottlenecks fires per run when any phase holds too many orders past
// its residence threshold. The alert aggregates all congested phases.
func DetectBottlenecks(ctx context.Context, store orders.Store, now time.Time) (*Alert, error) {
	type congestion struct {
		phase string
		count int
	}
	var congested []congestion
	total := 0

	for _, phase := range []string{
		routing.PhasePurchases, routing.PhaseProductionClient, routing.PhaseProductionStock,
		routing.PhaseLaboratory, routing.PhaseFreightQuote, routing.PhaseLogistics,
	} {
		before := now.AddDate(0, 0, -bottleneckDays[phase])
		stuck, err := store.OpenInPhaseSince(ctx, phase, before)
		if err != nil {
			return nil, fmt.Errorf("bottleneck scan failed for %s: %w", phase, err)
		}
		if len(stuck) >= bottleneckMin {
			congested = append(congested, congestion{phase: phase, count: len(stuck)})
			total += len(stuck)
		}
	}
	if len(congested) == 0 {
		return nil, nil
	}

	var b strings.Builder
	b.WriteString("Gargalos detectados:\n")
	for _, c := range congested {
		fmt.Fprintf(&b, "- %s: %d pedido(s) parados há mais de %d dia(s)\n",
			routing.PhaseLabel(c.phase), c.count, bottleneckDays[c.phase])
	}

	return &Alert{
		Type:     TypeBottleneck,
		Priority: queue.PriorityHigh,
		Message:  b.String(),
		Metadata: map[string]string{"count": strconv.Itoa(total)},
	}, nil
}

func DetectPendingMaterial(ctx context.Context, store orders.Store, now time.Time) (*Alert, error) {
	waiting, err := store.PendingMaterialSince(ctx, now.AddDate(0, 0, -pendingMaterialDays))
	if err != nil {
		return nil, fmt.Errorf("pending material scan failed: %w", err)
	}
	if len(waiting) < pendingMaterialMin {
		return nil, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d pedido(s) aguardando material há mais de %d dias:\n", len(waiting), pendingMaterialDays)
	for _, o := range waiting {
		fmt.Fprintf(&b, "- %s (%s)\n", o.Number, o.CustomerName)
	}

	return &Alert{
		Type:     TypePendingMaterial,
		Priority: queue.PriorityHigh,
		Message:  b.String(),
		Metadata: map[string]string{"count": strconv.Itoa(len(waiting))},
	}, nil
}

func DetectExpiredFreightQuotes(ctx context.Context, store orders.Store, now time.Time) (*Alert, error) {
	expired, err := store.FreightQuotesPendingSince(ctx, now.Add(-freightExpiry))
	if err != nil {
		return nil, fmt.Errorf("freight quote scan failed: %w", err)
	}
	if len(expired) < freightExpiredMin {
		return nil, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d cotação(ões) de frete pendentes há mais de 48h:\n", len(expired))
	for _, o := range expired {
		fmt.Fprintf(&b, "- %s (%s)\n", o.Number, o.CustomerName)
	}

	return &Alert{
		Type:     TypeExpiredFreight,
		Priority: queue.PriorityHigh,
		Message:  b.String(),
		Metadata: map[string]string{"count": strconv.Itoa(len(expired))},
	}, nil
}

// DetectNegativeTrend compares delivered orders week over week and fires on
// a drop at or past the threshold.
func DetectNegativeTrend(ctx context.Context, store orders.Store, now time.Time) (*Alert, error) {
	weekAgo := now.AddDate(0, 0, -7)
	twoWeeksAgo := now.AddDate(0, 0, -14)

	thisWeek, err := store.DeliveredBetween(ctx, weekAgo, now)
	if err != nil {
		return nil, fmt.Errorf("trend scan failed: %w", err)
	}
	lastWeek, err := store.DeliveredBetween(ctx, twoWeeksAgo, weekAgo)
	if err != nil {
		return nil, fmt.Errorf("trend scan failed: %w", err)
	}
	if lastWeek == 0 {
		return nil, nil
	}

	drop := float64(lastWeek-thisWeek) / float64(lastWeek)
	if drop < trendDropThreshold {
		return nil, nil
	}

	return &Alert{
		Type:     TypeNegativeTrend,
		Priority: queue.PriorityNormal,
		Message: fmt.Sprintf(
			"Queda de %.0f%% nas entregas: %d esta semana contra %d na semana anterior.",
			drop*100, thisWeek, lastWeek),
		Metadata: map[string]string{
			"this_week": strconv.Itoa(thisWeek),
			"last_week": strconv.Itoa(lastWeek),
		},
	}, nil
}

func DetectOverdueItems(ctx context.Context, store orders.Store, now time.Time) (*Alert, error) {
	items, err := store.OverdueItems(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("overdue items scan failed: %w", err)
	}
	if len(items) < overdueItemsMin {
		return nil, nil
	}

	return &Alert{
		Type:     TypeOverdueItems,
		Priority: queue.PriorityHigh,
		Message:  fmt.Sprintf("%d item(ns) com prazo estourado em pedidos abertos.", len(items)),
		Metadata: map[string]string{"count": strconv.Itoa(len(items))},
	}, nil
}

func DetectStuckItems(ctx context.Context, store orders.Store, now time.Time) (*Alert, error) {
	items, err := store.ItemsInPhaseSince(ctx, now.AddDate(0, 0, -stuckItemDays))
	if err != nil {
		return nil, fmt.Errorf("stuck items scan failed: %w", err)
	}
	if len(items) < stuckItemsMin {
		return nil, nil
	}

	return &Alert{
		Type:     TypeStuckItems,
		Priority: queue.PriorityNormal,
		Message: fmt.Sprintf("%d item(ns) na mesma fase há mais de %d dias.",
			len(items), stuckItemDays),
		Metadata: map[string]string{"count": strconv.Itoa(len(items))},
	}, nil
}
