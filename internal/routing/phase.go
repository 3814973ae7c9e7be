package routing

import (
	"fmt"

	"github.com/sroepkeee/orderhub-notify/internal/orders"
)

// Phase keys route notifications to the staff subscribed to each stage of
// the order workflow.
const (
	PhasePurchases        = "purchases"
	PhaseProductionClient = "production_client"
	PhaseProductionStock  = "production_stock"
	PhaseLaboratory       = "laboratory"
	PhaseFreightQuote     = "freight_quote"
	PhaseLogistics        = "logistics"
)

// mapping is one row of the status-to-phase table. Production statuses have
// no fixed phase; they split on the order category.
type mapping struct {
	phase      string
	byCategory bool
	firstTouch bool
}

var statusPhases = map[string]mapping{
	"purchase_pending":  {phase: PhasePurchases, firstTouch: true},
	"purchase_approved": {phase: PhasePurchases},
	"material_ordered":  {phase: PhasePurchases},
	"material_received": {phase: PhasePurchases},

	"production_queued": {byCategory: true, firstTouch: true},
	"in_production":     {byCategory: true},
	"production_done":   {byCategory: true},

	"lab_analysis": {phase: PhaseLaboratory},
	"lab_approved": {phase: PhaseLaboratory},

	"freight_quote_requested": {phase: PhaseFreightQuote},
	"freight_quoted":          {phase: PhaseFreightQuote},

	"ready_to_ship": {phase: PhaseLogistics},
	"shipped":       {phase: PhaseLogistics},
	"in_transit":    {phase: PhaseLogistics},
	"delivered":     {phase: PhaseLogistics},
}

var phaseLabels = map[string]string{
	PhasePurchases:        "Compras",
	PhaseProductionClient: "Produção (Cliente)",
	PhaseProductionStock:  "Produção (Estoque)",
	PhaseLaboratory:       "Laboratório",
	PhaseFreightQuote:     "Cotação de Frete",
	PhaseLogistics:        "Logística",
}

// fallbackTemplates lets the system notify with zero trigger configuration.
var fallbackTemplates = map[string]string{
	PhasePurchases:        "Novo pedido na fase de compras.",
	PhaseProductionClient: "Pedido de cliente atualizado na produção.",
	PhaseProductionStock:  "Pedido de estoque atualizado na produção.",
	PhaseLaboratory:       "Pedido aguardando análise do laboratório.",
	PhaseFreightQuote:     "Pedido aguardando cotação de frete.",
	PhaseLogistics:        "Pedido atualizado na logística.",
}

// PhaseFor maps an order status and category to a phase key. The second
// return is false for statuses that route nowhere, which is not an error.
func PhaseFor(status, category string) (string, bool) {
	m, ok := statusPhases[status]
	if !ok {
		return "", false
	}
	if !m.byCategory {
		return m.phase, true
	}
	if category == orders.CategoryStock {
		return PhaseProductionStock, true
	}
	return PhaseProductionClient, true
}

// FirstTouch reports whether the status is the first contact a phase team
// has with an order, which makes the notification a new_order one.
func FirstTouch(status string) bool {
	return statusPhases[status].firstTouch
}

func PhaseLabel(phase string) string {
	if label, ok := phaseLabels[phase]; ok {
		return label
	}
	return phase
}

func fallbackHeader(phase string) string {
	if tmpl, ok := fallbackTemplates[phase]; ok {
		return tmpl
	}
	return "Pedido atualizado."
}

// ValidateMapping runs at startup so an unmapped phase is a deploy-time
// failure instead of a silent no-op in production.
func ValidateMapping() error {
	seen := map[string]bool{}
	for status, m := range statusPhases {
		if m.byCategory {
			seen[PhaseProductionClient] = true
			seen[PhaseProductionStock] = true
			continue
		}
		if m.phase == "" {
			return fmt.Errorf("status %q maps to an empty phase", status)
		}
		seen[m.phase] = true
	}
	for phase := range seen {
		if _, ok := phaseLabels[phase]; !ok {
			return fmt.Errorf("phase %q has no label", phase)
		}
		if _, ok := fallbackTemplates[phase]; !ok {
			return fmt.Errorf("phase %q has no fallback template", phase)
		}
	}
	return nil
}
