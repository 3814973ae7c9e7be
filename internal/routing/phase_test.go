package routing

import (
	"testing"

	"github.com/sroepkeee/orderhub-notify/internal/orders"
)

func TestPhaseFor(t *testing.T) {
	tests := []struct {
		name      string
		status    string
		category  string
		wantPhase string
		wantOK    bool
	}{
		{"purchase pending", "purchase_pending", orders.CategoryClient, PhasePurchases, true},
		{"material received", "material_received", orders.CategoryStock, PhasePurchases, true},
		{"production client", "in_production", orders.CategoryClient, PhaseProductionClient, true},
		{"production stock", "in_production", orders.CategoryStock, PhaseProductionStock, true},
		{"production empty category defaults to client", "production_queued", "", PhaseProductionClient, true},
		{"lab analysis", "lab_analysis", orders.CategoryClient, PhaseLaboratory, true},
		{"freight quoted", "freight_quoted", orders.CategoryClient, PhaseFreightQuote, true},
		{"delivered", "delivered", orders.CategoryClient, PhaseLogistics, true},
		{"unmapped status", "draft", orders.CategoryClient, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			phase, ok := PhaseFor(tt.status, tt.category)
			if phase != tt.wantPhase || ok != tt.wantOK {
				t.Errorf("PhaseFor(%q, %q) = (%q, %v), want (%q, %v)",
					tt.status, tt.category, phase, ok, tt.wantPhase, tt.wantOK)
			}
		})
	}
}

func TestFirstTouch(t *testing.T) {
	if !FirstTouch("purchase_pending") {
		t.Error("purchase_pending should be a first-touch status")
	}
	if !FirstTouch("production_queued") {
		t.Error("production_queued should be a first-touch status")
	}
	if FirstTouch("in_production") {
		t.Error("in_production is not a first-touch status")
	}
	if FirstTouch("unknown") {
		t.Error("unknown statuses are never first touch")
	}
}

func TestPhaseLabel(t *testing.T) {
	if got := PhaseLabel(PhaseLaboratory); got != "Laboratório" {
		t.Errorf("PhaseLabel(laboratory) = %q", got)
	}
	// Unlabeled phases fall through to the raw key.
	if got := PhaseLabel("custom_phase"); got != "custom_phase" {
		t.Errorf("PhaseLabel(custom_phase) = %q", got)
	}
}

func TestValidateMapping(t *testing.T) {
	if err := ValidateMapping(); err != nil {
		t.Fatalf("ValidateMapping() = %v, want nil", err)
	}
}
