package alerts

// Alert kinds produced by the detector battery.
const (
	TypeDelayedOrders  = "delayed_orders"
	TypeSLACritical    = "sla_critical"
	TypeBottleneck     = "phase_bottleneck"
	TypePendingMaterial = "pending_material"
	TypeExpiredFreight = "expired_freight_quotes"
	TypeNegativeTrend  = "negative_trend"
	TypeOverdueItems   = "overdue_items"
	TypeStuckItems     = "stuck_items"
)

// Alert is an ephemeral metric-driven notification. It only lives long
// enough to be fanned out into queued messages.
type Alert struct {
	Type     string            `json:"type"`
	Priority int               `json:"priority"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
