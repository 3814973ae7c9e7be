package orders

import "time"

// Order category splits production routing between client and stock work.
const (
	CategoryClient = "client"
	CategoryStock  = "stock"
)

type Item struct {
	ID        string     `json:"id"`
	OrderID   string     `json:"order_id"`
	Description string   `json:"description"`
	Quantity  int        `json:"quantity"`
	UnitValue float64    `json:"unit_value"`
	Deadline  *time.Time `json:"deadline,omitempty"`
	Phase     string     `json:"phase,omitempty"`
	PhaseSince *time.Time `json:"phase_since,omitempty"`
}

func (i *Item) Value() float64 {
	return float64(i.Quantity) * i.UnitValue
}

type Order struct {
	ID           string     `json:"id"`
	Number       string     `json:"number"`
	OrgID        string     `json:"org_id"`
	CustomerName string     `json:"customer_name"`
	Category     string     `json:"category"`
	Status       string     `json:"status"`
	Phase        string     `json:"phase,omitempty"`
	PriorityLabel string    `json:"priority_label,omitempty"`
	DeliveryDate *time.Time `json:"delivery_date,omitempty"`
	MaterialPendingSince *time.Time `json:"material_pending_since,omitempty"`
	PhaseSince   *time.Time `json:"phase_since,omitempty"`
	FreightRequestedAt *time.Time `json:"freight_requested_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	Items        []Item     `json:"items,omitempty"`
}

// TotalValue is always recomputed from the item list; the orders table does
// not carry a denormalized total that could go stale.
func (o *Order) TotalValue() float64 {
	var total float64
	for i := range o.Items {
		total += o.Items[i].Value()
	}
	return total
}
