package routing

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"github.com/sroepkeee/orderhub-notify/internal/render"
)

// TriggerConfig is an organization-defined rule binding order statuses to a
// message template and priority. The admin UI owns these rows; this side
// only reads them.
type TriggerConfig struct {
	ID             string         `json:"id"`
	OrgID          string         `json:"org_id"`
	Name           string         `json:"name"`
	Statuses       []string       `json:"statuses"`
	Active         bool           `json:"active"`
	Priority       int            `json:"priority"`
	DelayMinutes   int            `json:"delay_minutes"`
	CustomTemplate string         `json:"custom_template,omitempty"`
	Include        render.Options `json:"include"`
}

// TriggerStore loads the active triggers matching an order status.
type TriggerStore interface {
	ActiveForStatus(ctx context.Context, orgID, status string) ([]*TriggerConfig, error)
}

// SelectTrigger picks the winning trigger when several match: the lowest
// priority number wins, name as a deterministic tie-break. Nil means the
// caller should fall back to the built-in phase template.
func SelectTrigger(triggers []*TriggerConfig) *TriggerConfig {
	var best *TriggerConfig
	for _, t := range triggers {
		if !t.Active {
			continue
		}
		if best == nil || t.Priority < best.Priority ||
			(t.Priority == best.Priority && t.Name < best.Name) {
			best = t
		}
	}
	return best
}

// fallbackTrigger degrades gracefully with zero configuration: one canned
// message per phase, normal priority, no delay.
func fallbackTrigger(phase string) *TriggerConfig {
	return &TriggerConfig{
		Name:     "builtin:" + phase,
		Active:   true,
		Priority: 3,
		Include: render.Options{
			Header:              fallbackHeader(phase),
			IncludeOrderNumber:  true,
			IncludeCustomer:     true,
			IncludeStatus:       true,
			IncludeDeliveryDate: true,
			IncludePhase:        true,
		},
	}
}

type PostgresTriggerStore struct {
	db *sql.DB
}

func NewPostgresTriggerStore(db *sql.DB) *PostgresTriggerStore {
	return &PostgresTriggerStore{db: db}
}

func (s *PostgresTriggerStore) ActiveForStatus(ctx context.Context, orgID, status string) ([]*TriggerConfig, error) {
	query := `
		SELECT id, org_id, name, statuses, active, priority, delay_minutes,
		       COALESCE(custom_template, ''),
		       include_order_number, include_customer, include_item_count,
		       include_total_value, include_status, include_delivery_date,
		       include_deadline, include_phase, include_priority, include_items
		FROM trigger_configs
		WHERE org_id = $1 AND active AND $2 = ANY(statuses)
	`
	rows, err := s.db.QueryContext(ctx, query, orgID, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*TriggerConfig
	for rows.Next() {
		var t TriggerConfig
		err := rows.Scan(
			&t.ID, &t.OrgID, &t.Name, pq.Array(&t.Statuses), &t.Active,
			&t.Priority, &t.DelayMinutes, &t.CustomTemplate,
			&t.Include.IncludeOrderNumber, &t.Include.IncludeCustomer,
			&t.Include.IncludeItemCount, &t.Include.IncludeTotalValue,
			&t.Include.IncludeStatus, &t.Include.IncludeDeliveryDate,
			&t.Include.IncludeDeadline, &t.Include.IncludePhase,
			&t.Include.IncludePriority, &t.Include.IncludeItems,
		)
		if err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}
