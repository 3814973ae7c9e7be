package orders

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Store is the read-only view of the order tables the notification core
// needs. The admin application owns the schema; this side never writes.
type Store interface {
	Get(ctx context.Context, id string) (*Order, error)
	OverdueOpen(ctx context.Context, now time.Time) ([]*Order, error)
	DueWithin(ctx context.Context, now time.Time, window time.Duration) ([]*Order, error)
	OpenInPhaseSince(ctx context.Context, phase string, before time.Time) ([]*Order, error)
	PendingMaterialSince(ctx context.Context, before time.Time) ([]*Order, error)
	FreightQuotesPendingSince(ctx context.Context, before time.Time) ([]*Order, error)
	DeliveredBetween(ctx context.Context, from, to time.Time) (int, error)
	OverdueItems(ctx context.Context, now time.Time) ([]*Item, error)
	ItemsInPhaseSince(ctx context.Context, before time.Time) ([]*Item, error)
}

// Statuses that end an order's life; everything else counts as open.
const closedStatuses = `('delivered', 'cancelled')`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const orderColumns = `id, number, org_id, customer_name, category, status, phase,
	priority_label, delivery_date, material_pending_since, phase_since,
	freight_requested_at, created_at`

func (s *PostgresStore) Get(ctx context.Context, id string) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	o, err := scanOrder(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	items, err := s.itemsFor(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return o, nil
}

func (s *PostgresStore) OverdueOpen(ctx context.Context, now time.Time) ([]*Order, error) {
	query := `
		SELECT ` + orderColumns + ` FROM orders
		WHERE status NOT IN ` + closedStatuses + `
		  AND delivery_date IS NOT NULL AND delivery_date < $1
		ORDER BY delivery_date ASC
	`
	return s.queryOrdersWithItems(ctx, query, now)
}

func (s *PostgresStore) DueWithin(ctx context.Context, now time.Time, window time.Duration) ([]*Order, error) {
	query := `
		SELECT ` + orderColumns + ` FROM orders
		WHERE status NOT IN ` + closedStatuses + `
		  AND delivery_date IS NOT NULL AND delivery_date >= $1 AND delivery_date <= $2
		ORDER BY delivery_date ASC
	`
	return s.queryOrdersWithItems(ctx, query, now, now.Add(window))
}

func (s *PostgresStore) OpenInPhaseSince(ctx context.Context, phase string, before time.Time) ([]*Order, error) {
	query := `
		SELECT ` + orderColumns + ` FROM orders
		WHERE status NOT IN ` + closedStatuses + `
		  AND phase = $1 AND phase_since IS NOT NULL AND phase_since < $2
		ORDER BY phase_since ASC
	`
	return s.queryOrders(ctx, query, phase, before)
}

func (s *PostgresStore) PendingMaterialSince(ctx context.Context, before time.Time) ([]*Order, error) {
	query := `
		SELECT ` + orderColumns + ` FROM orders
		WHERE status NOT IN ` + closedStatuses + `
		  AND material_pending_since IS NOT NULL AND material_pending_since < $1
		ORDER BY material_pending_since ASC
	`
	return s.queryOrders(ctx, query, before)
}

func (s *PostgresStore) FreightQuotesPendingSince(ctx context.Context, before time.Time) ([]*Order, error) {
	query := `
		SELECT ` + orderColumns + ` FROM orders
		WHERE status = 'freight_quote_requested'
		  AND freight_requested_at IS NOT NULL AND freight_requested_at < $1
		ORDER BY freight_requested_at ASC
	`
	return s.queryOrders(ctx, query, before)
}

func (s *PostgresStore) DeliveredBetween(ctx context.Context, from, to time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM orders
		WHERE status = 'delivered' AND delivered_at >= $1 AND delivered_at < $2
	`, from, to).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count delivered orders: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) OverdueItems(ctx context.Context, now time.Time) ([]*Item, error) {
	query := itemSelect + `
		WHERE o.status NOT IN ` + closedStatuses + `
		  AND i.deadline IS NOT NULL AND i.deadline < $1
		ORDER BY i.deadline ASC
	`
	return s.queryItems(ctx, query, now)
}

func (s *PostgresStore) ItemsInPhaseSince(ctx context.Context, before time.Time) ([]*Item, error) {
	query := itemSelect + `
		WHERE o.status NOT IN ` + closedStatuses + `
		  AND i.phase_since IS NOT NULL AND i.phase_since < $1
		ORDER BY i.phase_since ASC
	`
	return s.queryItems(ctx, query, before)
}

const itemSelect = `
	SELECT i.id, i.order_id, i.description, i.quantity, i.unit_value,
	       i.deadline, i.phase, i.phase_since
	FROM order_items i
	JOIN orders o ON o.id = i.order_id
`

func (s *PostgresStore) itemsFor(ctx context.Context, orderID string) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, description, quantity, unit_value, deadline, phase, phase_since
		FROM order_items WHERE order_id = $1 ORDER BY id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		var phase sql.NullString
		if err := rows.Scan(&it.ID, &it.OrderID, &it.Description, &it.Quantity,
			&it.UnitValue, &it.Deadline, &phase, &it.PhaseSince); err != nil {
			return nil, err
		}
		it.Phase = phase.String
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *PostgresStore) queryItems(ctx context.Context, query string, args ...any) ([]*Item, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Item
	for rows.Next() {
		var it Item
		var phase sql.NullString
		if err := rows.Scan(&it.ID, &it.OrderID, &it.Description, &it.Quantity,
			&it.UnitValue, &it.Deadline, &phase, &it.PhaseSince); err != nil {
			return nil, err
		}
		it.Phase = phase.String
		out = append(out, &it)
	}
	return out, rows.Err()
}

func (s *PostgresStore) queryOrders(ctx context.Context, query string, args ...any) ([]*Order, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// queryOrdersWithItems also loads items so callers can compute order values.
func (s *PostgresStore) queryOrdersWithItems(ctx context.Context, query string, args ...any) ([]*Order, error) {
	out, err := s.queryOrders(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	for _, o := range out {
		items, err := s.itemsFor(ctx, o.ID)
		if err != nil {
			return nil, err
		}
		o.Items = items
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (*Order, error) {
	var (
		o        Order
		phase    sql.NullString
		priority sql.NullString
	)
	err := row.Scan(
		&o.ID, &o.Number, &o.OrgID, &o.CustomerName, &o.Category, &o.Status, &phase,
		&priority, &o.DeliveryDate, &o.MaterialPendingSince, &o.PhaseSince,
		&o.FreightRequestedAt, &o.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Phase = phase.String
	o.PriorityLabel = priority.String
	return &o, nil
}
