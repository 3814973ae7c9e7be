package routing

import (
	"context"
	"database/sql"
	"sort"
	"strings"
)

// NotificationType classifies what a message is about; each type has a
// matching opt-in flag on the phase manager.
type NotificationType string

const (
	TypeNewOrder     NotificationType = "new_order"
	TypeStatusChange NotificationType = "status_change"
	TypeUrgentAlert  NotificationType = "urgent_alert"
	TypeDailySummary NotificationType = "daily_summary"
)

// PhaseManager is a staff member subscribed to notifications for one phase.
type PhaseManager struct {
	UserID               string `json:"user_id"`
	Name                 string `json:"name"`
	PhaseKey             string `json:"phase_key"`
	WhatsappAddress      string `json:"whatsapp_address"`
	Active               bool   `json:"active"`
	ReceiveNewOrders     bool   `json:"receive_new_orders"`
	ReceiveUrgentAlerts  bool   `json:"receive_urgent_alerts"`
	ReceiveDailySummary  bool   `json:"receive_daily_summary"`
	NotificationPriority int    `json:"notification_priority"`
}

// Wants checks the preference flag matching the notification type. Status
// changes ride the new-orders opt-in, which is the general "tell me about
// my phase" switch.
func (m *PhaseManager) Wants(nt NotificationType) bool {
	switch nt {
	case TypeNewOrder, TypeStatusChange:
		return m.ReceiveNewOrders
	case TypeUrgentAlert:
		return m.ReceiveUrgentAlerts
	case TypeDailySummary:
		return m.ReceiveDailySummary
	}
	return false
}

// Recipient is a resolved delivery target.
type Recipient struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

// ManagerStore loads phase manager subscriptions. The admin UI owns the rows.
type ManagerStore interface {
	ActiveByPhase(ctx context.Context, orgID, phase string) ([]*PhaseManager, error)
	// ActiveAll returns every active manager of the organization,
	// regardless of phase. Smart alerts fan out org-wide.
	ActiveAll(ctx context.Context, orgID string) ([]*PhaseManager, error)
}

// defaultCountryCode is prepended to addresses stored without one.
const defaultCountryCode = "55"

// NormalizeAddress reduces a WhatsApp address to canonical international
// form: digits only, country code first.
func NormalizeAddress(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return ""
	}
	if !strings.HasPrefix(digits, defaultCountryCode) {
		digits = defaultCountryCode + digits
	}
	return digits
}

// Resolve filters managers by their opt-in for the notification type,
// normalizes addresses and orders by notification priority. An empty result
// means nothing to send, not an error.
func Resolve(managers []*PhaseManager, nt NotificationType) []Recipient {
	eligible := make([]*PhaseManager, 0, len(managers))
	for _, m := range managers {
		if !m.Active || !m.Wants(nt) {
			continue
		}
		if NormalizeAddress(m.WhatsappAddress) == "" {
			continue
		}
		eligible = append(eligible, m)
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].NotificationPriority < eligible[j].NotificationPriority
	})

	out := make([]Recipient, 0, len(eligible))
	for _, m := range eligible {
		out = append(out, Recipient{
			Address: NormalizeAddress(m.WhatsappAddress),
			Name:    m.Name,
		})
	}
	return out
}

type PostgresManagerStore struct {
	db *sql.DB
}

func NewPostgresManagerStore(db *sql.DB) *PostgresManagerStore {
	return &PostgresManagerStore{db: db}
}

const managerColumns = `user_id, name, phase_key, whatsapp_address, active,
	receive_new_orders, receive_urgent_alerts, receive_daily_summary,
	notification_priority`

func (s *PostgresManagerStore) ActiveByPhase(ctx context.Context, orgID, phase string) ([]*PhaseManager, error) {
	query := `
		SELECT ` + managerColumns + `
		FROM phase_managers
		WHERE org_id = $1 AND phase_key = $2 AND active
		ORDER BY notification_priority ASC
	`
	return s.queryManagers(ctx, query, orgID, phase)
}

func (s *PostgresManagerStore) ActiveAll(ctx context.Context, orgID string) ([]*PhaseManager, error) {
	query := `
		SELECT ` + managerColumns + `
		FROM phase_managers
		WHERE org_id = $1 AND active
		ORDER BY notification_priority ASC
	`
	return s.queryManagers(ctx, query, orgID)
}

func (s *PostgresManagerStore) queryManagers(ctx context.Context, query string, args ...any) ([]*PhaseManager, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*PhaseManager
	for rows.Next() {
		var m PhaseManager
		err := rows.Scan(
			&m.UserID, &m.Name, &m.PhaseKey, &m.WhatsappAddress, &m.Active,
			&m.ReceiveNewOrders, &m.ReceiveUrgentAlerts, &m.ReceiveDailySummary,
			&m.NotificationPriority,
		)
		if err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}
