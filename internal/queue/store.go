package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidTransition marks a programming error: the requested status pair
// is not an edge of the state machine. Races are not errors; they surface as
// applied=false.
var ErrInvalidTransition = errors.New("invalid status transition")

// Store is the durable queue table. Producers only insert; the dispatcher is
// the single writer of delivery fields, guarded by the status precondition
// on Transition.
type Store interface {
	Enqueue(ctx context.Context, m *Message) error
	GetByID(ctx context.Context, id string) (*Message, error)
	PendingDue(ctx context.Context, now time.Time, limit int) ([]*Message, error)
	ListByStatus(ctx context.Context, status Status, limit int) ([]*Message, error)
	CountByStatus(ctx context.Context, status Status) (int, error)
	// Transition applies the update only if the row is still in the
	// expected status. It reports false when the precondition failed,
	// which means another writer won the race.
	Transition(ctx context.Context, id string, from, to Status, upd Update) (bool, error)
	DeleteOlderThan(ctx context.Context, status Status, cutoff time.Time) (int64, error)
}

// Update carries the optional fields a transition may set. Nil fields are
// left untouched.
type Update struct {
	Attempts     *int
	ScheduledFor *time.Time
	SentAt       *time.Time
	ErrorMessage *string
}

// Cancel moves a message to cancelled from any non-terminal state. It
// returns false when the message was already picked up or finished.
func Cancel(ctx context.Context, s Store, id string) (bool, error) {
	for _, from := range []Status{StatusPending, StatusProcessing, StatusFailed} {
		ok, err := s.Transition(ctx, id, from, StatusCancelled, Update{})
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// ResetForRetry requeues a terminally failed message by operator action,
// clearing the attempt counter and error.
func ResetForRetry(ctx context.Context, s Store, id string) (bool, error) {
	zero := 0
	empty := ""
	now := time.Now()
	return s.Transition(ctx, id, StatusFailed, StatusPending, Update{
		Attempts:     &zero,
		ErrorMessage: &empty,
		ScheduledFor: &now,
	})
}

// PostgresStore persists queued messages in the message_queue table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const messageColumns = `id, recipient_address, recipient_name, message_type, content,
	media, priority, status, scheduled_for, attempts, max_attempts,
	sent_at, error_message, metadata, created_at`

func (s *PostgresStore) Enqueue(ctx context.Context, m *Message) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.Status == "" {
		m.Status = StatusPending
	}
	if m.MaxAttempts == 0 {
		m.MaxAttempts = DefaultMaxAttempts
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}

	media, err := marshalNullable(m.Media)
	if err != nil {
		return fmt.Errorf("failed to encode media payload: %w", err)
	}
	metadata, err := marshalNullable(m.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	query := `
		INSERT INTO message_queue (` + messageColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err = s.db.ExecContext(ctx, query,
		m.ID, m.RecipientAddress, m.RecipientName, m.MessageType, m.Content,
		media, m.Priority, m.Status, m.ScheduledFor, m.Attempts, m.MaxAttempts,
		m.SentAt, nullString(m.ErrorMessage), metadata, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue message: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (*Message, error) {
	query := `SELECT ` + messageColumns + ` FROM message_queue WHERE id = $1`
	m, err := scanMessage(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

// PendingDue returns pending messages whose schedule has elapsed, most
// urgent first. Messages that exhausted their attempts never match because
// they are left in failed.
func (s *PostgresStore) PendingDue(ctx context.Context, now time.Time, limit int) ([]*Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM message_queue
		WHERE status = $1 AND (scheduled_for IS NULL OR scheduled_for <= $2)
		ORDER BY priority ASC, scheduled_for ASC NULLS FIRST, created_at ASC
		LIMIT $3
	`
	return s.queryMessages(ctx, query, StatusPending, now, limit)
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status Status, limit int) ([]*Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM message_queue
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	return s.queryMessages(ctx, query, status, limit)
}

func (s *PostgresStore) CountByStatus(ctx context.Context, status Status) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM message_queue WHERE status = $1`, status).Scan(&n)
	return n, err
}

func (s *PostgresStore) Transition(ctx context.Context, id string, from, to Status, upd Update) (bool, error) {
	if !CanTransition(from, to) {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	query := `
		UPDATE message_queue
		SET status = $1,
		    attempts = COALESCE($2, attempts),
		    scheduled_for = COALESCE($3, scheduled_for),
		    sent_at = COALESCE($4, sent_at),
		    error_message = COALESCE($5, error_message)
		WHERE id = $6 AND status = $7
	`
	res, err := s.db.ExecContext(ctx, query,
		to, upd.Attempts, upd.ScheduledFor, upd.SentAt, upd.ErrorMessage, id, from)
	if err != nil {
		return false, fmt.Errorf("failed to transition message %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *PostgresStore) DeleteOlderThan(ctx context.Context, status Status, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM message_queue WHERE status = $1 AND created_at < $2`, status, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep %s messages: %w", status, err)
	}
	return res.RowsAffected()
}

func (s *PostgresStore) queryMessages(ctx context.Context, query string, args ...any) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (*Message, error) {
	var (
		m        Message
		name     sql.NullString
		media    []byte
		errMsg   sql.NullString
		metadata []byte
	)
	err := row.Scan(
		&m.ID, &m.RecipientAddress, &name, &m.MessageType, &m.Content,
		&media, &m.Priority, &m.Status, &m.ScheduledFor, &m.Attempts, &m.MaxAttempts,
		&m.SentAt, &errMsg, &metadata, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.RecipientName = name.String
	m.ErrorMessage = errMsg.String
	if len(media) > 0 {
		if err := json.Unmarshal(media, &m.Media); err != nil {
			return nil, fmt.Errorf("failed to decode media payload: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &m.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
	}
	return &m, nil
}

func marshalNullable(v any) ([]byte, error) {
	switch t := v.(type) {
	case *MediaPayload:
		if t == nil {
			return nil, nil
		}
	case map[string]string:
		if len(t) == 0 {
			return nil, nil
		}
	}
	return json.Marshal(v)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
