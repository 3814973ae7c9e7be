// Package dispatch drains the message queue into the external channel,
// pacing sends through the rate limiter and driving the message state
// machine.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sroepkeee/orderhub-notify/internal/channel"
	"github.com/sroepkeee/orderhub-notify/internal/metrics"
	"github.com/sroepkeee/orderhub-notify/internal/queue"
	"github.com/sroepkeee/orderhub-notify/internal/ratelimit"
)

const (
	defaultBatchSize = 50
	retentionHorizon = 24 * time.Hour
	idempotencyTTL   = 24 * time.Hour
)

// Dispatcher is the single writer of delivery fields. Producers only ever
// insert rows, so cycles need no coordination with them.
type Dispatcher struct {
	store   queue.Store
	limiter *ratelimit.Limiter
	adapter channel.Adapter
	redis   *redis.Client
	log     *slog.Logger

	batchSize int
	now       func() time.Time
	sleep     func(time.Duration)
}

func New(store queue.Store, limiter *ratelimit.Limiter, adapter channel.Adapter, redisClient *redis.Client, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:     store,
		limiter:   limiter,
		adapter:   adapter,
		redis:     redisClient,
		log:       log,
		batchSize: defaultBatchSize,
		now:       time.Now,
		sleep:     time.Sleep,
	}
}

// Run polls until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	d.log.Info("dispatcher started", "interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			d.log.Info("dispatcher stopped")
			return
		case <-ticker.C:
			if _, err := d.ProcessCycle(ctx); err != nil {
				d.log.Error("dispatch cycle failed", "error", err)
			}
		}
	}
}

// ProcessCycle drains one batch of due messages. It returns the number of
// messages handed to the provider. A rate-limit exhaustion or a channel
// outage ends the cycle early; untouched messages simply stay pending.
func (d *Dispatcher) ProcessCycle(ctx context.Context) (int, error) {
	now := d.now()
	due, err := d.store.PendingDue(ctx, now, d.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to poll queue: %w", err)
	}
	if pending, err := d.store.CountByStatus(ctx, queue.StatusPending); err == nil {
		metrics.QueuePending.Set(float64(pending))
	}
	if len(due) == 0 {
		return 0, nil
	}

	sent := 0
	for _, m := range due {
		wait, ok := d.limiter.Reserve()
		if !ok {
			metrics.RateLimitDeferrals.Inc()
			d.log.Info("send window exhausted, deferring remaining messages",
				"deferred", len(due)-sent)
			return sent, nil
		}

		claimed, err := d.store.Transition(ctx, m.ID, queue.StatusPending, queue.StatusProcessing, queue.Update{})
		if err != nil {
			return sent, err
		}
		if !claimed {
			// Lost the race, usually to an operator cancel.
			continue
		}

		if wait > 0 {
			d.sleep(wait)
		}

		if d.alreadySent(ctx, m.ID) {
			d.markSent(ctx, m.ID)
			continue
		}

		_, sendErr := d.adapter.Send(ctx, m.RecipientAddress, m.Content, m.Media)
		if errors.Is(sendErr, channel.ErrChannelDown) {
			// Transport outage: put the message back untouched and retry
			// the whole cycle later instead of burning attempts.
			if _, err := d.store.Transition(ctx, m.ID, queue.StatusProcessing, queue.StatusFailed, queue.Update{}); err != nil {
				return sent, err
			}
			if _, err := d.store.Transition(ctx, m.ID, queue.StatusFailed, queue.StatusPending, queue.Update{}); err != nil {
				return sent, err
			}
			d.log.Warn("channel down, aborting cycle", "error", sendErr)
			return sent, nil
		}
		if sendErr != nil {
			if err := d.recordFailure(ctx, m, sendErr); err != nil {
				return sent, err
			}
			continue
		}

		d.markSent(ctx, m.ID)
		d.rememberSent(ctx, m.ID)
		metrics.MessagesSent.Inc()
		sent++
	}
	return sent, nil
}

// recordFailure increments the attempt counter and either leaves the
// message terminally failed or requeues it with backoff.
func (d *Dispatcher) recordFailure(ctx context.Context, m *queue.Message, sendErr error) error {
	attempts := m.Attempts + 1
	errMsg := sendErr.Error()
	if _, err := d.store.Transition(ctx, m.ID, queue.StatusProcessing, queue.StatusFailed, queue.Update{
		Attempts:     &attempts,
		ErrorMessage: &errMsg,
	}); err != nil {
		return err
	}

	if attempts >= m.MaxAttempts {
		metrics.MessagesFailed.WithLabelValues("true").Inc()
		d.log.Error("message failed terminally",
			"id", m.ID, "attempts", attempts, "error", sendErr)
		return nil
	}

	retryAt := d.now().Add(backoffFor(attempts))
	if _, err := d.store.Transition(ctx, m.ID, queue.StatusFailed, queue.StatusPending, queue.Update{
		ScheduledFor: &retryAt,
	}); err != nil {
		return err
	}
	metrics.MessagesFailed.WithLabelValues("false").Inc()
	d.log.Warn("send failed, requeued",
		"id", m.ID, "attempt", attempts, "retry_at", retryAt, "error", sendErr)
	return nil
}

func (d *Dispatcher) markSent(ctx context.Context, id string) {
	now := d.now()
	if _, err := d.store.Transition(ctx, id, queue.StatusProcessing, queue.StatusSent, queue.Update{
		SentAt: &now,
	}); err != nil {
		d.log.Error("failed to mark message sent", "id", id, "error", err)
	}
}

// alreadySent checks the idempotency marker. Crash recovery can replay a
// message; the marker keeps the duplicate off the wire when Redis is up.
func (d *Dispatcher) alreadySent(ctx context.Context, id string) bool {
	if d.redis == nil {
		return false
	}
	n, err := d.redis.Exists(ctx, idempotencyKey(id)).Result()
	if err != nil {
		d.log.Warn("idempotency check failed", "id", id, "error", err)
		return false
	}
	return n > 0
}

func (d *Dispatcher) rememberSent(ctx context.Context, id string) {
	if d.redis == nil {
		return
	}
	if err := d.redis.Set(ctx, idempotencyKey(id), "1", idempotencyTTL).Err(); err != nil {
		d.log.Warn("failed to record idempotency marker", "id", id, "error", err)
	}
}

// Sweep removes sent messages older than the retention horizon.
func (d *Dispatcher) Sweep(ctx context.Context) (int64, error) {
	n, err := d.store.DeleteOlderThan(ctx, queue.StatusSent, d.now().Add(-retentionHorizon))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		d.log.Info("retention sweep", "deleted", n)
	}
	return n, nil
}

// RunSweeper triggers the retention sweep on its own schedule.
func (d *Dispatcher) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.Sweep(ctx); err != nil {
				d.log.Error("retention sweep failed", "error", err)
			}
		}
	}
}

func backoffFor(attempt int) time.Duration {
	return time.Duration(math.Pow(2, float64(attempt))) * time.Second
}

func idempotencyKey(id string) string {
	return "notify:sent:" + id
}
