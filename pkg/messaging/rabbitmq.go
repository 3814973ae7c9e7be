package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitPublisher is a reconnecting AMQP publisher for best-effort
// side-channel traffic. Publish fails fast while the connection is down;
// callers that cannot tolerate loss should not be using it.
type RabbitPublisher struct {
	url string
	log *slog.Logger

	mu       sync.RWMutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	closed   bool
	declared map[string]bool
}

func NewRabbitPublisher(url string, log *slog.Logger) (*RabbitPublisher, error) {
	p := &RabbitPublisher{
		url:      url,
		log:      log,
		declared: make(map[string]bool),
	}
	if err := p.connect(); err != nil {
		return nil, err
	}
	go p.watchConnection()
	return p, nil
}

func (p *RabbitPublisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open a channel: %w", err)
	}

	p.mu.Lock()
	p.conn = conn
	p.ch = ch
	p.declared = make(map[string]bool)
	p.mu.Unlock()
	return nil
}

// watchConnection reconnects with backoff whenever the broker drops us.
func (p *RabbitPublisher) watchConnection() {
	for {
		p.mu.RLock()
		if p.closed {
			p.mu.RUnlock()
			return
		}
		conn := p.conn
		p.mu.RUnlock()

		errCh := make(chan *amqp.Error, 1)
		conn.NotifyClose(errCh)
		if err := <-errCh; err == nil {
			return
		}

		backoff := time.Second
		for {
			p.mu.RLock()
			closed := p.closed
			p.mu.RUnlock()
			if closed {
				return
			}
			if err := p.connect(); err == nil {
				p.log.Info("rabbitmq reconnected")
				break
			}
			p.log.Warn("rabbitmq reconnect failed", "retry_in", backoff.String())
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
		}
	}
}

// Publish sends one JSON payload to a durable queue, declaring it on first
// use.
func (p *RabbitPublisher) Publish(ctx context.Context, queueName string, body []byte) error {
	p.mu.Lock()
	ch := p.ch
	if ch == nil {
		p.mu.Unlock()
		return fmt.Errorf("rabbitmq connection is not available")
	}
	if !p.declared[queueName] {
		if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
			p.mu.Unlock()
			return fmt.Errorf("failed to declare queue %s: %w", queueName, err)
		}
		p.declared[queueName] = true
	}
	p.mu.Unlock()

	err := ch.PublishWithContext(ctx, "", queueName, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", queueName, err)
	}
	return nil
}

func (p *RabbitPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
