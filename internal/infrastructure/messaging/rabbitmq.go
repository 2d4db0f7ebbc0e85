package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/chatwire/livechat/internal/infrastructure/configs"
	"github.com/chatwire/livechat/internal/infrastructure/logging"
	"github.com/chatwire/livechat/internal/infrastructure/metrics"
)

const (
	maxConnectAttempts  = 10
	initialConnectDelay = time.Second
	maxConnectDelay     = 10 * time.Second
)

var ErrConnectExhausted = errors.New("rabbitmq connect failed after retries")

// BrokerClient owns the shared connection and channel used by every producer
// in the process. Consumers get their own channel so a poisoned consumer
// cannot stall publishes. All state transitions (connect, loss, shutdown)
// replace the connection, channel and in-flight marker together.
type BrokerClient struct {
	cfg    configs.RabbitConfig
	topo   Topology
	logger logging.Logger

	mu         sync.Mutex
	conn       *amqp.Connection
	ch         *amqp.Channel
	connecting chan struct{}
	connectErr error
}

func NewBrokerClient(cfg configs.RabbitConfig, logger logging.Logger) *BrokerClient {
	return &BrokerClient{
		cfg:    cfg,
		topo:   NewTopology(cfg),
		logger: logger,
	}
}

// Open eagerly establishes the connection so startup can fail fast when the
// broker is unreachable beyond the retry budget.
func (b *BrokerClient) Open(ctx context.Context) error {
	_, err := b.Channel(ctx)
	return err
}

// Channel returns the shared channel, lazily connecting. Concurrent callers
// during the initial connection all await the same in-flight attempt.
func (b *BrokerClient) Channel(ctx context.Context) (*amqp.Channel, error) {
	for {
		b.mu.Lock()
		if b.ch != nil {
			ch := b.ch
			b.mu.Unlock()
			return ch, nil
		}

		if b.connecting == nil {
			done := make(chan struct{})
			b.connecting = done
			b.mu.Unlock()

			conn, ch, err := b.connectWithRetry(ctx)

			b.mu.Lock()
			if err == nil {
				b.conn = conn
				b.ch = ch
			}
			b.connectErr = err
			b.connecting = nil
			b.mu.Unlock()
			close(done)

			if err != nil {
				return nil, err
			}
			return ch, nil
		}

		waiting := b.connecting
		b.mu.Unlock()

		select {
		case <-waiting:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		b.mu.Lock()
		ch, err := b.ch, b.connectErr
		b.mu.Unlock()

		if ch != nil {
			return ch, nil
		}
		if err != nil {
			return nil, err
		}
		// State was reset between the attempt finishing and this read
		// (shutdown or connection loss); start over.
	}
}

func (b *BrokerClient) connectWithRetry(ctx context.Context) (*amqp.Connection, *amqp.Channel, error) {
	delay := initialConnectDelay

	for attempt := 1; attempt <= maxConnectAttempts; attempt++ {
		conn, ch, err := b.connectOnce()
		if err == nil {
			b.logger.Info(logging.RabbitMQ, logging.Connect, "connected & topology ready", nil)
			return conn, ch, nil
		}

		b.logger.Warn(logging.RabbitMQ, logging.Connect, "connect failed", map[logging.ExtraKey]any{
			logging.Attempt:      attempt,
			logging.ErrorMessage: err.Error(),
		})

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}

		delay *= 2
		if delay > maxConnectDelay {
			delay = maxConnectDelay
		}
	}

	return nil, nil, ErrConnectExhausted
}

func (b *BrokerClient) connectOnce() (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(b.cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to create channel: %w", err)
	}

	if err := b.topo.Setup(ch); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to set up topology: %w", err)
	}

	b.watchConnection(conn)

	return conn, ch, nil
}

// watchConnection clears the shared references when the connection drops so
// the next Channel call reconnects, and logs broker backpressure signals.
func (b *BrokerClient) watchConnection(conn *amqp.Connection) {
	closes := conn.NotifyClose(make(chan *amqp.Error, 1))
	blocked := conn.NotifyBlocked(make(chan amqp.Blocking, 1))

	go func() {
		for {
			select {
			case err, ok := <-closes:
				if !ok {
					return
				}

				b.mu.Lock()
				if b.conn == conn {
					b.conn = nil
					b.ch = nil
				}
				b.mu.Unlock()

				metrics.BrokerReconnects.Inc()
				extra := map[logging.ExtraKey]any{}
				if err != nil {
					extra[logging.ErrorMessage] = err.Error()
				}
				b.logger.Warn(logging.RabbitMQ, logging.Connect, "connection closed", extra)
				return

			case blocking, ok := <-blocked:
				if !ok {
					return
				}
				if blocking.Active {
					b.logger.Warn(logging.RabbitMQ, logging.Publish, "connection blocked", map[logging.ExtraKey]any{
						logging.ErrorMessage: blocking.Reason,
					})
				} else {
					b.logger.Warn(logging.RabbitMQ, logging.Publish, "connection unblocked", nil)
				}
			}
		}
	}()
}

// Publish serializes the payload and publishes it persistently. It does not
// block or retry; redelivery semantics belong to the envelope and the
// consumer's ack decision.
func (b *BrokerClient) Publish(ctx context.Context, exchange, routingKey string, payload any) error {
	return b.publish(ctx, exchange, routingKey, payload, "")
}

// PublishDelayed publishes with a per-message TTL. Combined with the
// dead-letter wiring on the delay queues this yields a durable deferred
// delivery that survives process restarts.
func (b *BrokerClient) PublishDelayed(ctx context.Context, exchange, routingKey string, payload any, delay time.Duration) error {
	return b.publish(ctx, exchange, routingKey, payload, strconv.FormatInt(delay.Milliseconds(), 10))
}

func (b *BrokerClient) publish(ctx context.Context, exchange, routingKey string, payload any, expiration string) error {
	ch, err := b.Channel(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	err = ch.PublishWithContext(ctx,
		exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Expiration:   expiration,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish to %s/%s: %w", exchange, routingKey, err)
	}

	metrics.MessagesPublished.WithLabelValues(exchange, routingKey).Inc()
	return nil
}

// Handler processes one delivery. Ack/nack is the handler's responsibility:
// the consumer loop never acknowledges on its behalf, so each consumer keeps
// full control over retry vs. drop semantics.
type Handler func(ctx context.Context, d amqp.Delivery) error

// Consume opens a dedicated channel for the queue, declares the topology on
// it and dispatches deliveries to the handler until ctx is cancelled. Handler
// errors and panics are logged and never crash the loop.
func (b *BrokerClient) Consume(ctx context.Context, queue string, handler Handler) error {
	if _, err := b.Channel(ctx); err != nil {
		return err
	}

	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return errors.New("rabbitmq connection not available after initialization")
	}

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to create consumer channel: %w", err)
	}

	if err := b.topo.Setup(ch); err != nil {
		ch.Close()
		return fmt.Errorf("failed to set up consumer topology: %w", err)
	}

	deliveries, err := ch.Consume(
		queue,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		return fmt.Errorf("failed to consume from %s: %w", queue, err)
	}

	b.logger.Info(logging.RabbitMQ, logging.Consume, "consumer started", map[logging.ExtraKey]any{
		logging.Queue: queue,
	})

	go func() {
		defer ch.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				b.dispatch(ctx, queue, d, handler)
			}
		}
	}()

	return nil
}

func (b *BrokerClient) dispatch(ctx context.Context, queue string, d amqp.Delivery, handler Handler) {
	defer func() {
		if r := recover(); r != nil {
			metrics.DeliveriesConsumed.WithLabelValues(queue, "error").Inc()
			b.logger.Error(logging.RabbitMQ, logging.Consume, "consumer panic", map[logging.ExtraKey]any{
				logging.Queue:        queue,
				logging.ErrorMessage: fmt.Sprint(r),
			})
		}
	}()

	if err := handler(ctx, d); err != nil {
		metrics.DeliveriesConsumed.WithLabelValues(queue, "error").Inc()
		b.logger.Error(logging.RabbitMQ, logging.Consume, "consumer error", map[logging.ExtraKey]any{
			logging.Queue:        queue,
			logging.ErrorMessage: err.Error(),
		})
	}
}

// Shutdown closes the channel then the connection, swallowing individual
// close errors, and resets shared state so a later Channel call reconnects.
func (b *BrokerClient) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ch != nil {
		_ = b.ch.Close()
		b.ch = nil
	}
	if b.conn != nil {
		_ = b.conn.Close()
		b.conn = nil
	}
	b.connecting = nil
	b.connectErr = nil

	b.logger.Info(logging.RabbitMQ, logging.Shutdown, "shutdown complete", nil)
}

// Topology exposes the descriptor for callers that need the declared names
// (admin surfaces, tests).
func (b *BrokerClient) Topology() Topology {
	return b.topo
}
