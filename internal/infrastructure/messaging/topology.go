package messaging

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/chatwire/livechat/internal/infrastructure/configs"
)

// Binding routes messages from an exchange into a queue.
type Binding struct {
	Queue    string
	Exchange string
	Key      string
}

// Topology describes the full exchange/queue/binding layout. It is built once
// from configuration and declared on every new channel; re-declaration of
// identical definitions is a no-op on the broker side.
type Topology struct {
	cfg configs.RabbitConfig
}

func NewTopology(cfg configs.RabbitConfig) Topology {
	return Topology{cfg: cfg}
}

func (t Topology) Exchanges() []string {
	return []string{
		t.cfg.AppExchange,
		t.cfg.ProviderExchange,
		t.cfg.DeadLetterExchange,
	}
}

func (t Topology) Queues() []string {
	return []string{
		t.cfg.InboundQueue,
		t.cfg.OutboundQueue,
		t.cfg.OutboundRetryQueue,
		t.cfg.OutboundDLQ,
		t.cfg.SocketQueue,
		t.cfg.FollowupQueue,
		t.cfg.FollowupDelayQueue,
	}
}

func (t Topology) Bindings() []Binding {
	return []Binding{
		{Queue: t.cfg.InboundQueue, Exchange: t.cfg.ProviderExchange, Key: KeyInboundMessage},

		// Normal publishes land here with outbound.request; messages coming
		// back from the retry queue re-enter under outbound.retry.
		{Queue: t.cfg.OutboundQueue, Exchange: t.cfg.AppExchange, Key: KeyOutboundRequest},
		{Queue: t.cfg.OutboundQueue, Exchange: t.cfg.AppExchange, Key: KeyOutboundRetry},

		{Queue: t.cfg.OutboundRetryQueue, Exchange: t.cfg.DeadLetterExchange, Key: KeyOutboundRetry},
		{Queue: t.cfg.OutboundDLQ, Exchange: t.cfg.DeadLetterExchange, Key: KeyOutboundDLQ},

		{Queue: t.cfg.SocketQueue, Exchange: t.cfg.AppExchange, Key: KeySocketPattern},

		{Queue: t.cfg.FollowupDelayQueue, Exchange: t.cfg.DeadLetterExchange, Key: KeyFollowupDelay},
	}
}

// QueueArgs returns the declare arguments for a queue. Nil means a plain
// durable queue.
func (t Topology) QueueArgs(queue string) amqp.Table {
	switch queue {
	case t.cfg.InboundQueue, t.cfg.SocketQueue:
		return amqp.Table{
			"x-dead-letter-exchange": t.cfg.DeadLetterExchange,
		}

	case t.cfg.OutboundQueue:
		// A nack sends the message to the DLX under outbound.retry, which
		// parks it in the retry queue.
		return amqp.Table{
			"x-dead-letter-exchange":    t.cfg.DeadLetterExchange,
			"x-dead-letter-routing-key": KeyOutboundRetry,
		}

	case t.cfg.OutboundRetryQueue:
		// TTL expiry forwards back to the app exchange with the routing key
		// unchanged (outbound.retry), which the outbound queue is bound to.
		return amqp.Table{
			"x-dead-letter-exchange": t.cfg.AppExchange,
			"x-message-ttl":          t.cfg.RetryTTL.Milliseconds(),
		}

	case t.cfg.FollowupDelayQueue:
		// Scheduled follow-ups sleep here with a per-message TTL set by the
		// publisher; expiry re-routes them onto the outbound request queue.
		return amqp.Table{
			"x-dead-letter-exchange":    t.cfg.AppExchange,
			"x-dead-letter-routing-key": KeyOutboundRequest,
		}
	}

	return nil
}

// Setup declares the topology on the given channel and applies the prefetch
// limit. It must complete before any publish or consume on that channel.
func (t Topology) Setup(ch *amqp.Channel) error {
	if t.cfg.Prefetch > 0 {
		if err := ch.Qos(t.cfg.Prefetch, 0, false); err != nil {
			return fmt.Errorf("failed to set prefetch: %w", err)
		}
	}

	for _, exchange := range t.Exchanges() {
		if err := ch.ExchangeDeclare(
			exchange, // name
			"topic",  // kind
			true,     // durable
			false,    // auto-delete
			false,    // internal
			false,    // no-wait
			nil,
		); err != nil {
			return fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
		}
	}

	for _, queue := range t.Queues() {
		if _, err := ch.QueueDeclare(
			queue,              // name
			true,               // durable
			false,              // delete when unused
			false,              // exclusive
			false,              // no-wait
			t.QueueArgs(queue), // arguments with DLX config
		); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", queue, err)
		}
	}

	for _, b := range t.Bindings() {
		if err := ch.QueueBind(b.Queue, b.Key, b.Exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %s to %s: %w", b.Queue, b.Exchange, err)
		}
	}

	return nil
}
