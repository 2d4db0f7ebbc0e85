package relay

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/chatwire/livechat/internal/infrastructure/contracts"
	"github.com/chatwire/livechat/internal/infrastructure/logging"
	"github.com/chatwire/livechat/internal/infrastructure/messaging"
	"github.com/chatwire/livechat/internal/infrastructure/metrics"
	"github.com/chatwire/livechat/internal/infrastructure/ws"
)

// Emitter is the slice of the websocket core the relay needs.
type Emitter interface {
	EmitToRoom(room, event string, data any)
	EmitAll(event string, data any)
}

// Consumer starts deliveries from a queue into a handler.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler messaging.Handler) error
}

// Relay drains the socket delivery queue and fans events out to websocket
// rooms. Each server instance runs its own relay over a per-instance queue,
// so every instance sees every event and serves its own connected clients.
type Relay struct {
	consumer Consumer
	queue    string
	emitter  Emitter
	logger   logging.Logger
}

func New(consumer Consumer, queue string, emitter Emitter, logger logging.Logger) *Relay {
	return &Relay{
		consumer: consumer,
		queue:    queue,
		emitter:  emitter,
		logger:   logger,
	}
}

func (r *Relay) Listen(ctx context.Context) error {
	return r.consumer.Consume(ctx, r.queue, r.Handle)
}

// Handle processes one delivery. Unknown kinds are acked and dropped so old
// relays survive new producers; undecodable bodies and emit panics are
// rejected without requeue so one poison message cannot wedge the queue.
func (r *Relay) Handle(_ context.Context, d amqp.Delivery) error {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error(logging.Socket, logging.Relay, "panic while emitting socket event", map[logging.ExtraKey]any{
				logging.ErrorMessage: rec,
			})
			_ = d.Nack(false, false)
		}
	}()

	var event contracts.SocketEvent
	if err := json.Unmarshal(d.Body, &event); err != nil {
		r.logger.Warn(logging.Socket, logging.Relay, "dropping undecodable socket event", map[logging.ExtraKey]any{
			logging.ErrorMessage: err.Error(),
		})
		return d.Nack(false, false)
	}

	switch event.Kind {
	case contracts.KindInboundMessage, contracts.KindOutboundMessage:
		r.emitMessage(event)
	case contracts.KindMessageStatus:
		r.emitStatus(event)
	case contracts.KindNotification:
		r.emitNotification(event)
	default:
		// Forward compatibility: a kind this build does not know is not an
		// error.
		r.logger.Debug(logging.Socket, logging.Relay, "ignoring unknown socket event kind", map[logging.ExtraKey]any{
			logging.EventKind: event.Kind,
		})
	}

	metrics.RelayEvents.WithLabelValues(event.Kind).Inc()
	return d.Ack(false)
}

func (r *Relay) emitMessage(event contracts.SocketEvent) {
	if event.ChatID != "" && event.Message != nil {
		room := ws.ChatRoom(event.ChatID)

		r.emitter.EmitToRoom(room, ws.MessageNew, event.Message)

		direction := ws.MessageOutbound
		if event.Kind == contracts.KindInboundMessage {
			direction = ws.MessageInbound
		}
		r.emitter.EmitToRoom(room, direction, event.Message)
	}

	if event.ChatUpdate == nil {
		return
	}
	if event.CompanyID != "" {
		r.emitter.EmitToRoom(ws.CompanyRoom(event.CompanyID), ws.ChatUpdated, event.ChatUpdate)
	} else {
		r.emitter.EmitAll(ws.ChatUpdated, event.ChatUpdate)
	}
}

func (r *Relay) emitStatus(event contracts.SocketEvent) {
	if event.ChatID == "" {
		return
	}

	r.emitter.EmitToRoom(ws.ChatRoom(event.ChatID), ws.MessageStatus, contracts.StatusUpdate{
		ChatID:     event.ChatID,
		MessageID:  event.MessageID,
		ExternalID: event.ExternalID,
		ViewStatus: event.ViewStatus,
		RawStatus:  event.RawStatus,
	})
}

func (r *Relay) emitNotification(event contracts.SocketEvent) {
	if event.UserID == "" || event.Notification == nil {
		return
	}

	r.emitter.EmitToRoom(ws.UserRoom(event.UserID), ws.Notification, event.Notification)
}
