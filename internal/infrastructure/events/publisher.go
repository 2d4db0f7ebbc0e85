package events

import (
	"context"

	"github.com/chatwire/livechat/internal/infrastructure/configs"
	"github.com/chatwire/livechat/internal/infrastructure/contracts"
	"github.com/chatwire/livechat/internal/infrastructure/messaging"
)

// Broker is the slice of the broker client the publisher needs.
type Broker interface {
	Publish(ctx context.Context, exchange, routingKey string, payload any) error
}

// LivechatPublisher fans application events out to the broker: realtime
// socket events onto the socket rail, jobs onto their work queues.
type LivechatPublisher struct {
	broker Broker
	cfg    configs.RabbitConfig
}

func NewLivechatPublisher(broker Broker, cfg configs.RabbitConfig) *LivechatPublisher {
	return &LivechatPublisher{
		broker: broker,
		cfg:    cfg,
	}
}

func (p *LivechatPublisher) PublishInboundMessage(ctx context.Context, event contracts.SocketEvent) error {
	event.Kind = contracts.KindInboundMessage
	return p.broker.Publish(ctx, p.cfg.AppExchange, messaging.KeySocketMessage, event)
}

func (p *LivechatPublisher) PublishOutboundMessage(ctx context.Context, event contracts.SocketEvent) error {
	event.Kind = contracts.KindOutboundMessage
	return p.broker.Publish(ctx, p.cfg.AppExchange, messaging.KeySocketMessage, event)
}

func (p *LivechatPublisher) PublishMessageStatus(ctx context.Context, event contracts.SocketEvent) error {
	event.Kind = contracts.KindMessageStatus
	return p.broker.Publish(ctx, p.cfg.AppExchange, messaging.KeySocketStatus, event)
}

func (p *LivechatPublisher) PublishNotification(ctx context.Context, event contracts.SocketEvent) error {
	event.Kind = contracts.KindNotification
	return p.broker.Publish(ctx, p.cfg.AppExchange, messaging.KeySocketStatus, event)
}

func (p *LivechatPublisher) PublishOutboundRequest(ctx context.Context, job contracts.SendMessageJob) error {
	envelope, err := messaging.NewEnvelope(messaging.JobMessageSend, job)
	if err != nil {
		return err
	}
	return p.broker.Publish(ctx, p.cfg.AppExchange, messaging.KeyOutboundRequest, envelope)
}

// PublishInboundSignal hands a recipient reply to the follow-up worker. The
// follow-up queue has no exchange binding, so this goes through the default
// exchange addressed by queue name.
func (p *LivechatPublisher) PublishInboundSignal(ctx context.Context, signal contracts.ChatInboundSignal) error {
	envelope, err := messaging.NewEnvelope(messaging.JobChatInbound, signal)
	if err != nil {
		return err
	}
	return p.broker.Publish(ctx, "", p.cfg.FollowupQueue, envelope)
}
