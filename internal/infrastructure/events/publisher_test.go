package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chatwire/livechat/internal/infrastructure/configs"
	"github.com/chatwire/livechat/internal/infrastructure/contracts"
	"github.com/chatwire/livechat/internal/infrastructure/messaging"
)

type brokerCall struct {
	exchange   string
	routingKey string
	payload    any
}

type fakeBroker struct {
	calls []brokerCall
}

func (b *fakeBroker) Publish(ctx context.Context, exchange, routingKey string, payload any) error {
	b.calls = append(b.calls, brokerCall{exchange: exchange, routingKey: routingKey, payload: payload})
	return nil
}

func newTestPublisher() (*LivechatPublisher, *fakeBroker) {
	broker := &fakeBroker{}
	cfg := configs.RabbitConfig{
		AppExchange:   "livechat.app",
		FollowupQueue: "q.campaign.followup",
	}
	return NewLivechatPublisher(broker, cfg), broker
}

func TestSocketEventsUseSocketRoutingKeys(t *testing.T) {
	p, broker := newTestPublisher()
	ctx := context.Background()

	require.NoError(t, p.PublishInboundMessage(ctx, contracts.SocketEvent{ChatID: "c1"}))
	require.NoError(t, p.PublishOutboundMessage(ctx, contracts.SocketEvent{ChatID: "c1"}))
	require.NoError(t, p.PublishMessageStatus(ctx, contracts.SocketEvent{ChatID: "c1"}))
	require.NoError(t, p.PublishNotification(ctx, contracts.SocketEvent{UserID: "u1"}))

	require.Len(t, broker.calls, 4)

	for _, call := range broker.calls {
		require.Equal(t, "livechat.app", call.exchange)
	}

	require.Equal(t, messaging.KeySocketMessage, broker.calls[0].routingKey)
	require.Equal(t, messaging.KeySocketMessage, broker.calls[1].routingKey)
	require.Equal(t, messaging.KeySocketStatus, broker.calls[2].routingKey)
	require.Equal(t, messaging.KeySocketStatus, broker.calls[3].routingKey)

	kinds := []string{
		contracts.KindInboundMessage,
		contracts.KindOutboundMessage,
		contracts.KindMessageStatus,
		contracts.KindNotification,
	}
	for i, want := range kinds {
		event, ok := broker.calls[i].payload.(contracts.SocketEvent)
		require.True(t, ok)
		require.Equal(t, want, event.Kind)
	}
}

func TestOutboundRequestIsEnveloped(t *testing.T) {
	p, broker := newTestPublisher()

	err := p.PublishOutboundRequest(context.Background(), contracts.SendMessageJob{
		Phone:   "+15550100",
		Content: "hello",
	})
	require.NoError(t, err)

	require.Len(t, broker.calls, 1)
	require.Equal(t, messaging.KeyOutboundRequest, broker.calls[0].routingKey)

	env, ok := broker.calls[0].payload.(messaging.Envelope)
	require.True(t, ok)
	require.Equal(t, messaging.JobMessageSend, env.JobType)

	var job contracts.SendMessageJob
	require.NoError(t, env.Decode(&job))
	require.Equal(t, "hello", job.Content)
}

func TestInboundSignalTargetsFollowupQueueDirectly(t *testing.T) {
	p, broker := newTestPublisher()

	err := p.PublishInboundSignal(context.Background(), contracts.ChatInboundSignal{
		CampaignID: "camp-1",
		Phone:      "+15550100",
	})
	require.NoError(t, err)

	require.Len(t, broker.calls, 1)
	require.Empty(t, broker.calls[0].exchange, "signals go through the default exchange")
	require.Equal(t, "q.campaign.followup", broker.calls[0].routingKey)

	env, ok := broker.calls[0].payload.(messaging.Envelope)
	require.True(t, ok)
	require.Equal(t, messaging.JobChatInbound, env.JobType)
}
