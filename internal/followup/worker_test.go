package followup

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"

	"github.com/chatwire/livechat/internal/domain"
	"github.com/chatwire/livechat/internal/infrastructure/cache"
	"github.com/chatwire/livechat/internal/infrastructure/configs"
	"github.com/chatwire/livechat/internal/infrastructure/contracts"
	"github.com/chatwire/livechat/internal/infrastructure/logging"
	"github.com/chatwire/livechat/internal/infrastructure/messaging"
)

type ackRecorder struct {
	ack  int
	nack int
	req  bool
}

func (a *ackRecorder) Ack(tag uint64, multiple bool) error {
	a.ack++
	return nil
}

func (a *ackRecorder) Nack(tag uint64, multiple bool, requeue bool) error {
	a.nack++
	a.req = requeue
	return nil
}

func (a *ackRecorder) Reject(tag uint64, requeue bool) error { return nil }

type publishCall struct {
	exchange   string
	routingKey string
	payload    any
	delay      time.Duration
	delayed    bool
}

type fakePublisher struct {
	calls []publishCall
}

func (p *fakePublisher) Publish(ctx context.Context, exchange, routingKey string, payload any) error {
	p.calls = append(p.calls, publishCall{exchange: exchange, routingKey: routingKey, payload: payload})
	return nil
}

func (p *fakePublisher) PublishDelayed(ctx context.Context, exchange, routingKey string, payload any, delay time.Duration) error {
	p.calls = append(p.calls, publishCall{exchange: exchange, routingKey: routingKey, payload: payload, delay: delay, delayed: true})
	return nil
}

type fakeRepo struct {
	campaign  *domain.Campaign
	step      *domain.FollowupStep
	template  *domain.MessageTemplate
	responded []string
}

func (r *fakeRepo) GetByID(ctx context.Context, id string) (*domain.Campaign, error) {
	if r.campaign == nil || r.campaign.ID != id {
		return nil, domain.ErrCampaignNotFound
	}
	return r.campaign, nil
}

func (r *fakeRepo) MarkResponded(ctx context.Context, campaignID, phone string) error {
	r.responded = append(r.responded, campaignID+"/"+phone)
	return nil
}

func (r *fakeRepo) NextPendingStep(ctx context.Context, campaignID, phone string) (*domain.FollowupStep, error) {
	return r.step, nil
}

func (r *fakeRepo) GetTemplate(ctx context.Context, id string) (*domain.MessageTemplate, error) {
	if r.template == nil || r.template.ID != id {
		return nil, domain.ErrTemplateNotFound
	}
	return r.template, nil
}

func (r *fakeRepo) EnsureIndexes(ctx context.Context) error { return nil }

func newTestWorker(t *testing.T, repo *fakeRepo, pub *fakePublisher) *Worker {
	t.Helper()

	store := cache.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	logger := logging.NewNopLogger()
	sharedCache := cache.New(store, cache.NewLockManager(store, logger), logger)

	cfg := configs.RabbitConfig{
		AppExchange:        "livechat.app",
		DeadLetterExchange: "livechat.dlx",
		FollowupQueue:      "q.campaign.followup",
		FollowupDelayQueue: "q.campaign.followup.delay",
	}

	return NewWorker(nil, pub, repo, sharedCache, cfg, logger)
}

func signalDelivery(t *testing.T, signal contracts.ChatInboundSignal) (amqp.Delivery, *ackRecorder) {
	t.Helper()

	env, err := messaging.NewEnvelope(messaging.JobChatInbound, signal)
	require.NoError(t, err)

	body, err := json.Marshal(env)
	require.NoError(t, err)

	rec := &ackRecorder{}
	return amqp.Delivery{Acknowledger: rec, Body: body, DeliveryTag: 3}, rec
}

func TestReplyTriggersAIHandoff(t *testing.T) {
	repo := &fakeRepo{
		campaign: &domain.Campaign{ID: "camp-1", CompanyID: "acme", HandoffOnReply: true, AutoFollowup: true},
	}
	pub := &fakePublisher{}
	w := newTestWorker(t, repo, pub)

	d, rec := signalDelivery(t, contracts.ChatInboundSignal{
		CampaignID: "camp-1",
		CompanyID:  "acme",
		ChatID:     "chat-7",
		Phone:      "+15550100",
	})

	require.NoError(t, w.Handle(context.Background(), d))

	require.Equal(t, []string{"camp-1/+15550100"}, repo.responded)
	require.Len(t, pub.calls, 1)

	call := pub.calls[0]
	require.False(t, call.delayed)
	require.Equal(t, "livechat.app", call.exchange)
	require.Equal(t, messaging.KeyAIHandoff, call.routingKey)

	env, ok := call.payload.(messaging.Envelope)
	require.True(t, ok)
	require.Equal(t, messaging.JobAIHandoff, env.JobType)

	var job contracts.AIHandoffJob
	require.NoError(t, env.Decode(&job))
	require.Equal(t, "camp-1", job.CampaignID)
	require.Equal(t, "chat-7", job.ChatID)

	require.Equal(t, 1, rec.ack)
	require.Zero(t, rec.nack)
}

func TestReplySchedulesNextFollowupThroughDelayRing(t *testing.T) {
	repo := &fakeRepo{
		campaign: &domain.Campaign{ID: "camp-1", CompanyID: "acme", AutoFollowup: true},
		step:     &domain.FollowupStep{ID: "step-2", CampaignID: "camp-1", Position: 2, Delay: 4 * time.Hour, TemplateID: "tpl-9"},
		template: &domain.MessageTemplate{ID: "tpl-9", Content: "still interested?"},
	}
	pub := &fakePublisher{}
	w := newTestWorker(t, repo, pub)

	d, rec := signalDelivery(t, contracts.ChatInboundSignal{
		CampaignID: "camp-1",
		CompanyID:  "acme",
		ChatID:     "chat-7",
		Phone:      "+15550100",
	})

	require.NoError(t, w.Handle(context.Background(), d))

	require.Len(t, pub.calls, 1)
	call := pub.calls[0]
	require.True(t, call.delayed)
	require.Equal(t, "livechat.dlx", call.exchange)
	require.Equal(t, messaging.KeyFollowupDelay, call.routingKey)
	require.Equal(t, 4*time.Hour, call.delay)

	env, ok := call.payload.(messaging.Envelope)
	require.True(t, ok)
	require.Equal(t, messaging.JobMessageSend, env.JobType)

	var job contracts.SendMessageJob
	require.NoError(t, env.Decode(&job))
	require.Equal(t, "still interested?", job.Content)
	require.Equal(t, "+15550100", job.Phone)
	require.Equal(t, "acme", job.CompanyID)

	require.Equal(t, 1, rec.ack)
}

func TestMissingCampaignIsAckedQuietly(t *testing.T) {
	repo := &fakeRepo{}
	pub := &fakePublisher{}
	w := newTestWorker(t, repo, pub)

	d, rec := signalDelivery(t, contracts.ChatInboundSignal{CampaignID: "gone", Phone: "+15550100"})

	require.NoError(t, w.Handle(context.Background(), d))

	require.Empty(t, pub.calls)
	require.Empty(t, repo.responded)
	require.Equal(t, 1, rec.ack)
}

func TestExhaustedSequencePublishesNothing(t *testing.T) {
	repo := &fakeRepo{
		campaign: &domain.Campaign{ID: "camp-1", CompanyID: "acme", AutoFollowup: true},
	}
	pub := &fakePublisher{}
	w := newTestWorker(t, repo, pub)

	d, rec := signalDelivery(t, contracts.ChatInboundSignal{CampaignID: "camp-1", Phone: "+15550100"})

	require.NoError(t, w.Handle(context.Background(), d))

	require.Empty(t, pub.calls)
	require.Equal(t, []string{"camp-1/+15550100"}, repo.responded)
	require.Equal(t, 1, rec.ack)
}

func TestNeitherFlagSetOnlyRecordsReply(t *testing.T) {
	repo := &fakeRepo{
		campaign: &domain.Campaign{ID: "camp-1", CompanyID: "acme"},
	}
	pub := &fakePublisher{}
	w := newTestWorker(t, repo, pub)

	d, rec := signalDelivery(t, contracts.ChatInboundSignal{CampaignID: "camp-1", Phone: "+15550100"})

	require.NoError(t, w.Handle(context.Background(), d))

	require.Empty(t, pub.calls)
	require.Equal(t, []string{"camp-1/+15550100"}, repo.responded)
	require.Equal(t, 1, rec.ack)
}

func TestUnknownJobTypeIsAcked(t *testing.T) {
	repo := &fakeRepo{}
	pub := &fakePublisher{}
	w := newTestWorker(t, repo, pub)

	env, err := messaging.NewEnvelope("campaign.export", nil)
	require.NoError(t, err)
	body, err := json.Marshal(env)
	require.NoError(t, err)

	rec := &ackRecorder{}
	d := amqp.Delivery{Acknowledger: rec, Body: body}

	require.NoError(t, w.Handle(context.Background(), d))
	require.Equal(t, 1, rec.ack)
	require.Empty(t, pub.calls)
}

func TestUndecodableBodyIsRejectedWithoutRequeue(t *testing.T) {
	repo := &fakeRepo{}
	pub := &fakePublisher{}
	w := newTestWorker(t, repo, pub)

	rec := &ackRecorder{}
	d := amqp.Delivery{Acknowledger: rec, Body: []byte(`{not-json`)}

	require.NoError(t, w.Handle(context.Background(), d))
	require.Equal(t, 1, rec.nack)
	require.False(t, rec.req)
	require.Zero(t, rec.ack)
}

func TestReplyBumpsCompanyChatScope(t *testing.T) {
	repo := &fakeRepo{
		campaign: &domain.Campaign{ID: "camp-1", CompanyID: "acme"},
	}
	pub := &fakePublisher{}

	store := cache.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	logger := logging.NewNopLogger()
	sharedCache := cache.New(store, cache.NewLockManager(store, logger), logger)

	cfg := configs.RabbitConfig{AppExchange: "livechat.app", DeadLetterExchange: "livechat.dlx", FollowupQueue: "q.campaign.followup"}
	w := NewWorker(nil, pub, repo, sharedCache, cfg, logger)

	d, _ := signalDelivery(t, contracts.ChatInboundSignal{CampaignID: "camp-1", Phone: "+15550100"})
	require.NoError(t, w.Handle(context.Background(), d))

	stored, found, err := store.Get(context.Background(), "v:chats:acme")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "1", stored)
}
