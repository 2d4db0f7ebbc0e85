package followup

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/chatwire/livechat/internal/domain"
	"github.com/chatwire/livechat/internal/infrastructure/cache"
	"github.com/chatwire/livechat/internal/infrastructure/configs"
	"github.com/chatwire/livechat/internal/infrastructure/contracts"
	"github.com/chatwire/livechat/internal/infrastructure/logging"
	"github.com/chatwire/livechat/internal/infrastructure/messaging"
	"github.com/chatwire/livechat/internal/infrastructure/metrics"
)

// Publisher is the slice of the broker client the worker publishes through.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, payload any) error
	PublishDelayed(ctx context.Context, exchange, routingKey string, payload any, delay time.Duration) error
}

// Consumer starts deliveries from a queue into a handler.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler messaging.Handler) error
}

// Worker reacts to campaign recipients replying. Depending on the campaign
// it either hands the chat to the AI pipeline or schedules the next scripted
// follow-up through the broker's delay ring. Processing is fire-and-forget:
// every decoded signal is acked exactly once and never redelivered.
type Worker struct {
	consumer  Consumer
	publisher Publisher
	campaigns domain.CampaignRepository
	cache     *cache.Cache
	cfg       configs.RabbitConfig
	logger    logging.Logger
}

func NewWorker(
	consumer Consumer,
	publisher Publisher,
	campaigns domain.CampaignRepository,
	cache *cache.Cache,
	cfg configs.RabbitConfig,
	logger logging.Logger,
) *Worker {
	return &Worker{
		consumer:  consumer,
		publisher: publisher,
		campaigns: campaigns,
		cache:     cache,
		cfg:       cfg,
		logger:    logger,
	}
}

// Listen starts consuming and blocks until ctx is canceled, so a supervisor
// holding the instance lease can treat a return as the worker going away.
func (w *Worker) Listen(ctx context.Context) error {
	if err := w.consumer.Consume(ctx, w.cfg.FollowupQueue, w.Handle); err != nil {
		return err
	}

	<-ctx.Done()
	return nil
}

// Handle processes one reply signal. A missed follow-up is preferable to a
// duplicate one, so errors past the decode stage are logged and the delivery
// is acked regardless.
func (w *Worker) Handle(ctx context.Context, d amqp.Delivery) error {
	var envelope messaging.Envelope
	if err := json.Unmarshal(d.Body, &envelope); err != nil {
		w.logger.Warn(logging.Campaign, logging.Followup, "dropping undecodable follow-up delivery", map[logging.ExtraKey]any{
			logging.ErrorMessage: err.Error(),
		})
		return d.Nack(false, false)
	}

	if envelope.JobType != messaging.JobChatInbound {
		return d.Ack(false)
	}

	var signal contracts.ChatInboundSignal
	if err := envelope.Decode(&signal); err != nil {
		w.logger.Warn(logging.Campaign, logging.Followup, "dropping malformed reply signal", map[logging.ExtraKey]any{
			logging.ErrorMessage: err.Error(),
		})
		return d.Nack(false, false)
	}

	w.process(ctx, signal)
	return d.Ack(false)
}

func (w *Worker) process(ctx context.Context, signal contracts.ChatInboundSignal) {
	campaign, err := w.campaigns.GetByID(ctx, signal.CampaignID)
	if err != nil {
		if !errors.Is(err, domain.ErrCampaignNotFound) {
			w.logger.Error(logging.Campaign, logging.Followup, "campaign lookup failed", map[logging.ExtraKey]any{
				logging.CampaignID:   signal.CampaignID,
				logging.ErrorMessage: err.Error(),
			})
		}
		return
	}

	if err := w.campaigns.MarkResponded(ctx, campaign.ID, signal.Phone); err != nil {
		w.logger.Error(logging.Campaign, logging.Followup, "failed to mark recipient responded", map[logging.ExtraKey]any{
			logging.CampaignID:   campaign.ID,
			logging.ErrorMessage: err.Error(),
		})
	}

	// A reply changes the company's chat listings; bump the scope so cached
	// lists rebuild on next read.
	if err := w.cache.BumpNamespacedScope(ctx, "chats", campaign.CompanyID); err != nil {
		w.logger.Warn(logging.Redis, logging.CacheWrite, "chat scope bump failed", map[logging.ExtraKey]any{
			logging.CampaignID:   campaign.ID,
			logging.ErrorMessage: err.Error(),
		})
	}

	switch {
	case campaign.HandoffOnReply:
		w.handoff(ctx, campaign, signal)
	case campaign.AutoFollowup:
		w.scheduleNext(ctx, campaign, signal)
	}
}

func (w *Worker) handoff(ctx context.Context, campaign *domain.Campaign, signal contracts.ChatInboundSignal) {
	envelope, err := messaging.NewEnvelope(messaging.JobAIHandoff, contracts.AIHandoffJob{
		CampaignID: campaign.ID,
		CompanyID:  campaign.CompanyID,
		ChatID:     signal.ChatID,
		Phone:      signal.Phone,
	})
	if err != nil {
		w.logger.Error(logging.Campaign, logging.Followup, "failed to build handoff job", map[logging.ExtraKey]any{
			logging.CampaignID:   campaign.ID,
			logging.ErrorMessage: err.Error(),
		})
		return
	}

	if err := w.publisher.Publish(ctx, w.cfg.AppExchange, messaging.KeyAIHandoff, envelope); err != nil {
		w.logger.Error(logging.Campaign, logging.Followup, "failed to publish handoff job", map[logging.ExtraKey]any{
			logging.CampaignID:   campaign.ID,
			logging.ErrorMessage: err.Error(),
		})
	}
}

// scheduleNext parks the next scripted send in the delay queue with a
// per-message TTL. Expiry dead-letters it onto the outbound request queue,
// so the schedule survives worker restarts.
func (w *Worker) scheduleNext(ctx context.Context, campaign *domain.Campaign, signal contracts.ChatInboundSignal) {
	step, err := w.campaigns.NextPendingStep(ctx, campaign.ID, signal.Phone)
	if err != nil {
		w.logger.Error(logging.Campaign, logging.Followup, "failed to resolve next follow-up step", map[logging.ExtraKey]any{
			logging.CampaignID:   campaign.ID,
			logging.ErrorMessage: err.Error(),
		})
		return
	}
	if step == nil {
		return
	}

	template, err := w.campaigns.GetTemplate(ctx, step.TemplateID)
	if err != nil {
		w.logger.Error(logging.Campaign, logging.Followup, "failed to load follow-up template", map[logging.ExtraKey]any{
			logging.CampaignID:   campaign.ID,
			logging.ErrorMessage: err.Error(),
		})
		return
	}

	envelope, err := messaging.NewEnvelope(messaging.JobMessageSend, contracts.SendMessageJob{
		CompanyID:  campaign.CompanyID,
		CampaignID: campaign.ID,
		ChatID:     signal.ChatID,
		Phone:      signal.Phone,
		Content:    template.Content,
		TemplateID: template.ID,
	})
	if err != nil {
		w.logger.Error(logging.Campaign, logging.Followup, "failed to build follow-up send job", map[logging.ExtraKey]any{
			logging.CampaignID:   campaign.ID,
			logging.ErrorMessage: err.Error(),
		})
		return
	}

	err = w.publisher.PublishDelayed(ctx, w.cfg.DeadLetterExchange, messaging.KeyFollowupDelay, envelope, step.Delay)
	if err != nil {
		w.logger.Error(logging.Campaign, logging.Followup, "failed to schedule follow-up send", map[logging.ExtraKey]any{
			logging.CampaignID:   campaign.ID,
			logging.ErrorMessage: err.Error(),
		})
		return
	}

	metrics.FollowupsScheduled.Inc()
	w.logger.Info(logging.Campaign, logging.Followup, "follow-up send scheduled", map[logging.ExtraKey]any{
		logging.CampaignID: campaign.ID,
		logging.ChatID:     signal.ChatID,
		logging.Attempt:    step.Position,
	})
}
