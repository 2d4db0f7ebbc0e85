package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/chatwire/livechat/internal/domain"
	"github.com/chatwire/livechat/internal/persistence/db"
)

type campaignRepository struct {
	db *mongo.Database
}

func NewCampaignRepository(database *mongo.Database) domain.CampaignRepository {
	return &campaignRepository{
		db: database,
	}
}

func (r *campaignRepository) GetByID(ctx context.Context, id string) (*domain.Campaign, error) {
	collection := r.db.Collection(db.CampaignsCollection)

	var campaign domain.Campaign
	err := collection.FindOne(ctx, bson.M{"_id": id}).Decode(&campaign)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrCampaignNotFound
		}
		return nil, err
	}

	return &campaign, nil
}

// MarkResponded records the recipient's reply. Upsert keeps the call
// idempotent across redelivered signals.
func (r *campaignRepository) MarkResponded(ctx context.Context, campaignID, phone string) error {
	collection := r.db.Collection(db.RecipientsCollection)

	filter := bson.M{
		"campaign_id": campaignID,
		"phone":       phone,
	}
	update := bson.M{
		"$set": bson.M{
			"responded":    true,
			"responded_at": time.Now(),
		},
		"$setOnInsert": bson.M{
			"last_step": 0,
		},
	}

	opts := options.Update().SetUpsert(true)

	_, err := collection.UpdateOne(ctx, filter, update, opts)
	return err
}

// NextPendingStep returns the lowest-position step the recipient has not
// received yet, or nil when the sequence is exhausted.
func (r *campaignRepository) NextPendingStep(ctx context.Context, campaignID, phone string) (*domain.FollowupStep, error) {
	recipients := r.db.Collection(db.RecipientsCollection)

	var recipient domain.Recipient
	err := recipients.FindOne(ctx, bson.M{
		"campaign_id": campaignID,
		"phone":       phone,
	}).Decode(&recipient)
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}

	steps := r.db.Collection(db.StepsCollection)

	filter := bson.M{
		"campaign_id": campaignID,
		"position":    bson.M{"$gt": recipient.LastStep},
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "position", Value: 1}})

	var step domain.FollowupStep
	err = steps.FindOne(ctx, filter, opts).Decode(&step)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}

	_, err = recipients.UpdateOne(ctx,
		bson.M{"campaign_id": campaignID, "phone": phone},
		bson.M{"$set": bson.M{"last_step": step.Position}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return nil, err
	}

	return &step, nil
}

func (r *campaignRepository) GetTemplate(ctx context.Context, id string) (*domain.MessageTemplate, error) {
	collection := r.db.Collection(db.TemplatesCollection)

	var template domain.MessageTemplate
	err := collection.FindOne(ctx, bson.M{"_id": id}).Decode(&template)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrTemplateNotFound
		}
		return nil, err
	}

	return &template, nil
}

func (r *campaignRepository) EnsureIndexes(ctx context.Context) error {
	recipients := r.db.Collection(db.RecipientsCollection)

	recipientIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "campaign_id", Value: 1},
				{Key: "phone", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
	}

	if _, err := recipients.Indexes().CreateMany(ctx, recipientIndexes); err != nil {
		return err
	}

	steps := r.db.Collection(db.StepsCollection)

	stepIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "campaign_id", Value: 1},
				{Key: "position", Value: 1},
			},
		},
	}

	_, err := steps.Indexes().CreateMany(ctx, stepIndexes)
	return err
}
