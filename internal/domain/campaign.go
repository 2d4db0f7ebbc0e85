package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrCampaignNotFound = errors.New("campaign not found")
	ErrTemplateNotFound = errors.New("message template not found")
)

// Campaign is an outbound messaging campaign. The two flags decide what
// happens when a recipient replies: hand the chat to the AI pipeline, or keep
// walking the scripted follow-up sequence.
type Campaign struct {
	ID             string    `json:"id" bson:"_id"`
	CompanyID      string    `json:"companyId" bson:"company_id"`
	Name           string    `json:"name" bson:"name"`
	HandoffOnReply bool      `json:"handoffOnReply" bson:"handoff_on_reply"`
	AutoFollowup   bool      `json:"autoFollowup" bson:"auto_followup"`
	CreatedAt      time.Time `json:"createdAt" bson:"created_at"`
}

// FollowupStep is one entry of a campaign's scripted follow-up sequence,
// ordered by Position. Delay is measured from the recipient's reply.
type FollowupStep struct {
	ID         string        `json:"id" bson:"_id"`
	CampaignID string        `json:"campaignId" bson:"campaign_id"`
	Position   int           `json:"position" bson:"position"`
	Delay      time.Duration `json:"delay" bson:"delay"`
	TemplateID string        `json:"templateId" bson:"template_id"`
}

// MessageTemplate is the rendered content sent by a follow-up step.
type MessageTemplate struct {
	ID      string `json:"id" bson:"_id"`
	Content string `json:"content" bson:"content"`
}

// Recipient tracks per-phone campaign progress.
type Recipient struct {
	CampaignID  string     `json:"campaignId" bson:"campaign_id"`
	Phone       string     `json:"phone" bson:"phone"`
	Responded   bool       `json:"responded" bson:"responded"`
	RespondedAt *time.Time `json:"respondedAt,omitempty" bson:"responded_at,omitempty"`
	LastStep    int        `json:"lastStep" bson:"last_step"`
}

type CampaignRepository interface {
	GetByID(ctx context.Context, id string) (*Campaign, error)
	MarkResponded(ctx context.Context, campaignID, phone string) error
	NextPendingStep(ctx context.Context, campaignID, phone string) (*FollowupStep, error)
	GetTemplate(ctx context.Context, id string) (*MessageTemplate, error)
	EnsureIndexes(ctx context.Context) error
}
