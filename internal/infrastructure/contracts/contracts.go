package contracts

import "encoding/json"

// Event kinds carried on the socket delivery queue. Producers tag every
// realtime event with one of these; the relay switches on the kind and
// ignores values it does not recognize.
const (
	KindInboundMessage  = "inbound.message"
	KindOutboundMessage = "outbound.message"
	KindMessageStatus   = "message.status"
	KindNotification    = "notification"
)

// SocketEvent is the broker-side shape of a realtime event. Only the fields
// relevant to the tagged kind are populated; the rest stay empty.
type SocketEvent struct {
	Kind string `json:"kind"`

	ChatID     string          `json:"chatId,omitempty"`
	CompanyID  string          `json:"companyId,omitempty"`
	Message    json.RawMessage `json:"message,omitempty"`
	ChatUpdate json.RawMessage `json:"chatUpdate,omitempty"`

	MessageID  string `json:"messageId,omitempty"`
	ExternalID string `json:"externalId,omitempty"`
	ViewStatus string `json:"view_status,omitempty"`
	RawStatus  string `json:"raw_status,omitempty"`

	UserID       string          `json:"userId,omitempty"`
	Notification json.RawMessage `json:"notification,omitempty"`
}

// StatusUpdate is the client-facing payload of a message status event.
type StatusUpdate struct {
	ChatID     string `json:"chatId"`
	MessageID  string `json:"messageId"`
	ExternalID string `json:"externalId"`
	ViewStatus string `json:"view_status"`
	RawStatus  string `json:"raw_status"`
}

// ChatInboundSignal tells the follow-up worker that a campaign recipient has
// replied.
type ChatInboundSignal struct {
	CampaignID string `json:"campaignId"`
	CompanyID  string `json:"companyId"`
	ChatID     string `json:"chatId"`
	Phone      string `json:"phone"`
}

// SendMessageJob asks the provider gateway to deliver one outbound message.
type SendMessageJob struct {
	CompanyID  string `json:"companyId"`
	CampaignID string `json:"campaignId,omitempty"`
	ChatID     string `json:"chatId,omitempty"`
	Phone      string `json:"phone"`
	Content    string `json:"content"`
	TemplateID string `json:"templateId,omitempty"`
}

// AIHandoffJob hands a replying recipient over to the conversational AI
// pipeline instead of the scripted follow-up sequence.
type AIHandoffJob struct {
	CampaignID string `json:"campaignId"`
	CompanyID  string `json:"companyId"`
	ChatID     string `json:"chatId"`
	Phone      string `json:"phone"`
}
