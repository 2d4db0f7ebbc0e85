package messaging

import (
	"encoding/json"
	"fmt"
	"time"
)

// Job type tags consumers switch on.
const (
	JobChatInbound = "chat_inbound"
	JobAIHandoff   = "ai.handoff"
	JobMessageSend = "message.send"
)

// Routing keys - using consistent event/command patterns
const (
	KeyInboundMessage  = "inbound.message"
	KeyOutboundRequest = "outbound.request"
	KeyOutboundRetry   = "outbound.retry"
	KeyOutboundDLQ     = "outbound.dlq"
	KeySocketPattern   = "socket.livechat.*"
	KeySocketMessage   = "socket.livechat.message"
	KeySocketStatus    = "socket.livechat.status"
	KeyFollowupDelay   = "followup.delay"
	KeyAIHandoff       = "ai.handoff"
)

// Envelope is the producer contract for every job queue. It is serialized
// once by the producer and owned by the broker until exactly one consumer
// acknowledges it.
type Envelope struct {
	JobType   string          `json:"jobType"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"createdAt"`
	Payload   json.RawMessage `json:"payload"`
}

func NewEnvelope(jobType string, payload any) (Envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", jobType, err)
	}

	return Envelope{
		JobType:   jobType,
		Attempt:   0,
		CreatedAt: time.Now().UTC(),
		Payload:   body,
	}, nil
}

// Next returns a copy with the attempt counter incremented. Consumers call
// this before re-publishing a delivery they chose to retry manually.
func (e Envelope) Next() Envelope {
	e.Attempt++
	return e
}

// ExhaustedAttempts reports whether the envelope has used up the given
// attempt budget. The topology provides the dead-letter rail; the budget
// policy belongs to the consumer.
func (e Envelope) ExhaustedAttempts(budget int) bool {
	return e.Attempt >= budget
}

// Decode unmarshals the opaque payload into v.
func (e Envelope) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}
