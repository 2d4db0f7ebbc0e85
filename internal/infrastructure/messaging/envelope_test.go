package messaging

import (
	"encoding/json"
	"testing"
)

func TestNewEnvelopeStartsAtAttemptZero(t *testing.T) {
	env, err := NewEnvelope(JobMessageSend, map[string]string{"phone": "+15550100"})
	if err != nil {
		t.Fatal(err)
	}

	if env.JobType != JobMessageSend {
		t.Fatalf("job type = %q", env.JobType)
	}
	if env.Attempt != 0 {
		t.Fatalf("attempt = %d, want 0", env.Attempt)
	}
	if env.CreatedAt.IsZero() {
		t.Fatal("createdAt not set")
	}
}

func TestNextDoesNotMutateOriginal(t *testing.T) {
	env, err := NewEnvelope(JobChatInbound, nil)
	if err != nil {
		t.Fatal(err)
	}

	next := env.Next()
	if next.Attempt != 1 {
		t.Fatalf("next attempt = %d, want 1", next.Attempt)
	}
	if env.Attempt != 0 {
		t.Fatalf("original attempt mutated to %d", env.Attempt)
	}
}

func TestExhaustedAttempts(t *testing.T) {
	env := Envelope{Attempt: 2}

	if env.ExhaustedAttempts(3) {
		t.Fatal("attempt 2 of 3 should not be exhausted")
	}
	if !env.Next().ExhaustedAttempts(3) {
		t.Fatal("attempt 3 of 3 should be exhausted")
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	type payload struct {
		ChatID string `json:"chatId"`
	}

	env, err := NewEnvelope(JobChatInbound, payload{ChatID: "c-42"})
	if err != nil {
		t.Fatal(err)
	}

	body, err := json.Marshal(env)
	if err != nil {
		t.Fatal(err)
	}

	var parsed Envelope
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatal(err)
	}

	var out payload
	if err := parsed.Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.ChatID != "c-42" {
		t.Fatalf("chatId = %q", out.ChatID)
	}
}
