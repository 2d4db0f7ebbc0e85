package relay

import (
	"context"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/chatwire/livechat/internal/infrastructure/logging"
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

type emitCall struct {
	room  string
	event string
	all   bool
}

type fakeEmitter struct {
	calls []emitCall
	panic bool
}

func (f *fakeEmitter) EmitToRoom(room, event string, data any) {
	if f.panic {
		panic("emitter blew up")
	}
	f.calls = append(f.calls, emitCall{room: room, event: event})
}

func (f *fakeEmitter) EmitAll(event string, data any) {
	if f.panic {
		panic("emitter blew up")
	}
	f.calls = append(f.calls, emitCall{event: event, all: true})
}

func newTestRelay(emitter *fakeEmitter) *Relay {
	return New(nil, "q.socket.livechat", emitter, logging.NewNopLogger())
}

func delivery(body string) (amqp.Delivery, *ackRecorder) {
	rec := &ackRecorder{}
	return amqp.Delivery{Acknowledger: rec, Body: []byte(body), DeliveryTag: 7}, rec
}

func (f *fakeEmitter) has(room, event string) bool {
	for _, c := range f.calls {
		if c.room == room && c.event == event && !c.all {
			return true
		}
	}
	return false
}

func TestInboundMessageFansOut(t *testing.T) {
	emitter := &fakeEmitter{}
	r := newTestRelay(emitter)

	d, rec := delivery(`{
		"kind": "inbound.message",
		"chatId": "chat-9",
		"companyId": "acme",
		"message": {"id": "m1", "text": "hola"},
		"chatUpdate": {"id": "chat-9", "unread": 3}
	}`)

	if err := r.Handle(context.Background(), d); err != nil {
		t.Fatal(err)
	}

	if !emitter.has("chat:chat-9", "message:new") {
		t.Fatal("missing message:new to the chat room")
	}
	if !emitter.has("chat:chat-9", "message:inbound") {
		t.Fatal("missing message:inbound to the chat room")
	}
	if !emitter.has("company:acme", "chat:updated") {
		t.Fatal("missing chat:updated to the company room")
	}
	if len(emitter.calls) != 3 {
		t.Fatalf("expected 3 emits, got %d: %+v", len(emitter.calls), emitter.calls)
	}
	if rec.ack != 1 || rec.nack != 0 {
		t.Fatalf("expected single ack, got ack=%d nack=%d", rec.ack, rec.nack)
	}
}

func TestOutboundMessageUsesOutboundEvent(t *testing.T) {
	emitter := &fakeEmitter{}
	r := newTestRelay(emitter)

	d, rec := delivery(`{"kind": "outbound.message", "chatId": "chat-9", "message": {"id": "m2"}}`)

	if err := r.Handle(context.Background(), d); err != nil {
		t.Fatal(err)
	}

	if !emitter.has("chat:chat-9", "message:outbound") {
		t.Fatal("missing message:outbound to the chat room")
	}
	if emitter.has("chat:chat-9", "message:inbound") {
		t.Fatal("outbound event must not emit message:inbound")
	}
	if rec.ack != 1 {
		t.Fatal("delivery not acked")
	}
}

func TestChatUpdateWithoutCompanyGoesGlobal(t *testing.T) {
	emitter := &fakeEmitter{}
	r := newTestRelay(emitter)

	d, _ := delivery(`{"kind": "inbound.message", "chatUpdate": {"id": "chat-1"}}`)

	if err := r.Handle(context.Background(), d); err != nil {
		t.Fatal(err)
	}

	if len(emitter.calls) != 1 || !emitter.calls[0].all || emitter.calls[0].event != "chat:updated" {
		t.Fatalf("expected a single global chat:updated, got %+v", emitter.calls)
	}
}

func TestMessageWithoutChatIDEmitsNothing(t *testing.T) {
	emitter := &fakeEmitter{}
	r := newTestRelay(emitter)

	d, rec := delivery(`{"kind": "inbound.message", "message": {"id": "m1"}}`)

	if err := r.Handle(context.Background(), d); err != nil {
		t.Fatal(err)
	}

	if len(emitter.calls) != 0 {
		t.Fatalf("expected no emits, got %+v", emitter.calls)
	}
	if rec.ack != 1 {
		t.Fatal("incomplete events are still acked")
	}
}

func TestStatusUpdateTargetsChatRoom(t *testing.T) {
	emitter := &fakeEmitter{}
	r := newTestRelay(emitter)

	d, rec := delivery(`{
		"kind": "message.status",
		"chatId": "chat-9",
		"messageId": "m1",
		"externalId": "wamid.123",
		"view_status": "read",
		"raw_status": "READ"
	}`)

	if err := r.Handle(context.Background(), d); err != nil {
		t.Fatal(err)
	}

	if !emitter.has("chat:chat-9", "message:status") {
		t.Fatal("missing message:status to the chat room")
	}
	if rec.ack != 1 {
		t.Fatal("delivery not acked")
	}
}

func TestNotificationTargetsUserRoom(t *testing.T) {
	emitter := &fakeEmitter{}
	r := newTestRelay(emitter)

	d, _ := delivery(`{"kind": "notification", "userId": "u-5", "notification": {"title": "assigned"}}`)

	if err := r.Handle(context.Background(), d); err != nil {
		t.Fatal(err)
	}

	if !emitter.has("user:u-5", "notification") {
		t.Fatal("missing notification to the user room")
	}
}

func TestUnknownKindIsAckedAndIgnored(t *testing.T) {
	emitter := &fakeEmitter{}
	r := newTestRelay(emitter)

	d, rec := delivery(`{"kind": "typing.indicator", "chatId": "chat-9"}`)

	if err := r.Handle(context.Background(), d); err != nil {
		t.Fatal(err)
	}

	if len(emitter.calls) != 0 {
		t.Fatalf("unknown kinds must not emit, got %+v", emitter.calls)
	}
	if rec.ack != 1 || rec.nack != 0 {
		t.Fatalf("expected ack, got ack=%d nack=%d", rec.ack, rec.nack)
	}
}

func TestUndecodableBodyIsRejectedWithoutRequeue(t *testing.T) {
	emitter := &fakeEmitter{}
	r := newTestRelay(emitter)

	d, rec := delivery(`{not-json`)

	if err := r.Handle(context.Background(), d); err != nil {
		t.Fatal(err)
	}

	if rec.nack != 1 || rec.req {
		t.Fatalf("expected nack without requeue, got nack=%d requeue=%t", rec.nack, rec.req)
	}
	if rec.ack != 0 {
		t.Fatal("poison message must not be acked")
	}
}

func TestEmitPanicIsRejectedWithoutRequeue(t *testing.T) {
	emitter := &fakeEmitter{panic: true}
	r := newTestRelay(emitter)

	d, rec := delivery(`{"kind": "inbound.message", "chatId": "chat-9", "message": {"id": "m1"}}`)

	if err := r.Handle(context.Background(), d); err != nil {
		t.Fatal(err)
	}

	if rec.nack != 1 || rec.req {
		t.Fatalf("expected nack without requeue, got nack=%d requeue=%t", rec.nack, rec.req)
	}
}

func TestStatusWithoutChatIDIsDropped(t *testing.T) {
	emitter := &fakeEmitter{}
	r := newTestRelay(emitter)

	d, rec := delivery(`{"kind": "message.status", "messageId": "m1"}`)

	if err := r.Handle(context.Background(), d); err != nil {
		t.Fatal(err)
	}

	if len(emitter.calls) != 0 {
		t.Fatalf("expected no emits, got %+v", emitter.calls)
	}
	if rec.ack != 1 {
		t.Fatal("delivery not acked")
	}
}

var _ Emitter = (*fakeEmitter)(nil)
