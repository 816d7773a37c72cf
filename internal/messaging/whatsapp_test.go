package messaging

import (
	"testing"
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/PawPulse/PawPulse/internal/models"
)

func newTestWhatsAppService() *WhatsAppService {
	return &WhatsAppService{
		responses: make(chan models.Response, DefaultChannelBufferSize),
		done:      make(chan struct{}),
	}
}

func textEvent(sender, text string, when time.Time) *events.Message {
	evt := &events.Message{Message: &waE2E.Message{Conversation: &text}}
	evt.Info.Sender = types.NewJID(sender, JIDSuffix)
	evt.Info.PushName = "Sam"
	evt.Info.Timestamp = when
	return evt
}

func TestHandleIncomingMessageConversation(t *testing.T) {
	svc := newTestWhatsAppService()
	when := time.Date(2026, 8, 28, 19, 0, 0, 0, time.UTC)

	svc.handleIncomingMessage(textEvent("15551230001", "/start", when))

	select {
	case resp := <-svc.responses:
		if resp.From != "15551230001" {
			t.Errorf("from = %q, want 15551230001", resp.From)
		}
		if resp.Body != "/start" {
			t.Errorf("body = %q, want /start", resp.Body)
		}
		if resp.Name != "Sam" {
			t.Errorf("name = %q, want Sam", resp.Name)
		}
		if resp.Time != when.Unix() {
			t.Errorf("time = %d, want %d", resp.Time, when.Unix())
		}
	default:
		t.Fatal("no response emitted")
	}
}

func TestHandleIncomingMessageExtendedText(t *testing.T) {
	svc := newTestWhatsAppService()
	text := "my cat slept all day"
	evt := &events.Message{Message: &waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: &text},
	}}
	evt.Info.Sender = types.NewJID("15551230001", JIDSuffix)
	evt.Info.Timestamp = time.Now()

	svc.handleIncomingMessage(evt)

	select {
	case resp := <-svc.responses:
		if resp.Body != text {
			t.Errorf("body = %q, want %q", resp.Body, text)
		}
	default:
		t.Fatal("no response emitted")
	}
}

func TestHandleIncomingMessageIgnoresNonText(t *testing.T) {
	svc := newTestWhatsAppService()

	evt := &events.Message{Message: &waE2E.Message{}}
	evt.Info.Sender = types.NewJID("15551230001", JIDSuffix)
	svc.handleIncomingMessage(evt)

	svc.handleIncomingMessage(&events.Message{})

	select {
	case resp := <-svc.responses:
		t.Fatalf("unexpected response emitted: %+v", resp)
	default:
	}
}
