// Package messaging abstracts the chat transport used by PawPulse.
//
// This file implements the WhatsApp transport on top of whatsmeow,
// including first-run QR/numeric-code login and inbound text events.
package messaging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/PawPulse/PawPulse/internal/models"
	"github.com/PawPulse/PawPulse/internal/store"
)

// JIDSuffix is the WhatsApp JID suffix for regular users.
const JIDSuffix = "s.whatsapp.net"

// WhatsAppOpts holds configuration options for the WhatsApp transport.
type WhatsAppOpts struct {
	DBDSN       string // whatsmeow device database connection string
	QRPath      string // path to write the login QR code
	NumericCode bool   // print a numeric login code instead of a QR code
}

// WhatsAppOption defines a configuration option for the WhatsApp transport.
type WhatsAppOption func(*WhatsAppOpts)

// WithWhatsAppDBDSN sets the whatsmeow device database connection string.
func WithWhatsAppDBDSN(dsn string) WhatsAppOption {
	return func(o *WhatsAppOpts) {
		o.DBDSN = dsn
	}
}

// WithQRCodeOutput writes the login QR code to the given path instead of stdout.
func WithQRCodeOutput(path string) WhatsAppOption {
	return func(o *WhatsAppOpts) {
		o.QRPath = path
	}
}

// WithNumericCode prints a numeric login code instead of a QR code.
func WithNumericCode() WhatsAppOption {
	return func(o *WhatsAppOpts) {
		o.NumericCode = true
	}
}

// WhatsAppService implements Service over a whatsmeow client.
type WhatsAppService struct {
	client    *whatsmeow.Client
	responses chan models.Response
	done      chan struct{}
}

// NewWhatsAppService connects to WhatsApp, running the login flow if the
// device store has no session yet.
func NewWhatsAppService(opts ...WhatsAppOption) (*WhatsAppService, error) {
	var cfg WhatsAppOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("whatsapp device database DSN not set")
	}

	driver := "sqlite3"
	if store.DetectDSNType(cfg.DBDSN) == "postgres" {
		driver = "postgres"
	} else if !strings.Contains(cfg.DBDSN, "foreign_keys") {
		slog.Warn("WhatsApp SQLite DSN has no foreign keys parameter; whatsmeow recommends '?_foreign_keys=on'",
			"dsn_example", "file:"+cfg.DBDSN+"?_foreign_keys=on")
	}

	ctx := context.Background()
	container, err := sqlstore.New(ctx, driver, cfg.DBDSN, waLog.Stdout("Database", "INFO", true))
	if err != nil {
		slog.Error("WhatsAppService failed to open device store", "error", err)
		return nil, fmt.Errorf("failed to initialize WhatsApp device store: %w", err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		slog.Error("WhatsAppService failed to load device", "error", err)
		return nil, fmt.Errorf("failed to get device from WhatsApp store: %w", err)
	}

	client := whatsmeow.NewClient(device, waLog.Stdout("Client", "INFO", true))
	if client.Store.ID == nil {
		if err := loginWithCode(client, cfg); err != nil {
			return nil, err
		}
	} else {
		slog.Debug("WhatsAppService already logged in, connecting")
		if err := client.Connect(); err != nil {
			slog.Error("WhatsAppService connect failed", "error", err)
			return nil, fmt.Errorf("failed to connect to WhatsApp: %w", err)
		}
	}
	slog.Info("WhatsAppService connected")

	return &WhatsAppService{
		client:    client,
		responses: make(chan models.Response, DefaultChannelBufferSize),
		done:      make(chan struct{}),
	}, nil
}

// loginWithCode runs the interactive pairing flow, writing the QR code
// (or numeric code) to stdout or the configured file.
func loginWithCode(client *whatsmeow.Client, cfg WhatsAppOpts) error {
	slog.Info("WhatsApp login required; starting pairing flow")
	qrChan, _ := client.GetQRChannel(context.Background())
	if err := client.Connect(); err != nil {
		slog.Error("WhatsAppService connect during login failed", "error", err)
		return fmt.Errorf("failed to connect during WhatsApp login: %w", err)
	}

	writer := io.Writer(os.Stdout)
	if cfg.QRPath != "" {
		f, err := os.Create(cfg.QRPath)
		if err != nil {
			return fmt.Errorf("failed to create QR output file: %w", err)
		}
		defer f.Close()
		writer = f
	}

	for evt := range qrChan {
		if evt.Event == "code" {
			if cfg.NumericCode {
				fmt.Fprintln(writer, evt.Code)
			} else {
				qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, writer)
			}
		} else {
			slog.Debug("WhatsApp login event", "event", evt.Event)
		}
	}
	return nil
}

// ValidateAndCanonicalizeRecipient strips the recipient to bare digits.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone(recipient)
}

// SendMessage sends a WhatsApp text message.
func (s *WhatsAppService) SendMessage(ctx context.Context, to string, body string) error {
	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	if body == "" {
		return fmt.Errorf("message body cannot be empty")
	}

	jid := types.NewJID(canonical, JIDSuffix)
	msg := &waE2E.Message{Conversation: &body}
	if _, err := s.client.SendMessage(ctx, jid, msg); err != nil {
		slog.Error("WhatsAppService SendMessage failed", "error", err, "to", canonical)
		return fmt.Errorf("failed to send message to %s: %w", canonical, err)
	}
	slog.Debug("WhatsAppService message sent", "to", canonical, "body_length", len(body))
	return nil
}

// Start registers the inbound event handler.
func (s *WhatsAppService) Start(ctx context.Context) error {
	s.client.AddEventHandler(func(evt interface{}) {
		if msg, ok := evt.(*events.Message); ok {
			s.handleIncomingMessage(msg)
		}
	})
	slog.Debug("WhatsAppService event handler registered")
	return nil
}

// Stop disconnects the client and closes the responses channel.
func (s *WhatsAppService) Stop() error {
	slog.Info("WhatsAppService stopping")
	close(s.done)
	s.client.Disconnect()
	close(s.responses)
	return nil
}

// Responses returns the channel of incoming user messages.
func (s *WhatsAppService) Responses() <-chan models.Response {
	return s.responses
}

// handleIncomingMessage converts a text message event into a Response.
// Non-text messages (images, audio, stickers) are ignored.
func (s *WhatsAppService) handleIncomingMessage(evt *events.Message) {
	if evt.Message == nil {
		return
	}

	var text string
	switch {
	case evt.Message.Conversation != nil:
		text = *evt.Message.Conversation
	case evt.Message.ExtendedTextMessage != nil && evt.Message.ExtendedTextMessage.Text != nil:
		text = *evt.Message.ExtendedTextMessage.Text
	default:
		slog.Debug("WhatsAppService ignoring non-text message", "from", evt.Info.Sender.String())
		return
	}

	response := models.Response{
		From: strings.TrimPrefix(evt.Info.Sender.User, "+"),
		Body: text,
		Name: evt.Info.PushName,
		Time: evt.Info.Timestamp.Unix(),
	}

	select {
	case <-s.done:
	case s.responses <- response:
		slog.Debug("WhatsAppService inbound message forwarded", "from", response.From, "body_length", len(response.Body))
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("WhatsAppService responses channel blocked, dropping message", "from", response.From)
	}
}
