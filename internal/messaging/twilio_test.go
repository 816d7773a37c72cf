package messaging

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func newTestTwilioService(t *testing.T) *TwilioService {
	t.Helper()
	svc, err := NewTwilioService(
		WithAccountSID("AC00000000000000000000000000000000"),
		WithAuthToken("secret"),
		WithFromNumber("+15550001111"),
	)
	if err != nil {
		t.Fatalf("NewTwilioService failed: %v", err)
	}
	return svc
}

func TestNewTwilioServiceRequiresCredentials(t *testing.T) {
	if _, err := NewTwilioService(WithFromNumber("+15550001111")); err == nil {
		t.Error("expected error without credentials")
	}
	if _, err := NewTwilioService(WithAccountSID("AC1"), WithAuthToken("tok")); err == nil {
		t.Error("expected error without from number")
	}
}

func TestCanonicalizePhone(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"+1 (555) 123-0001", "15551230001", false},
		{"15551230001", "15551230001", false},
		{"whatsapp:+15551230001", "15551230001", false},
		{"", "", true},
		{"abc", "", true},
		{"12345", "", true}, // too short
	}
	for _, c := range cases {
		got, err := canonicalizePhone(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("canonicalizePhone(%q): expected error, got %q", c.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("canonicalizePhone(%q) failed: %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("canonicalizePhone(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func postWebhook(t *testing.T, svc *TwilioService, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook/inbound", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	svc.WebhookHandler(rr, req)
	return rr
}

func TestWebhookHandlerEmitsResponse(t *testing.T) {
	svc := newTestTwilioService(t)
	defer svc.Stop()

	rr := postWebhook(t, svc, url.Values{
		"From": {"+15551230001"},
		"Body": {"/start"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	select {
	case resp := <-svc.Responses():
		if resp.From != "+15551230001" {
			t.Errorf("from = %q, want +15551230001", resp.From)
		}
		if resp.Body != "/start" {
			t.Errorf("body = %q, want /start", resp.Body)
		}
		if resp.Time == 0 {
			t.Error("response has no timestamp")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no response emitted")
	}
}

func TestWebhookHandlerRejectsMissingFields(t *testing.T) {
	svc := newTestTwilioService(t)
	defer svc.Stop()

	rr := postWebhook(t, svc, url.Values{"From": {"+15551230001"}})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("missing body: status = %d, want 400", rr.Code)
	}

	rr = postWebhook(t, svc, url.Values{"Body": {"hello"}})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("missing from: status = %d, want 400", rr.Code)
	}
}

func TestTwilioServiceStopRejectsSends(t *testing.T) {
	svc := newTestTwilioService(t)
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	// Stop is idempotent.
	if err := svc.Stop(); err != nil {
		t.Fatalf("second Stop failed: %v", err)
	}

	err := svc.SendMessage(context.Background(), "15551230001", "hi")
	if !errors.Is(err, ErrServiceStopped) {
		t.Errorf("expected ErrServiceStopped, got %v", err)
	}

	// Inbound after Stop is dropped, not a panic on a closed channel.
	rr := postWebhook(t, svc, url.Values{
		"From": {"+15551230001"},
		"Body": {"late"},
	})
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rr.Code)
	}
}
