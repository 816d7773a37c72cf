package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PawPulse/PawPulse/internal/flow"
	"github.com/PawPulse/PawPulse/internal/models"
	"github.com/PawPulse/PawPulse/internal/scheduler"
	"github.com/PawPulse/PawPulse/internal/store"
)

// mockService implements messaging.Service with an in-memory transcript.
type mockService struct {
	mu        sync.Mutex
	sent      map[string][]string
	responses chan models.Response
}

func newMockService() *mockService {
	return &mockService{
		sent:      make(map[string][]string),
		responses: make(chan models.Response, 10),
	}
}

func (m *mockService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	if recipient == "" {
		return "", errors.New("recipient cannot be empty")
	}
	return recipient, nil
}

func (m *mockService) SendMessage(ctx context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent[to] = append(m.sent[to], body)
	return nil
}

func (m *mockService) Start(ctx context.Context) error { return nil }
func (m *mockService) Stop() error                     { return nil }

func (m *mockService) Responses() <-chan models.Response { return m.responses }

func (m *mockService) lastTo(to string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.sent[to]
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1]
}

func newTestBot(t *testing.T) (*Bot, *store.InMemoryStore, *mockService) {
	t.Helper()
	st := store.NewInMemoryStore()
	svc := newMockService()
	engine := flow.NewEngine(st, svc)
	sched := scheduler.NewDailyScheduler(st, engine, 19, 0, time.UTC)
	b := New(st, engine, sched, svc, WithScheduleDescription("19:00 (UTC)"))
	return b, st, svc
}

func inbound(from, body string) models.Response {
	return models.Response{From: from, Body: body, Time: time.Now().Unix()}
}

func TestStartCreatesUserAndWelcomes(t *testing.T) {
	b, st, svc := newTestBot(t)

	resp := inbound("15551230001", "/start")
	resp.Name = "Sam"
	if err := b.HandleResponse(context.Background(), resp); err != nil {
		t.Fatalf("HandleResponse failed: %v", err)
	}

	rec, err := st.Get("15551230001")
	if err != nil {
		t.Fatalf("user record not created: %v", err)
	}
	if rec.DisplayName != "Sam" {
		t.Errorf("display name = %q, want Sam", rec.DisplayName)
	}
	got := svc.lastTo("15551230001")
	if !strings.Contains(got, "19:00 (UTC)") {
		t.Errorf("welcome missing schedule description: %q", got)
	}
	for _, cmd := range []string{"/survey", "/history", "/pet", "/editpet", "/stop"} {
		if !strings.Contains(got, cmd) {
			t.Errorf("welcome missing command %s", cmd)
		}
	}
}

func TestSurveyCommandRoutesToRegistrationWithoutProfile(t *testing.T) {
	b, _, svc := newTestBot(t)

	if err := b.HandleResponse(context.Background(), inbound("15551230001", "/survey")); err != nil {
		t.Fatalf("HandleResponse failed: %v", err)
	}
	if got := svc.lastTo("15551230001"); !strings.Contains(got, "What kind of pet") {
		t.Errorf("expected registration prompt, got %q", got)
	}
}

func TestSurveyCommandStartsSurveyWithProfile(t *testing.T) {
	b, st, svc := newTestBot(t)
	if err := st.Upsert("15551230001", func(rec *models.UserRecord) {
		rec.Pet = &models.PetInfo{Species: "cat", Name: "Biscuit", Age: "3"}
	}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	if err := b.HandleResponse(context.Background(), inbound("15551230001", "/survey")); err != nil {
		t.Fatalf("HandleResponse failed: %v", err)
	}
	if got := svc.lastTo("15551230001"); !strings.Contains(got, "daily pet check-in") {
		t.Errorf("expected survey start, got %q", got)
	}
}

func TestPetCommand(t *testing.T) {
	b, st, svc := newTestBot(t)
	ctx := context.Background()

	if err := b.HandleResponse(ctx, inbound("15551230001", "/pet")); err != nil {
		t.Fatalf("HandleResponse failed: %v", err)
	}
	if got := svc.lastTo("15551230001"); !strings.Contains(got, "haven't registered a pet") {
		t.Errorf("expected missing-pet message, got %q", got)
	}

	if err := st.Upsert("15551230001", func(rec *models.UserRecord) {
		rec.Pet = &models.PetInfo{Species: "hamster", Name: "Nugget", Age: "1"}
	}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := b.HandleResponse(ctx, inbound("15551230001", "/pet")); err != nil {
		t.Fatalf("HandleResponse failed: %v", err)
	}
	got := svc.lastTo("15551230001")
	if !strings.Contains(got, "hamster") || !strings.Contains(got, "Nugget") {
		t.Errorf("pet info incomplete: %q", got)
	}
}

func TestHistoryCommand(t *testing.T) {
	b, st, svc := newTestBot(t)
	ctx := context.Background()

	if err := b.HandleResponse(ctx, inbound("15551230001", "/history")); err != nil {
		t.Fatalf("HandleResponse failed: %v", err)
	}
	if got := svc.lastTo("15551230001"); !strings.Contains(got, "don't have any saved check-ins") {
		t.Errorf("expected empty-history message, got %q", got)
	}

	// Seed 12 check-ins; /history shows the last 10, most recent first.
	base := time.Date(2026, 8, 1, 19, 0, 0, 0, time.UTC)
	err := st.Upsert("15551230001", func(rec *models.UserRecord) {
		for i := 0; i < 12; i++ {
			rec.Surveys = append(rec.Surveys, models.SurveyRecord{
				ID:        fmt.Sprintf("s_%02d", i),
				Timestamp: base.AddDate(0, 0, i),
				Answers:   []string{"walked", "nothing", "sunshine"},
			})
		}
	})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	if err := b.HandleResponse(ctx, inbound("15551230001", "/history")); err != nil {
		t.Fatalf("HandleResponse failed: %v", err)
	}
	got := svc.lastTo("15551230001")
	if n := strings.Count(got, "📅"); n != HistoryLimit {
		t.Errorf("history shows %d entries, want %d", n, HistoryLimit)
	}
	// Most recent (Aug 12) listed before the oldest shown (Aug 3), and
	// the two oldest seeded entries cut off.
	newest := strings.Index(got, "2026-08-12")
	oldestShown := strings.Index(got, "2026-08-03")
	if newest == -1 || oldestShown == -1 || newest > oldestShown {
		t.Errorf("history not in reverse chronological order:\n%s", got)
	}
	if strings.Contains(got, "2026-08-01") || strings.Contains(got, "2026-08-02") {
		t.Errorf("history shows entries beyond the limit:\n%s", got)
	}
}

func TestStopRemovesUserAndHistoryIsGone(t *testing.T) {
	b, st, svc := newTestBot(t)
	ctx := context.Background()

	err := st.Upsert("15551230001", func(rec *models.UserRecord) {
		rec.Pet = &models.PetInfo{Species: "cat", Name: "Biscuit", Age: "3"}
		rec.Surveys = append(rec.Surveys, models.SurveyRecord{
			ID:        "s_old",
			Timestamp: time.Now(),
			Answers:   []string{"a", "b", "c"},
		})
	})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	if err := b.HandleResponse(ctx, inbound("15551230001", "/stop")); err != nil {
		t.Fatalf("/stop failed: %v", err)
	}
	if got := svc.lastTo("15551230001"); !strings.Contains(got, "unsubscribed") {
		t.Errorf("expected stop confirmation, got %q", got)
	}
	if _, err := st.Get("15551230001"); !errors.Is(err, models.ErrUserNotFound) {
		t.Errorf("record survived /stop: %v", err)
	}

	// Stopping again reports not subscribed.
	if err := b.HandleResponse(ctx, inbound("15551230001", "/stop")); err != nil {
		t.Fatalf("second /stop failed: %v", err)
	}
	if got := svc.lastTo("15551230001"); !strings.Contains(got, "not subscribed") {
		t.Errorf("expected not-subscribed message, got %q", got)
	}

	// Resubscribing starts from a blank record; the old history is gone.
	if err := b.HandleResponse(ctx, inbound("15551230001", "/start")); err != nil {
		t.Fatalf("/start after /stop failed: %v", err)
	}
	rec, err := st.Get("15551230001")
	if err != nil {
		t.Fatalf("Get after resubscribe failed: %v", err)
	}
	if len(rec.Surveys) != 0 || rec.HasPet() {
		t.Errorf("old data survived /stop: pet=%v surveys=%d", rec.Pet, len(rec.Surveys))
	}
}

func TestStopMidSurveyDiscardsConversation(t *testing.T) {
	b, st, svc := newTestBot(t)
	ctx := context.Background()

	if err := st.Upsert("15551230001", func(rec *models.UserRecord) {
		rec.Pet = &models.PetInfo{Species: "cat", Name: "Biscuit", Age: "3"}
	}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := b.HandleResponse(ctx, inbound("15551230001", "/survey")); err != nil {
		t.Fatalf("/survey failed: %v", err)
	}
	if err := b.HandleResponse(ctx, inbound("15551230001", "/stop")); err != nil {
		t.Fatalf("/stop failed: %v", err)
	}

	// The pending question is gone; plain text gets the default reply.
	if err := b.HandleResponse(ctx, inbound("15551230001", "an answer to nothing")); err != nil {
		t.Fatalf("HandleResponse failed: %v", err)
	}
	if got := svc.lastTo("15551230001"); !strings.Contains(got, "don't have a question waiting") {
		t.Errorf("expected default reply, got %q", got)
	}
}

func TestUnknownCommandGetsDefaultReply(t *testing.T) {
	b, _, svc := newTestBot(t)
	if err := b.HandleResponse(context.Background(), inbound("15551230001", "/teleport")); err != nil {
		t.Fatalf("HandleResponse failed: %v", err)
	}
	if got := svc.lastTo("15551230001"); !strings.Contains(got, "don't have a question waiting") {
		t.Errorf("expected default reply, got %q", got)
	}
}

func TestPlainTextAdvancesActiveConversation(t *testing.T) {
	b, st, svc := newTestBot(t)
	ctx := context.Background()

	if err := b.HandleResponse(ctx, inbound("15551230001", "/survey")); err != nil {
		t.Fatalf("/survey failed: %v", err)
	}
	for _, body := range []string{"dog", "Rex", "5"} {
		if err := b.HandleResponse(ctx, inbound("15551230001", body)); err != nil {
			t.Fatalf("HandleResponse(%q) failed: %v", body, err)
		}
	}

	rec, err := st.Get("15551230001")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !rec.HasPet() || rec.Pet.Name != "Rex" {
		t.Fatalf("registration did not persist: %+v", rec.Pet)
	}
	if got := svc.lastTo("15551230001"); !strings.Contains(got, "Question 1 of 3") {
		t.Errorf("expected chained survey question, got %q", got)
	}
}
