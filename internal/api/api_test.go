package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/BrasasLabs/Anfitrion/internal/business"
	"github.com/BrasasLabs/Anfitrion/internal/flow"
	"github.com/BrasasLabs/Anfitrion/internal/models"
	"github.com/BrasasLabs/Anfitrion/internal/nlu"
	"github.com/BrasasLabs/Anfitrion/internal/store"
)

// stubService implements messaging.Service with test-controlled channels.
type stubService struct {
	responses chan models.Response
	staff     chan models.StaffNotice

	mu   sync.Mutex
	sent []string
}

func newStubService() *stubService {
	return &stubService{
		responses: make(chan models.Response, 10),
		staff:     make(chan models.StaffNotice, 10),
	}
}

func (s *stubService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return recipient, nil
}

func (s *stubService) SendMessage(ctx context.Context, to string, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, body)
	return nil
}

func (s *stubService) SendImage(ctx context.Context, to string, image []byte, caption string) error {
	return s.SendMessage(ctx, to, caption)
}

func (s *stubService) Start(ctx context.Context) error { return nil }
func (s *stubService) Stop() error                     { return nil }

func (s *stubService) Responses() <-chan models.Response {
	return s.responses
}

func (s *stubService) StaffNotices() <-chan models.StaffNotice {
	return s.staff
}

func (s *stubService) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func testServer() (*Server, *stubService) {
	profile := &business.Profile{
		Name:           "Brasas del Toro",
		Hours:          "12:00 a 22:00",
		Contact:        business.Placeholder,
		Location:       business.Placeholder,
		PaymentMethods: business.Placeholder,
	}
	svc := newStubService()
	sessions := store.NewInMemorySessionStore()
	engine := flow.NewEngine(flow.DefaultConfig(), profile, sessions, &nlu.MockClassifier{}, svc)
	return NewServer(":0", profile, sessions, engine, svc), svc
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestDispatchEvents_RoutesCustomerMessages(t *testing.T) {
	server, svc := testServer()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.dispatchEvents(ctx)

	svc.responses <- models.Response{From: "5215550001111", Body: "Hola", Time: time.Now().Unix()}
	waitFor(t, func() bool { return svc.sentCount() == 1 })
}

func TestDispatchEvents_StaffNoticeSuppressesCustomer(t *testing.T) {
	server, svc := testServer()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.dispatchEvents(ctx)

	svc.staff <- models.StaffNotice{To: "5215550001111", Time: time.Now().Unix()}
	waitFor(t, func() bool {
		count, _ := server.sessions.Count()
		return count == 1
	})

	// A message arriving during the staff window gets no reply.
	svc.responses <- models.Response{From: "5215550001111", Body: "Hola", Time: time.Now().Unix()}
	time.Sleep(50 * time.Millisecond)
	if svc.sentCount() != 0 {
		t.Errorf("expected no replies during staff suppression, got %d", svc.sentCount())
	}
}

func TestHealthHandler(t *testing.T) {
	server, _ := testServer()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.healthHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("expected healthy status, got %v", body["status"])
	}
	if body["business"] != "Brasas del Toro" {
		t.Errorf("expected business name, got %v", body["business"])
	}
}

func TestHealthHandler_MethodNotAllowed(t *testing.T) {
	server, _ := testServer()

	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	rec := httptest.NewRecorder()
	server.healthHandler(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestSessionsHandler(t *testing.T) {
	server, _ := testServer()
	if _, err := server.sessions.GetOrCreate("5215550001111"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	rec := httptest.NewRecorder()
	server.sessionsHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("expected ok status, got %q", resp.Status)
	}
	sessions, ok := resp.Result.([]interface{})
	if !ok || len(sessions) != 1 {
		t.Errorf("expected 1 session in result, got %v", resp.Result)
	}
}
