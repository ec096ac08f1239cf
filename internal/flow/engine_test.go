package flow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/BrasasLabs/Anfitrion/internal/business"
	"github.com/BrasasLabs/Anfitrion/internal/models"
	"github.com/BrasasLabs/Anfitrion/internal/nlu"
	"github.com/BrasasLabs/Anfitrion/internal/store"
)

const testCustomer = "5215550001111"

// sentMessage records one outbound send made by the engine under test.
type sentMessage struct {
	To      string
	Body    string
	IsImage bool
}

// recordingService implements messaging.Service and records every send.
type recordingService struct {
	sent []sentMessage
}

func (r *recordingService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return recipient, nil
}

func (r *recordingService) SendMessage(ctx context.Context, to string, body string) error {
	r.sent = append(r.sent, sentMessage{To: to, Body: body})
	return nil
}

func (r *recordingService) SendImage(ctx context.Context, to string, image []byte, caption string) error {
	r.sent = append(r.sent, sentMessage{To: to, Body: caption, IsImage: true})
	return nil
}

func (r *recordingService) Start(ctx context.Context) error { return nil }
func (r *recordingService) Stop() error                     { return nil }

func (r *recordingService) Responses() <-chan models.Response {
	return nil
}

func (r *recordingService) StaffNotices() <-chan models.StaffNotice {
	return nil
}

func (r *recordingService) last(t *testing.T) sentMessage {
	t.Helper()
	if len(r.sent) == 0 {
		t.Fatal("expected at least one sent message")
	}
	return r.sent[len(r.sent)-1]
}

func testProfile() *business.Profile {
	return &business.Profile{
		Name:             "Brasas del Toro",
		Hours:            "12:00 a 22:00",
		Contact:          "+52 555 123 4567",
		Location:         "Av. Central 42",
		PaymentMethods:   "Efectivo y tarjeta",
		PaymentReference: "CLABE 012345678901234567",
		Menu:             testMenu(),
	}
}

// newTestEngine builds an engine with a fixed clock (an afternoon instant)
// and a controllable classifier, returning the pieces tests poke at.
func newTestEngine(t *testing.T, cfg Config) (*Engine, *recordingService, *nlu.MockClassifier, *time.Time) {
	t.Helper()
	svc := &recordingService{}
	classifier := &nlu.MockClassifier{Intent: models.IntentNone}
	eng := NewEngine(cfg, testProfile(), store.NewInMemorySessionStore(), classifier, svc)

	now := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	clock := &now
	eng.now = func() time.Time { return *clock }
	return eng, svc, classifier, clock
}

func TestEngine_FirstContactGreetsAndStops(t *testing.T) {
	eng, svc, _, _ := newTestEngine(t, DefaultConfig())
	ctx := context.Background()

	// The first message contains a catalog item, but first contact must
	// produce exactly one greeting and nothing else.
	if err := eng.HandleInbound(ctx, testCustomer, "Quiero una Coca"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(svc.sent) != 1 {
		t.Fatalf("expected exactly 1 message, got %d", len(svc.sent))
	}
	if !strings.Contains(svc.sent[0].Body, "Buenas tardes") {
		t.Errorf("expected afternoon greeting, got %q", svc.sent[0].Body)
	}
}

func TestEngine_PeriodChangeGreetingThenContinues(t *testing.T) {
	eng, svc, classifier, clock := newTestEngine(t, DefaultConfig())
	ctx := context.Background()

	if err := eng.HandleInbound(ctx, testCustomer, "Hola"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Same period: no new greeting, message goes straight to the classifier.
	classifier.Intent = models.IntentHoursInquiry
	if err := eng.HandleInbound(ctx, testCustomer, "¿a qué hora abren?"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(svc.sent) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(svc.sent))
	}
	if !strings.Contains(svc.sent[1].Body, "Nuestro horario") {
		t.Errorf("expected hours reply, got %q", svc.sent[1].Body)
	}

	// Period flips to night: greeting is re-sent, then the same message is
	// still processed.
	*clock = clock.Add(6 * time.Hour) // 20:00
	if err := eng.HandleInbound(ctx, testCustomer, "¿a qué hora cierran?"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(svc.sent) != 4 {
		t.Fatalf("expected 4 messages (greeting + reply), got %d", len(svc.sent))
	}
	if !strings.Contains(svc.sent[2].Body, "Buenas noches") {
		t.Errorf("expected night greeting, got %q", svc.sent[2].Body)
	}
	if !strings.Contains(svc.sent[3].Body, "Nuestro horario") {
		t.Errorf("expected hours reply after greeting, got %q", svc.sent[3].Body)
	}
}

func TestEngine_OrderFlowWithConfirmationAndSuppression(t *testing.T) {
	eng, svc, _, clock := newTestEngine(t, DefaultConfig())
	ctx := context.Background()

	// First contact.
	if err := eng.HandleInbound(ctx, testCustomer, "Hola"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(svc.sent) != 1 {
		t.Fatalf("expected greeting only, got %d messages", len(svc.sent))
	}

	// Catalog match: order prompt, order in progress.
	if err := eng.HandleInbound(ctx, testCustomer, "Quiero una Coca"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := svc.last(t).Body; got != replyOrderPrompt {
		t.Errorf("expected order prompt, got %q", got)
	}

	// Detail message: confirmation, then 15-minute silence.
	if err := eng.HandleInbound(ctx, testCustomer, "2 Coca, para llevar"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := svc.last(t).Body; got != replyOrderConfirmed {
		t.Errorf("expected order confirmation, got %q", got)
	}

	sentBefore := len(svc.sent)
	*clock = clock.Add(1 * time.Minute)
	if err := eng.HandleInbound(ctx, testCustomer, "¿ya está listo?"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(svc.sent) != sentBefore {
		t.Errorf("expected no reply within suppression window, got %d new", len(svc.sent)-sentBefore)
	}

	// After the window elapses the bot answers again.
	*clock = clock.Add(15 * time.Minute)
	if err := eng.HandleInbound(ctx, testCustomer, "Quiero una Coca"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := svc.last(t).Body; got != replyOrderPrompt {
		t.Errorf("expected order prompt after reactivation, got %q", got)
	}
}

func TestEngine_PaymentQRFlowVariant(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnablePaymentQRFlow = true
	eng, svc, _, clock := newTestEngine(t, cfg)
	ctx := context.Background()

	if err := eng.HandleInbound(ctx, testCustomer, "Hola"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := eng.HandleInbound(ctx, testCustomer, "Quiero una Coca"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	last := svc.last(t)
	if !last.IsImage {
		t.Error("expected payment QR image message")
	}
	if !strings.Contains(last.Body, "Métodos de pago") {
		t.Errorf("expected payment methods caption, got %q", last.Body)
	}

	// The QR flow suppresses immediately instead of waiting for details.
	sentBefore := len(svc.sent)
	*clock = clock.Add(1 * time.Minute)
	if err := eng.HandleInbound(ctx, testCustomer, "2 Coca, para llevar"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(svc.sent) != sentBefore {
		t.Error("expected suppression right after the payment QR flow")
	}

	// And it ends after the shorter window.
	*clock = clock.Add(5 * time.Minute)
	if err := eng.HandleInbound(ctx, testCustomer, "gracias"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(svc.sent) == sentBefore {
		t.Error("expected bot to answer after the payment QR window elapsed")
	}
}

func TestEngine_ThreeFailuresTriggerHandoff(t *testing.T) {
	eng, svc, _, clock := newTestEngine(t, DefaultConfig())
	ctx := context.Background()

	if err := eng.HandleInbound(ctx, testCustomer, "Hola"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Classifier returns no intent for everything below.
	for i := 0; i < 2; i++ {
		if err := eng.HandleInbound(ctx, testCustomer, "xyzzy"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := svc.last(t).Body; got != replyNotUnderstood {
			t.Errorf("expected fallback reply on failure %d, got %q", i+1, got)
		}
	}

	// Third failure: exactly one handoff notice, then silence.
	if err := eng.HandleInbound(ctx, testCustomer, "xyzzy"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := svc.last(t).Body; got != replyHandoff {
		t.Errorf("expected handoff notice, got %q", got)
	}

	sentBefore := len(svc.sent)
	*clock = clock.Add(1 * time.Second)
	if err := eng.HandleInbound(ctx, testCustomer, "hola?"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(svc.sent) != sentBefore {
		t.Error("expected no reply 1 second after handoff")
	}

	// After the window the counter must have been reset: the next failure is
	// failure #1, answered with the fallback, not another handoff.
	*clock = clock.Add(15 * time.Minute)
	if err := eng.HandleInbound(ctx, testCustomer, "xyzzy"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := svc.last(t).Body; got != replyNotUnderstood {
		t.Errorf("expected fallback reply after reactivation, got %q", got)
	}
}

func TestEngine_ClassifierErrorCountsAsFailure(t *testing.T) {
	eng, svc, classifier, _ := newTestEngine(t, DefaultConfig())
	ctx := context.Background()

	if err := eng.HandleInbound(ctx, testCustomer, "Hola"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	classifier.Err = errors.New("provider timeout")
	if err := eng.HandleInbound(ctx, testCustomer, "algo"); err != nil {
		t.Fatalf("expected classifier error to be absorbed, got %v", err)
	}
	if got := svc.last(t).Body; got != replyNotUnderstood {
		t.Errorf("expected fallback reply on classifier error, got %q", got)
	}
}

func TestEngine_UnderstoodIntentLeavesCounterAlone(t *testing.T) {
	eng, svc, classifier, _ := newTestEngine(t, DefaultConfig())
	ctx := context.Background()

	if err := eng.HandleInbound(ctx, testCustomer, "Hola"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Two failures, then a success, then one more failure. The success
	// leaves the counter as-is, so the last message is the third failure and
	// triggers the handoff.
	for i := 0; i < 2; i++ {
		if err := eng.HandleInbound(ctx, testCustomer, "xyzzy"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	classifier.Intent = models.IntentMenuInquiry
	if err := eng.HandleInbound(ctx, testCustomer, "menú?"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(svc.last(t).Body, "Menú de Brasas del Toro") {
		t.Errorf("expected menu reply, got %q", svc.last(t).Body)
	}

	classifier.Intent = models.IntentNone
	if err := eng.HandleInbound(ctx, testCustomer, "xyzzy"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := svc.last(t).Body; got != replyHandoff {
		t.Errorf("expected handoff on third cumulative failure, got %q", got)
	}
}

func TestEngine_IntentReplies(t *testing.T) {
	cases := []struct {
		intent models.Intent
		want   string
	}{
		{models.IntentMenuInquiry, "Menú de Brasas del Toro"},
		{models.IntentHoursInquiry, "12:00 a 22:00"},
		{models.IntentContactInquiry, "+52 555 123 4567"},
		{models.IntentLocationInquiry, "Av. Central 42"},
		{models.IntentPaymentInquiry, "Efectivo y tarjeta"},
		{models.IntentOrderInquiry, "Qué te gustaría ordenar"},
		{models.IntentGreeting, "Buenas tardes"},
		{models.IntentFarewell, "Te esperamos pronto"},
	}
	for _, c := range cases {
		eng, svc, classifier, _ := newTestEngine(t, DefaultConfig())
		ctx := context.Background()
		if err := eng.HandleInbound(ctx, testCustomer, "Hola"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		classifier.Intent = c.intent
		if err := eng.HandleInbound(ctx, testCustomer, "mensaje"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := svc.last(t).Body; !strings.Contains(got, c.want) {
			t.Errorf("intent %q: expected reply containing %q, got %q", c.intent, c.want, got)
		}
	}
}

func TestEngine_OrderEchoIntentStartsOrder(t *testing.T) {
	eng, svc, classifier, _ := newTestEngine(t, DefaultConfig())
	ctx := context.Background()

	if err := eng.HandleInbound(ctx, testCustomer, "Hola"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// "tres de las que llevan queso" matches no catalog name, but the
	// classifier recognizes an echoed order.
	classifier.Intent = models.IntentOrderEcho
	if err := eng.HandleInbound(ctx, testCustomer, "tres de las que llevan queso"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := svc.last(t).Body; got != replyOrderPrompt {
		t.Errorf("expected order prompt, got %q", got)
	}

	classifier.Intent = models.IntentNone
	if err := eng.HandleInbound(ctx, testCustomer, "con todo, para llevar"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := svc.last(t).Body; got != replyOrderConfirmed {
		t.Errorf("expected order confirmation, got %q", got)
	}
}

func TestEngine_StaffReplySuppressesImmediately(t *testing.T) {
	eng, svc, _, clock := newTestEngine(t, DefaultConfig())
	ctx := context.Background()

	if err := eng.HandleInbound(ctx, testCustomer, "Hola"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Put an order in progress, then have staff step in.
	if err := eng.HandleInbound(ctx, testCustomer, "Quiero una Coca"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := eng.HandleStaffReply(ctx, testCustomer); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sentBefore := len(svc.sent)
	if err := eng.HandleInbound(ctx, testCustomer, "2 Coca"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(svc.sent) != sentBefore {
		t.Error("expected silence right after a staff reply")
	}

	// Staff suppression leaves OrderInProgress untouched: after the window
	// the pending order completes.
	*clock = clock.Add(10 * time.Minute)
	if err := eng.HandleInbound(ctx, testCustomer, "2 Coca"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := svc.last(t).Body; got != replyOrderConfirmed {
		t.Errorf("expected order confirmation after staff window, got %q", got)
	}
}

func TestEngine_StaffReplyCreatesSessionForUnknownCustomer(t *testing.T) {
	eng, svc, _, _ := newTestEngine(t, DefaultConfig())
	ctx := context.Background()

	if err := eng.HandleStaffReply(ctx, "5215559999999"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The first inbound message inside the window gets nothing, not even the
	// first-contact greeting.
	if err := eng.HandleInbound(ctx, "5215559999999", "Hola"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(svc.sent) != 0 {
		t.Errorf("expected no messages, got %d", len(svc.sent))
	}
}
