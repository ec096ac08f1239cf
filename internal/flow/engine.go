package flow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BrasasLabs/Anfitrion/internal/business"
	"github.com/BrasasLabs/Anfitrion/internal/messaging"
	"github.com/BrasasLabs/Anfitrion/internal/models"
	"github.com/BrasasLabs/Anfitrion/internal/nlu"
	"github.com/BrasasLabs/Anfitrion/internal/payment"
	"github.com/BrasasLabs/Anfitrion/internal/store"
)

// Engine is the per-customer conversation state machine. For every inbound
// message it evaluates, in precedence order: suppression, first contact,
// period-change greeting, order-in-progress completion, order detection,
// intent resolution. A parallel staff-reply event forces suppression
// independently of the message path.
type Engine struct {
	cfg        Config
	profile    *business.Profile
	sessions   store.SessionStore
	classifier nlu.Classifier
	msg        messaging.Service

	// now is injectable for tests; the greeting period and suppression
	// deadlines both derive from it.
	now func() time.Time
}

// NewEngine creates a conversation engine over the given collaborators.
func NewEngine(cfg Config, profile *business.Profile, sessions store.SessionStore, classifier nlu.Classifier, msg messaging.Service) *Engine {
	return &Engine{
		cfg:        cfg,
		profile:    profile,
		sessions:   sessions,
		classifier: classifier,
		msg:        msg,
		now:        time.Now,
	}
}

// HandleInbound processes one customer message to completion. Classifier and
// transport failures are absorbed into the "did not understand" path; the
// returned error is for logging only and never reaches the customer.
func (e *Engine) HandleInbound(ctx context.Context, customerID, body string) error {
	sess, err := e.sessions.GetOrCreate(customerID)
	if err != nil {
		return fmt.Errorf("failed to look up session for %s: %w", customerID, err)
	}
	now := e.now()

	// 1. Suppressed: consume silently. Re-evaluated on every invocation, so
	// a staff suppression that landed mid-stream takes effect immediately.
	if sess.SuppressedAt(now) {
		slog.Debug("Engine customer suppressed, ignoring message", "customer_id", customerID, "suppressed_until", sess.SuppressedUntil)
		return nil
	}
	if !sess.SuppressedUntil.IsZero() {
		// The window elapsed; note the reactivation lazily.
		slog.Info("Engine suppression window elapsed, bot reactivated", "customer_id", customerID)
		sess.ClearSuppression()
	}

	// 2. First contact: greet and stop, the message content is not processed.
	period := PeriodAt(now)
	if !sess.HasReceivedFirstGreeting {
		sess.HasReceivedFirstGreeting = true
		sess.LastGreetedPeriod = period
		if err := e.sessions.Save(sess); err != nil {
			return fmt.Errorf("failed to save session for %s: %w", customerID, err)
		}
		slog.Info("Engine greeting first contact", "customer_id", customerID, "period", period)
		return e.msg.SendMessage(ctx, customerID, GreetingText(period, e.profile.Name))
	}

	// 3. Period change: greet again, then keep processing the same message.
	if sess.LastGreetedPeriod != period {
		sess.LastGreetedPeriod = period
		if err := e.sessions.Save(sess); err != nil {
			return fmt.Errorf("failed to save session for %s: %w", customerID, err)
		}
		slog.Info("Engine greeting period change", "customer_id", customerID, "period", period)
		if err := e.msg.SendMessage(ctx, customerID, GreetingText(period, e.profile.Name)); err != nil {
			slog.Error("Engine failed to send period greeting", "error", err, "customer_id", customerID)
		}
	}

	// 4. Order in progress: the follow-up detail message closes the order.
	if sess.OrderInProgress {
		sess.OrderInProgress = false
		e.enterSuppression(sess, e.cfg.OrderAckSuppression)
		if err := e.sessions.Save(sess); err != nil {
			return fmt.Errorf("failed to save session for %s: %w", customerID, err)
		}
		slog.Info("Engine order registered", "customer_id", customerID, "suppressed_until", sess.SuppressedUntil)
		return e.msg.SendMessage(ctx, customerID, replyOrderConfirmed)
	}

	// 5. Order detection.
	if DetectOrder(body, e.profile.Menu, e.cfg.EnableKeywordOrderDetection) {
		return e.startOrder(ctx, sess)
	}

	// 6. Intent resolution.
	return e.resolveIntent(ctx, sess, body, now)
}

// HandleStaffReply suppresses the bot for a customer after a human staff
// member messaged them, overriding any in-progress state. The failure counter
// and order flag are deliberately left untouched.
func (e *Engine) HandleStaffReply(ctx context.Context, customerID string) error {
	sess, err := e.sessions.GetOrCreate(customerID)
	if err != nil {
		return fmt.Errorf("failed to look up session for %s: %w", customerID, err)
	}
	sess.Suppress(e.now(), e.cfg.StaffSuppression)
	if err := e.sessions.Save(sess); err != nil {
		return fmt.Errorf("failed to save session for %s: %w", customerID, err)
	}
	slog.Info("Engine staff reply, bot suppressed", "customer_id", customerID, "suppressed_until", sess.SuppressedUntil)
	return nil
}

// startOrder runs the configured order-detection branch: either ask for the
// order details in one message, or show payment methods plus a reference QR
// and go quiet while staff take over.
func (e *Engine) startOrder(ctx context.Context, sess *models.CustomerSession) error {
	if e.cfg.EnablePaymentQRFlow {
		e.enterSuppression(sess, e.cfg.PaymentQRSuppression)
		if err := e.sessions.Save(sess); err != nil {
			return fmt.Errorf("failed to save session for %s: %w", sess.CustomerID, err)
		}
		slog.Info("Engine order detected, payment QR flow", "customer_id", sess.CustomerID, "suppressed_until", sess.SuppressedUntil)

		caption := fmt.Sprintf(replyPaymentQRFormat, e.profile.PaymentMethods)
		png, err := payment.ReferenceQR(e.profile.PaymentReference)
		if err != nil {
			// No usable reference; the payment methods text still goes out.
			slog.Warn("Engine payment QR unavailable, sending text only", "error", err, "customer_id", sess.CustomerID)
			return e.msg.SendMessage(ctx, sess.CustomerID, caption)
		}
		return e.msg.SendImage(ctx, sess.CustomerID, png, caption)
	}

	sess.OrderInProgress = true
	if err := e.sessions.Save(sess); err != nil {
		return fmt.Errorf("failed to save session for %s: %w", sess.CustomerID, err)
	}
	slog.Info("Engine order detected, awaiting details", "customer_id", sess.CustomerID)
	return e.msg.SendMessage(ctx, sess.CustomerID, replyOrderPrompt)
}

// resolveIntent invokes the classifier, maps the result to a templated
// reply, and applies the failed-understanding bookkeeping. The classifier is
// fail-closed: an error here is handled exactly like "no intent returned".
func (e *Engine) resolveIntent(ctx context.Context, sess *models.CustomerSession, body string, now time.Time) error {
	intent, err := e.classifier.Classify(ctx, body)

	var outcome models.Outcome
	switch {
	case err != nil:
		outcome = models.OutcomeError
		slog.Warn("Engine classifier failed, treating as not understood", "error", err, "customer_id", sess.CustomerID)
	case intent == models.IntentNone:
		outcome = models.OutcomeNotUnderstood
	default:
		outcome = models.OutcomeUnderstood
	}

	if outcome == models.OutcomeUnderstood {
		// The echoed-order intent behaves like catalog order detection.
		if intent == models.IntentOrderEcho {
			return e.startOrder(ctx, sess)
		}
		reply, ok := e.replyForIntent(intent, now)
		if !ok {
			outcome = models.OutcomeNotUnderstood
		} else {
			slog.Info("Engine intent resolved", "customer_id", sess.CustomerID, "intent", intent)
			return e.msg.SendMessage(ctx, sess.CustomerID, reply)
		}
	}

	return e.registerFailure(ctx, sess, outcome)
}

// replyForIntent maps a taxonomy intent to its templated reply.
func (e *Engine) replyForIntent(intent models.Intent, now time.Time) (string, bool) {
	switch intent {
	case models.IntentMenuInquiry:
		return e.profile.FormatMenu(), true
	case models.IntentHoursInquiry:
		return fmt.Sprintf(replyHoursFormat, e.profile.Hours), true
	case models.IntentContactInquiry:
		return fmt.Sprintf(replyContactFormat, e.profile.Contact), true
	case models.IntentLocationInquiry:
		return fmt.Sprintf(replyLocationFormat, e.profile.Location), true
	case models.IntentPaymentInquiry:
		return fmt.Sprintf(replyPaymentFormat, e.profile.PaymentMethods), true
	case models.IntentOrderInquiry:
		return replyOrderInquiry, true
	case models.IntentGreeting:
		return GreetingText(PeriodAt(now), e.profile.Name), true
	case models.IntentFarewell:
		return fmt.Sprintf(replyFarewellFormat, e.profile.Name), true
	default:
		return "", false
	}
}

// registerFailure counts one failed understanding and either replies with the
// fixed fallback or, at the threshold, hands off to staff and goes quiet.
func (e *Engine) registerFailure(ctx context.Context, sess *models.CustomerSession, outcome models.Outcome) error {
	sess.FailedUnderstandingCount++
	slog.Debug("Engine failed understanding", "customer_id", sess.CustomerID, "count", sess.FailedUnderstandingCount, "outcome", outcome)

	if sess.FailedUnderstandingCount >= e.cfg.MaxFailedUnderstandings {
		e.enterSuppression(sess, e.cfg.HandoffSuppression)
		if err := e.sessions.Save(sess); err != nil {
			return fmt.Errorf("failed to save session for %s: %w", sess.CustomerID, err)
		}
		slog.Info("Engine handing off to staff", "customer_id", sess.CustomerID, "suppressed_until", sess.SuppressedUntil)
		return e.msg.SendMessage(ctx, sess.CustomerID, replyHandoff)
	}

	if err := e.sessions.Save(sess); err != nil {
		return fmt.Errorf("failed to save session for %s: %w", sess.CustomerID, err)
	}
	return e.msg.SendMessage(ctx, sess.CustomerID, replyNotUnderstood)
}

// enterSuppression starts a bot-initiated suppression window. The failure
// counter resets at the moment suppression is entered; staff suppression goes
// through HandleStaffReply instead and leaves the counter alone.
func (e *Engine) enterSuppression(sess *models.CustomerSession, window time.Duration) {
	sess.Suppress(e.now(), window)
	sess.FailedUnderstandingCount = 0
}
