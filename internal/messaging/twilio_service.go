package messaging

import (
	"context"
	"log/slog"
	"sync"

	"github.com/BrasasLabs/Anfitrion/internal/models"
	"github.com/BrasasLabs/Anfitrion/internal/twiliowhatsapp"
)

// TwilioService implements Service using the Twilio API. Twilio delivers
// inbound messages through webhooks rather than a live socket, so this
// service never emits responses or staff notices on its own; it exists as an
// outbound-only alternate provider.
type TwilioService struct {
	client       twiliowhatsapp.Sender
	responses    chan models.Response
	staffNotices chan models.StaffNotice
	done         chan struct{}
	mu           sync.RWMutex
	stopped      bool
}

// NewTwilioService creates a new TwilioService wrapping the given sender.
func NewTwilioService(client twiliowhatsapp.Sender) *TwilioService {
	return &TwilioService{
		client:       client,
		responses:    make(chan models.Response, DefaultChannelBufferSize),
		staffNotices: make(chan models.StaffNotice, DefaultChannelBufferSize),
		done:         make(chan struct{}),
	}
}

// ValidateAndCanonicalizeRecipient validates and canonicalizes a WhatsApp
// phone number by stripping all non-numeric characters.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizeRecipient(recipient)
}

// Start is a no-op for Twilio (no live event stream).
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop closes channels and stops the service.
func (s *TwilioService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.done)
	close(s.responses)
	close(s.staffNotices)
	return nil
}

// SendMessage sends a text message via Twilio.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		return models.ErrServiceStopped
	}
	s.mu.RUnlock()

	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService SendMessage validation error", "error", err, "to", to)
		return err
	}
	return s.client.SendMessage(ctx, canonicalTo, body)
}

// SendImage falls back to sending the caption as text: Twilio media requires
// a publicly reachable URL, which a locally generated QR image does not have.
func (s *TwilioService) SendImage(ctx context.Context, to string, image []byte, caption string) error {
	slog.Warn("TwilioService SendImage not supported, sending caption text instead", "to", to)
	return s.SendMessage(ctx, to, caption)
}

// Responses returns a channel of incoming customer messages (never fed).
func (s *TwilioService) Responses() <-chan models.Response {
	return s.responses
}

// StaffNotices returns a channel of staff-reply events (never fed).
func (s *TwilioService) StaffNotices() <-chan models.StaffNotice {
	return s.staffNotices
}
