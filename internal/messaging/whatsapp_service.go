package messaging

import (
	"context"
	"log/slog"
	"time"

	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/BrasasLabs/Anfitrion/internal/models"
	"github.com/BrasasLabs/Anfitrion/internal/whatsapp"
)

// WhatsAppService implements Service using the whatsmeow-based whatsapp client.
type WhatsAppService struct {
	client       whatsapp.Sender
	waClient     *whatsapp.Client // full client for event handling, nil for mocks
	responses    chan models.Response
	staffNotices chan models.StaffNotice
	done         chan struct{}
}

// NewWhatsAppService creates a new WhatsAppService wrapping the given Sender.
func NewWhatsAppService(client whatsapp.Sender) *WhatsAppService {
	service := &WhatsAppService{
		client:       client,
		responses:    make(chan models.Response, DefaultChannelBufferSize),
		staffNotices: make(chan models.StaffNotice, DefaultChannelBufferSize),
		done:         make(chan struct{}),
	}

	// Only a full client can register whatsmeow event handlers.
	if waClient, ok := client.(*whatsapp.Client); ok {
		service.waClient = waClient
		slog.Debug("WhatsAppService created with full client for event handling")
	} else {
		slog.Debug("WhatsAppService created with interface client (likely mock)")
	}

	return service
}

// ValidateAndCanonicalizeRecipient validates and canonicalizes a WhatsApp
// phone number by stripping all non-numeric characters.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizeRecipient(recipient)
}

// Start begins background event processing.
func (s *WhatsAppService) Start(ctx context.Context) error {
	slog.Debug("WhatsAppService Start invoked")
	if s.waClient != nil {
		go s.handleEvents(ctx)
		slog.Debug("WhatsAppService event handler started")
	} else {
		slog.Debug("WhatsAppService no full client available, skipping event handling (likely mock)")
	}
	return nil
}

// Stop stops background processing and closes the event channels.
func (s *WhatsAppService) Stop() error {
	slog.Info("WhatsAppService Stop invoked")
	close(s.done)
	close(s.responses)
	close(s.staffNotices)
	return nil
}

// SendMessage sends a text message to a customer.
func (s *WhatsAppService) SendMessage(ctx context.Context, to string, body string) error {
	slog.Debug("WhatsAppService SendMessage invoked", "to", to, "body_length", len(body))
	if err := s.client.SendMessage(ctx, to, body); err != nil {
		slog.Error("WhatsAppService SendMessage error", "error", err, "to", to)
		return err
	}
	return nil
}

// SendImage sends an image message to a customer.
func (s *WhatsAppService) SendImage(ctx context.Context, to string, image []byte, caption string) error {
	slog.Debug("WhatsAppService SendImage invoked", "to", to, "image_bytes", len(image))
	if err := s.client.SendImage(ctx, to, image, caption); err != nil {
		slog.Error("WhatsAppService SendImage error", "error", err, "to", to)
		return err
	}
	return nil
}

// Responses returns a channel of incoming customer messages.
func (s *WhatsAppService) Responses() <-chan models.Response {
	return s.responses
}

// StaffNotices returns a channel of staff-reply events.
func (s *WhatsAppService) StaffNotices() <-chan models.StaffNotice {
	return s.staffNotices
}

// handleEvents registers the whatsmeow event handler and keeps it running
// until the context is cancelled.
func (s *WhatsAppService) handleEvents(ctx context.Context) {
	if s.waClient == nil || s.waClient.GetClient() == nil {
		slog.Error("WhatsAppService handleEvents: no client available")
		return
	}

	s.waClient.GetClient().AddEventHandler(func(evt interface{}) {
		switch v := evt.(type) {
		case *events.Message:
			s.handleMessageEvent(v)
		case *events.Receipt:
			s.handleReceiptEvent(v)
		default:
			// Other event types are irrelevant here.
		}
	})
	slog.Debug("WhatsAppService event handler registered")

	<-ctx.Done()
	slog.Debug("WhatsAppService handleEvents stopping due to context cancellation")
}

// handleReceiptEvent logs delivery and read receipts for outbound messages.
// Receipts carry no conversational meaning here, they only aid debugging.
func (s *WhatsAppService) handleReceiptEvent(evt *events.Receipt) {
	status := models.StatusTypeSent
	switch evt.Type {
	case types.ReceiptTypeDelivered:
		status = models.StatusTypeDelivered
	case types.ReceiptTypeRead:
		status = models.StatusTypeRead
	default:
		return
	}
	receipt := models.Receipt{
		To:     evt.Chat.User,
		Status: status,
		Time:   evt.Timestamp.Unix(),
	}
	slog.Debug("WhatsAppService receipt", "to", receipt.To, "status", receipt.Status)
}

// handleMessageEvent routes a message event either to the customer response
// channel or, for messages typed by staff on another device of the business
// account, to the staff notice channel.
func (s *WhatsAppService) handleMessageEvent(evt *events.Message) {
	if evt.Message == nil {
		return
	}

	if evt.Info.IsFromMe {
		// Our own outbound sends echo back as self-originated events on
		// some setups; only unknown IDs indicate a human staff reply.
		if s.waClient.WasSentByBot(string(evt.Info.ID)) {
			slog.Debug("WhatsAppService ignoring echo of bot-sent message", "id", evt.Info.ID)
			return
		}
		notice := models.StaffNotice{
			To:   evt.Info.Chat.User,
			Time: evt.Info.Timestamp.Unix(),
		}
		slog.Info("WhatsAppService staff reply detected", "to", notice.To)
		select {
		case s.staffNotices <- notice:
		case <-time.After(DefaultChannelTimeout):
			slog.Warn("WhatsAppService staff notice channel blocked, dropping notice", "to", notice.To)
		}
		return
	}

	// Extract text content; non-text messages are ignored.
	var messageText string
	if evt.Message.Conversation != nil {
		messageText = *evt.Message.Conversation
	} else if evt.Message.ExtendedTextMessage != nil && evt.Message.ExtendedTextMessage.Text != nil {
		messageText = *evt.Message.ExtendedTextMessage.Text
	} else {
		slog.Debug("WhatsAppService ignoring non-text message", "from", evt.Info.Sender.String())
		return
	}

	response := models.Response{
		From: evt.Info.Sender.User,
		Body: messageText,
		Time: evt.Info.Timestamp.Unix(),
	}
	slog.Debug("WhatsAppService processing incoming message", "from", response.From, "body_length", len(response.Body))

	select {
	case s.responses <- response:
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("WhatsAppService responses channel blocked, dropping message", "from", response.From)
	}
}
