// Package messaging provides the message delivery abstraction for Anfitrion.
//
// It hides the concrete WhatsApp provider behind a Service interface and
// surfaces inbound customer messages and staff-reply notices as channels
// consumed by the conversation dispatch loop.
package messaging

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/BrasasLabs/Anfitrion/internal/models"
)

// Constants for messaging service configuration
const (
	// DefaultChannelBufferSize defines the default buffer size for event channels
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout defines the default timeout for non-blocking channel operations
	DefaultChannelTimeout = 1 * time.Second
)

// phoneNumberRegex strips everything that is not a digit during recipient
// canonicalization.
var phoneNumberRegex = regexp.MustCompile(`[^0-9]`)

// Service defines a pluggable message delivery abstraction.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient
	// identifier. Returns the canonicalized recipient or an error.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a text message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// SendImage sends an image with a caption to a recipient. Providers that
	// cannot deliver generated images fall back to sending the caption text.
	SendImage(ctx context.Context, to string, image []byte, caption string) error

	// Start begins any background processing (e.g., event polling).
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error

	// Responses returns a channel of incoming customer messages.
	Responses() <-chan models.Response

	// StaffNotices returns a channel of staff-reply events: a human staff
	// member sent a message to a customer through the business account.
	StaffNotices() <-chan models.StaffNotice
}

// canonicalizeRecipient implements the shared recipient validation rule:
// strip non-digits and require at least 6 remaining.
func canonicalizeRecipient(recipient string) (string, error) {
	if recipient == "" {
		return "", models.ErrEmptyRecipient
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < 6 {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum 6 digits required)", canonical)
	}
	return canonical, nil
}
