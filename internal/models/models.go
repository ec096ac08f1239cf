// Package models defines the core data structures for Anfitrion.
//
// It includes the intent taxonomy, inbound/outbound event types, and the
// JSON envelope shared by the API handlers.
package models

import "errors"

// Intent is a classified purpose label attached to a free-text message.
type Intent string

// Fixed intent taxonomy returned by the classifier. IntentNone means the
// classifier produced no usable label; it is not an error.
const (
	IntentNone            Intent = ""
	IntentMenuInquiry     Intent = "menu_inquiry"
	IntentHoursInquiry    Intent = "hours_inquiry"
	IntentContactInquiry  Intent = "contact_inquiry"
	IntentLocationInquiry Intent = "location_inquiry"
	IntentPaymentInquiry  Intent = "payment_inquiry"
	IntentOrderInquiry    Intent = "order_inquiry"
	IntentOrderEcho       Intent = "order_echo"
	IntentGreeting        Intent = "greeting"
	IntentFarewell        Intent = "farewell"
)

// IsValidIntent checks whether the given label belongs to the fixed taxonomy.
func IsValidIntent(i Intent) bool {
	switch i {
	case IntentMenuInquiry, IntentHoursInquiry, IntentContactInquiry,
		IntentLocationInquiry, IntentPaymentInquiry, IntentOrderInquiry,
		IntentOrderEcho, IntentGreeting, IntentFarewell:
		return true
	default:
		return false
	}
}

// Outcome tags the result of one intent-resolution step so the conversation
// engine never has to compare reply strings to decide whether the customer
// was understood.
type Outcome string

const (
	// OutcomeUnderstood means the classifier returned a mapped intent.
	OutcomeUnderstood Outcome = "understood"
	// OutcomeNotUnderstood means no intent, or an intent outside the taxonomy.
	OutcomeNotUnderstood Outcome = "not_understood"
	// OutcomeError means the classifier call itself failed. Handled
	// identically to OutcomeNotUnderstood but kept distinct for logging.
	OutcomeError Outcome = "error"
)

// Error variables shared across modules for better error handling and testability.
var (
	ErrEmptyRecipient = errors.New("recipient cannot be empty")
	ErrEmptyBody      = errors.New("message body cannot be empty")
	ErrServiceStopped = errors.New("messaging service has been stopped")
)

// Response represents an incoming customer message delivered by the
// messaging transport.
type Response struct {
	From string `json:"from"` // canonical customer identifier
	Body string `json:"body"`
	Time int64  `json:"time"` // unix seconds
}

// StaffNotice represents a message a human staff member sent to a customer
// through the business account. Receiving one suppresses the bot for that
// customer.
type StaffNotice struct {
	To   string `json:"to"` // canonical customer identifier
	Time int64  `json:"time"`
}

// StatusType represents the delivery status of an outbound message.
type StatusType string

const (
	StatusTypeSent      StatusType = "sent"
	StatusTypeDelivered StatusType = "delivered"
	StatusTypeRead      StatusType = "read"
)

// Receipt records the delivery status of an outbound message.
type Receipt struct {
	To     string     `json:"to"`
	Status StatusType `json:"status"`
	Time   int64      `json:"time"`
}

// APIResponse is the uniform JSON envelope returned by the HTTP endpoints.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: "ok", Result: result}
}

// Error creates an error API response with the given message.
func Error(message string) APIResponse {
	return APIResponse{Status: "error", Message: message}
}
