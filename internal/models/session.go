// Package models defines the per-customer conversation session state.
package models

import "time"

// Period is one of three fixed day segments used to decide greeting freshness.
type Period string

const (
	// PeriodUnset means the customer has never been greeted.
	PeriodUnset     Period = ""
	PeriodMorning   Period = "morning"
	PeriodAfternoon Period = "afternoon"
	PeriodNight     Period = "night"
)

// CustomerSession tracks the conversational state for one customer. Sessions
// are created lazily on first contact and live for the process lifetime.
type CustomerSession struct {
	CustomerID               string    `json:"customer_id"`
	HasReceivedFirstGreeting bool      `json:"has_received_first_greeting"`
	LastGreetedPeriod        Period    `json:"last_greeted_period,omitempty"`
	FailedUnderstandingCount int       `json:"failed_understanding_count"`
	OrderInProgress          bool      `json:"order_in_progress"`
	SuppressedUntil          time.Time `json:"suppressed_until,omitempty"` // zero value means not suppressed
	CreatedAt                time.Time `json:"created_at"`
	UpdatedAt                time.Time `json:"updated_at"`
}

// SuppressedAt reports whether the bot must stay silent toward this customer
// at the given instant. Suppression ends purely by time elapsing; there is
// no explicit reactivation event.
func (s *CustomerSession) SuppressedAt(now time.Time) bool {
	return !s.SuppressedUntil.IsZero() && now.Before(s.SuppressedUntil)
}

// Suppress enters a fixed-duration suppression window starting at now.
// OrderInProgress and the failure counter are left to the caller: the
// triggers differ on whether they reset them.
func (s *CustomerSession) Suppress(now time.Time, window time.Duration) {
	s.SuppressedUntil = now.Add(window)
}

// ClearSuppression removes an elapsed suppression deadline so reactivation
// shows up in the session data rather than lingering as a stale timestamp.
func (s *CustomerSession) ClearSuppression() {
	s.SuppressedUntil = time.Time{}
}
