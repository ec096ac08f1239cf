// Package store provides the session storage backend for Anfitrion.
//
// Sessions live for the process lifetime; the in-memory implementation is
// the only backend. The interface exists so the conversation engine owns no
// map directly and tests can substitute their own store.
package store

import (
	"log/slog"
	"sync"
	"time"

	"github.com/BrasasLabs/Anfitrion/internal/models"
)

// SessionStore is the injectable per-customer session store. Lookups create
// sessions lazily; there is no delete, sessions are never destroyed.
// Implementations must be safe for concurrent use.
type SessionStore interface {
	// GetOrCreate returns the session for customerID, creating one if absent.
	GetOrCreate(customerID string) (*models.CustomerSession, error)

	// Save persists the given session, overwriting any existing one.
	Save(session *models.CustomerSession) error

	// List returns a snapshot of all sessions.
	List() ([]*models.CustomerSession, error)

	// Count returns the number of tracked sessions.
	Count() (int, error)
}

// InMemorySessionStore keeps sessions in a mutex-guarded map. Callers get
// copies, so a session mutated by the engine is only visible after Save.
type InMemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]models.CustomerSession
}

// NewInMemorySessionStore creates an empty in-memory session store.
func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{sessions: make(map[string]models.CustomerSession)}
}

// GetOrCreate returns a copy of the session for customerID, creating a fresh
// one if this is the customer's first contact.
func (s *InMemorySessionStore) GetOrCreate(customerID string) (*models.CustomerSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[customerID]; ok {
		copied := sess
		return &copied, nil
	}

	now := time.Now()
	sess := models.CustomerSession{
		CustomerID: customerID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.sessions[customerID] = sess
	slog.Debug("InMemorySessionStore created session", "customer_id", customerID)

	copied := sess
	return &copied, nil
}

// Save stores a copy of the session keyed by its customer identifier.
func (s *InMemorySessionStore) Save(session *models.CustomerSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session.UpdatedAt = time.Now()
	s.sessions[session.CustomerID] = *session
	return nil
}

// List returns copies of all sessions in unspecified order.
func (s *InMemorySessionStore) List() ([]*models.CustomerSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.CustomerSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		copied := sess
		out = append(out, &copied)
	}
	return out, nil
}

// Count returns the number of tracked sessions.
func (s *InMemorySessionStore) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions), nil
}
