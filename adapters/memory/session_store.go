package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/satriahrh/formcoach/domain"
	"github.com/satriahrh/formcoach/domain/entities"
	"github.com/satriahrh/formcoach/domain/repositories"
)

var _ repositories.SessionStore = (*SessionStore)(nil)

// SessionStore is an in-memory implementation of repositories.SessionStore
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*entities.Session // client_id -> session
	defaults []entities.SessionOption
}

// NewSessionStore creates an empty store. defaults are applied to every new
// session before the per-call options.
func NewSessionStore(defaults ...entities.SessionOption) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*entities.Session),
		defaults: defaults,
	}
}

func (m *SessionStore) newSession(clientID string, opts []entities.SessionOption) *entities.Session {
	all := make([]entities.SessionOption, 0, len(m.defaults)+len(opts))
	all = append(all, m.defaults...)
	all = append(all, opts...)
	return entities.NewSession(clientID, all...)
}

// Create implements SessionStore interface
func (m *SessionStore) Create(clientID string, opts ...entities.SessionOption) (*entities.Session, error) {
	if clientID == "" {
		return nil, fmt.Errorf("client ID cannot be empty: %w", domain.ErrMalformedInput)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[clientID]; exists {
		return nil, domain.ErrSessionExists
	}

	session := m.newSession(clientID, opts)
	m.sessions[clientID] = session
	return session.Clone(), nil
}

// GetOrCreate implements SessionStore interface
func (m *SessionStore) GetOrCreate(clientID string, opts ...entities.SessionOption) (*entities.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if session, exists := m.sessions[clientID]; exists {
		return session.Clone(), false
	}

	session := m.newSession(clientID, opts)
	m.sessions[clientID] = session
	return session.Clone(), true
}

// Get implements SessionStore interface
func (m *SessionStore) Get(clientID string) (*entities.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[clientID]
	if !exists {
		return nil, domain.ErrSessionNotFound
	}
	return session.Clone(), nil
}

// Update implements SessionStore interface.
// fn works on a copy; the stored session is replaced only when fn succeeds.
func (m *SessionStore) Update(clientID string, fn func(*entities.Session) error) (*entities.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, exists := m.sessions[clientID]
	if !exists {
		return nil, domain.ErrSessionNotFound
	}

	working := session.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	m.sessions[clientID] = working
	return working.Clone(), nil
}

// Remove implements SessionStore interface
func (m *SessionStore) Remove(clientID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[clientID]; !exists {
		return false
	}
	delete(m.sessions, clientID)
	return true
}

// List implements SessionStore interface. Sessions are ordered by creation time.
func (m *SessionStore) List() []*entities.Session {
	m.mu.RLock()
	result := make([]*entities.Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		result = append(result, session.Clone())
	}
	m.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// Len implements SessionStore interface
func (m *SessionStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
