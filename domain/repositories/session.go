package repositories

import "github.com/satriahrh/formcoach/domain/entities"

// SessionStore keeps the live session of every connected client.
// Every returned session is a snapshot; mutations go through Update.
type SessionStore interface {
	Create(clientID string, opts ...entities.SessionOption) (*entities.Session, error)
	// GetOrCreate returns the existing session or creates one, reporting whether it was created
	GetOrCreate(clientID string, opts ...entities.SessionOption) (*entities.Session, bool)
	Get(clientID string) (*entities.Session, error)
	// Update runs fn under the store lock. fn must not block.
	Update(clientID string, fn func(*entities.Session) error) (*entities.Session, error)
	Remove(clientID string) bool
	List() []*entities.Session
	Len() int
}
