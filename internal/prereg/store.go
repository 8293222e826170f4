// Package prereg associates registration attempts with prior anonymous
// actions (accepting an invite, drafting a reply) so the action can complete
// once the account exists.
package prereg

import (
	"context"
	"sync"

	"gatehouse/pkg/domain"
	domainerrors "gatehouse/pkg/domain-errors"
)

// Action is a recorded anonymous action awaiting an identity.
type Action struct {
	Key     string
	Content string
	UserID  domain.UserID
}

// Store associates pre-registration actions with new identities.
type Store interface {
	// AssociateActionWithUser binds a correlation key to a persisted user.
	// Unknown keys are a no-op: stale keys are common and harmless.
	AssociateActionWithUser(ctx context.Context, key string, userID domain.UserID) error

	// ContentForUser returns the content payload of the action associated
	// with the user, if any.
	ContentForUser(ctx context.Context, userID domain.UserID) (string, error)
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu      sync.Mutex
	actions map[string]*Action
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{actions: map[string]*Action{}}
}

// Record adds a pending action for later association.
func (s *MemoryStore) Record(key, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions[key] = &Action{Key: key, Content: content}
}

// AssociateActionWithUser binds the action with the given key to the user.
func (s *MemoryStore) AssociateActionWithUser(_ context.Context, key string, userID domain.UserID) error {
	if userID.IsNil() {
		return domainerrors.New(domainerrors.CodeBadRequest, "user id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if action, ok := s.actions[key]; ok {
		action.UserID = userID
	}
	return nil
}

// ContentForUser returns the associated action's content, or "".
func (s *MemoryStore) ContentForUser(_ context.Context, userID domain.UserID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, action := range s.actions {
		if action.UserID == userID {
			return action.Content, nil
		}
	}
	return "", nil
}
