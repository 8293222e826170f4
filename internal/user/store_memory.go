package user

import (
	"context"
	"strings"
	"sync"

	"gatehouse/internal/registration/models"
	"gatehouse/pkg/domain"
	domainerrors "gatehouse/pkg/domain-errors"
	"gatehouse/pkg/requestcontext"
)

// defaultPermissionCombinationID is the permission set assigned to newly
// registered users until group promotion reassigns it.
const defaultPermissionCombinationID domain.PermissionCombinationID = 1

// MemoryStore is an in-memory Store for tests and single-node development.
type MemoryStore struct {
	mu     sync.Mutex
	nextID domain.UserID
	users  map[domain.UserID]*models.PersistedUser
}

// NewMemoryStore creates an empty in-memory user store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID: 1,
		users:  map[domain.UserID]*models.PersistedUser{},
	}
}

// CreateDraft returns an empty draft with store defaults.
func (s *MemoryStore) CreateDraft(_ context.Context) *models.DraftUser {
	return models.NewDraftUser()
}

// Persist writes the draft, enforcing unique username and email.
func (s *MemoryStore) Persist(ctx context.Context, draft *models.DraftUser) (*models.PersistedUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if strings.EqualFold(existing.Username, draft.Username) {
			return nil, domainerrors.New(domainerrors.CodeConflict, "username is already in use")
		}
		if strings.EqualFold(existing.Email, draft.Email) {
			return nil, domainerrors.New(domainerrors.CodeConflict, "email is already in use")
		}
	}

	persisted := &models.PersistedUser{
		ID:                      s.nextID,
		PermissionCombinationID: defaultPermissionCombinationID,
		Username:                draft.Username,
		Email:                   draft.Email,
		Timezone:                draft.Timezone,
		Gravatar:                draft.Gravatar,
		State:                   draft.State,
		RegisteredAt:            requestcontext.Now(ctx),
	}
	s.users[persisted.ID] = persisted
	s.nextID++
	return persisted, nil
}

// ConfirmEmail promotes a user awaiting email confirmation to the valid
// state. Confirming any other state is a conflict.
func (s *MemoryStore) ConfirmEmail(_ context.Context, id domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return domainerrors.New(domainerrors.CodeNotFound, "user not found")
	}
	if u.State != domain.UserStateEmailConfirm {
		return domainerrors.New(domainerrors.CodeConflict, "account is not awaiting email confirmation")
	}
	u.State = domain.UserStateValid
	return nil
}

// Get returns a persisted user by ID, or nil when absent.
func (s *MemoryStore) Get(id domain.UserID) *models.PersistedUser {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[id]
}

// Count returns the number of persisted users.
func (s *MemoryStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}
