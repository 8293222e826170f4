package audit

import (
	"context"
	"sync"

	"gatehouse/pkg/domain"
	"gatehouse/pkg/requestcontext"
)

// MemoryStore is an in-memory ChangeLogger and IPLogger for tests and
// single-node development.
type MemoryStore struct {
	mu      sync.Mutex
	changes []ChangeLogEntry
	ips     []IPLogEntry
}

// NewMemoryStore creates an empty in-memory audit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// LogChanges appends one entry per changed field. Map iteration order is not
// stable, so tests assert by field name.
func (s *MemoryStore) LogChanges(ctx context.Context, entityType string, entityID int64, changes map[string]Change, actorID domain.UserID) error {
	now := requestcontext.Now(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	for field, change := range changes {
		s.changes = append(s.changes, ChangeLogEntry{
			EntityType: entityType,
			EntityID:   entityID,
			Field:      field,
			Change:     change,
			ActorID:    actorID,
			LoggedAt:   now,
		})
	}
	return nil
}

// LogIP appends a network-origin entry.
func (s *MemoryStore) LogIP(ctx context.Context, userID domain.UserID, ip, contentType string, contentID int64, action string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ips = append(s.ips, IPLogEntry{
		UserID:      userID,
		IP:          ip,
		ContentType: contentType,
		ContentID:   contentID,
		Action:      action,
		LoggedAt:    requestcontext.Now(ctx),
	})
	return nil
}

// Changes returns a copy of the recorded changelog entries.
func (s *MemoryStore) Changes() []ChangeLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChangeLogEntry, len(s.changes))
	copy(out, s.changes)
	return out
}

// IPs returns a copy of the recorded network-origin entries.
func (s *MemoryStore) IPs() []IPLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]IPLogEntry, len(s.ips))
	copy(out, s.ips)
	return out
}
