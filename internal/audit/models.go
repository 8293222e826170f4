// Package audit records changelog and network-origin entries for account
// lifecycle events. Keep the event shapes transport-agnostic so stores and
// sinks can fan out.
package audit

import (
	"context"
	"time"

	"gatehouse/pkg/domain"
)

// Change is one field transition recorded in the changelog.
type Change struct {
	Old string
	New string
}

// ChangeLogEntry is a persisted changelog row.
type ChangeLogEntry struct {
	EntityType string
	EntityID   int64
	Field      string
	Change     Change
	ActorID    domain.UserID
	LoggedAt   time.Time
}

// IPLogEntry records the network origin of an account action.
type IPLogEntry struct {
	UserID      domain.UserID
	IP          string
	ContentType string
	ContentID   int64
	Action      string
	LoggedAt    time.Time
}

// ChangeLogger writes field-transition audit entries.
type ChangeLogger interface {
	LogChanges(ctx context.Context, entityType string, entityID int64, changes map[string]Change, actorID domain.UserID) error
}

// IPLogger writes network-origin audit entries.
type IPLogger interface {
	LogIP(ctx context.Context, userID domain.UserID, ip, contentType string, contentID int64, action string) error
}
