// Package user provides the user/profile store consumed by the registration
// pipeline. The store owns draft setup defaults and durable persistence; the
// pipeline owns everything in between.
package user

import (
	"context"

	"gatehouse/internal/registration/models"
)

// Store creates draft users and persists validated drafts.
type Store interface {
	// CreateDraft returns an empty draft with storage-level defaults applied.
	CreateDraft(ctx context.Context) *models.DraftUser

	// Persist durably writes a validated draft and returns the committed
	// user with its stable numeric identity and permission-set reference.
	Persist(ctx context.Context, draft *models.DraftUser) (*models.PersistedUser, error)
}
