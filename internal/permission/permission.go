// Package permission exposes read access to permission sets. Permission-set
// storage is an external collaborator; the registration pipeline only asks
// whether a persisted account's set grants a global permission.
package permission

import (
	"context"

	"gatehouse/pkg/domain"
)

// Set answers global permission questions for one permission combination.
type Set interface {
	HasGlobalPermission(category, key string) bool
}

// Provider resolves the permission set referenced by a persisted user.
//
// The avatar post-commit effect deliberately resolves permissions through
// this provider using the persisted account's combination ID rather than any
// ambient session permission: accounts that start in email_confirm or
// moderated states have no usable session yet, and a session check would be a
// false negative.
type Provider interface {
	PermissionSet(ctx context.Context, id domain.PermissionCombinationID) (Set, error)
}
