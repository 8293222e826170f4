package models

import (
	"time"

	"gatehouse/pkg/domain"
)

// PersistedUser is the committed, identity-bearing result of a successful
// pipeline run.
type PersistedUser struct {
	ID                      domain.UserID
	PermissionCombinationID domain.PermissionCombinationID

	Username string
	Email    string
	Timezone string
	Gravatar string
	State    domain.UserState

	RegisteredAt time.Time
}

// CustomFieldDefinition describes one custom profile field. The schema and
// rendering of custom fields live outside this service; the pipeline only
// needs the flags that gate assignment during registration.
type CustomFieldDefinition struct {
	ID             string
	UserEditable   bool
	OnRegistration bool
}

// EffectResult is the recorded outcome of one post-commit effect. Effects are
// best-effort enrichment: a failure is collected for observability, never
// rolled back.
type EffectResult struct {
	Name string
	Err  error
}

// Succeeded reports whether the effect completed without error.
func (r EffectResult) Succeeded() bool {
	return r.Err == nil
}
