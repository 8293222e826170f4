package registration

import (
	"gatehouse/internal/platform/config"
	"gatehouse/pkg/domain"
)

// resolveInitialState picks the state a fresh account enters on commit.
// Confirmation wins over moderation; a caller-requested skip drops straight
// to the moderation check.
func resolveInitialState(cfg config.Registration, skipEmailConfirmation bool) domain.UserState {
	switch {
	case cfg.EmailConfirmation && !skipEmailConfirmation:
		return domain.UserStateEmailConfirm
	case cfg.Moderation:
		return domain.UserStateModerated
	default:
		return domain.UserStateValid
	}
}
