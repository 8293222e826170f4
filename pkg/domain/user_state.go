package domain

import "fmt"

// UserState is the lifecycle state of an account. It is a domain primitive
// that enforces validity at parse time.
type UserState string

const (
	// UserStatePending is the pristine default for a draft that has not been
	// through state resolution yet.
	UserStatePending UserState = "pending"
	// UserStateEmailConfirm means the account must confirm its email address
	// before becoming valid.
	UserStateEmailConfirm UserState = "email_confirm"
	// UserStateModerated means a moderator must approve the account.
	UserStateModerated UserState = "moderated"
	// UserStateValid is a fully usable account.
	UserStateValid UserState = "valid"
	// UserStateRejected is a spam-rejected account. Terminal; no later step
	// may promote it.
	UserStateRejected UserState = "rejected"
)

var knownUserStates = map[UserState]struct{}{
	UserStatePending:      {},
	UserStateEmailConfirm: {},
	UserStateModerated:    {},
	UserStateValid:        {},
	UserStateRejected:     {},
}

// ParseUserState validates and returns a UserState.
func ParseUserState(s string) (UserState, error) {
	state := UserState(s)
	if _, ok := knownUserStates[state]; !ok {
		return "", fmt.Errorf("unknown user state: %s", s)
	}
	return state, nil
}

func (s UserState) String() string {
	return string(s)
}

// IsPristine reports whether state resolution has run yet.
func (s UserState) IsPristine() bool {
	return s == UserStatePending
}
