// Package models defines the registration aggregates: the raw input, the
// in-progress draft user, and the committed result.
package models

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"gatehouse/pkg/domain"
)

// FieldError is a field-scoped validation error. These are data, not error
// values: they accumulate on the draft and validation failure is communicated
// by the set being non-empty.
type FieldError struct {
	Field   string
	Message string
}

// AuthScheme identifies how a draft's credential is stored.
type AuthScheme string

const (
	// AuthSchemeNone marks an account with no local credential, e.g. for
	// externally authenticated flows.
	AuthSchemeNone AuthScheme = "none"
	// AuthSchemeBcrypt marks a bcrypt password hash.
	AuthSchemeBcrypt AuthScheme = "bcrypt"
)

// Auth is the draft's credential.
type Auth struct {
	Scheme AuthScheme
	Hash   []byte
}

// IsSet reports whether a credential decision has been made.
func (a Auth) IsSet() bool {
	return a.Scheme != ""
}

// Dob is a recorded date of birth. The zero value means "not provided".
type Dob struct {
	Day   int
	Month int
	Year  int
}

// IsSet reports whether all date-of-birth parts were provided.
func (d Dob) IsSet() bool {
	return d.Day != 0 && d.Month != 0 && d.Year != 0
}

// Valid reports whether the parts form a real calendar date in a sane year
// range.
func (d Dob) Valid() bool {
	if !d.IsSet() {
		return false
	}
	if d.Year < 1900 {
		return false
	}
	t := time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC)
	return t.Year() == d.Year && int(t.Month()) == d.Month && t.Day() == d.Day
}

// Age returns the age in whole years at the given time, or 0 when the date of
// birth is unset or invalid.
func (d Dob) Age(now time.Time) int {
	if !d.Valid() {
		return 0
	}
	age := now.Year() - d.Year
	birthdayThisYear := time.Date(now.Year(), time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC)
	if now.Before(birthdayThisYear) {
		age--
	}
	if age < 0 {
		return 0
	}
	return age
}

// Profile is the nested profile entity of a draft user.
type Profile struct {
	Location     string
	Dob          Dob
	CustomFields map[string]string
	PasswordDate time.Time
}

// Option holds communication preferences.
type Option struct {
	ReceiveAdminEmail bool
	// LastSummaryEmail is the activity-summary opt-in stamp; zero means
	// opted out.
	LastSummaryEmail time.Time
}

// DraftUser is the mutable aggregate built by one registration attempt. It is
// owned exclusively by a single pipeline instance and never shared across
// concurrent attempts.
type DraftUser struct {
	Username string
	Email    string
	Timezone string
	Gravatar string

	State           domain.UserState
	RejectionReason string

	Profile Profile
	Auth    Auth
	Option  Option

	PrivacyPolicyAccepted time.Time
	TermsAccepted         time.Time

	errors []FieldError
}

// NewDraftUser returns a draft with pipeline defaults applied.
func NewDraftUser() *DraftUser {
	return &DraftUser{
		Timezone: "Europe/London",
		State:    domain.UserStatePending,
		Profile: Profile{
			CustomFields: map[string]string{},
		},
	}
}

// AddError records a field-scoped validation error.
func (u *DraftUser) AddError(field, message string) {
	u.errors = append(u.errors, FieldError{Field: field, Message: message})
}

// Errors returns the accumulated validation errors in insertion order.
func (u *DraftUser) Errors() []FieldError {
	return u.errors
}

// HasErrors reports whether the draft must be refused for commit.
func (u *DraftUser) HasErrors() bool {
	return len(u.errors) > 0
}

// ErrorsOn returns the messages recorded against one field.
func (u *DraftUser) ErrorsOn(field string) []string {
	var msgs []string
	for _, e := range u.errors {
		if e.Field == field {
			msgs = append(msgs, e.Message)
		}
	}
	return msgs
}

// SetRejected forces the terminal rejected state with a user-facing reason.
// No later pipeline step may promote a rejected draft.
func (u *DraftUser) SetRejected(reason string) {
	u.State = domain.UserStateRejected
	u.RejectionReason = reason
}

// PreSave runs the aggregate's field-level validators, accumulating errors.
// usernameMin/usernameMax bound the username length in runes.
func (u *DraftUser) PreSave(usernameMin, usernameMax int) {
	username := strings.TrimSpace(u.Username)
	switch {
	case username == "":
		u.AddError("username", "please enter a username")
	case len([]rune(username)) < usernameMin:
		u.AddError("username", fmt.Sprintf("username must be at least %d characters", usernameMin))
	case len([]rune(username)) > usernameMax:
		u.AddError("username", fmt.Sprintf("username must be at most %d characters", usernameMax))
	}

	if u.Email == "" {
		u.AddError("email", "please enter a valid email address")
	} else if _, err := mail.ParseAddress(u.Email); err != nil {
		u.AddError("email", "please enter a valid email address")
	}

	if u.Timezone != "" {
		if _, err := time.LoadLocation(u.Timezone); err != nil {
			u.AddError("timezone", "please select a valid time zone")
		}
	}
}
