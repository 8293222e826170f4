// Package registration implements the account-creation pipeline: a
// two-phase validate-then-commit workflow that builds a draft user from
// untrusted input, runs verification and state resolution, and on commit
// persists the account and runs best-effort post-commit effects.
//
// A Service instance handles exactly one registration attempt. It owns its
// draft exclusively; nothing is shared across concurrent attempts.
package registration

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"gatehouse/internal/audit"
	"gatehouse/internal/notify"
	"gatehouse/internal/permission"
	"gatehouse/internal/platform/config"
	"gatehouse/internal/prereg"
	"gatehouse/internal/registration/metrics"
	"gatehouse/internal/registration/models"
	"gatehouse/internal/user"
	"gatehouse/internal/verifier/spam"
	"gatehouse/pkg/domain"
	domainerrors "gatehouse/pkg/domain-errors"
	"gatehouse/pkg/requestcontext"
)

// rejectionReasonMaxLen bounds the user-facing spam rejection reason.
const rejectionReasonMaxLen = 200

type phase int

const (
	phaseCreated phase = iota
	phaseFailed
	phaseValidated
	phaseCommitted
)

// EmailChecker verifies whether an address is disposable. A non-nil error is
// an inconclusive check and is treated as a block (fail-closed).
type EmailChecker interface {
	Check(ctx context.Context, email string) (bool, error)
}

// AvatarImporter fetches and stores a remote avatar for a persisted user.
// False means the import failed non-fatally.
type AvatarImporter interface {
	ImportFromURL(ctx context.Context, userID domain.UserID, url string) bool
}

// GravatarResolver derives a gravatar identifier from an email address.
type GravatarResolver func(email string) (string, error)

// Deps are the pipeline's collaborators. Users is required; every other
// collaborator may be nil, in which case the corresponding step is skipped.
type Deps struct {
	Users        user.Store
	Spam         spam.Checker
	Disposable   EmailChecker
	Permissions  permission.Provider
	Dispatcher   notify.Dispatcher
	ChangeLog    audit.ChangeLogger
	IPLog        audit.IPLogger
	PreReg       prereg.Store
	Achievements achievementEvaluator
	Avatars      AvatarImporter
	Gravatar     GravatarResolver
}

// achievementEvaluator mirrors achievement.Evaluator without importing the
// package into every test that doesn't care about it.
type achievementEvaluator interface {
	UpdatePromotionsForUser(ctx context.Context, user *models.PersistedUser) error
	UpdateTrophiesForUser(ctx context.Context, user *models.PersistedUser) error
}

// Service is one registration attempt.
type Service struct {
	deps Deps
	cfg  config.Registration

	logger  *slog.Logger
	metrics *metrics.Metrics

	customFields []models.CustomFieldDefinition

	draft     *models.DraftUser
	persisted *models.PersistedUser

	phase           phase
	validated       bool
	commitAttempted bool

	avatarURL       string
	preRegActionKey string
	preRegContent   string
	skipEmailConf   bool
	logIP           bool
	spamHits        []string

	effectResults []models.EffectResult
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger for the attempt.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithCustomFieldDefinitions installs the custom-field schema visible to this
// attempt. Only fields flagged user-editable and registration-visible accept
// values.
func WithCustomFieldDefinitions(defs []models.CustomFieldDefinition) Option {
	return func(s *Service) {
		s.customFields = defs
	}
}

// New creates a pipeline for a single registration attempt.
func New(ctx context.Context, deps Deps, cfg config.Registration, opts ...Option) (*Service, error) {
	if deps.Users == nil {
		return nil, domainerrors.New(domainerrors.CodeInternal, "user store is required")
	}
	s := &Service{
		deps:   deps,
		cfg:    cfg,
		logger: slog.Default(),
		logIP:  true,
		draft:  deps.Users.CreateDraft(ctx),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Draft exposes the in-progress aggregate, primarily for inspection between
// setters and Validate.
func (s *Service) Draft() *models.DraftUser {
	return s.draft
}

// Persisted returns the committed user, or nil before a successful commit.
func (s *Service) Persisted() *models.PersistedUser {
	return s.persisted
}

// EffectResults returns per-effect outcomes recorded during Commit.
func (s *Service) EffectResults() []models.EffectResult {
	return s.effectResults
}

// PreRegContent returns the content payload surfaced by the completion
// dispatcher, if any.
func (s *Service) PreRegContent() string {
	return s.preRegContent
}

// SetPassword hashes and records the credential. With confirmation required,
// a mismatch records a field error and leaves the credential untouched.
func (s *Service) SetPassword(ctx context.Context, password, confirm string, requireConfirmation bool) bool {
	if requireConfirmation && password != confirm {
		s.draft.AddError("password", "passwords did not match")
		return false
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		s.draft.AddError("password", "password could not be accepted")
		return false
	}

	s.draft.Auth = models.Auth{Scheme: models.AuthSchemeBcrypt, Hash: hash}
	s.draft.Profile.PasswordDate = requestcontext.Now(ctx)
	return true
}

// SetNoPassword marks the account as having no local credential, for
// externally authenticated flows.
func (s *Service) SetNoPassword(ctx context.Context) {
	s.draft.Auth = models.Auth{Scheme: models.AuthSchemeNone}
	s.draft.Profile.PasswordDate = requestcontext.Now(ctx)
}

// SetDob records the date of birth, delegating validity to the profile.
func (s *Service) SetDob(day, month, year int) bool {
	dob := models.Dob{Day: day, Month: month, Year: year}
	if !dob.Valid() {
		return false
	}
	s.draft.Profile.Dob = dob
	return true
}

// SetCustomFields bulk-assigns values for the custom fields shown during
// registration. Keys outside the registration-visible, user-editable set are
// ignored, so callers cannot write fields the form never offered.
func (s *Service) SetCustomFields(values map[string]string) {
	if len(values) == 0 {
		return
	}
	for _, def := range s.customFields {
		if !def.UserEditable || !def.OnRegistration {
			continue
		}
		if v, ok := values[def.ID]; ok {
			s.draft.Profile.CustomFields[def.ID] = v
		}
	}
}

// SetReceiveAdminEmail records the admin-email opt-in choice.
func (s *Service) SetReceiveAdminEmail(choice bool) {
	s.draft.Option.ReceiveAdminEmail = choice
}

// SetReceiveActivitySummary opts the account in or out of activity-summary
// emails.
func (s *Service) SetReceiveActivitySummary(ctx context.Context, choice bool) {
	if choice {
		s.draft.Option.LastSummaryEmail = requestcontext.Now(ctx)
	} else {
		s.draft.Option.LastSummaryEmail = time.Time{}
	}
}

// SetEmail overrides the draft's email address.
func (s *Service) SetEmail(email string) {
	s.draft.Email = email
}

// SetAvatarURL requests an avatar import after commit.
func (s *Service) SetAvatarURL(url string) {
	s.avatarURL = url
}

// SetPreRegActionKey correlates this attempt with a prior anonymous action.
func (s *Service) SetPreRegActionKey(key string) {
	s.preRegActionKey = key
}

// SkipEmailConfirmation bypasses the email-confirmation state, e.g. for
// externally verified addresses.
func (s *Service) SkipEmailConfirmation(skip bool) {
	s.skipEmailConf = skip
}

// SetLogIP controls whether the network origin is recorded after commit.
func (s *Service) SetLogIP(log bool) {
	s.logIP = log
}

// SetFromInput applies the standard registration form fields: the mapped
// attribute table, password, date of birth, custom fields, and the
// communication-preference choice.
func (s *Service) SetFromInput(ctx context.Context, input models.Input) {
	s.applyMapped(input)

	if password, ok := input.Get("password"); ok {
		confirm, hasConfirm := input.Get("password_confirm")
		s.SetPassword(ctx, password, confirm, hasConfirm)
	}

	if input.Has("dob_day") && input.Has("dob_month") && input.Has("dob_year") {
		s.SetDob(input.Int("dob_day"), input.Int("dob_month"), input.Int("dob_year"))
	}

	if len(input.CustomFields) > 0 {
		s.SetCustomFields(input.CustomFields)
	}

	if input.Has("email_choice") {
		choice := input.Bool("email_choice")
		s.SetReceiveAdminEmail(choice)
		s.SetReceiveActivitySummary(ctx, choice)
	}
}
