package registration

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"gatehouse/internal/audit"
	"gatehouse/internal/notify"
	"gatehouse/internal/permission"
	"gatehouse/internal/platform/config"
	"gatehouse/internal/prereg"
	"gatehouse/internal/registration/models"
	"gatehouse/internal/user"
	"gatehouse/internal/verifier/gravatar"
	"gatehouse/internal/verifier/spam"
	"gatehouse/pkg/domain"
	domainerrors "gatehouse/pkg/domain-errors"
	"gatehouse/pkg/requestcontext"
)

type fakeDisposable struct {
	disposable bool
	err        error
	calls      int
}

func (f *fakeDisposable) Check(_ context.Context, _ string) (bool, error) {
	f.calls++
	return f.disposable, f.err
}

type fakeDispatcher struct {
	confirmations []domain.UserID
	completions   []domain.UserID
	content       string
	err           error
}

func (f *fakeDispatcher) TriggerEmailConfirmation(_ context.Context, u *models.PersistedUser) error {
	f.confirmations = append(f.confirmations, u.ID)
	return f.err
}

func (f *fakeDispatcher) TriggerCompletionActions(_ context.Context, u *models.PersistedUser) (string, error) {
	f.completions = append(f.completions, u.ID)
	return f.content, f.err
}

var _ notify.Dispatcher = (*fakeDispatcher)(nil)

type fakeAvatars struct {
	imported map[domain.UserID]string
	ok       bool
}

func (f *fakeAvatars) ImportFromURL(_ context.Context, id domain.UserID, url string) bool {
	if f.imported == nil {
		f.imported = map[domain.UserID]string{}
	}
	f.imported[id] = url
	return f.ok
}

type staticSpam struct {
	decision   domain.SpamDecision
	reason     string
	hits       []string
	logged     []domain.UserID
	loggedHits []string
}

func (s *staticSpam) Check(_ context.Context, _ *models.DraftUser, _ string) spam.Result {
	return spam.Result{Decision: s.decision, Reason: s.reason, Hits: s.hits}
}

func (s *staticSpam) LogTrigger(_ context.Context, id domain.UserID, hits []string) error {
	s.logged = append(s.logged, id)
	s.loggedHits = append(s.loggedHits, hits...)
	return nil
}

type ServiceSuite struct {
	suite.Suite

	ctx   context.Context
	now   time.Time
	users *user.MemoryStore
	cfg   config.Registration
}

func (s *ServiceSuite) SetupTest() {
	s.now = time.Date(2026, 9, 1, 10, 30, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.ctx = requestcontext.WithClientIP(s.ctx, "203.0.113.7")
	s.users = user.NewMemoryStore()
	s.cfg = config.Registration{
		EmailConfirmation: true,
		UsernameMinLength: 3,
		UsernameMaxLength: 50,
	}
}

func (s *ServiceSuite) newService(deps Deps, opts ...Option) *Service {
	if deps.Users == nil {
		deps.Users = s.users
	}
	svc, err := New(s.ctx, deps, s.cfg, opts...)
	s.Require().NoError(err)
	return svc
}

func (s *ServiceSuite) standardInput() models.Input {
	return models.NewInput(map[string]string{
		"username":         "newmember",
		"email":            "new@example.com",
		"timezone":         "America/New_York",
		"location":         "New York",
		"password":         "hunter2hunter2",
		"password_confirm": "hunter2hunter2",
	})
}

func (s *ServiceSuite) TestHappyPathEmailConfirm() {
	dispatcher := &fakeDispatcher{}
	svc := s.newService(Deps{Dispatcher: dispatcher})
	svc.SetFromInput(s.ctx, s.standardInput())

	ok, err := svc.Validate(s.ctx)
	s.Require().NoError(err)
	s.Require().True(ok, "errors: %v", svc.Draft().Errors())

	persisted, err := svc.Commit(s.ctx)
	s.Require().NoError(err)
	s.Equal(domain.UserStateEmailConfirm, persisted.State)
	s.Equal("newmember", persisted.Username)
	s.Equal("America/New_York", persisted.Timezone)
	s.Equal([]domain.UserID{persisted.ID}, dispatcher.confirmations)
	s.Empty(dispatcher.completions)

	stored := s.users.Get(persisted.ID)
	s.Require().NotNil(stored)
	s.Equal(s.now, stored.RegisteredAt)
}

func (s *ServiceSuite) TestHappyPathImmediatelyValid() {
	s.cfg.EmailConfirmation = false
	dispatcher := &fakeDispatcher{content: "your saved draft"}
	svc := s.newService(Deps{Dispatcher: dispatcher})
	svc.SetFromInput(s.ctx, s.standardInput())

	ok, err := svc.Validate(s.ctx)
	s.Require().NoError(err)
	s.Require().True(ok)

	persisted, err := svc.Commit(s.ctx)
	s.Require().NoError(err)
	s.Equal(domain.UserStateValid, persisted.State)
	s.Equal([]domain.UserID{persisted.ID}, dispatcher.completions)
	s.Empty(dispatcher.confirmations)
	s.Equal("your saved draft", svc.PreRegContent())
}

func (s *ServiceSuite) TestModerationQueue() {
	s.cfg.EmailConfirmation = false
	s.cfg.Moderation = true
	dispatcher := &fakeDispatcher{}
	svc := s.newService(Deps{Dispatcher: dispatcher})
	svc.SetFromInput(s.ctx, s.standardInput())

	ok, err := svc.Validate(s.ctx)
	s.Require().NoError(err)
	s.Require().True(ok)

	persisted, err := svc.Commit(s.ctx)
	s.Require().NoError(err)
	s.Equal(domain.UserStateModerated, persisted.State)
	s.Empty(dispatcher.confirmations)
	s.Empty(dispatcher.completions)
}

func (s *ServiceSuite) TestSkipEmailConfirmation() {
	svc := s.newService(Deps{})
	svc.SetFromInput(s.ctx, s.standardInput())
	svc.SkipEmailConfirmation(true)

	ok, err := svc.Validate(s.ctx)
	s.Require().NoError(err)
	s.Require().True(ok)
	s.Equal(domain.UserStateValid, svc.Draft().State)
}

func (s *ServiceSuite) TestPasswordMismatchRecordsFieldError() {
	svc := s.newService(Deps{})
	input := models.NewInput(map[string]string{
		"username":         "newmember",
		"email":            "new@example.com",
		"password":         "hunter2hunter2",
		"password_confirm": "different",
	})
	svc.SetFromInput(s.ctx, input)

	s.False(svc.Draft().Auth.IsSet())

	ok, err := svc.Validate(s.ctx)
	s.Require().NoError(err)
	s.False(ok)
	s.Contains(svc.Draft().ErrorsOn("password"), "passwords did not match")

	_, err = svc.Commit(s.ctx)
	s.Require().Error(err)
	s.True(domainerrors.HasCode(err, domainerrors.CodeBadRequest))
	s.Equal(0, s.users.Count())
}

func (s *ServiceSuite) TestValidationFailureAccumulatesAllErrors() {
	s.cfg.RequireDob = true
	s.cfg.RequireLocation = true
	svc := s.newService(Deps{})
	svc.SetFromInput(s.ctx, models.NewInput(map[string]string{
		"username": "ab",
		"email":    "not-an-email",
	}))

	ok, err := svc.Validate(s.ctx)
	s.Require().NoError(err)
	s.False(ok)

	fields := map[string]bool{}
	for _, fe := range svc.Draft().Errors() {
		fields[fe.Field] = true
	}
	s.True(fields["username"])
	s.True(fields["email"])
	s.True(fields["dob"])
	s.True(fields["location"])
}

func (s *ServiceSuite) TestMinimumAge() {
	s.cfg.RequireDob = true
	s.cfg.MinimumAge = 16

	s.Run("under age", func() {
		svc := s.newService(Deps{})
		svc.SetFromInput(s.ctx, s.standardInput())
		svc.SetDob(2, 9, 2012)

		ok, err := svc.Validate(s.ctx)
		s.Require().NoError(err)
		s.False(ok)
		s.NotEmpty(svc.Draft().ErrorsOn("dob"))
	})

	s.Run("old enough", func() {
		svc := s.newService(Deps{})
		svc.SetFromInput(s.ctx, s.standardInput())
		svc.SetDob(1, 9, 2010)

		ok, err := svc.Validate(s.ctx)
		s.Require().NoError(err)
		s.True(ok)
	})
}

func (s *ServiceSuite) TestDisposableEmailRejected() {
	checker := &fakeDisposable{disposable: true}
	svc := s.newService(Deps{Disposable: checker})
	svc.SetFromInput(s.ctx, s.standardInput())

	ok, err := svc.Validate(s.ctx)
	s.Require().NoError(err)
	s.False(ok)
	s.NotEmpty(svc.Draft().ErrorsOn("email"))
	s.Equal(1, checker.calls)
}

func (s *ServiceSuite) TestDisposableCheckFailsClosed() {
	checker := &fakeDisposable{err: context.DeadlineExceeded}
	svc := s.newService(Deps{Disposable: checker})
	svc.SetFromInput(s.ctx, s.standardInput())

	ok, err := svc.Validate(s.ctx)
	s.Require().NoError(err)
	s.False(ok)
	s.NotEmpty(svc.Draft().ErrorsOn("email"))
}

func (s *ServiceSuite) TestDisposableCheckSkippedWithoutEmail() {
	checker := &fakeDisposable{disposable: true}
	svc := s.newService(Deps{Disposable: checker})
	svc.SetFromInput(s.ctx, models.NewInput(map[string]string{
		"username": "newmember",
	}))

	_, err := svc.Validate(s.ctx)
	s.Require().NoError(err)
	s.Equal(0, checker.calls)
}

func (s *ServiceSuite) TestSpamDeniedPersistsRejectedAccount() {
	longReason := strings.Repeat("suspicious pattern detected here ", 12)
	checker := &staticSpam{decision: domain.SpamDecisionDenied, reason: longReason, hits: []string{"email_domain"}}
	dispatcher := &fakeDispatcher{}
	svc := s.newService(Deps{Spam: checker, Dispatcher: dispatcher})
	svc.SetFromInput(s.ctx, s.standardInput())

	ok, err := svc.Validate(s.ctx)
	s.Require().NoError(err)
	s.True(ok, "a spam denial is not a field error")

	persisted, err := svc.Commit(s.ctx)
	s.Require().NoError(err)
	s.Equal(domain.UserStateRejected, persisted.State)
	s.LessOrEqual(len([]rune(svc.Draft().RejectionReason)), 200)
	s.True(strings.HasSuffix(svc.Draft().RejectionReason, "…"))

	s.Empty(dispatcher.confirmations)
	s.Empty(dispatcher.completions)
	s.Equal([]domain.UserID{persisted.ID}, checker.logged)
	s.Equal([]string{"email_domain"}, checker.loggedHits)
}

func (s *ServiceSuite) TestSpamModeratedOverridesConfiguredState() {
	checker := &staticSpam{decision: domain.SpamDecisionModerated}
	svc := s.newService(Deps{Spam: checker})
	svc.SetFromInput(s.ctx, s.standardInput())

	ok, err := svc.Validate(s.ctx)
	s.Require().NoError(err)
	s.Require().True(ok)
	s.Equal(domain.UserStateModerated, svc.Draft().State)
}

func (s *ServiceSuite) TestSpamDenialDominatesModeration() {
	denying := spam.NewUserChecker([]spam.Provider{
		spam.NewEmailDomainProvider([]string{"example.com"}, domain.SpamDecisionDenied),
		spam.NewUsernameProvider([]string{"member"}, domain.SpamDecisionModerated),
	})
	svc := s.newService(Deps{Spam: denying})
	svc.SetFromInput(s.ctx, s.standardInput())

	ok, err := svc.Validate(s.ctx)
	s.Require().NoError(err)
	s.Require().True(ok)
	s.Equal(domain.UserStateRejected, svc.Draft().State)
	s.NotEmpty(svc.Draft().RejectionReason)
}

func (s *ServiceSuite) TestSharedCheckerInterleavedAttempts() {
	checker := spam.NewUserChecker([]spam.Provider{
		spam.NewEmailDomainProvider([]string{"trashmail.io"}, domain.SpamDecisionDenied),
	})

	flagged := s.newService(Deps{Spam: checker})
	flagged.SetFromInput(s.ctx, models.NewInput(map[string]string{
		"username": "firstmember",
		"email":    "first@trashmail.io",
	}))
	ok, err := flagged.Validate(s.ctx)
	s.Require().NoError(err)
	s.Require().True(ok)

	// A clean attempt scores on the shared checker before the flagged one
	// commits; the flagged attempt's trigger records must survive it.
	clean := s.newService(Deps{Spam: checker})
	clean.SetFromInput(s.ctx, models.NewInput(map[string]string{
		"username": "secondmember",
		"email":    "second@example.com",
	}))
	ok, err = clean.Validate(s.ctx)
	s.Require().NoError(err)
	s.Require().True(ok)

	flaggedUser, err := flagged.Commit(s.ctx)
	s.Require().NoError(err)
	cleanUser, err := clean.Commit(s.ctx)
	s.Require().NoError(err)

	s.Equal([]string{"email_domain"}, checker.Triggers(flaggedUser.ID))
	s.Empty(checker.Triggers(cleanUser.ID))
}

func (s *ServiceSuite) TestGravatarResolution() {
	s.cfg.GravatarEnabled = true

	s.Run("set when enabled", func() {
		svc := s.newService(Deps{Gravatar: gravatar.Resolve})
		svc.SetFromInput(s.ctx, s.standardInput())

		_, err := svc.Validate(s.ctx)
		s.Require().NoError(err)
		s.Len(svc.Draft().Gravatar, 32)
	})

	s.Run("skipped when explicit avatar requested", func() {
		svc := s.newService(Deps{Gravatar: gravatar.Resolve})
		svc.SetFromInput(s.ctx, s.standardInput())
		svc.SetAvatarURL("https://cdn.example.com/pic.png")

		_, err := svc.Validate(s.ctx)
		s.Require().NoError(err)
		s.Empty(svc.Draft().Gravatar)
	})

	s.Run("skipped when the draft already has errors", func() {
		svc := s.newService(Deps{Gravatar: gravatar.Resolve})
		svc.SetFromInput(s.ctx, s.standardInput())
		svc.SetPassword(s.ctx, "hunter2hunter2", "mismatched", true)

		ok, err := svc.Validate(s.ctx)
		s.Require().NoError(err)
		s.False(ok)
		s.Empty(svc.Draft().Gravatar)
	})
}

func (s *ServiceSuite) TestDoubleValidateRejected() {
	svc := s.newService(Deps{})
	svc.SetFromInput(s.ctx, s.standardInput())

	_, err := svc.Validate(s.ctx)
	s.Require().NoError(err)

	_, err = svc.Validate(s.ctx)
	s.Require().Error(err)
	s.True(domainerrors.HasCode(err, domainerrors.CodeInvariantViolation))
}

func (s *ServiceSuite) TestDoubleCommitRejected() {
	svc := s.newService(Deps{})
	svc.SetFromInput(s.ctx, s.standardInput())

	ok, err := svc.Validate(s.ctx)
	s.Require().NoError(err)
	s.Require().True(ok)

	_, err = svc.Commit(s.ctx)
	s.Require().NoError(err)

	_, err = svc.Commit(s.ctx)
	s.Require().Error(err)
	s.True(domainerrors.HasCode(err, domainerrors.CodeInvariantViolation))
	s.Equal(1, s.users.Count())
}

func (s *ServiceSuite) TestCommitWithoutValidateRejected() {
	svc := s.newService(Deps{})
	svc.SetFromInput(s.ctx, s.standardInput())

	_, err := svc.Commit(s.ctx)
	s.Require().Error(err)
	s.True(domainerrors.HasCode(err, domainerrors.CodeInvariantViolation))
}

func (s *ServiceSuite) TestCommitRemainsBlockedAfterPersistFailure() {
	svc := s.newService(Deps{})
	svc.SetFromInput(s.ctx, s.standardInput())

	// Occupy the username so persistence conflicts.
	taken := s.newService(Deps{})
	taken.SetFromInput(s.ctx, s.standardInput())
	ok, err := taken.Validate(s.ctx)
	s.Require().NoError(err)
	s.Require().True(ok)
	_, err = taken.Commit(s.ctx)
	s.Require().NoError(err)

	ok, err = svc.Validate(s.ctx)
	s.Require().NoError(err)
	s.Require().True(ok)

	_, err = svc.Commit(s.ctx)
	s.Require().Error(err)

	_, err = svc.Commit(s.ctx)
	s.Require().Error(err)
	s.True(domainerrors.HasCode(err, domainerrors.CodeInvariantViolation))
}

func (s *ServiceSuite) TestEffectOrderingAndIsolation() {
	s.cfg.RequireEmailChoice = true
	s.cfg.EnableTrophies = true
	auditStore := audit.NewMemoryStore()
	dispatcher := &fakeDispatcher{err: context.DeadlineExceeded}
	svc := s.newService(Deps{
		ChangeLog:  auditStore,
		IPLog:      auditStore,
		Dispatcher: dispatcher,
	})
	svc.SetFromInput(s.ctx, s.standardInput())
	svc.SetReceiveAdminEmail(true)

	ok, err := svc.Validate(s.ctx)
	s.Require().NoError(err)
	s.Require().True(ok)

	persisted, err := svc.Commit(s.ctx)
	s.Require().NoError(err, "effect failures never fail the registration")

	var names []string
	var failed []string
	for _, r := range svc.EffectResults() {
		names = append(names, r.Name)
		if !r.Succeeded() {
			failed = append(failed, r.Name)
		}
	}
	s.Equal([]string{
		"spam_trigger_log",
		"ip_log",
		"prereg_association",
		"consent_changelog",
		"promotions",
		"trophies",
		"dispatch",
		"avatar_import",
	}, names)
	s.Equal([]string{"dispatch"}, failed)

	ips := auditStore.IPs()
	s.Require().Len(ips, 1)
	s.Equal("203.0.113.7", ips[0].IP)
	s.Equal(persisted.ID, ips[0].UserID)
	s.Equal("register", ips[0].Action)

	changes := auditStore.Changes()
	s.Require().Len(changes, 1)
	s.Equal("receive_admin_email", changes[0].Field)
	s.Equal("true", changes[0].Change.New)
}

func (s *ServiceSuite) TestConsentChangelogIncludesPolicyStamps() {
	s.cfg.PrivacyPolicyURL = "https://example.com/privacy"
	s.cfg.TermsURL = "https://example.com/terms"
	auditStore := audit.NewMemoryStore()
	svc := s.newService(Deps{ChangeLog: auditStore})
	svc.SetFromInput(s.ctx, s.standardInput())

	ok, err := svc.Validate(s.ctx)
	s.Require().NoError(err)
	s.Require().True(ok)
	s.Equal(s.now, svc.Draft().PrivacyPolicyAccepted)
	s.Equal(s.now, svc.Draft().TermsAccepted)

	_, err = svc.Commit(s.ctx)
	s.Require().NoError(err)

	fields := map[string]string{}
	for _, c := range auditStore.Changes() {
		fields[c.Field] = c.Change.New
	}
	s.Equal(s.now.Format(time.RFC3339), fields["privacy_policy_accepted"])
	s.Equal(s.now.Format(time.RFC3339), fields["terms_accepted"])
}

func (s *ServiceSuite) TestIPLogDisabled() {
	auditStore := audit.NewMemoryStore()
	svc := s.newService(Deps{IPLog: auditStore})
	svc.SetFromInput(s.ctx, s.standardInput())
	svc.SetLogIP(false)

	ok, err := svc.Validate(s.ctx)
	s.Require().NoError(err)
	s.Require().True(ok)
	_, err = svc.Commit(s.ctx)
	s.Require().NoError(err)
	s.Empty(auditStore.IPs())
}

func (s *ServiceSuite) TestPreRegAssociation() {
	preregStore := prereg.NewMemoryStore()
	preregStore.Record("abandoned-post", "draft thread content")
	mailer := &captureMailer{}
	dispatcher := notify.NewEmailDispatcher(mailer, preregStore, []byte("k"), "https://forum.example.com")

	s.cfg.EmailConfirmation = false
	svc := s.newService(Deps{PreReg: preregStore, Dispatcher: dispatcher})
	svc.SetFromInput(s.ctx, s.standardInput())
	svc.SetPreRegActionKey("abandoned-post")

	ok, err := svc.Validate(s.ctx)
	s.Require().NoError(err)
	s.Require().True(ok)

	_, err = svc.Commit(s.ctx)
	s.Require().NoError(err)
	s.Equal("draft thread content", svc.PreRegContent())
}

func (s *ServiceSuite) TestAvatarPermissionGate() {
	provider := permission.NewMemoryProvider()

	s.Run("denied without permission", func() {
		avatars := &fakeAvatars{ok: true}
		svc := s.newService(Deps{Permissions: provider, Avatars: avatars})
		svc.SetFromInput(s.ctx, s.standardInput())
		svc.SetAvatarURL("https://cdn.example.com/pic.png")

		ok, err := svc.Validate(s.ctx)
		s.Require().NoError(err)
		s.Require().True(ok)
		_, err = svc.Commit(s.ctx)
		s.Require().NoError(err)
		s.Empty(avatars.imported)
	})

	s.Run("imported with permission", func() {
		provider.Grant(1, "avatar", "allowed")
		avatars := &fakeAvatars{ok: true}
		svc := s.newService(Deps{Permissions: provider, Avatars: avatars})
		input := s.standardInput()
		input.Fields["username"] = "secondmember"
		input.Fields["email"] = "second@example.com"
		svc.SetFromInput(s.ctx, input)
		svc.SetAvatarURL("https://cdn.example.com/pic.png")

		ok, err := svc.Validate(s.ctx)
		s.Require().NoError(err)
		s.Require().True(ok)
		persisted, err := svc.Commit(s.ctx)
		s.Require().NoError(err)
		s.Equal("https://cdn.example.com/pic.png", avatars.imported[persisted.ID])
	})
}

func (s *ServiceSuite) TestCustomFieldsFilteredBySchema() {
	defs := []models.CustomFieldDefinition{
		{ID: "occupation", UserEditable: true, OnRegistration: true},
		{ID: "staff_note", UserEditable: false, OnRegistration: true},
		{ID: "signature", UserEditable: true, OnRegistration: false},
	}
	svc := s.newService(Deps{}, WithCustomFieldDefinitions(defs))
	svc.SetCustomFields(map[string]string{
		"occupation": "engineer",
		"staff_note": "sneaky",
		"signature":  "hi",
		"unknown":    "x",
	})

	s.Equal(map[string]string{"occupation": "engineer"}, svc.Draft().Profile.CustomFields)
}

func (s *ServiceSuite) TestMappedFieldsAbsentKeysLeaveDefaults() {
	svc := s.newService(Deps{})
	svc.SetFromInput(s.ctx, models.NewInput(map[string]string{
		"username": "newmember",
		"email":    "new@example.com",
	}))

	s.Equal("Europe/London", svc.Draft().Timezone)
	s.Empty(svc.Draft().Profile.Location)
}

func (s *ServiceSuite) TestEmailChoiceAppliesBothPreferences() {
	svc := s.newService(Deps{})
	input := s.standardInput()
	input.Fields["email_choice"] = "1"
	svc.SetFromInput(s.ctx, input)

	s.True(svc.Draft().Option.ReceiveAdminEmail)
	s.Equal(s.now, svc.Draft().Option.LastSummaryEmail)
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

type captureMailer struct {
	sent []string
}

func (m *captureMailer) Send(_ context.Context, to, subject, _ string) error {
	m.sent = append(m.sent, to+": "+subject)
	return nil
}
