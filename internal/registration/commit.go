package registration

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"gatehouse/internal/audit"
	"gatehouse/internal/registration/models"
	"gatehouse/pkg/domain"
	domainerrors "gatehouse/pkg/domain-errors"
	"gatehouse/pkg/requestcontext"
)

// Commit persists the validated draft and runs the post-commit effects in
// order. Persistence failure aborts the registration; effect failures never
// do. Each effect's outcome is recorded and retrievable via EffectResults.
//
// Commit is callable at most once per attempt, even after a persistence
// failure: a failed persist leaves the attempt in an unknown storage state
// and must not be retried through the same pipeline instance.
func (s *Service) Commit(ctx context.Context) (*models.PersistedUser, error) {
	if s.commitAttempted {
		return nil, domainerrors.New(domainerrors.CodeInvariantViolation, "registration already committed")
	}
	switch s.phase {
	case phaseValidated:
	case phaseFailed:
		return nil, domainerrors.New(domainerrors.CodeBadRequest, "registration failed validation")
	default:
		return nil, domainerrors.New(domainerrors.CodeInvariantViolation, "registration not validated")
	}
	s.commitAttempted = true

	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveCommit(start)
		}
	}()

	persisted, err := s.deps.Users.Persist(ctx, s.draft)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "persist registration")
	}
	s.persisted = persisted
	s.phase = phaseCommitted

	if s.metrics != nil {
		s.metrics.RegistrationsCommitted.WithLabelValues(string(persisted.State)).Inc()
	}
	s.logger.InfoContext(ctx, "registration committed",
		"user_id", persisted.ID,
		"username", persisted.Username,
		"state", persisted.State,
	)

	s.runEffects(ctx, persisted)
	return persisted, nil
}

// runEffects executes the post-commit effect chain. Effects are isolated:
// one failing is recorded and the chain continues.
func (s *Service) runEffects(ctx context.Context, persisted *models.PersistedUser) {
	s.runEffect(ctx, "spam_trigger_log", s.effectSpamTriggerLog, persisted)
	s.runEffect(ctx, "ip_log", s.effectIPLog, persisted)
	s.runEffect(ctx, "prereg_association", s.effectPreRegAssociation, persisted)
	s.runEffect(ctx, "consent_changelog", s.effectConsentChangelog, persisted)
	s.runEffect(ctx, "promotions", s.effectPromotions, persisted)
	s.runEffect(ctx, "trophies", s.effectTrophies, persisted)
	s.runEffect(ctx, "dispatch", s.effectDispatch, persisted)
	s.runEffect(ctx, "avatar_import", s.effectAvatarImport, persisted)
}

func (s *Service) runEffect(ctx context.Context, name string, fn func(context.Context, *models.PersistedUser) error, persisted *models.PersistedUser) {
	err := fn(ctx, persisted)
	s.effectResults = append(s.effectResults, models.EffectResult{Name: name, Err: err})
	if err != nil {
		if s.metrics != nil {
			s.metrics.EffectFailures.WithLabelValues(name).Inc()
		}
		s.logger.WarnContext(ctx, "post-commit effect failed",
			"effect", name,
			"user_id", persisted.ID,
			"error", err,
		)
	}
}

func (s *Service) effectSpamTriggerLog(ctx context.Context, persisted *models.PersistedUser) error {
	if s.deps.Spam == nil {
		return nil
	}
	return s.deps.Spam.LogTrigger(ctx, persisted.ID, s.spamHits)
}

func (s *Service) effectIPLog(ctx context.Context, persisted *models.PersistedUser) error {
	if !s.logIP || s.deps.IPLog == nil {
		return nil
	}
	ip := requestcontext.ClientIP(ctx)
	if ip == "" {
		return nil
	}
	return s.deps.IPLog.LogIP(ctx, persisted.ID, ip, "user", int64(persisted.ID), "register")
}

func (s *Service) effectPreRegAssociation(ctx context.Context, persisted *models.PersistedUser) error {
	if s.deps.PreReg == nil || s.preRegActionKey == "" {
		return nil
	}
	return s.deps.PreReg.AssociateActionWithUser(ctx, s.preRegActionKey, persisted.ID)
}

// effectConsentChangelog records the consent choices made on the form so the
// decisions are auditable later: the admin-email choice when the form was
// required to ask, and policy acceptance when policies are configured.
func (s *Service) effectConsentChangelog(ctx context.Context, persisted *models.PersistedUser) error {
	if s.deps.ChangeLog == nil {
		return nil
	}
	changes := map[string]audit.Change{}
	if s.cfg.RequireEmailChoice {
		changes["receive_admin_email"] = audit.Change{
			Old: "",
			New: strconv.FormatBool(s.draft.Option.ReceiveAdminEmail),
		}
	}
	if s.cfg.PrivacyPolicyURL != "" && !s.draft.PrivacyPolicyAccepted.IsZero() {
		changes["privacy_policy_accepted"] = audit.Change{
			Old: "",
			New: s.draft.PrivacyPolicyAccepted.UTC().Format(time.RFC3339),
		}
	}
	if s.cfg.TermsURL != "" && !s.draft.TermsAccepted.IsZero() {
		changes["terms_accepted"] = audit.Change{
			Old: "",
			New: s.draft.TermsAccepted.UTC().Format(time.RFC3339),
		}
	}
	if len(changes) == 0 {
		return nil
	}
	return s.deps.ChangeLog.LogChanges(ctx, "user", int64(persisted.ID), changes, persisted.ID)
}

func (s *Service) effectPromotions(ctx context.Context, persisted *models.PersistedUser) error {
	if s.deps.Achievements == nil {
		return nil
	}
	return s.deps.Achievements.UpdatePromotionsForUser(ctx, persisted)
}

func (s *Service) effectTrophies(ctx context.Context, persisted *models.PersistedUser) error {
	if s.deps.Achievements == nil || !s.cfg.EnableTrophies {
		return nil
	}
	return s.deps.Achievements.UpdateTrophiesForUser(ctx, persisted)
}

// effectDispatch sends the state-appropriate notification. Moderated and
// rejected accounts get nothing: the former wait for a moderator, the latter
// are terminal.
func (s *Service) effectDispatch(ctx context.Context, persisted *models.PersistedUser) error {
	if s.deps.Dispatcher == nil {
		return nil
	}
	switch persisted.State {
	case domain.UserStateEmailConfirm:
		return s.deps.Dispatcher.TriggerEmailConfirmation(ctx, persisted)
	case domain.UserStateValid:
		content, err := s.deps.Dispatcher.TriggerCompletionActions(ctx, persisted)
		if err != nil {
			return err
		}
		s.preRegContent = content
		return nil
	default:
		return nil
	}
}

// effectAvatarImport fetches the requested avatar, gated on the persisted
// account's own permission set rather than any ambient session.
func (s *Service) effectAvatarImport(ctx context.Context, persisted *models.PersistedUser) error {
	if s.avatarURL == "" || s.deps.Avatars == nil {
		return nil
	}
	if s.deps.Permissions == nil {
		return nil
	}
	set, err := s.deps.Permissions.PermissionSet(ctx, persisted.PermissionCombinationID)
	if err != nil {
		return fmt.Errorf("resolve permission set: %w", err)
	}
	if !set.HasGlobalPermission("avatar", "allowed") {
		return nil
	}
	if !s.deps.Avatars.ImportFromURL(ctx, persisted.ID, s.avatarURL) {
		return fmt.Errorf("avatar import from %s failed", s.avatarURL)
	}
	return nil
}
