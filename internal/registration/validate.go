package registration

import (
	"context"
	"time"

	"gatehouse/pkg/domain"
	domainerrors "gatehouse/pkg/domain-errors"
	pstrings "gatehouse/pkg/platform/strings"
	"gatehouse/pkg/requestcontext"
)

// Validate runs the verification and state-resolution phase. It is callable
// exactly once per attempt; a repeat call is an invariant violation.
//
// The returned bool reports whether the draft may be committed. A false
// return with a nil error means field errors accumulated on the draft; the
// error return is reserved for pipeline misuse.
func (s *Service) Validate(ctx context.Context) (bool, error) {
	if s.phase != phaseCreated {
		return false, domainerrors.New(domainerrors.CodeInvariantViolation, "registration already validated")
	}
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveValidate(start)
		}
	}()

	s.resolveGravatar(ctx)
	s.checkDisposableEmail(ctx)
	s.checkSpam(ctx)
	s.resolveState()
	s.stampPolicyAcceptance(ctx)

	s.draft.PreSave(s.cfg.UsernameMinLength, s.cfg.UsernameMaxLength)
	s.validateExtra(ctx)

	if s.draft.HasErrors() {
		s.phase = phaseFailed
		if s.metrics != nil {
			s.metrics.ValidationFailures.WithLabelValues(s.draft.Errors()[0].Field).Inc()
		}
		return false, nil
	}
	s.phase = phaseValidated
	return true, nil
}

// resolveGravatar derives a gravatar identifier when the feature is on and
// nothing else has claimed the avatar slot. Failures are cosmetic and skipped.
func (s *Service) resolveGravatar(ctx context.Context) {
	if !s.cfg.GravatarEnabled || s.deps.Gravatar == nil {
		return
	}
	if s.draft.HasErrors() || s.draft.Email == "" || s.draft.Gravatar != "" || s.avatarURL != "" {
		return
	}
	hash, err := s.deps.Gravatar(s.draft.Email)
	if err != nil {
		s.logger.DebugContext(ctx, "gravatar resolution skipped", "error", err)
		return
	}
	s.draft.Gravatar = hash
}

// checkDisposableEmail blocks throwaway addresses. The check fails closed: if
// the verdict cannot be obtained the address is refused rather than let
// through unverified.
func (s *Service) checkDisposableEmail(ctx context.Context) {
	if s.deps.Disposable == nil || s.draft.Email == "" {
		return
	}
	disposable, err := s.deps.Disposable.Check(ctx, s.draft.Email)
	if err != nil {
		s.logger.WarnContext(ctx, "disposable email check unavailable", "error", err)
		s.draft.AddError("email", "this email address could not be verified, please use a different one")
		return
	}
	if disposable {
		s.draft.AddError("email", "disposable email addresses are not accepted, please use a different one")
	}
}

// checkSpam scores the attempt. A denial rejects the draft outright but is
// not a field error: the account is still created, in the rejected state, so
// moderators can review what was attempted.
func (s *Service) checkSpam(ctx context.Context) {
	if s.deps.Spam == nil {
		return
	}
	result := s.deps.Spam.Check(ctx, s.draft, s.preRegActionKey)
	s.spamHits = result.Hits
	switch result.Decision {
	case domain.SpamDecisionDenied:
		s.draft.SetRejected(pstrings.WholeWordTrim(result.Reason, rejectionReasonMaxLen))
	case domain.SpamDecisionModerated:
		if s.draft.State.IsPristine() {
			s.draft.State = domain.UserStateModerated
		}
	}
}

// resolveState applies the configured initial state, but only when no earlier
// step (spam denial, moderation) already decided.
func (s *Service) resolveState() {
	if !s.draft.State.IsPristine() {
		return
	}
	s.draft.State = resolveInitialState(s.cfg, s.skipEmailConf)
}

// stampPolicyAcceptance records acceptance of whichever policies are
// configured. Reaching this point implies the user submitted the form that
// presents them.
func (s *Service) stampPolicyAcceptance(ctx context.Context) {
	now := requestcontext.Now(ctx)
	if s.cfg.PrivacyPolicyURL != "" {
		s.draft.PrivacyPolicyAccepted = now
	}
	if s.cfg.TermsURL != "" {
		s.draft.TermsAccepted = now
	}
}

// validateExtra enforces the optional, configuration-driven requirements that
// sit outside the aggregate's own field validation.
func (s *Service) validateExtra(ctx context.Context) {
	if s.cfg.RequireDob {
		switch {
		case !s.draft.Profile.Dob.IsSet():
			s.draft.AddError("dob", "please enter your date of birth")
		case !s.draft.Profile.Dob.Valid():
			s.draft.AddError("dob", "please enter a valid date of birth")
		case s.cfg.MinimumAge > 0 && s.draft.Profile.Dob.Age(requestcontext.Now(ctx)) < s.cfg.MinimumAge:
			s.draft.AddError("dob", "you do not meet the minimum age requirement to register")
		}
	}

	if s.cfg.RequireLocation && s.draft.Profile.Location == "" {
		s.draft.AddError("location", "please enter your location")
	}
}
