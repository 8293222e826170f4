// Package spam scores registration attempts. The scoring heuristics are
// pluggable providers; the pipeline consumes only the final decision.
package spam

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"gatehouse/internal/registration/models"
	"gatehouse/pkg/domain"
)

// Result is the outcome of scoring one attempt: the final decision, a
// user-facing reason when the decision is a denial, and the names of the
// providers that fired. Hits stay with the attempt so a later LogTrigger is
// unaffected by other attempts sharing the checker.
type Result struct {
	Decision domain.SpamDecision
	Reason   string
	Hits     []string
}

// Checker is the collaborator interface the registration pipeline depends on.
type Checker interface {
	// Check scores the draft, optionally correlated with a prior anonymous
	// action.
	Check(ctx context.Context, draft *models.DraftUser, preRegKey string) Result

	// LogTrigger records the providers that fired during the attempt's Check
	// against the persisted user, for moderator review.
	LogTrigger(ctx context.Context, userID domain.UserID, hits []string) error
}

// Provider is one independent scoring heuristic.
type Provider interface {
	Name() string

	// Reason is the user-facing explanation shown when this provider's hit
	// causes a denial.
	Reason() string

	Check(ctx context.Context, draft *models.DraftUser, preRegKey string) domain.SpamDecision
}

// UserChecker combines providers; the final decision is the most severe one
// returned (denied > moderated > allowed).
type UserChecker struct {
	providers []Provider
	logger    *slog.Logger

	mu       sync.Mutex
	triggers map[domain.UserID][]string
}

// Option configures a UserChecker.
type Option func(*UserChecker)

// WithLogger sets the logger used for trigger records.
func WithLogger(logger *slog.Logger) Option {
	return func(c *UserChecker) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewUserChecker builds a checker over the given providers.
func NewUserChecker(providers []Provider, opts ...Option) *UserChecker {
	c := &UserChecker{
		providers: providers,
		logger:    slog.Default(),
		triggers:  map[domain.UserID][]string{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func severity(d domain.SpamDecision) int {
	switch d {
	case domain.SpamDecisionDenied:
		return 2
	case domain.SpamDecisionModerated:
		return 1
	default:
		return 0
	}
}

// Check runs every provider and keeps the most severe decision. Providers all
// run even after a denial so trigger records stay complete. The returned
// reason joins the explanations of every denying provider.
func (c *UserChecker) Check(ctx context.Context, draft *models.DraftUser, preRegKey string) Result {
	final := domain.SpamDecisionAllowed
	var hits []string
	var reasons []string
	for _, p := range c.providers {
		decision := p.Check(ctx, draft, preRegKey)
		if decision != domain.SpamDecisionAllowed {
			hits = append(hits, p.Name())
		}
		if decision == domain.SpamDecisionDenied {
			reasons = append(reasons, p.Reason())
		}
		if severity(decision) > severity(final) {
			final = decision
		}
	}
	return Result{Decision: final, Reason: strings.Join(reasons, "; "), Hits: hits}
}

// LogTrigger associates the attempt's fired providers with the persisted
// user.
func (c *UserChecker) LogTrigger(ctx context.Context, userID domain.UserID, hits []string) error {
	if len(hits) > 0 {
		c.mu.Lock()
		c.triggers[userID] = append(c.triggers[userID], hits...)
		c.mu.Unlock()

		c.logger.InfoContext(ctx, "spam triggers recorded",
			"user_id", userID,
			"providers", hits,
		)
	}
	return nil
}

// Triggers returns the recorded trigger providers for a user.
func (c *UserChecker) Triggers(userID domain.UserID) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.triggers[userID]
}
