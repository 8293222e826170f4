// Package achievement recomputes group-promotion eligibility and trophy
// state. During registration this runs as a best-effort post-commit effect;
// the same service backs later recomputations triggered by activity.
package achievement

import (
	"context"
	"log/slog"
	"sync"

	"gatehouse/internal/registration/models"
	"gatehouse/pkg/domain"
)

// Evaluator recomputes promotion and trophy state for one user.
type Evaluator interface {
	UpdatePromotionsForUser(ctx context.Context, user *models.PersistedUser) error
	UpdateTrophiesForUser(ctx context.Context, user *models.PersistedUser) error
}

// PromotionRule moves matching users into a group.
type PromotionRule struct {
	Title   string
	GroupID int64
	// Matches decides eligibility from the persisted snapshot.
	Matches func(user *models.PersistedUser) bool
}

// TrophyRule awards a trophy to matching users.
type TrophyRule struct {
	Title string
	// Matches decides eligibility from the persisted snapshot.
	Matches func(user *models.PersistedUser) bool
}

// Service evaluates rule sets and records the resulting grants in memory.
// Durable grant storage lives with the wider community platform; registration
// only needs the recomputation entry points.
type Service struct {
	promotionRules []PromotionRule
	trophyRules    []TrophyRule
	logger         *slog.Logger

	mu         sync.Mutex
	promotions map[domain.UserID][]int64
	trophies   map[domain.UserID][]string
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New builds an achievement service over the given rule sets.
func New(promotionRules []PromotionRule, trophyRules []TrophyRule, opts ...Option) *Service {
	s := &Service{
		promotionRules: promotionRules,
		trophyRules:    trophyRules,
		logger:         slog.Default(),
		promotions:     map[domain.UserID][]int64{},
		trophies:       map[domain.UserID][]string{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UpdatePromotionsForUser recomputes group promotions for the user.
func (s *Service) UpdatePromotionsForUser(ctx context.Context, user *models.PersistedUser) error {
	var groups []int64
	for _, rule := range s.promotionRules {
		if rule.Matches(user) {
			groups = append(groups, rule.GroupID)
		}
	}

	s.mu.Lock()
	s.promotions[user.ID] = groups
	s.mu.Unlock()

	if len(groups) > 0 {
		s.logger.InfoContext(ctx, "promotions updated", "user_id", user.ID, "groups", groups)
	}
	return nil
}

// UpdateTrophiesForUser recomputes trophies for the user.
func (s *Service) UpdateTrophiesForUser(ctx context.Context, user *models.PersistedUser) error {
	var awarded []string
	for _, rule := range s.trophyRules {
		if rule.Matches(user) {
			awarded = append(awarded, rule.Title)
		}
	}

	s.mu.Lock()
	s.trophies[user.ID] = awarded
	s.mu.Unlock()

	if len(awarded) > 0 {
		s.logger.InfoContext(ctx, "trophies updated", "user_id", user.ID, "trophies", awarded)
	}
	return nil
}

// PromotionsFor returns the recorded group IDs for a user.
func (s *Service) PromotionsFor(userID domain.UserID) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.promotions[userID]
}

// TrophiesFor returns the recorded trophy titles for a user.
func (s *Service) TrophiesFor(userID domain.UserID) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trophies[userID]
}
