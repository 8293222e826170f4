package spam

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"gatehouse/internal/registration/models"
	"gatehouse/pkg/domain"
	pstrings "gatehouse/pkg/platform/strings"
	"gatehouse/pkg/requestcontext"
)

// EmailDomainProvider flags registrations whose email domain appears on a
// denylist.
type EmailDomainProvider struct {
	domains  map[string]struct{}
	decision domain.SpamDecision
}

// NewEmailDomainProvider builds a denylist provider returning the given
// decision on a hit.
func NewEmailDomainProvider(domains []string, decision domain.SpamDecision) *EmailDomainProvider {
	normalized := pstrings.DedupeAndTrimLower(domains)
	set := make(map[string]struct{}, len(normalized))
	for _, d := range normalized {
		set[d] = struct{}{}
	}
	return &EmailDomainProvider{domains: set, decision: decision}
}

func (p *EmailDomainProvider) Name() string { return "email_domain" }

func (p *EmailDomainProvider) Reason() string {
	return "registrations from this email provider are not accepted"
}

func (p *EmailDomainProvider) Check(_ context.Context, draft *models.DraftUser, _ string) domain.SpamDecision {
	at := strings.LastIndexByte(draft.Email, '@')
	if at < 0 {
		return domain.SpamDecisionAllowed
	}
	if _, hit := p.domains[strings.ToLower(draft.Email[at+1:])]; hit {
		return p.decision
	}
	return domain.SpamDecisionAllowed
}

// UsernameProvider flags usernames containing denied substrings.
type UsernameProvider struct {
	needles  []string
	decision domain.SpamDecision
}

// NewUsernameProvider builds a username substring provider.
func NewUsernameProvider(needles []string, decision domain.SpamDecision) *UsernameProvider {
	return &UsernameProvider{
		needles:  pstrings.DedupeAndTrimLower(needles),
		decision: decision,
	}
}

func (p *UsernameProvider) Name() string { return "username" }

func (p *UsernameProvider) Reason() string {
	return "this username is not allowed"
}

func (p *UsernameProvider) Check(_ context.Context, draft *models.DraftUser, _ string) domain.SpamDecision {
	username := strings.ToLower(draft.Username)
	for _, needle := range p.needles {
		if strings.Contains(username, needle) {
			return p.decision
		}
	}
	return domain.SpamDecisionAllowed
}

// VelocityProvider moderates bursts of registrations from one client IP,
// counting attempts in Redis with a sliding expiry window.
type VelocityProvider struct {
	client redis.Cmdable
	limit  int
	window time.Duration
	logger *slog.Logger
}

// NewVelocityProvider builds a velocity provider. limit is the number of
// attempts per window before moderation kicks in.
func NewVelocityProvider(client redis.Cmdable, limit int, window time.Duration, logger *slog.Logger) *VelocityProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &VelocityProvider{client: client, limit: limit, window: window, logger: logger}
}

func (p *VelocityProvider) Name() string { return "registration_velocity" }

func (p *VelocityProvider) Reason() string {
	return "too many recent registration attempts from your network"
}

// Check increments the per-IP counter and moderates once over the limit.
// Redis trouble degrades to allowed: velocity is a soft signal, unlike the
// fail-closed disposable-email check.
func (p *VelocityProvider) Check(ctx context.Context, _ *models.DraftUser, _ string) domain.SpamDecision {
	ip := requestcontext.ClientIP(ctx)
	if ip == "" || p.client == nil {
		return domain.SpamDecisionAllowed
	}

	key := "spam:reg_velocity:" + ip
	count, err := p.client.Incr(ctx, key).Result()
	if err != nil {
		p.logger.WarnContext(ctx, "velocity counter unavailable", "error", err)
		return domain.SpamDecisionAllowed
	}
	if count == 1 {
		if err := p.client.Expire(ctx, key, p.window).Err(); err != nil {
			p.logger.WarnContext(ctx, "velocity counter expiry failed", "error", err)
		}
	}

	if int(count) > p.limit {
		return domain.SpamDecisionModerated
	}
	return domain.SpamDecisionAllowed
}
