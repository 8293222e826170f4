// Package notify dispatches the registration contact: either an
// email-confirmation trigger or the completion actions for an immediately
// valid account. Message rendering is out of scope; a Mailer collaborator
// receives the prepared content.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"gatehouse/internal/prereg"
	"gatehouse/internal/registration/models"
	"gatehouse/pkg/requestcontext"
)

// Dispatcher triggers registration notifications.
type Dispatcher interface {
	// TriggerEmailConfirmation sends the confirmation email for an
	// email_confirm account.
	TriggerEmailConfirmation(ctx context.Context, user *models.PersistedUser) error

	// TriggerCompletionActions runs completion side effects for a valid
	// account and returns the pre-registration content payload, if any.
	TriggerCompletionActions(ctx context.Context, user *models.PersistedUser) (string, error)
}

// Mailer delivers a prepared message. Template rendering lives behind this
// interface.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// EmailDispatcher is the default Dispatcher. Confirmation links carry a
// signed token so the confirmation endpoint can verify them statelessly.
type EmailDispatcher struct {
	mailer     Mailer
	prereg     prereg.Store
	signingKey []byte
	tokenTTL   time.Duration
	baseURL    string
	logger     *slog.Logger
}

// Option configures an EmailDispatcher.
type Option func(*EmailDispatcher)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *EmailDispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithTokenTTL overrides the confirmation token lifetime.
func WithTokenTTL(ttl time.Duration) Option {
	return func(d *EmailDispatcher) {
		if ttl > 0 {
			d.tokenTTL = ttl
		}
	}
}

// NewEmailDispatcher builds the default dispatcher.
func NewEmailDispatcher(mailer Mailer, preregStore prereg.Store, signingKey []byte, baseURL string, opts ...Option) *EmailDispatcher {
	d := &EmailDispatcher{
		mailer:     mailer,
		prereg:     preregStore,
		signingKey: signingKey,
		tokenTTL:   72 * time.Hour,
		baseURL:    baseURL,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type confirmationClaims struct {
	jwt.RegisteredClaims
	Purpose string `json:"purpose"`
}

// TriggerEmailConfirmation issues a signed confirmation token and mails the
// confirmation link.
func (d *EmailDispatcher) TriggerEmailConfirmation(ctx context.Context, user *models.PersistedUser) error {
	now := requestcontext.Now(ctx)
	claims := confirmationClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d.tokenTTL)),
		},
		Purpose: "email_confirm",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(d.signingKey)
	if err != nil {
		return fmt.Errorf("sign confirmation token: %w", err)
	}

	body := fmt.Sprintf(
		"Hi %s,\n\nConfirm your email address to finish creating your account:\n%s/confirm-email?token=%s\n",
		user.Username, d.baseURL, token,
	)
	if err := d.mailer.Send(ctx, user.Email, "Confirm your email address", body); err != nil {
		return fmt.Errorf("send confirmation email: %w", err)
	}

	d.logger.InfoContext(ctx, "confirmation email dispatched", "user_id", user.ID)
	return nil
}

// TriggerCompletionActions sends the welcome message and surfaces any content
// captured before registration.
func (d *EmailDispatcher) TriggerCompletionActions(ctx context.Context, user *models.PersistedUser) (string, error) {
	body := fmt.Sprintf("Hi %s,\n\nYour account is ready. Welcome aboard!\n", user.Username)
	if err := d.mailer.Send(ctx, user.Email, "Welcome!", body); err != nil {
		return "", fmt.Errorf("send welcome email: %w", err)
	}

	content := ""
	if d.prereg != nil {
		var err error
		content, err = d.prereg.ContentForUser(ctx, user.ID)
		if err != nil {
			// The welcome mail already went out; a missing payload is
			// recoverable by the caller.
			d.logger.WarnContext(ctx, "pre-registration content lookup failed", "user_id", user.ID, "error", err)
			return "", nil
		}
	}

	d.logger.InfoContext(ctx, "completion actions dispatched", "user_id", user.ID)
	return content, nil
}

// ParseConfirmationToken validates a confirmation token and returns the user
// ID it was issued for. Used by the confirmation endpoint.
func ParseConfirmationToken(token string, signingKey []byte, now time.Time) (string, error) {
	var claims confirmationClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return signingKey, nil
	}, jwt.WithTimeFunc(func() time.Time { return now }))
	if err != nil {
		return "", fmt.Errorf("parse confirmation token: %w", err)
	}
	if !parsed.Valid || claims.Purpose != "email_confirm" {
		return "", fmt.Errorf("invalid confirmation token")
	}
	return claims.Subject, nil
}
