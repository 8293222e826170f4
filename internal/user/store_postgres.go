package user

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"gatehouse/internal/registration/models"
	"gatehouse/pkg/domain"
	domainerrors "gatehouse/pkg/domain-errors"
	"gatehouse/pkg/requestcontext"
)

// PostgresStore persists users in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore constructs a PostgreSQL-backed user store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// CreateDraft returns an empty draft with store defaults.
func (s *PostgresStore) CreateDraft(_ context.Context) *models.DraftUser {
	return models.NewDraftUser()
}

// Persist inserts the draft and its nested profile/auth/option rows in one
// transaction. Unique violations surface as conflicts rather than internal
// errors so callers can distinguish duplicate registrations from outages.
func (s *PostgresStore) Persist(ctx context.Context, draft *models.DraftUser) (*models.PersistedUser, error) {
	now := requestcontext.Now(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin persist: %w", err)
	}
	defer tx.Rollback()

	var (
		userID        int64
		combinationID int64
	)
	err = tx.QueryRowContext(ctx, `
		INSERT INTO users
			(username, email, timezone, gravatar, user_state, rejection_reason,
			 receive_admin_email, last_summary_email_date,
			 privacy_policy_accepted, terms_accepted, registered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING user_id, permission_combination_id
	`,
		draft.Username, draft.Email, draft.Timezone, draft.Gravatar,
		string(draft.State), draft.RejectionReason,
		draft.Option.ReceiveAdminEmail, nullTime(draft.Option.LastSummaryEmail),
		nullTime(draft.PrivacyPolicyAccepted), nullTime(draft.TermsAccepted), now,
	).Scan(&userID, &combinationID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domainerrors.Wrap(err, domainerrors.CodeConflict, "username or email is already in use")
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	customFields, err := json.Marshal(draft.Profile.CustomFields)
	if err != nil {
		return nil, fmt.Errorf("encode custom fields: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO user_profiles
			(user_id, location, dob_day, dob_month, dob_year, custom_fields, password_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		userID, draft.Profile.Location,
		draft.Profile.Dob.Day, draft.Profile.Dob.Month, draft.Profile.Dob.Year,
		customFields, nullTime(draft.Profile.PasswordDate),
	)
	if err != nil {
		return nil, fmt.Errorf("insert profile: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO user_auth (user_id, scheme, credential)
		VALUES ($1, $2, $3)
	`, userID, string(draft.Auth.Scheme), draft.Auth.Hash)
	if err != nil {
		return nil, fmt.Errorf("insert auth: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit persist: %w", err)
	}

	return &models.PersistedUser{
		ID:                      domain.UserID(userID),
		PermissionCombinationID: domain.PermissionCombinationID(combinationID),
		Username:                draft.Username,
		Email:                   draft.Email,
		Timezone:                draft.Timezone,
		Gravatar:                draft.Gravatar,
		State:                   draft.State,
		RegisteredAt:            now,
	}, nil
}

// ConfirmEmail promotes a user awaiting email confirmation to the valid
// state. The state predicate is part of the statement so a stale or repeated
// token cannot flip an already-decided account.
func (s *PostgresStore) ConfirmEmail(ctx context.Context, id domain.UserID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET user_state = $1
		WHERE user_id = $2 AND user_state = $3
	`, string(domain.UserStateValid), int64(id), string(domain.UserStateEmailConfirm))
	if err != nil {
		return fmt.Errorf("confirm email: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("confirm email: %w", err)
	}
	if n == 0 {
		return domainerrors.New(domainerrors.CodeConflict, "account is not awaiting email confirmation")
	}
	return nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}
