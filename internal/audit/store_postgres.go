package audit

import (
	"context"
	"database/sql"
	"fmt"

	"gatehouse/pkg/domain"
	"gatehouse/pkg/requestcontext"
)

// PostgresStore persists changelog and IP entries in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore constructs a PostgreSQL-backed audit store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// LogChanges inserts one row per changed field inside a transaction so a
// partially written changelog never survives.
func (s *PostgresStore) LogChanges(ctx context.Context, entityType string, entityID int64, changes map[string]Change, actorID domain.UserID) error {
	if len(changes) == 0 {
		return nil
	}
	now := requestcontext.Now(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin changelog write: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT INTO change_log (entity_type, entity_id, field, old_value, new_value, actor_id, logged_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for field, change := range changes {
		if _, err := tx.ExecContext(ctx, query,
			entityType, entityID, field, change.Old, change.New, int64(actorID), now,
		); err != nil {
			return fmt.Errorf("insert changelog row %q: %w", field, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit changelog write: %w", err)
	}
	return nil
}

// LogIP inserts a network-origin entry.
func (s *PostgresStore) LogIP(ctx context.Context, userID domain.UserID, ip, contentType string, contentID int64, action string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ip_log (user_id, ip, content_type, content_id, action, logged_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, int64(userID), ip, contentType, contentID, action, requestcontext.Now(ctx))
	if err != nil {
		return fmt.Errorf("insert ip log: %w", err)
	}
	return nil
}
