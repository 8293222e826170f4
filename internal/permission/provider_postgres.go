package permission

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"gatehouse/pkg/domain"
)

// PostgresProvider reads permission entries from PostgreSQL with a small
// in-process cache. Permission combinations change rarely relative to how
// often they are read.
type PostgresProvider struct {
	db *sql.DB

	mu    sync.RWMutex
	cache map[domain.PermissionCombinationID]flatSet
}

// NewPostgresProvider constructs a PostgreSQL-backed permission provider.
func NewPostgresProvider(db *sql.DB) *PostgresProvider {
	return &PostgresProvider{
		db:    db,
		cache: map[domain.PermissionCombinationID]flatSet{},
	}
}

// PermissionSet loads the global permission entries for a combination.
func (p *PostgresProvider) PermissionSet(ctx context.Context, id domain.PermissionCombinationID) (Set, error) {
	p.mu.RLock()
	cached, ok := p.cache[id]
	p.mu.RUnlock()
	if ok {
		return cached, nil
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT permission_category, permission_key
		FROM permission_cache_global
		WHERE permission_combination_id = $1 AND allowed
	`, int64(id))
	if err != nil {
		return nil, fmt.Errorf("load permission set %s: %w", id, err)
	}
	defer rows.Close()

	set := flatSet{}
	for rows.Next() {
		var category, key string
		if err := rows.Scan(&category, &key); err != nil {
			return nil, fmt.Errorf("scan permission entry: %w", err)
		}
		if set[category] == nil {
			set[category] = map[string]bool{}
		}
		set[category][key] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate permission entries: %w", err)
	}

	p.mu.Lock()
	p.cache[id] = set
	p.mu.Unlock()
	return set, nil
}

// Invalidate drops a cached combination, forcing a reload on next read.
func (p *PostgresProvider) Invalidate(id domain.PermissionCombinationID) {
	p.mu.Lock()
	delete(p.cache, id)
	p.mu.Unlock()
}
