package permission

import (
	"context"
	"sync"

	"gatehouse/pkg/domain"
)

// flatSet is a permission set backed by a category/key map.
type flatSet map[string]map[string]bool

func (s flatSet) HasGlobalPermission(category, key string) bool {
	return s[category][key]
}

// MemoryProvider is an in-memory Provider for tests and development.
type MemoryProvider struct {
	mu   sync.RWMutex
	sets map[domain.PermissionCombinationID]flatSet
}

// NewMemoryProvider creates an empty provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{sets: map[domain.PermissionCombinationID]flatSet{}}
}

// Grant records a global permission for a combination.
func (p *MemoryProvider) Grant(id domain.PermissionCombinationID, category, key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	set, ok := p.sets[id]
	if !ok {
		set = flatSet{}
		p.sets[id] = set
	}
	if set[category] == nil {
		set[category] = map[string]bool{}
	}
	set[category][key] = true
}

// PermissionSet returns the set for a combination. Unknown combinations get
// an empty set, which denies everything.
func (p *MemoryProvider) PermissionSet(_ context.Context, id domain.PermissionCombinationID) (Set, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if set, ok := p.sets[id]; ok {
		return set, nil
	}
	return flatSet{}, nil
}
