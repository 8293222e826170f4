package prereg

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreAssociation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.Record("draft-key", "saved content")

	require.NoError(t, store.AssociateActionWithUser(ctx, "draft-key", 7))

	content, err := store.ContentForUser(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "saved content", content)

	t.Run("unknown key is a no-op", func(t *testing.T) {
		require.NoError(t, store.AssociateActionWithUser(ctx, "stale-key", 8))
		content, err := store.ContentForUser(ctx, 8)
		require.NoError(t, err)
		assert.Empty(t, content)
	})

	t.Run("nil user is rejected", func(t *testing.T) {
		assert.Error(t, store.AssociateActionWithUser(ctx, "draft-key", 0))
	})
}
