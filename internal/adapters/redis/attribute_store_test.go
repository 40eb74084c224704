package redis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttributeStore_PutAndGet(t *testing.T) {
	store := NewAttributeStore(setupTestRedis(t))
	ctx := context.Background()

	attrs, err := store.GetUserAttributes(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, attrs)

	require.NoError(t, store.PutUserAttribute(ctx, "u1", "custom:tenant_id", "a1b2c3d4"))
	require.NoError(t, store.PutUserAttribute(ctx, "u1", "dept", "ops"))
	require.NoError(t, store.PutUserAttribute(ctx, "u1", "custom:tenant_id", "11111111"))

	attrs, err = store.GetUserAttributes(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"custom:tenant_id": "11111111", "dept": "ops"}, attrs)
}

func TestAttributeStore_Validation(t *testing.T) {
	store := NewAttributeStore(offlineClient(t))
	ctx := context.Background()

	require.Error(t, store.PutUserAttribute(ctx, "", "a", "b"))
	require.Error(t, store.PutUserAttribute(ctx, "u", "", "b"))

	attrs, err := store.GetUserAttributes(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, attrs)
}
