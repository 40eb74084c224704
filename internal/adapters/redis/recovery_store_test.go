package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainsession "github.com/target/sessionguard/internal/domain/session"
)

func TestRecoveryStore_TakeOnce(t *testing.T) {
	client := setupTestRedis(t)
	store := NewRecoveryStore(client)
	ctx := context.Background()
	snap := domainsession.RecoverySnapshot{
		Timestamp:         time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		CurrentPath:       "/payments/new",
		FormData:          map[string]map[string]string{"pay": {"amount": "12.50"}},
		ScrollPosition:    40,
		HasUnsavedChanges: true,
		UserID:            "u1",
		TenantID:          "a1b2c3d4",
		Reason:            domainsession.ReasonTimeout,
	}

	require.NoError(t, store.Save(ctx, "u1", snap, time.Hour))
	assert.Greater(t, client.TTL(ctx, "recovery:u1").Val(), 50*time.Minute)

	got, ok, err := store.Take(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snap.CurrentPath, got.CurrentPath)
	assert.Equal(t, snap.FormData, got.FormData)
	assert.True(t, snap.Timestamp.Equal(got.Timestamp))
	assert.Equal(t, snap.Reason, got.Reason)

	_, ok, err = store.Take(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecoveryStore_ConcurrentTakeRestoresOnce(t *testing.T) {
	store := NewRecoveryStore(setupTestRedis(t))
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "u2", domainsession.RecoverySnapshot{UserID: "u2"}, time.Hour))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		hits int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, err := store.Take(ctx, "u2"); err == nil && ok {
				mu.Lock()
				hits++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, hits)
}

func TestRecoveryStore_Validation(t *testing.T) {
	store := NewRecoveryStore(offlineClient(t))
	ctx := context.Background()

	require.Error(t, store.Save(ctx, "", domainsession.RecoverySnapshot{}, time.Hour))
	require.Error(t, store.Save(ctx, "u", domainsession.RecoverySnapshot{}, 0))

	_, ok, err := store.Take(ctx, "")
	require.NoError(t, err)
	assert.False(t, ok)
}
