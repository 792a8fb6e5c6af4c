package redlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (redis.UniversalClient, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()}), mr
}

func TestLockAndUnlock(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	locker := NewLocker(client, "fulfill:purchase_1", "holder_a")
	require.NoError(t, locker.Lock(ctx, time.Minute))
	require.NoError(t, locker.Unlock(ctx))

	// Lockable again after release.
	assert.NoError(t, locker.Lock(ctx, time.Minute))
}

func TestSecondHolderRejected(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	first := NewLocker(client, "fulfill:purchase_1", "holder_a")
	require.NoError(t, first.Lock(ctx, time.Minute))

	second := NewLocker(client, "fulfill:purchase_1", "holder_b")
	err := second.Lock(ctx, time.Minute)
	assert.ErrorIs(t, err, ErrAlreadyHeld)
}

func TestOnlyHolderCanUnlock(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	holder := NewLocker(client, "fulfill:purchase_1", "holder_a")
	require.NoError(t, holder.Lock(ctx, time.Minute))

	intruder := NewLocker(client, "fulfill:purchase_1", "holder_b")
	assert.Error(t, intruder.Unlock(ctx))

	assert.NoError(t, holder.Unlock(ctx))
}

func TestExtendLock(t *testing.T) {
	client, mr := newTestClient(t)
	ctx := context.Background()

	locker := NewLocker(client, "fulfill:purchase_1", "holder_a")
	require.NoError(t, locker.Lock(ctx, time.Second))
	require.NoError(t, locker.ExtendLock(ctx, time.Minute))

	mr.FastForward(30 * time.Second)
	// Still held after the original TTL thanks to the extension.
	other := NewLocker(client, "fulfill:purchase_1", "holder_b")
	assert.ErrorIs(t, other.Lock(ctx, time.Minute), ErrAlreadyHeld)
}
