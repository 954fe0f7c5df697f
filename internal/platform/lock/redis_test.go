package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

func newLocker(t *testing.T) *Locker {
	t.Helper()
	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	l := New(rdb, time.Second, nil)
	l.retry = nil
	return l
}

func TestAcquireAndRelease(t *testing.T) {
	l := newLocker(t)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "ledger:lock:customer:1")
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "ledger:lock:customer:1")
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrConflict)

	release()

	again, err := l.Acquire(ctx, "ledger:lock:customer:1")
	require.NoError(t, err)
	again()
}

func TestDistinctKeysDoNotContend(t *testing.T) {
	l := newLocker(t)
	ctx := context.Background()

	a, err := l.Acquire(ctx, "ledger:lock:customer:1")
	require.NoError(t, err)
	defer a()
	b, err := l.Acquire(ctx, "ledger:lock:supplier:1")
	require.NoError(t, err)
	defer b()
}
