package rediscache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_Allow(t *testing.T) {
	mr := miniredis.RunT(t)
	rl := NewRateLimiter(mr.Addr())

	ctx := context.Background()
	ok, n, err := rl.Allow(ctx, "rl:test", 2, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), n)

	ok, n, _ = rl.Allow(ctx, "rl:test", 2, time.Minute)
	require.True(t, ok)
	require.Equal(t, int64(2), n)

	ok, _, _ = rl.Allow(ctx, "rl:test", 2, time.Minute)
	require.False(t, ok)
}

func TestOrderLocker_AcquireRelease(t *testing.T) {
	mr := miniredis.RunT(t)
	l := NewOrderLocker(mr.Addr(), time.Minute)

	ctx := context.Background()
	release, ok, err := l.Acquire(ctx, 555)
	require.NoError(t, err)
	require.True(t, ok)

	// второй захват того же заказа не проходит
	_, ok2, err := l.Acquire(ctx, 555)
	require.NoError(t, err)
	require.False(t, ok2)

	// другой заказ не конфликтует
	rel2, ok3, err := l.Acquire(ctx, 556)
	require.NoError(t, err)
	require.True(t, ok3)
	rel2()

	release()
	_, ok4, err := l.Acquire(ctx, 555)
	require.NoError(t, err)
	require.True(t, ok4)
}
