package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/logwirehq/logwire/pkg/ratelimit"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestTryAcquireRespectsSpec(t *testing.T) {
	l := ratelimit.New(ratelimit.Spec{Times: 1, Per: time.Hour})

	require.True(t, l.TryAcquire())
	require.False(t, l.TryAcquire())
}

func TestZeroSpecBlocksAcquire(t *testing.T) {
	l := ratelimit.New(ratelimit.Spec{})

	require.False(t, l.TryAcquire())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := l.Acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestUnlimitedSpecAllowsImmediately(t *testing.T) {
	l := ratelimit.New(ratelimit.Spec{Times: 1, Per: 0})

	for i := 0; i < 100; i++ {
		require.True(t, l.TryAcquire())
	}

	require.NoError(t, l.Acquire(context.Background()))
}

func TestSetSpecUnblocksWaiters(t *testing.T) {
	l := ratelimit.New(ratelimit.Spec{})

	acquired := make(chan error, 1)
	go func() {
		acquired <- l.Acquire(context.Background())
	}()

	select {
	case err := <-acquired:
		t.Fatalf("acquire finished on zero spec: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	l.SetSpec(ratelimit.Spec{Times: 1000, Per: time.Second})

	select {
	case err := <-acquired:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("acquire still blocked after spec update")
	}
}

func TestSetSpecTightensRunningLimiter(t *testing.T) {
	l := ratelimit.New(ratelimit.Spec{Times: 1, Per: 0})
	require.True(t, l.TryAcquire())

	l.SetSpec(ratelimit.Spec{})
	require.False(t, l.TryAcquire())
}

func TestReserveReportsDelay(t *testing.T) {
	l := ratelimit.New(ratelimit.Spec{Times: 1, Per: time.Hour})

	require.True(t, l.TryAcquire())
	require.Greater(t, l.Reserve(), time.Duration(0))
}
