package vision

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameGateThrottlesByInterval(t *testing.T) {
	g := newFrameGate(100*time.Millisecond, 10)
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	ok, _ := g.admit(t0)
	require.True(t, ok)
	g.release()

	ok, reason := g.admit(t0.Add(50 * time.Millisecond))
	assert.False(t, ok)
	assert.Equal(t, "throttled", reason)

	ok, _ = g.admit(t0.Add(150 * time.Millisecond))
	assert.True(t, ok)
	g.release()
}

func TestFrameGateCapsInFlight(t *testing.T) {
	g := newFrameGate(0, 2)
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	ok, _ := g.admit(t0)
	require.True(t, ok)
	ok, _ = g.admit(t0.Add(time.Millisecond))
	require.True(t, ok)

	ok, reason := g.admit(t0.Add(2 * time.Millisecond))
	assert.False(t, ok)
	assert.Equal(t, "in_flight", reason)

	g.release()
	ok, _ = g.admit(t0.Add(3 * time.Millisecond))
	assert.True(t, ok)
}

func TestPrepOnceRunsExactlyOnce(t *testing.T) {
	var p prepOnce
	var calls int32

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := p.do(context.Background(), func(context.Context) error {
				atomic.AddInt32(&calls, 1)
				time.Sleep(20 * time.Millisecond)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestPrepOnceRetriesAfterFailure(t *testing.T) {
	var p prepOnce
	calls := 0
	boom := errors.New("model missing")

	fn := func(context.Context) error {
		calls++
		if calls == 1 {
			return boom
		}
		return nil
	}

	require.ErrorIs(t, p.do(context.Background(), fn), boom)
	require.NoError(t, p.do(context.Background(), fn))
	require.NoError(t, p.do(context.Background(), fn))
	assert.Equal(t, 2, calls)
}

func TestPrepOnceWaiterHonorsContext(t *testing.T) {
	var p prepOnce

	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = p.do(context.Background(), func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.do(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
}
