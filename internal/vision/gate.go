package vision

import (
	"context"
	"sync"
	"time"
)

// frameGate bounds per-stream pipeline pressure: frames arriving faster
// than the minimum interval are dropped, and at most maxInFlight frames may
// be processing at once. Dropping is silent by design — it bounds latency
// without queueing and has no effect on track state.
type frameGate struct {
	mu          sync.Mutex
	minInterval time.Duration
	lastAccept  time.Time
	slots       chan struct{}
}

func newFrameGate(minInterval time.Duration, maxInFlight int) *frameGate {
	if maxInFlight <= 0 {
		maxInFlight = 3
	}
	return &frameGate{
		minInterval: minInterval,
		slots:       make(chan struct{}, maxInFlight),
	}
}

// admit decides whether a frame with the given capture timestamp may enter
// the pipeline. On success the caller must call release when done.
// Returns the drop reason ("throttled" or "in_flight") otherwise.
func (g *frameGate) admit(ts time.Time) (ok bool, reason string) {
	g.mu.Lock()
	if g.minInterval > 0 && !g.lastAccept.IsZero() && ts.Sub(g.lastAccept) < g.minInterval {
		g.mu.Unlock()
		return false, "throttled"
	}

	select {
	case g.slots <- struct{}{}:
	default:
		g.mu.Unlock()
		return false, "in_flight"
	}

	g.lastAccept = ts
	g.mu.Unlock()
	return true, ""
}

func (g *frameGate) release() {
	<-g.slots
}

// prepOnce shares one in-flight preparation among concurrent first callers:
// whoever arrives while preparation is running awaits the same attempt
// instead of triggering a redundant one. A failed attempt is retried by the
// next caller.
type prepOnce struct {
	mu       sync.Mutex
	prepared bool
	inflight chan struct{}
	err      error
}

// do runs fn exactly once per attempt, sharing the attempt with concurrent
// callers. After a success, all future calls return nil immediately.
func (p *prepOnce) do(ctx context.Context, fn func(context.Context) error) error {
	for {
		p.mu.Lock()
		if p.prepared {
			p.mu.Unlock()
			return nil
		}
		if p.inflight != nil {
			ch := p.inflight
			p.mu.Unlock()
			select {
			case <-ch:
			case <-ctx.Done():
				return ctx.Err()
			}
			p.mu.Lock()
			if p.prepared {
				p.mu.Unlock()
				return nil
			}
			err := p.err
			p.mu.Unlock()
			return err
		}

		ch := make(chan struct{})
		p.inflight = ch
		p.mu.Unlock()

		err := fn(ctx)

		p.mu.Lock()
		p.err = err
		p.prepared = err == nil
		p.inflight = nil
		close(ch)
		p.mu.Unlock()
		return err
	}
}
