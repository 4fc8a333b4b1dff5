package httpclient

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Gate paces outbound requests. All fetch call sites share one Gate, so
// concurrent callers queue on the per-host interval instead of bursting.
type Gate interface {
	Wait(ctx context.Context, host string) error
}

// HostGate enforces a minimum inter-request delay per destination host.
type HostGate struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	interval time.Duration
}

func NewHostGate(interval time.Duration) *HostGate {
	return &HostGate{
		limiters: make(map[string]*rate.Limiter),
		interval: interval,
	}
}

func (g *HostGate) Wait(ctx context.Context, host string) error {
	return g.limiterFor(host).Wait(ctx)
}

func (g *HostGate) limiterFor(host string) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()

	limiter, ok := g.limiters[host]
	if !ok {
		// Burst of 1: exactly one request per interval, no catch-up bursts.
		limiter = rate.NewLimiter(rate.Every(g.interval), 1)
		g.limiters[host] = limiter
	}
	return limiter
}

// NopGate applies no pacing. Intended for tests.
type NopGate struct{}

func (NopGate) Wait(ctx context.Context, host string) error {
	return ctx.Err()
}
