package scrape

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// HostLimiter enforces a minimum inter-request interval per origin host,
// independent of worker-pool concurrency. It is injectable so tests can
// reset it and a distributed limiter can replace it if the pipeline ever
// runs across processes.
type HostLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	limiters map[string]*rate.Limiter
	lastSeen map[string]time.Time
}

// NewHostLimiter creates a limiter with the given per-host spacing.
func NewHostLimiter(interval time.Duration) *HostLimiter {
	return &HostLimiter{
		interval: interval,
		limiters: make(map[string]*rate.Limiter),
		lastSeen: make(map[string]time.Time),
	}
}

func (h *HostLimiter) limiterFor(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	lim, ok := h.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Every(h.interval), 1)
		h.limiters[host] = lim
	}
	return lim
}

// Wait blocks until a request to host is allowed, then records it.
// Returns early with the context error on cancellation.
func (h *HostLimiter) Wait(ctx context.Context, host string) error {
	if err := h.limiterFor(host).Wait(ctx); err != nil {
		return err
	}
	h.Record(host)
	return nil
}

// Record notes that a request to host was just made.
func (h *HostLimiter) Record(host string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastSeen[host] = time.Now()
}

// SinceLast returns the time elapsed since the last recorded request to
// host, or a negative duration when the host has never been seen.
func (h *HostLimiter) SinceLast(host string) time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	last, ok := h.lastSeen[host]
	if !ok {
		return -1
	}
	return time.Since(last)
}

// Reset clears all per-host state.
func (h *HostLimiter) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.limiters = make(map[string]*rate.Limiter)
	h.lastSeen = make(map[string]time.Time)
}
