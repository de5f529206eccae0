// Package cooldown suppresses repeated detections of the same customer within a time window.
package cooldown

import (
	"context"
	"sync"
	"time"

	"github.com/kozaktomas/customer-recognition/internal/logging"
)

// Gate remembers the last admitted detection per customer.
type Gate struct {
	window time.Duration
	mu     sync.RWMutex
	last   map[string]time.Time
}

// New creates a gate with the given window.
func New(window time.Duration) *Gate {
	return &Gate{
		window: window,
		last:   make(map[string]time.Time),
	}
}

// Window returns the configured cooldown window.
func (g *Gate) Window() time.Duration {
	return g.window
}

// Allow admits a detection when the customer has no entry or its last admitted
// detection is strictly older than the window. Admission records now.
func (g *Gate) Allow(customerID string, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if last, ok := g.last[customerID]; ok && now.Sub(last) <= g.window {
		return false
	}
	g.last[customerID] = now
	return true
}

// Sweep deletes entries older than the window and returns how many were removed.
// Stale keys are collected under the read lock and deleted under a short write
// lock that re-checks each entry, so entries refreshed in between survive.
func (g *Gate) Sweep(now time.Time) int {
	g.mu.RLock()
	var stale []string
	for id, last := range g.last {
		if now.Sub(last) > g.window {
			stale = append(stale, id)
		}
	}
	g.mu.RUnlock()

	if len(stale) == 0 {
		return 0
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	removed := 0
	for _, id := range stale {
		if last, ok := g.last[id]; ok && now.Sub(last) > g.window {
			delete(g.last, id)
			removed++
		}
	}
	return removed
}

// Run sweeps on every tick until ctx is done.
func (g *Gate) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := g.Sweep(now); n > 0 {
				logging.From(ctx).Debug("cooldown sweep", "removed", n, "remaining", g.Len())
			}
		}
	}
}

// Len returns the number of tracked customers.
func (g *Gate) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.last)
}
