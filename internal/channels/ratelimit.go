package channels

import (
	"sync"
	"time"
)

const (
	// maxTrackedKeys caps the number of tracked senders to prevent memory
	// exhaustion from rotating identities.
	maxTrackedKeys = 4096

	// floodWindow is the sliding window duration for rate counting.
	floodWindow = 60 * time.Second

	// floodMaxHits is the max events per sender within a window.
	floodMaxHits = 30
)

type floodEntry struct {
	windowStart time.Time
	count       int
}

// FloodGuard bounds how many events a single sender can push into the
// pipeline per window. Safe for concurrent use.
type FloodGuard struct {
	mu      sync.Mutex
	entries map[string]*floodEntry
}

func NewFloodGuard() *FloodGuard {
	return &FloodGuard{entries: make(map[string]*floodEntry)}
}

// Allow returns true if the key is within limits. Stale entries are
// pruned when the tracked set approaches the cap.
func (g *FloodGuard) Allow(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()

	if len(g.entries) >= maxTrackedKeys {
		for k, e := range g.entries {
			if now.Sub(e.windowStart) >= floodWindow {
				delete(g.entries, k)
			}
		}
		// Hard eviction if still at cap.
		for len(g.entries) >= maxTrackedKeys {
			for k := range g.entries {
				delete(g.entries, k)
				break
			}
		}
	}

	e, ok := g.entries[key]
	if !ok || now.Sub(e.windowStart) >= floodWindow {
		g.entries[key] = &floodEntry{windowStart: now, count: 1}
		return true
	}

	e.count++
	return e.count <= floodMaxHits
}
