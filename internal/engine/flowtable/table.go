package flowtable

import (
	"math"
	"sort"
	"sync"
	"time"

	"FlowGuard/internal/model"
)

// minCapacityVictims is the eviction floor when the fractional share rounds to zero.
const minCapacityVictims = 100

// Table is the set of live flows. The mutex guards the map structure only;
// per-flow accumulators are guarded by each Flow. Lock order is table then flow.
type Table struct {
	mu            sync.Mutex
	flows         map[Key]*Flow
	maxTracked    int
	evictFraction float64
}

// New creates an empty table that starts reporting capacity victims once it
// holds more than maxTracked flows.
func New(maxTracked int, evictFraction float64) *Table {
	if evictFraction <= 0 || evictFraction > 1 {
		evictFraction = 0.1
	}
	return &Table{
		flows:         make(map[Key]*Flow),
		maxTracked:    maxTracked,
		evictFraction: evictFraction,
	}
}

// GetOrCreate returns the live flow for key, creating it from pkt when absent.
// The boolean reports whether a new flow was created.
func (t *Table) GetOrCreate(key Key, pkt *model.PacketInfo, ts time.Time) (*Flow, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if f, ok := t.flows[key]; ok {
		return f, false
	}
	f := newFlow(key, pkt, ts)
	t.flows[key] = f
	return f, true
}

// Evict removes the given keys and returns the flows that were present.
// Each returned flow is closed, so a concurrent Update on it fails and the
// packet lands in a fresh flow. Keys already gone are skipped, which makes
// repeated or racing evictions of the same key yield the flow exactly once.
func (t *Table) Evict(keys []Key) []*Flow {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Flow, 0, len(keys))
	for _, k := range keys {
		f, ok := t.flows[k]
		if !ok {
			continue
		}
		delete(t.flows, k)
		f.close()
		out = append(out, f)
	}
	return out
}

// SnapshotIdleOrOversized lists the keys whose flow has been idle for at least
// idleTimeout at now, or holds at least packetThreshold packets. The table is
// not modified.
func (t *Table) SnapshotIdleOrOversized(now time.Time, idleTimeout time.Duration, packetThreshold uint64) []Key {
	t.mu.Lock()
	defer t.mu.Unlock()
	var keys []Key
	for k, f := range t.flows {
		f.mu.Lock()
		expired := now.Sub(f.lastSeen) >= idleTimeout || f.packetsTotal >= packetThreshold
		f.mu.Unlock()
		if expired {
			keys = append(keys, k)
		}
	}
	return keys
}

// CapacityVictims returns the least recently seen keys when the table holds
// more than maxTracked flows, or nil otherwise. The share is evictFraction of
// the table, or minCapacityVictims when that share rounds to zero.
func (t *Table) CapacityVictims() []Key {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.flows) <= t.maxTracked {
		return nil
	}

	type entry struct {
		key      Key
		lastSeen time.Time
	}
	entries := make([]entry, 0, len(t.flows))
	for k, f := range t.flows {
		f.mu.Lock()
		entries = append(entries, entry{key: k, lastSeen: f.lastSeen})
		f.mu.Unlock()
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].lastSeen.Before(entries[j].lastSeen)
	})

	n := int(math.Floor(float64(len(entries)) * t.evictFraction))
	if n == 0 {
		n = minCapacityVictims
	}
	if n > len(entries) {
		n = len(entries)
	}
	keys := make([]Key, n)
	for i := 0; i < n; i++ {
		keys[i] = entries[i].key
	}
	return keys
}

// Keys returns every key currently in the table.
func (t *Table) Keys() []Key {
	t.mu.Lock()
	defer t.mu.Unlock()
	keys := make([]Key, 0, len(t.flows))
	for k := range t.flows {
		keys = append(keys, k)
	}
	return keys
}

// Size returns the number of live flows.
func (t *Table) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.flows)
}
