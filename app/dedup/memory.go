package dedup

import (
	"context"
	"sync"
	"time"
)

// MemoryIndex keeps fingerprints in process memory. It is only correct for a
// single running instance.
type MemoryIndex struct {
	mu      sync.RWMutex
	entries []Entry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryIndex(ttl time.Duration) *MemoryIndex {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryIndex{ttl: ttl, now: time.Now}
}

func (m *MemoryIndex) MatchOrAdd(_ context.Context, fp Fingerprint, sourceID string, opts MatchOptions) (Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	match := bestMatch(m.entries, fp, sourceID, opts, now.Add(-m.ttl))
	if match.Duplicate() {
		return match, nil
	}

	m.entries = append(m.entries, Entry{
		SourceID:    sourceID,
		ContentHash: fp.ContentHash,
		SimHash:     fp.SimHash,
		HasSimHash:  fp.HasSimHash,
		SeenAt:      now,
	})
	return match, nil
}

// Prune evicts entries older than the TTL and returns how many were removed.
func (m *MemoryIndex) Prune(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.ttl)
	kept := m.entries[:0]
	for _, e := range m.entries {
		if !e.SeenAt.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	removed := len(m.entries) - len(kept)
	// clear the tail so evicted entries can be collected
	for i := len(kept); i < len(m.entries); i++ {
		m.entries[i] = Entry{}
	}
	m.entries = kept
	return removed, nil
}

func (m *MemoryIndex) Len(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}
