package dedup

import (
	"context"
	"time"
)

// DefaultTTL is how long an accepted fingerprint suppresses duplicates.
const DefaultTTL = 36 * time.Hour

type MatchKind int

const (
	NoMatch MatchKind = iota
	ExactMatch
	NearMatch
)

func (k MatchKind) String() string {
	switch k {
	case ExactMatch:
		return "exact"
	case NearMatch:
		return "near"
	default:
		return "none"
	}
}

// Entry is one accepted item in the index.
type Entry struct {
	SourceID    string
	ContentHash string
	SimHash     uint64
	HasSimHash  bool
	SeenAt      time.Time
}

type Match struct {
	Kind        MatchKind
	SourceID    string
	Distance    int
	CrossSource bool
}

func (m Match) Duplicate() bool {
	return m.Kind != NoMatch
}

type MatchOptions struct {
	// CrossSource compares against entries of every source, not only the item's own.
	CrossSource bool
	// Threshold is the largest hamming distance treated as a near-duplicate.
	Threshold int
}

// Index is the near-duplicate store shared by all tiers.
type Index interface {
	// MatchOrAdd reports the best match for fp. When there is none, fp is
	// recorded for sourceID in the same step, so two concurrent callers can
	// not both accept the same story.
	MatchOrAdd(ctx context.Context, fp Fingerprint, sourceID string, opts MatchOptions) (Match, error)
	Prune(ctx context.Context) (int, error)
	Len(ctx context.Context) (int, error)
}

// bestMatch prefers an exact match, then the closest near match. Exact
// content hashes match across every source; only the simhash comparison is
// scoped by opts.CrossSource.
func bestMatch(entries []Entry, fp Fingerprint, sourceID string, opts MatchOptions, cutoff time.Time) Match {
	best := Match{Kind: NoMatch, Distance: -1}
	for _, e := range entries {
		if e.SeenAt.Before(cutoff) {
			continue
		}

		if e.ContentHash == fp.ContentHash {
			return Match{Kind: ExactMatch, SourceID: e.SourceID, Distance: 0, CrossSource: e.SourceID != sourceID}
		}
		if !opts.CrossSource && e.SourceID != sourceID {
			continue
		}
		if !fp.HasSimHash || !e.HasSimHash {
			continue
		}
		d := Hamming(e.SimHash, fp.SimHash)
		if d <= opts.Threshold && (best.Kind == NoMatch || d < best.Distance) {
			best = Match{Kind: NearMatch, SourceID: e.SourceID, Distance: d, CrossSource: e.SourceID != sourceID}
		}
	}
	return best
}
