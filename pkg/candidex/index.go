package candidex

import (
	"sort"
	"time"
)

// Index is one immutable snapshot of the candidate identity index. A
// refresh builds a whole new Index and swaps it in by reference; nothing
// ever mutates an installed snapshot, so readers holding one always see a
// consistent view.
type Index struct {
	BuiltAtMs    int64
	BuiltAt      string
	ScannedCount int

	// IsComplete is true only if the last scan exhausted the upstream feed
	// rather than stopping at the scan cap.
	IsComplete bool

	// SyncToken enables the next incremental build. Empty when the
	// upstream did not issue one.
	SyncToken string

	CandidatesByID map[string]*CandidateSummary

	// LinkedInToCandidateIDs maps normalized key to candidate ids, most
	// recently updated first. Rebuilt in full on every refresh; every id in
	// it exists in CandidatesByID.
	LinkedInToCandidateIDs map[string][]string
}

// newIndex assembles a snapshot from a final candidate map, rebuilding the
// reverse index from scratch. The reverse index is never patched
// incrementally; a full rebuild is cheap and cannot drift.
func newIndex(candidates map[string]*CandidateSummary, scanned int, complete bool, syncToken string, now time.Time) *Index {
	return &Index{
		BuiltAtMs:              now.UnixMilli(),
		BuiltAt:                now.UTC().Format(time.RFC3339),
		ScannedCount:           scanned,
		IsComplete:             complete,
		SyncToken:              syncToken,
		CandidatesByID:         candidates,
		LinkedInToCandidateIDs: BuildReverseIndex(candidates),
	}
}

// BuildReverseIndex derives the LinkedIn-key index from a candidate map.
// Ids under one key are ordered by UpdatedAtMs descending with name
// ascending as the tiebreak, so collision lists paginate stably.
func BuildReverseIndex(candidates map[string]*CandidateSummary) map[string][]string {
	reverse := make(map[string][]string)
	for id, c := range candidates {
		for _, key := range c.LinkedInKeys {
			reverse[key] = append(reverse[key], id)
		}
	}
	for key, ids := range reverse {
		sort.SliceStable(ids, func(i, j int) bool {
			a, b := candidates[ids[i]], candidates[ids[j]]
			if a.UpdatedAtMs != b.UpdatedAtMs {
				return a.UpdatedAtMs > b.UpdatedAtMs
			}
			if a.Name != b.Name {
				return a.Name < b.Name
			}
			return a.ID < b.ID
		})
		reverse[key] = ids
	}
	return reverse
}

// Lookup returns the candidates for a set of keys: union of per-key lists,
// deduplicated, in the reverse-index order.
func (ix *Index) Lookup(keys []string) []*CandidateSummary {
	if ix == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var out []*CandidateSummary
	for _, key := range keys {
		for _, id := range ix.LinkedInToCandidateIDs[key] {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			if c, ok := ix.CandidatesByID[id]; ok {
				out = append(out, c)
			}
		}
	}
	return out
}

// Size returns the number of indexed candidates.
func (ix *Index) Size() int {
	if ix == nil {
		return 0
	}
	return len(ix.CandidatesByID)
}

// Age returns the snapshot age at now. A nil index is infinitely old.
func (ix *Index) Age(now time.Time) time.Duration {
	if ix == nil {
		return 1<<63 - 1
	}
	return now.Sub(time.UnixMilli(ix.BuiltAtMs))
}

// Fresh reports whether the snapshot is within the TTL at now.
func (ix *Index) Fresh(ttl time.Duration, now time.Time) bool {
	return ix != nil && ix.Age(now) <= ttl
}
