// Package resolve answers "which indexed candidate owns this LinkedIn
// profile" by layering the in-memory index, an upstream name search, and a
// forced index refresh.
package resolve

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/atsrelay/internal/errors"
	"github.com/3leaps/atsrelay/pkg/ashby"
	"github.com/3leaps/atsrelay/pkg/candidex"
)

// Strategy names report which layer produced the match.
const (
	StrategyIndex        = "index"
	StrategyNameSearch   = "name_search"
	StrategyIndexRefresh = "index_refresh"
	StrategyNotFound     = "not_found"
)

// maxCollisions bounds how many secondary matches are reported back for
// disambiguation.
const maxCollisions = 9

// Query identifies the profile being looked up. At least one of LinkedInURL
// or LinkedInHandle must normalize to a usable key; ProfileName enables the
// name-search fallback.
type Query struct {
	LinkedInURL    string `json:"linkedInUrl,omitempty"`
	LinkedInHandle string `json:"linkedInHandle,omitempty"`
	ProfileName    string `json:"profileName,omitempty"`
}

// Options tunes one resolution.
type Options struct {
	// ForceRefresh refreshes the index before resolving and blocks on it.
	ForceRefresh bool
}

// Result is the resolution outcome. Collisions hold further matches beyond
// the primary so callers can disambiguate instead of the resolver guessing.
type Result struct {
	Found      bool                         `json:"found"`
	Candidate  *candidex.CandidateSummary   `json:"candidate,omitempty"`
	Collisions []*candidex.CandidateSummary `json:"collisions,omitempty"`
	Strategy   string                       `json:"strategy"`
	Keys       []string                     `json:"keys"`
	Index      candidex.Metadata            `json:"index"`
}

// Searcher is the slice of the upstream client the resolver needs.
type Searcher interface {
	SearchCandidates(ctx context.Context, q ashby.SearchQuery, audit ashby.AuditContext) ([]json.RawMessage, error)
}

// Resolver layers lookups over a scheduler-managed index.
type Resolver struct {
	sched    *candidex.Scheduler
	searcher Searcher
	ttl      time.Duration
	log      *zap.Logger
	now      func() time.Time
}

// New creates a resolver. ttl mirrors the scheduler's freshness window and
// drives the step-5 "stale or incomplete" retry decision.
func New(sched *candidex.Scheduler, searcher Searcher, ttl time.Duration, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{
		sched:    sched,
		searcher: searcher,
		ttl:      ttl,
		log:      log,
		now:      time.Now,
	}
}

// ByLinkedIn resolves the query to an indexed candidate.
//
// The index is consulted first. On a miss with a profile name, the upstream
// name search runs, post-filtered to candidates whose own LinkedIn keys
// intersect the query keys. On a persistent miss with a refreshable index, a
// forced full resync runs and the index lookup is retried once.
func (r *Resolver) ByLinkedIn(ctx context.Context, query Query, audit ashby.AuditContext, opts Options) (*Result, error) {
	keys := queryKeys(query)
	if len(keys) == 0 {
		return nil, errors.NewValidationError("no resolvable LinkedIn URL or handle in query")
	}

	ix, err := r.obtainIndex(ctx, query, audit, opts)
	if err != nil {
		return nil, err
	}

	matches := withProfileURLs(ix.Lookup(keys))
	strategy := StrategyIndex

	if len(matches) == 0 && query.ProfileName != "" {
		matches, err = r.searchByName(ctx, query.ProfileName, keys, audit)
		if err != nil {
			return nil, err
		}
		strategy = StrategyNameSearch
	}

	if len(matches) == 0 && r.shouldRetryWithFullRefresh(ix, opts) {
		ix, err = r.sched.Refresh(ctx, audit, true)
		if err != nil {
			return nil, err
		}
		matches = withProfileURLs(ix.Lookup(keys))
		strategy = StrategyIndexRefresh
	}

	result := &Result{
		Keys:  keys,
		Index: r.sched.Store().Metadata(r.now()),
	}
	if len(matches) == 0 {
		result.Strategy = StrategyNotFound
		return result, nil
	}

	result.Found = true
	result.Strategy = strategy
	result.Candidate = matches[0]
	if len(matches) > 1 {
		extra := matches[1:]
		if len(extra) > maxCollisions {
			extra = extra[:maxCollisions]
		}
		result.Collisions = extra
	}

	r.log.Debug("linkedin lookup resolved",
		zap.String("request_id", audit.RequestID),
		zap.String("strategy", result.Strategy),
		zap.String("candidate_id", result.Candidate.ID),
		zap.Int("collisions", len(result.Collisions)))
	return result, nil
}

// obtainIndex decides between blocking on a refresh and serving stale. A
// cached index, a force flag, or the absence of a name fallback all block;
// only a cold start with a usable name fallback goes straight to whatever
// snapshot exists while a refresh runs behind.
func (r *Resolver) obtainIndex(ctx context.Context, query Query, audit ashby.AuditContext, opts Options) (*candidex.Index, error) {
	current := r.sched.Store().Current()
	if opts.ForceRefresh || current.Size() > 0 || query.ProfileName == "" {
		return r.sched.EnsureFresh(ctx, audit, candidex.FreshOptions{
			ForceRefresh: opts.ForceRefresh,
		})
	}

	r.sched.RefreshBackground(audit)
	return current, nil
}

// searchByName runs the upstream name search and keeps only candidates whose
// own LinkedIn keys intersect the query keys. The search may return loose
// matches; the key intersection is what makes a hit trustworthy.
func (r *Resolver) searchByName(ctx context.Context, name string, keys []string, audit ashby.AuditContext) ([]*candidex.CandidateSummary, error) {
	rows, err := r.searcher.SearchCandidates(ctx, ashby.SearchQuery{Name: name}, audit)
	if err != nil {
		return nil, err
	}

	var matches []*candidex.CandidateSummary
	for _, raw := range rows {
		summary, ok := candidex.ProjectCandidate(raw)
		if !ok || summary.ProfileURL == "" {
			continue
		}
		if keysIntersect(summary.LinkedInKeys, keys) {
			matches = append(matches, summary)
		}
	}

	if len(rows) > 0 && len(matches) == 0 {
		// The post-filter can empty a non-empty search result when the
		// upstream knows the profile under different links. Reported for
		// diagnosis, not treated as an error.
		r.log.Debug("name search returned rows but none carried a matching linkedin key",
			zap.String("request_id", audit.RequestID),
			zap.Int("search_rows", len(rows)))
	}
	return matches, nil
}

// shouldRetryWithFullRefresh gates the last-resort full resync: it only pays
// off when the caller forced a refresh anyway or the index plausibly missed
// the candidate (stale or cap-truncated).
func (r *Resolver) shouldRetryWithFullRefresh(ix *candidex.Index, opts Options) bool {
	if opts.ForceRefresh {
		return true
	}
	if ix.Size() == 0 {
		return false
	}
	return !ix.Fresh(r.ttl, r.now()) || !ix.IsComplete
}

// queryKeys builds the normalized key set from the URL and handle. Both are
// tried; duplicates collapse.
func queryKeys(query Query) []string {
	var keys []string
	seen := make(map[string]struct{}, 2)
	add := func(key string) {
		if key == "" {
			return
		}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}

	if query.LinkedInURL != "" {
		if key := candidex.NormalizeLinkedInKey(query.LinkedInURL); candidex.IsLinkedInKey(key) {
			add(key)
		}
	}
	if query.LinkedInHandle != "" {
		add(candidex.KeyFromHandle(query.LinkedInHandle))
	}
	return keys
}

// withProfileURLs drops rows that cannot be presented to a caller.
func withProfileURLs(candidates []*candidex.CandidateSummary) []*candidex.CandidateSummary {
	kept := candidates[:0:0]
	for _, c := range candidates {
		if c.ProfileURL != "" {
			kept = append(kept, c)
		}
	}
	return kept
}

func keysIntersect(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
