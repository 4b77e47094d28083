package candidex

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/atsrelay/pkg/ashby"
)

// Lister is the slice of the upstream client the builder needs.
type Lister interface {
	ListCandidates(ctx context.Context, opts ashby.ListOptions, audit ashby.AuditContext) (*ashby.CandidatePage, error)
}

// BuildOptions controls one build.
type BuildOptions struct {
	// ForceFull discards the prior snapshot and rescans from the start
	// even when a sync token would allow an incremental pass.
	ForceFull bool
}

// Builder runs full or incremental scans of the upstream candidate feed.
type Builder struct {
	lister   Lister
	scanCap  int
	pageSize int
	log      *zap.Logger
	now      func() time.Time
}

// NewBuilder creates a builder. scanCap bounds rows scanned per build;
// pageSize is the per-page limit requested upstream.
func NewBuilder(lister Lister, scanCap, pageSize int, log *zap.Logger) *Builder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Builder{
		lister:   lister,
		scanCap:  scanCap,
		pageSize: pageSize,
		log:      log,
		now:      time.Now,
	}
}

// BuildOrExtend scans the feed and returns a new snapshot. The scan is
// incremental (seeded from prior, resuming at its sync token) only when
// prior is non-empty, ForceFull is false, and a sync token exists;
// otherwise it rebuilds from an empty map.
//
// Pagination stops when the feed is exhausted, when the scan cap is
// reached, or when the upstream claims more data but returns no cursor —
// the latter is an upstream inconsistency and stopping beats looping.
func (b *Builder) BuildOrExtend(ctx context.Context, prior *Index, audit ashby.AuditContext, opts BuildOptions) (*Index, error) {
	incremental := prior.Size() > 0 && !opts.ForceFull && prior.SyncToken != ""

	candidates := make(map[string]*CandidateSummary)
	syncToken := ""
	if incremental {
		for id, c := range prior.CandidatesByID {
			candidates[id] = c
		}
		syncToken = prior.SyncToken
	}

	b.log.Debug("index build starting",
		zap.Bool("incremental", incremental),
		zap.Int("seed_size", len(candidates)),
		zap.String("request_id", audit.RequestID))

	var (
		cursor   string
		scanned  int
		complete bool
	)
	for {
		page, err := b.lister.ListCandidates(ctx, ashby.ListOptions{
			Cursor:    cursor,
			Limit:     b.pageSize,
			SyncToken: syncToken,
		}, audit)
		if err != nil {
			return nil, fmt.Errorf("list candidates (scanned %d): %w", scanned, err)
		}

		for _, raw := range page.Rows {
			summary, ok := ProjectCandidate(raw)
			if !ok {
				continue
			}
			// Upsert: the upstream's own record wins over the seed.
			candidates[summary.ID] = summary
		}
		scanned += len(page.Rows)

		if page.SyncToken != "" {
			syncToken = page.SyncToken
		}

		if !page.MoreDataAvailable {
			complete = true
			break
		}
		if scanned >= b.scanCap {
			b.log.Warn("index scan cap reached, snapshot will be incomplete",
				zap.Int("scanned", scanned),
				zap.Int("scan_cap", b.scanCap))
			break
		}
		if page.NextCursor == "" {
			b.log.Warn("upstream reported more data but returned no cursor, stopping scan",
				zap.Int("scanned", scanned))
			break
		}
		cursor = page.NextCursor
	}

	ix := newIndex(candidates, scanned, complete, syncToken, b.now())
	b.log.Info("index build finished",
		zap.Bool("incremental", incremental),
		zap.Int("scanned", scanned),
		zap.Int("size", ix.Size()),
		zap.Bool("complete", complete),
		zap.String("request_id", audit.RequestID))
	return ix, nil
}
