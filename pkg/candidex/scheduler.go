package candidex

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/atsrelay/pkg/ashby"
)

// FreshOptions controls one freshness decision.
type FreshOptions struct {
	// ForceRefresh always runs a refresh and awaits it.
	ForceRefresh bool

	// ForceFull makes that refresh a full resync instead of incremental.
	// Only meaningful with ForceRefresh.
	ForceFull bool

	// PreferStale returns a stale non-empty snapshot immediately and
	// refreshes in the background instead of blocking the caller.
	PreferStale bool
}

// Scheduler owns index freshness policy and refresh coordination. At most
// one refresh runs process-wide at any time; concurrent requests attach to
// the in-flight one.
type Scheduler struct {
	store   *Store
	builder *Builder
	ttl     time.Duration
	log     *zap.Logger
	now     func() time.Time
}

// NewScheduler creates a scheduler over a store and builder.
func NewScheduler(store *Store, builder *Builder, ttl time.Duration, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		store:   store,
		builder: builder,
		ttl:     ttl,
		log:     log,
		now:     time.Now,
	}
}

// Store exposes the underlying store for metadata reporting.
func (s *Scheduler) Store() *Store {
	return s.store
}

// EnsureFresh returns a usable snapshot per the freshness policy:
//
//   - ForceRefresh: refresh (full if ForceFull) and await it.
//   - Fresh index: return it, no refresh.
//   - Stale but non-empty with PreferStale: return the stale snapshot and
//     refresh in the background.
//   - Otherwise (empty, or stale without PreferStale): refresh and await.
func (s *Scheduler) EnsureFresh(ctx context.Context, audit ashby.AuditContext, opts FreshOptions) (*Index, error) {
	if opts.ForceRefresh {
		return s.Refresh(ctx, audit, opts.ForceFull)
	}

	current := s.store.Current()
	if current.Fresh(s.ttl, s.now()) {
		return current, nil
	}

	if current.Size() > 0 && opts.PreferStale {
		s.RefreshBackground(audit)
		return current, nil
	}

	return s.Refresh(ctx, audit, false)
}

// Refresh runs (or attaches to) the single in-flight refresh and returns
// the resulting snapshot. A started refresh runs to completion regardless
// of the initiating caller's context; attached callers may stop waiting
// early on context cancellation without affecting the flight.
//
// If an incremental pass fails with a sync-token rejection, it is retried
// exactly once as a full resync before any error is surfaced.
func (s *Scheduler) Refresh(ctx context.Context, audit ashby.AuditContext, forceFull bool) (*Index, error) {
	fl, started := s.beginOrAttach()
	if !started {
		select {
		case <-fl.done:
			return fl.index, fl.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	// Detach from the caller: once a refresh starts it is not cancellable,
	// and attached callers must not inherit this caller's deadline.
	buildCtx := context.WithoutCancel(ctx)

	ix, err := s.builder.BuildOrExtend(buildCtx, s.store.Current(), audit, BuildOptions{ForceFull: forceFull})
	if err != nil && !forceFull && ashby.IsSyncTokenError(err) {
		s.log.Warn("incremental refresh rejected sync token, falling back to full resync",
			zap.String("request_id", audit.RequestID),
			zap.Error(err))
		ix, err = s.builder.BuildOrExtend(buildCtx, s.store.Current(), audit, BuildOptions{ForceFull: true})
	}

	if err == nil {
		s.store.install(ix)
	}
	s.store.finishFlight(fl, ix, err)
	return ix, err
}

// RefreshBackground fires a refresh that is never awaited by the caller.
// Failures are logged and deliberately go nowhere else.
func (s *Scheduler) RefreshBackground(audit ashby.AuditContext) {
	go func() {
		if _, err := s.Refresh(context.Background(), audit, false); err != nil {
			s.log.Warn("background index refresh failed",
				zap.String("request_id", audit.RequestID),
				zap.Error(err))
		}
	}()
}

func (s *Scheduler) beginOrAttach() (*flight, bool) {
	return s.store.beginFlight()
}
