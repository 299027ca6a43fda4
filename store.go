// Package strata is the public façade of spec §4.12: a generic
// Store[T, ID] composing the query model, error taxonomy, connection
// pool, circuit breaker, pending-change queue, cache, reactive
// registry, pagination controller, policy engine, and conflict service
// behind the single surface a caller drives. Grounded on the teacher's
// own beads.go: a thin root package exposing constructors and a
// handful of top-level types, deferring to internal packages for
// logic — generalized here from a fixed Issue domain to a generic
// Store[T, ID] over any backend satisfying the Backend contract.
package strata

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/stratadb/core/backend"
	"github.com/stratadb/core/breaker"
	"github.com/stratadb/core/cache"
	"github.com/stratadb/core/conflict"
	"github.com/stratadb/core/config"
	"github.com/stratadb/core/errs"
	"github.com/stratadb/core/pagination"
	"github.com/stratadb/core/pending"
	"github.com/stratadb/core/policy"
	"github.com/stratadb/core/pool"
	"github.com/stratadb/core/query"
	"github.com/stratadb/core/reactive"
)

// Re-exported so callers need only import this root package for the
// common vocabulary, the way beads.go re-exports types.Issue et al.
type (
	FetchPolicy  = policy.FetchPolicy
	WritePolicy  = policy.WritePolicy
	SyncStatus   = backend.SyncStatus
	Capabilities = backend.Capabilities
)

const (
	CacheFirst           = policy.CacheFirst
	NetworkFirst         = policy.NetworkFirst
	CacheAndNetwork      = policy.CacheAndNetwork
	CacheOnly            = policy.CacheOnly
	NetworkOnly          = policy.NetworkOnly
	StaleWhileRevalidate = policy.StaleWhileRevalidate

	WriteCacheAndNetwork = policy.WriteCacheAndNetwork
	WriteNetworkFirst    = policy.WriteNetworkFirst
	WriteCacheFirst      = policy.WriteCacheFirst
	WriteCacheOnly       = policy.WriteCacheOnly
)

// HealthStatus summarizes the store's own operating state, distinct
// from the backend's SyncStatus.
type HealthStatus struct {
	Healthy       bool
	CircuitState  breaker.State
	PendingCount  int
	At            time.Time
}

// Deps bundles the constructor arguments a Store needs beyond config:
// the backend adapter and the two functions tying T to the query/cache
// machinery.
type Deps[T any, ID comparable] struct {
	Backend  backend.Backend[T, ID]
	ToRecord func(T) query.Record
	IDOf     func(T) ID
	Resolver conflict.Resolver[T] // optional
}

// Store is the generic reactive data-store façade of spec §4.12.
type Store[T any, ID comparable] struct {
	cfg config.StoreConfig

	backend  backend.Backend[T, ID]
	toRecord func(T) query.Record
	idOf     func(T) ID

	cache     *cache.Cache[T, ID]
	pending   *pending.Queue[T, ID]
	reactive  *reactive.Registry[T, ID]
	engine    *policy.Engine[T, ID]
	conflicts *conflict.Service[T, ID]
	breaker   *breaker.Breaker[struct{}]
	pool      *pool.Pool[struct{}]

	tracer trace.Tracer
	meter  metric.Meter
	meterReg metric.Registration

	mu         sync.Mutex
	paginators []*pagination.Controller[T, ID]
	healthCh   []chan HealthStatus
	poolMetricsCh []chan pool.Metrics
	initialized bool
	closed      bool

	backendSyncRelay chan SyncStatus
	stopRelay        chan struct{}
	stopPoolMetrics  chan struct{}
	stopRealtime     chan struct{}
	realtimeCancel   func()
}

// New constructs a Store. Call Initialize before use.
func New[T any, ID comparable](cfg config.StoreConfig, deps Deps[T, ID]) *Store[T, ID] {
	s := &Store[T, ID]{
		cfg:      cfg,
		backend:  deps.Backend,
		toRecord: deps.ToRecord,
		idOf:     deps.IDOf,
	}
	s.cache = cache.New[T, ID](nil)
	s.pending = pending.New[T, ID](nil)
	s.reactive = reactive.New[T, ID](s.cache.Snapshot, deps.ToRecord)
	s.engine = policy.New(s.cache, s.pending, deps.Backend, deps.ToRecord, deps.IDOf, cfg.StaleAfter)
	s.conflicts = conflict.New(conflict.Config[T]{
		Resolver:        deps.Resolver,
		DefaultStrategy: conflict.DefaultStrategy(cfg.ConflictDefaultStrategy),
		SoftTimeout:     cfg.ConflictSoftTimeout,
	}, s.cache, s.pending)
	s.breaker = breaker.New[struct{}]("store-sync", cfg.Breaker)
	s.pool = pool.New[struct{}](cfg.Pool,
		func(context.Context) (struct{}, error) { return struct{}{}, nil },
		func(struct{}) {},
		nil, nil)
	s.tracer = otel.Tracer("github.com/stratadb/core")
	s.meter = otel.Meter("github.com/stratadb/core")
	return s
}

// WithTracer overrides the no-op tracer the façade spans its
// operations with.
func (s *Store[T, ID]) WithTracer(t trace.Tracer) *Store[T, ID] {
	s.tracer = t
	return s
}

// Initialize is idempotent: initializes the backend and starts
// relaying its sync-status stream.
func (s *Store[T, ID]) Initialize(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "store.initialize")
	defer span.End()

	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		return nil
	}
	s.initialized = true
	s.mu.Unlock()

	if err := s.pool.Initialize(ctx); err != nil {
		return err
	}
	if reg, err := pool.InstrumentMeter(s.meter, "stratadb.store.pool", s.pool); err == nil {
		s.meterReg = reg
	}
	if err := s.backend.Initialize(ctx); err != nil {
		return err
	}

	s.stopRelay = make(chan struct{})
	if upstream := s.backend.SyncStatus(); upstream != nil {
		go s.relaySyncStatus(upstream)
	}

	s.stopPoolMetrics = make(chan struct{})
	go s.relayPoolMetrics()

	if s.backend.Capabilities().SupportsRealtime {
		if upstream, cancel, err := s.backend.WatchAll(ctx, query.New()); err == nil && upstream != nil {
			s.realtimeCancel = cancel
			s.stopRealtime = make(chan struct{})
			go s.relayRealtime(upstream)
		}
	}
	return nil
}

// relayRealtime forwards a realtime backend's server-pushed snapshots
// into the cache and reactive registry, so a Watch/WatchAll subscriber
// observes a remote write even though no local Save/Delete produced it
// (spec §6's realtime capability).
func (s *Store[T, ID]) relayRealtime(upstream <-chan []T) {
	for {
		select {
		case <-s.stopRealtime:
			return
		case items, ok := <-upstream:
			if !ok {
				return
			}
			for _, item := range items {
				item := item
				id := s.idOf(item)
				s.cache.Put(id, item, nil)
				s.reactive.Notify(id, &item)
			}
		}
	}
}

// relayPoolMetrics samples the connection pool every
// Pool.CleanupInterval (30s when unset) and fans the snapshot out to
// every pool_metrics subscriber.
func (s *Store[T, ID]) relayPoolMetrics() {
	interval := s.cfg.Pool.CleanupInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopPoolMetrics:
			return
		case <-ticker.C:
			m := s.pool.Metrics()
			s.mu.Lock()
			for _, ch := range s.poolMetricsCh {
				select {
				case ch <- m:
				default:
				}
			}
			s.mu.Unlock()
		}
	}
}

func (s *Store[T, ID]) relaySyncStatus(upstream <-chan SyncStatus) {
	for {
		select {
		case <-s.stopRelay:
			return
		case st, ok := <-upstream:
			if !ok {
				return
			}
			s.mu.Lock()
			for _, ch := range s.healthCh {
				select {
				case ch <- HealthStatus{Healthy: st != backend.SyncError, CircuitState: s.breaker.State(), PendingCount: s.pending.Len(), At: time.Now()}:
				default:
				}
			}
			s.mu.Unlock()
		}
	}
}

// Close drains subscriptions, stops the sync relay, and releases the
// backend. Idempotent; close runs to completion and ignores
// cancellation, per spec §5.
func (s *Store[T, ID]) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	stop := s.stopRelay
	stopMetrics := s.stopPoolMetrics
	stopRealtime := s.stopRealtime
	realtimeCancel := s.realtimeCancel
	s.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if stopMetrics != nil {
		close(stopMetrics)
	}
	if stopRealtime != nil {
		close(stopRealtime)
	}
	if realtimeCancel != nil {
		realtimeCancel()
	}
	s.reactive.Close()
	if s.meterReg != nil {
		_ = s.meterReg.Unregister()
	}
	s.pool.Close()
	return s.backend.Close(ctx)
}

// Get fetches a single item under policy p (defaults to CacheFirst).
// NotFound is reported as found=false with a nil error; every other
// error propagates.
func (s *Store[T, ID]) Get(ctx context.Context, id ID, p FetchPolicy) (item T, found bool, err error) {
	ctx, span := s.tracer.Start(ctx, "store.get", trace.WithAttributes(attribute.String("policy", policyName(p))))
	defer span.End()

	em := <-s.engine.Get(ctx, id, p)
	if em.Err != nil {
		if errs.Is(em.Err, errs.NotFound) {
			var zero T
			return zero, false, nil
		}
		return item, false, em.Err
	}
	return em.Item, em.Found, nil
}

// Watch returns a reactive stream of id's value under policy p. The
// returned Handle must be closed to release the subscription.
func (s *Store[T, ID]) Watch(ctx context.Context, id ID, p FetchPolicy) (<-chan T, *reactive.Handle) {
	ch, handle := s.reactive.Watch(id)
	go func() {
		for em := range s.engine.Watch(ctx, id, p) {
			if em.Err == nil {
				s.reactive.Notify(id, &em.Item)
			}
		}
	}()
	return ch, handle
}

// GetAll evaluates q against the backend (NetworkOnly semantics are
// not meaningful for a set query; get_all always consults the backend
// and warms the cache with what it returns).
func (s *Store[T, ID]) GetAll(ctx context.Context, q query.Query) ([]T, error) {
	ctx, span := s.tracer.Start(ctx, "store.get_all")
	defer span.End()

	var items []T
	err := s.pool.WithConnection(ctx, func(struct{}) error {
		var getErr error
		items, getErr = s.backend.GetAll(ctx, q)
		return getErr
	})
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		s.cache.Put(s.idOf(item), item, nil)
	}
	return items, nil
}

// WatchAll returns a reactive stream of q's result set, re-evaluated
// against the cache on every mutation.
func (s *Store[T, ID]) WatchAll(q query.Query) (<-chan []T, *reactive.Handle) {
	return s.reactive.WatchAll(q)
}

// WatchPaginated starts a windowed, cursor-based view over q. fetch
// resumes from the cursor of the last retained page; the controller is
// registered so Save/Delete keep it reactively up to date.
func (s *Store[T, ID]) WatchPaginated(ctx context.Context, q query.Query) <-chan pagination.State[T] {
	fetch := func(ctx context.Context, cursor pagination.Cursor, pageSize int) ([]T, bool, error) {
		windowed := afterCursor(q, cursor).Limit(pageSize + 1)
		var items []T
		err := s.pool.WithConnection(ctx, func(struct{}) error {
			var getErr error
			items, getErr = s.backend.GetAll(ctx, windowed)
			return getErr
		})
		if err != nil {
			return nil, false, err
		}
		hasMore := len(items) > pageSize
		if hasMore {
			items = items[:pageSize]
		}
		return items, hasMore, nil
	}

	ctrl := pagination.New(pagination.Config[T]{
		Query:            q,
		PageSize:         s.cfg.PageSize,
		MaxPagesInMemory: s.cfg.MaxPagesInMemory,
		Fetch:            fetch,
		ToRecord:         s.toRecord,
	}, s.idOf)

	s.mu.Lock()
	s.paginators = append(s.paginators, ctrl)
	s.mu.Unlock()

	return ctrl.Subscribe(ctx)
}

// Save writes item under write policy wp, applying tags to the cache
// entry on success and notifying every reactive subscriber and
// pagination controller. original is the pre-write value (nil for a
// fresh create).
func (s *Store[T, ID]) Save(ctx context.Context, item T, original *T, tags []string, wp WritePolicy) (T, error) {
	ctx, span := s.tracer.Start(ctx, "store.save")
	defer span.End()

	saved, err := s.engine.Save(ctx, item, original, wp)
	id := s.idOf(item)

	if err != nil && errs.KindOf(err) == errs.Conflict {
		resolved, cerr := s.resolveConflict(ctx, id, item, err)
		if cerr != nil {
			return resolved, cerr
		}
		saved, err = resolved, nil
	}
	if err != nil {
		return saved, err
	}

	if len(tags) > 0 {
		s.cache.AddTags(id, tags)
	}
	s.reactive.Notify(id, &saved)
	s.notifyPaginators(func(p *pagination.Controller[T, ID]) { p.OnSave(saved) })
	return saved, nil
}

// resolveConflict looks up the still-queued change for id (left in
// place by the policy engine's Conflict carve-out) and hands it to the
// conflict service along with the backend's current value as the
// authoritative remote side.
func (s *Store[T, ID]) resolveConflict(ctx context.Context, id ID, local T, cause error) (T, error) {
	changes := s.pending.ByEntity(id)
	if len(changes) == 0 {
		return local, cause
	}
	change := changes[len(changes)-1]

	remote, _, rerr := s.backend.Get(ctx, id)
	if rerr != nil {
		return local, cause
	}

	details := conflict.Details[T]{
		Local:             local,
		Remote:            remote,
		LocalTS:           change.CreatedAt,
		RemoteTS:          time.Now(),
		ConflictingFields: diffFields(s.toRecord(local), s.toRecord(remote)),
	}
	return s.conflicts.Resolve(ctx, id, change.ChangeID, details)
}

func diffFields(a, b query.Record) []string {
	var out []string
	for k, av := range a {
		if bv, ok := b[k]; !ok || bv != av {
			out = append(out, k)
		}
	}
	return out
}

// SaveAll writes every item through Save under wp, in order.
func (s *Store[T, ID]) SaveAll(ctx context.Context, items []T, tags []string, wp WritePolicy) ([]T, error) {
	out := make([]T, 0, len(items))
	for _, item := range items {
		saved, err := s.Save(ctx, item, nil, tags, wp)
		if err != nil {
			return out, err
		}
		out = append(out, saved)
	}
	return out, nil
}

// Delete removes id from the backend and local state, notifying
// subscribers with a removal.
func (s *Store[T, ID]) Delete(ctx context.Context, id ID) error {
	ctx, span := s.tracer.Start(ctx, "store.delete")
	defer span.End()

	if err := s.pool.WithConnection(ctx, func(struct{}) error { return s.backend.Delete(ctx, id) }); err != nil {
		return err
	}
	s.cache.Delete(id)
	s.reactive.Notify(id, nil)
	s.notifyPaginators(func(p *pagination.Controller[T, ID]) { p.OnDelete(id) })
	return nil
}

// DeleteAll removes every id in ids.
func (s *Store[T, ID]) DeleteAll(ctx context.Context, ids []ID) error {
	for _, id := range ids {
		if err := s.Delete(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// DeleteWhere removes every item matching q from the backend, then
// invalidates the corresponding cache entries.
func (s *Store[T, ID]) DeleteWhere(ctx context.Context, q query.Query) (int, error) {
	var n int
	err := s.pool.WithConnection(ctx, func(struct{}) error {
		var delErr error
		n, delErr = s.backend.DeleteWhere(ctx, q)
		return delErr
	})
	if err != nil {
		return n, err
	}
	s.cache.InvalidateWhere(q, s.toRecord)
	return n, nil
}

// Invalidate marks ids' cache entries stale without removing them.
func (s *Store[T, ID]) Invalidate(ids []ID) { s.cache.Invalidate(ids) }

// InvalidateByTags marks stale every entry carrying any of tags, and
// rebuilds every active pagination window from scratch — a tag
// invalidation can cover items a paginator has never retained, so its
// window cannot be patched in place the way Save/Delete patch it.
func (s *Store[T, ID]) InvalidateByTags(tags []string) []ID {
	ids := s.cache.InvalidateByTags(tags)
	s.notifyPaginators(func(p *pagination.Controller[T, ID]) { p.Invalidate(context.Background()) })
	return ids
}

// InvalidateWhere marks stale every entry matching q, and rebuilds every
// active pagination window from scratch (see InvalidateByTags).
func (s *Store[T, ID]) InvalidateWhere(q query.Query) []ID {
	ids := s.cache.InvalidateWhere(q, s.toRecord)
	s.notifyPaginators(func(p *pagination.Controller[T, ID]) { p.Invalidate(context.Background()) })
	return ids
}

// InvalidateByIDs is an alias kept for the spec's distinct verb name;
// identical to Invalidate.
func (s *Store[T, ID]) InvalidateByIDs(ids []ID) { s.Invalidate(ids) }

// Sync drives one pass of the pending-change queue through the
// backend, honoring the circuit breaker and the configured retry
// schedule: a change whose backoff interval (derived from its
// RetryCount) hasn't yet elapsed since LastAttempt is skipped this
// pass rather than hammered every call.
func (s *Store[T, ID]) Sync(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "store.sync")
	defer span.End()

	for _, change := range s.pending.All() {
		if !s.dueForRetry(change) {
			continue
		}
		_, err := s.breaker.Execute(ctx, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.syncOne(ctx, change)
		})
		if err != nil && errs.Is(err, errs.CircuitOpen) {
			return err
		}
	}
	return nil
}

// dueForRetry reports whether change's exponential backoff interval
// has elapsed since its last attempt. A change never attempted, or
// Touched/RetryAll'd since its last failure, is always due.
func (s *Store[T, ID]) dueForRetry(change pending.Change[T, ID]) bool {
	if change.LastAttempt == nil {
		return true
	}
	interval := s.cfg.Retry.InitialInterval
	for i := uint32(0); i < change.RetryCount; i++ {
		interval = time.Duration(float64(interval) * s.cfg.Retry.Multiplier)
		if s.cfg.Retry.MaxInterval > 0 && interval > s.cfg.Retry.MaxInterval {
			interval = s.cfg.Retry.MaxInterval
			break
		}
	}
	return time.Since(*change.LastAttempt) >= interval
}

// syncOne drives one queued change through the backend, retrying
// retryable failures with exponential backoff within the configured
// elapsed-time budget, grounded on internal/storage/dolt/store.go's
// withRetry/newServerRetryBackoff (backoff.NewExponentialBackOff,
// bo.MaxElapsedTime, backoff.Retry(op, backoff.WithContext(bo, ctx)),
// backoff.Permanent to stop on a non-retryable failure). A failure
// that survives the whole budget is left queued with its RetryCount
// bumped; Sync's dueForRetry gate then backs off further external
// calls until that change's own interval elapses.
func (s *Store[T, ID]) syncOne(ctx context.Context, change pending.Change[T, ID]) error {
	attempt := change.RetryCount

	op := func() error {
		err := s.pool.WithConnection(ctx, func(struct{}) error {
			switch change.Op {
			case pending.Delete:
				return s.backend.Delete(ctx, change.EntityID)
			default:
				_, saveErr := s.backend.Save(ctx, change.Item)
				return saveErr
			}
		})
		if err == nil {
			return nil
		}
		attempt++
		now := time.Now()
		kind := errs.KindOf(err)
		s.pending.Update(change.ChangeID, pending.Update{RetryCount: &attempt, LastError: &kind, LastAttempt: &now})
		if errs.Retryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.cfg.Retry.InitialInterval
	bo.Multiplier = s.cfg.Retry.Multiplier
	bo.MaxInterval = s.cfg.Retry.MaxInterval
	bo.MaxElapsedTime = s.cfg.Retry.MaxElapsedTime

	var withCtx backoff.BackOff = backoff.WithContext(bo, ctx)
	if s.cfg.Retry.MaxAttempts > 0 {
		withCtx = backoff.WithMaxRetries(withCtx, uint64(s.cfg.Retry.MaxAttempts))
	}

	err := backoff.Retry(op, withCtx)
	if err == nil {
		s.pending.Remove(change.ChangeID)
		return nil
	}
	if !errs.Retryable(err) {
		s.pending.Remove(change.ChangeID)
	}
	return err
}

// RetryPending marks one change (or every change, if id is nil) for
// immediate retry; the next Sync picks it up regardless of its
// computed backoff interval.
func (s *Store[T, ID]) RetryPending(changeID *uuid.UUID) {
	if changeID == nil {
		s.pending.RetryAll()
		return
	}
	s.pending.Touch(*changeID)
}

// CancelPending drops a queued change and reports whether its effect
// is revertible; the caller (typically Store itself, via Save) applies
// the rollback.
func (s *Store[T, ID]) CancelPending(changeID uuid.UUID) (original *T, revertible bool, ok bool) {
	return s.pending.Cancel(changeID)
}

// PendingChanges streams every add/update/remove on the queue.
func (s *Store[T, ID]) PendingChanges() <-chan pending.Event[T, ID] { return s.pending.Subscribe() }

// Conflicts streams every detected conflict, regardless of whether a
// resolver is configured.
func (s *Store[T, ID]) Conflicts() <-chan conflict.Details[T] { return s.conflicts.Subscribe() }

// BackendSyncStatus streams the backend's own sync-engine status.
func (s *Store[T, ID]) BackendSyncStatus() <-chan SyncStatus { return s.backend.SyncStatus() }

// HealthStatus streams the façade's health (circuit state, pending
// count). A value is emitted each time the backend reports a sync
// status; Healthy is false while that status is SyncError.
func (s *Store[T, ID]) HealthStatus() <-chan HealthStatus {
	ch := make(chan HealthStatus, 4)
	s.mu.Lock()
	s.healthCh = append(s.healthCh, ch)
	s.mu.Unlock()
	return ch
}

// CircuitState streams circuit-breaker transitions on the sync path.
func (s *Store[T, ID]) CircuitState() <-chan breaker.Event { return s.breaker.Subscribe() }

// PoolMetrics streams periodic snapshots of the façade's connection pool
// (spec's pool_metrics observability stream).
func (s *Store[T, ID]) PoolMetrics() <-chan pool.Metrics {
	ch := make(chan pool.Metrics, 4)
	s.mu.Lock()
	s.poolMetricsCh = append(s.poolMetricsCh, ch)
	s.mu.Unlock()
	return ch
}

// Capabilities reports what the underlying backend supports.
func (s *Store[T, ID]) Capabilities() Capabilities { return s.backend.Capabilities() }

func (s *Store[T, ID]) notifyPaginators(fn func(*pagination.Controller[T, ID])) {
	s.mu.Lock()
	ps := append([]*pagination.Controller[T, ID]{}, s.paginators...)
	s.mu.Unlock()
	for _, p := range ps {
		fn(p)
	}
}

// afterCursor translates a pagination cursor (the order-by tuple of the
// last item on the previous page) into a strict-comparison filter on q's
// first order-by term, so the next fetch resumes past that page instead
// of re-fetching the first one. A nil cursor (the first page) or a query
// with no order-by terms returns q unchanged.
func afterCursor(q query.Query, cursor pagination.Cursor) query.Query {
	if len(cursor) == 0 {
		return q
	}
	terms := q.OrderTerms()
	if len(terms) == 0 {
		return q
	}
	op := query.Gt
	if terms[0].Direction == query.Desc {
		op = query.Lt
	}
	return q.Where(terms[0].Field, op, cursor[0])
}

func policyName(p FetchPolicy) string {
	switch p {
	case NetworkFirst:
		return "network_first"
	case CacheAndNetwork:
		return "cache_and_network"
	case CacheOnly:
		return "cache_only"
	case NetworkOnly:
		return "network_only"
	case StaleWhileRevalidate:
		return "stale_while_revalidate"
	default:
		return "cache_first"
	}
}
