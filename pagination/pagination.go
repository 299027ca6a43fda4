// Package pagination implements the windowed, cursor-based stream of
// spec §4.9: single-in-flight load-more dedup, a bounded
// retained-page window, and reactive insert/replace/remove as items are
// saved, updated, or deleted. Grounded on internal/storage/batch.go's
// backend-agnostic batch-options shape (pagination parameters travel as
// a plain options struct, the way OrphanHandling/BatchCreateOptions do)
// combined with the full-rebuild-on-touch idiom cache/cache.go borrows
// from internal/storage/{sqlite,dolt}/blocked_cache.go, applied here to
// recomputing the retained window rather than a tag index.
package pagination

import (
	"context"
	"sync"

	"github.com/stratadb/core/query"
)

// Cursor is the ordered tuple of order-by field values from the last
// item of a page, the position a Fetch resumes from.
type Cursor []any

// Fetch retrieves the page starting after cursor (nil for the first
// page). It returns at most pageSize items and whether more remain.
type Fetch[T any] func(ctx context.Context, cursor Cursor, pageSize int) (items []T, hasMore bool, err error)

// Kind is the PaginationState variant of spec §4.9.
type Kind int

const (
	Initial Kind = iota
	Loading
	Loaded
	ErrorState
)

// State is the value emitted on the pagination stream.
type State[T any] struct {
	Kind          Kind
	Items         []T
	HasMore       bool
	LoadingMore   bool
	Err           error
	PreviousItems []T
}

// Controller is a windowed, cursor-based paginated view over query q.
type Controller[T any, ID comparable] struct {
	mu sync.Mutex

	q                 query.Query
	pageSize          int
	prefetchDistance  int
	maxPagesInMemory  int
	fetch             Fetch[T]
	toRecord          func(T) query.Record
	idOf              func(T) ID

	pages       [][]T
	cursors     []Cursor // cursors[i] is the cursor that produced pages[i]
	hasMore     bool
	loading     bool
	loadingMore bool
	errored     bool
	started     bool
	loadedOnce  bool

	listeners []chan State[T]
}

// Config bundles the construction parameters of watch_paginated.
type Config[T any] struct {
	Query            query.Query
	PageSize         int
	PrefetchDistance int // stored only; pages load on Subscribe, LoadMore, Invalidate and ClampAndRefetch
	MaxPagesInMemory int // 0 means unbounded
	Fetch            Fetch[T]
	ToRecord         func(T) query.Record
}

// New constructs a Controller. idOf identifies an item for reactive
// update/delete routing.
func New[T any, ID comparable](cfg Config[T], idOf func(T) ID) *Controller[T, ID] {
	return &Controller[T, ID]{
		q:                cfg.Query,
		pageSize:         cfg.PageSize,
		prefetchDistance: cfg.PrefetchDistance,
		maxPagesInMemory: cfg.MaxPagesInMemory,
		fetch:            cfg.Fetch,
		toRecord:         cfg.ToRecord,
		idOf:             idOf,
	}
}

// Subscribe returns the PaginationState stream, seeding Initial
// immediately and triggering the first page load.
func (c *Controller[T, ID]) Subscribe(ctx context.Context) <-chan State[T] {
	ch := make(chan State[T], 8)
	c.mu.Lock()
	c.listeners = append(c.listeners, ch)
	first := !c.started
	c.started = true
	c.mu.Unlock()

	ch <- State[T]{Kind: Initial}
	if first {
		go c.loadPage(ctx, nil)
	} else {
		c.mu.Lock()
		snap := c.snapshotLocked()
		c.mu.Unlock()
		ch <- snap
	}
	return ch
}

// LoadMore fetches the next page and appends it to the retained window.
// A no-op if already loading, at the end, or in an error state — and
// concurrent calls collapse onto the single in-flight fetch already
// running.
func (c *Controller[T, ID]) LoadMore(ctx context.Context) {
	c.mu.Lock()
	if c.loading || c.loadingMore || c.errored || (c.loadedOnce && !c.hasMore) {
		c.mu.Unlock()
		return
	}
	c.loadingMore = true
	var cursor Cursor
	if n := len(c.cursors); n > 0 {
		cursor = c.cursors[n-1]
	}
	c.broadcastLocked(c.snapshotLocked())
	c.mu.Unlock()

	go c.loadPage(ctx, cursor)
}

func (c *Controller[T, ID]) loadPage(ctx context.Context, cursor Cursor) {
	c.mu.Lock()
	c.loading = true
	c.mu.Unlock()

	items, hasMore, err := c.fetch(ctx, cursor, c.pageSize)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading = false
	c.loadingMore = false

	if err != nil {
		c.errored = true
		c.broadcastLocked(State[T]{Kind: ErrorState, Err: err, PreviousItems: c.flattenLocked()})
		return
	}

	c.errored = false
	c.loadedOnce = true
	c.hasMore = hasMore
	c.pages = append(c.pages, items)
	c.cursors = append(c.cursors, nextCursor(c.q, c.toRecord, items))
	c.evictOverflowLocked()
	c.broadcastLocked(c.snapshotLocked())
}

// evictOverflowLocked drops the oldest retained page once the window
// exceeds max_pages_in_memory. A caller scrolling back toward a dropped
// page must re-fetch it (ClampAndRefetch).
func (c *Controller[T, ID]) evictOverflowLocked() {
	if c.maxPagesInMemory <= 0 {
		return
	}
	for len(c.pages) > c.maxPagesInMemory {
		c.pages = c.pages[1:]
		c.cursors = c.cursors[1:]
	}
}

func (c *Controller[T, ID]) flattenLocked() []T {
	total := 0
	for _, p := range c.pages {
		total += len(p)
	}
	out := make([]T, 0, total)
	for _, p := range c.pages {
		out = append(out, p...)
	}
	return out
}

func (c *Controller[T, ID]) snapshotLocked() State[T] {
	return State[T]{
		Kind:        Loaded,
		Items:       c.flattenLocked(),
		HasMore:     c.hasMore,
		LoadingMore: c.loading || c.loadingMore,
	}
}

func (c *Controller[T, ID]) broadcastLocked(s State[T]) {
	for _, ch := range c.listeners {
		select {
		case ch <- s:
		default:
		}
	}
}

// Invalidate discards the retained window and reloads it from the first
// page. Unlike OnSave/OnDelete, which patch the window in place for a
// change the controller already knows about, a cache invalidation signal
// (invalidate_by_tags, invalidate_where) may cover items the controller
// has never seen, so the only correct response is a wholesale rebuild.
func (c *Controller[T, ID]) Invalidate(ctx context.Context) {
	c.mu.Lock()
	prev := c.flattenLocked()
	c.pages = nil
	c.cursors = nil
	c.hasMore = true
	c.errored = false
	c.started = true
	c.broadcastLocked(State[T]{Kind: Loading, PreviousItems: prev})
	c.mu.Unlock()

	go c.loadPage(ctx, nil)
}

// ClampAndRefetch handles an out-of-bounds page request without raising
// a range error. requestedPage indexes the retained pages, oldest first.
// A negative value is clamped to 0 and, like any index inside the
// window, changes nothing. An index at or past the number of retained
// pages (or any index while no page is retained) discards the window
// and reloads it from the first page.
func (c *Controller[T, ID]) ClampAndRefetch(ctx context.Context, requestedPage int) {
	c.mu.Lock()
	n := len(c.pages)
	if requestedPage < 0 {
		requestedPage = 0
	}
	inWindow := n > 0 && requestedPage < n
	c.mu.Unlock()

	if inWindow {
		return
	}
	// Reset and reload from the first page; the caller's stream will
	// observe a fresh Loaded emission once it lands.
	c.mu.Lock()
	c.pages = nil
	c.cursors = nil
	c.hasMore = true
	c.errored = false
	c.started = true
	c.mu.Unlock()
	go c.loadPage(ctx, nil)
}

// OnSave reports that item was created or updated. If it no longer
// matches the controller's query, it is removed from the retained
// window. If it matches and is already retained, it is replaced in
// place. If it matches and is not retained, it is appended to the last
// retained page whatever its order-by position (see insertOrderedLocked).
// The backend remains the source of truth for total/has_more.
func (c *Controller[T, ID]) OnSave(item T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec := c.toRecord(item)
	if !c.q.Matches(rec) {
		c.removeByIDLocked(item)
		c.broadcastLocked(c.snapshotLocked())
		return
	}

	id := c.idOf(item)
	for pi, page := range c.pages {
		for ii, existing := range page {
			if c.idOf(existing) == id {
				c.pages[pi][ii] = item
				c.broadcastLocked(c.snapshotLocked())
				return
			}
		}
	}
	c.insertOrderedLocked(item)
	c.broadcastLocked(c.snapshotLocked())
}

// OnDelete removes id from the retained window, if present.
func (c *Controller[T, ID]) OnDelete(id ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for pi, page := range c.pages {
		for ii, existing := range page {
			if c.idOf(existing) == id {
				c.pages[pi] = append(page[:ii:ii], page[ii+1:]...)
				c.broadcastLocked(c.snapshotLocked())
				return
			}
		}
	}
}

func (c *Controller[T, ID]) removeByIDLocked(item T) {
	id := c.idOf(item)
	for pi, page := range c.pages {
		for ii, existing := range page {
			if c.idOf(existing) == id {
				c.pages[pi] = append(page[:ii:ii], page[ii+1:]...)
				return
			}
		}
	}
}

// insertOrderedLocked appends item to the end of the last retained page
// (or starts a first page when none is retained). It does not compare
// the item's order-by values, so the window is not kept sorted; this is
// a best-effort placement, not a re-query.
func (c *Controller[T, ID]) insertOrderedLocked(item T) {
	if len(c.pages) == 0 {
		c.pages = append(c.pages, []T{item})
		return
	}
	last := len(c.pages) - 1
	c.pages[last] = append(c.pages[last], item)
}

// nextCursor derives the cursor for the page after items, using the
// last item's order-by field values (spec §4.9: "leveraging the last
// order_by tuple as the cursor").
func nextCursor[T any](q query.Query, toRecord func(T) query.Record, items []T) Cursor {
	if len(items) == 0 {
		return nil
	}
	terms := q.OrderTerms()
	last := toRecord(items[len(items)-1])
	cur := make(Cursor, len(terms))
	for i, t := range terms {
		cur[i] = last[t.Field]
	}
	return cur
}
