// Package backend defines the Backend contract of spec §6 — the
// interface local SQL, remote REST+realtime, and CRDT-replicated
// adapters implement — plus the Composite backend that fans reads and
// writes out across a primary and a cache-tier backend. Grounded on
// internal/storage/provider.go's StorageProvider (a thin adapter wrapping
// one backend interface to satisfy another, generalized here into the
// two-tier Composite) and internal/storage/batch.go's backend-agnostic
// options-struct shape, reused for Capabilities.
package backend

import (
	"context"
	"sync"

	"github.com/stratadb/core/query"
)

// SyncStatus is the closed enum a backend reports its sync-engine state
// through (spec §6).
type SyncStatus int

const (
	Idle SyncStatus = iota
	Syncing
	Synced
	SyncError
	Paused
	Disconnected
)

// Capabilities are the flags a backend advertises; the façade and
// policy engine consult them to decide whether a feature (pagination,
// field ops, transactions) is usable against this backend.
type Capabilities struct {
	SupportsOffline      bool
	SupportsRealtime     bool
	SupportsTransactions bool
	SupportsPagination   bool
	SupportsFieldOps     bool
}

// WatchEvent is one push from a realtime backend's Watch stream. Found
// reports whether id currently exists server-side; Item is meaningful
// only when Found is true (a delete is pushed as Found: false).
type WatchEvent[T any] struct {
	Item  T
	Found bool
}

// Backend is the contract every storage adapter implements. The core
// never assumes more than this about how T is persisted.
type Backend[T any, ID comparable] interface {
	Initialize(ctx context.Context) error
	Close(ctx context.Context) error

	Get(ctx context.Context, id ID) (item T, found bool, err error)
	GetAll(ctx context.Context, q query.Query) ([]T, error)

	Save(ctx context.Context, item T) (T, error)
	SaveAll(ctx context.Context, items []T) ([]T, error)
	Delete(ctx context.Context, id ID) error
	DeleteAll(ctx context.Context, ids []ID) error
	DeleteWhere(ctx context.Context, q query.Query) (int, error)

	// Watch and WatchAll push server-originated changes, the source a
	// SupportsRealtime backend feeds into reactive.Registry so a local
	// Watch/WatchAll subscriber observes a remote write without a local
	// Save/Delete ever having run. A backend that doesn't support
	// realtime push returns a nil channel, a no-op cancel, and a nil
	// error; callers must check for a nil channel before ranging over
	// it.
	Watch(ctx context.Context, id ID) (stream <-chan WatchEvent[T], cancel func(), err error)
	WatchAll(ctx context.Context, q query.Query) (stream <-chan []T, cancel func(), err error)

	SyncStatus() <-chan SyncStatus
	PendingChangesCount() int
	Sync(ctx context.Context) error

	Capabilities() Capabilities
}

// FieldBackend is an optional capability: backends advertising
// SupportsFieldOps should additionally implement this so callers can
// fetch a single field without materializing the whole entity.
type FieldBackend[ID comparable] interface {
	GetField(ctx context.Context, id ID, name string) (any, error)
	GetFieldBatch(ctx context.Context, ids []ID, name string) (map[ID]any, error)
}

// Changeset is an opaque CRDT delta set exchanged between nodes.
type Changeset struct {
	NodeID string
	Data   []byte
}

// CRDTBackend is an optional capability for backends built on a
// replicated CRDT store.
type CRDTBackend interface {
	NodeID() string
	GetChangeset(ctx context.Context, since *Changeset) (Changeset, error)
	ApplyChangeset(ctx context.Context, cs Changeset) error
}

// ReadStrategy selects how Composite.Get/GetAll consult its two tiers.
type ReadStrategy int

const (
	PrimaryFirst ReadStrategy = iota
	CacheFirst
	Fastest
)

// WriteStrategy selects how Composite.Save/Delete fan out.
type WriteStrategy int

const (
	PrimaryOnly WriteStrategy = iota
	All
	PrimaryAndCache
)

// Composite implements Backend by combining a primary backend with a
// faster, possibly lossy cache-tier backend. Every fallback path here
// explicitly awaits the fallback call before reporting a result — the
// reference implementation this core is modeled on once spawned the
// fallback without awaiting it, so a primary failure could be reported
// before the cache fallback had actually resolved. That bug is the
// reason every branch below is synchronous or uses sync.WaitGroup
// instead of a detached goroutine.
type Composite[T any, ID comparable] struct {
	Primary Backend[T, ID]
	Cache   Backend[T, ID]
	Reads   ReadStrategy
	Writes  WriteStrategy
}

func (c *Composite[T, ID]) Initialize(ctx context.Context) error {
	if err := c.Primary.Initialize(ctx); err != nil {
		return err
	}
	if c.Cache != nil {
		return c.Cache.Initialize(ctx)
	}
	return nil
}

func (c *Composite[T, ID]) Close(ctx context.Context) error {
	err := c.Primary.Close(ctx)
	if c.Cache != nil {
		if cerr := c.Cache.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// Get dispatches per Reads. Fastest races both tiers and, if the winner
// failed, awaits the other tier synchronously before giving up —
// never reports a failure while a fallback call is still in flight.
func (c *Composite[T, ID]) Get(ctx context.Context, id ID) (T, bool, error) {
	switch c.Reads {
	case CacheFirst:
		if c.Cache != nil {
			if item, found, err := c.Cache.Get(ctx, id); err == nil {
				return item, found, nil
			}
		}
		return c.Primary.Get(ctx, id)

	case Fastest:
		return c.fastestGet(ctx, id)

	default: // PrimaryFirst
		item, found, err := c.Primary.Get(ctx, id)
		if err == nil {
			return item, found, nil
		}
		if c.Cache == nil {
			return item, found, err
		}
		return c.Cache.Get(ctx, id)
	}
}

type getResult[T any] struct {
	item  T
	found bool
	err   error
}

func (c *Composite[T, ID]) fastestGet(ctx context.Context, id ID) (T, bool, error) {
	if c.Cache == nil {
		return c.Primary.Get(ctx, id)
	}

	var wg sync.WaitGroup
	primaryRes := make(chan getResult[T], 1)
	cacheRes := make(chan getResult[T], 1)

	wg.Add(2)
	go func() {
		defer wg.Done()
		item, found, err := c.Primary.Get(ctx, id)
		primaryRes <- getResult[T]{item, found, err}
	}()
	go func() {
		defer wg.Done()
		item, found, err := c.Cache.Get(ctx, id)
		cacheRes <- getResult[T]{item, found, err}
	}()

	// Take whichever resolves first; then, whichever loses, its result
	// is still consumed below so the goroutines above never block on a
	// full channel and wg.Wait never deadlocks.
	var first getResult[T]
	var second getResult[T]
	select {
	case first = <-primaryRes:
		second = <-cacheRes
	case first = <-cacheRes:
		second = <-primaryRes
	}
	wg.Wait()

	if first.err == nil {
		return first.item, first.found, nil
	}
	if second.err == nil {
		return second.item, second.found, nil
	}
	var zero T
	return zero, false, first.err
}

func (c *Composite[T, ID]) GetAll(ctx context.Context, q query.Query) ([]T, error) {
	switch c.Reads {
	case CacheFirst:
		if c.Cache != nil {
			if items, err := c.Cache.GetAll(ctx, q); err == nil {
				return items, nil
			}
		}
		return c.Primary.GetAll(ctx, q)
	default:
		items, err := c.Primary.GetAll(ctx, q)
		if err == nil || c.Cache == nil {
			return items, err
		}
		return c.Cache.GetAll(ctx, q)
	}
}

func (c *Composite[T, ID]) Save(ctx context.Context, item T) (T, error) {
	saved, err := c.Primary.Save(ctx, item)
	if err != nil {
		return saved, err
	}
	if c.Writes == All || c.Writes == PrimaryAndCache {
		if c.Cache != nil {
			if _, cerr := c.Cache.Save(ctx, saved); cerr != nil {
				return saved, cerr
			}
		}
	}
	return saved, nil
}

func (c *Composite[T, ID]) SaveAll(ctx context.Context, items []T) ([]T, error) {
	saved, err := c.Primary.SaveAll(ctx, items)
	if err != nil {
		return saved, err
	}
	if (c.Writes == All || c.Writes == PrimaryAndCache) && c.Cache != nil {
		if _, cerr := c.Cache.SaveAll(ctx, saved); cerr != nil {
			return saved, cerr
		}
	}
	return saved, nil
}

func (c *Composite[T, ID]) Delete(ctx context.Context, id ID) error {
	if err := c.Primary.Delete(ctx, id); err != nil {
		return err
	}
	if (c.Writes == All || c.Writes == PrimaryAndCache) && c.Cache != nil {
		return c.Cache.Delete(ctx, id)
	}
	return nil
}

func (c *Composite[T, ID]) DeleteAll(ctx context.Context, ids []ID) error {
	if err := c.Primary.DeleteAll(ctx, ids); err != nil {
		return err
	}
	if (c.Writes == All || c.Writes == PrimaryAndCache) && c.Cache != nil {
		return c.Cache.DeleteAll(ctx, ids)
	}
	return nil
}

func (c *Composite[T, ID]) DeleteWhere(ctx context.Context, q query.Query) (int, error) {
	n, err := c.Primary.DeleteWhere(ctx, q)
	if err != nil {
		return n, err
	}
	if (c.Writes == All || c.Writes == PrimaryAndCache) && c.Cache != nil {
		if _, cerr := c.Cache.DeleteWhere(ctx, q); cerr != nil {
			return n, cerr
		}
	}
	return n, nil
}

// Watch and WatchAll delegate to the primary tier only — a cache tier
// is assumed not to originate its own remote changes.
func (c *Composite[T, ID]) Watch(ctx context.Context, id ID) (<-chan WatchEvent[T], func(), error) {
	return c.Primary.Watch(ctx, id)
}

func (c *Composite[T, ID]) WatchAll(ctx context.Context, q query.Query) (<-chan []T, func(), error) {
	return c.Primary.WatchAll(ctx, q)
}

func (c *Composite[T, ID]) SyncStatus() <-chan SyncStatus   { return c.Primary.SyncStatus() }
func (c *Composite[T, ID]) PendingChangesCount() int         { return c.Primary.PendingChangesCount() }
func (c *Composite[T, ID]) Sync(ctx context.Context) error   { return c.Primary.Sync(ctx) }
func (c *Composite[T, ID]) Capabilities() Capabilities       { return c.Primary.Capabilities() }
