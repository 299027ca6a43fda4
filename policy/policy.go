// Package policy implements the fetch/write policy state machines of
// spec §4.10: closed enumerations dispatched by a switch, each
// coordinating the cache, the pending-change queue, and the backend.
// Grounded on internal/labelmutex/policy.go and internal/gate/policy.go,
// both of which parse a closed mode/policy enum from config and apply
// it with a plain switch; this package generalizes that shape from a
// config-driven gate mode to the get/save dispatch the store façade
// drives on every call. The "at-most-one in-flight fetch per
// fingerprint" coalescing uses golang.org/x/sync/singleflight, the
// teacher's own direct dependency.
package policy

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/stratadb/core/backend"
	"github.com/stratadb/core/cache"
	"github.com/stratadb/core/errs"
	"github.com/stratadb/core/pending"
	"github.com/stratadb/core/query"
)

// FetchPolicy is the closed enum of spec §4.10's fetch-policy table.
type FetchPolicy int

const (
	CacheFirst FetchPolicy = iota
	NetworkFirst
	CacheAndNetwork
	CacheOnly
	NetworkOnly
	StaleWhileRevalidate
)

// WritePolicy is the closed enum of spec §4.10's write-policy table.
type WritePolicy int

const (
	WriteCacheAndNetwork WritePolicy = iota
	WriteNetworkFirst
	WriteCacheFirst
	WriteCacheOnly
)

// Emission is one value delivered to a get/watch caller under a policy
// that may emit more than once (cache_and_network, stale_while_revalidate).
type Emission[T any] struct {
	Item  T
	Found bool
	Stale bool
	Err   error
}

// Engine dispatches get/save calls through the configured policies. It
// owns the single-flight coalescing of concurrent reads for the same
// query fingerprint.
type Engine[T any, ID comparable] struct {
	cache    *cache.Cache[T, ID]
	pending  *pending.Queue[T, ID]
	backend  backend.Backend[T, ID]
	toRecord func(T) query.Record
	idOf     func(T) ID
	sf       singleflight.Group

	staleAfter time.Duration // stale_while_revalidate threshold
}

// New constructs an Engine over the given cache, pending queue, and
// backend.
func New[T any, ID comparable](c *cache.Cache[T, ID], p *pending.Queue[T, ID], b backend.Backend[T, ID], toRecord func(T) query.Record, idOf func(T) ID, staleAfter time.Duration) *Engine[T, ID] {
	return &Engine[T, ID]{cache: c, pending: p, backend: b, toRecord: toRecord, idOf: idOf, staleAfter: staleAfter}
}

// fingerprint renders id into a singleflight key. ID is only required
// to be comparable, not Stringer, so this falls back to fmt's %v.
func fingerprint[ID comparable](id ID) string {
	return fmt.Sprintf("id:%v", id)
}

// Get dispatches a single get(id) through policy p, emitting each value
// on the returned channel (buffered to 2, the maximum legitimate
// emission count per spec §4.10's cache_and_network row) and closing it
// once done.
func (e *Engine[T, ID]) Get(ctx context.Context, id ID, p FetchPolicy) <-chan Emission[T] {
	out := make(chan Emission[T], 2)
	go func() {
		defer close(out)
		e.runGet(ctx, id, p, out, false)
	}()
	return out
}

// Watch is like Get but for policies that emit twice under watch
// semantics (cache_and_network, stale_while_revalidate) per spec §4.10.
func (e *Engine[T, ID]) Watch(ctx context.Context, id ID, p FetchPolicy) <-chan Emission[T] {
	out := make(chan Emission[T], 2)
	go func() {
		defer close(out)
		e.runGet(ctx, id, p, out, true)
	}()
	return out
}

func (e *Engine[T, ID]) runGet(ctx context.Context, id ID, p FetchPolicy, out chan<- Emission[T], watch bool) {
	switch p {
	case CacheOnly:
		entry, ok := e.cache.Get(id)
		if !ok {
			out <- Emission[T]{Err: errs.NotFoundf("%v", id)}
			return
		}
		out <- Emission[T]{Item: entry.Item, Found: true, Stale: entry.StaleAt != nil}

	case NetworkOnly:
		item, found, err := e.fetchCoalesced(ctx, id)
		if err != nil {
			out <- Emission[T]{Err: err}
			return
		}
		if found {
			e.cache.Put(id, item, nil)
		}
		out <- Emission[T]{Item: item, Found: found}

	case CacheFirst:
		if entry, ok := e.cache.Get(id); ok {
			out <- Emission[T]{Item: entry.Item, Found: true, Stale: entry.StaleAt != nil}
			return
		}
		item, found, err := e.fetchCoalesced(ctx, id)
		if err != nil {
			out <- Emission[T]{Err: err}
			return
		}
		if found {
			e.cache.Put(id, item, nil)
		}
		out <- Emission[T]{Item: item, Found: found}

	case NetworkFirst:
		item, found, err := e.fetchCoalesced(ctx, id)
		if err == nil {
			if found {
				e.cache.Put(id, item, nil)
			}
			out <- Emission[T]{Item: item, Found: found}
			return
		}
		if !errs.Retryable(err) {
			out <- Emission[T]{Err: err}
			return
		}
		if entry, ok := e.cache.Get(id); ok {
			out <- Emission[T]{Item: entry.Item, Found: true, Stale: true}
			return
		}
		out <- Emission[T]{Err: err}

	case CacheAndNetwork:
		var emittedCache bool
		var cachedItem T
		if entry, ok := e.cache.Get(id); ok {
			out <- Emission[T]{Item: entry.Item, Found: true, Stale: entry.StaleAt != nil}
			emittedCache, cachedItem = true, entry.Item
			if !watch {
				return
			}
		}
		item, found, err := e.fetchCoalesced(ctx, id)
		if err != nil {
			if !emittedCache {
				out <- Emission[T]{Err: err}
			}
			return
		}
		if found {
			e.cache.Put(id, item, nil)
		}
		if emittedCache && found && recordsEqual(e.toRecord(cachedItem), e.toRecord(item)) {
			return
		}
		out <- Emission[T]{Item: item, Found: found}

	case StaleWhileRevalidate:
		entry, hasCache := e.cache.Get(id)
		if hasCache {
			out <- Emission[T]{Item: entry.Item, Found: true, Stale: entry.StaleAt != nil}
		}
		if !watch && hasCache && !e.isStale(entry) {
			return
		}
		item, found, err := e.fetchCoalesced(ctx, id)
		if err != nil {
			if !hasCache {
				out <- Emission[T]{Err: err}
			}
			return
		}
		if found {
			e.cache.Put(id, item, nil)
		}
		if watch || !hasCache {
			out <- Emission[T]{Item: item, Found: found}
		}

	default:
		out <- Emission[T]{Err: errs.New(errs.IllegalState, "unknown fetch policy")}
	}
}

func (e *Engine[T, ID]) isStale(entry *cache.Entry[T]) bool {
	if entry.StaleAt != nil {
		return true
	}
	if e.staleAfter <= 0 {
		return false
	}
	return time.Since(entry.CachedAt) > e.staleAfter
}

// fetchCoalesced ensures at most one in-flight backend.Get per id: all
// concurrent callers for the same id share a single backend call and
// observe the same result.
func (e *Engine[T, ID]) fetchCoalesced(ctx context.Context, id ID) (T, bool, error) {
	v, err, _ := e.sf.Do(fingerprint(id), func() (any, error) {
		item, found, err := e.backend.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return sfResult[T]{item, found}, nil
	})
	if err != nil {
		var zero T
		return zero, false, err
	}
	r := v.(sfResult[T])
	return r.item, r.found, nil
}

type sfResult[T any] struct {
	item  T
	found bool
}

func recordsEqual(a, b query.Record) bool {
	return reflect.DeepEqual(a, b)
}

// Save dispatches a save under write policy wp. original is the
// pre-write value (nil for a fresh create), used for optimistic
// rollback under cache_and_network.
func (e *Engine[T, ID]) Save(ctx context.Context, item T, original *T, wp WritePolicy) (T, error) {
	return e.save(ctx, e.idOf(item), item, original, wp)
}

func (e *Engine[T, ID]) save(ctx context.Context, id ID, item T, original *T, wp WritePolicy) (T, error) {
	switch wp {
	case WriteCacheOnly:
		e.cache.Put(id, item, nil)
		return item, nil

	case WriteCacheFirst:
		e.cache.Put(id, item, nil)
		op := pending.Update
		if original == nil {
			op = pending.Create
		}
		change := e.pending.Add(id, item, op, original)
		saved, err := e.backend.Save(ctx, item)
		if err == nil {
			e.pending.Remove(change.ChangeID)
			e.cache.Put(id, saved, nil)
			return saved, nil
		}
		return item, nil // opportunistic: failure stays queued, no error surfaced

	case WriteNetworkFirst:
		saved, err := e.backend.Save(ctx, item)
		if err != nil {
			return item, err
		}
		e.cache.Put(id, saved, nil)
		return saved, nil

	default: // WriteCacheAndNetwork: optimistic with rollback
		e.cache.Put(id, item, nil)
		op := pending.Update
		if original == nil {
			op = pending.Create
		}
		change := e.pending.Add(id, item, op, original)

		saved, err := e.backend.Save(ctx, item)
		if err == nil {
			e.pending.Remove(change.ChangeID)
			e.cache.Put(id, saved, nil)
			return saved, nil
		}

		if errs.Retryable(err) {
			// Keep the optimistic value; the sync driver retries later.
			return item, nil
		}

		if errs.KindOf(err) == errs.Conflict {
			// Leave the optimistic cache value and the queued change
			// exactly as they are: the conflict service decides the
			// outcome, keyed off this same change_id.
			return item, err
		}

		// Non-retryable: revert cache from original and drop the queued
		// change, surfacing the error.
		if _, rollback, ok := e.pending.Cancel(change.ChangeID); ok && rollback && original != nil {
			e.cache.Put(id, *original, nil)
		} else if original == nil {
			e.cache.Delete(id)
		}
		var zero T
		return zero, err
	}
}
