// Package reactive implements the subscription registry of spec §4.8:
// per-id and per-query keyed channels with latest-value replay
// ("seeded subject" semantics — a new subscriber immediately receives
// the most recent emission), fan-out on mutation, and reference-counted
// subscription handles. Grounded on internal/eventbus/bus.go's
// Register/Unregister/Dispatch shape, generalized from a single
// type-routed handler list to per-key channels; the teacher's NATS
// JetStream publish path (bus.go's SetJetStream/publishToJetStream) is
// not carried forward since this core has no transport of its own — see
// DESIGN.md.
package reactive

import (
	"reflect"
	"sync"

	"github.com/stratadb/core/query"
)

// Handle is returned to a caller on Watch/WatchAll. Each handle has its
// own channel, which Close closes; the key's slot in the registry is
// removed once every handle sharing the key has been closed.
type Handle struct {
	once    sync.Once
	release func()
}

// Close releases this subscription. Idempotent.
func (h *Handle) Close() {
	h.once.Do(func() {
		if h.release != nil {
			h.release()
		}
	})
}

type relay[V any] struct {
	ch chan V
}

func removeRelay[V any](relayers []relay[V], ch chan V) []relay[V] {
	for i, rl := range relayers {
		if rl.ch == ch {
			return append(relayers[:i:i], relayers[i+1:]...)
		}
	}
	return relayers
}

type idSlot[T any] struct {
	latest   T
	hasLast  bool
	refs     int
	relayers []relay[T]
}

type querySlot[T any] struct {
	q        query.Query
	latest   []T
	hasLast  bool
	refs     int
	relayers []relay[[]T]
}

// Registry is the reactive subscription table for entity T keyed by ID.
// snapshot returns the current cache contents (the C7 fast path);
// toRecord projects T into a query.Record for query re-evaluation.
type Registry[T any, ID comparable] struct {
	mu       sync.Mutex
	byID     map[ID]*idSlot[T]
	byQuery  map[string]*querySlot[T]
	snapshot func() map[ID]T
	toRecord func(T) query.Record
}

// New constructs a Registry backed by snapshot/toRecord, the cache
// fast-path hooks it needs to re-evaluate query channels on mutation.
func New[T any, ID comparable](snapshot func() map[ID]T, toRecord func(T) query.Record) *Registry[T, ID] {
	return &Registry[T, ID]{
		byID:     make(map[ID]*idSlot[T]),
		byQuery:  make(map[string]*querySlot[T]),
		snapshot: snapshot,
		toRecord: toRecord,
	}
}

// Watch returns a stream keyed by id. If a value has already been
// emitted for id, it is replayed immediately to the new subscriber.
func (r *Registry[T, ID]) Watch(id ID) (<-chan T, *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot, ok := r.byID[id]
	if !ok {
		slot = &idSlot[T]{}
		r.byID[id] = slot
	}
	slot.refs++

	out := make(chan T, 8)
	if slot.hasLast {
		out <- slot.latest
	}
	slot.relayers = append(slot.relayers, relay[T]{ch: out})

	return out, &Handle{release: func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		s, ok := r.byID[id]
		if !ok {
			return
		}
		s.relayers = removeRelay(s.relayers, out)
		s.refs--
		if s.refs <= 0 {
			delete(r.byID, id)
		}
		close(out)
	}}
}

// WatchAll returns a stream keyed by q's stable fingerprint, seeded with
// the query's current result evaluated against the cache snapshot.
func (r *Registry[T, ID]) WatchAll(q query.Query) (<-chan []T, *Handle) {
	key := q.Fingerprint()

	r.mu.Lock()
	slot, ok := r.byQuery[key]
	if !ok {
		slot = &querySlot[T]{q: q}
		r.byQuery[key] = slot
	}
	slot.refs++
	if !slot.hasLast {
		slot.latest = r.evalQuery(q)
		slot.hasLast = true
	}

	out := make(chan []T, 8)
	out <- slot.latest
	slot.relayers = append(slot.relayers, relay[[]T]{ch: out})
	r.mu.Unlock()

	return out, &Handle{release: func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		s, ok := r.byQuery[key]
		if !ok {
			return
		}
		s.relayers = removeRelay(s.relayers, out)
		s.refs--
		if s.refs <= 0 {
			delete(r.byQuery, key)
		}
		close(out)
	}}
}

// evalQuery re-evaluates q against the cache snapshot: filter, stable
// sort by order-by, offset, limit — spec §4.1's in-memory pipeline.
func (r *Registry[T, ID]) evalQuery(q query.Query) []T {
	snap := r.snapshot()
	recs := make([]query.Record, 0, len(snap))
	byRecPtr := make(map[uintptr]T, len(snap))
	for _, item := range snap {
		rec := r.toRecord(item)
		recs = append(recs, rec)
		byRecPtr[recPointer(rec)] = item
	}
	applied := query.Apply(q, recs)
	out := make([]T, 0, len(applied))
	for _, rec := range applied {
		out = append(out, byRecPtr[recPointer(rec)])
	}
	return out
}

func recPointer(r query.Record) uintptr {
	return reflect.ValueOf(r).Pointer()
}

// Notify reports a save (item != nil) or delete (item == nil) for id.
// It emits to the id channel and re-evaluates every active query
// channel, emitting only when the recomputed result differs from what
// was last emitted for that query.
func (r *Registry[T, ID]) Notify(id ID, item *T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if slot, ok := r.byID[id]; ok {
		var v T
		if item != nil {
			v = *item
		}
		slot.latest = v
		slot.hasLast = true
		broadcastTo(slot.relayers, v)
	}

	for _, slot := range r.byQuery {
		next := r.evalQuery(slot.q)
		if slot.hasLast && reflect.DeepEqual(slot.latest, next) {
			continue
		}
		slot.latest = next
		slot.hasLast = true
		broadcastTo(slot.relayers, next)
	}
}

// Close tears down every channel in the registry, for façade teardown.
func (r *Registry[T, ID]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, slot := range r.byID {
		for _, rl := range slot.relayers {
			close(rl.ch)
		}
		delete(r.byID, id)
	}
	for key, slot := range r.byQuery {
		for _, rl := range slot.relayers {
			close(rl.ch)
		}
		delete(r.byQuery, key)
	}
}

func broadcastTo[V any](relayers []relay[V], v V) {
	for _, rl := range relayers {
		select {
		case rl.ch <- v:
		default:
		}
	}
}
