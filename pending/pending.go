// Package pending implements the outgoing-mutation queue of spec §4.5: an
// insertion-ordered log of changes awaiting sync, indexed by change_id and
// secondarily by entity_id, with retry bookkeeping and revert support.
// Grounded on internal/storage/sqlite/dirty.go's dirty-issue tracking
// (mark/get/clear-by-id, ordered by mark time) generalized from a bare
// dirty-id set to a full change log carrying the original value needed
// for optimistic-update rollback, with github.com/google/uuid minting
// change_id the way the teacher's go.mod already pulls in uuid for its
// internal/types fixtures.
package pending

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stratadb/core/errs"
)

// Op is the kind of mutation a PendingChange represents.
type Op int

const (
	Create Op = iota
	Update
	Delete
)

func (o Op) String() string {
	switch o {
	case Update:
		return "update"
	case Delete:
		return "delete"
	default:
		return "create"
	}
}

// Change is spec §3's PendingChange<T, ID>.
type Change[T any, ID comparable] struct {
	ChangeID    uuid.UUID
	EntityID    ID
	Item        T
	Op          Op
	CreatedAt   time.Time
	Original    *T
	RetryCount  uint32
	LastError   *errs.Kind
	LastAttempt *time.Time
}

// Revertible reports whether cancel can restore prior cache state:
// creates are always revertible (the optimistic insert is simply
// deleted); updates and deletes are revertible only if Original was
// captured.
func (c Change[T, ID]) Revertible() bool {
	if c.Op == Create {
		return true
	}
	return c.Original != nil
}

// Event is emitted on every add/update/remove, the "pending-changes
// stream" of spec §4.5.
type Event[T any, ID comparable] struct {
	Type   EventType
	Change Change[T, ID]
}

type EventType int

const (
	Added EventType = iota
	Updated
	Removed
)

// Update carries the only fields update() may mutate.
type Update struct {
	RetryCount  *uint32
	LastError   *errs.Kind
	LastAttempt *time.Time
}

// Queue is the insertion-ordered pending-change log.
type Queue[T any, ID comparable] struct {
	mu        sync.Mutex
	order     []uuid.UUID
	byID      map[uuid.UUID]*Change[T, ID]
	byEntity  map[ID][]uuid.UUID
	listeners []chan Event[T, ID]
	now       func() time.Time
}

// New constructs an empty Queue. now defaults to time.Now if nil.
func New[T any, ID comparable](now func() time.Time) *Queue[T, ID] {
	if now == nil {
		now = time.Now
	}
	return &Queue[T, ID]{
		byID:     make(map[uuid.UUID]*Change[T, ID]),
		byEntity: make(map[ID][]uuid.UUID),
		now:      now,
	}
}

// Subscribe returns a channel receiving every future Event. Buffered;
// slow subscribers miss events rather than block the queue.
func (q *Queue[T, ID]) Subscribe() <-chan Event[T, ID] {
	ch := make(chan Event[T, ID], 32)
	q.mu.Lock()
	q.listeners = append(q.listeners, ch)
	q.mu.Unlock()
	return ch
}

func (q *Queue[T, ID]) broadcast(ev Event[T, ID]) {
	for _, ch := range q.listeners {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Add enqueues a new change, assigning it a fresh change_id, and emits it
// on the pending-changes stream.
func (q *Queue[T, ID]) Add(entityID ID, item T, op Op, original *T) Change[T, ID] {
	q.mu.Lock()
	defer q.mu.Unlock()

	c := Change[T, ID]{
		ChangeID:  uuid.New(),
		EntityID:  entityID,
		Item:      item,
		Op:        op,
		CreatedAt: q.now(),
		Original:  original,
	}
	q.order = append(q.order, c.ChangeID)
	q.byID[c.ChangeID] = &c
	q.byEntity[entityID] = append(q.byEntity[entityID], c.ChangeID)
	q.broadcast(Event[T, ID]{Type: Added, Change: c})
	return c
}

// Update mutates retry_count/last_error/last_attempt on the change
// identified by id. Apart from RetryAll and Touch, which also clear
// last_attempt, it is the only mutation a change undergoes after Add.
// Returns false if id is not queued.
func (q *Queue[T, ID]) Update(id uuid.UUID, u Update) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	c, ok := q.byID[id]
	if !ok {
		return false
	}
	if u.RetryCount != nil && *u.RetryCount > c.RetryCount {
		c.RetryCount = *u.RetryCount
	}
	if u.LastError != nil {
		c.LastError = u.LastError
	}
	if u.LastAttempt != nil {
		c.LastAttempt = u.LastAttempt
	}
	q.broadcast(Event[T, ID]{Type: Updated, Change: *c})
	return true
}

// Remove deletes a committed change and emits its removal. Used when a
// change has synced successfully.
func (q *Queue[T, ID]) Remove(id uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.removeLocked(id)
}

func (q *Queue[T, ID]) removeLocked(id uuid.UUID) bool {
	c, ok := q.byID[id]
	if !ok {
		return false
	}
	delete(q.byID, id)
	q.order = removeUUID(q.order, id)
	q.byEntity[c.EntityID] = removeUUID(q.byEntity[c.EntityID], id)
	if len(q.byEntity[c.EntityID]) == 0 {
		delete(q.byEntity, c.EntityID)
	}
	q.broadcast(Event[T, ID]{Type: Removed, Change: *c})
	return true
}

// Cancel removes the change and returns its Original value for the
// caller to apply as a cache rollback. The queue itself never mutates
// cache state; it only hands back what the caller needs to do so.
func (q *Queue[T, ID]) Cancel(id uuid.UUID) (original *T, revertible bool, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	c, found := q.byID[id]
	if !found {
		return nil, false, false
	}
	rev := c.Revertible()
	orig := c.Original
	q.removeLocked(id)
	return orig, rev, true
}

// RetryAll marks every change currently carrying a LastError for
// immediate retry by clearing LastAttempt, so the sync driver's next
// scan picks it up. It performs no network I/O itself.
func (q *Queue[T, ID]) RetryAll() []Change[T, ID] {
	q.mu.Lock()
	defer q.mu.Unlock()

	var marked []Change[T, ID]
	for _, id := range q.order {
		c := q.byID[id]
		if c.LastError != nil {
			c.LastAttempt = nil
			marked = append(marked, *c)
		}
	}
	return marked
}

// Touch clears LastAttempt on a single change so the sync driver's
// next scan treats it as immediately due, bypassing whatever backoff
// interval its RetryCount would otherwise impose. Returns false if id
// is not queued.
func (q *Queue[T, ID]) Touch(id uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	c, ok := q.byID[id]
	if !ok {
		return false
	}
	c.LastAttempt = nil
	return true
}

// Get returns the change for id, if queued.
func (q *Queue[T, ID]) Get(id uuid.UUID) (Change[T, ID], bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	c, ok := q.byID[id]
	if !ok {
		return Change[T, ID]{}, false
	}
	return *c, true
}

// ByEntity returns every queued change for entityID, in insertion order.
func (q *Queue[T, ID]) ByEntity(entityID ID) []Change[T, ID] {
	q.mu.Lock()
	defer q.mu.Unlock()
	ids := q.byEntity[entityID]
	out := make([]Change[T, ID], 0, len(ids))
	for _, id := range ids {
		out = append(out, *q.byID[id])
	}
	return out
}

// All returns every queued change, in insertion order.
func (q *Queue[T, ID]) All() []Change[T, ID] {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Change[T, ID], 0, len(q.order))
	for _, id := range q.order {
		out = append(out, *q.byID[id])
	}
	return out
}

// Len reports the number of queued changes.
func (q *Queue[T, ID]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}

func removeUUID(s []uuid.UUID, target uuid.UUID) []uuid.UUID {
	for i, id := range s {
		if id == target {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}
