package pagination

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb/core/query"
)

type item struct {
	ID  string
	Seq int
}

func toRecord(i item) query.Record { return query.Record{"id": i.ID, "seq": i.Seq} }
func idOf(i item) string           { return i.ID }

// pagedSource serves fixed-size pages from an in-memory slice, counting
// how many times Fetch is invoked (used to assert load-more dedup).
type pagedSource struct {
	all   []item
	calls int32
}

func (s *pagedSource) fetch(_ context.Context, cursor Cursor, pageSize int) ([]item, bool, error) {
	atomic.AddInt32(&s.calls, 1)
	start := 0
	if cursor != nil {
		seq := cursor[0].(int)
		for i, it := range s.all {
			if it.Seq > seq {
				start = i
				break
			}
			start = i + 1
		}
	}
	end := start + pageSize
	if end > len(s.all) {
		end = len(s.all)
	}
	page := append([]item{}, s.all[start:end]...)
	return page, end < len(s.all), nil
}

func newSource(n int) *pagedSource {
	items := make([]item, n)
	for i := range items {
		items[i] = item{ID: string(rune('a' + i)), Seq: i}
	}
	return &pagedSource{all: items}
}

func waitFor(t *testing.T, ch <-chan State[item], pred func(State[item]) bool) State[item] {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case s := <-ch:
			if pred(s) {
				return s
			}
		case <-deadline:
			t.Fatal("timed out waiting for expected state")
		}
	}
}

func newController(src *pagedSource, pageSize int) *Controller[item, string] {
	q := query.New().OrderBy("seq", query.Asc)
	return New(Config[item]{
		Query:    q,
		PageSize: pageSize,
		Fetch:    src.fetch,
		ToRecord: toRecord,
	}, idOf)
}

func TestFirstPageLoadsOnSubscribe(t *testing.T) {
	src := newSource(10)
	c := newController(src, 3)
	ch := c.Subscribe(context.Background())

	s := waitFor(t, ch, func(s State[item]) bool { return s.Kind == Loaded })
	assert.Len(t, s.Items, 3)
	assert.True(t, s.HasMore)
}

func TestLoadMoreAppendsNextPage(t *testing.T) {
	src := newSource(10)
	c := newController(src, 3)
	ch := c.Subscribe(context.Background())
	waitFor(t, ch, func(s State[item]) bool { return s.Kind == Loaded })

	c.LoadMore(context.Background())
	s := waitFor(t, ch, func(s State[item]) bool { return s.Kind == Loaded && len(s.Items) == 6 })
	assert.Equal(t, "a", s.Items[0].ID)
	assert.Equal(t, "f", s.Items[5].ID)
}

func TestLoadMoreNoOpAtEnd(t *testing.T) {
	src := newSource(2)
	c := newController(src, 3)
	ch := c.Subscribe(context.Background())
	s := waitFor(t, ch, func(s State[item]) bool { return s.Kind == Loaded })
	assert.False(t, s.HasMore)

	before := atomic.LoadInt32(&src.calls)
	c.LoadMore(context.Background())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, before, atomic.LoadInt32(&src.calls), "load_more at end must not fetch")
}

func TestConcurrentLoadMoreDeduped(t *testing.T) {
	src := newSource(30)
	c := newController(src, 5)
	ch := c.Subscribe(context.Background())
	waitFor(t, ch, func(s State[item]) bool { return s.Kind == Loaded })

	before := atomic.LoadInt32(&src.calls)
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.LoadMore(context.Background())
		}()
	}
	wg.Wait()
	waitFor(t, ch, func(s State[item]) bool { return s.Kind == Loaded && len(s.Items) == 10 })
	assert.Equal(t, before+1, atomic.LoadInt32(&src.calls), "concurrent load_more calls must collapse to one fetch")
}

func TestMaxPagesInMemoryEvictsOldest(t *testing.T) {
	src := newSource(30)
	q := query.New().OrderBy("seq", query.Asc)
	c := New(Config[item]{
		Query: q, PageSize: 5, MaxPagesInMemory: 2, Fetch: src.fetch, ToRecord: toRecord,
	}, idOf)
	ch := c.Subscribe(context.Background())
	waitFor(t, ch, func(s State[item]) bool { return s.Kind == Loaded })

	c.LoadMore(context.Background())
	waitFor(t, ch, func(s State[item]) bool { return s.Kind == Loaded && len(s.Items) == 10 })

	c.LoadMore(context.Background())
	s := waitFor(t, ch, func(s State[item]) bool { return s.Kind == Loaded && len(s.Items) == 10 && !s.LoadingMore })
	assert.Equal(t, "f", s.Items[0].ID, "oldest page must have been dropped once the window exceeded max_pages_in_memory")
}

func TestClampAndRefetchResetsWindow(t *testing.T) {
	src := newSource(10)
	c := newController(src, 3)
	ch := c.Subscribe(context.Background())
	waitFor(t, ch, func(s State[item]) bool { return s.Kind == Loaded })

	c.ClampAndRefetch(context.Background(), 99)
	s := waitFor(t, ch, func(s State[item]) bool { return s.Kind == Loaded && len(s.Items) == 3 })
	assert.Equal(t, "a", s.Items[0].ID, "clamped scroll-back re-fetches from the start")
}

func TestOnSaveInsertsMatchingItem(t *testing.T) {
	src := newSource(3)
	c := newController(src, 10)
	ch := c.Subscribe(context.Background())
	waitFor(t, ch, func(s State[item]) bool { return s.Kind == Loaded })

	c.OnSave(item{ID: "z", Seq: 99})
	s := waitFor(t, ch, func(s State[item]) bool { return len(s.Items) == 4 })
	assert.Equal(t, "z", s.Items[3].ID)
}

func TestOnSaveReplacesExistingItem(t *testing.T) {
	src := newSource(3)
	c := newController(src, 10)
	ch := c.Subscribe(context.Background())
	waitFor(t, ch, func(s State[item]) bool { return s.Kind == Loaded })

	c.OnSave(item{ID: "a", Seq: 0})
	s := waitFor(t, ch, func(s State[item]) bool { return len(s.Items) == 3 })
	require.Len(t, s.Items, 3)
}

func TestOnDeleteRemovesItem(t *testing.T) {
	src := newSource(3)
	c := newController(src, 10)
	ch := c.Subscribe(context.Background())
	waitFor(t, ch, func(s State[item]) bool { return s.Kind == Loaded })

	c.OnDelete("b")
	s := waitFor(t, ch, func(s State[item]) bool { return len(s.Items) == 2 })
	for _, it := range s.Items {
		assert.NotEqual(t, "b", it.ID)
	}
}

func TestFetchErrorEmitsErrorStateWithPreviousItems(t *testing.T) {
	calls := 0
	boom := func(_ context.Context, _ Cursor, _ int) ([]item, bool, error) {
		calls++
		if calls == 1 {
			return []item{{ID: "a", Seq: 0}}, true, nil
		}
		return nil, false, errors.New("backend unavailable")
	}
	q := query.New().OrderBy("seq", query.Asc)
	c := New(Config[item]{Query: q, PageSize: 1, Fetch: boom, ToRecord: toRecord}, idOf)
	ch := c.Subscribe(context.Background())
	waitFor(t, ch, func(s State[item]) bool { return s.Kind == Loaded })

	c.LoadMore(context.Background())
	s := waitFor(t, ch, func(s State[item]) bool { return s.Kind == ErrorState })
	require.Error(t, s.Err)
	require.Len(t, s.PreviousItems, 1)
	assert.Equal(t, "a", s.PreviousItems[0].ID)
}
