package pending

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb/core/errs"
)

type widget struct {
	ID   string
	Name string
}

func TestAddAssignsChangeIDAndEmits(t *testing.T) {
	q := New[widget, string](nil)
	events := q.Subscribe()

	c := q.Add("w1", widget{ID: "w1", Name: "A"}, Create, nil)
	require.NotEqual(t, [16]byte{}, c.ChangeID)

	select {
	case ev := <-events:
		assert.Equal(t, Added, ev.Type)
		assert.Equal(t, c.ChangeID, ev.Change.ChangeID)
	default:
		t.Fatal("expected Added event")
	}
}

func TestCreateAlwaysRevertible(t *testing.T) {
	q := New[widget, string](nil)
	c := q.Add("w1", widget{ID: "w1"}, Create, nil)
	assert.True(t, c.Revertible())
}

func TestUpdateRevertibleOnlyWithOriginal(t *testing.T) {
	q := New[widget, string](nil)
	orig := widget{ID: "w1", Name: "old"}

	withOriginal := q.Add("w1", widget{ID: "w1", Name: "new"}, Update, &orig)
	assert.True(t, withOriginal.Revertible())

	withoutOriginal := q.Add("w2", widget{ID: "w2", Name: "new"}, Update, nil)
	assert.False(t, withoutOriginal.Revertible())
}

func TestUpdateMutatesRetryBookkeeping(t *testing.T) {
	q := New[widget, string](nil)
	c := q.Add("w1", widget{ID: "w1"}, Create, nil)

	rc := uint32(1)
	kind := errs.Network
	attempt := time.Now()
	ok := q.Update(c.ChangeID, Update{RetryCount: &rc, LastError: &kind, LastAttempt: &attempt})
	require.True(t, ok)

	got, found := q.Get(c.ChangeID)
	require.True(t, found)
	assert.Equal(t, uint32(1), got.RetryCount)
	require.NotNil(t, got.LastError)
	assert.Equal(t, errs.Network, *got.LastError)
}

func TestRetryCountMonotonicNonDecreasing(t *testing.T) {
	q := New[widget, string](nil)
	c := q.Add("w1", widget{ID: "w1"}, Create, nil)

	high := uint32(5)
	q.Update(c.ChangeID, Update{RetryCount: &high})
	low := uint32(2)
	q.Update(c.ChangeID, Update{RetryCount: &low})

	got, _ := q.Get(c.ChangeID)
	assert.Equal(t, uint32(5), got.RetryCount, "retry_count must never decrease")
}

func TestCancelReturnsOriginalAndRemoves(t *testing.T) {
	q := New[widget, string](nil)
	orig := widget{ID: "w1", Name: "before"}
	c := q.Add("w1", widget{ID: "w1", Name: "after"}, Update, &orig)

	returned, revertible, ok := q.Cancel(c.ChangeID)
	require.True(t, ok)
	require.NotNil(t, returned)
	assert.Equal(t, orig, *returned)
	assert.True(t, revertible)
	assert.Equal(t, 0, q.Len())
}

func TestRemoveEmitsAndClearsEntityIndex(t *testing.T) {
	q := New[widget, string](nil)
	events := q.Subscribe()
	c := q.Add("w1", widget{ID: "w1"}, Create, nil)
	<-events // drain Added

	ok := q.Remove(c.ChangeID)
	require.True(t, ok)
	assert.Empty(t, q.ByEntity("w1"))

	select {
	case ev := <-events:
		assert.Equal(t, Removed, ev.Type)
	default:
		t.Fatal("expected Removed event")
	}
}

func TestRetryAllMarksFailedChangesOnly(t *testing.T) {
	q := New[widget, string](nil)
	healthy := q.Add("w1", widget{ID: "w1"}, Create, nil)
	failing := q.Add("w2", widget{ID: "w2"}, Create, nil)

	kind := errs.Network
	now := time.Now()
	q.Update(failing.ChangeID, Update{LastError: &kind, LastAttempt: &now})

	marked := q.RetryAll()
	require.Len(t, marked, 1)
	assert.Equal(t, failing.ChangeID, marked[0].ChangeID)
	assert.Nil(t, marked[0].LastAttempt, "retry_all clears last_attempt so the sync driver retries immediately")

	got, _ := q.Get(healthy.ChangeID)
	assert.Nil(t, got.LastError)
}

func TestInsertionOrderPreserved(t *testing.T) {
	q := New[widget, string](nil)
	a := q.Add("w1", widget{ID: "w1"}, Create, nil)
	b := q.Add("w2", widget{ID: "w2"}, Create, nil)
	c := q.Add("w3", widget{ID: "w3"}, Create, nil)

	all := q.All()
	require.Len(t, all, 3)
	assert.Equal(t, a.ChangeID, all[0].ChangeID)
	assert.Equal(t, b.ChangeID, all[1].ChangeID)
	assert.Equal(t, c.ChangeID, all[2].ChangeID)
}
