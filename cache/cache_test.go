package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb/core/query"
)

type user struct {
	ID   string
	Name string
}

func toRecord(u user) query.Record { return query.Record{"id": u.ID, "name": u.Name} }

func TestPutGetRoundTrip(t *testing.T) {
	c := New[user, string](nil)
	c.Put("u1", user{ID: "u1", Name: "Alice"}, []string{"team-5"})

	e, ok := c.Get("u1")
	require.True(t, ok)
	assert.Equal(t, "Alice", e.Item.Name)
	assert.True(t, e.Tags["team-5"])
	assert.Nil(t, e.StaleAt)
}

// TestS6_TagInvalidation is scenario S6 from spec §8.
func TestS6_TagInvalidation(t *testing.T) {
	c := New[user, string](nil)
	c.Put("u1", user{ID: "u1", Name: "A"}, []string{"team-5"})
	c.Put("u2", user{ID: "u2", Name: "B"}, []string{"team-5"})
	c.Put("u3", user{ID: "u3", Name: "C"}, []string{"team-5"})

	touched := c.InvalidateByTags([]string{"team-5"})
	assert.Len(t, touched, 3)

	for _, id := range []string{"u1", "u2", "u3"} {
		e, ok := c.Get(id)
		require.True(t, ok)
		assert.NotNil(t, e.StaleAt, "%s should be marked stale", id)
	}
}

func TestInvalidateIdempotent(t *testing.T) {
	c := New[user, string](nil)
	c.Put("u1", user{ID: "u1"}, nil)
	c.Invalidate([]string{"u1"})
	first, _ := c.Get("u1")
	staleAt := *first.StaleAt

	c.Invalidate([]string{"u1"})
	second, _ := c.Get("u1")
	assert.Equal(t, staleAt, *second.StaleAt, "re-invalidating must not bump stale_at")
}

func TestTagIndexConsistencyAfterDelete(t *testing.T) {
	c := New[user, string](nil)
	c.Put("u1", user{ID: "u1"}, []string{"t1", "t2"})
	c.Delete("u1")

	touched := c.InvalidateByTags([]string{"t1", "t2"})
	assert.Empty(t, touched, "deleted entry must be gone from every tag bucket")
	assert.Equal(t, 0, c.Stats().Tags)
}

func TestRemoveTagsRebuildsIndex(t *testing.T) {
	c := New[user, string](nil)
	c.Put("u1", user{ID: "u1"}, []string{"a", "b"})
	c.RemoveTags("u1", []string{"a"})

	touchedA := c.InvalidateByTags([]string{"a"})
	assert.Empty(t, touchedA)
	touchedB := c.InvalidateByTags([]string{"b"})
	assert.Len(t, touchedB, 1)
}

func TestInvalidateWhere(t *testing.T) {
	c := New[user, string](nil)
	c.Put("u1", user{ID: "u1", Name: "Alice"}, nil)
	c.Put("u2", user{ID: "u2", Name: "Bob"}, nil)

	q := query.New().Where("name", query.Eq, "Alice")
	touched := c.InvalidateWhere(q, toRecord)
	require.Len(t, touched, 1)
	assert.Equal(t, "u1", touched[0])
}

func TestStatsDerivedFromIndex(t *testing.T) {
	c := New[user, string](nil)
	c.Put("u1", user{ID: "u1"}, []string{"t1"})
	c.Put("u2", user{ID: "u2"}, []string{"t1", "t2"})

	stats := c.Stats()
	assert.Equal(t, 2, stats.Entries)
	assert.Equal(t, 2, stats.Tags)
	assert.Equal(t, 0, stats.Stale)
}
