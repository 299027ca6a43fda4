package delta

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb/core/query"
)

func TestTrackOnlyChangedFields(t *testing.T) {
	a := query.Record{"name": "A", "age": 30, "city": "NYC"}
	b := query.Record{"name": "B", "age": 30, "city": "NYC"}
	now := time.Now()

	d := Track(a, b, "e1", nil, nil, now)
	require.Len(t, d.Changes, 1)
	assert.Equal(t, "name", d.Changes[0].Name)
	assert.Equal(t, "A", d.Changes[0].Old)
	assert.Equal(t, "B", d.Changes[0].New)
}

func TestTrackExcludesFields(t *testing.T) {
	a := query.Record{"name": "A", "updated_at": "t0"}
	b := query.Record{"name": "B", "updated_at": "t1"}
	d := Track(a, b, "e1", nil, map[string]bool{"updated_at": true}, time.Now())
	require.Len(t, d.Changes, 1)
	assert.Equal(t, "name", d.Changes[0].Name)
}

func TestApplyRoundTrip(t *testing.T) {
	a := query.Record{"name": "A", "age": 30}
	b := query.Record{"name": "B", "age": 31}
	d := Track(a, b, "e1", nil, nil, time.Now())
	got := Apply(a, d)
	assert.Equal(t, b, got)
}

// TestS5_LWWMerge is scenario S5 from spec §8.
func TestS5_LWWMerge(t *testing.T) {
	base := query.Record{"name": "A", "age": 30}

	t10 := time.Unix(10, 0)
	t11 := time.Unix(11, 0)

	local := DeltaChange{
		EntityID: "e1",
		Changes: []FieldChange{
			{Name: "name", Old: "A", New: "B", Timestamp: t10},
			{Name: "age", Old: 30, New: 31, Timestamp: t10},
		},
	}
	remote := DeltaChange{
		EntityID: "e1",
		Changes: []FieldChange{
			{Name: "name", Old: "A", New: "C", Timestamp: t11},
		},
	}

	result := Merge(base, local, remote, LastWriteWins, nil)
	assert.Equal(t, "C", result.Merged["name"])
	assert.EqualValues(t, 31, result.Merged["age"])
	assert.Equal(t, []string{"name"}, result.Conflicts)
}

func TestLWWTieBreaksToRemote(t *testing.T) {
	base := query.Record{"name": "A"}
	tie := time.Unix(5, 0)
	local := DeltaChange{Changes: []FieldChange{{Name: "name", New: "local", Timestamp: tie}}}
	remote := DeltaChange{Changes: []FieldChange{{Name: "name", New: "remote", Timestamp: tie}}}

	result := Merge(base, local, remote, LastWriteWins, nil)
	assert.Equal(t, "remote", result.Merged["name"])
}

func TestCustomResolverFallsBackToLWW(t *testing.T) {
	base := query.Record{"name": "A"}
	t10 := time.Unix(10, 0)
	t11 := time.Unix(11, 0)
	local := DeltaChange{Changes: []FieldChange{{Name: "name", New: "local", Timestamp: t10}}}
	remote := DeltaChange{Changes: []FieldChange{{Name: "name", New: "remote", Timestamp: t11}}}

	result := Merge(base, local, remote, Custom, nil)
	assert.Equal(t, "remote", result.Merged["name"])

	called := false
	custom := func(field string, l, r FieldChange) (any, bool) {
		called = true
		return "custom-value", true
	}
	result2 := Merge(base, local, remote, Custom, custom)
	assert.True(t, called)
	assert.Equal(t, "custom-value", result2.Merged["name"])
}

func TestMergeNonConflictingAutoMerges(t *testing.T) {
	base := query.Record{"name": "A", "age": 30, "city": "NYC"}
	local := DeltaChange{Changes: []FieldChange{{Name: "name", New: "B", Timestamp: time.Unix(1, 0)}}}
	remote := DeltaChange{Changes: []FieldChange{{Name: "city", New: "LA", Timestamp: time.Unix(1, 0)}}}

	result := Merge(base, local, remote, LastWriteWins, nil)
	assert.Empty(t, result.Conflicts)
	assert.Equal(t, "B", result.Merged["name"])
	assert.Equal(t, "LA", result.Merged["city"])
	assert.EqualValues(t, 30, result.Merged["age"])
}
