package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderImmutability(t *testing.T) {
	base := New().Where("age", Ge, 18)
	withOrder := base.OrderBy("name", Asc)

	assert.Len(t, base.OrderTerms(), 0, "base query must not be mutated by chaining")
	assert.Len(t, withOrder.OrderTerms(), 1)
	assert.Len(t, withOrder.Filters(), 1)
}

func TestApplyFilterOrderLimitOffset(t *testing.T) {
	records := []Record{
		{"id": "a", "age": 30, "name": "Zed"},
		{"id": "b", "age": 25, "name": "Amy"},
		{"id": "c", "age": 40, "name": "Mid"},
		{"id": "d", "age": 10, "name": "Kid"},
	}

	q := New().Where("age", Ge, 18).OrderBy("age", Asc)
	got := Apply(q, records)
	require.Len(t, got, 3)
	assert.Equal(t, "b", got[0]["id"])
	assert.Equal(t, "a", got[1]["id"])
	assert.Equal(t, "c", got[2]["id"])

	paged := Apply(q.Offset(1).Limit(1), records)
	require.Len(t, paged, 1)
	assert.Equal(t, "a", paged[0]["id"])
}

func TestApplyOffsetBeyondRange(t *testing.T) {
	records := []Record{{"id": "a"}, {"id": "b"}}
	q := New().Offset(10)
	got := Apply(q, records)
	assert.Empty(t, got)
}

func TestOpsStringMatching(t *testing.T) {
	rec := Record{"name": "Alice Smith"}
	assert.True(t, New().Where("name", Contains, "Smith").Matches(rec))
	assert.True(t, New().Where("name", StartsWith, "Alice").Matches(rec))
	assert.True(t, New().Where("name", EndsWith, "Smith").Matches(rec))
	assert.False(t, New().Where("name", StartsWith, "Bob").Matches(rec))
}

func TestOpsArray(t *testing.T) {
	rec := Record{"tags": []any{"a", "b", "c"}}
	assert.True(t, New().Where("tags", ArrayContains, "b").Matches(rec))
	assert.True(t, New().Where("tags", ArrayContainsAny, []any{"x", "c"}).Matches(rec))
	assert.False(t, New().Where("tags", ArrayContainsAny, []any{"x", "y"}).Matches(rec))
}

func TestOpsInNotIn(t *testing.T) {
	rec := Record{"status": "open"}
	assert.True(t, New().Where("status", In, []any{"open", "closed"}).Matches(rec))
	assert.True(t, New().Where("status", NotIn, []any{"closed"}).Matches(rec))
}

func TestIsNull(t *testing.T) {
	rec := Record{"deleted_at": nil}
	assert.True(t, New().Where("deleted_at", IsNull, nil).Matches(rec))
	assert.True(t, New().Where("missing_field", IsNull, nil).Matches(rec))
}

func TestFingerprintStableAndDistinct(t *testing.T) {
	q1 := New().Where("age", Ge, 18).OrderBy("name", Asc).Limit(10)
	q2 := New().Where("age", Ge, 18).OrderBy("name", Asc).Limit(10)
	q3 := New().Where("age", Ge, 21).OrderBy("name", Asc).Limit(10)

	assert.Equal(t, q1.Fingerprint(), q2.Fingerprint())
	assert.NotEqual(t, q1.Fingerprint(), q3.Fingerprint())
}
