// Package delta implements field-level diff/apply and three-way merge
// (spec §4.6). It is grounded on internal/merge/merge.go's three-way
// JSONL merge (same base/local/remote shape, conflict detection by field).
package delta

import (
	"reflect"
	"time"

	"github.com/stratadb/core/query"
)

// FieldChange records one field's before/after value.
type FieldChange struct {
	Name      string
	Old       any
	New       any
	Timestamp time.Time
}

// DeltaChange is the field-level diff between two versions of an entity.
type DeltaChange struct {
	EntityID    string
	Changes     []FieldChange
	Timestamp   time.Time
	BaseVersion *uint64
}

// ChangedFields returns the set of field names touched by the delta.
func (d DeltaChange) ChangedFields() map[string]bool {
	out := make(map[string]bool, len(d.Changes))
	for _, c := range d.Changes {
		out[c.Name] = true
	}
	return out
}

func (d DeltaChange) fieldChange(name string) (FieldChange, bool) {
	for _, c := range d.Changes {
		if c.Name == name {
			return c, true
		}
	}
	return FieldChange{}, false
}

// Track computes the DeltaChange between original and modified, skipping
// any field named in excludeFields. A field with a value only on one side
// is still tracked (old or new is nil on the absent side).
func Track(original, modified query.Record, entityID string, baseVersion *uint64, excludeFields map[string]bool, now time.Time) DeltaChange {
	seen := make(map[string]bool)
	var changes []FieldChange
	for name := range original {
		seen[name] = true
	}
	for name := range modified {
		seen[name] = true
	}
	for name := range seen {
		if excludeFields[name] {
			continue
		}
		oldVal, newVal := original[name], modified[name]
		if deepEqual(oldVal, newVal) {
			continue
		}
		changes = append(changes, FieldChange{Name: name, Old: oldVal, New: newVal, Timestamp: now})
	}
	return DeltaChange{EntityID: entityID, Changes: changes, Timestamp: now, BaseVersion: baseVersion}
}

// Apply returns base with each change's New value substituted at its
// field name. base is not mutated.
func Apply(base query.Record, d DeltaChange) query.Record {
	out := cloneRecord(base)
	for _, c := range d.Changes {
		out[c.Name] = c.New
	}
	return out
}

func cloneRecord(r query.Record) query.Record {
	out := make(query.Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func deepEqual(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
