package delta

import (
	"sort"

	"github.com/stratadb/core/query"
)

// Strategy selects how conflicting fields are resolved during a
// three-way merge (spec §4.6).
type Strategy int

const (
	LastWriteWins Strategy = iota
	FieldLevel
	Custom
)

// CustomResolver is the open callback for Strategy=Custom. If it returns
// ok=false (or is nil), merge falls back to LastWriteWins.
type CustomResolver func(field string, local, remote FieldChange) (value any, ok bool)

// MergeResult carries the merged entity alongside the detected conflicts
// and the map of values chosen to resolve them.
type MergeResult struct {
	Merged    query.Record
	Conflicts []string
	Resolved  map[string]any
}

// Merge performs the three-way merge of spec §4.6:
//  1. conflicting_fields = intersection of the two changed field sets.
//  2. apply every non-conflicting local change into a working copy.
//  3. apply every non-conflicting remote change into the working copy.
//  4. resolve each conflicting field per strategy.
func Merge(base query.Record, local, remote DeltaChange, strategy Strategy, custom CustomResolver) MergeResult {
	localFields := local.ChangedFields()
	remoteFields := remote.ChangedFields()

	var conflicting []string
	for f := range localFields {
		if remoteFields[f] {
			conflicting = append(conflicting, f)
		}
	}
	sort.Strings(conflicting)
	conflictSet := make(map[string]bool, len(conflicting))
	for _, f := range conflicting {
		conflictSet[f] = true
	}

	working := cloneRecord(base)
	for _, c := range local.Changes {
		if !conflictSet[c.Name] {
			working[c.Name] = c.New
		}
	}
	for _, c := range remote.Changes {
		if !conflictSet[c.Name] {
			working[c.Name] = c.New
		}
	}

	resolved := make(map[string]any, len(conflicting))
	for _, field := range conflicting {
		lc, _ := local.fieldChange(field)
		rc, _ := remote.fieldChange(field)
		value := resolveConflict(field, lc, rc, strategy, custom)
		working[field] = value
		resolved[field] = value
	}

	return MergeResult{Merged: working, Conflicts: conflicting, Resolved: resolved}
}

func resolveConflict(field string, local, remote FieldChange, strategy Strategy, custom CustomResolver) any {
	switch strategy {
	case Custom:
		if custom != nil {
			if v, ok := custom(field, local, remote); ok {
				return v
			}
		}
		return lastWriteWins(local, remote)
	case FieldLevel, LastWriteWins:
		return lastWriteWins(local, remote)
	default:
		return lastWriteWins(local, remote)
	}
}

// lastWriteWins picks the field whose timestamp is later, ties broken by
// preferring remote (spec §4.6).
func lastWriteWins(local, remote FieldChange) any {
	if local.Timestamp.After(remote.Timestamp) {
		return local.New
	}
	return remote.New
}
