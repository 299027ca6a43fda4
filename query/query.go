// Package query implements the declarative, immutable filter/order/limit
// tree shared by every backend and by the in-memory cache fast path. It
// never mutates: every builder method returns a new Query value. Backends
// translate a Query into their native representation; the core only ever
// evaluates it against an in-memory record list (cache fast path, tests).
package query

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Op is one atom's comparison operator.
type Op string

const (
	Eq              Op = "eq"
	Ne              Op = "ne"
	Lt              Op = "lt"
	Le              Op = "le"
	Gt              Op = "gt"
	Ge              Op = "ge"
	In              Op = "in"
	NotIn           Op = "not_in"
	IsNull          Op = "is_null"
	Contains        Op = "contains"
	StartsWith      Op = "starts_with"
	EndsWith        Op = "ends_with"
	ArrayContains   Op = "array_contains"
	ArrayContainsAny Op = "array_contains_any"
)

// Direction is an order-by sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Filter is one atom (field, op, operand) in the conjunction.
type Filter struct {
	Field   string
	Op      Op
	Operand any
}

// OrderTerm is one (field, direction) tuple in the order-by list.
type OrderTerm struct {
	Field     string
	Direction Direction
}

// Record is the JSON-like bidirectional mapping named in spec §3: the
// domain of primitives, nested maps, and lists, keyed by field name.
type Record map[string]any

// Query is an immutable filter/order/limit/offset tree. The zero value is
// a valid query matching everything. Construct via New and chain builder
// methods; every method returns a new value, never mutates the receiver.
type Query struct {
	filters []Filter
	order   []OrderTerm
	limit   *int
	offset  *int
	preload []string
}

// New returns an empty Query (matches every record, no ordering or
// pagination).
func New() Query {
	return Query{}
}

// Where appends a filter atom and returns a new Query. Filters conjoin
// (AND semantics); call Where repeatedly for additional atoms.
func (q Query) Where(field string, op Op, operand any) Query {
	next := q.clone()
	next.filters = append(next.filters, Filter{Field: field, Op: op, Operand: operand})
	return next
}

// OrderBy appends an order-by term and returns a new Query.
func (q Query) OrderBy(field string, dir Direction) Query {
	next := q.clone()
	next.order = append(next.order, OrderTerm{Field: field, Direction: dir})
	return next
}

// Limit sets a non-negative row limit and returns a new Query.
func (q Query) Limit(n int) Query {
	next := q.clone()
	v := n
	next.limit = &v
	return next
}

// Offset sets a non-negative row offset and returns a new Query. Offset
// and cursor-based pagination state are mutually exclusive in paginated
// streams (§3) — the pagination controller never sets both.
func (q Query) Offset(n int) Query {
	next := q.clone()
	v := n
	next.offset = &v
	return next
}

// Preload marks tag fields the caller wants eagerly resolved. The core
// passes this through to backends unchanged; it has no in-memory
// evaluation effect.
func (q Query) Preload(tagFields ...string) Query {
	next := q.clone()
	next.preload = append(append([]string{}, next.preload...), tagFields...)
	return next
}

// Filters returns the ordered filter atoms.
func (q Query) Filters() []Filter { return append([]Filter{}, q.filters...) }

// OrderTerms returns the ordered order-by terms.
func (q Query) OrderTerms() []OrderTerm { return append([]OrderTerm{}, q.order...) }

// LimitValue returns the configured limit, or (0, false) if unset.
func (q Query) LimitValue() (int, bool) {
	if q.limit == nil {
		return 0, false
	}
	return *q.limit, true
}

// OffsetValue returns the configured offset, or (0, false) if unset.
func (q Query) OffsetValue() (int, bool) {
	if q.offset == nil {
		return 0, false
	}
	return *q.offset, true
}

// PreloadFields returns the configured preload tag fields.
func (q Query) PreloadFields() []string { return append([]string{}, q.preload...) }

func (q Query) clone() Query {
	next := Query{
		filters: append([]Filter{}, q.filters...),
		order:   append([]OrderTerm{}, q.order...),
		preload: append([]string{}, q.preload...),
	}
	if q.limit != nil {
		v := *q.limit
		next.limit = &v
	}
	if q.offset != nil {
		v := *q.offset
		next.offset = &v
	}
	return next
}

// Matches evaluates the filter conjunction against a single record.
func (q Query) Matches(rec Record) bool {
	for _, f := range q.filters {
		if !matchFilter(f, rec) {
			return false
		}
	}
	return true
}

// Apply runs the full in-memory pipeline named in spec §4.1: filter in
// order, stable-sort by order-by (lexicographic comparator over the
// order-by list), then offset, then limit.
func Apply(q Query, records []Record) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if q.Matches(r) {
			out = append(out, r)
		}
	}
	if len(q.order) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			return lessByOrder(q.order, out[i], out[j])
		})
	}
	if off, ok := q.OffsetValue(); ok && off > 0 {
		if off >= len(out) {
			out = nil
		} else {
			out = out[off:]
		}
	}
	if lim, ok := q.LimitValue(); ok && lim >= 0 && lim < len(out) {
		out = out[:lim]
	}
	return out
}

func lessByOrder(terms []OrderTerm, a, b Record) bool {
	for _, t := range terms {
		c := compareValues(a[t.Field], b[t.Field])
		if c == 0 || c == -2 {
			continue
		}
		if t.Direction == Desc {
			return c > 0
		}
		return c < 0
	}
	return false
}

// Fingerprint returns a stable hash of the Query suitable as a reactive
// channel key (GLOSSARY: "Fingerprint").
func (q Query) Fingerprint() string {
	var b strings.Builder
	for _, f := range q.filters {
		fmt.Fprintf(&b, "f:%s|%s|%v;", f.Field, f.Op, f.Operand)
	}
	for _, o := range q.order {
		fmt.Fprintf(&b, "o:%s|%s;", o.Field, o.Direction)
	}
	if lim, ok := q.LimitValue(); ok {
		fmt.Fprintf(&b, "l:%d;", lim)
	}
	if off, ok := q.OffsetValue(); ok {
		fmt.Fprintf(&b, "s:%d;", off)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
