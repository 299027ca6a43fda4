package query

import "fmt"

func matchFilter(f Filter, rec Record) bool {
	val, present := rec[f.Field]
	switch f.Op {
	case IsNull:
		return !present || val == nil
	case Eq:
		return present && compareValues(val, f.Operand) == 0
	case Ne:
		return !present || compareValues(val, f.Operand) != 0
	case Lt:
		c, ok := orderedCompare(val, f.Operand)
		return present && ok && c < 0
	case Le:
		c, ok := orderedCompare(val, f.Operand)
		return present && ok && c <= 0
	case Gt:
		c, ok := orderedCompare(val, f.Operand)
		return present && ok && c > 0
	case Ge:
		c, ok := orderedCompare(val, f.Operand)
		return present && ok && c >= 0
	case In:
		return present && containsAny(f.Operand, val)
	case NotIn:
		return !present || !containsAny(f.Operand, val)
	case Contains:
		return present && stringContains(val, f.Operand, strContains)
	case StartsWith:
		return present && stringContains(val, f.Operand, strPrefix)
	case EndsWith:
		return present && stringContains(val, f.Operand, strSuffix)
	case ArrayContains:
		return present && arrayContains(val, f.Operand)
	case ArrayContainsAny:
		return present && arrayContainsAny(val, f.Operand)
	default:
		return false
	}
}

func toSlice(operand any) []any {
	switch v := operand.(type) {
	case []any:
		return v
	default:
		return []any{v}
	}
}

func containsAny(operand, val any) bool {
	for _, item := range toSlice(operand) {
		if compareValues(val, item) == 0 {
			return true
		}
	}
	return false
}

type strMatch func(s, sub string) bool

func strContains(s, sub string) bool { return fmt.Sprintf("%s", s) != "" && indexOf(s, sub) >= 0 }
func strPrefix(s, sub string) bool   { return len(s) >= len(sub) && s[:len(sub)] == sub }
func strSuffix(s, sub string) bool   { return len(s) >= len(sub) && s[len(s)-len(sub):] == sub }

func indexOf(s, sub string) int {
	if len(sub) == 0 {
		return 0
	}
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func stringContains(val, operand any, match strMatch) bool {
	s, ok1 := val.(string)
	sub, ok2 := operand.(string)
	if !ok1 || !ok2 {
		return false
	}
	return match(s, sub)
}

func arrayContains(val, operand any) bool {
	arr, ok := val.([]any)
	if !ok {
		return false
	}
	for _, item := range arr {
		if compareValues(item, operand) == 0 {
			return true
		}
	}
	return false
}

func arrayContainsAny(val, operand any) bool {
	arr, ok := val.([]any)
	if !ok {
		return false
	}
	for _, want := range toSlice(operand) {
		for _, item := range arr {
			if compareValues(item, want) == 0 {
				return true
			}
		}
	}
	return false
}

// compareValues orders two Values. It handles numeric cross-type
// comparison (int vs float64, as produced by JSON decoding) and falls
// back to string comparison for everything else. Equal-but-incomparable
// values compare as 0 (never ordered relative to each other).
func compareValues(a, b any) int {
	if a == nil && b == nil {
		return 0
	}
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		switch {
		case as < bs:
			return -1
		case as > bs:
			return 1
		default:
			return 0
		}
	}
	ab, aok := a.(bool)
	bb, bok := b.(bool)
	if aok && bok {
		if ab == bb {
			return 0
		}
		if !ab && bb {
			return -1
		}
		return 1
	}
	if fmt.Sprint(a) == fmt.Sprint(b) {
		return 0
	}
	return -2 // incomparable, treated as "not equal, no order"
}

// orderedCompare compares a and b only when they have a well-defined order
// (both numeric or both strings); ok is false otherwise.
func orderedCompare(a, b any) (int, bool) {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			switch {
			case af < bf:
				return -1, true
			case af > bf:
				return 1, true
			default:
				return 0, true
			}
		}
		return 0, false
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		switch {
		case as < bs:
			return -1, true
		case as > bs:
			return 1, true
		default:
			return 0, true
		}
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
