package filter

import "time"

// Record is implemented by models that can be evaluated in memory. A missing
// or null field reports ok=false.
type Record interface {
	FieldValue(field Field) (value any, ok bool)
}

// Matches evaluates the filter against a record using the same semantics the
// database backends apply: a missing field fails eq, in, lt and gt, and
// satisfies ne and not_in.
func (f Filter) Matches(r Record) bool {
	for _, p := range f.predicates {
		if !p.matches(r) {
			return false
		}
	}
	return true
}

func (p Predicate) matches(r Record) bool {
	raw, ok := r.FieldValue(p.Field)
	var v any
	if ok {
		v = Normalize(raw)
		ok = v != nil
	}

	switch p.Op {
	case OpEq:
		return ok && equal(v, p.Value)
	case OpNe:
		return !ok || !equal(v, p.Value)
	case OpIn:
		return ok && contains(p.Values, v)
	case OpNotIn:
		return !ok || !contains(p.Values, v)
	case OpLt:
		c, cmpOK := compare(v, p.Value)
		return ok && cmpOK && c < 0
	case OpGt:
		c, cmpOK := compare(v, p.Value)
		return ok && cmpOK && c > 0
	}
	return false
}

func contains(values []any, v any) bool {
	for _, candidate := range values {
		if equal(candidate, v) {
			return true
		}
	}
	return false
}

func equal(a, b any) bool {
	c, ok := compare(a, b)
	return ok && c == 0
}

func compare(a, b any) (int, bool) {
	switch x := a.(type) {
	case int64:
		y, ok := b.(int64)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case time.Time:
		y, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return x.Compare(y), true
	}
	return 0, false
}
