// Package filter is a typed predicate builder for store queries. A Filter is a
// conjunction of predicates over named fields; storage backends translate it
// into their own query language, and the in-memory store evaluates it directly.
package filter

import (
	"fmt"
	"reflect"
	"strings"
	"time"
)

// Field names an attribute of a stored record. Fields are declared as
// constants next to the model types that own them.
type Field string

type Op int

const (
	OpEq Op = iota
	OpNe
	OpIn
	OpNotIn
	OpLt
	OpGt
)

func (o Op) String() string {
	switch o {
	case OpEq:
		return "eq"
	case OpNe:
		return "ne"
	case OpIn:
		return "in"
	case OpNotIn:
		return "not_in"
	case OpLt:
		return "lt"
	case OpGt:
		return "gt"
	default:
		return "unknown"
	}
}

// Value is the set of types a predicate may compare against.
type Value interface {
	~string | ~int | ~int32 | ~int64 | time.Time
}

type Predicate struct {
	Field  Field
	Op     Op
	Value  any
	Values []any
}

func (p Predicate) String() string {
	if p.Op == OpIn || p.Op == OpNotIn {
		parts := make([]string, len(p.Values))
		for i, v := range p.Values {
			parts[i] = fmt.Sprint(v)
		}
		return fmt.Sprintf("%s %s [%s]", p.Field, p.Op, strings.Join(parts, ","))
	}
	return fmt.Sprintf("%s %s %v", p.Field, p.Op, p.Value)
}

// Filter is an immutable conjunction of predicates. The zero value matches
// every record.
type Filter struct {
	predicates []Predicate
}

func And(predicates ...Predicate) Filter {
	return Filter{predicates: append([]Predicate(nil), predicates...)}
}

// With returns a new filter extended with the given predicates.
func (f Filter) With(predicates ...Predicate) Filter {
	merged := make([]Predicate, 0, len(f.predicates)+len(predicates))
	merged = append(merged, f.predicates...)
	merged = append(merged, predicates...)
	return Filter{predicates: merged}
}

func (f Filter) Predicates() []Predicate {
	return append([]Predicate(nil), f.predicates...)
}

func (f Filter) IsEmpty() bool {
	return len(f.predicates) == 0
}

func (f Filter) String() string {
	if f.IsEmpty() {
		return "<all>"
	}
	parts := make([]string, len(f.predicates))
	for i, p := range f.predicates {
		parts[i] = p.String()
	}
	return strings.Join(parts, " AND ")
}

func Eq[T Value](field Field, v T) Predicate {
	return Predicate{Field: field, Op: OpEq, Value: Normalize(v)}
}

func Ne[T Value](field Field, v T) Predicate {
	return Predicate{Field: field, Op: OpNe, Value: Normalize(v)}
}

// In matches records whose field equals one of values. An empty set matches
// nothing.
func In[T Value](field Field, values []T) Predicate {
	return Predicate{Field: field, Op: OpIn, Values: normalizeAll(values)}
}

// NotIn matches records whose field is outside values. An empty set adds no
// constraint.
func NotIn[T Value](field Field, values []T) Predicate {
	return Predicate{Field: field, Op: OpNotIn, Values: normalizeAll(values)}
}

func Lt[T Value](field Field, v T) Predicate {
	return Predicate{Field: field, Op: OpLt, Value: Normalize(v)}
}

func Gt[T Value](field Field, v T) Predicate {
	return Predicate{Field: field, Op: OpGt, Value: Normalize(v)}
}

func normalizeAll[T Value](values []T) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = Normalize(v)
	}
	return out
}

// Normalize reduces named string and integer types to string and int64 and
// converts times to UTC, so backends only ever see three primitive shapes.
// Nil pointers normalize to nil; non-nil pointers are dereferenced.
func Normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return x
	case int64:
		return x
	case time.Time:
		return x.UTC()
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		return Normalize(rv.Elem().Interface())
	}
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint())
	}
	return v
}
