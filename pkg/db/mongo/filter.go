package mongo

import (
	"fmt"
	"fleetbook/pkg/filter"

	"go.mongodb.org/mongo-driver/bson"
)

var operators = map[filter.Op]string{
	filter.OpEq:    "$eq",
	filter.OpNe:    "$ne",
	filter.OpIn:    "$in",
	filter.OpNotIn: "$nin",
	filter.OpLt:    "$lt",
	filter.OpGt:    "$gt",
}

// ToBSON translates f into a query document. fields maps each filter field to
// its document key; a field missing from the map is an error. Predicates on
// the same key are merged into one operator document. An empty not_in set is
// dropped, an empty in set is kept and matches nothing.
func ToBSON(f filter.Filter, fields map[filter.Field]string) (bson.M, error) {
	out := bson.M{}
	for _, p := range f.Predicates() {
		key, ok := fields[p.Field]
		if !ok {
			return nil, fmt.Errorf("unknown filter field %q", p.Field)
		}
		op, ok := operators[p.Op]
		if !ok {
			return nil, fmt.Errorf("unsupported filter operator %q", p.Op)
		}

		var value any
		switch p.Op {
		case filter.OpIn, filter.OpNotIn:
			if p.Op == filter.OpNotIn && len(p.Values) == 0 {
				continue
			}
			values := bson.A{}
			for _, v := range p.Values {
				values = append(values, v)
			}
			value = values
		default:
			value = p.Value
		}

		cond, exists := out[key].(bson.M)
		if !exists {
			cond = bson.M{}
			out[key] = cond
		}
		if _, dup := cond[op]; dup {
			return nil, fmt.Errorf("duplicate %s predicate on %q", p.Op, p.Field)
		}
		cond[op] = value
	}
	return out, nil
}
