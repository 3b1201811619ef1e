package postgres

import (
	"fmt"
	"fleetbook/pkg/filter"
	"strings"
)

var operators = map[filter.Op]string{
	filter.OpEq: "=",
	filter.OpNe: "<>",
	filter.OpLt: "<",
	filter.OpGt: ">",
}

// Where translates f into a SQL condition and its positional arguments.
// Placeholders are numbered from argOffset+1 so the condition can follow
// other arguments. An empty filter yields "TRUE".
//
// A NULL column fails =, IN, < and > but satisfies <> and NOT IN, which is
// how the in-memory evaluator treats a missing field.
func Where(f filter.Filter, columns map[filter.Field]string, argOffset int) (string, []any, error) {
	var (
		conds []string
		args  []any
	)
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", argOffset+len(args))
	}

	for _, p := range f.Predicates() {
		col, ok := columns[p.Field]
		if !ok {
			return "", nil, fmt.Errorf("unknown filter field %q", p.Field)
		}

		switch p.Op {
		case filter.OpIn:
			if len(p.Values) == 0 {
				conds = append(conds, "FALSE")
				continue
			}
			conds = append(conds, fmt.Sprintf("%s IN (%s)", col, placeholders(p.Values, next)))
		case filter.OpNotIn:
			if len(p.Values) == 0 {
				continue
			}
			conds = append(conds, fmt.Sprintf("(%s IS NULL OR %s NOT IN (%s))", col, col, placeholders(p.Values, next)))
		case filter.OpNe:
			conds = append(conds, fmt.Sprintf("%s IS DISTINCT FROM %s", col, next(p.Value)))
		default:
			op, ok := operators[p.Op]
			if !ok {
				return "", nil, fmt.Errorf("unsupported filter operator %q", p.Op)
			}
			conds = append(conds, fmt.Sprintf("%s %s %s", col, op, next(p.Value)))
		}
	}

	if len(conds) == 0 {
		return "TRUE", args, nil
	}
	return strings.Join(conds, " AND "), args, nil
}

func placeholders(values []any, next func(any) string) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = next(v)
	}
	return strings.Join(parts, ", ")
}
