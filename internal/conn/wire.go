package conn

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/JAssertz/better-convex-sub001/internal/query"
)

// The wire filter grammar mirrors the in-process combinators. An object is
// a conjunction of its keys: "and"/"or" take arrays, "not" takes an object,
// any other key names a column. A column's value is either a literal
// (shorthand for eq) or an operator object:
//
//	{"name": "tobs", "age": {"gte": 18, "lt": 65}, "or": [...]}
type WireFilter map[string]json.RawMessage

func (w WireFilter) Build() (query.Filter, error) {
	if len(w) == 0 {
		return nil, nil
	}

	filters := []query.Filter{}
	for key, raw := range w {
		f, err := buildFilterEntry(key, raw)
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}
	if len(filters) == 1 {
		return filters[0], nil
	}
	return query.And(filters...), nil
}

func buildFilterEntry(key string, raw json.RawMessage) (query.Filter, error) {
	switch key {
	case "and", "or":
		var parts []WireFilter
		if err := json.Unmarshal(raw, &parts); err != nil {
			return nil, fmt.Errorf("%q expects an array of filters: %w", key, err)
		}
		filters := make([]query.Filter, 0, len(parts))
		for _, part := range parts {
			f, err := part.Build()
			if err != nil {
				return nil, err
			}
			if f != nil {
				filters = append(filters, f)
			}
		}
		if key == "or" {
			return query.Or(filters...), nil
		}
		return query.And(filters...), nil
	case "not":
		var part WireFilter
		if err := json.Unmarshal(raw, &part); err != nil {
			return nil, fmt.Errorf("\"not\" expects a filter object: %w", err)
		}
		f, err := part.Build()
		if err != nil {
			return nil, err
		}
		return query.Not(f), nil
	default:
		return buildColumnFilter(key, raw)
	}
}

func buildColumnFilter(column string, raw json.RawMessage) (query.Filter, error) {
	if !bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) {
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, err
		}
		return query.Eq(column, value), nil
	}

	var ops map[string]json.RawMessage
	if err := json.Unmarshal(raw, &ops); err != nil {
		return nil, err
	}

	filters := []query.Filter{}
	for op, op_raw := range ops {
		f, err := buildColumnOp(column, op, op_raw)
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}
	if len(filters) == 1 {
		return filters[0], nil
	}
	return query.And(filters...), nil
}

func buildColumnOp(column, op string, raw json.RawMessage) (query.Filter, error) {
	switch op {
	case "eq", "gt", "gte", "lt", "lte":
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, err
		}
		switch op {
		case "eq":
			return query.Eq(column, value), nil
		case "gt":
			return query.Gt(column, value), nil
		case "gte":
			return query.Gte(column, value), nil
		case "lt":
			return query.Lt(column, value), nil
		default:
			return query.Lte(column, value), nil
		}
	case "between", "notBetween":
		var bounds []any
		if err := json.Unmarshal(raw, &bounds); err != nil {
			return nil, err
		}
		if len(bounds) != 2 {
			return nil, fmt.Errorf("%q on column %s expects exactly two bounds", op, column)
		}
		if op == "between" {
			return query.Between(column, bounds[0], bounds[1]), nil
		}
		return query.NotBetween(column, bounds[0], bounds[1]), nil
	case "isNull":
		var wanted bool
		if err := json.Unmarshal(raw, &wanted); err != nil {
			return nil, err
		}
		if wanted {
			return query.IsNull(column), nil
		}
		return query.Not(query.IsNull(column)), nil
	case "in":
		var values []any
		if err := json.Unmarshal(raw, &values); err != nil {
			return nil, err
		}
		return query.In(column, values...), nil
	default:
		return nil, fmt.Errorf("unknown filter operator %q on column %s", op, column)
	}
}

// WireInclude describes a relation to eager-load, optionally filtered and
// nested further.
type WireInclude struct {
	Where   WireFilter              `json:"where"`
	Include map[string]*WireInclude `json:"include"`
}

func buildInclude(wire map[string]*WireInclude) (map[string]*query.FindArgs, error) {
	if len(wire) == 0 {
		return nil, nil
	}
	include := map[string]*query.FindArgs{}
	for relation, inc := range wire {
		args := &query.FindArgs{}
		if inc != nil {
			where, err := inc.Where.Build()
			if err != nil {
				return nil, err
			}
			nested, err := buildInclude(inc.Include)
			if err != nil {
				return nil, err
			}
			args.Where = where
			args.Include = nested
		}
		include[relation] = args
	}
	return include, nil
}
