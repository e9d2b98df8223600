package schema

import (
	"bytes"
	"strings"

	"github.com/JAssertz/better-convex-sub001/internal/types"
	"github.com/JAssertz/better-convex-sub001/pkg"
)

// Equal reports whether a stored value matches a query input after coercion.
// A nil stored value only matches a nil input.
func (c *Column) Equal(value any, input any) bool {
	if value == nil || input == nil {
		return value == nil && input == nil
	}

	coerced, err := c.ValidateValue(input)
	if err != nil {
		return false
	}

	switch c.Kind {
	case types.KindBytes:
		a, aok := value.([]byte)
		b, bok := coerced.([]byte)
		return aok && bok && bytes.Equal(a, b)
	case types.KindInt, types.KindRef:
		return pkg.NumToInt(value) == pkg.NumToInt(coerced)
	case types.KindBigInt:
		return pkg.NumToInt64(value) == pkg.NumToInt64(coerced)
	default:
		return value == coerced
	}
}

// OrderCompare orders two stored values of this column's kind.
// The second return is false when the kind has no defined order.
func (c *Column) OrderCompare(a any, b any) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}

	switch c.Kind {
	case types.KindInt, types.KindBigInt, types.KindRef:
		av, bv := pkg.NumToInt64(a), pkg.NumToInt64(b)
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		}
		return 0, true
	case types.KindText, types.KindEnum:
		av, aok := a.(string)
		bv, bok := b.(string)
		if !aok || !bok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case types.KindBytes:
		av, aok := a.([]byte)
		bv, bok := b.([]byte)
		if !aok || !bok {
			return 0, false
		}
		return bytes.Compare(av, bv), true
	case types.KindBool:
		av, aok := a.(bool)
		bv, bok := b.(bool)
		if !aok || !bok {
			return 0, false
		}
		switch {
		case av == bv:
			return 0, true
		case !av:
			return -1, true
		}
		return 1, true
	}

	return 0, false
}
