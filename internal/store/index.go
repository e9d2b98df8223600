package store

import (
	"fmt"
	"strings"
)

// separates column values inside a composite index key
const indexKeySep = "\x1f"

func FormatIndexValue(v any) string {
	return fmt.Sprintf("%v", v)
}

// IndexKeyFor builds the composite key for a row under a spec. Rows with a
// nil value in any indexed column are not indexable: nulls never equal each
// other, so they can't conflict and don't belong in the map.
func IndexKeyFor(spec IndexSpec, row map[string]any) (string, bool) {
	parts := make([]string, 0, len(spec.Columns))
	for _, col := range spec.Columns {
		v, ok := row[col]
		if !ok || v == nil {
			return "", false
		}
		parts = append(parts, FormatIndexValue(v))
	}
	return strings.Join(parts, indexKeySep), true
}

// IndexKeyForValues builds a probe key from already-coerced values, in the
// spec's column order. Any nil value makes the probe unanswerable.
func IndexKeyForValues(values []any) (string, bool) {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		if v == nil {
			return "", false
		}
		parts = append(parts, FormatIndexValue(v))
	}
	return strings.Join(parts, indexKeySep), true
}
