package schema

import (
	"github.com/JAssertz/better-convex-sub001/pkg"
)

// Row maps a column name to its saved data.
// The store owns the two system fields; they never appear in column declarations.
type Row = pkg.Map[string, any]

const (
	SysFieldID      = "_id"
	SysFieldCreated = "_creationTime"
)

func RowID(r Row) int {
	return pkg.NumToInt(r.Get(SysFieldID))
}

func SetRowID(r Row, id int) {
	r.Set(SysFieldID, id)
}

func RowCreatedAt(r Row) int64 {
	return pkg.NumToInt64(r.Get(SysFieldCreated))
}

func CopyRow(r Row) Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
