package types

// ColumnKind is the semantic data type of a column.
type ColumnKind string

const (
	KindText   ColumnKind = "Text"
	KindInt    ColumnKind = "Int"
	KindBigInt ColumnKind = "BigInt"
	KindBool   ColumnKind = "Bool"
	KindBytes  ColumnKind = "Bytes"
	KindEnum   ColumnKind = "Enum"
	KindCustom ColumnKind = "Custom"
	KindRef    ColumnKind = "Ref"
)

func (k ColumnKind) Valid() bool {
	switch k {
	case KindText, KindInt, KindBigInt, KindBool, KindBytes, KindEnum, KindCustom, KindRef:
		return true
	}
	return false
}
