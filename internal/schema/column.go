package schema

import (
	"strconv"
	"strings"

	"github.com/JAssertz/better-convex-sub001/internal/apperr"
	"github.com/JAssertz/better-convex-sub001/internal/types"
	"github.com/JAssertz/better-convex-sub001/pkg"
)

// Column is a typed column descriptor. Built with the fluent constructors
// below and immutable once its table has been registered in a schema.
type Column struct {
	Name        string
	Kind        types.ColumnKind
	NotNullable bool

	EnumValues   []string
	CheckFn      func(any) error `json:"-"`
	RefTable     string
	TypeOverride string

	defaultFn  func() any
	onUpdateFn func() any

	Table *Table `json:"-"`
}

func Text(name string) *Column   { return &Column{Name: name, Kind: types.KindText} }
func Int(name string) *Column    { return &Column{Name: name, Kind: types.KindInt} }
func BigInt(name string) *Column { return &Column{Name: name, Kind: types.KindBigInt} }
func Bool(name string) *Column   { return &Column{Name: name, Kind: types.KindBool} }
func Bytes(name string) *Column  { return &Column{Name: name, Kind: types.KindBytes} }

func Enum(name string, values ...string) *Column {
	return &Column{Name: name, Kind: types.KindEnum, EnumValues: values}
}

func Custom(name string, check func(any) error) *Column {
	return &Column{Name: name, Kind: types.KindCustom, CheckFn: check}
}

// Ref declares a foreign-key column holding row ids of the named table.
// The target table must exist by the time the schema is built.
func Ref(name string, table string) *Column {
	return &Column{Name: name, Kind: types.KindRef, RefTable: table}
}

func (c *Column) NotNull() *Column {
	c.NotNullable = true
	return c
}

func (c *Column) Default(value any) *Column {
	c.defaultFn = func() any { return value }
	return c
}

func (c *Column) DefaultFn(fn func() any) *Column {
	c.defaultFn = fn
	return c
}

func (c *Column) OnUpdateFn(fn func() any) *Column {
	c.onUpdateFn = fn
	return c
}

// As records a narrowing type name for an otherwise generic kind.
// It is declaration metadata only; nothing at runtime keys off it.
func (c *Column) As(typeName string) *Column {
	c.TypeOverride = typeName
	return c
}

func (c *Column) HasDefault() bool   { return c.defaultFn != nil }
func (c *Column) DefaultValue() any  { return c.defaultFn() }
func (c *Column) HasOnUpdate() bool  { return c.onUpdateFn != nil }
func (c *Column) OnUpdateValue() any { return c.onUpdateFn() }

// column local rules:
// - name can't be empty or use the reserved "_" prefix
// - enum column must declare at least one value
// - custom column must carry a check function
// - ref column must name a target table
// - bytes column can't have a default
func CheckColumnRules(c *Column) error {
	if c.Name == "" {
		return apperr.Schema("column name cannot be empty")
	}
	if strings.HasPrefix(c.Name, "_") {
		return apperr.Schema("column(%s) name cannot start with reserved prefix \"_\"", c.Name)
	}
	if !c.Kind.Valid() {
		return apperr.Schema("column(%s) has unsupported kind %s", c.Name, c.Kind)
	}
	if c.Kind == types.KindEnum && len(c.EnumValues) == 0 {
		return apperr.Schema("column(%s %s) must declare enum values", c.Name, c.Kind)
	}
	if c.Kind == types.KindCustom && c.CheckFn == nil {
		return apperr.Schema("column(%s %s) must carry a check function", c.Name, c.Kind)
	}
	if c.Kind == types.KindRef && c.RefTable == "" {
		return apperr.Schema("column(%s %s) must name a target table", c.Name, c.Kind)
	}
	if c.Kind == types.KindBytes && c.defaultFn != nil {
		return apperr.Schema("column(%s %s) cannot have a default", c.Name, c.Kind)
	}
	return nil
}

// ValidateValue coerces input into the column's kind.
// nil passes through for nullable columns and is rejected otherwise.
func (c *Column) ValidateValue(input any) (any, error) {
	if input == nil {
		if c.NotNullable {
			return nil, apperr.Validation("missing value for required column %s", c.Name)
		}
		return nil, nil
	}

	switch c.Kind {
	case types.KindText:
		if v, ok := input.(string); ok {
			return v, nil
		}
	case types.KindInt, types.KindRef:
		switch v := input.(type) {
		case int:
			return v, nil
		case int64:
			return int(v), nil
		case float64:
			return int(v), nil
		}
	case types.KindBigInt:
		switch v := input.(type) {
		case int64:
			return v, nil
		case int:
			return int64(v), nil
		case float64:
			return int64(v), nil
		}
	case types.KindBool:
		switch v := input.(type) {
		case bool:
			return v, nil
		case string:
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				return nil, invalidValueError(input, c.Name)
			}
			return parsed, nil
		}
	case types.KindBytes:
		switch v := input.(type) {
		case []byte:
			return v, nil
		case string:
			return []byte(v), nil
		}
	case types.KindEnum:
		if v, ok := input.(string); ok {
			for _, allowed := range c.EnumValues {
				if v == allowed {
					return v, nil
				}
			}
			return nil, apperr.Validation(
				"invalid value %q for enum column %s; allowed: %s",
				v, c.Name, strings.Join(c.EnumValues, ", "),
			)
		}
	case types.KindCustom:
		if err := c.CheckFn(input); err != nil {
			return nil, apperr.Validation("invalid value for column %s: %s", c.Name, err.Error())
		}
		return input, nil
	}

	return nil, invalidValueError(input, c.Name)
}

func invalidValueError(input any, column_name string) error {
	return apperr.Validation("invalid value type for %s: %T", column_name, input)
}

var sysColumns = pkg.Map[string, *Column]{
	SysFieldID:      {Name: SysFieldID, Kind: types.KindInt, NotNullable: true},
	SysFieldCreated: {Name: SysFieldCreated, Kind: types.KindBigInt, NotNullable: true},
}
