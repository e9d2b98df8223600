package types

// Operation is the kind of table access being performed.
// RLS policies and triggers are scoped by it.
type Operation string

const (
	OpSelect Operation = "select"
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

func (op Operation) Valid() bool {
	switch op {
	case OpSelect, OpInsert, OpUpdate, OpDelete:
		return true
	}
	return false
}
