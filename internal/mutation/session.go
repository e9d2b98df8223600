package mutation

import (
	"github.com/google/uuid"

	"github.com/JAssertz/better-convex-sub001/internal/schema"
	"github.com/JAssertz/better-convex-sub001/internal/store"
	"github.com/JAssertz/better-convex-sub001/internal/types"
)

// Change describes one committed write. Old is absent on insert, New on
// delete. The trigger dispatcher consumes these in write order.
type Change struct {
	Op    types.Operation
	Table string
	ID    int
	Old   schema.Row
	New   schema.Row
}

// Session is the state of one logical operation: the transaction every
// write goes through, the actor that started it, a flow token identifying
// the operation for cycle detection, and the FIFO queue of committed-write
// events awaiting trigger dispatch.
type Session struct {
	Tx    *store.Tx
	Actor schema.Actor
	Flow  uuid.UUID

	changes []Change
}

func NewSession(tx *store.Tx, actor schema.Actor) *Session {
	return &Session{Tx: tx, Actor: actor, Flow: uuid.Must(uuid.NewV7())}
}

func (s *Session) PushChange(c Change) {
	s.changes = append(s.changes, c)
}

func (s *Session) PopChange() (Change, bool) {
	if len(s.changes) == 0 {
		return Change{}, false
	}
	c := s.changes[0]
	s.changes = s.changes[1:]
	return c, true
}

func (s *Session) PendingChanges() int { return len(s.changes) }
