package trigger

import (
	"fmt"
	"sort"
	"sync"

	"github.com/JAssertz/better-convex-sub001/internal/apperr"
	"github.com/JAssertz/better-convex-sub001/internal/mutation"
	"github.com/JAssertz/better-convex-sub001/internal/query"
	"github.com/JAssertz/better-convex-sub001/internal/schema"
	"github.com/JAssertz/better-convex-sub001/pkg"
)

// maxCascade bounds how many change events one logical operation may
// produce through trigger writes before the whole thing is aborted.
const maxCascade = 32

// Callback observes one committed write and may issue further writes
// through the context. An error aborts the entire operation.
type Callback func(ctx *Ctx, change mutation.Change) error

// Handle identifies a registration for later removal.
type Handle int

type registration struct {
	id Handle
	cb Callback
}

// Dispatcher holds per-table callback lists and drains the change queue
// of a session synchronously, inside the session's transaction.
type Dispatcher struct {
	locker sync.RWMutex
	tables map[string][]registration
	nextID Handle
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{tables: map[string][]registration{}}
}

// Register attaches a callback to a table. Callbacks fire in registration
// order for every change on the table.
func (d *Dispatcher) Register(table string, cb Callback) Handle {
	d.locker.Lock()
	defer d.locker.Unlock()
	d.nextID++
	id := d.nextID
	d.tables[table] = append(d.tables[table], registration{id: id, cb: cb})
	return id
}

func (d *Dispatcher) Unregister(h Handle) bool {
	d.locker.Lock()
	defer d.locker.Unlock()
	for table, regs := range d.tables {
		kept := pkg.Filter(regs, func(r registration) bool { return r.id != h })
		if len(kept) != len(regs) {
			d.tables[table] = kept
			return true
		}
	}
	return false
}

func (d *Dispatcher) registrations(table string) []registration {
	d.locker.RLock()
	defer d.locker.RUnlock()
	regs := d.tables[table]
	out := make([]registration, len(regs))
	copy(out, regs)
	return out
}

// Drain processes the session's change queue to empty, firing callbacks in
// write order. Writes a callback issues are appended to the same queue and
// drained before Drain returns, so a caller that commits after a nil return
// commits the full cascade. A repeat of the same (callback, table, row,
// operation) within one flow is reported as a cycle.
func (d *Dispatcher) Drain(s *mutation.Session, eng *mutation.Engine) error {
	seen := pkg.Map[string, bool]{}
	ctx := &Ctx{session: s, engine: eng, dispatcher: d}

	fired := 0
	for {
		change, ok := s.PopChange()
		if !ok {
			return nil
		}
		for _, reg := range d.registrations(change.Table) {
			key := fmt.Sprintf("%d:%s:%d:%s", reg.id, change.Table, change.ID, change.Op)
			if seen.Has(key) {
				return apperr.Trigger(nil,
					"trigger cycle on table %s row %d (%s)", change.Table, change.ID, change.Op,
				)
			}
			seen.Set(key, true)

			fired++
			if fired > maxCascade {
				return apperr.Trigger(nil,
					"trigger cascade exceeded %d events in one operation", maxCascade,
				)
			}
			if err := reg.cb(ctx, change); err != nil {
				if apperr.IsKind(err, apperr.KindTrigger) {
					return err
				}
				return apperr.Trigger(err, "trigger on table %s failed", change.Table)
			}
		}
	}
}

// Tables lists every table with at least one registration, sorted.
func (d *Dispatcher) Tables() []string {
	d.locker.RLock()
	defer d.locker.RUnlock()
	names := []string{}
	for table, regs := range d.tables {
		if len(regs) > 0 {
			names = append(names, table)
		}
	}
	sort.Strings(names)
	return names
}

// Ctx is the write surface handed to callbacks. Its writes run inside the
// originating transaction with rules skipped, they share the flow token,
// and their change events join the queue being drained.
type Ctx struct {
	session    *mutation.Session
	engine     *mutation.Engine
	dispatcher *Dispatcher
}

// Actor reports who started the operation that fired the trigger.
func (c *Ctx) Actor() schema.Actor { return c.session.Actor }

func (c *Ctx) table(name string) (*schema.Table, error) {
	table := c.engine.Schema.Table(name)
	if table == nil {
		return nil, apperr.NotFound("no table %s", name)
	}
	return table, nil
}

func (c *Ctx) Get(table string, id int) (schema.Row, error) {
	t, err := c.table(table)
	if err != nil {
		return nil, err
	}
	row, err := c.engine.Query.FindOne(c.session.Tx, t, query.Eq(schema.SysFieldID, id), nil)
	if err != nil {
		return nil, err
	}
	return row, nil
}

func (c *Ctx) Insert(table string, rows ...schema.Row) ([]schema.Row, error) {
	t, err := c.table(table)
	if err != nil {
		return nil, err
	}
	return c.engine.Insert(c.session, t, mutation.Guard{}).Values(rows...).Returning()
}

func (c *Ctx) Update(table string, where query.Filter, set schema.Row) ([]schema.Row, error) {
	t, err := c.table(table)
	if err != nil {
		return nil, err
	}
	return c.engine.Update(c.session, t, mutation.Guard{}).Where(where).Set(set).Returning()
}

func (c *Ctx) Delete(table string, where query.Filter) ([]schema.Row, error) {
	t, err := c.table(table)
	if err != nil {
		return nil, err
	}
	return c.engine.Delete(c.session, t, mutation.Guard{}).Where(where).Returning()
}
