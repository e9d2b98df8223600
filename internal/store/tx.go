package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/JAssertz/better-convex-sub001/internal/schema"
	"github.com/JAssertz/better-convex-sub001/pkg"
)

// Tx is a snapshot transaction. All reads and writes of one logical
// operation go through a private copy of the table data; Commit swaps it in
// as a whole, so a failed operation leaves nothing observable behind.
//
// Write transactions additionally hold the store-wide write mutex from Begin
// to Commit/Rollback. That serializes every probe-then-write pair, which is
// the isolation level the uniqueness check depends on.
type Tx struct {
	Id uuid.UUID

	store     *Store
	tables    pkg.Map[string, *TableData]
	write     bool
	startTime time.Time
	done      bool
}

func (s *Store) begin(write bool) *Tx {
	if write {
		s.writeMu.Lock()
	}
	s.Locker.RLock()
	defer s.Locker.RUnlock()

	tables := pkg.Map[string, *TableData]{}
	for name, data := range s.Tables {
		tables.Set(name, data.clone())
	}

	return &Tx{
		Id:        uuid.Must(uuid.NewV7()),
		store:     s,
		tables:    tables,
		write:     write,
		startTime: time.Now(),
	}
}

// BeginRead opens a read-only snapshot. Finish it with Rollback.
func (s *Store) BeginRead() *Tx { return s.begin(false) }

// BeginWrite opens a write transaction holding the store write lock.
func (s *Store) BeginWrite() *Tx { return s.begin(true) }

func (tx *Tx) finish() {
	tx.done = true
	if tx.write {
		tx.store.writeMu.Unlock()
	}
}

func (tx *Tx) Commit() error {
	if tx.done {
		return errors.New("transaction already finished")
	}
	tx.store.Locker.Lock()
	tx.store.Tables = tx.tables
	tx.store.LastChange = time.Now()
	tx.store.Locker.Unlock()
	tx.finish()
	return nil
}

func (tx *Tx) Rollback() {
	if tx.done {
		return
	}
	tx.finish()
}

func (tx *Tx) table(name string) (*TableData, error) {
	data := tx.tables.Get(name)
	if data == nil {
		return nil, errors.Errorf("no such table %s", name)
	}
	return data, nil
}

func (tx *Tx) Get(table string, id int) (schema.Row, bool) {
	data, err := tx.table(table)
	if err != nil {
		return nil, false
	}
	return data.Rows.Get(id)
}

// Insert assigns the row id and creation time, writes the row, and maintains
// every index the row is indexable under.
func (tx *Tx) Insert(table string, row schema.Row) (int, error) {
	data, err := tx.table(table)
	if err != nil {
		return 0, err
	}

	data.IdTracker++
	id := data.IdTracker
	schema.SetRowID(row, id)
	row.Set(schema.SysFieldCreated, time.Now().UnixMilli())

	if !data.Rows.Insert(id, row) {
		return 0, errors.Errorf("row id %d already exists in table %s", id, table)
	}
	tx.indexRow(data, row, id)
	return id, nil
}

// Patch merges partial data into an existing row. A nil value in the patch
// clears the column.
func (tx *Tx) Patch(table string, id int, patch schema.Row) (schema.Row, error) {
	data, err := tx.table(table)
	if err != nil {
		return nil, err
	}
	old, ok := data.Rows.Get(id)
	if !ok {
		return nil, errors.Errorf("no row %d in table %s", id, table)
	}

	tx.unindexRow(data, old)
	row := schema.CopyRow(old)
	for k, v := range patch {
		if k == schema.SysFieldID || k == schema.SysFieldCreated {
			continue
		}
		row.Set(k, v)
	}
	data.Rows.Replace(id, row)
	tx.indexRow(data, row, id)
	return row, nil
}

// Replace swaps the whole document, keeping id and creation time.
func (tx *Tx) Replace(table string, id int, row schema.Row) (schema.Row, error) {
	data, err := tx.table(table)
	if err != nil {
		return nil, err
	}
	old, ok := data.Rows.Get(id)
	if !ok {
		return nil, errors.Errorf("no row %d in table %s", id, table)
	}

	tx.unindexRow(data, old)
	next := schema.CopyRow(row)
	schema.SetRowID(next, id)
	next.Set(schema.SysFieldCreated, old.Get(schema.SysFieldCreated))
	data.Rows.Replace(id, next)
	tx.indexRow(data, next, id)
	return next, nil
}

func (tx *Tx) Delete(table string, id int) (schema.Row, bool) {
	data, err := tx.table(table)
	if err != nil {
		return nil, false
	}
	old, ok := data.Rows.Get(id)
	if !ok {
		return nil, false
	}
	tx.unindexRow(data, old)
	data.Rows.Delete(id)
	return old, true
}

// Scan returns all rows ordered by id, which is insertion order.
func (tx *Tx) Scan(table string) []schema.Row {
	rows := []schema.Row{}
	data, err := tx.table(table)
	if err != nil {
		return rows
	}
	iter, err := data.Rows.IterCh()
	if err != nil {
		// empty table
		return rows
	}
	defer iter.Close()
	for rec := range iter.Records() {
		rows = append(rows, rec.Val)
	}
	return rows
}

// IndexGet probes an index map with a pre-built key.
func (tx *Tx) IndexGet(table, index, key string) (int, bool) {
	data, err := tx.table(table)
	if err != nil {
		return 0, false
	}
	m := data.Indexes.Get(index)
	if m == nil {
		return 0, false
	}
	return m.Get(key)
}

func (tx *Tx) Len(table string) int {
	data, err := tx.table(table)
	if err != nil {
		return 0
	}
	return data.Rows.Len()
}

func (tx *Tx) indexRow(data *TableData, row schema.Row, id int) {
	for _, spec := range data.Specs {
		if key, ok := IndexKeyFor(spec, row); ok {
			data.Indexes.Get(spec.Name).Set(key, id)
		}
	}
}

func (tx *Tx) unindexRow(data *TableData, row schema.Row) {
	for _, spec := range data.Specs {
		if key, ok := IndexKeyFor(spec, row); ok {
			data.Indexes.Get(spec.Name).Delete(key)
		}
	}
}
