package store

import (
	"sync"
	"time"

	sorted "github.com/tobshub/go-sortedmap"

	"github.com/JAssertz/better-convex-sub001/internal/schema"
	"github.com/JAssertz/better-convex-sub001/pkg"
)

// IndexSpec names the columns an index map is keyed by. The store knows
// nothing about column kinds; it indexes whatever values the engine writes.
type IndexSpec struct {
	Name    string
	Columns []string
}

// index value -> row id
type IndexMap struct {
	locker sync.RWMutex
	Map    map[string]int
}

func NewIndexMap() *IndexMap {
	return &IndexMap{Map: map[string]int{}}
}

func (m *IndexMap) Has(key string) bool {
	m.locker.RLock()
	defer m.locker.RUnlock()
	_, ok := m.Map[key]
	return ok
}

func (m *IndexMap) Get(key string) (int, bool) {
	m.locker.RLock()
	defer m.locker.RUnlock()
	id, ok := m.Map[key]
	return id, ok
}

func (m *IndexMap) Set(key string, id int) {
	m.locker.Lock()
	defer m.locker.Unlock()
	m.Map[key] = id
}

func (m *IndexMap) Delete(key string) {
	m.locker.Lock()
	defer m.locker.Unlock()
	delete(m.Map, key)
}

func (m *IndexMap) Len() int {
	m.locker.RLock()
	defer m.locker.RUnlock()
	return len(m.Map)
}

func (m *IndexMap) clone() *IndexMap {
	m.locker.RLock()
	defer m.locker.RUnlock()
	out := NewIndexMap()
	for k, v := range m.Map {
		out.Map[k] = v
	}
	return out
}

// TableData holds one table's rows ordered by id plus its index maps.
type TableData struct {
	Name      string
	Specs     []IndexSpec
	Rows      *sorted.SortedMap[int, schema.Row]
	Indexes   pkg.Map[string, *IndexMap]
	IdTracker int
}

func rowOrder(a, b schema.Row) bool {
	return schema.RowID(a) < schema.RowID(b)
}

func NewTableData(name string, specs ...IndexSpec) *TableData {
	data := &TableData{
		Name:    name,
		Specs:   specs,
		Rows:    sorted.New[int, schema.Row](0, rowOrder),
		Indexes: pkg.Map[string, *IndexMap]{},
	}
	for _, spec := range specs {
		data.Indexes.Set(spec.Name, NewIndexMap())
	}
	return data
}

func (d *TableData) clone() *TableData {
	out := &TableData{
		Name:      d.Name,
		Specs:     d.Specs,
		Rows:      sorted.New[int, schema.Row](d.Rows.Len(), rowOrder),
		Indexes:   pkg.Map[string, *IndexMap]{},
		IdTracker: d.IdTracker,
	}
	iter, err := d.Rows.IterCh()
	if err == nil {
		defer iter.Close()
		for rec := range iter.Records() {
			out.Rows.Insert(rec.Key, schema.CopyRow(rec.Val))
		}
	}
	for name, m := range d.Indexes {
		out.Indexes.Set(name, m.clone())
	}
	return out
}

// Store is the in-process document store: get-by-id, ordered scans, index
// lookups and raw writes. Everything above it (types, uniqueness, policies,
// triggers) belongs to the engine.
type Store struct {
	Locker sync.RWMutex
	// held across a write transaction so the probe-then-write pair is serialized
	writeMu sync.Mutex

	Tables        pkg.Map[string, *TableData]
	WriteSettings *WriteSettings
	LastChange    time.Time
}

func NewStore(write_settings *WriteSettings) (*Store, error) {
	GobRegisterTypes()
	s := &Store{Tables: pkg.Map[string, *TableData]{}, WriteSettings: write_settings}
	if err := s.ReadFromFile(); err != nil {
		return nil, err
	}
	s.LastChange = time.Now()
	return s, nil
}

func (s *Store) GetLocker() *sync.RWMutex { return &s.Locker }

// CreateTable registers a table and its index specs. Data loaded from disk
// is kept; indexes missing from the loaded snapshot are rebuilt.
func (s *Store) CreateTable(name string, specs ...IndexSpec) {
	s.Locker.Lock()
	defer s.Locker.Unlock()

	data := s.Tables.Get(name)
	if data == nil {
		s.Tables.Set(name, NewTableData(name, specs...))
		return
	}

	data.Specs = specs
	for _, spec := range specs {
		if data.Indexes.Has(spec.Name) {
			continue
		}
		m := NewIndexMap()
		iter, err := data.Rows.IterCh()
		if err == nil {
			for rec := range iter.Records() {
				if key, ok := IndexKeyFor(spec, rec.Val); ok {
					m.Map[key] = rec.Key
				}
			}
			iter.Close()
		}
		data.Indexes.Set(spec.Name, m)
	}
}

func (s *Store) Table(name string) *TableData {
	s.Locker.RLock()
	defer s.Locker.RUnlock()
	return s.Tables.Get(name)
}
