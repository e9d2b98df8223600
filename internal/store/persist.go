package store

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"os"
	"path"
	"time"

	sorted "github.com/tobshub/go-sortedmap"

	"github.com/pkg/errors"

	"github.com/JAssertz/better-convex-sub001/internal/schema"
	"github.com/JAssertz/better-convex-sub001/pkg"
)

type WriteSettings struct {
	WritePath     string
	InMem         bool
	WriteInterval time.Duration
}

func NewWriteSettings(write_path string, in_mem bool, write_interval_ms int) (*WriteSettings, error) {
	if !in_mem && len(write_path) == 0 {
		return nil, errors.New("must either provide a data path or use in-memory mode")
	}
	return &WriteSettings{
		WritePath:     write_path,
		InMem:         in_mem,
		WriteInterval: time.Duration(write_interval_ms) * time.Millisecond,
	}, nil
}

func GobRegisterTypes() {
	gob.Register(int(0))
	gob.Register(int64(0))
	gob.Register(float64(0.))
	gob.Register(string(""))
	gob.Register(bool(false))
	gob.Register([]byte{})
	gob.Register([]any{})
}

type storeMeta struct {
	Tables []string
}

type tableSnapshot struct {
	Rows      map[int]schema.Row
	Indexes   map[string]map[string]int
	IdTracker int
}

func (d *TableData) snapshot() *tableSnapshot {
	snap := &tableSnapshot{
		Rows:      map[int]schema.Row{},
		Indexes:   map[string]map[string]int{},
		IdTracker: d.IdTracker,
	}
	iter, err := d.Rows.IterCh()
	if err == nil {
		defer iter.Close()
		for rec := range iter.Records() {
			snap.Rows[rec.Key] = rec.Val
		}
	}
	for name, m := range d.Indexes {
		snap.Indexes[name] = m.clone().Map
	}
	return snap
}

// WriteToFile persists meta as json and each table's data as gob,
// one file per table under the write path.
func (s *Store) WriteToFile() error {
	if s.WriteSettings == nil || s.WriteSettings.InMem {
		return nil
	}

	s.Locker.RLock()
	defer s.Locker.RUnlock()

	base := s.WriteSettings.WritePath
	if _, err := os.Stat(base); os.IsNotExist(err) {
		if err := os.MkdirAll(base, 0755); err != nil {
			return errors.Wrap(err, "creating data dir")
		}
	}

	meta_data, err := json.Marshal(storeMeta{Tables: s.Tables.Keys()})
	if err != nil {
		return errors.Wrap(err, "marshalling store meta")
	}
	if err := os.WriteFile(path.Join(base, "meta.bcdb"), meta_data, 0644); err != nil {
		return errors.Wrap(err, "writing store meta")
	}

	for name, data := range s.Tables {
		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(data.snapshot()); err != nil {
			return errors.Wrapf(err, "encoding table %s", name)
		}
		if err := os.WriteFile(path.Join(base, name+".bcdb"), buf.Bytes(), 0644); err != nil {
			return errors.Wrapf(err, "writing table %s", name)
		}
	}

	pkg.Log().Debugw("wrote store to disk", "path", base)
	return nil
}

func (s *Store) ReadFromFile() error {
	if s.WriteSettings == nil || s.WriteSettings.InMem || s.WriteSettings.WritePath == "" {
		return nil
	}

	meta_file := path.Join(s.WriteSettings.WritePath, "meta.bcdb")
	raw, err := os.ReadFile(meta_file)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "reading store meta")
	}

	meta := storeMeta{}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return errors.Wrap(err, "decoding store meta")
	}

	for _, name := range meta.Tables {
		buf, err := os.ReadFile(path.Join(s.WriteSettings.WritePath, name+".bcdb"))
		if err != nil {
			return errors.Wrapf(err, "reading table %s", name)
		}
		snap := tableSnapshot{}
		if err := gob.NewDecoder(bytes.NewReader(buf)).Decode(&snap); err != nil {
			return errors.Wrapf(err, "decoding table %s", name)
		}

		data := &TableData{
			Name:      name,
			Rows:      sorted.New[int, schema.Row](len(snap.Rows), rowOrder),
			Indexes:   pkg.Map[string, *IndexMap]{},
			IdTracker: snap.IdTracker,
		}
		for id, row := range snap.Rows {
			data.Rows.Insert(id, row)
		}
		for index_name, m := range snap.Indexes {
			im := NewIndexMap()
			im.Map = m
			data.Indexes.Set(index_name, im)
		}
		s.Tables.Set(name, data)
	}

	pkg.Log().Infow("loaded store from disk", "path", s.WriteSettings.WritePath, "tables", len(meta.Tables))
	return nil
}
