package docstore

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/inovacc/chatdb/internal/kv"
)

const (
	metaBucket = "meta"
	schemaKey  = "schema"
)

// Schema describes a database: its version and object stores.
type Schema struct {
	Name    string                 `json:"name"`
	Version uint64                 `json:"version"`
	Stores  map[string]StoreSchema `json:"stores"`
}

// StoreSchema describes one object store.
type StoreSchema struct {
	Name          string                 `json:"name"`
	KeyPath       string                 `json:"keyPath,omitempty"`
	AutoIncrement bool                   `json:"autoIncrement"`
	Indexes       map[string]IndexSchema `json:"indexes"`
}

// IndexSchema describes one index of an object store.
type IndexSchema struct {
	Name    string `json:"name"`
	KeyPath string `json:"keyPath"`
	Unique  bool   `json:"unique"`
}

// StoreOptions configures CreateObjectStore.
type StoreOptions struct {
	KeyPath       string
	AutoIncrement bool
}

// IndexOptions configures CreateIndex.
type IndexOptions struct {
	Unique bool
}

func newSchema(name string) Schema {
	return Schema{Name: name, Stores: map[string]StoreSchema{}}
}

// StoreNames returns the object store names in sorted order.
func (s Schema) StoreNames() []string {
	names := make([]string, 0, len(s.Stores))
	for n := range s.Stores {
		names = append(names, n)
	}

	sort.Strings(names)

	return names
}

// IndexNames returns the index names in sorted order.
func (s StoreSchema) IndexNames() []string {
	names := make([]string, 0, len(s.Indexes))
	for n := range s.Indexes {
		names = append(names, n)
	}

	sort.Strings(names)

	return names
}

func (s Schema) clone() Schema {
	out := Schema{Name: s.Name, Version: s.Version, Stores: make(map[string]StoreSchema, len(s.Stores))}

	for name, st := range s.Stores {
		idx := make(map[string]IndexSchema, len(st.Indexes))
		for n, i := range st.Indexes {
			idx[n] = i
		}

		st.Indexes = idx
		out.Stores[name] = st
	}

	return out
}

func loadSchema(tx kv.Tx, name string) (Schema, error) {
	data, err := tx.Get(metaBucket, []byte(schemaKey))
	if err != nil {
		return Schema{}, fmt.Errorf("reading schema: %w", err)
	}

	if data == nil {
		return newSchema(name), nil
	}

	var s Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return Schema{}, fmt.Errorf("parsing schema: %w", err)
	}

	if s.Stores == nil {
		s.Stores = map[string]StoreSchema{}
	}

	for n, st := range s.Stores {
		if st.Indexes == nil {
			st.Indexes = map[string]IndexSchema{}
			s.Stores[n] = st
		}
	}

	return s, nil
}

func saveSchema(tx kv.Tx, s Schema) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding schema: %w", err)
	}

	return tx.Put(metaBucket, []byte(schemaKey), data)
}

func recordsBucket(store string) string {
	return fmt.Sprintf("r:%d:%s", len(store), store)
}

func indexBucket(store, index string) string {
	return fmt.Sprintf("i:%d:%s:%s", len(store), store, index)
}
