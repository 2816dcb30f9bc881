package docstore

import (
	"bytes"
	"fmt"
	"log/slog"
	"math"

	"github.com/inovacc/chatdb/internal/model"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ObjectStore is a record store within a transaction.
type ObjectStore struct {
	tx     *Transaction
	name   string
	schema StoreSchema
}

// Name returns the store name.
func (s *ObjectStore) Name() string {
	return s.name
}

// KeyPath returns the in-line key path, or "" for out-of-line keys.
func (s *ObjectStore) KeyPath() string {
	return s.schema.KeyPath
}

// AutoIncrement reports whether the store has a key generator.
func (s *ObjectStore) AutoIncrement() bool {
	return s.schema.AutoIncrement
}

// IndexNames returns the index names in sorted order.
func (s *ObjectStore) IndexNames() []string {
	return s.schema.IndexNames()
}

// Add inserts value. It fails with ErrConstraint when a record with the same
// key exists. key must be nil for stores with an in-line key path. The
// stored primary key is returned.
func (s *ObjectStore) Add(value model.Record, key any) (any, error) {
	return s.write(value, key, true)
}

// Put inserts or replaces value. key must be nil for stores with an in-line
// key path. The stored primary key is returned.
func (s *ObjectStore) Put(value model.Record, key any) (any, error) {
	return s.write(value, key, false)
}

// Get returns the record stored under key (or the first record in key when
// it is a *KeyRange), or nil when there is none.
func (s *ObjectStore) Get(key any) (model.Record, error) {
	if err := s.tx.checkActive(); err != nil {
		return nil, err
	}

	rng, err := toRange(key)
	if err != nil {
		return nil, err
	}

	c := s.cursor(rng)
	if c.Next() {
		return c.Value(), nil
	}

	return nil, c.Err()
}

// GetAll returns the records in rng in key order. count <= 0 means no limit.
func (s *ObjectStore) GetAll(rng *KeyRange, count int) ([]model.Record, error) {
	if err := s.tx.checkActive(); err != nil {
		return nil, err
	}

	return collectValues(s.cursor(rng), count)
}

// GetAllKeys returns the primary keys in rng in order. count <= 0 means no limit.
func (s *ObjectStore) GetAllKeys(rng *KeyRange, count int) ([]any, error) {
	if err := s.tx.checkActive(); err != nil {
		return nil, err
	}

	return collectKeys(s.cursor(rng), count)
}

// Count returns the number of records in rng.
func (s *ObjectStore) Count(rng *KeyRange) (int, error) {
	if err := s.tx.checkActive(); err != nil {
		return 0, err
	}

	return countEntries(s.cursor(rng))
}

// Delete removes the record under key, or every record in key when it is a
// *KeyRange. Deleting an absent key succeeds.
func (s *ObjectStore) Delete(key any) error {
	if err := s.tx.checkWritable(); err != nil {
		return err
	}

	if rng, ok := key.(*KeyRange); ok {
		c := s.cursor(rng)
		for c.Next() {
			if err := c.Delete(); err != nil {
				return err
			}
		}

		return c.Err()
	}

	enc, err := EncodeKey(key)
	if err != nil {
		return err
	}

	data, err := s.tx.kv.Get(recordsBucket(s.name), enc)
	if err != nil {
		return err
	}

	if data == nil {
		return nil
	}

	return s.deleteRecord(enc, data)
}

// Clear removes every record. The key generator is not reset.
func (s *ObjectStore) Clear() error {
	if err := s.tx.checkWritable(); err != nil {
		return err
	}

	bucket := recordsBucket(s.name)

	seq, err := s.tx.kv.Sequence(bucket)
	if err != nil {
		return err
	}

	if err := s.tx.kv.DropBucket(bucket); err != nil {
		return err
	}

	for idx := range s.schema.Indexes {
		if err := s.tx.kv.DropBucket(indexBucket(s.name, idx)); err != nil {
			return err
		}
	}

	if seq > 0 {
		return s.tx.kv.SetSequence(bucket, seq)
	}

	return nil
}

// Index returns the named index.
func (s *ObjectStore) Index(name string) (*Index, error) {
	if err := s.tx.checkActive(); err != nil {
		return nil, err
	}

	idx, ok := s.schema.Indexes[name]
	if !ok {
		return nil, fmt.Errorf("%w: index %q on object store %q", ErrNotFound, name, s.name)
	}

	return &Index{store: s, schema: idx}, nil
}

// OpenCursor iterates the records in rng in key order.
func (s *ObjectStore) OpenCursor(rng *KeyRange) (*Cursor, error) {
	if err := s.tx.checkActive(); err != nil {
		return nil, err
	}

	return s.cursor(rng), nil
}

// CreateIndex adds an index over keyPath and indexes the existing records.
// Only valid during an upgrade.
func (s *ObjectStore) CreateIndex(name, keyPath string, opts IndexOptions) (*Index, error) {
	if err := s.tx.checkVersionChange(); err != nil {
		return nil, err
	}

	if keyPath == "" {
		return nil, fmt.Errorf("%w: index %q needs a key path", ErrData, name)
	}

	if _, ok := s.schema.Indexes[name]; ok {
		return nil, fmt.Errorf("%w: index %q already exists on %q", ErrConstraint, name, s.name)
	}

	idx := IndexSchema{Name: name, KeyPath: keyPath, Unique: opts.Unique}

	c := s.cursor(nil)
	for c.Next() {
		entries, err := s.indexEntries(c.raw, c.pkEnc, []IndexSchema{idx})
		if err != nil {
			return nil, err
		}

		for _, e := range entries {
			if err := s.tx.kv.Put(e.bucket, e.key, indexEntryValue); err != nil {
				return nil, err
			}
		}
	}

	if err := c.Err(); err != nil {
		return nil, err
	}

	s.schema.Indexes[name] = idx

	s.tx.logger.Info("index created",
		slog.String("store", s.name),
		slog.String("index", name),
		slog.String("key_path", keyPath),
		slog.Bool("unique", opts.Unique))

	return &Index{store: s, schema: idx}, nil
}

// DeleteIndex removes the named index. Only valid during an upgrade.
func (s *ObjectStore) DeleteIndex(name string) error {
	if err := s.tx.checkVersionChange(); err != nil {
		return err
	}

	if _, ok := s.schema.Indexes[name]; !ok {
		return fmt.Errorf("%w: index %q on object store %q", ErrNotFound, name, s.name)
	}

	if err := s.tx.kv.DropBucket(indexBucket(s.name, name)); err != nil {
		return err
	}

	delete(s.schema.Indexes, name)

	return nil
}

func (s *ObjectStore) cursor(rng *KeyRange) *Cursor {
	return &Cursor{store: s, rng: rng, bucket: recordsBucket(s.name)}
}

func (s *ObjectStore) write(value model.Record, key any, noOverwrite bool) (any, error) {
	if err := s.tx.checkWritable(); err != nil {
		return nil, err
	}

	data, err := encodeRecord(value)
	if err != nil {
		return nil, err
	}

	pk, data, err := s.resolveKey(data, key)
	if err != nil {
		return nil, err
	}

	enc, err := EncodeKey(pk)
	if err != nil {
		return nil, err
	}

	bucket := recordsBucket(s.name)

	existing, err := s.tx.kv.Get(bucket, enc)
	if err != nil {
		return nil, err
	}

	if existing != nil && noOverwrite {
		return nil, fmt.Errorf("%w: key %v already exists in %q", ErrConstraint, pk, s.name)
	}

	entries, err := s.indexEntries(data, enc, s.indexList())
	if err != nil {
		return nil, err
	}

	if existing != nil {
		if err := s.deleteRecord(enc, existing); err != nil {
			return nil, err
		}
	}

	if err := s.tx.kv.Put(bucket, enc, data); err != nil {
		return nil, err
	}

	for _, e := range entries {
		if err := s.tx.kv.Put(e.bucket, e.key, indexEntryValue); err != nil {
			return nil, err
		}
	}

	return pk, nil
}

// resolveKey determines the primary key of data, running the key generator
// when needed and injecting generated keys at the key path.
func (s *ObjectStore) resolveKey(data []byte, key any) (any, []byte, error) {
	if s.schema.KeyPath != "" {
		if key != nil {
			return nil, nil, fmt.Errorf("%w: object store %q uses in-line keys and the key parameter was provided", ErrData, s.name)
		}

		r := gjson.GetBytes(data, s.schema.KeyPath)
		if r.Exists() {
			k, ok := keyFromJSON(r)
			if !ok {
				return nil, nil, fmt.Errorf("%w: value at key path %q is not a valid key", ErrData, s.schema.KeyPath)
			}

			if _, err := NormalizeKey(k); err != nil {
				return nil, nil, err
			}

			return k, data, s.bumpGenerator(k)
		}

		if !s.schema.AutoIncrement {
			return nil, nil, fmt.Errorf("%w: record has no value at key path %q", ErrData, s.schema.KeyPath)
		}

		k, err := s.generateKey()
		if err != nil {
			return nil, nil, err
		}

		data, err = sjson.SetBytes(data, s.schema.KeyPath, k)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: injecting key at %q: %v", ErrData, s.schema.KeyPath, err)
		}

		return k, data, nil
	}

	if key == nil {
		if !s.schema.AutoIncrement {
			return nil, nil, fmt.Errorf("%w: object store %q has no key path and no key was provided", ErrData, s.name)
		}

		k, err := s.generateKey()

		return k, data, err
	}

	k, err := NormalizeKey(key)
	if err != nil {
		return nil, nil, err
	}

	return k, data, s.bumpGenerator(k)
}

func (s *ObjectStore) generateKey() (float64, error) {
	bucket := recordsBucket(s.name)

	seq, err := s.tx.kv.Sequence(bucket)
	if err != nil {
		return 0, err
	}

	next := seq + 1
	if next > maxGeneratedKey {
		return 0, fmt.Errorf("%w: key generator of %q is exhausted", ErrConstraint, s.name)
	}

	if err := s.tx.kv.SetSequence(bucket, next); err != nil {
		return 0, err
	}

	return float64(next), nil
}

// bumpGenerator moves the key generator past an explicit numeric key.
func (s *ObjectStore) bumpGenerator(key any) error {
	f, ok := key.(float64)
	if !s.schema.AutoIncrement || !ok || f < 1 {
		return nil
	}

	bucket := recordsBucket(s.name)

	seq, err := s.tx.kv.Sequence(bucket)
	if err != nil {
		return err
	}

	target := math.Min(math.Floor(f), maxGeneratedKey)
	if target <= float64(seq) {
		return nil
	}

	return s.tx.kv.SetSequence(bucket, uint64(target))
}

func (s *ObjectStore) indexList() []IndexSchema {
	names := s.schema.IndexNames()
	list := make([]IndexSchema, 0, len(names))

	for _, n := range names {
		list = append(list, s.schema.Indexes[n])
	}

	return list
}

type indexEntry struct {
	bucket string
	key    []byte
}

// indexEntries computes the index entries of a record and enforces unique
// indexes. The record's own entries do not count as collisions.
func (s *ObjectStore) indexEntries(data, pkEnc []byte, indexes []IndexSchema) ([]indexEntry, error) {
	var entries []indexEntry

	for _, idx := range indexes {
		ikEnc, ik, ok := extractKey(data, idx.KeyPath)
		if !ok {
			continue
		}

		bucket := indexBucket(s.name, idx.Name)

		if idx.Unique {
			owner, err := s.firstIndexOwner(bucket, ikEnc)
			if err != nil {
				return nil, err
			}

			if owner != nil && !bytes.Equal(owner, pkEnc) {
				return nil, fmt.Errorf("%w: unique index %q already contains %v", ErrConstraint, idx.Name, ik)
			}
		}

		key := make([]byte, 0, len(ikEnc)+len(pkEnc))
		key = append(key, ikEnc...)
		key = append(key, pkEnc...)

		entries = append(entries, indexEntry{bucket: bucket, key: key})
	}

	return entries, nil
}

// firstIndexOwner returns the encoded primary key of the first entry for
// ikEnc in an index bucket, or nil.
func (s *ObjectStore) firstIndexOwner(bucket string, ikEnc []byte) ([]byte, error) {
	k, _, err := s.tx.kv.Seek(bucket, ikEnc)
	if err != nil {
		return nil, err
	}

	if k == nil || !bytes.HasPrefix(k, ikEnc) {
		return nil, nil
	}

	return k[len(ikEnc):], nil
}

func (s *ObjectStore) deleteRecord(pkEnc, data []byte) error {
	for _, idx := range s.schema.Indexes {
		ikEnc, _, ok := extractKey(data, idx.KeyPath)
		if !ok {
			continue
		}

		key := make([]byte, 0, len(ikEnc)+len(pkEnc))
		key = append(key, ikEnc...)
		key = append(key, pkEnc...)

		if err := s.tx.kv.Delete(indexBucket(s.name, idx.Name), key); err != nil {
			return err
		}
	}

	return s.tx.kv.Delete(recordsBucket(s.name), pkEnc)
}

func toRange(key any) (*KeyRange, error) {
	if rng, ok := key.(*KeyRange); ok {
		return rng, nil
	}

	return Only(key)
}
