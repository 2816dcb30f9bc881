package docstore

import (
	"github.com/inovacc/chatdb/internal/model"
)

// Index is a secondary lookup over one record field within a transaction.
// Entries are ordered by index key, then by primary key.
type Index struct {
	store  *ObjectStore
	schema IndexSchema
}

// Name returns the index name.
func (i *Index) Name() string { return i.schema.Name }

// KeyPath returns the dotted record path the index key is read from.
func (i *Index) KeyPath() string { return i.schema.KeyPath }

// Unique reports whether two records may not share an index key.
func (i *Index) Unique() bool { return i.schema.Unique }

// Get returns the first record whose index key matches key (a key or a
// *KeyRange), or nil.
func (i *Index) Get(key any) (model.Record, error) {
	if err := i.store.tx.checkActive(); err != nil {
		return nil, err
	}

	rng, err := toRange(key)
	if err != nil {
		return nil, err
	}

	c := i.cursor(rng)
	if c.Next() {
		return c.Value(), nil
	}

	return nil, c.Err()
}

// GetKey returns the primary key of the first record matching key, or nil.
func (i *Index) GetKey(key any) (any, error) {
	if err := i.store.tx.checkActive(); err != nil {
		return nil, err
	}

	rng, err := toRange(key)
	if err != nil {
		return nil, err
	}

	c := i.cursor(rng)
	if c.Next() {
		return c.PrimaryKey(), nil
	}

	return nil, c.Err()
}

// GetAll returns the records in rng in index order. count <= 0 means no limit.
func (i *Index) GetAll(rng *KeyRange, count int) ([]model.Record, error) {
	if err := i.store.tx.checkActive(); err != nil {
		return nil, err
	}

	return collectValues(i.cursor(rng), count)
}

// Count returns the number of records in rng.
func (i *Index) Count(rng *KeyRange) (int, error) {
	if err := i.store.tx.checkActive(); err != nil {
		return 0, err
	}

	return countEntries(i.cursor(rng))
}

// OpenCursor iterates the records in rng in index order.
func (i *Index) OpenCursor(rng *KeyRange) (*Cursor, error) {
	if err := i.store.tx.checkActive(); err != nil {
		return nil, err
	}

	return i.cursor(rng), nil
}

func (i *Index) cursor(rng *KeyRange) *Cursor {
	return &Cursor{
		store:  i.store,
		index:  i,
		rng:    rng,
		bucket: indexBucket(i.store.name, i.schema.Name),
	}
}
