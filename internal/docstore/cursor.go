package docstore

import (
	"fmt"

	"github.com/inovacc/chatdb/internal/kv"
	"github.com/inovacc/chatdb/internal/model"
	"github.com/tidwall/gjson"
)

// Cursor walks an object store or an index forward over a key range:
//
//	c, err := idx.OpenCursor(rng)
//	for c.Next() {
//	    use(c.Value())
//	}
//	err = c.Err()
//
// Each step re-seeks past the last visited entry, so deleting or updating
// the current record does not disturb the iteration.
type Cursor struct {
	store  *ObjectStore
	index  *Index
	rng    *KeyRange
	bucket string

	started bool
	done    bool
	last    []byte
	err     error

	key   any
	pk    any
	pkEnc []byte
	raw   []byte
	value model.Record
}

// Next advances to the next entry and reports whether there is one.
func (c *Cursor) Next() bool {
	if c.done || c.err != nil {
		return false
	}

	if err := c.store.tx.checkActive(); err != nil {
		c.err = err
		return false
	}

	var from []byte
	if c.started {
		from = kv.Next(c.last)
	} else {
		from = c.rng.start()
		c.started = true
	}

	for {
		k, v, err := c.store.tx.kv.Seek(c.bucket, from)
		if err != nil {
			c.err = err
			return false
		}

		if k == nil {
			c.done = true
			return false
		}

		n, err := encodedKeyLen(k)
		if err != nil {
			c.err = err
			return false
		}

		lead := k[:n]

		if c.rng.pastUpper(lead) {
			c.done = true
			return false
		}

		from = kv.Next(k)

		if !c.rng.includes(lead) {
			continue
		}

		pkEnc := lead
		raw := v

		if c.index != nil {
			pkEnc = k[n:]

			raw, err = c.store.tx.kv.Get(recordsBucket(c.store.name), pkEnc)
			if err != nil {
				c.err = err
				return false
			}

			if raw == nil {
				// entry left behind by a record deleted in this transaction
				continue
			}
		}

		if err := c.load(k, lead, pkEnc, raw); err != nil {
			c.err = err
			return false
		}

		return true
	}
}

func (c *Cursor) load(entry, lead, pkEnc, raw []byte) error {
	key, _, err := DecodeKey(lead)
	if err != nil {
		return err
	}

	pk, _, err := DecodeKey(pkEnc)
	if err != nil {
		return err
	}

	value, err := decodeRecord(raw)
	if err != nil {
		return err
	}

	c.last = entry
	c.key = key
	c.pk = pk
	c.pkEnc = pkEnc
	c.raw = raw
	c.value = value

	return nil
}

// Key returns the current index key (for index cursors) or primary key.
func (c *Cursor) Key() any {
	return c.key
}

// PrimaryKey returns the primary key of the current record.
func (c *Cursor) PrimaryKey() any {
	return c.pk
}

// Value returns the current record.
func (c *Cursor) Value() model.Record {
	return c.value
}

// Err returns the error that stopped the iteration, if any.
func (c *Cursor) Err() error {
	return c.err
}

// Delete removes the current record.
func (c *Cursor) Delete() error {
	if err := c.current(); err != nil {
		return err
	}

	if err := c.store.tx.checkWritable(); err != nil {
		return err
	}

	return c.store.deleteRecord(c.pkEnc, c.raw)
}

// Update replaces the current record with value. For stores with an in-line
// key path, value must carry the current primary key.
func (c *Cursor) Update(value model.Record) error {
	if err := c.current(); err != nil {
		return err
	}

	if err := c.store.tx.checkWritable(); err != nil {
		return err
	}

	if c.store.schema.KeyPath == "" {
		_, err := c.store.Put(value, c.pk)
		return err
	}

	data, err := encodeRecord(value)
	if err != nil {
		return err
	}

	k, ok := keyFromJSON(gjson.GetBytes(data, c.store.schema.KeyPath))
	if !ok {
		return fmt.Errorf("%w: updated value has no key at %q", ErrData, c.store.schema.KeyPath)
	}

	if cmp, err := CompareKeys(k, c.pk); err != nil || cmp != 0 {
		return fmt.Errorf("%w: updated value changes the primary key", ErrData)
	}

	_, err = c.store.Put(value, nil)

	return err
}

func (c *Cursor) current() error {
	if c.pkEnc == nil || c.done {
		return fmt.Errorf("%w: cursor is not positioned on a record", ErrInvalidState)
	}

	return nil
}

func collectValues(c *Cursor, count int) ([]model.Record, error) {
	out := []model.Record{}

	for c.Next() {
		out = append(out, c.Value())

		if count > 0 && len(out) >= count {
			break
		}
	}

	return out, c.Err()
}

func collectKeys(c *Cursor, count int) ([]any, error) {
	out := []any{}

	for c.Next() {
		out = append(out, c.PrimaryKey())

		if count > 0 && len(out) >= count {
			break
		}
	}

	return out, c.Err()
}

func countEntries(c *Cursor) (int, error) {
	n := 0
	for c.Next() {
		n++
	}

	return n, c.Err()
}
