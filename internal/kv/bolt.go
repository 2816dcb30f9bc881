package kv

import (
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

// Bolt maps each bucket to a top-level bbolt bucket in one file.
type Bolt struct {
	storage *bbolt.DB
}

func openBolt(path string) (*Bolt, error) {
	instance, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt database %s: %w", path, err)
	}

	return &Bolt{storage: instance}, nil
}

func (b *Bolt) Path() string {
	return b.storage.Path()
}

func (b *Bolt) Close() error {
	return b.storage.Close()
}

func (b *Bolt) View(fn func(Tx) error) error {
	return b.storage.View(func(tx *bbolt.Tx) error {
		return fn(&boltTx{tx: tx})
	})
}

func (b *Bolt) Update(fn func(Tx) error) error {
	return b.storage.Update(func(tx *bbolt.Tx) error {
		return fn(&boltTx{tx: tx})
	})
}

type boltTx struct {
	tx *bbolt.Tx
}

func (t *boltTx) Writable() bool {
	return t.tx.Writable()
}

func (t *boltTx) Get(bucket string, key []byte) ([]byte, error) {
	bkt := t.tx.Bucket([]byte(bucket))
	if bkt == nil {
		return nil, nil
	}

	return clone(bkt.Get(key)), nil
}

func (t *boltTx) Put(bucket string, key, value []byte) error {
	if !t.tx.Writable() {
		return ErrReadOnly
	}

	bkt, err := t.tx.CreateBucketIfNotExists([]byte(bucket))
	if err != nil {
		return err
	}

	if value == nil {
		value = []byte{}
	}

	return bkt.Put(key, value)
}

func (t *boltTx) Delete(bucket string, key []byte) error {
	if !t.tx.Writable() {
		return ErrReadOnly
	}

	bkt := t.tx.Bucket([]byte(bucket))
	if bkt == nil {
		return nil
	}

	return bkt.Delete(key)
}

func (t *boltTx) Seek(bucket string, key []byte) ([]byte, []byte, error) {
	bkt := t.tx.Bucket([]byte(bucket))
	if bkt == nil {
		return nil, nil, nil
	}

	c := bkt.Cursor()

	var k, v []byte
	if len(key) == 0 {
		k, v = c.First()
	} else {
		k, v = c.Seek(key)
	}

	if k == nil {
		return nil, nil, nil
	}

	return clone(k), clone(v), nil
}

func (t *boltTx) Sequence(bucket string) (uint64, error) {
	bkt := t.tx.Bucket([]byte(bucket))
	if bkt == nil {
		return 0, nil
	}

	return bkt.Sequence(), nil
}

func (t *boltTx) SetSequence(bucket string, seq uint64) error {
	if !t.tx.Writable() {
		return ErrReadOnly
	}

	bkt, err := t.tx.CreateBucketIfNotExists([]byte(bucket))
	if err != nil {
		return err
	}

	return bkt.SetSequence(seq)
}

func (t *boltTx) DropBucket(bucket string) error {
	if !t.tx.Writable() {
		return ErrReadOnly
	}

	err := t.tx.DeleteBucket([]byte(bucket))
	if errors.Is(err, bbolt.ErrBucketNotFound) {
		return nil
	}

	return err
}
