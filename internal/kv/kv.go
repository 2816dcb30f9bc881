// Package kv provides the ordered key-value engines under the document
// store: a bbolt file or a single-table SQLite database. Keys within a
// bucket are byte slices compared with bytes.Compare on both drivers.
package kv

import (
	"errors"
	"fmt"
	"os"
)

// Supported drivers.
const (
	DriverBolt   = "bolt"
	DriverSQLite = "sqlite"
)

// ErrReadOnly is returned by write methods of a Tx opened with View.
var ErrReadOnly = errors.New("kv: transaction is read-only")

// Backend is an ordered, bucketed key-value engine with serialisable
// read-write transactions.
type Backend interface {
	// View runs fn inside a read-only transaction.
	View(fn func(Tx) error) error
	// Update runs fn inside a read-write transaction. The transaction is
	// committed if fn returns nil and rolled back otherwise.
	Update(fn func(Tx) error) error
	Path() string
	Close() error
}

// Tx is a transaction over named buckets. Keys within a bucket are ordered
// by bytes.Compare. Returned slices are owned by the caller.
type Tx interface {
	Writable() bool
	// Get returns nil when the key (or bucket) does not exist.
	Get(bucket string, key []byte) ([]byte, error)
	// Put creates the bucket on demand.
	Put(bucket string, key, value []byte) error
	Delete(bucket string, key []byte) error
	// Seek returns the first pair whose key is >= key, or a nil key when
	// the bucket is exhausted.
	Seek(bucket string, key []byte) (k, v []byte, err error)
	Sequence(bucket string) (uint64, error)
	SetSequence(bucket string, seq uint64) error
	// DropBucket removes the bucket, its keys and its sequence.
	DropBucket(bucket string) error
}

// Open opens the backend for driver at path, creating the file if needed.
func Open(driver, path string) (Backend, error) {
	switch driver {
	case DriverBolt, "":
		return openBolt(path)
	case DriverSQLite:
		return openSQLite(path)
	default:
		return nil, fmt.Errorf("kv: unknown driver %q", driver)
	}
}

// Ext returns the file extension used for databases of driver.
func Ext(driver string) string {
	if driver == DriverSQLite {
		return ".sqlite"
	}

	return ".bolt"
}

// Remove deletes the files of a closed backend. Missing files are ignored.
func Remove(driver, path string) error {
	paths := []string{path}
	if driver == DriverSQLite {
		paths = append(paths, path+"-wal", path+"-shm")
	}

	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", p, err)
		}
	}

	return nil
}

// Next returns the smallest key strictly greater than key.
func Next(key []byte) []byte {
	out := make([]byte, len(key)+1)
	copy(out, key)

	return out
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}

	out := make([]byte, len(b))
	copy(out, b)

	return out
}
