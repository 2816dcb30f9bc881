package docstore

import (
	"fmt"
	"sync/atomic"

	"github.com/inovacc/chatdb/internal/kv"
)

// Database is a connection handle returned by Factory.Open.
type Database struct {
	factory *Factory
	conn    *conn
	closed  atomic.Bool
}

// Name returns the database name.
func (db *Database) Name() string {
	return db.conn.name
}

// Version returns the schema version.
func (db *Database) Version() uint64 {
	db.conn.mu.RLock()
	defer db.conn.mu.RUnlock()

	return db.conn.schema.Version
}

// Schema returns a copy of the current schema.
func (db *Database) Schema() Schema {
	db.conn.mu.RLock()
	defer db.conn.mu.RUnlock()

	return db.conn.schema.clone()
}

// ObjectStoreNames returns the object store names in sorted order.
func (db *Database) ObjectStoreNames() []string {
	return db.Schema().StoreNames()
}

// Path returns the file backing the database.
func (db *Database) Path() string {
	return db.conn.backend.Path()
}

// Closed reports whether Close has been called on this handle.
func (db *Database) Closed() bool {
	return db.closed.Load()
}

// Transaction runs fn in a transaction over the object stores in scope.
// ReadOnly transactions may run concurrently; ReadWrite transactions are
// serialised by the engine. The transaction commits when fn returns nil and
// aborts otherwise; fn's error is returned unchanged.
func (db *Database) Transaction(scope []string, mode Mode, fn func(tx *Transaction) error) error {
	if db.closed.Load() {
		return fmt.Errorf("%w: database %q is closed", ErrInvalidState, db.conn.name)
	}

	if len(scope) == 0 {
		return fmt.Errorf("%w: empty transaction scope", ErrInvalidAccess)
	}

	if mode != ReadOnly && mode != ReadWrite {
		return fmt.Errorf("%w: cannot start a %s transaction", ErrInvalidAccess, mode)
	}

	c := db.conn

	c.mu.RLock()
	defer c.mu.RUnlock()

	schema := c.schema

	allowed := make(map[string]bool, len(scope))

	for _, name := range scope {
		if _, ok := schema.Stores[name]; !ok {
			return fmt.Errorf("%w: object store %q", ErrNotFound, name)
		}

		allowed[name] = true
	}

	run := c.backend.View
	if mode == ReadWrite {
		run = c.backend.Update
	}

	return run(func(ktx kv.Tx) error {
		tx := newTransaction(db.factory.logger, c, ktx, mode, allowed, &schema)
		defer tx.finish()

		return fn(tx)
	})
}

// View is shorthand for a ReadOnly transaction over one store.
func (db *Database) View(store string, fn func(s *ObjectStore) error) error {
	return db.Transaction([]string{store}, ReadOnly, func(tx *Transaction) error {
		s, err := tx.ObjectStore(store)
		if err != nil {
			return err
		}

		return fn(s)
	})
}

// Update is shorthand for a ReadWrite transaction over one store.
func (db *Database) Update(store string, fn func(s *ObjectStore) error) error {
	return db.Transaction([]string{store}, ReadWrite, func(tx *Transaction) error {
		s, err := tx.ObjectStore(store)
		if err != nil {
			return err
		}

		return fn(s)
	})
}

// Close releases the handle. The engine connection is closed when the last
// handle for the database is closed. Close is idempotent.
func (db *Database) Close() error {
	if !db.closed.CompareAndSwap(false, true) {
		return nil
	}

	return db.factory.release(db.conn)
}
