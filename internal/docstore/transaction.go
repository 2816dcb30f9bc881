package docstore

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/inovacc/chatdb/internal/kv"
)

// Mode is the access mode of a transaction.
type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
	VersionChange
)

func (m Mode) String() string {
	switch m {
	case ReadOnly:
		return "readonly"
	case ReadWrite:
		return "readwrite"
	case VersionChange:
		return "versionchange"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Transaction gives access to object stores for the duration of a
// Database.Transaction callback or an upgrade. It must not be used from
// more than one goroutine, nor after the callback returns.
type Transaction struct {
	id     string
	logger *slog.Logger
	conn   *conn
	kv     kv.Tx
	mode   Mode
	scope  map[string]bool
	schema *Schema
	active bool
}

func newTransaction(logger *slog.Logger, c *conn, ktx kv.Tx, mode Mode, scope map[string]bool, schema *Schema) *Transaction {
	tx := &Transaction{
		id:     uuid.NewString(),
		conn:   c,
		kv:     ktx,
		mode:   mode,
		scope:  scope,
		schema: schema,
		active: true,
	}

	tx.logger = logger.With(slog.String("db", c.name), slog.String("tx", tx.id), slog.String("mode", mode.String()))
	tx.logger.Debug("transaction started")

	return tx
}

func (tx *Transaction) finish() {
	tx.active = false
	tx.logger.Debug("transaction finished")
}

// ID identifies the transaction in log output.
func (tx *Transaction) ID() string {
	return tx.id
}

// Mode returns the access mode.
func (tx *Transaction) Mode() Mode {
	return tx.mode
}

func (tx *Transaction) checkActive() error {
	if !tx.active {
		return fmt.Errorf("%w: transaction %s has finished", ErrTransactionInactive, tx.id)
	}

	return nil
}

func (tx *Transaction) checkWritable() error {
	if err := tx.checkActive(); err != nil {
		return err
	}

	if tx.mode == ReadOnly {
		return fmt.Errorf("%w: transaction %s is read-only", ErrReadOnly, tx.id)
	}

	return nil
}

func (tx *Transaction) checkVersionChange() error {
	if err := tx.checkActive(); err != nil {
		return err
	}

	if tx.mode != VersionChange {
		return fmt.Errorf("%w: schema changes require a versionchange transaction", ErrInvalidState)
	}

	return nil
}

// ObjectStore returns the named store. Stores outside the transaction scope
// are reported as ErrNotFound.
func (tx *Transaction) ObjectStore(name string) (*ObjectStore, error) {
	if err := tx.checkActive(); err != nil {
		return nil, err
	}

	if tx.scope != nil && !tx.scope[name] {
		return nil, fmt.Errorf("%w: object store %q is not in the transaction scope", ErrNotFound, name)
	}

	st, ok := tx.schema.Stores[name]
	if !ok {
		return nil, fmt.Errorf("%w: object store %q", ErrNotFound, name)
	}

	return &ObjectStore{tx: tx, name: name, schema: st}, nil
}

// HasObjectStore reports whether the store exists in the transaction's schema.
func (tx *Transaction) HasObjectStore(name string) bool {
	_, ok := tx.schema.Stores[name]
	return ok
}

// CreateObjectStore adds a store. Only valid during an upgrade.
func (tx *Transaction) CreateObjectStore(name string, opts StoreOptions) (*ObjectStore, error) {
	if err := tx.checkVersionChange(); err != nil {
		return nil, err
	}

	if _, ok := tx.schema.Stores[name]; ok {
		return nil, fmt.Errorf("%w: object store %q already exists", ErrConstraint, name)
	}

	st := StoreSchema{
		Name:          name,
		KeyPath:       opts.KeyPath,
		AutoIncrement: opts.AutoIncrement,
		Indexes:       map[string]IndexSchema{},
	}
	tx.schema.Stores[name] = st

	tx.logger.Info("object store created",
		slog.String("store", name),
		slog.String("key_path", opts.KeyPath),
		slog.Bool("auto_increment", opts.AutoIncrement))

	return &ObjectStore{tx: tx, name: name, schema: st}, nil
}

// DeleteObjectStore removes a store and all its records. Only valid during
// an upgrade.
func (tx *Transaction) DeleteObjectStore(name string) error {
	if err := tx.checkVersionChange(); err != nil {
		return err
	}

	st, ok := tx.schema.Stores[name]
	if !ok {
		return fmt.Errorf("%w: object store %q", ErrNotFound, name)
	}

	for idx := range st.Indexes {
		if err := tx.kv.DropBucket(indexBucket(name, idx)); err != nil {
			return err
		}
	}

	if err := tx.kv.DropBucket(recordsBucket(name)); err != nil {
		return err
	}

	delete(tx.schema.Stores, name)

	tx.logger.Info("object store deleted", slog.String("store", name))

	return nil
}
