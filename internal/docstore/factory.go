package docstore

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/inovacc/chatdb/internal/encoding"
	"github.com/inovacc/chatdb/internal/kv"
)

// UpgradeEvent is passed to an UpgradeFunc when a database is opened at a
// version higher than the stored one.
type UpgradeEvent struct {
	OldVersion uint64
	NewVersion uint64
	// Tx is a versionchange transaction: it may create and delete object
	// stores and indexes, and read or write records.
	Tx *Transaction
}

// UpgradeFunc provisions the schema for a new version. Returning an error
// aborts the upgrade and the open.
type UpgradeFunc func(ev UpgradeEvent) error

// Factory opens and deletes named databases stored under one directory.
// Handles to the same name share one engine connection.
type Factory struct {
	dir    string
	driver string
	logger *slog.Logger

	mu    sync.Mutex
	conns map[string]*conn
}

type conn struct {
	name    string
	backend kv.Backend
	refs    int

	// mu guards schema. Transactions hold it for reading while they run;
	// upgrades hold it for writing.
	mu     sync.RWMutex
	schema Schema
}

// NewFactory returns a factory storing databases in dir with the given KV
// driver (kv.DriverBolt or kv.DriverSQLite).
func NewFactory(dir, driver string, logger *slog.Logger) *Factory {
	if driver == "" {
		driver = kv.DriverBolt
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Factory{
		dir:    dir,
		driver: driver,
		logger: logger.With(slog.String("component", "docstore")),
		conns:  map[string]*conn{},
	}
}

// Dir returns the directory holding the database files.
func (f *Factory) Dir() string {
	return f.dir
}

// Driver returns the KV driver name.
func (f *Factory) Driver() string {
	return f.driver
}

// Path returns the file path of the database called name.
func (f *Factory) Path(name string) string {
	return filepath.Join(f.dir, url.PathEscape(name)+kv.Ext(f.driver))
}

// Open opens the database called name, creating it if absent. Version 0
// opens at the current version (1 for a new database). When version is
// higher than the stored one, upgrade runs inside a versionchange
// transaction before Open returns.
func (f *Factory) Open(name string, version uint64, upgrade UpgradeFunc) (*Database, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, fresh, err := f.connect(name)
	if err != nil {
		return nil, err
	}

	release := func() {
		if fresh {
			_ = c.backend.Close()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.schema.Version

	if version == 0 {
		version = max(current, 1)
	}

	if version < current {
		release()
		return nil, fmt.Errorf("%w: requested version %d is less than existing version %d", ErrVersion, version, current)
	}

	if version > current {
		if err := f.upgrade(c, version, upgrade); err != nil {
			release()

			if fresh && current == 0 {
				_ = kv.Remove(f.driver, c.backend.Path())
			}

			return nil, err
		}
	}

	c.refs++
	f.conns[name] = c

	return &Database{factory: f, conn: c}, nil
}

// connect returns the shared connection for name, opening the engine when
// no handle is open. fresh reports whether the engine was opened here.
func (f *Factory) connect(name string) (*conn, bool, error) {
	if c, ok := f.conns[name]; ok {
		return c, false, nil
	}

	if err := encoding.EnsureDir(f.dir); err != nil {
		return nil, false, err
	}

	backend, err := kv.Open(f.driver, f.Path(name))
	if err != nil {
		return nil, false, err
	}

	var schema Schema

	err = backend.View(func(tx kv.Tx) error {
		s, err := loadSchema(tx, name)
		schema = s

		return err
	})
	if err != nil {
		_ = backend.Close()
		return nil, false, err
	}

	return &conn{name: name, backend: backend, schema: schema}, true, nil
}

func (f *Factory) upgrade(c *conn, version uint64, upgrade UpgradeFunc) error {
	working := c.schema.clone()
	oldVersion := working.Version

	f.logger.Info("upgrading database",
		slog.String("db", c.name),
		slog.Uint64("old_version", oldVersion),
		slog.Uint64("new_version", version))

	err := c.backend.Update(func(ktx kv.Tx) error {
		tx := newTransaction(f.logger, c, ktx, VersionChange, nil, &working)
		defer tx.finish()

		if upgrade != nil {
			if err := upgrade(UpgradeEvent{OldVersion: oldVersion, NewVersion: version, Tx: tx}); err != nil {
				return err
			}
		}

		working.Version = version

		return saveSchema(ktx, working)
	})
	if err != nil {
		f.logger.Error("database upgrade failed", slog.String("db", c.name), slog.Any("error", err))
		return fmt.Errorf("%w: upgrade to version %d: %w", ErrAbort, version, err)
	}

	c.schema = working

	return nil
}

// DeleteDatabase removes the database called name. Deleting a database
// that does not exist succeeds. Deleting a database with open handles
// fails with ErrBlocked.
func (f *Factory) DeleteDatabase(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.conns[name]; ok && c.refs > 0 {
		return fmt.Errorf("%w: database %q has %d open connection(s)", ErrBlocked, name, c.refs)
	}

	return kv.Remove(f.driver, f.Path(name))
}

// Databases lists the names of the databases stored in the factory directory.
func (f *Factory) Databases() ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("listing %s: %w", f.dir, err)
	}

	ext := kv.Ext(f.driver)

	var names []string

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ext) {
			continue
		}

		name, err := url.PathUnescape(strings.TrimSuffix(e.Name(), ext))
		if err != nil {
			continue
		}

		names = append(names, name)
	}

	sort.Strings(names)

	return names, nil
}

func (f *Factory) release(c *conn) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	c.refs--
	if c.refs > 0 {
		return nil
	}

	delete(f.conns, c.name)

	return c.backend.Close()
}
