package chatdb

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/inovacc/chatdb/internal/docstore"
	"github.com/inovacc/chatdb/internal/model"
)

// Schema of the message store.
const (
	StoreName = "singleChat"
	KeyPath   = "sequenceId"

	IndexSequenceID  = "sequenceId"
	IndexLink        = "link"
	IndexMessageType = "messageType"

	DefaultVersion = 1
)

// InsertResult reports the outcome of Insert. Exists is set when a record
// with the same key was already stored and nothing was written.
type InsertResult struct {
	Key    any  `json:"key"`
	Exists bool `json:"exists"`
}

// Facade exposes the message store operations over databases opened from
// one factory. It holds no per-database state.
type Facade struct {
	factory *docstore.Factory
	logger  *slog.Logger
}

// New returns a facade opening databases through factory.
func New(factory *docstore.Factory, logger *slog.Logger) *Facade {
	if logger == nil {
		logger = slog.Default()
	}

	return &Facade{
		factory: factory,
		logger:  logger.With(slog.String("component", "chatdb")),
	}
}

// Factory returns the underlying database factory.
func (f *Facade) Factory() *docstore.Factory {
	return f.factory
}

// OpenDatabase opens name at version, creating it if needed. Version 0
// means DefaultVersion. The upgrade hook provisions the message store and
// its indexes when they are missing.
func (f *Facade) OpenDatabase(name string, version uint64) (*docstore.Database, error) {
	if version == 0 {
		version = DefaultVersion
	}

	db, err := f.factory.Open(name, version, f.upgrade)
	if err != nil {
		f.logger.Error("open database failed",
			slog.String("db", name),
			slog.Uint64("version", version),
			slog.String("code", docstore.ErrorName(err)),
			slog.Any("error", err))

		return nil, err
	}

	f.logger.Info("database opened", slog.String("db", name), slog.Uint64("version", db.Version()))

	return db, nil
}

func (f *Facade) upgrade(ev docstore.UpgradeEvent) error {
	f.logger.Info("database upgrade needed",
		slog.Uint64("old_version", ev.OldVersion),
		slog.Uint64("new_version", ev.NewVersion))

	var (
		store *docstore.ObjectStore
		err   error
	)

	if ev.Tx.HasObjectStore(StoreName) {
		store, err = ev.Tx.ObjectStore(StoreName)
	} else {
		store, err = ev.Tx.CreateObjectStore(StoreName, docstore.StoreOptions{KeyPath: KeyPath, AutoIncrement: true})
	}

	if err != nil {
		return err
	}

	indexes := []struct {
		name   string
		unique bool
	}{
		{IndexSequenceID, true},
		{IndexLink, false},
		{IndexMessageType, false},
	}

	existing := map[string]bool{}
	for _, n := range store.IndexNames() {
		existing[n] = true
	}

	for _, idx := range indexes {
		if existing[idx.name] {
			continue
		}

		if _, err := store.CreateIndex(idx.name, idx.name, docstore.IndexOptions{Unique: idx.unique}); err != nil {
			return err
		}
	}

	return nil
}

// Insert adds rec unless a record with the same sequenceId exists, in which
// case it returns Exists without touching storage. Records without a
// sequenceId get one from the key generator.
func (f *Facade) Insert(db *docstore.Database, storeName string, rec model.Record) (InsertResult, error) {
	log := f.logger.With(slog.String("db", db.Name()), slog.String("store", storeName))

	var res InsertResult

	err := db.Update(storeName, func(s *docstore.ObjectStore) error {
		if kp := s.KeyPath(); kp != "" && rec.Has(kp) {
			found, err := s.Get(rec[kp])
			if err != nil {
				return err
			}

			if found != nil {
				res = InsertResult{Key: found[kp], Exists: true}
				return nil
			}
		}

		key, err := s.Add(rec, nil)
		if err != nil {
			return err
		}

		res.Key = key

		return nil
	})
	if err != nil {
		f.fail(log, "insert failed", err)
		return InsertResult{}, err
	}

	if res.Exists {
		log.Info("record already exists", slog.Any("key", res.Key))
	} else {
		log.Info("record inserted", slog.Any("key", res.Key))
	}

	return res, nil
}

// GetByKey returns the record stored under key, or nil.
func (f *Facade) GetByKey(db *docstore.Database, storeName string, key any) (model.Record, error) {
	log := f.logger.With(slog.String("db", db.Name()), slog.String("store", storeName))

	var rec model.Record

	err := db.View(storeName, func(s *docstore.ObjectStore) error {
		var err error
		rec, err = s.Get(key)

		return err
	})
	if err != nil {
		f.fail(log, "get by key failed", err, slog.Any("key", key))
		return nil, err
	}

	log.Debug("get by key", slog.Any("key", key), slog.Bool("found", rec != nil))

	return rec, nil
}

// GetByIndex returns the first record, in index order, whose indexName value
// equals value, or nil.
func (f *Facade) GetByIndex(db *docstore.Database, storeName, indexName string, value any) (model.Record, error) {
	log := f.logger.With(slog.String("db", db.Name()), slog.String("store", storeName), slog.String("index", indexName))

	var rec model.Record

	err := db.View(storeName, func(s *docstore.ObjectStore) error {
		idx, err := s.Index(indexName)
		if err != nil {
			return err
		}

		rec, err = idx.Get(value)

		return err
	})
	if err != nil {
		f.fail(log, "get by index failed", err, slog.Any("value", value))
		return nil, err
	}

	log.Debug("get by index", slog.Any("value", value), slog.Bool("found", rec != nil))

	return rec, nil
}

// GetAll returns every record in key order.
func (f *Facade) GetAll(db *docstore.Database, storeName string) ([]model.Record, error) {
	log := f.logger.With(slog.String("db", db.Name()), slog.String("store", storeName))

	var out []model.Record

	err := db.View(storeName, func(s *docstore.ObjectStore) error {
		var err error
		out, err = s.GetAll(nil, 0)

		return err
	})
	if err != nil {
		f.fail(log, "get all failed", err)
		return nil, err
	}

	log.Debug("get all", slog.Int("count", len(out)))

	return out, nil
}

// ScanByIndex walks a cursor over the records whose indexName value equals
// value and returns them in index order.
func (f *Facade) ScanByIndex(db *docstore.Database, storeName, indexName string, value any) ([]model.Record, error) {
	return f.scan(db, storeName, indexName, value, func(int) bool { return true })
}

// ScanByIndexPaged is ScanByIndex restricted to the records at 1-based
// positions p with pageSize*(pageNumber-1) < p <= pageSize*pageNumber.
// The cursor still visits every match. A page past the end, or a
// non-positive pageSize or pageNumber, yields an empty result.
func (f *Facade) ScanByIndexPaged(db *docstore.Database, storeName, indexName string, value any, pageSize, pageNumber int) ([]model.Record, error) {
	var lo, hi int

	// pages whose bounds overflow int lie past any reachable position
	if pageSize > 0 && pageNumber > 0 && pageNumber-1 < math.MaxInt/pageSize {
		lo = pageSize * (pageNumber - 1)
		hi = lo + pageSize
	}

	return f.scan(db, storeName, indexName, value, func(p int) bool { return p > lo && p <= hi })
}

func (f *Facade) scan(db *docstore.Database, storeName, indexName string, value any, keep func(p int) bool) ([]model.Record, error) {
	log := f.logger.With(slog.String("db", db.Name()), slog.String("store", storeName), slog.String("index", indexName))

	out := []model.Record{}
	visited := 0

	err := db.View(storeName, func(s *docstore.ObjectStore) error {
		idx, err := s.Index(indexName)
		if err != nil {
			return err
		}

		rng, err := docstore.Only(value)
		if err != nil {
			return err
		}

		c, err := idx.OpenCursor(rng)
		if err != nil {
			return err
		}

		for c.Next() {
			visited++

			if keep(visited) {
				out = append(out, c.Value())
			}
		}

		return c.Err()
	})
	if err != nil {
		f.fail(log, "scan failed", err, slog.Any("value", value))
		return nil, err
	}

	log.Debug("scan finished", slog.Any("value", value), slog.Int("visited", visited), slog.Int("returned", len(out)))

	return out, nil
}

// UpdateByKey writes data under key, replacing any existing record. The key
// argument is authoritative: it is stored in data's key path field, and data
// carrying a different key there is rejected with docstore.ErrData.
func (f *Facade) UpdateByKey(db *docstore.Database, storeName string, key any, data model.Record) error {
	log := f.logger.With(slog.String("db", db.Name()), slog.String("store", storeName))

	err := db.Update(storeName, func(s *docstore.ObjectStore) error {
		kp := s.KeyPath()
		if kp == "" {
			_, err := s.Put(data, key)
			return err
		}

		if data == nil {
			return fmt.Errorf("%w: record is nil", docstore.ErrData)
		}

		rec := data.Clone()

		if rec.Has(kp) {
			cmp, err := docstore.CompareKeys(rec[kp], key)
			if err != nil {
				return err
			}

			if cmp != 0 {
				return fmt.Errorf("%w: record %s %v does not match key %v", docstore.ErrData, kp, rec[kp], key)
			}
		}

		k, err := docstore.NormalizeKey(key)
		if err != nil {
			return err
		}

		rec[kp] = k

		_, err = s.Put(rec, nil)

		return err
	})
	if err != nil {
		f.fail(log, "update failed", err, slog.Any("key", key))
		return err
	}

	log.Info("record updated", slog.Any("key", key))

	return nil
}

// DeleteByKey removes the record under key. An absent key is not an error.
func (f *Facade) DeleteByKey(db *docstore.Database, storeName string, key any) error {
	log := f.logger.With(slog.String("db", db.Name()), slog.String("store", storeName))

	err := db.Update(storeName, func(s *docstore.ObjectStore) error {
		return s.Delete(key)
	})
	if err != nil {
		f.fail(log, "delete failed", err, slog.Any("key", key))
		return err
	}

	log.Info("record deleted", slog.Any("key", key))

	return nil
}

// DeleteByIndex removes every record whose indexName value equals value and
// returns how many were deleted. The deletes share one transaction: on error
// none of them are applied.
func (f *Facade) DeleteByIndex(db *docstore.Database, storeName, indexName string, value any) (int, error) {
	log := f.logger.With(slog.String("db", db.Name()), slog.String("store", storeName), slog.String("index", indexName))

	deleted := 0

	err := db.Update(storeName, func(s *docstore.ObjectStore) error {
		idx, err := s.Index(indexName)
		if err != nil {
			return err
		}

		rng, err := docstore.Only(value)
		if err != nil {
			return err
		}

		c, err := idx.OpenCursor(rng)
		if err != nil {
			return err
		}

		for c.Next() {
			if err := c.Delete(); err != nil {
				return err
			}

			deleted++
		}

		return c.Err()
	})
	if err != nil {
		f.fail(log, "delete by index failed", err, slog.Any("value", value))
		return 0, err
	}

	log.Info("records deleted by index", slog.Any("value", value), slog.Int("count", deleted))

	return deleted, nil
}

// CloseDatabase closes db. The handle must not be used afterwards.
func (f *Facade) CloseDatabase(db *docstore.Database) error {
	if err := db.Close(); err != nil {
		f.fail(f.logger.With(slog.String("db", db.Name())), "close failed", err)
		return err
	}

	f.logger.Info("database closed", slog.String("db", db.Name()))

	return nil
}

// DeleteDatabase destroys the database called name with all its records.
// It fails with docstore.ErrBlocked while handles to it are open.
func (f *Facade) DeleteDatabase(name string) error {
	log := f.logger.With(slog.String("db", name))

	if err := f.factory.DeleteDatabase(name); err != nil {
		f.fail(log, "delete database failed", err)
		return err
	}

	log.Info("database deleted")

	return nil
}

func (f *Facade) fail(log *slog.Logger, msg string, err error, attrs ...any) {
	attrs = append(attrs, slog.String("code", docstore.ErrorName(err)), slog.Any("error", err))
	log.Error(msg, attrs...)
}
