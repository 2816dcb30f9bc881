package docstore

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/inovacc/chatdb/internal/kv"
	"github.com/inovacc/chatdb/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDrivers = []string{kv.DriverBolt, kv.DriverSQLite}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func eachFactory(t *testing.T, fn func(t *testing.T, f *Factory)) {
	t.Helper()

	for _, driver := range testDrivers {
		t.Run(driver, func(t *testing.T) {
			fn(t, NewFactory(t.TempDir(), driver, quietLogger()))
		})
	}
}

// messagesUpgrade creates a "messages" store keyed in-line by "id" with a
// generator, and a unique "email" and a non-unique "tag" index.
func messagesUpgrade(ev UpgradeEvent) error {
	s, err := ev.Tx.CreateObjectStore("messages", StoreOptions{KeyPath: "id", AutoIncrement: true})
	if err != nil {
		return err
	}

	if _, err := s.CreateIndex("email", "email", IndexOptions{Unique: true}); err != nil {
		return err
	}

	_, err = s.CreateIndex("tag", "meta.tag", IndexOptions{})

	return err
}

func openMessages(t *testing.T, f *Factory) *Database {
	t.Helper()

	db, err := f.Open("test", 1, messagesUpgrade)
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })

	return db
}

func put(t *testing.T, db *Database, recs ...model.Record) []any {
	t.Helper()

	var keys []any

	err := db.Update("messages", func(s *ObjectStore) error {
		for _, r := range recs {
			k, err := s.Put(r, nil)
			if err != nil {
				return err
			}

			keys = append(keys, k)
		}

		return nil
	})
	require.NoError(t, err)

	return keys
}

func TestFactoryOpenCreatesAndPersistsSchema(t *testing.T) {
	eachFactory(t, func(t *testing.T, f *Factory) {
		db, err := f.Open("test", 1, messagesUpgrade)
		require.NoError(t, err)

		assert.Equal(t, "test", db.Name())
		assert.Equal(t, uint64(1), db.Version())
		assert.Equal(t, []string{"messages"}, db.ObjectStoreNames())
		assert.FileExists(t, db.Path())

		require.NoError(t, db.Close())

		called := false

		db, err = f.Open("test", 0, func(UpgradeEvent) error {
			called = true
			return nil
		})
		require.NoError(t, err)
		defer db.Close()

		assert.False(t, called)
		assert.Equal(t, uint64(1), db.Version())

		st := db.Schema().Stores["messages"]
		assert.Equal(t, "id", st.KeyPath)
		assert.True(t, st.AutoIncrement)
		assert.Equal(t, []string{"email", "tag"}, st.IndexNames())

		names, err := f.Databases()
		require.NoError(t, err)
		assert.Equal(t, []string{"test"}, names)
	})
}

func TestFactoryUpgradeEvent(t *testing.T) {
	eachFactory(t, func(t *testing.T, f *Factory) {
		db := openMessages(t, f)
		put(t, db, model.Record{"email": "a@x", "meta": map[string]any{"tag": "red"}})
		require.NoError(t, db.Close())

		var ev UpgradeEvent

		db, err := f.Open("test", 3, func(e UpgradeEvent) error {
			ev = e

			s, err := e.Tx.ObjectStore("messages")
			if err != nil {
				return err
			}

			if _, err := s.CreateIndex("email_plain", "email", IndexOptions{}); err != nil {
				return err
			}

			_, err = e.Tx.CreateObjectStore("drafts", StoreOptions{})

			return err
		})
		require.NoError(t, err)
		defer db.Close()

		assert.Equal(t, uint64(1), ev.OldVersion)
		assert.Equal(t, uint64(3), ev.NewVersion)
		assert.Equal(t, uint64(3), db.Version())
		assert.Equal(t, []string{"drafts", "messages"}, db.ObjectStoreNames())

		err = db.View("messages", func(s *ObjectStore) error {
			idx, err := s.Index("email_plain")
			require.NoError(t, err)

			rec, err := idx.Get("a@x")
			require.NoError(t, err)
			assert.Equal(t, float64(1), rec["id"])

			return nil
		})
		require.NoError(t, err)

		// the upgrade transaction is over
		_, err = ev.Tx.ObjectStore("messages")
		assert.ErrorIs(t, err, ErrTransactionInactive)
	})
}

func TestFactoryLowerVersion(t *testing.T) {
	eachFactory(t, func(t *testing.T, f *Factory) {
		db, err := f.Open("test", 2, nil)
		require.NoError(t, err)
		require.NoError(t, db.Close())

		_, err = f.Open("test", 1, nil)
		require.ErrorIs(t, err, ErrVersion)
	})
}

func TestFactoryUpgradeAbort(t *testing.T) {
	eachFactory(t, func(t *testing.T, f *Factory) {
		boom := errors.New("boom")

		_, err := f.Open("fresh", 1, func(ev UpgradeEvent) error {
			if _, err := ev.Tx.CreateObjectStore("s", StoreOptions{}); err != nil {
				return err
			}

			return boom
		})
		require.ErrorIs(t, err, ErrAbort)
		require.ErrorIs(t, err, boom)
		assert.NoFileExists(t, f.Path("fresh"))

		db := openMessages(t, f)
		put(t, db, model.Record{"email": "a@x"})
		require.NoError(t, db.Close())

		_, err = f.Open("test", 2, func(ev UpgradeEvent) error {
			if err := ev.Tx.DeleteObjectStore("messages"); err != nil {
				return err
			}

			return boom
		})
		require.ErrorIs(t, err, ErrAbort)

		db, err = f.Open("test", 0, nil)
		require.NoError(t, err)
		defer db.Close()

		assert.Equal(t, uint64(1), db.Version())

		err = db.View("messages", func(s *ObjectStore) error {
			n, err := s.Count(nil)
			assert.Equal(t, 1, n)

			return err
		})
		require.NoError(t, err)
	})
}

func TestFactorySharedConnection(t *testing.T) {
	eachFactory(t, func(t *testing.T, f *Factory) {
		a := openMessages(t, f)

		b, err := f.Open("test", 0, nil)
		require.NoError(t, err)

		require.ErrorIs(t, f.DeleteDatabase("test"), ErrBlocked)

		require.NoError(t, a.Close())
		assert.True(t, a.Closed())
		require.ErrorIs(t, f.DeleteDatabase("test"), ErrBlocked)

		put(t, b, model.Record{"email": "b@x"})

		require.NoError(t, b.Close())
		require.NoError(t, f.DeleteDatabase("test"))
		assert.NoFileExists(t, f.Path("test"))

		require.NoError(t, f.DeleteDatabase("never-created"))
	})
}

func TestTransactionChecks(t *testing.T) {
	eachFactory(t, func(t *testing.T, f *Factory) {
		db := openMessages(t, f)

		err := db.Transaction(nil, ReadOnly, func(*Transaction) error { return nil })
		assert.ErrorIs(t, err, ErrInvalidAccess)

		err = db.Transaction([]string{"messages"}, VersionChange, func(*Transaction) error { return nil })
		assert.ErrorIs(t, err, ErrInvalidAccess)

		err = db.Transaction([]string{"nope"}, ReadOnly, func(*Transaction) error { return nil })
		assert.ErrorIs(t, err, ErrNotFound)

		err = db.View("messages", func(s *ObjectStore) error {
			_, err := s.Put(model.Record{"email": "x"}, nil)
			return err
		})
		assert.ErrorIs(t, err, ErrReadOnly)

		err = db.Update("messages", func(s *ObjectStore) error {
			_, err := s.tx.CreateObjectStore("other", StoreOptions{})
			return err
		})
		assert.ErrorIs(t, err, ErrInvalidState)

		err = db.Update("messages", func(s *ObjectStore) error {
			_, err := s.CreateIndex("other", "other", IndexOptions{})
			return err
		})
		assert.ErrorIs(t, err, ErrInvalidState)

		var leaked *ObjectStore

		require.NoError(t, db.View("messages", func(s *ObjectStore) error {
			leaked = s
			assert.Equal(t, ReadOnly, s.tx.Mode())
			assert.NotEmpty(t, s.tx.ID())

			return nil
		}))

		_, err = leaked.Get(1)
		assert.ErrorIs(t, err, ErrTransactionInactive)

		require.NoError(t, db.Close())

		err = db.View("messages", func(*ObjectStore) error { return nil })
		assert.ErrorIs(t, err, ErrInvalidState)
	})
}

func TestTransactionRollback(t *testing.T) {
	eachFactory(t, func(t *testing.T, f *Factory) {
		db := openMessages(t, f)
		boom := errors.New("boom")

		err := db.Update("messages", func(s *ObjectStore) error {
			if _, err := s.Add(model.Record{"email": "a@x"}, nil); err != nil {
				return err
			}

			return boom
		})
		require.ErrorIs(t, err, boom)

		err = db.View("messages", func(s *ObjectStore) error {
			n, err := s.Count(nil)
			assert.Zero(t, n)

			return err
		})
		require.NoError(t, err)

		// the generator rolled back too
		keys := put(t, db, model.Record{"email": "b@x"})
		assert.Equal(t, []any{float64(1)}, keys)
	})
}

func TestObjectStoreKeys(t *testing.T) {
	eachFactory(t, func(t *testing.T, f *Factory) {
		db := openMessages(t, f)

		keys := put(t, db,
			model.Record{"email": "a"},
			model.Record{"id": 5, "email": "b"},
			model.Record{"email": "c"},
			model.Record{"id": "s1", "email": "d"},
			model.Record{"id": 2.5, "email": "e"},
		)
		assert.Equal(t, []any{float64(1), float64(5), float64(6), "s1", 2.5}, keys)

		err := db.Update("messages", func(s *ObjectStore) error {
			_, err := s.Add(model.Record{"id": 5, "email": "z"}, nil)
			assert.ErrorIs(t, err, ErrConstraint)

			_, err = s.Put(model.Record{"email": "y"}, 9)
			assert.ErrorIs(t, err, ErrData)

			_, err = s.Put(model.Record{"id": true, "email": "w"}, nil)
			assert.ErrorIs(t, err, ErrData)

			all, err := s.GetAllKeys(nil, 0)
			require.NoError(t, err)
			assert.Equal(t, []any{float64(1), 2.5, float64(5), float64(6), "s1"}, all)

			rec, err := s.Get(6)
			require.NoError(t, err)
			assert.Equal(t, model.Record{"id": float64(6), "email": "c"}, rec)

			return nil
		})
		require.NoError(t, err)
	})
}

func TestObjectStoreOutOfLineKeys(t *testing.T) {
	eachFactory(t, func(t *testing.T, f *Factory) {
		db, err := f.Open("ool", 1, func(ev UpgradeEvent) error {
			if _, err := ev.Tx.CreateObjectStore("plain", StoreOptions{}); err != nil {
				return err
			}

			_, err := ev.Tx.CreateObjectStore("gen", StoreOptions{AutoIncrement: true})

			return err
		})
		require.NoError(t, err)
		defer db.Close()

		err = db.Transaction([]string{"plain", "gen"}, ReadWrite, func(tx *Transaction) error {
			plain, err := tx.ObjectStore("plain")
			require.NoError(t, err)

			_, err = plain.Put(model.Record{"v": 1}, nil)
			assert.ErrorIs(t, err, ErrData)

			k, err := plain.Put(model.Record{"v": 1}, "k1")
			require.NoError(t, err)
			assert.Equal(t, "k1", k)

			gen, err := tx.ObjectStore("gen")
			require.NoError(t, err)

			k, err = gen.Add(model.Record{"v": 1}, nil)
			require.NoError(t, err)
			assert.Equal(t, float64(1), k)

			rec, err := gen.Get(1)
			require.NoError(t, err)
			assert.Equal(t, model.Record{"v": float64(1)}, rec)

			return nil
		})
		require.NoError(t, err)
	})
}

func TestUniqueIndex(t *testing.T) {
	eachFactory(t, func(t *testing.T, f *Factory) {
		db := openMessages(t, f)
		put(t, db, model.Record{"email": "a@x"}, model.Record{"email": "b@x"})

		err := db.Update("messages", func(s *ObjectStore) error {
			_, err := s.Put(model.Record{"email": "a@x"}, nil)
			return err
		})
		require.ErrorIs(t, err, ErrConstraint)

		// rewriting a record with its own unique value is allowed
		put(t, db, model.Record{"id": 1, "email": "a@x", "extra": true})

		err = db.View("messages", func(s *ObjectStore) error {
			n, err := s.Count(nil)
			assert.Equal(t, 2, n)

			return err
		})
		require.NoError(t, err)
	})
}

func TestCreateIndexOnPopulatedStore(t *testing.T) {
	eachFactory(t, func(t *testing.T, f *Factory) {
		db := openMessages(t, f)
		put(t, db,
			model.Record{"email": "a", "kind": "x"},
			model.Record{"email": "b", "kind": "x"},
			model.Record{"email": "c"},
		)
		require.NoError(t, db.Close())

		_, err := f.Open("test", 2, func(ev UpgradeEvent) error {
			s, err := ev.Tx.ObjectStore("messages")
			if err != nil {
				return err
			}

			_, err = s.CreateIndex("kind", "kind", IndexOptions{Unique: true})

			return err
		})
		require.ErrorIs(t, err, ErrConstraint)

		db, err = f.Open("test", 2, func(ev UpgradeEvent) error {
			s, err := ev.Tx.ObjectStore("messages")
			if err != nil {
				return err
			}

			_, err = s.CreateIndex("kind", "kind", IndexOptions{})

			return err
		})
		require.NoError(t, err)
		defer db.Close()

		err = db.View("messages", func(s *ObjectStore) error {
			idx, err := s.Index("kind")
			require.NoError(t, err)

			n, err := idx.Count(nil)
			assert.Equal(t, 2, n)

			return err
		})
		require.NoError(t, err)
	})
}

func TestIndexQueries(t *testing.T) {
	eachFactory(t, func(t *testing.T, f *Factory) {
		db := openMessages(t, f)
		put(t, db,
			model.Record{"email": "e1", "meta": map[string]any{"tag": "red"}},
			model.Record{"email": "e2", "meta": map[string]any{"tag": "blue"}},
			model.Record{"email": "e3", "meta": map[string]any{"tag": "red"}},
			model.Record{"email": "e4"},
			model.Record{"email": "e5", "meta": map[string]any{"tag": 7}},
		)

		err := db.View("messages", func(s *ObjectStore) error {
			idx, err := s.Index("tag")
			require.NoError(t, err)

			assert.Equal(t, "tag", idx.Name())
			assert.Equal(t, "meta.tag", idx.KeyPath())
			assert.False(t, idx.Unique())

			n, err := idx.Count(nil)
			require.NoError(t, err)
			assert.Equal(t, 4, n)

			red, err := Only("red")
			require.NoError(t, err)

			recs, err := idx.GetAll(red, 0)
			require.NoError(t, err)
			require.Len(t, recs, 2)
			assert.Equal(t, "e1", recs[0]["email"])
			assert.Equal(t, "e3", recs[1]["email"])

			recs, err = idx.GetAll(red, 1)
			require.NoError(t, err)
			assert.Len(t, recs, 1)

			k, err := idx.GetKey("blue")
			require.NoError(t, err)
			assert.Equal(t, float64(2), k)

			// numbers sort before strings
			c, err := idx.OpenCursor(nil)
			require.NoError(t, err)

			var order []any
			for c.Next() {
				order = append(order, c.Key())
			}

			require.NoError(t, c.Err())
			assert.Equal(t, []any{float64(7), "blue", "red", "red"}, order)

			strs, err := LowerBound("c", false)
			require.NoError(t, err)

			n, err = idx.Count(strs)
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			_, err = s.Index("missing")
			assert.ErrorIs(t, err, ErrNotFound)

			return nil
		})
		require.NoError(t, err)
	})
}

func TestObjectStoreRanges(t *testing.T) {
	eachFactory(t, func(t *testing.T, f *Factory) {
		db := openMessages(t, f)

		for i := 1; i <= 10; i++ {
			put(t, db, model.Record{"id": i, "email": string(rune('a' + i))})
		}

		err := db.Update("messages", func(s *ObjectStore) error {
			rng, err := Bound(3, 6, true, false)
			require.NoError(t, err)

			keys, err := s.GetAllKeys(rng, 0)
			require.NoError(t, err)
			assert.Equal(t, []any{float64(4), float64(5), float64(6)}, keys)

			recs, err := s.GetAll(rng, 2)
			require.NoError(t, err)
			assert.Len(t, recs, 2)

			first, err := s.Get(rng)
			require.NoError(t, err)
			assert.Equal(t, float64(4), first["id"])

			require.NoError(t, s.Delete(rng))
			require.NoError(t, s.Delete(100))

			n, err := s.Count(nil)
			require.NoError(t, err)
			assert.Equal(t, 7, n)

			_, err = s.Get(nil)
			assert.ErrorIs(t, err, ErrData)

			return nil
		})
		require.NoError(t, err)
	})
}

func TestObjectStoreClearKeepsGenerator(t *testing.T) {
	eachFactory(t, func(t *testing.T, f *Factory) {
		db := openMessages(t, f)
		put(t, db, model.Record{"email": "a"}, model.Record{"email": "b"})

		require.NoError(t, db.Update("messages", func(s *ObjectStore) error { return s.Clear() }))

		keys := put(t, db, model.Record{"email": "a"})
		assert.Equal(t, []any{float64(3)}, keys)

		err := db.View("messages", func(s *ObjectStore) error {
			idx, err := s.Index("email")
			require.NoError(t, err)

			n, err := idx.Count(nil)
			assert.Equal(t, 1, n)

			return err
		})
		require.NoError(t, err)
	})
}

func TestCursorMutations(t *testing.T) {
	eachFactory(t, func(t *testing.T, f *Factory) {
		db := openMessages(t, f)

		for i := 1; i <= 6; i++ {
			tag := "even"
			if i%2 == 1 {
				tag = "odd"
			}

			put(t, db, model.Record{"email": string(rune('a' + i)), "meta": map[string]any{"tag": tag}})
		}

		err := db.Update("messages", func(s *ObjectStore) error {
			idx, err := s.Index("tag")
			require.NoError(t, err)

			odd, err := Only("odd")
			require.NoError(t, err)

			c, err := idx.OpenCursor(odd)
			require.NoError(t, err)

			assert.ErrorIs(t, c.Delete(), ErrInvalidState)

			deleted := 0
			for c.Next() {
				require.NoError(t, c.Delete())
				deleted++
			}

			require.NoError(t, c.Err())
			assert.Equal(t, 3, deleted)

			c, err = s.OpenCursor(nil)
			require.NoError(t, err)

			for c.Next() {
				rec := c.Value().Clone()
				rec["meta"] = map[string]any{"tag": "seen"}
				require.NoError(t, c.Update(rec))
			}

			require.NoError(t, c.Err())

			seen, err := Only("seen")
			require.NoError(t, err)

			n, err := idx.Count(seen)
			require.NoError(t, err)
			assert.Equal(t, 3, n)

			c, err = s.OpenCursor(nil)
			require.NoError(t, err)
			require.True(t, c.Next())

			bad := c.Value().Clone()
			bad["id"] = 99
			assert.ErrorIs(t, c.Update(bad), ErrData)

			return nil
		})
		require.NoError(t, err)
	})
}

func TestErrorName(t *testing.T) {
	assert.Equal(t, "ConstraintError", ErrorName(ErrConstraint))
	assert.Equal(t, "AbortError", ErrorName(errors.Join(errors.New("x"), ErrAbort)))
	assert.Equal(t, "UnknownError", ErrorName(errors.New("x")))
	assert.Equal(t, "UnknownError", ErrorName(nil))
}
