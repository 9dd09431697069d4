package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	pkgerrors "github.com/absmach/fedridge/pkg/errors"
	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
)

const defaultBadgerDir = "./data"

var encMode = mustEncMode()

func mustEncMode() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}

	return em
}

// BadgerStorage stores CBOR-encoded values. Keys are namespaced by prefix so
// several stores can share one database.
type BadgerStorage[T any] struct {
	db     *badger.DB
	prefix []byte
	owned  bool
}

// OpenBadger opens a Badger database under dataDir.
func OpenBadger(dataDir string) (*badger.DB, error) {
	if dataDir == "" {
		dataDir = defaultBadgerDir
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	opts := badger.DefaultOptions(filepath.Join(dataDir, "badger.db"))
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open Badger database: %w", err)
	}

	return db, nil
}

// NewBadgerStorage opens its own database; Close releases it.
func NewBadgerStorage[T any](dataDir, prefix string) (*BadgerStorage[T], error) {
	db, err := OpenBadger(dataDir)
	if err != nil {
		return nil, err
	}

	return &BadgerStorage[T]{db: db, prefix: []byte(prefix), owned: true}, nil
}

// WithBadger shares db; Close leaves it open.
func WithBadger[T any](db *badger.DB, prefix string) *BadgerStorage[T] {
	return &BadgerStorage[T]{db: db, prefix: []byte(prefix)}
}

func (s *BadgerStorage[T]) Create(_ context.Context, key string, value T) error {
	if key == "" {
		return pkgerrors.ErrEmptyKey
	}

	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(s.key(key))
		if err == nil {
			return pkgerrors.ErrEntityExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("failed to check key existence: %w", err)
		}

		return s.write(txn, key, value)
	})
}

func (s *BadgerStorage[T]) Get(_ context.Context, key string) (T, error) {
	var result T
	if key == "" {
		return result, pkgerrors.ErrEmptyKey
	}

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key(key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return pkgerrors.ErrNotFound
			}

			return fmt.Errorf("failed to get key: %w", err)
		}

		return item.Value(func(val []byte) error {
			return cbor.Unmarshal(val, &result)
		})
	})

	return result, err
}

func (s *BadgerStorage[T]) Update(_ context.Context, key string, value T) error {
	if key == "" {
		return pkgerrors.ErrEmptyKey
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(s.key(key)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return pkgerrors.ErrNotFound
			}

			return fmt.Errorf("failed to check key existence: %w", err)
		}

		return s.write(txn, key, value)
	})
}

func (s *BadgerStorage[T]) List(_ context.Context, offset, limit uint64) (result []T, total uint64, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = s.prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		var i uint64
		for it.Rewind(); it.Valid(); it.Next() {
			if i >= offset && i < offset+limit {
				var v T
				if err := it.Item().Value(func(val []byte) error {
					return cbor.Unmarshal(val, &v)
				}); err != nil {
					return fmt.Errorf("failed to decode %q: %w", it.Item().Key(), err)
				}
				result = append(result, v)
			}
			i++
		}
		total = i

		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list keys: %w", err)
	}

	return result, total, nil
}

func (s *BadgerStorage[T]) Delete(_ context.Context, key string) error {
	if key == "" {
		return pkgerrors.ErrEmptyKey
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(s.key(key)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return pkgerrors.ErrNotFound
			}

			return fmt.Errorf("failed to check key existence: %w", err)
		}

		return txn.Delete(s.key(key))
	})
}

func (s *BadgerStorage[T]) Close() error {
	if !s.owned {
		return nil
	}

	return s.db.Close()
}

func (s *BadgerStorage[T]) key(k string) []byte {
	return append(append([]byte{}, s.prefix...), k...)
}

func (s *BadgerStorage[T]) write(txn *badger.Txn, key string, value T) error {
	data, err := encMode.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	return txn.Set(s.key(key), data)
}
