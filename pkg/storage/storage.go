// Package storage provides a key/value store for values of a single type,
// backed by memory, Badger, Postgres or SQLite.
package storage

import "context"

type Storage[T any] interface {
	Create(ctx context.Context, key string, value T) error
	Get(ctx context.Context, key string) (T, error)
	Update(ctx context.Context, key string, value T) error
	// List returns values in key order along with the total number of keys.
	List(ctx context.Context, offset, limit uint64) ([]T, uint64, error)
	Delete(ctx context.Context, key string) error
}
