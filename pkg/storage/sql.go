package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/absmach/fedridge/pkg/errors"
	"github.com/fxamacker/cbor/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	migrate "github.com/rubenv/sql-migrate"
)

const (
	PostgresDriver = "pgx"
	SQLiteDriver   = "sqlite3"
)

var (
	ErrDBConnection = errors.New("database connection error")
	ErrDBQuery      = errors.New("database query error")
)

// SQLStorage keeps CBOR-encoded values in a single entries table keyed by
// (prefix, id), so several stores can share one database.
type SQLStorage[T any] struct {
	db     *sqlx.DB
	prefix string
	owned  bool
}

// OpenSQL connects to a Postgres or SQLite database and applies the entries
// migration.
func OpenSQL(driver, dsn string) (*sqlx.DB, error) {
	var blob, dialect string
	switch driver {
	case PostgresDriver:
		blob, dialect = "BYTEA", "postgres"
	case SQLiteDriver:
		blob, dialect = "BLOB", "sqlite3"
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, driver)
	}

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBConnection, err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	migrations := &migrate.MemoryMigrationSource{
		Migrations: []*migrate.Migration{
			{
				Id: "1_create_entries",
				Up: []string{
					`CREATE TABLE IF NOT EXISTS entries (
						prefix TEXT NOT NULL,
						id TEXT NOT NULL,
						value ` + blob + ` NOT NULL,
						PRIMARY KEY (prefix, id)
					)`,
				},
				Down: []string{
					`DROP TABLE IF EXISTS entries`,
				},
			},
		},
	}

	if _, err := migrate.Exec(db.DB, dialect, migrations, migrate.Up); err != nil {
		db.Close()

		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return db, nil
}

// NewSQLStorage opens its own database; Close releases it.
func NewSQLStorage[T any](driver, dsn, prefix string) (*SQLStorage[T], error) {
	db, err := OpenSQL(driver, dsn)
	if err != nil {
		return nil, err
	}

	return &SQLStorage[T]{db: db, prefix: prefix, owned: true}, nil
}

// WithSQL shares db; Close leaves it open.
func WithSQL[T any](db *sqlx.DB, prefix string) *SQLStorage[T] {
	return &SQLStorage[T]{db: db, prefix: prefix}
}

func (s *SQLStorage[T]) Create(ctx context.Context, key string, value T) error {
	if key == "" {
		return pkgerrors.ErrEmptyKey
	}

	data, err := encMode.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDBQuery, err)
	}
	defer tx.Rollback() //nolint:errcheck

	var n int
	if err := tx.GetContext(ctx, &n, s.db.Rebind(`SELECT COUNT(*) FROM entries WHERE prefix = ? AND id = ?`), s.prefix, key); err != nil {
		return fmt.Errorf("%w: %w", ErrDBQuery, err)
	}
	if n > 0 {
		return pkgerrors.ErrEntityExists
	}

	if _, err := tx.ExecContext(ctx, s.db.Rebind(`INSERT INTO entries (prefix, id, value) VALUES (?, ?, ?)`), s.prefix, key, data); err != nil {
		return fmt.Errorf("%w: %w", ErrCreate, err)
	}

	return tx.Commit()
}

func (s *SQLStorage[T]) Get(ctx context.Context, key string) (T, error) {
	var result T
	if key == "" {
		return result, pkgerrors.ErrEmptyKey
	}

	var data []byte
	err := s.db.GetContext(ctx, &data, s.db.Rebind(`SELECT value FROM entries WHERE prefix = ? AND id = ?`), s.prefix, key)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return result, pkgerrors.ErrNotFound
	case err != nil:
		return result, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	if err := cbor.Unmarshal(data, &result); err != nil {
		return result, fmt.Errorf("failed to unmarshal value: %w", err)
	}

	return result, nil
}

func (s *SQLStorage[T]) Update(ctx context.Context, key string, value T) error {
	if key == "" {
		return pkgerrors.ErrEmptyKey
	}

	data, err := encMode.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE entries SET value = ? WHERE prefix = ? AND id = ?`), data, s.prefix, key)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpdate, err)
	}

	return affected(res)
}

func (s *SQLStorage[T]) List(ctx context.Context, offset, limit uint64) ([]T, uint64, error) {
	var total uint64
	if err := s.db.GetContext(ctx, &total, s.db.Rebind(`SELECT COUNT(*) FROM entries WHERE prefix = ?`), s.prefix); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}
	if offset >= total {
		return nil, total, nil
	}

	var rows [][]byte
	query := s.db.Rebind(`SELECT value FROM entries WHERE prefix = ? ORDER BY id LIMIT ? OFFSET ?`)
	if err := s.db.SelectContext(ctx, &rows, query, s.prefix, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	result := make([]T, len(rows))
	for i, data := range rows {
		if err := cbor.Unmarshal(data, &result[i]); err != nil {
			return nil, 0, fmt.Errorf("failed to unmarshal value: %w", err)
		}
	}

	return result, total, nil
}

func (s *SQLStorage[T]) Delete(ctx context.Context, key string) error {
	if key == "" {
		return pkgerrors.ErrEmptyKey
	}

	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM entries WHERE prefix = ? AND id = ?`), s.prefix, key)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDelete, err)
	}

	return affected(res)
}

func (s *SQLStorage[T]) Close() error {
	if !s.owned {
		return nil
	}

	return s.db.Close()
}

func affected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDBQuery, err)
	}
	if n == 0 {
		return pkgerrors.ErrNotFound
	}

	return nil
}
