package storage

import (
	"fmt"
	"io"
)

type Config struct {
	Type       string `env:"STORAGE_TYPE" envDefault:"memory"`
	BadgerPath string `env:"BADGER_PATH"  envDefault:"./data/badger"`
	SQLitePath string `env:"SQLITE_PATH"  envDefault:"./data/fedridge.db"`
	DBHost     string `env:"DB_HOST"      envDefault:"localhost"`
	DBPort     string `env:"DB_PORT"      envDefault:"5432"`
	DBUser     string `env:"DB_USER"      envDefault:"fedridge"`
	DBPass     string `env:"DB_PASS"      envDefault:"fedridge"`
	DBName     string `env:"DB_NAME"      envDefault:"fedridge"`
	DBSSLMode  string `env:"DB_SSL_MODE"  envDefault:"disable"`
}

func (c Config) postgresDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s", c.DBHost, c.DBPort, c.DBUser, c.DBPass, c.DBName, c.DBSSLMode)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New returns the store selected by cfg.Type together with a closer for the
// underlying database.
func New[T any](cfg Config, prefix string) (Storage[T], io.Closer, error) {
	switch cfg.Type {
	case "badger":
		s, err := NewBadgerStorage[T](cfg.BadgerPath, prefix)
		if err != nil {
			return nil, nil, err
		}

		return s, s, nil
	case "postgres":
		s, err := NewSQLStorage[T](PostgresDriver, cfg.postgresDSN(), prefix)
		if err != nil {
			return nil, nil, err
		}

		return s, s, nil
	case "sqlite":
		s, err := NewSQLStorage[T](SQLiteDriver, cfg.SQLitePath, prefix)
		if err != nil {
			return nil, nil, err
		}

		return s, s, nil
	case "memory", "":
		return NewInMemoryStorage[T](), nopCloser{}, nil
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnsupported, cfg.Type)
	}
}
