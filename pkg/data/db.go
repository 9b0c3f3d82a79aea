// Package data persists score runs for audit and fleet monitoring.
// SQLite is the default backend; a postgres:// DSN switches to Postgres.
package data

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// DataFileName is the default SQLite file name under the app home dir.
const DataFileName = "credscore.db"

var (
	//go:embed sql/*
	f embed.FS

	errStoreNotInitialized = errors.New("run store not initialized")
)

// Store is the run store. Safe for concurrent use; *sql.DB pools.
type Store struct {
	db *sql.DB
	pg bool
}

// Open opens the run store and ensures the schema exists.
func Open(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("dsn not specified")
	}

	driver := "sqlite"
	pg := strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
	if pg {
		driver = "postgres"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	b, err := f.ReadFile("sql/ddl.sql")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("reading schema file: %w", err)
	}
	if _, err := db.Exec(string(b)); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db, pg: pg}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// rebind converts ?-style placeholders to the $N style lib/pq expects.
// Queries in this package are written once with ? and rebound per driver.
func (s *Store) rebind(query string) string {
	if !s.pg {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
