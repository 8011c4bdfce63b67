// Package store provides the SQLite persistence layer of the named-locator
// registry.
package store

import (
	"database/sql"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/domlocator/dbopen"
)

// Store is the registry database handle.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the registry database at path and applies the
// pragmas and the schema.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	allOpts := append([]dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	}, opts...)

	db, err := dbopen.Open(path, allOpts...)
	if err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}
