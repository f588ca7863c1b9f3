// Package store provides access to the PostgreSQL database for API
// client management. The gateway's auth path reads the same table
// through its own narrower lookup.
package store

import "database/sql"

// Store provides access to the PostgreSQL database for client CRUD.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store backed by the given database connection pool.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}
