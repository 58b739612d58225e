// Package store records merge runs in the SQLite ledger.
package store

import (
	"database/sql"
	"fmt"

	"github.com/lherron/gnosmerge/internal/db"
)

// Store is the root store that provides access to the ledger tables.
type Store struct {
	db *db.DB

	Runs *RunStore
}

// New creates a new Store wrapping the given database connection.
func New(database *db.DB) *Store {
	s := &Store{db: database}
	s.Runs = &RunStore{store: s}
	return s
}

// DB returns the underlying database connection (for read-only queries).
func (s *Store) DB() *db.DB {
	return s.db
}

// withTx executes fn within a transaction. If fn returns nil, the transaction
// is committed; otherwise it is rolled back.
func (s *Store) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}
