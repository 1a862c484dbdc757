package store

import (
	"database/sql"
	"testing"

	"github.com/honecore/core/internal/database/migrations"
	"github.com/rs/zerolog"
	_ "github.com/tursodatabase/go-libsql"
)

// setupTestDB creates an in-memory libsql database, runs migrations, and
// registers cleanup. Used by every store test in this package.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("libsql", "file::memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}

	if err := migrations.Run(db, zerolog.Nop()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	return New(setupTestDB(t))
}
