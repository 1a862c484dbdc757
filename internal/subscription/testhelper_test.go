package subscription

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	_ "github.com/tursodatabase/go-libsql"

	"github.com/honecore/core/internal/database/migrations"
	"github.com/honecore/core/internal/models"
	"github.com/honecore/core/internal/store"
)

func setupTestStore(t *testing.T) *store.Store {
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
	t.Cleanup(func() { _ = db.Close() })
	return store.New(db)
}

func mustAccount(t *testing.T, s *store.Store) *models.Account {
	t.Helper()
	a, err := s.CreateAccount(context.Background(), "Checking", models.BankBankOfAmerica, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func mustTxn(t *testing.T, s *store.Store, accountID, description string, amount float64, date time.Time, hash string) models.Transaction {
	t.Helper()
	txn, err := s.CreateTransaction(context.Background(), accountID, models.NewTransaction{
		Date:        date,
		Description: description,
		Amount:      amount,
		ImportHash:  hash,
	})
	if err != nil {
		t.Fatal(err)
	}
	return *txn
}
