package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/honecore/core/internal/honeerr"
	"github.com/honecore/core/internal/models"
)

// CreateAccount inserts a new account, unique by (name, bank).
func (s *Store) CreateAccount(ctx context.Context, name string, bank models.Bank, accountType *models.AccountType, entityID *string) (*models.Account, error) {
	a := &models.Account{
		ID:        newID(),
		Name:      name,
		Bank:      bank,
		Type:      accountType,
		EntityID:  entityID,
		CreatedAt: nowUTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, name, bank, type, entity_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.Bank, nullableAccountType(a.Type), nullableString(a.EntityID), formatTime(a.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, honeerr.Conflict("store.CreateAccount", honeerr.ErrDuplicateAccount)
		}
		return nil, honeerr.Wrap(honeerr.KindTransient, "store.CreateAccount", err)
	}
	return a, nil
}

// GetAccount fetches an account by ID.
func (s *Store) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, bank, type, entity_id, created_at FROM accounts WHERE id = ?`, id)
	return scanAccount(row)
}

// GetAccountByNameAndBank looks up an account by its uniqueness key, used by
// the import orchestrator to find-or-create the target account.
func (s *Store) GetAccountByNameAndBank(ctx context.Context, name string, bank models.Bank) (*models.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, bank, type, entity_id, created_at FROM accounts WHERE name = ? AND bank = ?`, name, bank)
	return scanAccount(row)
}

// ListAccounts returns all accounts ordered by name.
func (s *Store) ListAccounts(ctx context.Context) ([]models.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, bank, type, entity_id, created_at FROM accounts ORDER BY name`)
	if err != nil {
		return nil, honeerr.Wrap(honeerr.KindTransient, "store.ListAccounts", err)
	}
	defer rows.Close()

	var out []models.Account
	for rows.Next() {
		a, err := scanAccountRows(rows)
		if err != nil {
			return nil, honeerr.Wrap(honeerr.KindFatal, "store.ListAccounts", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// DeleteAccount removes an account and cascades to its transactions,
// import sessions, and subscriptions via foreign-key ON DELETE CASCADE.
func (s *Store) DeleteAccount(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return honeerr.Wrap(honeerr.KindTransient, "store.DeleteAccount", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return honeerr.NotFound("store.DeleteAccount", honeerr.ErrAccountNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row *sql.Row) (*models.Account, error) {
	return scanAccountGeneric(row)
}

func scanAccountRows(rows *sql.Rows) (*models.Account, error) {
	return scanAccountGeneric(rows)
}

func scanAccountGeneric(row rowScanner) (*models.Account, error) {
	var a models.Account
	var typeStr, entityID sql.NullString
	var createdAt string
	if err := row.Scan(&a.ID, &a.Name, &a.Bank, &typeStr, &entityID, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, honeerr.NotFound("store.scanAccount", honeerr.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	if typeStr.Valid {
		t := models.AccountType(typeStr.String)
		a.Type = &t
	}
	a.EntityID = stringOrNil(entityID)
	a.CreatedAt = parseTime(createdAt)
	return &a, nil
}

func nullableAccountType(t *models.AccountType) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*t), Valid: true}
}
