package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/honecore/core/internal/honeerr"
	"github.com/honecore/core/internal/models"
)

// CreateTransaction inserts a new transaction. The (account_id, import_hash)
// unique constraint is the dedup boundary for re-imports of the same
// statement line; a violation is surfaced as honeerr.ErrDuplicateImportHash
// so callers (the import orchestrator) can route the row to skipped_transactions
// instead of failing the whole import.
func (s *Store) CreateTransaction(ctx context.Context, accountID string, nt models.NewTransaction) (*models.Transaction, error) {
	t := &models.Transaction{
		ID:            newID(),
		AccountID:     accountID,
		Date:          nt.Date,
		Description:   nt.Description,
		Amount:        nt.Amount,
		Category:      nt.Category,
		ImportHash:    nt.ImportHash,
		Source:        models.TransactionSourceImport,
		OriginalData:  nt.OriginalData,
		ImportFormat:  nt.ImportFormat,
		CardMember:    nt.CardMember,
		PaymentMethod: nt.PaymentMethod,
		CreatedAt:     nowUTC(),
	}
	t.ImportSessionID = nt.ImportSessionID

	sealedOriginalData, err := s.encryptOriginalData(t.OriginalData)
	if err != nil {
		return nil, err
	}

	err = withRetry(ctx, func() error {
		_, execErr := s.db.ExecContext(ctx, `
			INSERT INTO transactions (
				id, account_id, date, description, amount, category, merchant_normalized,
				import_hash, purchase_location_id, vendor_location_id, trip_id, source,
				expected_amount, archived, original_data, import_format, card_member,
				payment_method, import_session_id, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.AccountID, formatTime(t.Date), t.Description, t.Amount, nullableString(t.Category),
			nullableString(t.MerchantNormalized), t.ImportHash, nullableString(t.PurchaseLocationID),
			nullableString(t.VendorLocationID), nullableString(t.TripID), string(t.Source),
			nullableFloat(t.ExpectedAmount), boolToInt(t.Archived), nullableString(sealedOriginalData),
			nullableString(t.ImportFormat), nullableString(t.CardMember), nullablePaymentMethod(t.PaymentMethod),
			nullableString(t.ImportSessionID), formatTime(t.CreatedAt),
		)
		if execErr != nil {
			if isUniqueViolation(execErr) {
				return honeerr.Conflict("store.CreateTransaction", honeerr.ErrDuplicateImportHash)
			}
			return honeerr.Wrap(honeerr.KindTransient, "store.CreateTransaction", execErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// encryptOriginalData seals data with the Store's encryptor before it goes
// to disk. With no encryptor configured, data passes through unchanged.
func (s *Store) encryptOriginalData(data *string) (*string, error) {
	if s.enc == nil || data == nil {
		return data, nil
	}
	sealed, err := s.enc.Encrypt(*data)
	if err != nil {
		return nil, honeerr.Wrap(honeerr.KindFatal, "store.encryptOriginalData", err)
	}
	return &sealed, nil
}

// decryptOriginalData reverses encryptOriginalData after a scan. Rows
// written before an encryptor was configured (or while running
// unencrypted) are returned as-is rather than failing the read.
func (s *Store) decryptOriginalData(data *string) *string {
	if s.enc == nil || data == nil {
		return data
	}
	opened, err := s.enc.Decrypt(*data)
	if err != nil {
		return data
	}
	return &opened
}

// FindByImportHash checks whether a transaction with this hash already
// exists for the account, without inserting.
func (s *Store) FindByImportHash(ctx context.Context, accountID, importHash string) (*models.Transaction, error) {
	row := s.db.QueryRowContext(ctx, transactionSelectCols+` WHERE account_id = ? AND import_hash = ?`, accountID, importHash)
	return s.scanTransaction(row)
}

func (s *Store) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	row := s.db.QueryRowContext(ctx, transactionSelectCols+` WHERE id = ?`, id)
	return s.scanTransaction(row)
}

// ListTransactionsByAccount returns non-archived transactions for an account
// ordered by date descending.
func (s *Store) ListTransactionsByAccount(ctx context.Context, accountID string) ([]models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, transactionSelectCols+` WHERE account_id = ? AND archived = 0 ORDER BY date DESC`, accountID)
	if err != nil {
		return nil, honeerr.Wrap(honeerr.KindTransient, "store.ListTransactionsByAccount", err)
	}
	defer rows.Close()
	return s.scanTransactionRows(rows)
}

// ListAllTransactions returns every non-archived transaction, income and
// expense alike, across all accounts, ordered by date, for whole-dataset passes like
// subscription detection that must group by (account, merchant) globally.
func (s *Store) ListAllTransactions(ctx context.Context) ([]models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, transactionSelectCols+` WHERE archived = 0 ORDER BY date`)
	if err != nil {
		return nil, honeerr.Wrap(honeerr.KindTransient, "store.ListAllTransactions", err)
	}
	defer rows.Close()
	return s.scanTransactionRows(rows)
}

// ListUntagged returns transactions that have no transaction_tags rows,
// used by the tag engine's backfill pass.
func (s *Store) ListUntagged(ctx context.Context, limit int) ([]models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.account_id, t.date, t.description, t.amount, t.category, t.merchant_normalized,
			t.import_hash, t.purchase_location_id, t.vendor_location_id, t.trip_id, t.source,
			t.expected_amount, t.archived, t.original_data, t.import_format, t.card_member,
			t.payment_method, t.import_session_id, t.created_at
		FROM transactions t
		LEFT JOIN transaction_tags tt ON tt.transaction_id = t.id
		WHERE tt.id IS NULL AND t.archived = 0
		ORDER BY t.date DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, honeerr.Wrap(honeerr.KindTransient, "store.ListUntagged", err)
	}
	defer rows.Close()
	return s.scanTransactionRows(rows)
}

// ListUntaggedBySession restricts ListUntagged to one import session, used by
// the orchestrator's per-session tagging phase so a backfill pass never
// reaches across sessions into an unrelated backlog.
func (s *Store) ListUntaggedBySession(ctx context.Context, sessionID string, limit int) ([]models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.account_id, t.date, t.description, t.amount, t.category, t.merchant_normalized,
			t.import_hash, t.purchase_location_id, t.vendor_location_id, t.trip_id, t.source,
			t.expected_amount, t.archived, t.original_data, t.import_format, t.card_member,
			t.payment_method, t.import_session_id, t.created_at
		FROM transactions t
		LEFT JOIN transaction_tags tt ON tt.transaction_id = t.id
		WHERE tt.id IS NULL AND t.archived = 0 AND t.import_session_id = ?
		ORDER BY t.date DESC
		LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, honeerr.Wrap(honeerr.KindTransient, "store.ListUntaggedBySession", err)
	}
	defer rows.Close()
	return s.scanTransactionRows(rows)
}

// ListTransactionsBySession returns every non-archived transaction created by
// one import session, most recent first — used both to find transactions
// still lacking a normalized merchant during the normalizing phase and to
// build a reprocess snapshot's transaction sample.
func (s *Store) ListTransactionsBySession(ctx context.Context, sessionID string) ([]models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, transactionSelectCols+` WHERE import_session_id = ? AND archived = 0 ORDER BY date DESC`, sessionID)
	if err != nil {
		return nil, honeerr.Wrap(honeerr.KindTransient, "store.ListTransactionsBySession", err)
	}
	defer rows.Close()
	return s.scanTransactionRows(rows)
}

// ClearSessionTagsAndMerchants removes non-manual tag assignments and
// normalized merchant names for a session's transactions, the first step of
// reprocessing (spec.md's "clears non-manual tags and normalized merchants
// for the session's transactions" before re-running phases 3-6).
func (s *Store) ClearSessionTagsAndMerchants(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return honeerr.Wrap(honeerr.KindTransient, "store.ClearSessionTagsAndMerchants", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM transaction_tags
		WHERE source != ? AND transaction_id IN (
			SELECT id FROM transactions WHERE import_session_id = ?
		)`, string(models.TagSourceManual), sessionID,
	); err != nil {
		return honeerr.Wrap(honeerr.KindTransient, "store.ClearSessionTagsAndMerchants", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE transactions SET merchant_normalized = NULL WHERE import_session_id = ?`, sessionID,
	); err != nil {
		return honeerr.Wrap(honeerr.KindTransient, "store.ClearSessionTagsAndMerchants", err)
	}
	if err := tx.Commit(); err != nil {
		return honeerr.Wrap(honeerr.KindTransient, "store.ClearSessionTagsAndMerchants", err)
	}
	return nil
}

// SetMerchantNormalized updates the normalized merchant name derived during
// the normalizing phase.
func (s *Store) SetMerchantNormalized(ctx context.Context, transactionID, merchant string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE transactions SET merchant_normalized = ? WHERE id = ?`, merchant, transactionID)
	if err != nil {
		return honeerr.Wrap(honeerr.KindTransient, "store.SetMerchantNormalized", err)
	}
	return nil
}

// ArchiveTransaction marks a transaction as archived (soft delete), keeping
// it out of ListTransactionsByAccount and ListUntagged.
func (s *Store) ArchiveTransaction(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE transactions SET archived = 1 WHERE id = ?`, id)
	if err != nil {
		return honeerr.Wrap(honeerr.KindTransient, "store.ArchiveTransaction", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return honeerr.NotFound("store.ArchiveTransaction", honeerr.ErrTransactionNotFound)
	}
	return nil
}

const transactionSelectCols = `
	SELECT id, account_id, date, description, amount, category, merchant_normalized,
		import_hash, purchase_location_id, vendor_location_id, trip_id, source,
		expected_amount, archived, original_data, import_format, card_member,
		payment_method, import_session_id, created_at
	FROM transactions`

func (s *Store) scanTransaction(row *sql.Row) (*models.Transaction, error) {
	t, err := scanTransactionGeneric(row)
	if err != nil {
		return nil, err
	}
	t.OriginalData = s.decryptOriginalData(t.OriginalData)
	return t, nil
}

func (s *Store) scanTransactionRows(rows *sql.Rows) ([]models.Transaction, error) {
	defer rows.Close()
	var out []models.Transaction
	for rows.Next() {
		t, err := scanTransactionGeneric(rows)
		if err != nil {
			return nil, honeerr.Wrap(honeerr.KindFatal, "store.scanTransactionRows", err)
		}
		t.OriginalData = s.decryptOriginalData(t.OriginalData)
		out = append(out, *t)
	}
	return out, rows.Err()
}

func scanTransactionGeneric(row rowScanner) (*models.Transaction, error) {
	var t models.Transaction
	var category, merchant, purchaseLoc, vendorLoc, tripID, originalData, importFormat, cardMember, paymentMethod, sessionID sql.NullString
	var expectedAmount sql.NullFloat64
	var archived int
	var date, createdAt, source string

	err := row.Scan(
		&t.ID, &t.AccountID, &date, &t.Description, &t.Amount, &category, &merchant,
		&t.ImportHash, &purchaseLoc, &vendorLoc, &tripID, &source,
		&expectedAmount, &archived, &originalData, &importFormat, &cardMember,
		&paymentMethod, &sessionID, &createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, honeerr.NotFound("store.scanTransaction", honeerr.ErrTransactionNotFound)
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}

	t.Date = parseTime(date)
	t.Category = stringOrNil(category)
	t.MerchantNormalized = stringOrNil(merchant)
	t.PurchaseLocationID = stringOrNil(purchaseLoc)
	t.VendorLocationID = stringOrNil(vendorLoc)
	t.TripID = stringOrNil(tripID)
	t.Source = models.TransactionSource(source)
	t.ExpectedAmount = floatOrNil(expectedAmount)
	t.Archived = archived != 0
	t.OriginalData = stringOrNil(originalData)
	t.ImportFormat = stringOrNil(importFormat)
	t.CardMember = stringOrNil(cardMember)
	if paymentMethod.Valid {
		pm := models.PaymentMethod(paymentMethod.String)
		t.PaymentMethod = &pm
	}
	t.ImportSessionID = stringOrNil(sessionID)
	t.CreatedAt = parseTime(createdAt)
	return &t, nil
}

func nullablePaymentMethod(pm *models.PaymentMethod) sql.NullString {
	if pm == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*pm), Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
