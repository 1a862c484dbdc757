package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/honecore/core/internal/honeerr"
	"github.com/honecore/core/internal/models"
)

// CreateReceipt inserts a receipt not yet matched to a transaction.
func (s *Store) CreateReceipt(ctx context.Context, nr models.NewReceipt) (*models.Receipt, error) {
	r := &models.Receipt{
		ID:         newID(),
		StorageRef: nr.StorageRef,
		Status:     models.ReceiptStatusPending,
		Role:       nr.Role,
		Parsed:     nr.Parsed,
		ContentHash: nr.ContentHash,
		ParsedJSON: nr.ParsedJSON,
		CreatedAt:  nowUTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO receipts (id, transaction_id, storage_ref, status, role, parsed_date, parsed_total, parsed_merchant, content_hash, parsed_json, created_at)
		VALUES (?, NULL, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.StorageRef, string(r.Status), string(r.Role),
		nullableTimeStr(r.Parsed.Date), nullableFloat(r.Parsed.Total), nullableString(r.Parsed.Merchant),
		r.ContentHash, nullableString(r.ParsedJSON), formatTime(r.CreatedAt),
	)
	if err != nil {
		return nil, honeerr.Wrap(honeerr.KindTransient, "store.CreateReceipt", err)
	}
	return r, nil
}

func (s *Store) GetReceipt(ctx context.Context, id string) (*models.Receipt, error) {
	row := s.db.QueryRowContext(ctx, receiptSelectCols+` WHERE id = ?`, id)
	return scanReceipt(row)
}

// ListUnmatchedReceipts returns receipts awaiting match against a transaction.
func (s *Store) ListUnmatchedReceipts(ctx context.Context) ([]models.Receipt, error) {
	rows, err := s.db.QueryContext(ctx, receiptSelectCols+` WHERE status = ? ORDER BY created_at`, string(models.ReceiptStatusPending))
	if err != nil {
		return nil, honeerr.Wrap(honeerr.KindTransient, "store.ListUnmatchedReceipts", err)
	}
	defer rows.Close()

	var out []models.Receipt
	for rows.Next() {
		r, err := scanReceiptGeneric(rows)
		if err != nil {
			return nil, honeerr.Wrap(honeerr.KindFatal, "store.ListUnmatchedReceipts", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// MatchReceipt links a receipt to a transaction and updates its status.
func (s *Store) MatchReceipt(ctx context.Context, receiptID, transactionID string, status models.ReceiptStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE receipts SET transaction_id = ?, status = ? WHERE id = ?`,
		transactionID, string(status), receiptID,
	)
	if err != nil {
		return honeerr.Wrap(honeerr.KindTransient, "store.MatchReceipt", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return honeerr.NotFound("store.MatchReceipt", honeerr.ErrReceiptNotFound)
	}
	return nil
}

// SetReceiptStatus updates a receipt's status without changing its match,
// used to mark unmatched receipts as orphaned after the matching window closes.
func (s *Store) SetReceiptStatus(ctx context.Context, id string, status models.ReceiptStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE receipts SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return honeerr.Wrap(honeerr.KindTransient, "store.SetReceiptStatus", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return honeerr.NotFound("store.SetReceiptStatus", honeerr.ErrReceiptNotFound)
	}
	return nil
}

// ListReceiptsByTransaction returns receipts matched to a transaction,
// primary first.
func (s *Store) ListReceiptsByTransaction(ctx context.Context, transactionID string) ([]models.Receipt, error) {
	rows, err := s.db.QueryContext(ctx, receiptSelectCols+` WHERE transaction_id = ? ORDER BY role`, transactionID)
	if err != nil {
		return nil, honeerr.Wrap(honeerr.KindTransient, "store.ListReceiptsByTransaction", err)
	}
	defer rows.Close()

	var out []models.Receipt
	for rows.Next() {
		r, err := scanReceiptGeneric(rows)
		if err != nil {
			return nil, honeerr.Wrap(honeerr.KindFatal, "store.ListReceiptsByTransaction", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

const receiptSelectCols = `
	SELECT id, transaction_id, storage_ref, status, role, parsed_date, parsed_total, parsed_merchant, content_hash, parsed_json, created_at
	FROM receipts`

func scanReceipt(row *sql.Row) (*models.Receipt, error) {
	return scanReceiptGeneric(row)
}

func scanReceiptGeneric(row rowScanner) (*models.Receipt, error) {
	var r models.Receipt
	var transactionID, parsedDate, parsedMerchant, parsedJSON sql.NullString
	var parsedTotal sql.NullFloat64
	var status, role, createdAt string

	err := row.Scan(&r.ID, &transactionID, &r.StorageRef, &status, &role, &parsedDate, &parsedTotal, &parsedMerchant, &r.ContentHash, &parsedJSON, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, honeerr.NotFound("store.scanReceipt", honeerr.ErrReceiptNotFound)
		}
		return nil, fmt.Errorf("scan receipt: %w", err)
	}

	r.TransactionID = stringOrNil(transactionID)
	r.Status = models.ReceiptStatus(status)
	r.Role = models.ReceiptRole(role)
	r.Parsed = models.ParsedReceipt{
		Date:     timeOrNil(parsedDate),
		Total:    floatOrNil(parsedTotal),
		Merchant: stringOrNil(parsedMerchant),
	}
	r.ParsedJSON = stringOrNil(parsedJSON)
	r.CreatedAt = parseTime(createdAt)
	return &r, nil
}
