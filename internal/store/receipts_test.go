package store

import (
	"context"
	"testing"
	"time"

	"github.com/honecore/core/internal/models"
)

func TestCreateAndMatchReceipt(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	a := mustCreateAccount(t, s)

	total := 42.17
	date := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	receipt, err := s.CreateReceipt(ctx, models.NewReceipt{
		StorageRef:  "receipts/2026/04/01/abc123.jpg",
		Role:        models.ReceiptRolePrimary,
		Parsed:      models.ParsedReceipt{Date: &date, Total: &total, Merchant: strPtr("Trader Joe's")},
		ContentHash: "sha256:abc123",
	})
	if err != nil {
		t.Fatalf("CreateReceipt: %v", err)
	}
	if receipt.Status != models.ReceiptStatusPending {
		t.Fatalf("expected pending status, got %s", receipt.Status)
	}

	unmatched, err := s.ListUnmatchedReceipts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(unmatched) != 1 {
		t.Fatalf("expected 1 unmatched receipt, got %d", len(unmatched))
	}

	txn, err := s.CreateTransaction(ctx, a.ID, models.NewTransaction{
		Date:        date,
		Description: "TRADER JOES",
		Amount:      -total,
		ImportHash:  "hash-receipt",
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.MatchReceipt(ctx, receipt.ID, txn.ID, models.ReceiptStatusMatched); err != nil {
		t.Fatalf("MatchReceipt: %v", err)
	}

	byTxn, err := s.ListReceiptsByTransaction(ctx, txn.ID)
	if err != nil {
		t.Fatalf("ListReceiptsByTransaction: %v", err)
	}
	if len(byTxn) != 1 || byTxn[0].Status != models.ReceiptStatusMatched {
		t.Fatalf("unexpected matched receipts: %+v", byTxn)
	}

	unmatched, err = s.ListUnmatchedReceipts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(unmatched) != 0 {
		t.Fatalf("expected 0 unmatched after match, got %d", len(unmatched))
	}
}

func strPtr(s string) *string { return &s }
