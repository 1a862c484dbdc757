package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/honecore/core/internal/models"
)

func TestRun_HappyPath(t *testing.T) {
	s := setupTestStore(t)
	account := mustAccount(t, s)
	o := New(s, nil)
	ctx := context.Background()

	rows := []ParsedTransaction{
		row("Coffee Shop", -4.50, 2, "hash-1"),
		row("Paycheck", 2000, 1, "hash-2"),
	}

	session, err := o.Run(ctx, account.ID, "statement.csv", 1024, models.BankBankOfAmerica, "user-1", "model-1", rows)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if session.Status != models.SessionStatusCompleted {
		t.Fatalf("status = %s, want completed", session.Status)
	}
	if session.Imported != 2 {
		t.Fatalf("imported = %d, want 2", session.Imported)
	}
	if session.Skipped != 0 {
		t.Fatalf("skipped = %d, want 0", session.Skipped)
	}
	if len(session.PhaseDurations) != 5 {
		t.Fatalf("phase durations = %d, want 5", len(session.PhaseDurations))
	}
	if session.TotalDurationMS == nil {
		t.Fatal("total_duration_ms not set")
	}

	txns, err := s.ListTransactionsBySession(ctx, session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(txns) != 2 {
		t.Fatalf("session transactions = %d, want 2", len(txns))
	}
}

func TestRun_DedupRoutesToSkipped(t *testing.T) {
	s := setupTestStore(t)
	account := mustAccount(t, s)
	ctx := context.Background()

	if _, err := s.CreateTransaction(ctx, account.ID, models.NewTransaction{
		Date:        time.Now(),
		Description: "Existing Charge",
		Amount:      -9.99,
		ImportHash:  "dup-hash",
	}); err != nil {
		t.Fatal(err)
	}

	o := New(s, nil)
	rows := []ParsedTransaction{
		row("Existing Charge", -9.99, 0, "dup-hash"),
		row("New Charge", -12.00, 0, "new-hash"),
	}

	session, err := o.Run(ctx, account.ID, "statement.csv", 512, models.BankBankOfAmerica, "user-1", "model-1", rows)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if session.Imported != 1 {
		t.Fatalf("imported = %d, want 1", session.Imported)
	}
	if session.Skipped != 1 {
		t.Fatalf("skipped = %d, want 1", session.Skipped)
	}

	skipped, err := s.ListSkippedTransactions(ctx, session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(skipped) != 1 {
		t.Fatalf("skipped rows recorded = %d, want 1", len(skipped))
	}
	if skipped[0].ImportHash != "dup-hash" {
		t.Fatalf("skipped hash = %s, want dup-hash", skipped[0].ImportHash)
	}
}

func TestRun_NormalizesMerchantsWhenAIPresent(t *testing.T) {
	s := setupTestStore(t)
	account := mustAccount(t, s)
	ctx := context.Background()
	o := New(s, &fakeAI{})

	rows := []ParsedTransaction{row("raw merchant", -20, 0, "hash-n1")}
	session, err := o.Run(ctx, account.ID, "statement.csv", 256, models.BankBankOfAmerica, "user-1", "model-1", rows)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	txns, err := s.ListTransactionsBySession(ctx, session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(txns) != 1 {
		t.Fatalf("transactions = %d, want 1", len(txns))
	}
	if txns[0].MerchantNormalized == nil || *txns[0].MerchantNormalized != "NORM:raw merchant" {
		t.Fatalf("merchant_normalized = %v, want NORM:raw merchant", txns[0].MerchantNormalized)
	}
}

func TestRun_NormalizeFailureIsSkippedNotFatal(t *testing.T) {
	s := setupTestStore(t)
	account := mustAccount(t, s)
	ctx := context.Background()
	o := New(s, &fakeAI{failOn: map[string]bool{"bad merchant": true}})

	rows := []ParsedTransaction{
		row("bad merchant", -5, 0, "hash-bad"),
		row("good merchant", -6, 0, "hash-good"),
	}
	session, err := o.Run(ctx, account.ID, "statement.csv", 256, models.BankBankOfAmerica, "user-1", "model-1", rows)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if session.Status != models.SessionStatusCompleted {
		t.Fatalf("status = %s, want completed despite a normalization failure", session.Status)
	}

	txns, err := s.ListTransactionsBySession(ctx, session.ID)
	if err != nil {
		t.Fatal(err)
	}
	var sawUnnormalized, sawNormalized bool
	for _, txn := range txns {
		if txn.MerchantNormalized == nil {
			sawUnnormalized = true
		} else if *txn.MerchantNormalized == "NORM:good merchant" {
			sawNormalized = true
		}
	}
	if !sawUnnormalized || !sawNormalized {
		t.Fatalf("expected one skipped and one normalized merchant, txns=%+v", txns)
	}
}

func TestRunPhases_CooperativeCancellationStopsBeforeTagging(t *testing.T) {
	s := setupTestStore(t)
	account := mustAccount(t, s)
	ctx := context.Background()
	o := New(s, nil)

	session, err := s.CreateImportSession(ctx, models.NewImportSession{
		AccountID: account.ID,
		Filename:  "statement.csv",
		SizeBytes: 128,
		Bank:      models.BankBankOfAmerica,
		UserID:    "user-1",
		ModelID:   "model-1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.CancelImportSession(ctx, session.ID); err != nil {
		t.Fatal(err)
	}

	rows := []ParsedTransaction{row("Anything", -1, 0, "hash-cancel")}
	err = o.runPhases(ctx, session.ID, rows)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	ce, ok := err.(*cancelledError)
	if !ok {
		t.Fatalf("error type = %T, want *cancelledError", err)
	}
	if ce.phase != models.PhaseTagging {
		t.Fatalf("cancelled phase = %s, want %s", ce.phase, models.PhaseTagging)
	}

	// Ingest still ran before the cancellation was observed.
	txns, err := s.ListTransactionsBySession(ctx, session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(txns) != 1 {
		t.Fatalf("transactions ingested before cancellation = %d, want 1", len(txns))
	}
}

func TestRun_CancellationReturnsPartialSessionNotFailure(t *testing.T) {
	s := setupTestStore(t)
	account := mustAccount(t, s)
	ctx := context.Background()
	o := New(s, nil)

	// Cancel out from under the session mid-run by pre-seeding the
	// transaction and cancelling before Run's own checkCancelled fires is
	// not directly reachable through the public Run API (it creates and
	// immediately drives the session), so this exercises the same contract
	// Run applies to runPhases's cancellation error: it must not be
	// reported as a failed session.
	session, err := s.CreateImportSession(ctx, models.NewImportSession{
		AccountID: account.ID,
		Filename:  "statement.csv",
		Bank:      models.BankBankOfAmerica,
		UserID:    "user-1",
		ModelID:   "model-1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.CancelImportSession(ctx, session.ID); err != nil {
		t.Fatal(err)
	}
	if err := o.runPhases(ctx, session.ID, nil); err == nil {
		t.Fatal("expected cancellation error")
	}

	got, err := s.GetImportSession(ctx, session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status == models.SessionStatusFailed {
		t.Fatal("cooperative cancellation must not mark the session failed")
	}
}

func TestReprocess_DiffsClearedTags(t *testing.T) {
	s := setupTestStore(t)
	account := mustAccount(t, s)
	ctx := context.Background()
	o := New(s, nil)

	rows := []ParsedTransaction{row("Grocery Store", -40, 3, "hash-groc")}
	session, err := o.Run(ctx, account.ID, "statement.csv", 256, models.BankBankOfAmerica, "user-1", "model-1", rows)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	txns, err := s.ListTransactionsBySession(ctx, session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(txns) != 1 {
		t.Fatalf("transactions = %d, want 1", len(txns))
	}

	tag, err := s.CreateTag(ctx, "Groceries", nil, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.TagTransaction(ctx, txns[0].ID, tag.ID, models.TagSourceRule, nil); err != nil {
		t.Fatal(err)
	}

	run, comparison, err := o.Reprocess(ctx, session.ID)
	if err != nil {
		t.Fatalf("Reprocess returned error: %v", err)
	}
	if run.Status != models.SessionStatusCompleted {
		t.Fatalf("run status = %s, want completed", run.Status)
	}
	if run.RunNumber != 1 {
		t.Fatalf("run number = %d, want 1", run.RunNumber)
	}
	if len(comparison.TagChanges) != 1 {
		t.Fatalf("tag changes = %d, want 1 (the auto-tag should have been cleared)", len(comparison.TagChanges))
	}
	change := comparison.TagChanges[0]
	if change.TransactionID != txns[0].ID {
		t.Fatalf("changed transaction = %s, want %s", change.TransactionID, txns[0].ID)
	}
	if len(change.Before) != 1 || change.Before[0] != "Groceries" {
		t.Fatalf("before tags = %v, want [Groceries]", change.Before)
	}
	if len(change.After) != 0 {
		t.Fatalf("after tags = %v, want empty (rule source is cleared on reprocess)", change.After)
	}
}

func TestReprocess_PreservesManualTags(t *testing.T) {
	s := setupTestStore(t)
	account := mustAccount(t, s)
	ctx := context.Background()
	o := New(s, nil)

	rows := []ParsedTransaction{row("Gym Membership", -30, 5, "hash-gym")}
	session, err := o.Run(ctx, account.ID, "statement.csv", 256, models.BankBankOfAmerica, "user-1", "model-1", rows)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	txns, err := s.ListTransactionsBySession(ctx, session.ID)
	if err != nil {
		t.Fatal(err)
	}

	tag, err := s.CreateTag(ctx, "Health", nil, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.TagTransaction(ctx, txns[0].ID, tag.ID, models.TagSourceManual, nil); err != nil {
		t.Fatal(err)
	}

	_, comparison, err := o.Reprocess(ctx, session.ID)
	if err != nil {
		t.Fatalf("Reprocess returned error: %v", err)
	}
	if len(comparison.TagChanges) != 0 {
		t.Fatalf("tag changes = %v, want none (manual tag survives reprocessing)", comparison.TagChanges)
	}
}

func TestCompareRunToInitial_FailsWithoutAReprocessRun(t *testing.T) {
	s := setupTestStore(t)
	account := mustAccount(t, s)
	ctx := context.Background()
	o := New(s, nil)

	rows := []ParsedTransaction{row("Solo Purchase", -15, 1, "hash-solo")}
	session, err := o.Run(ctx, account.ID, "statement.csv", 256, models.BankBankOfAmerica, "user-1", "model-1", rows)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if _, err := o.CompareRunToInitial(ctx, session.ID, "nonexistent-run"); err == nil {
		t.Fatal("expected an error for a session with no reprocess runs")
	}
}

func TestCompareRuns_AcrossTwoReprocessAttempts(t *testing.T) {
	s := setupTestStore(t)
	account := mustAccount(t, s)
	ctx := context.Background()
	o := New(s, nil)

	rows := []ParsedTransaction{row("Utility Bill", -60, 10, "hash-util")}
	session, err := o.Run(ctx, account.ID, "statement.csv", 256, models.BankBankOfAmerica, "user-1", "model-1", rows)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	runA, _, err := o.Reprocess(ctx, session.ID)
	if err != nil {
		t.Fatalf("first Reprocess returned error: %v", err)
	}
	runB, _, err := o.Reprocess(ctx, session.ID)
	if err != nil {
		t.Fatalf("second Reprocess returned error: %v", err)
	}
	if runB.RunNumber != runA.RunNumber+1 {
		t.Fatalf("run numbers = %d, %d, want sequential", runA.RunNumber, runB.RunNumber)
	}

	comparison, err := o.CompareRuns(ctx, runA.ID, runB.ID)
	if err != nil {
		t.Fatalf("CompareRuns returned error: %v", err)
	}
	if len(comparison.TagChanges) != 0 || len(comparison.MerchantChanges) != 0 {
		t.Fatalf("expected no drift across two untouched reprocess attempts, got %+v", comparison)
	}
}

func TestRecoverStuckSessions_NoOpOnCleanStore(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	sessions, runs, err := RecoverStuckSessions(ctx, s)
	if err != nil {
		t.Fatalf("RecoverStuckSessions returned error: %v", err)
	}
	if sessions != 0 || runs != 0 {
		t.Fatalf("recovered (%d, %d), want (0, 0) on a fresh store", sessions, runs)
	}
}
