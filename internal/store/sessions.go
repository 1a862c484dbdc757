package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/honecore/core/internal/honeerr"
	"github.com/honecore/core/internal/models"
)

// CreateImportSession inserts a new session in SessionStatusPending.
func (s *Store) CreateImportSession(ctx context.Context, ni models.NewImportSession) (*models.ImportSession, error) {
	now := nowUTC()
	is := &models.ImportSession{
		ID:        newID(),
		AccountID: ni.AccountID,
		Filename:  ni.Filename,
		SizeBytes: ni.SizeBytes,
		Bank:      ni.Bank,
		UserID:    ni.UserID,
		ModelID:   ni.ModelID,
		Status:    models.SessionStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO import_sessions (
			id, account_id, filename, size_bytes, bank, imported, skipped,
			tagging_learned, tagging_rule, tagging_pattern, tagging_bank_category, tagging_ollama, tagging_manual,
			detect_subscriptions_found, detect_zombies, detect_price_increases, detect_duplicates,
			detect_auto_cancelled, detect_resumes, detect_spending_anomalies,
			receipts_matched, user_id, model_id, status, phase, progress_current, progress_total,
			error_message, phase_durations_json, total_duration_ms, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, 0, 0, 0,0,0,0,0,0, 0,0,0,0,0,0,0, 0, ?, ?, ?, NULL, 0, 0, NULL, NULL, NULL, ?, ?)`,
		is.ID, is.AccountID, is.Filename, is.SizeBytes, string(is.Bank), is.UserID, is.ModelID,
		string(is.Status), formatTime(is.CreatedAt), formatTime(is.UpdatedAt),
	)
	if err != nil {
		return nil, honeerr.Wrap(honeerr.KindTransient, "store.CreateImportSession", err)
	}
	return is, nil
}

func (s *Store) GetImportSession(ctx context.Context, id string) (*models.ImportSession, error) {
	row := s.db.QueryRowContext(ctx, sessionSelectCols+` WHERE id = ?`, id)
	return scanSession(row)
}

// ListImportSessions returns sessions for an account ordered newest first.
func (s *Store) ListImportSessions(ctx context.Context, accountID string) ([]models.ImportSession, error) {
	rows, err := s.db.QueryContext(ctx, sessionSelectCols+` WHERE account_id = ? ORDER BY created_at DESC`, accountID)
	if err != nil {
		return nil, honeerr.Wrap(honeerr.KindTransient, "store.ListImportSessions", err)
	}
	defer rows.Close()

	var out []models.ImportSession
	for rows.Next() {
		is, err := scanSessionGeneric(rows)
		if err != nil {
			return nil, honeerr.Wrap(honeerr.KindFatal, "store.ListImportSessions", err)
		}
		out = append(out, *is)
	}
	return out, rows.Err()
}

// SetSessionPhase advances a session into a processing phase with progress
// counters, called at the start of each orchestrator phase. The update is
// skipped if the session has already been marked Cancelled by an external
// caller, so a phase transition never clobbers a pending cancellation that
// checkCancelled hasn't observed yet.
func (s *Store) SetSessionPhase(ctx context.Context, id, phase string, progressCurrent, progressTotal int) error {
	return withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			UPDATE import_sessions SET status = ?, phase = ?, progress_current = ?, progress_total = ?, updated_at = ?
			WHERE id = ? AND status != ?`,
			string(models.SessionStatusProcessing), phase, progressCurrent, progressTotal, formatTime(nowUTC()), id,
			string(models.SessionStatusCancelled),
		)
		if err != nil {
			return honeerr.Wrap(honeerr.KindTransient, "store.SetSessionPhase", err)
		}
		return nil
	})
}

// UpdateSessionProgress updates the current progress counter within a phase
// without changing status or phase.
func (s *Store) UpdateSessionProgress(ctx context.Context, id string, progressCurrent int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE import_sessions SET progress_current = ?, updated_at = ? WHERE id = ?`,
		progressCurrent, formatTime(nowUTC()), id,
	)
	if err != nil {
		return honeerr.Wrap(honeerr.KindTransient, "store.UpdateSessionProgress", err)
	}
	return nil
}

// UpdateImportSessionTagging persists the tagging breakdown accumulated so
// far, called after each backfill batch during the tagging phase so a
// concurrent status read sees incremental progress rather than only the
// final tally.
func (s *Store) UpdateImportSessionTagging(ctx context.Context, id string, tagging models.TaggingBreakdown) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE import_sessions SET
			tagging_learned = ?,
			tagging_rule = ?,
			tagging_pattern = ?,
			tagging_bank_category = ?,
			tagging_ollama = ?,
			tagging_manual = ?,
			updated_at = ?
		WHERE id = ?`,
		tagging.Learned, tagging.Rule, tagging.Pattern, tagging.BankCategory, tagging.Ollama, tagging.Manual,
		formatTime(nowUTC()), id,
	)
	if err != nil {
		return honeerr.Wrap(honeerr.KindTransient, "store.UpdateImportSessionTagging", err)
	}
	return nil
}

// CompleteImportSession records final counters and marks the session
// completed.
func (s *Store) CompleteImportSession(ctx context.Context, id string, imported, skipped int, tagging models.TaggingBreakdown, detection models.DetectionCounters, receiptsMatched int, durations []models.PhaseDuration, totalDurationMS int64) error {
	durationsJSON, err := json.Marshal(durations)
	if err != nil {
		return honeerr.InvalidData("store.CompleteImportSession", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE import_sessions SET
			status = ?, phase = NULL, imported = ?, skipped = ?,
			tagging_learned = ?, tagging_rule = ?, tagging_pattern = ?, tagging_bank_category = ?, tagging_ollama = ?, tagging_manual = ?,
			detect_subscriptions_found = ?, detect_zombies = ?, detect_price_increases = ?, detect_duplicates = ?,
			detect_auto_cancelled = ?, detect_resumes = ?, detect_spending_anomalies = ?,
			receipts_matched = ?, phase_durations_json = ?, total_duration_ms = ?, updated_at = ?
		WHERE id = ?`,
		string(models.SessionStatusCompleted), imported, skipped,
		tagging.Learned, tagging.Rule, tagging.Pattern, tagging.BankCategory, tagging.Ollama, tagging.Manual,
		detection.SubscriptionsFound, detection.ZombiesDetected, detection.PriceIncreasesDetected, detection.DuplicatesDetected,
		detection.AutoCancelled, detection.ResumesDetected, detection.SpendingAnomaliesDetected,
		receiptsMatched, string(durationsJSON), totalDurationMS, formatTime(nowUTC()), id,
	)
	if err != nil {
		return honeerr.Wrap(honeerr.KindTransient, "store.CompleteImportSession", err)
	}
	return nil
}

// FailImportSession marks a session failed with an error message.
func (s *Store) FailImportSession(ctx context.Context, id, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE import_sessions SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		string(models.SessionStatusFailed), errMsg, formatTime(nowUTC()), id,
	)
	if err != nil {
		return honeerr.Wrap(honeerr.KindTransient, "store.FailImportSession", err)
	}
	return nil
}

// CancelImportSession marks a session cancelled. Only Pending or Processing
// sessions are cancelable; any other status returns honeerr.ErrSessionNotCancelable.
func (s *Store) CancelImportSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE import_sessions SET status = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		string(models.SessionStatusCancelled), formatTime(nowUTC()), id,
		string(models.SessionStatusPending), string(models.SessionStatusProcessing),
	)
	if err != nil {
		return honeerr.Wrap(honeerr.KindTransient, "store.CancelImportSession", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		if _, getErr := s.GetImportSession(ctx, id); getErr != nil {
			return getErr
		}
		return honeerr.Conflict("store.CancelImportSession", honeerr.ErrSessionNotCancelable)
	}
	return nil
}

// IsCancelled reports whether a session has been marked cancelled, polled
// cooperatively by the orchestrator between phases.
func (s *Store) IsCancelled(ctx context.Context, id string) (bool, error) {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM import_sessions WHERE id = ?`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, honeerr.NotFound("store.IsCancelled", honeerr.ErrSessionNotFound)
		}
		return false, honeerr.Wrap(honeerr.KindTransient, "store.IsCancelled", err)
	}
	return status == string(models.SessionStatusCancelled), nil
}

// RecoverStuckSessions marks every session still in Processing as Failed
// (a crashed worker never reached a terminal state) and returns the count.
// Called once at process startup before the orchestrator accepts new work.
func (s *Store) RecoverStuckSessions(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE import_sessions SET status = ?, error_message = ?, updated_at = ?
		WHERE status = ?`,
		string(models.SessionStatusFailed), "server restarted during import", formatTime(nowUTC()),
		string(models.SessionStatusProcessing),
	)
	if err != nil {
		return 0, honeerr.Wrap(honeerr.KindTransient, "store.RecoverStuckSessions", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// RecordSkippedTransaction logs a transaction row skipped during import,
// typically because it collided with an existing import_hash.
func (s *Store) RecordSkippedTransaction(ctx context.Context, sessionID string, date time.Time, description string, amount float64, importHash string, existingTransactionID *string) (*models.SkippedTransaction, error) {
	st := &models.SkippedTransaction{
		ID:                    newID(),
		SessionID:             sessionID,
		Date:                  date,
		Description:           description,
		Amount:                amount,
		ImportHash:            importHash,
		ExistingTransactionID: existingTransactionID,
		CreatedAt:             nowUTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO skipped_transactions (id, session_id, date, description, amount, import_hash, existing_transaction_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		st.ID, st.SessionID, formatTime(st.Date), st.Description, st.Amount, st.ImportHash,
		nullableString(st.ExistingTransactionID), formatTime(st.CreatedAt),
	)
	if err != nil {
		return nil, honeerr.Wrap(honeerr.KindTransient, "store.RecordSkippedTransaction", err)
	}
	return st, nil
}

// ListSkippedTransactions returns skipped rows for a session.
func (s *Store) ListSkippedTransactions(ctx context.Context, sessionID string) ([]models.SkippedTransaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, date, description, amount, import_hash, existing_transaction_id, created_at
		FROM skipped_transactions WHERE session_id = ? ORDER BY date`, sessionID)
	if err != nil {
		return nil, honeerr.Wrap(honeerr.KindTransient, "store.ListSkippedTransactions", err)
	}
	defer rows.Close()

	var out []models.SkippedTransaction
	for rows.Next() {
		var st models.SkippedTransaction
		var date, createdAt string
		var existingTxnID sql.NullString
		if err := rows.Scan(&st.ID, &st.SessionID, &date, &st.Description, &st.Amount, &st.ImportHash, &existingTxnID, &createdAt); err != nil {
			return nil, honeerr.Wrap(honeerr.KindFatal, "store.ListSkippedTransactions", err)
		}
		st.Date = parseTime(date)
		st.ExistingTransactionID = stringOrNil(existingTxnID)
		st.CreatedAt = parseTime(createdAt)
		out = append(out, st)
	}
	return out, rows.Err()
}

const sessionSelectCols = `
	SELECT id, account_id, filename, size_bytes, bank, imported, skipped,
		tagging_learned, tagging_rule, tagging_pattern, tagging_bank_category, tagging_ollama, tagging_manual,
		detect_subscriptions_found, detect_zombies, detect_price_increases, detect_duplicates,
		detect_auto_cancelled, detect_resumes, detect_spending_anomalies,
		receipts_matched, user_id, model_id, status, phase, progress_current, progress_total,
		error_message, phase_durations_json, total_duration_ms, created_at, updated_at
	FROM import_sessions`

func scanSession(row *sql.Row) (*models.ImportSession, error) {
	return scanSessionGeneric(row)
}

func scanSessionGeneric(row rowScanner) (*models.ImportSession, error) {
	var is models.ImportSession
	var bank, status string
	var phase, errorMessage, phaseDurationsJSON sql.NullString
	var totalDurationMS sql.NullInt64
	var createdAt, updatedAt string

	err := row.Scan(
		&is.ID, &is.AccountID, &is.Filename, &is.SizeBytes, &bank, &is.Imported, &is.Skipped,
		&is.Tagging.Learned, &is.Tagging.Rule, &is.Tagging.Pattern, &is.Tagging.BankCategory, &is.Tagging.Ollama, &is.Tagging.Manual,
		&is.Detection.SubscriptionsFound, &is.Detection.ZombiesDetected, &is.Detection.PriceIncreasesDetected, &is.Detection.DuplicatesDetected,
		&is.Detection.AutoCancelled, &is.Detection.ResumesDetected, &is.Detection.SpendingAnomaliesDetected,
		&is.ReceiptsMatched, &is.UserID, &is.ModelID, &status, &phase, &is.ProgressCurrent, &is.ProgressTotal,
		&errorMessage, &phaseDurationsJSON, &totalDurationMS, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, honeerr.NotFound("store.scanSession", honeerr.ErrSessionNotFound)
		}
		return nil, fmt.Errorf("scan import session: %w", err)
	}

	is.Bank = models.Bank(bank)
	is.Status = models.SessionStatus(status)
	is.Phase = stringOrNil(phase)
	is.ErrorMessage = stringOrNil(errorMessage)
	is.TotalDurationMS = int64OrNil(totalDurationMS)
	is.CreatedAt = parseTime(createdAt)
	is.UpdatedAt = parseTime(updatedAt)

	if phaseDurationsJSON.Valid && phaseDurationsJSON.String != "" {
		if err := json.Unmarshal([]byte(phaseDurationsJSON.String), &is.PhaseDurations); err != nil {
			return nil, fmt.Errorf("unmarshal phase_durations_json: %w", err)
		}
	}
	return &is, nil
}
