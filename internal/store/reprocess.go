package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/honecore/core/internal/honeerr"
	"github.com/honecore/core/internal/models"
)

// CreateReprocessRun starts a new reprocessing attempt for a session,
// numbered sequentially per session so history survives repeated reprocessing.
func (s *Store) CreateReprocessRun(ctx context.Context, sessionID string) (*models.ReprocessRun, error) {
	var nextRun int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(run_number), 0) + 1 FROM reprocess_runs WHERE session_id = ?`, sessionID,
	).Scan(&nextRun)
	if err != nil {
		return nil, honeerr.Wrap(honeerr.KindTransient, "store.CreateReprocessRun", err)
	}

	r := &models.ReprocessRun{
		ID:        newID(),
		SessionID: sessionID,
		RunNumber: nextRun,
		Status:    models.SessionStatusProcessing,
		StartedAt: nowUTC(),
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reprocess_runs (id, session_id, run_number, status, started_at, finished_at, error_message)
		VALUES (?, ?, ?, ?, ?, NULL, NULL)`,
		r.ID, r.SessionID, r.RunNumber, string(r.Status), formatTime(r.StartedAt),
	)
	if err != nil {
		return nil, honeerr.Wrap(honeerr.KindTransient, "store.CreateReprocessRun", err)
	}
	return r, nil
}

// FinishReprocessRun records the terminal status of a reprocessing attempt.
func (s *Store) FinishReprocessRun(ctx context.Context, id string, status models.SessionStatus, errMsg *string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE reprocess_runs SET status = ?, finished_at = ?, error_message = ? WHERE id = ?`,
		string(status), formatTime(nowUTC()), nullableString(errMsg), id,
	)
	if err != nil {
		return honeerr.Wrap(honeerr.KindTransient, "store.FinishReprocessRun", err)
	}
	return nil
}

func (s *Store) GetReprocessRun(ctx context.Context, id string) (*models.ReprocessRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, run_number, status, started_at, finished_at, error_message
		FROM reprocess_runs WHERE id = ?`, id)

	var r models.ReprocessRun
	var status, startedAt string
	var finishedAt, errMsg sql.NullString
	err := row.Scan(&r.ID, &r.SessionID, &r.RunNumber, &status, &startedAt, &finishedAt, &errMsg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, honeerr.NotFound("store.GetReprocessRun", fmt.Errorf("reprocess run not found"))
		}
		return nil, honeerr.Wrap(honeerr.KindFatal, "store.GetReprocessRun", err)
	}
	r.Status = models.SessionStatus(status)
	r.StartedAt = parseTime(startedAt)
	r.FinishedAt = timeOrNil(finishedAt)
	r.ErrorMessage = stringOrNil(errMsg)
	return &r, nil
}

// RecordReprocessSnapshot captures tagging/detection counters and a sample of
// affected transactions before or after a reprocessing pass, for later diffing.
func (s *Store) RecordReprocessSnapshot(ctx context.Context, runID, sessionID string, kind models.SnapshotKind, tagging models.TaggingBreakdown, detection models.DetectionCounters, sample []models.TransactionSample) (*models.ReprocessSnapshot, error) {
	taggingJSON, err := json.Marshal(tagging)
	if err != nil {
		return nil, honeerr.InvalidData("store.RecordReprocessSnapshot", err)
	}
	detectionJSON, err := json.Marshal(detection)
	if err != nil {
		return nil, honeerr.InvalidData("store.RecordReprocessSnapshot", err)
	}
	sampleJSON, err := json.Marshal(sample)
	if err != nil {
		return nil, honeerr.InvalidData("store.RecordReprocessSnapshot", err)
	}

	snap := &models.ReprocessSnapshot{
		ID:        newID(),
		RunID:     runID,
		SessionID: sessionID,
		Kind:      kind,
		Tagging:   tagging,
		Detection: detection,
		Sample:    sample,
		CreatedAt: nowUTC(),
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reprocess_snapshots (id, run_id, session_id, kind, tagging_json, detection_json, sample_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.RunID, snap.SessionID, string(snap.Kind), string(taggingJSON), string(detectionJSON), string(sampleJSON), formatTime(snap.CreatedAt),
	)
	if err != nil {
		return nil, honeerr.Wrap(honeerr.KindTransient, "store.RecordReprocessSnapshot", err)
	}
	return snap, nil
}

// GetReprocessSnapshot returns the before or after snapshot for a run.
func (s *Store) GetReprocessSnapshot(ctx context.Context, runID string, kind models.SnapshotKind) (*models.ReprocessSnapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, run_id, session_id, kind, tagging_json, detection_json, sample_json, created_at
		FROM reprocess_snapshots WHERE run_id = ? AND kind = ?`, runID, string(kind))

	var snap models.ReprocessSnapshot
	var k, taggingJSON, detectionJSON, sampleJSON, createdAt string
	err := row.Scan(&snap.ID, &snap.RunID, &snap.SessionID, &k, &taggingJSON, &detectionJSON, &sampleJSON, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, honeerr.NotFound("store.GetReprocessSnapshot", fmt.Errorf("reprocess snapshot not found"))
		}
		return nil, honeerr.Wrap(honeerr.KindFatal, "store.GetReprocessSnapshot", err)
	}
	snap.Kind = models.SnapshotKind(k)
	if err := json.Unmarshal([]byte(taggingJSON), &snap.Tagging); err != nil {
		return nil, fmt.Errorf("unmarshal tagging_json: %w", err)
	}
	if err := json.Unmarshal([]byte(detectionJSON), &snap.Detection); err != nil {
		return nil, fmt.Errorf("unmarshal detection_json: %w", err)
	}
	if err := json.Unmarshal([]byte(sampleJSON), &snap.Sample); err != nil {
		return nil, fmt.Errorf("unmarshal sample_json: %w", err)
	}
	snap.CreatedAt = parseTime(createdAt)
	return &snap, nil
}

// CompareReprocessSnapshots diffs the before/after transaction samples of a
// run into per-transaction tag and merchant changes.
func (s *Store) CompareReprocessSnapshots(ctx context.Context, runID string) (*models.ReprocessComparison, error) {
	before, err := s.GetReprocessSnapshot(ctx, runID, models.SnapshotKindBefore)
	if err != nil {
		return nil, err
	}
	after, err := s.GetReprocessSnapshot(ctx, runID, models.SnapshotKindAfter)
	if err != nil {
		return nil, err
	}
	return DiffReprocessSnapshots(before, after), nil
}

// DiffReprocessSnapshots joins two arbitrary snapshots on transaction id and
// produces the same tag/merchant-change shape as CompareReprocessSnapshots.
// Used directly for compare_runs (two runs' "after" snapshots) and
// compare_run_to_initial (a session's initial import sample vs. a run's
// "after" snapshot), neither of which share a single run_id.
func DiffReprocessSnapshots(before, after *models.ReprocessSnapshot) *models.ReprocessComparison {
	beforeByID := make(map[string]models.TransactionSample, len(before.Sample))
	for _, ts := range before.Sample {
		beforeByID[ts.TransactionID] = ts
	}

	cmp := &models.ReprocessComparison{}
	for _, afterTS := range after.Sample {
		beforeTS, ok := beforeByID[afterTS.TransactionID]
		if !ok {
			continue
		}
		if !stringSlicesEqual(beforeTS.Tags, afterTS.Tags) {
			cmp.TagChanges = append(cmp.TagChanges, models.TagChange{
				TransactionID: afterTS.TransactionID,
				Before:        beforeTS.Tags,
				After:         afterTS.Tags,
			})
		}
		if !stringPtrsEqual(beforeTS.NormalizedMerchant, afterTS.NormalizedMerchant) {
			cmp.MerchantChanges = append(cmp.MerchantChanges, models.MerchantChange{
				TransactionID: afterTS.TransactionID,
				Before:        beforeTS.NormalizedMerchant,
				After:         afterTS.NormalizedMerchant,
			})
		}
	}
	return cmp
}

// ListReprocessRuns returns every reprocessing attempt for a session, oldest
// run_number first.
func (s *Store) ListReprocessRuns(ctx context.Context, sessionID string) ([]models.ReprocessRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, run_number, status, started_at, finished_at, error_message
		FROM reprocess_runs WHERE session_id = ? ORDER BY run_number ASC`, sessionID)
	if err != nil {
		return nil, honeerr.Wrap(honeerr.KindTransient, "store.ListReprocessRuns", err)
	}
	defer rows.Close()

	var runs []models.ReprocessRun
	for rows.Next() {
		var r models.ReprocessRun
		var status, startedAt string
		var finishedAt, errMsg sql.NullString
		if err := rows.Scan(&r.ID, &r.SessionID, &r.RunNumber, &status, &startedAt, &finishedAt, &errMsg); err != nil {
			return nil, honeerr.Wrap(honeerr.KindFatal, "store.ListReprocessRuns", err)
		}
		r.Status = models.SessionStatus(status)
		r.StartedAt = parseTime(startedAt)
		r.FinishedAt = timeOrNil(finishedAt)
		r.ErrorMessage = stringOrNil(errMsg)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetLatestReprocessRun returns the highest run_number for a session, or
// ErrNotFound if the session has never been reprocessed.
func (s *Store) GetLatestReprocessRun(ctx context.Context, sessionID string) (*models.ReprocessRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, run_number, status, started_at, finished_at, error_message
		FROM reprocess_runs WHERE session_id = ? ORDER BY run_number DESC LIMIT 1`, sessionID)

	var r models.ReprocessRun
	var status, startedAt string
	var finishedAt, errMsg sql.NullString
	err := row.Scan(&r.ID, &r.SessionID, &r.RunNumber, &status, &startedAt, &finishedAt, &errMsg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, honeerr.NotFound("store.GetLatestReprocessRun", fmt.Errorf("no reprocess runs for session"))
		}
		return nil, honeerr.Wrap(honeerr.KindFatal, "store.GetLatestReprocessRun", err)
	}
	r.Status = models.SessionStatus(status)
	r.StartedAt = parseTime(startedAt)
	r.FinishedAt = timeOrNil(finishedAt)
	r.ErrorMessage = stringOrNil(errMsg)
	return &r, nil
}

// RecoverStuckReprocessRuns flips any run left Processing (e.g. by a crash
// mid-reprocess) to Failed with an informative message. Returns the count
// recovered.
func (s *Store) RecoverStuckReprocessRuns(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE reprocess_runs SET
			status = ?,
			finished_at = ?,
			error_message = ?
		WHERE status = ?`,
		string(models.SessionStatusFailed), formatTime(nowUTC()), "server restarted during reprocessing", string(models.SessionStatusProcessing),
	)
	if err != nil {
		return 0, honeerr.Wrap(honeerr.KindTransient, "store.RecoverStuckReprocessRuns", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, honeerr.Wrap(honeerr.KindTransient, "store.RecoverStuckReprocessRuns", err)
	}
	return int(n), nil
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func stringPtrsEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
