// Package orchestrator drives one import session end-to-end: ingest,
// tagging, normalizing, receipt matching, and detection, with per-phase
// progress and duration tracking, cooperative cancellation, crash recovery,
// and a reprocessing path that re-runs phases 3-6 and diffs the result
// against a before snapshot.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/honecore/core/internal/aiport"
	"github.com/honecore/core/internal/alerts"
	"github.com/honecore/core/internal/honeerr"
	"github.com/honecore/core/internal/logging"
	"github.com/honecore/core/internal/models"
	"github.com/honecore/core/internal/receiptmatch"
	"github.com/honecore/core/internal/store"
	"github.com/honecore/core/internal/tagengine"
)

// snapshotSampleLimit bounds a reprocess snapshot's transaction sample, per
// spec.md's "bounded to the 100-transaction sample."
const snapshotSampleLimit = 100

// tagBackfillBatch caps how many untagged transactions one Backfill call
// processes before the orchestrator reports progress; the whole session's
// transactions are covered across repeated calls within the tagging phase.
const tagBackfillBatch = 500

// Store is the full persistence surface the orchestrator needs across
// ingest, tagging, normalizing, matching, detecting, and reprocessing.
// Satisfied by *store.Store.
type Store interface {
	alerts.Store
	tagengine.Store
	receiptmatch.Store

	CreateImportSession(ctx context.Context, ni models.NewImportSession) (*models.ImportSession, error)
	GetImportSession(ctx context.Context, id string) (*models.ImportSession, error)
	SetSessionPhase(ctx context.Context, id, phase string, progressCurrent, progressTotal int) error
	UpdateSessionProgress(ctx context.Context, id string, progressCurrent int) error
	UpdateImportSessionTagging(ctx context.Context, id string, tagging models.TaggingBreakdown) error
	CompleteImportSession(ctx context.Context, id string, imported, skipped int, tagging models.TaggingBreakdown, detection models.DetectionCounters, receiptsMatched int, durations []models.PhaseDuration, totalDurationMS int64) error
	FailImportSession(ctx context.Context, id, errMsg string) error
	IsCancelled(ctx context.Context, id string) (bool, error)
	RecoverStuckSessions(ctx context.Context) (int, error)
	RecordSkippedTransaction(ctx context.Context, sessionID string, date time.Time, description string, amount float64, importHash string, existingTransactionID *string) (*models.SkippedTransaction, error)

	CreateTransaction(ctx context.Context, accountID string, nt models.NewTransaction) (*models.Transaction, error)
	FindByImportHash(ctx context.Context, accountID, importHash string) (*models.Transaction, error)
	ListUntaggedBySession(ctx context.Context, sessionID string, limit int) ([]models.Transaction, error)
	ListTransactionsBySession(ctx context.Context, sessionID string) ([]models.Transaction, error)
	ClearSessionTagsAndMerchants(ctx context.Context, sessionID string) error
	ListTransactionTags(ctx context.Context, transactionID string) ([]models.TransactionTag, error)
	TagTransaction(ctx context.Context, transactionID, tagID string, source models.TagSource, confidence *float64) (*models.TransactionTag, error)
	SetMerchantNormalized(ctx context.Context, transactionID, merchant string) error

	CreateReprocessRun(ctx context.Context, sessionID string) (*models.ReprocessRun, error)
	FinishReprocessRun(ctx context.Context, id string, status models.SessionStatus, errMsg *string) error
	RecordReprocessSnapshot(ctx context.Context, runID, sessionID string, kind models.SnapshotKind, tagging models.TaggingBreakdown, detection models.DetectionCounters, sample []models.TransactionSample) (*models.ReprocessSnapshot, error)
	GetReprocessSnapshot(ctx context.Context, runID string, kind models.SnapshotKind) (*models.ReprocessSnapshot, error)
	ListReprocessRuns(ctx context.Context, sessionID string) ([]models.ReprocessRun, error)
	GetLatestReprocessRun(ctx context.Context, sessionID string) (*models.ReprocessRun, error)
	RecoverStuckReprocessRuns(ctx context.Context) (int, error)
}

// ParsedTransaction is one row extracted from a statement, prior to dedup
// and insertion.
type ParsedTransaction struct {
	Date          time.Time
	Description   string
	Amount        float64
	Category      *string
	ImportHash    string
	OriginalData  *string
	ImportFormat  *string
	CardMember    *string
	PaymentMethod *models.PaymentMethod
}

// Orchestrator drives import sessions against a Store.
type Orchestrator struct {
	store  Store
	ai     aiport.Port
	engine *tagengine.Engine
}

// New returns an Orchestrator. ai may be nil, in which case the normalizing
// phase and the tag engine's AI layer are both skipped.
func New(store Store, ai aiport.Port) *Orchestrator {
	return &Orchestrator{store: store, ai: ai, engine: tagengine.New(store, ai)}
}

// RecoverStuckSessions flips any session or reprocess run left in
// Processing (e.g. from a crashed prior process) to Failed, and should run
// once at startup before accepting new work.
func RecoverStuckSessions(ctx context.Context, s Store) (sessions, reprocessRuns int, err error) {
	sessions, err = s.RecoverStuckSessions(ctx)
	if err != nil {
		return 0, 0, err
	}
	reprocessRuns, err = s.RecoverStuckReprocessRuns(ctx)
	if err != nil {
		return sessions, 0, err
	}
	return sessions, reprocessRuns, nil
}

// Run drives a new import session end-to-end for the given account and
// parsed rows, returning the completed session.
func (o *Orchestrator) Run(ctx context.Context, accountID, filename string, sizeBytes int64, bank models.Bank, userID, modelID string, rows []ParsedTransaction) (*models.ImportSession, error) {
	session, err := o.store.CreateImportSession(ctx, models.NewImportSession{
		AccountID: accountID,
		Filename:  filename,
		SizeBytes: sizeBytes,
		Bank:      bank,
		UserID:    userID,
		ModelID:   modelID,
	})
	if err != nil {
		return nil, err
	}

	ctx = logging.WithSessionID(ctx, session.ID)
	start := time.Now()

	if err := o.runPhases(ctx, session.ID, rows); err != nil {
		if _, ok := err.(*cancelledError); ok {
			return o.store.GetImportSession(ctx, session.ID)
		}
		_ = o.store.FailImportSession(ctx, session.ID, err.Error())
		return nil, err
	}

	_ = start
	return o.store.GetImportSession(ctx, session.ID)
}

// cancelledError marks a phase abort triggered by cooperative cancellation
// rather than a failure; Run treats it as a clean (partial-results) stop.
type cancelledError struct{ phase string }

func (e *cancelledError) Error() string { return fmt.Sprintf("import cancelled during %s", e.phase) }

// checkCancelled returns a *cancelledError if the session has been marked
// Cancelled by an external caller, otherwise nil. Called between every
// phase so cancellation is cooperative, never preemptive.
func (o *Orchestrator) checkCancelled(ctx context.Context, sessionID, phase string) error {
	cancelled, err := o.store.IsCancelled(ctx, sessionID)
	if err != nil {
		return err
	}
	if cancelled {
		return &cancelledError{phase: phase}
	}
	return nil
}

// runPhases executes ingest, tagging, normalizing, matching_receipts, and
// detecting in order, persisting a duration per phase and checking for
// cancellation between each.
func (o *Orchestrator) runPhases(ctx context.Context, sessionID string, rows []ParsedTransaction) error {
	logger := logging.FromContext(ctx, zerolog.Ctx(ctx).With().Logger())

	var durations []models.PhaseDuration
	recordDuration := func(phase string, d time.Duration) {
		durations = append(durations, models.PhaseDuration{Phase: phase, DurationMS: d.Milliseconds()})
	}

	sessionRow, err := o.store.GetImportSession(ctx, sessionID)
	if err != nil {
		return err
	}
	accountID := sessionRow.AccountID

	// Phase 2: ingest.
	t0 := time.Now()
	imported, skipped, err := o.ingest(ctx, sessionID, accountID, rows)
	recordDuration(models.PhaseIngest, time.Since(t0))
	if err != nil {
		return err
	}
	logger.Info().Int("imported", imported).Int("skipped", skipped).Msg("ingest phase complete")
	if err := o.checkCancelled(ctx, sessionID, models.PhaseTagging); err != nil {
		return err
	}

	// Phase 3: tagging.
	t0 = time.Now()
	tagging, err := o.tag(ctx, sessionID)
	recordDuration(models.PhaseTagging, time.Since(t0))
	if err != nil {
		return err
	}
	if err := o.checkCancelled(ctx, sessionID, models.PhaseNormalizing); err != nil {
		return err
	}

	// Phase 4: normalizing.
	t0 = time.Now()
	if err := o.normalize(ctx, sessionID); err != nil {
		return err
	}
	recordDuration(models.PhaseNormalizing, time.Since(t0))
	if err := o.checkCancelled(ctx, sessionID, models.PhaseMatchingReceipts); err != nil {
		return err
	}

	// Phase 5: matching_receipts.
	t0 = time.Now()
	receiptsMatched, err := o.matchReceipts(ctx, sessionID)
	recordDuration(models.PhaseMatchingReceipts, time.Since(t0))
	if err != nil {
		return err
	}
	if err := o.checkCancelled(ctx, sessionID, models.PhaseDetecting); err != nil {
		return err
	}

	// Phase 6: detecting.
	t0 = time.Now()
	detection, err := o.detect(ctx, sessionID)
	recordDuration(models.PhaseDetecting, time.Since(t0))
	if err != nil {
		return err
	}

	var totalMS int64
	for _, d := range durations {
		totalMS += d.DurationMS
	}
	if err := o.store.CompleteImportSession(ctx, sessionID, imported, skipped, tagging, detection, receiptsMatched, durations, totalMS); err != nil {
		return err
	}
	logger.Info().Int64("total_duration_ms", totalMS).Msg("import session completed")
	return nil
}

// ingest inserts every parsed row, routing (account_id, import_hash)
// collisions to skipped_transactions instead of failing the batch.
func (o *Orchestrator) ingest(ctx context.Context, sessionID, accountID string, rows []ParsedTransaction) (imported, skipped int, err error) {
	if err := o.store.SetSessionPhase(ctx, sessionID, models.PhaseIngest, 0, len(rows)); err != nil {
		return 0, 0, err
	}

	for i, row := range rows {
		existing, findErr := o.store.FindByImportHash(ctx, accountID, row.ImportHash)
		if findErr != nil && !honeerr.Is(findErr, honeerr.KindNotFound) {
			return imported, skipped, findErr
		}
		if existing != nil {
			var existingID *string
			id := existing.ID
			existingID = &id
			if _, err := o.store.RecordSkippedTransaction(ctx, sessionID, row.Date, row.Description, row.Amount, row.ImportHash, existingID); err != nil {
				return imported, skipped, err
			}
			skipped++
		} else {
			_, txnErr := o.store.CreateTransaction(ctx, accountID, models.NewTransaction{
				Date:            row.Date,
				Description:     row.Description,
				Amount:          row.Amount,
				Category:        row.Category,
				ImportHash:      row.ImportHash,
				OriginalData:    row.OriginalData,
				ImportFormat:    row.ImportFormat,
				CardMember:      row.CardMember,
				PaymentMethod:   row.PaymentMethod,
				ImportSessionID: &sessionID,
			})
			if txnErr != nil {
				if honeerr.Is(txnErr, honeerr.KindConflict) {
					if _, err := o.store.RecordSkippedTransaction(ctx, sessionID, row.Date, row.Description, row.Amount, row.ImportHash, nil); err != nil {
						return imported, skipped, err
					}
					skipped++
				} else {
					return imported, skipped, txnErr
				}
			} else {
				imported++
			}
		}

		if (i+1)%50 == 0 || i == len(rows)-1 {
			if err := o.store.UpdateSessionProgress(ctx, sessionID, i+1); err != nil {
				return imported, skipped, err
			}
		}
	}
	return imported, skipped, nil
}

// sessionBackfillStore adapts Store to tagengine.BackfillStore, restricting
// ListUntagged to one session's transactions so a tagging phase never spills
// into an unrelated backlog.
type sessionBackfillStore struct {
	Store
	sessionID string
}

func (s sessionBackfillStore) ListUntagged(ctx context.Context, limit int) ([]models.Transaction, error) {
	return s.Store.ListUntaggedBySession(ctx, s.sessionID, limit)
}

// tag runs the tag engine's backfill restricted to this session, reporting
// (current, total) progress every tagBackfillBatch transactions and
// accumulating the session's tagging breakdown incrementally.
func (o *Orchestrator) tag(ctx context.Context, sessionID string) (models.TaggingBreakdown, error) {
	bs := sessionBackfillStore{Store: o.store, sessionID: sessionID}

	var breakdown models.TaggingBreakdown
	processed := 0
	for {
		if err := o.checkCancelled(ctx, sessionID, models.PhaseTagging); err != nil {
			return breakdown, err
		}

		result, err := o.engine.Backfill(ctx, bs, tagBackfillBatch, func(current, total int) {
			_ = o.store.SetSessionPhase(ctx, sessionID, models.PhaseTagging, processed+current, processed+total)
		})
		if err != nil {
			return breakdown, err
		}

		breakdown.Learned += result.Tagging.Learned
		breakdown.Rule += result.Tagging.Rule
		breakdown.Pattern += result.Tagging.Pattern
		breakdown.BankCategory += result.Tagging.BankCategory
		breakdown.Ollama += result.Tagging.Ollama
		breakdown.Manual += result.Tagging.Manual
		processed += result.Processed

		if err := o.store.UpdateImportSessionTagging(ctx, sessionID, breakdown); err != nil {
			return breakdown, err
		}

		if result.Processed < tagBackfillBatch {
			break
		}
	}
	return breakdown, nil
}

// normalize calls the AI port's NormalizeMerchant for every session
// transaction still lacking a normalized merchant name. An individual
// classification failure is logged and skipped rather than aborting the
// phase, matching AIPort's contract that a model outage never aborts an
// import.
func (o *Orchestrator) normalize(ctx context.Context, sessionID string) error {
	if o.ai == nil {
		return o.store.SetSessionPhase(ctx, sessionID, models.PhaseNormalizing, 0, 0)
	}

	txns, err := o.store.ListTransactionsBySession(ctx, sessionID)
	if err != nil {
		return err
	}

	var pending []models.Transaction
	for _, t := range txns {
		if t.MerchantNormalized == nil || *t.MerchantNormalized == "" {
			pending = append(pending, t)
		}
	}
	if err := o.store.SetSessionPhase(ctx, sessionID, models.PhaseNormalizing, 0, len(pending)); err != nil {
		return err
	}

	logger := logging.FromContext(ctx, zerolog.Ctx(ctx).With().Logger())
	for i, t := range pending {
		if i%25 == 0 {
			if err := o.checkCancelled(ctx, sessionID, models.PhaseNormalizing); err != nil {
				return err
			}
		}
		normalized, err := o.ai.NormalizeMerchant(ctx, t.Description)
		if err != nil {
			logger.Warn().Err(err).Str("transaction_id", t.ID).Msg("merchant normalization failed, skipping")
		} else if normalized != "" {
			if err := o.store.SetMerchantNormalized(ctx, t.ID, normalized); err != nil {
				return err
			}
		}
		if (i+1)%10 == 0 || i == len(pending)-1 {
			_ = o.store.SetSessionPhase(ctx, sessionID, models.PhaseNormalizing, i+1, len(pending))
		}
	}
	return nil
}

// matchReceipts runs auto_match_receipts over current Pending receipts and
// persists the matched count.
func (o *Orchestrator) matchReceipts(ctx context.Context, sessionID string) (int, error) {
	if err := o.store.SetSessionPhase(ctx, sessionID, models.PhaseMatchingReceipts, 0, 0); err != nil {
		return 0, err
	}
	matched, checked, err := receiptmatch.New(o.store).AutoMatch(ctx)
	if err != nil {
		return 0, err
	}
	_ = o.store.SetSessionPhase(ctx, sessionID, models.PhaseMatchingReceipts, checked, checked)
	return len(matched), nil
}

// detect runs the full detector chain and maps its results onto the
// session's DetectionCounters.
func (o *Orchestrator) detect(ctx context.Context, sessionID string) (models.DetectionCounters, error) {
	if err := o.store.SetSessionPhase(ctx, sessionID, models.PhaseDetecting, 0, 0); err != nil {
		return models.DetectionCounters{}, err
	}
	chain := alerts.NewDetectorChain(o.store, alerts.WithAIPort(o.ai))
	results, err := chain.DetectAll(ctx)
	if err != nil {
		return models.DetectionCounters{}, err
	}
	counters := models.DetectionCounters{
		SubscriptionsFound:        results.SubscriptionsFound,
		ZombiesDetected:           results.ZombiesDetected,
		PriceIncreasesDetected:    results.PriceIncreasesDetected,
		DuplicatesDetected:        results.DuplicatesDetected,
		AutoCancelled:             results.AutoCancelled,
		ResumesDetected:           results.ResumesDetected,
		SpendingAnomaliesDetected: results.SpendingAnomaliesDetected,
	}
	return counters, nil
}

// snapshot captures a session's current tagging breakdown, detection
// counters, and a bounded sample of its transactions' tags and normalized
// merchant, for before/after reprocess comparison.
func (o *Orchestrator) snapshot(ctx context.Context, sessionID string) (models.TaggingBreakdown, models.DetectionCounters, []models.TransactionSample, error) {
	session, err := o.store.GetImportSession(ctx, sessionID)
	if err != nil {
		return models.TaggingBreakdown{}, models.DetectionCounters{}, nil, err
	}

	tags, err := o.store.ListTags(ctx)
	if err != nil {
		return models.TaggingBreakdown{}, models.DetectionCounters{}, nil, err
	}
	pathByID := tagPaths(tags)

	txns, err := o.store.ListTransactionsBySession(ctx, sessionID)
	if err != nil {
		return models.TaggingBreakdown{}, models.DetectionCounters{}, nil, err
	}
	sort.Slice(txns, func(i, j int) bool { return txns[i].Date.After(txns[j].Date) })
	if len(txns) > snapshotSampleLimit {
		txns = txns[:snapshotSampleLimit]
	}

	sample := make([]models.TransactionSample, 0, len(txns))
	for _, t := range txns {
		assigned, err := o.store.ListTransactionTags(ctx, t.ID)
		if err != nil {
			return models.TaggingBreakdown{}, models.DetectionCounters{}, nil, err
		}
		paths := make([]string, 0, len(assigned))
		for _, a := range assigned {
			if p, ok := pathByID[a.TagID]; ok {
				paths = append(paths, p)
			}
		}
		sort.Strings(paths)
		sample = append(sample, models.TransactionSample{
			TransactionID:      t.ID,
			Tags:               paths,
			NormalizedMerchant: t.MerchantNormalized,
		})
	}

	return session.Tagging, session.Detection, sample, nil
}

// tagPaths builds a tag-id -> dot-separated-path map from the full tag tree.
func tagPaths(tags []models.Tag) map[string]string {
	byID := make(map[string]models.Tag, len(tags))
	for _, t := range tags {
		byID[t.ID] = t
	}
	paths := make(map[string]string, len(tags))
	var resolve func(id string) string
	resolve = func(id string) string {
		if p, ok := paths[id]; ok {
			return p
		}
		t := byID[id]
		if t.ParentID == nil {
			paths[id] = t.Name
		} else {
			paths[id] = resolve(*t.ParentID) + "." + t.Name
		}
		return paths[id]
	}
	for id := range byID {
		resolve(id)
	}
	return paths
}

// Reprocess begins a new numbered reprocessing attempt for a session:
// captures a before snapshot, clears non-manual tags and normalized
// merchants, re-runs phases 3-6, captures an after snapshot, and marks the
// run Completed. Returns the run and the before/after comparison.
func (o *Orchestrator) Reprocess(ctx context.Context, sessionID string) (*models.ReprocessRun, *models.ReprocessComparison, error) {
	run, err := o.store.CreateReprocessRun(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	tagging, detection, sample, err := o.snapshot(ctx, sessionID)
	if err != nil {
		_ = o.failRun(ctx, run.ID, err)
		return nil, nil, err
	}
	if _, err := o.store.RecordReprocessSnapshot(ctx, run.ID, sessionID, models.SnapshotKindBefore, tagging, detection, sample); err != nil {
		_ = o.failRun(ctx, run.ID, err)
		return nil, nil, err
	}

	if err := o.store.ClearSessionTagsAndMerchants(ctx, sessionID); err != nil {
		_ = o.failRun(ctx, run.ID, err)
		return nil, nil, err
	}

	if err := o.reprocessPhases(ctx, sessionID); err != nil {
		_ = o.failRun(ctx, run.ID, err)
		return nil, nil, err
	}

	tagging, detection, sample, err = o.snapshot(ctx, sessionID)
	if err != nil {
		_ = o.failRun(ctx, run.ID, err)
		return nil, nil, err
	}
	if _, err := o.store.RecordReprocessSnapshot(ctx, run.ID, sessionID, models.SnapshotKindAfter, tagging, detection, sample); err != nil {
		_ = o.failRun(ctx, run.ID, err)
		return nil, nil, err
	}

	if err := o.store.FinishReprocessRun(ctx, run.ID, models.SessionStatusCompleted, nil); err != nil {
		return nil, nil, err
	}
	finishedAt := time.Now().UTC()
	run.Status = models.SessionStatusCompleted
	run.FinishedAt = &finishedAt

	comparison, err := o.compareSnapshots(ctx, run.ID, models.SnapshotKindBefore, run.ID, models.SnapshotKindAfter)
	if err != nil {
		return run, nil, err
	}
	return run, comparison, nil
}

func (o *Orchestrator) failRun(ctx context.Context, runID string, cause error) error {
	msg := cause.Error()
	return o.store.FinishReprocessRun(ctx, runID, models.SessionStatusFailed, &msg)
}

// reprocessPhases re-runs phases 3-6 (tagging, normalizing,
// matching_receipts, detecting) against the session's now-untagged
// transactions, without touching session.imported/skipped (ingest is not
// repeated).
func (o *Orchestrator) reprocessPhases(ctx context.Context, sessionID string) error {
	if err := o.checkCancelled(ctx, sessionID, models.PhaseTagging); err != nil {
		return err
	}
	tagging, err := o.tag(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := o.checkCancelled(ctx, sessionID, models.PhaseNormalizing); err != nil {
		return err
	}
	if err := o.normalize(ctx, sessionID); err != nil {
		return err
	}
	if err := o.checkCancelled(ctx, sessionID, models.PhaseMatchingReceipts); err != nil {
		return err
	}
	receiptsMatched, err := o.matchReceipts(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := o.checkCancelled(ctx, sessionID, models.PhaseDetecting); err != nil {
		return err
	}
	detection, err := o.detect(ctx, sessionID)
	if err != nil {
		return err
	}

	session, err := o.store.GetImportSession(ctx, sessionID)
	if err != nil {
		return err
	}
	return o.store.CompleteImportSession(ctx, sessionID, session.Imported, session.Skipped, tagging, detection, receiptsMatched, session.PhaseDurations, 0)
}

// compareSnapshots diffs two named (run, kind) snapshots, which may belong
// to different runs — the shape CompareRuns and CompareRunToInitial both need.
func (o *Orchestrator) compareSnapshots(ctx context.Context, runA string, kindA models.SnapshotKind, runB string, kindB models.SnapshotKind) (*models.ReprocessComparison, error) {
	before, err := o.store.GetReprocessSnapshot(ctx, runA, kindA)
	if err != nil {
		return nil, err
	}
	after, err := o.store.GetReprocessSnapshot(ctx, runB, kindB)
	if err != nil {
		return nil, err
	}
	return store.DiffReprocessSnapshots(before, after), nil
}

// CompareRuns diffs the "after" snapshots of two reprocessing attempts on
// the same session.
func (o *Orchestrator) CompareRuns(ctx context.Context, runAID, runBID string) (*models.ReprocessComparison, error) {
	return o.compareSnapshots(ctx, runAID, models.SnapshotKindAfter, runBID, models.SnapshotKindAfter)
}

// CompareRunToInitial diffs a session's very first reprocess run's "before"
// snapshot (the state immediately after the original import) against a
// later run's "after" snapshot.
func (o *Orchestrator) CompareRunToInitial(ctx context.Context, sessionID, runID string) (*models.ReprocessComparison, error) {
	runs, err := o.store.ListReprocessRuns(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("session %s has never been reprocessed", sessionID)
	}
	initial := runs[0]
	return o.compareSnapshots(ctx, initial.ID, models.SnapshotKindBefore, runID, models.SnapshotKindAfter)
}
