package tagengine

import (
	"context"

	"github.com/honecore/core/internal/models"
)

// BackfillStore is the persistence surface backfill needs beyond Store.
// Satisfied by *store.Store.
type BackfillStore interface {
	Store
	ListUntagged(ctx context.Context, limit int) ([]models.Transaction, error)
	TagTransaction(ctx context.Context, transactionID, tagID string, source models.TagSource, confidence *float64) (*models.TransactionTag, error)
	SetMerchantNormalized(ctx context.Context, transactionID, merchant string) error
}

// BackfillResult tallies what a backfill run did, including the AI
// cache-hit count: descriptions that were already classified earlier in
// the same run and so incurred no additional model call.
type BackfillResult struct {
	Tagging    models.TaggingBreakdown
	AICacheHit int
	Processed  int
}

// ProgressFunc is invoked after each transaction with (current, total).
type ProgressFunc func(current, total int)

// Backfill walks up to limit untagged transactions, assigns a tag to each,
// and persists the assignment (and any normalized merchant name) via
// bs. progress, if non-nil, is called after every transaction.
func (e *Engine) Backfill(ctx context.Context, bs BackfillStore, limit int, progress ProgressFunc) (BackfillResult, error) {
	txns, err := bs.ListUntagged(ctx, limit)
	if err != nil {
		return BackfillResult{}, err
	}

	var result BackfillResult
	total := len(txns)
	for i, txn := range txns {
		wasCached := e.IsAICached(txn.Description)

		assignment, err := e.Assign(ctx, txn)
		if err != nil {
			return result, err
		}

		if _, err := bs.TagTransaction(ctx, txn.ID, assignment.TagID, assignment.Source, assignment.Confidence); err != nil {
			return result, err
		}
		if assignment.NormalizedMerchant != nil {
			if err := bs.SetMerchantNormalized(ctx, txn.ID, *assignment.NormalizedMerchant); err != nil {
				return result, err
			}
		}

		tallySource(&result.Tagging, assignment.Source)
		if assignment.Source == models.TagSourceOllama && wasCached {
			result.AICacheHit++
		}
		result.Processed++

		if progress != nil {
			progress(i+1, total)
		}
	}
	return result, nil
}

func tallySource(b *models.TaggingBreakdown, source models.TagSource) {
	switch source {
	case models.TagSourceLearned:
		b.Learned++
	case models.TagSourceRule:
		b.Rule++
	case models.TagSourcePattern:
		b.Pattern++
	case models.TagSourceBankCategory:
		b.BankCategory++
	case models.TagSourceOllama:
		b.Ollama++
	case models.TagSourceManual:
		b.Manual++
	}
}
