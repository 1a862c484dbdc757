// Package receiptmatch scores candidate transactions against a parsed
// receipt and, for unambiguous top candidates, auto-promotes a Pending
// receipt to Matched. Scoring is pure arithmetic over already-fetched
// transactions; the only I/O this package performs goes through the
// injected Store.
package receiptmatch

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/honecore/core/internal/models"
)

const (
	weightAmount   = 0.5
	weightDate     = 0.2
	weightMerchant = 0.3

	autoMatchThreshold  = 0.85
	ambiguityGuardBelow = 0.75

	candidateWindowDays = 3
)

// Store is the persistence surface the matcher needs. Satisfied by
// *store.Store.
type Store interface {
	ListAllTransactions(ctx context.Context) ([]models.Transaction, error)
	ListUnmatchedReceipts(ctx context.Context) ([]models.Receipt, error)
	MatchReceipt(ctx context.Context, receiptID, transactionID string, status models.ReceiptStatus) error
}

// Matcher scores receipts against candidate transactions.
type Matcher struct {
	store Store
}

// New returns a Matcher backed by store.
func New(store Store) *Matcher {
	return &Matcher{store: store}
}

// Candidate is one scored transaction against a receipt.
type Candidate struct {
	Transaction   models.Transaction
	Score         float64
	AmountScore   float64
	DateScore     float64
	MerchantScore float64
	AmountDiff    float64
}

// Candidates returns every non-archived transaction within the matching
// window, ranked by descending composite score. Returns an empty slice
// if the receipt has neither a date nor a total — matching without a
// quantitative anchor is disallowed.
func (m *Matcher) Candidates(ctx context.Context, receipt models.ParsedReceipt) ([]Candidate, error) {
	if receipt.Date == nil && receipt.Total == nil {
		return nil, nil
	}

	txns, err := m.store.ListAllTransactions(ctx)
	if err != nil {
		return nil, err
	}

	var out []Candidate
	for _, t := range txns {
		if t.Archived {
			continue
		}
		if receipt.Date != nil && daysBetween(t.Date, *receipt.Date) > candidateWindowDays {
			continue
		}
		out = append(out, score(t, receipt))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

// score computes a Candidate's composite and per-factor scores for one
// transaction against a receipt.
func score(t models.Transaction, receipt models.ParsedReceipt) Candidate {
	c := Candidate{Transaction: t}

	c.AmountScore, c.AmountDiff = amountScore(t.Amount, receipt.Total)
	c.DateScore = dateScore(t.Date, receipt.Date)
	c.MerchantScore = merchantScore(t, receipt.Merchant)

	c.Score = weightAmount*c.AmountScore + weightDate*c.DateScore + weightMerchant*c.MerchantScore
	return c
}

// amountScore is 1.0 at an exact match, degrading linearly to 0 at the
// larger of $5 or 20% of the receipt total; past that ceiling it is 0.
// Absent a receipt total, amount can't anchor the match.
func amountScore(txnAmount float64, receiptTotal *float64) (float64, float64) {
	if receiptTotal == nil {
		return 0, 0
	}
	diff := math.Abs(math.Abs(txnAmount) - *receiptTotal)
	ceiling := math.Max(5.0, 0.20*(*receiptTotal))
	if ceiling <= 0 {
		return 0, diff
	}
	if diff >= ceiling {
		return 0, diff
	}
	return 1.0 - diff/ceiling, diff
}

// dateScore interpolates linearly through the spec's three anchor points
// — 1.0 same day, 0.5 at +/-2 days, 0 beyond +/-3 — and is 0 past the
// window. Absent a receipt date, date can't anchor the match.
func dateScore(txnDate time.Time, receiptDate *time.Time) float64 {
	if receiptDate == nil {
		return 0
	}
	days := float64(daysBetween(txnDate, *receiptDate))
	switch {
	case days <= 2:
		return 1.0 - (days/2)*0.5
	case days <= candidateWindowDays:
		return 0.5 - (days-2)*0.5
	default:
		return 0
	}
}

// merchantScore is case-insensitive token overlap between the receipt's
// merchant and the transaction's normalized merchant (falling back to its
// raw description), 1.0 on an exact canonical match.
func merchantScore(t models.Transaction, receiptMerchant *string) float64 {
	if receiptMerchant == nil {
		return 0
	}
	txnMerchant := t.Description
	if t.MerchantNormalized != nil && *t.MerchantNormalized != "" {
		txnMerchant = *t.MerchantNormalized
	}

	a := strings.ToUpper(strings.TrimSpace(*receiptMerchant))
	b := strings.ToUpper(strings.TrimSpace(txnMerchant))
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1.0
	}

	aTokens := tokenSet(a)
	bTokens := tokenSet(b)
	if len(aTokens) == 0 || len(bTokens) == 0 {
		return 0
	}
	overlap := 0
	for tok := range aTokens {
		if bTokens[tok] {
			overlap++
		}
	}
	denom := len(aTokens)
	if len(bTokens) > denom {
		denom = len(bTokens)
	}
	return float64(overlap) / float64(denom)
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(s) {
		set[tok] = true
	}
	return set
}

func daysBetween(a, b time.Time) int {
	return int(math.Abs(a.Sub(b).Hours()) / 24)
}

// Result is one receipt's auto-match outcome.
type Result struct {
	ReceiptID     string
	TransactionID string
	Score         float64
}

// AutoMatch scans Pending receipts, computes candidates for each, and
// atomically matches any receipt whose top candidate clears
// autoMatchThreshold unambiguously (second-best below ambiguityGuardBelow).
// Ambiguous or low-scoring receipts are left Pending. Returns the matches
// made and the total receipts checked.
func (m *Matcher) AutoMatch(ctx context.Context) ([]Result, int, error) {
	receipts, err := m.store.ListUnmatchedReceipts(ctx)
	if err != nil {
		return nil, 0, err
	}

	var matched []Result
	for _, r := range receipts {
		candidates, err := m.Candidates(ctx, r.Parsed)
		if err != nil {
			return matched, len(receipts), err
		}
		if len(candidates) == 0 {
			continue
		}

		best := candidates[0]
		if best.Score < autoMatchThreshold {
			continue
		}
		if len(candidates) > 1 && candidates[1].Score >= ambiguityGuardBelow {
			continue
		}

		if err := m.store.MatchReceipt(ctx, r.ID, best.Transaction.ID, models.ReceiptStatusMatched); err != nil {
			return matched, len(receipts), err
		}
		matched = append(matched, Result{ReceiptID: r.ID, TransactionID: best.Transaction.ID, Score: best.Score})
	}

	return matched, len(receipts), nil
}
