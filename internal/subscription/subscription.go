// Package subscription groups transactions by (account, merchant) and
// detects recurring-charge patterns, upserting the results as
// models.Subscription rows. Detection re-runs on every import: it is
// idempotent because UpsertSubscription refreshes an existing row rather
// than duplicating it.
package subscription

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/honecore/core/internal/aiport"
	"github.com/honecore/core/internal/honeerr"
	"github.com/honecore/core/internal/models"
)

// Config holds the strict/relaxed detection thresholds. Zero-value Config
// is invalid; use DefaultConfig.
type Config struct {
	// StrictAmountVariance bounds amount deviation from the median (5%).
	StrictAmountVariance float64
	// StrictIntervalConsistency is the fraction of intervals that must fall
	// within tolerance of the detected cadence (70%).
	StrictIntervalConsistency float64

	// RelaxedMinTransactions is the minimum group size used once the AI
	// port has confirmed the merchant as a subscription service (2).
	RelaxedMinTransactions     int
	RelaxedAmountVariance      float64
	RelaxedIntervalConsistency float64

	// OllamaConfidenceThreshold is the minimum confidence from
	// IsSubscriptionService required to use relaxed detection (0.7).
	OllamaConfidenceThreshold float64
}

// DefaultConfig matches the thresholds the detector has always used.
func DefaultConfig() Config {
	return Config{
		StrictAmountVariance:       0.05,
		StrictIntervalConsistency:  0.7,
		RelaxedMinTransactions:     2,
		RelaxedAmountVariance:      0.50,
		RelaxedIntervalConsistency: 0.50,
		OllamaConfidenceThreshold:  0.7,
	}
}

// Store is the persistence surface the detector needs. Satisfied by
// *store.Store.
type Store interface {
	ListAllTransactions(ctx context.Context) ([]models.Transaction, error)
	GetTagByPath(ctx context.Context, path string) (*models.Tag, error)
	ListTransactionIDsWithTag(ctx context.Context, tagID string) (map[string]bool, error)
	GetMerchantSubscriptionCache(ctx context.Context, merchant string) (*models.MerchantSubscriptionCache, error)
	UpsertMerchantSubscriptionCache(ctx context.Context, merchant string, isSubscription bool, confidence float64, source models.MerchantCacheSource) error
	UpsertSubscription(ctx context.Context, accountID *string, merchant string, amount *float64, frequency *models.Frequency, firstSeen, lastSeen *time.Time) (*models.Subscription, error)
}

// Detector groups transactions and classifies recurring-charge patterns.
type Detector struct {
	store  Store
	ai     aiport.Port
	config Config
}

// New returns a Detector using DefaultConfig. ai may be nil, in which case
// every group is evaluated with strict thresholds only.
func New(store Store, ai aiport.Port) *Detector {
	return &Detector{store: store, ai: ai, config: DefaultConfig()}
}

// WithConfig returns a Detector using a caller-supplied threshold set.
func WithConfig(store Store, ai aiport.Port, config Config) *Detector {
	return &Detector{store: store, ai: ai, config: config}
}

// group is one (account, merchant) bucket of candidate transactions.
type group struct {
	accountID *string
	merchant  string
	txns      []models.Transaction
}

// Detect scans all non-archived expense transactions, groups them by
// account and canonical merchant, and upserts a subscription for every
// group whose pattern passes strict or AI-relaxed detection. It returns
// the number of subscriptions created or refreshed.
func (d *Detector) Detect(ctx context.Context) (int, error) {
	txns, err := d.store.ListAllTransactions(ctx)
	if err != nil {
		return 0, err
	}
	if len(txns) == 0 {
		return 0, nil
	}

	excluded, err := d.feesTransactionIDs(ctx)
	if err != nil {
		return 0, err
	}

	groups := groupByAccountMerchant(txns, excluded)

	count := 0
	for _, g := range groups {
		if len(g.txns) < 2 {
			continue
		}
		info, ok, err := d.classify(ctx, g)
		if err != nil {
			return count, err
		}
		if !ok {
			continue
		}
		amount := info.amount
		freq := info.frequency
		if _, err := d.store.UpsertSubscription(ctx, g.accountID, g.merchant, &amount, &freq, &info.firstSeen, &info.lastSeen); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// feesTransactionIDs resolves Financial.Fees and returns the transaction
// IDs tagged under it, so bank-internal charges never get treated as
// merchant subscriptions. Absence of the tag (e.g. an un-seeded tag tree)
// is not an error — it simply means nothing is excluded.
func (d *Detector) feesTransactionIDs(ctx context.Context) (map[string]bool, error) {
	tag, err := d.store.GetTagByPath(ctx, "Financial.Fees")
	if err != nil {
		if honeerr.Is(err, honeerr.KindNotFound) {
			return nil, nil
		}
		return nil, err
	}
	ids, err := d.store.ListTransactionIDsWithTag(ctx, tag.ID)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func groupByAccountMerchant(txns []models.Transaction, excluded map[string]bool) []*group {
	index := make(map[string]*group)
	var order []string

	for _, t := range txns {
		if t.Amount >= 0 {
			continue
		}
		if excluded != nil && excluded[t.ID] {
			continue
		}
		merchant := canonicalMerchant(t)
		key := merchant
		if t.AccountID != "" {
			key = t.AccountID + "\x00" + merchant
		}
		g, ok := index[key]
		if !ok {
			accountID := t.AccountID
			g = &group{accountID: &accountID, merchant: merchant}
			index[key] = g
			order = append(order, key)
		}
		g.txns = append(g.txns, t)
	}

	out := make([]*group, 0, len(order))
	for _, key := range order {
		out = append(out, index[key])
	}
	return out
}

func canonicalMerchant(t models.Transaction) string {
	if t.MerchantNormalized != nil && *t.MerchantNormalized != "" {
		return *t.MerchantNormalized
	}
	return normalizeMerchant(t.Description)
}

// normalizeMerchant is the cheap fallback normalizer: uppercase, collapse
// '*'/'#' to spaces, take the first three tokens.
func normalizeMerchant(description string) string {
	upper := strings.ToUpper(description)
	upper = strings.ReplaceAll(upper, "*", " ")
	upper = strings.ReplaceAll(upper, "#", " ")
	fields := strings.Fields(upper)
	if len(fields) > 3 {
		fields = fields[:3]
	}
	return strings.Join(fields, " ")
}

// classify decides whether g represents a subscription, consulting the
// merchant cache and the AI port per spec: cached retail merchants are
// skipped unconditionally, cached subscriptions use strict thresholds, and
// uncached merchants are classified (when an AI port is available) before
// falling through to strict detection.
func (d *Detector) classify(ctx context.Context, g *group) (patternInfo, bool, error) {
	cached, err := d.store.GetMerchantSubscriptionCache(ctx, g.merchant)
	if err != nil && !honeerr.Is(err, honeerr.KindNotFound) {
		return patternInfo{}, false, err
	}
	if err == nil {
		if !cached.IsSubscription {
			return patternInfo{}, false, nil
		}
		info, ok := detectStrict(g.txns, d.config)
		return info, ok, nil
	}

	relaxed := false
	if d.ai != nil {
		judgement, err := d.ai.IsSubscriptionService(ctx, g.merchant)
		if err == nil {
			cacheErr := d.store.UpsertMerchantSubscriptionCache(ctx, g.merchant, judgement.IsSubscription, judgement.Confidence, models.MerchantCacheSourceOllama)
			if cacheErr != nil {
				return patternInfo{}, false, cacheErr
			}
			if !judgement.IsSubscription {
				return patternInfo{}, false, nil
			}
			relaxed = judgement.Confidence >= d.config.OllamaConfidenceThreshold
		}
	}

	if relaxed {
		info, ok := detectRelaxed(g.txns, d.config)
		return info, ok, nil
	}
	info, ok := detectStrict(g.txns, d.config)
	return info, ok, nil
}

type patternInfo struct {
	amount    float64
	frequency models.Frequency
	firstSeen time.Time
	lastSeen  time.Time
}

// detectStrict requires >= 3 transactions, similar descriptions, amounts
// within StrictAmountVariance of the median, and a cadence whose intervals
// are at least StrictIntervalConsistency consistent.
func detectStrict(txns []models.Transaction, cfg Config) (patternInfo, bool) {
	if len(txns) < 3 {
		return patternInfo{}, false
	}
	return detectPattern(txns, cfg.StrictAmountVariance, cfg.StrictIntervalConsistency, tolerancesStrict)
}

// detectRelaxed is used only once the AI port has confirmed the merchant
// as a subscription service with sufficient confidence: a smaller group,
// wider amount variance, and looser interval tolerance still qualify.
func detectRelaxed(txns []models.Transaction, cfg Config) (patternInfo, bool) {
	if len(txns) < cfg.RelaxedMinTransactions {
		return patternInfo{}, false
	}
	return detectPattern(txns, cfg.RelaxedAmountVariance, cfg.RelaxedIntervalConsistency, tolerancesRelaxed)
}

// cadence is one (frequency, expected interval, tolerance) band, tried in
// ascending order of average interval.
type cadence struct {
	frequency        models.Frequency
	expectedInterval float64
	tolerance        float64
}

func tolerancesStrict(avgInterval float64) (cadence, bool) {
	switch {
	case avgInterval < 10:
		return cadence{models.FrequencyWeekly, 7, 3}, true
	case avgInterval < 45:
		return cadence{models.FrequencyMonthly, 30, 7}, true
	case avgInterval < 400:
		return cadence{models.FrequencyYearly, 365, 30}, true
	default:
		return cadence{}, false
	}
}

func tolerancesRelaxed(avgInterval float64) (cadence, bool) {
	switch {
	case avgInterval < 10:
		return cadence{models.FrequencyWeekly, 7, 3}, true
	case avgInterval < 45:
		return cadence{models.FrequencyMonthly, 30, 10}, true
	case avgInterval < 400:
		return cadence{models.FrequencyYearly, 365, 45}, true
	default:
		return cadence{}, false
	}
}

func detectPattern(txns []models.Transaction, amountVariance, intervalConsistency float64, tolerances func(float64) (cadence, bool)) (patternInfo, bool) {
	if !descriptionsAreSimilar(txns) {
		return patternInfo{}, false
	}

	sorted := make([]models.Transaction, len(txns))
	copy(sorted, txns)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	amounts := make([]float64, len(sorted))
	for i, t := range sorted {
		amounts[i] = abs(t.Amount)
	}
	medianAmount := median(amounts)
	if medianAmount < 0.01 {
		return patternInfo{}, false
	}
	for _, a := range amounts {
		if abs(a-medianAmount)/medianAmount >= amountVariance {
			return patternInfo{}, false
		}
	}

	intervals := make([]float64, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		intervals = append(intervals, sorted[i].Date.Sub(sorted[i-1].Date).Hours()/24)
	}
	if len(intervals) == 0 {
		return patternInfo{}, false
	}
	var sum float64
	for _, iv := range intervals {
		sum += iv
	}
	avg := sum / float64(len(intervals))

	band, ok := tolerances(avg)
	if !ok {
		return patternInfo{}, false
	}

	consistent := 0
	for _, iv := range intervals {
		if abs(iv-band.expectedInterval) <= band.tolerance {
			consistent++
		}
	}
	if float64(consistent)/float64(len(intervals)) < intervalConsistency {
		return patternInfo{}, false
	}

	return patternInfo{
		amount:    medianAmount,
		frequency: band.frequency,
		firstSeen: sorted[0].Date,
		lastSeen:  sorted[len(sorted)-1].Date,
	}, true
}

var walletPrefixes = []string{"APLPAY ", "APPLEPAY ", "SP * ", "SP *", "SQ * ", "SQ *", "TST* ", "TST*"}

// descriptionsAreSimilar guards against grouping unrelated merchants that
// happen to share a normalized key (the "different stores in the same
// city" case): at least 70% of descriptions must share the same first two
// significant tokens once wallet prefixes and store-number noise are
// stripped.
func descriptionsAreSimilar(txns []models.Transaction) bool {
	if len(txns) < 2 {
		return true
	}

	counts := make(map[string]int, len(txns))
	best := 0
	for _, t := range txns {
		key := cleanDescription(t.Description)
		counts[key]++
		if counts[key] > best {
			best = counts[key]
		}
	}
	return float64(best)/float64(len(txns)) >= 0.7
}

func cleanDescription(desc string) string {
	upper := strings.ToUpper(desc)
	for _, p := range walletPrefixes {
		if strings.HasPrefix(upper, p) {
			upper = strings.TrimPrefix(upper, p)
			break
		}
	}
	upper = strings.ReplaceAll(upper, "*", " ")
	upper = strings.ReplaceAll(upper, "#", " ")

	fields := strings.Fields(upper)
	var significant []string
	for _, f := range fields {
		if isAllDigits(f) {
			continue
		}
		significant = append(significant, f)
		if len(significant) == 2 {
			break
		}
	}
	return strings.Join(significant, " ")
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// categoryKeywords is the fallback categorizer used by the duplicate
// detector when the tag tree has no matching auto-pattern for a
// merchant's category.
var categoryKeywords = []struct {
	category string
	keywords []string
}{
	{"Streaming", []string{"NETFLIX", "HULU", "DISNEY", "HBO", "PARAMOUNT", "PEACOCK", "PRIME VIDEO", "APPLE TV"}},
	{"Music", []string{"SPOTIFY", "APPLE MUSIC", "TIDAL", "PANDORA", "YOUTUBE MUSIC"}},
	{"CloudStorage", []string{"ICLOUD", "GOOGLE ONE", "DROPBOX", "ONEDRIVE", "BOX.COM"}},
	{"News", []string{"NYT", "NEW YORK TIMES", "WSJ", "WASHINGTON POST", "MEDIUM", "SUBSTACK"}},
	{"Fitness", []string{"PELOTON", "STRAVA", "FITBIT", "MYFITNESSPAL", "HEADSPACE", "CALM"}},
}

// CategorizeFallback classifies a merchant into a duplicate-detection
// category using a hard-coded keyword table, used when the tag tree has no
// auto-pattern hit for the merchant.
func CategorizeFallback(merchant string) (string, bool) {
	m := strings.ToUpper(merchant)
	for _, c := range categoryKeywords {
		for _, kw := range c.keywords {
			if strings.Contains(m, kw) {
				return c.category, true
			}
		}
	}
	return "", false
}
