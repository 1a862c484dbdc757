// Package alerts runs the fixed chain of waste detectors over the current
// subscription set: zombie, price-increase, duplicate-service, auto-cancel,
// resume, and spending-anomaly. Zombie, cancellation, and resume are
// naturally idempotent since they gate on subscription status transitions;
// price-increase additionally checks for an existing undismissed alert
// before firing again. Duplicate and spending-anomaly re-alert on every
// run while the underlying condition persists, since there is no
// standing-condition row to gate on.
package alerts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/honecore/core/internal/aiport"
	"github.com/honecore/core/internal/models"
	"github.com/honecore/core/internal/subscription"
)

// Config mirrors the detector thresholds. Zero-value Config is invalid;
// use DefaultConfig.
type Config struct {
	ZombieMinMonths int

	// PriceIncreasePercent and PriceIncreaseAbsolute are joint thresholds:
	// both must be exceeded for a price-increase alert to fire.
	PriceIncreasePercent         float64
	PriceIncreaseAbsolute        float64
	CancellationGraceDaysMonthly int

	SpendingIncreaseThreshold  float64
	SpendingDecreaseThreshold  float64
	SpendingAnomalyMinBaseline float64

	// AcknowledgmentStaleDays re-triggers a zombie alert for a subscription
	// whose acknowledgment has aged past this many days. 0 disables.
	AcknowledgmentStaleDays int
}

// DefaultConfig matches the detector's historical thresholds.
func DefaultConfig() Config {
	return Config{
		ZombieMinMonths:              3,
		PriceIncreasePercent:         5.0,
		PriceIncreaseAbsolute:        1.0,
		CancellationGraceDaysMonthly: 7,
		SpendingIncreaseThreshold:    30.0,
		SpendingDecreaseThreshold:    40.0,
		SpendingAnomalyMinBaseline:   50.0,
		AcknowledgmentStaleDays:      90,
	}
}

// Store is the persistence surface the detector chain needs. Satisfied by
// *store.Store.
type Store interface {
	ListSubscriptions(ctx context.Context, status *models.SubscriptionStatus) ([]models.Subscription, error)
	SetSubscriptionStatus(ctx context.Context, id string, status models.SubscriptionStatus) error
	ListAllTransactions(ctx context.Context) ([]models.Transaction, error)
	CreateAlert(ctx context.Context, kind models.AlertKind, subscriptionID *string, message string, dup *models.DuplicateAnalysis, spending *models.SpendingAnomalyData) (*models.Alert, error)
	ExistingAlertForSubscription(ctx context.Context, subscriptionID string, kind models.AlertKind) (bool, error)
	ListTags(ctx context.Context) ([]models.Tag, error)
	GetTagByPath(ctx context.Context, path string) (*models.Tag, error)
	CategorySpending(ctx context.Context, fromRFC3339, toRFC3339 string) ([]models.CategorySpending, error)
	TopMerchants(ctx context.Context, tagID, fromRFC3339, toRFC3339 string, limit int) ([]models.MerchantSpending, error)
	ListFeedbackNotes(ctx context.Context, targetType models.FeedbackTargetType, limit int) ([]string, error)

	// The remaining methods exist only to satisfy subscription.Store, so the
	// chain can run subscription detection as the first stage of DetectAll
	// without requiring callers to build a separate subscription.Detector.
	ListTransactionIDsWithTag(ctx context.Context, tagID string) (map[string]bool, error)
	GetMerchantSubscriptionCache(ctx context.Context, merchant string) (*models.MerchantSubscriptionCache, error)
	UpsertMerchantSubscriptionCache(ctx context.Context, merchant string, isSubscription bool, confidence float64, source models.MerchantCacheSource) error
	UpsertSubscription(ctx context.Context, accountID *string, merchant string, amount *float64, frequency *models.Frequency, firstSeen, lastSeen *time.Time) (*models.Subscription, error)
}

// Results tallies each detector's findings in one run, mirroring the
// session's DetectionCounters.
type Results struct {
	SubscriptionsFound        int
	ZombiesDetected           int
	PriceIncreasesDetected    int
	DuplicatesDetected        int
	AutoCancelled             int
	ResumesDetected           int
	SpendingAnomaliesDetected int
}

// DetectorChain runs the full detection pipeline. Construct with
// NewDetectorChain and functional options.
type DetectorChain struct {
	store   Store
	config  Config
	ai      aiport.Port
	agentic aiport.Port
	subs    *subscription.Detector
}

// Option configures a DetectorChain.
type Option func(*DetectorChain)

// WithConfig overrides the default thresholds.
func WithConfig(config Config) Option {
	return func(c *DetectorChain) { c.config = config }
}

// WithAIPort supplies a plain AI capability port, used for duplicate and
// spending-anomaly explanations when no agentic port is present, and for
// subscription classification.
func WithAIPort(ai aiport.Port) Option {
	return func(c *DetectorChain) { c.ai = ai }
}

// WithAgenticPort supplies an orchestrator-style port preferred over a
// plain AI port for duplicate and spending-anomaly analysis, since it may
// query transaction history to ground its claims.
func WithAgenticPort(agentic aiport.Port) Option {
	return func(c *DetectorChain) { c.agentic = agentic }
}

// NewDetectorChain builds a DetectorChain with DefaultConfig and no AI
// ports; apply Option values to customize.
func NewDetectorChain(store Store, opts ...Option) *DetectorChain {
	c := &DetectorChain{store: store, config: DefaultConfig()}
	for _, opt := range opts {
		opt(c)
	}
	c.subs = subscription.WithConfig(subscriptionStore{c.store}, c.ai, subscription.DefaultConfig())
	return c
}

// subscriptionStore adapts alerts.Store to subscription.Store; the two
// interfaces share every method subscription.Detector needs.
type subscriptionStore struct{ Store }

// DetectAll runs every detector in the fixed order: subscriptions →
// cancelled → resumed → zombies → price increases → duplicates → anomalies.
func (c *DetectorChain) DetectAll(ctx context.Context) (Results, error) {
	var r Results
	var err error

	if r.SubscriptionsFound, err = c.subs.Detect(ctx); err != nil {
		return r, err
	}
	if r.AutoCancelled, err = c.detectCancelled(ctx); err != nil {
		return r, err
	}
	if r.ResumesDetected, err = c.detectResumed(ctx); err != nil {
		return r, err
	}
	if r.ZombiesDetected, err = c.detectZombies(ctx); err != nil {
		return r, err
	}
	if r.PriceIncreasesDetected, err = c.detectPriceIncreases(ctx); err != nil {
		return r, err
	}
	if r.DuplicatesDetected, err = c.detectDuplicates(ctx); err != nil {
		return r, err
	}
	if r.SpendingAnomaliesDetected, err = c.detectSpendingAnomalies(ctx); err != nil {
		return r, err
	}
	return r, nil
}

// DetectZombiesOnly runs subscription detection followed by zombie
// detection only, for callers that want a single detector without the
// full chain.
func (c *DetectorChain) DetectZombiesOnly(ctx context.Context) (Results, error) {
	var r Results
	var err error
	if r.SubscriptionsFound, err = c.subs.Detect(ctx); err != nil {
		return r, err
	}
	if r.ZombiesDetected, err = c.detectZombies(ctx); err != nil {
		return r, err
	}
	return r, nil
}

// DetectIncreasesOnly runs subscription detection followed by
// price-increase detection only.
func (c *DetectorChain) DetectIncreasesOnly(ctx context.Context) (Results, error) {
	var r Results
	var err error
	if r.SubscriptionsFound, err = c.subs.Detect(ctx); err != nil {
		return r, err
	}
	if r.PriceIncreasesDetected, err = c.detectPriceIncreases(ctx); err != nil {
		return r, err
	}
	return r, nil
}

// DetectDuplicatesOnly runs subscription detection followed by duplicate
// detection only.
func (c *DetectorChain) DetectDuplicatesOnly(ctx context.Context) (Results, error) {
	var r Results
	var err error
	if r.SubscriptionsFound, err = c.subs.Detect(ctx); err != nil {
		return r, err
	}
	if r.DuplicatesDetected, err = c.detectDuplicates(ctx); err != nil {
		return r, err
	}
	return r, nil
}

// detectZombies flags every Active subscription at least ZombieMinMonths
// old as Zombie, unless acknowledged and not stale. A stale acknowledgment
// (older than AcknowledgmentStaleDays, when > 0) re-triggers with a
// distinct message.
func (c *DetectorChain) detectZombies(ctx context.Context) (int, error) {
	subs, err := c.store.ListSubscriptions(ctx, nil)
	if err != nil {
		return 0, err
	}
	now := time.Now()
	threshold := now.AddDate(0, 0, -c.config.ZombieMinMonths*30)

	count := 0
	for _, sub := range subs {
		if sub.Status != models.SubscriptionStatusActive {
			continue
		}
		if sub.FirstSeen == nil || sub.FirstSeen.After(threshold) {
			continue
		}

		stale := false
		if sub.UserAcknowledged && c.config.AcknowledgmentStaleDays > 0 && sub.AcknowledgedAt != nil {
			staleCutoff := now.AddDate(0, 0, -c.config.AcknowledgmentStaleDays)
			stale = sub.AcknowledgedAt.Before(staleCutoff)
		}
		if sub.UserAcknowledged && !stale {
			continue
		}

		if err := c.store.SetSubscriptionStatus(ctx, sub.ID, models.SubscriptionStatusZombie); err != nil {
			return count, err
		}

		amount := 0.0
		if sub.Amount != nil {
			amount = *sub.Amount
		}
		var message string
		if stale {
			message = fmt.Sprintf("It's been a while since you confirmed %s ($%.2f/mo). Still using it?", sub.Merchant, amount)
		} else {
			message = fmt.Sprintf("You've been paying $%.2f for %s since %s. Still using it?", amount, sub.Merchant, sub.FirstSeen.Format("January 2006"))
		}

		if _, err := c.store.CreateAlert(ctx, models.AlertKindZombie, &sub.ID, message, nil, nil); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// detectPriceIncreases compares each Active-or-Zombie subscription's
// current amount to the most recent charge older than 90 days, emitting a
// PriceIncrease alert only when both the absolute and relative thresholds
// are exceeded.
func (c *DetectorChain) detectPriceIncreases(ctx context.Context) (int, error) {
	subs, err := c.store.ListSubscriptions(ctx, nil)
	if err != nil {
		return 0, err
	}
	txns, err := c.store.ListAllTransactions(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().AddDate(0, 0, -90)

	count := 0
	for _, sub := range subs {
		if sub.Status != models.SubscriptionStatusActive && sub.Status != models.SubscriptionStatusZombie {
			continue
		}
		if sub.Amount == nil {
			continue
		}
		currentAmount := absFloat(*sub.Amount)

		var oldAmount float64
		var oldDate time.Time
		found := false
		for _, t := range txns {
			if canonicalMerchant(t) != sub.Merchant || !t.Date.Before(cutoff) {
				continue
			}
			if !found || t.Date.After(oldDate) {
				oldAmount = absFloat(t.Amount)
				oldDate = t.Date
				found = true
			}
		}
		if !found {
			continue
		}

		increase := currentAmount - oldAmount
		var increasePercent float64
		if oldAmount > 0 {
			increasePercent = (increase / oldAmount) * 100
		}

		if increase > c.config.PriceIncreaseAbsolute && increasePercent > c.config.PriceIncreasePercent {
			already, err := c.store.ExistingAlertForSubscription(ctx, sub.ID, models.AlertKindPriceIncrease)
			if err != nil {
				return count, err
			}
			if already {
				continue
			}
			message := fmt.Sprintf("%s increased from $%.2f to $%.2f (+%.1f%%)", sub.Merchant, oldAmount, currentAmount, increasePercent)
			if _, err := c.store.CreateAlert(ctx, models.AlertKindPriceIncrease, &sub.ID, message, nil, nil); err != nil {
				return count, err
			}
			count++
		}
	}
	return count, nil
}

// detectCancelled auto-cancels acknowledged subscriptions whose expected
// next charge (last_seen + cadence interval + grace) has passed without a
// new transaction. Unacknowledged subscriptions are never auto-cancelled —
// they must first be surfaced as Zombies.
func (c *DetectorChain) detectCancelled(ctx context.Context) (int, error) {
	subs, err := c.store.ListSubscriptions(ctx, nil)
	if err != nil {
		return 0, err
	}
	today := time.Now()

	count := 0
	for _, sub := range subs {
		if sub.Status == models.SubscriptionStatusCancelled || !sub.UserAcknowledged {
			continue
		}
		if sub.LastSeen == nil || sub.Frequency == nil {
			continue
		}

		intervalDays, graceDays := cadenceDays(*sub.Frequency, c.config.CancellationGraceDaysMonthly)
		expectedBy := sub.LastSeen.AddDate(0, 0, intervalDays+graceDays)

		if today.After(expectedBy) {
			if err := c.store.SetSubscriptionStatus(ctx, sub.ID, models.SubscriptionStatusCancelled); err != nil {
				return count, err
			}
			count++
		}
	}
	return count, nil
}

func cadenceDays(freq models.Frequency, monthlyGrace int) (interval, grace int) {
	switch freq {
	case models.FrequencyWeekly:
		return 7, 3
	case models.FrequencyYearly:
		return 365, 30
	default:
		return 30, monthlyGrace
	}
}

// detectResumed scans expense transactions newer than a Cancelled
// subscription's last_seen for a matching merchant, reactivating it and
// emitting a Resume alert when found.
func (c *DetectorChain) detectResumed(ctx context.Context) (int, error) {
	subs, err := c.store.ListSubscriptions(ctx, nil)
	if err != nil {
		return 0, err
	}
	txns, err := c.store.ListAllTransactions(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, sub := range subs {
		if sub.Status != models.SubscriptionStatusCancelled || sub.LastSeen == nil {
			continue
		}

		var latest *models.Transaction
		for i := range txns {
			t := txns[i]
			if t.Amount >= 0 {
				continue
			}
			if canonicalMerchant(t) != sub.Merchant || !t.Date.After(*sub.LastSeen) {
				continue
			}
			if latest == nil || t.Date.After(latest.Date) {
				latest = &t
			}
		}
		if latest == nil {
			continue
		}

		amount := absFloat(latest.Amount)
		if err := c.store.SetSubscriptionStatus(ctx, sub.ID, models.SubscriptionStatusActive); err != nil {
			return count, err
		}
		message := fmt.Sprintf("%s started charging again: $%.2f on %s", sub.Merchant, amount, latest.Date.Format("January 2, 2006"))
		if _, err := c.store.CreateAlert(ctx, models.AlertKindResume, &sub.ID, message, nil, nil); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// detectDuplicates groups Active/Zombie subscriptions by service category
// and emits one Duplicate alert per category with >= 2 subscriptions,
// attaching an AI-grounded overlap analysis when a port is available.
func (c *DetectorChain) detectDuplicates(ctx context.Context) (int, error) {
	subs, err := c.store.ListSubscriptions(ctx, nil)
	if err != nil {
		return 0, err
	}
	tags, err := c.store.ListTags(ctx)
	if err != nil {
		return 0, err
	}

	byCategory := make(map[string][]models.Subscription)
	var order []string
	for _, sub := range subs {
		if sub.Status != models.SubscriptionStatusActive && sub.Status != models.SubscriptionStatusZombie {
			continue
		}
		category, ok := categorizeByTags(sub.Merchant, tags)
		if !ok {
			category, ok = subscription.CategorizeFallback(sub.Merchant)
			if !ok {
				continue
			}
		}
		if _, seen := byCategory[category]; !seen {
			order = append(order, category)
		}
		byCategory[category] = append(byCategory[category], sub)
	}

	count := 0
	for _, category := range order {
		group := byCategory[category]
		if len(group) < 2 {
			continue
		}

		totalCost := 0.0
		names := make([]string, len(group))
		for i, s := range group {
			if s.Amount != nil {
				totalCost += *s.Amount
			}
			names[i] = s.Merchant
		}

		message := fmt.Sprintf("You have %d %s services: %s. Total: $%.2f/mo", len(group), category, strings.Join(names, ", "), totalCost)
		analysis := c.analyzeDuplicates(ctx, category, names)

		if _, err := c.store.CreateAlert(ctx, models.AlertKindDuplicate, &group[0].ID, message, analysis, nil); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// categorizeByTags looks for a child of the "Subscriptions" tag whose
// auto-pattern contains the merchant name, the tag-tree-derived
// counterpart to subscription.CategorizeFallback.
func categorizeByTags(merchant string, tags []models.Tag) (string, bool) {
	var subscriptionsID string
	for _, t := range tags {
		if t.ParentID == nil && t.Name == "Subscriptions" {
			subscriptionsID = t.ID
			break
		}
	}
	if subscriptionsID == "" {
		return "", false
	}
	merchantUpper := strings.ToUpper(merchant)
	for _, t := range tags {
		if t.ParentID == nil || *t.ParentID != subscriptionsID || t.AutoPatterns == nil {
			continue
		}
		for _, p := range strings.Split(*t.AutoPatterns, "|") {
			if strings.Contains(merchantUpper, strings.ToUpper(p)) {
				return t.Name, true
			}
		}
	}
	return "", false
}

func (c *DetectorChain) analyzeDuplicates(ctx context.Context, category string, names []string) *models.DuplicateAnalysis {
	if c.agentic != nil {
		if analysis, ok := c.agenticDuplicateAnalysis(ctx, category, names); ok {
			return analysis
		}
		return nil
	}
	if c.ai == nil {
		return nil
	}
	feedback, _ := c.store.ListFeedbackNotes(ctx, models.FeedbackTargetInsight, 5)
	result, err := c.ai.AnalyzeDuplicateServices(ctx, category, names, feedback)
	if err != nil {
		return nil
	}
	return &models.DuplicateAnalysis{Overlap: result.Overlap, UniqueFeatures: result.UniqueFeatures}
}

// detectSpendingAnomalies compares current-month spending by tag to a
// trailing three-month baseline, emitting a SpendingAnomaly alert when the
// percent change crosses either threshold for a category whose baseline
// monthly average meets SpendingAnomalyMinBaseline.
func (c *DetectorChain) detectSpendingAnomalies(ctx context.Context) (int, error) {
	now := time.Now()
	currentMonthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	baselineEnd := currentMonthStart.AddDate(0, 0, -1)
	baselineStart := baselineEnd.AddDate(0, 0, -90)

	current, err := c.store.CategorySpending(ctx, rfc3339(currentMonthStart), rfc3339(now.AddDate(0, 0, 1)))
	if err != nil {
		return 0, err
	}
	baseline, err := c.store.CategorySpending(ctx, rfc3339(baselineStart), rfc3339(baselineEnd.AddDate(0, 0, 1)))
	if err != nil {
		return 0, err
	}
	baselineByTag := make(map[string]models.CategorySpending, len(baseline))
	for _, b := range baseline {
		baselineByTag[b.TagID] = b
	}

	count := 0
	for _, cur := range current {
		base, ok := baselineByTag[cur.TagID]
		if !ok {
			continue
		}
		baselineMonthlyAvg := absFloat(base.Amount) / 3.0
		if baselineMonthlyAvg < c.config.SpendingAnomalyMinBaseline {
			continue
		}
		currentAmount := absFloat(cur.Amount)
		if baselineMonthlyAvg <= 0 {
			continue
		}
		percentChange := ((currentAmount - baselineMonthlyAvg) / baselineMonthlyAvg) * 100

		isIncrease := percentChange > c.config.SpendingIncreaseThreshold
		isDecrease := percentChange < -c.config.SpendingDecreaseThreshold
		if !isIncrease && !isDecrease {
			continue
		}

		data := &models.SpendingAnomalyData{
			TagID:          cur.TagID,
			TagName:        cur.TagName,
			BaselineAmount: baselineMonthlyAvg,
			CurrentAmount:  currentAmount,
			PercentChange:  percentChange,
		}
		data.Explanation = c.explainSpendingChange(ctx, cur.TagID, cur.TagName, baselineMonthlyAvg, currentAmount, percentChange, currentMonthStart, now, baselineStart, baselineEnd)

		if _, err := c.store.CreateAlert(ctx, models.AlertKindSpendingAnomaly, nil, "", nil, data); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func (c *DetectorChain) explainSpendingChange(ctx context.Context, tagID, tagName string, baseline, current, percentChange float64, currentStart, currentEnd, baselineStart, baselineEnd time.Time) *models.SpendingChangeExplanation {
	if c.agentic != nil {
		if exp, ok := c.agenticSpendingExplanation(ctx, tagName, baseline, current, percentChange); ok {
			return exp
		}
		return nil
	}
	if c.ai == nil {
		return nil
	}

	topMerchants, err := c.store.TopMerchants(ctx, tagID, rfc3339(currentStart), rfc3339(currentEnd.AddDate(0, 0, 1)), 5)
	if err != nil {
		return nil
	}
	baselineMerchants, err := c.store.TopMerchants(ctx, tagID, rfc3339(baselineStart), rfc3339(baselineEnd.AddDate(0, 0, 1)), 10)
	if err != nil {
		return nil
	}
	baselineNames := make(map[string]bool, len(baselineMerchants))
	for _, m := range baselineMerchants {
		baselineNames[strings.ToLower(m.Merchant)] = true
	}

	var topNames, newMerchants []string
	for _, m := range topMerchants {
		topNames = append(topNames, m.Merchant)
		if !baselineNames[strings.ToLower(m.Merchant)] {
			newMerchants = append(newMerchants, m.Merchant)
		}
	}

	feedback, _ := c.store.ListFeedbackNotes(ctx, models.FeedbackTargetInsight, 5)
	result, err := c.ai.ExplainSpendingChange(ctx, tagName, baseline, current, topNames, newMerchants, feedback)
	if err != nil {
		return nil
	}
	return &models.SpendingChangeExplanation{
		Summary:    result.Summary,
		Reasons:    result.Reasons,
		Model:      c.ai.Model(),
		AnalyzedAt: time.Now(),
	}
}

// agenticDuplicateAnalysis asks the orchestrator to research the grouped
// services via its tools and returns a structured overlap analysis parsed
// from its line-prefixed response.
func (c *DetectorChain) agenticDuplicateAnalysis(ctx context.Context, category string, names []string) (*models.DuplicateAnalysis, bool) {
	system := "You analyze subscription overlap for duplicate recurring services. " +
		"Respond with OVERLAP: <one sentence>, then for each service a SERVICE: <name> " +
		"line followed by an UNIQUE: <its distinguishing feature> line."
	user := fmt.Sprintf("Category: %s\nServices: %s", category, strings.Join(names, ", "))

	response, err := c.agentic.Execute(ctx, system, user, nil)
	if err != nil {
		return nil, false
	}
	analysis := parseDuplicateAnalysis(response, names)
	if analysis.Overlap == "" {
		return nil, false
	}
	return &analysis, true
}

// agenticSpendingExplanation asks the orchestrator to investigate a
// category's spending change and returns a structured narrative parsed
// from its line-prefixed response.
func (c *DetectorChain) agenticSpendingExplanation(ctx context.Context, category string, baseline, current, percentChange float64) (*models.SpendingChangeExplanation, bool) {
	direction := "increased"
	if percentChange < 0 {
		direction = "decreased"
	}
	system := "You investigate month-over-month spending changes in a budgeting app. " +
		"Respond with SUMMARY: <one sentence>, then up to three REASON 1:, REASON 2:, REASON 3: lines."
	user := fmt.Sprintf("Category: %s\nSpending %s by %.0f%%\nBaseline: $%.2f/mo\nCurrent: $%.2f",
		category, direction, absFloat(percentChange), baseline, current)

	response, err := c.agentic.Execute(ctx, system, user, nil)
	if err != nil {
		return nil, false
	}
	summary, reasons := parseSpendingExplanation(response)
	if summary == "" {
		return nil, false
	}
	return &models.SpendingChangeExplanation{
		Summary:    summary,
		Reasons:    reasons,
		Model:      c.agentic.Model(),
		AnalyzedAt: time.Now(),
	}, true
}

// parseDuplicateAnalysis extracts OVERLAP:/SERVICE:/UNIQUE: lines from an
// orchestrator response, falling back to a first-sentence summary with
// placeholder per-service features when the model didn't follow the format.
func parseDuplicateAnalysis(response string, services []string) models.DuplicateAnalysis {
	var overlap string
	var features []models.DuplicateServiceFeature
	var currentService string

	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "OVERLAP:"):
			overlap = strings.TrimSpace(strings.TrimPrefix(line, "OVERLAP:"))
		case strings.HasPrefix(line, "SERVICE:"):
			currentService = strings.TrimSpace(strings.TrimPrefix(line, "SERVICE:"))
		case strings.HasPrefix(line, "UNIQUE:"):
			if currentService != "" {
				features = append(features, models.DuplicateServiceFeature{
					Service: currentService,
					Unique:  strings.TrimSpace(strings.TrimPrefix(line, "UNIQUE:")),
				})
				currentService = ""
			}
		}
	}

	if overlap == "" && strings.TrimSpace(response) != "" {
		overlap = firstSentence(response)
		for _, s := range services {
			features = append(features, models.DuplicateServiceFeature{Service: s, Unique: "See full analysis for details"})
		}
	}
	return models.DuplicateAnalysis{Overlap: overlap, UniqueFeatures: features}
}

// parseSpendingExplanation extracts SUMMARY:/REASON N: lines from an
// orchestrator response, falling back to a first-sentence summary.
func parseSpendingExplanation(response string) (string, []string) {
	var summary string
	var reasons []string

	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "SUMMARY:"):
			summary = strings.TrimSpace(strings.TrimPrefix(line, "SUMMARY:"))
		case strings.HasPrefix(line, "REASON 1:"):
			reasons = append(reasons, strings.TrimSpace(strings.TrimPrefix(line, "REASON 1:")))
		case strings.HasPrefix(line, "REASON 2:"):
			reasons = append(reasons, strings.TrimSpace(strings.TrimPrefix(line, "REASON 2:")))
		case strings.HasPrefix(line, "REASON 3:"):
			reasons = append(reasons, strings.TrimSpace(strings.TrimPrefix(line, "REASON 3:")))
		}
	}

	if summary == "" && strings.TrimSpace(response) != "" {
		summary = firstSentence(response)
	}
	return summary, reasons
}

// firstSentence truncates to the first '.', '!', or '?' and, when that is
// longer than 200 bytes, keeps the first 200 followed by "...", mirroring
// the fallback used when structured parsing finds nothing.
func firstSentence(response string) string {
	sentence := strings.TrimSpace(response)
	if i := strings.IndexAny(response, ".!?"); i >= 0 {
		sentence = strings.TrimSpace(response[:i])
	}
	if len(sentence) > 200 {
		return sentence[:200] + "..."
	}
	return sentence
}

func canonicalMerchant(t models.Transaction) string {
	if t.MerchantNormalized != nil && *t.MerchantNormalized != "" {
		return *t.MerchantNormalized
	}
	return normalizeMerchantFallback(t.Description)
}

func normalizeMerchantFallback(description string) string {
	upper := strings.ToUpper(description)
	upper = strings.ReplaceAll(upper, "*", " ")
	upper = strings.ReplaceAll(upper, "#", " ")
	fields := strings.Fields(upper)
	if len(fields) > 3 {
		fields = fields[:3]
	}
	return strings.Join(fields, " ")
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func rfc3339(t time.Time) string {
	return t.Format(time.RFC3339)
}
