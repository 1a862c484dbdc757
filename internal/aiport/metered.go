package aiport

import (
	"context"
	"fmt"
	"time"

	"github.com/honecore/core/internal/models"
)

// Metered wraps a Port so every call records latency, success, confidence,
// input, and result into the metrics table before returning — per-capability
// so AIMetricSuccessRate can later decide whether to keep routing to AI or
// fall back to deterministic heuristics.
type Metered struct {
	inner Port
	store MetricRecorder
	clock Clock
}

// NewMetered returns a Port that records every invocation of inner via store.
func NewMetered(inner Port, store MetricRecorder) *Metered {
	return &Metered{inner: inner, store: store, clock: realClock{}}
}

const (
	capabilityClassifyMerchant    = "classify_merchant"
	capabilityNormalizeMerchant   = "normalize_merchant"
	capabilityIsSubscription      = "is_subscription_service"
	capabilityEvaluateReceipt     = "evaluate_receipt_match"
	capabilityAnalyzeDuplicates   = "analyze_duplicate_services"
	capabilityExplainSpendChange  = "explain_spending_change"
	capabilityExecute             = "execute"
)

// emit persists one invocation's outcome. Metric-recording failures are
// swallowed — a metrics-table hiccup must never surface as a capability
// failure to the caller.
func (m *Metered) emit(ctx context.Context, capability string, start time.Time, err error, confidence *float64, input, result string) {
	latency := m.clock.Now().Sub(start).Milliseconds()
	_ = m.store.RecordAIMetricDetailed(ctx, capability, err == nil, latency, confidence, input, result)
}

func (m *Metered) ClassifyMerchant(ctx context.Context, description string) (MerchantClassification, error) {
	start := m.clock.Now()
	result, err := m.inner.ClassifyMerchant(ctx, description)
	m.emit(ctx, capabilityClassifyMerchant, start, err, confidencePtr(err, 0.7), description, classificationText(result, err))
	return result, err
}

func (m *Metered) NormalizeMerchant(ctx context.Context, description string) (string, error) {
	start := m.clock.Now()
	result, err := m.inner.NormalizeMerchant(ctx, description)
	m.emit(ctx, capabilityNormalizeMerchant, start, err, confidencePtr(err, 0.7), description, result)
	return result, err
}

func (m *Metered) IsSubscriptionService(ctx context.Context, merchant string) (SubscriptionJudgement, error) {
	start := m.clock.Now()
	result, err := m.inner.IsSubscriptionService(ctx, merchant)
	conf := confidencePtr(err, result.Confidence)
	m.emit(ctx, capabilityIsSubscription, start, err, conf, merchant, fmt.Sprintf("subscription=%v reason=%s", result.IsSubscription, result.Reason))
	return result, err
}

func (m *Metered) EvaluateReceiptMatch(ctx context.Context, receipt models.ParsedReceipt, txn models.Transaction) (ReceiptMatchJudgement, error) {
	start := m.clock.Now()
	result, err := m.inner.EvaluateReceiptMatch(ctx, receipt, txn)
	conf := confidencePtr(err, result.Confidence)
	receiptMerchant := ""
	if receipt.Merchant != nil {
		receiptMerchant = *receipt.Merchant
	}
	input := fmt.Sprintf("receipt=%s txn=%s", receiptMerchant, txn.Description)
	m.emit(ctx, capabilityEvaluateReceipt, start, err, conf, input, fmt.Sprintf("same_purchase=%v reason=%s", result.SamePurchase, result.Reason))
	return result, err
}

func (m *Metered) AnalyzeDuplicateServices(ctx context.Context, category string, names []string, feedback []string) (DuplicateAnalysis, error) {
	start := m.clock.Now()
	result, err := m.inner.AnalyzeDuplicateServices(ctx, category, names, feedback)
	m.emit(ctx, capabilityAnalyzeDuplicates, start, err, confidencePtr(err, 0.7), fmt.Sprintf("%s: %v", category, names), result.Overlap)
	return result, err
}

func (m *Metered) ExplainSpendingChange(ctx context.Context, category string, baseline, current float64, topMerchants, newMerchants []string, feedback []string) (SpendingExplanation, error) {
	start := m.clock.Now()
	result, err := m.inner.ExplainSpendingChange(ctx, category, baseline, current, topMerchants, newMerchants, feedback)
	input := fmt.Sprintf("%s: %.2f -> %.2f", category, baseline, current)
	m.emit(ctx, capabilityExplainSpendChange, start, err, confidencePtr(err, 0.7), input, result.Summary)
	return result, err
}

func (m *Metered) Execute(ctx context.Context, systemPrompt, userPrompt string, tools []Tool) (string, error) {
	start := m.clock.Now()
	result, err := m.inner.Execute(ctx, systemPrompt, userPrompt, tools)
	m.emit(ctx, capabilityExecute, start, err, confidencePtr(err, 0.7), userPrompt, result)
	return result, err
}

func (m *Metered) Model() string { return m.inner.Model() }

func classificationText(c MerchantClassification, err error) string {
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%s -> %s", c.Merchant, c.Category)
}

func confidencePtr(err error, confidence float64) *float64 {
	if err != nil {
		return nil
	}
	c := confidence
	return &c
}
