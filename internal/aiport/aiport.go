// Package aiport defines the narrow, deterministic-shaped interface the
// tag engine, subscription detector, and receipt matcher consume for
// AI-assisted decisions. Implementations (Ollama, an agentic orchestrator,
// or a deterministic mock) live outside this package and are swapped in by
// the caller; aiport itself only shapes the contract and wraps every call
// with latency measurement and metric capture.
package aiport

import (
	"context"
	"time"

	"github.com/honecore/core/internal/models"
)

// MerchantClassification is the result of classify_merchant: a canonical
// merchant name and a coarse category the tag engine maps to a tag path.
type MerchantClassification struct {
	Merchant string
	Category string
}

// SubscriptionJudgement is the result of is_subscription_service.
type SubscriptionJudgement struct {
	IsSubscription bool
	Confidence     float64
	Reason         string
}

// ReceiptMatchJudgement is the result of evaluate_receipt_match.
type ReceiptMatchJudgement struct {
	SamePurchase bool
	Confidence   float64
	Reason       string
}

// DuplicateAnalysis is the result of analyze_duplicate_services.
type DuplicateAnalysis struct {
	Overlap        string
	UniqueFeatures []models.DuplicateServiceFeature
}

// SpendingExplanation is the result of explain_spending_change.
type SpendingExplanation struct {
	Summary string
	Reasons []string // at most 3
}

// Tool is a read-only query tool an agentic Execute implementation may call
// back into. Name and Description are exposed to the model; Call is invoked
// with the model-supplied arguments and returns text to feed back.
type Tool struct {
	Name        string
	Description string
	Call        func(ctx context.Context, args map[string]any) (string, error)
}

// Port is the capability surface the core consumes. Every method is
// expected to fail with a transport-classified error that callers degrade
// on rather than propagate — a Port outage should never abort an import.
type Port interface {
	// ClassifyMerchant canonicalizes a raw transaction description into a
	// merchant name and coarse category.
	ClassifyMerchant(ctx context.Context, description string) (MerchantClassification, error)

	// NormalizeMerchant canonicalizes a raw description into a display name
	// without attempting categorization.
	NormalizeMerchant(ctx context.Context, description string) (string, error)

	// IsSubscriptionService judges whether a merchant name names a
	// recurring service.
	IsSubscriptionService(ctx context.Context, merchant string) (SubscriptionJudgement, error)

	// EvaluateReceiptMatch judges whether a parsed receipt and a
	// transaction describe the same purchase.
	EvaluateReceiptMatch(ctx context.Context, receipt models.ParsedReceipt, txn models.Transaction) (ReceiptMatchJudgement, error)

	// AnalyzeDuplicateServices explains the overlap between subscriptions
	// grouped into the same category, given optional prior user feedback.
	AnalyzeDuplicateServices(ctx context.Context, category string, names []string, feedback []string) (DuplicateAnalysis, error)

	// ExplainSpendingChange narrates why spending in a tag category moved
	// from baseline to current.
	ExplainSpendingChange(ctx context.Context, category string, baseline, current float64, topMerchants, newMerchants []string, feedback []string) (SpendingExplanation, error)

	// Execute is the optional agentic escape hatch for richer analyses that
	// may call back into read-only query tools. Implementations that don't
	// support it return honeerr.Transport-classified "unsupported".
	Execute(ctx context.Context, systemPrompt, userPrompt string, tools []Tool) (string, error)

	// Model identifies the backing model for metric labeling, e.g.
	// "llama3.1:8b" or "mock".
	Model() string
}

// MetricRecorder persists one AI invocation's outcome. Satisfied by
// *store.Store's RecordAIMetricDetailed.
type MetricRecorder interface {
	RecordAIMetricDetailed(ctx context.Context, capability string, success bool, durationMS int64, confidence *float64, inputText, resultText string) error
}

// Clock abstracts time.Now so tests can control latency measurement
// deterministically; production code uses realClock.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
