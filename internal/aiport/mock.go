package aiport

import (
	"context"
	"errors"
	"strings"

	"github.com/honecore/core/internal/honeerr"
	"github.com/honecore/core/internal/models"
)

var errExecuteUnsupported = errors.New("mock port does not support agentic execute")

// Mock is a deterministic Port used in tests and in installs without a
// local Ollama endpoint configured. It derives plausible answers from
// simple keyword rules rather than calling a model, so callers exercising
// the tag engine or detectors against it get stable, reproducible output.
type Mock struct{}

// NewMock returns a Port with no external dependencies.
func NewMock() *Mock { return &Mock{} }

func (Mock) Model() string { return "mock" }

var mockCategoryKeywords = []struct {
	keyword  string
	category string
}{
	{"netflix", "streaming"},
	{"hulu", "streaming"},
	{"disney", "streaming"},
	{"spotify", "music"},
	{"apple music", "music"},
	{"dropbox", "cloud_storage"},
	{"google one", "cloud_storage"},
	{"icloud", "cloud_storage"},
	{"adobe", "software"},
	{"github", "software"},
	{"notion", "software"},
}

func (Mock) ClassifyMerchant(ctx context.Context, description string) (MerchantClassification, error) {
	lower := strings.ToLower(description)
	for _, rule := range mockCategoryKeywords {
		if strings.Contains(lower, rule.keyword) {
			return MerchantClassification{Merchant: titleCase(rule.keyword), Category: rule.category}, nil
		}
	}
	return MerchantClassification{Merchant: titleCase(description), Category: "other"}, nil
}

func (Mock) NormalizeMerchant(ctx context.Context, description string) (string, error) {
	return titleCase(strings.TrimSpace(description)), nil
}

func (m Mock) IsSubscriptionService(ctx context.Context, merchant string) (SubscriptionJudgement, error) {
	lower := strings.ToLower(merchant)
	for _, rule := range mockCategoryKeywords {
		if strings.Contains(lower, rule.keyword) {
			return SubscriptionJudgement{IsSubscription: true, Confidence: 0.8, Reason: "known recurring-billing merchant"}, nil
		}
	}
	return SubscriptionJudgement{IsSubscription: false, Confidence: 0.5, Reason: "no recurring-billing signal"}, nil
}

func (Mock) EvaluateReceiptMatch(ctx context.Context, receipt models.ParsedReceipt, txn models.Transaction) (ReceiptMatchJudgement, error) {
	if receipt.Total == nil {
		return ReceiptMatchJudgement{SamePurchase: false, Confidence: 0.3, Reason: "receipt has no extracted total"}, nil
	}
	diff := *receipt.Total - (-txn.Amount)
	if diff < 0 {
		diff = -diff
	}
	if diff < 0.01 {
		return ReceiptMatchJudgement{SamePurchase: true, Confidence: 0.9, Reason: "amounts match exactly"}, nil
	}
	return ReceiptMatchJudgement{SamePurchase: false, Confidence: 0.6, Reason: "amounts differ"}, nil
}

func (Mock) AnalyzeDuplicateServices(ctx context.Context, category string, names []string, feedback []string) (DuplicateAnalysis, error) {
	features := make([]models.DuplicateServiceFeature, 0, len(names))
	for _, n := range names {
		features = append(features, models.DuplicateServiceFeature{Service: n, Unique: "no distinguishing feature on record"})
	}
	return DuplicateAnalysis{
		Overlap:        "all services in this category offer overlapping " + category + " functionality",
		UniqueFeatures: features,
	}, nil
}

func (Mock) ExplainSpendingChange(ctx context.Context, category string, baseline, current float64, topMerchants, newMerchants []string, feedback []string) (SpendingExplanation, error) {
	reasons := []string{}
	if current > baseline {
		reasons = append(reasons, "spending increased relative to the prior period")
	} else {
		reasons = append(reasons, "spending decreased relative to the prior period")
	}
	if len(newMerchants) > 0 {
		reasons = append(reasons, "new merchants appeared: "+strings.Join(newMerchants, ", "))
	}
	if len(topMerchants) > 0 && len(reasons) < 3 {
		reasons = append(reasons, "top contributor: "+topMerchants[0])
	}
	return SpendingExplanation{
		Summary: category + " spending moved from the prior period's baseline to the current period",
		Reasons: reasons,
	}, nil
}

func (Mock) Execute(ctx context.Context, systemPrompt, userPrompt string, tools []Tool) (string, error) {
	return "", honeerr.Transport("aiport.Mock.Execute", errExecuteUnsupported)
}

func titleCase(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	words := strings.Fields(s)
	for i, w := range words {
		if len(w) > 0 {
			words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
		}
	}
	return strings.Join(words, " ")
}
