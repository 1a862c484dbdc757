package tagengine

import (
	"context"

	"github.com/honecore/core/internal/aiport"
	"github.com/honecore/core/internal/models"
)

// mockAI is a minimal aiport.Port double for engine tests: it only needs
// ClassifyMerchant to exercise the AI-classification layer.
type mockAI struct{}

func (mockAI) ClassifyMerchant(ctx context.Context, description string) (aiport.MerchantClassification, error) {
	return aiport.MerchantClassification{Merchant: "Netflix", Category: "streaming"}, nil
}

func (mockAI) NormalizeMerchant(ctx context.Context, description string) (string, error) {
	return description, nil
}

func (mockAI) IsSubscriptionService(ctx context.Context, merchant string) (aiport.SubscriptionJudgement, error) {
	return aiport.SubscriptionJudgement{}, nil
}

func (mockAI) EvaluateReceiptMatch(ctx context.Context, receipt models.ParsedReceipt, txn models.Transaction) (aiport.ReceiptMatchJudgement, error) {
	return aiport.ReceiptMatchJudgement{}, nil
}

func (mockAI) AnalyzeDuplicateServices(ctx context.Context, category string, names []string, feedback []string) (aiport.DuplicateAnalysis, error) {
	return aiport.DuplicateAnalysis{}, nil
}

func (mockAI) ExplainSpendingChange(ctx context.Context, category string, baseline, current float64, topMerchants, newMerchants []string, feedback []string) (aiport.SpendingExplanation, error) {
	return aiport.SpendingExplanation{}, nil
}

func (mockAI) Execute(ctx context.Context, systemPrompt, userPrompt string, tools []aiport.Tool) (string, error) {
	return "", nil
}

func (mockAI) Model() string { return "mock" }
