package orchestrator

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	_ "github.com/tursodatabase/go-libsql"

	"github.com/honecore/core/internal/aiport"
	"github.com/honecore/core/internal/database/migrations"
	"github.com/honecore/core/internal/models"
	"github.com/honecore/core/internal/store"
)

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := sql.Open("libsql", "file::memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}
	if err := migrations.Run(db, zerolog.Nop()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return store.New(db)
}

func mustAccount(t *testing.T, s *store.Store) *models.Account {
	t.Helper()
	a, err := s.CreateAccount(context.Background(), "Checking", models.BankBankOfAmerica, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func row(desc string, amount float64, daysAgo int, hash string) ParsedTransaction {
	return ParsedTransaction{
		Date:        time.Now().AddDate(0, 0, -daysAgo),
		Description: desc,
		Amount:      amount,
		ImportHash:  hash,
	}
}

// fakeAI is a deterministic aiport.Port stand-in: NormalizeMerchant
// prefixes the description with "NORM:" (or fails for descriptions in
// failOn), every other capability is unused by the
// orchestrator's own tests and returns a zero value.
type fakeAI struct {
	failOn map[string]bool
}

func (f *fakeAI) ClassifyMerchant(ctx context.Context, description string) (aiport.MerchantClassification, error) {
	return aiport.MerchantClassification{}, nil
}

func (f *fakeAI) NormalizeMerchant(ctx context.Context, description string) (string, error) {
	if f.failOn[description] {
		return "", errTestAIFailure
	}
	return "NORM:" + description, nil
}

func (f *fakeAI) IsSubscriptionService(ctx context.Context, merchant string) (aiport.SubscriptionJudgement, error) {
	return aiport.SubscriptionJudgement{}, nil
}

func (f *fakeAI) EvaluateReceiptMatch(ctx context.Context, receipt models.ParsedReceipt, txn models.Transaction) (aiport.ReceiptMatchJudgement, error) {
	return aiport.ReceiptMatchJudgement{}, nil
}

func (f *fakeAI) AnalyzeDuplicateServices(ctx context.Context, category string, names []string, feedback []string) (aiport.DuplicateAnalysis, error) {
	return aiport.DuplicateAnalysis{}, nil
}

func (f *fakeAI) ExplainSpendingChange(ctx context.Context, category string, baseline, current float64, topMerchants, newMerchants []string, feedback []string) (aiport.SpendingExplanation, error) {
	return aiport.SpendingExplanation{}, nil
}

func (f *fakeAI) Execute(ctx context.Context, systemPrompt, userPrompt string, tools []aiport.Tool) (string, error) {
	return "", nil
}

func (f *fakeAI) Model() string { return "fake-test" }

type testAIError struct{ msg string }

func (e *testAIError) Error() string { return e.msg }

var errTestAIFailure = &testAIError{msg: "simulated normalization failure"}
