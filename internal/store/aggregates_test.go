package store

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/honecore/core/internal/models"
)

func TestDashboardStats(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	a := mustCreateAccount(t, s)

	if _, err := s.CreateTransaction(ctx, a.ID, models.NewTransaction{
		Date:        time.Now(),
		Description: "TEST",
		Amount:      -10,
		ImportHash:  "dash-1",
	}); err != nil {
		t.Fatal(err)
	}

	monthly := models.FrequencyMonthly
	amount := 10.0
	if _, err := s.UpsertSubscription(ctx, &a.ID, "service-a", &amount, &monthly, nil, nil); err != nil {
		t.Fatal(err)
	}

	if _, err := s.CreateAlert(ctx, models.AlertKindZombie, nil, "stale", nil, nil); err != nil {
		t.Fatal(err)
	}

	stats, err := s.DashboardStats(ctx)
	if err != nil {
		t.Fatalf("DashboardStats: %v", err)
	}
	if stats.TotalTransactions != 1 || stats.TotalAccounts != 1 || stats.ActiveSubscriptions != 1 || stats.ActiveAlerts != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.MonthlySubscriptionCost != 10.0 {
		t.Fatalf("expected monthly cost 10.0, got %v", stats.MonthlySubscriptionCost)
	}
	if stats.UntaggedTransactions != 1 {
		t.Fatalf("expected 1 untagged transaction, got %d", stats.UntaggedTransactions)
	}
}

func TestSpendingSummary(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	a := mustCreateAccount(t, s)

	tag, err := s.CreateTag(ctx, "Groceries", nil, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	txn, err := s.CreateTransaction(ctx, a.ID, models.NewTransaction{
		Date:        time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC),
		Description: "WHOLE FOODS",
		Amount:      -63.21,
		ImportHash:  "spend-1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.TagTransaction(ctx, txn.ID, tag.ID, models.TagSourceManual, nil); err != nil {
		t.Fatal(err)
	}

	if _, err := s.CreateTransaction(ctx, a.ID, models.NewTransaction{
		Date:        time.Date(2026, 6, 20, 0, 0, 0, 0, time.UTC),
		Description: "UNKNOWN MERCHANT",
		Amount:      -15.00,
		ImportHash:  "spend-2",
	}); err != nil {
		t.Fatal(err)
	}

	summary, err := s.SpendingSummary(ctx, "2026-06-01T00:00:00Z", "2026-07-01T00:00:00Z")
	if err != nil {
		t.Fatalf("SpendingSummary: %v", err)
	}
	if summary.ByTag["Groceries"] != 63.21 {
		t.Fatalf("expected groceries total 63.21, got %v", summary.ByTag["Groceries"])
	}
	if summary.UntaggedAmount != 15.00 {
		t.Fatalf("expected untagged 15.00, got %v", summary.UntaggedAmount)
	}
	if math.Abs(summary.Total-78.21) > 1e-9 {
		t.Fatalf("expected total 78.21, got %v", summary.Total)
	}
}

func TestAIMetricSuccessRate(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if err := s.RecordAIMetric(ctx, "categorize", true, 120); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordAIMetric(ctx, "categorize", false, 300); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordAIMetric(ctx, "categorize", true, 90); err != nil {
		t.Fatal(err)
	}

	rate, err := s.AIMetricSuccessRate(ctx, "categorize", 10)
	if err != nil {
		t.Fatalf("AIMetricSuccessRate: %v", err)
	}
	if rate < 0.66 || rate > 0.67 {
		t.Fatalf("expected rate ~0.667, got %v", rate)
	}
}
