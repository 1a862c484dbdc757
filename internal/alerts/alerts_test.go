package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/honecore/core/internal/models"
)

func TestDetectZombiesOnly_FlagsOldUnacknowledgedSubscription(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	acct := mustAccount(t, s)

	firstSeen := time.Now().AddDate(0, -6, 0)
	lastSeen := time.Now().AddDate(0, -1, 0)
	sub := mustSubscription(t, s, &acct.ID, "NETFLIX", 15.99, models.FrequencyMonthly, firstSeen, lastSeen)

	chain := NewDetectorChain(s)
	results, err := chain.DetectZombiesOnly(ctx)
	if err != nil {
		t.Fatalf("DetectZombiesOnly: %v", err)
	}
	if results.ZombiesDetected != 1 {
		t.Fatalf("expected 1 zombie, got %d", results.ZombiesDetected)
	}

	refreshed, err := s.GetSubscription(ctx, sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if refreshed.Status != models.SubscriptionStatusZombie {
		t.Fatalf("expected zombie status, got %s", refreshed.Status)
	}
}

func TestDetectZombiesOnly_SkipsAcknowledgedFreshSubscription(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	acct := mustAccount(t, s)

	firstSeen := time.Now().AddDate(0, -6, 0)
	lastSeen := time.Now().AddDate(0, -1, 0)
	sub := mustSubscription(t, s, &acct.ID, "NETFLIX", 15.99, models.FrequencyMonthly, firstSeen, lastSeen)
	if err := s.AcknowledgeSubscription(ctx, sub.ID); err != nil {
		t.Fatal(err)
	}

	chain := NewDetectorChain(s)
	results, err := chain.DetectZombiesOnly(ctx)
	if err != nil {
		t.Fatalf("DetectZombiesOnly: %v", err)
	}
	if results.ZombiesDetected != 0 {
		t.Fatalf("expected 0 zombies for a fresh acknowledgment, got %d", results.ZombiesDetected)
	}
}

func TestDetectZombiesOnly_ReTriggersStaleAcknowledgment(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	acct := mustAccount(t, s)

	firstSeen := time.Now().AddDate(0, -6, 0)
	lastSeen := time.Now().AddDate(0, -1, 0)
	sub := mustSubscription(t, s, &acct.ID, "NETFLIX", 15.99, models.FrequencyMonthly, firstSeen, lastSeen)
	if err := s.AcknowledgeSubscription(ctx, sub.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.DB().ExecContext(ctx, `UPDATE subscriptions SET acknowledged_at = ? WHERE id = ?`,
		time.Now().AddDate(0, 0, -120).Format(time.RFC3339), sub.ID); err != nil {
		t.Fatal(err)
	}

	chain := NewDetectorChain(s)
	results, err := chain.DetectZombiesOnly(ctx)
	if err != nil {
		t.Fatalf("DetectZombiesOnly: %v", err)
	}
	if results.ZombiesDetected != 1 {
		t.Fatalf("expected a stale acknowledgment to re-trigger, got %d zombies", results.ZombiesDetected)
	}
}

func TestDetectIncreasesOnly_JointThresholdBothRequired(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	acct := mustAccount(t, s)

	old := time.Now().AddDate(0, 0, -120)
	recent := time.Now().AddDate(0, 0, -2)
	mustTxn(t, s, acct.ID, "NETFLIX.COM", -9.99, old, "h1")
	mustTxn(t, s, acct.ID, "NETFLIX.COM", -10.49, recent, "h2")
	mustSubscription(t, s, &acct.ID, "NETFLIX.COM", 10.49, models.FrequencyMonthly, old, recent)

	chain := NewDetectorChain(s)
	results, err := chain.DetectIncreasesOnly(ctx)
	if err != nil {
		t.Fatalf("DetectIncreasesOnly: %v", err)
	}
	if results.PriceIncreasesDetected != 0 {
		t.Fatalf("a 5%% / $0.50 bump clears neither the $1 floor nor a 5%% relative threshold jointly, expected 0 increases, got %d", results.PriceIncreasesDetected)
	}
}

func TestDetectIncreasesOnly_FiresWhenBothThresholdsExceeded(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	acct := mustAccount(t, s)

	old := time.Now().AddDate(0, 0, -120)
	recent := time.Now().AddDate(0, 0, -2)
	mustTxn(t, s, acct.ID, "NETFLIX.COM", -9.99, old, "h1")
	mustTxn(t, s, acct.ID, "NETFLIX.COM", -15.99, recent, "h2")
	mustSubscription(t, s, &acct.ID, "NETFLIX.COM", 15.99, models.FrequencyMonthly, old, recent)

	chain := NewDetectorChain(s)
	results, err := chain.DetectIncreasesOnly(ctx)
	if err != nil {
		t.Fatalf("DetectIncreasesOnly: %v", err)
	}
	if results.PriceIncreasesDetected != 1 {
		t.Fatalf("a $6 / 60%% increase clears both thresholds, expected 1 increase, got %d", results.PriceIncreasesDetected)
	}
}

func TestDetectDuplicatesOnly_GroupsByTagTreeCategory(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	acct := mustAccount(t, s)

	subsTag := mustTag(t, s, "Subscriptions", nil, nil)
	mustTag(t, s, "Streaming", &subsTag.ID, strPtr("NETFLIX|HULU"))

	now := time.Now()
	mustSubscription(t, s, &acct.ID, "NETFLIX", 15.99, models.FrequencyMonthly, now.AddDate(0, -6, 0), now.AddDate(0, 0, -2))
	mustSubscription(t, s, &acct.ID, "HULU", 7.99, models.FrequencyMonthly, now.AddDate(0, -6, 0), now.AddDate(0, 0, -2))

	chain := NewDetectorChain(s)
	results, err := chain.DetectDuplicatesOnly(ctx)
	if err != nil {
		t.Fatalf("DetectDuplicatesOnly: %v", err)
	}
	if results.DuplicatesDetected != 1 {
		t.Fatalf("expected 1 duplicate alert for the Streaming category, got %d", results.DuplicatesDetected)
	}
}

func TestDetectDuplicatesOnly_FallsBackToKeywordCategorizationWithoutTagTree(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	acct := mustAccount(t, s)

	now := time.Now()
	mustSubscription(t, s, &acct.ID, "NETFLIX", 15.99, models.FrequencyMonthly, now.AddDate(0, -6, 0), now.AddDate(0, 0, -2))
	mustSubscription(t, s, &acct.ID, "HULU", 7.99, models.FrequencyMonthly, now.AddDate(0, -6, 0), now.AddDate(0, 0, -2))

	chain := NewDetectorChain(s)
	results, err := chain.DetectDuplicatesOnly(ctx)
	if err != nil {
		t.Fatalf("DetectDuplicatesOnly: %v", err)
	}
	if results.DuplicatesDetected != 1 {
		t.Fatalf("expected the keyword fallback to still group streaming services, got %d", results.DuplicatesDetected)
	}
}

func TestDetectAll_CancelsAcknowledgedStaleSubscription(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	acct := mustAccount(t, s)

	firstSeen := time.Now().AddDate(0, -6, 0)
	lastSeen := time.Now().AddDate(0, -3, 0)
	sub := mustSubscription(t, s, &acct.ID, "GYMPASS", 29.99, models.FrequencyMonthly, firstSeen, lastSeen)
	if err := s.AcknowledgeSubscription(ctx, sub.ID); err != nil {
		t.Fatal(err)
	}

	chain := NewDetectorChain(s)
	results, err := chain.DetectAll(ctx)
	if err != nil {
		t.Fatalf("DetectAll: %v", err)
	}
	if results.AutoCancelled != 1 {
		t.Fatalf("expected 1 auto-cancel for a subscription 3 months past its last charge, got %d", results.AutoCancelled)
	}

	refreshed, err := s.GetSubscription(ctx, sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if refreshed.Status != models.SubscriptionStatusCancelled {
		t.Fatalf("expected cancelled status, got %s", refreshed.Status)
	}
}

func TestDetectAll_NeverAutoCancelsUnacknowledgedSubscription(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	acct := mustAccount(t, s)

	firstSeen := time.Now().AddDate(0, -6, 0)
	lastSeen := time.Now().AddDate(0, -3, 0)
	sub := mustSubscription(t, s, &acct.ID, "GYMPASS", 29.99, models.FrequencyMonthly, firstSeen, lastSeen)

	chain := NewDetectorChain(s)
	results, err := chain.DetectAll(ctx)
	if err != nil {
		t.Fatalf("DetectAll: %v", err)
	}
	if results.AutoCancelled != 0 {
		t.Fatalf("expected no auto-cancel without prior acknowledgment, got %d", results.AutoCancelled)
	}

	refreshed, err := s.GetSubscription(ctx, sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if refreshed.Status == models.SubscriptionStatusCancelled {
		t.Fatal("unacknowledged subscription must surface as a zombie before it can be cancelled")
	}
}

func TestDetectAll_ResumesCancelledSubscriptionOnNewCharge(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	acct := mustAccount(t, s)

	firstSeen := time.Now().AddDate(0, -10, 0)
	lastSeen := time.Now().AddDate(0, -5, 0)
	sub := mustSubscription(t, s, &acct.ID, "GYMPASS", 29.99, models.FrequencyMonthly, firstSeen, lastSeen)
	if err := s.SetSubscriptionStatus(ctx, sub.ID, models.SubscriptionStatusCancelled); err != nil {
		t.Fatal(err)
	}
	mustTxn(t, s, acct.ID, "GYMPASS", -29.99, time.Now().AddDate(0, 0, -1), "resume-1")

	chain := NewDetectorChain(s)
	results, err := chain.DetectAll(ctx)
	if err != nil {
		t.Fatalf("DetectAll: %v", err)
	}
	if results.ResumesDetected != 1 {
		t.Fatalf("expected 1 resume for a new charge after cancellation, got %d", results.ResumesDetected)
	}

	refreshed, err := s.GetSubscription(ctx, sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if refreshed.Status != models.SubscriptionStatusActive {
		t.Fatalf("expected reactivated status, got %s", refreshed.Status)
	}
}

func TestDetectAll_SpendingAnomalyRequiresMinimumBaseline(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	acct := mustAccount(t, s)

	groceries := mustTag(t, s, "Groceries", nil, nil)
	now := time.Now()
	txn := mustTxn(t, s, acct.ID, "WHOLE FOODS", -20.00, now.AddDate(0, 0, -1), "spend-1")
	if _, err := s.TagTransaction(ctx, txn.ID, groceries.ID, models.TagSourceManual, nil); err != nil {
		t.Fatal(err)
	}

	chain := NewDetectorChain(s)
	results, err := chain.DetectAll(ctx)
	if err != nil {
		t.Fatalf("DetectAll: %v", err)
	}
	if results.SpendingAnomaliesDetected != 0 {
		t.Fatalf("a category with no baseline spend shouldn't anomaly-alert, got %d", results.SpendingAnomaliesDetected)
	}
}

func TestDetectAll_SpendingAnomalyFiresOnIncreaseAboveBaseline(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	acct := mustAccount(t, s)

	groceries := mustTag(t, s, "Groceries", nil, nil)

	now := time.Now()
	currentMonthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	baselineEnd := currentMonthStart.AddDate(0, 0, -1)

	for i, daysBeforeEnd := range []int{5, 35, 65} {
		date := baselineEnd.AddDate(0, 0, -daysBeforeEnd)
		txn := mustTxn(t, s, acct.ID, "WHOLE FOODS", -100.00, date, "base-"+string(rune('a'+i)))
		if _, err := s.TagTransaction(ctx, txn.ID, groceries.ID, models.TagSourceManual, nil); err != nil {
			t.Fatal(err)
		}
	}
	currentTxn := mustTxn(t, s, acct.ID, "WHOLE FOODS", -250.00, currentMonthStart.AddDate(0, 0, 1), "current-1")
	if _, err := s.TagTransaction(ctx, currentTxn.ID, groceries.ID, models.TagSourceManual, nil); err != nil {
		t.Fatal(err)
	}

	chain := NewDetectorChain(s)
	results, err := chain.DetectAll(ctx)
	if err != nil {
		t.Fatalf("DetectAll: %v", err)
	}
	if results.SpendingAnomaliesDetected != 1 {
		t.Fatalf("expected a spending anomaly once current-month spend clears baseline + 30%%, got %d", results.SpendingAnomaliesDetected)
	}
}
