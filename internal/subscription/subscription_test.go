package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/honecore/core/internal/aiport"
	"github.com/honecore/core/internal/models"
)

func TestDetect_StrictMonthlyPattern(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	account := mustAccount(t, s)

	base := time.Now().AddDate(0, -3, 0)
	mustTxn(t, s, account.ID, "NETFLIX.COM*12345", -15.49, base, "h1")
	mustTxn(t, s, account.ID, "NETFLIX.COM*12345", -15.49, base.AddDate(0, 1, 0), "h2")
	mustTxn(t, s, account.ID, "NETFLIX.COM*12345", -15.49, base.AddDate(0, 2, 0), "h3")

	d := New(s, nil)
	count, err := d.Detect(ctx)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 subscription, got %d", count)
	}

	subs, err := s.ListSubscriptions(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 1 {
		t.Fatalf("expected 1 stored subscription, got %d", len(subs))
	}
	if subs[0].Frequency == nil || *subs[0].Frequency != models.FrequencyMonthly {
		t.Fatalf("expected monthly frequency, got %+v", subs[0].Frequency)
	}
}

func TestDetect_DifferentMerchantsSameCityNotGrouped(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	account := mustAccount(t, s)

	base := time.Now().AddDate(0, -2, 0)
	mustTxn(t, s, account.ID, "FRED MEYER FUEL MONROE", -40, base, "h1")
	mustTxn(t, s, account.ID, "LOWES #1234 MONROE", -40, base.AddDate(0, 1, 0), "h2")
	mustTxn(t, s, account.ID, "SAFEWAY MONROE WA", -40, base.AddDate(0, 2, 0), "h3")

	d := New(s, nil)
	count, err := d.Detect(ctx)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	// All three share the normalize_merchant fallback "MONROE"-adjacent key
	// only if their first three tokens collide; canonicalMerchant takes the
	// first three uppercased tokens so none of these collide, and even if
	// they did, descriptionsAreSimilar would reject the group.
	if count != 0 {
		t.Fatalf("expected 0 subscriptions for dissimilar merchants, got %d", count)
	}
}

func TestDetect_SkipsFeesTaggedTransactions(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	account := mustAccount(t, s)

	financial, err := s.CreateTag(ctx, "Financial", nil, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	fees, err := s.CreateTag(ctx, "Fees", &financial.ID, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	base := time.Now().AddDate(0, -3, 0)
	t1 := mustTxn(t, s, account.ID, "OVERDRAFT FEE", -35, base, "h1")
	mustTxn(t, s, account.ID, "OVERDRAFT FEE", -35, base.AddDate(0, 1, 0), "h2")
	mustTxn(t, s, account.ID, "OVERDRAFT FEE", -35, base.AddDate(0, 2, 0), "h3")

	if _, err := s.TagTransaction(ctx, t1.ID, fees.ID, models.TagSourceManual, nil); err != nil {
		t.Fatal(err)
	}

	d := New(s, nil)
	count, err := d.Detect(ctx)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	// Only 2 of the 3 remain ungrouped-excluded; still >= 2, but the
	// exclusion is per-transaction, not per-group, so this checks the
	// excluded transaction itself never contributes. With 2 remaining
	// transactions the strict pattern (needs >= 3) cannot fire.
	if count != 0 {
		t.Fatalf("expected 0 subscriptions once one leg is excluded as a fee, got %d", count)
	}
}

func TestDetect_RelaxedPatternUsesAIConfirmation(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	account := mustAccount(t, s)

	base := time.Now().AddDate(0, -2, 0)
	mustTxn(t, s, account.ID, "ELECTRIC COMPANY", -85.00, base, "h1")
	mustTxn(t, s, account.ID, "ELECTRIC COMPANY", -120.50, base.AddDate(0, 1, 0), "h2")

	ai := &fakeAI{judgement: aiport.SubscriptionJudgement{IsSubscription: true, Confidence: 0.9, Reason: "utility"}}
	d := New(s, ai)
	count, err := d.Detect(ctx)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected relaxed detection to accept variable-amount utility billing, got count=%d", count)
	}
}

func TestDetect_CachedRetailSkipsUnconditionally(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	account := mustAccount(t, s)

	base := time.Now().AddDate(0, -3, 0)
	mustTxn(t, s, account.ID, "TRADER JOES #5", -40, base, "h1")
	mustTxn(t, s, account.ID, "TRADER JOES #5", -40, base.AddDate(0, 1, 0), "h2")
	mustTxn(t, s, account.ID, "TRADER JOES #5", -40, base.AddDate(0, 2, 0), "h3")

	if err := s.UpsertMerchantSubscriptionCache(ctx, "TRADER JOES 5", false, 0.95, models.MerchantCacheSourceUserOverride); err != nil {
		t.Fatal(err)
	}

	ai := &fakeAI{judgement: aiport.SubscriptionJudgement{IsSubscription: true, Confidence: 0.99}}
	d := New(s, ai)
	count, err := d.Detect(ctx)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected cached retail classification to skip unconditionally even with a confident AI override, got %d", count)
	}
}

func TestCategorizeFallback(t *testing.T) {
	cat, ok := CategorizeFallback("NETFLIX.COM")
	if !ok || cat != "Streaming" {
		t.Fatalf("expected Streaming, got %q ok=%v", cat, ok)
	}
	cat, ok = CategorizeFallback("Spotify Premium")
	if !ok || cat != "Music" {
		t.Fatalf("expected Music, got %q ok=%v", cat, ok)
	}
	if _, ok := CategorizeFallback("RANDOM STORE"); ok {
		t.Fatal("expected no category match")
	}
}

func TestMedian(t *testing.T) {
	if got := median([]float64{1, 2, 3}); got != 2 {
		t.Fatalf("median: got %v", got)
	}
	if got := median([]float64{1, 2, 3, 4}); got != 2.5 {
		t.Fatalf("median: got %v", got)
	}
}

type fakeAI struct {
	aiport.Port
	judgement aiport.SubscriptionJudgement
}

func (f *fakeAI) IsSubscriptionService(ctx context.Context, merchant string) (aiport.SubscriptionJudgement, error) {
	return f.judgement, nil
}
