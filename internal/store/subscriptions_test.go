package store

import (
	"context"
	"testing"
	"time"

	"github.com/honecore/core/internal/models"
)

func TestUpsertSubscription_Idempotent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	a := mustCreateAccount(t, s)

	amount := 15.99
	monthly := models.FrequencyMonthly
	firstSeen := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	lastSeen := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	first, err := s.UpsertSubscription(ctx, &a.ID, "netflix", &amount, &monthly, &firstSeen, &lastSeen)
	if err != nil {
		t.Fatalf("first UpsertSubscription: %v", err)
	}

	newLastSeen := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	newAmount := 17.99
	second, err := s.UpsertSubscription(ctx, &a.ID, "netflix", &newAmount, &monthly, &firstSeen, &newLastSeen)
	if err != nil {
		t.Fatalf("second UpsertSubscription: %v", err)
	}

	if first.ID != second.ID {
		t.Fatalf("expected same subscription row, got %s and %s", first.ID, second.ID)
	}

	got, err := s.GetSubscription(ctx, first.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Amount == nil || *got.Amount != newAmount {
		t.Fatalf("expected updated amount %v, got %v", newAmount, got.Amount)
	}

	all, err := s.ListSubscriptions(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 subscription row after idempotent upsert, got %d", len(all))
	}
}

func TestRecordAndListPriceHistory(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	a := mustCreateAccount(t, s)

	amount := 9.99
	sub, err := s.UpsertSubscription(ctx, &a.ID, "spotify", &amount, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.RecordPriceChange(ctx, sub.ID, 9.99); err != nil {
		t.Fatal(err)
	}
	if _, err := s.RecordPriceChange(ctx, sub.ID, 11.99); err != nil {
		t.Fatal(err)
	}

	history, err := s.ListPriceHistory(ctx, sub.ID)
	if err != nil {
		t.Fatalf("ListPriceHistory: %v", err)
	}
	if len(history) != 2 || history[1].Amount != 11.99 {
		t.Fatalf("expected 2 entries ordered oldest-first, got %+v", history)
	}
}

func TestMerchantSubscriptionCache(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if err := s.UpsertMerchantSubscriptionCache(ctx, "hulu", true, 0.92, models.MerchantCacheSourceOllama); err != nil {
		t.Fatalf("UpsertMerchantSubscriptionCache: %v", err)
	}

	cached, err := s.GetMerchantSubscriptionCache(ctx, "hulu")
	if err != nil {
		t.Fatalf("GetMerchantSubscriptionCache: %v", err)
	}
	if !cached.IsSubscription || cached.Confidence != 0.92 {
		t.Fatalf("unexpected cache entry: %+v", cached)
	}

	if err := s.UpsertMerchantSubscriptionCache(ctx, "hulu", false, 0.4, models.MerchantCacheSourceUserOverride); err != nil {
		t.Fatalf("UpsertMerchantSubscriptionCache (update): %v", err)
	}
	cached, err = s.GetMerchantSubscriptionCache(ctx, "hulu")
	if err != nil {
		t.Fatal(err)
	}
	if cached.IsSubscription {
		t.Fatalf("expected user override to replace ollama classification")
	}
}
