package store

import (
	"context"
	"testing"
	"time"

	"github.com/honecore/core/internal/honeerr"
	"github.com/honecore/core/internal/models"
)

func TestResolveTagByName_Ambiguous(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	parentA, err := s.CreateTag(ctx, "Travel", nil, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	parentB, err := s.CreateTag(ctx, "Business", nil, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateTag(ctx, "Food", &parentA.ID, nil, nil, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateTag(ctx, "Food", &parentB.ID, nil, nil, nil); err != nil {
		t.Fatal(err)
	}

	_, err = s.ResolveTagByName(ctx, "Food")
	if !honeerr.Is(err, honeerr.KindConflict) {
		t.Fatalf("expected KindConflict for ambiguous tag name, got %v", err)
	}
}

func TestResolveTagByName_Unique(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	created, err := s.CreateTag(ctx, "Groceries", nil, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	found, err := s.ResolveTagByName(ctx, "Groceries")
	if err != nil {
		t.Fatalf("ResolveTagByName: %v", err)
	}
	if found.ID != created.ID {
		t.Fatalf("expected %s, got %s", created.ID, found.ID)
	}
}

func TestClearAutoTags_PreservesManual(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	a := mustCreateAccount(t, s)

	txn, err := s.CreateTransaction(ctx, a.ID, models.NewTransaction{
		Date:        time.Now(),
		Description: "RESTAURANT",
		Amount:      -25,
		ImportHash:  "hash-clear",
	})
	if err != nil {
		t.Fatal(err)
	}

	manualTag, err := s.CreateTag(ctx, "Dining", nil, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	patternTag, err := s.CreateTag(ctx, "Entertainment", nil, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.TagTransaction(ctx, txn.ID, manualTag.ID, models.TagSourceManual, nil); err != nil {
		t.Fatal(err)
	}
	confidence := 0.9
	if _, err := s.TagTransaction(ctx, txn.ID, patternTag.ID, models.TagSourcePattern, &confidence); err != nil {
		t.Fatal(err)
	}

	if err := s.ClearAutoTags(ctx, txn.ID); err != nil {
		t.Fatalf("ClearAutoTags: %v", err)
	}

	remaining, err := s.ListTransactionTags(ctx, txn.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 1 || remaining[0].TagID != manualTag.ID {
		t.Fatalf("expected only manual tag to survive, got %+v", remaining)
	}
}

func TestTagRules_OrderedByPriority(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	tag, err := s.CreateTag(ctx, "Subscriptions", nil, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.CreateTagRule(ctx, tag.ID, "netflix", models.PatternKindContains, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateTagRule(ctx, tag.ID, "^NFLX.*$", models.PatternKindRegex, 10); err != nil {
		t.Fatal(err)
	}

	rules, err := s.ListTagRules(ctx)
	if err != nil {
		t.Fatalf("ListTagRules: %v", err)
	}
	if len(rules) != 2 || rules[0].Priority != 10 {
		t.Fatalf("expected rules ordered by priority desc, got %+v", rules)
	}
}

func TestLearnedMerchantTag_UpsertAndGet(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	tag, err := s.CreateTag(ctx, "Groceries", nil, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.UpsertLearnedMerchantTag(ctx, "whole foods", tag.ID, 1.0); err != nil {
		t.Fatalf("UpsertLearnedMerchantTag: %v", err)
	}

	got, confidence, err := s.GetLearnedMerchantTag(ctx, "whole foods")
	if err != nil {
		t.Fatalf("GetLearnedMerchantTag: %v", err)
	}
	if got.ID != tag.ID || confidence != 1.0 {
		t.Fatalf("expected %s/1.0, got %s/%v", tag.ID, got.ID, confidence)
	}

	other, err := s.CreateTag(ctx, "Dining", nil, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertLearnedMerchantTag(ctx, "whole foods", other.ID, 1.0); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	got, _, err = s.GetLearnedMerchantTag(ctx, "whole foods")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != other.ID {
		t.Fatalf("expected upsert to overwrite mapping, got %s", got.ID)
	}
}

func TestLearnedMerchantTag_NotFound(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, _, err := s.GetLearnedMerchantTag(ctx, "unknown merchant")
	if !honeerr.Is(err, honeerr.KindNotFound) {
		t.Fatalf("expected KindNotFound, got %v", err)
	}
}
