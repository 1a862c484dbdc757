package store

import (
	"context"
	"testing"

	"github.com/honecore/core/internal/models"
)

func TestCreateAlert_PlainAndDuplicateData(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	a := mustCreateAccount(t, s)

	amount := 12.99
	sub, err := s.UpsertSubscription(ctx, &a.ID, "disney-plus", &amount, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	plain, err := s.CreateAlert(ctx, models.AlertKindZombie, &sub.ID, "looks like a zombie subscription", nil, nil)
	if err != nil {
		t.Fatalf("CreateAlert (plain): %v", err)
	}
	got, err := s.GetAlert(ctx, plain.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.DuplicateData != nil {
		t.Fatalf("expected nil DuplicateData, got %+v", got.DuplicateData)
	}

	dup := &models.DuplicateAnalysis{
		Overlap: "both provide video streaming",
		UniqueFeatures: []models.DuplicateServiceFeature{
			{Service: "disney-plus", Unique: "marvel catalog"},
		},
	}
	withDup, err := s.CreateAlert(ctx, models.AlertKindDuplicate, &sub.ID, "overlaps with another subscription", dup, nil)
	if err != nil {
		t.Fatalf("CreateAlert (duplicate): %v", err)
	}
	got, err = s.GetAlert(ctx, withDup.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.DuplicateData == nil || got.DuplicateData.Overlap != dup.Overlap {
		t.Fatalf("expected duplicate data to round-trip, got %+v", got.DuplicateData)
	}
}

func TestListActiveAlerts_ExcludesDismissed(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	alert, err := s.CreateAlert(ctx, models.AlertKindSpendingAnomaly, nil, "spending spike", nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	active, err := s.ListActiveAlerts(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 {
		t.Fatalf("expected 1 active alert, got %d", len(active))
	}

	if err := s.DismissAlert(ctx, alert.ID); err != nil {
		t.Fatalf("DismissAlert: %v", err)
	}

	active, err = s.ListActiveAlerts(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 0 {
		t.Fatalf("expected 0 active alerts after dismissal, got %d", len(active))
	}
}

func TestExistingAlertForSubscription(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	a := mustCreateAccount(t, s)

	amount := 5.0
	sub, err := s.UpsertSubscription(ctx, &a.ID, "audible", &amount, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	exists, err := s.ExistingAlertForSubscription(ctx, sub.ID, models.AlertKindZombie)
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Fatal("expected no existing alert before one is created")
	}

	if _, err := s.CreateAlert(ctx, models.AlertKindZombie, &sub.ID, "zombie", nil, nil); err != nil {
		t.Fatal(err)
	}

	exists, err = s.ExistingAlertForSubscription(ctx, sub.ID, models.AlertKindZombie)
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		t.Fatal("expected existing alert to be found")
	}
}
