package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/honecore/core/internal/honeerr"
	"github.com/honecore/core/internal/models"
)

// CreateAlert inserts a new alert. DuplicateData and SpendingData are
// JSON-marshaled columns populated only for their respective alert kinds.
func (s *Store) CreateAlert(ctx context.Context, kind models.AlertKind, subscriptionID *string, message string, dup *models.DuplicateAnalysis, spending *models.SpendingAnomalyData) (*models.Alert, error) {
	a := &models.Alert{
		ID:             newID(),
		Kind:           kind,
		SubscriptionID: subscriptionID,
		Message:        message,
		DuplicateData:  dup,
		SpendingData:   spending,
		CreatedAt:      nowUTC(),
	}

	dupJSON, err := marshalNullable(dup)
	if err != nil {
		return nil, honeerr.InvalidData("store.CreateAlert", err)
	}
	spendingJSON, err := marshalNullable(spending)
	if err != nil {
		return nil, honeerr.InvalidData("store.CreateAlert", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO alerts (id, kind, subscription_id, message, dismissed, duplicate_data, spending_data, created_at)
		VALUES (?, ?, ?, ?, 0, ?, ?, ?)`,
		a.ID, string(a.Kind), nullableString(a.SubscriptionID), a.Message, dupJSON, spendingJSON, formatTime(a.CreatedAt),
	)
	if err != nil {
		return nil, honeerr.Wrap(honeerr.KindTransient, "store.CreateAlert", err)
	}
	return a, nil
}

func (s *Store) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	row := s.db.QueryRowContext(ctx, alertSelectCols+` WHERE id = ?`, id)
	return scanAlert(row)
}

// ListActiveAlerts returns undismissed alerts, optionally filtered by kind.
func (s *Store) ListActiveAlerts(ctx context.Context, kind *models.AlertKind) ([]models.Alert, error) {
	var rows *sql.Rows
	var err error
	if kind == nil {
		rows, err = s.db.QueryContext(ctx, alertSelectCols+` WHERE dismissed = 0 ORDER BY created_at DESC`)
	} else {
		rows, err = s.db.QueryContext(ctx, alertSelectCols+` WHERE dismissed = 0 AND kind = ? ORDER BY created_at DESC`, string(*kind))
	}
	if err != nil {
		return nil, honeerr.Wrap(honeerr.KindTransient, "store.ListActiveAlerts", err)
	}
	defer rows.Close()

	var out []models.Alert
	for rows.Next() {
		a, err := scanAlertGeneric(rows)
		if err != nil {
			return nil, honeerr.Wrap(honeerr.KindFatal, "store.ListActiveAlerts", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// DismissAlert marks an alert as resolved so it drops out of ListActiveAlerts.
func (s *Store) DismissAlert(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE alerts SET dismissed = 1 WHERE id = ?`, id)
	if err != nil {
		return honeerr.Wrap(honeerr.KindTransient, "store.DismissAlert", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return honeerr.NotFound("store.DismissAlert", fmt.Errorf("alert not found"))
	}
	return nil
}

// ExistingAlertForSubscription checks whether an undismissed alert of the
// given kind already exists for a subscription, so detectors don't raise
// duplicate alerts on every import pass.
func (s *Store) ExistingAlertForSubscription(ctx context.Context, subscriptionID string, kind models.AlertKind) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM alerts WHERE subscription_id = ? AND kind = ? AND dismissed = 0`,
		subscriptionID, string(kind),
	).Scan(&count)
	if err != nil {
		return false, honeerr.Wrap(honeerr.KindTransient, "store.ExistingAlertForSubscription", err)
	}
	return count > 0, nil
}

const alertSelectCols = `
	SELECT id, kind, subscription_id, message, dismissed, duplicate_data, spending_data, created_at
	FROM alerts`

func scanAlert(row *sql.Row) (*models.Alert, error) {
	return scanAlertGeneric(row)
}

func scanAlertGeneric(row rowScanner) (*models.Alert, error) {
	var a models.Alert
	var subscriptionID, dupJSON, spendingJSON sql.NullString
	var dismissed int
	var kind, createdAt string

	err := row.Scan(&a.ID, &kind, &subscriptionID, &a.Message, &dismissed, &dupJSON, &spendingJSON, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, honeerr.NotFound("store.scanAlert", fmt.Errorf("alert not found"))
		}
		return nil, fmt.Errorf("scan alert: %w", err)
	}

	a.Kind = models.AlertKind(kind)
	a.SubscriptionID = stringOrNil(subscriptionID)
	a.Dismissed = dismissed != 0
	a.CreatedAt = parseTime(createdAt)

	if dupJSON.Valid {
		var d models.DuplicateAnalysis
		if err := json.Unmarshal([]byte(dupJSON.String), &d); err != nil {
			return nil, fmt.Errorf("unmarshal alert duplicate_data: %w", err)
		}
		a.DuplicateData = &d
	}
	if spendingJSON.Valid {
		var sp models.SpendingAnomalyData
		if err := json.Unmarshal([]byte(spendingJSON.String), &sp); err != nil {
			return nil, fmt.Errorf("unmarshal alert spending_data: %w", err)
		}
		a.SpendingData = &sp
	}
	return &a, nil
}

func marshalNullable(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	switch t := v.(type) {
	case *models.DuplicateAnalysis:
		if t == nil {
			return sql.NullString{}, nil
		}
	case *models.SpendingAnomalyData:
		if t == nil {
			return sql.NullString{}, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
