package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/honecore/core/internal/honeerr"
	"github.com/honecore/core/internal/models"
)

// UpsertSubscription creates or updates the subscription record for a
// (accountID, merchant) pair. Detection re-runs on every import, so this is
// idempotent: re-detecting an existing subscription refreshes its amount,
// frequency, and last_seen rather than duplicating the row.
func (s *Store) UpsertSubscription(ctx context.Context, accountID *string, merchant string, amount *float64, frequency *models.Frequency, firstSeen, lastSeen *time.Time) (*models.Subscription, error) {
	existing, err := s.getSubscriptionByMerchant(ctx, accountID, merchant)
	if err != nil && !honeerr.Is(err, honeerr.KindNotFound) {
		return nil, err
	}

	if existing != nil {
		_, err := s.db.ExecContext(ctx, `
			UPDATE subscriptions SET amount = ?, frequency = ?, last_seen = ? WHERE id = ?`,
			nullableFloat(amount), nullableFrequency(frequency), nullableTimeStr(lastSeen), existing.ID,
		)
		if err != nil {
			return nil, honeerr.Wrap(honeerr.KindTransient, "store.UpsertSubscription", err)
		}
		existing.Amount = amount
		existing.Frequency = frequency
		existing.LastSeen = lastSeen
		return existing, nil
	}

	sub := &models.Subscription{
		ID:        newID(),
		Merchant:  merchant,
		AccountID: accountID,
		Amount:    amount,
		Frequency: frequency,
		FirstSeen: firstSeen,
		LastSeen:  lastSeen,
		Status:    models.SubscriptionStatusActive,
		CreatedAt: nowUTC(),
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (id, merchant, account_id, amount, frequency, first_seen, last_seen, status, user_acknowledged, acknowledged_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, NULL, ?)`,
		sub.ID, sub.Merchant, nullableString(sub.AccountID), nullableFloat(sub.Amount), nullableFrequency(sub.Frequency),
		nullableTimeStr(sub.FirstSeen), nullableTimeStr(sub.LastSeen), string(sub.Status), formatTime(sub.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, honeerr.Conflict("store.UpsertSubscription", honeerr.ErrDuplicateSubscription)
		}
		return nil, honeerr.Wrap(honeerr.KindTransient, "store.UpsertSubscription", err)
	}
	return sub, nil
}

func (s *Store) getSubscriptionByMerchant(ctx context.Context, accountID *string, merchant string) (*models.Subscription, error) {
	var row *sql.Row
	if accountID == nil {
		row = s.db.QueryRowContext(ctx, subscriptionSelectCols+` WHERE account_id IS NULL AND merchant = ?`, merchant)
	} else {
		row = s.db.QueryRowContext(ctx, subscriptionSelectCols+` WHERE account_id = ? AND merchant = ?`, *accountID, merchant)
	}
	return scanSubscription(row)
}

func (s *Store) GetSubscription(ctx context.Context, id string) (*models.Subscription, error) {
	row := s.db.QueryRowContext(ctx, subscriptionSelectCols+` WHERE id = ?`, id)
	return scanSubscription(row)
}

// ListSubscriptions returns subscriptions, optionally filtered by status.
func (s *Store) ListSubscriptions(ctx context.Context, status *models.SubscriptionStatus) ([]models.Subscription, error) {
	var rows *sql.Rows
	var err error
	if status == nil {
		rows, err = s.db.QueryContext(ctx, subscriptionSelectCols+` ORDER BY merchant`)
	} else {
		rows, err = s.db.QueryContext(ctx, subscriptionSelectCols+` WHERE status = ? ORDER BY merchant`, string(*status))
	}
	if err != nil {
		return nil, honeerr.Wrap(honeerr.KindTransient, "store.ListSubscriptions", err)
	}
	defer rows.Close()

	var out []models.Subscription
	for rows.Next() {
		sub, err := scanSubscriptionGeneric(rows)
		if err != nil {
			return nil, honeerr.Wrap(honeerr.KindFatal, "store.ListSubscriptions", err)
		}
		out = append(out, *sub)
	}
	return out, rows.Err()
}

func (s *Store) SetSubscriptionStatus(ctx context.Context, id string, status models.SubscriptionStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE subscriptions SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return honeerr.Wrap(honeerr.KindTransient, "store.SetSubscriptionStatus", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return honeerr.NotFound("store.SetSubscriptionStatus", honeerr.ErrSubscriptionNotFound)
	}
	return nil
}

// AcknowledgeSubscription records the user's explicit review of a
// subscription (e.g. dismissing a zombie alert as intentional).
func (s *Store) AcknowledgeSubscription(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE subscriptions SET user_acknowledged = 1, acknowledged_at = ? WHERE id = ?`,
		formatTime(nowUTC()), id,
	)
	if err != nil {
		return honeerr.Wrap(honeerr.KindTransient, "store.AcknowledgeSubscription", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return honeerr.NotFound("store.AcknowledgeSubscription", honeerr.ErrSubscriptionNotFound)
	}
	return nil
}

// RecordPriceChange appends a price-history entry for a subscription.
func (s *Store) RecordPriceChange(ctx context.Context, subscriptionID string, amount float64) (*models.PriceHistory, error) {
	ph := &models.PriceHistory{
		ID:             newID(),
		SubscriptionID: subscriptionID,
		Amount:         amount,
		DetectedAt:     nowUTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO price_history (id, subscription_id, amount, detected_at) VALUES (?, ?, ?, ?)`,
		ph.ID, ph.SubscriptionID, ph.Amount, formatTime(ph.DetectedAt),
	)
	if err != nil {
		return nil, honeerr.Wrap(honeerr.KindTransient, "store.RecordPriceChange", err)
	}
	return ph, nil
}

// ListPriceHistory returns price history for a subscription ordered oldest first.
func (s *Store) ListPriceHistory(ctx context.Context, subscriptionID string) ([]models.PriceHistory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, subscription_id, amount, detected_at FROM price_history
		WHERE subscription_id = ? ORDER BY detected_at`, subscriptionID)
	if err != nil {
		return nil, honeerr.Wrap(honeerr.KindTransient, "store.ListPriceHistory", err)
	}
	defer rows.Close()

	var out []models.PriceHistory
	for rows.Next() {
		var ph models.PriceHistory
		var detectedAt string
		if err := rows.Scan(&ph.ID, &ph.SubscriptionID, &ph.Amount, &detectedAt); err != nil {
			return nil, honeerr.Wrap(honeerr.KindFatal, "store.ListPriceHistory", err)
		}
		ph.DetectedAt = parseTime(detectedAt)
		out = append(out, ph)
	}
	return out, rows.Err()
}

// UpsertMerchantSubscriptionCache records an AI or user classification of
// whether a merchant name represents a subscription, keyed by merchant so
// repeated imports skip re-asking the model.
func (s *Store) UpsertMerchantSubscriptionCache(ctx context.Context, merchant string, isSubscription bool, confidence float64, source models.MerchantCacheSource) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO merchant_subscription_cache (merchant, is_subscription, confidence, source, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(merchant) DO UPDATE SET is_subscription = excluded.is_subscription, confidence = excluded.confidence, source = excluded.source, updated_at = excluded.updated_at`,
		merchant, boolToInt(isSubscription), confidence, string(source), formatTime(nowUTC()),
	)
	if err != nil {
		return honeerr.Wrap(honeerr.KindTransient, "store.UpsertMerchantSubscriptionCache", err)
	}
	return nil
}

// GetMerchantSubscriptionCache returns the cached classification for a
// merchant, or honeerr.KindNotFound if it has never been classified.
func (s *Store) GetMerchantSubscriptionCache(ctx context.Context, merchant string) (*models.MerchantSubscriptionCache, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT merchant, is_subscription, confidence, source, updated_at
		FROM merchant_subscription_cache WHERE merchant = ?`, merchant)

	var c models.MerchantSubscriptionCache
	var isSubscription int
	var source, updatedAt string
	if err := row.Scan(&c.Merchant, &isSubscription, &c.Confidence, &source, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, honeerr.NotFound("store.GetMerchantSubscriptionCache", fmt.Errorf("no cached classification for %q", merchant))
		}
		return nil, honeerr.Wrap(honeerr.KindFatal, "store.GetMerchantSubscriptionCache", err)
	}
	c.IsSubscription = isSubscription != 0
	c.Source = models.MerchantCacheSource(source)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

const subscriptionSelectCols = `
	SELECT id, merchant, account_id, amount, frequency, first_seen, last_seen,
		status, user_acknowledged, acknowledged_at, created_at
	FROM subscriptions`

func scanSubscription(row *sql.Row) (*models.Subscription, error) {
	return scanSubscriptionGeneric(row)
}

func scanSubscriptionGeneric(row rowScanner) (*models.Subscription, error) {
	var sub models.Subscription
	var accountID, frequency, firstSeen, lastSeen, acknowledgedAt sql.NullString
	var amount sql.NullFloat64
	var userAcknowledged int
	var status, createdAt string

	err := row.Scan(&sub.ID, &sub.Merchant, &accountID, &amount, &frequency, &firstSeen, &lastSeen,
		&status, &userAcknowledged, &acknowledgedAt, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, honeerr.NotFound("store.scanSubscription", honeerr.ErrSubscriptionNotFound)
		}
		return nil, fmt.Errorf("scan subscription: %w", err)
	}

	sub.AccountID = stringOrNil(accountID)
	sub.Amount = floatOrNil(amount)
	if frequency.Valid {
		f := models.Frequency(frequency.String)
		sub.Frequency = &f
	}
	sub.FirstSeen = timeOrNil(firstSeen)
	sub.LastSeen = timeOrNil(lastSeen)
	sub.Status = models.SubscriptionStatus(status)
	sub.UserAcknowledged = userAcknowledged != 0
	sub.AcknowledgedAt = timeOrNil(acknowledgedAt)
	sub.CreatedAt = parseTime(createdAt)
	return &sub, nil
}

func nullableFrequency(f *models.Frequency) sql.NullString {
	if f == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*f), Valid: true}
}
