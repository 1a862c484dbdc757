package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/honecore/core/internal/honeerr"
	"github.com/honecore/core/internal/models"
)

// DashboardStats computes the read-model summary shown to the user on
// opening the app: counts, active subscription spend, and recent import activity.
func (s *Store) DashboardStats(ctx context.Context) (*models.DashboardStats, error) {
	var stats models.DashboardStats

	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions WHERE archived = 0`).Scan(&stats.TotalTransactions)
	if err != nil {
		return nil, honeerr.Wrap(honeerr.KindTransient, "store.DashboardStats", err)
	}

	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&stats.TotalAccounts)
	if err != nil {
		return nil, honeerr.Wrap(honeerr.KindTransient, "store.DashboardStats", err)
	}

	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM subscriptions WHERE status = ?`, string(models.SubscriptionStatusActive)).Scan(&stats.ActiveSubscriptions)
	if err != nil {
		return nil, honeerr.Wrap(honeerr.KindTransient, "store.DashboardStats", err)
	}

	var monthlyCost sql.NullFloat64
	err = s.db.QueryRowContext(ctx, `
		SELECT SUM(
			CASE frequency
				WHEN 'weekly' THEN amount * 52 / 12
				WHEN 'yearly' THEN amount / 12
				ELSE amount
			END
		) FROM subscriptions WHERE status = ? AND amount IS NOT NULL`, string(models.SubscriptionStatusActive),
	).Scan(&monthlyCost)
	if err != nil {
		return nil, honeerr.Wrap(honeerr.KindTransient, "store.DashboardStats", err)
	}
	if monthlyCost.Valid {
		stats.MonthlySubscriptionCost = monthlyCost.Float64
	}

	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alerts WHERE dismissed = 0`).Scan(&stats.ActiveAlerts)
	if err != nil {
		return nil, honeerr.Wrap(honeerr.KindTransient, "store.DashboardStats", err)
	}

	var potentialSavings sql.NullFloat64
	err = s.db.QueryRowContext(ctx, `
		SELECT SUM(sub.amount) FROM subscriptions sub
		JOIN alerts a ON a.subscription_id = sub.id
		WHERE a.kind = ? AND a.dismissed = 0 AND sub.amount IS NOT NULL`, string(models.AlertKindZombie),
	).Scan(&potentialSavings)
	if err != nil {
		return nil, honeerr.Wrap(honeerr.KindTransient, "store.DashboardStats", err)
	}
	if potentialSavings.Valid {
		stats.PotentialMonthlySavings = potentialSavings.Float64
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM transactions t
		LEFT JOIN transaction_tags tt ON tt.transaction_id = t.id
		WHERE tt.id IS NULL AND t.archived = 0`,
	).Scan(&stats.UntaggedTransactions)
	if err != nil {
		return nil, honeerr.Wrap(honeerr.KindTransient, "store.DashboardStats", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT a.name, a.bank, COUNT(t.id), MAX(s.created_at)
		FROM import_sessions s
		JOIN accounts a ON a.id = s.account_id
		LEFT JOIN transactions t ON t.account_id = s.account_id
		WHERE s.status = ?
		GROUP BY s.account_id
		ORDER BY MAX(s.created_at) DESC
		LIMIT 5`, string(models.SessionStatusCompleted),
	)
	if err != nil {
		return nil, honeerr.Wrap(honeerr.KindTransient, "store.DashboardStats", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ri models.RecentImport
		var bank, importedAt string
		var count int64
		if err := rows.Scan(&ri.AccountName, &bank, &count, &importedAt); err != nil {
			return nil, honeerr.Wrap(honeerr.KindFatal, "store.DashboardStats", err)
		}
		ri.Bank = models.Bank(bank)
		ri.TransactionCount = count
		ri.ImportedAt = parseTime(importedAt)
		stats.RecentImports = append(stats.RecentImports, ri)
	}
	if err := rows.Err(); err != nil {
		return nil, honeerr.Wrap(honeerr.KindTransient, "store.DashboardStats", err)
	}

	return &stats, nil
}

// SpendingSummary aggregates expense totals by tag name for the given date
// range, plus the untagged amount, for a spending breakdown. The anomaly
// detector uses CategorySpending instead.
func (s *Store) SpendingSummary(ctx context.Context, fromRFC3339, toRFC3339 string) (*models.SpendingSummary, error) {
	summary := &models.SpendingSummary{ByTag: make(map[string]float64)}

	rows, err := s.db.QueryContext(ctx, `
		SELECT tg.name, SUM(-t.amount)
		FROM transactions t
		JOIN transaction_tags tt ON tt.transaction_id = t.id
		JOIN tags tg ON tg.id = tt.tag_id
		WHERE t.amount < 0 AND t.archived = 0 AND t.date >= ? AND t.date < ?
		GROUP BY tg.name`, fromRFC3339, toRFC3339,
	)
	if err != nil {
		return nil, honeerr.Wrap(honeerr.KindTransient, "store.SpendingSummary", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tagName string
		var amount float64
		if err := rows.Scan(&tagName, &amount); err != nil {
			return nil, honeerr.Wrap(honeerr.KindFatal, "store.SpendingSummary", err)
		}
		summary.ByTag[tagName] = amount
		summary.Total += amount
	}
	if err := rows.Err(); err != nil {
		return nil, honeerr.Wrap(honeerr.KindTransient, "store.SpendingSummary", err)
	}

	var untagged sql.NullFloat64
	err = s.db.QueryRowContext(ctx, `
		SELECT SUM(-t.amount) FROM transactions t
		LEFT JOIN transaction_tags tt ON tt.transaction_id = t.id
		WHERE tt.id IS NULL AND t.amount < 0 AND t.archived = 0 AND t.date >= ? AND t.date < ?`,
		fromRFC3339, toRFC3339,
	).Scan(&untagged)
	if err != nil {
		return nil, honeerr.Wrap(honeerr.KindTransient, "store.SpendingSummary", err)
	}
	if untagged.Valid {
		summary.UntaggedAmount = untagged.Float64
		summary.Total += untagged.Float64
	}

	return summary, nil
}

// CategorySpending aggregates expense totals by tag ID for the given date
// range, the per-category unit the spending-anomaly detector compares
// baseline to current against.
func (s *Store) CategorySpending(ctx context.Context, fromRFC3339, toRFC3339 string) ([]models.CategorySpending, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tg.id, tg.name, SUM(-t.amount)
		FROM transactions t
		JOIN transaction_tags tt ON tt.transaction_id = t.id
		JOIN tags tg ON tg.id = tt.tag_id
		WHERE t.amount < 0 AND t.archived = 0 AND t.date >= ? AND t.date < ?
		GROUP BY tg.id, tg.name`, fromRFC3339, toRFC3339,
	)
	if err != nil {
		return nil, honeerr.Wrap(honeerr.KindTransient, "store.CategorySpending", err)
	}
	defer rows.Close()

	var out []models.CategorySpending
	for rows.Next() {
		var cs models.CategorySpending
		if err := rows.Scan(&cs.TagID, &cs.TagName, &cs.Amount); err != nil {
			return nil, honeerr.Wrap(honeerr.KindFatal, "store.CategorySpending", err)
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

// TopMerchants ranks merchants by total expense within a date range for a
// single tag, used to ground spending-anomaly explanations in concrete
// top movers. Merchant is the normalized field where present, else the raw
// description.
func (s *Store) TopMerchants(ctx context.Context, tagID, fromRFC3339, toRFC3339 string, limit int) ([]models.MerchantSpending, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(NULLIF(t.merchant_normalized, ''), t.description), SUM(-t.amount)
		FROM transactions t
		JOIN transaction_tags tt ON tt.transaction_id = t.id
		WHERE tt.tag_id = ? AND t.amount < 0 AND t.archived = 0 AND t.date >= ? AND t.date < ?
		GROUP BY 1
		ORDER BY 2 DESC
		LIMIT ?`, tagID, fromRFC3339, toRFC3339, limit,
	)
	if err != nil {
		return nil, honeerr.Wrap(honeerr.KindTransient, "store.TopMerchants", err)
	}
	defer rows.Close()

	var out []models.MerchantSpending
	for rows.Next() {
		var m models.MerchantSpending
		if err := rows.Scan(&m.Merchant, &m.Amount); err != nil {
			return nil, honeerr.Wrap(honeerr.KindFatal, "store.TopMerchants", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CreateFeedbackNote records a free-text note against an insight or
// categorization decision, used to tune future tagging and detection.
func (s *Store) CreateFeedbackNote(ctx context.Context, targetType models.FeedbackTargetType, targetID, note string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback_notes (id, target_type, target_id, note, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		newID(), string(targetType), targetID, note, formatTime(nowUTC()),
	)
	if err != nil {
		return honeerr.Wrap(honeerr.KindTransient, "store.CreateFeedbackNote", err)
	}
	return nil
}

// ListFeedbackNotes returns recent free-text notes for a target type, most
// recent first, so AI-grounded explanations can be tuned by prior user
// corrections.
func (s *Store) ListFeedbackNotes(ctx context.Context, targetType models.FeedbackTargetType, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT note FROM feedback_notes WHERE target_type = ? ORDER BY created_at DESC LIMIT ?`,
		string(targetType), limit,
	)
	if err != nil {
		return nil, honeerr.Wrap(honeerr.KindTransient, "store.ListFeedbackNotes", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var note string
		if err := rows.Scan(&note); err != nil {
			return nil, honeerr.Wrap(honeerr.KindFatal, "store.ListFeedbackNotes", err)
		}
		out = append(out, note)
	}
	return out, rows.Err()
}

// RecordAIMetric logs a single AI capability invocation's outcome and
// latency.
func (s *Store) RecordAIMetric(ctx context.Context, capability string, success bool, durationMS int64) error {
	return s.RecordAIMetricDetailed(ctx, capability, success, durationMS, nil, "", "")
}

// RecordAIMetricDetailed is RecordAIMetric plus the confidence score and raw
// input/result text the AI capability port captures for debugging and
// future prompt tuning. confidence is nil when the call failed outright.
func (s *Store) RecordAIMetricDetailed(ctx context.Context, capability string, success bool, durationMS int64, confidence *float64, inputText, resultText string) error {
	var inputPtr, resultPtr *string
	if inputText != "" {
		inputPtr = &inputText
	}
	if resultText != "" {
		resultPtr = &resultText
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ai_metrics (id, capability, success, duration_ms, confidence, input_text, result_text, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		newID(), capability, boolToInt(success), durationMS, nullableFloat(confidence), nullableString(inputPtr), nullableString(resultPtr), formatTime(nowUTC()),
	)
	if err != nil {
		return honeerr.Wrap(honeerr.KindTransient, "store.RecordAIMetricDetailed", err)
	}
	return nil
}

// AIMetricSuccessRate returns the success rate for a capability over its
// most recent N invocations, used to decide whether to keep routing to AI
// or fall back to deterministic heuristics.
func (s *Store) AIMetricSuccessRate(ctx context.Context, capability string, lastN int) (float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT success FROM ai_metrics WHERE capability = ? ORDER BY created_at DESC LIMIT ?`, capability, lastN)
	if err != nil {
		return 0, honeerr.Wrap(honeerr.KindTransient, "store.AIMetricSuccessRate", err)
	}
	defer rows.Close()

	var total, successes int
	for rows.Next() {
		var success int
		if err := rows.Scan(&success); err != nil {
			return 0, honeerr.Wrap(honeerr.KindFatal, "store.AIMetricSuccessRate", err)
		}
		total++
		if success != 0 {
			successes++
		}
	}
	if err := rows.Err(); err != nil {
		return 0, honeerr.Wrap(honeerr.KindTransient, "store.AIMetricSuccessRate", err)
	}
	if total == 0 {
		return 0, honeerr.NotFound("store.AIMetricSuccessRate", fmt.Errorf("no metrics recorded for capability %q", capability))
	}
	return float64(successes) / float64(total), nil
}
