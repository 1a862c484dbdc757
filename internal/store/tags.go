package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/honecore/core/internal/honeerr"
	"github.com/honecore/core/internal/models"
)

// CreateTag inserts a new tag, optionally nested under parentID.
func (s *Store) CreateTag(ctx context.Context, name string, parentID *string, color, icon, autoPatterns *string) (*models.Tag, error) {
	t := &models.Tag{
		ID:           newID(),
		Name:         name,
		ParentID:     parentID,
		Color:        color,
		Icon:         icon,
		AutoPatterns: autoPatterns,
		CreatedAt:    nowUTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tags (id, name, parent_id, color, icon, auto_patterns, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, nullableString(t.ParentID), nullableString(t.Color), nullableString(t.Icon),
		nullableString(t.AutoPatterns), formatTime(t.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, honeerr.Conflict("store.CreateTag", honeerr.ErrDuplicateTagName)
		}
		return nil, honeerr.Wrap(honeerr.KindTransient, "store.CreateTag", err)
	}
	return t, nil
}

func (s *Store) GetTag(ctx context.Context, id string) (*models.Tag, error) {
	row := s.db.QueryRowContext(ctx, tagSelectCols+` WHERE id = ?`, id)
	return scanTag(row)
}

// ResolveTagByName looks up a tag by bare name. If more than one tag shares
// the name (distinct branches of the tree), it returns honeerr.ErrAmbiguousTagName
// so callers can prompt for disambiguation by parent instead of guessing.
func (s *Store) ResolveTagByName(ctx context.Context, name string) (*models.Tag, error) {
	rows, err := s.db.QueryContext(ctx, tagSelectCols+` WHERE name = ?`, name)
	if err != nil {
		return nil, honeerr.Wrap(honeerr.KindTransient, "store.ResolveTagByName", err)
	}
	defer rows.Close()

	var matches []models.Tag
	for rows.Next() {
		t, err := scanTagGeneric(rows)
		if err != nil {
			return nil, honeerr.Wrap(honeerr.KindFatal, "store.ResolveTagByName", err)
		}
		matches = append(matches, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, honeerr.Wrap(honeerr.KindTransient, "store.ResolveTagByName", err)
	}

	switch len(matches) {
	case 0:
		return nil, honeerr.NotFound("store.ResolveTagByName", honeerr.ErrTagNotFound)
	case 1:
		return &matches[0], nil
	default:
		return nil, honeerr.Conflict("store.ResolveTagByName", honeerr.ErrAmbiguousTagName)
	}
}

// ListTags returns the full tag tree, ordered so parents precede children.
func (s *Store) ListTags(ctx context.Context) ([]models.Tag, error) {
	rows, err := s.db.QueryContext(ctx, tagSelectCols+` ORDER BY parent_id IS NOT NULL, name`)
	if err != nil {
		return nil, honeerr.Wrap(honeerr.KindTransient, "store.ListTags", err)
	}
	defer rows.Close()

	var out []models.Tag
	for rows.Next() {
		t, err := scanTagGeneric(rows)
		if err != nil {
			return nil, honeerr.Wrap(honeerr.KindFatal, "store.ListTags", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *Store) DeleteTag(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tags WHERE id = ?`, id)
	if err != nil {
		return honeerr.Wrap(honeerr.KindTransient, "store.DeleteTag", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return honeerr.NotFound("store.DeleteTag", honeerr.ErrTagNotFound)
	}
	return nil
}

// CreateTagRule inserts a pattern-based auto-tagging rule.
func (s *Store) CreateTagRule(ctx context.Context, tagID, pattern string, kind models.PatternKind, priority int) (*models.TagRule, error) {
	r := &models.TagRule{
		ID:        newID(),
		TagID:     tagID,
		Pattern:   pattern,
		Kind:      kind,
		Priority:  priority,
		CreatedAt: nowUTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tag_rules (id, tag_id, pattern, kind, priority, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.TagID, r.Pattern, string(r.Kind), r.Priority, formatTime(r.CreatedAt),
	)
	if err != nil {
		return nil, honeerr.Wrap(honeerr.KindTransient, "store.CreateTagRule", err)
	}
	return r, nil
}

// ListTagRules returns all rules ordered by priority descending, the order
// the tag engine evaluates them in.
func (s *Store) ListTagRules(ctx context.Context) ([]models.TagRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tag_id, pattern, kind, priority, created_at FROM tag_rules ORDER BY priority DESC`)
	if err != nil {
		return nil, honeerr.Wrap(honeerr.KindTransient, "store.ListTagRules", err)
	}
	defer rows.Close()

	var out []models.TagRule
	for rows.Next() {
		var r models.TagRule
		var kind, createdAt string
		if err := rows.Scan(&r.ID, &r.TagID, &r.Pattern, &kind, &r.Priority, &createdAt); err != nil {
			return nil, honeerr.Wrap(honeerr.KindFatal, "store.ListTagRules", err)
		}
		r.Kind = models.PatternKind(kind)
		r.CreatedAt = parseTime(createdAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// TagTransaction associates a tag with a transaction. Confidence is only
// meaningful for non-manual sources (pattern/rule/bank_category/ollama/learned);
// manual tags carry nil.
func (s *Store) TagTransaction(ctx context.Context, transactionID, tagID string, source models.TagSource, confidence *float64) (*models.TransactionTag, error) {
	tt := &models.TransactionTag{
		ID:            newID(),
		TransactionID: transactionID,
		TagID:         tagID,
		Source:        source,
		Confidence:    confidence,
		CreatedAt:     nowUTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transaction_tags (id, transaction_id, tag_id, source, confidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(transaction_id, tag_id) DO UPDATE SET source = excluded.source, confidence = excluded.confidence`,
		tt.ID, tt.TransactionID, tt.TagID, string(tt.Source), nullableFloat(tt.Confidence), formatTime(tt.CreatedAt),
	)
	if err != nil {
		return nil, honeerr.Wrap(honeerr.KindTransient, "store.TagTransaction", err)
	}
	return tt, nil
}

// ClearAutoTags removes every non-manual tag assignment for a transaction,
// leaving user-applied (TagSourceManual) tags untouched. Used before
// re-running the tag engine on reprocessing.
func (s *Store) ClearAutoTags(ctx context.Context, transactionID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM transaction_tags WHERE transaction_id = ? AND source != ?`,
		transactionID, string(models.TagSourceManual),
	)
	if err != nil {
		return honeerr.Wrap(honeerr.KindTransient, "store.ClearAutoTags", err)
	}
	return nil
}

// ListTransactionTags returns the tags currently applied to a transaction.
func (s *Store) ListTransactionTags(ctx context.Context, transactionID string) ([]models.TransactionTag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transaction_id, tag_id, source, confidence, created_at
		FROM transaction_tags WHERE transaction_id = ?`, transactionID)
	if err != nil {
		return nil, honeerr.Wrap(honeerr.KindTransient, "store.ListTransactionTags", err)
	}
	defer rows.Close()

	var out []models.TransactionTag
	for rows.Next() {
		var tt models.TransactionTag
		var source, createdAt string
		var confidence sql.NullFloat64
		if err := rows.Scan(&tt.ID, &tt.TransactionID, &tt.TagID, &source, &confidence, &createdAt); err != nil {
			return nil, honeerr.Wrap(honeerr.KindFatal, "store.ListTransactionTags", err)
		}
		tt.Source = models.TagSource(source)
		tt.Confidence = floatOrNil(confidence)
		tt.CreatedAt = parseTime(createdAt)
		out = append(out, tt)
	}
	return out, rows.Err()
}

// UpsertLearnedMerchantTag records that merchantKey should map to tagID.
// Only explicit calls write this table; TagTransaction with TagSourceManual
// does not update it. Subsequent tag engine passes consult this before any
// rule, pattern, or AI layer so a learned mapping dominates for that merchant.
func (s *Store) UpsertLearnedMerchantTag(ctx context.Context, merchantKey, tagID string, confidence float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO learned_merchant_tags (merchant_key, tag_id, confidence, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(merchant_key) DO UPDATE SET tag_id = excluded.tag_id, confidence = excluded.confidence, updated_at = excluded.updated_at`,
		merchantKey, tagID, confidence, formatTime(nowUTC()),
	)
	if err != nil {
		return honeerr.Wrap(honeerr.KindTransient, "store.UpsertLearnedMerchantTag", err)
	}
	return nil
}

// GetLearnedMerchantTag returns the learned (tag, confidence) pair for a
// merchant key, or honeerr.KindNotFound if nothing has been learned for it.
func (s *Store) GetLearnedMerchantTag(ctx context.Context, merchantKey string) (*models.Tag, float64, error) {
	var tagID string
	var confidence float64
	err := s.db.QueryRowContext(ctx, `SELECT tag_id, confidence FROM learned_merchant_tags WHERE merchant_key = ?`, merchantKey).
		Scan(&tagID, &confidence)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, honeerr.NotFound("store.GetLearnedMerchantTag", fmt.Errorf("no learned tag for merchant %q", merchantKey))
		}
		return nil, 0, honeerr.Wrap(honeerr.KindTransient, "store.GetLearnedMerchantTag", err)
	}
	tag, err := s.GetTag(ctx, tagID)
	if err != nil {
		return nil, 0, err
	}
	return tag, confidence, nil
}

// GetTagByPath resolves a dotted tag path ("Transport.Gas") by walking the
// tag tree one segment at a time, matching each segment's name under the
// previous segment's tag (root for the first segment). Used by the tag
// engine's bank-category/AI layers and the subscription detector's
// Financial.Fees exclusion.
func (s *Store) GetTagByPath(ctx context.Context, path string) (*models.Tag, error) {
	tags, err := s.ListTags(ctx)
	if err != nil {
		return nil, err
	}
	byParentName := make(map[string]models.Tag, len(tags))
	for _, t := range tags {
		parentKey := ""
		if t.ParentID != nil {
			parentKey = *t.ParentID
		}
		byParentName[parentKey+"\x00"+t.Name] = t
	}

	segments := strings.Split(path, ".")
	var current models.Tag
	parentKey := ""
	for i, seg := range segments {
		t, ok := byParentName[parentKey+"\x00"+seg]
		if !ok {
			return nil, honeerr.NotFound("store.GetTagByPath", fmt.Errorf("tag path %q not found", path))
		}
		current = t
		parentKey = t.ID
		if i == len(segments)-1 {
			return &current, nil
		}
	}
	return &current, nil
}

// ListTransactionIDsWithTag returns the set of transaction IDs currently
// carrying tagID, used by the subscription detector to exclude
// Financial.Fees-tagged transactions before grouping.
func (s *Store) ListTransactionIDsWithTag(ctx context.Context, tagID string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT transaction_id FROM transaction_tags WHERE tag_id = ?`, tagID)
	if err != nil {
		return nil, honeerr.Wrap(honeerr.KindTransient, "store.ListTransactionIDsWithTag", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, honeerr.Wrap(honeerr.KindFatal, "store.ListTransactionIDsWithTag", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}

const tagSelectCols = `SELECT id, name, parent_id, color, icon, auto_patterns, created_at FROM tags`

func scanTag(row *sql.Row) (*models.Tag, error) {
	return scanTagGeneric(row)
}

func scanTagGeneric(row rowScanner) (*models.Tag, error) {
	var t models.Tag
	var parentID, color, icon, autoPatterns sql.NullString
	var createdAt string
	if err := row.Scan(&t.ID, &t.Name, &parentID, &color, &icon, &autoPatterns, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, honeerr.NotFound("store.scanTag", honeerr.ErrTagNotFound)
		}
		return nil, fmt.Errorf("scan tag: %w", err)
	}
	t.ParentID = stringOrNil(parentID)
	t.Color = stringOrNil(color)
	t.Icon = stringOrNil(icon)
	t.AutoPatterns = stringOrNil(autoPatterns)
	t.CreatedAt = parseTime(createdAt)
	return &t, nil
}
