// Package store implements the transactional persistence layer: account,
// transaction, tag, subscription, alert, receipt, and import-session CRUD,
// plus the aggregate read models the rest of the engine depends on.
package store

import (
	"database/sql"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/honecore/core/internal/crypto"
)

// Store wraps a database handle with the engine's domain operations.
type Store struct {
	db  *sql.DB
	enc *crypto.Encryptor
}

// Option configures optional Store behavior.
type Option func(*Store)

// WithEncryptor enables AES-256-GCM encryption of original_data, the raw
// per-row import payload transactions carry for audit/debugging. Without it,
// original_data is stored as plaintext. cmd/honecore always passes one,
// keyed from a fixed passphrase when HONE_ALLOW_UNENCRYPTED is set.
func WithEncryptor(enc *crypto.Encryptor) Option {
	return func(s *Store) { s.enc = enc }
}

// New returns a Store backed by db. Callers are responsible for opening and
// migrating db beforehand (see internal/database).
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB exposes the underlying handle for callers that need to compose a
// cross-entity transaction (e.g. the import orchestrator).
func (s *Store) DB() *sql.DB { return s.db }

func newID() string {
	return ulid.Make().String()
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringOrNil(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func nullableFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatOrNil(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	v := nf.Float64
	return &v
}

func nullableTimeStr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func timeOrNil(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func nullableInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func intOrNil(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	v := int(ni.Int64)
	return &v
}

func int64OrNil(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	v := ni.Int64
	return &v
}
