package migrations

func init() {
	Register(Migration{
		Timestamp:   "20260315-000000",
		Description: "link transactions to the import session that created them",
		Up: []string{
			`ALTER TABLE transactions ADD COLUMN import_session_id TEXT REFERENCES import_sessions(id) ON DELETE SET NULL`,
			`CREATE INDEX IF NOT EXISTS idx_transactions_import_session ON transactions(import_session_id)`,
		},
	})
}
