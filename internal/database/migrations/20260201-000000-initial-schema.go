package migrations

func init() {
	Register(Migration{
		Timestamp:   "20260201-000000",
		Description: "initial schema",
		Up: []string{
			`CREATE TABLE IF NOT EXISTS entities (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				created_at TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS locations (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				created_at TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS trips (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				start_date TEXT,
				end_date TEXT,
				created_at TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS accounts (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				bank TEXT NOT NULL,
				type TEXT,
				entity_id TEXT REFERENCES entities(id) ON DELETE SET NULL,
				created_at TEXT NOT NULL,
				UNIQUE(name, bank)
			)`,
			`CREATE TABLE IF NOT EXISTS tags (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				parent_id TEXT REFERENCES tags(id) ON DELETE CASCADE,
				color TEXT,
				icon TEXT,
				auto_patterns TEXT,
				created_at TEXT NOT NULL,
				UNIQUE(name, parent_id)
			)`,
			`CREATE TABLE IF NOT EXISTS tag_rules (
				id TEXT PRIMARY KEY,
				tag_id TEXT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
				pattern TEXT NOT NULL,
				kind TEXT NOT NULL,
				priority INTEGER NOT NULL DEFAULT 0,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_tag_rules_priority ON tag_rules(priority DESC)`,
			`CREATE TABLE IF NOT EXISTS transactions (
				id TEXT PRIMARY KEY,
				account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
				date TEXT NOT NULL,
				description TEXT NOT NULL,
				amount REAL NOT NULL,
				category TEXT,
				merchant_normalized TEXT,
				import_hash TEXT NOT NULL,
				purchase_location_id TEXT REFERENCES locations(id) ON DELETE SET NULL,
				vendor_location_id TEXT REFERENCES locations(id) ON DELETE SET NULL,
				trip_id TEXT REFERENCES trips(id) ON DELETE SET NULL,
				source TEXT NOT NULL DEFAULT 'import',
				expected_amount REAL,
				archived INTEGER NOT NULL DEFAULT 0,
				original_data TEXT,
				import_format TEXT,
				card_member TEXT,
				payment_method TEXT,
				created_at TEXT NOT NULL,
				UNIQUE(account_id, import_hash)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_transactions_account_date ON transactions(account_id, date)`,
			`CREATE INDEX IF NOT EXISTS idx_transactions_merchant ON transactions(merchant_normalized)`,
			`CREATE TABLE IF NOT EXISTS transaction_tags (
				id TEXT PRIMARY KEY,
				transaction_id TEXT NOT NULL REFERENCES transactions(id) ON DELETE CASCADE,
				tag_id TEXT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
				source TEXT NOT NULL,
				confidence REAL,
				created_at TEXT NOT NULL,
				UNIQUE(transaction_id, tag_id)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_transaction_tags_tag ON transaction_tags(tag_id)`,
			`CREATE TABLE IF NOT EXISTS learned_merchant_tags (
				merchant_key TEXT PRIMARY KEY,
				tag_id TEXT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
				confidence REAL NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS splits (
				id TEXT PRIMARY KEY,
				transaction_id TEXT NOT NULL REFERENCES transactions(id) ON DELETE CASCADE,
				kind TEXT NOT NULL,
				amount REAL NOT NULL,
				description TEXT,
				beneficiary_id TEXT REFERENCES entities(id) ON DELETE SET NULL,
				purchaser_id TEXT REFERENCES entities(id) ON DELETE SET NULL,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_splits_transaction ON splits(transaction_id)`,
			`CREATE TABLE IF NOT EXISTS mileage_logs (
				id TEXT PRIMARY KEY,
				trip_id TEXT REFERENCES trips(id) ON DELETE SET NULL,
				date TEXT NOT NULL,
				miles REAL NOT NULL,
				note TEXT,
				created_at TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS merchant_subscription_cache (
				merchant TEXT PRIMARY KEY,
				is_subscription INTEGER NOT NULL,
				confidence REAL NOT NULL,
				source TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS subscriptions (
				id TEXT PRIMARY KEY,
				merchant TEXT NOT NULL,
				account_id TEXT REFERENCES accounts(id) ON DELETE CASCADE,
				amount REAL,
				frequency TEXT,
				first_seen TEXT,
				last_seen TEXT,
				status TEXT NOT NULL DEFAULT 'active',
				user_acknowledged INTEGER NOT NULL DEFAULT 0,
				acknowledged_at TEXT,
				created_at TEXT NOT NULL,
				UNIQUE(account_id, merchant)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_subscriptions_status ON subscriptions(status)`,
			`CREATE TABLE IF NOT EXISTS price_history (
				id TEXT PRIMARY KEY,
				subscription_id TEXT NOT NULL REFERENCES subscriptions(id) ON DELETE CASCADE,
				amount REAL NOT NULL,
				detected_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_price_history_subscription ON price_history(subscription_id, detected_at)`,
			`CREATE TABLE IF NOT EXISTS alerts (
				id TEXT PRIMARY KEY,
				kind TEXT NOT NULL,
				subscription_id TEXT REFERENCES subscriptions(id) ON DELETE CASCADE,
				message TEXT NOT NULL,
				dismissed INTEGER NOT NULL DEFAULT 0,
				duplicate_data TEXT,
				spending_data TEXT,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_alerts_kind_dismissed ON alerts(kind, dismissed)`,
			`CREATE TABLE IF NOT EXISTS receipts (
				id TEXT PRIMARY KEY,
				transaction_id TEXT REFERENCES transactions(id) ON DELETE SET NULL,
				storage_ref TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'pending',
				role TEXT NOT NULL DEFAULT 'primary',
				parsed_date TEXT,
				parsed_total REAL,
				parsed_merchant TEXT,
				content_hash TEXT NOT NULL,
				parsed_json TEXT,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_receipts_status ON receipts(status)`,
			`CREATE INDEX IF NOT EXISTS idx_receipts_transaction ON receipts(transaction_id)`,
			`CREATE TABLE IF NOT EXISTS import_sessions (
				id TEXT PRIMARY KEY,
				account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
				filename TEXT NOT NULL,
				size_bytes INTEGER NOT NULL,
				bank TEXT NOT NULL,
				imported INTEGER NOT NULL DEFAULT 0,
				skipped INTEGER NOT NULL DEFAULT 0,
				tagging_learned INTEGER NOT NULL DEFAULT 0,
				tagging_rule INTEGER NOT NULL DEFAULT 0,
				tagging_pattern INTEGER NOT NULL DEFAULT 0,
				tagging_bank_category INTEGER NOT NULL DEFAULT 0,
				tagging_ollama INTEGER NOT NULL DEFAULT 0,
				tagging_manual INTEGER NOT NULL DEFAULT 0,
				detect_subscriptions_found INTEGER NOT NULL DEFAULT 0,
				detect_zombies INTEGER NOT NULL DEFAULT 0,
				detect_price_increases INTEGER NOT NULL DEFAULT 0,
				detect_duplicates INTEGER NOT NULL DEFAULT 0,
				detect_auto_cancelled INTEGER NOT NULL DEFAULT 0,
				detect_resumes INTEGER NOT NULL DEFAULT 0,
				detect_spending_anomalies INTEGER NOT NULL DEFAULT 0,
				receipts_matched INTEGER NOT NULL DEFAULT 0,
				user_id TEXT NOT NULL DEFAULT '',
				model_id TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL DEFAULT 'pending',
				phase TEXT,
				progress_current INTEGER NOT NULL DEFAULT 0,
				progress_total INTEGER NOT NULL DEFAULT 0,
				error_message TEXT,
				phase_durations_json TEXT,
				total_duration_ms INTEGER,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_import_sessions_status ON import_sessions(status)`,
			`CREATE INDEX IF NOT EXISTS idx_import_sessions_account ON import_sessions(account_id)`,
			`CREATE TABLE IF NOT EXISTS skipped_transactions (
				id TEXT PRIMARY KEY,
				session_id TEXT NOT NULL REFERENCES import_sessions(id) ON DELETE CASCADE,
				date TEXT NOT NULL,
				description TEXT NOT NULL,
				amount REAL NOT NULL,
				import_hash TEXT NOT NULL,
				existing_transaction_id TEXT REFERENCES transactions(id) ON DELETE SET NULL,
				created_at TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS reprocess_runs (
				id TEXT PRIMARY KEY,
				session_id TEXT NOT NULL REFERENCES import_sessions(id) ON DELETE CASCADE,
				run_number INTEGER NOT NULL,
				status TEXT NOT NULL DEFAULT 'pending',
				started_at TEXT NOT NULL,
				finished_at TEXT,
				error_message TEXT,
				UNIQUE(session_id, run_number)
			)`,
			`CREATE TABLE IF NOT EXISTS reprocess_snapshots (
				id TEXT PRIMARY KEY,
				run_id TEXT NOT NULL REFERENCES reprocess_runs(id) ON DELETE CASCADE,
				session_id TEXT NOT NULL REFERENCES import_sessions(id) ON DELETE CASCADE,
				kind TEXT NOT NULL,
				tagging_json TEXT NOT NULL,
				detection_json TEXT NOT NULL,
				sample_json TEXT NOT NULL,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_reprocess_snapshots_run ON reprocess_snapshots(run_id, kind)`,
			`CREATE TABLE IF NOT EXISTS feedback_notes (
				id TEXT PRIMARY KEY,
				target_type TEXT NOT NULL,
				target_id TEXT NOT NULL,
				note TEXT NOT NULL,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_feedback_notes_target ON feedback_notes(target_type, target_id)`,
			`CREATE TABLE IF NOT EXISTS ai_metrics (
				id TEXT PRIMARY KEY,
				capability TEXT NOT NULL,
				success INTEGER NOT NULL,
				duration_ms INTEGER NOT NULL,
				confidence REAL,
				input_text TEXT,
				result_text TEXT,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_ai_metrics_capability ON ai_metrics(capability, created_at)`,
		},
	})
}
