// Package models defines the domain models for the application: accounts,
// transactions, tags, subscriptions, alerts, receipts, and import sessions.
package models

import "time"

// Bank identifies the supported banks for statement import.
type Bank string

const (
	BankChase         Bank = "chase"
	BankBankOfAmerica Bank = "bank_of_america"
	BankAmex          Bank = "amex"
	BankCapitalOne    Bank = "capital_one"
)

// ParseBank parses a bank string, falling back to Chase on an unrecognized
// value.
func ParseBank(s string) Bank {
	switch Bank(s) {
	case BankChase, BankBankOfAmerica, BankAmex, BankCapitalOne:
		return Bank(s)
	default:
		return BankChase
	}
}

// AccountType is an optional classification of an account.
type AccountType string

const (
	AccountTypeChecking AccountType = "checking"
	AccountTypeSavings  AccountType = "savings"
	AccountTypeCredit   AccountType = "credit"
)

// Account is a bank account, unique by (name, bank).
type Account struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Bank      Bank        `json:"bank"`
	Type      *AccountType `json:"type,omitempty"`
	EntityID  *string     `json:"entity_id,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// TransactionSource records how a transaction entered the system.
type TransactionSource string

const (
	TransactionSourceImport  TransactionSource = "import"
	TransactionSourceReceipt TransactionSource = "receipt"
	TransactionSourceManual  TransactionSource = "manual"
)

// PaymentMethod is the payment rail used for a transaction, when known.
type PaymentMethod string

const (
	PaymentMethodApplePay     PaymentMethod = "apple_pay"
	PaymentMethodGooglePay    PaymentMethod = "google_pay"
	PaymentMethodPhysicalCard PaymentMethod = "physical_card"
	PaymentMethodOnline       PaymentMethod = "online"
	PaymentMethodRecurring    PaymentMethod = "recurring"
)

// Transaction is a single ledger line. Amount is signed: negative is an
// expense, positive a credit.
type Transaction struct {
	ID                 string             `json:"id"`
	AccountID          string             `json:"account_id"`
	Date               time.Time          `json:"date"`
	Description        string             `json:"description"`
	Amount             float64            `json:"amount"`
	Category           *string            `json:"category,omitempty"`
	MerchantNormalized *string            `json:"merchant_normalized,omitempty"`
	ImportHash         string             `json:"import_hash"`
	PurchaseLocationID *string            `json:"purchase_location_id,omitempty"`
	VendorLocationID   *string            `json:"vendor_location_id,omitempty"`
	TripID             *string            `json:"trip_id,omitempty"`
	Source             TransactionSource  `json:"source"`
	ExpectedAmount     *float64           `json:"expected_amount,omitempty"`
	Archived           bool               `json:"archived"`
	OriginalData       *string            `json:"-"` // encrypted at rest, see internal/crypto
	ImportFormat       *string            `json:"import_format,omitempty"`
	CardMember         *string            `json:"card_member,omitempty"`
	PaymentMethod      *PaymentMethod     `json:"payment_method,omitempty"`
	ImportSessionID    *string            `json:"import_session_id,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
}

// NewTransaction is the caller-provided shape of a transaction prior to
// insertion; ImportHash is a stable fingerprint computed upstream over
// (date, description, amount, sequence-within-file). ImportSessionID links
// the row back to the orchestrator run that created it, for session-scoped
// backfill and before/after reprocess snapshots.
type NewTransaction struct {
	Date            time.Time
	Description     string
	Amount          float64
	Category        *string
	ImportHash      string
	OriginalData    *string
	ImportFormat    *string
	CardMember      *string
	PaymentMethod   *PaymentMethod
	ImportSessionID *string
}

// IsExpense reports whether the transaction is a debit (negative amount).
func (t Transaction) IsExpense() bool { return t.Amount < 0 }

// Tag is a node in the category tree. Siblings are unique by name under the
// same parent; a bare name is ambiguous when it occurs at more than one
// node, and resolution by bare name must fail in that case — callers then
// need the dotted path (e.g. "Transport.Gas").
type Tag struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	ParentID     *string   `json:"parent_id,omitempty"`
	Color        *string   `json:"color,omitempty"`
	Icon         *string   `json:"icon,omitempty"`
	AutoPatterns *string   `json:"auto_patterns,omitempty"` // pipe-separated patterns used by the Pattern layer
	CreatedAt    time.Time `json:"created_at"`
}

// TagSource records which layer of the tag engine produced a TransactionTag
// edge. Only Manual edges survive an auto-tag clear.
type TagSource string

const (
	TagSourceManual       TagSource = "manual"
	TagSourcePattern      TagSource = "pattern"
	TagSourceOllama       TagSource = "ollama"
	TagSourceRule         TagSource = "rule"
	TagSourceBankCategory TagSource = "bank_category"
	TagSourceLearned      TagSource = "learned"
)

// TransactionTag is the edge between a transaction and a tag.
type TransactionTag struct {
	ID            string     `json:"id"`
	TransactionID string     `json:"transaction_id"`
	TagID         string     `json:"tag_id"`
	Source        TagSource  `json:"source"`
	Confidence    *float64   `json:"confidence,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// PatternKind is the matching semantics of a TagRule pattern.
type PatternKind string

const (
	PatternKindContains PatternKind = "contains" // pipe-OR, case-insensitive
	PatternKindRegex    PatternKind = "regex"
	PatternKindExact    PatternKind = "exact" // case-insensitive
)

// TagRule is a user-defined pattern→tag mapping, evaluated in descending
// Priority order.
type TagRule struct {
	ID        string      `json:"id"`
	TagID     string      `json:"tag_id"`
	Pattern   string      `json:"pattern"`
	Kind      PatternKind `json:"kind"`
	Priority  int         `json:"priority"`
	CreatedAt time.Time   `json:"created_at"`
}

// Frequency is a subscription's billing cadence.
type Frequency string

const (
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

// SubscriptionStatus is the detector's lifecycle state for a subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusZombie    SubscriptionStatus = "zombie"
	SubscriptionStatusExcluded  SubscriptionStatus = "excluded"
)

// Subscription is a detected recurring charge, unique by (account, merchant).
type Subscription struct {
	ID               string              `json:"id"`
	Merchant         string              `json:"merchant"`
	AccountID        *string             `json:"account_id,omitempty"`
	Amount           *float64            `json:"amount,omitempty"`
	Frequency        *Frequency          `json:"frequency,omitempty"`
	FirstSeen        *time.Time          `json:"first_seen,omitempty"`
	LastSeen         *time.Time          `json:"last_seen,omitempty"`
	Status           SubscriptionStatus  `json:"status"`
	UserAcknowledged bool                `json:"user_acknowledged"`
	AcknowledgedAt   *time.Time          `json:"acknowledged_at,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
}

// MerchantCacheSource records why a merchant was classified as a
// subscription (or not). User overrides dominate and must never be
// overwritten by an automated classification.
type MerchantCacheSource string

const (
	MerchantCacheSourceOllama       MerchantCacheSource = "ollama"
	MerchantCacheSourceUserOverride MerchantCacheSource = "user_override"
)

// MerchantSubscriptionCache memoizes the "is this merchant a subscription
// service" classification, keyed by canonical merchant.
type MerchantSubscriptionCache struct {
	Merchant       string              `json:"merchant"`
	IsSubscription bool                `json:"is_subscription"`
	Confidence     float64             `json:"confidence"`
	Source         MerchantCacheSource `json:"source"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// PriceHistory is an append-only trail of subscription price points,
// appended through store.RecordPriceChange. The price-increase detector
// neither writes nor reads it.
// Supplements the spec's data model per original_source's PriceHistory type.
type PriceHistory struct {
	ID             string    `json:"id"`
	SubscriptionID string    `json:"subscription_id"`
	Amount         float64   `json:"amount"`
	DetectedAt     time.Time `json:"detected_at"`
}

// AlertKind is the category of alert a detector emits.
type AlertKind string

const (
	AlertKindZombie          AlertKind = "zombie"
	AlertKindPriceIncrease   AlertKind = "price_increase"
	AlertKindDuplicate       AlertKind = "duplicate"
	AlertKindResume          AlertKind = "resume"
	AlertKindSpendingAnomaly AlertKind = "spending_anomaly"
)

// DuplicateServiceFeature is one service's unique selling point, as
// analyzed by the AI port.
type DuplicateServiceFeature struct {
	Service string `json:"service"`
	Unique  string `json:"unique"`
}

// DuplicateAnalysis is the structured payload attached to a Duplicate alert.
type DuplicateAnalysis struct {
	Overlap        string                    `json:"overlap"`
	UniqueFeatures []DuplicateServiceFeature `json:"unique_features"`
}

// SpendingChangeExplanation is the AI-generated narrative attached to a
// SpendingAnomaly alert.
type SpendingChangeExplanation struct {
	Summary    string    `json:"summary"`
	Reasons    []string  `json:"reasons"` // at most 3
	Model      string    `json:"model"`
	AnalyzedAt time.Time `json:"analyzed_at"`
}

// SpendingAnomalyData is the structured payload attached to a
// SpendingAnomaly alert.
type SpendingAnomalyData struct {
	TagID          string                     `json:"tag_id"`
	TagName        string                     `json:"tag_name"`
	BaselineAmount float64                    `json:"baseline_amount"`
	CurrentAmount  float64                    `json:"current_amount"`
	PercentChange  float64                    `json:"percent_change"`
	Explanation    *SpendingChangeExplanation `json:"explanation,omitempty"`
}

// Alert is a detector finding surfaced to the user.
type Alert struct {
	ID             string             `json:"id"`
	Kind           AlertKind          `json:"kind"`
	SubscriptionID *string            `json:"subscription_id,omitempty"`
	Message        string             `json:"message"`
	Dismissed      bool               `json:"dismissed"`
	DuplicateData  *DuplicateAnalysis `json:"duplicate_data,omitempty"`
	SpendingData   *SpendingAnomalyData `json:"spending_data,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
}

// ReceiptStatus is the reconciliation state of a receipt.
type ReceiptStatus string

const (
	ReceiptStatusMatched      ReceiptStatus = "matched"
	ReceiptStatusPending      ReceiptStatus = "pending"
	ReceiptStatusManualReview ReceiptStatus = "manual_review"
	ReceiptStatusOrphaned     ReceiptStatus = "orphaned"
)

// ReceiptRole distinguishes the primary receipt for a transaction from
// supplementary attachments (e.g. an itemized addendum).
type ReceiptRole string

const (
	ReceiptRolePrimary       ReceiptRole = "primary"
	ReceiptRoleSupplementary ReceiptRole = "supplementary"
)

// ParsedReceipt is the pre-extracted content of a receipt, each field
// optional since OCR/parsing upstream may fail to extract any of them.
type ParsedReceipt struct {
	Date     *time.Time `json:"date,omitempty"`
	Total    *float64   `json:"total,omitempty"`
	Merchant *string    `json:"merchant,omitempty"`
}

// Receipt is a scanned or uploaded proof of purchase, optionally linked to
// a transaction. Matched implies TransactionID != nil; Pending implies nil.
type Receipt struct {
	ID            string        `json:"id"`
	TransactionID *string       `json:"transaction_id,omitempty"`
	StorageRef    string        `json:"storage_ref"`
	Status        ReceiptStatus `json:"status"`
	Role          ReceiptRole   `json:"role"`
	Parsed        ParsedReceipt `json:"parsed"`
	ContentHash   string        `json:"content_hash"`
	ParsedJSON    *string       `json:"parsed_json,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// NewReceipt is the caller-provided shape of a receipt prior to insertion.
type NewReceipt struct {
	StorageRef  string
	Role        ReceiptRole
	Parsed      ParsedReceipt
	ContentHash string
	ParsedJSON  *string
}

// SessionStatus is the lifecycle state of an import session.
type SessionStatus string

const (
	SessionStatusPending    SessionStatus = "pending"
	SessionStatusProcessing SessionStatus = "processing"
	SessionStatusCompleted  SessionStatus = "completed"
	SessionStatusFailed     SessionStatus = "failed"
	SessionStatusCancelled  SessionStatus = "cancelled"
)

// Phase names recorded on an ImportSession as the orchestrator advances.
const (
	PhaseIngest           = "ingest"
	PhaseTagging          = "tagging"
	PhaseNormalizing      = "normalizing"
	PhaseMatchingReceipts = "matching_receipts"
	PhaseDetecting        = "detecting"
)

// TaggingBreakdown counts TransactionTag edges created during a session, by
// source.
type TaggingBreakdown struct {
	Learned      int `json:"learned"`
	Rule         int `json:"rule"`
	Pattern      int `json:"pattern"`
	BankCategory int `json:"bank_category"`
	Ollama       int `json:"ollama"`
	Manual       int `json:"manual"`
}

// DetectionCounters counts detector outcomes recorded during a session.
type DetectionCounters struct {
	SubscriptionsFound        int `json:"subscriptions_found"`
	ZombiesDetected           int `json:"zombies_detected"`
	PriceIncreasesDetected    int `json:"price_increases_detected"`
	DuplicatesDetected        int `json:"duplicates_detected"`
	AutoCancelled             int `json:"auto_cancelled"`
	ResumesDetected           int `json:"resumes_detected"`
	SpendingAnomaliesDetected int `json:"spending_anomalies_detected"`
}

// PhaseDuration records how long one phase of a session took.
type PhaseDuration struct {
	Phase      string `json:"phase"`
	DurationMS int64  `json:"duration_ms"`
}

// ImportSession tracks one end-to-end import batch.
type ImportSession struct {
	ID              string             `json:"id"`
	AccountID       string             `json:"account_id"`
	Filename        string             `json:"filename"`
	SizeBytes       int64              `json:"size_bytes"`
	Bank            Bank               `json:"bank"`
	Imported        int                `json:"imported"`
	Skipped         int                `json:"skipped"`
	Tagging         TaggingBreakdown   `json:"tagging"`
	Detection       DetectionCounters  `json:"detection"`
	ReceiptsMatched int                `json:"receipts_matched"`
	UserID          string             `json:"user_id"`
	ModelID         string             `json:"model_id"`
	Status          SessionStatus      `json:"status"`
	Phase           *string            `json:"phase,omitempty"`
	ProgressCurrent int                `json:"progress_current"`
	ProgressTotal   int                `json:"progress_total"`
	ErrorMessage    *string            `json:"error_message,omitempty"`
	PhaseDurations  []PhaseDuration    `json:"phase_durations,omitempty"`
	TotalDurationMS *int64             `json:"total_duration_ms,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// NewImportSession is the descriptor used to create a session row.
type NewImportSession struct {
	AccountID string
	Filename  string
	SizeBytes int64
	Bank      Bank
	UserID    string
	ModelID   string
}

// SkippedTransaction records a dedup rejection during ingest.
type SkippedTransaction struct {
	ID                    string    `json:"id"`
	SessionID             string    `json:"session_id"`
	Date                  time.Time `json:"date"`
	Description           string    `json:"description"`
	Amount                float64   `json:"amount"`
	ImportHash            string    `json:"import_hash"`
	ExistingTransactionID *string   `json:"existing_transaction_id,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
}

// SplitKind classifies one itemized line within a transaction.
type SplitKind string

const (
	SplitKindItem     SplitKind = "item"
	SplitKindTax      SplitKind = "tax"
	SplitKindTip      SplitKind = "tip"
	SplitKindFee      SplitKind = "fee"
	SplitKindDiscount SplitKind = "discount"
	SplitKindRewards  SplitKind = "rewards"
)

// Split is an itemized line within a transaction. Splits do not need to sum
// to the transaction's amount.
type Split struct {
	ID            string    `json:"id"`
	TransactionID string    `json:"transaction_id"`
	Kind          SplitKind `json:"kind"`
	Amount        float64   `json:"amount"`
	Description   *string   `json:"description,omitempty"`
	BeneficiaryID *string   `json:"beneficiary_id,omitempty"`
	PurchaserID   *string   `json:"purchaser_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Entity is an auxiliary classification axis representing a person (the
// account owner, a split beneficiary/purchaser).
type Entity struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Location is a place referenced by a transaction (purchase or vendor
// location).
type Location struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Trip groups transactions incurred during a single trip/event.
type Trip struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// MileageLog records a mileage/odometer entry, an auxiliary classification
// axis alongside splits and trips.
type MileageLog struct {
	ID        string    `json:"id"`
	TripID    *string   `json:"trip_id,omitempty"`
	Date      time.Time `json:"date"`
	Miles     float64   `json:"miles"`
	Note      *string   `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ReprocessRun is a numbered re-run of an existing session's tagging and
// detection phases.
type ReprocessRun struct {
	ID           string        `json:"id"`
	SessionID    string        `json:"session_id"`
	RunNumber    int           `json:"run_number"`
	Status       SessionStatus `json:"status"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   *time.Time    `json:"finished_at,omitempty"`
	ErrorMessage *string       `json:"error_message,omitempty"`
}

// SnapshotKind distinguishes the before/after halves of a reprocess run.
type SnapshotKind string

const (
	SnapshotKindBefore SnapshotKind = "before"
	SnapshotKindAfter  SnapshotKind = "after"
)

// TransactionSample is one sampled transaction's tag set and normalized
// merchant at snapshot time, bounded to 100 per snapshot.
type TransactionSample struct {
	TransactionID      string   `json:"transaction_id"`
	Tags               []string `json:"tags"` // sorted tag paths
	NormalizedMerchant *string  `json:"normalized_merchant,omitempty"`
}

// ReprocessSnapshot is a point-in-time capture of a session's tagging
// breakdown, detection counters, and a bounded transaction sample.
type ReprocessSnapshot struct {
	ID        string              `json:"id"`
	RunID     string              `json:"run_id"`
	SessionID string              `json:"session_id"`
	Kind      SnapshotKind        `json:"kind"`
	Tagging   TaggingBreakdown    `json:"tagging"`
	Detection DetectionCounters   `json:"detection"`
	Sample    []TransactionSample `json:"sample"`
	CreatedAt time.Time           `json:"created_at"`
}

// TagChange describes a transaction whose tag set differs between two
// snapshots.
type TagChange struct {
	TransactionID string   `json:"transaction_id"`
	Before        []string `json:"before"`
	After         []string `json:"after"`
}

// MerchantChange describes a transaction whose normalized merchant differs
// between two snapshots.
type MerchantChange struct {
	TransactionID string  `json:"transaction_id"`
	Before        *string `json:"before,omitempty"`
	After         *string `json:"after,omitempty"`
}

// ReprocessComparison is the diff between two snapshots, joined on
// transaction id and bounded to the 100-transaction sample.
type ReprocessComparison struct {
	TagChanges      []TagChange      `json:"tag_changes"`
	MerchantChanges []MerchantChange `json:"merchant_changes"`
}

// DashboardStats is a read-only aggregate rollup. Supplements the spec's
// data model per original_source's DashboardStats/RecentImport types.
type DashboardStats struct {
	TotalTransactions       int64          `json:"total_transactions"`
	TotalAccounts           int64          `json:"total_accounts"`
	ActiveSubscriptions     int64          `json:"active_subscriptions"`
	MonthlySubscriptionCost float64        `json:"monthly_subscription_cost"`
	ActiveAlerts            int64          `json:"active_alerts"`
	PotentialMonthlySavings float64        `json:"potential_monthly_savings"`
	UntaggedTransactions    int64          `json:"untagged_transactions"`
	RecentImports           []RecentImport `json:"recent_imports"`
}

// RecentImport summarizes one recent import for the dashboard.
type RecentImport struct {
	AccountName      string    `json:"account_name"`
	Bank             Bank      `json:"bank"`
	TransactionCount int64     `json:"transaction_count"`
	ImportedAt       time.Time `json:"imported_at"`
}

// FeedbackTargetType identifies what a stored user feedback note concerns,
// used to ground AI prompts in prior corrections.
type FeedbackTargetType string

const (
	FeedbackTargetInsight        FeedbackTargetType = "insight"
	FeedbackTargetCategorization FeedbackTargetType = "categorization"
)

// SpendingSummary is the result of an aggregate spending query.
type SpendingSummary struct {
	Total          float64
	ByTag          map[string]float64
	UntaggedAmount float64
}

// CategorySpending is one tag's total expense within a date range, the
// per-tag unit the spending-anomaly detector compares baseline to current.
type CategorySpending struct {
	TagID  string  `json:"tag_id"`
	TagName string `json:"tag_name"`
	Amount float64 `json:"amount"`
}

// MerchantSpending is one merchant's total expense within a date range,
// used to ground the spending-anomaly explanation in concrete top movers.
type MerchantSpending struct {
	Merchant string  `json:"merchant"`
	Amount   float64 `json:"amount"`
}
