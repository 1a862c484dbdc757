// Package config handles application configuration.
package config

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"
)

// Config holds all application configuration.
type Config struct {
	// Database
	DatabasePath  string // DSN passed to internal/database.New
	EncryptionKey []byte // 32-byte key for AES-256-GCM encryption of sensitive columns

	// Detector thresholds (spec §6 configuration table)
	ZombieMinMonths             int
	PriceIncreasePercent        float64
	PriceIncreaseAbsolute       float64
	CancellationGraceDaysMonthly int
	SmartAmountVariance          float64
	SmartIntervalConsistency     float64
	SmartMinTransactions         int
	OllamaConfidenceThreshold    float64
	SpendingIncreaseThreshold    float64
	SpendingDecreaseThreshold    float64
	SpendingAnomalyMinBaseline   float64
	AcknowledgmentStaleDays      int

	// AI capability port
	AITimeout time.Duration

	// Worker / session scheduler
	WorkerConcurrency  int
	WorkerPollInterval time.Duration

	// Object storage (S3-compatible) for the optional receipt blob store
	StorageEnabled   bool
	StorageEndpoint  string
	StorageAccessKey string
	StorageSecretKey string
	StorageBucket    string
	StorageRegion    string
}

// Load reads configuration from environment variables. It refuses to
// produce a usable encryption key unless HONE_ENCRYPTION_KEY is set or
// HONE_ALLOW_UNENCRYPTED=true is explicitly passed, per the at-rest
// encryption requirement on original_data.
func Load() (*Config, error) {
	cfg := &Config{
		DatabasePath: getEnv("HONE_DB_PATH", "file:hone.db?_journal=WAL&_timeout=5000"),

		ZombieMinMonths:              getEnvInt("HONE_ZOMBIE_MIN_MONTHS", 3),
		PriceIncreasePercent:         getEnvFloat("HONE_PRICE_INCREASE_PERCENT", 5.0),
		PriceIncreaseAbsolute:        getEnvFloat("HONE_PRICE_INCREASE_ABSOLUTE", 1.0),
		CancellationGraceDaysMonthly: getEnvInt("HONE_CANCELLATION_GRACE_DAYS", 7),
		SmartAmountVariance:          getEnvFloat("HONE_SMART_AMOUNT_VARIANCE", 0.50),
		SmartIntervalConsistency:     getEnvFloat("HONE_SMART_INTERVAL_CONSISTENCY", 0.50),
		SmartMinTransactions:         getEnvInt("HONE_SMART_MIN_TRANSACTIONS", 2),
		OllamaConfidenceThreshold:    getEnvFloat("HONE_OLLAMA_CONFIDENCE_THRESHOLD", 0.7),
		SpendingIncreaseThreshold:    getEnvFloat("HONE_SPENDING_INCREASE_THRESHOLD", 0.30),
		SpendingDecreaseThreshold:    getEnvFloat("HONE_SPENDING_DECREASE_THRESHOLD", 0.40),
		SpendingAnomalyMinBaseline:   getEnvFloat("HONE_SPENDING_ANOMALY_MIN_BASELINE", 50.0),
		AcknowledgmentStaleDays:      getEnvInt("HONE_ACK_STALE_DAYS", 90),

		AITimeout: getEnvDuration("HONE_AI_TIMEOUT", 30*time.Second),

		WorkerConcurrency:  getEnvInt("HONE_WORKER_CONCURRENCY", 3),
		WorkerPollInterval: getEnvDuration("HONE_WORKER_POLL_INTERVAL", 2*time.Second),

		StorageEndpoint:  getEnv("AWS_ENDPOINT_URL_S3", ""),
		StorageAccessKey: getEnv("AWS_ACCESS_KEY_ID", ""),
		StorageSecretKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		StorageBucket:    getEnv("HONE_STORAGE_BUCKET", ""),
		StorageRegion:    getEnv("AWS_REGION", "auto"),
	}
	cfg.StorageEnabled = cfg.StorageBucket != "" && cfg.StorageEndpoint != ""

	encKeyStr := getEnv("HONE_ENCRYPTION_KEY", "")
	allowUnencrypted := getEnvBool("HONE_ALLOW_UNENCRYPTED", false)

	switch {
	case encKeyStr != "":
		decoded, err := base64.StdEncoding.DecodeString(encKeyStr)
		if err != nil || len(decoded) != 32 {
			return nil, fmt.Errorf("HONE_ENCRYPTION_KEY must be a base64-encoded 32-byte key")
		}
		cfg.EncryptionKey = decoded
	case allowUnencrypted:
		cfg.EncryptionKey = deriveEncryptionKey("hone-unencrypted-dev-key-do-not-use-in-production")
	default:
		return nil, fmt.Errorf("HONE_ENCRYPTION_KEY is required (set HONE_ALLOW_UNENCRYPTED=true to run without one, e.g. for local development)")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// deriveEncryptionKey creates a 32-byte AES-256 key from a secret string
// using HKDF. HKDF is appropriate for deriving keys from high-entropy
// secrets; for low-entropy passwords use Argon2 instead.
func deriveEncryptionKey(secret string) []byte {
	salt := []byte("hone-core-encryption-key-v1")
	info := []byte("aes-256-gcm-encryption")

	hkdfReader := hkdf.New(sha256.New, []byte(secret), salt, info)

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdfReader, key); err != nil {
		panic("hkdf: failed to derive key: " + err.Error())
	}

	return key
}
