// Package main is the composition root for honecore: it loads
// configuration, opens and migrates the database, and wires the store, AI
// port, and import orchestrator together. It has no HTTP or CLI surface —
// driving imports, reprocessing, and alert review happens through a
// caller that embeds this package (e.g. a future API layer), not here.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/honecore/core/internal/aiport"
	"github.com/honecore/core/internal/config"
	"github.com/honecore/core/internal/crypto"
	"github.com/honecore/core/internal/database"
	"github.com/honecore/core/internal/logging"
	"github.com/honecore/core/internal/orchestrator"
	"github.com/honecore/core/internal/store"
	"github.com/honecore/core/internal/version"
)

func main() {
	logger := logging.SetDefault()

	v := version.Get()
	logger.Info().
		Str("version", v.Version).
		Str("commit", v.Commit).
		Str("built", v.Date).
		Str("go_version", v.GoVersion).
		Msg("starting honecore")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open database")
	}
	defer func() { _ = db.Close() }()

	if err := database.MigrateWithLogger(db, logger); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}
	if schemaVersion, err := database.GetLatestSchemaVersion(db); err != nil {
		logger.Warn().Err(err).Msg("failed to read schema version")
	} else if schemaVersion != "" {
		count, _ := database.GetMigrationCount(db)
		logger.Info().Str("schema_version", schemaVersion).Int("migrations_applied", count).Msg("database schema ready")
	}

	encryptor, err := crypto.NewEncryptor(cfg.EncryptionKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize original_data encryptor")
	}

	s := store.New(db, store.WithEncryptor(encryptor))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessionsRecovered, runsRecovered, err := orchestrator.RecoverStuckSessions(ctx, s)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to recover stuck sessions")
	}
	if sessionsRecovered > 0 || runsRecovered > 0 {
		logger.Info().
			Int("sessions_recovered", sessionsRecovered).
			Int("reprocess_runs_recovered", runsRecovered).
			Msg("recovered sessions left processing by a prior crash")
	}

	ai := aiport.NewMetered(aiport.NewMock(), s)
	eng := orchestrator.New(s, ai)
	_ = eng // driven by a caller that embeds this package; no surface here

	logger.Info().Msg("honecore ready")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	<-sigChan

	logger.Info().Msg("shutting down")
	cancel()
}
