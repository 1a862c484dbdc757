// Package logging provides a configured zerolog logger with:
// - TTY detection for human-readable console output vs JSON
// - LOG_FORMAT env var override (text/json)
// - LOG_LEVEL env var (debug/info/warn/error)
// - context-based session/account ID extraction for correlating log lines
//   to an import session without threading IDs through every call site.
package logging

import (
	"context"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// ContextKey is a type for context keys used in logging.
type ContextKey string

const (
	// SessionIDKey is the context key for the active import session ID.
	SessionIDKey ContextKey = "log_session_id"
	// AccountIDKey is the context key for the active account ID.
	AccountIDKey ContextKey = "log_account_id"
)

// WithSessionID adds an import session ID to the context for logging.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionIDKey, sessionID)
}

// WithAccountID adds an account ID to the context for logging.
func WithAccountID(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, AccountIDKey, accountID)
}

// GetSessionID extracts the session ID from context.
func GetSessionID(ctx context.Context) string {
	if v := ctx.Value(SessionIDKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// GetAccountID extracts the account ID from context.
func GetAccountID(ctx context.Context) string {
	if v := ctx.Value(AccountIDKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// FromContext returns a logger with session/account IDs from context added
// as fields. Use this at the start of any operation that accepts a context,
// so every line it logs is correlated back to the session.
func FromContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	if ctx == nil {
		return logger
	}
	l := logger.With()
	if sessionID := GetSessionID(ctx); sessionID != "" {
		l = l.Str("session_id", sessionID)
	}
	if accountID := GetAccountID(ctx); accountID != "" {
		l = l.Str("account_id", accountID)
	}
	return l.Logger()
}

// New creates a new configured logger. Format is determined by:
//  1. LOG_FORMAT env var (text/json)
//  2. TTY detection (text for TTY, JSON otherwise)
//
// Level is determined by LOG_LEVEL env var (debug/info/warn/error, default: info).
func New() zerolog.Logger {
	logFormat := os.Getenv("LOG_FORMAT")
	useConsole := logFormat == "text" || (logFormat == "" && isatty(os.Stdout))

	zerolog.SetGlobalLevel(parseLogLevel(os.Getenv("LOG_LEVEL")))

	if useConsole {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// parseLogLevel converts a string log level to zerolog.Level.
func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetDefault creates a new logger and installs it as zerolog's package
// default, returning it for additional use.
func SetDefault() zerolog.Logger {
	logger := New()
	zerolog.DefaultContextLogger = &logger
	return logger
}

// isatty returns true if the file is a terminal.
func isatty(f *os.File) bool {
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}
