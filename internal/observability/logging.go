// Package observability owns the process-wide zap loggers.
//
// Two loggers are exposed: CLILogger for human-facing command output and
// ServerLogger for serve mode. Both default to no-op until InitLogging runs,
// so packages may log at import time without nil checks.
package observability

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logging profiles. STRUCTURED emits JSON records, CONSOLE emits
// human-readable lines.
const (
	ProfileStructured = "STRUCTURED"
	ProfileConsole    = "CONSOLE"
)

var (
	// CLILogger is used by cobra commands for operator-facing output.
	CLILogger = zap.NewNop()

	// ServerLogger is used by the relay server and background refreshes.
	ServerLogger = zap.NewNop()
)

// InitLogging builds the package loggers from the configured level and
// profile. It is called once from the root command after config load.
func InitLogging(level, profile string) error {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	serverCfg := zap.NewProductionConfig()
	serverCfg.Level = zap.NewAtomicLevelAt(lvl)

	cliCfg := zap.NewDevelopmentConfig()
	cliCfg.Level = zap.NewAtomicLevelAt(lvl)
	cliCfg.DisableStacktrace = true

	switch strings.ToUpper(strings.TrimSpace(profile)) {
	case "", ProfileStructured:
		// defaults above
	case ProfileConsole:
		serverCfg.Encoding = "console"
		serverCfg.EncoderConfig = cliCfg.EncoderConfig
	default:
		return fmt.Errorf("invalid logging profile %q (expected %s or %s)", profile, ProfileStructured, ProfileConsole)
	}

	server, err := serverCfg.Build()
	if err != nil {
		return fmt.Errorf("build server logger: %w", err)
	}
	cli, err := cliCfg.Build()
	if err != nil {
		return fmt.Errorf("build cli logger: %w", err)
	}

	ServerLogger = server
	CLILogger = cli
	return nil
}

// Sync flushes buffered log entries. Errors are ignored: stderr sinks
// return ENOTTY on some platforms.
func Sync() {
	_ = CLILogger.Sync()
	_ = ServerLogger.Sync()
}
