// Package cmd implements the atsrelay CLI: the relay server plus one-shot
// resolve, upload, and index verbs for operators.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/3leaps/atsrelay/internal/config"
	"github.com/3leaps/atsrelay/internal/observability"
	"github.com/3leaps/atsrelay/internal/server/handlers"
)

// AppIdentity carries the binary's naming conventions, resolved once at
// startup so subcommands and health checks agree on them.
type AppIdentity struct {
	BinaryName string
	EnvPrefix  string
	ConfigName string
	DirName    string
}

var appIdentity *AppIdentity

// GetAppIdentity returns the resolved identity, or nil before Execute runs.
func GetAppIdentity() *AppIdentity {
	return appIdentity
}

// versionInfo holds build metadata injected via ldflags.
var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "HEAD",
	BuildDate: "unknown",
}

// SetVersionInfo records the build metadata shown by the version command and
// the /version endpoint.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
	handlers.SetVersionInfo(version, commit, buildDate)
}

var (
	cfgFile    string
	logLevel   string
	logProfile string
	readOnly   bool
)

var rootCmd = &cobra.Command{
	Use:   "atsrelay",
	Short: "Local relay between browser profile captures and the ATS API",
	Long: `atsrelay resolves LinkedIn profiles against a local candidate index
and uploads them into the ATS, with all mutating calls held behind an
explicit write-safety gate.

Writes are disabled by default. Enable them deliberately via config
(safety.writes_enabled plus an allowlist), and use --readonly to force
them off for a single invocation regardless of config.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile != "" {
			config.SetConfigFile(cfgFile)
		}
		level := logLevel
		if level == "" {
			level = viper.GetString("logging.level")
		}
		profile := logProfile
		if profile == "" {
			profile = viper.GetString("logging.profile")
		}
		if err := observability.InitLogging(level, profile); err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid logging configuration", err)
		}
		return nil
	},
}

func init() {
	appIdentity = &AppIdentity{
		BinaryName: "atsrelay",
		EnvPrefix:  "ATSRELAY",
		ConfigName: "atsrelay",
		DirName:    "atsrelay",
	}

	setDefaults()

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ./atsrelay.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logProfile, "log-profile", "", "Log profile: STRUCTURED or CONSOLE")
	rootCmd.PersistentFlags().BoolVar(&readOnly, "readonly", false, "Force the write gate closed for this invocation")

	_ = viper.BindPFlag("readonly", rootCmd.PersistentFlags().Lookup("readonly"))
}

// setDefaults installs configuration defaults on the global viper so flags
// and env bindings resolve consistently across subcommands. The config
// package owns the full default set; only the flag-backed keys live here.
func setDefaults() {
	config.SetDefaults()

	viper.SetDefault("readonly", false)
}

// runtimeOverrides maps persistent flags onto the config layer. --readonly
// wins over any file or environment setting.
func runtimeOverrides() map[string]any {
	overrides := map[string]any{}
	if readOnly || viper.GetBool("readonly") {
		overrides["safety"] = map[string]any{"writes_enabled": false}
	}
	if logLevel != "" {
		overrides["logging"] = map[string]any{"level": logLevel}
	}
	return overrides
}

// exitError creates an error that will cause the CLI to exit with the given code.
func exitError(code int, message string, err error) error {
	return fmt.Errorf("%s: %w (exit code %d)", message, err, code)
}

// exitCodeFrom recovers the foundry exit code exitError embedded, defaulting
// to 1 for untagged failures.
func exitCodeFrom(err error) int {
	if err == nil {
		return 0
	}
	msg := err.Error()
	marker := "(exit code "
	idx := strings.LastIndex(msg, marker)
	if idx < 0 {
		return 1
	}
	var code int
	if _, scanErr := fmt.Sscanf(msg[idx+len(marker):], "%d)", &code); scanErr != nil {
		return 1
	}
	return code
}

// ExitWithCode logs a fatal error and terminates the process.
func ExitWithCode(log *zap.Logger, code int, message string, err error) {
	log.Error(message, zap.Error(err), zap.Int("exit_code", code))
	observability.Sync()
	os.Exit(code)
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	SetVersionInfo(versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate)

	// Fail fast if the embedded crucible metadata is unreadable; doctor
	// reports the detail.
	_ = crucible.GetVersion()

	if err := rootCmd.Execute(); err != nil {
		observability.CLILogger.Error("command failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, "Error:", err)
		observability.Sync()
		return exitCodeFrom(err)
	}
	observability.Sync()
	return 0
}
