package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/atsrelay/internal/config"
	errwrap "github.com/3leaps/atsrelay/internal/errors"
	"github.com/3leaps/atsrelay/internal/observability"
)

var doctorAshby bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks on the system and suggest fixes for common issues.

Examples:
  atsrelay doctor           # Full environment check
  atsrelay doctor --ashby   # Include upstream API configuration checks`,
	Run: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().BoolVar(&doctorAshby, "ashby", false, "Run upstream API configuration checks")
}

func runDoctor(cmd *cobra.Command, args []string) {
	identity := GetAppIdentity()
	bannerName := "doctor"
	if identity != nil && identity.BinaryName != "" {
		bannerName = identity.BinaryName + " doctor"
	}
	observability.CLILogger.Info("=== " + bannerName + " ===")
	observability.CLILogger.Info("")
	observability.CLILogger.Info("Running diagnostic checks...")
	observability.CLILogger.Info("")

	allChecks := true
	checkNum := 1
	totalChecks := 5

	if doctorAshby {
		totalChecks = 7
	}

	// Check 1: Go version
	goVersion := runtime.Version()
	if goVersion >= "go1.23" {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking Go version... ✅ %s", checkNum, totalChecks, goVersion),
			zap.String("go_version", goVersion))
	} else {
		observability.CLILogger.Warn(fmt.Sprintf("[%d/%d] Checking Go version... ⚠️  %s (recommended: go1.23+)", checkNum, totalChecks, goVersion),
			zap.String("go_version", goVersion))
		allChecks = false
	}
	checkNum++

	// Check 2: Crucible access
	version := crucible.GetVersion()
	if version.Crucible != "" {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking Crucible access... ✅ v%s", checkNum, totalChecks, version.Crucible),
			zap.String("crucible_version", version.Crucible))
	} else {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking Crucible access... ❌ Cannot access Crucible", checkNum, totalChecks))
		ExitWithCode(observability.CLILogger, foundry.ExitExternalServiceUnavailable, "Cannot access Crucible",
			errwrap.NewExternalServiceError("Crucible service unavailable"))
		allChecks = false
	}
	checkNum++

	// Check 3: Gofulmen access
	if version.Gofulmen != "" {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking Gofulmen access... ✅ v%s", checkNum, totalChecks, version.Gofulmen),
			zap.String("gofulmen_version", version.Gofulmen))
	} else {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking Gofulmen access... ❌ Cannot access Gofulmen", checkNum, totalChecks))
		allChecks = false
	}
	checkNum++

	// Check 4: Config directory
	configDir, err := os.UserConfigDir()
	if err != nil {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking config directory... ❌ Cannot find config directory", checkNum, totalChecks),
			zap.Error(err))
		ExitWithCode(observability.CLILogger, foundry.ExitFileNotFound, "Cannot find config directory",
			errwrap.WrapInternal(cmd.Context(), err, "Cannot find config directory"))
		allChecks = false
	} else {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking config directory... ✅ %s", checkNum, totalChecks, configDir),
			zap.String("config_dir", configDir))
	}
	checkNum++

	// Check 5: Environment
	observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking environment... ✅ %s/%s", checkNum, totalChecks, runtime.GOOS, runtime.GOARCH),
		zap.String("os", runtime.GOOS),
		zap.String("arch", runtime.GOARCH))
	checkNum++

	if doctorAshby {
		allChecks = runAshbyChecks(cmd, checkNum, totalChecks, allChecks)
	}

	observability.CLILogger.Info("")
	if allChecks {
		observability.CLILogger.Info(fmt.Sprintf("✅ All checks passed! Your %s installation is healthy.", bannerName))
	} else {
		observability.CLILogger.Warn("⚠️  Some checks failed. Review the output above for details.")
	}
	observability.CLILogger.Info("")
	observability.CLILogger.Info("=== End Diagnostics ===")
}

// runAshbyChecks runs upstream API configuration checks.
func runAshbyChecks(cmd *cobra.Command, checkNum, totalChecks int, allChecks bool) bool {
	observability.CLILogger.Info("")
	observability.CLILogger.Info("Upstream API Checks:")

	// Check 6: API key
	cfg, err := config.Load(cmd.Context(), runtimeOverrides())
	if err != nil {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking API configuration... ❌ Cannot load config", checkNum, totalChecks),
			zap.Error(err))
		printAshbyCredentialsHelp()
		return false
	}

	if cfg.Ashby.APIKey == "" {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking API key... ❌ No API key configured", checkNum, totalChecks))
		printAshbyCredentialsHelp()
		return false
	}

	maskedKey := maskAPIKey(cfg.Ashby.APIKey)
	observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking API key... ✅ Found key", checkNum, totalChecks),
		zap.String("api_key", maskedKey))
	checkNum++

	// Check 7: Write-safety posture
	if cfg.Safety.WritesEnabled {
		observability.CLILogger.Warn(fmt.Sprintf("[%d/%d] Checking write safety... ⚠️  Writes ENABLED for %d methods", checkNum, totalChecks, len(cfg.Safety.AllowedMethods)),
			zap.Strings("allowed_methods", cfg.Safety.AllowedMethods),
			zap.Bool("require_confirmation", cfg.Safety.RequireConfirmation))
	} else {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking write safety... ✅ Writes disabled (read-only)", checkNum, totalChecks))
	}

	return allChecks
}

// maskAPIKey masks all but the last 4 characters of an API key.
func maskAPIKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

// printAshbyCredentialsHelp prints help for configuring API access.
func printAshbyCredentialsHelp() {
	observability.CLILogger.Info("")
	observability.CLILogger.Info("To configure API access:")
	observability.CLILogger.Info("  1. Set the ATSRELAY_ASHBY_API_KEY environment variable, or")
	observability.CLILogger.Info("  2. Add ashby.api_key to atsrelay.yaml (not recommended for shared machines)")
	observability.CLILogger.Info("")
	observability.CLILogger.Info("The key is sent as the Basic auth username with an empty password.")
	observability.CLILogger.Info("")
}
