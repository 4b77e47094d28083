package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/3leaps/atsrelay/internal/config"
	"github.com/3leaps/atsrelay/internal/observability"
	"github.com/3leaps/atsrelay/pkg/ashby"
	"github.com/3leaps/atsrelay/pkg/candidex"
)

var (
	indexJSON      bool
	indexForceFull bool
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Inspect and refresh the candidate index",
}

var indexStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show candidate index metadata",
	RunE:  runIndexStats,
}

var indexRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Build or refresh the candidate index",
	Long: `Build the candidate index from scratch, or extend a prior build
incrementally when a sync token is available. --full forces a full rescan.`,
	RunE: runIndexRefresh,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexStatsCmd)
	indexCmd.AddCommand(indexRefreshCmd)

	indexStatsCmd.Flags().BoolVar(&indexJSON, "json", false, "Emit stats as JSON")
	indexRefreshCmd.Flags().BoolVar(&indexJSON, "json", false, "Emit stats as JSON")
	indexRefreshCmd.Flags().BoolVar(&indexForceFull, "full", false, "Force a full rescan, ignoring any sync token")
}

func runIndexStats(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd.Context(), runtimeOverrides())
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	core := buildComponents(cfg, observability.ServerLogger)

	// A one-shot process has no prior snapshot, so stats require a build.
	if _, err := core.scheduler.Refresh(cmd.Context(), ashby.NewAudit("cli.index.stats"), false); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Index build failed", err)
	}

	return printIndexMetadata(core.scheduler.Store().Metadata(time.Now()))
}

func runIndexRefresh(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd.Context(), runtimeOverrides())
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	core := buildComponents(cfg, observability.ServerLogger)

	if _, err := core.scheduler.Refresh(cmd.Context(), ashby.NewAudit("cli.index.refresh"), indexForceFull); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Index refresh failed", err)
	}

	return printIndexMetadata(core.scheduler.Store().Metadata(time.Now()))
}

func printIndexMetadata(md candidex.Metadata) error {
	if indexJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(md); err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to write stats", err)
		}
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintf(w, "Built at:\t%s\n", md.BuiltAt)
	fmt.Fprintf(w, "Age:\t%s\n", (time.Duration(md.AgeMs) * time.Millisecond).String())
	fmt.Fprintf(w, "Candidates:\t%d\n", md.Size)
	fmt.Fprintf(w, "Rows scanned:\t%d\n", md.ScannedCount)
	fmt.Fprintf(w, "Complete:\t%t\n", md.IsComplete)
	fmt.Fprintf(w, "Refresh in flight:\t%t\n", md.RefreshInFlight)
	if err := w.Flush(); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to write stats", err)
	}
	return nil
}
