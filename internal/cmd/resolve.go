package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/atsrelay/internal/config"
	"github.com/3leaps/atsrelay/internal/observability"
	"github.com/3leaps/atsrelay/pkg/ashby"
	"github.com/3leaps/atsrelay/pkg/resolve"
)

var (
	resolveURL    string
	resolveHandle string
	resolveName   string
	resolveForce  bool
	resolveAsJSON bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve a LinkedIn profile to a candidate",
	Long: `Resolve a LinkedIn URL or handle against the candidate index,
falling back to a name search when the index has no match.

Examples:
  atsrelay resolve --url https://www.linkedin.com/in/jane-doe/
  atsrelay resolve --handle jane-doe --name "Jane Doe"
  atsrelay resolve --url ... --force-refresh`,
	RunE: runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)
	resolveCmd.Flags().StringVar(&resolveURL, "url", "", "LinkedIn profile URL")
	resolveCmd.Flags().StringVar(&resolveHandle, "handle", "", "LinkedIn handle (with or without @)")
	resolveCmd.Flags().StringVar(&resolveName, "name", "", "Profile display name, used for search fallback")
	resolveCmd.Flags().BoolVar(&resolveForce, "force-refresh", false, "Rebuild the index before resolving")
	resolveCmd.Flags().BoolVar(&resolveAsJSON, "json", true, "Emit the result as JSON")
}

func runResolve(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(ctx, runtimeOverrides())
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	core := buildComponents(cfg, observability.ServerLogger)
	audit := ashby.NewAudit("cli.resolve")

	result, err := core.resolver.ByLinkedIn(ctx, resolve.Query{
		LinkedInURL:    resolveURL,
		LinkedInHandle: resolveHandle,
		ProfileName:    resolveName,
	}, audit, resolve.Options{ForceRefresh: resolveForce})
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Resolve failed", err)
	}

	if resolveAsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to write result", err)
		}
		return nil
	}

	if !result.Found {
		fmt.Println("No candidate found.")
		observability.CLILogger.Info("resolve finished",
			zap.String("strategy", result.Strategy),
			zap.Strings("keys", result.Keys))
		return nil
	}

	fmt.Printf("Candidate: %s (%s)\n", result.Candidate.Name, result.Candidate.ID)
	fmt.Printf("Strategy:  %s\n", result.Strategy)
	if len(result.Collisions) > 0 {
		fmt.Printf("Collisions (%d):\n", len(result.Collisions))
		for _, c := range result.Collisions {
			fmt.Printf("  - %s (%s)\n", c.Name, c.ID)
		}
	}
	return nil
}
