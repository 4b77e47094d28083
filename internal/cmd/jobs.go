package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/3leaps/atsrelay/internal/config"
	"github.com/3leaps/atsrelay/internal/observability"
	"github.com/3leaps/atsrelay/pkg/ashby"
)

var (
	jobsJSON   bool
	jobsStatus string
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List jobs from the upstream ATS",
	Long: `List jobs so an upload target can be picked by id.

Examples:
  atsrelay jobs
  atsrelay jobs --status Open --json`,
	RunE: runJobs,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.Flags().BoolVar(&jobsJSON, "json", false, "Emit jobs as JSON")
	jobsCmd.Flags().StringVar(&jobsStatus, "status", "", "Filter by job status (e.g. Open)")
}

// jobRow is the slice of the upstream job object the listing needs.
type jobRow struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

func runJobs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(ctx, runtimeOverrides())
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	core := buildComponents(cfg, observability.ServerLogger)
	audit := ashby.NewAudit("cli.jobs")

	var jobs []jobRow
	cursor := ""
	for {
		payload := map[string]any{"cursor": cursor, "limit": 100}
		if jobsStatus != "" {
			payload["status"] = jobsStatus
		}

		resp, err := core.client.Call(ctx, ashby.MethodJobList, payload, audit, nil)
		if err != nil {
			return exitError(foundry.ExitExternalServiceUnavailable, "Failed to list jobs", err)
		}

		var page []jobRow
		if len(resp.Results) > 0 {
			if err := json.Unmarshal(resp.Results, &page); err != nil {
				return exitError(foundry.ExitExternalServiceUnavailable, "Unexpected job.list response", err)
			}
		}
		jobs = append(jobs, page...)

		if !resp.MoreDataAvailable || resp.NextCursor == "" {
			break
		}
		cursor = resp.NextCursor
	}

	if jobsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(jobs); err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to write jobs", err)
		}
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tSTATUS")
	for _, j := range jobs {
		fmt.Fprintf(w, "%s\t%s\t%s\n", j.ID, j.Title, j.Status)
	}
	if err := w.Flush(); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to write jobs", err)
	}
	return nil
}
