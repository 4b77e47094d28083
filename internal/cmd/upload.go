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
	"github.com/3leaps/atsrelay/pkg/manifest"
	"github.com/3leaps/atsrelay/pkg/upload"
)

var (
	uploadName     string
	uploadEmail    string
	uploadPhone    string
	uploadURL      string
	uploadJobID    string
	uploadConfirm  string
	uploadManifest string
)

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload a candidate into a job",
	Long: `Upload one candidate (via flags) or a batch (via a YAML/JSON manifest)
into a job. Every mutating call passes the write-safety gate: writes must be
enabled in config, the method allowlisted, and a confirmation supplied when
required.

Examples:
  atsrelay upload --job job-123 --name "Jane Doe" --url https://www.linkedin.com/in/jane-doe/ --confirm <token>
  atsrelay upload --manifest batch.yaml`,
	RunE: runUpload,
}

func init() {
	rootCmd.AddCommand(uploadCmd)
	uploadCmd.Flags().StringVar(&uploadName, "name", "", "Candidate full name")
	uploadCmd.Flags().StringVar(&uploadEmail, "email", "", "Candidate email")
	uploadCmd.Flags().StringVar(&uploadPhone, "phone", "", "Candidate phone number")
	uploadCmd.Flags().StringVar(&uploadURL, "url", "", "Candidate LinkedIn URL")
	uploadCmd.Flags().StringVar(&uploadJobID, "job", "", "Target job id")
	uploadCmd.Flags().StringVar(&uploadConfirm, "confirm", "", "Write confirmation token")
	uploadCmd.Flags().StringVar(&uploadManifest, "manifest", "", "Batch manifest file (YAML or JSON)")
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(ctx, runtimeOverrides())
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	core := buildComponents(cfg, observability.ServerLogger)

	if uploadManifest != "" {
		return runUploadManifest(cmd, core)
	}

	result, err := core.uploader.Run(ctx, upload.Request{
		Profile: upload.Profile{
			Name:        uploadName,
			Email:       uploadEmail,
			Phone:       uploadPhone,
			LinkedInURL: uploadURL,
		},
		JobID:             uploadJobID,
		WriteConfirmation: uploadConfirm,
	}, ashby.NewAudit("cli.upload"))
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Upload failed", err)
	}

	return printUploadResult(result)
}

func runUploadManifest(cmd *cobra.Command, core *relayComponents) error {
	ctx := cmd.Context()

	m, err := manifest.Load(uploadManifest)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid manifest", err)
	}

	observability.CLILogger.Info("starting batch upload",
		zap.String("manifest", uploadManifest),
		zap.String("job_id", m.Job.ID),
		zap.Int("candidates", len(m.Candidates)))

	failures := 0
	for i, entry := range m.Candidates {
		result, err := core.uploader.Run(ctx, upload.Request{
			Profile: upload.Profile{
				Name:        entry.Name,
				Email:       entry.Email,
				Phone:       entry.Phone,
				LinkedInURL: entry.LinkedInURL,
			},
			JobID:             m.Job.ID,
			WriteConfirmation: m.Write.Confirmation,
		}, ashby.NewAudit("cli.upload.batch"))
		if err != nil {
			failures++
			observability.CLILogger.Error("candidate upload failed",
				zap.Int("position", i+1),
				zap.String("name", entry.Name),
				zap.Error(err))
			continue
		}
		if printErr := printUploadResult(result); printErr != nil {
			return printErr
		}
	}

	if failures > 0 {
		return exitError(foundry.ExitExternalServiceUnavailable, "Batch completed with failures",
			fmt.Errorf("%d of %d uploads failed", failures, len(m.Candidates)))
	}
	return nil
}

func printUploadResult(result *upload.Result) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to write result", err)
	}
	return nil
}
