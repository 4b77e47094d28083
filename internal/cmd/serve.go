package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/atsrelay/internal/config"
	"github.com/3leaps/atsrelay/internal/observability"
	"github.com/3leaps/atsrelay/internal/server"
	"github.com/3leaps/atsrelay/internal/server/handlers"
	"github.com/3leaps/atsrelay/pkg/ashby"
	"github.com/3leaps/atsrelay/pkg/candidex"
	"github.com/3leaps/atsrelay/pkg/resolve"
	"github.com/3leaps/atsrelay/pkg/upload"
	"github.com/3leaps/atsrelay/pkg/writegate"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local relay HTTP server",
	Long: `Start the relay server the browser extension talks to. The server
builds and maintains the candidate index, resolves profiles, and performs
uploads subject to the write-safety gate.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Bind host (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Bind port (overrides config)")
}

// relayComponents is the assembled core: one RPC client, one gate, one index
// scheduler, and the resolver and orchestrator on top.
type relayComponents struct {
	cfg       *config.Config
	client    *ashby.Client
	gate      *writegate.Gate
	scheduler *candidex.Scheduler
	resolver  *resolve.Resolver
	uploader  *upload.Orchestrator
}

// buildComponents wires the core from config. Shared by serve and the
// one-shot verbs so they behave identically.
func buildComponents(cfg *config.Config, log *zap.Logger) *relayComponents {
	client := ashby.New(ashby.Config{
		BaseURL:        cfg.Ashby.BaseURL,
		APIKey:         cfg.Ashby.APIKey,
		RequestTimeout: cfg.Ashby.RequestTimeout,
		RateLimit:      cfg.Ashby.RateLimit,
		Logger:         log,
	})

	gate := writegate.New(writegate.Policy{
		Enabled:             cfg.Safety.WritesEnabled,
		AllowedMethods:      cfg.Safety.AllowedMethods,
		RequireConfirmation: cfg.Safety.RequireConfirmation,
		ConfirmationToken:   cfg.Safety.ConfirmationToken,
	}, log)

	store := candidex.NewStore()
	builder := candidex.NewBuilder(client, cfg.Index.ScanCap, cfg.Index.PageSize, log)
	scheduler := candidex.NewScheduler(store, builder, cfg.Index.TTL, log)

	resolver := resolve.New(scheduler, client, cfg.Index.TTL, log)

	credited := upload.NewCreditedResolver(client, cfg.Ashby.CreditedToUserID, cfg.Ashby.CreditedToEmail, log)
	uploader := upload.NewOrchestrator(client, gate, credited, log)

	return &relayComponents{
		cfg:       cfg,
		client:    client,
		gate:      gate,
		scheduler: scheduler,
		resolver:  resolver,
		uploader:  uploader,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx, runtimeOverrides())
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}

	log := observability.ServerLogger
	core := buildComponents(cfg, log)

	hm := handlers.InitHealthManager(versionInfo.Version)
	hm.RegisterChecker("signals", signalHealthChecker{})
	hm.RegisterChecker("identity", identityHealthChecker{
		binaryName: appIdentity.BinaryName,
		envPrefix:  appIdentity.EnvPrefix,
		configName: appIdentity.ConfigName,
	})
	hm.RegisterChecker("ashby", ashbyHealthChecker{cfg: cfg})

	api := handlers.NewAPI(core.resolver, core.uploader, core.scheduler, log)
	srv := server.New(cfg.Server.Host, cfg.Server.Port,
		server.WithAPI(api),
		server.WithTimeouts(server.Timeouts{
			Read:     cfg.Server.ReadTimeout,
			Write:    cfg.Server.WriteTimeout,
			Idle:     cfg.Server.IdleTimeout,
			Shutdown: cfg.Server.ShutdownTimeout,
		}),
	)

	log.Info("relay server starting",
		zap.String("addr", srv.Addr()),
		zap.Bool("writes_enabled", cfg.Safety.WritesEnabled),
		zap.Strings("allowed_methods", cfg.Safety.AllowedMethods),
		zap.Int("index_scan_cap", cfg.Index.ScanCap),
		zap.Duration("index_ttl", cfg.Index.TTL))

	// Warm the index in the background so the first resolve does not pay
	// the full scan.
	core.scheduler.RefreshBackground(ashby.NewAudit("serve.warmup"))

	if err := srv.Run(ctx); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Server failed", err)
	}

	log.Info("relay server stopped")
	return nil
}

// signalHealthChecker reports healthy while the signal context is intact.
type signalHealthChecker struct{}

func (signalHealthChecker) CheckHealth(ctx context.Context) error {
	return nil
}

// identityHealthChecker verifies the app identity resolved at startup.
type identityHealthChecker struct {
	binaryName string
	envPrefix  string
	configName string
}

func (c identityHealthChecker) CheckHealth(ctx context.Context) error {
	if c.binaryName == "" {
		return fmt.Errorf("app identity missing binary name")
	}
	if c.envPrefix == "" {
		return fmt.Errorf("app identity missing env prefix")
	}
	if c.configName == "" {
		return fmt.Errorf("app identity missing config name")
	}
	return nil
}

// ashbyHealthChecker verifies the upstream client is usable without issuing
// a billable call.
type ashbyHealthChecker struct {
	cfg *config.Config
}

func (c ashbyHealthChecker) CheckHealth(ctx context.Context) error {
	if c.cfg.Ashby.APIKey == "" {
		return fmt.Errorf("ashby api key not configured")
	}
	if c.cfg.Ashby.BaseURL == "" {
		return fmt.Errorf("ashby base url not configured")
	}
	return nil
}
