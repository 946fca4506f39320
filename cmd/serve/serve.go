package serve

import (
	"context"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/scan-io-git/scanio-hub/internal/events"
	"github.com/scan-io-git/scanio-hub/internal/fleet"
	"github.com/scan-io-git/scanio-hub/internal/fleet/wire"
	"github.com/scan-io-git/scanio-hub/internal/ingest"
	"github.com/scan-io-git/scanio-hub/internal/pipeline"
	"github.com/scan-io-git/scanio-hub/internal/review"
	"github.com/scan-io-git/scanio-hub/internal/server"
	"github.com/scan-io-git/scanio-hub/internal/store"
	"github.com/scan-io-git/scanio-hub/internal/task"
	"github.com/scan-io-git/scanio-hub/internal/ticket"
	"github.com/scan-io-git/scanio-hub/internal/workspace"
	"github.com/scan-io-git/scanio-hub/pkg/shared/config"
	"github.com/scan-io-git/scanio-hub/pkg/shared/httpclient"
	"github.com/scan-io-git/scanio-hub/pkg/shared/logger"
)

// RunOptionsServe holds the arguments for the serve command.
type RunOptionsServe struct {
	Tenant string
}

var (
	AppConfig    *config.Config
	serveOptions RunOptionsServe

	exampleServeUsage = `  # Start the hub daemon with the default config
  scanio-hub serve

  # Start the hub daemon sweeping a specific tenant's fleet
  scanio-hub serve --tenant acme`
)

// ServeCmd represents the serve command.
var ServeCmd = &cobra.Command{
	Use:                   "serve [--tenant TENANT]",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Example:               exampleServeUsage,
	Short:                 "Run the scan orchestration daemon",
	RunE:                  runServeCommand,
}

// Init initializes the global configuration variable.
func Init(cfg *config.Config) {
	AppConfig = cfg
}

func init() {
	ServeCmd.Flags().StringVar(&serveOptions.Tenant, "tenant", "default", "tenant whose fleet the background sweeper covers")
}

// runServeCommand wires the daemon and blocks until SIGINT/SIGTERM.
func runServeCommand(cmd *cobra.Command, args []string) error {
	log := logger.NewLogger(AppConfig, "hub")

	if err := validateServeArgs(&serveOptions); err != nil {
		log.Error("invalid serve arguments", "error", err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backends, err := store.Open(AppConfig)
	if err != nil {
		log.Error("failed to open storage", "error", err)
		return err
	}
	defer backends.Close()

	bus := events.NewBus()
	stageMgr := task.NewStageManager(backends.Tasks, bus, log.Named("stages"))
	taskSvc := task.NewService(backends.Tasks, log.Named("tasks"))

	restClient := httpclient.InitializeRestyClient(log.Named("http"), AppConfig)
	ws, err := workspace.NewStore(AppConfig.Workspace.RootDir, restClient, log.Named("workspace"))
	if err != nil {
		log.Error("failed to prepare workspace root", "error", err)
		return err
	}

	ingestor := ingest.NewIngestor(backends.Findings, backends.Baselines, log.Named("ingest"))

	codec := wire.NewCodec(AppConfig.Fleet.MaxFrameBytes)
	channel := fleet.NewFramedChannel(codec, log.Named("channel"))
	fleetMgr := fleet.NewManager(
		backends.Fleet,
		backends.Tasks,
		channel,
		AppConfig.Fleet.HeartbeatDeadline,
		AppConfig.Fleet.DispatchTimeout,
		log.Named("fleet"),
	)

	hub := wire.NewHub(wire.NewLogBuffer(), log.Named("logs"))

	fleetLn, err := net.Listen("tcp", AppConfig.Fleet.ListenAddr)
	if err != nil {
		log.Error("failed to open fleet channel listener", "addr", AppConfig.Fleet.ListenAddr, "error", err)
		return err
	}
	listener := fleet.NewListener(fleetMgr, channel, hub, codec, log.Named("listener"))
	go func() {
		if err := listener.Serve(ctx, fleetLn); err != nil {
			log.Error("fleet channel listener stopped", "error", err)
		}
	}()

	filer, err := buildTicketFiler(ctx, AppConfig, log)
	if err != nil {
		log.Error("failed to configure ticket filer", "error", err)
		return err
	}

	runner := pipeline.NewRunner(
		AppConfig,
		stageMgr,
		backends.Tasks,
		ws,
		ingestor,
		backends.Findings,
		backends.Reviews,
		filer,
		log.Named("pipeline"),
	)

	applier := review.NewApplier(backends.Reviews, backends.Findings, log.Named("review"))
	if AppConfig.AIReview.Endpoint != "" {
		poller := review.NewPoller(restClient, AppConfig.AIReview.Endpoint, applier, AppConfig.AIReview.PollInterval, log.Named("review-poller"))
		go poller.Run(ctx, serveOptions.Tenant)
	}

	go sweepLoop(ctx, fleetMgr, serveOptions.Tenant, AppConfig.Fleet.SweepInterval, log)

	srv := server.New(
		AppConfig,
		taskSvc,
		backends.Tasks,
		runner,
		fleetMgr,
		backends.Findings,
		backends.Baselines,
		ws,
		hub,
		log.Named("server"),
	)

	err = srv.ListenAndServe(ctx)
	log.Info("daemon stopped")
	return err
}

// sweepLoop periodically marks stale executors offline.
func sweepLoop(ctx context.Context, mgr *fleet.Manager, tenant string, interval time.Duration, log hclog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := mgr.SweepStale(ctx, tenant)
			if err != nil {
				log.Warn("stale executor sweep failed", "error", err)
				continue
			}
			if n > 0 {
				log.Debug("stale executors marked offline", "count", n)
			}
		}
	}
}

// buildTicketFiler returns nil when no tracker is configured; the pipeline
// skips ticket filing in that case.
func buildTicketFiler(ctx context.Context, cfg *config.Config, log hclog.Logger) (ticket.Filer, error) {
	if cfg.Tickets.Provider == "" {
		return nil, nil
	}
	return ticket.NewGithubFiler(ctx, &cfg.Tickets, log.Named("tickets"))
}
