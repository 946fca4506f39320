package stage

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/scan-io-git/scanio-hub/internal/events"
	"github.com/scan-io-git/scanio-hub/internal/ingest"
	"github.com/scan-io-git/scanio-hub/internal/pipeline"
	"github.com/scan-io-git/scanio-hub/internal/store"
	"github.com/scan-io-git/scanio-hub/internal/task"
	"github.com/scan-io-git/scanio-hub/internal/workspace"
	"github.com/scan-io-git/scanio-hub/pkg/shared/config"
	"github.com/scan-io-git/scanio-hub/pkg/shared/httpclient"
	"github.com/scan-io-git/scanio-hub/pkg/shared/logger"
)

// RunOptionsStage holds the arguments for the stage command.
type RunOptionsStage struct {
	TaskID string
	Type   string
	Tenant string
}

var (
	AppConfig    *config.Config
	stageOptions RunOptionsStage

	exampleStageUsage = `  # Run the full pipeline for a task
  scanio-hub stage --task 6e1f5bc0-6ad2-4a42-9a54-2c1c3a1bb1de

  # Re-run a single stage
  scanio-hub stage --task 6e1f5bc0-6ad2-4a42-9a54-2c1c3a1bb1de --type SCAN_EXEC`
)

// StageCmd represents the stage command.
var StageCmd = &cobra.Command{
	Use:                   "stage --task TASK_ID [--type STAGE_TYPE] [--tenant TENANT]",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Example:               exampleStageUsage,
	Short:                 "Run pipeline stages for a task on this host",
	RunE:                  runStageCommand,
}

// Init initializes the global configuration variable.
func Init(cfg *config.Config) {
	AppConfig = cfg
}

func init() {
	StageCmd.Flags().StringVar(&stageOptions.TaskID, "task", "", "task id to run")
	StageCmd.Flags().StringVar(&stageOptions.Type, "type", "", "single stage type to run (default: the full pipeline)")
	StageCmd.Flags().StringVar(&stageOptions.Tenant, "tenant", "default", "tenant owning the task")
}

// hasFlags reports whether any flag was set on the invocation.
func hasFlags(flags *pflag.FlagSet) bool {
	set := false
	flags.Visit(func(*pflag.Flag) { set = true })
	return set
}

// runStageCommand executes the stage command.
func runStageCommand(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && !hasFlags(cmd.Flags()) {
		return cmd.Help()
	}

	log := logger.NewLogger(AppConfig, "core-stage")

	taskID, err := validateStageArgs(&stageOptions)
	if err != nil {
		log.Error("invalid stage arguments", "error", err)
		return err
	}

	backends, err := store.Open(AppConfig)
	if err != nil {
		log.Error("failed to open storage", "error", err)
		return err
	}
	defer backends.Close()

	restClient := httpclient.InitializeRestyClient(log.Named("http"), AppConfig)
	ws, err := workspace.NewStore(AppConfig.Workspace.RootDir, restClient, log.Named("workspace"))
	if err != nil {
		log.Error("failed to prepare workspace root", "error", err)
		return err
	}

	runner := pipeline.NewRunner(
		AppConfig,
		task.NewStageManager(backends.Tasks, events.NewBus(), log.Named("stages")),
		backends.Tasks,
		ws,
		ingest.NewIngestor(backends.Findings, backends.Baselines, log.Named("ingest")),
		backends.Findings,
		backends.Reviews,
		nil,
		log.Named("pipeline"),
	)

	ctx := context.Background()
	t, err := backends.Tasks.GetTask(ctx, stageOptions.Tenant, taskID)
	if err != nil {
		log.Error("failed to load task", "task", taskID, "error", err)
		return err
	}

	if stageOptions.Type == "" {
		if err := runner.Run(ctx, stageOptions.Tenant, t); err != nil {
			log.Error("pipeline run failed", "task", t.ID, "error", err)
			return err
		}
		log.Info("pipeline completed", "task", t.ID)
		return nil
	}

	stage, err := runSingleStage(ctx, runner, stageOptions.Tenant, t, task.StageType(stageOptions.Type))
	if err != nil {
		log.Error("stage run failed", "task", t.ID, "type", stageOptions.Type, "error", err)
		return err
	}
	log.Info("stage completed", "task", t.ID, "type", stage.Type, "status", stage.Status)
	return nil
}

func runSingleStage(ctx context.Context, runner *pipeline.Runner, tenant string, t *task.Task, st task.StageType) (task.Stage, error) {
	switch st {
	case task.StageRulesPrepare:
		return runner.RunRulesPrepare(ctx, tenant, t)
	case task.StageSourcePrepare:
		return runner.RunSourcePrepare(ctx, tenant, t)
	case task.StageScanExec:
		return runner.RunScanExec(ctx, tenant, t)
	case task.StageResultProcess:
		return runner.RunResultProcess(ctx, tenant, t)
	case task.StageResultReview:
		return runner.RunResultReview(ctx, tenant, t)
	default:
		return task.Stage{}, fmt.Errorf("unknown stage type %q", st)
	}
}
