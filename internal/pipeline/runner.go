// Package pipeline drives a task through the fixed five-stage scan pipeline:
// rules preparation, source preparation, scan execution, result processing,
// and result review.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/scanio-hub/internal/ingest"
	"github.com/scan-io-git/scanio-hub/internal/review"
	"github.com/scan-io-git/scanio-hub/internal/task"
	"github.com/scan-io-git/scanio-hub/internal/ticket"
	"github.com/scan-io-git/scanio-hub/internal/workspace"
	"github.com/scan-io-git/scanio-hub/pkg/shared/config"
)

// stageNamespace makes stage ids deterministic per (task, stage type), so a
// stage retry upserts the same row instead of growing the history.
var stageNamespace = uuid.MustParse("7b1c3f52-9c34-4b7a-8f0e-2d5a6c1e8b90")

func stageID(taskID uuid.UUID, t task.StageType) uuid.UUID {
	return uuid.NewSHA1(stageNamespace, []byte(taskID.String()+"/"+string(t)))
}

// Runner executes pipeline stages on the hub itself. Remote execution goes
// through the fleet manager instead; both paths persist stages the same way.
type Runner struct {
	cfg       *config.Config
	stages    *task.StageManager
	tasks     task.Store
	workspace *workspace.Store
	ingestor  *ingest.Ingestor
	findings  ingest.FindingStore
	reviews   review.RecordStore
	tickets   ticket.Filer
	logger    hclog.Logger
}

// NewRunner wires a Runner. tickets may be nil when no tracker is configured.
func NewRunner(
	cfg *config.Config,
	stages *task.StageManager,
	tasks task.Store,
	ws *workspace.Store,
	ingestor *ingest.Ingestor,
	findings ingest.FindingStore,
	reviews review.RecordStore,
	tickets ticket.Filer,
	logger hclog.Logger,
) *Runner {
	return &Runner{
		cfg:       cfg,
		stages:    stages,
		tasks:     tasks,
		workspace: ws,
		ingestor:  ingestor,
		findings:  findings,
		reviews:   reviews,
		tickets:   tickets,
		logger:    logger,
	}
}

// Run executes the full pipeline for the task, stopping at the first failed
// stage. The failed stage is persisted before Run returns; the stage manager
// cascades it into a failed task.
func (r *Runner) Run(ctx context.Context, tenant string, t *task.Task) error {
	steps := []func(context.Context, string, *task.Task) (task.Stage, error){
		r.RunRulesPrepare,
		r.RunSourcePrepare,
		r.RunScanExec,
		r.RunResultProcess,
		r.RunResultReview,
	}
	for _, step := range steps {
		stage, err := step(ctx, tenant, t)
		if err != nil {
			return err
		}
		if stage.Status == task.StageFailed {
			return nil
		}
	}
	return nil
}

// persist finalizes the stage and hands it to the stage manager.
func (r *Runner) persist(ctx context.Context, tenant string, stage task.Stage, t *task.Task) (task.Stage, error) {
	stage.Metrics.Duration = time.Since(stage.StartedAt)
	return r.stages.Persist(ctx, tenant, stage, t.CorrelationID)
}

// newStage builds the stage skeleton for one pipeline step of the task.
func newStage(t *task.Task, st task.StageType) task.Stage {
	return task.Stage{
		ID:        stageID(t.ID, st),
		TaskID:    t.ID,
		Type:      st,
		Status:    task.StageRunning,
		StartedAt: time.Now().UTC(),
	}
}

// fail marks the stage failed with the error and persists it.
func (r *Runner) fail(ctx context.Context, tenant string, stage task.Stage, t *task.Task, err error) (task.Stage, error) {
	r.logger.Error("stage failed", "task", t.ID, "stage", stage.Type, "error", err)
	stage.Status = task.StageFailed
	stage.Error = err.Error()
	return r.persist(ctx, tenant, stage, t)
}

// succeed marks the stage succeeded and persists it.
func (r *Runner) succeed(ctx context.Context, tenant string, stage task.Stage, t *task.Task) (task.Stage, error) {
	stage.Status = task.StageSucceeded
	return r.persist(ctx, tenant, stage, t)
}
