package pipeline

import (
	"context"
	"fmt"

	"github.com/scan-io-git/scanio-hub/internal/ingest"
	"github.com/scan-io-git/scanio-hub/internal/task"
)

// RunResultProcess ingests the scan stage's output artifacts: parse,
// normalize, deduplicate, and diff against the project baseline.
func (r *Runner) RunResultProcess(ctx context.Context, tenant string, t *task.Task) (task.Stage, error) {
	stage := newStage(t, task.StageResultProcess)

	scanStage, err := r.tasks.GetStage(ctx, tenant, stageID(t.ID, task.StageScanExec))
	if err != nil {
		return r.fail(ctx, tenant, stage, t, err)
	}

	var paths []string
	for _, ref := range scanStage.Artifacts {
		if ref.Kind() != "sarif" {
			continue
		}
		path, err := r.workspace.Resolve(tenant, ref)
		if err != nil {
			return r.fail(ctx, tenant, stage, t, err)
		}
		paths = append(paths, path)
		stage.Spec.Inputs = append(stage.Spec.Inputs, ref)
	}
	if len(paths) == 0 {
		return r.fail(ctx, tenant, stage, t, fmt.Errorf("scan stage of task %s produced no result artifacts", t.ID))
	}

	summary, err := r.ingestor.Ingest(ctx, tenant, t, paths)
	if err != nil {
		return r.fail(ctx, tenant, stage, t, err)
	}

	r.logger.Info("results processed",
		"task", t.ID,
		"findings", summary.Findings,
		"sca_issues", summary.ScaIssues,
		"new", summary.New,
		"known", summary.Known,
	)

	stage.Signals.HasSink = summary.BySeverity[ingest.SeverityCritical] > 0 || summary.BySeverity[ingest.SeverityHigh] > 0
	return r.succeed(ctx, tenant, stage, t)
}
