package pipeline

import (
	"context"

	"github.com/scan-io-git/scanio-hub/internal/task"
)

// RunSourcePrepare materializes the task's source into its workspace and
// records the source_bundle artifact.
func (r *Runner) RunSourcePrepare(ctx context.Context, tenant string, t *task.Task) (task.Stage, error) {
	stage := newStage(t, task.StageSourcePrepare)

	ref, err := r.workspace.Materialize(ctx, t)
	if err != nil {
		return r.fail(ctx, tenant, stage, t, err)
	}

	stage.Artifacts = []task.ArtifactRef{ref}
	return r.succeed(ctx, tenant, stage, t)
}
