package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/scan-io-git/scanio-hub/internal/task"
	scanerrors "github.com/scan-io-git/scanio-hub/pkg/shared/errors"
)

// RunScanExec runs the configured engine binary over the prepared source
// bundle. An engine outside the deployment's allow-list is rejected before
// any stage or task state is written.
func (r *Runner) RunScanExec(ctx context.Context, tenant string, t *task.Task) (task.Stage, error) {
	engine, ok := r.cfg.Scanners.Engines[t.Spec.Engine]
	if !ok {
		return task.Stage{}, scanerrors.NewValidationError("engine", "engine %q is not in the allow-list", t.Spec.Engine)
	}

	stage := newStage(t, task.StageScanExec)

	srcDir, err := r.workspace.Resolve(tenant, task.NewArtifactRef("source_bundle", t.ID.String()))
	if err != nil {
		return r.fail(ctx, tenant, stage, t, err)
	}
	rulesetRef, err := r.rulesetRef(ctx, tenant, t)
	if err != nil {
		return r.fail(ctx, tenant, stage, t, err)
	}
	rulesetPath, err := r.workspace.Resolve(tenant, rulesetRef)
	if err != nil {
		return r.fail(ctx, tenant, stage, t, err)
	}

	resultsFile := filepath.Join(srcDir, "..", t.ID.String()+".results.json")
	args := engineArgs(t.Spec.Engine, srcDir, rulesetPath, resultsFile, t.Spec.EngineOptions)

	runCtx := ctx
	if engine.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, engine.Timeout)
		defer cancel()
	}

	r.logger.Info("starting scan", "task", t.ID, "engine", t.Spec.Engine, "binary", engine.Binary)
	cmd := exec.CommandContext(runCtx, engine.Binary, args...)
	cmd.Dir = srcDir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	// The stderr transcript is kept even on success; it carries the engine's
	// own progress log.
	stderrRef, err := r.workspace.Put(tenant, "stderr", stage.ID.String(), stderr.Bytes())
	if err != nil {
		return r.fail(ctx, tenant, stage, t, err)
	}
	stage.Artifacts = append(stage.Artifacts, stderrRef)

	if runErr != nil {
		exitCode := -1
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		toolErr := scanerrors.NewExternalToolError(t.Spec.Engine, exitCode, stderr.String(), runErr)
		return r.fail(ctx, tenant, stage, t, toolErr)
	}

	sarifRef, err := r.workspace.PutFile(tenant, "sarif", stage.ID.String(), resultsFile)
	if err != nil {
		return r.fail(ctx, tenant, stage, t, fmt.Errorf("engine produced no readable output: %w", err))
	}
	stage.Artifacts = append(stage.Artifacts, sarifRef)

	return r.succeed(ctx, tenant, stage, t)
}

// rulesetRef picks the ruleset artifact the rules stage produced, so
// profile tasks scan with the referenced published ruleset rather than a
// per-task copy.
func (r *Runner) rulesetRef(ctx context.Context, tenant string, t *task.Task) (task.ArtifactRef, error) {
	rulesStage, err := r.tasks.GetStage(ctx, tenant, stageID(t.ID, task.StageRulesPrepare))
	if err != nil {
		return "", err
	}
	for _, ref := range rulesStage.Artifacts {
		if ref.Kind() == "ruleset" {
			return ref, nil
		}
	}
	return "", scanerrors.NewNotFoundError("ruleset", t.ID.String())
}

// engineArgs builds the command line per engine. Unknown engines in the
// allow-list get the generic shape: options then output then source.
func engineArgs(engine, srcDir, rulesetPath, resultsFile string, options map[string]string) []string {
	var args []string
	switch engine {
	case "semgrep":
		args = []string{"--sarif", "--config", rulesetPath, "-o", resultsFile, srcDir}
	case "trivy":
		args = []string{"fs", "--format", "sarif", "--output", resultsFile, srcDir}
	case "cyclonedx":
		args = []string{"--output", resultsFile, srcDir}
	default:
		args = []string{"--output", resultsFile, srcDir}
	}
	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--"+k, options[k])
	}
	return args
}
