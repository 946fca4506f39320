package pipeline

import (
	"context"
	"strings"

	"github.com/scan-io-git/scanio-hub/internal/task"
	scanerrors "github.com/scan-io-git/scanio-hub/pkg/shared/errors"
)

// RunRulesPrepare resolves the task's rule selection into a ruleset artifact.
//
// EXPLICIT pins the listed rule ids verbatim. PROFILE references the latest
// published ruleset for the named profile without minting a new artifact.
// AUTO defers to the engine's default rule pack, recorded as the profile
// "auto" so the scan stage can pass it through.
func (r *Runner) RunRulesPrepare(ctx context.Context, tenant string, t *task.Task) (task.Stage, error) {
	stage := newStage(t, task.StageRulesPrepare)

	var content string
	switch t.Spec.Rules.Mode {
	case task.RuleModeExplicit:
		if len(t.Spec.Rules.RuleIDs) == 0 {
			return r.fail(ctx, tenant, stage, t, scanerrors.NewValidationError("rules.rule_ids", "EXPLICIT selection requires at least one rule id"))
		}
		content = strings.Join(t.Spec.Rules.RuleIDs, "\n") + "\n"
	case task.RuleModeProfile:
		if t.Spec.Rules.Profile == "" {
			return r.fail(ctx, tenant, stage, t, scanerrors.NewValidationError("rules.profile", "PROFILE selection requires a profile name"))
		}
		// Reference the published ruleset as-is; no new artifact is minted.
		ref, err := r.workspace.ProfileRuleset(tenant, t.Spec.Rules.Profile)
		if err != nil {
			return r.fail(ctx, tenant, stage, t, err)
		}
		stage.Artifacts = []task.ArtifactRef{ref}
		return r.succeed(ctx, tenant, stage, t)
	case task.RuleModeAuto, "":
		content = "profile: auto\n"
	default:
		return r.fail(ctx, tenant, stage, t, scanerrors.NewValidationError("rules.mode", "unknown rule mode %q", t.Spec.Rules.Mode))
	}

	ref, err := r.workspace.Put(tenant, "ruleset", t.ID.String(), []byte(content))
	if err != nil {
		return r.fail(ctx, tenant, stage, t, err)
	}

	stage.Artifacts = []task.ArtifactRef{ref}
	stage.Metrics.ArtifactBytes = int64(len(content))
	return r.succeed(ctx, tenant, stage, t)
}
