package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/scan-io-git/scanio-hub/internal/ingest"
	"github.com/scan-io-git/scanio-hub/internal/review"
	"github.com/scan-io-git/scanio-hub/internal/task"
)

// RunResultReview queues AI review jobs per the task's review policy and
// files tracker issues for findings that reach the configured threshold.
// After this stage succeeds the task is complete.
func (r *Runner) RunResultReview(ctx context.Context, tenant string, t *task.Task) (task.Stage, error) {
	stage := newStage(t, task.StageResultReview)

	var queued, filed int
	var err error
	if t.Type == task.TypeSCA || t.Type == task.TypeSupplyChain {
		queued, err = r.reviewScaIssues(ctx, tenant, t)
	} else {
		queued, filed, err = r.reviewFindings(ctx, tenant, t)
	}
	if err != nil {
		return r.fail(ctx, tenant, stage, t, err)
	}

	stage.Signals.NeedsAIReview = queued > 0
	r.logger.Info("result review completed", "task", t.ID, "queued", queued, "tickets", filed)

	stage, err = r.succeed(ctx, tenant, stage, t)
	if err != nil {
		return stage, err
	}
	if err := r.tasks.UpdateTaskStatus(ctx, tenant, t.ID, task.StatusSucceeded); err != nil {
		return stage, err
	}
	return stage, nil
}

func (r *Runner) reviewFindings(ctx context.Context, tenant string, t *task.Task) (queued, filed int, err error) {
	findings, err := r.findings.ListFindings(ctx, tenant, t.ID)
	if err != nil {
		return 0, 0, err
	}

	reviewMin := policyMinSeverity(t.Spec.AIReview)
	ticketMin := ingest.Severity(r.cfg.Tickets.MinSeverity)

	for i := range findings {
		f := &findings[i]

		if r.shouldReview(t.Spec.AIReview, f.Severity, reviewMin, f.Baseline) {
			if err := r.queueReview(ctx, tenant, review.TargetFinding, f.ID, f.Status); err != nil {
				return queued, filed, err
			}
			queued++
		}

		if r.tickets != nil && f.Baseline == ingest.BaselineNew && f.Severity.AtLeast(ticketMin) {
			if _, err := r.tickets.File(ctx, f); err != nil {
				// Ticket filing is best effort; the scan result stands.
				r.logger.Warn("failed to file tracker issue", "finding", f.ID, "error", err)
				continue
			}
			filed++
		}
	}
	return queued, filed, nil
}

func (r *Runner) reviewScaIssues(ctx context.Context, tenant string, t *task.Task) (int, error) {
	issues, err := r.findings.ListScaIssues(ctx, tenant, t.ID)
	if err != nil {
		return 0, err
	}

	reviewMin := policyMinSeverity(t.Spec.AIReview)
	queued := 0
	for i := range issues {
		issue := &issues[i]
		if !r.shouldReview(t.Spec.AIReview, issue.Severity, reviewMin, issue.Baseline) {
			continue
		}
		if err := r.queueReview(ctx, tenant, review.TargetScaIssue, issue.ID, issue.Status); err != nil {
			return queued, err
		}
		queued++
	}
	return queued, nil
}

// shouldReview applies the task's AI review policy: OFF reviews nothing,
// FINDINGS reviews only new results above the threshold, ALL reviews every
// result above the threshold.
func (r *Runner) shouldReview(policy task.AIReviewPolicy, sev ingest.Severity, min ingest.Severity, baseline ingest.BaselineClass) bool {
	switch policy.Mode {
	case task.AIReviewOff, "":
		return false
	case task.AIReviewFindings:
		return baseline == ingest.BaselineNew && sev.AtLeast(min)
	case task.AIReviewAll:
		return sev.AtLeast(min)
	default:
		return false
	}
}

// queueReview creates the pending review record keyed by a job id derived
// from the target, so re-running the stage never queues a duplicate.
func (r *Runner) queueReview(ctx context.Context, tenant string, kind review.TargetKind, targetID uuid.UUID, before ingest.Status) error {
	return r.reviews.CreateRecord(ctx, tenant, &review.Record{
		Tenant:       tenant,
		JobID:        reviewJobID(kind, targetID),
		TargetKind:   kind,
		TargetID:     targetID,
		StatusBefore: before,
		CreatedAt:    time.Now().UTC(),
	})
}

func reviewJobID(kind review.TargetKind, targetID uuid.UUID) string {
	if kind == review.TargetScaIssue {
		return "sca-" + targetID.String()
	}
	return "finding-" + targetID.String()
}

func policyMinSeverity(p task.AIReviewPolicy) ingest.Severity {
	if p.MinSeverity == "" {
		return ingest.SeverityLow
	}
	return ingest.Severity(p.MinSeverity)
}
