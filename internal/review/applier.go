package review

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/scanio-hub/internal/ingest"
	scanerrors "github.com/scan-io-git/scanio-hub/pkg/shared/errors"
)

// JobStatus is the state reported by the AI job API.
type JobStatus string

const (
	JobQueued    JobStatus = "QUEUED"
	JobRunning   JobStatus = "RUNNING"
	JobSucceeded JobStatus = "SUCCEEDED"
	JobFailed    JobStatus = "FAILED"
	JobCanceled  JobStatus = "CANCELED"
)

// Job types this applier acts on; any other ticket is ignored.
const (
	JobTypeFindingReview  = "finding_review"
	JobTypeScaIssueReview = "sca_issue_review"
)

// JobResult is the optional payload of a completed review job.
type JobResult struct {
	TargetID   string  `json:"target_id"`
	Verdict    Verdict `json:"verdict"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// JobTicket is one polled AI job.
type JobTicket struct {
	JobID   string     `json:"job_id"`
	Status  JobStatus  `json:"status"`
	JobType string     `json:"job_type"`
	Result  *JobResult `json:"result,omitempty"`
}

// Applier applies AI-review verdicts to findings and issues at most once.
type Applier struct {
	records  RecordStore
	findings ingest.FindingStore
	logger   hclog.Logger
}

// NewApplier wires an Applier.
func NewApplier(records RecordStore, findings ingest.FindingStore, logger hclog.Logger) *Applier {
	return &Applier{records: records, findings: findings, logger: logger}
}

// ApplyIfReady applies the ticket's verdict if and only if this caller wins
// the conditional update on applied_at. It reports whether this call applied
// the verdict. An unknown job, an untracked ticket, a non-terminal status,
// or an already-applied record are all silent no-ops: repeated polling of
// the same job is safe.
func (a *Applier) ApplyIfReady(ctx context.Context, tenant string, ticket JobTicket) (bool, error) {
	if ticket.JobType != JobTypeFindingReview && ticket.JobType != JobTypeScaIssueReview {
		return false, nil
	}
	if ticket.Result != nil && ticket.Result.TargetID != "" {
		if _, err := uuid.Parse(ticket.Result.TargetID); err != nil {
			a.logger.Warn("ignoring review ticket with malformed target id", "job", ticket.JobID)
			return false, nil
		}
	}

	record, err := a.records.GetRecord(ctx, tenant, ticket.JobID)
	if scanerrors.IsNotFound(err) {
		// The ticket belongs to a job this reviewer is not tracking.
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if record.AppliedAt != nil {
		return false, nil
	}
	if ticket.Status != JobSucceeded || ticket.Result == nil {
		return false, nil
	}

	statusAfter := verdictStatus(ticket.Result.Verdict, record.StatusBefore)
	won, err := a.records.MarkApplied(ctx, tenant, ticket.JobID, Applied{
		Verdict:     ticket.Result.Verdict,
		Confidence:  ticket.Result.Confidence,
		Reason:      ticket.Result.Reason,
		StatusAfter: statusAfter,
		AppliedAt:   time.Now().UTC(),
	})
	if err != nil {
		return false, err
	}
	if !won {
		// A concurrent caller applied it first.
		return false, nil
	}

	switch record.TargetKind {
	case TargetScaIssue:
		err = a.findings.UpdateScaIssueStatus(ctx, tenant, record.TargetID, statusAfter)
	default:
		err = a.findings.UpdateFindingStatus(ctx, tenant, record.TargetID, statusAfter)
	}
	if err != nil {
		return true, err
	}

	a.logger.Info("review verdict applied", "job", ticket.JobID, "target", record.TargetID, "status", statusAfter)
	return true, nil
}

// verdictStatus maps the reviewer's verdict onto the workflow state. An
// uncertain verdict leaves the status where it was.
func verdictStatus(v Verdict, before ingest.Status) ingest.Status {
	switch v {
	case VerdictTruePositive:
		return ingest.StatusConfirmed
	case VerdictFalsePositive:
		return ingest.StatusFalsePositive
	default:
		return before
	}
}
