package review

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/scan-io-git/scanio-hub/internal/ingest"
)

// TargetKind distinguishes finding reviews from SCA issue reviews.
type TargetKind string

const (
	TargetFinding  TargetKind = "FINDING"
	TargetScaIssue TargetKind = "SCA_ISSUE"
)

// Verdict is the AI reviewer's conclusion.
type Verdict string

const (
	VerdictTruePositive  Verdict = "TRUE_POSITIVE"
	VerdictFalsePositive Verdict = "FALSE_POSITIVE"
	VerdictUncertain     Verdict = "UNCERTAIN"
)

// Record is an append-only review trail entry keyed by (tenant, job id).
// A record with non-nil AppliedAt is terminal: the verdict has been applied
// to the underlying finding or issue and must not be applied again.
type Record struct {
	Tenant       string        `json:"tenant"`
	JobID        string        `json:"job_id"`
	TargetKind   TargetKind    `json:"target_kind"`
	TargetID     uuid.UUID     `json:"target_id"`
	Verdict      Verdict       `json:"verdict,omitempty"`
	Confidence   float64       `json:"confidence,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	StatusBefore ingest.Status `json:"status_before"`
	StatusAfter  ingest.Status `json:"status_after,omitempty"`
	AppliedAt    *time.Time    `json:"applied_at,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Applied carries the fields written by the conditional update.
type Applied struct {
	Verdict     Verdict
	Confidence  float64
	Reason      string
	StatusAfter ingest.Status
	AppliedAt   time.Time
}

// RecordStore persists review records. MarkApplied is the single conditional
// update enforcing at-most-once application: it writes the verdict fields and
// AppliedAt only if the row's AppliedAt is still null, and reports whether
// this caller won the race.
type RecordStore interface {
	CreateRecord(ctx context.Context, tenant string, r *Record) error
	GetRecord(ctx context.Context, tenant, jobID string) (*Record, error)
	MarkApplied(ctx context.Context, tenant, jobID string, a Applied) (bool, error)
}
