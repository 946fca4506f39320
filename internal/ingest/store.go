package ingest

import (
	"context"

	"github.com/google/uuid"
)

// FindingStore is the tenant-scoped persistence boundary for findings and
// SCA issues. Upserts are last-write-wins by id.
type FindingStore interface {
	UpsertFinding(ctx context.Context, tenant string, f *Finding) error
	GetFinding(ctx context.Context, tenant string, id uuid.UUID) (*Finding, error)
	ListFindings(ctx context.Context, tenant string, taskID uuid.UUID) ([]Finding, error)
	UpdateFindingStatus(ctx context.Context, tenant string, id uuid.UUID, status Status) error

	UpsertScaIssue(ctx context.Context, tenant string, issue *ScaIssue) error
	GetScaIssue(ctx context.Context, tenant string, id uuid.UUID) (*ScaIssue, error)
	ListScaIssues(ctx context.Context, tenant string, taskID uuid.UUID) ([]ScaIssue, error)
	UpdateScaIssueStatus(ctx context.Context, tenant string, id uuid.UUID, status Status) error
}

// BaselineStore keeps one whole-set fingerprint snapshot per
// (tenant, project, kind). Replace is delete-then-insert, never a merge.
type BaselineStore interface {
	ReplaceBaseline(ctx context.Context, tenant, projectID, kind string, fingerprints []string) error
	GetBaseline(ctx context.Context, tenant, projectID, kind string) (map[string]struct{}, error)
}
