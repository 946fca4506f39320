package task

import (
	"context"

	"github.com/google/uuid"
)

// Store is the tenant-scoped persistence boundary for tasks and stages.
// Every call is parameterized by tenant; implementations must not return
// rows owned by another tenant.
type Store interface {
	CreateTask(ctx context.Context, tenant string, t *Task) error
	GetTask(ctx context.Context, tenant string, id uuid.UUID) (*Task, error)
	FindTaskByCorrelation(ctx context.Context, tenant, correlationID string) (*Task, error)
	UpdateTaskStatus(ctx context.Context, tenant string, id uuid.UUID, status Status) error
	AssignExecutor(ctx context.Context, tenant string, id uuid.UUID, executorID string) error

	UpsertStage(ctx context.Context, tenant string, s *Stage) error
	GetStage(ctx context.Context, tenant string, id uuid.UUID) (*Stage, error)
	ListStages(ctx context.Context, tenant string, taskID uuid.UUID) ([]Stage, error)
}
