package task

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	scanerrors "github.com/scan-io-git/scanio-hub/pkg/shared/errors"
)

// SubmitRequest carries the fields accepted at task submission.
type SubmitRequest struct {
	ProjectID     string
	RepoURL       string
	Type          Type
	Spec          Spec
	CorrelationID string
}

// Service handles task submission and status updates on behalf of the API
// layer. Authorization happens at that boundary, not here.
type Service struct {
	store  Store
	logger hclog.Logger
}

// NewService creates a task Service over the given store.
func NewService(store Store, logger hclog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Submit creates a new task. A duplicate submission carrying a known
// correlation id returns the existing task instead of inserting a second one.
func (s *Service) Submit(ctx context.Context, tenant string, req SubmitRequest) (*Task, error) {
	if req.ProjectID == "" {
		return nil, scanerrors.NewValidationError("project_id", "must be set")
	}
	if req.Spec.Source.Kind == "" {
		return nil, scanerrors.NewValidationError("spec.source.kind", "must be set")
	}

	if req.CorrelationID != "" {
		existing, err := s.store.FindTaskByCorrelation(ctx, tenant, req.CorrelationID)
		if err == nil {
			s.logger.Debug("duplicate submission", "correlation_id", req.CorrelationID, "task", existing.ID)
			return existing, nil
		}
		if !scanerrors.IsNotFound(err) {
			return nil, err
		}
	}

	now := time.Now().UTC()
	t := &Task{
		ID:            uuid.New(),
		Tenant:        tenant,
		ProjectID:     req.ProjectID,
		RepoURL:       req.RepoURL,
		Type:          req.Type,
		Spec:          req.Spec,
		Status:        StatusPending,
		CorrelationID: req.CorrelationID,
		Lifecycle:     ActiveLifecycle(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateTask(ctx, tenant, t); err != nil {
		return nil, err
	}
	s.logger.Info("task submitted", "task", t.ID, "type", t.Type, "project", t.ProjectID)
	return t, nil
}

// Get returns the task by id.
func (s *Service) Get(ctx context.Context, tenant string, id uuid.UUID) (*Task, error) {
	return s.store.GetTask(ctx, tenant, id)
}

// UpdateStatus applies an explicit status transition, rejecting moves out of
// a terminal state.
func (s *Service) UpdateStatus(ctx context.Context, tenant string, id uuid.UUID, status Status) error {
	t, err := s.store.GetTask(ctx, tenant, id)
	if err != nil {
		return err
	}
	if t.Status.Terminal() {
		return scanerrors.NewValidationError("task.status", "task %s is already %s", id, t.Status)
	}
	return s.store.UpdateTaskStatus(ctx, tenant, id, status)
}
