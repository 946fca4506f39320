package task

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/scanio-hub/internal/events"
	scanerrors "github.com/scan-io-git/scanio-hub/pkg/shared/errors"
)

// TopicStageCompleted is the event bus topic for stage completion events.
const TopicStageCompleted = "stage.completed"

// StageCompleted is published after a stage row is durably persisted.
type StageCompleted struct {
	TaskID        uuid.UUID
	StageID       uuid.UUID
	StageType     StageType
	Status        StageStatus
	CorrelationID string
}

// StageManager owns the stage persistence contract: upsert the stage, emit a
// completion event, and cascade a FAILED stage into a FAILED task. It performs
// no I/O beyond the store and the bus.
type StageManager struct {
	store  Store
	bus    *events.Bus
	logger hclog.Logger
}

// NewStageManager wires a StageManager over the given store and event bus.
func NewStageManager(store Store, bus *events.Bus, logger hclog.Logger) *StageManager {
	return &StageManager{store: store, bus: bus, logger: logger}
}

// Persist applies one stage result. The stage row is stored before the task
// transition so a crash between the two leaves the stage result intact; the
// task status is eventually consistent on retry.
func (m *StageManager) Persist(ctx context.Context, tenant string, stage Stage, correlationID string) (Stage, error) {
	if stage.ID == uuid.Nil {
		return Stage{}, scanerrors.NewValidationError("stage.id", "must be set")
	}
	if StageOrder(stage.Type) < 0 {
		return Stage{}, scanerrors.NewValidationError("stage.type", "unknown stage type %q", stage.Type)
	}

	owner, err := m.store.GetTask(ctx, tenant, stage.TaskID)
	if err != nil {
		return Stage{}, err
	}
	if !owner.Status.CanStartStage() {
		return Stage{}, scanerrors.NewValidationError("task.status", "task %s is %s, no stage may run", owner.ID, owner.Status)
	}

	// First stage activity moves a pending task to running.
	if owner.Status == StatusPending {
		if err := m.store.UpdateTaskStatus(ctx, tenant, owner.ID, StatusRunning); err != nil {
			return Stage{}, fmt.Errorf("failed to start task %s: %w", owner.ID, err)
		}
	}

	if stage.FinishedAt.IsZero() {
		stage.FinishedAt = time.Now().UTC()
	}
	if err := m.store.UpsertStage(ctx, tenant, &stage); err != nil {
		return Stage{}, fmt.Errorf("failed to persist stage %s: %w", stage.ID, err)
	}

	m.bus.Publish(ctx, TopicStageCompleted, StageCompleted{
		TaskID:        stage.TaskID,
		StageID:       stage.ID,
		StageType:     stage.Type,
		Status:        stage.Status,
		CorrelationID: correlationID,
	})

	if stage.Status == StageFailed {
		m.logger.Warn("stage failed, failing task", "task", stage.TaskID, "stage", stage.ID, "type", stage.Type)
		if err := m.store.UpdateTaskStatus(ctx, tenant, stage.TaskID, StatusFailed); err != nil {
			return Stage{}, fmt.Errorf("failed to fail task %s: %w", stage.TaskID, err)
		}
	}

	return stage, nil
}
