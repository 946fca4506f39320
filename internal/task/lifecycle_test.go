package task_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scan-io-git/scanio-hub/internal/events"
	"github.com/scan-io-git/scanio-hub/internal/store"
	"github.com/scan-io-git/scanio-hub/internal/task"
)

const testTenant = "acme"

func newTestTask(t *testing.T, s task.Store) *task.Task {
	t.Helper()
	tsk := &task.Task{
		ID:        uuid.New(),
		Tenant:    testTenant,
		ProjectID: "proj-1",
		Type:      task.TypeCodeScan,
		Status:    task.StatusPending,
		Lifecycle: task.ActiveLifecycle(),
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreateTask(context.Background(), testTenant, tsk))
	return tsk
}

func newStageFor(tsk *task.Task, st task.StageType, status task.StageStatus) task.Stage {
	return task.Stage{
		ID:        uuid.New(),
		TaskID:    tsk.ID,
		Type:      st,
		Status:    status,
		StartedAt: time.Now().UTC(),
	}
}

func TestPersistFirstStageActivityStartsTask(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	mgr := task.NewStageManager(s, events.NewBus(), hclog.NewNullLogger())
	tsk := newTestTask(t, s)

	_, err := mgr.Persist(ctx, testTenant, newStageFor(tsk, task.StageRulesPrepare, task.StageSucceeded), "")
	require.NoError(t, err)

	got, err := s.GetTask(ctx, testTenant, tsk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusRunning, got.Status)
}

func TestPersistFailedStageFailsTask(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	bus := events.NewBus()

	var published []task.StageCompleted
	bus.Subscribe(task.TopicStageCompleted, func(ctx context.Context, event interface{}) {
		published = append(published, event.(task.StageCompleted))
	})

	mgr := task.NewStageManager(s, bus, hclog.NewNullLogger())
	tsk := newTestTask(t, s)

	stage := newStageFor(tsk, task.StageScanExec, task.StageFailed)
	stage.Error = "semgrep exited with code 2"
	_, err := mgr.Persist(ctx, testTenant, stage, "corr-7")
	require.NoError(t, err)

	got, err := s.GetTask(ctx, testTenant, tsk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusFailed, got.Status)

	// The stage row survives the cascade.
	persisted, err := s.GetStage(ctx, testTenant, stage.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StageFailed, persisted.Status)

	require.Len(t, published, 1)
	assert.Equal(t, tsk.ID, published[0].TaskID)
	assert.Equal(t, stage.ID, published[0].StageID)
	assert.Equal(t, task.StageScanExec, published[0].StageType)
	assert.Equal(t, task.StageFailed, published[0].Status)
	assert.Equal(t, "corr-7", published[0].CorrelationID)
}

func TestPersistRejectedOnTerminalTask(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	mgr := task.NewStageManager(s, events.NewBus(), hclog.NewNullLogger())
	tsk := newTestTask(t, s)
	require.NoError(t, s.UpdateTaskStatus(ctx, testTenant, tsk.ID, task.StatusCanceled))

	_, err := mgr.Persist(ctx, testTenant, newStageFor(tsk, task.StageScanExec, task.StageSucceeded), "")
	require.Error(t, err)

	// The rejected stage must not leave a row behind.
	stages, err := s.ListStages(ctx, testTenant, tsk.ID)
	require.NoError(t, err)
	assert.Empty(t, stages)
}

func TestPersistRejectsUnknownStageType(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	mgr := task.NewStageManager(s, events.NewBus(), hclog.NewNullLogger())
	tsk := newTestTask(t, s)

	stage := newStageFor(tsk, task.StageType("MYSTERY"), task.StageSucceeded)
	_, err := mgr.Persist(ctx, testTenant, stage, "")
	require.Error(t, err)
}

func TestSubmitDeduplicatesByCorrelationID(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	svc := task.NewService(s, hclog.NewNullLogger())

	req := task.SubmitRequest{
		ProjectID:     "proj-1",
		Type:          task.TypeCodeScan,
		Spec:          task.Spec{Engine: "semgrep", Source: task.SourceSpec{Kind: task.SourceGit, CloneURL: "https://example.com/r.git"}},
		CorrelationID: "ci-run-42",
	}

	first, err := svc.Submit(ctx, testTenant, req)
	require.NoError(t, err)
	second, err := svc.Submit(ctx, testTenant, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestUpdateStatusRejectsTransitionOutOfTerminal(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	svc := task.NewService(s, hclog.NewNullLogger())
	tsk := newTestTask(t, s)
	require.NoError(t, s.UpdateTaskStatus(ctx, testTenant, tsk.ID, task.StatusSucceeded))

	err := svc.UpdateStatus(ctx, testTenant, tsk.ID, task.StatusRunning)
	require.Error(t, err)
}
