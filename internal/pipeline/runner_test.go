package pipeline_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scan-io-git/scanio-hub/internal/events"
	"github.com/scan-io-git/scanio-hub/internal/ingest"
	"github.com/scan-io-git/scanio-hub/internal/pipeline"
	"github.com/scan-io-git/scanio-hub/internal/store"
	"github.com/scan-io-git/scanio-hub/internal/task"
	"github.com/scan-io-git/scanio-hub/internal/workspace"
	"github.com/scan-io-git/scanio-hub/pkg/shared/config"
	scanerrors "github.com/scan-io-git/scanio-hub/pkg/shared/errors"
)

const testTenant = "acme"

type harness struct {
	store     *store.Memory
	workspace *workspace.Store
	runner    *pipeline.Runner
}

func newHarness(t *testing.T, cfg *config.Config) *harness {
	t.Helper()
	m := store.NewMemory()
	ws, err := workspace.NewStore(t.TempDir(), resty.New(), hclog.NewNullLogger())
	require.NoError(t, err)

	runner := pipeline.NewRunner(
		cfg,
		task.NewStageManager(m, events.NewBus(), hclog.NewNullLogger()),
		m,
		ws,
		ingest.NewIngestor(m, m, hclog.NewNullLogger()),
		m,
		m,
		nil,
		hclog.NewNullLogger(),
	)
	return &harness{store: m, workspace: ws, runner: runner}
}

func seedTask(t *testing.T, m *store.Memory, spec task.Spec, status task.Status) *task.Task {
	t.Helper()
	now := time.Now().UTC()
	tsk := &task.Task{
		ID:        uuid.New(),
		Tenant:    testTenant,
		ProjectID: "proj-1",
		Type:      task.TypeCodeScan,
		Spec:      spec,
		Status:    status,
		Lifecycle: task.ActiveLifecycle(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, m.CreateTask(context.Background(), testTenant, tsk))
	return tsk
}

func TestRunScanExecRejectsUnknownEngineWithoutMutation(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Scanners.Engines = map[string]config.Engine{"semgrep": {Binary: "/usr/bin/semgrep"}}
	h := newHarness(t, cfg)
	tsk := seedTask(t, h.store, task.Spec{Engine: "ghidra"}, task.StatusPending)

	_, err := h.runner.RunScanExec(ctx, testTenant, tsk)
	require.Error(t, err)
	assert.True(t, scanerrors.IsValidation(err))

	// The rejection happens before any state is written.
	stages, err := h.store.ListStages(ctx, testTenant, tsk.ID)
	require.NoError(t, err)
	assert.Empty(t, stages)

	got, err := h.store.GetTask(ctx, testTenant, tsk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusPending, got.Status)
}

func TestRunRulesPrepareExplicitSelection(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, config.Default())
	tsk := seedTask(t, h.store, task.Spec{
		Engine: "semgrep",
		Rules:  task.RuleSelection{Mode: task.RuleModeExplicit, RuleIDs: []string{"sqli", "xss"}},
	}, task.StatusPending)

	stage, err := h.runner.RunRulesPrepare(ctx, testTenant, tsk)
	require.NoError(t, err)
	assert.Equal(t, task.StageSucceeded, stage.Status)
	require.Len(t, stage.Artifacts, 1)
	assert.Equal(t, "ruleset", stage.Artifacts[0].Kind())

	// First stage activity moved the task to RUNNING.
	got, err := h.store.GetTask(ctx, testTenant, tsk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusRunning, got.Status)
}

func TestRunRulesPrepareProfileReferencesPublishedRuleset(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, config.Default())

	published, err := h.workspace.Put(testTenant, "ruleset", "profile-strict", []byte("rules: [sqli, xss]\n"))
	require.NoError(t, err)

	tsk := seedTask(t, h.store, task.Spec{
		Engine: "semgrep",
		Rules:  task.RuleSelection{Mode: task.RuleModeProfile, Profile: "strict"},
	}, task.StatusPending)

	stage, err := h.runner.RunRulesPrepare(ctx, testTenant, tsk)
	require.NoError(t, err)
	assert.Equal(t, task.StageSucceeded, stage.Status)

	// The stage points at the published artifact; no per-task copy is made.
	require.Len(t, stage.Artifacts, 1)
	assert.Equal(t, published, stage.Artifacts[0])

	path, err := h.workspace.Resolve(testTenant, stage.Artifacts[0])
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "rules: [sqli, xss]\n", string(data))
}

func TestRunRulesPrepareUnpublishedProfileFailsStage(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, config.Default())
	tsk := seedTask(t, h.store, task.Spec{
		Engine: "semgrep",
		Rules:  task.RuleSelection{Mode: task.RuleModeProfile, Profile: "nonexistent"},
	}, task.StatusPending)

	stage, err := h.runner.RunRulesPrepare(ctx, testTenant, tsk)
	require.NoError(t, err)
	assert.Equal(t, task.StageFailed, stage.Status)
}

func TestRunRulesPrepareExplicitWithoutRulesFailsStage(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, config.Default())
	tsk := seedTask(t, h.store, task.Spec{
		Engine: "semgrep",
		Rules:  task.RuleSelection{Mode: task.RuleModeExplicit},
	}, task.StatusPending)

	stage, err := h.runner.RunRulesPrepare(ctx, testTenant, tsk)
	require.NoError(t, err)
	assert.Equal(t, task.StageFailed, stage.Status)

	// The failed stage cascades into a failed task.
	got, err := h.store.GetTask(ctx, testTenant, tsk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusFailed, got.Status)
}

func TestRunResultReviewQueuesRecordsPerPolicy(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, config.Default())
	tsk := seedTask(t, h.store, task.Spec{
		Engine:   "semgrep",
		AIReview: task.AIReviewPolicy{Mode: task.AIReviewFindings, MinSeverity: "HIGH"},
	}, task.StatusRunning)

	now := time.Now().UTC()
	seed := []ingest.Finding{
		{Fingerprint: "fp-high-new", Severity: ingest.SeverityHigh, Baseline: ingest.BaselineNew},
		{Fingerprint: "fp-low-new", Severity: ingest.SeverityLow, Baseline: ingest.BaselineNew},
		{Fingerprint: "fp-high-known", Severity: ingest.SeverityHigh, Baseline: ingest.BaselineKnown},
	}
	for i := range seed {
		f := seed[i]
		f.ID = ingest.FindingID(tsk.ID, f.Fingerprint)
		f.Tenant = testTenant
		f.TaskID = tsk.ID
		f.Status = ingest.StatusOpen
		f.Lifecycle = task.ActiveLifecycle()
		f.CreatedAt = now
		f.UpdatedAt = now
		require.NoError(t, h.store.UpsertFinding(ctx, testTenant, &f))
	}

	stage, err := h.runner.RunResultReview(ctx, testTenant, tsk)
	require.NoError(t, err)
	assert.Equal(t, task.StageSucceeded, stage.Status)
	// Only the new HIGH finding crosses the FINDINGS-mode gate.
	assert.True(t, stage.Signals.NeedsAIReview)

	queued := 0
	for _, f := range seed {
		id := ingest.FindingID(tsk.ID, f.Fingerprint)
		if _, err := h.store.GetRecord(ctx, testTenant, "finding-"+id.String()); err == nil {
			queued++
		}
	}
	assert.Equal(t, 1, queued)

	got, err := h.store.GetTask(ctx, testTenant, tsk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusSucceeded, got.Status)
}

func TestRunResultReviewOffQueuesNothing(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, config.Default())
	tsk := seedTask(t, h.store, task.Spec{Engine: "semgrep"}, task.StatusRunning)

	stage, err := h.runner.RunResultReview(ctx, testTenant, tsk)
	require.NoError(t, err)
	assert.Equal(t, task.StageSucceeded, stage.Status)
	assert.False(t, stage.Signals.NeedsAIReview)
}
