// Package store provides the persistence implementations behind the
// repository interfaces declared by the domain packages. Both backends
// enforce tenant scoping at the call boundary.
package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scan-io-git/scanio-hub/internal/fleet"
	"github.com/scan-io-git/scanio-hub/internal/ingest"
	"github.com/scan-io-git/scanio-hub/internal/review"
	"github.com/scan-io-git/scanio-hub/internal/task"
	scanerrors "github.com/scan-io-git/scanio-hub/pkg/shared/errors"
)

type tenantKey struct {
	tenant string
	id     uuid.UUID
}

type baselineKey struct {
	tenant    string
	projectID string
	kind      string
}

type recordKey struct {
	tenant string
	jobID  string
}

// Memory is the in-memory backend, used for tests and single-process runs.
type Memory struct {
	mu        sync.RWMutex
	tasks     map[tenantKey]task.Task
	stages    map[tenantKey]task.Stage
	findings  map[tenantKey]ingest.Finding
	scaIssues map[tenantKey]ingest.ScaIssue
	baselines map[baselineKey]map[string]struct{}
	executors map[tenantKey]fleet.Executor
	records   map[recordKey]review.Record
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		tasks:     make(map[tenantKey]task.Task),
		stages:    make(map[tenantKey]task.Stage),
		findings:  make(map[tenantKey]ingest.Finding),
		scaIssues: make(map[tenantKey]ingest.ScaIssue),
		baselines: make(map[baselineKey]map[string]struct{}),
		executors: make(map[tenantKey]fleet.Executor),
		records:   make(map[recordKey]review.Record),
	}
}

// --- task.Store ---

func (m *Memory) CreateTask(ctx context.Context, tenant string, t *task.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[tenantKey{tenant, t.ID}] = *t
	return nil
}

func (m *Memory) GetTask(ctx context.Context, tenant string, id uuid.UUID) (*task.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[tenantKey{tenant, id}]
	if !ok || !t.Lifecycle.Active {
		return nil, scanerrors.NewNotFoundError("task", id.String())
	}
	out := t
	return &out, nil
}

func (m *Memory) FindTaskByCorrelation(ctx context.Context, tenant, correlationID string) (*task.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for key, t := range m.tasks {
		if key.tenant == tenant && t.CorrelationID == correlationID && t.Lifecycle.Active {
			out := t
			return &out, nil
		}
	}
	return nil, scanerrors.NewNotFoundError("task", correlationID)
}

func (m *Memory) UpdateTaskStatus(ctx context.Context, tenant string, id uuid.UUID, status task.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := tenantKey{tenant, id}
	t, ok := m.tasks[key]
	if !ok {
		return scanerrors.NewNotFoundError("task", id.String())
	}
	t.Status = status
	t.UpdatedAt = time.Now().UTC()
	m.tasks[key] = t
	return nil
}

func (m *Memory) AssignExecutor(ctx context.Context, tenant string, id uuid.UUID, executorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := tenantKey{tenant, id}
	t, ok := m.tasks[key]
	if !ok {
		return scanerrors.NewNotFoundError("task", id.String())
	}
	t.ExecutorID = executorID
	t.UpdatedAt = time.Now().UTC()
	m.tasks[key] = t
	return nil
}

func (m *Memory) UpsertStage(ctx context.Context, tenant string, s *task.Stage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages[tenantKey{tenant, s.ID}] = *s
	return nil
}

func (m *Memory) GetStage(ctx context.Context, tenant string, id uuid.UUID) (*task.Stage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.stages[tenantKey{tenant, id}]
	if !ok {
		return nil, scanerrors.NewNotFoundError("stage", id.String())
	}
	out := s
	return &out, nil
}

func (m *Memory) ListStages(ctx context.Context, tenant string, taskID uuid.UUID) ([]task.Stage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var stages []task.Stage
	for key, s := range m.stages {
		if key.tenant == tenant && s.TaskID == taskID {
			stages = append(stages, s)
		}
	}
	sortStages(stages)
	return stages, nil
}

// --- ingest.FindingStore ---

func (m *Memory) UpsertFinding(ctx context.Context, tenant string, f *ingest.Finding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findings[tenantKey{tenant, f.ID}] = *f
	return nil
}

func (m *Memory) GetFinding(ctx context.Context, tenant string, id uuid.UUID) (*ingest.Finding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.findings[tenantKey{tenant, id}]
	if !ok {
		return nil, scanerrors.NewNotFoundError("finding", id.String())
	}
	out := f
	return &out, nil
}

func (m *Memory) ListFindings(ctx context.Context, tenant string, taskID uuid.UUID) ([]ingest.Finding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var findings []ingest.Finding
	for key, f := range m.findings {
		if key.tenant == tenant && f.TaskID == taskID && f.Lifecycle.Active {
			findings = append(findings, f)
		}
	}
	sortFindings(findings)
	return findings, nil
}

func (m *Memory) UpdateFindingStatus(ctx context.Context, tenant string, id uuid.UUID, status ingest.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := tenantKey{tenant, id}
	f, ok := m.findings[key]
	if !ok {
		return scanerrors.NewNotFoundError("finding", id.String())
	}
	f.Status = status
	f.UpdatedAt = time.Now().UTC()
	m.findings[key] = f
	return nil
}

func (m *Memory) UpsertScaIssue(ctx context.Context, tenant string, issue *ingest.ScaIssue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scaIssues[tenantKey{tenant, issue.ID}] = *issue
	return nil
}

func (m *Memory) GetScaIssue(ctx context.Context, tenant string, id uuid.UUID) (*ingest.ScaIssue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	issue, ok := m.scaIssues[tenantKey{tenant, id}]
	if !ok {
		return nil, scanerrors.NewNotFoundError("sca issue", id.String())
	}
	out := issue
	return &out, nil
}

func (m *Memory) ListScaIssues(ctx context.Context, tenant string, taskID uuid.UUID) ([]ingest.ScaIssue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var issues []ingest.ScaIssue
	for key, issue := range m.scaIssues {
		if key.tenant == tenant && issue.TaskID == taskID && issue.Lifecycle.Active {
			issues = append(issues, issue)
		}
	}
	sortScaIssues(issues)
	return issues, nil
}

func (m *Memory) UpdateScaIssueStatus(ctx context.Context, tenant string, id uuid.UUID, status ingest.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := tenantKey{tenant, id}
	issue, ok := m.scaIssues[key]
	if !ok {
		return scanerrors.NewNotFoundError("sca issue", id.String())
	}
	issue.Status = status
	issue.UpdatedAt = time.Now().UTC()
	m.scaIssues[key] = issue
	return nil
}

// --- ingest.BaselineStore ---

func (m *Memory) ReplaceBaseline(ctx context.Context, tenant, projectID, kind string, fingerprints []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := make(map[string]struct{}, len(fingerprints))
	for _, fp := range fingerprints {
		set[fp] = struct{}{}
	}
	m.baselines[baselineKey{tenant, projectID, kind}] = set
	return nil
}

func (m *Memory) GetBaseline(ctx context.Context, tenant, projectID, kind string) (map[string]struct{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := m.baselines[baselineKey{tenant, projectID, kind}]
	out := make(map[string]struct{}, len(set))
	for fp := range set {
		out[fp] = struct{}{}
	}
	return out, nil
}

// --- fleet.Store ---

func (m *Memory) CreateExecutor(ctx context.Context, tenant string, e *fleet.Executor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executors[tenantKey{tenant, e.ID}] = *e
	return nil
}

func (m *Memory) GetExecutor(ctx context.Context, tenant string, id uuid.UUID) (*fleet.Executor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.executors[tenantKey{tenant, id}]
	if !ok || !e.Lifecycle.Active {
		return nil, scanerrors.NewNotFoundError("executor", id.String())
	}
	out := e
	return &out, nil
}

func (m *Memory) GetExecutorByToken(ctx context.Context, token string) (*fleet.Executor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.executors {
		if e.Token == token && e.Lifecycle.Active {
			out := e
			return &out, nil
		}
	}
	return nil, scanerrors.NewNotFoundError("executor", "by token")
}

func (m *Memory) ListExecutors(ctx context.Context, tenant string, f fleet.Filter) ([]fleet.Executor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var executors []fleet.Executor
	for key, e := range m.executors {
		if key.tenant != tenant || !e.Lifecycle.Active {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		if f.NameSubstring != "" && !strings.Contains(e.Name, f.NameSubstring) {
			continue
		}
		executors = append(executors, e)
	}
	sortExecutors(executors)
	return executors, nil
}

func (m *Memory) UpdateExecutorStatus(ctx context.Context, tenant string, id uuid.UUID, status fleet.ExecutorStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := tenantKey{tenant, id}
	e, ok := m.executors[key]
	if !ok {
		return scanerrors.NewNotFoundError("executor", id.String())
	}
	e.Status = status
	m.executors[key] = e
	return nil
}

func (m *Memory) UpdateExecutorCapacity(ctx context.Context, tenant string, id uuid.UUID, capacity, usage fleet.Resources) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := tenantKey{tenant, id}
	e, ok := m.executors[key]
	if !ok {
		return scanerrors.NewNotFoundError("executor", id.String())
	}
	e.Capacity = capacity
	e.Usage = usage
	m.executors[key] = e
	return nil
}

func (m *Memory) RecordHeartbeat(ctx context.Context, tenant string, id uuid.UUID, at time.Time, usage fleet.Resources) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := tenantKey{tenant, id}
	e, ok := m.executors[key]
	if !ok {
		return scanerrors.NewNotFoundError("executor", id.String())
	}
	e.LastHeartbeat = &at
	e.Usage = usage
	m.executors[key] = e
	return nil
}

// --- review.RecordStore ---

func (m *Memory) CreateRecord(ctx context.Context, tenant string, r *review.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := recordKey{tenant, r.JobID}
	if _, exists := m.records[key]; exists {
		return nil
	}
	m.records[key] = *r
	return nil
}

func (m *Memory) GetRecord(ctx context.Context, tenant, jobID string) (*review.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[recordKey{tenant, jobID}]
	if !ok {
		return nil, scanerrors.NewNotFoundError("review record", jobID)
	}
	out := r
	return &out, nil
}

func (m *Memory) MarkApplied(ctx context.Context, tenant, jobID string, a review.Applied) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := recordKey{tenant, jobID}
	r, ok := m.records[key]
	if !ok {
		return false, scanerrors.NewNotFoundError("review record", jobID)
	}
	if r.AppliedAt != nil {
		return false, nil
	}
	r.Verdict = a.Verdict
	r.Confidence = a.Confidence
	r.Reason = a.Reason
	r.StatusAfter = a.StatusAfter
	appliedAt := a.AppliedAt
	r.AppliedAt = &appliedAt
	m.records[key] = r
	return true, nil
}
