package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/scan-io-git/scanio-hub/internal/task"
	scanerrors "github.com/scan-io-git/scanio-hub/pkg/shared/errors"
)

func marshalJSON(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding column: %w", err)
	}
	return string(data), nil
}

func unmarshalJSON(data string, v interface{}) error {
	if data == "" {
		return nil
	}
	return json.Unmarshal([]byte(data), v)
}

func (s *SQLite) CreateTask(ctx context.Context, tenant string, t *task.Task) error {
	spec, err := marshalJSON(t.Spec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, tenant, project_id, repo_url, executor_id, type, spec, status, correlation_id, active, tombstoned_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID.String(), tenant, t.ProjectID, t.RepoURL, t.ExecutorID, string(t.Type), spec,
		string(t.Status), t.CorrelationID, boolToInt(t.Lifecycle.Active), t.Lifecycle.TombstonedAt, t.CreatedAt, t.UpdatedAt)
	return err
}

const taskColumns = `id, project_id, repo_url, executor_id, type, spec, status, correlation_id, active, tombstoned_at, created_at, updated_at`

func (s *SQLite) scanTask(row *sql.Row, tenant string) (*task.Task, error) {
	var (
		t            task.Task
		id, spec     string
		taskType     string
		status       string
		active       int
		tombstonedAt sql.NullTime
	)
	err := row.Scan(&id, &t.ProjectID, &t.RepoURL, &t.ExecutorID, &taskType, &spec,
		&status, &t.CorrelationID, &active, &tombstonedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("corrupt task id %q: %w", id, err)
	}
	t.Tenant = tenant
	t.Type = task.Type(taskType)
	t.Status = task.Status(status)
	t.Lifecycle.Active = active != 0
	if tombstonedAt.Valid {
		at := tombstonedAt.Time
		t.Lifecycle.TombstonedAt = &at
	}
	if err := unmarshalJSON(spec, &t.Spec); err != nil {
		return nil, fmt.Errorf("corrupt task spec: %w", err)
	}
	return &t, nil
}

func (s *SQLite) GetTask(ctx context.Context, tenant string, id uuid.UUID) (*task.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE tenant = ? AND id = ? AND active = 1`, tenant, id.String())
	t, err := s.scanTask(row, tenant)
	if err == sql.ErrNoRows {
		return nil, scanerrors.NewNotFoundError("task", id.String())
	}
	return t, err
}

func (s *SQLite) FindTaskByCorrelation(ctx context.Context, tenant, correlationID string) (*task.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE tenant = ? AND correlation_id = ? AND active = 1 LIMIT 1`,
		tenant, correlationID)
	t, err := s.scanTask(row, tenant)
	if err == sql.ErrNoRows {
		return nil, scanerrors.NewNotFoundError("task", correlationID)
	}
	return t, err
}

func (s *SQLite) UpdateTaskStatus(ctx context.Context, tenant string, id uuid.UUID, status task.Status) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, updated_at = ? WHERE tenant = ? AND id = ?`,
		string(status), time.Now().UTC(), tenant, id.String())
	if err != nil {
		return err
	}
	return requireRow(res, "task", id.String())
}

func (s *SQLite) AssignExecutor(ctx context.Context, tenant string, id uuid.UUID, executorID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET executor_id = ?, updated_at = ? WHERE tenant = ? AND id = ?`,
		executorID, time.Now().UTC(), tenant, id.String())
	if err != nil {
		return err
	}
	return requireRow(res, "task", id.String())
}

func (s *SQLite) UpsertStage(ctx context.Context, tenant string, st *task.Stage) error {
	spec, err := marshalJSON(st.Spec)
	if err != nil {
		return err
	}
	metrics, err := marshalJSON(st.Metrics)
	if err != nil {
		return err
	}
	signals, err := marshalJSON(st.Signals)
	if err != nil {
		return err
	}
	artifacts, err := marshalJSON(st.Artifacts)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO stages (id, tenant, task_id, type, status, spec, metrics, signals, artifacts, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant, id) DO UPDATE SET
			task_id = excluded.task_id,
			type = excluded.type,
			status = excluded.status,
			spec = excluded.spec,
			metrics = excluded.metrics,
			signals = excluded.signals,
			artifacts = excluded.artifacts,
			error = excluded.error,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at`,
		st.ID.String(), tenant, st.TaskID.String(), string(st.Type), string(st.Status),
		spec, metrics, signals, artifacts, st.Error, st.StartedAt, st.FinishedAt)
	return err
}

const stageColumns = `id, task_id, type, status, spec, metrics, signals, artifacts, error, started_at, finished_at`

func scanStage(scanner interface{ Scan(...interface{}) error }) (*task.Stage, error) {
	var (
		st                                task.Stage
		id, taskID                        string
		stageType, status                 string
		spec, metrics, signals, artifacts string
	)
	err := scanner.Scan(&id, &taskID, &stageType, &status, &spec, &metrics, &signals, &artifacts,
		&st.Error, &st.StartedAt, &st.FinishedAt)
	if err != nil {
		return nil, err
	}
	st.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("corrupt stage id %q: %w", id, err)
	}
	st.TaskID, err = uuid.Parse(taskID)
	if err != nil {
		return nil, fmt.Errorf("corrupt stage task id %q: %w", taskID, err)
	}
	st.Type = task.StageType(stageType)
	st.Status = task.StageStatus(status)
	if err := unmarshalJSON(spec, &st.Spec); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(metrics, &st.Metrics); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(signals, &st.Signals); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(artifacts, &st.Artifacts); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *SQLite) GetStage(ctx context.Context, tenant string, id uuid.UUID) (*task.Stage, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+stageColumns+` FROM stages WHERE tenant = ? AND id = ?`, tenant, id.String())
	st, err := scanStage(row)
	if err == sql.ErrNoRows {
		return nil, scanerrors.NewNotFoundError("stage", id.String())
	}
	return st, err
}

func (s *SQLite) ListStages(ctx context.Context, tenant string, taskID uuid.UUID) ([]task.Stage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+stageColumns+` FROM stages WHERE tenant = ? AND task_id = ?`, tenant, taskID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stages []task.Stage
	for rows.Next() {
		st, err := scanStage(rows)
		if err != nil {
			return nil, err
		}
		stages = append(stages, *st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortStages(stages)
	return stages, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func requireRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return scanerrors.NewNotFoundError(kind, id)
	}
	return nil
}
