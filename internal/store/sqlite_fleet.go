package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/scan-io-git/scanio-hub/internal/fleet"
	"github.com/scan-io-git/scanio-hub/internal/ingest"
	"github.com/scan-io-git/scanio-hub/internal/review"
	scanerrors "github.com/scan-io-git/scanio-hub/pkg/shared/errors"
)

func (s *SQLite) CreateExecutor(ctx context.Context, tenant string, e *fleet.Executor) error {
	labels, err := marshalJSON(e.Labels)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO executors (id, tenant, name, status, labels, capacity_cpu, capacity_mem, usage_cpu, usage_mem, last_heartbeat, token, public_key, active, tombstoned_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID.String(), tenant, e.Name, string(e.Status), labels,
		e.Capacity.CPUMillis, e.Capacity.MemoryMB, e.Usage.CPUMillis, e.Usage.MemoryMB,
		e.LastHeartbeat, e.Token, e.PublicKey, boolToInt(e.Lifecycle.Active),
		e.Lifecycle.TombstonedAt, e.CreatedAt)
	return err
}

const executorColumns = `id, tenant, name, status, labels, capacity_cpu, capacity_mem, usage_cpu, usage_mem, last_heartbeat, token, public_key, active, tombstoned_at, created_at`

func scanExecutor(scanner interface{ Scan(...interface{}) error }) (*fleet.Executor, error) {
	var (
		e             fleet.Executor
		id, status    string
		labels        string
		lastHeartbeat sql.NullTime
		active        int
		tombstonedAt  sql.NullTime
	)
	err := scanner.Scan(&id, &e.Tenant, &e.Name, &status, &labels,
		&e.Capacity.CPUMillis, &e.Capacity.MemoryMB, &e.Usage.CPUMillis, &e.Usage.MemoryMB,
		&lastHeartbeat, &e.Token, &e.PublicKey, &active, &tombstonedAt, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("corrupt executor id %q: %w", id, err)
	}
	e.Status = fleet.ExecutorStatus(status)
	if lastHeartbeat.Valid {
		at := lastHeartbeat.Time
		e.LastHeartbeat = &at
	}
	e.Lifecycle.Active = active != 0
	if tombstonedAt.Valid {
		at := tombstonedAt.Time
		e.Lifecycle.TombstonedAt = &at
	}
	if err := unmarshalJSON(labels, &e.Labels); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *SQLite) GetExecutor(ctx context.Context, tenant string, id uuid.UUID) (*fleet.Executor, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+executorColumns+` FROM executors WHERE tenant = ? AND id = ? AND active = 1`,
		tenant, id.String())
	e, err := scanExecutor(row)
	if err == sql.ErrNoRows {
		return nil, scanerrors.NewNotFoundError("executor", id.String())
	}
	return e, err
}

// GetExecutorByToken resolves an executor from its bearer token. This lookup
// is tenant-free on purpose: the token is what establishes the tenant.
func (s *SQLite) GetExecutorByToken(ctx context.Context, token string) (*fleet.Executor, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+executorColumns+` FROM executors WHERE token = ? AND active = 1`, token)
	e, err := scanExecutor(row)
	if err == sql.ErrNoRows {
		return nil, scanerrors.NewNotFoundError("executor", "by token")
	}
	return e, err
}

func (s *SQLite) ListExecutors(ctx context.Context, tenant string, f fleet.Filter) ([]fleet.Executor, error) {
	query := `SELECT ` + executorColumns + ` FROM executors WHERE tenant = ? AND active = 1`
	args := []interface{}{tenant}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	if f.NameSubstring != "" {
		query += ` AND name LIKE ?`
		args = append(args, "%"+f.NameSubstring+"%")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var executors []fleet.Executor
	for rows.Next() {
		e, err := scanExecutor(rows)
		if err != nil {
			return nil, err
		}
		executors = append(executors, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortExecutors(executors)
	return executors, nil
}

func (s *SQLite) UpdateExecutorStatus(ctx context.Context, tenant string, id uuid.UUID, status fleet.ExecutorStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE executors SET status = ? WHERE tenant = ? AND id = ?`,
		string(status), tenant, id.String())
	if err != nil {
		return err
	}
	return requireRow(res, "executor", id.String())
}

func (s *SQLite) UpdateExecutorCapacity(ctx context.Context, tenant string, id uuid.UUID, capacity, usage fleet.Resources) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE executors SET capacity_cpu = ?, capacity_mem = ?, usage_cpu = ?, usage_mem = ? WHERE tenant = ? AND id = ?`,
		capacity.CPUMillis, capacity.MemoryMB, usage.CPUMillis, usage.MemoryMB, tenant, id.String())
	if err != nil {
		return err
	}
	return requireRow(res, "executor", id.String())
}

func (s *SQLite) RecordHeartbeat(ctx context.Context, tenant string, id uuid.UUID, at time.Time, usage fleet.Resources) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE executors SET last_heartbeat = ?, usage_cpu = ?, usage_mem = ? WHERE tenant = ? AND id = ?`,
		at, usage.CPUMillis, usage.MemoryMB, tenant, id.String())
	if err != nil {
		return err
	}
	return requireRow(res, "executor", id.String())
}

// --- review.RecordStore ---

func (s *SQLite) CreateRecord(ctx context.Context, tenant string, r *review.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO review_records (tenant, job_id, target_kind, target_id, verdict, confidence, reason, status_before, status_after, applied_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tenant, r.JobID, string(r.TargetKind), r.TargetID.String(), string(r.Verdict),
		r.Confidence, r.Reason, string(r.StatusBefore), string(r.StatusAfter), r.AppliedAt, r.CreatedAt)
	return err
}

func (s *SQLite) GetRecord(ctx context.Context, tenant, jobID string) (*review.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT job_id, target_kind, target_id, verdict, confidence, reason, status_before, status_after, applied_at, created_at
		FROM review_records WHERE tenant = ? AND job_id = ?`, tenant, jobID)

	var (
		r                        review.Record
		targetKind, targetID     string
		verdict                  string
		statusBefore, statusAfter string
		appliedAt                sql.NullTime
	)
	err := row.Scan(&r.JobID, &targetKind, &targetID, &verdict, &r.Confidence, &r.Reason,
		&statusBefore, &statusAfter, &appliedAt, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, scanerrors.NewNotFoundError("review record", jobID)
	}
	if err != nil {
		return nil, err
	}
	r.Tenant = tenant
	r.TargetKind = review.TargetKind(targetKind)
	r.TargetID, err = uuid.Parse(targetID)
	if err != nil {
		return nil, fmt.Errorf("corrupt review target id %q: %w", targetID, err)
	}
	r.Verdict = review.Verdict(verdict)
	r.StatusBefore = ingest.Status(statusBefore)
	r.StatusAfter = ingest.Status(statusAfter)
	if appliedAt.Valid {
		at := appliedAt.Time
		r.AppliedAt = &at
	}
	return &r, nil
}

// MarkApplied is the compare-and-swap on applied_at: the guard in the WHERE
// clause makes repeated polling of the same job safe.
func (s *SQLite) MarkApplied(ctx context.Context, tenant, jobID string, a review.Applied) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE review_records
		SET verdict = ?, confidence = ?, reason = ?, status_after = ?, applied_at = ?
		WHERE tenant = ? AND job_id = ? AND applied_at IS NULL`,
		string(a.Verdict), a.Confidence, a.Reason, string(a.StatusAfter), a.AppliedAt, tenant, jobID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
