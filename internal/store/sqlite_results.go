package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/scan-io-git/scanio-hub/internal/ingest"
	scanerrors "github.com/scan-io-git/scanio-hub/pkg/shared/errors"
)

func (s *SQLite) UpsertFinding(ctx context.Context, tenant string, f *ingest.Finding) error {
	location, err := marshalJSON(f.Location)
	if err != nil {
		return err
	}
	evidence, err := marshalJSON(f.Evidence)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO findings (id, tenant, task_id, rule_id, fingerprint, severity, status, message, location, evidence, fix_version, baseline, active, tombstoned_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant, id) DO UPDATE SET
			rule_id = excluded.rule_id,
			severity = excluded.severity,
			status = excluded.status,
			message = excluded.message,
			location = excluded.location,
			evidence = excluded.evidence,
			fix_version = excluded.fix_version,
			baseline = excluded.baseline,
			active = excluded.active,
			tombstoned_at = excluded.tombstoned_at,
			updated_at = excluded.updated_at`,
		f.ID.String(), tenant, f.TaskID.String(), f.RuleID, f.Fingerprint, string(f.Severity),
		string(f.Status), f.Message, location, evidence, f.FixVersion, string(f.Baseline),
		boolToInt(f.Lifecycle.Active), f.Lifecycle.TombstonedAt, f.CreatedAt, f.UpdatedAt)
	return err
}

const findingColumns = `id, task_id, rule_id, fingerprint, severity, status, message, location, evidence, fix_version, baseline, active, tombstoned_at, created_at, updated_at`

func scanFinding(scanner interface{ Scan(...interface{}) error }, tenant string) (*ingest.Finding, error) {
	var (
		f                  ingest.Finding
		id, taskID         string
		severity, status   string
		location, evidence string
		baseline           string
		active             int
		tombstonedAt       sql.NullTime
	)
	err := scanner.Scan(&id, &taskID, &f.RuleID, &f.Fingerprint, &severity, &status, &f.Message,
		&location, &evidence, &f.FixVersion, &baseline, &active, &tombstonedAt, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	f.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("corrupt finding id %q: %w", id, err)
	}
	f.TaskID, err = uuid.Parse(taskID)
	if err != nil {
		return nil, fmt.Errorf("corrupt finding task id %q: %w", taskID, err)
	}
	f.Tenant = tenant
	f.Severity = ingest.Severity(severity)
	f.Status = ingest.Status(status)
	f.Baseline = ingest.BaselineClass(baseline)
	f.Lifecycle.Active = active != 0
	if tombstonedAt.Valid {
		at := tombstonedAt.Time
		f.Lifecycle.TombstonedAt = &at
	}
	if err := unmarshalJSON(location, &f.Location); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(evidence, &f.Evidence); err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *SQLite) GetFinding(ctx context.Context, tenant string, id uuid.UUID) (*ingest.Finding, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+findingColumns+` FROM findings WHERE tenant = ? AND id = ?`, tenant, id.String())
	f, err := scanFinding(row, tenant)
	if err == sql.ErrNoRows {
		return nil, scanerrors.NewNotFoundError("finding", id.String())
	}
	return f, err
}

func (s *SQLite) ListFindings(ctx context.Context, tenant string, taskID uuid.UUID) ([]ingest.Finding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+findingColumns+` FROM findings WHERE tenant = ? AND task_id = ? AND active = 1`,
		tenant, taskID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var findings []ingest.Finding
	for rows.Next() {
		f, err := scanFinding(rows, tenant)
		if err != nil {
			return nil, err
		}
		findings = append(findings, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortFindings(findings)
	return findings, nil
}

func (s *SQLite) UpdateFindingStatus(ctx context.Context, tenant string, id uuid.UUID, status ingest.Status) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE findings SET status = ?, updated_at = ? WHERE tenant = ? AND id = ?`,
		string(status), time.Now().UTC(), tenant, id.String())
	if err != nil {
		return err
	}
	return requireRow(res, "finding", id.String())
}

func (s *SQLite) UpsertScaIssue(ctx context.Context, tenant string, issue *ingest.ScaIssue) error {
	vulnIDs, err := marshalJSON(issue.VulnerabilityIDs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sca_issues (id, tenant, task_id, issue_key, package_name, version, fix_version, vuln_ids, severity, status, title, baseline, active, tombstoned_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant, id) DO UPDATE SET
			package_name = excluded.package_name,
			version = excluded.version,
			fix_version = excluded.fix_version,
			vuln_ids = excluded.vuln_ids,
			severity = excluded.severity,
			status = excluded.status,
			title = excluded.title,
			baseline = excluded.baseline,
			active = excluded.active,
			tombstoned_at = excluded.tombstoned_at,
			updated_at = excluded.updated_at`,
		issue.ID.String(), tenant, issue.TaskID.String(), issue.IssueKey, issue.PackageName,
		issue.Version, issue.FixVersion, vulnIDs, string(issue.Severity), string(issue.Status),
		issue.Title, string(issue.Baseline), boolToInt(issue.Lifecycle.Active),
		issue.Lifecycle.TombstonedAt, issue.CreatedAt, issue.UpdatedAt)
	return err
}

const scaColumns = `id, task_id, issue_key, package_name, version, fix_version, vuln_ids, severity, status, title, baseline, active, tombstoned_at, created_at, updated_at`

func scanScaIssue(scanner interface{ Scan(...interface{}) error }, tenant string) (*ingest.ScaIssue, error) {
	var (
		issue            ingest.ScaIssue
		id, taskID       string
		vulnIDs          string
		severity, status string
		baseline         string
		active           int
		tombstonedAt     sql.NullTime
	)
	err := scanner.Scan(&id, &taskID, &issue.IssueKey, &issue.PackageName, &issue.Version,
		&issue.FixVersion, &vulnIDs, &severity, &status, &issue.Title, &baseline, &active,
		&tombstonedAt, &issue.CreatedAt, &issue.UpdatedAt)
	if err != nil {
		return nil, err
	}
	issue.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("corrupt sca issue id %q: %w", id, err)
	}
	issue.TaskID, err = uuid.Parse(taskID)
	if err != nil {
		return nil, fmt.Errorf("corrupt sca issue task id %q: %w", taskID, err)
	}
	issue.Tenant = tenant
	issue.Severity = ingest.Severity(severity)
	issue.Status = ingest.Status(status)
	issue.Baseline = ingest.BaselineClass(baseline)
	issue.Lifecycle.Active = active != 0
	if tombstonedAt.Valid {
		at := tombstonedAt.Time
		issue.Lifecycle.TombstonedAt = &at
	}
	if err := unmarshalJSON(vulnIDs, &issue.VulnerabilityIDs); err != nil {
		return nil, err
	}
	return &issue, nil
}

func (s *SQLite) GetScaIssue(ctx context.Context, tenant string, id uuid.UUID) (*ingest.ScaIssue, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+scaColumns+` FROM sca_issues WHERE tenant = ? AND id = ?`, tenant, id.String())
	issue, err := scanScaIssue(row, tenant)
	if err == sql.ErrNoRows {
		return nil, scanerrors.NewNotFoundError("sca issue", id.String())
	}
	return issue, err
}

func (s *SQLite) ListScaIssues(ctx context.Context, tenant string, taskID uuid.UUID) ([]ingest.ScaIssue, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+scaColumns+` FROM sca_issues WHERE tenant = ? AND task_id = ? AND active = 1`,
		tenant, taskID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var issues []ingest.ScaIssue
	for rows.Next() {
		issue, err := scanScaIssue(rows, tenant)
		if err != nil {
			return nil, err
		}
		issues = append(issues, *issue)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortScaIssues(issues)
	return issues, nil
}

func (s *SQLite) UpdateScaIssueStatus(ctx context.Context, tenant string, id uuid.UUID, status ingest.Status) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sca_issues SET status = ?, updated_at = ? WHERE tenant = ? AND id = ?`,
		string(status), time.Now().UTC(), tenant, id.String())
	if err != nil {
		return err
	}
	return requireRow(res, "sca issue", id.String())
}

// ReplaceBaseline swaps the whole fingerprint set for (tenant, project, kind)
// inside one transaction; there is no partial update path.
func (s *SQLite) ReplaceBaseline(ctx context.Context, tenant, projectID, kind string, fingerprints []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM baselines WHERE tenant = ? AND project_id = ? AND kind = ?`,
		tenant, projectID, kind); err != nil {
		return err
	}
	for _, fp := range fingerprints {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO baselines (tenant, project_id, kind, fingerprint) VALUES (?, ?, ?, ?)`,
			tenant, projectID, kind, fp); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLite) GetBaseline(ctx context.Context, tenant, projectID, kind string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT fingerprint FROM baselines WHERE tenant = ? AND project_id = ? AND kind = ?`,
		tenant, projectID, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	set := make(map[string]struct{})
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, err
		}
		set[fp] = struct{}{}
	}
	return set, rows.Err()
}
