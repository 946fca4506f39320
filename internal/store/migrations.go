package store

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id             TEXT NOT NULL,
	tenant         TEXT NOT NULL,
	project_id     TEXT NOT NULL,
	repo_url       TEXT NOT NULL DEFAULT '',
	executor_id    TEXT NOT NULL DEFAULT '',
	type           TEXT NOT NULL,
	spec           TEXT NOT NULL,
	status         TEXT NOT NULL,
	correlation_id TEXT NOT NULL DEFAULT '',
	active         INTEGER NOT NULL DEFAULT 1,
	tombstoned_at  TIMESTAMP,
	created_at     TIMESTAMP NOT NULL,
	updated_at     TIMESTAMP NOT NULL,
	PRIMARY KEY (tenant, id)
);
CREATE INDEX IF NOT EXISTS idx_tasks_correlation ON tasks(tenant, correlation_id);

CREATE TABLE IF NOT EXISTS stages (
	id          TEXT NOT NULL,
	tenant      TEXT NOT NULL,
	task_id     TEXT NOT NULL,
	type        TEXT NOT NULL,
	status      TEXT NOT NULL,
	spec        TEXT NOT NULL,
	metrics     TEXT NOT NULL,
	signals     TEXT NOT NULL,
	artifacts   TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP NOT NULL,
	PRIMARY KEY (tenant, id)
);
CREATE INDEX IF NOT EXISTS idx_stages_task ON stages(tenant, task_id);

CREATE TABLE IF NOT EXISTS findings (
	id          TEXT NOT NULL,
	tenant      TEXT NOT NULL,
	task_id     TEXT NOT NULL,
	rule_id     TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	severity    TEXT NOT NULL,
	status      TEXT NOT NULL,
	message     TEXT NOT NULL DEFAULT '',
	location    TEXT NOT NULL,
	evidence    TEXT NOT NULL,
	fix_version TEXT NOT NULL DEFAULT '',
	baseline    TEXT NOT NULL DEFAULT '',
	active      INTEGER NOT NULL DEFAULT 1,
	tombstoned_at TIMESTAMP,
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP NOT NULL,
	PRIMARY KEY (tenant, id)
);
CREATE INDEX IF NOT EXISTS idx_findings_task ON findings(tenant, task_id);

CREATE TABLE IF NOT EXISTS sca_issues (
	id           TEXT NOT NULL,
	tenant       TEXT NOT NULL,
	task_id      TEXT NOT NULL,
	issue_key    TEXT NOT NULL,
	package_name TEXT NOT NULL,
	version      TEXT NOT NULL DEFAULT '',
	fix_version  TEXT NOT NULL DEFAULT '',
	vuln_ids     TEXT NOT NULL,
	severity     TEXT NOT NULL,
	status       TEXT NOT NULL,
	title        TEXT NOT NULL DEFAULT '',
	baseline     TEXT NOT NULL DEFAULT '',
	active       INTEGER NOT NULL DEFAULT 1,
	tombstoned_at TIMESTAMP,
	created_at   TIMESTAMP NOT NULL,
	updated_at   TIMESTAMP NOT NULL,
	PRIMARY KEY (tenant, id)
);
CREATE INDEX IF NOT EXISTS idx_sca_issues_task ON sca_issues(tenant, task_id);

CREATE TABLE IF NOT EXISTS baselines (
	tenant      TEXT NOT NULL,
	project_id  TEXT NOT NULL,
	kind        TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	PRIMARY KEY (tenant, project_id, kind, fingerprint)
);

CREATE TABLE IF NOT EXISTS executors (
	id             TEXT NOT NULL,
	tenant         TEXT NOT NULL,
	name           TEXT NOT NULL,
	status         TEXT NOT NULL,
	labels         TEXT NOT NULL,
	capacity_cpu   INTEGER NOT NULL DEFAULT 0,
	capacity_mem   INTEGER NOT NULL DEFAULT 0,
	usage_cpu      INTEGER NOT NULL DEFAULT 0,
	usage_mem      INTEGER NOT NULL DEFAULT 0,
	last_heartbeat TIMESTAMP,
	token          TEXT NOT NULL,
	public_key     TEXT NOT NULL DEFAULT '',
	active         INTEGER NOT NULL DEFAULT 1,
	tombstoned_at  TIMESTAMP,
	created_at     TIMESTAMP NOT NULL,
	PRIMARY KEY (tenant, id)
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_executors_token ON executors(token);

CREATE TABLE IF NOT EXISTS review_records (
	tenant        TEXT NOT NULL,
	job_id        TEXT NOT NULL,
	target_kind   TEXT NOT NULL,
	target_id     TEXT NOT NULL,
	verdict       TEXT NOT NULL DEFAULT '',
	confidence    REAL NOT NULL DEFAULT 0,
	reason        TEXT NOT NULL DEFAULT '',
	status_before TEXT NOT NULL,
	status_after  TEXT NOT NULL DEFAULT '',
	applied_at    TIMESTAMP,
	created_at    TIMESTAMP NOT NULL,
	PRIMARY KEY (tenant, job_id)
);
`
