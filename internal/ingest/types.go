package ingest

import (
	"time"

	"github.com/google/uuid"

	"github.com/scan-io-git/scanio-hub/internal/dataflow"
	"github.com/scan-io-git/scanio-hub/internal/task"
)

// Severity is the normalized severity scale shared by findings and SCA issues.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

var severityRank = map[Severity]int{
	SeverityInfo:     0,
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// AtLeast reports whether s is at least as severe as min. Unknown severities
// rank below INFO.
func (s Severity) AtLeast(min Severity) bool {
	return severityRank[s] >= severityRank[min]
}

// Status is the finding/issue review workflow state.
type Status string

const (
	StatusOpen          Status = "OPEN"
	StatusConfirmed     Status = "CONFIRMED"
	StatusFalsePositive Status = "FALSE_POSITIVE"
	StatusFixed         Status = "FIXED"
	StatusAccepted      Status = "ACCEPTED"
)

// ManualDecision reports whether the status encodes a human review verdict.
// Re-ingesting scanner output must not clobber these.
func (s Status) ManualDecision() bool {
	return s == StatusConfirmed || s == StatusFalsePositive || s == StatusAccepted
}

// BaselineClass classifies a finding against the project baseline.
type BaselineClass string

const (
	BaselineKnown BaselineClass = "KNOWN"
	BaselineNew   BaselineClass = "NEW"
)

// Location points at the primary code location of a finding.
type Location struct {
	Path      string `json:"path"`
	StartLine int    `json:"start_line"`
	StartCol  int    `json:"start_col,omitempty"`
	EndLine   int    `json:"end_line,omitempty"`
	EndCol    int    `json:"end_col,omitempty"`
}

// Evidence carries the supporting material for a finding: an optional code
// snippet, an optional raw dataflow graph, and the call chains reduced from
// it for human review.
type Evidence struct {
	Snippet    string               `json:"snippet,omitempty"`
	Dataflow   *dataflow.Graph      `json:"dataflow,omitempty"`
	CallChains []dataflow.CallChain `json:"call_chains,omitempty"`
}

// Finding is a normalized static-analysis result. Identity is derived
// deterministically from (task id, fingerprint) so re-ingesting the same
// scanner output replaces rather than duplicates.
type Finding struct {
	ID          uuid.UUID      `json:"id"`
	Tenant      string         `json:"tenant"`
	TaskID      uuid.UUID      `json:"task_id"`
	RuleID      string         `json:"rule_id"`
	Fingerprint string         `json:"fingerprint"`
	Severity    Severity       `json:"severity"`
	Status      Status         `json:"status"`
	Message     string         `json:"message,omitempty"`
	Location    Location       `json:"location"`
	Evidence    Evidence       `json:"evidence"`
	FixVersion  string         `json:"fix_version,omitempty"`
	Baseline    BaselineClass  `json:"baseline,omitempty"`
	Lifecycle   task.Lifecycle `json:"lifecycle"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// ScaIssue is a normalized dependency-scan result keyed by
// (tenant, task, issue key).
type ScaIssue struct {
	ID             uuid.UUID      `json:"id"`
	Tenant         string         `json:"tenant"`
	TaskID         uuid.UUID      `json:"task_id"`
	IssueKey       string         `json:"issue_key"`
	PackageName    string         `json:"package_name"`
	Version        string         `json:"version"`
	FixVersion     string         `json:"fix_version,omitempty"`
	VulnerabilityIDs []string     `json:"vulnerability_ids,omitempty"`
	Severity       Severity       `json:"severity"`
	Status         Status         `json:"status"`
	Title          string         `json:"title,omitempty"`
	Baseline       BaselineClass  `json:"baseline,omitempty"`
	Lifecycle      task.Lifecycle `json:"lifecycle"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// DependencyNode is one package in the SBOM dependency graph.
type DependencyNode struct {
	Ref     string `json:"ref"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

// DependencyGraph is derived from a CycloneDX SBOM.
type DependencyGraph struct {
	Nodes []DependencyNode    `json:"nodes"`
	Edges map[string][]string `json:"edges"`
}

// Summary aggregates the outcome of one ingestion run.
type Summary struct {
	Findings  int            `json:"findings"`
	ScaIssues int            `json:"sca_issues"`
	New       int            `json:"new"`
	Known     int            `json:"known"`
	BySeverity map[Severity]int `json:"by_severity"`
}
