package task

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Lifecycle is the soft-delete marker embedded in every stored entity.
// List and find operations default to active-only rows.
type Lifecycle struct {
	Active       bool       `json:"active"`
	TombstonedAt *time.Time `json:"tombstoned_at,omitempty"`
}

// ActiveLifecycle returns the lifecycle value for a live entity.
func ActiveLifecycle() Lifecycle {
	return Lifecycle{Active: true}
}

// Tombstone marks the entity soft-deleted at the given time.
func (l *Lifecycle) Tombstone(at time.Time) {
	l.Active = false
	l.TombstonedAt = &at
}

// Revive clears a soft delete; a rescanned issue "undeletes".
func (l *Lifecycle) Revive() {
	l.Active = true
	l.TombstonedAt = nil
}

// Type classifies a task by the kind of scan it performs.
type Type string

const (
	TypeCodeScan    Type = "CODE_SCAN"
	TypeSCA         Type = "SCA"
	TypeSupplyChain Type = "SUPPLY_CHAIN"
	TypeIDEAudit    Type = "IDE_AUDIT"
)

// Status is the task state machine: PENDING -> RUNNING -> {SUCCEEDED, FAILED},
// with CANCELED reachable from the non-terminal states.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
	StatusCanceled  Status = "CANCELED"
)

// Terminal reports whether no further transition is legal from s.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCanceled
}

// CanStartStage reports whether a stage may start on a task in this state.
func (s Status) CanStartStage() bool {
	return s == StatusPending || s == StatusRunning
}

// SourceKind discriminates the source descriptor variants.
type SourceKind string

const (
	SourceGit        SourceKind = "GIT"
	SourceArchive    SourceKind = "ARCHIVE"
	SourceFilesystem SourceKind = "FILESYSTEM"
	SourceImage      SourceKind = "IMAGE"
	SourceSBOM       SourceKind = "SBOM"
	SourceURL        SourceKind = "URL"
)

// SourceSpec is a tagged union over source kinds; only the fields for the
// active Kind are meaningful.
type SourceSpec struct {
	Kind SourceKind `json:"kind"`

	// GIT
	CloneURL string `json:"clone_url,omitempty"`
	Ref      string `json:"ref,omitempty"`

	// ARCHIVE, FILESYSTEM, SBOM: local path of the uploaded input.
	Path string `json:"path,omitempty"`

	// IMAGE
	ImageRef string `json:"image_ref,omitempty"`

	// URL
	DownloadURL string `json:"download_url,omitempty"`
}

// RuleMode discriminates the rule-selection variants.
type RuleMode string

const (
	RuleModeAuto     RuleMode = "AUTO"
	RuleModeProfile  RuleMode = "PROFILE"
	RuleModeExplicit RuleMode = "EXPLICIT"
)

// RuleSelection is a tagged union over rule-selection modes.
type RuleSelection struct {
	Mode    RuleMode `json:"mode"`
	Profile string   `json:"profile,omitempty"`
	RuleIDs []string `json:"rule_ids,omitempty"`
}

// AIReviewMode discriminates the AI-review policy variants.
type AIReviewMode string

const (
	AIReviewOff      AIReviewMode = "OFF"
	AIReviewFindings AIReviewMode = "FINDINGS"
	AIReviewAll      AIReviewMode = "ALL"
)

// AIReviewPolicy controls which findings are queued for asynchronous review.
type AIReviewPolicy struct {
	Mode        AIReviewMode `json:"mode"`
	MinSeverity string       `json:"min_severity,omitempty"`
}

// Spec is the full task specification captured at submission time.
type Spec struct {
	Engine        string            `json:"engine"`
	Source        SourceSpec        `json:"source"`
	Rules         RuleSelection     `json:"rules"`
	AIReview      AIReviewPolicy    `json:"ai_review"`
	FailOn        string            `json:"fail_on,omitempty"`
	EngineOptions map[string]string `json:"engine_options,omitempty"`
}

// Task is a tenant-scoped unit of scan work. Tasks are never physically
// deleted; Lifecycle carries the soft delete.
type Task struct {
	ID            uuid.UUID `json:"id"`
	Tenant        string    `json:"tenant"`
	ProjectID     string    `json:"project_id"`
	RepoURL       string    `json:"repo_url,omitempty"`
	ExecutorID    string    `json:"executor_id,omitempty"`
	Type          Type      `json:"type"`
	Spec          Spec      `json:"spec"`
	Status        Status    `json:"status"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Lifecycle     Lifecycle `json:"lifecycle"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// StageType identifies one step of the fixed five-step pipeline.
type StageType string

const (
	StageRulesPrepare  StageType = "RULES_PREPARE"
	StageSourcePrepare StageType = "SOURCE_PREPARE"
	StageScanExec      StageType = "SCAN_EXEC"
	StageResultProcess StageType = "RESULT_PROCESS"
	StageResultReview  StageType = "RESULT_REVIEW"
)

// pipelineOrder fixes the position of each stage type in the pipeline.
var pipelineOrder = []StageType{
	StageRulesPrepare,
	StageSourcePrepare,
	StageScanExec,
	StageResultProcess,
	StageResultReview,
}

// StageOrder returns the zero-based pipeline position of the stage type,
// or -1 for an unknown type.
func StageOrder(t StageType) int {
	for i, st := range pipelineOrder {
		if st == t {
			return i
		}
	}
	return -1
}

// StageStatus is the stage state machine.
type StageStatus string

const (
	StagePending   StageStatus = "PENDING"
	StageRunning   StageStatus = "RUNNING"
	StageSucceeded StageStatus = "SUCCEEDED"
	StageFailed    StageStatus = "FAILED"
)

// StageSpec carries the stage inputs and execution constraints.
type StageSpec struct {
	Inputs      []ArtifactRef     `json:"inputs,omitempty"`
	Params      map[string]string `json:"params,omitempty"`
	CPULimit    int               `json:"cpu_limit_millis,omitempty"`
	MemoryLimit int               `json:"memory_limit_mb,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	Shards      []string          `json:"shards,omitempty"`
}

// StageMetrics records resource usage of one stage run.
type StageMetrics struct {
	Duration      time.Duration `json:"duration"`
	CPUMillis     int           `json:"cpu_millis,omitempty"`
	MemoryMB      int           `json:"memory_mb,omitempty"`
	Retries       int           `json:"retries,omitempty"`
	ArtifactBytes int64         `json:"artifact_bytes,omitempty"`
}

// StageSignals carries downstream hints extracted by the stage.
type StageSignals struct {
	NeedsAIReview   bool    `json:"needs_ai_review,omitempty"`
	AutoFixPossible bool    `json:"auto_fix_possible,omitempty"`
	RiskDelta       float64 `json:"risk_delta,omitempty"`
	HasSink         bool    `json:"has_sink,omitempty"`
}

// Stage is one pipeline step of a Task, upserted by ID: re-running a stage
// overwrites the previous row.
type Stage struct {
	ID         uuid.UUID     `json:"id"`
	TaskID     uuid.UUID     `json:"task_id"`
	Type       StageType     `json:"type"`
	Status     StageStatus   `json:"status"`
	Spec       StageSpec     `json:"spec"`
	Metrics    StageMetrics  `json:"metrics"`
	Signals    StageSignals  `json:"signals"`
	Artifacts  []ArtifactRef `json:"artifacts,omitempty"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// ArtifactRef is a typed artifact URI of the form "kind:identifier",
// e.g. "sarif:…", "ruleset:…", "source_bundle:…".
type ArtifactRef string

// NewArtifactRef builds a typed artifact reference.
func NewArtifactRef(kind, id string) ArtifactRef {
	return ArtifactRef(kind + ":" + id)
}

// Kind returns the artifact kind prefix, or "" when the ref is malformed.
func (r ArtifactRef) Kind() string {
	kind, _, ok := strings.Cut(string(r), ":")
	if !ok {
		return ""
	}
	return kind
}

// Identifier returns the part after the kind prefix.
func (r ArtifactRef) Identifier() string {
	_, id, _ := strings.Cut(string(r), ":")
	return id
}
