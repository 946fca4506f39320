package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/owenrumney/go-sarif/v2/sarif"

	"github.com/scan-io-git/scanio-hub/internal/dataflow"
	"github.com/scan-io-git/scanio-hub/internal/task"
	scanerrors "github.com/scan-io-git/scanio-hub/pkg/shared/errors"
)

// Baseline kinds recognized by the diff step.
const (
	BaselineKindFinding = "finding"
	BaselineKindSca     = "sca"
)

// Ingestor parses scanner output into normalized findings and SCA issues,
// deduplicates them deterministically, and diffs against the project baseline.
type Ingestor struct {
	findings  FindingStore
	baselines BaselineStore
	logger    hclog.Logger
}

// NewIngestor wires an Ingestor over the finding and baseline stores.
func NewIngestor(findings FindingStore, baselines BaselineStore, logger hclog.Logger) *Ingestor {
	return &Ingestor{findings: findings, baselines: baselines, logger: logger}
}

// Ingest processes one or more scanner-output files for the task. An empty
// file list is a validation error; no state is mutated in that case.
func (i *Ingestor) Ingest(ctx context.Context, tenant string, t *task.Task, paths []string) (Summary, error) {
	if len(paths) == 0 {
		return Summary{}, scanerrors.NewValidationError("paths", "at least one scanner output file is required")
	}

	summary := Summary{BySeverity: make(map[Severity]int)}
	for _, path := range paths {
		format, err := sniffFormat(path)
		if err != nil {
			return Summary{}, err
		}
		i.logger.Debug("ingesting scanner output", "path", path, "format", format, "task", t.ID)

		switch format {
		case formatSarif, formatNative:
			report, err := i.readAsSarif(path, format)
			if err != nil {
				return Summary{}, err
			}
			if err := i.ingestFindings(ctx, tenant, t, parseSarifReport(report), &summary); err != nil {
				return Summary{}, err
			}
		case formatSca:
			report, err := readScaReport(path)
			if err != nil {
				return Summary{}, err
			}
			if err := i.ingestScaIssues(ctx, tenant, t, parseScaReport(report), &summary); err != nil {
				return Summary{}, err
			}
		case formatSBOM:
			graph, err := ReadSBOM(path)
			if err != nil {
				return Summary{}, err
			}
			i.logger.Debug("parsed SBOM dependency graph", "components", len(graph.Nodes), "task", t.ID)
		}
	}

	return summary, nil
}

// findingEvidence reduces the parsed dataflow graph into reviewable call
// chains at ingest time, so read paths never re-walk the raw graph.
func findingEvidence(p parsedFinding) Evidence {
	e := Evidence{Snippet: p.Snippet, Dataflow: p.Dataflow}
	if p.Dataflow != nil {
		e.CallChains = dataflow.Reduce(*p.Dataflow)
	}
	return e
}

func (i *Ingestor) readAsSarif(path string, format outputFormat) (*sarif.Report, error) {
	if format == formatNative {
		native, err := readNativeReport(path)
		if err != nil {
			return nil, err
		}
		return convertNativeToSarif(native), nil
	}
	return readSarifReport(path)
}

func (i *Ingestor) ingestFindings(ctx context.Context, tenant string, t *task.Task, parsed []parsedFinding, summary *Summary) error {
	baseline, err := i.baselines.GetBaseline(ctx, tenant, t.ProjectID, BaselineKindFinding)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, p := range parsed {
		id := FindingID(t.ID, p.Fingerprint)

		f := Finding{
			ID:          id,
			Tenant:      tenant,
			TaskID:      t.ID,
			RuleID:      p.RuleID,
			Fingerprint: p.Fingerprint,
			Severity:    p.Severity,
			Status:      StatusOpen,
			Message:     p.Message,
			Location:    p.Location,
			Evidence:    findingEvidence(p),
			Lifecycle:   task.ActiveLifecycle(),
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		existing, err := i.findings.GetFinding(ctx, tenant, id)
		switch {
		case err == nil:
			// Refresh severity, location, and evidence; clear any soft
			// delete. A manual review decision survives a re-scan.
			f.CreatedAt = existing.CreatedAt
			if existing.Status.ManualDecision() {
				f.Status = existing.Status
			}
		case scanerrors.IsNotFound(err):
		default:
			return err
		}

		if _, known := baseline[p.Fingerprint]; known {
			f.Baseline = BaselineKnown
			summary.Known++
		} else {
			f.Baseline = BaselineNew
			summary.New++
		}

		if err := i.findings.UpsertFinding(ctx, tenant, &f); err != nil {
			return fmt.Errorf("failed to upsert finding %s: %w", id, err)
		}
		summary.Findings++
		summary.BySeverity[f.Severity]++
	}
	return nil
}

func (i *Ingestor) ingestScaIssues(ctx context.Context, tenant string, t *task.Task, parsed []parsedScaIssue, summary *Summary) error {
	baseline, err := i.baselines.GetBaseline(ctx, tenant, t.ProjectID, BaselineKindSca)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, p := range parsed {
		id := ScaIssueID(tenant, t.ID, p.IssueKey)

		issue := ScaIssue{
			ID:               id,
			Tenant:           tenant,
			TaskID:           t.ID,
			IssueKey:         p.IssueKey,
			PackageName:      p.PackageName,
			Version:          p.Version,
			FixVersion:       p.FixVersion,
			VulnerabilityIDs: p.VulnerabilityIDs,
			Severity:         p.Severity,
			Status:           StatusOpen,
			Title:            p.Title,
			Lifecycle:        task.ActiveLifecycle(),
			CreatedAt:        now,
			UpdatedAt:        now,
		}

		existing, err := i.findings.GetScaIssue(ctx, tenant, id)
		switch {
		case err == nil:
			issue.CreatedAt = existing.CreatedAt
			if existing.Status.ManualDecision() {
				issue.Status = existing.Status
			}
		case scanerrors.IsNotFound(err):
		default:
			return err
		}

		if _, known := baseline[p.IssueKey]; known {
			issue.Baseline = BaselineKnown
			summary.Known++
		} else {
			issue.Baseline = BaselineNew
			summary.New++
		}

		if err := i.findings.UpsertScaIssue(ctx, tenant, &issue); err != nil {
			return fmt.Errorf("failed to upsert SCA issue %s: %w", id, err)
		}
		summary.ScaIssues++
		summary.BySeverity[issue.Severity]++
	}
	return nil
}

type outputFormat string

const (
	formatSarif  outputFormat = "sarif"
	formatNative outputFormat = "native"
	formatSca    outputFormat = "sca"
	formatSBOM   outputFormat = "sbom"
)

// sniffFormat inspects the top-level keys of the JSON document to decide
// which parsing path to take.
func sniffFormat(path string) (outputFormat, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read scanner output %q: %w", path, err)
	}

	var head struct {
		Version   string            `json:"version"`
		Runs      []json.RawMessage `json:"runs"`
		BomFormat string            `json:"bomFormat"`
		Results   []json.RawMessage `json:"results"`
		Vulns     []json.RawMessage `json:"vulnerabilities"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return "", scanerrors.NewValidationError("scanner output", "%q is not valid JSON: %v", path, err)
	}

	switch {
	case head.BomFormat == "CycloneDX":
		return formatSBOM, nil
	case head.Runs != nil && head.Version != "":
		return formatSarif, nil
	case head.Vulns != nil:
		return formatSca, nil
	case head.Results != nil:
		return formatNative, nil
	default:
		return "", scanerrors.NewValidationError("scanner output", "%q matches no known scanner output schema", path)
	}
}
