package ingest_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scan-io-git/scanio-hub/internal/dataflow"
	"github.com/scan-io-git/scanio-hub/internal/ingest"
	"github.com/scan-io-git/scanio-hub/internal/store"
	"github.com/scan-io-git/scanio-hub/internal/task"
)

const testTenant = "acme"

const sarifFixture = `{
  "version": "2.1.0",
  "runs": [
    {
      "tool": {
        "driver": {
          "name": "semgrep",
          "rules": [
            {
              "id": "go.lang.security.sqli",
              "properties": {"security-severity": "9.8"}
            }
          ]
        }
      },
      "results": [
        {
          "ruleId": "go.lang.security.sqli",
          "level": "error",
          "message": {"text": "SQL query built from user input"},
          "fingerprints": {"primary": "fp-sqli-1"},
          "locations": [
            {
              "physicalLocation": {
                "artifactLocation": {"uri": "internal/db/query.go"},
                "region": {"startLine": 42, "snippet": {"text": "db.Query(q)"}}
              }
            }
          ]
        },
        {
          "ruleId": "go.lang.correctness.defer",
          "level": "note",
          "message": {"text": "defer inside loop"},
          "locations": [
            {
              "physicalLocation": {
                "artifactLocation": {"uri": "internal/worker/pool.go"},
                "region": {"startLine": 17}
              }
            }
          ]
        }
      ]
    }
  ]
}`

const scaFixture = `{
  "vulnerabilities": [
    {
      "id": "CVE-2023-1234",
      "pkg_name": "github.com/pkg/old",
      "installed_version": "1.2.3",
      "fixed_version": "1.2.4",
      "severity": "HIGH",
      "title": "path traversal in archive handling"
    }
  ]
}`

func writeFixture(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newScanTask() *task.Task {
	now := time.Now().UTC()
	return &task.Task{
		ID:        uuid.New(),
		Tenant:    testTenant,
		ProjectID: "proj-1",
		Type:      task.TypeCodeScan,
		Status:    task.StatusRunning,
		Lifecycle: task.ActiveLifecycle(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestIngestRejectsEmptyPathList(t *testing.T) {
	m := store.NewMemory()
	ing := ingest.NewIngestor(m, m, hclog.NewNullLogger())

	_, err := ing.Ingest(context.Background(), testTenant, newScanTask(), nil)
	require.Error(t, err)
}

func TestIngestSarifNormalizesSeverity(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	ing := ingest.NewIngestor(m, m, hclog.NewNullLogger())
	tsk := newScanTask()
	path := writeFixture(t, "semgrep.sarif", sarifFixture)

	summary, err := ing.Ingest(ctx, testTenant, tsk, []string{path})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Findings)

	findings, err := m.ListFindings(ctx, testTenant, tsk.ID)
	require.NoError(t, err)
	require.Len(t, findings, 2)

	bySeverity := map[ingest.Severity]int{}
	for _, f := range findings {
		bySeverity[f.Severity]++
	}
	// security-severity 9.8 promotes the error-level result to CRITICAL.
	assert.Equal(t, 1, bySeverity[ingest.SeverityCritical])
	assert.Equal(t, 1, bySeverity[ingest.SeverityLow])
}

func TestIngestTwiceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	ing := ingest.NewIngestor(m, m, hclog.NewNullLogger())
	tsk := newScanTask()
	path := writeFixture(t, "semgrep.sarif", sarifFixture)

	_, err := ing.Ingest(ctx, testTenant, tsk, []string{path})
	require.NoError(t, err)
	first, err := m.ListFindings(ctx, testTenant, tsk.ID)
	require.NoError(t, err)

	_, err = ing.Ingest(ctx, testTenant, tsk, []string{path})
	require.NoError(t, err)
	second, err := m.ListFindings(ctx, testTenant, tsk.ID)
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Fingerprint, second[i].Fingerprint)
		assert.Equal(t, first[i].CreatedAt, second[i].CreatedAt)
	}
}

func TestIngestPreservesManualDecisionOnRescan(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	ing := ingest.NewIngestor(m, m, hclog.NewNullLogger())
	tsk := newScanTask()
	path := writeFixture(t, "semgrep.sarif", sarifFixture)

	_, err := ing.Ingest(ctx, testTenant, tsk, []string{path})
	require.NoError(t, err)

	id := ingest.FindingID(tsk.ID, "fp-sqli-1")
	require.NoError(t, m.UpdateFindingStatus(ctx, testTenant, id, ingest.StatusFalsePositive))

	_, err = ing.Ingest(ctx, testTenant, tsk, []string{path})
	require.NoError(t, err)

	f, err := m.GetFinding(ctx, testTenant, id)
	require.NoError(t, err)
	assert.Equal(t, ingest.StatusFalsePositive, f.Status)
}

func TestIngestClassifiesAgainstBaseline(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	ing := ingest.NewIngestor(m, m, hclog.NewNullLogger())
	tsk := newScanTask()
	path := writeFixture(t, "semgrep.sarif", sarifFixture)

	require.NoError(t, m.ReplaceBaseline(ctx, testTenant, tsk.ProjectID, ingest.BaselineKindFinding, []string{"fp-sqli-1"}))

	summary, err := ing.Ingest(ctx, testTenant, tsk, []string{path})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Known)
	assert.Equal(t, 1, summary.New)

	f, err := m.GetFinding(ctx, testTenant, ingest.FindingID(tsk.ID, "fp-sqli-1"))
	require.NoError(t, err)
	assert.Equal(t, ingest.BaselineKnown, f.Baseline)
}

func TestBaselineReplaceIsWholeSet(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	require.NoError(t, m.ReplaceBaseline(ctx, testTenant, "proj-1", ingest.BaselineKindFinding, []string{"a", "b"}))
	require.NoError(t, m.ReplaceBaseline(ctx, testTenant, "proj-1", ingest.BaselineKindFinding, []string{"c"}))

	got, err := m.GetBaseline(ctx, testTenant, "proj-1", ingest.BaselineKindFinding)
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"c": {}}, got)
}

func TestIngestScaReport(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	ing := ingest.NewIngestor(m, m, hclog.NewNullLogger())
	tsk := newScanTask()
	tsk.Type = task.TypeSCA
	path := writeFixture(t, "trivy.json", scaFixture)

	summary, err := ing.Ingest(ctx, testTenant, tsk, []string{path})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ScaIssues)

	issues, err := m.ListScaIssues(ctx, testTenant, tsk.ID)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "github.com/pkg/old", issues[0].PackageName)
	assert.Equal(t, ingest.SeverityHigh, issues[0].Severity)
	assert.Equal(t, "1.2.4", issues[0].FixVersion)
}

func TestIngestRejectsUnknownSchema(t *testing.T) {
	m := store.NewMemory()
	ing := ingest.NewIngestor(m, m, hclog.NewNullLogger())
	path := writeFixture(t, "mystery.json", `{"hello": "world"}`)

	_, err := ing.Ingest(context.Background(), testTenant, newScanTask(), []string{path})
	require.Error(t, err)
}

const dataflowFixture = `{
  "version": "2.1.0",
  "runs": [
    {
      "tool": {"driver": {"name": "semgrep"}},
      "results": [
        {
          "ruleId": "go.lang.security.sqli",
          "level": "error",
          "message": {"text": "tainted value reaches query"},
          "fingerprints": {"primary": "fp-taint-1"},
          "locations": [
            {
              "physicalLocation": {
                "artifactLocation": {"uri": "internal/api/handler.go"},
                "region": {"startLine": 12}
              }
            }
          ],
          "codeFlows": [
            {
              "threadFlows": [
                {
                  "locations": [
                    {
                      "location": {
                        "message": {"text": "user input read"},
                        "physicalLocation": {
                          "artifactLocation": {"uri": "internal/api/handler.go"},
                          "region": {"startLine": 12}
                        }
                      }
                    },
                    {
                      "location": {
                        "message": {"text": "passed through builder"},
                        "physicalLocation": {
                          "artifactLocation": {"uri": "internal/db/builder.go"},
                          "region": {"startLine": 33}
                        }
                      }
                    },
                    {
                      "location": {
                        "message": {"text": "query executed"},
                        "physicalLocation": {
                          "artifactLocation": {"uri": "internal/db/query.go"},
                          "region": {"startLine": 51}
                        }
                      }
                    }
                  ]
                }
              ]
            }
          ]
        }
      ]
    }
  ]
}`

func TestIngestReducesCodeFlowsIntoCallChains(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	ing := ingest.NewIngestor(m, m, hclog.NewNullLogger())
	tsk := newScanTask()
	path := writeFixture(t, "taint.sarif", dataflowFixture)

	_, err := ing.Ingest(ctx, testTenant, tsk, []string{path})
	require.NoError(t, err)

	f, err := m.GetFinding(ctx, testTenant, ingest.FindingID(tsk.ID, "fp-taint-1"))
	require.NoError(t, err)
	require.NotNil(t, f.Evidence.Dataflow)
	require.Len(t, f.Evidence.Dataflow.Nodes, 3)

	require.Len(t, f.Evidence.CallChains, 1)
	steps := f.Evidence.CallChains[0].Steps
	require.Len(t, steps, 3)
	assert.Equal(t, dataflow.RoleSource, steps[0].Role)
	assert.Equal(t, dataflow.RolePropagator, steps[1].Role)
	assert.Equal(t, dataflow.RoleSink, steps[2].Role)
	assert.Equal(t, "internal/db/query.go", steps[2].Location.Path)
	assert.Equal(t, 51, steps[2].Location.StartLine)
}
