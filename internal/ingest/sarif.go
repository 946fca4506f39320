package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/owenrumney/go-sarif/v2/sarif"

	"github.com/scan-io-git/scanio-hub/internal/dataflow"
)

// parsedFinding is the format-independent result of parsing one scanner
// result; both the SARIF path and the tool-native path converge on it.
type parsedFinding struct {
	RuleID      string
	Severity    Severity
	Message     string
	Location    Location
	Fingerprint string
	Snippet     string
	Dataflow    *dataflow.Graph
}

func readSarifReport(path string) (*sarif.Report, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SARIF file %q: %w", path, err)
	}
	defer file.Close()

	var report sarif.Report
	if err := json.NewDecoder(file).Decode(&report); err != nil {
		return nil, fmt.Errorf("failed to decode SARIF file %q: %w", path, err)
	}
	return &report, nil
}

// parseSarifReport extracts normalized findings from every run of the report.
func parseSarifReport(report *sarif.Report) []parsedFinding {
	var parsed []parsedFinding

	for _, run := range report.Runs {
		secSeverity := ruleSecuritySeverities(run)

		for _, result := range run.Results {
			ruleID := ""
			if result.RuleID != nil {
				ruleID = *result.RuleID
			}

			level := ""
			if result.Level != nil {
				level = *result.Level
			}

			message := ""
			if result.Message.Text != nil {
				message = *result.Message.Text
			}

			loc, snippet := primaryLocation(result)

			f := parsedFinding{
				RuleID:      ruleID,
				Severity:    mapSeverity(level, secSeverity[ruleID]),
				Message:     message,
				Location:    loc,
				Snippet:     snippet,
				Fingerprint: resultFingerprint(result, ruleID, loc, snippet),
				Dataflow:    dataflowGraph(result),
			}
			parsed = append(parsed, f)
		}
	}

	return parsed
}

// dataflowGraph lifts the result's codeFlows into a dataflow graph: one
// linear node path per thread flow, the first location tagged SOURCE, the
// last SINK, and everything between PROPAGATOR. Results without codeFlows
// yield nil.
func dataflowGraph(result *sarif.Result) *dataflow.Graph {
	var g dataflow.Graph
	flowIdx := 0

	for _, codeFlow := range result.CodeFlows {
		if codeFlow == nil {
			continue
		}
		for _, threadFlow := range codeFlow.ThreadFlows {
			if threadFlow == nil || len(threadFlow.Locations) == 0 {
				continue
			}

			var nodes []dataflow.Node
			for _, tfl := range threadFlow.Locations {
				if tfl == nil || tfl.Location == nil {
					continue
				}
				node := dataflow.Node{
					ID:       fmt.Sprintf("flow%d-step%d", flowIdx, len(nodes)),
					Location: threadFlowLocation(tfl.Location),
				}
				if tfl.Location.Message != nil && tfl.Location.Message.Text != nil {
					node.Label = *tfl.Location.Message.Text
				}
				nodes = append(nodes, node)
			}
			if len(nodes) == 0 {
				continue
			}

			nodes[0].Role = dataflow.RoleSource
			nodes[len(nodes)-1].Role = dataflow.RoleSink
			for i := 1; i < len(nodes)-1; i++ {
				nodes[i].Role = dataflow.RolePropagator
			}

			g.Nodes = append(g.Nodes, nodes...)
			for i := 0; i+1 < len(nodes); i++ {
				g.Edges = append(g.Edges, dataflow.Edge{From: nodes[i].ID, To: nodes[i+1].ID})
			}
			flowIdx++
		}
	}

	if len(g.Nodes) == 0 {
		return nil
	}
	return &g
}

func threadFlowLocation(location *sarif.Location) dataflow.Location {
	var loc dataflow.Location
	phys := location.PhysicalLocation
	if phys == nil {
		return loc
	}
	if phys.ArtifactLocation != nil && phys.ArtifactLocation.URI != nil {
		loc.Path = *phys.ArtifactLocation.URI
	}
	if phys.Region != nil {
		if phys.Region.StartLine != nil {
			loc.StartLine = *phys.Region.StartLine
		}
		if phys.Region.StartColumn != nil {
			loc.StartCol = *phys.Region.StartColumn
		}
		if phys.Region.EndLine != nil {
			loc.EndLine = *phys.Region.EndLine
		}
		if phys.Region.EndColumn != nil {
			loc.EndCol = *phys.Region.EndColumn
		}
	}
	return loc
}

// ruleSecuritySeverities collects the GHSA-style security-severity score per
// rule id, used to promote findings to CRITICAL.
func ruleSecuritySeverities(run *sarif.Run) map[string]float64 {
	scores := make(map[string]float64)
	if run.Tool.Driver == nil {
		return scores
	}
	for _, rule := range run.Tool.Driver.Rules {
		raw, ok := rule.Properties["security-severity"]
		if !ok {
			continue
		}
		switch v := raw.(type) {
		case string:
			if score, err := strconv.ParseFloat(v, 64); err == nil {
				scores[rule.ID] = score
			}
		case float64:
			scores[rule.ID] = v
		}
	}
	return scores
}

// mapSeverity converts a SARIF level to the normalized scale. A
// security-severity score of 9.0 or above promotes the finding to CRITICAL.
func mapSeverity(level string, securitySeverity float64) Severity {
	if securitySeverity >= 9.0 {
		return SeverityCritical
	}
	switch level {
	case "error":
		return SeverityHigh
	case "warning":
		return SeverityMedium
	case "note":
		return SeverityLow
	default:
		return SeverityInfo
	}
}

func primaryLocation(result *sarif.Result) (Location, string) {
	var loc Location
	var snippet string

	if len(result.Locations) == 0 {
		return loc, snippet
	}
	phys := result.Locations[0].PhysicalLocation
	if phys == nil {
		return loc, snippet
	}
	if phys.ArtifactLocation != nil && phys.ArtifactLocation.URI != nil {
		loc.Path = *phys.ArtifactLocation.URI
	}
	if phys.Region != nil {
		if phys.Region.StartLine != nil {
			loc.StartLine = *phys.Region.StartLine
		}
		if phys.Region.StartColumn != nil {
			loc.StartCol = *phys.Region.StartColumn
		}
		if phys.Region.EndLine != nil {
			loc.EndLine = *phys.Region.EndLine
		}
		if phys.Region.EndColumn != nil {
			loc.EndCol = *phys.Region.EndColumn
		}
		if phys.Region.Snippet != nil && phys.Region.Snippet.Text != nil {
			snippet = *phys.Region.Snippet.Text
		}
	}
	return loc, snippet
}

// resultFingerprint prefers the scanner-assigned primary fingerprint and
// falls back to a stable hash over rule id, path, start line, and snippet.
func resultFingerprint(result *sarif.Result, ruleID string, loc Location, snippet string) string {
	for _, key := range []string{"primary", "matchBasedId/v1"} {
		if raw, ok := result.Fingerprints[key]; ok {
			if fp, ok := raw.(string); ok && fp != "" {
				return fp
			}
		}
	}
	return fallbackFingerprint(ruleID, loc, snippet)
}

func fallbackFingerprint(ruleID string, loc Location, snippet string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d|%s", ruleID, loc.Path, loc.StartLine, snippet)))
	return hex.EncodeToString(sum[:])
}
