package ingest

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/owenrumney/go-sarif/v2/sarif"
)

// nativeReport is the tool-native JSON schema emitted by semgrep-compatible
// scanners when SARIF output is not requested.
type nativeReport struct {
	Results []nativeResult `json:"results"`
}

type nativeResult struct {
	CheckID string         `json:"check_id"`
	Path    string         `json:"path"`
	Start   nativePosition `json:"start"`
	End     nativePosition `json:"end"`
	Extra   nativeExtra    `json:"extra"`
}

type nativePosition struct {
	Line int `json:"line"`
	Col  int `json:"col"`
}

type nativeExtra struct {
	Message     string `json:"message"`
	Severity    string `json:"severity"`
	Fingerprint string `json:"fingerprint"`
	Lines       string `json:"lines"`
}

func readNativeReport(path string) (*nativeReport, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open native report %q: %w", path, err)
	}
	defer file.Close()

	var report nativeReport
	if err := json.NewDecoder(file).Decode(&report); err != nil {
		return nil, fmt.Errorf("failed to decode native report %q: %w", path, err)
	}
	return &report, nil
}

// convertNativeToSarif lifts a tool-native report into the canonical SARIF
// model so both paths converge on the shared parser.
func convertNativeToSarif(report *nativeReport) *sarif.Report {
	results := make([]*sarif.Result, 0, len(report.Results))
	for i := range report.Results {
		r := report.Results[i]
		level := nativeSeverityToLevel(r.Extra.Severity)
		result := &sarif.Result{
			RuleID:  strPtr(r.CheckID),
			Level:   strPtr(level),
			Message: sarif.Message{Text: strPtr(r.Extra.Message)},
			Locations: []*sarif.Location{
				{
					PhysicalLocation: &sarif.PhysicalLocation{
						ArtifactLocation: &sarif.ArtifactLocation{URI: strPtr(r.Path)},
						Region: &sarif.Region{
							StartLine:   intPtr(r.Start.Line),
							StartColumn: intPtr(r.Start.Col),
							EndLine:     intPtr(r.End.Line),
							EndColumn:   intPtr(r.End.Col),
							Snippet:     snippetContent(r.Extra.Lines),
						},
					},
				},
			},
		}
		if r.Extra.Fingerprint != "" {
			result.Fingerprints = map[string]interface{}{"primary": r.Extra.Fingerprint}
		}
		results = append(results, result)
	}

	return &sarif.Report{
		Version: string(sarif.Version210),
		Runs: []*sarif.Run{
			{
				Tool: sarif.Tool{
					Driver: &sarif.ToolComponent{Name: "native"},
				},
				Results: results,
			},
		},
	}
}

func nativeSeverityToLevel(severity string) string {
	switch severity {
	case "ERROR":
		return "error"
	case "WARNING":
		return "warning"
	case "INFO":
		return "note"
	default:
		return "none"
	}
}

func snippetContent(lines string) *sarif.ArtifactContent {
	if lines == "" {
		return nil
	}
	return &sarif.ArtifactContent{Text: strPtr(lines)}
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }
