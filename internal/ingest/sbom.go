package ingest

import (
	"encoding/json"
	"fmt"
	"os"

	cdx "github.com/CycloneDX/cyclonedx-go"
)

// parsedScaIssue is the format-independent result of parsing one SCA finding.
type parsedScaIssue struct {
	IssueKey         string
	PackageName      string
	Version          string
	FixVersion       string
	VulnerabilityIDs []string
	Severity         Severity
	Title            string
}

// scaReport is the tool-native dependency-scan schema.
type scaReport struct {
	Vulnerabilities []scaVulnerability `json:"vulnerabilities"`
}

type scaVulnerability struct {
	ID               string `json:"id"`
	PkgName          string `json:"pkg_name"`
	InstalledVersion string `json:"installed_version"`
	FixedVersion     string `json:"fixed_version"`
	Severity         string `json:"severity"`
	Title            string `json:"title"`
}

// ReadSBOM parses a CycloneDX SBOM into a dependency graph.
func ReadSBOM(path string) (*DependencyGraph, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SBOM %q: %w", path, err)
	}
	defer file.Close()

	var bom cdx.BOM
	if err := cdx.NewBOMDecoder(file, cdx.BOMFileFormatJSON).Decode(&bom); err != nil {
		return nil, fmt.Errorf("failed to decode SBOM %q: %w", path, err)
	}

	graph := &DependencyGraph{Edges: make(map[string][]string)}
	if bom.Components != nil {
		for _, c := range *bom.Components {
			graph.Nodes = append(graph.Nodes, DependencyNode{
				Ref:     c.BOMRef,
				Name:    c.Name,
				Version: c.Version,
			})
		}
	}
	if bom.Dependencies != nil {
		for _, d := range *bom.Dependencies {
			if d.Dependencies == nil {
				continue
			}
			graph.Edges[d.Ref] = append(graph.Edges[d.Ref], *d.Dependencies...)
		}
	}
	return graph, nil
}

func readScaReport(path string) (*scaReport, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SCA report %q: %w", path, err)
	}
	defer file.Close()

	var report scaReport
	if err := json.NewDecoder(file).Decode(&report); err != nil {
		return nil, fmt.Errorf("failed to decode SCA report %q: %w", path, err)
	}
	return &report, nil
}

func parseScaReport(report *scaReport) []parsedScaIssue {
	issues := make([]parsedScaIssue, 0, len(report.Vulnerabilities))
	for _, v := range report.Vulnerabilities {
		issues = append(issues, parsedScaIssue{
			// Issue key pins identity to package and advisory, not to the
			// position in the report.
			IssueKey:         v.PkgName + "@" + v.InstalledVersion + "/" + v.ID,
			PackageName:      v.PkgName,
			Version:          v.InstalledVersion,
			FixVersion:       v.FixedVersion,
			VulnerabilityIDs: []string{v.ID},
			Severity:         mapScaSeverity(v.Severity),
			Title:            v.Title,
		})
	}
	return issues
}

func mapScaSeverity(severity string) Severity {
	switch severity {
	case "CRITICAL":
		return SeverityCritical
	case "HIGH":
		return SeverityHigh
	case "MEDIUM":
		return SeverityMedium
	case "LOW":
		return SeverityLow
	default:
		return SeverityInfo
	}
}
