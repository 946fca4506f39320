package store

import (
	"sort"

	"github.com/scan-io-git/scanio-hub/internal/fleet"
	"github.com/scan-io-git/scanio-hub/internal/ingest"
	"github.com/scan-io-git/scanio-hub/internal/task"
)

// Stable listing orders keep API responses and tests deterministic.

func sortStages(stages []task.Stage) {
	sort.Slice(stages, func(i, j int) bool {
		oi, oj := task.StageOrder(stages[i].Type), task.StageOrder(stages[j].Type)
		if oi != oj {
			return oi < oj
		}
		return stages[i].ID.String() < stages[j].ID.String()
	})
}

func sortFindings(findings []ingest.Finding) {
	sort.Slice(findings, func(i, j int) bool {
		if findings[i].Location.Path != findings[j].Location.Path {
			return findings[i].Location.Path < findings[j].Location.Path
		}
		if findings[i].Location.StartLine != findings[j].Location.StartLine {
			return findings[i].Location.StartLine < findings[j].Location.StartLine
		}
		return findings[i].ID.String() < findings[j].ID.String()
	})
}

func sortScaIssues(issues []ingest.ScaIssue) {
	sort.Slice(issues, func(i, j int) bool {
		if issues[i].PackageName != issues[j].PackageName {
			return issues[i].PackageName < issues[j].PackageName
		}
		return issues[i].IssueKey < issues[j].IssueKey
	})
}

func sortExecutors(executors []fleet.Executor) {
	sort.Slice(executors, func(i, j int) bool {
		if executors[i].Name != executors[j].Name {
			return executors[i].Name < executors[j].Name
		}
		return executors[i].ID.String() < executors[j].ID.String()
	})
}
