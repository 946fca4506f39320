// Package ticket files tracker issues for findings that reach the
// configured severity threshold.
package ticket

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-github/v47/github"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/oauth2"

	"github.com/scan-io-git/scanio-hub/internal/ingest"
	"github.com/scan-io-git/scanio-hub/pkg/shared/config"
)

// Filer creates a tracker issue for a finding. Implementations must be safe
// to call repeatedly with the same finding.
type Filer interface {
	File(ctx context.Context, finding *ingest.Finding) (string, error)
}

// GithubFiler files issues through the GitHub issues API.
type GithubFiler struct {
	client    *github.Client
	namespace string
	repo      string
	logger    hclog.Logger
}

// NewGithubFiler builds a Filer from the tickets section of the config.
func NewGithubFiler(ctx context.Context, cfg *config.Tickets, logger hclog.Logger) (*GithubFiler, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
	tc := oauth2.NewClient(ctx, ts)

	client := github.NewClient(tc)
	if cfg.BaseURL != "" {
		var err error
		client, err = github.NewEnterpriseClient(cfg.BaseURL, cfg.BaseURL, tc)
		if err != nil {
			return nil, fmt.Errorf("failed to build GitHub client for %q: %w", cfg.BaseURL, err)
		}
	}

	return &GithubFiler{
		client:    client,
		namespace: cfg.Namespace,
		repo:      cfg.Repository,
		logger:    logger,
	}, nil
}

// File creates an issue for the finding, skipping creation when an open
// issue with the same marker already exists. Returns the issue URL.
func (g *GithubFiler) File(ctx context.Context, finding *ingest.Finding) (string, error) {
	marker := issueMarker(finding)

	existing, err := g.findByMarker(ctx, marker)
	if err != nil {
		return "", err
	}
	if existing != nil {
		g.logger.Debug("issue already filed", "finding", finding.ID, "issue", existing.GetHTMLURL())
		return existing.GetHTMLURL(), nil
	}

	title := issueTitle(finding)
	body := issueBody(finding, marker)
	issue, _, err := g.client.Issues.Create(ctx, g.namespace, g.repo, &github.IssueRequest{
		Title:  &title,
		Body:   &body,
		Labels: &[]string{"security", strings.ToLower(string(finding.Severity))},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create issue for finding %s: %w", finding.ID, err)
	}

	g.logger.Info("filed tracker issue", "finding", finding.ID, "issue", issue.GetHTMLURL())
	return issue.GetHTMLURL(), nil
}

// findByMarker searches open issues for the finding's hidden marker so the
// same finding never produces a second ticket.
func (g *GithubFiler) findByMarker(ctx context.Context, marker string) (*github.Issue, error) {
	query := fmt.Sprintf("repo:%s/%s is:issue is:open %q", g.namespace, g.repo, marker)
	result, _, err := g.client.Search.Issues(ctx, query, &github.SearchOptions{
		ListOptions: github.ListOptions{PerPage: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search existing issues: %w", err)
	}
	if len(result.Issues) == 0 {
		return nil, nil
	}
	return result.Issues[0], nil
}

func issueMarker(finding *ingest.Finding) string {
	return fmt.Sprintf("scanio-finding: %s", finding.ID)
}

func issueTitle(finding *ingest.Finding) string {
	return fmt.Sprintf("[%s] %s in %s", finding.Severity, finding.RuleID, finding.Location.Path)
}

func issueBody(finding *ingest.Finding, marker string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Rule:** `%s`\n", finding.RuleID)
	fmt.Fprintf(&b, "**Severity:** %s\n", finding.Severity)
	fmt.Fprintf(&b, "**Location:** `%s:%d`\n\n", finding.Location.Path, finding.Location.StartLine)
	if finding.Message != "" {
		fmt.Fprintf(&b, "%s\n\n", finding.Message)
	}
	if finding.Evidence.Snippet != "" {
		fmt.Fprintf(&b, "```\n%s\n```\n\n", finding.Evidence.Snippet)
	}
	fmt.Fprintf(&b, "<!-- %s -->\n", marker)
	return b.String()
}
