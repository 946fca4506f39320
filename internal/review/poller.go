package review

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-hclog"
)

// Poller periodically fetches pending AI-job tickets and feeds them to the
// applier. Cancellation-free by design: at-most-once is enforced by the
// conditional update, not by locking out concurrent pollers.
type Poller struct {
	client   *resty.Client
	endpoint string
	applier  *Applier
	interval time.Duration
	logger   hclog.Logger
}

// NewPoller wires a Poller against the AI job API endpoint.
func NewPoller(client *resty.Client, endpoint string, applier *Applier, interval time.Duration, logger hclog.Logger) *Poller {
	return &Poller{
		client:   client,
		endpoint: endpoint,
		applier:  applier,
		interval: interval,
		logger:   logger,
	}
}

// Run polls until the context is canceled.
func (p *Poller) Run(ctx context.Context, tenant string) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.pollOnce(ctx, tenant); err != nil {
				p.logger.Error("review poll failed", "error", err)
			}
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context, tenant string) error {
	var tickets []JobTicket
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParam("tenant", tenant).
		SetResult(&tickets).
		Get(p.endpoint + "/v1/jobs")
	if err != nil {
		return fmt.Errorf("failed to poll AI jobs: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("AI job API returned %s", resp.Status())
	}

	for _, ticket := range tickets {
		if _, err := p.applier.ApplyIfReady(ctx, tenant, ticket); err != nil {
			p.logger.Error("failed to apply review verdict", "job", ticket.JobID, "error", err)
		}
	}
	return nil
}
