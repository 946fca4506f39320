package review_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scan-io-git/scanio-hub/internal/ingest"
	"github.com/scan-io-git/scanio-hub/internal/review"
	"github.com/scan-io-git/scanio-hub/internal/store"
	"github.com/scan-io-git/scanio-hub/internal/task"
)

const testTenant = "acme"

func seedFinding(t *testing.T, m *store.Memory) *ingest.Finding {
	t.Helper()
	now := time.Now().UTC()
	f := &ingest.Finding{
		ID:          uuid.New(),
		Tenant:      testTenant,
		TaskID:      uuid.New(),
		RuleID:      "go.lang.security.sqli",
		Fingerprint: "fp-1",
		Severity:    ingest.SeverityHigh,
		Status:      ingest.StatusOpen,
		Lifecycle:   task.ActiveLifecycle(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, m.UpsertFinding(context.Background(), testTenant, f))
	return f
}

func seedRecord(t *testing.T, m *store.Memory, targetID uuid.UUID) string {
	t.Helper()
	jobID := "job-" + targetID.String()
	require.NoError(t, m.CreateRecord(context.Background(), testTenant, &review.Record{
		Tenant:       testTenant,
		JobID:        jobID,
		TargetKind:   review.TargetFinding,
		TargetID:     targetID,
		StatusBefore: ingest.StatusOpen,
		CreatedAt:    time.Now().UTC(),
	}))
	return jobID
}

func succeededTicket(jobID string, targetID uuid.UUID, verdict review.Verdict) review.JobTicket {
	return review.JobTicket{
		JobID:   jobID,
		Status:  review.JobSucceeded,
		JobType: review.JobTypeFindingReview,
		Result: &review.JobResult{
			TargetID:   targetID.String(),
			Verdict:    verdict,
			Confidence: 0.93,
			Reason:     "tainted input reaches the query sink",
		},
	}
}

func TestApplyIfReadyAppliesVerdictOnce(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	applier := review.NewApplier(m, m, hclog.NewNullLogger())
	f := seedFinding(t, m)
	jobID := seedRecord(t, m, f.ID)
	ticket := succeededTicket(jobID, f.ID, review.VerdictTruePositive)

	applied, err := applier.ApplyIfReady(ctx, testTenant, ticket)
	require.NoError(t, err)
	assert.True(t, applied)

	got, err := m.GetFinding(ctx, testTenant, f.ID)
	require.NoError(t, err)
	assert.Equal(t, ingest.StatusConfirmed, got.Status)

	record, err := m.GetRecord(ctx, testTenant, jobID)
	require.NoError(t, err)
	require.NotNil(t, record.AppliedAt)
	assert.Equal(t, review.VerdictTruePositive, record.Verdict)
	assert.Equal(t, ingest.StatusConfirmed, record.StatusAfter)

	// A repeated poll of the same finished job is a silent no-op.
	applied, err = applier.ApplyIfReady(ctx, testTenant, ticket)
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestApplyIfReadyConcurrentCallersApplyExactlyOnce(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	applier := review.NewApplier(m, m, hclog.NewNullLogger())
	f := seedFinding(t, m)
	jobID := seedRecord(t, m, f.ID)
	ticket := succeededTicket(jobID, f.ID, review.VerdictFalsePositive)

	const callers = 16
	results := make([]bool, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			applied, err := applier.ApplyIfReady(ctx, testTenant, ticket)
			assert.NoError(t, err)
			results[i] = applied
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, applied := range results {
		if applied {
			wins++
		}
	}
	assert.Equal(t, 1, wins)

	got, err := m.GetFinding(ctx, testTenant, f.ID)
	require.NoError(t, err)
	assert.Equal(t, ingest.StatusFalsePositive, got.Status)
}

func TestApplyIfReadyIgnoresNonTerminalAndForeignTickets(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	applier := review.NewApplier(m, m, hclog.NewNullLogger())
	f := seedFinding(t, m)
	jobID := seedRecord(t, m, f.ID)

	// Still running.
	running := succeededTicket(jobID, f.ID, review.VerdictTruePositive)
	running.Status = review.JobRunning
	applied, err := applier.ApplyIfReady(ctx, testTenant, running)
	require.NoError(t, err)
	assert.False(t, applied)

	// Unknown job id.
	unknown := succeededTicket("job-not-ours", f.ID, review.VerdictTruePositive)
	applied, err = applier.ApplyIfReady(ctx, testTenant, unknown)
	require.NoError(t, err)
	assert.False(t, applied)

	// Job type outside the allow-list.
	foreign := succeededTicket(jobID, f.ID, review.VerdictTruePositive)
	foreign.JobType = "summarize_repo"
	applied, err = applier.ApplyIfReady(ctx, testTenant, foreign)
	require.NoError(t, err)
	assert.False(t, applied)

	got, err := m.GetFinding(ctx, testTenant, f.ID)
	require.NoError(t, err)
	assert.Equal(t, ingest.StatusOpen, got.Status)
}

func TestApplyIfReadyUncertainVerdictKeepsStatus(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	applier := review.NewApplier(m, m, hclog.NewNullLogger())
	f := seedFinding(t, m)
	jobID := seedRecord(t, m, f.ID)

	applied, err := applier.ApplyIfReady(ctx, testTenant, succeededTicket(jobID, f.ID, review.VerdictUncertain))
	require.NoError(t, err)
	assert.True(t, applied)

	got, err := m.GetFinding(ctx, testTenant, f.ID)
	require.NoError(t, err)
	assert.Equal(t, ingest.StatusOpen, got.Status)
}

// failingRecords simulates a backend outage on the read path.
type failingRecords struct {
	review.RecordStore
	err error
}

func (f *failingRecords) GetRecord(ctx context.Context, tenant, jobID string) (*review.Record, error) {
	return nil, f.err
}

func TestApplyIfReadyPropagatesStoreFailures(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	finding := seedFinding(t, m)

	storeErr := errors.New("database is locked")
	applier := review.NewApplier(&failingRecords{RecordStore: m, err: storeErr}, m, hclog.NewNullLogger())

	// A backend failure is not "job untracked": it surfaces to the poller.
	applied, err := applier.ApplyIfReady(ctx, testTenant, succeededTicket("job-1", finding.ID, review.VerdictTruePositive))
	assert.False(t, applied)
	require.ErrorIs(t, err, storeErr)

	// The finding is untouched.
	got, err := m.GetFinding(ctx, testTenant, finding.ID)
	require.NoError(t, err)
	assert.Equal(t, ingest.StatusOpen, got.Status)
}
