package fleet_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scan-io-git/scanio-hub/internal/fleet"
	"github.com/scan-io-git/scanio-hub/internal/fleet/wire"
	"github.com/scan-io-git/scanio-hub/internal/store"
	"github.com/scan-io-git/scanio-hub/internal/task"
)

const testTenant = "acme"

// recordingChannel captures pushed dispatch commands.
type recordingChannel struct {
	pushed []wire.DispatchCommand
	err    error
}

func (c *recordingChannel) Push(ctx context.Context, executorID uuid.UUID, cmd wire.DispatchCommand) error {
	if c.err != nil {
		return c.err
	}
	c.pushed = append(c.pushed, cmd)
	return nil
}

func newManager(m *store.Memory, ch fleet.Channel, deadline time.Duration) *fleet.Manager {
	return fleet.NewManager(m, m, ch, deadline, time.Second, hclog.NewNullLogger())
}

func TestRegisterIssuesTokenOnce(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	mgr := newManager(m, &recordingChannel{}, time.Minute)

	e, err := mgr.Register(ctx, testTenant, "builder-1", []string{"linux"}, fleet.Resources{CPUMillis: 4000, MemoryMB: 8192}, "")
	require.NoError(t, err)
	assert.NotEmpty(t, e.Token)
	assert.Equal(t, fleet.ExecutorPending, e.Status)

	resolved, err := mgr.ResolveToken(ctx, e.Token)
	require.NoError(t, err)
	assert.Equal(t, e.ID, resolved.ID)

	// Listings never carry the token.
	listed, err := mgr.List(ctx, testTenant, fleet.Filter{})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Empty(t, listed[0].Token)
}

func TestRegisterRequiresName(t *testing.T) {
	m := store.NewMemory()
	mgr := newManager(m, &recordingChannel{}, time.Minute)

	_, err := mgr.Register(context.Background(), testTenant, "", nil, fleet.Resources{}, "")
	require.Error(t, err)
}

func TestResolveTokenPinsTenant(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	mgr := newManager(m, &recordingChannel{}, time.Minute)

	e, err := mgr.Register(ctx, testTenant, "builder-1", nil, fleet.Resources{}, "")
	require.NoError(t, err)

	// The token resolves to its own executor, carrying the owning tenant.
	resolved, err := mgr.ResolveToken(ctx, e.Token)
	require.NoError(t, err)
	assert.Equal(t, testTenant, resolved.Tenant)

	// An unknown token is rejected outright.
	_, err = mgr.ResolveToken(ctx, "deadbeef")
	require.Error(t, err)

	_, err = mgr.ResolveToken(ctx, "")
	require.Error(t, err)
}

func TestSweepStaleMarksMissedHeartbeatsOffline(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	mgr := newManager(m, &recordingChannel{}, 50*time.Millisecond)

	fresh, err := mgr.Register(ctx, testTenant, "fresh", nil, fleet.Resources{}, "")
	require.NoError(t, err)
	stale, err := mgr.Register(ctx, testTenant, "stale", nil, fleet.Resources{}, "")
	require.NoError(t, err)
	idle, err := mgr.Register(ctx, testTenant, "idle", nil, fleet.Resources{}, "")
	require.NoError(t, err)

	require.NoError(t, mgr.UpdateStatus(ctx, testTenant, fresh.ID, fleet.ExecutorOnline))
	require.NoError(t, mgr.UpdateStatus(ctx, testTenant, stale.ID, fleet.ExecutorOnline))
	// idle stays PENDING; staleness does not apply before the first heartbeat
	// in an active status.

	require.NoError(t, mgr.Heartbeat(ctx, testTenant, fresh.ID, fleet.Resources{}))
	require.NoError(t, m.RecordHeartbeat(ctx, testTenant, stale.ID, time.Now().UTC().Add(-time.Hour), fleet.Resources{}))

	swept, err := mgr.SweepStale(ctx, testTenant)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	got, err := m.GetExecutor(ctx, testTenant, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, fleet.ExecutorOffline, got.Status)

	got, err = m.GetExecutor(ctx, testTenant, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, fleet.ExecutorOnline, got.Status)

	got, err = m.GetExecutor(ctx, testTenant, idle.ID)
	require.NoError(t, err)
	assert.Equal(t, fleet.ExecutorPending, got.Status)
}

func TestDispatchAssignsAndPushes(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	ch := &recordingChannel{}
	mgr := newManager(m, ch, time.Minute)

	e, err := mgr.Register(ctx, testTenant, "builder-1", nil, fleet.Resources{}, "")
	require.NoError(t, err)

	tsk := &task.Task{
		ID:        uuid.New(),
		Tenant:    testTenant,
		ProjectID: "proj-1",
		Type:      task.TypeCodeScan,
		Spec:      task.Spec{Engine: "semgrep"},
		Status:    task.StatusPending,
		Lifecycle: task.ActiveLifecycle(),
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, m.CreateTask(ctx, testTenant, tsk))

	require.NoError(t, mgr.Dispatch(ctx, testTenant, tsk.ID, e.ID))

	require.Len(t, ch.pushed, 1)
	assert.Equal(t, tsk.ID, ch.pushed[0].TaskID)
	assert.Equal(t, "semgrep", ch.pushed[0].Engine)

	got, err := m.GetTask(ctx, testTenant, tsk.ID)
	require.NoError(t, err)
	assert.Equal(t, e.ID.String(), got.ExecutorID)
}

func TestDispatchPushFailureKeepsAssignment(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	ch := &recordingChannel{err: context.DeadlineExceeded}
	mgr := newManager(m, ch, time.Minute)

	e, err := mgr.Register(ctx, testTenant, "builder-1", nil, fleet.Resources{}, "")
	require.NoError(t, err)

	tsk := &task.Task{
		ID:        uuid.New(),
		Tenant:    testTenant,
		ProjectID: "proj-1",
		Type:      task.TypeCodeScan,
		Status:    task.StatusPending,
		Lifecycle: task.ActiveLifecycle(),
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, m.CreateTask(ctx, testTenant, tsk))

	err = mgr.Dispatch(ctx, testTenant, tsk.ID, e.ID)
	require.Error(t, err)

	// The assignment persisted; the push can be retried.
	got, err := m.GetTask(ctx, testTenant, tsk.ID)
	require.NoError(t, err)
	assert.Equal(t, e.ID.String(), got.ExecutorID)
}
