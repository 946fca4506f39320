package fleet

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/scanio-hub/internal/fleet/wire"
	"github.com/scan-io-git/scanio-hub/internal/task"
	scanerrors "github.com/scan-io-git/scanio-hub/pkg/shared/errors"
)

// Channel pushes a dispatch command to one executor. The concrete
// implementation is the framed TLS channel; tests substitute a fake.
type Channel interface {
	Push(ctx context.Context, executorID uuid.UUID, cmd wire.DispatchCommand) error
}

// Manager owns executor registration, token issuance, liveness detection,
// and task dispatch.
type Manager struct {
	store             Store
	tasks             task.Store
	channel           Channel
	heartbeatDeadline time.Duration
	dispatchTimeout   time.Duration
	logger            hclog.Logger
}

// NewManager wires a fleet Manager.
func NewManager(store Store, tasks task.Store, channel Channel, heartbeatDeadline, dispatchTimeout time.Duration, logger hclog.Logger) *Manager {
	return &Manager{
		store:             store,
		tasks:             tasks,
		channel:           channel,
		heartbeatDeadline: heartbeatDeadline,
		dispatchTimeout:   dispatchTimeout,
		logger:            logger,
	}
}

// Register creates a fleet member and issues a fresh random token bound to
// it. The token appears only in the returned Executor; it is the sole
// credential on the dispatch and artifact-download channels.
func (m *Manager) Register(ctx context.Context, tenant, name string, labels []string, capacity Resources, publicKey string) (*Executor, error) {
	if name == "" {
		return nil, scanerrors.NewValidationError("name", "must be set")
	}

	token, err := newToken()
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	e := &Executor{
		ID:        uuid.New(),
		Tenant:    tenant,
		Name:      name,
		Status:    ExecutorPending,
		Labels:    labels,
		Capacity:  capacity,
		Token:     token,
		PublicKey: publicKey,
		Lifecycle: task.ActiveLifecycle(),
		CreatedAt: time.Now().UTC(),
	}
	if err := m.store.CreateExecutor(ctx, tenant, e); err != nil {
		return nil, err
	}
	m.logger.Info("executor registered", "executor", e.ID, "name", name)
	return e, nil
}

// List returns the tenant's executors matching the filter.
func (m *Manager) List(ctx context.Context, tenant string, f Filter) ([]Executor, error) {
	executors, err := m.store.ListExecutors(ctx, tenant, f)
	if err != nil {
		return nil, err
	}
	// The token left the hub exactly once, at registration.
	for i := range executors {
		executors[i].Token = ""
	}
	return executors, nil
}

// UpdateStatus applies an explicit status change, separate from heartbeat.
func (m *Manager) UpdateStatus(ctx context.Context, tenant string, id uuid.UUID, status ExecutorStatus) error {
	return m.store.UpdateExecutorStatus(ctx, tenant, id, status)
}

// UpdateCapacity refreshes declared capacity and reported usage.
func (m *Manager) UpdateCapacity(ctx context.Context, tenant string, id uuid.UUID, capacity, usage Resources) error {
	return m.store.UpdateExecutorCapacity(ctx, tenant, id, capacity, usage)
}

// Heartbeat records liveness and usage only; it never changes status.
func (m *Manager) Heartbeat(ctx context.Context, tenant string, id uuid.UUID, usage Resources) error {
	return m.store.RecordHeartbeat(ctx, tenant, id, time.Now().UTC(), usage)
}

// Stale is the read-side staleness query: executors in an active status
// whose last heartbeat is missing or older than the deadline. It performs
// no transition.
func (m *Manager) Stale(ctx context.Context, tenant string) ([]Executor, error) {
	executors, err := m.store.ListExecutors(ctx, tenant, Filter{})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var stale []Executor
	for _, e := range executors {
		if e.Stale(now, m.heartbeatDeadline) {
			stale = append(stale, e)
		}
	}
	return stale, nil
}

// SweepStale marks every stale executor OFFLINE and returns how many were
// transitioned. Run periodically by the serve loop.
func (m *Manager) SweepStale(ctx context.Context, tenant string) (int, error) {
	stale, err := m.Stale(ctx, tenant)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, e := range stale {
		if err := m.store.UpdateExecutorStatus(ctx, tenant, e.ID, ExecutorOffline); err != nil {
			m.logger.Error("failed to mark executor offline", "executor", e.ID, "error", err)
			continue
		}
		m.logger.Warn("executor marked offline", "executor", e.ID, "name", e.Name)
		swept++
	}
	return swept, nil
}

// Dispatch assigns the executor to the task and pushes a dispatch command
// over the fleet channel. A push failure is reported as a DispatchError:
// the persisted assignment is kept and the dispatch is retryable.
func (m *Manager) Dispatch(ctx context.Context, tenant string, taskID, executorID uuid.UUID) error {
	e, err := m.store.GetExecutor(ctx, tenant, executorID)
	if err != nil {
		return err
	}
	t, err := m.tasks.GetTask(ctx, tenant, taskID)
	if err != nil {
		return err
	}

	if err := m.tasks.AssignExecutor(ctx, tenant, taskID, e.ID.String()); err != nil {
		return err
	}

	pushCtx, cancel := context.WithTimeout(ctx, m.dispatchTimeout)
	defer cancel()

	cmd := wire.DispatchCommand{
		TaskID:  t.ID,
		Tenant:  tenant,
		Type:    string(t.Type),
		Engine:  t.Spec.Engine,
		Options: t.Spec.EngineOptions,
	}
	if err := m.channel.Push(pushCtx, e.ID, cmd); err != nil {
		return scanerrors.NewDispatchError(e.ID.String(), err)
	}

	m.logger.Info("task dispatched", "task", taskID, "executor", executorID)
	return nil
}

// ResolveToken maps a presented fleet token to its executor. The executor's
// tenant is the only tenant the token can reach; callers scope every lookup
// by it rather than by anything the request claims.
func (m *Manager) ResolveToken(ctx context.Context, token string) (*Executor, error) {
	if token == "" {
		return nil, scanerrors.NewValidationError("token", "must be set")
	}
	return m.store.GetExecutorByToken(ctx, token)
}

func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
