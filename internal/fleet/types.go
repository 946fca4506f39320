package fleet

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/scan-io-git/scanio-hub/internal/task"
)

// ExecutorStatus is the fleet-member state machine.
type ExecutorStatus string

const (
	ExecutorPending  ExecutorStatus = "PENDING"
	ExecutorOnline   ExecutorStatus = "ONLINE"
	ExecutorOffline  ExecutorStatus = "OFFLINE"
	ExecutorBusy     ExecutorStatus = "BUSY"
	ExecutorDraining ExecutorStatus = "DRAINING"
	ExecutorDisabled ExecutorStatus = "DISABLED"
)

// activeStatuses are the states in which an executor is expected to
// heartbeat; staleness is only meaningful for these.
var activeStatuses = map[ExecutorStatus]bool{
	ExecutorOnline:   true,
	ExecutorBusy:     true,
	ExecutorDraining: true,
}

// Active reports whether the status participates in staleness detection.
func (s ExecutorStatus) Active() bool { return activeStatuses[s] }

// Resources describes declared capacity or last-reported usage.
type Resources struct {
	CPUMillis int `json:"cpu_millis"`
	MemoryMB  int `json:"memory_mb"`
}

// Executor is one registered fleet member. The bearer token is the sole
// credential on the dispatch and artifact-download channels; it is returned
// once at registration and never logged.
type Executor struct {
	ID            uuid.UUID      `json:"id"`
	Tenant        string         `json:"tenant"`
	Name          string         `json:"name"`
	Status        ExecutorStatus `json:"status"`
	Labels        []string       `json:"labels,omitempty"`
	Capacity      Resources      `json:"capacity"`
	Usage         Resources      `json:"usage"`
	LastHeartbeat *time.Time     `json:"last_heartbeat,omitempty"`
	Token         string         `json:"-"`
	PublicKey     string         `json:"public_key,omitempty"`
	Lifecycle     task.Lifecycle `json:"lifecycle"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Stale reports whether the executor missed its heartbeat deadline. Only
// executors in an active status can be stale.
func (e *Executor) Stale(now time.Time, deadline time.Duration) bool {
	if !e.Status.Active() {
		return false
	}
	return e.LastHeartbeat == nil || now.Sub(*e.LastHeartbeat) > deadline
}

// Filter narrows executor listings.
type Filter struct {
	Status        ExecutorStatus
	NameSubstring string
}

// Store is the tenant-scoped persistence boundary for the fleet.
// GetExecutorByToken is the one deliberately tenant-free lookup: the token
// resolves the tenant for artifact-download authorization.
type Store interface {
	CreateExecutor(ctx context.Context, tenant string, e *Executor) error
	GetExecutor(ctx context.Context, tenant string, id uuid.UUID) (*Executor, error)
	GetExecutorByToken(ctx context.Context, token string) (*Executor, error)
	ListExecutors(ctx context.Context, tenant string, f Filter) ([]Executor, error)
	UpdateExecutorStatus(ctx context.Context, tenant string, id uuid.UUID, status ExecutorStatus) error
	UpdateExecutorCapacity(ctx context.Context, tenant string, id uuid.UUID, capacity, usage Resources) error
	RecordHeartbeat(ctx context.Context, tenant string, id uuid.UUID, at time.Time, usage Resources) error
}
