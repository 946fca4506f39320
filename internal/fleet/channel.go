package fleet

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/scanio-hub/internal/fleet/wire"
)

// FramedChannel is the production Channel: one TLS-terminated, length-framed
// connection per executor, attached when the executor connects and detached
// when it drops.
type FramedChannel struct {
	mu     sync.RWMutex
	conns  map[uuid.UUID]net.Conn
	codec  *wire.Codec
	logger hclog.Logger
}

// NewFramedChannel creates a channel registry using the given codec.
func NewFramedChannel(codec *wire.Codec, logger hclog.Logger) *FramedChannel {
	return &FramedChannel{
		conns:  make(map[uuid.UUID]net.Conn),
		codec:  codec,
		logger: logger,
	}
}

// Attach registers the executor's connection, replacing any previous one.
func (c *FramedChannel) Attach(executorID uuid.UUID, conn net.Conn) {
	c.mu.Lock()
	old := c.conns[executorID]
	c.conns[executorID] = conn
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}
	c.logger.Debug("executor channel attached", "executor", executorID)
}

// Detach drops the executor's connection if it is still the registered one.
func (c *FramedChannel) Detach(executorID uuid.UUID, conn net.Conn) {
	c.mu.Lock()
	if c.conns[executorID] == conn {
		delete(c.conns, executorID)
	}
	c.mu.Unlock()
	c.logger.Debug("executor channel detached", "executor", executorID)
}

// Push writes one dispatch command frame to the executor's connection under
// the context deadline. An unattached executor is unreachable.
func (c *FramedChannel) Push(ctx context.Context, executorID uuid.UUID, cmd wire.DispatchCommand) error {
	c.mu.RLock()
	conn := c.conns[executorID]
	c.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("executor %s has no attached channel", executorID)
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetWriteDeadline(deadline); err != nil {
			return fmt.Errorf("failed to set write deadline: %w", err)
		}
		defer conn.SetWriteDeadline(time.Time{})
	}

	return c.codec.WriteDispatch(conn, cmd)
}
