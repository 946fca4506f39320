package fleet

import (
	"context"
	"net"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/scanio-hub/internal/fleet/wire"
)

// helloTimeout bounds how long a fresh connection may sit silent before it
// must have authenticated.
const helloTimeout = 10 * time.Second

// Listener is the hub side of the executor channel: it accepts connections,
// authenticates the hello token, attaches the connection for dispatch
// pushes, and drains the reverse log stream into the hub.
type Listener struct {
	manager *Manager
	channel *FramedChannel
	hub     *wire.Hub
	codec   *wire.Codec
	logger  hclog.Logger
}

// NewListener wires a Listener over the shared channel registry and log hub.
func NewListener(manager *Manager, channel *FramedChannel, hub *wire.Hub, codec *wire.Codec, logger hclog.Logger) *Listener {
	return &Listener{
		manager: manager,
		channel: channel,
		hub:     hub,
		codec:   codec,
		logger:  logger,
	}
}

// Serve accepts executor connections until ctx ends. Each connection is
// handled on its own goroutine.
func (l *Listener) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	l.logger.Info("fleet channel listening", "addr", ln.Addr().String())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go l.handleConn(ctx, conn)
	}
}

func (l *Listener) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(helloTimeout)); err != nil {
		return
	}
	hello, err := l.codec.ReadHello(conn)
	if err != nil {
		l.logger.Warn("executor hello failed", "remote", conn.RemoteAddr(), "error", err)
		return
	}
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return
	}

	executor, err := l.manager.ResolveToken(ctx, hello.Token)
	if err != nil {
		l.logger.Warn("executor channel rejected", "remote", conn.RemoteAddr())
		return
	}

	l.channel.Attach(executor.ID, conn)
	defer l.channel.Detach(executor.ID, conn)

	if err := l.manager.UpdateStatus(ctx, executor.Tenant, executor.ID, ExecutorOnline); err != nil {
		l.logger.Error("failed to mark executor online", "executor", executor.ID, "error", err)
	}

	for {
		frame, err := l.codec.ReadLogFrame(conn)
		if err != nil {
			l.logger.Debug("executor channel closed", "executor", executor.ID, "error", err)
			return
		}
		if err := l.hub.Ingest(frame.TaskID, frame.Chunk); err != nil {
			// A sequence regression poisons only the offending chunk.
			l.logger.Warn("log chunk rejected", "executor", executor.ID, "task", frame.TaskID, "error", err)
		}
	}
}
