package fleet_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scan-io-git/scanio-hub/internal/fleet"
	"github.com/scan-io-git/scanio-hub/internal/fleet/wire"
	"github.com/scan-io-git/scanio-hub/internal/store"
)

type listenerHarness struct {
	mgr      *fleet.Manager
	channel  *fleet.FramedChannel
	buffer   *wire.LogBuffer
	codec    *wire.Codec
	addr     string
	memStore *store.Memory
}

func startListener(t *testing.T) *listenerHarness {
	t.Helper()
	m := store.NewMemory()
	codec := wire.NewCodec(0)
	channel := fleet.NewFramedChannel(codec, hclog.NewNullLogger())
	mgr := fleet.NewManager(m, m, channel, time.Minute, time.Second, hclog.NewNullLogger())
	buffer := wire.NewLogBuffer()
	hub := wire.NewHub(buffer, hclog.NewNullLogger())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	listener := fleet.NewListener(mgr, channel, hub, codec, hclog.NewNullLogger())
	go listener.Serve(ctx, ln)

	return &listenerHarness{mgr: mgr, channel: channel, buffer: buffer, codec: codec, addr: ln.Addr().String(), memStore: m}
}

func TestListenerAttachesChannelAndIngestsLogs(t *testing.T) {
	ctx := context.Background()
	h := startListener(t)

	e, err := h.mgr.Register(ctx, testTenant, "builder-1", nil, fleet.Resources{}, "")
	require.NoError(t, err)

	conn, err := net.Dial("tcp", h.addr)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, h.codec.WriteHello(conn, wire.ExecutorHello{Token: e.Token}))

	taskID := uuid.New()
	stageID := uuid.New()
	require.NoError(t, h.codec.WriteLogFrame(conn, wire.LogFrame{
		TaskID: taskID,
		Chunk:  wire.LogChunk{Sequence: 1, Stream: wire.StreamStdout, Content: "scanning", StageID: stageID},
	}))

	// The reverse stream lands in the retained buffer.
	require.Eventually(t, func() bool {
		return len(h.buffer.After(taskID, 0)) == 1
	}, 2*time.Second, 10*time.Millisecond)
	chunk := h.buffer.After(taskID, 0)[0]
	assert.Equal(t, "scanning", chunk.Content)
	assert.Equal(t, stageID, chunk.StageID)

	// Authenticating marked the executor online.
	require.Eventually(t, func() bool {
		got, err := h.memStore.GetExecutor(ctx, testTenant, e.ID)
		return err == nil && got.Status == fleet.ExecutorOnline
	}, 2*time.Second, 10*time.Millisecond)

	// The attached connection carries dispatch pushes back to the executor.
	pushErr := make(chan error, 1)
	go func() {
		pushErr <- h.channel.Push(ctx, e.ID, wire.DispatchCommand{TaskID: taskID, Tenant: testTenant, Engine: "semgrep"})
	}()
	cmd, err := h.codec.ReadDispatch(conn)
	require.NoError(t, err)
	assert.Equal(t, taskID, cmd.TaskID)
	require.NoError(t, <-pushErr)
}

func TestListenerRejectsUnknownToken(t *testing.T) {
	h := startListener(t)

	conn, err := net.Dial("tcp", h.addr)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, h.codec.WriteHello(conn, wire.ExecutorHello{Token: "deadbeef"}))

	// The hub hangs up without attaching anything.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = h.codec.ReadFrame(conn)
	require.Error(t, err)
}
