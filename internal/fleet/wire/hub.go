package wire

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

// Hub manages websocket clients subscribed to a task's log stream. A
// subscriber joins with a cursor; the hub replays everything after it from
// the buffer and then pushes live chunks.
type Hub struct {
	mu      sync.RWMutex
	buffer  *LogBuffer
	clients map[uuid.UUID]map[*websocket.Conn]struct{}
	logger  hclog.Logger
}

// NewHub creates a Hub over the given retained log buffer.
func NewHub(buffer *LogBuffer, logger hclog.Logger) *Hub {
	return &Hub{
		buffer:  buffer,
		clients: make(map[uuid.UUID]map[*websocket.Conn]struct{}),
		logger:  logger,
	}
}

// Subscribe registers the connection for the task and replays retained
// chunks after the cursor.
func (h *Hub) Subscribe(ctx context.Context, taskID uuid.UUID, after uint64, conn *websocket.Conn) error {
	for _, chunk := range h.buffer.After(taskID, after) {
		if err := writeChunk(ctx, conn, chunk); err != nil {
			return err
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[taskID] == nil {
		h.clients[taskID] = make(map[*websocket.Conn]struct{})
	}
	h.clients[taskID][conn] = struct{}{}
	return nil
}

// Unsubscribe removes the connection from the task's subscriber set.
func (h *Hub) Unsubscribe(taskID uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.clients[taskID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.clients, taskID)
		}
	}
}

// Ingest appends the chunk to the buffer and broadcasts it to live
// subscribers. The buffer append is the monotony gate; a rejected chunk is
// never broadcast.
func (h *Hub) Ingest(taskID uuid.UUID, chunk LogChunk) error {
	if err := h.buffer.Append(taskID, chunk); err != nil {
		return err
	}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients[taskID]))
	for conn := range h.clients[taskID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		if err := writeChunk(context.Background(), conn, chunk); err != nil {
			h.logger.Debug("ws write error, dropping subscriber", "task", taskID, "error", err)
			h.Unsubscribe(taskID, conn)
			conn.Close(websocket.StatusNormalClosure, "")
		}
	}
	return nil
}

func writeChunk(ctx context.Context, conn *websocket.Conn, chunk LogChunk) error {
	data, err := json.Marshal(chunk)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
