package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/scan-io-git/scanio-hub/internal/task"
	scanerrors "github.com/scan-io-git/scanio-hub/pkg/shared/errors"
)

// handleArtifact serves /api/artifacts/{kind}/{id} to executors. The bearer
// token both authenticates the caller and pins the tenant: resolution only
// looks inside the token's tenant, so request headers have no say in which
// tenant's artifacts are reachable.
func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	token := bearerToken(r)
	if token == "" {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}

	executor, err := s.fleet.ResolveToken(r.Context(), token)
	if err != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/artifacts/")
	kind, id, ok := strings.Cut(rest, "/")
	if !ok || kind == "" || id == "" {
		s.respondError(w, scanerrors.NewValidationError("artifact", "expected /api/artifacts/{kind}/{id}"))
		return
	}

	path, err := s.workspace.Resolve(executor.Tenant, task.NewArtifactRef(kind, id))
	if scanerrors.IsNotFound(err) {
		// Another tenant's artifact and a nonexistent one get the same answer.
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	if err != nil {
		s.respondError(w, err)
		return
	}
	http.ServeFile(w, r, path)
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return ""
	}
	return token
}

// handleLogStream upgrades /ws/logs?task={id}&after={seq} to a websocket,
// replays the retained stream past the cursor, and then follows live chunks.
func (s *Server) handleLogStream(w http.ResponseWriter, r *http.Request) {
	taskID, err := uuid.Parse(r.URL.Query().Get("task"))
	if err != nil {
		s.respondError(w, scanerrors.NewValidationError("task", "malformed task id"))
		return
	}
	var after uint64
	if v := r.URL.Query().Get("after"); v != "" {
		after, err = strconv.ParseUint(v, 10, 64)
		if err != nil {
			s.respondError(w, scanerrors.NewValidationError("after", "malformed cursor %q", v))
			return
		}
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Error("ws accept error", "error", err)
		return
	}
	defer conn.CloseNow()

	if err := s.hub.Subscribe(r.Context(), taskID, after, conn); err != nil {
		return
	}
	defer s.hub.Unsubscribe(taskID, conn)

	// Hold the connection open until the client goes away.
	for {
		if _, _, err := conn.Read(r.Context()); err != nil {
			return
		}
	}
}
