package server

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/scan-io-git/scanio-hub/internal/fleet"
	scanerrors "github.com/scan-io-git/scanio-hub/pkg/shared/errors"
)

type registerExecutorRequest struct {
	Name      string          `json:"name"`
	Labels    []string        `json:"labels,omitempty"`
	Capacity  fleet.Resources `json:"capacity"`
	PublicKey string          `json:"public_key,omitempty"`
}

// registerExecutorResponse is the only place the bearer token leaves the hub.
type registerExecutorResponse struct {
	Executor *fleet.Executor `json:"executor"`
	Token    string          `json:"token"`
}

func (s *Server) handleExecutors(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req registerExecutorRequest
		if err := decodeJSON(r, &req); err != nil {
			s.respondError(w, err)
			return
		}
		e, err := s.fleet.Register(r.Context(), tenantOf(r), req.Name, req.Labels, req.Capacity, req.PublicKey)
		if err != nil {
			s.respondError(w, err)
			return
		}
		s.respondJSON(w, http.StatusCreated, registerExecutorResponse{Executor: e, Token: e.Token})

	case http.MethodGet:
		f := fleet.Filter{
			Status:        fleet.ExecutorStatus(r.URL.Query().Get("status")),
			NameSubstring: r.URL.Query().Get("name"),
		}
		executors, err := s.fleet.List(r.Context(), tenantOf(r), f)
		if err != nil {
			s.respondError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, executors)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleExecutor routes /api/executors/{id}/{heartbeat|status|capacity|dispatch}.
func (s *Server) handleExecutor(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/executors/")
	idPart, sub, _ := strings.Cut(rest, "/")
	id, err := uuid.Parse(idPart)
	if err != nil {
		s.respondError(w, scanerrors.NewValidationError("id", "malformed executor id %q", idPart))
		return
	}
	tenant := tenantOf(r)

	switch {
	case sub == "heartbeat" && r.Method == http.MethodPost:
		var req struct {
			Usage fleet.Resources `json:"usage"`
		}
		if err := decodeJSON(r, &req); err != nil {
			s.respondError(w, err)
			return
		}
		if err := s.fleet.Heartbeat(r.Context(), tenant, id, req.Usage); err != nil {
			s.respondError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, nil)

	case sub == "status" && r.Method == http.MethodPut:
		var req struct {
			Status fleet.ExecutorStatus `json:"status"`
		}
		if err := decodeJSON(r, &req); err != nil {
			s.respondError(w, err)
			return
		}
		if err := s.fleet.UpdateStatus(r.Context(), tenant, id, req.Status); err != nil {
			s.respondError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, nil)

	case sub == "capacity" && r.Method == http.MethodPut:
		var req struct {
			Capacity fleet.Resources `json:"capacity"`
			Usage    fleet.Resources `json:"usage"`
		}
		if err := decodeJSON(r, &req); err != nil {
			s.respondError(w, err)
			return
		}
		if err := s.fleet.UpdateCapacity(r.Context(), tenant, id, req.Capacity, req.Usage); err != nil {
			s.respondError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, nil)

	case sub == "dispatch" && r.Method == http.MethodPost:
		var req struct {
			TaskID uuid.UUID `json:"task_id"`
		}
		if err := decodeJSON(r, &req); err != nil {
			s.respondError(w, err)
			return
		}
		if err := s.fleet.Dispatch(r.Context(), tenant, req.TaskID, id); err != nil {
			s.respondError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, nil)

	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}
