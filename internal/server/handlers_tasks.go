package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/scan-io-git/scanio-hub/internal/task"
	scanerrors "github.com/scan-io-git/scanio-hub/pkg/shared/errors"
)

type submitTaskRequest struct {
	ProjectID     string    `json:"project_id"`
	RepoURL       string    `json:"repo_url,omitempty"`
	Type          task.Type `json:"type"`
	Spec          task.Spec `json:"spec"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req submitTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, err)
		return
	}

	tenant := tenantOf(r)
	t, err := s.tasks.Submit(r.Context(), tenant, task.SubmitRequest{
		ProjectID:     req.ProjectID,
		RepoURL:       req.RepoURL,
		Type:          req.Type,
		Spec:          req.Spec,
		CorrelationID: req.CorrelationID,
	})
	if err != nil {
		s.respondError(w, err)
		return
	}

	// The pipeline runs asynchronously; the response carries the accepted
	// task for polling.
	if t.Status == task.StatusPending {
		go s.runPipeline(tenant, t)
	}
	s.respondJSON(w, http.StatusAccepted, t)
}

func (s *Server) runPipeline(tenant string, t *task.Task) {
	ctx := context.Background()
	if err := s.runner.Run(ctx, tenant, t); err != nil {
		s.logger.Error("pipeline run failed", "task", t.ID, "error", err)
	}
}

// handleTask routes /api/tasks/{id}[/stages|/findings|/sca-issues|/status].
func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/tasks/")
	idPart, sub, _ := strings.Cut(rest, "/")
	id, err := uuid.Parse(idPart)
	if err != nil {
		s.respondError(w, scanerrors.NewValidationError("id", "malformed task id %q", idPart))
		return
	}
	tenant := tenantOf(r)

	switch {
	case sub == "" && r.Method == http.MethodGet:
		t, err := s.tasks.Get(r.Context(), tenant, id)
		if err != nil {
			s.respondError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, t)

	case sub == "status" && r.Method == http.MethodPut:
		var req struct {
			Status task.Status `json:"status"`
		}
		if err := decodeJSON(r, &req); err != nil {
			s.respondError(w, err)
			return
		}
		if err := s.tasks.UpdateStatus(r.Context(), tenant, id, req.Status); err != nil {
			s.respondError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, nil)

	case sub == "stages" && r.Method == http.MethodGet:
		stages, err := s.taskStore.ListStages(r.Context(), tenant, id)
		if err != nil {
			s.respondError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, stages)

	case sub == "findings" && r.Method == http.MethodGet:
		findings, err := s.findings.ListFindings(r.Context(), tenant, id)
		if err != nil {
			s.respondError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, findings)

	case sub == "sca-issues" && r.Method == http.MethodGet:
		issues, err := s.findings.ListScaIssues(r.Context(), tenant, id)
		if err != nil {
			s.respondError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, issues)

	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

type replaceBaselineRequest struct {
	ProjectID    string   `json:"project_id"`
	Kind         string   `json:"kind"`
	Fingerprints []string `json:"fingerprints"`
}

// handleBaselines replaces a project baseline wholesale.
func (s *Server) handleBaselines(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut && r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req replaceBaselineRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	if req.ProjectID == "" {
		s.respondError(w, scanerrors.NewValidationError("project_id", "must be set"))
		return
	}
	if req.Kind != "finding" && req.Kind != "sca" {
		s.respondError(w, scanerrors.NewValidationError("kind", "must be %q or %q", "finding", "sca"))
		return
	}

	if err := s.baselines.ReplaceBaseline(r.Context(), tenantOf(r), req.ProjectID, req.Kind, req.Fingerprints); err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]int{"fingerprints": len(req.Fingerprints)})
}
