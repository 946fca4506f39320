package server

import (
	"encoding/json"
	"net/http"

	scanerrors "github.com/scan-io-git/scanio-hub/pkg/shared/errors"
)

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// respondError maps domain errors onto HTTP statuses.
func (s *Server) respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case scanerrors.IsValidation(err):
		status = http.StatusBadRequest
	case scanerrors.IsNotFound(err):
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	s.respondJSON(w, status, errorBody{Error: err.Error()})
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return scanerrors.NewValidationError("body", "invalid JSON request body: %v", err)
	}
	return nil
}
