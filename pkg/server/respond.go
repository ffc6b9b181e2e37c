package server

import (
	"encoding/json"
	"net/http"

	"github.com/matzehuels/panelgrid/pkg/api"
	"github.com/matzehuels/panelgrid/pkg/errors"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError answers with {"detail": ...}. Internal errors are not exposed.
func writeError(w http.ResponseWriter, err error) {
	status := errors.HTTPStatus(err)
	detail := errors.UserMessage(err)
	if status >= http.StatusInternalServerError && status != http.StatusNotImplemented {
		detail = "internal server error"
	}
	writeJSON(w, status, api.ErrorResponse{Detail: detail})
}

// fail logs server-side errors before answering.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.HTTPStatus(err) >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	} else {
		s.logger.Debug("request rejected", "path", r.URL.Path, "error", err)
	}
	writeError(w, err)
}

// decode reads a JSON body into v. Malformed bodies are a validation failure.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.GetCode(err) != "" {
			return err
		}
		return errors.Wrap(errors.ErrCodeValidation, err, "invalid request body")
	}
	return nil
}
