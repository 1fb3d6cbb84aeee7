package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/ritw/internal/common"
)

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

// fail maps a service error to a response. Store and internal errors are
// logged and answered with a generic message.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, common.ErrorValidation):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, common.ErrorConflict):
		respondError(w, http.StatusConflict, "already exists")
	case errors.Is(err, common.ErrorUnauthorized):
		respondError(w, http.StatusUnauthorized, "not authenticated")
	case errors.Is(err, common.ErrorNotFound):
		respondError(w, http.StatusNotFound, "not found")
	default:
		s.logger.Error(r.Context(), "request failed",
			"request_id", requestIDFrom(r.Context()),
			"path", r.URL.Path,
			"error", err)
		respondError(w, http.StatusInternalServerError, common.ErrorInternal.Error())
	}
}
