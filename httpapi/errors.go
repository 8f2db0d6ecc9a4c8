package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Skryldev/lead-manager/db"
	"github.com/Skryldev/lead-manager/export"
	"github.com/Skryldev/lead-manager/leads"
	"github.com/Skryldev/lead-manager/repo"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error   string             `json:"error"`
	Message string             `json:"message"`
	Fields  []leads.FieldError `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto a status code and a stable error code. Storage
// and unexpected errors are logged and reported without internal details.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *leads.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "validation_error", Message: ve.Error(), Fields: ve.Fields,
		})
	case errors.Is(err, repo.ErrDuplicateEmail):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error: "duplicate_email", Message: "A lead with this email already exists.",
		})
	case errors.Is(err, repo.ErrLeadNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{
			Error: "not_found", Message: "No lead has this email.",
		})
	case errors.Is(err, export.ErrNoSnapshot):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error: "no_snapshot", Message: "Export the leads before erasing them.",
		})
	case errors.Is(err, export.ErrTokenMismatch):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error: "token_mismatch", Message: "The token does not belong to the latest export.",
		})
	case errors.Is(err, export.ErrNotDelivered):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error: "not_delivered", Message: "The latest export was never delivered.",
		})
	case errors.Is(err, export.ErrSnapshotStale):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error: "snapshot_stale", Message: "Leads changed since the export. Export again before erasing.",
		})
	case errors.Is(err, db.ErrUnavailable):
		s.logger.ErrorContext(r.Context(), "httpapi: storage unavailable",
			slog.String("path", r.URL.Path), slog.Any("error", err))
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Error: "storage_unavailable", Message: "The lead store is unavailable. Please try again later.",
		})
	default:
		s.logger.ErrorContext(r.Context(), "httpapi: internal error",
			slog.String("path", r.URL.Path), slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error: "internal_error", Message: "An internal error occurred. Please try again later.",
		})
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: msg})
}
