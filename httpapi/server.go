// Package httpapi exposes the lead operations and the export/erase workflow
// over HTTP with JSON bodies.
package httpapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/Skryldev/lead-manager/db"
	"github.com/Skryldev/lead-manager/export"
	"github.com/Skryldev/lead-manager/leads"
	"github.com/Skryldev/lead-manager/metrics"
	"github.com/Skryldev/lead-manager/models"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	leads    *leads.Service
	workflow *export.Workflow
	db       *db.DB
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewServer wires the handlers. m may be nil, which disables /metrics.
func NewServer(svc *leads.Service, wf *export.Workflow, database *db.DB, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{leads: svc, workflow: wf, db: database, metrics: m, logger: logger}
}

// Router returns the route table.
//
//	POST /api/v1/leads                     create a lead
//	GET  /api/v1/leads?status=             list, optionally filtered
//	POST /api/v1/leads/status              {"email","status"}
//	GET  /api/v1/leads/summary             total and per-status counts
//	POST /api/v1/exports?format=csv|xlsx   download a snapshot, token in X-Export-Token
//	POST /api/v1/exports/{token}/erase     erase everything the snapshot captured
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
	r.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/leads", s.createLead).Methods(http.MethodPost)
	api.HandleFunc("/leads", s.listLeads).Methods(http.MethodGet)
	api.HandleFunc("/leads/status", s.updateStatus).Methods(http.MethodPost)
	api.HandleFunc("/leads/summary", s.summary).Methods(http.MethodGet)
	api.HandleFunc("/exports", s.createExport).Methods(http.MethodPost)
	api.HandleFunc("/exports/{token}/erase", s.eraseExport).Methods(http.MethodPost)
	return r
}

// HTTPServer returns an *http.Server for addr serving Router.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Handler:           s.Router(),
		Addr:              addr,
		WriteTimeout:      15 * time.Second,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.DebugContext(r.Context(), "httpapi: request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Leads
// ─────────────────────────────────────────────────────────────────────────────

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		badRequest(w, fmt.Sprintf("invalid JSON body: %v", err))
		return false
	}
	return true
}

func (s *Server) createLead(w http.ResponseWriter, r *http.Request) {
	var params models.CreateLeadParams
	if !decode(w, r, &params) {
		return
	}
	lead, err := s.leads.Create(r.Context(), params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, lead)
}

func (s *Server) listLeads(w http.ResponseWriter, r *http.Request) {
	list, err := s.leads.List(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type updateStatusRequest struct {
	Email  string `json:"email"`
	Status string `json:"status"`
}

func (s *Server) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if !decode(w, r, &req) {
		return
	}
	lead, err := s.leads.UpdateStatus(r.Context(), req.Email, req.Status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

func (s *Server) summary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.leads.Summary(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// ─────────────────────────────────────────────────────────────────────────────
// Export & erase
// ─────────────────────────────────────────────────────────────────────────────

// createExport streams a fresh snapshot as an attachment. The snapshot only
// becomes erasable once its bytes were written to the connection.
func (s *Server) createExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	snap, err := s.workflow.Snapshot(r.Context(), format)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	started := false
	err = s.workflow.Handoff(snap.Token, func(data []byte) error {
		started = true
		h := w.Header()
		h.Set("Content-Type", format.ContentType())
		h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", format.Filename()))
		h.Set("Content-Length", strconv.Itoa(len(data)))
		h.Set("X-Export-Token", snap.Token)
		h.Set("X-Export-Rows", strconv.Itoa(snap.Rows))
		w.WriteHeader(http.StatusOK)
		_, err := w.Write(data)
		return err
	})
	switch {
	case err == nil:
	case !started:
		// Replaced by a concurrent export before anything was written.
		s.writeError(w, r, err)
	default:
		s.logger.WarnContext(r.Context(), "httpapi: export not delivered", slog.Any("error", err))
	}
}

type eraseResponse struct {
	Erased int64 `json:"erased"`
}

func (s *Server) eraseExport(w http.ResponseWriter, r *http.Request) {
	n, err := s.workflow.Confirm(r.Context(), mux.Vars(r)["token"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eraseResponse{Erased: n})
}

// ─────────────────────────────────────────────────────────────────────────────
// Health
// ─────────────────────────────────────────────────────────────────────────────

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
