// Package web exposes the loop's control plane over HTTP.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/metalagman/psyche/internal/db"
	"github.com/metalagman/psyche/internal/logging"
	"github.com/metalagman/psyche/internal/loop"
)

// Controller is the slice of the loop the server drives.
type Controller interface {
	Start(ctx context.Context) error
	Pause() error
	Resume() error
	Stop() error
	Restart(message string) error
	RequestAudit() error
	Wake()
	InjectMessage(message string)
	Status() loop.Status
}

// CycleLister reads recent cycle metrics. Nil disables the /cycles route's
// data (it returns an empty list).
type CycleLister interface {
	ListCycles(ctx context.Context, limit int) ([]db.CycleRecord, error)
}

// Server provides the control-plane handlers.
type Server struct {
	ctrl   Controller
	cycles CycleLister
	logger zerolog.Logger
}

// NewServer creates a control-plane server. cycles may be nil.
func NewServer(ctrl Controller, cycles CycleLister) *Server {
	return &Server{ctrl: ctrl, cycles: cycles, logger: logging.Component("web")}
}

// Routes returns the router for the control plane.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /control/{action}", s.handleControl)
	mux.HandleFunc("POST /message", s.handleMessage)
	mux.HandleFunc("GET /cycles", s.handleCycles)
	return mux
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

// handleControl applies a lifecycle action and returns the post-transition
// status. Invalid transitions answer 409.
func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	action := r.PathValue("action")

	var err error
	switch action {
	case "start":
		err = s.ctrl.Start(context.WithoutCancel(r.Context()))
	case "pause":
		err = s.ctrl.Pause()
	case "resume":
		err = s.ctrl.Resume()
	case "stop":
		err = s.ctrl.Stop()
	case "restart":
		err = s.ctrl.Restart(r.URL.Query().Get("message"))
	case "audit":
		err = s.ctrl.RequestAudit()
	case "wake":
		s.ctrl.Wake()
	default:
		http.Error(w, "unknown action "+strconv.Quote(action), http.StatusNotFound)
		return
	}

	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, loop.ErrConflict) {
			status = http.StatusConflict
		}
		s.logger.Warn().Err(err).Str("action", action).Msg("control action rejected")
		writeJSON(w, status, map[string]any{"error": err.Error(), "status": s.ctrl.Status()})
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid message body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if body.Message == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}
	s.ctrl.InjectMessage(body.Message)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleCycles(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	records := []db.CycleRecord{}
	if s.cycles != nil {
		var err error
		records, err = s.cycles.ListCycles(r.Context(), limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if records == nil {
			records = []db.CycleRecord{}
		}
	}
	writeJSON(w, http.StatusOK, records)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
