// Package httpapi implements the HTTP command surface of §6.1, routed
// with gorilla/mux exactly as the teacher's internal/http-server.Server
// does, generalized from the single GET/POST pair to the full
// start/stop/pause/resume/simulate/state/profiles/logs surface plus the
// WebSocket upgrade and Prometheus metrics endpoints.
package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"module/internal/firinglog"
	"module/internal/kilnerr"
	"module/internal/oven"
	"module/internal/profilestore"
)

// Server is the command-surface HTTP handler.
type Server struct {
	router   *mux.Router
	oven     *oven.Oven
	profiles *profilestore.Store
	logs     *firinglog.Writer
	ws       http.Handler

	infoLog *log.Logger
	errLog  *log.Logger
}

// NewServer constructs a Server and wires its routes.
func NewServer(ov *oven.Oven, profiles *profilestore.Store, logs *firinglog.Writer, ws http.Handler, infoLog, errLog *log.Logger) *Server {
	s := &Server{oven: ov, profiles: profiles, logs: logs, ws: ws, infoLog: infoLog, errLog: errLog}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router = mux.NewRouter()
	s.router.HandleFunc("/start", s.handleStart()).Methods(http.MethodPost)
	s.router.HandleFunc("/stop", s.handleStop()).Methods(http.MethodPost)
	s.router.HandleFunc("/pause", s.handlePause()).Methods(http.MethodPost)
	s.router.HandleFunc("/resume", s.handleResume()).Methods(http.MethodPost)
	s.router.HandleFunc("/simulate-temp", s.handleSimulate()).Methods(http.MethodPost)
	s.router.HandleFunc("/state", s.handleState()).Methods(http.MethodGet)
	s.router.HandleFunc("/profiles", s.handleProfiles()).Methods(http.MethodGet)
	s.router.HandleFunc("/logs/latest", s.handleLatestLog()).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	s.router.Handle("/ws", s.ws).Methods(http.MethodGet)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleStart() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("profile")
		if name == "" {
			writeError(w, http.StatusBadRequest, errors.New("missing profile query parameter"))
			return
		}
		if err := s.oven.Start(name); err != nil {
			writeCommandError(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func (s *Server) handleStop() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.oven.Stop(); err != nil {
			writeCommandError(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func (s *Server) handlePause() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.oven.Pause(); err != nil {
			writeCommandError(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func (s *Server) handleResume() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.oven.Resume(); err != nil {
			writeCommandError(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func (s *Server) handleSimulate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := strconv.ParseFloat(r.URL.Query().Get("value"), 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := s.oven.SetSimulatedTemperature(v); err != nil {
			writeCommandError(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func (s *Server) handleState() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.oven.GetState())
	}
}

func (s *Server) handleProfiles() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.profiles.List())
	}
}

func (s *Server) handleLatestLog() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path, ok, err := s.logs.Latest()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if !ok {
			writeError(w, http.StatusNotFound, errors.New("no firing logs yet"))
			return
		}
		http.ServeFile(w, r, path)
	}
}

func writeCommandError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, kilnerr.ErrNoSuchProfile):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, kilnerr.ErrInvalidProfile):
		writeError(w, http.StatusUnprocessableEntity, err)
	case errors.Is(err, kilnerr.ErrIllegalState):
		writeError(w, http.StatusConflict, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
