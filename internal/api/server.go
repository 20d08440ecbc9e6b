package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bryanchriswhite/captain/internal/codec"
	"github.com/bryanchriswhite/captain/internal/config"
	"github.com/bryanchriswhite/captain/internal/extension"
	"github.com/bryanchriswhite/captain/internal/handler"
	"github.com/bryanchriswhite/captain/internal/logger"
	"github.com/bryanchriswhite/captain/internal/region"
	"github.com/bryanchriswhite/captain/internal/workflow"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const version = "0.1.0"

// Server represents the HTTP control API
type Server struct {
	router      *mux.Router
	workflows   *workflow.Set
	configMgr   *config.Manager
	stillCodecs *codec.Registry
	videoCodecs *codec.Registry
	handlers    *handler.Registry
	hub         *Hub
	preview     http.Handler
	upgrader    websocket.Upgrader
	log         *zerolog.Logger
	httpServer  *http.Server
}

// Deps groups the services the server exposes
type Deps struct {
	Workflows   *workflow.Set
	Config      *config.Manager
	StillCodecs *codec.Registry
	VideoCodecs *codec.Registry
	Handlers    *handler.Registry
	Hub         *Hub
	// Preview serves the live desktop stream; the route is omitted when nil
	Preview http.Handler
}

// NewServer creates a new API server
func NewServer(d Deps) *Server {
	s := &Server{
		router:      mux.NewRouter(),
		workflows:   d.Workflows,
		configMgr:   d.Config,
		stillCodecs: d.StillCodecs,
		videoCodecs: d.VideoCodecs,
		handlers:    d.Handlers,
		hub:         d.Hub,
		preview:     d.Preview,
		log:         logger.WithComponent("api"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	if s.hub == nil {
		s.hub = NewHub()
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Workflows
	api.HandleFunc("/workflows", s.handleListWorkflows).Methods("GET")
	api.HandleFunc("/workflows/{name}", s.handleGetWorkflow).Methods("GET")
	api.HandleFunc("/workflows/{name}", s.handlePutWorkflow).Methods("PUT")
	api.HandleFunc("/workflows/{name}", s.handleDeleteWorkflow).Methods("DELETE")
	api.HandleFunc("/workflows/{name}/start", s.handleStart).Methods("POST")
	api.HandleFunc("/workflows/{name}/intents/{intent}", s.handleIntent).Methods("POST")
	api.HandleFunc("/workflows/{name}/finish", s.handleFinish).Methods("POST")

	// Extensions
	api.HandleFunc("/codecs", s.handleCodecs).Methods("GET")
	api.HandleFunc("/handlers", s.handleHandlers).Methods("GET")

	// Configuration
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")

	// Events
	api.HandleFunc("/events", s.handleEvents)

	if s.preview != nil {
		api.Handle("/preview", s.preview).Methods("GET")
	}

	// Health check
	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	s.router.Handle("/metrics", promhttp.Handler())
}

// Handler returns the HTTP handler with CORS applied
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Hub returns the event hub workflows publish to
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start serves HTTP until Shutdown is called
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info().Str("addr", addr).Msgf("Starting server on http://localhost%s", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// enableCORS adds CORS headers
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type workflowStatus struct {
	config.Workflow
	Phase   string   `json:"phase"`
	RunID   string   `json:"run_id,omitempty"`
	Outputs []string `json:"outputs,omitempty"`
}

type startRequest struct {
	Region    string `json:"region"`
	Container string `json:"container"`
}

// HTTP Handlers

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	wfs := s.configMgr.Workflows()
	out := make([]workflowStatus, 0, len(wfs))
	for _, wf := range wfs {
		out = append(out, workflowStatus{Workflow: wf, Phase: s.workflows.Phase(wf.Name).String()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	wf, err := s.configMgr.Workflow(name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, workflowStatus{Workflow: wf, Phase: s.workflows.Phase(name).String()})
}

func (s *Server) handlePutWorkflow(w http.ResponseWriter, r *http.Request) {
	var wf config.Workflow
	if err := json.NewDecoder(r.Body).Decode(&wf); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	wf.Name = mux.Vars(r)["name"]

	if err := s.configMgr.SetWorkflow(wf); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) handleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := s.configMgr.RemoveWorkflow(mux.Vars(r)["name"]); err != nil {
		s.writeError(w, err)
		return
	}
	s.workflows.Sync(s.configMgr.Get())
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	if req.Container == "" {
		req.Container = "api"
	}

	ctx := r.Context()
	if req.Region != "" {
		area, err := region.ParseRect(req.Region)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		ctx = region.WithArea(ctx, area)
	}

	wf, err := s.workflows.Get(mux.Vars(r)["name"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := wf.Start(ctx, req.Container); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusOf(wf))
}

func (s *Server) handleIntent(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	intent, err := workflow.ParseIntent(vars["intent"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	wf, err := s.workflows.Get(vars["name"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := wf.HandleIntent(intent); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusOf(wf))
}

func (s *Server) handleFinish(w http.ResponseWriter, r *http.Request) {
	wf, err := s.workflows.Get(mux.Vars(r)["name"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := wf.Finish(); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusOf(wf))
}

func (s *Server) handleCodecs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]extension.Descriptor{
		"still": s.stillCodecs.Enumerate(),
		"video": s.videoCodecs.Enumerate(),
	})
}

func (s *Server) handleHandlers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.handlers.Enumerate())
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.configMgr.Get())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("WebSocket upgrade error")
		return
	}
	defer conn.Close()

	events := s.hub.Subscribe()
	defer s.hub.Unsubscribe(events)

	// detect client disconnects
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case e := <-events:
			if err := conn.WriteJSON(e); err != nil {
				s.log.Debug().Err(err).Msg("WebSocket write error")
				return
			}
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": version,
	})
}

func statusOf(wf *workflow.Workflow) workflowStatus {
	st := workflowStatus{
		Workflow: wf.Config(),
		Phase:    wf.Phase().String(),
		RunID:    wf.RunID(),
	}
	for _, u := range wf.Outputs() {
		st.Outputs = append(st.Outputs, u.String())
	}
	return st
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, config.ErrWorkflowNotFound):
		status = http.StatusNotFound
	case errors.Is(err, config.ErrInvalidWorkflow):
		status = http.StatusBadRequest
	case errors.Is(err, workflow.ErrBusy),
		errors.Is(err, workflow.ErrSessionActive),
		errors.Is(err, workflow.ErrNotRecording),
		errors.Is(err, workflow.ErrNoSession):
		status = http.StatusConflict
	case errors.Is(err, workflow.ErrNotMultiFrame),
		errors.Is(err, extension.ErrNotRegistered),
		errors.Is(err, region.ErrNotImplemented):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("Request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
