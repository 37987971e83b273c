// Package server exposes the Trendfinder engine over HTTP: the query
// endpoint itself, a gateway-event invoke endpoint, health and metrics.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"trendfinder/internal/contract"
	"trendfinder/internal/engine"
)

// Config for the HTTP handler.
type Config struct {
	Engine engine.Engine
	CORS   bool
	// Metrics, when non-nil, is mounted at /metrics.
	Metrics http.Handler
}

type server struct {
	engine engine.Engine
	cors   bool
}

// New returns the HTTP handler exposing the Trendfinder API.
func New(cfg Config) http.Handler {
	s := &server{engine: cfg.Engine, cors: cfg.CORS}

	r := chi.NewRouter()
	r.Get("/trendfinder", s.handleQuery)
	r.Options("/trendfinder", s.handlePreflight)
	r.Post("/invoke", s.handleInvoke)
	r.Get("/healthz", s.handleHealth)
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}
	return r
}

func (s *server) handleQuery(w http.ResponseWriter, r *http.Request) {
	params := contract.FromRawQuery(r.URL.RawQuery)

	corrID := r.Header.Get("X-Correlation-Id")
	if corrID == "" {
		corrID = uuid.NewString()
	}
	debugKey := r.Header.Get("X-Debug-Key")
	if debugKey == "" {
		debugKey = params["x-debug-key"]
	}

	res := s.engine.Handle(r.Context(), engine.Request{
		Params:        params,
		RawQuery:      r.URL.RawQuery,
		Path:          r.URL.Path,
		CorrelationID: corrID,
		DebugKey:      debugKey,
	})
	s.writeResult(w, res)
}

func (s *server) handlePreflight(w http.ResponseWriter, r *http.Request) {
	s.setCommonHeaders(w.Header(), "")
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// writeResult serializes the engine result. The body is marshalled before
// the status line goes out so a serialization failure can still become a
// proper 500.
func (s *server) writeResult(w http.ResponseWriter, res engine.Result) {
	body, err := json.Marshal(res.Body)
	if err != nil {
		res.Status = http.StatusInternalServerError
		body, _ = json.Marshal(engine.ErrorBody{
			Error:         "internal_error",
			Message:       "An unexpected error occurred",
			CorrelationID: res.CorrelationID,
		})
	}
	s.setCommonHeaders(w.Header(), res.CorrelationID)
	w.WriteHeader(res.Status)
	w.Write(body)
}

func (s *server) setCommonHeaders(h http.Header, corrID string) {
	h.Set("Content-Type", "application/json")
	if s.cors {
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET,OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type,Authorization,X-Debug-Key,X-Correlation-Id")
	}
	if corrID != "" {
		h.Set("X-Correlation-Id", corrID)
	}
}
