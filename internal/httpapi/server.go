// Package httpapi exposes read-only training statistics over HTTP.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/ummavi/dqfd/internal/replay"
)

// TrainerStats is the slice of the agent surfaced over HTTP.
type TrainerStats interface {
	Step() int
	AverageQ() float64
	AverageLoss() float64
}

// Server wires HTTP handlers to the running learner.
type Server struct {
	buffer  *replay.Buffer
	trainer TrainerStats
	logger  zerolog.Logger
}

// NewServer constructs a Server instance.
func NewServer(buffer *replay.Buffer, trainer TrainerStats, logger zerolog.Logger) *Server {
	return &Server{
		buffer:  buffer,
		trainer: trainer,
		logger:  logger.With().Str("component", "http").Logger(),
	}
}

// Routes builds the HTTP router for the stats endpoint.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
	})
	return r
}

type statsResponse struct {
	Replay      replay.Stats `json:"replay"`
	Step        int          `json:"step"`
	AverageQ    float64      `json:"average_q"`
	AverageLoss float64      `json:"average_loss"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, statsResponse{
		Replay:      s.buffer.Stats(),
		Step:        s.trainer.Step(),
		AverageQ:    s.trainer.AverageQ(),
		AverageLoss: s.trainer.AverageLoss(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}
