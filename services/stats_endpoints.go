package services

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

type StatsEndpoints struct {
	stats *StatsService
}

func NewStatsEndpoints(stats *StatsService) *StatsEndpoints {
	return &StatsEndpoints{
		stats: stats,
	}
}

func (e *StatsEndpoints) RegisterRoutes(r chi.Router) {
	r.Route("/stats", func(r chi.Router) {
		r.Get("/", e.GetStatsHandler)
		r.Post("/solves", e.RecordSolveHandler)
	})
}

func (e *StatsEndpoints) GetStatsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "User not found in context", http.StatusInternalServerError)
		return
	}

	stats, err := e.stats.Stats(r.Context(), user.ID)
	if err != nil {
		slog.Error("Failed to get user stats", "error", err, "user_id", user.ID)
		http.Error(w, "Failed to get stats", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"stats": stats,
	})
}

func (e *StatsEndpoints) RecordSolveHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "User not found in context", http.StatusInternalServerError)
		return
	}

	stats, err := e.stats.RecordSolve(r.Context(), user.ID, time.Now())
	if err != nil {
		slog.Error("Failed to record solve", "error", err, "user_id", user.ID)
		http.Error(w, "Failed to record solve", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"stats":   stats,
		"message": "Solve recorded",
	})
}
