// Package api serves the JSON surface: forecasts, evaluation metrics,
// cleaned history and the manual ingest/retrain triggers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lox/aqicast/internal/forecast"
	"github.com/lox/aqicast/internal/ingest"
	"github.com/lox/aqicast/internal/models"
	"github.com/lox/aqicast/internal/store"
)

type Server struct {
	store     *store.Store
	scheduler *ingest.Scheduler
	port      string
	loc       *time.Location
}

func NewServer(store *store.Store, scheduler *ingest.Scheduler, port string, loc *time.Location) *Server {
	return &Server{
		store:     store,
		scheduler: scheduler,
		port:      port,
		loc:       loc,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/forecast", s.handleForecast)
	mux.HandleFunc("/api/evaluation", s.handleEvaluation)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/ingest-health", s.handleIngestHealth)
	mux.HandleFunc("/api/ingest", s.handleIngest)
	mux.HandleFunc("/api/retrain", s.handleRetrain)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    ":" + s.port,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Printf("api: listening on :%s", s.port)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := s.store.Ping(); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.LatestForecast()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		http.Error(w, "no forecast available", http.StatusNotFound)
		return
	}

	views := make([]ForecastView, len(entries))
	for i, e := range entries {
		views[i] = newForecastView(e)
	}
	writeJSON(w, views)
}

func (s *Server) handleEvaluation(w http.ResponseWriter, r *http.Request) {
	metric, err := s.store.LatestEvaluation()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if metric == nil {
		http.Error(w, "no evaluation recorded", http.StatusNotFound)
		return
	}
	writeJSON(w, newEvaluationView(*metric))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	days := queryDays(r, 30)
	since := time.Now().In(s.loc).AddDate(0, 0, -days).Format(models.DateLayout)

	records, err := s.store.CleanedSince(since)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	views := make([]HistoryView, len(records))
	for i, rec := range records {
		views[i] = newHistoryView(rec)
	}
	writeJSON(w, views)
}

func (s *Server) handleIngestHealth(w http.ResponseWriter, r *http.Request) {
	days := queryDays(r, 7)
	summaries, err := s.store.GetIngestHealth(days)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, summaries)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.scheduler.RunCycle(); err != nil {
		if errors.Is(err, forecast.ErrDataShape) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, map[string]string{"status": "ingested"})
}

func (s *Server) handleRetrain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.scheduler.Retrain(); err != nil {
		if errors.Is(err, forecast.ErrDataShape) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"status": "retrained"})
}

func queryDays(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("days")
	if raw == "" {
		return fallback
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days <= 0 {
		return fallback
	}
	return days
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
