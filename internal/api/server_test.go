package api_test

import (
	"database/sql"
	"encoding/json"
	"math"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lox/aqicast/internal/api"
	"github.com/lox/aqicast/internal/forecast"
	"github.com/lox/aqicast/internal/ingest"
	"github.com/lox/aqicast/internal/models"
	"github.com/lox/aqicast/internal/store"
)

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	s := store.New(db, time.UTC)
	if err := s.Migrate(); err != nil {
		t.Fatal(err)
	}
	return s
}

func newTestServer(t *testing.T, s *store.Store) *api.Server {
	t.Helper()
	trainer := forecast.NewTrainer(s, filepath.Join(t.TempDir(), "ridge.json"), s.Location())
	scheduler := ingest.NewScheduler(s, nil, nil, nil, trainer, s.Location())
	return api.NewServer(s, scheduler, "8080", s.Location())
}

func nf(f float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: f, Valid: true}
}

func seedCleaned(t *testing.T, s *store.Store, start time.Time, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		date := start.AddDate(0, 0, i).Format(models.DateLayout)
		c := &models.CleanedRecord{
			Date:             date,
			PM25:             nf(40 + float64(i%10)),
			PM10:             nf(60),
			CO:               nf(0.5),
			NO2:              nf(20),
			SO2:              nf(10),
			O3:               nf(30),
			AQI:              nf(100 + 15*math.Sin(float64(i)/4)),
			TempMax:          nf(25),
			TempMin:          nf(10),
			Temp:             nf(18),
			Humidity:         nf(50),
			Dew:              nf(8),
			WindSpeed:        nf(12),
			WindDir:          nf(180),
			WindGust:         nf(20),
			CloudCover:       nf(30),
			Visibility:       nf(5),
			SeaLevelPressure: nf(1012),
		}
		if err := s.ReplaceDay(date, nil, nil, nil, c); err != nil {
			t.Fatalf("seed %s: %v", date, err)
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()
	s := setupTestStore(t)
	srv := newTestServer(t, s)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status"`) {
		t.Error("expected status field in JSON response")
	}
}

func TestForecastEndpoint_Empty(t *testing.T) {
	t.Parallel()
	s := setupTestStore(t)
	srv := newTestServer(t, s)

	req := httptest.NewRequest("GET", "/api/forecast", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != 404 {
		t.Fatalf("expected 404 with no forecast, got %d", w.Code)
	}
}

func TestForecastEndpoint_ReturnsLatestRun(t *testing.T) {
	t.Parallel()
	s := setupTestStore(t)
	srv := newTestServer(t, s)

	for _, forecastDate := range []string{"2024-01-01", "2024-01-02"} {
		base, _ := time.Parse(models.DateLayout, forecastDate)
		var entries []models.ForecastEntry
		for i := 1; i <= 7; i++ {
			entries = append(entries, models.ForecastEntry{
				ForecastDate:  forecastDate,
				PredictedDate: base.AddDate(0, 0, i).Format(models.DateLayout),
				PredictedAQI:  float64(100 + i),
				ModelName:     "ridge_v1",
				Location:      "Delhi",
			})
		}
		if err := s.UpsertForecasts(entries); err != nil {
			t.Fatal(err)
		}
	}

	req := httptest.NewRequest("GET", "/api/forecast", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var views []api.ForecastView
	if err := json.Unmarshal(w.Body.Bytes(), &views); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(views) != 7 {
		t.Fatalf("got %d entries, want 7", len(views))
	}
	for _, v := range views {
		if v.ForecastDate != "2024-01-02" {
			t.Errorf("forecast_date = %s, want the latest run", v.ForecastDate)
		}
	}
	if views[0].PredictedDate != "2024-01-03" || views[6].PredictedDate != "2024-01-09" {
		t.Errorf("predicted dates not ordered: %s .. %s", views[0].PredictedDate, views[6].PredictedDate)
	}
}

func TestEvaluationEndpoint(t *testing.T) {
	t.Parallel()
	s := setupTestStore(t)
	srv := newTestServer(t, s)

	req := httptest.NewRequest("GET", "/api/evaluation", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != 404 {
		t.Fatalf("expected 404 with no evaluation, got %d", w.Code)
	}

	if err := s.UpsertEvaluation(models.EvaluationMetric{
		Timestamp: time.Now().UTC(),
		EvalDate:  "2024-01-01",
		MAE:       12.5,
		R2:        0.8,
		RMSE:      16.0,
		MAPE:      9.1,
	}); err != nil {
		t.Fatal(err)
	}

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var view api.EvaluationView
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.MAE != 12.5 || view.EvalDate != "2024-01-01" {
		t.Errorf("view = %+v", view)
	}
}

func TestHistoryEndpoint_NullsStayNull(t *testing.T) {
	t.Parallel()
	s := setupTestStore(t)
	srv := newTestServer(t, s)

	today := time.Now().UTC().Format(models.DateLayout)
	c := &models.CleanedRecord{
		Date: today,
		PM25: nf(42),
		// windgust deliberately absent
	}
	if err := s.ReplaceDay(today, nil, nil, nil, c); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("GET", "/api/history?days=7", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var views []api.HistoryView
	if err := json.Unmarshal(w.Body.Bytes(), &views); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("got %d rows, want 1", len(views))
	}
	if views[0].PM25 == nil || *views[0].PM25 != 42 {
		t.Errorf("pm25 = %v, want 42", views[0].PM25)
	}
	if views[0].WindGust != nil {
		t.Errorf("windgust = %v, want null", *views[0].WindGust)
	}
}

func TestHistoryEndpoint_DaysFilter(t *testing.T) {
	t.Parallel()
	s := setupTestStore(t)
	srv := newTestServer(t, s)

	now := time.Now().UTC()
	seedCleaned(t, s, now.AddDate(0, 0, -9), 10)

	req := httptest.NewRequest("GET", "/api/history?days=5", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	var views []api.HistoryView
	if err := json.Unmarshal(w.Body.Bytes(), &views); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// Inclusive since boundary: today plus the previous five days.
	if len(views) != 6 {
		t.Errorf("got %d rows for days=5, want 6", len(views))
	}
}

func TestIngestEndpoint_RequiresPost(t *testing.T) {
	t.Parallel()
	s := setupTestStore(t)
	srv := newTestServer(t, s)

	req := httptest.NewRequest("GET", "/api/ingest", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != 405 {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}

func TestRetrainEndpoint(t *testing.T) {
	t.Parallel()
	s := setupTestStore(t)
	srv := newTestServer(t, s)

	req := httptest.NewRequest("POST", "/api/retrain", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != 409 {
		t.Fatalf("expected 409 with no training data, got %d", w.Code)
	}

	seedCleaned(t, s, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 60)

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != 200 {
		t.Fatalf("expected 200 after seeding, got %d: %s", w.Code, w.Body.String())
	}

	metric, err := s.LatestEvaluation()
	if err != nil {
		t.Fatal(err)
	}
	if metric == nil {
		t.Error("expected evaluation row after retrain")
	}
}

func TestIngestHealthEndpoint(t *testing.T) {
	t.Parallel()
	s := setupTestStore(t)
	srv := newTestServer(t, s)

	run, err := s.StartIngestRun("waqi", "feed")
	if err != nil {
		t.Fatal(err)
	}
	run.Success = true
	run.RecordsStored = sql.NullInt64{Int64: 1, Valid: true}
	if err := s.CompleteIngestRun(run); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("GET", "/api/ingest-health?days=7", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "waqi") {
		t.Error("expected waqi source in summary")
	}
}
