package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lox/aqicast/internal/forecast"
	"github.com/lox/aqicast/internal/metrics"
	"github.com/lox/aqicast/internal/models"
	"github.com/lox/aqicast/internal/store"
)

const (
	ingestSchedule  = "@every 1h"
	retrainSchedule = "0 3 * * *"
)

// Scheduler drives the hourly fetch/merge/forecast cycle and the daily
// retrain job.
type Scheduler struct {
	store      *store.Store
	weather    *WeatherClient
	pollutant  *PollutantClient
	merger     *Merger
	forecaster *forecast.Forecaster
	trainer    *forecast.Trainer
	loc        *time.Location
	cron       *cron.Cron
}

func NewScheduler(s *store.Store, weather *WeatherClient, pollutant *PollutantClient, forecaster *forecast.Forecaster, trainer *forecast.Trainer, loc *time.Location) *Scheduler {
	return &Scheduler{
		store:      s,
		weather:    weather,
		pollutant:  pollutant,
		merger:     NewMerger(s),
		forecaster: forecaster,
		trainer:    trainer,
		loc:        loc,
		cron:       cron.New(cron.WithLocation(loc)),
	}
}

// Run executes one cycle immediately, then hands off to cron until the
// context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.RunCycle(); err != nil {
		log.Printf("scheduler: initial cycle: %v", err)
	}

	if _, err := s.cron.AddFunc(ingestSchedule, func() {
		if err := s.RunCycle(); err != nil {
			log.Printf("scheduler: cycle: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule ingest: %w", err)
	}
	if _, err := s.cron.AddFunc(retrainSchedule, func() {
		if err := s.Retrain(); err != nil {
			log.Printf("scheduler: retrain: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule retrain: %w", err)
	}

	s.cron.Start()
	<-ctx.Done()
	log.Println("scheduler: shutting down")
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	return nil
}

// RunCycle fetches today's observations from both providers, merges them
// into the store and regenerates the 7-day forecast. A single provider
// failure is logged and audited; the cycle continues with whatever was
// fetched. Both providers failing aborts the cycle.
func (s *Scheduler) RunCycle() error {
	now := time.Now()
	today := now.In(s.loc).Format(models.DateLayout)

	weather, weatherRun, weatherErr := s.fetchWeather(today, today)
	pollutants, pollutantRun, pollutantErr := s.fetchPollutants(now)

	if weatherErr != nil && pollutantErr != nil {
		return fmt.Errorf("both providers failed: %v; %v", weatherErr, pollutantErr)
	}

	written, err := s.merger.Ingest(weather, pollutants)
	if err != nil {
		err = fmt.Errorf("merge: %w", err)
		s.completeRun(weatherRun, 0, err)
		s.completeRun(pollutantRun, 0, err)
		return err
	}
	s.completeRun(weatherRun, len(weather), nil)
	s.completeRun(pollutantRun, len(pollutants), nil)
	log.Printf("scheduler: merged %d dates", written)

	return s.generateForecast(now)
}

// Backfill fetches the weather history from a past date through today and
// merges it alongside the current pollutant reading.
func (s *Scheduler) Backfill(from string) error {
	if _, err := time.Parse(models.DateLayout, from); err != nil {
		return fmt.Errorf("parse from date: %w", err)
	}
	now := time.Now()
	today := now.In(s.loc).Format(models.DateLayout)

	log.Printf("scheduler: backfilling %s..%s", from, today)
	weather, weatherRun, err := s.fetchWeather(from, today)
	if err != nil {
		return err
	}

	pollutants, pollutantRun, pollutantErr := s.fetchPollutants(now)
	if pollutantErr != nil {
		log.Printf("scheduler: fetch pollutants: %v", pollutantErr)
	}

	written, err := s.merger.Ingest(weather, pollutants)
	if err != nil {
		err = fmt.Errorf("merge: %w", err)
		s.completeRun(weatherRun, 0, err)
		s.completeRun(pollutantRun, 0, err)
		return err
	}
	s.completeRun(weatherRun, len(weather), nil)
	s.completeRun(pollutantRun, len(pollutants), nil)
	log.Printf("scheduler: backfilled %d dates", written)
	return nil
}

// Retrain fits a fresh model on the full cleaned series and records its
// held-out metrics.
func (s *Scheduler) Retrain() error {
	metric, err := s.trainer.Train()
	if err != nil {
		metrics.TrainingRuns.WithLabelValues("error").Inc()
		return err
	}
	metrics.TrainingRuns.WithLabelValues("ok").Inc()
	log.Printf("scheduler: retrained, MAE %.2f RMSE %.2f", metric.MAE, metric.RMSE)
	return nil
}

// fetchWeather and fetchPollutants complete the audit run immediately on a
// fetch failure. On success the run is returned open so records_stored can
// be recorded once the merge has actually landed the rows.
func (s *Scheduler) fetchWeather(from, to string) ([]models.WeatherObservation, *store.IngestRun, error) {
	run, _ := s.store.StartIngestRun("visualcrossing", "timeline")
	observations, fetchResult, err := s.weather.FetchRange(from, to)
	recordFetch(run, fetchResult)
	if err != nil {
		s.completeRun(run, 0, err)
		log.Printf("scheduler: fetch weather: %v", err)
		return nil, nil, err
	}
	return observations, run, nil
}

func (s *Scheduler) fetchPollutants(now time.Time) ([]models.PollutantObservation, *store.IngestRun, error) {
	run, _ := s.store.StartIngestRun("waqi", "feed")
	obs, fetchResult, err := s.pollutant.FetchCurrent(now)
	recordFetch(run, fetchResult)
	if err != nil {
		s.completeRun(run, 0, err)
		log.Printf("scheduler: fetch pollutants: %v", err)
		return nil, nil, err
	}
	return []models.PollutantObservation{*obs}, run, nil
}

func recordFetch(run *store.IngestRun, fetchResult *FetchResult) {
	if run == nil || fetchResult == nil {
		return
	}
	run.HTTPStatus = sql.NullInt64{Int64: int64(fetchResult.HTTPStatus), Valid: fetchResult.HTTPStatus > 0}
	run.ResponseSizeBytes = sql.NullInt64{Int64: int64(fetchResult.ResponseSize), Valid: fetchResult.ResponseSize > 0}
	run.RecordsParsed = sql.NullInt64{Int64: int64(fetchResult.RecordCount), Valid: true}
}

func (s *Scheduler) completeRun(run *store.IngestRun, stored int, err error) {
	if run == nil {
		return
	}
	run.Success = err == nil
	if err != nil {
		run.ErrorMessage = sql.NullString{String: err.Error(), Valid: true}
	} else {
		run.RecordsStored = sql.NullInt64{Int64: int64(stored), Valid: true}
	}
	if err := s.store.CompleteIngestRun(run); err != nil {
		log.Printf("scheduler: complete ingest run: %v", err)
	}
}

func (s *Scheduler) generateForecast(now time.Time) error {
	entries, err := s.forecaster.NextSevenDays(now)
	if err != nil {
		return fmt.Errorf("forecast: %w", err)
	}
	if err := s.store.UpsertForecasts(entries); err != nil {
		return fmt.Errorf("persist forecast: %w", err)
	}
	metrics.ForecastsGenerated.Inc()
	log.Printf("scheduler: forecast stored for %s through %s", entries[0].PredictedDate, entries[len(entries)-1].PredictedDate)
	return nil
}
