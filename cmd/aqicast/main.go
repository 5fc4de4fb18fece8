package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	_ "modernc.org/sqlite"

	"github.com/lox/aqicast/internal/api"
	"github.com/lox/aqicast/internal/forecast"
	"github.com/lox/aqicast/internal/ingest"
	"github.com/lox/aqicast/internal/store"
)

type Globals struct {
	DB            string `help:"Path to the SQLite database." default:"data/aqicast.db" env:"AQICAST_DB"`
	ModelPath     string `help:"Path to the model artifact." default:"data/models/ridge.json" env:"AQICAST_MODEL_PATH"`
	Location      string `help:"Location label for forecasts and weather lookups." default:"Delhi" env:"AQICAST_LOCATION"`
	Timezone      string `help:"IANA timezone of the location." default:"Asia/Kolkata" env:"AQICAST_TZ"`
	WeatherAPIKey string `help:"Visual Crossing API key." env:"VISUAL_CROSSING_API_KEY"`
	WAQIToken     string `help:"WAQI API token." env:"WAQI_TOKEN"`
	WAQIStation   string `help:"WAQI station feed identifier." default:"@10124" env:"WAQI_STATION"`
}

type CLI struct {
	Globals

	Serve    ServeCmd    `cmd:"" default:"withargs" help:"Run the API server and the hourly scheduler."`
	Ingest   IngestCmd   `cmd:"" help:"Run one fetch/merge/forecast cycle and exit."`
	Forecast ForecastCmd `cmd:"" help:"Generate and print the 7-day forecast."`
	Retrain  RetrainCmd  `cmd:"" help:"Retrain the model on the full cleaned series."`
}

// App holds the wired components shared by every command.
type App struct {
	store      *store.Store
	scheduler  *ingest.Scheduler
	forecaster *forecast.Forecaster
	loc        *time.Location
	globals    *Globals
}

func newApp(g *Globals) (*App, func(), error) {
	db, err := sql.Open("sqlite", g.DB)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	loc, err := time.LoadLocation(g.Timezone)
	if err != nil {
		log.Printf("warning: could not load timezone %s, using UTC: %v", g.Timezone, err)
		loc = time.UTC
	}

	st := store.New(db, loc)
	if err := st.Migrate(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	log.Println("database migrated")

	weather := ingest.NewWeatherClient(g.WeatherAPIKey, g.Location)
	pollutant := ingest.NewPollutantClient(g.WAQIToken, g.WAQIStation, loc)
	trainer := forecast.NewTrainer(st, g.ModelPath, loc)
	forecaster := forecast.NewForecaster(st, trainer, g.ModelPath, g.Location, loc)
	scheduler := ingest.NewScheduler(st, weather, pollutant, forecaster, trainer, loc)

	cleanup := func() { db.Close() }
	return &App{
		store:      st,
		scheduler:  scheduler,
		forecaster: forecaster,
		loc:        loc,
		globals:    g,
	}, cleanup, nil
}

func (a *App) requireKeys() error {
	if a.globals.WeatherAPIKey == "" {
		return fmt.Errorf("VISUAL_CROSSING_API_KEY required")
	}
	if a.globals.WAQIToken == "" {
		return fmt.Errorf("WAQI_TOKEN required")
	}
	return nil
}

type ServeCmd struct {
	Port   string `help:"HTTP server port." default:"8080" env:"AQICAST_PORT"`
	NoPoll bool   `help:"Disable the scheduler (server only, for local dev)."`
}

func (c *ServeCmd) Run(app *App) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if !c.NoPoll {
		if err := app.requireKeys(); err != nil {
			return err
		}
		go func() {
			if err := app.scheduler.Run(ctx); err != nil {
				log.Printf("scheduler: %v", err)
			}
		}()
	} else {
		log.Println("polling disabled (--no-poll)")
	}

	server := api.NewServer(app.store, app.scheduler, c.Port, app.loc)
	return server.Run(ctx)
}

type IngestCmd struct {
	From string `help:"Backfill weather history from this date (YYYY-MM-DD)."`
}

func (c *IngestCmd) Run(app *App) error {
	if err := app.requireKeys(); err != nil {
		return err
	}
	if c.From != "" {
		return app.scheduler.Backfill(c.From)
	}
	return app.scheduler.RunCycle()
}

type ForecastCmd struct{}

func (c *ForecastCmd) Run(app *App) error {
	entries, err := app.forecaster.NextSevenDays(time.Now())
	if err != nil {
		return err
	}
	if err := app.store.UpsertForecasts(entries); err != nil {
		return fmt.Errorf("persist forecast: %w", err)
	}
	for _, e := range entries {
		fmt.Printf("%s  AQI %.1f\n", e.PredictedDate, e.PredictedAQI)
	}
	return nil
}

type RetrainCmd struct{}

func (c *RetrainCmd) Run(app *App) error {
	return app.scheduler.Retrain()
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("aqicast"),
		kong.Description("AQI ingestion and 7-day forecast service."),
		kong.Configuration(kongdotenv.ENVFileReader, ".env"),
	)

	app, cleanup, err := newApp(&cli.Globals)
	if err != nil {
		log.Fatalf("setup: %v", err)
	}
	defer cleanup()

	if err := ctx.Run(app); err != nil {
		log.Fatalf("%s: %v", ctx.Command(), err)
	}
}
