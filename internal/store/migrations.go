package store

import (
	"database/sql"
	"fmt"
	"log"
	"time"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "Observation and derived time-series tables",
		SQL: `
CREATE TABLE IF NOT EXISTS weather_data (
    date TEXT PRIMARY KEY,
    station_name TEXT,
    tempmax REAL,
    tempmin REAL,
    temp REAL,
    feelslikemax REAL,
    feelslikemin REAL,
    feelslike REAL,
    dew REAL,
    humidity REAL,
    precip REAL,
    precipprob REAL,
    precipcover REAL,
    preciptype TEXT,
    snow REAL,
    snowdepth REAL,
    windgust REAL,
    windspeed REAL,
    winddir REAL,
    sealevelpressure REAL,
    cloudcover REAL,
    visibility REAL,
    solarradiation REAL,
    solarenergy REAL,
    uvindex REAL,
    severerisk REAL,
    sunrise TEXT,
    sunset TEXT,
    moonphase REAL,
    conditions TEXT,
    description TEXT,
    icon TEXT,
    stations TEXT
);

CREATE TABLE IF NOT EXISTS pollutant_data (
    date TEXT PRIMARY KEY,
    pm25 REAL,
    pm10 REAL,
    o3 REAL,
    no2 REAL,
    so2 REAL,
    co REAL,
    aqi_pm25 REAL,
    aqi_pm10 REAL,
    aqi_o3 REAL,
    aqi_no2 REAL,
    aqi_so2 REAL,
    aqi_co REAL,
    aqi REAL
);

CREATE TABLE IF NOT EXISTS raw_data (
    date TEXT PRIMARY KEY,
    station_name TEXT,
    tempmax REAL,
    tempmin REAL,
    temp REAL,
    feelslikemax REAL,
    feelslikemin REAL,
    feelslike REAL,
    dew REAL,
    humidity REAL,
    precip REAL,
    precipprob REAL,
    precipcover REAL,
    preciptype TEXT,
    snow REAL,
    snowdepth REAL,
    windgust REAL,
    windspeed REAL,
    winddir REAL,
    sealevelpressure REAL,
    cloudcover REAL,
    visibility REAL,
    solarradiation REAL,
    solarenergy REAL,
    uvindex REAL,
    severerisk REAL,
    sunrise TEXT,
    sunset TEXT,
    moonphase REAL,
    conditions TEXT,
    description TEXT,
    icon TEXT,
    stations TEXT,
    pm25 REAL,
    pm10 REAL,
    o3 REAL,
    no2 REAL,
    so2 REAL,
    co REAL,
    aqi_pm25 REAL,
    aqi_pm10 REAL,
    aqi_o3 REAL,
    aqi_no2 REAL,
    aqi_so2 REAL,
    aqi_co REAL,
    aqi REAL
);

CREATE TABLE IF NOT EXISTS cleaned_data (
    date TEXT PRIMARY KEY,
    pm25 REAL,
    pm10 REAL,
    co REAL,
    no2 REAL,
    so2 REAL,
    o3 REAL,
    aqi REAL,
    tempmax REAL,
    tempmin REAL,
    temp REAL,
    humidity REAL,
    dew REAL,
    windspeed REAL,
    winddir REAL,
    windgust REAL,
    precip REAL,
    cloudcover REAL,
    visibility REAL,
    sealevelpressure REAL
);
`,
	},
	{
		Version:     2,
		Description: "Forecast and model evaluation tables",
		SQL: `
CREATE TABLE IF NOT EXISTS aqi_forecast (
    forecast_date TEXT NOT NULL,
    predicted_date TEXT NOT NULL,
    predicted_aqi REAL NOT NULL,
    model_name TEXT,
    location TEXT,
    PRIMARY KEY (forecast_date, predicted_date)
);

CREATE TABLE IF NOT EXISTS model_evaluation (
    eval_date TEXT PRIMARY KEY,
    timestamp DATETIME NOT NULL,
    mae REAL,
    r2 REAL,
    rmse REAL,
    mape REAL
);

CREATE INDEX IF NOT EXISTS idx_forecast_date ON aqi_forecast(forecast_date);
`,
	},
	{
		Version:     3,
		Description: "Ingest run audit table",
		SQL: `
CREATE TABLE IF NOT EXISTS ingest_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at DATETIME NOT NULL,
    finished_at DATETIME,
    source TEXT NOT NULL,
    endpoint TEXT NOT NULL,
    http_status INTEGER,
    response_size_bytes INTEGER,
    records_parsed INTEGER,
    records_stored INTEGER,
    success BOOLEAN NOT NULL DEFAULT FALSE,
    error_message TEXT
);

CREATE INDEX IF NOT EXISTS idx_ingest_runs_started ON ingest_runs(started_at);
`,
	},
}

func (s *Store) Migrate() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("ensure migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("get applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		log.Printf("migrations: applying %d - %s", m.Version, m.Description)

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Description, time.Now().UTC(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

func (s *Store) ensureMigrationsTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME
		)
	`)
	return err
}

func (s *Store) getAppliedMigrations() (map[int]bool, error) {
	rows, err := s.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (s *Store) MigrationVersion() (int, error) {
	var version sql.NullInt64
	err := s.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}
