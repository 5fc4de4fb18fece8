package store

import (
	"database/sql"
	"fmt"

	"github.com/lox/aqicast/internal/models"
)

// UpsertForecasts writes a forecast batch keyed on
// (forecast_date, predicted_date). Re-running the forecast on the same
// calendar day overwrites its rows rather than duplicating them. The batch
// is applied in one transaction so a forecast day is never half-written.
func (s *Store) UpsertForecasts(entries []models.ForecastEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, e := range entries {
		if _, err := tx.Exec(`
			INSERT INTO aqi_forecast (forecast_date, predicted_date, predicted_aqi, model_name, location)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(forecast_date, predicted_date) DO UPDATE SET
				predicted_aqi = excluded.predicted_aqi,
				model_name = excluded.model_name,
				location = excluded.location
		`, e.ForecastDate, e.PredictedDate, e.PredictedAQI, e.ModelName, e.Location); err != nil {
			return fmt.Errorf("upsert forecast (%s, %s): %w", e.ForecastDate, e.PredictedDate, err)
		}
	}

	return tx.Commit()
}

// LatestForecast returns all rows for the most recent forecast_date,
// ordered by predicted_date ascending. Returns nil when no forecast has
// been generated yet.
func (s *Store) LatestForecast() ([]models.ForecastEntry, error) {
	var latest sql.NullString
	if err := s.db.QueryRow(`SELECT MAX(forecast_date) FROM aqi_forecast`).Scan(&latest); err != nil {
		return nil, err
	}
	if !latest.Valid {
		return nil, nil
	}

	rows, err := s.db.Query(`
		SELECT forecast_date, predicted_date, predicted_aqi, model_name, location
		FROM aqi_forecast
		WHERE forecast_date = ?
		ORDER BY predicted_date ASC
	`, latest.String)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.ForecastEntry
	for rows.Next() {
		var e models.ForecastEntry
		if err := rows.Scan(&e.ForecastDate, &e.PredictedDate, &e.PredictedAQI, &e.ModelName, &e.Location); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// UpsertEvaluation records one training run's held-out metrics, replacing
// any earlier run from the same evaluation date.
func (s *Store) UpsertEvaluation(m models.EvaluationMetric) error {
	_, err := s.db.Exec(`
		INSERT INTO model_evaluation (eval_date, timestamp, mae, r2, rmse, mape)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(eval_date) DO UPDATE SET
			timestamp = excluded.timestamp,
			mae = excluded.mae,
			r2 = excluded.r2,
			rmse = excluded.rmse,
			mape = excluded.mape
	`, m.EvalDate, m.Timestamp, m.MAE, m.R2, m.RMSE, m.MAPE)
	return err
}

// LatestEvaluation returns the most recent training metrics, or nil if the
// model has never been trained.
func (s *Store) LatestEvaluation() (*models.EvaluationMetric, error) {
	row := s.db.QueryRow(`
		SELECT eval_date, timestamp, mae, r2, rmse, mape
		FROM model_evaluation
		ORDER BY timestamp DESC
		LIMIT 1
	`)

	var m models.EvaluationMetric
	err := row.Scan(&m.EvalDate, &m.Timestamp, &m.MAE, &m.R2, &m.RMSE, &m.MAPE)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}
