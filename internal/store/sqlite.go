// Package store persists the AQI time series in SQLite: per-date observation
// tables, the derived raw/cleaned projections, forecasts and model
// evaluation metrics.
package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lox/aqicast/internal/models"
)

type Store struct {
	db  *sql.DB
	loc *time.Location
}

func New(db *sql.DB, loc *time.Location) *Store {
	return &Store{db: db, loc: loc}
}

// Location returns the deployment time zone all dates are keyed in.
func (s *Store) Location() *time.Location {
	return s.loc
}

func (s *Store) Ping() error {
	return s.db.Ping()
}

type scanner interface {
	Scan(dest ...any) error
}

const weatherCols = `date, station_name, tempmax, tempmin, temp, feelslikemax, feelslikemin, feelslike,
	dew, humidity, precip, precipprob, precipcover, preciptype, snow, snowdepth,
	windgust, windspeed, winddir, sealevelpressure, cloudcover, visibility,
	solarradiation, solarenergy, uvindex, severerisk, sunrise, sunset, moonphase,
	conditions, description, icon, stations`

func weatherArgs(w *models.WeatherObservation) []any {
	return []any{
		w.Date, w.StationName, w.TempMax, w.TempMin, w.Temp, w.FeelsLikeMax, w.FeelsLikeMin, w.FeelsLike,
		w.Dew, w.Humidity, w.Precip, w.PrecipProb, w.PrecipCover, w.PrecipType, w.Snow, w.SnowDepth,
		w.WindGust, w.WindSpeed, w.WindDir, w.SeaLevelPressure, w.CloudCover, w.Visibility,
		w.SolarRadiation, w.SolarEnergy, w.UVIndex, w.SevereRisk, w.Sunrise, w.Sunset, w.MoonPhase,
		w.Conditions, w.Description, w.Icon, w.Stations,
	}
}

func scanWeather(row scanner) (*models.WeatherObservation, error) {
	var w models.WeatherObservation
	err := row.Scan(
		&w.Date, &w.StationName, &w.TempMax, &w.TempMin, &w.Temp, &w.FeelsLikeMax, &w.FeelsLikeMin, &w.FeelsLike,
		&w.Dew, &w.Humidity, &w.Precip, &w.PrecipProb, &w.PrecipCover, &w.PrecipType, &w.Snow, &w.SnowDepth,
		&w.WindGust, &w.WindSpeed, &w.WindDir, &w.SeaLevelPressure, &w.CloudCover, &w.Visibility,
		&w.SolarRadiation, &w.SolarEnergy, &w.UVIndex, &w.SevereRisk, &w.Sunrise, &w.Sunset, &w.MoonPhase,
		&w.Conditions, &w.Description, &w.Icon, &w.Stations,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

const pollutantCols = `date, pm25, pm10, o3, no2, so2, co,
	aqi_pm25, aqi_pm10, aqi_o3, aqi_no2, aqi_so2, aqi_co, aqi`

func pollutantArgs(p *models.PollutantObservation) []any {
	return []any{
		p.Date, p.PM25, p.PM10, p.O3, p.NO2, p.SO2, p.CO,
		p.AQIPM25, p.AQIPM10, p.AQIO3, p.AQINO2, p.AQISO2, p.AQICO, p.AQI,
	}
}

func scanPollutant(row scanner) (*models.PollutantObservation, error) {
	var p models.PollutantObservation
	err := row.Scan(
		&p.Date, &p.PM25, &p.PM10, &p.O3, &p.NO2, &p.SO2, &p.CO,
		&p.AQIPM25, &p.AQIPM10, &p.AQIO3, &p.AQINO2, &p.AQISO2, &p.AQICO, &p.AQI,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

const cleanedCols = `date, pm25, pm10, co, no2, so2, o3, aqi,
	tempmax, tempmin, temp, humidity, dew, windspeed, winddir, windgust,
	precip, cloudcover, visibility, sealevelpressure`

func cleanedArgs(c *models.CleanedRecord) []any {
	return []any{
		c.Date, c.PM25, c.PM10, c.CO, c.NO2, c.SO2, c.O3, c.AQI,
		c.TempMax, c.TempMin, c.Temp, c.Humidity, c.Dew, c.WindSpeed, c.WindDir, c.WindGust,
		c.Precip, c.CloudCover, c.Visibility, c.SeaLevelPressure,
	}
}

func scanCleaned(row scanner) (*models.CleanedRecord, error) {
	var c models.CleanedRecord
	err := row.Scan(
		&c.Date, &c.PM25, &c.PM10, &c.CO, &c.NO2, &c.SO2, &c.O3, &c.AQI,
		&c.TempMax, &c.TempMin, &c.Temp, &c.Humidity, &c.Dew, &c.WindSpeed, &c.WindDir, &c.WindGust,
		&c.Precip, &c.CloudCover, &c.Visibility, &c.SeaLevelPressure,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// GetWeatherByDate returns the weather row for a date, or nil if absent.
func (s *Store) GetWeatherByDate(date string) (*models.WeatherObservation, error) {
	row := s.db.QueryRow(`SELECT `+weatherCols+` FROM weather_data WHERE date = ?`, date)
	w, err := scanWeather(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

// GetPollutantByDate returns the pollutant row for a date, or nil if absent.
func (s *Store) GetPollutantByDate(date string) (*models.PollutantObservation, error) {
	row := s.db.QueryRow(`SELECT `+pollutantCols+` FROM pollutant_data WHERE date = ?`, date)
	p, err := scanPollutant(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetCleanedByDate returns the cleaned row for a date, or nil if absent.
func (s *Store) GetCleanedByDate(date string) (*models.CleanedRecord, error) {
	row := s.db.QueryRow(`SELECT `+cleanedCols+` FROM cleaned_data WHERE date = ?`, date)
	c, err := scanCleaned(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// CleanedSeries returns the full cleaned time series ordered by date
// ascending. The PRIMARY KEY on date guarantees it is duplicate-free,
// which the feature engineering depends on.
func (s *Store) CleanedSeries() ([]models.CleanedRecord, error) {
	rows, err := s.db.Query(`SELECT ` + cleanedCols + ` FROM cleaned_data ORDER BY date ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.CleanedRecord
	for rows.Next() {
		c, err := scanCleaned(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *c)
	}
	return records, rows.Err()
}

// CleanedSince returns cleaned rows with date >= since, ordered ascending.
func (s *Store) CleanedSince(since string) ([]models.CleanedRecord, error) {
	rows, err := s.db.Query(`SELECT `+cleanedCols+` FROM cleaned_data WHERE date >= ? ORDER BY date ASC`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.CleanedRecord
	for rows.Next() {
		c, err := scanCleaned(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *c)
	}
	return records, rows.Err()
}

// GetRawByDate returns the merged raw row for a date, or nil if absent.
func (s *Store) GetRawByDate(date string) (*models.RawRecord, error) {
	cols := weatherCols + `,
	pm25, pm10, o3, no2, so2, co, aqi_pm25, aqi_pm10, aqi_o3, aqi_no2, aqi_so2, aqi_co, aqi`
	row := s.db.QueryRow(`SELECT `+cols+` FROM raw_data WHERE date = ?`, date)

	var r models.RawRecord
	w := &r.Weather
	p := &r.Pollutant
	err := row.Scan(
		&w.Date, &w.StationName, &w.TempMax, &w.TempMin, &w.Temp, &w.FeelsLikeMax, &w.FeelsLikeMin, &w.FeelsLike,
		&w.Dew, &w.Humidity, &w.Precip, &w.PrecipProb, &w.PrecipCover, &w.PrecipType, &w.Snow, &w.SnowDepth,
		&w.WindGust, &w.WindSpeed, &w.WindDir, &w.SeaLevelPressure, &w.CloudCover, &w.Visibility,
		&w.SolarRadiation, &w.SolarEnergy, &w.UVIndex, &w.SevereRisk, &w.Sunrise, &w.Sunset, &w.MoonPhase,
		&w.Conditions, &w.Description, &w.Icon, &w.Stations,
		&p.PM25, &p.PM10, &p.O3, &p.NO2, &p.SO2, &p.CO,
		&p.AQIPM25, &p.AQIPM10, &p.AQIO3, &p.AQINO2, &p.AQISO2, &p.AQICO, &p.AQI,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.Date = w.Date
	p.Date = w.Date
	return &r, nil
}

// ReplaceDay atomically rewrites one date across all four time-series
// tables: delete-by-date then insert, in a single transaction. A nil record
// leaves that table with no row for the date (the delete still applies).
// Any failure rolls the whole day back; partial application across the four
// tables is never visible.
func (s *Store) ReplaceDay(date string, w *models.WeatherObservation, p *models.PollutantObservation, r *models.RawRecord, c *models.CleanedRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"weather_data", "pollutant_data", "raw_data", "cleaned_data"} {
		if _, err := tx.Exec(`DELETE FROM `+table+` WHERE date = ?`, date); err != nil {
			return fmt.Errorf("delete %s %s: %w", table, date, err)
		}
	}

	if w != nil {
		if _, err := tx.Exec(`INSERT INTO weather_data (`+weatherCols+`) VALUES (`+placeholders(33)+`)`, weatherArgs(w)...); err != nil {
			return fmt.Errorf("insert weather %s: %w", date, err)
		}
	}
	if p != nil {
		if _, err := tx.Exec(`INSERT INTO pollutant_data (`+pollutantCols+`) VALUES (`+placeholders(14)+`)`, pollutantArgs(p)...); err != nil {
			return fmt.Errorf("insert pollutant %s: %w", date, err)
		}
	}
	if r != nil {
		args := []any{r.Date}
		args = append(args, weatherArgs(&r.Weather)[1:]...)
		args = append(args, pollutantArgs(&r.Pollutant)[1:]...)
		cols := weatherCols + `,
	pm25, pm10, o3, no2, so2, co, aqi_pm25, aqi_pm10, aqi_o3, aqi_no2, aqi_so2, aqi_co, aqi`
		if _, err := tx.Exec(`INSERT INTO raw_data (`+cols+`) VALUES (`+placeholders(46)+`)`, args...); err != nil {
			return fmt.Errorf("insert raw %s: %w", date, err)
		}
	}
	if c != nil {
		if _, err := tx.Exec(`INSERT INTO cleaned_data (`+cleanedCols+`) VALUES (`+placeholders(20)+`)`, cleanedArgs(c)...); err != nil {
			return fmt.Errorf("insert cleaned %s: %w", date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", date, err)
	}
	return nil
}

// CountByDate reports how many rows a table holds for a date. Used by
// health checks and tests to assert the one-row-per-date invariant.
func (s *Store) CountByDate(table, date string) (int, error) {
	switch table {
	case "weather_data", "pollutant_data", "raw_data", "cleaned_data":
	default:
		return 0, fmt.Errorf("count: unknown table %q", table)
	}
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM `+table+` WHERE date = ?`, date).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
