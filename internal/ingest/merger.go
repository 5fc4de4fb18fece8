package ingest

import (
	"database/sql"
	"fmt"
	"log"
	"sort"

	"github.com/lox/aqicast/internal/metrics"
	"github.com/lox/aqicast/internal/models"
	"github.com/lox/aqicast/internal/preprocess"
	"github.com/lox/aqicast/internal/store"
)

// Merger folds freshly fetched observation batches into the store. Each
// affected date is rewritten whole: the incoming rows are merged with the
// rows already stored for that date, then weather, pollutant, raw and
// cleaned tables are replaced in one transaction.
type Merger struct {
	store *store.Store
}

func NewMerger(s *store.Store) *Merger {
	return &Merger{store: s}
}

// Ingest preprocesses both batches and persists them date by date.
// Numeric fields are averaged over the valid values of stored and incoming
// rows; non-numeric fields keep the first valid value with the stored row
// winning. The raw and cleaned projections exist only for dates where both
// a weather and a pollutant row resolve. Returns the number of dates
// written.
func (m *Merger) Ingest(weatherBatch []models.WeatherObservation, pollutantBatch []models.PollutantObservation) (int, error) {
	for i := range weatherBatch {
		if flags := ValidateWeather(&weatherBatch[i]); len(flags) > 0 {
			log.Printf("merger: %s weather flagged %v", weatherBatch[i].Date, flags)
		}
	}
	for i := range pollutantBatch {
		if flags := ValidatePollutant(&pollutantBatch[i]); len(flags) > 0 {
			log.Printf("merger: %s pollutants flagged %v", pollutantBatch[i].Date, flags)
		}
	}

	weather := preprocess.Weather(weatherBatch)
	pollutants := preprocess.Pollutants(pollutantBatch)

	weatherByDate := make(map[string]*models.WeatherObservation)
	pollutantByDate := make(map[string]*models.PollutantObservation)
	for i := range weather {
		if weather[i].Date == "" {
			continue
		}
		weatherByDate[weather[i].Date] = &weather[i]
	}
	pollutantGroups := make(map[string][]*models.PollutantObservation)
	for i := range pollutants {
		if pollutants[i].Date == "" {
			continue
		}
		pollutantGroups[pollutants[i].Date] = append(pollutantGroups[pollutants[i].Date], &pollutants[i])
	}
	for date, rows := range pollutantGroups {
		pollutantByDate[date] = collapsePollutants(date, rows)
	}

	dates := make([]string, 0, len(weatherByDate))
	seen := make(map[string]bool)
	for date := range weatherByDate {
		dates = append(dates, date)
		seen[date] = true
	}
	for date := range pollutantByDate {
		if !seen[date] {
			dates = append(dates, date)
		}
	}
	sort.Strings(dates)

	written := 0
	for _, date := range dates {
		existingW, err := m.store.GetWeatherByDate(date)
		if err != nil {
			return written, fmt.Errorf("load weather %s: %w", date, err)
		}
		existingP, err := m.store.GetPollutantByDate(date)
		if err != nil {
			return written, fmt.Errorf("load pollutants %s: %w", date, err)
		}

		mergedW := mergeWeather(date, existingW, weatherByDate[date])
		mergedP := mergePollutant(date, existingP, pollutantByDate[date])

		var raw *models.RawRecord
		var cleaned *models.CleanedRecord
		if mergedW != nil && mergedP != nil {
			raw = &models.RawRecord{Date: date, Weather: *mergedW, Pollutant: *mergedP}
			c := projectCleaned(raw)
			cleaned = &c
		}

		if err := m.store.ReplaceDay(date, mergedW, mergedP, raw, cleaned); err != nil {
			return written, fmt.Errorf("replace day %s: %w", date, err)
		}
		written++
		metrics.DaysIngested.Inc()
	}
	return written, nil
}

var weatherNumeric = []func(*models.WeatherObservation) *sql.NullFloat64{
	func(w *models.WeatherObservation) *sql.NullFloat64 { return &w.TempMax },
	func(w *models.WeatherObservation) *sql.NullFloat64 { return &w.TempMin },
	func(w *models.WeatherObservation) *sql.NullFloat64 { return &w.Temp },
	func(w *models.WeatherObservation) *sql.NullFloat64 { return &w.FeelsLikeMax },
	func(w *models.WeatherObservation) *sql.NullFloat64 { return &w.FeelsLikeMin },
	func(w *models.WeatherObservation) *sql.NullFloat64 { return &w.FeelsLike },
	func(w *models.WeatherObservation) *sql.NullFloat64 { return &w.Dew },
	func(w *models.WeatherObservation) *sql.NullFloat64 { return &w.Humidity },
	func(w *models.WeatherObservation) *sql.NullFloat64 { return &w.Precip },
	func(w *models.WeatherObservation) *sql.NullFloat64 { return &w.PrecipProb },
	func(w *models.WeatherObservation) *sql.NullFloat64 { return &w.PrecipCover },
	func(w *models.WeatherObservation) *sql.NullFloat64 { return &w.Snow },
	func(w *models.WeatherObservation) *sql.NullFloat64 { return &w.SnowDepth },
	func(w *models.WeatherObservation) *sql.NullFloat64 { return &w.WindGust },
	func(w *models.WeatherObservation) *sql.NullFloat64 { return &w.WindSpeed },
	func(w *models.WeatherObservation) *sql.NullFloat64 { return &w.WindDir },
	func(w *models.WeatherObservation) *sql.NullFloat64 { return &w.SeaLevelPressure },
	func(w *models.WeatherObservation) *sql.NullFloat64 { return &w.CloudCover },
	func(w *models.WeatherObservation) *sql.NullFloat64 { return &w.Visibility },
	func(w *models.WeatherObservation) *sql.NullFloat64 { return &w.SolarRadiation },
	func(w *models.WeatherObservation) *sql.NullFloat64 { return &w.SolarEnergy },
	func(w *models.WeatherObservation) *sql.NullFloat64 { return &w.UVIndex },
	func(w *models.WeatherObservation) *sql.NullFloat64 { return &w.SevereRisk },
	func(w *models.WeatherObservation) *sql.NullFloat64 { return &w.MoonPhase },
}

var weatherStrings = []func(*models.WeatherObservation) *sql.NullString{
	func(w *models.WeatherObservation) *sql.NullString { return &w.StationName },
	func(w *models.WeatherObservation) *sql.NullString { return &w.PrecipType },
	func(w *models.WeatherObservation) *sql.NullString { return &w.Sunrise },
	func(w *models.WeatherObservation) *sql.NullString { return &w.Sunset },
	func(w *models.WeatherObservation) *sql.NullString { return &w.Conditions },
	func(w *models.WeatherObservation) *sql.NullString { return &w.Description },
	func(w *models.WeatherObservation) *sql.NullString { return &w.Icon },
	func(w *models.WeatherObservation) *sql.NullString { return &w.Stations },
}

func mergeWeather(date string, existing, incoming *models.WeatherObservation) *models.WeatherObservation {
	switch {
	case existing == nil && incoming == nil:
		return nil
	case existing == nil:
		out := *incoming
		out.Date = date
		return &out
	case incoming == nil:
		out := *existing
		out.Date = date
		return &out
	}

	out := &models.WeatherObservation{Date: date}
	for _, field := range weatherNumeric {
		*field(out) = meanFloat(*field(existing), *field(incoming))
	}
	for _, field := range weatherStrings {
		*field(out) = firstString(*field(existing), *field(incoming))
	}
	return out
}

var pollutantNumeric = []func(*models.PollutantObservation) *sql.NullFloat64{
	func(p *models.PollutantObservation) *sql.NullFloat64 { return &p.PM25 },
	func(p *models.PollutantObservation) *sql.NullFloat64 { return &p.PM10 },
	func(p *models.PollutantObservation) *sql.NullFloat64 { return &p.O3 },
	func(p *models.PollutantObservation) *sql.NullFloat64 { return &p.NO2 },
	func(p *models.PollutantObservation) *sql.NullFloat64 { return &p.SO2 },
	func(p *models.PollutantObservation) *sql.NullFloat64 { return &p.CO },
	func(p *models.PollutantObservation) *sql.NullFloat64 { return &p.AQI },
}

// collapsePollutants folds same-date batch rows into one row, averaging each
// numeric field over the valid values. Weather batches are deduplicated in
// preprocessing, pollutant batches are not.
func collapsePollutants(date string, rows []*models.PollutantObservation) *models.PollutantObservation {
	if len(rows) == 1 {
		return rows[0]
	}
	out := &models.PollutantObservation{Date: date}
	vals := make([]sql.NullFloat64, len(rows))
	for _, field := range pollutantNumeric {
		for i, r := range rows {
			vals[i] = *field(r)
		}
		*field(out) = meanFloat(vals...)
	}
	return out
}

// mergePollutant averages concentrations then derives the sub-indices and
// overall AQI from the averaged values. The averaged upstream index
// survives only when no sub-index resolves.
func mergePollutant(date string, existing, incoming *models.PollutantObservation) *models.PollutantObservation {
	switch {
	case existing == nil && incoming == nil:
		return nil
	case existing == nil:
		out := *incoming
		out.Date = date
		preprocess.ComputeAQI(&out)
		return &out
	case incoming == nil:
		out := *existing
		out.Date = date
		preprocess.ComputeAQI(&out)
		return &out
	}

	out := &models.PollutantObservation{Date: date}
	for _, field := range pollutantNumeric {
		*field(out) = meanFloat(*field(existing), *field(incoming))
	}
	preprocess.ComputeAQI(out)
	return out
}

func meanFloat(vals ...sql.NullFloat64) sql.NullFloat64 {
	var sum float64
	var n int
	for _, v := range vals {
		if v.Valid {
			sum += v.Float64
			n++
		}
	}
	if n == 0 {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: sum / float64(n), Valid: true}
}

func firstString(vals ...sql.NullString) sql.NullString {
	for _, v := range vals {
		if v.Valid {
			return v
		}
	}
	return sql.NullString{}
}

func projectCleaned(r *models.RawRecord) models.CleanedRecord {
	return models.CleanedRecord{
		Date:             r.Date,
		PM25:             r.Pollutant.PM25,
		PM10:             r.Pollutant.PM10,
		CO:               r.Pollutant.CO,
		NO2:              r.Pollutant.NO2,
		SO2:              r.Pollutant.SO2,
		O3:               r.Pollutant.O3,
		AQI:              r.Pollutant.AQI,
		TempMax:          r.Weather.TempMax,
		TempMin:          r.Weather.TempMin,
		Temp:             r.Weather.Temp,
		Humidity:         r.Weather.Humidity,
		Dew:              r.Weather.Dew,
		WindSpeed:        r.Weather.WindSpeed,
		WindDir:          r.Weather.WindDir,
		WindGust:         r.Weather.WindGust,
		Precip:           r.Weather.Precip,
		CloudCover:       r.Weather.CloudCover,
		Visibility:       r.Weather.Visibility,
		SeaLevelPressure: r.Weather.SeaLevelPressure,
	}
}
