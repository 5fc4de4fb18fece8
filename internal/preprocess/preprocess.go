// Package preprocess normalizes raw observation batches into the canonical
// per-date schema: date formatting, gap interpolation and AQI computation.
// Transforms are pure; persistence happens elsewhere.
package preprocess

import (
	"database/sql"
	"sort"
	"time"

	"github.com/lox/aqicast/internal/aqi"
	"github.com/lox/aqicast/internal/models"
)

var dateLayouts = []string{
	models.DateLayout,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// NormalizeDate coerces an upstream date string to YYYY-MM-DD.
// Malformed dates become "" rather than an error; callers must filter
// empty dates before persisting.
func NormalizeDate(s string) string {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(models.DateLayout)
		}
	}
	return ""
}

var pollutantFields = []func(*models.PollutantObservation) *sql.NullFloat64{
	func(p *models.PollutantObservation) *sql.NullFloat64 { return &p.PM25 },
	func(p *models.PollutantObservation) *sql.NullFloat64 { return &p.PM10 },
	func(p *models.PollutantObservation) *sql.NullFloat64 { return &p.O3 },
	func(p *models.PollutantObservation) *sql.NullFloat64 { return &p.NO2 },
	func(p *models.PollutantObservation) *sql.NullFloat64 { return &p.SO2 },
	func(p *models.PollutantObservation) *sql.NullFloat64 { return &p.CO },
}

// Pollutants normalizes a pollutant batch: dates are canonicalized, interior
// concentration gaps are interpolated within the batch (never against the
// store), and the six sub-indices plus overall AQI are recomputed. Leading
// and trailing nulls are left unresolved at this stage.
//
// When no concentration yields a sub-index but the upstream feed supplied an
// overall index, that value is trusted as-is.
func Pollutants(batch []models.PollutantObservation) []models.PollutantObservation {
	out := make([]models.PollutantObservation, len(batch))
	copy(out, batch)

	for i := range out {
		out[i].Date = NormalizeDate(out[i].Date)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date < out[j].Date })

	for _, field := range pollutantFields {
		col := make([]sql.NullFloat64, len(out))
		for i := range out {
			col[i] = *field(&out[i])
		}
		Interpolate(col)
		for i := range out {
			*field(&out[i]) = col[i]
		}
	}

	for i := range out {
		ComputeAQI(&out[i])
	}
	return out
}

// ComputeAQI fills the derived sub-index and overall AQI fields from the
// record's concentrations, preserving an upstream-supplied overall index
// only when every sub-index is null.
func ComputeAQI(p *models.PollutantObservation) {
	p.AQIPM25 = aqi.Subindex(p.PM25, aqi.PM25)
	p.AQIPM10 = aqi.Subindex(p.PM10, aqi.PM10)
	p.AQIO3 = aqi.Subindex(p.O3, aqi.O3)
	p.AQINO2 = aqi.Subindex(p.NO2, aqi.NO2)
	p.AQISO2 = aqi.Subindex(p.SO2, aqi.SO2)
	p.AQICO = aqi.Subindex(p.CO, aqi.CO)

	overall := aqi.Overall(p.AQIPM25, p.AQIPM10, p.AQIO3, p.AQINO2, p.AQISO2, p.AQICO)
	if overall.Valid {
		p.AQI = overall
	}
	// else: keep whatever the upstream index provider reported, if anything
}

var weatherFields = []func(*models.WeatherObservation) *sql.NullFloat64{
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

// Weather normalizes a weather batch: dates are canonicalized, rows are
// sorted ascending with duplicate dates dropped (first occurrence kept),
// then numeric gaps are interpolated with remaining edge nulls filled from
// the nearest known value.
func Weather(batch []models.WeatherObservation) []models.WeatherObservation {
	rows := make([]models.WeatherObservation, len(batch))
	copy(rows, batch)

	for i := range rows {
		rows[i].Date = NormalizeDate(rows[i].Date)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Date < rows[j].Date })

	out := rows[:0:0]
	seen := make(map[string]bool)
	for _, r := range rows {
		if seen[r.Date] {
			continue
		}
		seen[r.Date] = true
		out = append(out, r)
	}

	for _, field := range weatherFields {
		col := make([]sql.NullFloat64, len(out))
		for i := range out {
			col[i] = *field(&out[i])
		}
		Interpolate(col)
		ForwardFill(col)
		BackFill(col)
		for i := range out {
			*field(&out[i]) = col[i]
		}
	}
	return out
}
