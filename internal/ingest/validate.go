package ingest

import (
	"database/sql"

	"github.com/lox/aqicast/internal/models"
)

const (
	FlagTempOutOfRange       = "temp_out_of_range"
	FlagHumidityInvalid      = "humidity_invalid"
	FlagWindDirInvalid       = "wind_dir_invalid"
	FlagWindSpeedUnlikely    = "wind_speed_unlikely"
	FlagPressureOutOfRange   = "pressure_out_of_range"
	FlagConcentrationInvalid = "concentration_negative"
	FlagAQIInvalid           = "aqi_out_of_range"
)

// ValidateWeather flags physically implausible values. Flagged fields are
// nulled in place so they cannot poison per-field averaging downstream.
func ValidateWeather(obs *models.WeatherObservation) []string {
	var flags []string

	if obs.Temp.Valid && (obs.Temp.Float64 < -30 || obs.Temp.Float64 > 55) {
		flags = append(flags, FlagTempOutOfRange)
		obs.Temp = sql.NullFloat64{}
	}

	if obs.Humidity.Valid && (obs.Humidity.Float64 < 0 || obs.Humidity.Float64 > 100) {
		flags = append(flags, FlagHumidityInvalid)
		obs.Humidity = sql.NullFloat64{}
	}

	if obs.WindDir.Valid && (obs.WindDir.Float64 < 0 || obs.WindDir.Float64 > 360) {
		flags = append(flags, FlagWindDirInvalid)
		obs.WindDir = sql.NullFloat64{}
	}

	if obs.WindSpeed.Valid && (obs.WindSpeed.Float64 < 0 || obs.WindSpeed.Float64 > 250) {
		flags = append(flags, FlagWindSpeedUnlikely)
		obs.WindSpeed = sql.NullFloat64{}
	}

	if obs.SeaLevelPressure.Valid && (obs.SeaLevelPressure.Float64 < 900 || obs.SeaLevelPressure.Float64 > 1100) {
		flags = append(flags, FlagPressureOutOfRange)
		obs.SeaLevelPressure = sql.NullFloat64{}
	}

	return flags
}

// ValidatePollutant nulls negative concentrations and out-of-scale
// upstream indices.
func ValidatePollutant(obs *models.PollutantObservation) []string {
	var flags []string

	for _, field := range pollutantNumeric[:6] {
		v := field(obs)
		if v.Valid && v.Float64 < 0 {
			flags = append(flags, FlagConcentrationInvalid)
			*v = sql.NullFloat64{}
		}
	}

	if obs.AQI.Valid && (obs.AQI.Float64 < 0 || obs.AQI.Float64 > 500) {
		flags = append(flags, FlagAQIInvalid)
		obs.AQI = sql.NullFloat64{}
	}

	return flags
}
