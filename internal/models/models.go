package models

import (
	"database/sql"
	"time"
)

// DateLayout is the canonical date key format for every table.
const DateLayout = "2006-01-02"

// WeatherObservation is one day of weather for the configured location.
// All measurement fields are nullable; the upstream API omits fields freely.
type WeatherObservation struct {
	Date             string
	StationName      sql.NullString
	TempMax          sql.NullFloat64
	TempMin          sql.NullFloat64
	Temp             sql.NullFloat64
	FeelsLikeMax     sql.NullFloat64
	FeelsLikeMin     sql.NullFloat64
	FeelsLike        sql.NullFloat64
	Dew              sql.NullFloat64
	Humidity         sql.NullFloat64
	Precip           sql.NullFloat64
	PrecipProb       sql.NullFloat64
	PrecipCover      sql.NullFloat64
	PrecipType       sql.NullString
	Snow             sql.NullFloat64
	SnowDepth        sql.NullFloat64
	WindGust         sql.NullFloat64
	WindSpeed        sql.NullFloat64
	WindDir          sql.NullFloat64
	SeaLevelPressure sql.NullFloat64
	CloudCover       sql.NullFloat64
	Visibility       sql.NullFloat64
	SolarRadiation   sql.NullFloat64
	SolarEnergy      sql.NullFloat64
	UVIndex          sql.NullFloat64
	SevereRisk       sql.NullFloat64
	Sunrise          sql.NullString
	Sunset           sql.NullString
	MoonPhase        sql.NullFloat64
	Conditions       sql.NullString
	Description      sql.NullString
	Icon             sql.NullString
	Stations         sql.NullString
}

// PollutantObservation is one day of pollutant concentrations plus the
// derived per-pollutant sub-indices and overall AQI. The AQI fields are
// computed during preprocessing, never supplied directly, except that an
// upstream-provided overall index is kept when no concentration resolves
// to a sub-index.
type PollutantObservation struct {
	Date    string
	PM25    sql.NullFloat64
	PM10    sql.NullFloat64
	O3      sql.NullFloat64
	NO2     sql.NullFloat64
	SO2     sql.NullFloat64
	CO      sql.NullFloat64
	AQIPM25 sql.NullFloat64
	AQIPM10 sql.NullFloat64
	AQIO3   sql.NullFloat64
	AQINO2  sql.NullFloat64
	AQISO2  sql.NullFloat64
	AQICO   sql.NullFloat64
	AQI     sql.NullFloat64
}

// RawRecord is the inner join of weather and pollutant data on date.
type RawRecord struct {
	Date      string
	Weather   WeatherObservation
	Pollutant PollutantObservation
}

// CleanedRecord is the fixed feature projection of RawRecord used for
// model training and inference. One row per date.
type CleanedRecord struct {
	Date             string
	PM25             sql.NullFloat64
	PM10             sql.NullFloat64
	CO               sql.NullFloat64
	NO2              sql.NullFloat64
	SO2              sql.NullFloat64
	O3               sql.NullFloat64
	AQI              sql.NullFloat64
	TempMax          sql.NullFloat64
	TempMin          sql.NullFloat64
	Temp             sql.NullFloat64
	Humidity         sql.NullFloat64
	Dew              sql.NullFloat64
	WindSpeed        sql.NullFloat64
	WindDir          sql.NullFloat64
	WindGust         sql.NullFloat64
	Precip           sql.NullFloat64
	CloudCover       sql.NullFloat64
	Visibility       sql.NullFloat64
	SeaLevelPressure sql.NullFloat64
}

// ForecastEntry records that on ForecastDate the model predicted
// PredictedAQI for PredictedDate. Keyed by (forecast_date, predicted_date).
type ForecastEntry struct {
	ForecastDate  string
	PredictedDate string
	PredictedAQI  float64
	ModelName     string
	Location      string
}

// EvaluationMetric is one row per day a model was (re)trained,
// upserted on EvalDate.
type EvaluationMetric struct {
	Timestamp time.Time
	EvalDate  string
	MAE       float64
	R2        float64
	RMSE      float64
	MAPE      float64
}
