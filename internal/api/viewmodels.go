package api

import (
	"database/sql"
	"time"

	"github.com/lox/aqicast/internal/models"
)

// ForecastView is one predicted day.
type ForecastView struct {
	ForecastDate  string  `json:"forecast_date"`
	PredictedDate string  `json:"predicted_date"`
	PredictedAQI  float64 `json:"predicted_aqi"`
	ModelName     string  `json:"model_name"`
	Location      string  `json:"location"`
}

func newForecastView(e models.ForecastEntry) ForecastView {
	return ForecastView{
		ForecastDate:  e.ForecastDate,
		PredictedDate: e.PredictedDate,
		PredictedAQI:  e.PredictedAQI,
		ModelName:     e.ModelName,
		Location:      e.Location,
	}
}

// EvaluationView is the latest held-out model evaluation.
type EvaluationView struct {
	Timestamp time.Time `json:"timestamp"`
	EvalDate  string    `json:"eval_date"`
	MAE       float64   `json:"mae"`
	R2        float64   `json:"r2"`
	RMSE      float64   `json:"rmse"`
	MAPE      float64   `json:"mape"`
}

func newEvaluationView(m models.EvaluationMetric) EvaluationView {
	return EvaluationView{
		Timestamp: m.Timestamp,
		EvalDate:  m.EvalDate,
		MAE:       m.MAE,
		R2:        m.R2,
		RMSE:      m.RMSE,
		MAPE:      m.MAPE,
	}
}

// HistoryView is one cleaned day. Nullable fields render as JSON null
// rather than zero.
type HistoryView struct {
	Date             string   `json:"date"`
	PM25             *float64 `json:"pm25"`
	PM10             *float64 `json:"pm10"`
	CO               *float64 `json:"co"`
	NO2              *float64 `json:"no2"`
	SO2              *float64 `json:"so2"`
	O3               *float64 `json:"o3"`
	AQI              *float64 `json:"aqi"`
	TempMax          *float64 `json:"tempmax"`
	TempMin          *float64 `json:"tempmin"`
	Temp             *float64 `json:"temp"`
	Humidity         *float64 `json:"humidity"`
	Dew              *float64 `json:"dew"`
	WindSpeed        *float64 `json:"windspeed"`
	WindDir          *float64 `json:"winddir"`
	WindGust         *float64 `json:"windgust"`
	Precip           *float64 `json:"precip"`
	CloudCover       *float64 `json:"cloudcover"`
	Visibility       *float64 `json:"visibility"`
	SeaLevelPressure *float64 `json:"sealevelpressure"`
}

func newHistoryView(c models.CleanedRecord) HistoryView {
	return HistoryView{
		Date:             c.Date,
		PM25:             fp(c.PM25),
		PM10:             fp(c.PM10),
		CO:               fp(c.CO),
		NO2:              fp(c.NO2),
		SO2:              fp(c.SO2),
		O3:               fp(c.O3),
		AQI:              fp(c.AQI),
		TempMax:          fp(c.TempMax),
		TempMin:          fp(c.TempMin),
		Temp:             fp(c.Temp),
		Humidity:         fp(c.Humidity),
		Dew:              fp(c.Dew),
		WindSpeed:        fp(c.WindSpeed),
		WindDir:          fp(c.WindDir),
		WindGust:         fp(c.WindGust),
		Precip:           fp(c.Precip),
		CloudCover:       fp(c.CloudCover),
		Visibility:       fp(c.Visibility),
		SeaLevelPressure: fp(c.SeaLevelPressure),
	}
}

func fp(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
