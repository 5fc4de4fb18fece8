package ingest

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sony/gobreaker"

	"github.com/lox/aqicast/internal/httputil"
	"github.com/lox/aqicast/internal/models"
)

const visualCrossingBaseURL = "https://weather.visualcrossing.com/VisualCrossingWebServices/rest/services/timeline"

// WeatherClient fetches daily weather records from the Visual Crossing
// timeline API for a fixed location.
type WeatherClient struct {
	apiKey   string
	location string
	baseURL  string
	client   *http.Client
	cb       *gobreaker.CircuitBreaker
}

func NewWeatherClient(apiKey, location string) *WeatherClient {
	return &WeatherClient{
		apiKey:   apiKey,
		location: location,
		baseURL:  visualCrossingBaseURL,
		client:   httputil.NewClient(),
		cb:       httputil.NewBreaker("visualcrossing"),
	}
}

type timelineResponse struct {
	Days []timelineDay `json:"days"`
}

type timelineDay struct {
	Datetime         string   `json:"datetime"`
	TempMax          *float64 `json:"tempmax"`
	TempMin          *float64 `json:"tempmin"`
	Temp             *float64 `json:"temp"`
	FeelsLikeMax     *float64 `json:"feelslikemax"`
	FeelsLikeMin     *float64 `json:"feelslikemin"`
	FeelsLike        *float64 `json:"feelslike"`
	Dew              *float64 `json:"dew"`
	Humidity         *float64 `json:"humidity"`
	Precip           *float64 `json:"precip"`
	PrecipProb       *float64 `json:"precipprob"`
	PrecipCover      *float64 `json:"precipcover"`
	PrecipType       []string `json:"preciptype"`
	Snow             *float64 `json:"snow"`
	SnowDepth        *float64 `json:"snowdepth"`
	WindGust         *float64 `json:"windgust"`
	WindSpeed        *float64 `json:"windspeed"`
	WindDir          *float64 `json:"winddir"`
	SeaLevelPressure *float64 `json:"sealevelpressure"`
	CloudCover       *float64 `json:"cloudcover"`
	Visibility       *float64 `json:"visibility"`
	SolarRadiation   *float64 `json:"solarradiation"`
	SolarEnergy      *float64 `json:"solarenergy"`
	UVIndex          *float64 `json:"uvindex"`
	SevereRisk       *float64 `json:"severerisk"`
	Sunrise          *string  `json:"sunrise"`
	Sunset           *string  `json:"sunset"`
	MoonPhase        *float64 `json:"moonphase"`
	Conditions       *string  `json:"conditions"`
	Description      *string  `json:"description"`
	Icon             *string  `json:"icon"`
	Stations         []string `json:"stations"`
}

// FetchRange fetches one daily record per date in [from, to], both
// YYYY-MM-DD inclusive.
func (c *WeatherClient) FetchRange(from, to string) ([]models.WeatherObservation, *FetchResult, error) {
	u := fmt.Sprintf("%s/%s/%s/%s?unitGroup=metric&include=days&contentType=json&key=%s",
		c.baseURL, url.PathEscape(c.location), from, to, c.apiKey)

	body, result, err := fetchJSON(c.client, c.cb, "visualcrossing", "timeline", u)
	if err != nil {
		return nil, result, err
	}

	var data timelineResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, result, fmt.Errorf("unmarshal timeline: %w", err)
	}
	if len(data.Days) == 0 {
		return nil, result, fmt.Errorf("no days returned for %s..%s", from, to)
	}

	observations := make([]models.WeatherObservation, 0, len(data.Days))
	for _, day := range data.Days {
		obs := models.WeatherObservation{
			Date:        day.Datetime,
			StationName: sql.NullString{String: c.location, Valid: true},
		}

		setFloat(&obs.TempMax, day.TempMax)
		setFloat(&obs.TempMin, day.TempMin)
		setFloat(&obs.Temp, day.Temp)
		setFloat(&obs.FeelsLikeMax, day.FeelsLikeMax)
		setFloat(&obs.FeelsLikeMin, day.FeelsLikeMin)
		setFloat(&obs.FeelsLike, day.FeelsLike)
		setFloat(&obs.Dew, day.Dew)
		setFloat(&obs.Humidity, day.Humidity)
		setFloat(&obs.Precip, day.Precip)
		setFloat(&obs.PrecipProb, day.PrecipProb)
		setFloat(&obs.PrecipCover, day.PrecipCover)
		setFloat(&obs.Snow, day.Snow)
		setFloat(&obs.SnowDepth, day.SnowDepth)
		setFloat(&obs.WindGust, day.WindGust)
		setFloat(&obs.WindSpeed, day.WindSpeed)
		setFloat(&obs.WindDir, day.WindDir)
		setFloat(&obs.SeaLevelPressure, day.SeaLevelPressure)
		setFloat(&obs.CloudCover, day.CloudCover)
		setFloat(&obs.Visibility, day.Visibility)
		setFloat(&obs.SolarRadiation, day.SolarRadiation)
		setFloat(&obs.SolarEnergy, day.SolarEnergy)
		setFloat(&obs.UVIndex, day.UVIndex)
		setFloat(&obs.SevereRisk, day.SevereRisk)
		setFloat(&obs.MoonPhase, day.MoonPhase)
		setString(&obs.Sunrise, day.Sunrise)
		setString(&obs.Sunset, day.Sunset)
		setString(&obs.Conditions, day.Conditions)
		setString(&obs.Description, day.Description)
		setString(&obs.Icon, day.Icon)

		if len(day.PrecipType) > 0 {
			obs.PrecipType = sql.NullString{String: strings.Join(day.PrecipType, ","), Valid: true}
		}
		if len(day.Stations) > 0 {
			obs.Stations = sql.NullString{String: strings.Join(day.Stations, ","), Valid: true}
		}

		observations = append(observations, obs)
	}

	result.RecordCount = len(observations)
	return observations, result, nil
}

// FetchDay fetches a single date.
func (c *WeatherClient) FetchDay(date string) ([]models.WeatherObservation, *FetchResult, error) {
	return c.FetchRange(date, date)
}

func setFloat(dst *sql.NullFloat64, src *float64) {
	if src != nil {
		*dst = sql.NullFloat64{Float64: *src, Valid: true}
	}
}

func setString(dst *sql.NullString, src *string) {
	if src != nil {
		*dst = sql.NullString{String: *src, Valid: true}
	}
}
