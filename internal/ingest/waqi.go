package ingest

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/lox/aqicast/internal/httputil"
	"github.com/lox/aqicast/internal/models"
)

const waqiBaseURL = "https://api.waqi.info"

// PollutantClient fetches the current pollutant feed for one WAQI station.
// The feed reports instantaneous readings; they are recorded as the
// day's observation and averaged with anything already stored for it.
type PollutantClient struct {
	token   string
	station string
	baseURL string
	loc     *time.Location
	client  *http.Client
	cb      *gobreaker.CircuitBreaker
}

func NewPollutantClient(token, station string, loc *time.Location) *PollutantClient {
	return &PollutantClient{
		token:   token,
		station: station,
		baseURL: waqiBaseURL,
		loc:     loc,
		client:  httputil.NewClient(),
		cb:      httputil.NewBreaker("waqi"),
	}
}

type waqiResponse struct {
	Status string   `json:"status"`
	Data   waqiData `json:"data"`
}

type waqiData struct {
	// AQI is "-" when the station has no current index, hence RawMessage.
	AQI  json.RawMessage          `json:"aqi"`
	IAQI map[string]waqiIAQIValue `json:"iaqi"`
	Time struct {
		S string `json:"s"`
	} `json:"time"`
}

type waqiIAQIValue struct {
	V float64 `json:"v"`
}

// FetchCurrent fetches the station's current readings. The record is dated
// by the feed's own timestamp, falling back to now in the configured
// timezone when the feed omits one.
func (c *PollutantClient) FetchCurrent(now time.Time) (*models.PollutantObservation, *FetchResult, error) {
	u := fmt.Sprintf("%s/feed/%s/?token=%s", c.baseURL, c.station, c.token)

	body, result, err := fetchJSON(c.client, c.cb, "waqi", "feed", u)
	if err != nil {
		return nil, result, err
	}

	var data waqiResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, result, fmt.Errorf("unmarshal feed: %w", err)
	}
	if data.Status != "ok" {
		return nil, result, fmt.Errorf("waqi status %q for station %s", data.Status, c.station)
	}

	obs := &models.PollutantObservation{
		Date: data.Data.Time.S,
	}
	if obs.Date == "" {
		obs.Date = now.In(c.loc).Format(models.DateLayout)
	}

	obs.PM25 = iaqiValue(data.Data.IAQI, "pm25")
	obs.PM10 = iaqiValue(data.Data.IAQI, "pm10")
	obs.O3 = iaqiValue(data.Data.IAQI, "o3")
	obs.NO2 = iaqiValue(data.Data.IAQI, "no2")
	obs.SO2 = iaqiValue(data.Data.IAQI, "so2")
	obs.CO = iaqiValue(data.Data.IAQI, "co")

	var upstreamAQI float64
	if err := json.Unmarshal(data.Data.AQI, &upstreamAQI); err == nil {
		obs.AQI = sql.NullFloat64{Float64: upstreamAQI, Valid: true}
	}

	result.RecordCount = 1
	return obs, result, nil
}

func iaqiValue(iaqi map[string]waqiIAQIValue, key string) sql.NullFloat64 {
	if v, ok := iaqi[key]; ok {
		return sql.NullFloat64{Float64: v.V, Valid: true}
	}
	return sql.NullFloat64{}
}
