package preprocess

import (
	"database/sql"
	"math"
	"testing"

	"github.com/lox/aqicast/internal/models"
)

func valid(f float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: f, Valid: true}
}

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2024-01-05", "2024-01-05"},
		{"2024-01-05T14:30:00", "2024-01-05"},
		{"2024-01-05T14:30:00Z", "2024-01-05"},
		{"2024-01-05 14:30:00", "2024-01-05"},
		{"05/01/2024", ""},
		{"not a date", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeDate(tt.in); got != tt.want {
			t.Errorf("NormalizeDate(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestInterpolate_InteriorGap(t *testing.T) {
	vals := []sql.NullFloat64{valid(10), {}, {}, valid(40)}
	Interpolate(vals)

	want := []float64{10, 20, 30, 40}
	for i, w := range want {
		if !vals[i].Valid || math.Abs(vals[i].Float64-w) > 1e-9 {
			t.Errorf("vals[%d] = %+v, want %v", i, vals[i], w)
		}
	}
}

func TestInterpolate_EdgesUntouched(t *testing.T) {
	vals := []sql.NullFloat64{{}, valid(10), {}, valid(20), {}}
	Interpolate(vals)

	if vals[0].Valid {
		t.Errorf("leading null filled: %+v", vals[0])
	}
	if vals[4].Valid {
		t.Errorf("trailing null filled: %+v", vals[4])
	}
	if !vals[2].Valid || vals[2].Float64 != 15 {
		t.Errorf("interior = %+v, want 15", vals[2])
	}
}

func TestFillDirections(t *testing.T) {
	vals := []sql.NullFloat64{{}, valid(5), {}, valid(9), {}}
	Interpolate(vals)
	ForwardFill(vals)
	BackFill(vals)

	want := []float64{5, 5, 7, 9, 9}
	for i, w := range want {
		if !vals[i].Valid || vals[i].Float64 != w {
			t.Errorf("vals[%d] = %+v, want %v", i, vals[i], w)
		}
	}
}

func TestPollutants_ComputesAQI(t *testing.T) {
	batch := []models.PollutantObservation{
		{Date: "2024-01-01", PM25: valid(40), PM10: valid(60), O3: valid(30), NO2: valid(20), SO2: valid(10), CO: valid(0.5)},
	}
	out := Pollutants(batch)
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1", len(out))
	}
	p := out[0]

	// pm25=40 sits in band (31,60,51,100); pm10=60 in (51,100,51,100).
	wantPM25 := 51 + (40-31)*49.0/29.0
	if math.Abs(p.AQIPM25.Float64-wantPM25) > 1e-9 {
		t.Errorf("AQIPM25 = %v, want %v", p.AQIPM25.Float64, wantPM25)
	}
	if !p.AQI.Valid {
		t.Fatal("AQI is null")
	}
	// pm25 sub-index dominates this record.
	if math.Abs(p.AQI.Float64-wantPM25) > 1e-9 {
		t.Errorf("AQI = %v, want max sub-index %v", p.AQI.Float64, wantPM25)
	}
}

func TestPollutants_InterpolatesInteriorOnly(t *testing.T) {
	batch := []models.PollutantObservation{
		{Date: "2024-01-03", PM25: valid(90)},
		{Date: "2024-01-01", PM25: valid(30)},
		{Date: "2024-01-02"},
		{Date: "2024-01-04"},
	}
	out := Pollutants(batch)
	if len(out) != 4 {
		t.Fatalf("len(out) = %d, want 4", len(out))
	}
	if out[1].Date != "2024-01-02" || !out[1].PM25.Valid || out[1].PM25.Float64 != 60 {
		t.Errorf("interior gap: %+v, want pm25=60", out[1].PM25)
	}
	if out[3].PM25.Valid {
		t.Errorf("trailing null resolved: %+v", out[3].PM25)
	}
	if out[3].AQIPM25.Valid {
		t.Errorf("sub-index computed from null concentration: %+v", out[3].AQIPM25)
	}
}

func TestPollutants_TrustsUpstreamIndexWhenNoConcentrations(t *testing.T) {
	batch := []models.PollutantObservation{
		{Date: "2024-01-01", AQI: valid(187)},
	}
	out := Pollutants(batch)
	if !out[0].AQI.Valid || out[0].AQI.Float64 != 187 {
		t.Errorf("AQI = %+v, want upstream 187 preserved", out[0].AQI)
	}
}

func TestWeather_SortsAndDropsDuplicates(t *testing.T) {
	batch := []models.WeatherObservation{
		{Date: "2024-01-02", Temp: valid(22)},
		{Date: "2024-01-01", Temp: valid(20), Conditions: sql.NullString{String: "Clear", Valid: true}},
		{Date: "2024-01-01", Temp: valid(99)},
	}
	out := Weather(batch)
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2", len(out))
	}
	if out[0].Date != "2024-01-01" || out[1].Date != "2024-01-02" {
		t.Errorf("dates = %s, %s, want sorted ascending", out[0].Date, out[1].Date)
	}
	if out[0].Temp.Float64 != 20 {
		t.Errorf("duplicate kept wrong row: temp = %v, want 20 (first occurrence)", out[0].Temp.Float64)
	}
}

func TestWeather_FillsEdges(t *testing.T) {
	batch := []models.WeatherObservation{
		{Date: "2024-01-01"},
		{Date: "2024-01-02", Humidity: valid(40)},
		{Date: "2024-01-03"},
		{Date: "2024-01-04", Humidity: valid(60)},
		{Date: "2024-01-05"},
	}
	out := Weather(batch)
	want := []float64{40, 40, 50, 60, 60}
	for i, w := range want {
		if !out[i].Humidity.Valid || out[i].Humidity.Float64 != w {
			t.Errorf("humidity[%d] = %+v, want %v", i, out[i].Humidity, w)
		}
	}
}

func TestWeather_MalformedDateMarked(t *testing.T) {
	batch := []models.WeatherObservation{
		{Date: "garbage", Temp: valid(20)},
		{Date: "2024-01-01", Temp: valid(21)},
	}
	out := Weather(batch)
	if out[0].Date != "" {
		t.Errorf("malformed date = %q, want empty marker", out[0].Date)
	}
}
