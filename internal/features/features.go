// Package features derives the model input frame from the cleaned
// time series: cumulative, interaction, seasonal and lag columns.
package features

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/lox/aqicast/internal/models"
)

// NumLags is the AQI history depth fed to the model; rows without a full
// lag window are excluded from training and inference.
const NumLags = 7

// rollingWindow is the span of the cumulative pollution sums.
const rollingWindow = 7

// Frame is a column-oriented view of the engineered series. Nulls are
// represented as NaN; they propagate through every derived column and are
// never coerced to zero.
type Frame struct {
	Dates   []string
	Columns []string
	data    map[string][]float64
}

func fv(n sql.NullFloat64) float64 {
	if !n.Valid {
		return math.NaN()
	}
	return n.Float64
}

// baseColumns is the cleaned-record projection used for modeling. precip is
// deliberately absent: the training pipeline has always excluded it.
var baseColumns = []string{
	"pm25", "pm10", "co", "no2", "so2", "o3", "AQI",
	"tempmax", "tempmin", "temp", "humidity", "dew",
	"windspeed", "winddir", "windgust",
	"cloudcover", "visibility", "sealevelpressure",
}

// FromCleaned builds the base frame from a date-sorted, duplicate-free
// cleaned series. Unsorted input silently corrupts lag features, so the
// caller must guarantee order (the store read does).
func FromCleaned(records []models.CleanedRecord) *Frame {
	f := &Frame{
		Dates:   make([]string, len(records)),
		Columns: append([]string(nil), baseColumns...),
		data:    make(map[string][]float64, len(baseColumns)),
	}
	for _, col := range baseColumns {
		f.data[col] = make([]float64, len(records))
	}
	for i, r := range records {
		f.Dates[i] = r.Date
		f.data["pm25"][i] = fv(r.PM25)
		f.data["pm10"][i] = fv(r.PM10)
		f.data["co"][i] = fv(r.CO)
		f.data["no2"][i] = fv(r.NO2)
		f.data["so2"][i] = fv(r.SO2)
		f.data["o3"][i] = fv(r.O3)
		f.data["AQI"][i] = fv(r.AQI)
		f.data["tempmax"][i] = fv(r.TempMax)
		f.data["tempmin"][i] = fv(r.TempMin)
		f.data["temp"][i] = fv(r.Temp)
		f.data["humidity"][i] = fv(r.Humidity)
		f.data["dew"][i] = fv(r.Dew)
		f.data["windspeed"][i] = fv(r.WindSpeed)
		f.data["winddir"][i] = fv(r.WindDir)
		f.data["windgust"][i] = fv(r.WindGust)
		f.data["cloudcover"][i] = fv(r.CloudCover)
		f.data["visibility"][i] = fv(r.Visibility)
		f.data["sealevelpressure"][i] = fv(r.SeaLevelPressure)
	}
	return f
}

func (f *Frame) addColumn(name string, vals []float64) {
	f.Columns = append(f.Columns, name)
	f.data[name] = vals
}

// Rows returns the number of rows in the frame.
func (f *Frame) Rows() int {
	return len(f.Dates)
}

// Values returns the column values, or nil if the column does not exist.
func (f *Frame) Values(name string) []float64 {
	return f.data[name]
}

// rollingSum produces the trailing window sum; positions with fewer than
// window values, or any null inside the window, are null.
func rollingSum(vals []float64, window int) []float64 {
	out := make([]float64, len(vals))
	for i := range out {
		if i < window-1 {
			out[i] = math.NaN()
			continue
		}
		sum := 0.0
		for j := i - window + 1; j <= i; j++ {
			sum += vals[j]
		}
		out[i] = sum // NaN contaminates the sum, which is the point
	}
	return out
}

// Engineer appends the derived columns: total pollution, 7-day rolling
// sums, calendar seasonality and pairwise interactions.
func (f *Frame) Engineer() {
	n := f.Rows()

	total := make([]float64, n)
	for i := range total {
		total[i] = f.data["pm25"][i] + f.data["pm10"][i] + f.data["no2"][i] +
			f.data["so2"][i] + f.data["co"][i] + f.data["o3"][i]
	}
	f.addColumn("total_pollution", total)

	f.addColumn("aqi_cum_sum_7", rollingSum(f.data["AQI"], rollingWindow))
	f.addColumn("pm25_cum_sum_7", rollingSum(f.data["pm25"], rollingWindow))

	month := make([]float64, n)
	summer := make([]float64, n)
	winter := make([]float64, n)
	for i, date := range f.Dates {
		t, err := time.Parse(models.DateLayout, date)
		if err != nil {
			month[i] = math.NaN()
			summer[i] = math.NaN()
			winter[i] = math.NaN()
			continue
		}
		m := int(t.Month())
		month[i] = float64(m)
		if m >= 6 && m <= 8 {
			summer[i] = 1
		}
		if m == 12 || m == 1 || m == 2 {
			winter[i] = 1
		}
	}
	f.addColumn("month", month)
	f.addColumn("is_summer", summer)
	f.addColumn("is_winter", winter)

	product := func(a, b string) []float64 {
		out := make([]float64, n)
		for i := range out {
			out[i] = f.data[a][i] * f.data[b][i]
		}
		return out
	}
	f.addColumn("pm25_co_interaction", product("pm25", "co"))
	f.addColumn("temp_humidity_interaction", product("temp", "humidity"))
	f.addColumn("pm25_no2_interaction", product("pm25", "no2"))
	f.addColumn("pm25_so2_interaction", product("pm25", "so2"))
}

// AddLags appends lag_1_AQI..lag_n_AQI shifted from the AQI column.
func (f *Frame) AddLags(n int) {
	aqi := f.data["AQI"]
	for lag := 1; lag <= n; lag++ {
		col := make([]float64, f.Rows())
		for i := range col {
			if i < lag {
				col[i] = math.NaN()
			} else {
				col[i] = aqi[i-lag]
			}
		}
		f.addColumn(fmt.Sprintf("lag_%d_AQI", lag), col)
	}
}

// DropIncomplete removes every row containing a null in any column. After
// AddLags this drops the series warm-up period, so the surviving rows all
// carry a full feature vector.
func (f *Frame) DropIncomplete() {
	keep := make([]int, 0, f.Rows())
	for i := 0; i < f.Rows(); i++ {
		complete := true
		for _, col := range f.Columns {
			if math.IsNaN(f.data[col][i]) {
				complete = false
				break
			}
		}
		if complete {
			keep = append(keep, i)
		}
	}

	dates := make([]string, len(keep))
	for j, i := range keep {
		dates[j] = f.Dates[i]
	}
	f.Dates = dates
	for _, col := range f.Columns {
		vals := make([]float64, len(keep))
		for j, i := range keep {
			vals[j] = f.data[col][i]
		}
		f.data[col] = vals
	}
}

// Build runs the full pipeline: base frame, engineered columns, AQI lags,
// incomplete-row drop. The result is ready for training or inference.
func Build(records []models.CleanedRecord) *Frame {
	f := FromCleaned(records)
	f.Engineer()
	f.AddLags(NumLags)
	f.DropIncomplete()
	return f
}

// FeatureColumns lists the model input columns, excluding the AQI target.
func (f *Frame) FeatureColumns() []string {
	cols := make([]string, 0, len(f.Columns)-1)
	for _, c := range f.Columns {
		if c == "AQI" {
			continue
		}
		cols = append(cols, c)
	}
	return cols
}

// RowVector assembles row i in the given column order. A requested column
// missing from the frame is a schema mismatch reported to the caller.
func (f *Frame) RowVector(i int, cols []string) ([]float64, error) {
	if i < 0 || i >= f.Rows() {
		return nil, fmt.Errorf("row %d out of range (%d rows)", i, f.Rows())
	}
	out := make([]float64, len(cols))
	for j, col := range cols {
		vals, ok := f.data[col]
		if !ok {
			return nil, fmt.Errorf("column %q not in frame", col)
		}
		out[j] = vals[i]
	}
	return out, nil
}
