package aqi

import (
	"database/sql"
	"math"
	"testing"
)

func valid(f float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: f, Valid: true}
}

func TestSubindex_NullIn(t *testing.T) {
	tables := [][]Breakpoint{PM25, PM10, O3, NO2, SO2, CO}
	for _, table := range tables {
		if got := Subindex(sql.NullFloat64{}, table); got.Valid {
			t.Errorf("Subindex(null) = %v, want null", got)
		}
	}
}

func TestSubindex_KnownValues(t *testing.T) {
	tests := []struct {
		name  string
		c     float64
		table []Breakpoint
		want  float64
	}{
		{"pm25 band floor", 0, PM25, 0},
		{"pm25 band ceiling", 30, PM25, 50},
		{"pm25 mid first band", 15, PM25, 25},
		{"pm25 second band", 40, PM25, 51 + (40-31)*49.0/29.0},
		{"pm25 top band ceiling", 500, PM25, 500},
		{"pm10 moderate", 75, PM10, 51 + (75-51)*49.0/49.0},
		{"co fractional bands", 1.5, CO, 51 + (1.5-1.1)*49.0/0.9},
		{"no2 severe", 600, NO2, 401 + (600-401)*99.0/399.0},
	}
	for _, tt := range tests {
		got := Subindex(valid(tt.c), tt.table)
		if !got.Valid {
			t.Errorf("%s: Subindex(%v) = null, want %v", tt.name, tt.c, tt.want)
			continue
		}
		if math.Abs(got.Float64-tt.want) > 1e-9 {
			t.Errorf("%s: Subindex(%v) = %v, want %v", tt.name, tt.c, got.Float64, tt.want)
		}
	}
}

func TestSubindex_OutOfRange(t *testing.T) {
	tests := []struct {
		name  string
		c     float64
		table []Breakpoint
	}{
		{"negative pm25", -5, PM25},
		{"above top pm25", 501, PM25},
		{"above top co", 50.1, CO},
		{"gap between co bands", 1.05, CO},
	}
	for _, tt := range tests {
		if got := Subindex(valid(tt.c), tt.table); got.Valid {
			t.Errorf("%s: Subindex(%v) = %v, want null", tt.name, tt.c, got.Float64)
		}
	}
}

func TestSubindex_SharedBoundaryLowerBandWins(t *testing.T) {
	// 748 appears as the ceiling of the fifth O3 band and the floor of the
	// sixth; the scan must stop at the lower band.
	got := Subindex(valid(748), O3)
	if !got.Valid {
		t.Fatal("Subindex(748, O3) = null")
	}
	if got.Float64 != 400 {
		t.Errorf("Subindex(748, O3) = %v, want 400 (lower band ceiling)", got.Float64)
	}
}

func TestSubindex_MonotonicWithinBands(t *testing.T) {
	tables := map[string][]Breakpoint{
		"pm25": PM25, "pm10": PM10, "o3": O3, "no2": NO2, "so2": SO2, "co": CO,
	}
	for name, table := range tables {
		for _, b := range table {
			prev := math.Inf(-1)
			for i := 0; i <= 10; i++ {
				c := b.CLo + float64(i)*(b.CHi-b.CLo)/10
				got := Subindex(valid(c), table)
				if !got.Valid {
					t.Fatalf("%s: Subindex(%v) = null inside band %+v", name, c, b)
				}
				if got.Float64 < prev {
					t.Errorf("%s: Subindex(%v) = %v < previous %v", name, c, got.Float64, prev)
				}
				prev = got.Float64
			}
		}
	}
}

func TestOverall(t *testing.T) {
	tests := []struct {
		name string
		subs []sql.NullFloat64
		want sql.NullFloat64
	}{
		{"all null", []sql.NullFloat64{{}, {}, {}}, sql.NullFloat64{}},
		{"single value", []sql.NullFloat64{{}, valid(120), {}}, valid(120)},
		{"max wins", []sql.NullFloat64{valid(80), valid(210), valid(45)}, valid(210)},
		{"nulls ignored", []sql.NullFloat64{{}, valid(33), valid(90), {}}, valid(90)},
	}
	for _, tt := range tests {
		got := Overall(tt.subs...)
		if got.Valid != tt.want.Valid || got.Float64 != tt.want.Float64 {
			t.Errorf("%s: Overall = %+v, want %+v", tt.name, got, tt.want)
		}
	}
}
