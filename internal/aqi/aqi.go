// Package aqi maps pollutant concentrations to air-quality sub-indices
// via CPCB breakpoint tables.
package aqi

import "database/sql"

// Breakpoint is one concentration band with its index range.
type Breakpoint struct {
	CLo, CHi float64
	ILo, IHi float64
}

// CPCB national standard bands, six per pollutant.
var (
	PM25 = []Breakpoint{
		{0, 30, 0, 50}, {31, 60, 51, 100}, {61, 90, 101, 200},
		{91, 120, 201, 300}, {121, 250, 301, 400}, {251, 500, 401, 500},
	}
	PM10 = []Breakpoint{
		{0, 50, 0, 50}, {51, 100, 51, 100}, {101, 250, 101, 200},
		{251, 350, 201, 300}, {351, 430, 301, 400}, {431, 600, 401, 500},
	}
	O3 = []Breakpoint{
		{0, 50, 0, 50}, {51, 100, 51, 100}, {101, 168, 101, 200},
		{169, 208, 201, 300}, {209, 748, 301, 400}, {748, 1000, 401, 500},
	}
	NO2 = []Breakpoint{
		{0, 40, 0, 50}, {41, 80, 51, 100}, {81, 180, 101, 200},
		{181, 280, 201, 300}, {281, 400, 301, 400}, {401, 800, 401, 500},
	}
	SO2 = []Breakpoint{
		{0, 40, 0, 50}, {41, 80, 51, 100}, {81, 380, 101, 200},
		{381, 800, 201, 300}, {801, 1600, 301, 400}, {1601, 3000, 401, 500},
	}
	CO = []Breakpoint{
		{0, 1.0, 0, 50}, {1.1, 2.0, 51, 100}, {2.1, 10, 101, 200},
		{10.1, 17.0, 201, 300}, {17.1, 34.0, 301, 400}, {34.1, 50, 401, 500},
	}
)

// Subindex linearly interpolates the index for a concentration within its
// band. Band edges are inclusive on both ends; the first matching band wins,
// which keeps values at shared boundaries in the lower band. Concentrations
// outside every band (negative, or above the top band) return null rather
// than an error; callers tolerate null sub-indices downstream.
func Subindex(c sql.NullFloat64, table []Breakpoint) sql.NullFloat64 {
	if !c.Valid {
		return sql.NullFloat64{}
	}
	for _, b := range table {
		if b.CLo <= c.Float64 && c.Float64 <= b.CHi {
			idx := b.ILo + (c.Float64-b.CLo)*(b.IHi-b.ILo)/(b.CHi-b.CLo)
			return sql.NullFloat64{Float64: idx, Valid: true}
		}
	}
	return sql.NullFloat64{}
}

// Overall returns the maximum of the non-null sub-indices, or null if
// every sub-index is null.
func Overall(subs ...sql.NullFloat64) sql.NullFloat64 {
	var out sql.NullFloat64
	for _, s := range subs {
		if !s.Valid {
			continue
		}
		if !out.Valid || s.Float64 > out.Float64 {
			out = s
		}
	}
	return out
}
