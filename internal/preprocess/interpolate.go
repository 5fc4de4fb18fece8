package preprocess

import "database/sql"

// Interpolate fills interior null gaps linearly between the nearest known
// neighbors. Leading and trailing nulls are left untouched; positions in the
// slice are treated as equally spaced.
func Interpolate(vals []sql.NullFloat64) {
	prev := -1
	for i, v := range vals {
		if !v.Valid {
			continue
		}
		if prev >= 0 && i-prev > 1 {
			lo := vals[prev].Float64
			hi := v.Float64
			span := float64(i - prev)
			for j := prev + 1; j < i; j++ {
				frac := float64(j-prev) / span
				vals[j] = sql.NullFloat64{Float64: lo + (hi-lo)*frac, Valid: true}
			}
		}
		prev = i
	}
}

// ForwardFill copies the last known value into trailing nulls.
func ForwardFill(vals []sql.NullFloat64) {
	var last sql.NullFloat64
	for i, v := range vals {
		if v.Valid {
			last = v
		} else if last.Valid {
			vals[i] = last
		}
	}
}

// BackFill copies the next known value into leading nulls.
func BackFill(vals []sql.NullFloat64) {
	var next sql.NullFloat64
	for i := len(vals) - 1; i >= 0; i-- {
		if vals[i].Valid {
			next = vals[i]
		} else if next.Valid {
			vals[i] = next
		}
	}
}
