// Package tempo maps a BPM pair to a playback-rate ratio for the incoming channel.
//
// This is a cosmetic approximation: the rate changes pitch along with tempo and
// no beat alignment is attempted.
package tempo

const (
	DefaultMinRate = 0.85
	DefaultMaxRate = 1.15
	NeutralBPM     = 120.0
)

// Calculator computes clamped playback rates.
type Calculator struct {
	MinRate    float64
	MaxRate    float64
	DefaultBPM float64 // substituted for absent or non-positive BPM values
}

// Default returns a calculator with the standard clamp and neutral BPM.
func Default() Calculator {
	return Calculator{
		MinRate:    DefaultMinRate,
		MaxRate:    DefaultMaxRate,
		DefaultBPM: NeutralBPM,
	}
}

// ComputeRate returns clamp(fromBPM/toBPM, MinRate, MaxRate).
func (c Calculator) ComputeRate(fromBPM, toBPM float64) float64 {
	fallback := c.DefaultBPM
	if fallback <= 0 {
		fallback = NeutralBPM
	}
	if fromBPM <= 0 {
		fromBPM = fallback
	}
	if toBPM <= 0 {
		toBPM = fallback
	}
	return clamp(fromBPM/toBPM, c.MinRate, c.MaxRate)
}

// ComputeRate uses the default calculator.
func ComputeRate(fromBPM, toBPM float64) float64 {
	return Default().ComputeRate(fromBPM, toBPM)
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
