package history

import (
	"math"
	"time"
)

// DecayConfig ages validated confidences.
type DecayConfig struct {
	// HalfLifeDays is the age at which a validation counts half. Zero or
	// negative disables decay.
	HalfLifeDays int     `yaml:"half_life_days" json:"half_life_days"`
	Floor        float64 `yaml:"floor" json:"floor"`
}

// DecayedConfidence returns max(floor, raw * 2^(-age/halfLife)). The floor
// never lifts a value above raw.
func DecayedConfidence(raw float64, validatedAt, now time.Time, decay DecayConfig) float64 {
	if raw <= 0 {
		return 0
	}
	if decay.HalfLifeDays <= 0 || validatedAt.IsZero() {
		return raw
	}
	ageDays := now.Sub(validatedAt).Hours() / 24
	if ageDays <= 0 {
		return raw
	}

	decayed := raw * math.Pow(2, -ageDays/float64(decay.HalfLifeDays))
	floor := math.Min(decay.Floor, raw)
	if decayed < floor {
		return floor
	}
	return decayed
}
