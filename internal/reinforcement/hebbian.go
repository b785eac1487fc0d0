// Package reinforcement implements the Reinforcement Engine (spec.md §4.3,
// §4.4): Hebbian edge-weight updates from recorded outcomes, periodic
// exponential edge decay, and the EMA update of an agent's avg_success.
package reinforcement

import "math"

// Config holds the tunable reinforcement weights. Defaults below match
// spec.md §4.3/§4.4.
type Config struct {
	AlphaPos          float64 // strengthening rate, default 0.08
	AlphaNeg          float64 // weakening rate, default 0.04
	ThetaPos          float64 // success threshold, default 0.6
	WInit             float64 // edge weight assumed when none exists, default 0.2
	WMin              float64 // edge weight floor, 0.01
	WMax              float64 // edge weight ceiling, 1.5
	LambdaDecayPerDay float64 // exponential decay rate, default 0.02/day
	EMAAlpha          float64 // avg_success EMA rate, default 0.1
}

// DefaultConfig returns the spec.md defaults.
func DefaultConfig() Config {
	return Config{
		AlphaPos:          0.08,
		AlphaNeg:          0.04,
		ThetaPos:          0.6,
		WInit:             0.2,
		WMin:              0.01,
		WMax:              1.5,
		LambdaDecayPerDay: 0.02,
		EMAAlpha:          0.1,
	}
}

// HebbianDelta computes the weight update for one edge given the effective
// outcome score for the hop it carried, per spec.md §4.3:
//
//	Δw = α_pos · effective · (1 − w)        if effective >= θ_pos
//	Δw = −α_neg · (1 − effective) · w        otherwise
//
// exploration halves α_neg, so an edge used only because of ε-greedy
// exploration is not unfairly punished for one bad outcome.
func HebbianDelta(w, effective float64, exploration bool, cfg Config) float64 {
	alphaNeg := cfg.AlphaNeg
	if exploration {
		alphaNeg /= 2
	}
	if effective >= cfg.ThetaPos {
		return cfg.AlphaPos * effective * (1 - w)
	}
	return -alphaNeg * (1 - effective) * w
}

// ApplyWeight clamps w+delta to [wMin, wMax].
func ApplyWeight(w, delta, wMin, wMax float64) float64 {
	next := w + delta
	if next < wMin {
		return wMin
	}
	if next > wMax {
		return wMax
	}
	return next
}

// Decay computes the exponentially decayed weight after deltaDays of
// elapsed time with no reinforcement, per spec.md §4.4:
//
//	w' = w_min + (w − w_min) · exp(−λ_decay · Δt_days)
func Decay(w, lambdaDecayPerDay, deltaDays, wMin float64) float64 {
	return wMin + (w-wMin)*math.Exp(-lambdaDecayPerDay*deltaDays)
}

// EMAAvgSuccess folds a new outcome score into an agent's running
// avg_success estimate: avg' = avg + alpha*(score - avg).
func EMAAvgSuccess(avg, score, alpha float64) float64 {
	return avg + alpha*(score-avg)
}

// MemoryQualityDelta applies the same Hebbian rule used for edges to a
// memory's quality, at half the rate (spec.md §4.4: "by the same rule with
// smaller rates, α_pos/2, α_neg/2"). The delta is not clamped here; the
// caller bounds the updated quality to [0,1].
func MemoryQualityDelta(quality, effective float64, cfg Config) float64 {
	if effective >= cfg.ThetaPos {
		return (cfg.AlphaPos / 2) * effective * (1 - quality)
	}
	return -(cfg.AlphaNeg / 2) * (1 - effective) * quality
}
