package routing

import (
	"fmt"
	"math"
)

// Cosine computes the cosine similarity between two equal-length float32
// vectors. Profile and nutrient embeddings are unit-L2-normalized at write
// time (spec.md §3), so the typical range is [0,1], but callers must not
// assume normalization here — this function computes the full cosine
// formula and tolerates unnormalized input.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("cosine: dimension mismatch %d != %d", len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		af, bf := float64(a[i]), float64(b[i])
		dot += af * bf
		na += af * af
		nb += bf * bf
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if math.IsNaN(sim) || math.IsInf(sim, 0) {
		return 0, fmt.Errorf("cosine: non-finite result")
	}
	// Clamp tiny floating-point overshoot past [-1,1] from accumulated error.
	if sim > 1 {
		sim = 1
	} else if sim < -1 {
		sim = -1
	}
	return sim, nil
}
