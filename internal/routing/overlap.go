package routing

import "github.com/xrash/smetrics"

// jaroWinklerBoostThreshold and prefixSize are the smetrics.JaroWinkler
// tuning knobs; these are its conventional defaults.
const (
	jaroWinklerBoostThreshold = 0.7
	jaroWinklerPrefixSize     = 4
	overlapMatchThreshold     = 0.75
)

// SemanticOverlap computes the mean of each nutrient tool hint's top-match
// Jaro-Winkler similarity against the candidate's recent-demand list,
// treating any top match below overlapMatchThreshold as zero (spec.md
// §4.1). Empty hints or empty demand both yield 0.
func SemanticOverlap(hints, demand []string) float64 {
	if len(hints) == 0 || len(demand) == 0 {
		return 0
	}
	var sum float64
	for _, hint := range hints {
		best := 0.0
		for _, d := range demand {
			sim := smetrics.JaroWinkler(hint, d, jaroWinklerBoostThreshold, jaroWinklerPrefixSize)
			if sim > best {
				best = sim
			}
		}
		if best < overlapMatchThreshold {
			best = 0
		}
		sum += best
	}
	return sum / float64(len(hints))
}

// CapabilityBoost computes the exact-token-match capability bonus:
// min(CapMax, CapPerToken * |hints ∩ capabilities|), with the number of
// contributing matches capped at CapMaxMatches (spec.md §4.1).
func CapabilityBoost(hints, capabilities []string, cfg Config) float64 {
	if len(hints) == 0 || len(capabilities) == 0 {
		return 0
	}
	capSet := make(map[string]struct{}, len(capabilities))
	for _, c := range capabilities {
		capSet[c] = struct{}{}
	}
	matches := 0
	maxMatches := cfg.CapMaxMatches
	if maxMatches <= 0 {
		maxMatches = 4
	}
	seen := make(map[string]struct{}, len(hints))
	for _, h := range hints {
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		if _, ok := capSet[h]; ok {
			matches++
			if matches >= maxMatches {
				break
			}
		}
	}
	perToken := cfg.CapPerToken
	if perToken <= 0 {
		perToken = 0.05
	}
	boost := perToken * float64(matches)
	capMax := cfg.CapMax
	if capMax <= 0 {
		capMax = 0.2
	}
	if boost > capMax {
		boost = capMax
	}
	return boost
}
