package routing

import "math"

// simCacheKey is an unordered pair of agent ids, used to memoize pairwise
// cosines within a single SelectMMR call (spec.md §4.1: "the engine MUST
// NOT recompute them across MMR iterations").
type simCacheKey struct{ a, b string }

func newSimCacheKey(a, b string) simCacheKey {
	if a > b {
		a, b = b, a
	}
	return simCacheKey{a, b}
}

// SelectMMR greedily selects up to k candidates by Maximum Marginal
// Relevance (spec.md §4.1):
//
//	MMR(a) = λ·score(a) − (1−λ)·max_{b∈Selected} cosine(a.embedding, b.embedding)
//
// The first pick is the highest-scoring candidate; subsequent picks
// maximize MMR against the selected set. Ties are broken by (higher
// original sim, then lexicographic agent_id). Pairwise cosines are
// memoized for the duration of the call and never recomputed.
func SelectMMR(scored []Scored, embeddings map[string][]float32, k int, lambda float64) []Scored {
	if k <= 0 || len(scored) == 0 {
		return nil
	}

	remaining := make([]Scored, len(scored))
	copy(remaining, scored)
	sortByScoreDesc(remaining)

	simCache := make(map[simCacheKey]float64, len(scored)*len(scored)/2)
	similarity := func(aID, bID string) float64 {
		key := newSimCacheKey(aID, bID)
		if v, ok := simCache[key]; ok {
			return v
		}
		sim, err := Cosine(embeddings[aID], embeddings[bID])
		if err != nil {
			sim = 0
		}
		simCache[key] = sim
		return sim
	}

	selected := make([]Scored, 0, k)

	// First pick: the highest-scoring candidate (remaining is already
	// sorted score-desc, sim-desc, id-asc).
	selected = append(selected, remaining[0])
	remaining = remaining[1:]

	for len(selected) < k && len(remaining) > 0 {
		bestIdx := 0
		bestMMR := mmrScore(remaining[0], selected, lambda, similarity)
		for i := 1; i < len(remaining); i++ {
			m := mmrScore(remaining[i], selected, lambda, similarity)
			if m > bestMMR || (m == bestMMR && isMMRTieBetter(remaining[i], remaining[bestIdx])) {
				bestMMR = m
				bestIdx = i
			}
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	return selected
}

func mmrScore(cand Scored, selected []Scored, lambda float64, similarity func(a, b string) float64) float64 {
	maxSim := math.Inf(-1)
	for _, s := range selected {
		sim := similarity(cand.AgentID, s.AgentID)
		if sim > maxSim {
			maxSim = sim
		}
	}
	if maxSim == math.Inf(-1) {
		maxSim = 0
	}
	return lambda*cand.Score - (1-lambda)*maxSim
}

// isMMRTieBetter reports whether a should be preferred over b when their
// MMR scores are exactly equal: higher original sim wins, then
// lexicographically smaller agent_id.
func isMMRTieBetter(a, b Scored) bool {
	if a.Sim != b.Sim {
		return a.Sim > b.Sim
	}
	return a.AgentID < b.AgentID
}
