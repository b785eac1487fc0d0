package routing

import (
	"math/rand"
	"testing"

	"github.com/hyphalmesh/substrate/pkg/models"
)

func embedding1536(set map[int]float32) []float32 {
	v := make([]float32, models.EmbeddingDim)
	for i, f := range set {
		v[i] = f
	}
	return v
}

// TestScoreColdStart mirrors S1: three orthogonal profiles, no edges yet;
// the nutrient's embedding equals B's, so B should score highest.
func TestScoreColdStart(t *testing.T) {
	eng := New(DefaultConfig())
	n := NutrientInput{Embedding: embedding1536(map[int]float32{1: 1})}

	candidates := []Candidate{
		{AgentID: "A", ProfileEmbedding: embedding1536(map[int]float32{0: 1})},
		{AgentID: "B", ProfileEmbedding: embedding1536(map[int]float32{1: 1})},
		{AgentID: "C", ProfileEmbedding: embedding1536(map[int]float32{2: 1})},
	}

	scored := eng.ScoreAll(n, candidates)
	if len(scored) != 3 {
		t.Fatalf("expected 3 scored candidates, got %d", len(scored))
	}
	best := scored[0]
	for _, s := range scored[1:] {
		if s.Score > best.Score {
			best = s
		}
	}
	if best.AgentID != "B" {
		t.Errorf("expected B to score highest, got %s (scores=%+v)", best.AgentID, scored)
	}
}

func TestScoreUsesEdgeWeightWhenPresent(t *testing.T) {
	eng := New(DefaultConfig())
	n := NutrientInput{Embedding: embedding1536(map[int]float32{0: 1})}
	w := 1.5
	withEdge := Candidate{AgentID: "A", ProfileEmbedding: embedding1536(map[int]float32{0: 1}), EdgeWeight: &w}
	withoutEdge := Candidate{AgentID: "B", ProfileEmbedding: embedding1536(map[int]float32{0: 1})}

	sWith, err := eng.Score(n, withEdge)
	if err != nil {
		t.Fatal(err)
	}
	sWithout, err := eng.Score(n, withoutEdge)
	if err != nil {
		t.Fatal(err)
	}
	if sWith.Score <= sWithout.Score {
		t.Errorf("expected higher score with a stronger edge weight: with=%f without=%f", sWith.Score, sWithout.Score)
	}
}

func TestScoreDimensionMismatchDropsCandidateNotWholeCall(t *testing.T) {
	eng := New(DefaultConfig())
	n := NutrientInput{Embedding: embedding1536(map[int]float32{0: 1})}
	candidates := []Candidate{
		{AgentID: "good", ProfileEmbedding: embedding1536(map[int]float32{0: 1})},
		{AgentID: "bad", ProfileEmbedding: make([]float32, 1535)},
	}
	scored := eng.ScoreAll(n, candidates)
	if len(scored) != 1 || scored[0].AgentID != "good" {
		t.Errorf("expected only the well-formed candidate to survive scoring, got %+v", scored)
	}
}

func TestRouteRejectsBadNutrientEmbeddingDim(t *testing.T) {
	eng := New(DefaultConfig())
	for _, dim := range []int{1535, 1537} {
		n := NutrientInput{Embedding: make([]float32, dim)}
		_, err := eng.Route(n, nil, 20)
		if err == nil {
			t.Errorf("expected InvalidArgument for embedding dim %d", dim)
		}
	}
}

func TestRouteReturnsAtMostKWithNoDuplicates(t *testing.T) {
	eng := New(DefaultConfig())
	n := NutrientInput{Embedding: embedding1536(map[int]float32{0: 1})}
	candidates := make([]Candidate, 0, 10)
	for i := 0; i < 10; i++ {
		candidates = append(candidates, Candidate{
			AgentID:          string(rune('A' + i)),
			ProfileEmbedding: embedding1536(map[int]float32{i % models.EmbeddingDim: 1}),
		})
	}
	selected, err := eng.Route(n, candidates, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(selected) > 5 {
		t.Errorf("expected at most 5 recipients, got %d", len(selected))
	}
	seen := map[string]bool{}
	for _, s := range selected {
		if seen[s.AgentID] {
			t.Errorf("duplicate recipient %s", s.AgentID)
		}
		seen[s.AgentID] = true
	}
}

func TestApplyExplorationFlagsAndFloors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Epsilon = 1.0 // force exploration on every candidate for determinism
	eng := NewWithRand(cfg, rand.New(rand.NewSource(1)))

	scored := []Scored{{AgentID: "A", Score: 0.01}}
	out := eng.ApplyExploration(scored)
	if !out[0].Exploration {
		t.Fatal("expected exploration flag to be set")
	}
	if out[0].Score < cfg.EpsilonFloor {
		t.Errorf("expected exploration score to be floored at >= %f, got %f", cfg.EpsilonFloor, out[0].Score)
	}
}

func TestApplyExplorationNoOpWhenEpsilonZero(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Epsilon = 0
	eng := New(cfg)
	scored := []Scored{{AgentID: "A", Score: 0.42}}
	out := eng.ApplyExploration(scored)
	if out[0].Exploration || out[0].Score != 0.42 {
		t.Errorf("expected no-op when epsilon=0, got %+v", out[0])
	}
}
