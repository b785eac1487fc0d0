// Package routing implements the pure, side-effect-free Routing Engine
// (spec.md §4.1): candidate scoring, ε-greedy exploration and Maximum
// Marginal Relevance diversification. The engine performs no I/O; its only
// possible failures are input-validation errors (dimension mismatch,
// non-finite scores), surfaced as core.ErrInvalidArgument.
package routing

import (
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/hyphalmesh/substrate/internal/core"
	"github.com/hyphalmesh/substrate/pkg/models"
)

// Config holds the tunable weights of the scoring and diversification
// contract. All fields are expected to be supplied from internal/config's
// RoutingConfig; defaults below match spec.md §4.1.
type Config struct {
	Alpha         float64 // similarity weight, default 0.6
	Beta          float64 // edge-weight term weight, default 0.25
	Gamma         float64 // semantic-overlap weight, default 0.15
	Lambda        float64 // MMR lambda, default 0.5
	Epsilon       float64 // exploration probability, default 0.05
	EpsilonFloor  float64 // exploration score floor, default 0.3
	WInit         float64 // edge weight assumed when none exists, default 0.2
	WMax          float64 // edge weight saturation ceiling, 1.5
	CapMax        float64 // capability boost ceiling, 0.2
	CapPerToken   float64 // capability boost per matched token, 0.05
	CapMaxMatches int     // capability boost match cap, 4
}

// DefaultConfig returns the spec.md §4.1 default weights.
func DefaultConfig() Config {
	return Config{
		Alpha:         0.6,
		Beta:          0.25,
		Gamma:         0.15,
		Lambda:        0.5,
		Epsilon:       0.05,
		EpsilonFloor:  0.3,
		WInit:         0.2,
		WMax:          1.5,
		CapMax:        0.2,
		CapPerToken:   0.05,
		CapMaxMatches: 4,
	}
}

// NutrientInput is the portion of a nutrient the Routing Engine scores
// against; it is deliberately narrower than models.Nutrient.
type NutrientInput struct {
	Embedding []float32
	ToolHints []string
}

// Candidate is one routing candidate: an agent plus the edge weight from
// the sender to that agent, if one has been materialized yet.
type Candidate struct {
	AgentID          string
	ProfileEmbedding []float32
	Capabilities     []string
	RecentDemand     []string
	EdgeWeight       *float64 // nil => edge not yet materialized, use WInit
}

// Scored is a candidate plus its computed score and diagnostic fields. The
// Exploration flag MUST be persisted into the route record (spec.md §4.1)
// so reinforcement halves the weakening rate for exploration picks.
type Scored struct {
	AgentID     string
	Score       float64
	Sim         float64
	Exploration bool
}

// Engine runs the pure scoring + MMR pipeline. An Engine is safe for
// concurrent use; the only mutable state is the exploration random source,
// which is mutex-guarded.
type Engine struct {
	cfg Config
	mu  sync.Mutex
	rnd *rand.Rand
}

// New constructs an Engine with the given config and a random source used
// only for ε-greedy exploration. The source is seeded with the fixed
// constant from defaultSeed, so every Engine built by New draws the same
// exploration sequence.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg, rnd: rand.New(rand.NewSource(defaultSeed()))}
}

// NewWithRand constructs an Engine with an explicit random source, for
// deterministic tests of the exploration path.
func NewWithRand(cfg Config, rnd *rand.Rand) *Engine {
	return &Engine{cfg: cfg, rnd: rnd}
}

func defaultSeed() int64 { return 0x5bd1e995 }

// Score computes the combined score of a single candidate against a
// nutrient, per spec.md §4.1:
//
//	score = α·sim + β·(edge_w / w_max) + γ·overlap + cap
func (e *Engine) Score(n NutrientInput, c Candidate) (scored Scored, err error) {
	sim, err := Cosine(n.Embedding, c.ProfileEmbedding)
	if err != nil {
		return Scored{}, core.Wrap(core.CodeInvalidArgument, err, "score candidate %s", c.AgentID)
	}

	edgeW := e.cfg.WInit
	if c.EdgeWeight != nil {
		edgeW = *c.EdgeWeight
	}
	wMax := e.cfg.WMax
	if wMax <= 0 {
		wMax = 1.5
	}

	overlap := SemanticOverlap(n.ToolHints, c.RecentDemand)
	capBoost := CapabilityBoost(n.ToolHints, c.Capabilities, e.cfg)

	score := e.cfg.Alpha*sim + e.cfg.Beta*(edgeW/wMax) + e.cfg.Gamma*overlap + capBoost
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return Scored{}, core.New(core.CodeInvalidArgument, "non-finite score for candidate %s", c.AgentID)
	}

	return Scored{AgentID: c.AgentID, Score: score, Sim: sim}, nil
}

// ScoreAll scores every candidate, dropping (not failing on) any candidate
// whose own embedding is malformed — per spec.md §7, a single bad
// candidate profile must not fail the whole broadcast.
func (e *Engine) ScoreAll(n NutrientInput, candidates []Candidate) []Scored {
	out := make([]Scored, 0, len(candidates))
	for _, c := range candidates {
		s, err := e.Score(n, c)
		if err != nil {
			continue
		}
		out = append(out, s)
	}
	return out
}

// ApplyExploration runs the ε-greedy exploration pass described in
// spec.md §4.1: with probability ε, a candidate's score is replaced by
// max(score, uniform(ε_floor, 1.0)), and the candidate is flagged so
// reinforcement does not unfairly penalize the edge on a bad outcome.
// Applied after scoring and before MMR.
func (e *Engine) ApplyExploration(scored []Scored) []Scored {
	if e.cfg.Epsilon <= 0 {
		return scored
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Scored, len(scored))
	for i, s := range scored {
		if e.rnd.Float64() < e.cfg.Epsilon {
			floor := e.cfg.EpsilonFloor
			roll := floor + e.rnd.Float64()*(1.0-floor)
			if roll > s.Score {
				s.Score = roll
			}
			s.Exploration = true
		}
		out[i] = s
	}
	return out
}

// AdaptiveK computes the candidate bound K given the tenant's active
// agent population, per spec.md §4.1: clamp(20 + floor(n/50), 20, 50).
func AdaptiveK(nActiveAgents int) int {
	k := 20 + nActiveAgents/50
	if k < 20 {
		k = 20
	}
	if k > 50 {
		k = 50
	}
	return k
}

// Route runs the full pipeline (score -> explore -> MMR) and returns up to
// K recipients ordered by selection order (first = most relevant).
// MMR's redundancy term uses each candidate's ProfileEmbedding.
func (e *Engine) Route(n NutrientInput, candidates []Candidate, k int) ([]Scored, error) {
	if err := models.ValidateEmbedding(n.Embedding); err != nil {
		return nil, core.Wrap(core.CodeInvalidArgument, err, "nutrient embedding")
	}
	scored := e.ScoreAll(n, candidates)
	scored = e.ApplyExploration(scored)

	embeddings := make(map[string][]float32, len(candidates))
	for _, c := range candidates {
		embeddings[c.AgentID] = c.ProfileEmbedding
	}

	selected := SelectMMR(scored, embeddings, k, e.cfg.Lambda)
	return selected, nil
}

// sortByScoreDesc sorts candidates by score descending, then by
// (higher sim, then lexicographic agent_id) to match spec.md's MMR
// tie-break rule.
func sortByScoreDesc(s []Scored) {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].Score != s[j].Score {
			return s[i].Score > s[j].Score
		}
		if s[i].Sim != s[j].Sim {
			return s[i].Sim > s[j].Sim
		}
		return s[i].AgentID < s[j].AgentID
	})
}
