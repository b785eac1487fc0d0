package reinforcement

import (
	"math"
	"testing"
)

func TestHebbianDeltaStrengthensAboveThreshold(t *testing.T) {
	cfg := DefaultConfig()
	delta := HebbianDelta(0.2, 0.9, false, cfg)
	if delta <= 0 {
		t.Errorf("expected positive delta for effective >= theta_pos, got %f", delta)
	}
}

func TestHebbianDeltaWeakensBelowThreshold(t *testing.T) {
	cfg := DefaultConfig()
	delta := HebbianDelta(0.5, 0.1, false, cfg)
	if delta >= 0 {
		t.Errorf("expected negative delta for effective < theta_pos, got %f", delta)
	}
}

func TestHebbianDeltaExplorationHalvesWeakening(t *testing.T) {
	cfg := DefaultConfig()
	normal := HebbianDelta(0.5, 0.1, false, cfg)
	explore := HebbianDelta(0.5, 0.1, true, cfg)
	if math.Abs(explore) >= math.Abs(normal) {
		t.Errorf("expected exploration-flagged weakening to be smaller in magnitude: normal=%f explore=%f", normal, explore)
	}
	if math.Abs(explore-normal/2) > 1e-9 {
		t.Errorf("expected exploration delta to be exactly half: got %f want %f", explore, normal/2)
	}
}

func TestApplyWeightClamps(t *testing.T) {
	if w := ApplyWeight(1.45, 0.5, 0.01, 1.5); w != 1.5 {
		t.Errorf("expected clamp to wMax, got %f", w)
	}
	if w := ApplyWeight(0.02, -0.5, 0.01, 1.5); w != 0.01 {
		t.Errorf("expected clamp to wMin, got %f", w)
	}
}

// TestDecayReversesUnusedEdges mirrors S3: w=1.0 decayed over 30 days with
// lambda=0.02/day should land near w_min + (1 - w_min)*exp(-0.6) ≈ 0.55.
func TestDecayReversesUnusedEdges(t *testing.T) {
	w := Decay(1.0, 0.02, 30, 0.01)
	want := 0.01 + (1.0-0.01)*math.Exp(-0.02*30)
	if math.Abs(w-want) > 1e-9 {
		t.Errorf("got %f want %f", w, want)
	}
	if w < 0.5 || w > 0.6 {
		t.Errorf("expected decayed weight near 0.55, got %f", w)
	}
}

func TestDecayNeverDropsBelowWMin(t *testing.T) {
	w := Decay(0.01, 0.02, 10000, 0.01)
	if w < 0.01-1e-9 {
		t.Errorf("decay must not go below w_min, got %f", w)
	}
}

func TestEMAAvgSuccessMovesTowardScore(t *testing.T) {
	next := EMAAvgSuccess(0.5, 1.0, 0.1)
	if next <= 0.5 || next >= 1.0 {
		t.Errorf("expected EMA to move partway toward score, got %f", next)
	}
}

func TestMemoryQualityDeltaHalvedRates(t *testing.T) {
	cfg := DefaultConfig()
	edgeDelta := HebbianDelta(0.5, 0.9, false, cfg)
	memDelta := MemoryQualityDelta(0.5, 0.9, cfg)
	if math.Abs(memDelta) >= math.Abs(edgeDelta) {
		t.Errorf("expected memory quality delta to use halved rates: edge=%f mem=%f", edgeDelta, memDelta)
	}
}
