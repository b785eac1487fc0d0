package router

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hyphalmesh/substrate/internal/core"
	"github.com/hyphalmesh/substrate/internal/routing"
	"github.com/hyphalmesh/substrate/internal/store"
	"github.com/hyphalmesh/substrate/pkg/models"
)

type fakeRateLimitStore struct{ count int64 }

func (f *fakeRateLimitStore) Incr(context.Context, string, string, string, time.Duration) (int64, time.Duration, error) {
	f.count++
	return f.count, time.Minute, nil
}

type fakePolicyStore struct{ policies []models.Policy }

func (f *fakePolicyStore) ListEnabled(context.Context, string, models.PolicyKind) ([]models.Policy, error) {
	return f.policies, nil
}

type fakeNutrientStore struct {
	byID map[string]models.Nutrient
}

func newFakeNutrientStore() *fakeNutrientStore {
	return &fakeNutrientStore{byID: map[string]models.Nutrient{}}
}

func (f *fakeNutrientStore) Insert(_ context.Context, n models.Nutrient) error {
	f.byID[n.ID] = n
	return nil
}
func (f *fakeNutrientStore) Get(_ context.Context, tenantID, id string) (*models.Nutrient, error) {
	n, ok := f.byID[id]
	if !ok {
		return nil, nil
	}
	return &n, nil
}
func (f *fakeNutrientStore) ActiveForCollect(_ context.Context, tenantID string, limit int) ([]models.Nutrient, error) {
	var out []models.Nutrient
	for _, n := range f.byID {
		if n.TenantID == tenantID {
			out = append(out, n)
		}
	}
	return out, nil
}
func (f *fakeNutrientStore) SweepExpired(context.Context, string, time.Time) (int64, error) {
	return 0, nil
}

type fakeEdgeStore struct {
	neighbors map[string][]models.Edge // keyed by src
}

func (f *fakeEdgeStore) Get(context.Context, string, string, string) (*models.Edge, error) {
	return nil, nil
}
func (f *fakeEdgeStore) TopNeighbors(_ context.Context, tenantID, src string, limit int) ([]models.Edge, error) {
	edges := f.neighbors[src]
	if len(edges) > limit {
		edges = edges[:limit]
	}
	return edges, nil
}
func (f *fakeEdgeStore) ApplyDelta(context.Context, string, string, string, float64, float64, float64, float64) (float64, error) {
	return 0, nil
}
func (f *fakeEdgeStore) DecayTenant(context.Context, string, float64, float64, float64) (int64, error) {
	return 0, nil
}

type fakeAgentStore struct {
	profiles map[string]models.AgentProfile
}

func (f *fakeAgentStore) Get(_ context.Context, tenantID, agentID string) (*models.AgentProfile, error) {
	p, ok := f.profiles[agentID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}
func (f *fakeAgentStore) Upsert(_ context.Context, p models.AgentProfile) error {
	f.profiles[p.AgentID] = p
	return nil
}
func (f *fakeAgentStore) HydrateMany(_ context.Context, tenantID string, ids []string) ([]models.AgentProfile, error) {
	out := make([]models.AgentProfile, 0, len(ids))
	for _, id := range ids {
		if p, ok := f.profiles[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}
func (f *fakeAgentStore) CountActive(_ context.Context, tenantID string) (int, error) {
	return len(f.profiles), nil
}
func (f *fakeAgentStore) UpdateAvgSuccess(context.Context, string, string, float64) error { return nil }
func (f *fakeAgentStore) Deactivate(_ context.Context, tenantID, agentID string) error {
	p := f.profiles[agentID]
	p.Status = "inactive"
	f.profiles[agentID] = p
	return nil
}
func (f *fakeAgentStore) List(_ context.Context, tenantID string) ([]models.AgentProfile, error) {
	out := make([]models.AgentProfile, 0, len(f.profiles))
	for _, p := range f.profiles {
		out = append(out, p)
	}
	return out, nil
}
func (f *fakeAgentStore) ActiveExcluding(_ context.Context, tenantID, excludeAgentID string, limit int) ([]models.AgentProfile, error) {
	out := make([]models.AgentProfile, 0, len(f.profiles))
	for _, p := range f.profiles {
		if p.AgentID == excludeAgentID || p.Status != "active" {
			continue
		}
		out = append(out, p)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

type fakeRouteStore struct {
	inserted []models.RouteRecord
}

func (f *fakeRouteStore) InsertMany(_ context.Context, records []models.RouteRecord) error {
	f.inserted = append(f.inserted, records...)
	return nil
}
func (f *fakeRouteStore) ByTrace(context.Context, string, string) ([]models.RouteRecord, error) {
	return nil, nil
}
func (f *fakeRouteStore) CleanupOlderThan(context.Context, string, time.Time) (int64, error) {
	return 0, nil
}

type fakeDeliverer struct{ deliveries []string }

func (f *fakeDeliverer) Deliver(_ context.Context, tenantID, recipientAgentID, traceID string, n models.Nutrient) error {
	f.deliveries = append(f.deliveries, recipientAgentID)
	return nil
}

func orthogonalEmbedding(axis int) []float32 {
	v := make([]float32, models.EmbeddingDim)
	v[axis] = 1
	return v
}

func newTestService(t *testing.T, edges *fakeEdgeStore, agentStore *fakeAgentStore, routeStore *fakeRouteStore, deliverer *fakeDeliverer) *Service {
	t.Helper()
	return New(
		DefaultConfig(),
		routing.New(routing.DefaultConfig()),
		&fakeRateLimitStore{},
		&fakePolicyStore{},
		newFakeNutrientStore(),
		edges,
		agentStore,
		routeStore,
		deliverer,
		nil, nil, nil,
		zap.NewNop(),
	)
}

// TestBroadcastColdStartRoutesToMostSimilarNeighbor mirrors S1: three
// agents with orthogonal embeddings, broadcast from A with embedding = e_B,
// expect B to be the top recipient once an edge exists from A. C is
// delivered too, since K (20) exceeds the two candidates.
func TestBroadcastColdStartRoutesToMostSimilarNeighbor(t *testing.T) {
	agentStore := &fakeAgentStore{profiles: map[string]models.AgentProfile{
		"B": {TenantID: "t1", AgentID: "B", ProfileEmbedding: orthogonalEmbedding(1), Status: "active"},
		"C": {TenantID: "t1", AgentID: "C", ProfileEmbedding: orthogonalEmbedding(2), Status: "active"},
	}}
	edges := &fakeEdgeStore{neighbors: map[string][]models.Edge{
		"A": {
			{TenantID: "t1", Src: "A", Dst: "B", Weight: 0.2},
			{TenantID: "t1", Src: "A", Dst: "C", Weight: 0.2},
		},
	}}
	routeStore := &fakeRouteStore{}
	deliverer := &fakeDeliverer{}
	svc := newTestService(t, edges, agentStore, routeStore, deliverer)

	res, err := svc.Broadcast(context.Background(), BroadcastInput{
		TenantID:    "t1",
		SenderAgent: "A",
		Embedding:   orthogonalEmbedding(1),
		TTLSec:      60,
		MaxHops:     2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Delivered == 0 {
		t.Fatal("expected at least one delivery")
	}
	if deliverer.deliveries[0] != "B" {
		t.Errorf("expected top recipient B, got %s", deliverer.deliveries[0])
	}
	if len(routeStore.inserted) == 0 {
		t.Error("expected route records to be persisted")
	}
}

// TestBroadcastColdStartWithNoEdgesRoutesByProfileSimilarity mirrors S1
// literally: zero materialized edges from the sender at all (fakeEdgeStore
// has no "A" entry), so every candidate must come from ActiveExcluding and
// score purely on profile similarity with edge_w defaulted to w_init.
func TestBroadcastColdStartWithNoEdgesRoutesByProfileSimilarity(t *testing.T) {
	agentStore := &fakeAgentStore{profiles: map[string]models.AgentProfile{
		"B": {TenantID: "t1", AgentID: "B", ProfileEmbedding: orthogonalEmbedding(1), Status: "active"},
		"C": {TenantID: "t1", AgentID: "C", ProfileEmbedding: orthogonalEmbedding(2), Status: "active"},
	}}
	edges := &fakeEdgeStore{}
	routeStore := &fakeRouteStore{}
	deliverer := &fakeDeliverer{}
	svc := newTestService(t, edges, agentStore, routeStore, deliverer)

	res, err := svc.Broadcast(context.Background(), BroadcastInput{
		TenantID:    "t1",
		SenderAgent: "A",
		Embedding:   orthogonalEmbedding(1),
		TTLSec:      60,
		MaxHops:     2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Delivered == 0 {
		t.Fatal("expected at least one delivery from cold-start candidates with no materialized edges")
	}
	if deliverer.deliveries[0] != "B" {
		t.Errorf("expected top recipient B, got %s", deliverer.deliveries[0])
	}
}

// TestBroadcastHopExhaustionReturnsExpired mirrors S5.
func TestBroadcastHopExhaustionReturnsExpired(t *testing.T) {
	agentStore := &fakeAgentStore{profiles: map[string]models.AgentProfile{}}
	edges := &fakeEdgeStore{}
	routeStore := &fakeRouteStore{}
	deliverer := &fakeDeliverer{}
	svc := newTestService(t, edges, agentStore, routeStore, deliverer)

	_, err := svc.Broadcast(context.Background(), BroadcastInput{
		TenantID:    "t1",
		SenderAgent: "A",
		Embedding:   orthogonalEmbedding(0),
		TTLSec:      60,
		MaxHops:     2,
		CurrentHop:  2,
	})
	if core.CodeOf(err) != core.CodeExpired {
		t.Fatalf("expected Expired, got %v", err)
	}
	if len(routeStore.inserted) != 0 {
		t.Error("expected no route records written for an expired broadcast")
	}
}

func TestBroadcastRejectsDuplicateNutrientID(t *testing.T) {
	agentStore := &fakeAgentStore{profiles: map[string]models.AgentProfile{}}
	edges := &fakeEdgeStore{}
	routeStore := &fakeRouteStore{}
	deliverer := &fakeDeliverer{}
	svc := newTestService(t, edges, agentStore, routeStore, deliverer)

	in := BroadcastInput{
		TenantID:    "t1",
		SenderAgent: "A",
		NutrientID:  "fixed-id",
		Embedding:   orthogonalEmbedding(0),
		TTLSec:      60,
		MaxHops:     2,
	}
	if _, err := svc.Broadcast(context.Background(), in); err != nil {
		t.Fatalf("unexpected error on first broadcast: %v", err)
	}
	_, err := svc.Broadcast(context.Background(), in)
	if core.CodeOf(err) != core.CodeAlreadyRecorded {
		t.Fatalf("expected AlreadyRecorded on duplicate nutrient id, got %v", err)
	}
}

func TestBroadcastRejectsBadEmbedding(t *testing.T) {
	svc := newTestService(t, &fakeEdgeStore{}, &fakeAgentStore{profiles: map[string]models.AgentProfile{}}, &fakeRouteStore{}, &fakeDeliverer{})
	_, err := svc.Broadcast(context.Background(), BroadcastInput{
		TenantID:    "t1",
		SenderAgent: "A",
		Embedding:   []float32{0.1},
		TTLSec:      60,
		MaxHops:     2,
	})
	if core.CodeOf(err) != core.CodeInvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestBroadcastDeniedByPolicy(t *testing.T) {
	policies := &fakePolicyStore{policies: []models.Policy{
		{
			ID: "dlp1", Kind: models.PolicyDLP, Enabled: true, Priority: 1,
			Rules: []models.PolicyRule{{Path: "/summary", Match: "ssn", Action: models.ActionDeny}},
		},
	}}
	svc := New(
		DefaultConfig(),
		routing.New(routing.DefaultConfig()),
		&fakeRateLimitStore{},
		policies,
		newFakeNutrientStore(),
		&fakeEdgeStore{},
		&fakeAgentStore{profiles: map[string]models.AgentProfile{}},
		&fakeRouteStore{},
		&fakeDeliverer{},
		nil, nil, nil,
		zap.NewNop(),
	)

	_, err := svc.Broadcast(context.Background(), BroadcastInput{
		TenantID:    "t1",
		SenderAgent: "A",
		Summary:     "contains ssn data",
		Embedding:   orthogonalEmbedding(0),
		TTLSec:      60,
		MaxHops:     2,
	})
	if core.CodeOf(err) != core.CodePolicyDenied {
		t.Fatalf("expected PolicyDenied, got %v", err)
	}
}

func TestCollectFiltersBySensitivityClearance(t *testing.T) {
	nutrients := newFakeNutrientStore()
	nutrients.byID["n1"] = models.Nutrient{
		ID: "n1", TenantID: "t1", Embedding: orthogonalEmbedding(0),
		Sensitivity: models.SensitivitySecret, ExpiresAt: time.Now().Add(time.Hour),
	}
	svc := New(
		DefaultConfig(),
		routing.New(routing.DefaultConfig()),
		&fakeRateLimitStore{},
		&fakePolicyStore{},
		nutrients,
		&fakeEdgeStore{},
		&fakeAgentStore{profiles: map[string]models.AgentProfile{}},
		&fakeRouteStore{},
		&fakeDeliverer{},
		nil, nil, nil,
		zap.NewNop(),
	)

	res, err := svc.Collect(context.Background(), CollectInput{
		TenantID:  "t1",
		Embedding: orthogonalEmbedding(0),
		TopK:      5,
		Clearance: models.SensitivityPublic,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Hits) != 0 {
		t.Errorf("expected zero hits for a public-clearance caller against a secret nutrient, got %d", len(res.Hits))
	}
}

func TestCollectReturnsMatchAboveThreshold(t *testing.T) {
	nutrients := newFakeNutrientStore()
	nutrients.byID["n1"] = models.Nutrient{
		ID: "n1", TenantID: "t1", Embedding: orthogonalEmbedding(0),
		Sensitivity: models.SensitivityPublic, ExpiresAt: time.Now().Add(time.Hour),
	}
	svc := New(
		DefaultConfig(),
		routing.New(routing.DefaultConfig()),
		&fakeRateLimitStore{},
		&fakePolicyStore{},
		nutrients,
		&fakeEdgeStore{},
		&fakeAgentStore{profiles: map[string]models.AgentProfile{}},
		&fakeRouteStore{},
		&fakeDeliverer{},
		nil, nil, nil,
		zap.NewNop(),
	)

	res, err := svc.Collect(context.Background(), CollectInput{
		TenantID:  "t1",
		Embedding: orthogonalEmbedding(0),
		TopK:      5,
		Clearance: models.SensitivityPublic,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Hits) != 1 || res.Hits[0].Nutrient.ID != "n1" {
		t.Fatalf("expected to find n1, got %+v", res.Hits)
	}
	if res.TraceID == "" {
		t.Error("expected a non-empty trace id")
	}
}

var _ store.RateLimitStore = (*fakeRateLimitStore)(nil)
var _ store.PolicyStore = (*fakePolicyStore)(nil)
var _ store.NutrientStore = (*fakeNutrientStore)(nil)
var _ store.EdgeStore = (*fakeEdgeStore)(nil)
var _ store.AgentStore = (*fakeAgentStore)(nil)
var _ store.RouteStore = (*fakeRouteStore)(nil)
var _ Deliverer = (*fakeDeliverer)(nil)
