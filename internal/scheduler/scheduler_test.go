package scheduler

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hyphalmesh/substrate/internal/reinforcement"
	"github.com/hyphalmesh/substrate/internal/store"
	"github.com/hyphalmesh/substrate/pkg/models"
)

type fakeTenantLister struct{ ids []string }

func (f fakeTenantLister) ListTenantIDs(context.Context) ([]string, error) { return f.ids, nil }

type fakeEdgeStore struct{ decayCalls int }

func (f *fakeEdgeStore) Get(context.Context, string, string, string) (*models.Edge, error) {
	return nil, nil
}
func (f *fakeEdgeStore) TopNeighbors(context.Context, string, string, int) ([]models.Edge, error) {
	return nil, nil
}
func (f *fakeEdgeStore) ApplyDelta(context.Context, string, string, string, float64, float64, float64, float64) (float64, error) {
	return 0, nil
}
func (f *fakeEdgeStore) DecayTenant(context.Context, string, float64, float64, float64) (int64, error) {
	f.decayCalls++
	return 1, nil
}

type fakeNutrientStore struct{ sweepCalls int }

func (f *fakeNutrientStore) Insert(context.Context, models.Nutrient) error { return nil }
func (f *fakeNutrientStore) Get(context.Context, string, string) (*models.Nutrient, error) {
	return nil, nil
}
func (f *fakeNutrientStore) ActiveForCollect(context.Context, string, int) ([]models.Nutrient, error) {
	return nil, nil
}
func (f *fakeNutrientStore) SweepExpired(context.Context, string, time.Time) (int64, error) {
	f.sweepCalls++
	return 2, nil
}

type fakeMemoryStore struct{ sweepCalls int }

func (f *fakeMemoryStore) Store(context.Context, models.Memory) error { return nil }
func (f *fakeMemoryStore) Get(context.Context, string, string) (*models.Memory, error) {
	return nil, nil
}
func (f *fakeMemoryStore) Search(context.Context, string, []float32, int, store.MemoryFilters) ([]store.MemoryHit, error) {
	return nil, nil
}
func (f *fakeMemoryStore) UpdateQuality(context.Context, string, string, float64) error { return nil }
func (f *fakeMemoryStore) IncrementAccessed(context.Context, string, string) error      { return nil }
func (f *fakeMemoryStore) Delete(context.Context, string, string) error                 { return nil }
func (f *fakeMemoryStore) SweepExpired(context.Context, string, time.Time) (int64, error) {
	f.sweepCalls++
	return 3, nil
}

type fakeRouteStore struct{ cleanupCalls int }

func (f *fakeRouteStore) InsertMany(context.Context, []models.RouteRecord) error { return nil }
func (f *fakeRouteStore) ByTrace(context.Context, string, string) ([]models.RouteRecord, error) {
	return nil, nil
}
func (f *fakeRouteStore) CleanupOlderThan(context.Context, string, time.Time) (int64, error) {
	f.cleanupCalls++
	return 4, nil
}

func TestSchedulerRunsAllJobsAcrossTenants(t *testing.T) {
	edges := &fakeEdgeStore{}
	nutrients := &fakeNutrientStore{}
	memories := &fakeMemoryStore{}
	routes := &fakeRouteStore{}
	tenants := fakeTenantLister{ids: []string{"t1", "t2"}}

	decay := reinforcement.NewDecayRunner(reinforcement.DefaultConfig(), edges)
	cfg := Config{DecayInterval: 10 * time.Millisecond, SweepInterval: 10 * time.Millisecond, RouteRetention: time.Hour}
	s := New(cfg, decay, nutrients, memories, routes, tenants, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	time.Sleep(50 * time.Millisecond)
	cancel()
	s.Stop()

	if edges.decayCalls == 0 {
		t.Error("expected decay job to have run at least once")
	}
	if nutrients.sweepCalls == 0 {
		t.Error("expected nutrient sweep job to have run at least once")
	}
	if memories.sweepCalls == 0 {
		t.Error("expected memory sweep job to have run at least once")
	}
	if routes.cleanupCalls == 0 {
		t.Error("expected route cleanup job to have run at least once")
	}
}

func TestStopIsIdempotentAfterContextCancellation(t *testing.T) {
	s := New(DefaultConfig(), reinforcement.NewDecayRunner(reinforcement.DefaultConfig(), &fakeEdgeStore{}),
		&fakeNutrientStore{}, &fakeMemoryStore{}, &fakeRouteStore{}, fakeTenantLister{}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()
	s.Stop() // must not hang or panic when ctx already canceled
}
