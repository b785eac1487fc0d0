// Package scheduler runs the background maintenance jobs described in
// spec.md §4.5: periodic edge decay, TTL sweep of expired nutrients and
// memories, and route-record cleanup. A single cooperative scheduler owns
// one goroutine per job, each on its own ticker; a failing run logs and
// reschedules rather than crashing the process.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyphalmesh/substrate/internal/metrics"
	"github.com/hyphalmesh/substrate/internal/reinforcement"
	"github.com/hyphalmesh/substrate/internal/store"
)

// Config holds the maintenance job cadences.
type Config struct {
	DecayInterval           time.Duration // default 6h
	SweepInterval           time.Duration // default 5m
	RouteRetention          time.Duration // default 7 * 24h
	MemoryQualityFloorOnRun float64
}

func DefaultConfig() Config {
	return Config{
		DecayInterval:  6 * time.Hour,
		SweepInterval:  5 * time.Minute,
		RouteRetention: 7 * 24 * time.Hour,
	}
}

// TenantLister resolves the set of tenants the scheduler iterates per run.
// Kept narrow and injectable so tests can supply a fixed tenant list.
type TenantLister interface {
	ListTenantIDs(ctx context.Context) ([]string, error)
}

// Scheduler owns the three independently-cadenced maintenance jobs.
type Scheduler struct {
	cfg      Config
	decay    *reinforcement.DecayRunner
	nutrient store.NutrientStore
	memory   store.MemoryStore
	route    store.RouteStore
	tenants  TenantLister
	log      *zap.Logger
	metrics  *metrics.Registry

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func New(cfg Config, decay *reinforcement.DecayRunner, nutrient store.NutrientStore, memory store.MemoryStore, route store.RouteStore, tenants TenantLister, log *zap.Logger) *Scheduler {
	return &Scheduler{cfg: cfg, decay: decay, nutrient: nutrient, memory: memory, route: route, tenants: tenants, log: log}
}

// WithMetrics attaches a metrics registry; job runs and affected row
// counts are reported to it. Optional — a nil registry (the zero value of
// Scheduler.metrics) disables reporting.
func (s *Scheduler) WithMetrics(m *metrics.Registry) *Scheduler {
	s.metrics = m
	return s
}

// Start launches the three job goroutines. It returns immediately; call
// Stop to request cooperative shutdown.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.runJob(ctx, "decay", s.cfg.DecayInterval, s.runDecay)
	s.runJob(ctx, "ttl_sweep", s.cfg.SweepInterval, s.runSweep)
	s.runJob(ctx, "route_cleanup", s.cfg.SweepInterval, s.runRouteCleanup)
}

// Stop cancels all job goroutines and blocks until they exit.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) runJob(ctx context.Context, name string, interval time.Duration, run func(context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				run(ctx)
			}
		}
	}()
	s.log.Info("scheduled maintenance job", zap.String("job", name), zap.Duration("interval", interval))
}

func (s *Scheduler) forEachTenant(ctx context.Context, job string, fn func(context.Context, string) (int64, error)) {
	tenantIDs, err := s.tenants.ListTenantIDs(ctx)
	if err != nil {
		s.log.Warn("failed to list tenants for maintenance job", zap.String("job", job), zap.Error(err))
		return
	}
	for _, tenantID := range tenantIDs {
		n, err := fn(ctx, tenantID)
		if s.metrics != nil {
			s.metrics.ObserveJobRun(job, err, n)
		}
		if err != nil {
			s.log.Warn("maintenance job failed for tenant", zap.String("job", job), zap.String("tenant_id", tenantID), zap.Error(err))
			continue
		}
		if n > 0 {
			s.log.Info("maintenance job affected rows", zap.String("job", job), zap.String("tenant_id", tenantID), zap.Int64("count", n))
		}
	}
}

func (s *Scheduler) runDecay(ctx context.Context) {
	s.forEachTenant(ctx, "decay", s.decay.RunTenant)
}

func (s *Scheduler) runSweep(ctx context.Context) {
	now := time.Now().UTC()
	s.forEachTenant(ctx, "nutrient_sweep", func(ctx context.Context, tenantID string) (int64, error) {
		return s.nutrient.SweepExpired(ctx, tenantID, now)
	})
	s.forEachTenant(ctx, "memory_sweep", func(ctx context.Context, tenantID string) (int64, error) {
		return s.memory.SweepExpired(ctx, tenantID, now)
	})
}

func (s *Scheduler) runRouteCleanup(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.cfg.RouteRetention)
	s.forEachTenant(ctx, "route_cleanup", func(ctx context.Context, tenantID string) (int64, error) {
		return s.route.CleanupOlderThan(ctx, tenantID, cutoff)
	})
}
