// Package main is the entry point for the hyphal substrate server.
package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyphalmesh/substrate/internal/auth"
	"github.com/hyphalmesh/substrate/internal/config"
	"github.com/hyphalmesh/substrate/internal/hyphal"
	"github.com/hyphalmesh/substrate/internal/metrics"
	"github.com/hyphalmesh/substrate/internal/reinforcement"
	"github.com/hyphalmesh/substrate/internal/router"
	"github.com/hyphalmesh/substrate/internal/routing"
	"github.com/hyphalmesh/substrate/internal/scheduler"
	"github.com/hyphalmesh/substrate/internal/security"
	"github.com/hyphalmesh/substrate/internal/store/cache"
	"github.com/hyphalmesh/substrate/internal/store/postgres"
	"github.com/hyphalmesh/substrate/internal/transport/httpapi"

	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.Load()

	log := newLogger(cfg.LogLevel)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.Open(ctx, cfg.RelationalDSN)
	if err != nil {
		log.Fatal("connect relational store", zap.Error(err))
	}
	defer pool.Close()

	redisOpts, err := redis.ParseURL(cfg.CacheDSN)
	if err != nil {
		log.Fatal("parse cache dsn", zap.Error(err))
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	auditSigner := loadAuditSigner(cfg.AuditSigningKeyPath, log)

	metricsReg := metrics.New()

	agentStore := postgres.NewAgentStore(pool)
	edgeStore := postgres.NewEdgeStore(pool)
	nutrientStore := postgres.NewNutrientStore(pool)
	routeStore := postgres.NewRouteStore(pool)
	outcomeStore := postgres.NewOutcomeStore(pool)
	memoryStore := postgres.NewMemoryStore(pool)
	policyStore := postgres.NewPolicyStore(pool)
	auditStore := postgres.NewAuditStore(pool)
	tenantStore := postgres.NewTenantStore(pool)
	mailbox := postgres.NewMailbox(pool)
	rateLimitStore := cache.NewRateLimitStore(rdb)

	routingCfg := routing.DefaultConfig()
	routingCfg.Alpha = cfg.Routing.Alpha
	routingCfg.Beta = cfg.Routing.Beta
	routingCfg.Gamma = cfg.Routing.Gamma
	routingCfg.Lambda = cfg.Routing.Lambda
	routingCfg.Epsilon = cfg.Routing.Epsilon
	routingCfg.EpsilonFloor = cfg.Routing.EpsilonFloor
	routingCfg.WInit = cfg.Routing.WInit
	routingEngine := routing.New(routingCfg)

	routerCfg := router.DefaultConfig()
	routerCfg.CollectMinSimilarity = cfg.Routing.MinSimilarity
	routerCfg.CollectLambda = cfg.Routing.Lambda
	routerSvc := router.New(
		routerCfg,
		routingEngine,
		rateLimitStore,
		policyStore,
		nutrientStore,
		edgeStore,
		agentStore,
		routeStore,
		mailbox,
		auditSigner,
		auditStore,
		metricsReg,
		log,
	)

	masterSecret := loadMasterSecret(cfg.EncryptionMasterKeyRef, log)
	hyphalSvc := hyphal.New(hyphal.DefaultConfig(), memoryStore, masterSecret, auditSigner, auditStore, log)

	reinforcementCfg := reinforcement.DefaultConfig()
	reinforcementCfg.LambdaDecayPerDay = cfg.Maintenance.LambdaDecayPerDay
	reinforcementEngine := reinforcement.New(reinforcementCfg, edgeStore, agentStore, routeStore, outcomeStore, memoryStore, auditSigner, auditStore, log)
	decayRunner := reinforcement.NewDecayRunner(reinforcementCfg, edgeStore)

	schedulerCfg := scheduler.Config{
		DecayInterval:  cfg.Maintenance.DecayInterval,
		SweepInterval:  cfg.Maintenance.SweepInterval,
		RouteRetention: time.Duration(cfg.Maintenance.RouteRetentionDays) * 24 * time.Hour,
	}
	sched := scheduler.New(schedulerCfg, decayRunner, nutrientStore, memoryStore, routeStore, tenantStore, log).
		WithMetrics(metricsReg)
	sched.Start(ctx)
	defer sched.Stop()

	registrySecret := loadRegistrySecret(cfg.Registry.SigningSecretRef, log)
	var authenticator auth.Authenticator
	if len(registrySecret) > 0 {
		authenticator = auth.NewMiddleware(auth.NewHMACValidator(registrySecret), log)
	}

	handler := httpapi.New(routerSvc, hyphalSvc, reinforcementEngine, metricsReg, pool, cache.NewPinger(rdb), log)
	mux := httpapi.NewRouter(handler, authenticator)

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		log.Info("server is shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		server.SetKeepAlivesEnabled(false)
		sched.Stop()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("could not gracefully shut down server", zap.Error(err))
		}
		close(done)
	}()

	log.Info("server starting", zap.String("addr", addr), zap.String("region", cfg.Region))
	if authenticator == nil {
		log.Warn("registry signing secret not configured, API routes are unauthenticated")
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("could not listen", zap.String("addr", addr), zap.Error(err))
	}

	<-done
	log.Info("server stopped")
}

// newLogger builds a zap.Logger whose encoding matches level: "debug"
// yields a development (console) logger, everything else a production
// (JSON) logger at the requested or info level.
func newLogger(level string) *zap.Logger {
	var zapLevel zap.AtomicLevel
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	if level == "debug" {
		devCfg := zap.NewDevelopmentConfig()
		devCfg.Level = zapLevel
		logger, err := devCfg.Build()
		if err != nil {
			return zap.NewNop()
		}
		return logger
	}

	prodCfg := zap.NewProductionConfig()
	prodCfg.Level = zapLevel
	logger, err := prodCfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// loadAuditSigner reads a hex-encoded Ed25519 private key from path. An
// empty path or unreadable file falls back to a freshly generated,
// process-lifetime key: audit events remain internally verifiable but
// signatures won't survive a restart, which is acceptable for local/dev
// deployments but should never happen in production.
func loadAuditSigner(path string, log *zap.Logger) *security.AuditSigner {
	if path != "" {
		raw, err := os.ReadFile(path)
		if err == nil {
			decoded := make([]byte, ed25519.PrivateKeySize)
			if n, decErr := hex.Decode(decoded, raw); decErr == nil && n == ed25519.PrivateKeySize {
				return security.NewAuditSigner(ed25519.PrivateKey(decoded))
			}
			log.Warn("audit signing key file did not contain a valid hex-encoded ed25519 key", zap.String("path", path))
		} else {
			log.Warn("could not read audit signing key file", zap.String("path", path), zap.Error(err))
		}
	}

	log.Warn("generating ephemeral audit signing key; set AUDIT_SIGNING_KEY_PATH for a durable key")
	_, priv, err := security.GenerateAuditKey()
	if err != nil {
		log.Fatal("generate ephemeral audit signing key", zap.Error(err))
	}
	return security.NewAuditSigner(priv)
}

// loadMasterSecret resolves the envelope-encryption master secret.
// EncryptionMasterKeyRef is a reference, not the secret itself (spec.md
// §4.5 treats the key service as an external, pinned collaborator): it
// names the environment variable the operator's key-management tooling
// populates with a hex-encoded secret. An empty ref or an unset/malformed
// variable disables encryption, which only ever fails closed --
// hyphal.Service.Store refuses to persist confidential-or-above content in
// plaintext rather than silently proceeding.
func loadMasterSecret(ref string, log *zap.Logger) []byte {
	if ref == "" {
		log.Warn("ENCRYPTION_MASTER_KEY_REF not set, envelope encryption disabled")
		return nil
	}
	raw := os.Getenv(ref)
	if raw == "" {
		log.Warn("encryption master key env var is unset, envelope encryption disabled", zap.String("ref", ref))
		return nil
	}
	secret, err := hex.DecodeString(raw)
	if err != nil {
		log.Warn("encryption master key is not valid hex, envelope encryption disabled", zap.String("ref", ref), zap.Error(err))
		return nil
	}
	return secret
}

// loadRegistrySecret resolves the shared verification secret for the
// external tenant/identity registry's bearer tokens (spec.md §1 pins
// API-key issuance and validation as out of scope). ref names the
// environment variable the registry's key-management tooling populates
// with a hex-encoded secret; an empty ref or an unset/malformed variable
// leaves the server unauthenticated rather than guessing a secret.
func loadRegistrySecret(ref string, log *zap.Logger) []byte {
	if ref == "" {
		log.Warn("REGISTRY_SIGNING_SECRET_REF not set, auth middleware disabled")
		return nil
	}
	raw := os.Getenv(ref)
	if raw == "" {
		log.Warn("registry signing secret env var is unset, auth middleware disabled", zap.String("ref", ref))
		return nil
	}
	secret, err := hex.DecodeString(raw)
	if err != nil {
		log.Warn("registry signing secret is not valid hex, auth middleware disabled", zap.String("ref", ref), zap.Error(err))
		return nil
	}
	return secret
}
