package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"landchain/internal/chain"
	chainmetrics "landchain/internal/chain/metrics"
	"landchain/internal/council"
	councilmetrics "landchain/internal/council/metrics"
	"landchain/internal/governance"
	govmetrics "landchain/internal/governance/metrics"
	"landchain/internal/platform/config"
	"landchain/internal/platform/httpserver"
	"landchain/internal/platform/kafka"
	"landchain/internal/platform/logger"
	platformredis "landchain/internal/platform/redis"
	"landchain/internal/registry"
	registrymetrics "landchain/internal/registry/metrics"
	"landchain/internal/registry/store"
	httptransport "landchain/internal/transport/http"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	log := logger.New()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// Persistence: postgres when configured, in-memory otherwise.
	var (
		requests store.RequestStore
		parcels  store.ParcelStore
	)
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			log.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			log.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		requests = pg.Requests()
		parcels = pg.Parcels()
		log.Info("using postgres store")
	} else {
		requests = store.NewMemoryRequestStore()
		parcels = store.NewMemoryParcelStore()
		log.Warn("DATABASE_URL not set, using in-memory store")
	}

	addresses := chain.GovernanceAddresses{
		ProgramID:  cfg.Governance.ProgramID,
		Realm:      cfg.Governance.RealmAddress,
		Governance: cfg.Governance.GovernanceAddress,
		Signer:     cfg.Governance.SignerWallet,
	}

	// Chain verification over the RPC failover chain, with an optional redis
	// verdict cache.
	chainMetrics := chainmetrics.New()
	verifierOpts := []chain.VerifierOption{
		chain.WithLogger(log),
		chain.WithMetrics(chainMetrics),
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		verifierOpts = append(verifierOpts,
			chain.WithCache(chain.NewVerdictCache(redisClient.Client, cfg.Redis.VerdictTTL, chainMetrics)))
		log.Info("verdict cache enabled")
	}

	var verifier *chain.Verifier
	if len(cfg.SolanaRPCEndpoints) > 0 {
		manager, err := chain.NewConnectionManager(cfg.SolanaRPCEndpoints,
			chain.WithManagerMetrics(chainMetrics))
		if err != nil {
			log.Error("failed to build rpc connection manager", "error", err)
			os.Exit(1)
		}
		verifier = chain.NewVerifier(manager, verifierOpts...)
	} else if addresses.Configured() {
		log.Error("governance addresses configured but SOLANA_RPC_ENDPOINTS is empty")
		os.Exit(1)
	} else {
		log.Warn("SOLANA_RPC_ENDPOINTS not set, chain verification disabled")
	}

	producer, err := kafka.NewProducer(ctx, cfg.Kafka)
	if err != nil {
		log.Error("failed to connect to kafka", "error", err)
		os.Exit(1)
	}
	defer producer.Close()
	if producer != nil {
		log.Info("decision events enabled", "topic", cfg.Kafka.DecisionTopic)
	}

	registrySvc := registry.NewService(requests, parcels,
		registry.WithMetrics(registrymetrics.New()),
		registry.WithLogger(log),
	)
	councilSvc := council.NewService(requests, verifier, council.Config{
		Wallets:           cfg.Council.Wallets,
		RequiredApprovals: cfg.Council.RequiredApprovals,
		Addresses:         addresses,
	},
		council.WithMetrics(councilmetrics.New()),
		council.WithLogger(log),
	)
	governanceSvc := governance.NewService(requests, parcels, verifier, governance.Config{
		DAOAuthority: cfg.Governance.DAOAuthorityWallet,
		Addresses:    addresses,
	},
		governance.WithPublisher(producer),
		governance.WithMetrics(govmetrics.New()),
		governance.WithLogger(log),
	)

	handler := httptransport.NewHandler(registrySvc, councilSvc, governanceSvc, log)
	router := httptransport.NewRouter(handler)
	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting landchain", "addr", cfg.Addr, "mode", governanceSvc.Mode())

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}
