package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/swell-ops-ea/internal/chain"
	"github.com/yourorg/swell-ops-ea/internal/circuitbreaker"
	"github.com/yourorg/swell-ops-ea/internal/config"
	"github.com/yourorg/swell-ops-ea/internal/fetch"
	"github.com/yourorg/swell-ops-ea/internal/journal"
	"github.com/yourorg/swell-ops-ea/internal/opportunity"
	"github.com/yourorg/swell-ops-ea/internal/orchestrator"
	"github.com/yourorg/swell-ops-ea/internal/registry"
	"github.com/yourorg/swell-ops-ea/internal/report"
	"github.com/yourorg/swell-ops-ea/internal/security"
	"github.com/yourorg/swell-ops-ea/internal/types"
)

// buildDependencies constructs every component from configuration.
func buildDependencies(ctx context.Context, cfg config.Config, metrics *serverMetrics) (dependencies, error) {
	var deps dependencies

	reg, err := registry.Load(cfg.Profile, cfg.RegistryFile, cfg.RegistryOverrides())
	if err != nil {
		return deps, fmt.Errorf("load registry: %w", err)
	}

	policy, err := orchestrator.ParseApprovalPolicy(cfg.ApprovalPolicy)
	if err != nil {
		return deps, fmt.Errorf("APPROVAL_POLICY: %w", err)
	}

	wallets, err := dialWallets(ctx, cfg, reg)
	if err != nil {
		return deps, err
	}
	deps.wallets = wallets

	onTrip := func(name, reason string) {
		if metrics != nil {
			metrics.upstreamErrors.WithLabelValues(name).Inc()
		}
	}
	newBreaker := func(name string) *circuitbreaker.CircuitBreaker {
		return circuitbreaker.New(name, circuitbreaker.Thresholds{MaxConsecutiveFailures: cfg.CircuitMaxFailures}).
			WithResetDelay(cfg.CircuitResetDelay).
			WithSuccessThreshold(cfg.CircuitSuccessThreshold).
			WithTripCallback(onTrip)
	}

	httpClient := fetch.NewHTTPClient(cfg.RequestTimeout)
	quotes := fetch.NewQuoteClient(cfg.NeptuneAPIBase, httpClient, newBreaker("neptune"))
	catalog := fetch.NewOpportunityClient(cfg.MerklURL, httpClient, newBreaker("merkl"))
	deps.breakers = []*circuitbreaker.CircuitBreaker{quotes.Breaker(), catalog.Breaker()}
	if cfg.NeptuneAPIBase == "" {
		logrus.Warn("NEPTUNE_API_BASE not set, swaps are disabled")
	}

	store, closeStore, err := openJournal(ctx, cfg)
	if err != nil {
		return deps, err
	}
	if closeStore != nil {
		deps.closers = append(deps.closers, closeStore)
	}

	deps.ops = orchestrator.New(reg, chain.NewPool(wallets...), orchestrator.Options{
		Policy:              policy,
		ConfirmationTimeout: cfg.ConfirmationTimeout,
		Quotes:              quotes,
		Journal:             store,
	})
	deps.catalog = opportunity.New(catalog)

	reporters := report.Multi{report.LogReporter{}}
	if cfg.WebhookURL != "" {
		signer, err := security.NewReportSigner(cfg.ReportSigningKey, cfg.ReportSignatureValidity)
		if err != nil {
			return deps, fmt.Errorf("REPORT_SIGNING_KEY: %w", err)
		}
		deps.webhook = report.NewWebhookReporter(report.WebhookConfig{
			URL:           cfg.WebhookURL,
			APIKey:        cfg.WebhookAPIKey,
			BatchSize:     cfg.WebhookBatchSize,
			FlushInterval: cfg.WebhookFlushInterval,
			Signer:        signer,
		}, nil)
		reporters = append(reporters, deps.webhook)
	}
	deps.reporter = reporters

	return deps, nil
}

// dialWallets connects a signer for every network that has a key.
func dialWallets(ctx context.Context, cfg config.Config, reg *registry.Registry) ([]chain.Wallet, error) {
	wallets := make([]chain.Wallet, 0, 2)
	for _, network := range types.Networks() {
		key := cfg.PrivateKey(network)
		if key == "" {
			logrus.WithField("network", network).Warn("No signer key configured, operations on this network are disabled")
			continue
		}
		desc, err := reg.Network(network)
		if err != nil {
			return nil, err
		}
		w, err := chain.Dial(ctx, desc, key)
		if err != nil {
			return nil, fmt.Errorf("connect %s wallet: %w", network, err)
		}
		wallets = append(wallets, w)
	}
	return wallets, nil
}

// openJournal uses Redis when configured and memory otherwise.
func openJournal(ctx context.Context, cfg config.Config) (journal.Store, func(), error) {
	if cfg.RedisAddr == "" {
		logrus.Info("Operation journal kept in memory")
		return journal.NewMemoryStore(), nil, nil
	}
	store, err := journal.NewRedisStore(ctx, journal.RedisConfig{
		Address:  cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, nil, err
	}
	logrus.WithField("addr", cfg.RedisAddr).Info("Operation journal backed by Redis")
	return store, func() {
		if err := store.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close journal")
		}
	}, nil
}
