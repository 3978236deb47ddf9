package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"compliance/internal/audit"
	consenthandler "compliance/internal/consent/handler"
	consentmetrics "compliance/internal/consent/metrics"
	consentmodels "compliance/internal/consent/models"
	consentservice "compliance/internal/consent/service"
	grievancehandler "compliance/internal/grievance/handler"
	grievancemetrics "compliance/internal/grievance/metrics"
	grievanceservice "compliance/internal/grievance/service"
	"compliance/internal/platform/config"
	"compliance/internal/platform/health"
	"compliance/internal/platform/logger"
	"compliance/internal/platform/tracer"
	"compliance/internal/seeder"
	"compliance/internal/sla"
	slametrics "compliance/internal/sla/metrics"
	httptransport "compliance/internal/transport/http"
	verificationmetrics "compliance/internal/verification/metrics"
	verificationservice "compliance/internal/verification/service"
	"compliance/pkg/platform/middleware/auth"
	"compliance/pkg/platform/middleware/metadata"
	"compliance/pkg/platform/middleware/request"
)

// main wires dependencies and owns the process lifecycle. Business logic
// lives in the internal service packages.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("initializing compliance engine",
		"addr", cfg.Server.Addr,
		"environment", cfg.Environment,
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	tr := tracer.NewOTel()
	checks := health.New(cfg.Environment)

	infra, err := buildInfra(ctx, cfg, log, checks)
	if err != nil {
		return err
	}
	defer infra.Close()

	publisher := audit.NewPublisher(infra.auditStore,
		audit.WithAsyncBuffer(cfg.Audit.BufferSize),
		audit.WithPublisherLogger(log),
	)
	defer publisher.Close()

	verifier, err := verificationservice.New(infra.challenges, buildSender(cfg, log), cfg.Verification.CodePepper, log,
		verificationservice.WithCodeTTL(cfg.Verification.CodeTTL),
		verificationservice.WithMaxAttempts(cfg.Verification.MaxAttempts),
		verificationservice.WithMetrics(verificationmetrics.New(reg)),
		verificationservice.WithTracer(tr),
	)
	if err != nil {
		return fmt.Errorf("verification service: %w", err)
	}

	catalog := consentmodels.DefaultCatalog()
	if cfg.Consent.CatalogPath != "" {
		if catalog, err = consentmodels.LoadCatalog(cfg.Consent.CatalogPath); err != nil {
			return fmt.Errorf("consent catalog: %w", err)
		}
	}
	consents := consentservice.New(infra.consents, verifier, catalog, publisher, log,
		consentservice.WithMetrics(consentmetrics.New(reg)),
		consentservice.WithTracer(tr),
	)
	grievances := grievanceservice.New(infra.grievances, publisher, log,
		grievanceservice.WithMetrics(grievancemetrics.New(reg)),
		grievanceservice.WithTracer(tr),
		grievanceservice.WithSLAResetter(infra.tracker),
	)

	if cfg.SeedDemoData {
		if cfg.Database.URL != "" {
			log.Warn("demo seeding skipped: a database is configured")
		} else if _, err := seeder.New(consents, grievances, log).SeedAll(ctx, time.Now()); err != nil {
			return fmt.Errorf("seed demo data: %w", err)
		}
	}

	sweeper, err := sla.NewSweeper(grievances, infra.tracker,
		sla.NewAuditedEscalator(infra.escalator, publisher, log),
		sla.WithInterval(cfg.SLA.SweepInterval),
		sla.WithLogger(log),
		sla.WithMetrics(slametrics.New(reg)),
		sla.WithTracer(tr),
	)
	if err != nil {
		return fmt.Errorf("sla sweeper: %w", err)
	}

	proxies, err := metadata.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return fmt.Errorf("trusted proxies: %w", err)
	}
	grievanceRoutes := grievancehandler.New(grievances, log)
	router := httptransport.NewRouter(httptransport.Config{
		Logger:         log,
		Gatherer:       reg,
		RequestMetrics: request.NewMetrics(reg),
		Validator:      auth.NewTokenValidator(cfg.Auth.SigningKey, cfg.Auth.Issuer, cfg.Auth.Audience),
		Metadata:       metadata.NewMiddleware(metadata.Config{TrustedProxies: proxies}),
		HandlerTimeout: cfg.Server.HandlerTimeout,
		Public:         []httptransport.Routes{checks},
		API:            []httptransport.Routes{consenthandler.New(consents, log), grievanceRoutes},
		Admin:          []httptransport.AdminRoutes{grievanceRoutes},
		AdminAPI:       []httptransport.Routes{audit.NewHandler(publisher, log)},
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := sweeper.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("sla sweeper: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("server stopped")
	return nil
}
