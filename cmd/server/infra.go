package main

import (
	"context"
	"fmt"
	"log/slog"

	"compliance/internal/audit"
	consentservice "compliance/internal/consent/service"
	consentstore "compliance/internal/consent/store"
	grievanceservice "compliance/internal/grievance/service"
	grievancestore "compliance/internal/grievance/store"
	"compliance/internal/platform/config"
	"compliance/internal/platform/database"
	"compliance/internal/platform/health"
	"compliance/internal/platform/kafka"
	"compliance/internal/platform/kafka/producer"
	"compliance/internal/platform/redis"
	"compliance/internal/sla"
	"compliance/internal/verification/sender"
	verificationservice "compliance/internal/verification/service"
	verificationstore "compliance/internal/verification/store"
	"compliance/pkg/platform/circuit"
)

// infra holds the backing stores and brokers. Every optional dependency
// falls back to an in-process implementation when it is not configured.
type infra struct {
	challenges verificationservice.Store
	consents   consentservice.Store
	grievances grievanceservice.Store
	auditStore audit.Store
	tracker    sla.Tracker
	escalator  sla.Escalator

	closers []func() error
	log     *slog.Logger
}

func buildInfra(ctx context.Context, cfg *config.Config, log *slog.Logger, checks *health.Handler) (*infra, error) {
	in := &infra{log: log}

	pool, err := database.New(ctx, database.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	if pool != nil {
		in.closers = append(in.closers, pool.Close)
		checks.RegisterCheck("postgres", pool.Health)
		if cfg.Database.AutoMigrate {
			applied, err := database.Migrate(ctx, pool.DB())
			if err != nil {
				in.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
			log.Info("database migrated", "applied", applied)
		}
		in.challenges = verificationstore.NewPostgres(pool.DB())
		in.consents = consentstore.NewPostgres(pool.DB())
		in.grievances = grievancestore.NewPostgres(pool.DB())
		in.auditStore = audit.NewPostgresStore(pool.DB())
		log.Info("using postgres stores")
	} else {
		in.challenges = verificationstore.NewInMemoryStore()
		in.consents = consentstore.NewInMemoryStore()
		in.grievances = grievancestore.NewInMemoryStore()
		in.auditStore = audit.NewInMemoryStore()
		log.Warn("DATABASE_URL not set, using in-memory stores")
	}

	client, err := redis.New(ctx, redis.Config{
		URL:          cfg.Redis.URL,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		in.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}
	if client != nil {
		in.closers = append(in.closers, client.Close)
		checks.RegisterCheck("redis", client.Health)
		in.tracker = sla.NewRedisTracker(client, cfg.SLA.TrackerTTL)
	} else {
		in.tracker = sla.NewMemoryTracker()
	}

	if cfg.Kafka.Brokers != "" {
		p, err := producer.New(kafka.ProducerConfig{
			Brokers:         cfg.Kafka.Brokers,
			Acks:            cfg.Kafka.Acks,
			Retries:         cfg.Kafka.Retries,
			DeliveryTimeout: cfg.Kafka.DeliveryTimeout,
		}, log)
		if err != nil {
			in.Close()
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		in.closers = append(in.closers, p.Close)
		checks.RegisterCheck("kafka", kafka.NewHealthChecker(cfg.Kafka.Brokers).Check)
		in.escalator = sla.NewResilientEscalator(
			sla.NewKafkaEscalator(p, cfg.Kafka.EscalationTopic),
			sla.NewLogEscalator(log),
			circuit.New("kafka_escalations", circuit.WithFailureThreshold(cfg.Kafka.FailureThreshold)),
			log,
		)
	} else {
		in.escalator = sla.NewLogEscalator(log)
	}
	return in, nil
}

// Close releases connections in reverse order of acquisition.
func (in *infra) Close() {
	for i := len(in.closers) - 1; i >= 0; i-- {
		if err := in.closers[i](); err != nil {
			in.log.Error("failed to close dependency", "error", err)
		}
	}
	in.closers = nil
}

func buildSender(cfg *config.Config, log *slog.Logger) verificationservice.CodeSender {
	if cfg.Verification.WebhookURL == "" {
		log.Warn("VERIFICATION_WEBHOOK_URL not set, verification codes are only logged")
		return sender.NewLogSender(log)
	}
	return sender.NewWebhookSender(sender.WebhookConfig{
		URL:        cfg.Verification.WebhookURL,
		Token:      cfg.Verification.WebhookToken,
		Timeout:    cfg.Verification.WebhookTimeout,
		RetryCount: 2,
	}, log)
}
