package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"eventgate/internal/accounts/notify"
	accountsservice "eventgate/internal/accounts/service"
	accountsstore "eventgate/internal/accounts/store"
	checkpointmetrics "eventgate/internal/checkpoint/metrics"
	checkpointmodels "eventgate/internal/checkpoint/models"
	checkpointservice "eventgate/internal/checkpoint/service"
	checkpointstore "eventgate/internal/checkpoint/store"
	"eventgate/internal/guest/seed"
	guestservice "eventgate/internal/guest/service"
	gueststore "eventgate/internal/guest/store"
	jwttoken "eventgate/internal/jwt_token"
	"eventgate/internal/platform/config"
	"eventgate/internal/platform/database"
	"eventgate/internal/platform/health"
	"eventgate/internal/platform/kafka"
	"eventgate/internal/platform/redis"
	"eventgate/migrations"
	"eventgate/pkg/platform/audit"
	auditmetrics "eventgate/pkg/platform/audit/metrics"
	outboxmetrics "eventgate/pkg/platform/audit/outbox/metrics"
	outboxpostgres "eventgate/pkg/platform/audit/outbox/store/postgres"
	"eventgate/pkg/platform/audit/outbox/worker"
	"eventgate/pkg/platform/audit/publisher"
	auditmemory "eventgate/pkg/platform/audit/store/memory"
	auditpostgres "eventgate/pkg/platform/audit/store/postgres"
)

// infra holds the optional external dependencies. Each field is nil when
// its connection string is not configured.
type infra struct {
	db       *database.Pool
	redis    *redis.Client
	producer *kafka.Producer
	log      *slog.Logger
}

func openInfra(ctx context.Context, cfg config.Server, reg prometheus.Registerer, log *slog.Logger) (*infra, error) {
	in := &infra{log: log}

	db, err := database.New(ctx, database.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	in.db = db
	if db != nil {
		if err := db.Migrate(ctx, migrations.FS); err != nil {
			in.Close()
			return nil, err
		}
		log.Info("database connected and migrated")
	}

	rc, err := redis.New(ctx, cfg.Redis, reg)
	if err != nil {
		in.Close()
		return nil, err
	}
	in.redis = rc

	if cfg.Kafka.Brokers != "" {
		producer, err := kafka.New(kafka.Config{Brokers: cfg.Kafka.Brokers}, log)
		if err != nil {
			in.Close()
			return nil, err
		}
		in.producer = producer
	}
	return in, nil
}

func (in *infra) registerChecks(h *health.Handler) {
	if in.db != nil {
		h.RegisterCheck("postgres", in.db.Health)
	}
	if in.redis != nil {
		h.RegisterCheck("redis", in.redis.Health)
	}
	if in.producer != nil {
		h.RegisterCheck("kafka", in.producer.Health)
	}
}

func (in *infra) Close() {
	if in.producer != nil {
		if err := in.producer.Close(); err != nil {
			in.log.Warn("failed to close kafka producer", "error", err)
		}
	}
	if in.redis != nil {
		if err := in.redis.Close(); err != nil {
			in.log.Warn("failed to close redis client", "error", err)
		}
	}
	if err := in.db.Close(); err != nil {
		in.log.Warn("failed to close database", "error", err)
	}
}

type app struct {
	auditor     *publisher.Publisher
	guests      *guestservice.Service
	checkpoints *checkpointservice.Service
	ledger      *worker.Worker // nil unless Postgres records and Kafka are both configured
}

func buildApp(ctx context.Context, cfg config.Server, in *infra, reg prometheus.Registerer, log *slog.Logger) (*app, error) {
	auditor := buildAuditor(cfg, in, reg, log)

	var guestStore guestservice.Store = gueststore.NewInMemory()
	if in.db != nil {
		guestStore = gueststore.NewPostgres(in.db.DB())
	}
	if cfg.GuestsFile != "" {
		profiles, err := seed.LoadFile(cfg.GuestsFile)
		if err != nil {
			auditor.Close()
			return nil, err
		}
		n, err := seed.Apply(ctx, guestStore, profiles)
		if err != nil {
			auditor.Close()
			return nil, err
		}
		log.Info("guests seeded", "file", cfg.GuestsFile, "count", n)
	}
	guests := guestservice.New(guestStore, guestservice.WithLogger(log))

	records, ledger, err := buildCheckpointStore(cfg, in, reg, log)
	if err != nil {
		auditor.Close()
		return nil, err
	}
	checkpoints := checkpointservice.New(records, guests,
		checkpointmodels.NewCatalog(cfg.Event.Checkpoints...),
		checkpointservice.WithAuditor(auditor),
		checkpointservice.WithMetrics(checkpointmetrics.New(reg)),
		checkpointservice.WithLogger(log),
	)
	return &app{auditor: auditor, guests: guests, checkpoints: checkpoints, ledger: ledger}, nil
}

// buildCheckpointStore picks the token record backend. With Postgres and
// Kafka both available every committed scan also lands in the outbox, and
// the returned worker relays it to the ledger topic.
func buildCheckpointStore(cfg config.Server, in *infra, reg prometheus.Registerer, log *slog.Logger) (checkpointservice.Store, *worker.Worker, error) {
	switch cfg.Store {
	case config.StorePostgres:
		if in.db == nil {
			return nil, nil, fmt.Errorf("postgres store selected without a database")
		}
		if in.producer == nil {
			return checkpointstore.NewPostgres(in.db.DB()), nil, nil
		}
		ledger := outboxpostgres.New(in.db.DB())
		records := checkpointstore.NewPostgres(in.db.DB(),
			checkpointstore.WithOutbox(ledger, checkpointservice.LedgerEntry))
		relay := worker.New(ledger, in.producer,
			worker.WithTopic(cfg.Kafka.LedgerTopic),
			worker.WithMetrics(outboxmetrics.New(reg)),
			worker.WithLogger(log),
		)
		return records, relay, nil
	case config.StoreRedis:
		if in.redis == nil {
			return nil, nil, fmt.Errorf("redis store selected without a redis client")
		}
		return checkpointstore.NewRedis(in.redis.Client), nil, nil
	default:
		return checkpointstore.NewInMemory(), nil, nil
	}
}

func buildAuditor(cfg config.Server, in *infra, reg prometheus.Registerer, log *slog.Logger) *publisher.Publisher {
	var store audit.Store = auditmemory.NewInMemoryStore()
	if in.db != nil {
		store = auditpostgres.New(in.db.DB())
	}
	opts := []publisher.PublisherOption{
		publisher.WithAsyncBuffer(cfg.AuditBuffer),
		publisher.WithPublisherLogger(log),
		publisher.WithMetrics(auditmetrics.New(reg)),
	}
	if in.producer != nil {
		opts = append(opts, publisher.WithSink(publisher.NewKafkaSink(in.producer, cfg.Kafka.AuditTopic)))
	}
	return publisher.NewPublisher(store, opts...)
}

func buildAccounts(cfg config.Server, in *infra, auditor audit.Emitter, issuer *jwttoken.JWTService, log *slog.Logger) *accountsservice.Service {
	var store accountsservice.Store = accountsstore.NewInMemory()
	if in.db != nil {
		store = accountsstore.NewPostgres(in.db.DB())
	}

	var notifier accountsservice.Notifier
	switch cfg.Notify.Channel {
	case config.NotifySMTP:
		notifier = notify.NewSMTPNotifier(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
	case config.NotifyKafka:
		notifier = notify.NewKafkaNotifier(in.producer, cfg.Kafka.NotifyTopic)
	default:
		notifier = notify.NewLogNotifier(log)
	}

	return accountsservice.New(store, notifier, issuer,
		accountsservice.WithAuditor(auditor),
		accountsservice.WithLogger(log),
		accountsservice.WithRecipients(cfg.Notify.AdminEmail, cfg.Notify.DevEmails),
	)
}
