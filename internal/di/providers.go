package di

import (
	"context"
	"fmt"
	"time"

	"sidbot/internal/domain/repository"
	"sidbot/internal/handler/api"
	internalrepo "sidbot/internal/repository"
	"sidbot/internal/service/broker"
	"sidbot/internal/service/mailer"
	"sidbot/internal/service/ratelimit"
	"sidbot/internal/usecase"
	"sidbot/pkg/cache"
	pkgch "sidbot/pkg/clickhouse"
	"sidbot/pkg/config"
	xhttp "sidbot/pkg/http"
	pkgkafka "sidbot/pkg/kafka"
	applogger "sidbot/pkg/logger"
	"sidbot/pkg/metrics"
	"sidbot/pkg/postgres"
	"sidbot/pkg/queue"
	"sidbot/pkg/server"
)

const (
	initTimeout       = 15 * time.Second
	referenceCacheTTL = 6 * time.Hour
	jobTriggersPerMin = 6
)

func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient connects to ClickHouse; the cleanup closes it.
func ProvideClickHouseClient(cfg *config.Config, l *applogger.Logger) (*pkgch.Client, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	client, err := pkgch.NewClient(ctx,
		pkgch.WithAddr(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	cleanup := func() {
		if err := client.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	return client, cleanup, nil
}

// ProvideBarStore creates the ClickHouse bar store and makes sure its table exists.
func ProvideBarStore(ch *pkgch.Client, cfg *config.Config, l *applogger.Logger) (repository.BarStore, error) {
	store := internalrepo.NewCHBarStore(ch, l, cfg.ClickHouse.InsertChunk)
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return store, nil
}

// ProvidePostgresClient opens the pool and applies migrations.
func ProvidePostgresClient(cfg *config.Config, l *applogger.Logger) (*postgres.Client, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	pg, err := postgres.NewClient(ctx,
		postgres.WithDSN(cfg.Postgres.DSN),
		postgres.WithPool(cfg.Postgres.MaxConns, cfg.Postgres.MinConns),
		postgres.WithLifetimes(cfg.Postgres.MaxConnLifetime, cfg.Postgres.MaxConnIdleTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres client: %w", err)
	}
	if err := pg.Migrate(ctx, postgres.Migrations); err != nil {
		pg.Close()
		return nil, nil, fmt.Errorf("postgres migrate: %w", err)
	}
	return pg, func() { pg.Close() }, nil
}

func ProvideSignalStore(pg *postgres.Client, l *applogger.Logger) repository.SignalStore {
	return internalrepo.NewPGSignalStore(pg, l)
}

func ProvideRedisCache(cfg *config.Config, l *applogger.Logger) (*cache.RedisCache, func(), error) {
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Host, cfg.Redis.Port),
		cache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, 2, 30*time.Second),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	cleanup := func() {
		if err := rc.Close(); err != nil {
			l.Warn("redis close error", applogger.Error(err))
		}
	}
	return rc, cleanup, nil
}

func ProvideCache(rc *cache.RedisCache) cache.Service {
	return rc
}

// ProvideReferenceData puts a read-through cache in front of the Postgres reference tables.
func ProvideReferenceData(pg *postgres.Client, c cache.Service) repository.ReferenceData {
	return internalrepo.NewCachedReferenceData(internalrepo.NewPGReferenceStore(pg), c, referenceCacheTTL)
}

// ProvideJobQueue shares the Redis connection so manual triggers survive a restart.
func ProvideJobQueue(rc *cache.RedisCache, l *applogger.Logger) queue.Queue {
	return queue.NewRedisQueue(l, rc.Client(), queue.WithKeyPrefix(cache.Key(rc.Prefix(), "jobs")))
}

// ProvideBroker creates the Alpaca gateway behind a client-side rate limit.
func ProvideBroker(cfg *config.Config, l *applogger.Logger) *broker.Gateway {
	return broker.NewGateway(cfg.Alpaca, ratelimit.New(cfg.Alpaca.RequestsPerMin, cfg.Alpaca.Burst), l)
}

func ProvideMailer(cfg *config.Config, l *applogger.Logger) mailer.Sender {
	return mailer.NewResend(cfg.Report.Email, l)
}

func ProvideEventHub(l *applogger.Logger) *api.EventHub {
	return api.NewEventHub(l)
}

// ProvideEventPublisher fans events out to websocket clients and, when enabled, Kafka.
func ProvideEventPublisher(cfg *config.Config, hub *api.EventHub, l *applogger.Logger) (repository.EventPublisher, func(), error) {
	sinks := []repository.EventPublisher{hub}
	if cfg.Kafka.Enabled {
		producer, err := pkgkafka.NewProducer(
			pkgkafka.WithBrokers(cfg.Kafka.Brokers),
			pkgkafka.WithCompression(cfg.Kafka.Compression),
			pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
			pkgkafka.WithMaxAttempts(cfg.Kafka.MaxAttempts),
			pkgkafka.WithBatchTimeout(cfg.Kafka.BatchTimeout),
			pkgkafka.WithWriteTimeout(cfg.Kafka.WriteTimeout),
			pkgkafka.WithHashByKey(true),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("kafka producer: %w", err)
		}
		sinks = append(sinks, internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.Topic))
		l.Info("kafka events enabled", applogger.Strings("brokers", cfg.Kafka.Brokers), applogger.String("topic", cfg.Kafka.Topic))
	}
	pub := internalrepo.NewFanoutPublisher(sinks...)
	cleanup := func() {
		if err := pub.Close(); err != nil {
			l.Warn("event publisher close error", applogger.Error(err))
		}
	}
	return pub, cleanup, nil
}

// ProvideEnv builds the shared stage environment with a clock in the exchange timezone.
func ProvideEnv(cfg *config.Config, l *applogger.Logger, m repository.Metrics, pub repository.EventPublisher) (usecase.Env, error) {
	loc, err := time.LoadLocation(cfg.Schedule.Timezone)
	if err != nil {
		return usecase.Env{}, fmt.Errorf("timezone: %w", err)
	}
	return usecase.Env{Log: l, Metrics: m, Events: pub, Now: usecase.NewClock(loc)}, nil
}

func ProvideReporter(
	env usecase.Env,
	cfg *config.Config,
	store repository.SignalStore,
	ref repository.ReferenceData,
	c cache.Service,
	mail mailer.Sender,
) *usecase.Reporter {
	return usecase.NewReporter(env, cfg.Strategy, cfg.Report, store, ref, c, mail)
}

// ProvideStages assembles every scheduled stage over the shared stores and broker.
func ProvideStages(
	env usecase.Env,
	cfg *config.Config,
	bars repository.BarStore,
	store repository.SignalStore,
	ref repository.ReferenceData,
	gw *broker.Gateway,
	reporter *usecase.Reporter,
) usecase.Stages {
	s := cfg.Strategy
	return usecase.Stages{
		Sync:        usecase.NewMarketSync(env, s, cfg.Schedule, bars, ref, gw),
		Discovery:   usecase.NewDiscovery(env, s, bars, store, ref),
		Extremes:    usecase.NewExtremeTracker(env, bars, store),
		Gate:        usecase.NewGate(env, s, bars, store, ref),
		Scoring:     usecase.NewScorer(env, s, bars, store, ref),
		Report:      reporter,
		Entry:       usecase.NewEntry(env, s, bars, store, gw, gw, gw),
		Exits:       usecase.NewExitMonitor(env, s, bars, store, gw, gw),
		Maintenance: usecase.NewMaintenance(env, s, store),
	}
}

func ProvideOrchestrator(
	env usecase.Env,
	cfg *config.Config,
	stages usecase.Stages,
	q queue.Queue,
	c cache.Service,
) (*usecase.Orchestrator, error) {
	return usecase.NewOrchestrator(env, cfg.Schedule, stages, q, c)
}

func ProvideQueries(cfg *config.Config, store repository.SignalStore, bars repository.BarStore) *usecase.Queries {
	return usecase.NewQueries(cfg.Strategy, store, bars)
}

func ProvideSignalsHandler(
	l *applogger.Logger,
	q *usecase.Queries,
	reporter *usecase.Reporter,
	orch *usecase.Orchestrator,
) *api.SignalsHandler {
	return api.NewSignalsHandler(l, q, reporter, orch, ratelimit.New(jobTriggersPerMin, 2))
}

// ProvideHTTPServer mounts the API and the event stream on one Echo server.
func ProvideHTTPServer(cfg *config.Config, l *applogger.Logger, sh *api.SignalsHandler, hub *api.EventHub) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(l, []xhttp.Handler{sh, hub},
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithSlowThreshold(cfg.Server.SlowRequest),
		xhttp.WithCORS(cfg.Server.CORSOrigins),
		xhttp.WithMetricsPath(metricsPath),
	)
}

func ProvideApp(cfg *config.Config, l *applogger.Logger, srv *xhttp.Server, orch *usecase.Orchestrator) *server.App {
	return server.New(cfg, l, srv, orch)
}
