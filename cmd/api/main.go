package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/example/ec-storefront/internal/api"
	"github.com/example/ec-storefront/internal/auth"
	"github.com/example/ec-storefront/internal/checkout"
	"github.com/example/ec-storefront/internal/command"
	"github.com/example/ec-storefront/internal/config"
	"github.com/example/ec-storefront/internal/domain/cart"
	"github.com/example/ec-storefront/internal/domain/user"
	"github.com/example/ec-storefront/internal/infrastructure/kafka"
	"github.com/example/ec-storefront/internal/infrastructure/store"
	"github.com/example/ec-storefront/internal/logging"
	"github.com/example/ec-storefront/internal/metrics"
	"github.com/example/ec-storefront/internal/outbox"
	"github.com/example/ec-storefront/internal/query"
)

// backend groups the persistence ports so main can swap Postgres for the
// in-memory store.
type backend struct {
	catalog interface {
		command.Catalog
		query.Catalog
	}
	orders interface {
		command.Orders
		query.Orders
	}
	users  user.Repository
	uow    checkout.UnitOfWork
	outbox outbox.Source
	close  func() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.AppEnv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("api stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting storefront api",
		zap.String("env", cfg.AppEnv),
		zap.String("addr", cfg.HTTPAddr),
		zap.String("session_backend", cfg.SessionBackend),
		zap.Bool("kafka", cfg.KafkaEnabled()),
	)

	be, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer be.close()

	sessions, err := openSessions(ctx, cfg, logger)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	serverMetrics := metrics.NewServerMetrics(reg)
	checkoutMetrics := metrics.NewCheckoutMetrics(reg)

	userSvc := user.NewService(be.users, auth.NewPasswordHasher(bcrypt.DefaultCost))
	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	cartSvc := cart.NewService(sessions)
	checkoutSvc := checkout.NewService(cartSvc, be.catalog, be.uow, userSvc, logger.Named("checkout"),
		checkout.WithRecorder(checkoutMetrics),
	)

	cmdHandler := command.NewHandler(be.catalog, be.orders, cartSvc, checkoutSvc, logger)
	queryHandler := query.NewHandler(be.catalog, be.orders, cartSvc, cfg.LowStockThreshold, logger)

	if err := bootstrapAdmin(ctx, cfg, userSvc, logger); err != nil {
		return err
	}

	router := api.NewRouter(api.RouterConfig{
		Handlers:       api.NewHandlers(cmdHandler, queryHandler, logger),
		AuthHandlers:   api.NewAuthHandlers(userSvc, jwtService, logger),
		AdminHandlers:  api.NewAdminHandlers(cmdHandler, queryHandler, logger),
		JWTService:     jwtService,
		Metrics:        serverMetrics,
		MetricsHandler: metrics.Handler(reg),
		SessionTTL:     cfg.SessionTTL,
		Logger:         logger,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           otelhttp.NewHandler(router, "storefront"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if mem, ok := sessions.(*store.MemorySessionStore); ok {
		g.Go(func() error { return mem.RunSweeper(gctx, cfg.SessionTTL/2) })
	}

	if cfg.KafkaEnabled() {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		defer producer.Close()
		relay := outbox.NewRelay(be.outbox, producer, cfg.OutboxInterval, outbox.DefaultBatchSize, logger)
		g.Go(func() error { return relay.Run(gctx) })
	} else {
		logger.Warn("KAFKA_BROKERS not set, outbox events stay unpublished")
	}

	return g.Wait()
}

func openBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*backend, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory store")
		mem := store.NewMemoryStore()
		return &backend{
			catalog: mem,
			orders:  mem,
			users:   mem,
			uow:     mem,
			outbox:  mem,
			close:   func() error { return nil },
		}, nil
	}

	db, err := store.ConnectPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := store.RunMigrations(db, cfg.MigrationsPath); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("connected to postgres", zap.String("migrations", cfg.MigrationsPath))
	return postgresBackend(db), nil
}

func postgresBackend(db *sql.DB) *backend {
	return &backend{
		catalog: store.NewPostgresCatalog(db),
		orders:  store.NewPostgresOrders(db),
		users:   store.NewPostgresUsers(db),
		uow:     store.NewPostgresUnitOfWork(db),
		outbox:  store.NewPostgresOutbox(db),
		close:   db.Close,
	}
}

func openSessions(ctx context.Context, cfg *config.Config, logger *zap.Logger) (cart.SessionStore, error) {
	switch cfg.SessionBackend {
	case config.SessionRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
		}
		logger.Info("sessions in redis", zap.String("addr", cfg.RedisAddr))
		return store.NewRedisSessionStore(client, cfg.SessionTTL), nil
	case config.SessionDynamoDB:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		logger.Info("sessions in dynamodb", zap.String("table", cfg.DynamoDBSessionTable))
		return store.NewDynamoSessionStore(dynamodb.NewFromConfig(awsCfg), cfg.DynamoDBSessionTable, cfg.SessionTTL), nil
	default:
		return store.NewMemorySessionStore(cfg.SessionTTL), nil
	}
}

// bootstrapAdmin creates the configured admin account once.
func bootstrapAdmin(ctx context.Context, cfg *config.Config, users *user.Service, logger *zap.Logger) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return nil
	}
	_, err := users.RegisterWithRole(ctx, user.Registration{
		Email:    cfg.AdminEmail,
		Password: cfg.AdminPassword,
		FullName: "Administrator",
	}, user.RoleAdmin)
	switch {
	case errors.Is(err, user.ErrEmailTaken):
		return nil
	case err != nil:
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	logger.Info("admin account created", zap.String("email", cfg.AdminEmail))
	return nil
}
