/**
 * @description
 * This is the main entry point for the promotion-service. It is responsible for
 * initializing all components of the service: configuration, database
 * connection, the ledger API client, message brokers, repositories, the
 * evaluation pipeline (poller, subscriber, evaluator, issuer), scheduled jobs,
 * and the HTTP server. It wires everything together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/ledgerclient: Client for the bank ledger API.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/transfa/promotion-service/internal/api"
	"github.com/transfa/promotion-service/internal/app"
	"github.com/transfa/promotion-service/internal/config"
	"github.com/transfa/promotion-service/internal/store"
	"github.com/transfa/promotion-service/pkg/ledgerclient"
	rmrabbit "github.com/transfa/promotion-service/pkg/rabbitmq"
)

func main() {
	// Load the optional .env file for local development.
	if err := godotenv.Load(); err != nil {
		log.Println("level=info component=bootstrap msg=\"no .env file found; using environment\"")
	}

	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.LedgerAPIBaseURL) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"ledger api base url must be configured\" env=LEDGER_API_BASE_URL")
	}

	log.Printf("level=info component=bootstrap msg=\"starting promotion-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	poolConfig.MaxConns = 50
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer the poller publishes through. A
	// missing broker must not silently drop events, so the fallback producer
	// fails publishes and the poller holds its cursor until the broker is back.
	var producer rmrabbit.Publisher
	rabbitProducer, err := rmrabbit.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		producer = &rmrabbit.EventProducerFallback{}
	} else {
		defer rabbitProducer.Close()
		producer = rabbitProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Initialize the client for the bank ledger API.
	ledgerTimeout := time.Duration(cfg.LedgerRequestTimeoutSecs) * time.Second
	ledgerClient := ledgerclient.NewClient(cfg.LedgerAPIBaseURL, cfg.LedgerAPIKey, ledgerTimeout)

	// Optional Redis-backed dedup window shared across subscriber replicas.
	// Without Redis a per-replica in-memory window is used; duplicates that
	// slip past it are absorbed by evaluator idempotency.
	var dedup app.DedupWindow = app.NewMemoryDedupWindow(cfg.DedupWindow())
	if cfg.RedisURL != "" {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; using in-memory dedup window\" err=%v", parseErr)
		} else {
			redisClient := redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			pingErr := redisClient.Ping(pingCtx).Err()
			cancelPing()
			if pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; using in-memory dedup window\" err=%v", pingErr)
				redisClient.Close()
			} else {
				defer redisClient.Close()
				dedup = app.NewRedisDedupWindow(redisClient, cfg.RedisDedupPrefix, cfg.DedupWindow())
				log.Println("level=info component=bootstrap msg=\"redis connected; dedup window shared\"")
			}
		}
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Wire the evaluation pipeline.
	issuer := app.NewRewardIssuer(repository, ledgerClient)
	evaluator := app.NewEvaluator(repository, ledgerClient, issuer)

	bootCtx, cancelBoot := context.WithTimeout(context.Background(), 15*time.Second)
	if err := evaluator.RefreshSnapshot(bootCtx); err != nil {
		log.Printf("level=warn component=bootstrap msg=\"initial snapshot load failed; evaluator will retry inline\" err=%v", err)
	}
	cancelBoot()

	// Start the subscriber: consume transaction events from the bus and feed
	// them through dedup into the evaluator.
	eventConsumer := app.NewTransactionEventConsumer(dedup, evaluator, cfg.EvaluatorTimeout())

	rabbitConsumer, err := rmrabbit.NewConsumer(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"rabbitmq consumer init failed\" err=%v", err)
	}
	defer rabbitConsumer.Close()

	bindings := map[string]func([]byte) bool{
		cfg.TransactionRoutingKey: eventConsumer.HandleMessage,
	}
	if err := rabbitConsumer.ConsumeWithBindings(cfg.EventExchange, cfg.TransactionEventQueue, bindings); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"transaction consumer start failed\" err=%v", err)
	}

	// Start the change poller that drains new ledger transactions onto the bus.
	pollerCtx, cancelPoller := context.WithCancel(context.Background())
	defer cancelPoller()
	poller := app.NewChangePoller(
		repository,
		ledgerClient,
		producer,
		cfg.CursorSourceName,
		cfg.EventExchange,
		cfg.TransactionRoutingKey,
		cfg.PollInterval(),
		cfg.PollBatchSize,
	)
	go poller.Run(pollerCtx)

	// Start scheduled jobs: expiry sweep, reward reconciliation, snapshot refresh.
	jobs := app.NewJobs(repository, issuer, evaluator, cfg.ReconcileGrace())
	scheduler := app.NewScheduler(jobs)
	scheduler.Start(app.SchedulerConfig{
		ExpirySweepSchedule:     cfg.ExpirySweepSchedule,
		ReconcileSweepSchedule:  cfg.ReconcileSweepSchedule,
		SnapshotRefreshInterval: cfg.SnapshotRefresh(),
	})

	// Initialize the API handlers and router.
	service := app.NewService(repository, evaluator)
	promotionHandlers := api.NewPromotionHandlers(service)

	router := chi.NewRouter()
	router.Mount("/promotions", api.PromotionRoutes(promotionHandlers, cfg.InternalAPIKey))

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	cancelPoller()
	<-scheduler.Stop().Done()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
