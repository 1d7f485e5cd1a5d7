package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-purchase/internal/api"
	"ms-purchase/internal/checkin"
	"ms-purchase/internal/config"
	"ms-purchase/internal/database/migrations"
	"ms-purchase/internal/inventory"
	"ms-purchase/internal/kafka"
	"ms-purchase/internal/logger"
	"ms-purchase/internal/order"
	orderdb "ms-purchase/internal/order/db"
	orderredis "ms-purchase/internal/order/redis"
	"ms-purchase/internal/payment"
	"ms-purchase/internal/promo"
	"ms-purchase/internal/qr"
	"ms-purchase/internal/reservation"
	"ms-purchase/internal/sweeper"
)

func connectPostgres(cfg *config.Config, log *logger.Logger) *bun.DB {
	if cfg.Database.DSN == "" {
		log.Fatal("CONFIG", "POSTGRES_DSN not set")
	}

	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.Database.DSN)
		if err == nil {
			err = sqldb.Ping()
		}
		if err == nil {
			break
		}
		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	log.Info("DATABASE", "PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New())
}

func connectRedis(ctx context.Context, cfg *config.Config, log *logger.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}

	// Reservation TTL keys drive the sweeper's early reclamation; their
	// expiry must be published as keyspace events.
	if _, err := client.ConfigSet(ctx, "notify-keyspace-events", "Ex").Result(); err != nil {
		log.Warn("REDIS", fmt.Sprintf("Failed to enable keyspace notifications: %v", err))
	} else {
		log.Info("REDIS", "Keyspace notifications enabled for expired events")
	}

	log.Info("DATABASE", fmt.Sprintf("Redis connection successful to %s", cfg.Redis.Addr))
	return client
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting Purchase Service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}
	cfg := config.Load()

	ctx := context.Background()
	bunDB := connectPostgres(cfg, log)
	defer bunDB.Close()

	if err := migrations.NewRunner(bunDB, "./migrations").Up(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
	}
	log.Info("DATABASE", "Migrations applied")

	redisClient := connectRedis(ctx, cfg, log)
	defer redisClient.Close()

	producer := kafka.NewProducer(cfg.Kafka.Brokers, kafka.Topics{
		OrderCreated:    cfg.Kafka.Topics.OrderCreated,
		TicketExpired:   cfg.Kafka.Topics.TicketExpired,
		TicketCheckedIn: cfg.Kafka.Topics.TicketCheckedIn,
		PaymentSettled:  cfg.Kafka.Topics.PaymentSettled,
	})
	defer producer.Close()

	requiredTopics := []string{
		cfg.Kafka.Topics.OrderCreated,
		cfg.Kafka.Topics.TicketExpired,
		cfg.Kafka.Topics.TicketCheckedIn,
		cfg.Kafka.Topics.PaymentSettled,
	}
	if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, requiredTopics); err != nil {
		log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
	} else {
		log.Info("KAFKA", "Required topics ensured successfully")
	}

	httpClient := &http.Client{Timeout: 10 * time.Second}

	ledger := inventory.NewLedger(&inventory.DB{Bun: bunDB}, log)
	coordinator := reservation.NewCoordinator(ledger, log, cfg.Reservation.TTL)
	qrGen := qr.NewGenerator(cfg.QRSecret)
	expiry := orderredis.NewExpiry(redisClient)
	gateway := payment.NewHTTPGateway(httpClient, cfg.Gateway.BaseURL)

	var promoResolver promo.Resolver = promo.NoopResolver{}
	if cfg.Promo.ServiceURL != "" {
		promoResolver = promo.NewFetcher(httpClient, cfg.Promo.ServiceURL, log)
	}

	orderService := order.NewOrderService(
		&orderdb.DB{Bun: bunDB},
		coordinator,
		ledger,
		promoResolver,
		gateway,
		producer,
		expiry,
		qrGen,
		log,
	)
	paymentService := payment.NewService(&payment.DB{Bun: bunDB}, gateway, producer, expiry, log)
	checkinService := checkin.NewService(&checkin.DB{Bun: bunDB}, qrGen, producer, log)

	sweep := sweeper.NewSweeper(&sweeper.DB{Bun: bunDB}, producer, redisClient, log, cfg.Reservation.SweepInterval)
	sweepCtx, stopSweeper := context.WithCancel(ctx)
	go sweep.Run(sweepCtx)

	handler := api.NewHandler(orderService, paymentService, checkinService, qrGen, log)

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      handler.Routes(cfg.JWTSecret),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Purchase Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	stopSweeper()

	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "Purchase Service shutdown complete")
	}
}
