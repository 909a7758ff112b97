package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Aidin1998/marginx_unified/api"
	"github.com/Aidin1998/marginx_unified/internal/config"
	"github.com/Aidin1998/marginx_unified/internal/database"
	"github.com/Aidin1998/marginx_unified/internal/margin"
	"github.com/Aidin1998/marginx_unified/internal/trades"
	"github.com/Aidin1998/marginx_unified/pkg/logger"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	zapLogger, err := logger.NewLogger(logLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	cfg, err := config.LoadConfig()
	if err != nil {
		zapLogger.Fatal("Failed to load configuration", zap.Error(err))
	}

	tracerShutdown := initTracing(zapLogger)
	defer tracerShutdown()

	// Connect to the database; SQLite is the local-development fallback.
	db, err := openDatabase(cfg)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}

	store := margin.NewStore(db)
	if err := store.Migrate(); err != nil {
		zapLogger.Fatal("Failed to migrate schema", zap.Error(err))
	}
	if err := db.AutoMigrate(&trades.CDSTrade{}); err != nil {
		zapLogger.Fatal("Failed to migrate trade schema", zap.Error(err))
	}

	var params margin.ParameterStore = margin.NewParameterStore(zapLogger, db)
	if cfg.Redis.Address != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		params = margin.NewCachedParameterStore(zapLogger, client, params)
		zapLogger.Info("Parameter set cache enabled", zap.String("redis", cfg.Redis.Address))
	}

	ctx := context.Background()
	if cfg.Margin.ParameterFile != "" {
		if _, err := margin.SeedFromFile(ctx, zapLogger, params, cfg.Margin.ParameterFile); err != nil {
			zapLogger.Fatal("Failed to seed parameter set", zap.Error(err))
		}
	}

	var events margin.EventPublisher = margin.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		events = margin.NewKafkaPublisher(zapLogger, cfg.Kafka.Brokers, cfg.Kafka.Topic)
		zapLogger.Info("Calculation event stream enabled",
			zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}
	defer events.Close()

	tradeStore := trades.NewStore(zapLogger, db)
	marginSvc, err := margin.NewService(zapLogger, db, params, tradeStore, events)
	if err != nil {
		zapLogger.Fatal("Failed to create margin service", zap.Error(err))
	}

	apiServer := api.NewServer(zapLogger, marginSvc, tradeStore)

	go func() {
		if err := apiServer.Start(cfg.Server.Addr()); err != nil {
			zapLogger.Fatal("Failed to start API server", zap.Error(err))
		}
	}()

	// Wait for interrupt to shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down server...")
	zapLogger.Info("Server exited properly")
}

// openDatabase connects to postgres when a DSN is configured, otherwise
// falls back to a local SQLite file.
func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	if cfg.Database.DSN != "" {
		return database.NewPostgresDB(cfg.Database.DSN,
			cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime)
	}
	return database.NewSQLiteDB("marginx.db")
}

// initTracing installs a stdout span exporter and returns its shutdown hook.
func initTracing(zapLogger *zap.Logger) func() {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		zapLogger.Warn("Failed to create trace exporter", zap.Error(err))
		return func() {}
	}
	provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(provider)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			zapLogger.Warn("Failed to shut down trace provider", zap.Error(err))
		}
	}
}
