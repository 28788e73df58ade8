package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/rl1809/pos-inventory/internal/adapter/eventbus"
	"github.com/rl1809/pos-inventory/internal/adapter/handler"
	"github.com/rl1809/pos-inventory/internal/adapter/messaging"
	"github.com/rl1809/pos-inventory/internal/adapter/notify"
	"github.com/rl1809/pos-inventory/internal/adapter/storage"
	"github.com/rl1809/pos-inventory/internal/config"
	"github.com/rl1809/pos-inventory/internal/core/domain"
	"github.com/rl1809/pos-inventory/internal/core/service"
	"github.com/rl1809/pos-inventory/internal/logger"
	"github.com/rl1809/pos-inventory/internal/metrics"
	"github.com/rl1809/pos-inventory/internal/port"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.LogLevel, config.ServiceName)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()

	// Initialize storage
	var uow port.UnitOfWork
	var db *sql.DB
	switch cfg.StorageDriver {
	case config.StorageMySQL:
		db, err = sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			log.Fatal("failed to open mysql", zap.Error(err))
		}
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.PingContext(ctx); err != nil {
			log.Fatal("failed to ping mysql", zap.Error(err))
		}
		adapter := storage.NewMySQLAdapter(db)
		if err := adapter.Migrate(ctx); err != nil {
			log.Fatal("failed to migrate schema", zap.Error(err))
		}
		uow = adapter
		log.Info("connected to mysql")
	default:
		uow = storage.NewMemoryStore()
		log.Warn("using in-memory storage, data is lost on restart")
	}

	// Initialize Redis
	var cache port.CacheRepository
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			PoolSize: 100,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal("failed to connect redis", zap.Error(err))
		}
		cache = storage.NewRedisAdapter(rdb)
		log.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
	}

	// Event handlers run after every commit
	bus := eventbus.New(log, m)

	restock := service.NewRestockHandler(uow, bus, cfg.LowStockThreshold, log)
	bus.Subscribe(domain.EventSaleCancelled, restock)
	bus.Subscribe(domain.EventReturnApproved, restock)

	var notifier port.LowStockNotifier = notify.NewLogNotifier(log)
	if cfg.AlertsEnabled() {
		notifier = notify.NewSendGridNotifier(cfg.SendGridAPIKey, cfg.AlertFrom, cfg.AlertTo, log)
	}
	bus.Subscribe(domain.EventLowStock, service.NewLowStockAlertHandler(notifier, m))

	if cache != nil {
		mirror := service.NewStockMirrorHandler(cache)
		bus.Subscribe(domain.EventStockAdded, mirror)
		bus.Subscribe(domain.EventStockDecremented, mirror)
		bus.Subscribe(domain.EventStockAdjusted, mirror)
	}

	var publisher *messaging.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		publisher = messaging.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, config.ServiceName, log)
		bus.SubscribeAll(service.NewPublishHandler(publisher, cfg.KafkaTopic))
		log.Info("publishing domain events", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}

	// Initialize services
	sales := service.NewSaleService(uow, cache, bus, log, m)
	returns := service.NewReturnService(uow, bus, log, m)
	inventory := service.NewInventoryService(uow, cache, bus, cfg.LowStockThreshold, log, m)

	// Initialize gRPC server
	grpcServer := grpc.NewServer()
	handler.RegisterSalesServiceServer(grpcServer, handler.NewGRPCHandler(sales, returns, inventory, log))

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatal("failed to listen", zap.String("addr", cfg.GRPCAddr), zap.Error(err))
	}

	go func() {
		log.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			log.Error("gRPC server error", zap.Error(err))
		}
	}()

	// Initialize HTTP server
	httpHandler := handler.NewHTTPHandler(sales, returns, inventory, log)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.NewRouter(httpHandler, m, log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown", zap.Error(err))
	}
	log.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	log.Info("gRPC server stopped")

	if publisher != nil {
		if err := publisher.Close(); err != nil {
			log.Error("close kafka writer", zap.Error(err))
		}
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	if db != nil {
		_ = db.Close()
	}
	log.Info("connections closed")
}
