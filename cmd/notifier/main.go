package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-marketplace-orders/internal/config"
	kafkax "github.com/ariefcatur/go-marketplace-orders/internal/kafka"
	"github.com/ariefcatur/go-marketplace-orders/internal/logging"
	"github.com/ariefcatur/go-marketplace-orders/internal/notify"
	"github.com/ariefcatur/go-marketplace-orders/internal/redisx"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load(getenv("CONFIG_DIR", "configs"), os.Getenv("APP_ENV"))
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	log := logging.Init(cfg.App.Name+"-notifier", cfg.App.LogFile, cfg.App.LogLevel)
	if len(cfg.Kafka.Brokers) == 0 {
		log.Error("kafka.brokers required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redisx.New(redisx.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
	}

	svc := &notify.Service{
		Redis:       rdb,
		ServiceName: "notifier",
		Log:         logging.New("notify"),
	}

	cons := kafkax.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Group, notify.Topics, cfg.Kafka.Workers, log)
	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Info("notifier consumer started", "group", cfg.Kafka.Group, "topics", notify.Topics, "workers", cfg.Kafka.Workers)
		if err := cons.Start(ctx, svc.HandleEvent); err != nil {
			log.Error("consumer exit", "err", err)
			cancel()
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info("shutting down consumer...")
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		log.Warn("consumer did not stop in time")
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
