package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ariefcatur/go-marketplace-orders/internal/auth"
	"github.com/ariefcatur/go-marketplace-orders/internal/cart"
	"github.com/ariefcatur/go-marketplace-orders/internal/checkout"
	"github.com/ariefcatur/go-marketplace-orders/internal/config"
	"github.com/ariefcatur/go-marketplace-orders/internal/httpx"
	kafkax "github.com/ariefcatur/go-marketplace-orders/internal/kafka"
	"github.com/ariefcatur/go-marketplace-orders/internal/logging"
	"github.com/ariefcatur/go-marketplace-orders/internal/memstore"
	"github.com/ariefcatur/go-marketplace-orders/internal/metrics"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/outbox"
	"github.com/ariefcatur/go-marketplace-orders/internal/postgres"
	"github.com/ariefcatur/go-marketplace-orders/internal/reconcile"
	"github.com/ariefcatur/go-marketplace-orders/internal/redisx"
	"github.com/ariefcatur/go-marketplace-orders/internal/xendit"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(getenv("CONFIG_DIR", "configs"), os.Getenv("APP_ENV"))
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	log := logging.Init(cfg.App.Name, cfg.App.LogFile, cfg.App.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Store
	var store orders.Store
	switch cfg.Store.Driver {
	case "memory":
		mem := memstore.New()
		seedDemo(mem)
		store = mem
		log.Warn("using in-memory store, data is lost on exit")
	default:
		db, err := postgres.Connect(ctx, cfg.Postgres.DSN, postgres.Options{
			MaxConns: cfg.Postgres.MaxConns,
			MinConns: cfg.Postgres.MinConns,
		}, log)
		if err != nil {
			log.Error("db connect", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		if cfg.Postgres.Migrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				log.Error("db migrate", "err", err)
				os.Exit(1)
			}
		}
		store = &orders.Repo{DB: db}
	}

	// Redis (opsional, hanya fast-path)
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redisx.New(redisx.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		if err := redisx.Ping(ctx, rdb); err != nil {
			log.Warn("redis unavailable, continuing without cache", "err", err)
		}
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recMetrics := metrics.NewReconcile(reg)

	gw := xendit.New(xendit.Config{
		BaseURL:            cfg.Xendit.BaseURL,
		SecretKey:          cfg.Xendit.SecretKey,
		Timeout:            cfg.Xendit.Timeout,
		InvoiceDuration:    cfg.Xendit.InvoiceDuration,
		Currency:           cfg.Xendit.Currency,
		SuccessRedirectURL: cfg.Xendit.SuccessRedirectURL,
	})
	validate := validator.New()

	engine := &reconcile.Engine{
		Store:           store,
		Gateway:         gw,
		Redis:           rdb,
		Producer:        cfg.App.Name,
		PollConcurrency: cfg.Reconcile.PollConcurrency,
		PollThrottle:    cfg.Reconcile.PollThrottle,
		Metrics:         recMetrics,
		Log:             logging.New("reconcile"),
	}

	router := httpx.NewRouter(httpx.RouterDeps{
		Auth:     &auth.Verifier{Secret: []byte(cfg.Auth.JWTSecret), Issuer: cfg.Auth.Issuer},
		Metrics:  metrics.NewServer(reg, "api"),
		Gatherer: reg,
		Orders: &httpx.OrdersHandler{
			Store: store,
			Checkout: &checkout.Service{
				Store:    store,
				Gateway:  gw,
				Validate: validate,
				Producer: cfg.App.Name,
				Metrics:  recMetrics,
				Log:      logging.New("checkout"),
			},
			Reconcile: engine,
			Redis:     rdb,
		},
		Cart:           &httpx.CartHandler{Cart: &cart.Service{Store: store, Validate: validate}},
		Webhook:        &httpx.WebhookHandler{Engine: engine, CallbackToken: cfg.Xendit.CallbackToken},
		HandlerTimeout: cfg.HTTP.HandlerTimeout,
	})

	// Outbox relay -> Kafka
	var wg sync.WaitGroup
	var prod *kafkax.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		prod = kafkax.NewProducer(cfg.Kafka.Brokers)
		relay := &outbox.Relay{
			Source:   store,
			Pub:      prod,
			Interval: cfg.Outbox.Interval,
			Batch:    cfg.Outbox.Batch,
			Log:      logging.New("outbox"),
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			relay.Run(ctx)
		}()
	} else {
		log.Warn("kafka.brokers empty, outbox events stay unsent")
	}

	srv := &http.Server{
		Addr:         cfg.App.HTTPAddr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	// graceful shutdown
	go func() {
		log.Info("HTTP listening", "addr", cfg.App.HTTPAddr, "store", cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("listen", "err", err)
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	cancel()  // stop relay loop
	wg.Wait() // relay selesai sebelum writer ditutup
	if prod != nil {
		_ = prod.Close()
	}
}

// seedDemo gives the memory driver something to sell.
func seedDemo(st *memstore.Store) {
	st.PutUser(orders.Buyer{ID: "demo-buyer", Email: "buyer@example.com", Address: "Jl. Merdeka 1, Jakarta", Phone: "081200000000"})
	st.PutProduct(orders.Product{ID: "demo-kopi", SellerID: "demo-seller", Name: "Kopi Gayo 250g", Price: 50000, Weight: 250, Stock: 20})
	st.PutProduct(orders.Product{ID: "demo-teh", SellerID: "demo-seller", Name: "Teh Tubruk 100g", Price: 30000, Weight: 100, Stock: 10})
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
