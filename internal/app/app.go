package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/storelink/checkout/internal/api"
	"github.com/storelink/checkout/internal/domain/campaign"
	"github.com/storelink/checkout/internal/domain/checkout"
	"github.com/storelink/checkout/internal/domain/shipping"
	"github.com/storelink/checkout/internal/events"
	"github.com/storelink/checkout/internal/geo"
	"github.com/storelink/checkout/internal/metrics"
	"github.com/storelink/checkout/internal/storage/postgres"
	"github.com/storelink/checkout/pkg/health"
	"github.com/storelink/checkout/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health checks run when a probe hits, with a short result cache.
	healthSvc := health.New(5 * time.Second)
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc_pause", time.Second, health.GCMaxPauseCheck(time.Second))
	healthSvc.SetReady(true)

	// Optional Redis for geo lookup caching. A failed ping is only a
	// warning: the caches degrade to provider calls on their own.
	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return errors.Wrap(err, "parse redis url")
		}
		rdb = redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			lg.Warn("Redis ping failed, geo lookups fall back to the provider", zap.Error(err))
		}
	}

	// Repositories.
	storeRepo := postgres.NewStoreRepository(pool)
	productRepo := postgres.NewProductRepository(pool)
	customerRepo := postgres.NewCustomerRepository(pool)
	campaignRepo := postgres.NewCampaignRepository(pool)
	tierRepo := postgres.NewTierRepository(pool)
	overrideRepo := postgres.NewOverrideRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	txManager := postgres.NewTxManager(pool)

	// Distance and geocoding, cached when Redis is around.
	var (
		distance shipping.DistanceClient
		geocoder shipping.Geocoder
	)
	if cfg.Geo.BaseURL != "" {
		client := geo.NewClient(cfg.Geo.BaseURL, cfg.Geo.APIKey, cfg.Geo.Timeout)
		distance, geocoder = client, client
		if rdb != nil {
			distance = geo.NewCachedDistance(client, rdb, cfg.Redis.CacheTTL)
			geocoder = geo.NewCachedGeocoder(client, rdb, cfg.Redis.CacheTTL)
		}
	}

	// Domain services.
	resolver := shipping.NewResolver(tierRepo, overrideRepo, distance, geocoder,
		decimal.NewFromFloat(cfg.Shipping.RoadFactor))
	selector := campaign.NewSelector(campaignRepo)

	recorder, err := metrics.NewRecorder(m.MeterProvider().Meter("storelink.checkout"))
	if err != nil {
		return errors.Wrap(err, "create metrics recorder")
	}

	var publisher checkout.EventPublisher = events.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() { _ = kp.Close() }()
		publisher = kp
	}

	svc := checkout.NewService(checkout.Deps{
		Stores:         storeRepo,
		Products:       productRepo,
		Customers:      customerRepo,
		Selector:       selector,
		Shipping:       resolver,
		Orders:         orderRepo,
		Tx:             txManager,
		Events:         publisher,
		Recorder:       recorder,
		TrackingSecret: []byte(cfg.TrackingSecret),
		CountryCode:    cfg.CountryCode,
	})

	// Mux: health endpoints + API routes on one server.
	handler := api.NewHandler(svc, storeRepo)
	routeFinder := httpmiddleware.NewRouteFinder(
		"POST /api/v1/checkout",
		"POST /api/v1/checkout/preview",
		"GET /api/v1/orders/{id}/tracking",
		"GET /livez",
		"GET /readyz",
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", handler.Routes())

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins: cfg.CORS.Origins,
				MaxAge:       86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("checkout-api", routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
