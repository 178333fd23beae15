package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/candle-checkout/internal/address"
	"github.com/noah-isme/candle-checkout/internal/catalog"
	"github.com/noah-isme/candle-checkout/internal/checkout"
	"github.com/noah-isme/candle-checkout/internal/config"
	"github.com/noah-isme/candle-checkout/internal/events"
	"github.com/noah-isme/candle-checkout/internal/health"
	"github.com/noah-isme/candle-checkout/internal/lock"
	"github.com/noah-isme/candle-checkout/internal/migrate"
	"github.com/noah-isme/candle-checkout/internal/notify"
	"github.com/noah-isme/candle-checkout/internal/obs"
	"github.com/noah-isme/candle-checkout/internal/order"
	"github.com/noah-isme/candle-checkout/internal/payment"
	"github.com/noah-isme/candle-checkout/internal/ratelimit"
	"github.com/noah-isme/candle-checkout/internal/resilience"
	"github.com/noah-isme/candle-checkout/internal/security"
	"github.com/noah-isme/candle-checkout/internal/shipping"
	"github.com/noah-isme/candle-checkout/internal/tax"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	exporter := "otlp"
	if cfg.OTLPEndpoint == "" {
		exporter = envOrDefault("OBS_TRACING_EXPORTER", "none")
	}
	tracingEnabled := exporter != "none"
	shutdownTracer, err := obs.InitTracer(ctx, obs.TracingConfig{
		ServiceName:   cfg.ServiceName,
		Endpoint:      cfg.OTLPEndpoint,
		Exporter:      exporter,
		SamplingRatio: cfg.TraceSampleRatio,
		Environment:   cfg.AppEnv,
	})
	if err != nil {
		logger.Error().Err(err).Msg("initialise tracing")
		tracingEnabled = false
	} else {
		defer func() {
			if err := shutdownTracer(context.Background()); err != nil {
				logger.Error().Err(err).Msg("shutdown tracer")
			}
		}()
	}

	var checks []health.Check

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient = mustInitRedis(ctx, cfg, logger, metricsEnabled)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		}()
		checks = append(checks, health.RedisCheck(redisClient))
	}

	var pool *pgxpool.Pool
	if cfg.OrderStore == config.BackendPostgres {
		pool = mustInitDatabase(ctx, cfg, logger)
		defer pool.Close()
		checks = append(checks, health.DBCheck(pool))
	}

	store := newOrderStore(ctx, cfg, redisClient, pool, logger)
	provider := newPaymentProvider(cfg, logger)

	var bus events.Bus
	bus.Notifiers = append(bus.Notifiers, events.LogNotifier{Logger: logger})
	if len(cfg.KafkaBrokers) > 0 {
		writer := events.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic)
		publisher, err := events.NewKafkaPublisher(writer)
		if err != nil {
			logger.Fatal().Err(err).Msg("initialise kafka publisher")
		}
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Error().Err(err).Msg("close kafka writer")
			}
		}()
		bus.Publishers = append(bus.Publishers, publisher)
	}
	if cfg.NotifyEnabled {
		redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("parse task queue redis url")
		}
		taskClient := asynq.NewClient(redisOpt)
		defer func() {
			if err := taskClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close task client")
			}
		}()
		bus.Notifiers = append(bus.Notifiers, notify.Enqueuer{
			Client: taskClient,
			Queue:  cfg.TaskQueue,
			Logger: logger,
		})
	}

	validator := address.NewValidator(false)

	paymentSvc := payment.NewService(provider, store, logger)
	paymentSvc.Events = &bus
	paymentSvc.Validator = validator
	paymentSvc.Limits = amountLimits(cfg)
	paymentSvc.LockTTL = cfg.LockTTL
	if cfg.LockBackend == config.BackendRedis {
		paymentSvc.Locker = lock.Locker{R: redisClient, Prefix: "checkout:lock:"}
	}
	paymentHandler := &payment.Handler{Svc: paymentSvc}

	orderSvc := &order.Service{
		Store:    store,
		Resolver: payment.OrderResolver{Provider: provider},
		Logger:   logger,
	}
	orderHandler := &order.Handler{Service: orderSvc}

	limiter := newLimiter(ctx, cfg, redisClient, logger)
	paymentLimit := ratelimit.Handler{
		Limiter: limiter,
		Config: ratelimit.Config{
			Message: "Too many payment attempts. Please try again later.",
			Route:   "process_payment",
		},
		OnError: func(err error) {
			logger.Warn().Err(err).Msg("rate_limiter_unavailable")
		},
	}

	shipHandler := &shipping.Handler{Client: shipping.Table{}, Validator: validator}
	taxHandler := &tax.Handler{Calculator: tax.Table{}}
	quoteHandler := &checkout.QuoteHandler{Shipping: shipping.Table{}, Tax: tax.Table{}, Validator: validator}
	catalogHandler := &catalog.Handler{Provider: newCatalog(cfg, redisClient, logger)}

	gate := health.NewGate()
	healthHandler := health.Handler{Checks: checks, Gate: gate}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(cfg.MetricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.CORS(cfg.CORSAllowedOrigins))
	r.Use(security.Headers{
		Enable:          true,
		EnableHSTS:      cfg.AppEnv == "production",
		HSTSMaxAge:      31536000,
		NoStorePrefixes: []string{"/api/checkout/"},
	}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", false) {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/checkout", func(c chi.Router) {
		c.With(paymentLimit.Middleware).Post("/process-payment", paymentHandler.Process)
		c.Get("/order-details", orderHandler.Get)
	})

	r.Route("/api/v1", func(v chi.Router) {
		v.Get("/products", catalogHandler.Products)
		v.Route("/checkout", func(c chi.Router) {
			c.Post("/shipping-rates", shipHandler.Rates)
			c.Post("/tax", taxHandler.Quote)
			c.Post("/quote", quoteHandler.Quote)
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("payment_provider", provider.Name()).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	case <-ctx.Done():
	}

	gate.SetReady(false)
	logger.Info().Dur("timeout", cfg.ShutdownTimeout).Msg("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger, metrics bool) *redis.Client {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metrics {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return client
}

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	if cfg.RunMigrations {
		if err := migrate.Up(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}
	}
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = cfg.ServiceName

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(connectCtx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func newOrderStore(ctx context.Context, cfg *config.Config, rdb *redis.Client, pool *pgxpool.Pool, logger zerolog.Logger) order.Store {
	switch cfg.OrderStore {
	case config.BackendRedis:
		return order.NewRedisStore(rdb, "checkout:order:", cfg.OrderRetention)
	case config.BackendPostgres:
		store := order.NewPostgresStore(pool, cfg.OrderRetention)
		go sweepReceipts(ctx, store, logger)
		return store
	default:
		return order.NewMemoryStore(cfg.OrderRetention, nil)
	}
}

// sweepReceipts deletes expired receipt rows until ctx is done.
func sweepReceipts(ctx context.Context, store *order.PostgresStore, logger zerolog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.Sweep(ctx)
			if err != nil {
				logger.Error().Err(err).Msg("sweep order receipts")
				continue
			}
			if n > 0 {
				logger.Info().Int64("deleted", n).Msg("order receipts swept")
			}
		}
	}
}

func newPaymentProvider(cfg *config.Config, logger zerolog.Logger) payment.Provider {
	if cfg.PaymentProvider != config.ProviderSquare {
		return payment.NewSandbox(nil)
	}
	breaker := resilience.NewBreaker(cfg.BreakerMinRequests, cfg.BreakerFailureRatio, cfg.BreakerOpenFor).
		WithTarget("square").
		WithLogger(logger)
	sq, err := payment.NewSquare(payment.SquareConfig{
		AccessToken: cfg.SquareAccessToken,
		LocationID:  cfg.SquareLocationID,
		Environment: cfg.SquareEnv,
		BaseURL:     cfg.SquareBaseURL,
		Version:     cfg.SquareVersion,
		Timeout:     cfg.ProviderTimeout,
	}, breaker)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise square provider")
	}
	return sq
}

func newLimiter(ctx context.Context, cfg *config.Config, rdb *redis.Client, logger zerolog.Logger) ratelimit.Limiter {
	policy := ratelimit.Policy{Window: cfg.RateLimitWindow, Max: cfg.RateLimitMax}
	if cfg.RateLimitBackend == config.BackendRedis {
		l, err := ratelimit.NewRedis(rdb, "checkout:ratelimit", policy)
		if err != nil {
			logger.Fatal().Err(err).Msg("initialise redis rate limiter")
		}
		return l
	}
	l := ratelimit.NewMemory(policy, nil)
	l.StartSweeper(ctx, cfg.RateLimitWindow)
	return l
}

func newCatalog(cfg *config.Config, rdb *redis.Client, logger zerolog.Logger) catalog.Provider {
	var p catalog.Provider = catalog.DefaultProducts()
	if cfg.CatalogProvider == config.ProviderSquare {
		sc, err := catalog.NewSquareCatalog(cfg.SquareAPIBase(), cfg.SquareAccessToken, cfg.SquareVersion, cfg.ProviderTimeout)
		if err != nil {
			logger.Fatal().Err(err).Msg("initialise square catalog")
		}
		p = sc
	}
	if rdb == nil {
		return p
	}
	return catalog.CachedProvider{Next: p, Cache: catalog.NewCache(rdb, cfg.CatalogCacheTTL), Logger: logger}
}

func amountLimits(cfg *config.Config) map[string]payment.AmountRange {
	defaults := payment.DefaultLimits()
	out := map[string]payment.AmountRange{}
	for cur, v := range cfg.PaymentMinMinor {
		r := defaults[cur]
		r.Min = v
		out[cur] = r
	}
	for cur, v := range cfg.PaymentMaxMinor {
		r, ok := out[cur]
		if !ok {
			r = defaults[cur]
		}
		r.Max = v
		out[cur] = r
	}
	return out
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
