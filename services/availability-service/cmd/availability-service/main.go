package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"
	_ "time/tzdata"

	"github.com/md-rashed-zaman/homeservices/libs/config"
	"github.com/md-rashed-zaman/homeservices/libs/db"
	"github.com/md-rashed-zaman/homeservices/libs/httpx"
	"github.com/md-rashed-zaman/homeservices/libs/kafkax"
	otelx "github.com/md-rashed-zaman/homeservices/libs/otel"
	"github.com/md-rashed-zaman/homeservices/libs/runtime"
	"github.com/md-rashed-zaman/homeservices/services/availability-service/internal/booking"
	"github.com/md-rashed-zaman/homeservices/services/availability-service/internal/consumer"
	"github.com/md-rashed-zaman/homeservices/services/availability-service/internal/handlers"
	"github.com/md-rashed-zaman/homeservices/services/availability-service/internal/inbox"
	"github.com/md-rashed-zaman/homeservices/services/availability-service/internal/outbox"
	"github.com/md-rashed-zaman/homeservices/services/availability-service/internal/policy"
	"github.com/md-rashed-zaman/homeservices/services/availability-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const publicPrefix = "/api/v1/public"

func main() {
	if err := config.LoadDotEnv(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "availability-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL, db.Options{MaxConns: int32(config.Int("DB_MAX_CONNS", 10, 1))})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	settingsRepo := storage.NewSettingsRepository(pool)
	outboxRepo := outbox.NewRepository(pool)
	jobRepo := storage.NewJobRepository(pool, outboxRepo)

	accessor, err := policy.NewAccessor(settingsRepo, logger, config.String("DEFAULT_TIMEZONE", "America/New_York"))
	if err != nil {
		logger.Error("invalid DEFAULT_TIMEZONE", "err", err)
		panic(err)
	}
	bookingService := booking.NewService(accessor, jobRepo, logger)

	brokers := config.String("KAFKA_BROKERS", "")
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50, 1),
	})
	go outboxPublisher.Run(ctx)

	jobConsumer := consumer.New(logger, inbox.NewRepository(pool), consumer.Config{
		Brokers: brokers,
		GroupID: config.String("KAFKA_GROUP_ID", service),
		Topic:   config.String("KAFKA_JOB_EVENTS_TOPIC", consumer.TopicJobStatusChanged),
	}, consumer.JobStatusHandler(logger, jobRepo))
	go jobConsumer.Run(ctx)

	checks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	}

	limit := config.Int("RATE_LIMIT_PER_MINUTE", 120, 1)
	limiter := httpx.NewRateLimiter(limit, time.Minute, httpx.ClientAndParamKey("contractor_id")).Middleware()
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0, 0),
		})
		defer func() { _ = rdb.Close() }()
		limiter = httpx.NewRedisRateLimiter(rdb, limit, time.Minute, "ratelimit:widget", httpx.ClientAndParamKey("contractor_id")).
			Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: httpx.RedisReadyCheck(rdb)})
	}

	availabilityHandler := handlers.NewAvailabilityHandler(bookingService, logger)
	settingsHandler := handlers.NewSettingsHandler(accessor, settingsRepo, logger)
	widgetHandler := handlers.NewWidgetHandler(accessor, config.String("WIDGET_SCRIPT_URL", "https://widget.homeservices.app/v1/booking.js"), logger)

	public := http.NewServeMux()
	public.HandleFunc(publicPrefix+"/availability", availabilityHandler.Slots)
	public.HandleFunc(publicPrefix+"/availability/check", availabilityHandler.Check)
	public.HandleFunc(publicPrefix+"/availability/next", availabilityHandler.NextDates)
	public.HandleFunc(publicPrefix+"/book", availabilityHandler.Book)
	public.HandleFunc(publicPrefix+"/widget/embed", widgetHandler.Embed)

	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle(publicPrefix+"/", limiter(public))
	mux.HandleFunc("/api/v1/contractor/booking-settings", settingsHandler.BookingSettings)
	mux.HandleFunc("/api/v1/contractor/working-hours", settingsHandler.WorkingHours)
	mux.HandleFunc("/api/v1/contractor/service-types", settingsHandler.ServiceTypes)
	mux.HandleFunc("/openapi", serveOpenAPI)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: config.List("CORS_ALLOWED_ORIGINS", "*"),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Idempotency-Key", httpx.RequestIDHeader},
			MaxAge:         10 * time.Minute,
			PathPrefixes:   []string{publicPrefix},
		}),
		httpx.WithBodyLimit(int64(config.Int("HTTP_BODY_LIMIT_BYTES", 64<<10, 1024))),
		httpx.WithTimeout(time.Duration(config.Int("HTTP_HANDLER_TIMEOUT_SECONDS", 10, 1))*time.Second),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "availability")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcSrv, err := startGRPC(ctx, logger, pool)
	if err != nil {
		logger.Error("grpc server setup failed", "err", err)
		panic(err)
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdown(logger, srv, grpcSrv)
}

func shutdown(logger *slog.Logger, srv *http.Server, grpcSrv grpcStopper) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	logger.Info("servers stopped")
}
