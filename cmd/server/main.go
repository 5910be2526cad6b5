package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/twmb/franz-go/pkg/kgo"

	"hemogrid/internal/admin"
	adminadapters "hemogrid/internal/admin/adapters"
	bloodrequesthandler "hemogrid/internal/bloodrequest/handler"
	bloodrequestmetrics "hemogrid/internal/bloodrequest/metrics"
	bloodrequestservice "hemogrid/internal/bloodrequest/service"
	"hemogrid/internal/bloodrequest/sweeper"
	donorhandler "hemogrid/internal/donor/handler"
	donorservice "hemogrid/internal/donor/service"
	jwttoken "hemogrid/internal/jwt_token"
	notificationhandler "hemogrid/internal/notification/handler"
	"hemogrid/internal/notification/publisher"
	notificationservice "hemogrid/internal/notification/service"
	"hemogrid/internal/platform/config"
	"hemogrid/internal/platform/httpserver"
	"hemogrid/internal/platform/kafka"
	"hemogrid/internal/platform/logger"
	"hemogrid/internal/platform/metrics"
	platformredis "hemogrid/internal/platform/redis"
	"hemogrid/pkg/platform/circuit"
	"hemogrid/pkg/platform/httputil"
	"hemogrid/pkg/platform/middleware/auth"
	request "hemogrid/pkg/platform/middleware/request"
	"hemogrid/pkg/platform/middleware/requesttime"
)

const shutdownTimeout = 15 * time.Second

// main wires dependencies, serves HTTP and runs the expiry sweeper until
// SIGINT or SIGTERM. Business logic lives in internal service packages.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "hemogrid: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.Server.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	stores, err := newStoreSet(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer stores.Close()

	redisClient, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	var locker sweeper.Locker = sweeper.NewLocalLocker()
	if redisClient != nil {
		defer redisClient.Close()
		locker = sweeper.NewRedisLocker(redisClient.Client)
	}

	kafkaClient, err := kafka.New(ctx, cfg.Kafka)
	if err != nil {
		return fmt.Errorf("connect kafka: %w", err)
	}
	var pub notificationservice.Publisher = publisher.NewLog(log)
	if kafkaClient != nil {
		defer kafkaClient.Close()
		if err := kafka.EnsureTopic(ctx, kafkaClient, cfg.Kafka.NotificationTopic, cfg.Kafka.Partitions, cfg.Kafka.ReplicationFactor); err != nil {
			return fmt.Errorf("ensure notification topic: %w", err)
		}
		breaker := circuit.New("kafka",
			circuit.WithFailureThreshold(cfg.Kafka.BreakerThreshold),
			circuit.WithCooldown(cfg.Kafka.BreakerCooldown),
		)
		pub = publisher.NewGuarded(publisher.NewKafka(kafkaClient, cfg.Kafka.NotificationTopic), breaker, log)
	}

	donors := donorservice.New(stores.donors, donorservice.WithLogger(log))
	notifications := notificationservice.New(stores.notifications,
		notificationservice.WithLogger(log),
		notificationservice.WithPublisher(pub),
		notificationservice.WithRegisterer(reg),
	)
	engineOpts := append(stores.engineOptions(),
		bloodrequestservice.WithLogger(log),
		bloodrequestservice.WithMetrics(bloodrequestmetrics.New(reg)),
		bloodrequestservice.WithRetry(cfg.Engine.AcceptRetries, cfg.Engine.RetryBackoff),
		bloodrequestservice.WithFanOut(cfg.Engine.FanOutConcurrency, cfg.Engine.FanOutTimeout),
		bloodrequestservice.WithListLimit(cfg.Engine.ListLimit),
	)
	requests, err := bloodrequestservice.New(stores.requests, stores.donations, donors, notifications, engineOpts...)
	if err != nil {
		return fmt.Errorf("build request service: %w", err)
	}
	adminSvc, err := admin.New(adminadapters.NewDirectoryAdapter(donors), requests, admin.WithLogger(log))
	if err != nil {
		return fmt.Errorf("build admin service: %w", err)
	}

	sweep := sweeper.New(requests,
		sweeper.WithLogger(log),
		sweeper.WithLocker(locker),
		sweeper.WithInterval(cfg.Engine.SweepInterval),
		sweeper.WithLockTTL(cfg.Engine.SweepLockTTL),
	)

	jwtValidator := jwttoken.NewJWTServiceAdapter(
		jwttoken.NewJWTService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer, cfg.Server.JWTAudience))

	r := chi.NewRouter()
	r.Use(request.RequestID, request.Recovery(log), request.Logger(log), requesttime.Middleware)
	if cfg.Server.MetricsEnabled {
		r.Use(metrics.New(reg).Middleware)
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	}
	r.Get("/healthz", healthHandler(log, stores, redisClient, kafkaClient))
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(jwtValidator, log))
		bloodrequesthandler.New(requests, log).Register(r)
		donorhandler.New(donors, log).Register(r)
		notificationhandler.New(notifications, log).Register(r)
		admin.NewHandler(adminSvc, log).Register(r)
	})

	srv := httpserver.New(cfg.Server.Addr, r)
	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting hemogrid", "addr", cfg.Server.Addr, "environment", cfg.Server.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		if err := sweep.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("expiry sweeper stopped", "error", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			stop()
			<-sweepDone
			return fmt.Errorf("serve: %w", err)
		}
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	<-sweepDone
	// Fan-out and notifications run detached from the requests that started
	// them; let them finish before the stores close.
	requests.Wait()
	return nil
}

func healthHandler(log *slog.Logger, stores *storeSet, redisClient *platformredis.Client, kafkaClient *kgo.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := map[string]string{"database": "ok"}
		status := http.StatusOK
		fail := func(name string, err error) {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
		}
		if err := stores.ping(ctx); err != nil {
			fail("database", err)
		}
		if redisClient != nil {
			checks["redis"] = "ok"
			if err := redisClient.Health(ctx); err != nil {
				fail("redis", err)
			}
		}
		if kafkaClient != nil {
			checks["kafka"] = "ok"
			if err := kafkaClient.Ping(ctx); err != nil {
				fail("kafka", err)
			}
		}
		if status != http.StatusOK {
			log.WarnContext(ctx, "health check failed", "checks", checks)
		}
		httputil.WriteJSON(w, status, checks)
	}
}
