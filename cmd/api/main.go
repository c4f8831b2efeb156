package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/marcelsud/webhook-dispatch/config"
	"github.com/marcelsud/webhook-dispatch/delivery"
	"github.com/marcelsud/webhook-dispatch/internal/http/chi"
	"github.com/marcelsud/webhook-dispatch/internal/user"
	"github.com/marcelsud/webhook-dispatch/metrics"
	"github.com/marcelsud/webhook-dispatch/ratelimit"
	ratelimitredis "github.com/marcelsud/webhook-dispatch/ratelimit/redis"
	"github.com/marcelsud/webhook-dispatch/routes"
	"github.com/marcelsud/webhook-dispatch/webhook"
	"github.com/marcelsud/webhook-dispatch/webhook/sqlstore"
	"github.com/rs/zerolog"
)

const (
	TIMEOUT  = 30 * time.Second
	tokenTTL = 24 * time.Hour
)

/* “a porta de entrada e saída da minha aplicação”
 * É no main.go onde é feita toda a “amarração” dos demais pacotes:
 * config -> storage -> services -> delivery engine / rate limiter -> http
 */

func main() {
	cfg, err := config.GetConfig()
	if err != nil {
		fmt.Println(err)
		return
	}
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT,
	)
	defer stop()

	logger := chi.NewLogger(cfg.LogLevel)

	dialect, err := sqlstore.NewDialect(cfg.DatabaseDriver)
	if err != nil {
		fmt.Println(err)
		return
	}
	repo, err := sqlstore.Open(ctx, dialect, cfg.DatabaseURL)
	if err != nil {
		fmt.Println(err)
		return
	}
	defer repo.Close(context.Background())

	service := webhook.NewService(repo, webhook.Defaults{
		MaxRetries:        cfg.WebhookMaxRetries,
		RetryDelaySeconds: cfg.WebhookRetryDelaySeconds,
		TimeoutSeconds:    cfg.WebhookTimeoutSeconds,
		LogRetention:      cfg.LogRetention(),
	})

	loader := routes.NewLoader()
	if err := loader.Load(cfg.RoutesFile); err != nil {
		fmt.Println(err)
		return
	}

	var (
		store   ratelimit.Store
		windows metrics.WindowCounter
	)
	if cfg.RateLimiting() {
		client, err := ratelimitredis.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			// the limiter fails open until Redis answers
			logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable at startup")
			client = ratelimitredis.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		}
		defer client.Close()
		redisStore := ratelimitredis.NewStore(client, ratelimitredis.DefaultPrefix)
		store, windows = redisStore, redisStore
	}

	exporter, err := metrics.NewOTelExporter(metrics.NewStatsCollector(service, windows, loader), nil)
	if err != nil {
		fmt.Println(err)
		return
	}

	limiter := ratelimit.NewLimiter(store, logger, ratelimit.WithObserver(exporter))
	logger.Info().
		Str("mode", limiter.Mode().String()).
		Int("policies", len(loader.List())).
		Msg("rate limiter configured")

	engine := delivery.NewEngine(repo, delivery.NewSender(nil, cfg.ProductName), logger,
		delivery.WithObserver(exporter),
	)

	deps := chi.Dependencies{
		Webhooks:      service,
		Dispatcher:    engine,
		Limiter:       limiter,
		Routes:        loader,
		Metrics:       exporter.ServeHTTP(),
		Logger:        logger,
		AdminToken:    cfg.AdminToken,
		CronSecret:    cfg.CronSecret,
		LoginPassword: cfg.LoginPassword,
	}
	if cfg.JWTSecret != "" {
		deps.Tokens = user.NewTokenService(cfg.JWTSecret, tokenTTL)
		if cfg.LoginPassword == "" {
			logger.Warn().Msg("LOGIN_PASSWORD is empty, login will not issue tokens")
		}
	}
	if cfg.AdminToken == "" {
		logger.Warn().Msg("ADMIN_TOKEN is empty, the operator API is open")
	}

	r := chi.Handlers(ctx, deps)
	http.Handle("/", r)
	srv := &http.Server{
		ReadTimeout:  30 * time.Second,
		WriteTimeout: chi.WriteTimeout(),
		Addr:         ":" + cfg.Port,
		Handler:      http.DefaultServeMux,
	}

	errShutdown := make(chan error, 1)
	go shutdown(srv, engine, exporter, logger, ctx, errShutdown)
	logger.Info().Str("port", cfg.Port).Msg("listening")
	err = srv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		fmt.Println(err)
		return
	}
	err = <-errShutdown
	if err != nil {
		fmt.Println(err)
		return
	}
}

/* shutdown stops accepting requests first, then cancels pending retry backoffs
 * Interrupted sequences are finalized as failed before the process exits
 */
func shutdown(server *http.Server, engine *delivery.Engine, exporter *metrics.OTelExporter, logger zerolog.Logger, ctxShutdown context.Context, errShutdown chan error) {
	<-ctxShutdown.Done()

	ctxTimeout, stop := context.WithTimeout(context.Background(), TIMEOUT)
	defer stop()

	err := server.Shutdown(ctxTimeout)
	if engineErr := engine.Shutdown(ctxTimeout); engineErr != nil {
		logger.Error().Err(engineErr).Msg("stopping delivery engine")
	}
	if metricsErr := exporter.Shutdown(ctxTimeout); metricsErr != nil {
		logger.Error().Err(metricsErr).Msg("stopping metrics exporter")
	}

	switch err {
	case nil:
		logger.Info().Msg("shutting down server")
		errShutdown <- nil
	case context.DeadlineExceeded:
		errShutdown <- fmt.Errorf("Forcing closing the server")
	default:
		errShutdown <- fmt.Errorf("Forcing closing the server")
	}
}
