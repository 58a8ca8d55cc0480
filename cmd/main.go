package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"userdash/pkg/cache"
	"userdash/pkg/config"
	"userdash/pkg/db"
	"userdash/pkg/events"
	"userdash/pkg/logging"
	"userdash/pkg/metrics"
	"userdash/pkg/sendemail"
	"userdash/pkg/users"
)

// @title           User Management API
// @version         1.0
// @description     REST API for managing users: search, filters, pagination and statistics

// @BasePath  /api

// @schemes   http https

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		slog.Error("invalid configuration", logging.Err(err))
		os.Exit(1)
	}

	log := logging.New(cfg.LogFormat)
	slog.SetDefault(log)

	ctx := context.Background()

	pool, err := db.Connect(ctx, cfg, log)
	if err != nil {
		log.Error("database setup failed", logging.Err(err))
		os.Exit(1)
	}
	defer pool.Close()

	serviceOpts := []users.ServiceOption{users.WithLogger(log)}

	if cfg.RedisAddr != "" {
		rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			log.Warn("redis unavailable, stats cache disabled", logging.Err(err))
		} else {
			defer rdb.Close()
			serviceOpts = append(serviceOpts, users.WithStatsCache(cache.NewStatsCache(rdb, cfg.StatsCacheTTL)))
			log.Info("stats cache enabled", slog.String("addr", cfg.RedisAddr), slog.Duration("ttl", cfg.StatsCacheTTL))
		}
	}

	if cfg.SendgridAPIKey != "" {
		emailService := sendemail.NewEmailService(cfg.SendgridAPIKey, cfg.SendgridSenderEmail, cfg.SendgridSenderName)
		serviceOpts = append(serviceOpts, users.WithNotifier(sendemail.NewWelcomeNotifier(emailService)))
	}

	// Change feed
	eventsManager := events.NewConnectionManager()
	eventsHandler := events.NewHandler(eventsManager, log)
	serviceOpts = append(serviceOpts, users.WithChangePublisher(eventsHandler))

	usersRepo := users.NewPostgresUserRepository(pool)
	usersService := users.NewUserService(usersRepo, serviceOpts...)
	usersHandler := users.NewUserHandler(usersService, log)

	router := newRouter(cfg, log, routerDeps{
		db:      pool,
		metrics: metrics.New(),
		users:   usersHandler,
		events:  eventsHandler,
	})

	settings := tlsSettingsFromConfig(cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start HTTP or HTTPS based on settings
	go func() {
		log.Info("server listening", slog.String("addr", srv.Addr), slog.Bool("tls", settings.EnableTLS))
		if !settings.EnableTLS {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("listen (HTTP)", logging.Err(err))
				os.Exit(1)
			}
			return
		}

		cert, err := buildTLSConfig(settings)
		if err != nil {
			log.Error("TLS setup error", logging.Err(err))
			os.Exit(1)
		}
		log.Info("TLS certificate loaded", slog.String("source", cert.Source))
		srv.TLSConfig = cert.Config

		if err := srv.ListenAndServeTLS(cert.CertFile, cert.KeyFile); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("listen (TLS)", logging.Err(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", logging.Err(err))
	}

	log.Info("server exiting")
}
