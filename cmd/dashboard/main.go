package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/vitos/loki_dashboard/internal/config"
	"github.com/vitos/loki_dashboard/internal/domain"
	"github.com/vitos/loki_dashboard/internal/infrastructure/botapi"
	"github.com/vitos/loki_dashboard/internal/infrastructure/logger"
	"github.com/vitos/loki_dashboard/internal/infrastructure/storage"
	"github.com/vitos/loki_dashboard/internal/usecase"
	"github.com/vitos/loki_dashboard/internal/web"
	"go.uber.org/zap"
)

type sessionStore interface {
	domain.SessionStore
	Close() error
}

func openSessionStore(ctx context.Context, cfg *config.Config) (sessionStore, error) {
	if cfg.Session.Driver == config.SessionDriverRedis {
		return storage.NewRedisSessionStore(ctx, cfg.Session.RedisAddr, cfg.Session.RedisPassword, cfg.Session.RedisDB, cfg.Session.RedisKey)
	}
	return storage.NewSQLiteStore(cfg.Session.SQLitePath)
}

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to the YAML config file")
	flag.Parse()

	// 1. Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	cfg.Print(os.Stdout)

	// 2. Init Logger
	var log *zap.Logger
	if cfg.Logging.File != "" {
		log, err = logger.NewFileLogger(cfg.Logging.File, cfg.Logging.Level)
	} else {
		log, err = logger.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	}
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Init Session Storage
	store, err := openSessionStore(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to init session store", zap.String("driver", cfg.Session.Driver), zap.Error(err))
	}
	defer store.Close()

	// 4. Init Bot API Client
	api := botapi.NewClient(cfg.API.BaseURL, cfg.API.Timeout, log)

	// 5. Init Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := usecase.NewSyncMetrics(reg)

	// 6. Init Sync Layer
	client := usecase.NewQueryClient(cfg.Retry, metrics, log)
	dashboard := usecase.NewDashboard(api, client, cfg.DashboardConfig())
	notifier := usecase.NewNotifier(cfg.Notifications.TTL)
	controls := usecase.NewControls(api, client, notifier, metrics, log)

	// 7. Init Auth Gate (restores a persisted session)
	gate, err := usecase.NewAuthGate(ctx, store, cfg.Credentials(), log)
	if err != nil {
		log.Fatal("Failed to init auth gate", zap.Error(err))
	}
	dashboard.Mount(ctx, gate)

	// 8. Start Server
	server := web.NewServer(web.Config{
		Port:          cfg.Server.Port,
		CookieName:    cfg.Server.CookieName,
		SecureCookie:  cfg.Server.SecureCookie,
		LoginAttempts: cfg.Server.LoginAttempts,
		LoginWindow:   cfg.Server.LoginWindow,
		PushInterval:  cfg.Server.PushInterval,
	}, web.Services{
		Dashboard: dashboard,
		Controls:  controls,
		Notifier:  notifier,
		Gate:      gate,
		Gatherer:  reg,
	}, log)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// 9. Wait for Shutdown
	<-ctx.Done()

	log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown", zap.Error(err))
	}
	client.Stop()
	controls.Wait()
}
