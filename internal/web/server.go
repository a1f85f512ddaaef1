package web

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vitos/loki_dashboard/internal/usecase"
	"go.uber.org/zap"
)

type Config struct {
	Port          int
	CookieName    string
	SecureCookie  bool
	LoginAttempts int
	LoginWindow   time.Duration
	PushInterval  time.Duration
}

func (c Config) withDefaults() Config {
	if c.CookieName == "" {
		c.CookieName = "loki_session"
	}
	if c.LoginAttempts <= 0 {
		c.LoginAttempts = 5
	}
	if c.LoginWindow <= 0 {
		c.LoginWindow = time.Minute
	}
	if c.PushInterval <= 0 {
		c.PushInterval = time.Second
	}
	return c
}

// Services are the application objects the HTTP surface renders and drives.
type Services struct {
	Dashboard *usecase.Dashboard
	Controls  *usecase.Controls
	Notifier  *usecase.Notifier
	Gate      *usecase.AuthGate
	Gatherer  prometheus.Gatherer
}

type Server struct {
	router    *http.ServeMux
	server    *http.Server
	cfg       Config
	dashboard *usecase.Dashboard
	client    *usecase.QueryClient
	controls  *usecase.Controls
	notifier  *usecase.Notifier
	gate      *usecase.AuthGate
	gatherer  prometheus.Gatherer
	limiter   *loginLimiter
	upgrader  websocket.Upgrader
	logger    *zap.Logger

	closing   chan struct{}
	closeOnce sync.Once
}

func NewServer(cfg Config, svc Services, logger *zap.Logger) *Server {
	cfg = cfg.withDefaults()
	if svc.Gatherer == nil {
		svc.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		router:    http.NewServeMux(),
		cfg:       cfg,
		dashboard: svc.Dashboard,
		client:    svc.Dashboard.Client(),
		controls:  svc.Controls,
		notifier:  svc.Notifier,
		gate:      svc.Gate,
		gatherer:  svc.Gatherer,
		limiter:   newLoginLimiter(cfg.LoginAttempts, cfg.LoginWindow),
		logger:    logger.Named("web"),
		closing:   make(chan struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
	}
	s.routes()
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	// Session
	s.router.HandleFunc("GET /login", s.handleLoginPage)
	s.router.HandleFunc("POST /login", s.handleLogin)
	s.router.HandleFunc("POST /logout", s.requirePage(s.handleLogout))

	// Dashboard
	s.router.HandleFunc("GET /{$}", s.requirePage(s.handleDashboard))
	s.router.HandleFunc("GET /api/dashboard", s.requireAPI(s.handleDashboardJSON))
	s.router.HandleFunc("GET /ws", s.requireAPI(s.handleWS))

	// Sync layer
	s.router.HandleFunc("POST /api/live", s.requireAPI(s.handleLive))
	s.router.HandleFunc("POST /api/queries/{key}/refresh", s.requireAPI(s.handleRefresh))

	// Controls
	s.router.HandleFunc("POST /api/control/{action}", s.requireAPI(s.handleControl))
	s.router.HandleFunc("POST /api/positions/{token}/close", s.requireAPI(s.handleClosePosition))
	s.router.HandleFunc("POST /api/database/clear", s.requireAPI(s.handleClearDatabase))
	s.router.HandleFunc("GET /api/database/download", s.requireAPI(s.handleDownloadDatabase))
	s.router.HandleFunc("POST /api/circuit-breaker/reset", s.requireAPI(s.handleResetCircuitBreaker))
	s.router.HandleFunc("POST /api/circuit-breaker/trip", s.requireAPI(s.handleTripCircuitBreaker))

	// Notifications
	s.router.HandleFunc("GET /api/notifications", s.requireAPI(s.handleNotifications))
	s.router.HandleFunc("DELETE /api/notifications/{id}", s.requireAPI(s.handleDismissNotification))

	// Ops
	s.router.HandleFunc("GET /healthz", s.handleHealthz)
	s.router.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
}

// Handler is the full middleware chain around the router.
func (s *Server) Handler() http.Handler {
	return s.recoverer(s.requestID(s.router))
}

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown also ends open websocket streams, which http.Server does not track.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.closing) })
	return s.server.Shutdown(ctx)
}
