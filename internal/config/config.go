package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/vitos/loki_dashboard/internal/usecase"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "config/config.yaml"

const (
	SessionDriverSQLite = "sqlite"
	SessionDriverRedis  = "redis"
)

type Config struct {
	API struct {
		BaseURL string        `yaml:"base_url"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"api"`
	Auth struct {
		Email    string `yaml:"email"`
		Password string `yaml:"password"`
	} `yaml:"auth"`
	Polling map[usecase.QueryKey]usecase.QueryPolicy `yaml:"polling"`
	Retry   usecase.RetryPolicy                      `yaml:"retry"`
	Session struct {
		Driver        string `yaml:"driver"`
		SQLitePath    string `yaml:"sqlite_path"`
		RedisAddr     string `yaml:"redis_addr"`
		RedisPassword string `yaml:"redis_password"`
		RedisDB       int    `yaml:"redis_db"`
		RedisKey      string `yaml:"redis_key"`
	} `yaml:"session"`
	Dashboard struct {
		TradesLimit int `yaml:"trades_limit"`
		ChartDays   int `yaml:"chart_days"`
	} `yaml:"dashboard"`
	Notifications struct {
		TTL time.Duration `yaml:"ttl"`
	} `yaml:"notifications"`
	Server struct {
		Port            int           `yaml:"port"`
		CookieName      string        `yaml:"cookie_name"`
		SecureCookie    bool          `yaml:"secure_cookie"`
		LoginAttempts   int           `yaml:"login_attempts"`
		LoginWindow     time.Duration `yaml:"login_window"`
		PushInterval    time.Duration `yaml:"push_interval"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		File   string `yaml:"file"`
	} `yaml:"logging"`
}

func defaults() *Config {
	cfg := &Config{}
	cfg.API.Timeout = 15 * time.Second
	cfg.Polling = usecase.DefaultPolicies()
	cfg.Retry = usecase.DefaultRetryPolicy()
	cfg.Session.Driver = SessionDriverSQLite
	cfg.Session.SQLitePath = "dashboard.db"
	cfg.Dashboard.TradesLimit = 20
	cfg.Dashboard.ChartDays = 7
	cfg.Notifications.TTL = usecase.DefaultToastTTL
	cfg.Server.Port = 8080
	cfg.Server.CookieName = "loki_session"
	cfg.Server.LoginAttempts = 5
	cfg.Server.LoginWindow = time.Minute
	cfg.Server.PushInterval = time.Second
	cfg.Server.ShutdownTimeout = 10 * time.Second
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	return cfg
}

// Load reads path (a missing file is not an error), then .env, then the
// environment. Later sources win.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()
	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	// Polling entries missing from the file keep their defaults.
	polling := c.Polling
	c.Polling = nil

	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	for key, p := range c.Polling {
		polling[key] = p
	}
	c.Polling = polling
	return nil
}

func (c *Config) applyEnv() {
	c.API.BaseURL = envStr("LOKI_API_URL", c.API.BaseURL)
	c.Auth.Email = envStr("LOKI_AUTH_EMAIL", c.Auth.Email)
	c.Auth.Password = envStr("LOKI_AUTH_PASSWORD", c.Auth.Password)
	c.Session.Driver = envStr("LOKI_SESSION_DRIVER", c.Session.Driver)
	c.Session.RedisAddr = envStr("LOKI_REDIS_ADDR", c.Session.RedisAddr)
	c.Server.Port = envInt("PORT", c.Server.Port)
	c.Logging.Level = envStr("LOG_LEVEL", c.Logging.Level)
}

func (c *Config) Validate() error {
	var errs []string

	if c.API.BaseURL == "" {
		errs = append(errs, "api.base_url (LOKI_API_URL) is required")
	} else if u, err := url.Parse(c.API.BaseURL); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, fmt.Sprintf("api.base_url %q is not an http(s) URL", c.API.BaseURL))
	}
	if c.Auth.Email == "" || c.Auth.Password == "" {
		errs = append(errs, "auth.email and auth.password (LOKI_AUTH_EMAIL, LOKI_AUTH_PASSWORD) are required")
	}

	known := make(map[usecase.QueryKey]bool)
	for _, k := range usecase.DashboardQueries {
		known[k] = true
	}
	for _, key := range c.pollingKeys() {
		p := c.Polling[key]
		switch {
		case !known[key]:
			errs = append(errs, fmt.Sprintf("polling.%s: unknown query", key))
		case p.Interval <= 0:
			errs = append(errs, fmt.Sprintf("polling.%s: interval must be positive", key))
		case p.StaleTime < 0 || p.StaleTime >= p.Interval:
			errs = append(errs, fmt.Sprintf("polling.%s: stale_time must be shorter than interval", key))
		}
	}

	if c.Retry.MaxRetries < 0 || c.Retry.MaxRetries > 1 {
		errs = append(errs, "retry.max_retries must be 0 or 1")
	}
	if c.Retry.Delay < 0 {
		errs = append(errs, "retry.delay must not be negative")
	}

	switch c.Session.Driver {
	case SessionDriverSQLite:
		if c.Session.SQLitePath == "" {
			errs = append(errs, "session.sqlite_path is required for the sqlite driver")
		}
	case SessionDriverRedis:
		if c.Session.RedisAddr == "" {
			errs = append(errs, "session.redis_addr (LOKI_REDIS_ADDR) is required for the redis driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("session.driver %q must be sqlite or redis", c.Session.Driver))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.LoginAttempts <= 0 || c.Server.LoginWindow <= 0 {
		errs = append(errs, "server.login_attempts and server.login_window must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

func (c *Config) Print(w io.Writer) {
	fmt.Fprintln(w, "=== Loki Dashboard Configuration ===")
	fmt.Fprintf(w, "API: %s (timeout %s)\n", c.API.BaseURL, c.API.Timeout)
	fmt.Fprintf(w, "Login: %s / %s\n", c.Auth.Email, maskSecret(c.Auth.Password))
	fmt.Fprintln(w, "--------------------------------------")
	fmt.Fprintln(w, "Polling:")
	for _, key := range c.pollingKeys() {
		p := c.Polling[key]
		fmt.Fprintf(w, "  %-10s every %-4s stale after %s\n", key, p.Interval, p.StaleTime)
	}
	fmt.Fprintf(w, "Retry: %d after %s\n", c.Retry.MaxRetries, c.Retry.Delay)
	fmt.Fprintln(w, "--------------------------------------")
	switch c.Session.Driver {
	case SessionDriverRedis:
		fmt.Fprintf(w, "Session: redis %s db=%d\n", c.Session.RedisAddr, c.Session.RedisDB)
	default:
		fmt.Fprintf(w, "Session: sqlite %s\n", c.Session.SQLitePath)
	}
	fmt.Fprintf(w, "Server: :%d\n", c.Server.Port)
	fmt.Fprintf(w, "Logging: %s (%s)\n", c.Logging.Level, c.Logging.Format)
	fmt.Fprintln(w, "======================================")
}

func (c *Config) DashboardConfig() usecase.DashboardConfig {
	return usecase.DashboardConfig{
		Policies:    c.Polling,
		TradesLimit: c.Dashboard.TradesLimit,
		ChartDays:   c.Dashboard.ChartDays,
	}
}

func (c *Config) Credentials() usecase.Credentials {
	return usecase.Credentials{Email: c.Auth.Email, Password: c.Auth.Password}
}

func (c *Config) pollingKeys() []usecase.QueryKey {
	keys := make([]usecase.QueryKey, 0, len(c.Polling))
	for k := range c.Polling {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// --- helpers ---

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func maskSecret(s string) string {
	if s == "" {
		return "(not set)"
	}
	return "********"
}
