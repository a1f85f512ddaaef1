package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/vitos/loki_dashboard/internal/config"
	"github.com/vitos/loki_dashboard/internal/infrastructure/botapi"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to the YAML config file")
	flag.Parse()

	// 1. Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.API.BaseURL == "" {
		fmt.Println("api.base_url (LOKI_API_URL) is not set")
		os.Exit(1)
	}

	fmt.Printf("Testing Bot API...\n")
	fmt.Printf("Endpoint: %s\n", cfg.API.BaseURL)

	api := botapi.NewClient(cfg.API.BaseURL, cfg.API.Timeout, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	failed := 0
	check := func(name string, fn func() (string, error)) {
		start := time.Now()
		detail, err := fn()
		if err != nil {
			failed++
			fmt.Printf("❌ %-16s %v\n", name, err)
			return
		}
		fmt.Printf("✅ %-16s %s (%s)\n", name, detail, time.Since(start).Round(time.Millisecond))
	}

	// 2. Probe every read endpoint
	check("status", func() (string, error) {
		s, err := api.GetStatus(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("running=%v paused=%v wallet=%s balance=%.4f", s.Running, s.Paused, s.Wallet.Address, s.Wallet.Balance), nil
	})
	check("trades", func() (string, error) {
		p, err := api.GetTrades(ctx, 5, 0)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d of %d", len(p.Trades), p.Total), nil
	})
	check("positions", func() (string, error) {
		ps, err := api.GetPositions(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d positions", len(ps)), nil
	})
	check("metrics", func() (string, error) {
		m, err := api.GetMetrics(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("net profit %.4f", m.Analysis.NetProfit), nil
	})
	check("chart", func() (string, error) {
		c, err := api.GetChartData(ctx, cfg.Dashboard.ChartDays)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d days", len(c)), nil
	})
	check("health", func() (string, error) {
		h, err := api.GetHealth(ctx)
		if err != nil {
			return "", err
		}
		return h.Status, nil
	})
	check("health/detailed", func() (string, error) {
		h, err := api.GetDetailedHealth(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s, %d services, up %s", h.Overall, len(h.Services), h.Uptime), nil
	})
	check("signals", func() (string, error) {
		f, err := api.GetWalletSignals(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d signals for %s", f.Count, f.TrackedWallet), nil
	})
	check("volume", func() (string, error) {
		v, err := api.GetVolumeInfo(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%.2f%% used", v.UsagePercent), nil
	})
	check("circuit-breaker", func() (string, error) {
		cb, err := api.GetCircuitBreaker(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("tripped=%v failures=%d", cb.Tripped, cb.Failures), nil
	})

	if failed > 0 {
		fmt.Printf("%d endpoint(s) failed\n", failed)
		os.Exit(1)
	}
}
