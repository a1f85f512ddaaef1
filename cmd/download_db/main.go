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
	hours := flag.Int("hours", 0, "only include the last N hours (0 = everything)")
	out := flag.String("out", "", "output file (default: server-provided filename)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.API.BaseURL == "" {
		fmt.Println("api.base_url (LOKI_API_URL) is not set")
		os.Exit(1)
	}

	api := botapi.NewClient(cfg.API.BaseURL, 5*time.Minute, zap.NewNop())
	archive, err := api.DownloadDatabase(context.Background(), *hours)
	if err != nil {
		fmt.Printf("❌ Download failed: %v\n", err)
		os.Exit(1)
	}

	path := *out
	if path == "" {
		path = archive.Filename
	}
	if err := os.WriteFile(path, archive.Data, 0o600); err != nil {
		fmt.Printf("❌ Failed to write %s: %v\n", path, err)
		os.Exit(1)
	}
	fmt.Printf("✅ Saved %d bytes to %s\n", len(archive.Data), path)
}
