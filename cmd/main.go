package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/teanglann/fuaim/internal/config"
	"github.com/teanglann/fuaim/pkg/diagnostics"
	"github.com/teanglann/fuaim/pkg/logging"
	"github.com/teanglann/fuaim/pkg/manifest"
	"github.com/teanglann/fuaim/pkg/player"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(logging.Options{
		Level:  logging.ParseLevel(cfg.LogLevel),
		Format: cfg.LogFormat,
		Output: os.Stderr,
	})

	// Load and validate the audio manifest
	m, err := manifest.LoadFile(cfg.ManifestPath)
	if err != nil {
		log.Fatalf("Failed to load manifest %s: %v", cfg.ManifestPath, err)
	}
	logger.Info("manifest loaded",
		logging.String("path", cfg.ManifestPath),
		logging.String("version", m.Version),
		logging.Int("assets", m.AssetCount()),
	)

	diag := diagnostics.NewAggregator(logger)
	if cfg.DiagnosticsDB != "" {
		store, err := diagnostics.OpenSQLiteStore(cfg.DiagnosticsDB)
		if err != nil {
			log.Fatalf("Failed to open diagnostics store: %v", err)
		}
		defer store.Close()
		diag = diag.WithStore(store)
	}

	var fetcher player.Fetcher
	if cfg.BaseURL != "" {
		h := player.NewHTTPFetcher(cfg.BaseURL)
		h.Origin = cfg.Origin
		fetcher = h
	} else {
		fetcher = &player.FileFetcher{Root: cfg.AssetRoot}
	}

	mgr, err := player.NewManager(&cfg.Player, player.Deps{
		Manifest:    m,
		Fetcher:     fetcher,
		Diagnostics: diag,
		Logger:      logger,
	})
	if err != nil {
		log.Fatalf("Failed to create playback manager: %v", err)
	}

	ctx := context.Background()

	// Mobile platforms hold playback behind a user gesture; at the CLI
	// starting the process is the gesture.
	if mgr.Capabilities().NeedsUnlock {
		if err := mgr.Unlock(ctx); err != nil {
			log.Fatalf("Failed to unlock audio output: %v", err)
		}
	}

	for _, id := range os.Args[1:] {
		if err := mgr.Play(ctx, id); err != nil {
			logger.Error("playback failed",
				logging.String("asset_id", id),
				logging.Err(err),
			)
		}
	}

	log.Println("Player is running. Press CTRL-C to exit.")
	// Wait here until CTRL-C or other term signal is received.
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	stats := mgr.Stats()
	logger.Info("shutting down",
		logging.Int64("attempted", stats.TotalAttempted),
		logging.Int64("succeeded", stats.TotalSucceeded),
		logging.Int64("failed", stats.TotalFailed),
	)
	mgr.Destroy()
}
