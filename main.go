// Copyright (c) 2025 twbeatles
// Licensed under the MIT License

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/twbeatles/navernews-tabsearch/internal/api"
	"github.com/twbeatles/navernews-tabsearch/internal/cache"
	"github.com/twbeatles/navernews-tabsearch/internal/config"
	"github.com/twbeatles/navernews-tabsearch/internal/fetcher"
	"github.com/twbeatles/navernews-tabsearch/internal/models"
	"github.com/twbeatles/navernews-tabsearch/internal/refresh"
	"github.com/twbeatles/navernews-tabsearch/internal/storage"

	_ "github.com/twbeatles/navernews-tabsearch/docs"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize cache for hot read paths
	cacheManager := cache.NewManager(cfg.CacheTTL)

	// Initialize persistent storage
	store, err := storage.New(cfg.DataDir, cfg.PoolSize)
	if err != nil {
		log.Fatal("Failed to initialize storage:", err)
	}

	// Clean up old articles based on retention policy
	if cfg.RetentionDays > 0 {
		log.Printf("Cleaning up articles older than %d days", cfg.RetentionDays)
		if _, err := store.DeleteOldNews(cfg.RetentionDays); err != nil {
			log.Printf("Warning: failed to cleanup old articles: %v", err)
		}
	}

	if !cfg.HasCredentials() {
		log.Println("Warning: no API credentials configured, fetches will fail until NAVER_CLIENT_ID and NAVER_CLIENT_SECRET are set")
	}
	if len(cfg.TabKeywords) == 0 {
		log.Println("Warning: no keyword tabs configured (TAB_KEYWORDS), nothing to refresh")
	}

	// Initialize the fetch orchestrator
	refresher := refresh.New(store, refresh.Options{
		Fetcher: fetcher.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Timeout:      cfg.APITimeout,
			MaxRetries:   cfg.MaxRetries,
		},
		Tabs:              cfg.TabKeywords,
		StepDelay:         cfg.StepDelay,
		FetchDedupeWindow: cfg.FetchDedupeWindow,
	})
	refresher.OnTabUpdated = func(tab string, result models.FetchResult) {
		cacheManager.Flush()
	}

	// Kick off an initial refresh so tabs are warm on startup
	if cfg.HasCredentials() && len(cfg.TabKeywords) > 0 {
		log.Println("Starting initial refresh cycle...")
		refresher.StartCycle()
	}

	// Start the periodic refresh scheduler
	scheduler := refresh.NewScheduler(refresher, cfg.RefreshInterval)
	scheduler.Start()

	// Initialize API server
	server := api.NewServer(store, refresher, cacheManager, cfg)

	log.Printf("Starting news search server on port %d", cfg.Port)
	log.Printf("Data directory: %s", cfg.DataDir)
	log.Printf("Cache TTL: %v", cfg.CacheTTL)
	log.Printf("Keyword tabs: %d", len(cfg.TabKeywords))
	log.Printf("Refresh interval: %v", cfg.RefreshInterval)

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		<-sigChan
		log.Println("Received shutdown signal, stopping services...")
		scheduler.Stop()
		refresher.StopAll()
		cancel()
	}()

	if err := server.StartWithContext(ctx); err != nil && err != context.Canceled {
		log.Fatal("Failed to start server:", err)
	}

	if err := store.Close(); err != nil {
		log.Printf("Warning: failed to close storage: %v", err)
	}
}
