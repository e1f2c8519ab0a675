package main

import (
    "context"
    "errors"
    "log"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "optihome/config"
    "optihome/database"
    "optihome/geocode"
    "optihome/scheduler"
    "optihome/scraper"
    "optihome/server"
)

func main() {
    // Load configuration
    cfg := config.Load()

    // Initialize database
    db, err := database.NewPostgresDB(cfg.Database.URL)
    if err != nil {
        log.Fatalf("Failed to connect to database: %v", err)
    }
    defer db.Close()

    geocoder := geocode.New(db, cfg.Geocode)
    reconciler := scraper.NewReconciler(cfg.Scrape.BaseURL, geocoder)
    fetcher := scraper.NewFetcher(cfg.Scrape)
    state := scraper.NewRunState()
    runner := scraper.NewRunner(db, fetcher, reconciler, state, cfg.Scrape.BaseURL)

    srv := server.NewServer(cfg.Server, db, runner)

    var sched *scheduler.Scheduler
    if cfg.Scheduler.Enabled {
        sched = scheduler.New(runner, cfg.Scrape.PagesPerRun)
        if err := sched.Start(cfg.Scheduler); err != nil {
            log.Fatalf("Failed to start scheduler: %v", err)
        }
    }

    go func() {
        log.Printf("Listening on port %d", cfg.Server.Port)
        if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            log.Fatalf("Server failed: %v", err)
        }
    }()

    // Setup graceful shutdown
    sigChan := make(chan os.Signal, 1)
    signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
    <-sigChan
    log.Println("Shutting down gracefully...")

    if sched != nil {
        sched.Stop()
    }

    ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
    defer cancel()
    if err := srv.Shutdown(ctx); err != nil {
        log.Printf("Server shutdown failed: %v", err)
    }
}
