// scheduler/scheduler.go
package scheduler

import (
    "context"
    "fmt"
    "log"

    "github.com/robfig/cron/v3"

    "optihome/config"
    "optihome/scraper"
)

// Scheduler fires a daily scrape of flats then houses at the configured
// time. Per-kind failures are logged, never propagated; the next firing
// proceeds regardless.
type Scheduler struct {
    cron   *cron.Cron
    runner *scraper.Runner
    pages  int
}

func New(runner *scraper.Runner, pages int) *Scheduler {
    return &Scheduler{
        cron:   cron.New(),
        runner: runner,
        pages:  pages,
    }
}

// Start registers the daily job and starts the timer.
func (s *Scheduler) Start(cfg config.SchedulerConfig) error {
    spec := fmt.Sprintf("%d %d * * *", cfg.Minute, cfg.Hour)
    if _, err := s.cron.AddFunc(spec, s.runAll); err != nil {
        return fmt.Errorf("failed to schedule scrape job: %w", err)
    }
    s.cron.Start()
    log.Printf("scheduler: scraping daily at %02d:%02d", cfg.Hour, cfg.Minute)
    return nil
}

// Stop halts the timer; an in-flight run finishes on its own.
func (s *Scheduler) Stop() {
    s.cron.Stop()
}

func (s *Scheduler) runAll() {
    for _, kind := range []string{scraper.KindFlat, scraper.KindHouse} {
        if _, err := s.runner.Run(context.Background(), kind, s.pages); err != nil {
            log.Printf("scheduler: %s scrape failed: %v", kind, err)
        }
    }
}
