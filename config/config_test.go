// config/config_test.go
package config

import (
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
    cfg := Load()
    assert.Equal(t, 8080, cfg.Server.Port)
    assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
    assert.Equal(t, "https://www.nehnutelnosti.sk", cfg.Scrape.BaseURL)
    assert.Equal(t, 5, cfg.Scrape.PagesPerRun)
    assert.Equal(t, 2.0, cfg.Scrape.RateLimitRPS)
    assert.Equal(t, 15*time.Second, cfg.Scrape.RequestTimeout)
    assert.False(t, cfg.Scheduler.Enabled)
    assert.Equal(t, 2, cfg.Scheduler.Hour)
    assert.Equal(t, 0, cfg.Scheduler.Minute)
}

func TestLoadOverrides(t *testing.T) {
    t.Setenv("SERVER_PORT", "9090")
    t.Setenv("SCRAPE_PAGES_PER_RUN", "10")
    t.Setenv("RATE_LIMIT_RPS", "0.5")
    t.Setenv("REQUEST_TIMEOUT", "30s")
    t.Setenv("ENABLE_SCHEDULER", "true")
    t.Setenv("SCHEDULE_HOUR", "4")
    t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

    cfg := Load()
    assert.Equal(t, 9090, cfg.Server.Port)
    assert.Equal(t, 10, cfg.Scrape.PagesPerRun)
    assert.Equal(t, 0.5, cfg.Scrape.RateLimitRPS)
    assert.Equal(t, 30*time.Second, cfg.Scrape.RequestTimeout)
    assert.True(t, cfg.Scheduler.Enabled)
    assert.Equal(t, 4, cfg.Scheduler.Hour)
    assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
    t.Setenv("SERVER_PORT", "not-a-port")
    t.Setenv("RATE_LIMIT_RPS", "fast")
    t.Setenv("ENABLE_SCHEDULER", "maybe")

    cfg := Load()
    assert.Equal(t, 8080, cfg.Server.Port)
    assert.Equal(t, 2.0, cfg.Scrape.RateLimitRPS)
    assert.False(t, cfg.Scheduler.Enabled)
}
