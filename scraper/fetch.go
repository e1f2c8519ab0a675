// scraper/fetch.go
package scraper

import (
    "context"
    "fmt"
    "io"
    "math/rand"
    "net/http"
    "time"

    "golang.org/x/time/rate"

    "optihome/config"
)

// RetryPolicy bounds fetch retries: MaxAttempts tries total, exponential
// delay between them starting at BaseDelay and capped at MaxDelay.
type RetryPolicy struct {
    MaxAttempts int
    BaseDelay   time.Duration
    MaxDelay    time.Duration
}

// DefaultRetryPolicy matches the source site's tolerance: 3 attempts,
// 1s base, 8s cap.
var DefaultRetryPolicy = RetryPolicy{
    MaxAttempts: 3,
    BaseDelay:   time.Second,
    MaxDelay:    8 * time.Second,
}

// Backoff returns the delay to sleep before the given retry attempt
// (attempt 1 is the first retry).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
    d := p.BaseDelay << uint(attempt-1)
    if d > p.MaxDelay {
        d = p.MaxDelay
    }
    return d
}

// Fetcher retrieves pages politely: fixed identifying User-Agent, a rate
// limiter, bounded retries with exponential backoff, and a randomized
// 0.5-1.5s delay after every successful request.
type Fetcher struct {
    client       *http.Client
    limiter      *rate.Limiter
    userAgent    string
    retry        RetryPolicy
    politeBase   time.Duration
    politeJitter time.Duration
}

func NewFetcher(cfg config.ScrapeConfig) *Fetcher {
    return &Fetcher{
        client: &http.Client{
            Timeout: cfg.RequestTimeout,
            Transport: &http.Transport{
                MaxIdleConns:        100,
                MaxIdleConnsPerHost: 10,
                IdleConnTimeout:     90 * time.Second,
            },
        },
        limiter:      rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), 1),
        userAgent:    cfg.UserAgent,
        retry:        DefaultRetryPolicy,
        politeBase:   500 * time.Millisecond,
        politeJitter: time.Second,
    }
}

// Fetch retrieves the URL body as text, retrying transient failures per the
// retry policy. Non-2xx responses count as failures.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
    var lastErr error
    for attempt := 1; attempt <= f.retry.MaxAttempts; attempt++ {
        if attempt > 1 {
            if err := sleepCtx(ctx, f.retry.Backoff(attempt-1)); err != nil {
                return "", err
            }
        }
        body, err := f.fetchOnce(ctx, url)
        if err == nil {
            f.politeDelay(ctx)
            return body, nil
        }
        lastErr = err
    }
    return "", fmt.Errorf("fetch %s failed after %d attempts: %w", url, f.retry.MaxAttempts, lastErr)
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) (string, error) {
    if err := f.limiter.Wait(ctx); err != nil {
        return "", err
    }

    req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
    if err != nil {
        return "", err
    }
    req.Header.Set("User-Agent", f.userAgent)

    resp, err := f.client.Do(req)
    if err != nil {
        return "", err
    }
    defer resp.Body.Close()

    if resp.StatusCode < 200 || resp.StatusCode >= 300 {
        return "", fmt.Errorf("unexpected status %d for %s", resp.StatusCode, url)
    }

    body, err := io.ReadAll(resp.Body)
    if err != nil {
        return "", err
    }
    return string(body), nil
}

func (f *Fetcher) politeDelay(ctx context.Context) {
    d := f.politeBase
    if f.politeJitter > 0 {
        d += time.Duration(rand.Int63n(int64(f.politeJitter)))
    }
    if d > 0 {
        sleepCtx(ctx, d)
    }
}

func sleepCtx(ctx context.Context, d time.Duration) error {
    timer := time.NewTimer(d)
    defer timer.Stop()
    select {
    case <-ctx.Done():
        return ctx.Err()
    case <-timer.C:
        return nil
    }
}
