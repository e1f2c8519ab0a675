// geocode/geocode.go
package geocode

import (
    "context"
    "encoding/json"
    "fmt"
    "log"
    "net/http"
    "net/url"
    "strconv"

    "optihome/config"
)

// Cache is the persistent query -> coordinates memoization the geocoder
// reads through. Writes are once-per-key; the store swallows lost races.
type Cache interface {
    GetGeocode(ctx context.Context, query string) (lat, lng float64, err error)
    SaveGeocode(ctx context.Context, query string, lat, lng float64) error
}

// Geocoder resolves free-text addresses to coordinates through a
// Nominatim-style provider, memoizing results in the cache. Every failure
// mode collapses to "not found"; resolution is never fatal to callers.
type Geocoder struct {
    cache     Cache
    client    *http.Client
    endpoint  string
    userAgent string
}

func New(cache Cache, cfg config.GeocodeConfig) *Geocoder {
    return &Geocoder{
        cache:     cache,
        client:    &http.Client{Timeout: cfg.Timeout},
        endpoint:  cfg.Endpoint,
        userAgent: cfg.UserAgent,
    }
}

// Resolve returns coordinates for the query, cache first. On a miss it
// asks the provider and persists the result under the query key; if a
// concurrent caller cached the same key first, that result wins but the
// provider's coordinates are still returned to this caller.
func (g *Geocoder) Resolve(ctx context.Context, query string) (float64, float64, bool) {
    if query == "" {
        return 0, 0, false
    }

    if lat, lng, err := g.cache.GetGeocode(ctx, query); err == nil {
        return lat, lng, true
    }

    lat, lng, err := g.lookup(ctx, query)
    if err != nil {
        return 0, 0, false
    }

    // Re-check in case another caller resolved the same query meanwhile.
    if cachedLat, cachedLng, err := g.cache.GetGeocode(ctx, query); err == nil {
        return cachedLat, cachedLng, true
    }
    if err := g.cache.SaveGeocode(ctx, query, lat, lng); err != nil {
        log.Printf("geocode: cache write for %q failed: %v", query, err)
    }
    return lat, lng, true
}

type nominatimResult struct {
    Lat string `json:"lat"`
    Lon string `json:"lon"`
}

func (g *Geocoder) lookup(ctx context.Context, query string) (float64, float64, error) {
    params := url.Values{}
    params.Set("q", query)
    params.Set("format", "json")
    params.Set("limit", "1")

    req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+params.Encode(), nil)
    if err != nil {
        return 0, 0, err
    }
    req.Header.Set("User-Agent", g.userAgent)

    resp, err := g.client.Do(req)
    if err != nil {
        return 0, 0, err
    }
    defer resp.Body.Close()

    if resp.StatusCode != http.StatusOK {
        return 0, 0, fmt.Errorf("geocode provider returned status %d", resp.StatusCode)
    }

    var results []nominatimResult
    if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
        return 0, 0, err
    }
    if len(results) == 0 {
        return 0, 0, fmt.Errorf("no match for %q", query)
    }

    lat, err := strconv.ParseFloat(results[0].Lat, 64)
    if err != nil {
        return 0, 0, err
    }
    lng, err := strconv.ParseFloat(results[0].Lon, 64)
    if err != nil {
        return 0, 0, err
    }
    return lat, lng, nil
}
