// scraper/upsert.go
package scraper

import (
    "context"
    "errors"
    "fmt"
    "math"
    "strings"
    "time"

    "github.com/google/uuid"

    "optihome/database"
    "optihome/models"
)

// defaultTitle fills records whose pages carried no usable title; the
// catalog never stores an empty title for an active row.
const defaultTitle = "Property listing"

// GeocodeResolver fills missing coordinates during reconciliation.
type GeocodeResolver interface {
    Resolve(ctx context.Context, query string) (lat, lng float64, ok bool)
}

// Reconciler merges scraped listings into the catalog: insert or update
// keyed by external_id, UUID assigned once, soft-delete flag refreshed,
// coordinates filled from the geocode cache when missing. Ingestion is
// total: every raw record with an external id produces exactly one write
// attempt, falling back to a minimal safe record when normalization fails.
type Reconciler struct {
    baseURL  string
    geocoder GeocodeResolver
}

func NewReconciler(baseURL string, geocoder GeocodeResolver) *Reconciler {
    return &Reconciler{
        baseURL:  strings.TrimRight(baseURL, "/"),
        geocoder: geocoder,
    }
}

// Upsert writes one raw listing into the catalog within the caller's
// transaction. Geocoding failures never abort the upsert; a duplicate-key
// insert race resolves by re-reading the winning row and updating it.
func (r *Reconciler) Upsert(ctx context.Context, tx database.Tx, raw models.RawListing, kind string, yearBuilt *int) error {
    if raw.ExternalID == "" {
        return errors.New("raw listing has no external id")
    }

    fresh, err := r.normalize(raw, kind, yearBuilt)
    if err != nil {
        fresh = r.minimalRecord(raw.ExternalID, kind)
    }

    existing, err := tx.GetPropertyByExternalID(ctx, fresh.ExternalID)
    if err != nil && !errors.Is(err, database.ErrNotFound) {
        return fmt.Errorf("lookup %s: %w", fresh.ExternalID, err)
    }

    now := time.Now().UTC()
    if existing == nil {
        fresh.UUID = uuid.NewString()
        fresh.CreatedAt = now
        fresh.UpdatedAt = now
        r.fillCoordinates(ctx, &fresh)

        err := tx.InsertProperty(ctx, &fresh)
        if err == nil {
            return nil
        }
        if !errors.Is(err, database.ErrDuplicate) {
            return fmt.Errorf("insert %s: %w", fresh.ExternalID, err)
        }
        // Lost the identity race: another writer inserted this external_id
        // first. Re-read and continue as an update.
        existing, err = tx.GetPropertyByExternalID(ctx, fresh.ExternalID)
        if err != nil {
            return fmt.Errorf("re-read %s after duplicate insert: %w", fresh.ExternalID, err)
        }
    }

    merged := r.merge(existing, fresh)
    merged.UpdatedAt = now
    r.fillCoordinates(ctx, merged)

    if err := tx.UpdateProperty(ctx, merged); err != nil {
        return fmt.Errorf("update %s: %w", merged.ExternalID, err)
    }
    return nil
}

// normalize validates raw fields into canonical catalog types. Missing
// numerics default to 0, negatives clamp to 0, price_per_m2 is derived
// from price/area when area is positive.
func (r *Reconciler) normalize(raw models.RawListing, kind string, yearBuilt *int) (models.Property, error) {
    externalID := raw.ExternalID
    if len(externalID) > maxExternalIDLen {
        externalID = externalID[:maxExternalIDLen]
    }

    price := clampNonNegative(deref(raw.PriceEUR))
    area := clampNonNegative(deref(raw.AreaM2))
    if !isFinite(price) || !isFinite(area) {
        return models.Property{}, fmt.Errorf("non-finite numeric fields for %s", externalID)
    }

    rooms := deref(raw.Rooms)
    if rooms < 0 {
        rooms = 0
    }

    pricePerM2 := 0.0
    if area > 0 {
        pricePerM2 = price / area
    }

    prop := models.Property{
        ExternalID: externalID,
        URL:        raw.URL,
        Title:      raw.Title,
        Type:       kind,
        PriceEUR:   price,
        AreaM2:     area,
        Rooms:      rooms,
        PricePerM2: pricePerM2,
        IsActive:   true,
    }
    if prop.URL == "" {
        prop.URL = r.syntheticURL(externalID)
    }
    if prop.Title == "" {
        prop.Title = defaultTitle
    }
    if raw.Location != "" {
        addr := raw.Location
        prop.Address = &addr
    }
    if yearBuilt != nil && *yearBuilt > 0 {
        y := *yearBuilt
        prop.YearBuilt = &y
    }
    return prop, nil
}

// minimalRecord is the safe fallback when validation fails: zeroed
// numerics, synthesized url and title. The item is still ingested.
func (r *Reconciler) minimalRecord(externalID, kind string) models.Property {
    if len(externalID) > maxExternalIDLen {
        externalID = externalID[:maxExternalIDLen]
    }
    return models.Property{
        ExternalID: externalID,
        URL:        r.syntheticURL(externalID),
        Title:      defaultTitle,
        Type:       kind,
        IsActive:   true,
    }
}

// merge overwrites the existing row's mutable fields with the fresh data.
// Identity fields stay; the UUID is backfilled for legacy rows but never
// reassigned. Year and address keep their prior values when the fresh
// record has none.
func (r *Reconciler) merge(existing *models.Property, fresh models.Property) *models.Property {
    merged := *existing
    if merged.UUID == "" {
        merged.UUID = uuid.NewString()
    }
    merged.URL = fresh.URL
    merged.Title = fresh.Title
    merged.Type = fresh.Type
    merged.PriceEUR = fresh.PriceEUR
    merged.AreaM2 = fresh.AreaM2
    merged.Rooms = fresh.Rooms
    merged.PricePerM2 = fresh.PricePerM2
    if fresh.YearBuilt != nil {
        merged.YearBuilt = fresh.YearBuilt
    }
    if fresh.Address != nil {
        merged.Address = fresh.Address
    }
    merged.IsActive = true
    return &merged
}

// fillCoordinates consults the geocode cache when the record has an
// address but is missing a coordinate. Failures leave coordinates absent.
func (r *Reconciler) fillCoordinates(ctx context.Context, prop *models.Property) {
    if r.geocoder == nil || prop.Address == nil {
        return
    }
    if prop.Lat != nil && prop.Lng != nil {
        return
    }
    lat, lng, ok := r.geocoder.Resolve(ctx, *prop.Address)
    if !ok {
        return
    }
    prop.Lat = &lat
    prop.Lng = &lng
}

func (r *Reconciler) syntheticURL(externalID string) string {
    return fmt.Sprintf("%s/detail/%s", r.baseURL, externalID)
}

func deref[T int | float64](p *T) T {
    if p == nil {
        var zero T
        return zero
    }
    return *p
}

func clampNonNegative(v float64) float64 {
    if v < 0 {
        return 0
    }
    return v
}

func isFinite(v float64) bool {
    return !math.IsNaN(v) && !math.IsInf(v, 0)
}
