// database/store.go
package database

import (
    "context"
    "errors"

    "optihome/models"
)

// ErrNotFound is returned for point lookups that match nothing.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert loses an identity race on
// external_id; callers re-read the winning row instead of failing.
var ErrDuplicate = errors.New("duplicate key")

// Store is the persistent catalog plus the geocode cache.
type Store interface {
    // Begin opens a transaction; the orchestrator commits once per page.
    Begin(ctx context.Context) (Tx, error)
    // ListProperties returns the filtered rows and the total count before
    // offset/limit. Limit <= 0 means no limit.
    ListProperties(ctx context.Context, f models.PropertyFilter) ([]models.Property, int, error)
    // GetGeocode looks up cached coordinates; ErrNotFound on miss.
    GetGeocode(ctx context.Context, query string) (lat, lng float64, err error)
    // SaveGeocode persists coordinates under the query key. Writes are
    // once-per-key: losing a concurrent race is not an error.
    SaveGeocode(ctx context.Context, query string, lat, lng float64) error
    Close() error
}

// Tx is one catalog transaction.
type Tx interface {
    GetPropertyByExternalID(ctx context.Context, externalID string) (*models.Property, error)
    // InsertProperty inserts a new row and fills p.ID. ErrDuplicate when a
    // row with the same external_id already exists.
    InsertProperty(ctx context.Context, p *models.Property) error
    UpdateProperty(ctx context.Context, p *models.Property) error
    // DeactivateMissing soft-deletes active rows of the kind whose
    // external_id is outside the seen set, returning the affected count.
    DeactivateMissing(ctx context.Context, kind string, seen []string) (int64, error)
    Commit() error
    Rollback() error
}
