// models/models.go
package models

import (
    "time"
)

// Property is a catalog entry for a single listed property. Identity is the
// external_id scraped from the source URL; the UUID is assigned once on
// first insert and never reassigned.
type Property struct {
    ID         int64     `json:"id"`
    ExternalID string    `json:"external_id"`
    UUID       string    `json:"uuid"`
    URL        string    `json:"url"`
    Title      string    `json:"title"`
    Type       string    `json:"type"` // flat | house
    PriceEUR   float64   `json:"price_eur"`
    AreaM2     float64   `json:"area_m2"`
    Rooms      int       `json:"rooms"`
    PricePerM2 float64   `json:"price_per_m2"`
    YearBuilt  *int      `json:"year_built"`
    Address    *string   `json:"address"`
    Lat        *float64  `json:"lat"`
    Lng        *float64  `json:"lng"`
    IsActive   bool      `json:"is_active"`
    CreatedAt  time.Time `json:"created_at"`
    UpdatedAt  time.Time `json:"updated_at"`
}

// RawListing is one scraped result-page item before reconciliation.
// Pointer fields distinguish "not found on the page" from zero.
type RawListing struct {
    ExternalID  string   `json:"external_id"`
    URL         string   `json:"url"`
    Title       string   `json:"title"`
    Location    string   `json:"location"`
    PriceEUR    *float64 `json:"price_eur"`
    AreaM2      *float64 `json:"area_m2"`
    PricePerM2  *float64 `json:"price_per_m2"`
    Rooms       *int     `json:"rooms"`
    Description string   `json:"description"`
    Seller      string   `json:"seller"`
}

// BBox is a lng/lat bounding box filter.
type BBox struct {
    MinLng float64
    MinLat float64
    MaxLng float64
    MaxLat float64
}

// PropertyFilter narrows catalog queries. Nil range bounds are unset.
// Inactive (soft-deleted) rows are excluded unless IncludeInactive is set.
type PropertyFilter struct {
    Type            string
    MinPrice        *float64
    MaxPrice        *float64
    MinRooms        *int
    MaxRooms        *int
    MinArea         *float64
    MaxArea         *float64
    MinYear         *int
    MaxYear         *int
    BBox            *BBox
    IncludeInactive bool
    Offset          int
    Limit           int
}

// LogEntry is one line of the bounded run log, oldest first.
type LogEntry struct {
    Timestamp time.Time `json:"timestamp"`
    Level     string    `json:"level"`
    Message   string    `json:"message"`
}

// RunSnapshot is a read-only copy of the scrape run state for polling
// clients.
type RunSnapshot struct {
    Status         string     `json:"status"`
    CurrentKind    string     `json:"current_kind,omitempty"`
    CurrentPage    int        `json:"current_page"`
    TotalPages     int        `json:"total_pages"`
    ItemsProcessed int        `json:"items_processed"`
    ItemsTotal     int        `json:"items_total"`
    StartTime      *time.Time `json:"start_time"`
    EndTime        *time.Time `json:"end_time"`
    ErrorMessage   string     `json:"error_message,omitempty"`
    Progress       float64    `json:"progress"`
    Logs           []LogEntry `json:"logs"`
}
