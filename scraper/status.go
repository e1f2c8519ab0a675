// scraper/status.go
package scraper

import (
    "sync"
    "time"

    "optihome/models"
)

// Run statuses. Exactly one logical run is tracked at a time.
const (
    StatusIdle      = "idle"
    StatusRunning   = "running"
    StatusCompleted = "completed"
    StatusError     = "error"
)

// logCapacity bounds the retained run log; the oldest entries are evicted
// first.
const logCapacity = 1000

// RunState tracks the progress of the current scrape run. All access goes
// through the mutex; holders never do I/O while locked. Polling consumers
// read copies via Snapshot.
type RunState struct {
    mu             sync.Mutex
    status         string
    currentKind    string
    currentPage    int
    totalPages     int
    itemsProcessed int
    itemsTotal     int
    startTime      *time.Time
    endTime        *time.Time
    errorMessage   string
    logs           []models.LogEntry
}

func NewRunState() *RunState {
    return &RunState{status: StatusIdle}
}

// Start resets the state for a new run and marks it running.
func (s *RunState) Start(kind string, totalPages int) {
    s.mu.Lock()
    defer s.mu.Unlock()
    now := time.Now().UTC()
    s.status = StatusRunning
    s.currentKind = kind
    s.currentPage = 0
    s.totalPages = totalPages
    s.itemsProcessed = 0
    s.itemsTotal = 0
    s.startTime = &now
    s.endTime = nil
    s.errorMessage = ""
}

func (s *RunState) SetPage(page int) {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.currentPage = page
}

func (s *RunState) AddItems(n int) {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.itemsTotal += n
}

func (s *RunState) ItemProcessed() {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.itemsProcessed++
}

// Complete finalizes a successful run.
func (s *RunState) Complete() {
    s.mu.Lock()
    defer s.mu.Unlock()
    now := time.Now().UTC()
    s.status = StatusCompleted
    s.endTime = &now
}

// Fail finalizes a run that ended with a fatal error.
func (s *RunState) Fail(message string) {
    s.mu.Lock()
    defer s.mu.Unlock()
    now := time.Now().UTC()
    s.status = StatusError
    s.errorMessage = message
    s.endTime = &now
}

// Log appends an entry to the bounded run log.
func (s *RunState) Log(level, message string) {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.logs = append(s.logs, models.LogEntry{
        Timestamp: time.Now().UTC(),
        Level:     level,
        Message:   message,
    })
    if len(s.logs) > logCapacity {
        s.logs = s.logs[len(s.logs)-logCapacity:]
    }
}

// Snapshot returns a read-only copy of the current state, log included.
func (s *RunState) Snapshot() models.RunSnapshot {
    s.mu.Lock()
    defer s.mu.Unlock()

    logs := make([]models.LogEntry, len(s.logs))
    copy(logs, s.logs)

    progress := 0.0
    if s.totalPages > 0 {
        progress = float64(s.currentPage) / float64(s.totalPages) * 100
    }

    return models.RunSnapshot{
        Status:         s.status,
        CurrentKind:    s.currentKind,
        CurrentPage:    s.currentPage,
        TotalPages:     s.totalPages,
        ItemsProcessed: s.itemsProcessed,
        ItemsTotal:     s.itemsTotal,
        StartTime:      s.startTime,
        EndTime:        s.endTime,
        ErrorMessage:   s.errorMessage,
        Progress:       progress,
        Logs:           logs,
    }
}
