// server/server.go
package server

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "log"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/gorilla/mux"

    "optihome/config"
    "optihome/database"
    "optihome/models"
    "optihome/scraper"
    "optihome/skyline"
)

// Server exposes the catalog, the skyline ranking, the scrape trigger and
// the run-status poll endpoint.
type Server struct {
    config config.ServerConfig
    store  database.Store
    runner *scraper.Runner
    server *http.Server
}

func NewServer(cfg config.ServerConfig, store database.Store, runner *scraper.Runner) *Server {
    s := &Server{
        config: cfg,
        store:  store,
        runner: runner,
    }

    r := mux.NewRouter()
    r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
    r.HandleFunc("/properties", s.handleListProperties).Methods(http.MethodGet)
    r.HandleFunc("/properties/pareto", s.handlePareto).Methods(http.MethodGet)
    r.HandleFunc("/scrape/run", s.handleScrapeRun).Methods(http.MethodPost)
    r.HandleFunc("/scrape/status", s.handleScrapeStatus).Methods(http.MethodGet)
    r.Use(corsMiddleware(cfg.CORSOrigins))

    s.server = &http.Server{
        Addr:         fmt.Sprintf(":%d", cfg.Port),
        Handler:      r,
        ReadTimeout:  15 * time.Second,
        WriteTimeout: 60 * time.Second,
    }

    return s
}

func (s *Server) Start() error {
    return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
    return s.server.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
    return s.server.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, http.StatusOK, map[string]string{
        "status": "healthy",
        "time":   time.Now().UTC().Format(time.RFC3339),
    })
}

type propertiesResponse struct {
    Items []models.Property `json:"items"`
    Total int               `json:"total"`
}

func (s *Server) handleListProperties(w http.ResponseWriter, r *http.Request) {
    filter := parsePropertyFilter(r)
    onlyPareto, _ := strconv.ParseBool(r.URL.Query().Get("onlyPareto"))

    if onlyPareto {
        // Skyline runs over the whole filtered set; pagination does not
        // apply to a frontier.
        filter.Offset = 0
        filter.Limit = 0
        props, _, err := s.store.ListProperties(r.Context(), filter)
        if err != nil {
            httpError(w, http.StatusInternalServerError, fmt.Sprintf("failed to query properties: %v", err))
            return
        }
        props = paretoSubset(props)
        writeJSON(w, http.StatusOK, propertiesResponse{Items: props, Total: len(props)})
        return
    }

    props, total, err := s.store.ListProperties(r.Context(), filter)
    if err != nil {
        httpError(w, http.StatusInternalServerError, fmt.Sprintf("failed to query properties: %v", err))
        return
    }
    writeJSON(w, http.StatusOK, propertiesResponse{Items: props, Total: total})
}

type paretoItem struct {
    ID         int64   `json:"id"`
    PriceEUR   float64 `json:"price_eur"`
    PricePerM2 float64 `json:"price_per_m2"`
    Rooms      int     `json:"rooms"`
    YearBuilt  *int    `json:"year_built"`
}

type paretoResponse struct {
    Items []paretoItem `json:"items"`
}

func (s *Server) handlePareto(w http.ResponseWriter, r *http.Request) {
    filter := parsePropertyFilter(r)
    filter.Offset = 0
    filter.Limit = 0

    props, _, err := s.store.ListProperties(r.Context(), filter)
    if err != nil {
        httpError(w, http.StatusInternalServerError, fmt.Sprintf("failed to query properties: %v", err))
        return
    }

    items := make([]paretoItem, 0)
    for _, p := range paretoSubset(props) {
        items = append(items, paretoItem{
            ID:         p.ID,
            PriceEUR:   p.PriceEUR,
            PricePerM2: p.PricePerM2,
            Rooms:      p.Rooms,
            YearBuilt:  p.YearBuilt,
        })
    }
    writeJSON(w, http.StatusOK, paretoResponse{Items: items})
}

func (s *Server) handleScrapeRun(w http.ResponseWriter, r *http.Request) {
    kind := r.URL.Query().Get("kind")
    if kind == "" {
        kind = scraper.KindFlat
    }
    if kind != scraper.KindFlat && kind != scraper.KindHouse {
        httpError(w, http.StatusBadRequest, fmt.Sprintf("invalid kind %q", kind))
        return
    }

    pages := 1
    if v := r.URL.Query().Get("pages"); v != "" {
        n, err := strconv.Atoi(v)
        if err != nil {
            httpError(w, http.StatusBadRequest, "pages must be an integer")
            return
        }
        pages = n
    }
    if pages < 1 {
        pages = 1
    }
    if pages > 50 {
        pages = 50
    }

    // A disconnecting client or the server's write timeout must not cancel
    // a run that is already mutating the catalog; the run only stops with
    // the process.
    count, err := s.runner.Run(context.WithoutCancel(r.Context()), kind, pages)
    if err != nil {
        if errors.Is(err, scraper.ErrRunInProgress) {
            httpError(w, http.StatusConflict, err.Error())
            return
        }
        log.Printf("server: scrape run failed: %v", err)
        httpError(w, http.StatusInternalServerError, err.Error())
        return
    }

    writeJSON(w, http.StatusOK, map[string]interface{}{
        "status":              "ok",
        "inserted_or_updated": count,
    })
}

func (s *Server) handleScrapeStatus(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, http.StatusOK, s.runner.State().Snapshot())
}

// paretoSubset filters rows down to the skyline frontier.
func paretoSubset(props []models.Property) []models.Property {
    records := make([]skyline.Record, 0, len(props))
    for _, p := range props {
        records = append(records, skyline.Record{
            ID:         p.ID,
            PriceEUR:   p.PriceEUR,
            PricePerM2: p.PricePerM2,
            Rooms:      p.Rooms,
            YearBuilt:  p.YearBuilt,
        })
    }

    ids := make(map[int64]struct{}, len(records))
    for _, id := range skyline.Skyline(records) {
        ids[id] = struct{}{}
    }

    out := make([]models.Property, 0, len(ids))
    for _, p := range props {
        if _, ok := ids[p.ID]; ok {
            out = append(out, p)
        }
    }
    return out
}

func parsePropertyFilter(r *http.Request) models.PropertyFilter {
    q := r.URL.Query()
    f := models.PropertyFilter{
        Offset: intParam(q.Get("offset"), 0),
        Limit:  intParam(q.Get("limit"), 100),
    }

    if t := q.Get("type"); t == scraper.KindFlat || t == scraper.KindHouse {
        f.Type = t
    }
    f.MinPrice = floatParam(q.Get("min_price"))
    f.MaxPrice = floatParam(q.Get("max_price"))
    f.MinRooms = intPtrParam(q.Get("min_rooms"))
    f.MaxRooms = intPtrParam(q.Get("max_rooms"))
    f.MinArea = floatParam(q.Get("min_area"))
    f.MaxArea = floatParam(q.Get("max_area"))
    f.MinYear = intPtrParam(q.Get("min_year"))
    f.MaxYear = intPtrParam(q.Get("max_year"))
    f.BBox = bboxParam(q.Get("bbox"))
    return f
}

// bboxParam parses "minLng,minLat,maxLng,maxLat"; malformed input is
// ignored rather than rejected.
func bboxParam(raw string) *models.BBox {
    if raw == "" {
        return nil
    }
    parts := strings.Split(raw, ",")
    if len(parts) != 4 {
        return nil
    }
    vals := make([]float64, 4)
    for i, p := range parts {
        v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
        if err != nil {
            return nil
        }
        vals[i] = v
    }
    return &models.BBox{MinLng: vals[0], MinLat: vals[1], MaxLng: vals[2], MaxLat: vals[3]}
}

func intParam(raw string, defaultVal int) int {
    if raw == "" {
        return defaultVal
    }
    if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
        return v
    }
    return defaultVal
}

func intPtrParam(raw string) *int {
    if raw == "" {
        return nil
    }
    if v, err := strconv.Atoi(raw); err == nil {
        return &v
    }
    return nil
}

func floatParam(raw string) *float64 {
    if raw == "" {
        return nil
    }
    if v, err := strconv.ParseFloat(raw, 64); err == nil {
        return &v
    }
    return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(status)
    json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, status int, message string) {
    writeJSON(w, status, map[string]string{"error": message})
}

// corsMiddleware applies the configured allowed origins to every response.
func corsMiddleware(origins []string) mux.MiddlewareFunc {
    allowAll := len(origins) == 0
    allowed := make(map[string]struct{}, len(origins))
    for _, o := range origins {
        if o == "*" {
            allowAll = true
        }
        allowed[o] = struct{}{}
    }

    return func(next http.Handler) http.Handler {
        return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
            origin := r.Header.Get("Origin")
            switch {
            case allowAll:
                w.Header().Set("Access-Control-Allow-Origin", "*")
            case origin != "":
                if _, ok := allowed[origin]; ok {
                    w.Header().Set("Access-Control-Allow-Origin", origin)
                }
            }
            w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
            w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

            if r.Method == http.MethodOptions {
                w.WriteHeader(http.StatusNoContent)
                return
            }
            next.ServeHTTP(w, r)
        })
    }
}
