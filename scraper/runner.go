// scraper/runner.go
package scraper

import (
    "context"
    "errors"
    "fmt"
    "log"
    "strings"
    "sync"

    "optihome/database"
    "optihome/models"
)

// Property kinds the source site lists.
const (
    KindFlat  = "flat"
    KindHouse = "house"
)

// ErrRunInProgress is returned when a scrape is triggered for a kind that
// already has a run active.
var ErrRunInProgress = errors.New("scrape already running for this kind")

// PageFetcher supplies raw HTML to the parsers.
type PageFetcher interface {
    Fetch(ctx context.Context, url string) (string, error)
}

// Runner drives a scrape run: fetch and parse each result page, reconcile
// every item into the catalog with one commit per page, then soft-delete
// catalog rows of the kind that this run did not see. The soft-delete only
// fires when every page was fetched. Page and item failures are logged and
// skipped; anything else is fatal, moves the run state to error and
// propagates.
type Runner struct {
    store      database.Store
    fetcher    PageFetcher
    reconciler *Reconciler
    state      *RunState
    baseURL    string
    kindMu     map[string]*sync.Mutex
}

func NewRunner(store database.Store, fetcher PageFetcher, reconciler *Reconciler, state *RunState, baseURL string) *Runner {
    return &Runner{
        store:      store,
        fetcher:    fetcher,
        reconciler: reconciler,
        state:      state,
        baseURL:    baseURL,
        kindMu: map[string]*sync.Mutex{
            KindFlat:  {},
            KindHouse: {},
        },
    }
}

// State exposes the run state for polling consumers.
func (r *Runner) State() *RunState {
    return r.state
}

// Run executes one scrape for the kind across the given number of pages
// and returns the count of items inserted or updated. At most one run per
// kind at a time; overlapping triggers get ErrRunInProgress.
func (r *Runner) Run(ctx context.Context, kind string, pages int) (int, error) {
    mu, ok := r.kindMu[kind]
    if !ok {
        return 0, fmt.Errorf("unknown property kind %q", kind)
    }
    if !mu.TryLock() {
        return 0, ErrRunInProgress
    }
    defer mu.Unlock()

    r.state.Start(kind, pages)
    r.state.Log("info", fmt.Sprintf("starting %s scrape over %d pages", kind, pages))
    log.Printf("scraper: starting %s scrape over %d pages", kind, pages)

    count, err := r.run(ctx, kind, pages)
    if err != nil {
        r.state.Log("error", err.Error())
        r.state.Fail(err.Error())
        return count, err
    }

    r.state.Log("info", fmt.Sprintf("%s scrape finished, %d items processed", kind, count))
    r.state.Complete()
    return count, nil
}

func (r *Runner) run(ctx context.Context, kind string, pages int) (int, error) {
    seen := make(map[string]struct{})
    count := 0
    pagesFailed := 0

    for page := 1; page <= pages; page++ {
        r.state.SetPage(page)

        listURL := BuildListURL(r.baseURL, kind, page)
        html, err := r.fetcher.Fetch(ctx, listURL)
        if err != nil {
            log.Printf("scraper: page %d fetch failed: %v", page, err)
            r.state.Log("warn", fmt.Sprintf("page %d fetch failed: %v", page, err))
            pagesFailed++
            continue
        }

        items := ParseListings(html)
        r.state.AddItems(len(items))

        tx, err := r.store.Begin(ctx)
        if err != nil {
            return count, fmt.Errorf("begin page %d transaction: %w", page, err)
        }

        pageCount, err := r.processPage(ctx, tx, items, kind, seen)
        count += pageCount
        if err != nil {
            tx.Rollback()
            return count, err
        }
        if err := tx.Commit(); err != nil {
            return count, fmt.Errorf("commit page %d: %w", page, err)
        }
    }

    // The seen set is only trustworthy when every page was scanned; a
    // skipped page's listings would otherwise be delisted while still live.
    if pagesFailed > 0 {
        log.Printf("scraper: %d of %d pages failed, skipping delisting of unseen %s properties", pagesFailed, pages, kind)
        r.state.Log("warn", fmt.Sprintf("%d of %d pages failed, skipping delisting of unseen properties", pagesFailed, pages))
        return count, nil
    }

    // Everything this run did not see has been delisted at the source.
    tx, err := r.store.Begin(ctx)
    if err != nil {
        return count, fmt.Errorf("begin deactivation transaction: %w", err)
    }
    deactivated, err := tx.DeactivateMissing(ctx, kind, setToSlice(seen))
    if err != nil {
        tx.Rollback()
        return count, fmt.Errorf("deactivate missing %s rows: %w", kind, err)
    }
    if err := tx.Commit(); err != nil {
        return count, fmt.Errorf("commit deactivation: %w", err)
    }
    if deactivated > 0 {
        r.state.Log("info", fmt.Sprintf("deactivated %d delisted %s properties", deactivated, kind))
        log.Printf("scraper: deactivated %d delisted %s properties", deactivated, kind)
    }

    return count, nil
}

func (r *Runner) processPage(ctx context.Context, tx database.Tx, items []models.RawListing, kind string, seen map[string]struct{}) (int, error) {
    count := 0
    for _, item := range items {
        if item.ExternalID == "" {
            continue
        }

        year, detailTitle := r.fetchDetail(ctx, item.URL)
        if item.Title == "" && detailTitle != "" {
            item.Title = detailTitle
        }

        if err := r.reconciler.Upsert(ctx, tx, item, kind, year); err != nil {
            return count, fmt.Errorf("upsert %s: %w", item.ExternalID, err)
        }
        seen[item.ExternalID] = struct{}{}
        count++
        r.state.ItemProcessed()
    }
    return count, nil
}

// fetchDetail grabs the item's detail page for the construction year and a
// fallback title. Best effort: failures are logged and the item proceeds
// with list-page data only.
func (r *Runner) fetchDetail(ctx context.Context, url string) (*int, string) {
    if url == "" {
        return nil, ""
    }
    html, err := r.fetcher.Fetch(ctx, url)
    if err != nil {
        r.state.Log("warn", fmt.Sprintf("detail fetch failed for %s: %v", url, err))
        return nil, ""
    }
    return ParseDetailYear(html), ParseDetailTitle(html)
}

// BuildListURL reproduces the source site's pagination convention: flats
// and houses live under different paths, page 1 omits the page parameter
// (the site redirects ?page=1 to the bare URL), pages >= 2 append it.
func BuildListURL(baseURL, kind string, page int) string {
    path := "vysledky/byty"
    if kind == KindHouse {
        path = "vysledky/domy"
    }
    u := fmt.Sprintf("%s/%s", strings.TrimRight(baseURL, "/"), path)
    if page > 1 {
        u = fmt.Sprintf("%s?page=%d", u, page)
    }
    return u
}

func setToSlice(set map[string]struct{}) []string {
    out := make([]string, 0, len(set))
    for k := range set {
        out = append(out, k)
    }
    return out
}
