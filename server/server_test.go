// server/server_test.go
package server

import (
    "context"
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/mock"
    "github.com/stretchr/testify/require"

    "optihome/config"
    "optihome/database"
    "optihome/models"
    "optihome/scraper"
)

type mockStore struct {
    mock.Mock
}

func (m *mockStore) Begin(ctx context.Context) (database.Tx, error) {
    args := m.Called(ctx)
    if tx := args.Get(0); tx != nil {
        return tx.(database.Tx), args.Error(1)
    }
    return nil, args.Error(1)
}

func (m *mockStore) ListProperties(ctx context.Context, f models.PropertyFilter) ([]models.Property, int, error) {
    args := m.Called(ctx, f)
    props, _ := args.Get(0).([]models.Property)
    return props, args.Int(1), args.Error(2)
}

func (m *mockStore) GetGeocode(ctx context.Context, query string) (float64, float64, error) {
    args := m.Called(ctx, query)
    return args.Get(0).(float64), args.Get(1).(float64), args.Error(2)
}

func (m *mockStore) SaveGeocode(ctx context.Context, query string, lat, lng float64) error {
    return m.Called(ctx, query, lat, lng).Error(0)
}

func (m *mockStore) Close() error {
    return m.Called().Error(0)
}

type mockTx struct {
    mock.Mock
}

func (m *mockTx) GetPropertyByExternalID(ctx context.Context, externalID string) (*models.Property, error) {
    args := m.Called(ctx, externalID)
    if p := args.Get(0); p != nil {
        return p.(*models.Property), args.Error(1)
    }
    return nil, args.Error(1)
}

func (m *mockTx) InsertProperty(ctx context.Context, p *models.Property) error {
    return m.Called(ctx, p).Error(0)
}

func (m *mockTx) UpdateProperty(ctx context.Context, p *models.Property) error {
    return m.Called(ctx, p).Error(0)
}

func (m *mockTx) DeactivateMissing(ctx context.Context, kind string, seen []string) (int64, error) {
    args := m.Called(ctx, kind, seen)
    return args.Get(0).(int64), args.Error(1)
}

func (m *mockTx) Commit() error {
    return m.Called().Error(0)
}

func (m *mockTx) Rollback() error {
    return m.Called().Error(0)
}

// blockingFetcher parks every Fetch until released, to hold a scrape run
// open during a test.
type blockingFetcher struct {
    entered chan struct{}
    release chan struct{}
}

func (f *blockingFetcher) Fetch(ctx context.Context, url string) (string, error) {
    f.entered <- struct{}{}
    <-f.release
    return "<html></html>", nil
}

type staticFetcher struct {
    body string
}

func (f *staticFetcher) Fetch(ctx context.Context, url string) (string, error) {
    return f.body, nil
}

func intPtr(v int) *int {
    return &v
}

func newTestServer(store database.Store, fetcher scraper.PageFetcher) *Server {
    base := "https://www.nehnutelnosti.sk"
    reconciler := scraper.NewReconciler(base, nil)
    runner := scraper.NewRunner(store, fetcher, reconciler, scraper.NewRunState(), base)
    return NewServer(config.ServerConfig{Port: 0, CORSOrigins: []string{"*"}}, store, runner)
}

func doRequest(t *testing.T, s *Server, method, target string) *httptest.ResponseRecorder {
    t.Helper()
    req := httptest.NewRequest(method, target, nil)
    rec := httptest.NewRecorder()
    s.Handler().ServeHTTP(rec, req)
    return rec
}

func TestHealth(t *testing.T) {
    s := newTestServer(new(mockStore), &staticFetcher{})
    rec := doRequest(t, s, http.MethodGet, "/health")
    require.Equal(t, http.StatusOK, rec.Code)

    var body map[string]string
    require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
    assert.Equal(t, "healthy", body["status"])
}

func TestListPropertiesPassesFilter(t *testing.T) {
    store := new(mockStore)
    store.On("ListProperties", mock.Anything, mock.MatchedBy(func(f models.PropertyFilter) bool {
        return f.Type == "flat" &&
            f.MinPrice != nil && *f.MinPrice == 50000 &&
            f.MaxRooms != nil && *f.MaxRooms == 3 &&
            f.BBox != nil && f.BBox.MinLng == 16.9 && f.BBox.MaxLat == 48.3 &&
            f.Offset == 10 && f.Limit == 20
    })).Return([]models.Property{{ID: 1}}, 57, nil)

    s := newTestServer(store, &staticFetcher{})
    rec := doRequest(t, s, http.MethodGet,
        "/properties?type=flat&min_price=50000&max_rooms=3&bbox=16.9,48.0,17.3,48.3&offset=10&limit=20")
    require.Equal(t, http.StatusOK, rec.Code)

    var body propertiesResponse
    require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
    assert.Len(t, body.Items, 1)
    assert.Equal(t, 57, body.Total)
    store.AssertExpectations(t)
}

func TestListPropertiesOnlyPareto(t *testing.T) {
    props := []models.Property{
        {ID: 1, PriceEUR: 100000, PricePerM2: 2000, Rooms: 2, YearBuilt: intPtr(1990)},
        {ID: 2, PriceEUR: 90000, PricePerM2: 1800, Rooms: 3, YearBuilt: intPtr(2000)},
    }
    store := new(mockStore)
    // Pagination is cleared for frontier queries.
    store.On("ListProperties", mock.Anything, mock.MatchedBy(func(f models.PropertyFilter) bool {
        return f.Offset == 0 && f.Limit == 0
    })).Return(props, 2, nil)

    s := newTestServer(store, &staticFetcher{})
    rec := doRequest(t, s, http.MethodGet, "/properties?onlyPareto=true&limit=20")
    require.Equal(t, http.StatusOK, rec.Code)

    var body propertiesResponse
    require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
    require.Len(t, body.Items, 1)
    assert.Equal(t, int64(2), body.Items[0].ID)
    assert.Equal(t, 1, body.Total)
}

func TestParetoEndpoint(t *testing.T) {
    props := []models.Property{
        {ID: 1, PriceEUR: 80000, PricePerM2: 1600, Rooms: 1, YearBuilt: intPtr(1980)},
        {ID: 2, PriceEUR: 200000, PricePerM2: 2500, Rooms: 4, YearBuilt: intPtr(2015)},
        {ID: 3, PriceEUR: 250000, PricePerM2: 3000, Rooms: 1, YearBuilt: intPtr(1970)},
    }
    store := new(mockStore)
    store.On("ListProperties", mock.Anything, mock.Anything).Return(props, 3, nil)

    s := newTestServer(store, &staticFetcher{})
    rec := doRequest(t, s, http.MethodGet, "/properties/pareto")
    require.Equal(t, http.StatusOK, rec.Code)

    var body paretoResponse
    require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
    require.Len(t, body.Items, 2)
    ids := []int64{body.Items[0].ID, body.Items[1].ID}
    assert.ElementsMatch(t, []int64{1, 2}, ids)
}

func TestScrapeRunValidation(t *testing.T) {
    s := newTestServer(new(mockStore), &staticFetcher{})

    rec := doRequest(t, s, http.MethodPost, "/scrape/run?kind=castle")
    assert.Equal(t, http.StatusBadRequest, rec.Code)

    rec = doRequest(t, s, http.MethodPost, "/scrape/run?kind=flat&pages=abc")
    assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScrapeRunSuccess(t *testing.T) {
    pageTx := new(mockTx)
    pageTx.On("Commit").Return(nil)
    deactTx := new(mockTx)
    deactTx.On("DeactivateMissing", mock.Anything, "flat", mock.Anything).Return(int64(0), nil)
    deactTx.On("Commit").Return(nil)

    store := new(mockStore)
    store.On("Begin", mock.Anything).Return(pageTx, nil).Once()
    store.On("Begin", mock.Anything).Return(deactTx, nil).Once()

    s := newTestServer(store, &staticFetcher{body: "<html><body></body></html>"})
    rec := doRequest(t, s, http.MethodPost, "/scrape/run?kind=flat&pages=1")
    require.Equal(t, http.StatusOK, rec.Code)

    var body map[string]interface{}
    require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
    assert.Equal(t, "ok", body["status"])
    assert.Equal(t, float64(0), body["inserted_or_updated"])
    store.AssertExpectations(t)
}

func TestScrapeRunConflict(t *testing.T) {
    fetcher := &blockingFetcher{
        entered: make(chan struct{}),
        release: make(chan struct{}),
    }
    pageTx := new(mockTx)
    pageTx.On("Commit").Return(nil)
    deactTx := new(mockTx)
    deactTx.On("DeactivateMissing", mock.Anything, "flat", mock.Anything).Return(int64(0), nil)
    deactTx.On("Commit").Return(nil)

    store := new(mockStore)
    store.On("Begin", mock.Anything).Return(pageTx, nil).Once()
    store.On("Begin", mock.Anything).Return(deactTx, nil).Once()

    s := newTestServer(store, fetcher)

    done := make(chan *httptest.ResponseRecorder)
    go func() {
        done <- doRequest(t, s, http.MethodPost, "/scrape/run?kind=flat&pages=1")
    }()

    // Wait for the first run to be inside its page fetch, then trigger a
    // second run for the same kind.
    <-fetcher.entered
    rec := doRequest(t, s, http.MethodPost, "/scrape/run?kind=flat&pages=1")
    assert.Equal(t, http.StatusConflict, rec.Code)

    close(fetcher.release)
    first := <-done
    assert.Equal(t, http.StatusOK, first.Code)
}

// ctxRecordingFetcher fails when it observes a cancelled context, so a
// request-scoped cancellation leaking into the run shows up as an error.
type ctxRecordingFetcher struct {
    sawCancelled bool
}

func (f *ctxRecordingFetcher) Fetch(ctx context.Context, url string) (string, error) {
    if ctx.Err() != nil {
        f.sawCancelled = true
        return "", ctx.Err()
    }
    return "<html><body></body></html>", nil
}

func TestScrapeRunSurvivesClientDisconnect(t *testing.T) {
    pageTx := new(mockTx)
    pageTx.On("Commit").Return(nil)
    deactTx := new(mockTx)
    deactTx.On("DeactivateMissing", mock.Anything, "flat", mock.Anything).Return(int64(0), nil)
    deactTx.On("Commit").Return(nil)

    store := new(mockStore)
    store.On("Begin", mock.Anything).Return(pageTx, nil).Once()
    store.On("Begin", mock.Anything).Return(deactTx, nil).Once()

    fetcher := &ctxRecordingFetcher{}
    s := newTestServer(store, fetcher)

    // The request context is already cancelled, as after a client
    // disconnect; the run must proceed regardless.
    ctx, cancel := context.WithCancel(context.Background())
    cancel()
    req := httptest.NewRequest(http.MethodPost, "/scrape/run?kind=flat&pages=1", nil).WithContext(ctx)
    rec := httptest.NewRecorder()
    s.Handler().ServeHTTP(rec, req)

    require.Equal(t, http.StatusOK, rec.Code)
    assert.False(t, fetcher.sawCancelled)
    store.AssertExpectations(t)
}

func TestScrapeStatus(t *testing.T) {
    s := newTestServer(new(mockStore), &staticFetcher{})
    rec := doRequest(t, s, http.MethodGet, "/scrape/status")
    require.Equal(t, http.StatusOK, rec.Code)

    var body models.RunSnapshot
    require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
    assert.Equal(t, "idle", body.Status)
}

func TestCORSHeaders(t *testing.T) {
    s := newTestServer(new(mockStore), &staticFetcher{})
    rec := doRequest(t, s, http.MethodGet, "/health")
    assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
