package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"findash/internal/backup"
	"findash/internal/cache"
	"findash/internal/core"
	"findash/internal/events"
	"findash/internal/query"
	"findash/internal/services"
	"findash/internal/settings"
	"findash/internal/stats"
	"findash/internal/storage"
)

// memorySink keeps blobs in a map keyed by name.
type memorySink struct {
	mu    sync.Mutex
	blobs map[string][]byte
	order []string
}

func (m *memorySink) Kind() string { return "memory" }

func (m *memorySink) List(ctx context.Context) ([]backup.BlobInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []backup.BlobInfo{}
	for i, name := range m.order {
		out = append(out, backup.BlobInfo{ID: name, Name: name, Timestamp: int64(i), Size: int64(len(m.blobs[name]))})
	}
	backup.SortNewestFirst(out)
	return out, nil
}

func (m *memorySink) Create(ctx context.Context, name string, payload []byte) (backup.CreateResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[name] = payload
	m.order = append(m.order, name)
	return backup.CreateResult{ID: name, Name: name}, nil
}

func (m *memorySink) Fetch(ctx context.Context, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[name]
	if !ok {
		return nil, backup.ErrBlobNotFound
	}
	return b, nil
}

func (m *memorySink) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, id)
	return nil
}

type testEnv struct {
	srv   *Server
	store *storage.Handle
	sink  *memorySink
}

func newTestEnv(t *testing.T, withSink bool) *testEnv {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	h, err := storage.Open(ctx, filepath.Join(dir, "finance.db"), storage.WithLocation(time.UTC))
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })

	lookups := cache.NewLookups(h)
	who := cache.NewWhoCache(h, time.Minute)
	userSettings := settings.NewStore(filepath.Join(dir, "user-settings.json"), nil)
	configs := backup.NewConfigStore(filepath.Join(dir, "backup-config.json"), "03:00", withSink, nil)

	var sink backup.Sink
	env := &testEnv{store: h}
	if withSink {
		env.sink = &memorySink{blobs: map[string][]byte{}}
		sink = env.sink
	}
	backups := backup.NewService(h, userSettings, configs, sink,
		backup.OnRestored(func(context.Context, backup.RestoreOutcome) {
			lookups.InvalidateAll()
			who.Invalidate()
		}))
	sched := backup.NewScheduler(backups, configs, time.UTC, nil)

	env.srv = NewServer(":0", Deps{
		Store:              h,
		Records:            services.NewRecordService(h, who, events.Noop{}, nil),
		Lookups:            services.NewLookupService(h, lookups, events.Noop{}, nil),
		Who:                who,
		Pager:              query.NewPager(h, time.UTC, nil),
		Stats:              stats.NewAggregator(h, time.UTC, nil),
		Settings:           userSettings,
		Backups:            backups,
		Scheduler:          sched,
		Configs:            configs,
		SinkAddress:        "memory://",
		RateLimitPerMinute: 2,
	})
	t.Cleanup(func() { env.srv.limiter.Stop() })
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, false)
	w := env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, w.Header().Get("Content-Type"))
}

func TestRecordCRUD(t *testing.T) {
	env := newTestEnv(t, false)

	w := env.do(t, http.MethodPost, "/api/expenses", map[string]any{
		"description": "Coffee", "categories": "Food", "amount": 3.5, "date": "2024-03-10", "who": "Ann",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	rec := decode[core.Record](t, w)
	assert.Equal(t, "Food", core.Deref(rec.Category), "categories is accepted as an alias")
	assert.Equal(t, "2024-03-10", core.Deref(rec.DateLocal))

	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/expenses/%d", rec.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/income/%d", rec.ID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPatch, fmt.Sprintf("/api/expenses/%d", rec.ID), map[string]any{"amount": 4})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 4.0, decode[core.Record](t, w).Amount)

	w = env.do(t, http.MethodGet, "/options/who", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"Ann"}, decode[map[string]any](t, w)["options"])

	w = env.do(t, http.MethodDelete, fmt.Sprintf("/api/expenses/%d", rec.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, http.MethodDelete, fmt.Sprintf("/api/expenses/%d", rec.ID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRecordErrors(t *testing.T) {
	env := newTestEnv(t, false)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"unknown type", http.MethodGet, "/api/transfers", nil, 400, core.CodeInvalidType},
		{"bad id", http.MethodGet, "/api/expenses/abc", nil, 400, core.CodeInvalidID},
		{"negative amount", http.MethodPost, "/api/expenses", map[string]any{"amount": -1}, 400, core.CodeInvalidAmount},
		{"bad date", http.MethodPost, "/api/expenses", map[string]any{"amount": 1, "date": "yesterday"}, 400, core.CodeInvalidDate},
		{"bad cursor", http.MethodGet, "/api/expenses?cursor=zzz", nil, 400, core.CodeInvalidCursor},
		{"missing", http.MethodPatch, "/api/expenses/999", map[string]any{"amount": 1}, 404, core.CodeNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.do(t, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.status, w.Code, w.Body.String())
			assert.Equal(t, tc.code, decode[errorBody](t, w).Code)
		})
	}
}

func TestListPaginates(t *testing.T) {
	env := newTestEnv(t, false)
	for i := 0; i < 5; i++ {
		w := env.do(t, http.MethodPost, "/api/income", map[string]any{"description": fmt.Sprintf("pay %d", i), "amount": i + 1, "date": "2024-03-01"})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	seen := map[int64]bool{}
	path := "/api/income?limit=2&sortKey=amount&sortDir=asc"
	for pages := 0; ; pages++ {
		require.Less(t, pages, 5)
		w := env.do(t, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		page := decode[query.Page](t, w)
		for _, r := range page.Results {
			assert.False(t, seen[r.ID])
			seen[r.ID] = true
		}
		if !page.HasMore {
			assert.Nil(t, page.NextCursor)
			break
		}
		path = "/api/income?limit=2&sortKey=amount&sortDir=asc&cursor=" + *page.NextCursor
	}
	assert.Len(t, seen, 5)

	w := env.do(t, http.MethodGet, "/api/income?all=1&limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[query.Page](t, w).Results, 5)
}

func TestListLimitBounds(t *testing.T) {
	env := newTestEnv(t, false)
	for i := 0; i < query.DefaultLimit+5; i++ {
		w := env.do(t, http.MethodPost, "/api/expenses", map[string]any{"amount": i + 1, "date": "2024-03-01"})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	tests := []struct {
		query string
		want  int
	}{
		{"", query.DefaultLimit},
		{"?limit=abc", query.DefaultLimit},
		{"?limit=0", 1},
		{"?limit=-4", 1},
		{"?limit=3", 3},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/api/expenses"+tt.query, nil)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			assert.Len(t, decode[query.Page](t, w).Results, tt.want)
		})
	}
}

func TestOptions(t *testing.T) {
	env := newTestEnv(t, false)

	w := env.do(t, http.MethodPost, "/options/categories", map[string]any{"name": "Boats"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode[map[string]any](t, w)["categories"], "Boats")

	w = env.do(t, http.MethodPost, "/options/categories", map[string]any{"name": "boats"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, core.CodeCategoryExists, decode[errorBody](t, w).Code)

	w = env.do(t, http.MethodPost, "/options/categories", map[string]any{"name": "  "})
	assert.Equal(t, core.CodeCategoryRequired, decode[errorBody](t, w).Code)

	w = env.do(t, http.MethodDelete, "/options/categories", map[string]any{"name": "Boats"})
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, http.MethodDelete, "/options/categories?name=Boats", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/options/currencies", map[string]any{"code": "gbp", "rate": 0.79})
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[currenciesResponse](t, w)
	assert.True(t, list.OK)
	assert.Equal(t, 0.79, list.Rates["GBP"])

	w = env.do(t, http.MethodPost, "/options/currencies/rates", map[string]any{"rates": map[string]float64{"GBP": -3}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, decode[currenciesResponse](t, w).Rates["GBP"], "invalid rates are stored as 1")

	w = env.do(t, http.MethodPost, "/options/currency-rates", map[string]any{})
	assert.Equal(t, core.CodeInvalidRate, decode[errorBody](t, w).Code)

	w = env.do(t, http.MethodGet, "/options/currencies", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode[currenciesResponse](t, w).Currencies, "USD")
}

func TestStats(t *testing.T) {
	env := newTestEnv(t, false)
	env.do(t, http.MethodPost, "/api/expenses", map[string]any{"category": "Food", "amount": 15, "date": "2024-03-02"})
	env.do(t, http.MethodPost, "/api/income", map[string]any{"amount": 100, "date": "2024-03-03"})

	w := env.do(t, http.MethodGet, "/stats/categories?period=custom&fromMonth=2024-03&toMonth=2024-03", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	breakdown := decode[core.CategoryBreakdown](t, w)
	assert.Equal(t, 15.0, breakdown.TotalUSD)
	require.Len(t, breakdown.Items, 1)
	assert.Equal(t, "Food", breakdown.Items[0].Category)

	w = env.do(t, http.MethodGet, "/stats/summary?period=all", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 85.0, decode[core.Summary](t, w).NetUSD)

	w = env.do(t, http.MethodGet, "/stats/summary?period=fortnight", nil)
	assert.Equal(t, core.CodeInvalidPeriod, decode[errorBody](t, w).Code)
}

func TestSettingsPerUser(t *testing.T) {
	env := newTestEnv(t, false)

	w := env.do(t, http.MethodGet, "/settings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, settings.ChartPie, decode[settings.Settings](t, w).ChartType)

	w = env.do(t, http.MethodPost, "/settings", map[string]any{"chartType": "bar", "language": "ru"}, "X-User", "ann")
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/settings", nil, "X-User", "ann")
	got := decode[settings.Settings](t, w)
	assert.Equal(t, settings.ChartBar, got.ChartType)
	assert.Equal(t, "ru", got.Language)

	w = env.do(t, http.MethodGet, "/settings", nil)
	assert.Equal(t, settings.ChartPie, decode[settings.Settings](t, w).ChartType, "default user is untouched")
}

func TestBackupWithoutSink(t *testing.T) {
	env := newTestEnv(t, false)

	w := env.do(t, http.MethodGet, "/backup/list", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"files": []any{}}, decode[map[string]any](t, w))

	w = env.do(t, http.MethodPost, "/backup/config", map[string]any{"autoEnabled": true})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, core.CodeBackupScriptMissing, decode[errorBody](t, w).Code)

	w = env.do(t, http.MethodPost, "/backup/run", nil)
	assert.Equal(t, core.CodeBackupScriptMissing, decode[errorBody](t, w).Code)
}

func TestBackupRunListRestore(t *testing.T) {
	env := newTestEnv(t, true)
	env.do(t, http.MethodPost, "/api/expenses", map[string]any{"amount": 10, "date": "2024-03-02"})

	w := env.do(t, http.MethodPost, "/backup/config", map[string]any{"autoEnabled": true, "runTime": "04:30"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = env.do(t, http.MethodGet, "/backup/config", nil)
	view := decode[backupConfigView](t, w)
	assert.True(t, view.AutoEnabled)
	assert.Equal(t, "04:30", view.RunTime)
	assert.Equal(t, "memory", view.Sink)
	assert.Equal(t, "memory://", view.ScriptURL)

	w = env.do(t, http.MethodPost, "/backup/run", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var run struct {
		OK   bool                 `json:"ok"`
		File backup.CreateOutcome `json:"file"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))
	assert.True(t, run.OK)

	env.do(t, http.MethodPost, "/api/expenses", map[string]any{"amount": 20, "date": "2024-03-03"})

	w = env.do(t, http.MethodGet, "/backup/list", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, "/backup/restore", map[string]any{"name": run.File.Name})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	n, err := env.store.CountRecords(context.Background(), core.Expenses)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	// Two guarded calls per minute are allowed; the third is throttled.
	w = env.do(t, http.MethodPost, "/backup/restore", map[string]any{"name": run.File.Name})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "rate_limited", decode[errorBody](t, w).Code)
}

func TestRestoreValidation(t *testing.T) {
	env := newTestEnv(t, true)

	w := env.do(t, http.MethodPost, "/backup/restore", map[string]any{"name": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, core.CodeBackupNameRequired, decode[errorBody](t, w).Code)

	w = env.do(t, http.MethodPost, "/backup/restore", map[string]any{"name": "backup-missing.json"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(core.KindValidation))
	assert.Equal(t, http.StatusBadRequest, statusFor(core.KindConfiguration))
	assert.Equal(t, http.StatusNotFound, statusFor(core.KindNotFound))
	assert.Equal(t, http.StatusConflict, statusFor(core.KindConflict))
	assert.Equal(t, http.StatusConflict, statusFor(core.KindBusy))
	assert.Equal(t, http.StatusBadGateway, statusFor(core.KindUpstream))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(core.KindIntegrity))
	assert.Equal(t, http.StatusInternalServerError, statusFor(core.KindInternal))
}

func TestInvalidJSONBody(t *testing.T) {
	env := newTestEnv(t, false)
	req := httptest.NewRequest(http.MethodPost, "/api/expenses", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	env.srv.Handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_body", decode[errorBody](t, w).Code)
}
