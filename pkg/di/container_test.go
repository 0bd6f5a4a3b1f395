package di

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-report-cache/internal/config"
	"github.com/goliatone/go-report-cache/internal/store"
	"github.com/goliatone/go-report-cache/pkg/testsupport"
)

var testNow = time.Date(2024, 4, 15, 9, 30, 0, 0, time.UTC)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	cfg.Database = store.MemoryConfig("di_" + name)
	cfg.Server.RateLimit = 0
	return cfg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestContainer(t *testing.T, cfg config.Config) *Container {
	t.Helper()
	container, err := NewContainer(context.Background(), cfg, WithLogger(quietLogger()), WithClock(func() time.Time { return testNow }))
	if err != nil {
		t.Fatalf("NewContainer() failed: %v", err)
	}
	t.Cleanup(func() { container.Close() })
	return container
}

func TestNewContainer(t *testing.T) {
	container := newTestContainer(t, testConfig(t))

	if container.Store() == nil {
		t.Fatal("Container should have an open store")
	}
	if container.CacheService() == nil {
		t.Error("Container should have a non-nil cache service")
	}
	if container.KeySerializer() == nil {
		t.Error("Container should have a non-nil key serializer")
	}
	if container.Server() == nil || container.Server().Handler() == nil {
		t.Error("Container should build the HTTP server")
	}
	if got := container.Strategist().Now(); !got.Equal(testNow) {
		t.Errorf("Expected strategist clock %v, got %v", testNow, got)
	}

	names := []string{}
	for _, ds := range container.Datasets().Datasets() {
		names = append(names, ds.Name)
	}
	if strings.Join(names, ",") != "daily-sales,purchase-orders,store-visits" {
		t.Errorf("Unexpected default datasets %v", names)
	}
	if n := len(container.Reports().Reports().List()); n != 5 {
		t.Errorf("Expected 5 default reports, got %d", n)
	}
}

func TestNewContainer_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Strategy.Recent = cfg.Strategy.Live

	if _, err := NewContainer(context.Background(), cfg, WithLogger(quietLogger())); err == nil {
		t.Error("NewContainer() should fail with invalid config")
	}
}

func TestNewContainer_BadDatasetsFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.DatasetsFile = filepath.Join(t.TempDir(), "missing.yaml")

	if _, err := NewContainer(context.Background(), cfg, WithLogger(quietLogger())); err == nil {
		t.Error("NewContainer() should fail when the datasets file is missing")
	}
}

func TestNewContainer_DefinitionFiles(t *testing.T) {
	datasets := testsupport.TempFile(t, "datasets.yaml", `
datasets:
  - name: visits
    tables: [visits]
    date_column: day
    actor_column: user_code
    columns:
      day: {candidates: [visit_day]}
      user_code: {candidates: [user_code]}
`)
	reportsFile := testsupport.TempFile(t, "reports.yaml", `
reports:
  - name: visits-per-day
    dataset: visits
    sql: "SELECT {{col \"day\"}} AS day, COUNT(*) AS visits FROM {{.Table}} {{.Where}} GROUP BY 1 LIMIT {{.Limit}}"
`)

	cfg := testConfig(t)
	cfg.DatasetsFile = datasets
	cfg.ReportsFile = reportsFile
	container := newTestContainer(t, cfg)

	if _, ok := container.Datasets().Dataset("visits"); !ok {
		t.Error("Expected dataset from file")
	}
	if _, ok := container.Datasets().Dataset("daily-sales"); ok {
		t.Error("A datasets file replaces the built-in definitions")
	}
	if _, ok := container.Reports().Reports().Get("visits-per-day"); !ok {
		t.Error("Expected report from file")
	}
}

func TestContainerSingletonBehavior(t *testing.T) {
	container := newTestContainer(t, testConfig(t))

	if container.CacheService() != container.CacheService() {
		t.Error("CacheService() should return the same instance")
	}
	if container.Executor() != container.Executor() {
		t.Error("Executor() should return the same instance")
	}
	if container.Resolver() != container.Resolver() {
		t.Error("Resolver() should return the same instance")
	}
}

func TestWithStore_NotClosedByContainer(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	st, err := store.Open(ctx, cfg.Database, quietLogger())
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	defer st.Close()

	container, err := NewContainer(ctx, cfg, WithStore(st), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewContainer() failed: %v", err)
	}
	if container.Store() != st {
		t.Error("Container should use the injected store")
	}
	if err := container.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if err := st.Ping(ctx); err != nil {
		t.Errorf("Injected store should stay open, got %v", err)
	}
}

func TestEndToEndReportFlow(t *testing.T) {
	container := newTestContainer(t, testConfig(t))
	ctx := context.Background()
	st := container.Store()

	if err := st.CreateDirectory(ctx); err != nil {
		t.Fatalf("CreateDirectory() failed: %v", err)
	}
	if err := st.SaveActors(ctx, &store.Actor{Code: "U1", Name: "Lead"}, &store.Actor{Code: "U2", Name: "Rep", ParentCode: "U1"}); err != nil {
		t.Fatalf("SaveActors() failed: %v", err)
	}
	if err := st.Exec(ctx, `CREATE TABLE flat_transactions (trx_date TEXT, trx_type INTEGER, trx_code TEXT, user_code TEXT, trx_totalamount REAL)`); err != nil {
		t.Fatalf("create table failed: %v", err)
	}
	if err := st.Exec(ctx, `INSERT INTO flat_transactions VALUES (?1, 1, 'T1', 'U2', 12.5), (?2, 1, 'T2', 'U9', 99)`, "2024-04-10", "2024-04-11"); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	handler := container.Server().Handler()
	get := func() map[string]any {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/reports/sales-by-user?range=thisMonth&actorCode=U1", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var body map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		return body
	}

	first := get()
	rows := first["data"].(map[string]any)["rows"].([]any)
	if len(rows) != 1 || rows[0].(map[string]any)["user_code"] != "U2" {
		t.Fatalf("Expected only U2's row, got %v", rows)
	}
	if first["cached"] != false {
		t.Error("First call should not be cached")
	}
	if second := get(); second["cached"] != true {
		t.Error("Second call should be served from cache")
	}

	evicted, err := container.Invalidate(ctx, "dataset:daily-sales")
	if err != nil {
		t.Fatalf("Invalidate() failed: %v", err)
	}
	if evicted < 1 {
		t.Errorf("Expected at least one evicted entry, got %d", evicted)
	}
	if third := get(); third["cached"] != false {
		t.Error("Call after invalidation should recompute")
	}
}
