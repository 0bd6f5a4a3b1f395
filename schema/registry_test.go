package schema

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-report-cache/pkg/testsupport"
	"github.com/goliatone/go-report-cache/sqlbuild"
)

func salesDataset() Dataset {
	return Dataset{
		Name:   "sales",
		Tables: []string{"flat_sales_v2", "flat_sales"},
		Columns: map[string]ColumnSpec{
			"date":   {Candidates: []string{"trx_date"}},
			"user":   {Candidates: []string{"trx_usercode", "user_code"}},
			"region": {Candidates: []string{"region_code"}, Fallback: "NULL::text"},
			"amount": {Candidates: []string{"total"}, Fallback: "0"},
		},
		DateColumn:  "date",
		ActorColumn: "user",
		BasePredicates: []Predicate{
			{Column: "user", Op: sqlbuild.OpNotLike, Value: "%DEMO%", Upper: true},
			{Column: "region", Op: sqlbuild.OpNotNull},
		},
		Dimensions: []Dimension{{Key: "users", Param: "userCode", Column: "user"}},
	}
}

func newRegistry(t *testing.T, catalog Catalog) *Registry {
	t.Helper()
	reg, err := NewRegistry(catalog, sqlbuild.Postgres{}, []Dataset{salesDataset()})
	require.NoError(t, err)
	return reg
}

func TestResolve_FirstCandidateTableWins(t *testing.T) {
	catalog := testsupport.NewFakeCatalog(map[string][]string{
		"flat_sales":    {"trx_date", "user_code"},
		"flat_sales_v2": {"trx_date", "trx_usercode", "user_code", "total"},
	})
	reg := newRegistry(t, catalog)

	res, err := reg.Resolve(context.Background(), "sales")
	require.NoError(t, err)

	assert.Equal(t, "flat_sales_v2", res.Table)
	assert.Equal(t, `"flat_sales_v2"`, res.TableExpr)
	assert.Equal(t, `COALESCE("trx_usercode", "user_code")`, res.Expr("user"))
	assert.Equal(t, `"total"`, res.Expr("amount"))
	assert.Equal(t, "NULL::text", res.Expr("region"))
	assert.Equal(t, "NULL", res.Expr("not_defined"))
	assert.True(t, res.Has("user"))
	assert.False(t, res.Has("region"))
	assert.Equal(t, []string{"region"}, res.Missing())
}

func TestResolve_FallsBackToLaterTable(t *testing.T) {
	catalog := testsupport.NewFakeCatalog(map[string][]string{
		"flat_sales": {"TRX_DATE", "user_code"},
	})
	reg := newRegistry(t, catalog)

	res, err := reg.Resolve(context.Background(), "sales")
	require.NoError(t, err)
	assert.Equal(t, "flat_sales", res.Table)
	assert.Equal(t, `"TRX_DATE"`, res.Expr("date"))
	assert.Equal(t, `"user_code"`, res.Expr("user"))
	assert.Equal(t, "0", res.Expr("amount"))
}

func TestResolve_Memoized(t *testing.T) {
	catalog := testsupport.NewFakeCatalog(map[string][]string{"flat_sales_v2": {"trx_date"}})
	reg := newRegistry(t, catalog)
	ctx := context.Background()

	first, err := reg.Resolve(ctx, "sales")
	require.NoError(t, err)
	probes := catalog.TableProbes()

	second, err := reg.Resolve(ctx, "sales")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, probes, catalog.TableProbes(), "second resolve must not probe")

	reg.Invalidate("sales")
	_, err = reg.Resolve(ctx, "sales")
	require.NoError(t, err)
	assert.Greater(t, catalog.TableProbes(), probes)
}

func TestResolve_ConcurrentFirstUseProbesOnce(t *testing.T) {
	catalog := testsupport.NewFakeCatalog(map[string][]string{"flat_sales_v2": {"trx_date"}})
	catalog.Delay = 20 * time.Millisecond
	reg := newRegistry(t, catalog)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := reg.Resolve(context.Background(), "sales")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, catalog.TableProbes())
	assert.Equal(t, 1, catalog.ColumnCalls())
}

func TestResolve_SchemaUnavailableIsMemoized(t *testing.T) {
	catalog := testsupport.NewFakeCatalog(nil)
	reg := newRegistry(t, catalog)
	ctx := context.Background()

	_, err := reg.Resolve(ctx, "sales")
	require.ErrorIs(t, err, ErrSchemaUnavailable)
	probes := catalog.TableProbes()

	// the table appearing later needs an explicit invalidation
	catalog.AddTable("flat_sales", "trx_date")
	_, err = reg.Resolve(ctx, "sales")
	require.ErrorIs(t, err, ErrSchemaUnavailable)
	assert.Equal(t, probes, catalog.TableProbes())

	reg.InvalidateAll()
	res, err := reg.Resolve(ctx, "sales")
	require.NoError(t, err)
	assert.Equal(t, "flat_sales", res.Table)
}

func TestResolve_CatalogErrorsAreNotMemoized(t *testing.T) {
	catalog := testsupport.NewFakeCatalog(map[string][]string{"flat_sales": {"trx_date"}})
	catalog.Err = errors.New("connection reset")
	reg := newRegistry(t, catalog)
	ctx := context.Background()

	_, err := reg.Resolve(ctx, "sales")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSchemaUnavailable)

	catalog.Err = nil
	_, err = reg.Resolve(ctx, "sales")
	require.NoError(t, err)
}

func TestResolve_UnknownDataset(t *testing.T) {
	reg := newRegistry(t, testsupport.NewFakeCatalog(nil))
	_, err := reg.Resolve(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownDataset)
}

func TestResolved_ApplyBase(t *testing.T) {
	catalog := testsupport.NewFakeCatalog(map[string][]string{"flat_sales": {"trx_date", "user_code"}})
	reg := newRegistry(t, catalog)

	res, err := reg.Resolve(context.Background(), "sales")
	require.NoError(t, err)

	b := sqlbuild.New(sqlbuild.Postgres{})
	require.NoError(t, res.ApplyBase(b))

	// region is missing from flat_sales, so its predicate is skipped
	assert.Equal(t, `UPPER("user_code") NOT LIKE $1`, b.Conditions())
	assert.Equal(t, []any{"%DEMO%"}, b.Args())
}

func TestNewRegistry_RejectsInvalidDefinitions(t *testing.T) {
	catalog := testsupport.NewFakeCatalog(nil)

	bad := salesDataset()
	bad.Tables = []string{"flat_sales; DROP TABLE x"}
	_, err := NewRegistry(catalog, sqlbuild.Postgres{}, []Dataset{bad})
	assert.Error(t, err)

	badFallback := salesDataset()
	badFallback.Columns["amount"] = ColumnSpec{Candidates: []string{"total"}, Fallback: "(SELECT 1)"}
	_, err = NewRegistry(catalog, sqlbuild.Postgres{}, []Dataset{badFallback})
	assert.Error(t, err)

	missingRef := salesDataset()
	missingRef.ActorColumn = "nobody"
	_, err = NewRegistry(catalog, sqlbuild.Postgres{}, []Dataset{missingRef})
	assert.Error(t, err)

	_, err = NewRegistry(catalog, sqlbuild.Postgres{}, []Dataset{salesDataset(), salesDataset()})
	assert.Error(t, err)
}

func TestDefaultDatasets_AreValid(t *testing.T) {
	reg, err := NewRegistry(testsupport.NewFakeCatalog(nil), sqlbuild.SQLite{}, DefaultDatasets())
	require.NoError(t, err)

	names := make([]string, 0)
	for _, ds := range reg.Datasets() {
		names = append(names, ds.Name)
	}
	assert.Equal(t, []string{"daily-sales", "purchase-orders", "store-visits"}, names)

	ds, ok := reg.Dataset("daily-sales")
	require.True(t, ok)
	dim, ok := ds.Dimension("subAreas")
	require.True(t, ok)
	assert.Equal(t, []string{"cityCode"}, dim.Aliases)
	assert.Equal(t, "sub_area_code", dim.Label())
}

func TestLoadDatasets(t *testing.T) {
	datasets, err := LoadDatasets(testsupport.FixturePath("datasets.yaml"))
	require.NoError(t, err)
	require.Len(t, datasets, 1)

	ds := datasets[0]
	assert.Equal(t, "competition", ds.Name)
	assert.Equal(t, "0", ds.Columns["price"].Fallback)
	require.Len(t, ds.BasePredicates, 1)
	assert.Equal(t, sqlbuild.OpNotLike, ds.BasePredicates[0].Op)
	assert.True(t, ds.BasePredicates[0].Upper)

	_, err = ParseDatasets([]byte("datasets: []"))
	assert.Error(t, err)

	_, err = ParseDatasets([]byte(`datasets: [{name: x, tables: ["bad table"], date_column: d, columns: {d: {candidates: [d]}}}]`))
	assert.Error(t, err)

	raw := testsupport.LoadFixture(t, testsupport.FixturePath("datasets.yaml"))
	parsed, err := ParseDatasets(raw)
	require.NoError(t, err)
	assert.Equal(t, datasets, parsed)
}
