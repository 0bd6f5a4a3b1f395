package reports

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-report-cache/daterange"
	"github.com/goliatone/go-report-cache/hierarchy"
	"github.com/goliatone/go-report-cache/pkg/testsupport"
	"github.com/goliatone/go-report-cache/schema"
	"github.com/goliatone/go-report-cache/sqlbuild"
)

type captureQuerier struct {
	sql  string
	args []any
	rows []map[string]any
	err  error
}

func (c *captureQuerier) Query(ctx context.Context, sql string, args ...any) ([]map[string]any, error) {
	c.sql, c.args = sql, args
	return c.rows, c.err
}

func salesTables() map[string][]string {
	return map[string][]string{
		"flat_sales_transactions": {
			"trx_date", "trx_type", "trx_code", "user_code", "user_name",
			"customer_code", "customer_name", "route_areacode", "trx_totalamount",
		},
	}
}

func newRunner(t *testing.T, q *captureQuerier) *Runner {
	t.Helper()
	datasets, err := schema.NewRegistry(testsupport.NewFakeCatalog(salesTables()), sqlbuild.Postgres{}, schema.DefaultDatasets())
	require.NoError(t, err)
	reg, err := NewRegistry(DefaultDefinitions(), datasets)
	require.NoError(t, err)
	runner, err := NewRunner(reg, datasets, q, nil)
	require.NoError(t, err)
	return runner
}

func lastMonth(t *testing.T) daterange.Descriptor {
	t.Helper()
	d, err := daterange.Named(daterange.LastMonth, time.Date(2024, 4, 15, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return d
}

func TestRun_TopStores(t *testing.T) {
	q := &captureQuerier{rows: []map[string]any{{"store_code": "S1", "total_amount": 10.5}}}
	runner := newRunner(t, q)

	result, err := runner.Run(context.Background(), Request{
		Report:     "top-stores",
		Range:      lastMonth(t),
		Selections: map[string]string{"areas": "A1"},
		Allow:      hierarchy.Restricted("U1", "U2"),
		Limit:      5,
	})
	require.NoError(t, err)
	assert.Equal(t, "daily-sales", result.Dataset)
	assert.Len(t, result.Rows, 1)

	want := `SELECT "customer_code" AS store_code, MAX("customer_name") AS store_name, ` +
		`COUNT(DISTINCT "trx_code") AS transactions, SUM("trx_totalamount") AS total_amount ` +
		`FROM "flat_sales_transactions" ` +
		`WHERE "trx_type" = $1 AND UPPER("user_code") NOT LIKE $2 ` +
		`AND "trx_date" >= $3 AND "trx_date" < $4 AND "user_code" IN ($5, $6) AND "route_areacode" = $7 ` +
		`GROUP BY "customer_code" ORDER BY total_amount DESC, store_code LIMIT 5`
	assert.Equal(t, want, q.sql)
	assert.Equal(t, []any{
		1, "%DEMO%",
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		"U1", "U2", "A1",
	}, q.args)
}

func TestRun_UnrestrictedAddsNoActorPredicate(t *testing.T) {
	q := &captureQuerier{}
	runner := newRunner(t, q)

	result, err := runner.Run(context.Background(), Request{
		Report: "daily-sales-summary",
		Range:  lastMonth(t),
		Allow:  hierarchy.Unrestricted,
	})
	require.NoError(t, err)
	assert.NotNil(t, result.Rows)
	assert.NotContains(t, q.sql, " IN (")
	assert.Contains(t, q.sql, `GROUP BY CAST("trx_date" AS DATE)`)
	assert.True(t, strings.HasSuffix(q.sql, "LIMIT 400"))
}

func TestRun_Errors(t *testing.T) {
	boom := errors.New("connection reset by peer")
	runner := newRunner(t, &captureQuerier{err: boom})
	ctx := context.Background()

	_, err := runner.Run(ctx, Request{Report: "nope", Range: lastMonth(t)})
	assert.ErrorIs(t, err, ErrUnknownReport)

	_, err = runner.Run(ctx, Request{Report: "sales-by-user", Range: lastMonth(t), Allow: hierarchy.Unrestricted})
	assert.ErrorIs(t, err, boom)

	// no purchase order table exists in the catalog
	_, err = runner.Run(ctx, Request{Report: "purchase-order-status", Range: lastMonth(t), Allow: hierarchy.Unrestricted})
	assert.ErrorIs(t, err, schema.ErrSchemaUnavailable)
}

func TestNewRegistry_Validation(t *testing.T) {
	datasets, err := schema.NewRegistry(testsupport.NewFakeCatalog(nil), sqlbuild.SQLite{}, schema.DefaultDatasets())
	require.NoError(t, err)

	_, err = NewRegistry([]Definition{{Name: "x", Dataset: "unknown", SQL: "SELECT 1"}}, datasets)
	assert.ErrorIs(t, err, schema.ErrUnknownDataset)

	_, err = NewRegistry([]Definition{{Name: "x", Dataset: "daily-sales", SQL: "SELECT {{"}}, datasets)
	assert.Error(t, err)

	dup := Definition{Name: "x", Dataset: "daily-sales", SQL: "SELECT 1"}
	_, err = NewRegistry([]Definition{dup, dup}, datasets)
	assert.Error(t, err)

	reg, err := NewRegistry(DefaultDefinitions(), datasets)
	require.NoError(t, err)
	names := []string{}
	for _, def := range reg.List() {
		names = append(names, def.Name)
	}
	assert.Equal(t, []string{"daily-sales-summary", "purchase-order-status", "sales-by-user", "top-stores", "visit-summary"}, names)
}

func TestLoadDefinitions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports.yaml")
	content := `reports:
  - name: users
    dataset: daily-sales
    sql: SELECT {{col "user_code"}} FROM {{.Table}} {{.Where}} LIMIT {{.Limit}}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	defs, err := LoadDefinitions(path)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "users", defs[0].Name)

	empty := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("reports: []\n"), 0o644))
	_, err = LoadDefinitions(empty)
	assert.Error(t, err)
}
