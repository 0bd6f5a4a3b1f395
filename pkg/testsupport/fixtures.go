package testsupport

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

// LoadFixture reads a file relative to the test package directory.
func LoadFixture(t *testing.T, path string) []byte {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to load fixture from %s: %v", path, err)
	}
	return data
}

// TempFile writes content to a file removed when the test ends.
func TempFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

// FixturePath joins filename onto the package testdata directory.
func FixturePath(filename string) string {
	return filepath.Join("testdata", filename)
}

// Execer runs a statement against a live database. *store.Store satisfies it.
type Execer interface {
	Exec(ctx context.Context, query string, args ...any) error
}

// SalesTable is the physical table the built-in daily-sales dataset
// resolves to first.
const SalesTable = "flat_daily_sales_report"

// SalesRow is one transaction line in SalesTable.
type SalesRow struct {
	Date      string
	Type      int
	Code      string
	UserCode  string
	UserName  string
	AreaCode  string
	StoreCode string
	StoreName string
	Amount    float64
}

// CreateSalesTable creates SalesTable with the column names used by the
// nightly flat-table load.
func CreateSalesTable(ctx context.Context, db Execer) error {
	return db.Exec(ctx, `CREATE TABLE `+SalesTable+` (
		trx_date TEXT,
		trx_type INTEGER,
		trx_code TEXT,
		trx_usercode TEXT,
		trx_username TEXT,
		route_areacode TEXT,
		customer_code TEXT,
		customer_description TEXT,
		trx_totalamount REAL
	)`)
}

// InsertSales appends rows to SalesTable.
func InsertSales(ctx context.Context, db Execer, rows ...SalesRow) error {
	for _, r := range rows {
		err := db.Exec(ctx, `INSERT INTO `+SalesTable+` VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9)`,
			r.Date, r.Type, r.Code, r.UserCode, r.UserName, r.AreaCode, r.StoreCode, r.StoreName, r.Amount)
		if err != nil {
			return err
		}
	}
	return nil
}
