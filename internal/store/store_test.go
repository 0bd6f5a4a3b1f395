package store

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	s, err := Open(context.Background(), MemoryConfig(name), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "oracle", DSN: "x"}, nil)
	assert.Error(t, err)
}

func TestQuery(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	assert.Equal(t, "sqlite", s.Dialect().Name())

	require.NoError(t, s.Exec(ctx, `CREATE TABLE sales (trx_date TEXT, user_code TEXT, amount REAL)`))
	require.NoError(t, s.Exec(ctx, `INSERT INTO sales VALUES (?1, ?2, ?3), (?4, ?5, ?6)`,
		"2024-03-01", "U1", 10.5,
		"2024-03-02", "U2", 4.0,
	))

	rows, err := s.Query(ctx, `SELECT user_code, SUM(amount) AS total FROM sales WHERE trx_date >= ?1 GROUP BY user_code ORDER BY user_code`, "2024-03-01")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "U1", rows[0]["user_code"])
	assert.Equal(t, 10.5, rows[0]["total"])

	empty, err := s.Query(ctx, `SELECT * FROM sales WHERE user_code = ?1`, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestQuery_MissingTableIsClassified(t *testing.T) {
	s := openMemory(t)

	_, err := s.Query(context.Background(), `SELECT * FROM flat_sales`)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUndefinedObject)
	assert.True(t, IsUnavailable(err))
}

func TestCatalog(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	require.NoError(t, s.Exec(ctx, `CREATE TABLE flat_sales (trx_date TEXT, trx_usercode TEXT, total REAL)`))
	require.NoError(t, s.Exec(ctx, `CREATE VIEW flat_sales_view AS SELECT trx_date FROM flat_sales`))

	catalog := s.Catalog()

	ok, err := catalog.TableExists(ctx, "flat_sales")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = catalog.TableExists(ctx, "flat_sales_view")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = catalog.TableExists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	cols, err := catalog.Columns(ctx, "flat_sales")
	require.NoError(t, err)
	assert.Equal(t, []string{"trx_date", "trx_usercode", "total"}, cols)
}

func TestDirectory(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	require.NoError(t, s.CreateDirectory(ctx))
	require.NoError(t, s.SaveActors(ctx,
		&Actor{Code: "ADMIN", Name: "Head office", IsAdmin: true},
		&Actor{Code: "U1", Name: "Team lead"},
		&Actor{Code: "U3", Name: "Rep", ParentCode: "U1"},
		&Actor{Code: "U2", Name: "Rep", ParentCode: "U1"},
		&Actor{Code: "U4", Name: "Rep"},
	))

	dir := s.Directory()

	admin, err := dir.IsAdmin(ctx, "ADMIN")
	require.NoError(t, err)
	assert.True(t, admin)

	admin, err = dir.IsAdmin(ctx, "U1")
	require.NoError(t, err)
	assert.False(t, admin)

	admin, err = dir.IsAdmin(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, admin)

	subs, err := dir.DirectSubordinates(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, []string{"U2", "U3"}, subs)

	subs, err = dir.DirectSubordinates(ctx, "U4")
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestClassify(t *testing.T) {
	assert.Nil(t, classify(nil))
	assert.ErrorIs(t, classify(context.Canceled), context.Canceled)

	plain := errors.New("syntax error")
	assert.Same(t, plain, classify(plain))
}
