package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-report-cache/pkg/testsupport"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	content := `
env: test
log_level: error
database:
  driver: sqlite3
  dsn: "file:cmd_` + name + `?mode=memory&cache=shared"
`
	return testsupport.TempFile(t, "reportd.yaml", content)
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestPlanCmd_NamedRange(t *testing.T) {
	out, err := run(t, "plan", "--config", writeConfig(t), "--range", "lastMonth", "--dataset", "daily-sales", "--at", "2024-04-15")
	require.NoError(t, err)

	assert.Contains(t, out, "lastMonth (2024-03-01 to 2024-03-31)")
	assert.Contains(t, out, "STABLE")
	assert.Contains(t, out, "21600s")
	assert.Contains(t, out, "dataset:daily-sales bucket:lastMonth endpoint:reports")
	assert.Contains(t, out, "public, s-maxage=21600, stale-while-revalidate=43200")
}

func TestPlanCmd_CustomRangeJSON(t *testing.T) {
	out, err := run(t, "plan", "-c", writeConfig(t), "-o", "json",
		"--start", "2024-04-01", "--end", "2024-04-10", "--endpoint", "filters", "--at", "2024-04-15")
	require.NoError(t, err)

	var view planView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, "2024-04-01..2024-04-10", view.Range)
	assert.Equal(t, 600, view.TTLSeconds)
	assert.Equal(t, []string{"bucket:custom", "endpoint:filters"}, view.Tags)
	assert.Equal(t, "public, s-maxage=600, stale-while-revalidate=1200", view.CacheControl)
}

func TestPlanCmd_Errors(t *testing.T) {
	cfg := writeConfig(t)

	_, err := run(t, "plan", "-c", cfg, "--range", "fortnight")
	assert.Error(t, err)

	_, err = run(t, "plan", "-c", cfg, "--range", "today", "--at", "15/04/2024")
	assert.ErrorContains(t, err, "--at")

	_, err = run(t, "plan", "-c", filepath.Join(t.TempDir(), "missing.yaml"), "--range", "today")
	assert.Error(t, err)
}

func TestSchemaCmd_EmptyStore(t *testing.T) {
	out, err := run(t, "schema", "-c", writeConfig(t))
	require.NoError(t, err)

	assert.Contains(t, out, "DATASET")
	for _, name := range []string{"daily-sales", "purchase-orders", "store-visits"} {
		assert.Contains(t, out, name)
	}
	assert.Contains(t, out, "(unavailable)")
}

func TestSchemaCmd_UnknownDataset(t *testing.T) {
	_, err := run(t, "schema", "-c", writeConfig(t), "no-such-dataset")
	assert.Error(t, err)
}

func TestInvalidateCmd(t *testing.T) {
	cfg := writeConfig(t)

	_, err := run(t, "invalidate", "-c", cfg)
	assert.ErrorContains(t, err, "--tag")

	out, err := run(t, "invalidate", "-c", cfg, "--tag", "dataset:daily-sales", "-o", "json")
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	assert.Equal(t, []any{"dataset:daily-sales"}, body["tags"])
	assert.EqualValues(t, 0, body["evicted"])
}

func TestVersionCmd(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "reportd version dev")

	_, err = run(t, "version", "extra")
	assert.Error(t, err)
}
