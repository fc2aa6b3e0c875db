package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/KazanKK/supaexport/restapi"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.Local) }

const wantDataHeader = "-- Database Data Export\n" +
	"-- Generated: 2026-03-04 05:06:07\n" +
	"-- Project: glxproject\n" +
	"--\n" +
	"-- NOTE: This file requires schema to be applied first\n" +
	"-- Run migrations from db/migrations/ first\n\n"

func testConfig(dir string) Config {
	return Config{
		Project:       "glxproject",
		Tables:        DefaultTables,
		MigrationsDir: "db/migrations",
		SchemaDir:     filepath.Join(dir, "schema"),
		DataDir:       filepath.Join(dir, "data"),
	}
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeSchema, m)

	for _, s := range []string{"schema", "data", "full"} {
		m, err := ParseMode(s)
		require.NoError(t, err)
		assert.Equal(t, Mode(s), m)
	}

	_, err = ParseMode("full_schema")
	assert.Error(t, err)

	assert.False(t, ModeSchema.NeedsAPI())
	assert.True(t, ModeData.NeedsAPI())
	assert.True(t, ModeFull.NeedsAPI())
}

func TestWriteDataSkipsMissingTables(t *testing.T) {
	api := newFakeAPI(map[string][]restapi.Row{
		"regions": {
			row("id", json.Number("1"), "name", "O'Brien"),
			row("id", json.Number("2"), "name", nil),
		},
		"crags":       nil,
		"climbs":      {row("id", json.Number("5"), "ok", true)},
		"user_climbs": nil,
	})
	e := &Exporter{Config: testConfig(t.TempDir()), API: api, Logger: zerolog.Nop(), Now: fixedNow}

	var buf bytes.Buffer
	sum, err := e.WriteData(context.Background(), &buf)
	require.NoError(t, err)

	assert.Equal(t, wantDataHeader+
		"-- Data for regions\n"+
		"INSERT INTO regions (id, name) VALUES (1, 'O''Brien');\n"+
		"INSERT INTO regions (id, name) VALUES (2, NULL);\n"+
		"-- Data for climbs\n"+
		"INSERT INTO climbs (id, ok) VALUES (5, true);\n", buf.String())

	assert.Equal(t, []string{"regions", "crags", "climbs", "user_climbs"}, sum.Exported)
	assert.Equal(t, []string{"admin_actions"}, sum.Skipped)
	assert.Equal(t, 3, sum.Rows)
	assert.Zero(t, api.fetches["admin_actions"])
}

func TestWriteDataProbeFailureAborts(t *testing.T) {
	api := newFakeAPI(map[string][]restapi.Row{"regions": numberedRows(1), "crags": numberedRows(1)})
	api.probeErrors = map[string]error{"crags": &restapi.StatusError{Code: 401}}
	e := &Exporter{Config: testConfig(t.TempDir()), API: api, Logger: zerolog.Nop(), Now: fixedNow}

	var buf bytes.Buffer
	_, err := e.WriteData(context.Background(), &buf)
	require.Error(t, err)
	assert.Contains(t, buf.String(), "-- Data for regions\n")
}

func TestDataHeaderRelativeToRoot(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(root)
	cfg.Root = root
	cfg.MigrationsDir = filepath.Join(root, "db", "migrations")
	e := &Exporter{Config: cfg, Logger: zerolog.Nop(), Now: fixedNow}
	assert.Equal(t, wantDataHeader, e.dataHeader())

	outside := filepath.Join(filepath.Dir(root), "shared", "migrations")
	tests := []struct {
		root, dir, want string
	}{
		{"", "db/migrations", "db/migrations"},
		{root, filepath.Join(root, "sql"), "sql"},
		{root, outside, filepath.ToSlash(outside)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Config{Root: tt.root}.relPath(tt.dir))
	}
}

func TestExportSchema(t *testing.T) {
	dir := t.TempDir()
	migrations := filepath.Join(dir, "migrations")
	require.NoError(t, os.MkdirAll(migrations, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(migrations, "002_crags.sql"), []byte("CREATE TABLE crags ();"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(migrations, "001_regions.sql"), []byte("CREATE TABLE regions ();"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(migrations, "README.md"), []byte("ignored"), 0644))

	cfg := testConfig(dir)
	cfg.MigrationsDir = migrations
	e := &Exporter{Config: cfg, Logger: zerolog.Nop(), Now: fixedNow}

	path, err := e.ExportSchema()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "schema", SchemaFile), path)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "-- Database Schema Export\n"+
		"-- Generated: 2026-03-04 05:06:07\n"+
		"-- Project: glxproject\n"+
		"-- Generated from migration files\n"+
		"--\n\n"+
		"-- ========================================\n"+
		"-- From: 001_regions.sql\n"+
		"-- ========================================\n\n"+
		"CREATE TABLE regions ();\n\n"+
		"-- ========================================\n"+
		"-- From: 002_crags.sql\n"+
		"-- ========================================\n\n"+
		"CREATE TABLE crags ();\n\n", string(got))
}

func TestExportSchemaWithoutMigrations(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.MigrationsDir = filepath.Join(dir, "nope")
	e := &Exporter{Config: cfg, Logger: zerolog.Nop(), Now: fixedNow}

	path, err := e.ExportSchema()
	require.NoError(t, err)
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(got), "-- Generated from migration files\n--\n\n")
	assert.NotContains(t, string(got), "-- From:")
}

func TestExportDataOverHTTP(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		switch r.URL.Path {
		case "/rest/v1/regions":
			if r.URL.Query().Get("select") == "id" {
				w.Header().Set("Content-Range", "0-0/2")
				_, _ = w.Write([]byte(`[{"id":1}]`))
				return
			}
			if calls == 2 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			w.Header().Set("Content-Range", "0-1/2")
			_, _ = w.Write([]byte(`[{"id":1,"name":"O'Brien"},{"id":2,"name":null}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := restapi.NewClient(restapi.Options{BaseURL: srv.URL + "/rest/v1", ServiceKey: "k", Logger: zerolog.Nop()})
	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.Tables = []string{"regions", "admin_actions"}
	e := &Exporter{Config: cfg, API: client, Logger: zerolog.Nop(), Now: fixedNow}

	sum, err := e.ExportData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "data", DataFile), sum.Path)
	assert.Equal(t, []string{"admin_actions"}, sum.Skipped)

	got, err := os.ReadFile(sum.Path)
	require.NoError(t, err)
	assert.Equal(t, wantDataHeader+
		"-- Data for regions\n"+
		"INSERT INTO regions (id, name) VALUES (1, 'O''Brien');\n"+
		"INSERT INTO regions (id, name) VALUES (2, NULL);\n", string(got))
}

func TestExportDataFailureKeepsEarlierTables(t *testing.T) {
	api := newFakeAPI(map[string][]restapi.Row{
		"regions": numberedRows(2),
		"crags":   numberedRows(2),
	})
	api.failTable = "crags"
	dir := t.TempDir()
	e := &Exporter{Config: testConfig(dir), API: api, Logger: zerolog.Nop(), Now: fixedNow}

	err := e.Run(context.Background(), ModeData)
	var se *restapi.StatusError
	require.True(t, errors.As(err, &se))

	got, err := os.ReadFile(filepath.Join(dir, "data", DataFile))
	require.NoError(t, err)
	assert.Contains(t, string(got), "INSERT INTO regions (id) VALUES (2);\n")
	assert.NotContains(t, string(got), "crags")
}

func TestRunFull(t *testing.T) {
	dir := t.TempDir()
	api := newFakeAPI(map[string][]restapi.Row{"regions": numberedRows(1)})
	e := &Exporter{Config: testConfig(dir), API: api, Logger: zerolog.Nop(), Now: fixedNow}

	require.NoError(t, e.Run(context.Background(), ModeFull))
	assert.FileExists(t, filepath.Join(dir, "schema", SchemaFile))
	assert.FileExists(t, filepath.Join(dir, "data", DataFile))
}

func TestExportDataNeedsAPI(t *testing.T) {
	e := &Exporter{Config: testConfig(t.TempDir()), Logger: zerolog.Nop()}
	_, err := e.ExportData(context.Background())
	assert.Error(t, err)
}
