package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	SchemaFile = "schema.sql"
	DataFile   = "production_data.sql"

	timestampLayout = "2006-01-02 15:04:05"
)

var DefaultTables = []string{"regions", "crags", "climbs", "user_climbs", "admin_actions"}

type Mode string

const (
	ModeSchema Mode = "schema"
	ModeData   Mode = "data"
	ModeFull   Mode = "full"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return ModeSchema, nil
	case ModeSchema, ModeData, ModeFull:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown mode: %s (want schema, data or full)", s)
}

// NeedsAPI reports whether the mode talks to the REST API.
func (m Mode) NeedsAPI() bool {
	return m == ModeData || m == ModeFull
}

type Config struct {
	Project  string
	Tables   []string
	PageSize int
	Style    LiteralStyle
	Columns  map[string][]string

	MigrationsDir string
	SchemaDir     string
	DataDir       string
	// Root is the project directory; paths written into artifacts are made
	// relative to it.
	Root string
}

// API is what the data export needs from the REST client.
type API interface {
	Source
	TableExists(ctx context.Context, table string) (bool, error)
}

// Exporter writes the schema and data artifacts for one project.
type Exporter struct {
	Config Config
	// API may be nil for schema-only runs.
	API    API
	Logger zerolog.Logger
	Now    func() time.Time
}

// Summary describes a finished data export.
type Summary struct {
	Path     string
	Exported []string
	Skipped  []string
	Rows     int
}

func (e *Exporter) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Run executes mode. Full runs the schema export before the data export.
func (e *Exporter) Run(ctx context.Context, mode Mode) error {
	switch mode {
	case ModeSchema:
		_, err := e.ExportSchema()
		return err
	case ModeData:
		_, err := e.ExportData(ctx)
		return err
	case ModeFull:
		if _, err := e.ExportSchema(); err != nil {
			return err
		}
		_, err := e.ExportData(ctx)
		return err
	}
	return fmt.Errorf("unknown mode: %s", mode)
}

// ExportSchema concatenates the migration files into SchemaDir/schema.sql.
func (e *Exporter) ExportSchema() (string, error) {
	e.Logger.Info().Str("dir", e.Config.MigrationsDir).Msg("exporting schema from migrations")

	files, err := filepath.Glob(filepath.Join(e.Config.MigrationsDir, "*.sql"))
	if err != nil {
		return "", fmt.Errorf("listing migrations: %w", err)
	}
	sort.Strings(files)

	out, err := createOutput(e.Config.SchemaDir, SchemaFile)
	if err != nil {
		return "", err
	}
	defer out.Close()

	if err := WriteMigrations(out, e.schemaHeader(), files, e.Logger); err != nil {
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("closing %s: %w", out.Name(), err)
	}

	e.Logger.Info().Str("path", out.Name()).Int("migrations", len(files)).Msg("schema exported")
	return out.Name(), nil
}

func (e *Exporter) schemaHeader() string {
	var b strings.Builder
	b.WriteString("-- Database Schema Export\n")
	fmt.Fprintf(&b, "-- Generated: %s\n", e.now().Format(timestampLayout))
	fmt.Fprintf(&b, "-- Project: %s\n", e.Config.Project)
	b.WriteString("-- Generated from migration files\n")
	b.WriteString("--\n\n")
	return b.String()
}

// WriteMigrations writes header followed by every file in files, each behind
// a banner naming it.
func WriteMigrations(w io.Writer, header string, files []string, logger zerolog.Logger) error {
	if _, err := io.WriteString(w, header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, path := range files {
		name := filepath.Base(path)
		logger.Info().Str("file", name).Msg("including migration")

		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		var b strings.Builder
		b.WriteString("-- ========================================\n")
		fmt.Fprintf(&b, "-- From: %s\n", name)
		b.WriteString("-- ========================================\n\n")
		b.Write(content)
		b.WriteString("\n\n")
		if _, err := io.WriteString(w, b.String()); err != nil {
			return fmt.Errorf("writing migration %s: %w", name, err)
		}
	}
	return nil
}

// ExportData writes DataDir/production_data.sql. Absent tables are skipped;
// any other API failure aborts the run and leaves what was written so far.
func (e *Exporter) ExportData(ctx context.Context) (*Summary, error) {
	if e.API == nil {
		return nil, fmt.Errorf("data export needs an API client")
	}
	e.Logger.Info().Msg("exporting data")

	out, err := createOutput(e.Config.DataDir, DataFile)
	if err != nil {
		return nil, err
	}
	defer out.Close()

	sum, err := e.WriteData(ctx, out)
	if err != nil {
		return nil, err
	}
	if err := out.Close(); err != nil {
		return nil, fmt.Errorf("closing %s: %w", out.Name(), err)
	}
	sum.Path = out.Name()

	e.Logger.Info().Str("path", sum.Path).Msgf("tables exported: %d/%d", len(sum.Exported), len(e.Config.Tables))
	return sum, nil
}

// WriteData writes the data header and one section per existing table to w.
func (e *Exporter) WriteData(ctx context.Context, w io.Writer) (*Summary, error) {
	if _, err := io.WriteString(w, e.dataHeader()); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}

	tx := &TableExporter{
		Source:   e.API,
		PageSize: e.Config.PageSize,
		Encoder:  Encoder{Style: e.Config.Style},
		Columns:  e.Config.Columns,
		Logger:   e.Logger,
	}

	sum := &Summary{}
	for _, table := range e.Config.Tables {
		e.Logger.Info().Str("table", table).Msg("checking table")
		exists, err := e.API.TableExists(ctx, table)
		if err != nil {
			return nil, fmt.Errorf("checking %s: %w", table, err)
		}
		if !exists {
			e.Logger.Info().Str("table", table).Msg("table does not exist, skipping")
			sum.Skipped = append(sum.Skipped, table)
			continue
		}

		n, err := tx.Export(ctx, table, w)
		if err != nil {
			return nil, err
		}
		sum.Exported = append(sum.Exported, table)
		sum.Rows += n
	}
	return sum, nil
}

func (e *Exporter) dataHeader() string {
	var b strings.Builder
	b.WriteString("-- Database Data Export\n")
	fmt.Fprintf(&b, "-- Generated: %s\n", e.now().Format(timestampLayout))
	fmt.Fprintf(&b, "-- Project: %s\n", e.Config.Project)
	b.WriteString("--\n")
	b.WriteString("-- NOTE: This file requires schema to be applied first\n")
	fmt.Fprintf(&b, "-- Run migrations from %s/ first\n\n", e.Config.relPath(e.Config.MigrationsDir))
	return b.String()
}

// relPath returns p relative to Root when p lies inside it, with forward
// slashes.
func (c Config) relPath(p string) string {
	if c.Root != "" {
		rel, err := filepath.Rel(c.Root, p)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			p = rel
		}
	}
	return filepath.ToSlash(p)
}

func createOutput(dir, name string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("creating output file: %w", err)
	}
	return f, nil
}
