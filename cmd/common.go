package cmd

import (
	"errors"
	"fmt"

	"github.com/KazanKK/supaexport/export"
	"github.com/KazanKK/supaexport/internal/gologger"
	utils "github.com/KazanKK/supaexport/internal/utils"
	"github.com/KazanKK/supaexport/restapi"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

var logger = gologger.NewLogger().With().Str("runID", uuid.NewString()).Logger()

var errMissingKey = errors.New("SUPABASE_SERVICE_KEY must be set for data export (export SUPABASE_SERVICE_KEY=your_service_role_key)")

func projectFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "project",
			Usage:   "Supabase project ref",
			EnvVars: []string{"SUPABASE_PROJECT"},
		},
		&cli.StringFlag{
			Name:    "service-key",
			Usage:   "Service role key used as bearer token",
			EnvVars: []string{"SUPABASE_SERVICE_KEY"},
		},
		&cli.StringFlag{
			Name:    "base-url",
			Usage:   "REST root (defaults to https://<project>.supabase.co/rest/v1)",
			EnvVars: []string{"SUPABASE_REST_URL"},
		},
		&cli.StringSliceFlag{
			Name:  "table",
			Usage: "Table to export, in order (repeatable; overrides the config file)",
		},
	}
}

func outputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "migrations-dir", Usage: "Directory of *.sql migrations"},
		&cli.StringFlag{Name: "schema-dir", Usage: "Output directory for schema files"},
		&cli.StringFlag{Name: "data-dir", Usage: "Output directory for data files"},
	}
}

// loadConfig reads the config file and applies any flags or env vars set on
// the command.
func loadConfig(c *cli.Context) (utils.Config, error) {
	cfg, err := utils.LoadConfig(c.String("config"))
	if err != nil {
		return cfg, err
	}

	if c.IsSet("project") {
		cfg.Project = c.String("project")
	}
	if c.IsSet("base-url") {
		cfg.BaseURL = c.String("base-url")
	}
	if c.IsSet("table") {
		cfg.Tables = c.StringSlice("table")
	}
	if c.IsSet("page-size") {
		cfg.PageSize = c.Int("page-size")
	}
	if c.IsSet("literal-style") {
		cfg.LiteralStyle = c.String("literal-style")
	}
	if c.IsSet("migrations-dir") {
		cfg.MigrationsDir = c.String("migrations-dir")
	}
	if c.IsSet("schema-dir") {
		cfg.SchemaDir = c.String("schema-dir")
	}
	if c.IsSet("data-dir") {
		cfg.DataDir = c.String("data-dir")
	}
	return cfg, nil
}

func requireProject(cfg utils.Config) error {
	if cfg.Project == "" {
		return fmt.Errorf("SUPABASE_PROJECT must be set (export SUPABASE_PROJECT=<project-ref> or --project)")
	}
	return nil
}

func newClient(cfg utils.Config, serviceKey string, log zerolog.Logger) *restapi.Client {
	// A config value below one still makes a single request.
	retries := cfg.Retries
	if retries < 1 {
		retries = 1
	}
	return restapi.NewClient(restapi.Options{
		BaseURL:    utils.RESTBaseURL(cfg.Project, cfg.BaseURL),
		ServiceKey: serviceKey,
		Timeout:    cfg.Timeout,
		Retries:    retries,
		RetryDelay: cfg.RetryDelay,
		Logger:     log,
	})
}

func exportConfig(cfg utils.Config) (export.Config, error) {
	style, err := export.ParseLiteralStyle(cfg.LiteralStyle)
	if err != nil {
		return export.Config{}, err
	}
	return export.Config{
		Project:       cfg.Project,
		Tables:        cfg.Tables,
		PageSize:      cfg.PageSize,
		Style:         style,
		Columns:       cfg.Columns,
		MigrationsDir: cfg.MigrationsDir,
		SchemaDir:     cfg.SchemaDir,
		DataDir:       cfg.DataDir,
		Root:          cfg.Root,
	}, nil
}
