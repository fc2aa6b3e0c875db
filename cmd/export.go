package cmd

import (
	"fmt"

	"github.com/KazanKK/supaexport/export"

	"github.com/urfave/cli/v2"
)

func ExportCommand() *cli.Command {
	flags := append(projectFlags(), outputFlags()...)
	flags = append(flags,
		&cli.IntFlag{
			Name:  "page-size",
			Usage: "Rows requested per page",
		},
		&cli.StringFlag{
			Name:  "literal-style",
			Usage: "Quoting of text with backslashes: compat or escape",
		},
	)

	return &cli.Command{
		Name:      "api-export",
		Usage:     "Export schema (from migrations) and data (through the REST API) to SQL files",
		ArgsUsage: "[schema|data|full]",
		Flags:     flags,
		Action: func(c *cli.Context) error {
			if c.Args().Len() > 1 {
				return fmt.Errorf("expected a single mode argument, got %d", c.Args().Len())
			}

			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if err := requireProject(cfg); err != nil {
				return err
			}

			mode, err := export.ParseMode(c.Args().First())
			if err != nil {
				return err
			}

			serviceKey := c.String("service-key")
			if mode.NeedsAPI() && serviceKey == "" {
				return errMissingKey
			}

			ecfg, err := exportConfig(cfg)
			if err != nil {
				return err
			}

			log := logger.With().Str("project", cfg.Project).Str("mode", string(mode)).Logger()
			log.Info().Msg("supabase api export")

			e := &export.Exporter{Config: ecfg, Logger: log}
			if mode.NeedsAPI() {
				e.API = newClient(cfg, serviceKey, log)
			}
			if err := e.Run(c.Context, mode); err != nil {
				return err
			}

			fmt.Printf("\n✅ Export (%s) complete\n", mode)
			return nil
		},
	}
}
