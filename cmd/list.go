package cmd

import (
	"context"
	"io"
	"os"
	"strconv"

	"github.com/KazanKK/supaexport/restapi"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"
)

// Prober checks a single table.
type Prober interface {
	Probe(ctx context.Context, table string) (*restapi.Probe, error)
}

func TablesCommand() *cli.Command {
	return &cli.Command{
		Name:  "tables",
		Usage: "Show which configured tables exist and how many rows they hold",
		Flags: projectFlags(),
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if err := requireProject(cfg); err != nil {
				return err
			}
			serviceKey := c.String("service-key")
			if serviceKey == "" {
				return errMissingKey
			}

			client := newClient(cfg, serviceKey, logger)
			return renderTables(c.Context, os.Stdout, client, cfg.Tables)
		},
	}
}

func renderTables(ctx context.Context, w io.Writer, p Prober, tables []string) error {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Table", "Exists", "Rows"})
	table.SetBorder(false)
	table.SetColumnSeparator(" ")

	for _, name := range tables {
		probe, err := p.Probe(ctx, name)
		if err != nil {
			return err
		}

		rows := "-"
		if probe.Exists {
			rows = "?"
			if probe.RowsKnown {
				rows = strconv.FormatInt(probe.Rows, 10)
			}
		}
		exists := "no"
		if probe.Exists {
			exists = "yes"
		}
		table.Append([]string{name, exists, rows})
	}

	table.Render()
	return nil
}
