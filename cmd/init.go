package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	utils "github.com/KazanKK/supaexport/internal/utils"

	"github.com/urfave/cli/v2"
)

func InitCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Write a supaexport.yaml configuration file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "project",
				Usage:   "Supabase project ref",
				EnvVars: []string{"SUPABASE_PROJECT"},
			},
			&cli.StringFlag{
				Name:  "path",
				Usage: "Where to write the config file",
				Value: utils.ConfigFileName,
			},
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Overwrite an existing config file",
			},
		},
		Action: func(c *cli.Context) error {
			path := c.String("path")
			if _, err := os.Stat(path); err == nil && !c.Bool("force") {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			cfg := utils.DefaultConfig()
			cfg.Project = c.String("project")
			if err := utils.WriteConfig(path, cfg); err != nil {
				return err
			}

			root := filepath.Dir(path)
			for _, dir := range []string{cfg.SchemaDir, cfg.DataDir} {
				if err := os.MkdirAll(filepath.Join(root, dir), 0755); err != nil {
					return fmt.Errorf("creating %s: %w", dir, err)
				}
			}

			fmt.Printf("Created %s\n", path)
			return nil
		},
	}
}
