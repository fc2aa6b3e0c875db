package cmd

import "github.com/urfave/cli/v2"

// Run executes the app and logs a failure on the run's logger.
func Run(args []string) error {
	err := NewApp().Run(args)
	if err != nil {
		logger.Error().Err(err).Msg("supaexport failed")
	}
	return err
}

func NewApp() *cli.App {
	return &cli.App{
		Name:  "supaexport",
		Usage: "Export a Supabase project to SQL files",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Path to supaexport.yaml (default: search upwards from the working directory)",
				EnvVars: []string{"SUPAEXPORT_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			InitCommand(),
			ExportCommand(),
			DumpCommand(),
			TablesCommand(),
			RestoreCommand(),
		},
	}
}
