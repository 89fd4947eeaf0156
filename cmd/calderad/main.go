// Command calderad runs the Caldera storage engine behind a TCP listener.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/calderadb/caldera/config"
	"github.com/calderadb/caldera/engine"
	"github.com/calderadb/caldera/server"
	"github.com/urfave/cli/v2"
)

var (
	version = "dev"
)

func main() {
	app := &cli.App{
		Name:    "calderad",
		Usage:   "Caldera embedded key-value store server",
		Version: version,
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Start the Caldera server",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Configuration file path",
					},
					&cli.StringFlag{
						Name:  "data-path",
						Usage: "Heap file path (overrides config)",
					},
					&cli.StringFlag{
						Name:  "listen-addr",
						Usage: "TCP listen address (overrides config)",
					},
				},
				Action: serve,
			},
			{
				Name:  "version",
				Usage: "Show version information",
				Action: func(c *cli.Context) error {
					fmt.Printf("calderad %s\n", version)
					return nil
				},
			},
			{
				Name:  "config",
				Usage: "Configuration commands",
				Subcommands: []*cli.Command{
					{
						Name:  "show",
						Usage: "Print the effective configuration as YAML",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:    "config",
								Aliases: []string{"c"},
								Usage:   "Configuration file path",
							},
						},
						Action: showConfig,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if v := c.String("data-path"); v != "" {
		cfg.Storage.DataPath = v
	}
	if v := c.String("listen-addr"); v != "" {
		cfg.Server.ListenAddr = v
	}
	return cfg, nil
}

func serve(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	eng, err := engine.Open(cfg.Storage.DataPath, cfg.Storage.CacheSize)
	if err != nil {
		return fmt.Errorf("opening engine: %w", err)
	}
	defer eng.Close()

	srv := server.New(eng, cfg.Server.ListenAddr, cfg.Server.Workers)
	return srv.Run()
}

func showConfig(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	out, err := cfg.ToYAML()
	if err != nil {
		return fmt.Errorf("rendering config: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
