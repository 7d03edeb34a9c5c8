package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	// Embedded tz database so timezone handling works without system tzdata.
	_ "time/tzdata"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/perch/daybook/internal"
	pkgconfig "github.com/perch/daybook/pkg/config"
)

// loadConfig reads the YAML config file over the built-in defaults. A missing
// file is fine as long as defaults were not overridden away.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	path := cmd.String("config")
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid default config: %w", err)
		}
		return cfg, nil
	}
	if err := pkgconfig.Load(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func remind(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunReminder(ctx, internal.WithConfig(cfg))
}

func subscribe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunSubscribe(ctx, internal.WithConfig(cfg))
}

func submit(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunSubmit(ctx, cmd.String("date"), cmd.StringSlice("set"), internal.WithConfig(cfg))
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(internal.WithConfig(cfg))
}

func main() {
	cmd := &cli.Command{
		Name:  "daybook",
		Usage: "Caregiver daily-diary backend with a local record store, reminder scheduler, and push subscription setup",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the record-store dev server",
				Action: serve,
			},
			{
				Name:   "remind",
				Usage:  "Run the evening diary reminder scheduler",
				Action: remind,
			},
			{
				Name:   "subscribe",
				Usage:  "Ensure a web push subscription is registered",
				Action: subscribe,
			},
			{
				Name:  "submit",
				Usage: "Submit diary answers for a date",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "date",
						Usage: "Diary date (YYYY-MM-DD), defaults to today",
					},
					&cli.StringSliceFlag{
						Name:  "set",
						Usage: "Answer as key=value; repeat per question, comma-separate checkbox options",
					},
				},
				Action: submit,
			},
			{
				Name:   "mcp",
				Usage:  "Serve diary tools over the Model Context Protocol on stdio",
				Action: mcp,
			},
		},
		DefaultCommand: "serve",
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
