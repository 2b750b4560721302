package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/confessbot/internal/config"
	"github.com/confessbot/internal/logging"
	"github.com/confessbot/internal/store"
)

// MigrateCommand returns the command that applies the database schema.
func MigrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create or update the database schema",
		Action: func(c *cli.Context) error {
			cfg, err := config.LoadConfig(c.String("config"))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cfg.Database.URL == "" {
				return fmt.Errorf("database url is required")
			}

			logging.Setup(cfg.Log.Level)

			ctx := context.Background()
			db, err := store.New(ctx, cfg.Database.URL)
			if err != nil {
				return err
			}
			defer db.Close()

			return db.Migrate(ctx)
		},
	}
}
