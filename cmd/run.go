package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/confessbot/internal/api"
	"github.com/confessbot/internal/config"
	"github.com/confessbot/internal/engine"
	"github.com/confessbot/internal/identity"
	"github.com/confessbot/internal/logging"
	"github.com/confessbot/internal/store"
	"github.com/confessbot/internal/telegram"
)

// RunCommand returns the command that starts the bot service.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:   "run",
		Usage:  "Start the confession bot",
		Action: runBot,
	}
}

func runBot(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logging.Setup(cfg.Log.Level)

	// A bot that cannot store authors recoverably must not serve traffic.
	codec, err := identity.NewCodec(cfg.Identity.Key)
	if err != nil {
		return fmt.Errorf("identity codec: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return err
	}

	client := telegram.NewClient(cfg.Telegram.Token)
	bot := engine.New(engine.Params{
		Store:       db,
		Messenger:   client,
		Codec:       codec,
		Channel:     cfg.Telegram.Channel,
		NotifyDelta: cfg.Notify.Delta,
	})

	if cfg.Webhook.Listen != "" {
		server := api.NewServer(cfg.Webhook.Listen, cfg.Webhook.Secret, bot.HandleUpdate)
		return server.Start(ctx)
	}

	err = telegram.NewPoller(client).Run(ctx, bot.HandleUpdate)
	if errors.Is(err, context.Canceled) {
		log.Info().Msg("shutting down")
		return nil
	}
	return err
}
