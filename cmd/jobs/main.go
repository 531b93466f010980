// Command jobs runs one notification job and exits, for use from cron.
package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/farellandr/eventhub/config"
	"github.com/farellandr/eventhub/internal/access"
	"github.com/farellandr/eventhub/internal/logging"
	"github.com/farellandr/eventhub/internal/notify"
	"github.com/farellandr/eventhub/internal/server"
)

func main() {
	job := flag.String("job", "reminders", "job to run: reminders or pending")
	limit := flag.Int("limit", 0, "batch size for the pending job (0 uses the configured size)")
	flag.Parse()

	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logging.Fatal().Err(err).Msg("error loading .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load config")
	}

	app, err := server.Open(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to start")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var result notify.RunResult
	switch *job {
	case "reminders":
		result, err = app.Jobs.RunReminders(ctx, access.System())
	case "pending":
		batch := *limit
		if batch <= 0 {
			batch = cfg.Notify.PendingBatchSize
		}
		result, err = app.Jobs.ProcessPending(ctx, access.System(), batch)
	default:
		logging.Fatal().Str("job", *job).Msg("unknown job")
	}
	if err != nil {
		logging.Fatal().Err(err).Str("job", *job).Msg("job failed")
	}

	logging.Info().
		Str("job", *job).
		Int("events", result.Events).
		Int("sent", result.Sent).
		Int("failed", result.Failed).
		Int("skipped", result.Skipped).
		Msg("job finished")
}
