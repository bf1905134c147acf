package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/twola/internal/config"
)

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		schedule string
		now      bool
		files    []string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the import on a cron schedule",
		Long: `Run an import cycle on every tick of the schedule (IMPORT_SCHEDULE or
--schedule, standard cron or "@every 5m"). A cycle still running when the next
tick fires causes that tick to be skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if schedule != "" {
				cfg.Source.Schedule = schedule
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runWatch(ctx, cfg, files, now)
		},
	}

	cmd.Flags().StringVar(&schedule, "schedule", "", "cron spec (overrides IMPORT_SCHEDULE)")
	cmd.Flags().BoolVar(&now, "now", false, "run one cycle immediately before the first tick")
	cmd.Flags().StringSliceVarP(&files, "file", "f", nil, "read payloads from local JSON files instead of the source")
	return cmd
}

// runWatch blocks until ctx is done. A cycle in flight at that point runs
// to completion before runWatch returns.
func runWatch(ctx context.Context, cfg config.Config, files []string, now bool) error {
	db, closeDB, err := openStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer closeDB()

	logger := cronLogger{l: log.Logger.With().Str("component", "watch").Logger()}
	c := cron.New(cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))

	jobCtx := context.WithoutCancel(ctx)
	job := func() {
		res, err := importOnce(jobCtx, db, cfg, files)
		if err != nil {
			logger.l.Error().Err(err).Msg("import cycle failed")
			return
		}
		logger.l.Info().
			Int("inserted", res.Inserted).
			Int("duplicates", res.Duplicates).
			Int("error_payloads", res.ErrorPayloads).
			Msg("import cycle done")
	}

	if _, err := c.AddFunc(cfg.Source.Schedule, job); err != nil {
		return fmt.Errorf("schedule %q: %w", cfg.Source.Schedule, err)
	}
	if now {
		job()
	}

	c.Start()
	logger.l.Info().Str("schedule", cfg.Source.Schedule).Msg("watching source")

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	l zerolog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
