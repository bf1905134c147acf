// Package cli holds the cobra commands behind the twola binary: one-shot
// import, scheduled import, store stats and the HTTP server.
package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/tbourn/twola/internal/config"
	"github.com/tbourn/twola/internal/repo"
	"github.com/tbourn/twola/internal/services"
	"github.com/tbourn/twola/internal/sysutil"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string // optional viper file, env still wins
	DBPath     string // overrides DB_PATH
	LogLevel   string // overrides LOG_LEVEL
	Version    string
}

// NewRootCommand creates the root command for the twola CLI.
func NewRootCommand(version string) *cobra.Command {
	opts := &RootOptions{Version: version}

	cmd := &cobra.Command{
		Use:           "twola",
		Short:         "twola - tweet importer and viewer",
		Long:          "Imports tweets from a remote source into SQLite and serves keyword-filtered listings.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (yaml|toml|json)")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "SQLite database path (overrides DB_PATH)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "debug|info|warn|error (overrides LOG_LEVEL)")

	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))

	return cmd
}

// loadConfig reads .env (if any), then the config file or the environment,
// applies flag overrides and installs the global logger on logw.
func loadConfig(opts *RootOptions, logw io.Writer) (config.Config, error) {
	_ = godotenv.Load()

	var (
		cfg config.Config
		err error
	)
	if opts.ConfigPath != "" {
		cfg, err = config.LoadFile(opts.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return config.Config{}, err
	}

	if opts.DBPath != "" {
		cfg.DBPath = opts.DBPath
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = strings.ToLower(opts.LogLevel)
		if cfg.LogLevel == "warning" {
			cfg.LogLevel = "warn"
		}
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}

	sysutil.SetupLogger(logw, cfg.LogLevel, cfg.LogPretty)
	return cfg, nil
}

// openStore opens the database and creates the schema if absent. The
// returned func releases the handle.
func openStore(path string) (*gorm.DB, func(), error) {
	db, err := repo.OpenSQLite(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	closeFn := func() {
		if sqlDB, err := db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				log.Warn().Err(err).Str("db", path).Msg("close database")
			}
		}
	}
	if err := repo.AutoMigrate(db); err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	return db, closeFn, nil
}

// report prints the total and keyword-filtered counts.
func report(ctx context.Context, w io.Writer, svc *services.TweetService) error {
	st, err := svc.Stats(ctx)
	if err != nil {
		return err
	}
	filtered, err := svc.List(ctx, true)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "total: %d\nfiltered: %d\n", st.Count, len(filtered))
	return nil
}
