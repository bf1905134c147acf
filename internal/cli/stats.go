package cli

import (
	"github.com/spf13/cobra"

	"github.com/tbourn/twola/internal/services"
)

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print stored and keyword-filtered tweet counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			db, closeDB, err := openStore(cfg.DBPath)
			if err != nil {
				return err
			}
			defer closeDB()

			return report(cmd.Context(), cmd.OutOrStdout(), services.NewTweetService(db, cfg.Keywords))
		},
	}
}
