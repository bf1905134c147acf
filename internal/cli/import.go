package cli

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/tbourn/twola/internal/config"
	"github.com/tbourn/twola/internal/fetcher"
	"github.com/tbourn/twola/internal/importer"
	"github.com/tbourn/twola/internal/services"
)

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	var files []string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Run one import cycle",
		Long: `Create the store if absent, fetch payloads from SOURCE_URL (or read
them from --file) and store every tweet whose id is new. Prints the total and
keyword-filtered counts afterwards.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return runImport(cmd, cfg, files)
		},
	}

	cmd.Flags().StringSliceVarP(&files, "file", "f", nil, "read payloads from local JSON files instead of the source")
	return cmd
}

func runImport(cmd *cobra.Command, cfg config.Config, files []string) error {
	ctx := cmd.Context()
	db, closeDB, err := openStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer closeDB()

	res, err := importOnce(ctx, db, cfg, files)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "imported %d new tweets (%d duplicates, %d error payloads)\n",
		res.Inserted, res.Duplicates, res.ErrorPayloads)
	return report(ctx, out, services.NewTweetService(db, cfg.Keywords))
}

// importOnce runs a single import cycle against db.
func importOnce(ctx context.Context, db *gorm.DB, cfg config.Config, files []string) (importer.Result, error) {
	payloads, err := payloadSource(ctx, cfg.Source, files)
	if err != nil {
		return importer.Result{}, err
	}
	return importer.New(db).Import(ctx, payloads)
}

// payloadSource reads files eagerly; without files it fetches lazily from
// the configured source.
func payloadSource(ctx context.Context, src config.SourceConfig, files []string) (iter.Seq[string], error) {
	if len(files) == 0 {
		f := fetcher.New(src.URL, src.Attempts,
			fetcher.WithHTTPClient(&http.Client{Timeout: src.Timeout}),
			fetcher.WithInterval(src.Interval),
		)
		return f.Fetch(ctx), nil
	}

	payloads := make([]string, 0, len(files))
	for _, name := range files {
		b, err := os.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read payload: %w", err)
		}
		payloads = append(payloads, string(b))
	}
	return importer.FromStrings(payloads...), nil
}
