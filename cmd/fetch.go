package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/gazetteer-cli/internal/geonames"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch CC[,CC...]",
	Short: "Download and extract GeoNames country dumps",
	Long: `Downloads one <CC>.zip archive per country code from the GeoNames dump
endpoint (or an ftp:// mirror) and extracts the tab-delimited <CC>.txt
file into the data directory. Already-extracted dumps are skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		destDir, _ := cmd.Flags().GetString("dest")
		concurrency, _ := cmd.Flags().GetInt("concurrency")
		if destDir == "" {
			destDir = cfg.GeoNames.DataDir
		}
		if concurrency <= 0 {
			concurrency = cfg.GeoNames.Concurrency
		}

		countries := toUpper(splitAndTrim(args[0]))
		if len(countries) == 0 {
			return eris.New("fetch: no country codes given")
		}

		log := zap.L().With(zap.String("command", "fetch"))
		log.Info("fetching dumps",
			zap.Strings("countries", countries),
			zap.String("dest", destDir),
		)

		client := geonames.NewClient(cfg.GeoNames.BaseURL, time.Duration(cfg.GeoNames.RateMs)*time.Millisecond)

		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(concurrency)

		for _, cc := range countries {
			g.Go(func() error {
				path, err := client.Fetch(gCtx, cc, destDir)
				if err != nil {
					return err
				}
				fmt.Printf("%-4s %s\n", cc, path)
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return eris.Wrap(err, "fetch")
		}

		return nil
	},
}

func init() {
	fetchCmd.Flags().String("dest", "", "destination directory (default: from config)")
	fetchCmd.Flags().Int("concurrency", 0, "parallel downloads (default: from config or 3)")
	rootCmd.AddCommand(fetchCmd)
}
