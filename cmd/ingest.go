package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/gazetteer-cli/internal/geonames"
	"github.com/sells-group/gazetteer-cli/internal/gpkg"
	"github.com/sells-group/gazetteer-cli/internal/pipeline"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest CC[,CC...]",
	Short: "Run the full ingestion pipeline into a GeoPackage layer",
	Long: `Loads the tab-delimited dumps for the given country codes, keeps the
entries matching the feature-class filter, builds point geometries, and
writes them as one named layer of a GeoPackage.

Dumps are expected in the data directory (see the fetch command); pass
--fetch to download missing ones first. Use --files to ingest explicit
file paths instead of country codes.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		opts, err := ingestOptions(cmd)
		if err != nil {
			return err
		}

		// Resolve country codes to dump paths, downloading when asked.
		if len(opts.Sources) == 0 {
			doFetch, _ := cmd.Flags().GetBool("fetch")
			dataDir, _ := cmd.Flags().GetString("input-dir")
			if dataDir == "" {
				dataDir = cfg.GeoNames.DataDir
			}
			if len(args) == 0 {
				return eris.New("ingest: give country codes or --files")
			}

			countries := toUpper(splitAndTrim(args[0]))
			sources, err := resolveSources(ctx, countries, dataDir, doFetch)
			if err != nil {
				return err
			}
			opts.Sources = sources
		}

		zap.L().Info("starting ingest",
			zap.Strings("sources", opts.Sources),
			zap.String("output", opts.Output),
			zap.String("layer", opts.Layer),
			zap.String("feature_class", opts.FeatureClass),
			zap.String("crs", opts.CRS),
			zap.String("policy", string(opts.Policy)),
			zap.Bool("strict", opts.Strict),
		)

		summary, err := pipeline.Run(ctx, opts)
		if err != nil {
			return eris.Wrap(err, "ingest")
		}

		fmt.Printf("loaded %d rows (%d skipped), matched %d, wrote %d to %s:%s\n",
			summary.Loaded, summary.LoadSkipped, summary.Matched,
			summary.Written, opts.Output, opts.Layer)
		if summary.GeomFailures > 0 {
			fmt.Printf("warning: %d rows dropped for invalid coordinates (sample ids: %v)\n",
				summary.GeomFailures, summary.SampleIDs)
		}

		return nil
	},
}

func init() {
	ingestCmd.Flags().String("files", "", "comma-separated dump file paths (bypasses country resolution)")
	ingestCmd.Flags().String("input-dir", "", "directory holding extracted dumps (default: from config)")
	ingestCmd.Flags().Bool("fetch", false, "download missing dumps before ingesting")
	ingestCmd.Flags().StringP("out", "o", "", "output GeoPackage path (required)")
	ingestCmd.Flags().String("layer", "", "output layer name (default: from config)")
	ingestCmd.Flags().String("class", "", "feature-class filter value (default: from config)")
	ingestCmd.Flags().String("crs", "", "coordinate reference system (default: from config)")
	ingestCmd.Flags().String("encoding", "", "input text encoding (default: from config)")
	ingestCmd.Flags().String("on-conflict", "", "existing-layer policy: overwrite|fail|append (default: from config)")
	ingestCmd.Flags().Bool("strict", false, "fail on the first bad row instead of skipping")
	ingestCmd.Flags().String("shapefile", "", "also export the layer as a point shapefile at this path")
	ingestCmd.Flags().Int("concurrency", 0, "parallel source loads (default: 3)")
	_ = ingestCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(ingestCmd)
}

// ingestOptions assembles pipeline options from flags with config values
// as fallbacks.
func ingestOptions(cmd *cobra.Command) (pipeline.Options, error) {
	files, _ := cmd.Flags().GetString("files")
	out, _ := cmd.Flags().GetString("out")
	layer, _ := cmd.Flags().GetString("layer")
	class, _ := cmd.Flags().GetString("class")
	crs, _ := cmd.Flags().GetString("crs")
	encoding, _ := cmd.Flags().GetString("encoding")
	onConflict, _ := cmd.Flags().GetString("on-conflict")
	strict, _ := cmd.Flags().GetBool("strict")
	shp, _ := cmd.Flags().GetString("shapefile")
	concurrency, _ := cmd.Flags().GetInt("concurrency")

	if layer == "" {
		layer = cfg.Ingest.Layer
	}
	if class == "" {
		class = cfg.Ingest.FeatureClass
	}
	if crs == "" {
		crs = cfg.Ingest.CRS
	}
	if encoding == "" {
		encoding = cfg.Ingest.Encoding
	}
	if onConflict == "" {
		onConflict = cfg.Ingest.OnConflict
	}
	if !cmd.Flags().Changed("strict") {
		strict = cfg.Ingest.Strict
	}

	policy, err := gpkg.ParsePolicy(onConflict)
	if err != nil {
		return pipeline.Options{}, err
	}

	opts := pipeline.Options{
		Output:        out,
		Layer:         layer,
		FeatureClass:  strings.ToUpper(strings.TrimSpace(class)),
		CRS:           crs,
		Encoding:      encoding,
		Policy:        policy,
		Strict:        strict,
		Concurrency:   concurrency,
		ShapefilePath: shp,
	}
	if files != "" {
		opts.Sources = splitAndTrim(files)
	}

	return opts, nil
}

// resolveSources maps country codes to dump paths under dataDir,
// optionally downloading missing dumps first.
func resolveSources(ctx context.Context, countries []string, dataDir string, doFetch bool) ([]string, error) {
	var client *geonames.Client
	if doFetch {
		client = geonames.NewClient(cfg.GeoNames.BaseURL, time.Duration(cfg.GeoNames.RateMs)*time.Millisecond)
	}

	sources := make([]string, 0, len(countries))
	for _, cc := range countries {
		path := filepath.Join(dataDir, cc+".txt")
		if _, err := os.Stat(path); err != nil {
			if !doFetch {
				return nil, eris.Errorf("ingest: dump for %s not found at %s (run fetch, or pass --fetch)", cc, path)
			}
			fetched, err := client.Fetch(ctx, cc, dataDir)
			if err != nil {
				return nil, eris.Wrapf(err, "ingest: fetch %s", cc)
			}
			path = fetched
		}
		sources = append(sources, path)
	}

	return sources, nil
}
