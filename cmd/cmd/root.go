// Package cmd defines the newsminer command surface: one root command
// whose flags select which pipeline phases run.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/daijiong1977/news-sub002/internal/config"
	"github.com/daijiong1977/news-sub002/internal/logger"
	"github.com/daijiong1977/news-sub002/internal/pipeline"
	"github.com/daijiong1977/news-sub002/internal/store"
)

var (
	cfgFile string
	verbose bool

	flagFull     bool
	flagPurge    bool
	flagMine     bool
	flagImages   bool
	flagDeepSeek bool
	flagVerify   bool
	flagDryRun   bool

	flagArticlesPerSeed int
)

var rootCmd = &cobra.Command{
	Use:   "newsminer",
	Short: "Mine, illustrate, and enrich news articles for graded readers",
	Long: `newsminer drives a four-stage pipeline over a shared SQLite database:

  mine      crawl the enabled RSS feeds, clean article pages, store
            accepted articles with their lead image
  images    produce the web and mobile renditions for stored images
  deepseek  enrich unprocessed articles through the DeepSeek API
  verify    check the database and file tree against the pipeline's
            consistency guarantees

Phases are selected by flag and always run in the order above. --full
selects mine, images, deepseek, and verify; --purge must be requested
explicitly and runs first when combined with other phases.

Example:
  newsminer --full
  newsminer --mine --articles-per-seed 3
  newsminer --purge --dry-run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
	SilenceUsage: true,
}

// ExecuteContext runs the root command under the given context. Phase
// failures exit nonzero after the results file is written.
func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./.newsminer.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.Flags().BoolVar(&flagFull, "full", false, "run mine, images, deepseek, and verify")
	rootCmd.Flags().BoolVar(&flagPurge, "purge", false, "delete pipeline data and generated files before other phases")
	rootCmd.Flags().BoolVar(&flagMine, "mine", false, "run the feed mining phase")
	rootCmd.Flags().BoolVar(&flagImages, "images", false, "run the image rendition phase")
	rootCmd.Flags().BoolVar(&flagDeepSeek, "deepseek", false, "run the enrichment phase")
	rootCmd.Flags().BoolVar(&flagVerify, "verify", false, "run the consistency check phase")
	rootCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "report the phases that would run without executing them")
	rootCmd.Flags().IntVar(&flagArticlesPerSeed, "articles-per-seed", 0, "override the per-feed article target")
}

func run(ctx context.Context) error {
	logger.Init()
	logger.SetVerbose(verbose)

	opts := pipeline.Options{
		Purge:           flagPurge,
		Mine:            flagMine || flagFull,
		Images:          flagImages || flagFull,
		DeepSeek:        flagDeepSeek || flagFull,
		Verify:          flagVerify || flagFull,
		DryRun:          flagDryRun,
		ArticlesPerSeed: flagArticlesPerSeed,
	}
	if len(opts.Phases()) == 0 {
		return fmt.Errorf("no phases selected; use --full or one of --purge --mine --images --deepseek --verify")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Data.DBPath, cfg.Data.SchemaFile, cfg.Data.SeedFile)
	if err != nil {
		return err
	}
	defer st.Close()

	results, err := pipeline.New(st, cfg).Run(ctx, opts)
	if results.ResultsFile != "" {
		logger.Info("results written", "path", results.ResultsFile)
	}
	return err
}
