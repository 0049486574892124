package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"rawbench/internal/config"
	"rawbench/internal/datasets"
	"rawbench/internal/fetch"
	"rawbench/internal/ledger"
	"rawbench/internal/pipeline"
)

// runFlags are the temp and concurrency flags shared by the acquisition
// commands.
type runFlags struct {
	tmpDir  string
	rmTmp   bool
	keepTmp bool
	workers int
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.tmpDir, "tmp-dir", "", "Temp root for downloads and extraction (default from config)")
	cmd.Flags().BoolVar(&f.rmTmp, "rm-tmp", false, "Remove raw archives and clones after each successful dataset")
	cmd.Flags().BoolVar(&f.keepTmp, "keep-tmp", false, "Keep raw archives and clones after each successful dataset")
	cmd.MarkFlagsMutuallyExclusive("rm-tmp", "keep-tmp")
}

func (f *runFlags) options(cmd *cobra.Command, cfg *config.Config) (pipeline.Options, error) {
	opts := pipeline.OptionsFromConfig(cfg)
	if tmp := strings.TrimSpace(f.tmpDir); tmp != "" {
		expanded, err := config.ExpandPath(tmp)
		if err != nil {
			return opts, fmt.Errorf("resolve --tmp-dir: %w", err)
		}
		opts.TempRoot = expanded
	}
	if f.rmTmp {
		opts.RetainTemp = false
	}
	if f.keepTmp {
		opts.RetainTemp = true
	}
	if cmd.Flags().Lookup("workers") != nil && cmd.Flags().Changed("workers") {
		if f.workers < 1 {
			return opts, errors.New("--workers must be at least 1")
		}
		opts.Workers = f.workers
	}
	return opts, nil
}

func newFetchCommand(ctx *commandContext) *cobra.Command {
	var flags runFlags
	var only []string

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Acquire every dataset that is not yet complete",
		Long: `Acquire every dataset that is not yet complete.

Datasets run in a fixed order. A dataset whose directory carries a completion
marker is skipped without touching the network. The first failing dataset
stops the run; datasets completed before it keep their markers, so rerunning
resumes where the failure happened.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			opts, err := flags.options(cmd, cfg)
			if err != nil {
				return err
			}
			registry, err := datasets.Filter(datasets.Registry(cfg), only)
			if err != nil {
				return err
			}
			return ctx.runPipeline(cmd, cfg, opts, registry)
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVarP(&flags.workers, "workers", "j", 1, "Datasets processed concurrently (default from config)")
	cmd.Flags().StringSliceVar(&only, "only", nil, "Restrict the run to these datasets (repeatable or comma separated)")
	return cmd
}

func newPrepareMoisesCommand(ctx *commandContext) *cobra.Command {
	var flags runFlags
	var corpusDir string

	cmd := &cobra.Command{
		Use:   "prepare-moises",
		Short: "Mix MoisesDB stems into the canonical MoisesDB dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			opts, err := flags.options(cmd, cfg)
			if err != nil {
				return err
			}
			dir, err := config.ExpandPath(strings.TrimSpace(corpusDir))
			if err != nil {
				return fmt.Errorf("resolve --moisesdb-dir: %w", err)
			}
			return ctx.runPipeline(cmd, cfg, opts, []datasets.Adapter{datasets.NewMoisesDB(dir)})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&corpusDir, "moisesdb-dir", "", "Directory holding the extracted MoisesDB corpus")
	_ = cmd.MarkFlagRequired("moisesdb-dir")
	return cmd
}

func (c *commandContext) runPipeline(cmd *cobra.Command, cfg *config.Config, opts pipeline.Options, registry []datasets.Adapter) error {
	logger, err := c.newLogger(cfg)
	if err != nil {
		return err
	}

	var fetchOpts []fetch.Option
	if cfg.Fetch.ShowProgress && opts.Workers == 1 && isTerminal(cmd.ErrOrStderr()) {
		fetchOpts = append(fetchOpts, fetch.WithProgress(cmd.ErrOrStderr()))
	}
	fetcher := fetch.NewFromConfig(cfg, logger, fetchOpts...)

	return c.withLedger(cfg, logger, func(store *ledger.Store) error {
		options := []pipeline.Option{pipeline.WithLogger(logger), pipeline.WithFetcher(fetcher)}
		if store != nil {
			options = append(options, pipeline.WithLedger(store))
		}
		driver, err := pipeline.New(cfg, opts, options...)
		if err != nil {
			return err
		}
		return driver.Run(cmd.Context(), registry)
	})
}
