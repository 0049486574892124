package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"rawbench/internal/completion"
	"rawbench/internal/config"
	"rawbench/internal/datasets"
	"rawbench/internal/fetch"
	"rawbench/internal/ledger"
	"rawbench/internal/logging"
	"rawbench/internal/manifest"
	"rawbench/internal/services"
)

// LockName is the lock file created in the test data directory during a run.
const LockName = ".rawbench.lock"

// Options control one run.
type Options struct {
	// TempRoot overrides the configured temp directory.
	TempRoot string
	// RetainTemp keeps raw archives and clones after a successful job.
	RetainTemp bool
	// Workers bounds how many jobs run at once. Values below 1 mean 1.
	Workers int
}

// OptionsFromConfig returns the run options the config describes.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		TempRoot:   cfg.Paths.TmpDir,
		RetainTemp: cfg.Fetch.RetainTemp,
		Workers:    cfg.Fetch.Workers,
	}
}

// Driver executes adapters against the canonical test data directory.
type Driver struct {
	cfg     *config.Config
	opts    Options
	fetcher datasets.Fetcher
	ledger  *ledger.Store
	logger  *slog.Logger
}

// Option customizes a Driver.
type Option func(*Driver)

// WithFetcher replaces the fetcher built from config.
func WithFetcher(f datasets.Fetcher) Option {
	return func(d *Driver) {
		if f != nil {
			d.fetcher = f
		}
	}
}

// WithLedger records every job attempt in store.
func WithLedger(store *ledger.Store) Option {
	return func(d *Driver) {
		d.ledger = store
	}
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// New constructs a driver for cfg.
func New(cfg *config.Config, opts Options, options ...Option) (*Driver, error) {
	if cfg == nil {
		return nil, errors.New("pipeline requires config")
	}
	if strings.TrimSpace(opts.TempRoot) == "" {
		opts.TempRoot = cfg.Paths.TmpDir
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	d := &Driver{
		cfg:    cfg,
		opts:   opts,
		logger: logging.NewNop(),
	}
	for _, opt := range options {
		opt(d)
	}
	d.logger = logging.NewComponentLogger(d.logger, "pipeline")
	if d.fetcher == nil {
		d.fetcher = fetch.NewFromConfig(cfg, d.logger)
	}
	return d, nil
}

// Run executes the pending adapters of registry in order. It returns the
// first job error; jobs after it are not started.
func (d *Driver) Run(ctx context.Context, registry []datasets.Adapter) error {
	root := d.cfg.Paths.TestDataDir
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("create test data directory: %w", err)
	}
	lockPath := filepath.Join(root, LockName)
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return services.Wrap(services.ErrConfiguration, "", "lock", "another rawbench run is using "+root, nil)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			d.logger.Warn("failed to release run lock", logging.Error(err))
		}
	}()

	runID := uuid.NewString()
	ctx = services.WithRunID(ctx, runID)
	logger := logging.WithContext(ctx, d.logger)
	d.closeStaleAttempts(ctx, logger)

	var pending []datasets.Adapter
	needsManifest := false
	for _, a := range registry {
		if completion.IsDone(d.targetDir(a)) {
			logger.Info("dataset already complete, skipping",
				logging.String(logging.FieldDataset, a.Name()),
			)
			d.recordSkip(ctx, runID, a.Name(), logger)
			continue
		}
		pending = append(pending, a)
		needsManifest = needsManifest || a.UsesManifest()
	}
	if len(pending) == 0 {
		logger.Info("nothing to do", logging.Int("datasets", len(registry)))
		return nil
	}

	var table *manifest.Table
	if needsManifest {
		table, err = manifest.Load(d.cfg.ManifestPath())
		if err != nil {
			return err
		}
		logger.Info("manifest loaded",
			logging.String("path", table.Path()),
			logging.Int("entries", table.Len()),
		)
	}
	if err := os.MkdirAll(d.opts.TempRoot, 0o755); err != nil {
		return fmt.Errorf("create temp root: %w", err)
	}

	logger.Info("run started",
		logging.Int("pending", len(pending)),
		logging.Int("workers", d.opts.Workers),
		logging.Bool("retain_temp", d.opts.RetainTemp),
	)
	started := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Workers)
	for _, a := range pending {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return d.runJob(gctx, runID, a, table)
		})
	}
	if err := g.Wait(); err != nil {
		logging.ErrorWithContext(logger, "run aborted", "run_failed",
			logging.Error(err),
			logging.String("error_kind", services.Kind(err)),
			logging.String(logging.FieldErrorHint, "fix the failing dataset and rerun; completed datasets are skipped"),
		)
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	logger.Info("run finished",
		logging.Int("acquired", len(pending)),
		logging.Duration("elapsed", time.Since(started)),
	)
	return nil
}

func (d *Driver) runJob(ctx context.Context, runID string, a datasets.Adapter, table *manifest.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name := a.Name()
	ctx = services.WithDataset(ctx, name)
	logger := logging.WithContext(ctx, logging.NewComponentLogger(d.logger, "datasets"))

	attempt := d.recordBegin(ctx, runID, name, logger)
	session := &datasets.Session{
		Dataset:    name,
		TargetDir:  d.targetDir(a),
		TempRoot:   d.opts.TempRoot,
		RetainTemp: d.opts.RetainTemp,
		Manifest:   table,
		Fetcher:    d.fetcher,
		Logger:     logger,
	}

	logger.Info("dataset acquisition started", logging.String("target_dir", session.TargetDir))
	started := time.Now()
	err := datasets.Execute(ctx, a, session)
	if err == nil {
		err = completion.MarkDone(session.TargetDir)
	}

	status := ledger.StatusDone
	switch {
	case err == nil:
		logger.Info("dataset acquired", logging.Duration("elapsed", time.Since(started)))
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		status = ledger.StatusInterrupted
		if derr := session.DiscardWorkspace(); derr != nil {
			logger.Warn("failed to remove workspace of interrupted job", logging.Error(derr))
		}
		logger.Info("dataset acquisition interrupted")
	default:
		status = ledger.StatusFailed
		logging.ErrorWithContext(logger, "dataset acquisition failed", "dataset_failed",
			logging.Error(err),
			logging.String("error_kind", services.Kind(err)),
			logging.String(logging.FieldErrorHint, "temp files were kept; rerun to retry"),
		)
	}
	d.recordFinish(ctx, attempt, status, err, logger)
	return err
}

func (d *Driver) targetDir(a datasets.Adapter) string {
	return filepath.Join(d.cfg.Paths.TestDataDir, a.Name())
}
