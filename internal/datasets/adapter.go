package datasets

import (
	"context"
	"errors"
	"fmt"

	"rawbench/internal/fetch"
	"rawbench/internal/logging"
	"rawbench/internal/services"
)

// Fetcher is the acquisition capability adapters depend on.
type Fetcher interface {
	Download(ctx context.Context, req fetch.Request) error
	Unzip(ctx context.Context, archivePath, destDir string) error
	Clone(ctx context.Context, repoURL, ref, destDir string) error
}

// MissingPolicy decides what happens when a selected source file is absent.
type MissingPolicy int

const (
	// Warn logs the absent file and continues. Used where upstream
	// completeness is not guaranteed and selection is manifest-driven.
	Warn MissingPolicy = iota
	// Fatal aborts the job. Used where the directory convention guarantees
	// the file exists.
	Fatal
)

func (p MissingPolicy) String() string {
	if p == Fatal {
		return "fatal"
	}
	return "warn"
}

// Placement moves (or copies) Src to Dst. Src is absolute; Dst is relative
// to the dataset directory.
type Placement struct {
	Src  string
	Dst  string
	Copy bool
}

// Adapter is one dataset's implementation of the acquisition contract.
type Adapter interface {
	Name() string
	// UsesManifest reports whether Select reads the manifest.
	UsesManifest() bool
	Policy() MissingPolicy
	Locate(ctx context.Context, s *Session) error
	Fetch(ctx context.Context, s *Session) error
	Extract(ctx context.Context, s *Session) error
	Select(ctx context.Context, s *Session) ([]Placement, error)
	Cleanup(ctx context.Context, s *Session) error
}

// Step names, in execution order.
const (
	StepLocate  = "locate"
	StepFetch   = "fetch"
	StepExtract = "extract"
	StepSelect  = "select"
	StepPlace   = "place"
	StepCleanup = "cleanup"
)

// Execute runs the six steps of a for the session. It stops at the first
// error. Place never starts once ctx is done, and once started it runs to
// completion so a dataset directory is never half-populated by a
// cancellation.
func Execute(ctx context.Context, a Adapter, s *Session) error {
	if a == nil || s == nil {
		return errors.New("adapter and session required")
	}
	if a.UsesManifest() && s.Manifest == nil {
		return services.Wrap(services.ErrMissingManifest, a.Name(), StepSelect, "manifest not loaded", nil)
	}
	if s.Logger == nil {
		s.Logger = logging.NewNop()
	}

	run := func(step string, fn func(context.Context) error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stepCtx := services.WithStep(ctx, step)
		s.Logger.Debug("step started", logging.String(logging.FieldStep, step))
		if err := fn(stepCtx); err != nil {
			return annotate(err, a.Name(), step)
		}
		return nil
	}

	if err := run(StepLocate, func(c context.Context) error { return a.Locate(c, s) }); err != nil {
		return err
	}
	if err := run(StepFetch, func(c context.Context) error { return a.Fetch(c, s) }); err != nil {
		return err
	}
	if err := run(StepExtract, func(c context.Context) error { return a.Extract(c, s) }); err != nil {
		return err
	}
	var placements []Placement
	if err := run(StepSelect, func(c context.Context) error {
		var err error
		placements, err = a.Select(c, s)
		return err
	}); err != nil {
		return err
	}
	if err := run(StepPlace, func(c context.Context) error {
		return s.Place(context.WithoutCancel(c), placements, a.Policy())
	}); err != nil {
		return err
	}
	return run(StepCleanup, func(c context.Context) error { return a.Cleanup(c, s) })
}

// annotate adds the dataset and step to errors not already wrapped for this
// dataset. Context errors pass through unchanged.
func annotate(err error, dataset, step string) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if services.DatasetOf(err) == dataset {
		return err
	}
	return fmt.Errorf("%s: %s: %w", dataset, step, err)
}
