package pipeline

import (
	"context"
	"log/slog"

	"rawbench/internal/ledger"
	"rawbench/internal/logging"
)

// Ledger writes are best effort: a failing history database never aborts
// acquisition.

func (d *Driver) closeStaleAttempts(ctx context.Context, logger *slog.Logger) {
	if d.ledger == nil {
		return
	}
	n, err := d.ledger.MarkInterrupted(ctx)
	if err != nil {
		d.ledgerWarning(logger, err)
		return
	}
	if n > 0 {
		logger.Info("closed attempts left running by an earlier process", logging.Int64("attempts", n))
	}
}

func (d *Driver) recordBegin(ctx context.Context, runID, dataset string, logger *slog.Logger) int64 {
	if d.ledger == nil {
		return 0
	}
	id, err := d.ledger.Begin(ctx, runID, dataset)
	if err != nil {
		d.ledgerWarning(logger, err)
		return 0
	}
	return id
}

func (d *Driver) recordFinish(ctx context.Context, id int64, status ledger.Status, jobErr error, logger *slog.Logger) {
	if d.ledger == nil || id == 0 {
		return
	}
	if err := d.ledger.Finish(context.WithoutCancel(ctx), id, status, jobErr); err != nil {
		d.ledgerWarning(logger, err)
	}
}

func (d *Driver) recordSkip(ctx context.Context, runID, dataset string, logger *slog.Logger) {
	id := d.recordBegin(ctx, runID, dataset, logger)
	d.recordFinish(ctx, id, ledger.StatusSkipped, nil, logger)
}

func (d *Driver) ledgerWarning(logger *slog.Logger, err error) {
	logging.WarnWithContext(logger, "run ledger write failed", "ledger_write_failed",
		logging.Error(err),
		logging.String("ledger", d.ledger.Path()),
		logging.String(logging.FieldImpact, "run history will be incomplete"),
	)
}
