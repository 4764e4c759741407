// Package driver runs the compaction loop: pick partitions, plan, execute,
// commit, repeat (spec.md §6, "Driver Loop").
package driver

import (
	"context"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/miretskiy/tiercompactor/catalog"
	"github.com/miretskiy/tiercompactor/compactor"
	"github.com/miretskiy/tiercompactor/executor"
)

// Config holds the driver loop's own knobs, layered on top of compactor.Config
// (spec.md §6.1-§6.2).
type Config struct {
	Compactor compactor.Config

	Source PartitionSource
	Fixed  []int64
	Shard  ShardFilter

	// PartitionConcurrency bounds how many partitions run their
	// plan-execute-commit cycle at once.
	PartitionConcurrency int

	// JobConcurrency is not read by the driver loop itself; it exists so
	// callers can size the Executor's own internal fan-out (e.g.
	// executor.Adapter.JobConcurrency) from the same configuration surface
	// as PartitionConcurrency.
	JobConcurrency int

	PartitionTimeout time.Duration

	// ShadowMode runs planning and logs the chosen Action without ever
	// calling Commit, for dry-run validation against production data.
	ShadowMode bool

	// ProcessOnce runs exactly one pass over the worklist and returns,
	// instead of looping until ctx is canceled. Used by the backfill command.
	ProcessOnce bool

	PollInterval time.Duration
}

// Driver wires a Catalog, an Executor, and a Config into the runnable
// compaction loop.
type Driver struct {
	Catalog  catalog.Catalog
	Executor executor.Executor
	Cfg      Config
	Metrics  *Metrics
	Logger   log.Logger

	breakers  *BreakerSet
	watermark int64
}

// New builds a Driver. logger and metrics must not be nil; pass
// log.NewNopLogger() and driver.NewMetrics(prometheus.NewRegistry()) in tests.
func New(cat catalog.Catalog, exec executor.Executor, cfg Config, metrics *Metrics, logger log.Logger) *Driver {
	d := &Driver{
		Catalog:  cat,
		Executor: exec,
		Cfg:      cfg,
		Metrics:  metrics,
		Logger:   logger,
	}
	d.breakers = NewBreakerSet(func(name string, from, to gobreaker.State) {
		level.Warn(d.Logger).Log("msg", "circuit breaker state change", "breaker", name, "from", from, "to", to)
		d.Metrics.breakerState.Set(breakerStateValue(to))
	})
	return d
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 2
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 0
	}
}

// Run executes the driver loop until ctx is canceled, or once if
// Cfg.ProcessOnce is set.
func (d *Driver) Run(ctx context.Context) error {
	for {
		if err := d.RunOnce(ctx); err != nil {
			level.Error(d.Logger).Log("msg", "round failed", "err", err)
		}
		if d.Cfg.ProcessOnce {
			return nil
		}

		interval := d.Cfg.PollInterval
		if interval <= 0 {
			interval = 10 * time.Second
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// RunOnce resolves the worklist and processes every partition in it, up to
// PartitionConcurrency at a time. A single partition's failure never aborts
// the others; errors are logged and counted, not propagated.
func (d *Driver) RunOnce(ctx context.Context) error {
	since := d.watermark
	d.watermark = time.Now().UnixNano()

	partitionIDs, err := resolvePartitions(ctx, d.Catalog, d.Cfg.Source, since, d.Cfg.Fixed)
	if err != nil {
		return errors.Wrap(err, "driver: resolve partitions")
	}

	concurrency := d.Cfg.PartitionConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	sem := semaphore.NewWeighted(int64(concurrency))

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range partitionIDs {
		id := id
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			d.processPartition(gctx, id)
			return nil
		})
	}
	return g.Wait()
}

// processPartition drives one partition to its fixpoint under
// PartitionTimeout and the partition's own circuit breaker: runRound is
// repeated until the planner reports Noop (spec.md §2, "the loop repeats on
// that partition until the planner reports Noop"; §4.5's Committing ->
// Planning edge). Errors that reach it are logged and reflected in Metrics;
// they are never returned, so one bad partition cannot abort the round for
// its siblings. Resource-exhausted, concurrency-conflict and schema-violation
// errors do not reach it: BreakerSet.Execute returns nil for them, so such a
// cycle is recorded as a success.
func (d *Driver) processPartition(ctx context.Context, partitionID int64) {
	timeout := d.Cfg.PartitionTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	err := d.breakers.Execute(partitionID, func() error {
		return retryTransient(pctx, func() error {
			return d.runToFixpoint(pctx, partitionID)
		})
	})

	d.Metrics.partitionDurationSeconds.Observe(time.Since(start).Seconds())

	if err != nil {
		if classified, ok := err.(*compactor.ClassifiedError); ok {
			d.Metrics.roundsFailed.WithLabelValues(classified.Kind.String()).Inc()
		} else {
			d.Metrics.roundsFailed.WithLabelValues("unclassified").Inc()
		}
		level.Error(d.Logger).Log("msg", "partition round failed", "partition", partitionID, "err", err)
		return
	}

	d.Metrics.lastSuccessUnixSeconds.Set(float64(time.Now().Unix()))
}

// runToFixpoint calls runRound repeatedly until a round reports it made no
// progress (Noop, Abort, or a shadow-mode round that cannot commit), or ctx
// is done. Each committed CompactAndSplit round can only shrink or promote
// the partition's file set (P7, termination property), so this always
// reaches a fixpoint before PartitionTimeout fires in practice; the ctx
// check is the backstop if it somehow didn't.
func (d *Driver) runToFixpoint(ctx context.Context, partitionID int64) error {
	for {
		progressed, err := d.runRound(ctx, partitionID)
		if err != nil {
			return err
		}
		if !progressed {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return compactor.Classify(compactor.KindTransient, err)
		}
	}
}

// runRound performs one plan-execute-commit cycle for a single partition. It
// reports progressed=true when a CompactAndSplit round actually committed,
// meaning the partition's file set changed and another round may find more
// work.
func (d *Driver) runRound(ctx context.Context, partitionID int64) (progressed bool, err error) {
	d.Metrics.roundsStarted.Inc()

	skipped, err := d.Catalog.IsSkipMarked(ctx, partitionID)
	if err != nil {
		return false, compactor.Classify(compactor.KindTransient, errors.Wrap(err, "driver: check skip mark"))
	}
	if skipped {
		return false, nil
	}

	pf, err := d.Catalog.PartitionFiles(ctx, partitionID)
	if err != nil {
		return false, compactor.Classify(compactor.KindTransient, errors.Wrap(err, "driver: fetch partition files"))
	}

	var filtered []*compactor.File
	for _, f := range pf.Files {
		if d.Cfg.Shard.Includes(f.ShardAssignment) {
			filtered = append(filtered, f)
		}
	}

	view := compactor.NewView(partitionID, filtered, pf.ColumnCount)
	action := compactor.Plan(view, d.Cfg.Compactor)

	switch action.Kind {
	case compactor.Noop:
		d.Metrics.roundsNoop.Inc()
		return false, nil

	case compactor.Abort:
		d.Metrics.roundsAborted.Inc()
		level.Warn(d.Logger).Log("msg", "partition aborted", "partition", partitionID, "reason", action.Reason)
		if d.Cfg.ShadowMode {
			return false, nil
		}
		return false, compactor.Classify(compactor.KindSchemaViolation, d.Catalog.SkipMark(ctx, partitionID, action.Reason))

	case compactor.CompactAndSplit:
		if d.Cfg.ShadowMode {
			level.Info(d.Logger).Log("msg", "shadow mode: would compact", "partition", partitionID,
				"inputs", len(action.Inputs), "target_level", action.TargetLevel, "splits", len(action.SplitTimes))
			return false, nil
		}
		if err := d.executeAndCommit(ctx, partitionID, view, action); err != nil {
			return false, err
		}
		return true, nil

	default:
		return false, nil
	}
}

// executeAndCommit runs the executor over action's inputs, then commits the
// result atomically. A commit conflict (another committer raced us) is not
// retried within this round; the round simply ends and the next poll will
// re-plan against the fresh state (spec.md §5).
func (d *Driver) executeAndCommit(ctx context.Context, partitionID int64, view *compactor.View, action compactor.Action) error {
	req := executor.Request{
		PartitionID: partitionID,
		TargetLevel: action.TargetLevel,
		SplitTimes:  action.SplitTimes,
	}
	for _, id := range action.Inputs {
		f, ok := view.File(id)
		if !ok {
			return compactor.Classify(compactor.KindPlannerInvariant, errors.Errorf("driver: planned input %d not in view", id))
		}
		req.Inputs = append(req.Inputs, executor.InputFile{
			ID:             f.ID,
			Level:          f.Level,
			ObjectPath:     f.ObjectPath,
			MinTime:        f.MinTime,
			MaxTime:        f.MaxTime,
			SizeBytes:      f.SizeBytes,
			MaxL0CreatedAt: f.MaxL0CreatedAt,
		})
	}

	result, err := d.Executor.Run(ctx, req)
	if err != nil {
		return err
	}

	creates := make([]catalog.FileSpec, 0, len(result.Outputs))
	for _, out := range result.Outputs {
		creates = append(creates, catalog.FileSpec{
			Level:          action.TargetLevel,
			MinTime:        out.MinTime,
			MaxTime:        out.MaxTime,
			SizeBytes:      out.SizeBytes,
			MaxL0CreatedAt: out.MaxL0CreatedAt,
			ObjectPath:     out.ObjectPath,
		})
	}

	_, err = d.Catalog.Commit(ctx, catalog.CommitRequest{
		PartitionID: partitionID,
		Deletes:     action.Inputs,
		Creates:     creates,
	})
	if errors.Is(err, catalog.ErrConflict) {
		return compactor.Classify(compactor.KindConcurrencyConflict, err)
	}
	if err != nil {
		return compactor.Classify(compactor.KindTransient, errors.Wrap(err, "driver: commit"))
	}

	d.Metrics.roundsCommitted.Inc()
	return nil
}
