package executor

import (
	"bytes"
	"context"
	"io"
	"sort"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/miretskiy/tiercompactor/compactor"
	"github.com/miretskiy/tiercompactor/objectstore"
)

// PathNamer assigns an object-store path to one output segment. Implementations
// typically derive it from partition id, target level, and a counter or uuid;
// this package is agnostic to the naming scheme.
type PathNamer interface {
	OutputPath(partitionID int64, targetLevel compactor.Level, segment int) string
}

// PathNamerFunc adapts a plain function to the PathNamer interface.
type PathNamerFunc func(partitionID int64, targetLevel compactor.Level, segment int) string

// OutputPath implements PathNamer.
func (f PathNamerFunc) OutputPath(partitionID int64, targetLevel compactor.Level, segment int) string {
	return f(partitionID, targetLevel, segment)
}

// RowMerger performs the actual columnar read-merge-write. It is separated
// from Adapter so tests can supply a fake that just concatenates bytes and
// measures ranges without needing a real columnar format.
type RowMerger interface {
	// Merge reads every input (already opened) and writes one output per
	// split boundary (len(splitTimes)+1 segments) to the writers in order.
	// It returns, per output segment, the actual [minTime, maxTime] and byte
	// size written, which may differ from a naive even split once real row
	// data is considered.
	Merge(ctx context.Context, inputs []io.Reader, splitTimes []int64, outputs []io.Writer) ([]MergeSegment, error)
}

// MergeSegment describes one output segment as actually written.
type MergeSegment struct {
	MinTime   int64
	MaxTime   int64
	SizeBytes int64
}

// Adapter is the concrete Executor wired into the driver: it re-enforces the
// planner's own max_num_files_per_plan guard rail defensively rather than
// trusting the plan, reads every input from an objectstore.ObjectStore,
// hands them to a RowMerger for the actual merge-sort-split, and writes one
// output object per segment, stamping MaxL0CreatedAt forward (spec.md §4.3).
type Adapter struct {
	Store  objectstore.ObjectStore
	Namer  PathNamer
	Merger RowMerger
	Cfg    compactor.Config

	// JobConcurrency bounds how many inputs are fetched from the object
	// store concurrently within one Run call (spec.md §6.1's
	// job_concurrency). <= 1 reads sequentially.
	JobConcurrency int
}

// Run implements the Executor interface.
func (a *Adapter) Run(ctx context.Context, req Request) (Result, error) {
	if len(req.Inputs) == 0 {
		return Result{}, compactor.Classify(compactor.KindPlannerInvariant, errors.New("executor: empty input set"))
	}
	if len(req.Inputs) > a.Cfg.MaxNumFilesPerPlan {
		return Result{}, compactor.Classify(compactor.KindResourceExhausted,
			errors.Errorf("executor: %d inputs exceeds max_num_files_per_plan %d", len(req.Inputs), a.Cfg.MaxNumFilesPerPlan))
	}

	sortedInputs := append([]InputFile(nil), req.Inputs...)
	sort.Slice(sortedInputs, func(i, j int) bool { return sortedInputs[i].MinTime < sortedInputs[j].MinTime })

	readers, err := a.fetchInputs(ctx, sortedInputs)
	if err != nil {
		return Result{}, err
	}

	numSegments := len(req.SplitTimes) + 1
	writers := make([]io.Writer, numSegments)
	buffers := make([]*pipeBuffer, numSegments)
	paths := make([]string, numSegments)
	for i := 0; i < numSegments; i++ {
		buf := newPipeBuffer()
		buffers[i] = buf
		writers[i] = buf
		paths[i] = a.Namer.OutputPath(req.PartitionID, req.TargetLevel, i)
	}

	segments, err := a.Merger.Merge(ctx, readers, req.SplitTimes, writers)
	if err != nil {
		return Result{}, compactor.Classify(compactor.KindTransient, errors.Wrap(err, "executor: merge failed"))
	}
	if len(segments) != numSegments {
		return Result{}, compactor.Classify(compactor.KindPlannerInvariant,
			errors.Errorf("executor: merger produced %d segments, expected %d", len(segments), numSegments))
	}

	maxL0CreatedAt := maxL0CreatedAtOf(req.Inputs)

	outputs := make([]OutputFile, 0, numSegments)
	for i, seg := range segments {
		if err := a.Store.Put(ctx, paths[i], buffers[i]); err != nil {
			return Result{}, classifyObjectStoreErr("put output", paths[i], err)
		}
		outputs = append(outputs, OutputFile{
			ObjectPath:     paths[i],
			MinTime:        seg.MinTime,
			MaxTime:        seg.MaxTime,
			SizeBytes:      seg.SizeBytes,
			MaxL0CreatedAt: maxL0CreatedAt,
		})
	}

	return Result{Outputs: outputs}, nil
}

// fetchInputs reads every input fully into memory, up to JobConcurrency at a
// time, and returns one io.Reader per input in the same order as inputs.
// Reading eagerly (rather than streaming through RowMerger) keeps ordering
// deterministic regardless of which fetch completes first.
func (a *Adapter) fetchInputs(ctx context.Context, inputs []InputFile) ([]io.Reader, error) {
	concurrency := a.JobConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	sem := semaphore.NewWeighted(int64(concurrency))

	buffers := make([][]byte, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	for i, in := range inputs {
		i, in := i, in
		if err := sem.Acquire(gctx, 1); err != nil {
			return nil, compactor.Classify(compactor.KindTransient, err)
		}
		g.Go(func() error {
			defer sem.Release(1)
			rc, err := a.Store.Get(gctx, in.ObjectPath)
			if err != nil {
				return classifyObjectStoreErr("get input", in.ObjectPath, err)
			}
			defer rc.Close()
			data, err := io.ReadAll(rc)
			if err != nil {
				return classifyObjectStoreErr("read input", in.ObjectPath, err)
			}
			buffers[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	readers := make([]io.Reader, len(buffers))
	for i, b := range buffers {
		readers[i] = bytes.NewReader(b)
	}
	return readers, nil
}

// maxL0CreatedAtOf threads the ingest stamp forward: the max over every
// input's own MaxL0CreatedAt, regardless of level.
func maxL0CreatedAtOf(inputs []InputFile) int64 {
	var max int64
	for _, in := range inputs {
		if in.MaxL0CreatedAt > max {
			max = in.MaxL0CreatedAt
		}
	}
	return max
}

func classifyObjectStoreErr(op, path string, err error) error {
	switch {
	case errors.Is(err, objectstore.ErrNotFound):
		return compactor.Classify(compactor.KindPlannerInvariant, errors.Wrapf(err, "%s %s", op, path))
	case errors.Is(err, objectstore.ErrTransient):
		return compactor.Classify(compactor.KindTransient, errors.Wrapf(err, "%s %s", op, path))
	case errors.Is(err, objectstore.ErrPermission):
		return compactor.Classify(compactor.KindSchemaViolation, errors.Wrapf(err, "%s %s", op, path))
	default:
		return compactor.Classify(compactor.KindTransient, errors.Wrapf(err, "%s %s", op, path))
	}
}

// pipeBuffer is a minimal in-memory io.Writer+io.Reader used to shuttle
// merged bytes from RowMerger to the object store without a real pipe.
type pipeBuffer struct {
	data []byte
}

func newPipeBuffer() *pipeBuffer { return &pipeBuffer{} }

func (b *pipeBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}

func (b *pipeBuffer) Read(p []byte) (int, error) {
	if len(b.data) == 0 {
		return 0, io.EOF
	}
	n := copy(p, b.data)
	b.data = b.data[n:]
	return n, nil
}
