package driver

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/miretskiy/tiercompactor/catalog/memstore"
	"github.com/miretskiy/tiercompactor/compactor"
	"github.com/miretskiy/tiercompactor/executor"
	objstore "github.com/miretskiy/tiercompactor/objectstore/memstore"
)

// passthroughExecutor turns every input into exactly one output per split
// segment, with made-up but internally consistent time ranges, enough to
// drive the commit path without a real merge implementation.
type passthroughExecutor struct {
	store *objstore.Store
}

func (e *passthroughExecutor) Run(ctx context.Context, req executor.Request) (executor.Result, error) {
	var minTime, maxTime, total int64
	minTime = req.Inputs[0].MinTime
	for _, in := range req.Inputs {
		if in.MinTime < minTime {
			minTime = in.MinTime
		}
		if in.MaxTime > maxTime {
			maxTime = in.MaxTime
		}
		total += in.SizeBytes
	}

	path := "out/merged"
	_ = e.store.Put(ctx, path, bytes.NewReader(make([]byte, total)))

	return executor.Result{Outputs: []executor.OutputFile{
		{ObjectPath: path, MinTime: minTime, MaxTime: maxTime, SizeBytes: total, MaxL0CreatedAt: maxTime},
	}}, nil
}

func newTestDriver(t *testing.T, cat *memstore.Store, exec executor.Executor, cfg Config) *Driver {
	t.Helper()
	reg := prometheus.NewRegistry()
	return New(cat, exec, cfg, NewMetrics(reg), log.NewNopLogger())
}

func TestRunOnceCommitsACompactAndSplitRound(t *testing.T) {
	ctx := context.Background()
	cat := memstore.New()
	cat.Seed(1, 10, []*compactor.File{
		{ID: 1, Level: compactor.L0, MinTime: 0, MaxTime: 10, SizeBytes: 1 << 20, MaxL0CreatedAt: 1},
	})

	objStore := objstore.New()
	exec := &passthroughExecutor{store: objStore}

	cfg := Config{
		Compactor:             compactor.DefaultConfig(),
		Source:                SourceFixed,
		Fixed:                 []int64{1},
		PartitionConcurrency:  1,
		PartitionTimeout:      time.Second,
		ProcessOnce:           true,
	}
	cfg.Compactor.MinNumL1FilesToCompact = 1

	d := newTestDriver(t, cat, exec, cfg)
	if err := d.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	pf, err := cat.PartitionFiles(ctx, 1)
	if err != nil {
		t.Fatalf("PartitionFiles() error = %v", err)
	}
	if len(pf.Files) != 1 {
		t.Fatalf("live files = %d, want 1 (old L0 replaced)", len(pf.Files))
	}
	// With MinNumL1FilesToCompact = 1 the fixpoint loop in RunOnce compacts
	// the L0 file to L1 and then promotes that lone L1 file on to L2.
	if pf.Files[0].Level != compactor.L2 {
		t.Errorf("surviving file level = %v, want L2", pf.Files[0].Level)
	}
}

func TestRunOnceNoopLeavesCatalogUntouched(t *testing.T) {
	ctx := context.Background()
	cat := memstore.New()
	cat.Seed(1, 10, []*compactor.File{
		{ID: 1, Level: compactor.L0, MinTime: 0, MaxTime: 10, SizeBytes: 1 << 20, MaxL0CreatedAt: 1},
	})

	cfg := Config{
		Compactor:            compactor.DefaultConfig(),
		Source:               SourceFixed,
		Fixed:                []int64{1},
		PartitionConcurrency: 1,
		PartitionTimeout:     time.Second,
		ProcessOnce:          true,
	}
	// Default MinNumL1FilesToCompact (10) keeps a single L0 file from
	// triggering any action.
	d := newTestDriver(t, cat, &passthroughExecutor{store: objstore.New()}, cfg)

	if err := d.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	pf, _ := cat.PartitionFiles(ctx, 1)
	if len(pf.Files) != 1 || pf.Files[0].ID != 1 {
		t.Fatalf("expected the original file untouched, got %+v", pf.Files)
	}
}

func TestRunOnceShadowModeNeverCommits(t *testing.T) {
	ctx := context.Background()
	cat := memstore.New()
	cat.Seed(1, 10, []*compactor.File{
		{ID: 1, Level: compactor.L0, MinTime: 0, MaxTime: 10, SizeBytes: 1 << 20, MaxL0CreatedAt: 1},
	})

	cfg := Config{
		Compactor:            compactor.DefaultConfig(),
		Source:               SourceFixed,
		Fixed:                []int64{1},
		PartitionConcurrency: 1,
		PartitionTimeout:     time.Second,
		ProcessOnce:          true,
		ShadowMode:           true,
	}
	cfg.Compactor.MinNumL1FilesToCompact = 1

	d := newTestDriver(t, cat, &passthroughExecutor{store: objstore.New()}, cfg)
	if err := d.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	pf, _ := cat.PartitionFiles(ctx, 1)
	if len(pf.Files) != 1 || pf.Files[0].Level != compactor.L0 {
		t.Fatalf("shadow mode must not commit, got %+v", pf.Files)
	}
}

func TestShardFilterIncludes(t *testing.T) {
	f := ShardFilter{ShardIndex: 1, ShardCount: 3}
	if !f.Includes(1) || !f.Includes(4) {
		t.Error("expected shard assignments 1 and 4 to map to shard 1")
	}
	if f.Includes(0) || f.Includes(2) {
		t.Error("expected shard assignments 0 and 2 to be excluded from shard 1")
	}

	disabled := ShardFilter{}
	if !disabled.Includes(12345) {
		t.Error("zero-value ShardFilter should include everything")
	}
}
