// Command compactbackfill runs the compaction driver exactly once over a
// fixed, JSON-described snapshot of partitions and prints the resulting
// catalog state, for one-shot backfills and offline validation (spec.md
// §6.2, partition source "fixed").
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	gokitlog "github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/miretskiy/tiercompactor/catalog/memstore"
	"github.com/miretskiy/tiercompactor/compactor"
	"github.com/miretskiy/tiercompactor/driver"
	"github.com/miretskiy/tiercompactor/executor"
	objectstoremem "github.com/miretskiy/tiercompactor/objectstore/memstore"
)

// snapshotFile is the on-disk shape of -snapshot: one entry per partition,
// its schema column count, and its current live files.
type snapshotFile struct {
	Config     *compactor.Config  `json:"config,omitempty"`
	Partitions []snapshotPartition `json:"partitions"`
}

type snapshotPartition struct {
	PartitionID int64             `json:"partitionId"`
	ColumnCount int               `json:"columnCount"`
	Files       []snapshotFileRec `json:"files"`
}

type snapshotFileRec struct {
	ID              compactor.FileID `json:"id"`
	Level           compactor.Level  `json:"level"`
	MinTime         int64            `json:"minTime"`
	MaxTime         int64            `json:"maxTime"`
	SizeBytes       int64            `json:"sizeBytes"`
	MaxL0CreatedAt  int64            `json:"maxL0CreatedAt"`
	ShardAssignment uint64           `json:"shardAssignment"`
	ObjectPath      string           `json:"objectPath"`
}

func main() {
	snapshotPath := flag.String("snapshot", "", "path to a JSON partition snapshot")
	outputPath := flag.String("output", "", "path to write the resulting JSON state (stdout if empty)")
	shadowMode := flag.Bool("shadow-mode", false, "plan every round but never commit")
	verbose := flag.Bool("verbose", false, "log each round to stderr")
	flag.Parse()

	if *snapshotPath == "" {
		fmt.Fprintf(os.Stderr, "usage: %s -snapshot <snapshot.json> [-output <out.json>] [-shadow-mode] [-verbose]\n", os.Args[0])
		os.Exit(1)
	}

	data, err := os.ReadFile(*snapshotPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error reading snapshot: %v\n", err)
		os.Exit(1)
	}

	var snap snapshotFile
	if err := json.Unmarshal(data, &snap); err != nil {
		fmt.Fprintf(os.Stderr, "error parsing snapshot JSON: %v\n", err)
		os.Exit(1)
	}

	cfg := compactor.DefaultConfig()
	if snap.Config != nil {
		cfg = *snap.Config
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	cat := memstore.New()
	fixed := make([]int64, 0, len(snap.Partitions))
	for _, p := range snap.Partitions {
		files := make([]*compactor.File, 0, len(p.Files))
		for _, f := range p.Files {
			files = append(files, &compactor.File{
				ID:              f.ID,
				Level:           f.Level,
				MinTime:         f.MinTime,
				MaxTime:         f.MaxTime,
				SizeBytes:       f.SizeBytes,
				MaxL0CreatedAt:  f.MaxL0CreatedAt,
				ShardAssignment: f.ShardAssignment,
				ObjectPath:      f.ObjectPath,
			})
		}
		cat.Seed(p.PartitionID, p.ColumnCount, files)
		fixed = append(fixed, p.PartitionID)
	}

	objStore := objectstoremem.New()
	exec := &executor.Adapter{
		Store: objStore,
		Merger: executor.ConcatMerger{},
		Namer: executor.PathNamerFunc(func(partitionID int64, targetLevel compactor.Level, segment int) string {
			return fmt.Sprintf("partitions/%d/%s/backfill/%d", partitionID, targetLevel, segment)
		}),
		Cfg: cfg,
	}

	logger := gokitlog.NewNopLogger()
	if *verbose {
		logger = gokitlog.NewLogfmtLogger(gokitlog.NewSyncWriter(os.Stderr))
	}

	driverCfg := driver.Config{
		Compactor:            cfg,
		Source:               driver.SourceFixed,
		Fixed:                fixed,
		PartitionConcurrency: 1,
		PartitionTimeout:     time.Minute,
		ShadowMode:           *shadowMode,
		ProcessOnce:          true,
	}

	d := driver.New(cat, exec, driverCfg, driver.NewMetrics(prometheus.NewRegistry()), logger)

	start := time.Now()
	if err := d.Run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "driver run failed: %v\n", err)
		os.Exit(1)
	}
	elapsed := time.Since(start)

	finalState := make(map[string][]*compactor.File, len(fixed))
	for _, id := range fixed {
		pf, err := cat.PartitionFiles(context.Background(), id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error reading final state for partition %d: %v\n", id, err)
			os.Exit(1)
		}
		finalState[fmt.Sprintf("%d", id)] = pf.Files
	}
	result := map[string]interface{}{
		"elapsedSeconds": elapsed.Seconds(),
		"partitions":     finalState,
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error marshaling result: %v\n", err)
		os.Exit(1)
	}

	if *outputPath != "" {
		if err := os.WriteFile(*outputPath, out, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "error writing output: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "results written to %s\n", *outputPath)
		return
	}
	fmt.Println(string(out))
}
