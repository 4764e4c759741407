// Package executor defines the boundary between the compaction driver and
// the actual read-merge-split-write work over object-store files (spec.md
// §4.3, "Executor Adapter").
package executor

import (
	"context"

	"github.com/miretskiy/tiercompactor/compactor"
)

// InputFile is one file the executor must read, identified by the path the
// catalog recorded for it.
type InputFile struct {
	ID             compactor.FileID
	Level          compactor.Level
	ObjectPath     string
	MinTime        int64
	MaxTime        int64
	SizeBytes      int64
	MaxL0CreatedAt int64
}

// OutputFile is one file the executor produced, ready to be handed to the
// catalog's Commit as a catalog.FileSpec.
type OutputFile struct {
	ObjectPath     string
	MinTime        int64
	MaxTime        int64
	SizeBytes      int64
	MaxL0CreatedAt int64
}

// Request is the work order the driver hands to Executor.Run for one action.
type Request struct {
	PartitionID     int64
	Inputs          []InputFile
	SplitTimes      []int64
	TargetLevel     compactor.Level
	ShardAssignment uint64
}

// Result is what Executor.Run produces: one output file per split segment,
// in ascending time order.
type Result struct {
	Outputs []OutputFile
}

// Executor performs the actual compaction work: read every input, merge and
// re-sort by time, cut at SplitTimes, write one output per segment. It is the
// only component in this module that touches real bytes.
type Executor interface {
	Run(ctx context.Context, req Request) (Result, error)
}
