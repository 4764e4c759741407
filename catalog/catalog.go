// Package catalog defines the metadata store the driver commits compaction
// rounds against: the authoritative list of live files per partition, plus
// the atomic commit operation that makes a round's output visible.
package catalog

import (
	"context"

	"github.com/miretskiy/tiercompactor/compactor"
)

// FileSpec describes a new file to be created as part of a commit. It mirrors
// compactor.File but omits ID (assigned by the catalog) and carries the
// object-store path the executor already wrote to.
type FileSpec struct {
	Level           compactor.Level
	MinTime         int64
	MaxTime         int64
	SizeBytes       int64
	MaxL0CreatedAt  int64
	ShardAssignment uint64
	ObjectPath      string
}

// PartitionFiles is the catalog's answer to "what does this partition look
// like right now": the live file set plus the schema's current column count,
// together forming the raw material for compactor.NewView.
type PartitionFiles struct {
	PartitionID int64
	ColumnCount int
	Files       []*compactor.File
}

// CommitRequest is one atomic transaction (spec.md §5, "Commit Transaction"):
// soft-delete Deletes, create Creates, all contingent on every id in Deletes
// still being live (optimistic concurrency).
type CommitRequest struct {
	PartitionID int64
	Deletes     []compactor.FileID
	Creates     []FileSpec
}

// CommitResult reports the ids assigned to newly created files, in the same
// order as CommitRequest.Creates.
type CommitResult struct {
	Created []compactor.FileID
}

// Catalog is the metadata store contract the driver depends on.
// Implementations must make Commit atomic: either every delete and
// every create lands, or none do.
type Catalog interface {
	// PartitionFiles returns the current live file set for partitionID.
	PartitionFiles(ctx context.Context, partitionID int64) (PartitionFiles, error)

	// RecentWritePartitions returns the ids of partitions that received a new
	// L0 file since the given watermark (nanoseconds), for the
	// recent_writes partition source (spec.md §6.2).
	RecentWritePartitions(ctx context.Context, sinceNanos int64) ([]int64, error)

	// AllPartitions returns every partition id known to the catalog, for the
	// all partition source.
	AllPartitions(ctx context.Context) ([]int64, error)

	// Commit applies req atomically. If any id in req.Deletes is no longer
	// live (already deleted by a concurrent committer), Commit returns
	// ErrConflict and applies nothing.
	Commit(ctx context.Context, req CommitRequest) (CommitResult, error)

	// SkipMark permanently excludes partitionID from future planning rounds,
	// used when the planner returns an Abort action (spec.md §4.2.1 step 2).
	SkipMark(ctx context.Context, partitionID int64, reason string) error

	// IsSkipMarked reports whether partitionID has been skip-marked.
	IsSkipMarked(ctx context.Context, partitionID int64) (bool, error)
}

// ErrConflict is returned by Commit when the optimistic concurrency check
// fails: one or more input files were already deleted by another committer.
var ErrConflict = commitConflictError{}

type commitConflictError struct{}

func (commitConflictError) Error() string { return "catalog: commit conflict: stale input files" }
