package driver

import (
	"context"

	"github.com/miretskiy/tiercompactor/catalog"
)

// PartitionSource names which catalog query the driver uses to build the
// round's worklist (spec.md §6.2).
type PartitionSource int

const (
	// SourceRecentWrites selects only partitions that received a new L0 file
	// since the last successful poll watermark. The common steady-state mode.
	SourceRecentWrites PartitionSource = iota
	// SourceAll selects every partition known to the catalog, for periodic
	// full sweeps that catch partitions recent_writes might miss.
	SourceAll
	// SourceFixed selects a caller-supplied, static partition id list, for
	// the one-shot backfill command.
	SourceFixed
)

// ShardFilter selects files by ShardAssignment: a file belongs to this shard
// iff file.ShardAssignment % shardCount == shardIndex. The driver applies it
// to each partition's file list before planning (runRound); the partition
// worklist itself is not filtered. Horizontal scaling runs one process per
// shard index.
type ShardFilter struct {
	ShardIndex uint64
	ShardCount uint64
}

// Includes reports whether shardAssignment belongs to this shard. A
// ShardCount of 0 (or 1) disables sharding: every partition is included.
func (f ShardFilter) Includes(shardAssignment uint64) bool {
	if f.ShardCount <= 1 {
		return true
	}
	return shardAssignment%f.ShardCount == f.ShardIndex
}

// resolvePartitions returns the worklist for one driver loop iteration,
// according to source.
func resolvePartitions(ctx context.Context, cat catalog.Catalog, source PartitionSource, sinceNanos int64, fixed []int64) ([]int64, error) {
	switch source {
	case SourceAll:
		return cat.AllPartitions(ctx)
	case SourceFixed:
		return fixed, nil
	default:
		return cat.RecentWritePartitions(ctx, sinceNanos)
	}
}
