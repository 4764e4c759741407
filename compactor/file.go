package compactor

import "fmt"

// Level is the compaction tier a file belongs to.
//
// L0 files are freshly ingested and may overlap arbitrarily with other L0
// files. L1 files are non-overlapping within L1. L2 files are non-overlapping
// within L2 and are the final, query-optimized tier.
type Level int

const (
	L0 Level = iota
	L1
	L2
)

func (l Level) String() string {
	switch l {
	case L0:
		return "L0"
	case L1:
		return "L1"
	case L2:
		return "L2"
	default:
		return fmt.Sprintf("L?(%d)", int(l))
	}
}

// FileID is a monotonic, partition-unique integer assigned by the catalog on
// create. It is never reused within a partition.
type FileID int64

// File is an immutable record describing one object-store-resident file.
//
// A File is read-only for its entire visible lifetime: it is created once by
// the executor/commit pair and soft-deleted, never mutated in place. Nothing
// in this package stores a back-reference from a File to its owning
// partition; that association is looked up through the catalog, never
// carried on the value itself.
type File struct {
	ID    FileID
	Level Level

	// MinTime and MaxTime are inclusive bounds, in nanoseconds.
	MinTime int64
	MaxTime int64

	// SizeBytes is the file's size on the object store. Always > 0.
	SizeBytes int64

	// MaxL0CreatedAt is the ingest stamp that flows forward through
	// compactions: for L0 it is the file's own creation time; for L1/L2 it is
	// the maximum MaxL0CreatedAt over every L0 file that was ever merged into
	// it. Used as the tie-breaker that preserves ingest order across levels.
	MaxL0CreatedAt int64

	// ShardAssignment is a stable hash used for shard filtering upstream of
	// the planner (see driver.ShardFilter); the planner itself never reads it.
	ShardAssignment uint64

	// ObjectPath is the object-store location the catalog recorded for this
	// file at create time. The planner never reads it; it exists so the
	// executor adapter can resolve a planned input back to its bytes.
	ObjectPath string
}

// Overlaps reports whether f and other's time ranges intersect, inclusive on
// both ends.
func (f *File) Overlaps(other *File) bool {
	return f.MinTime <= other.MaxTime && other.MinTime <= f.MaxTime
}

// Duration returns the file's covered time span in nanoseconds. Since
// MinTime/MaxTime are inclusive bounds, this undercounts the true span by one
// nanosecond; consistent everywhere Duration feeds a byte-density estimate
// (action.go), where one nanosecond of error is immaterial.
func (f *File) Duration() int64 {
	return f.MaxTime - f.MinTime
}

// Before orders two files for deterministic cluster selection: by
// MaxL0CreatedAt ascending, ties broken by ID ascending (spec.md §4.2.1).
func Before(a, b *File) bool {
	if a.MaxL0CreatedAt != b.MaxL0CreatedAt {
		return a.MaxL0CreatedAt < b.MaxL0CreatedAt
	}
	return a.ID < b.ID
}
