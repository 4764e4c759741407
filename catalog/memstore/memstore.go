// Package memstore is an in-memory reference implementation of
// catalog.Catalog, suitable for tests and for the one-shot backfill command
// running against a pre-loaded snapshot.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/miretskiy/tiercompactor/catalog"
	"github.com/miretskiy/tiercompactor/compactor"
)

type fileRecord struct {
	file      *compactor.File
	deleted   bool
	createdAt int64
}

type partitionRecord struct {
	columnCount int
	nextID      compactor.FileID
	files       map[compactor.FileID]*fileRecord
	skipped     bool
	skipReason  string
}

// Store is a mutex-guarded, process-local Catalog. All methods are safe for
// concurrent use; Commit holds the lock for the full check-then-act sequence
// so the optimistic concurrency check is actually atomic.
type Store struct {
	mu         sync.Mutex
	clock      int64 // last write stamp, wall-clock Unix nanoseconds, strictly increasing
	partitions map[int64]*partitionRecord
}

// New returns an empty Store.
func New() *Store {
	return &Store{partitions: make(map[int64]*partitionRecord)}
}

// stamp returns the current wall-clock time in Unix nanoseconds, bumped past
// the previous stamp where needed so stamps stay strictly increasing. The
// caller must hold s.mu.
func (s *Store) stamp() int64 {
	now := time.Now().UnixNano()
	if now <= s.clock {
		now = s.clock + 1
	}
	s.clock = now
	return now
}

// Seed installs a partition's initial file set directly, bypassing Commit.
// Intended for test setup and for loading a one-shot backfill snapshot; not
// part of the catalog.Catalog interface.
func (s *Store) Seed(partitionID int64, columnCount int, files []*compactor.File) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pr := s.partitionRecord(partitionID)
	pr.columnCount = columnCount
	var maxID compactor.FileID
	for _, f := range files {
		pr.files[f.ID] = &fileRecord{file: f, createdAt: s.stamp()}
		if f.ID > maxID {
			maxID = f.ID
		}
	}
	if maxID >= pr.nextID {
		pr.nextID = maxID + 1
	}
}

func (s *Store) partitionRecord(partitionID int64) *partitionRecord {
	pr, ok := s.partitions[partitionID]
	if !ok {
		pr = &partitionRecord{files: make(map[compactor.FileID]*fileRecord)}
		s.partitions[partitionID] = pr
	}
	return pr
}

// PartitionFiles implements catalog.Catalog.
func (s *Store) PartitionFiles(ctx context.Context, partitionID int64) (catalog.PartitionFiles, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pr, ok := s.partitions[partitionID]
	if !ok {
		return catalog.PartitionFiles{PartitionID: partitionID}, nil
	}

	out := catalog.PartitionFiles{
		PartitionID: partitionID,
		ColumnCount: pr.columnCount,
		Files:       make([]*compactor.File, 0, len(pr.files)),
	}
	for _, rec := range pr.files {
		if rec.deleted {
			continue
		}
		out.Files = append(out.Files, rec.file)
	}
	return out, nil
}

// RecentWritePartitions implements catalog.Catalog. A partition qualifies if
// it holds any live L0 file whose write stamp is >= sinceNanos. Write stamps
// are wall-clock Unix nanoseconds (see stamp), the same domain as the
// driver's poll watermark.
func (s *Store) RecentWritePartitions(ctx context.Context, sinceNanos int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []int64
	for id, pr := range s.partitions {
		for _, rec := range pr.files {
			if rec.deleted || rec.file.Level != compactor.L0 {
				continue
			}
			if rec.createdAt >= sinceNanos {
				out = append(out, id)
				break
			}
		}
	}
	return out, nil
}

// AllPartitions implements catalog.Catalog.
func (s *Store) AllPartitions(ctx context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]int64, 0, len(s.partitions))
	for id := range s.partitions {
		out = append(out, id)
	}
	return out, nil
}

// Commit implements catalog.Catalog. The whole check-then-act sequence runs
// under the store lock, so the optimistic concurrency check is genuinely
// atomic rather than merely advisory.
func (s *Store) Commit(ctx context.Context, req catalog.CommitRequest) (catalog.CommitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pr := s.partitionRecord(req.PartitionID)

	for _, id := range req.Deletes {
		rec, ok := pr.files[id]
		if !ok || rec.deleted {
			return catalog.CommitResult{}, catalog.ErrConflict
		}
	}

	for _, id := range req.Deletes {
		pr.files[id].deleted = true
	}

	result := catalog.CommitResult{Created: make([]compactor.FileID, 0, len(req.Creates))}
	for _, spec := range req.Creates {
		id := pr.nextID
		pr.nextID++

		pr.files[id] = &fileRecord{
			file: &compactor.File{
				ID:              id,
				Level:           spec.Level,
				MinTime:         spec.MinTime,
				MaxTime:         spec.MaxTime,
				SizeBytes:       spec.SizeBytes,
				MaxL0CreatedAt:  spec.MaxL0CreatedAt,
				ShardAssignment: spec.ShardAssignment,
				ObjectPath:      spec.ObjectPath,
			},
			createdAt: s.stamp(),
		}
		result.Created = append(result.Created, id)
	}

	return result, nil
}

// SkipMark implements catalog.Catalog.
func (s *Store) SkipMark(ctx context.Context, partitionID int64, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pr := s.partitionRecord(partitionID)
	pr.skipped = true
	pr.skipReason = reason
	return nil
}

// IsSkipMarked implements catalog.Catalog.
func (s *Store) IsSkipMarked(ctx context.Context, partitionID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pr, ok := s.partitions[partitionID]
	if !ok {
		return false, nil
	}
	return pr.skipped, nil
}
