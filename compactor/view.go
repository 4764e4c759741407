package compactor

import "sort"

// View is a transient, read-only snapshot of one partition's files,
// built fresh at the start of each round (spec.md §3, "Partition View").
//
// Once constructed a View is never mutated; the planner only reads from it.
// Writers (the commit step, one layer up) own a fresh copy for the next
// round. This is what Design Note 9 means by "the view is a value, cheaply
// cloneable; no locks inside the planner."
type View struct {
	PartitionID int64
	ColumnCount int

	byID    map[FileID]*File
	byLevel map[Level][]*File // sorted by Before() within each level

	l0OverlapsL1 map[FileID][]FileID
	l1OverlapsL2 map[FileID][]FileID
}

// NewView builds a View from a flat file list, as fetched from the
// catalog. Files are bucketed by level and sorted by Before() (MaxL0CreatedAt,
// then ID) so downstream cluster-selection is deterministic (P6).
func NewView(partitionID int64, files []*File, columnCount int) *View {
	v := &View{
		PartitionID:  partitionID,
		ColumnCount:  columnCount,
		byID:         make(map[FileID]*File, len(files)),
		byLevel:      make(map[Level][]*File),
		l0OverlapsL1: make(map[FileID][]FileID),
		l1OverlapsL2: make(map[FileID][]FileID),
	}

	for _, f := range files {
		v.byID[f.ID] = f
		v.byLevel[f.Level] = append(v.byLevel[f.Level], f)
	}
	for level, fs := range v.byLevel {
		sorted := append([]*File(nil), fs...)
		sort.Slice(sorted, func(i, j int) bool { return Before(sorted[i], sorted[j]) })
		v.byLevel[level] = sorted
	}

	for _, l0 := range v.byLevel[L0] {
		for _, l1 := range v.byLevel[L1] {
			if l0.Overlaps(l1) {
				v.l0OverlapsL1[l0.ID] = append(v.l0OverlapsL1[l0.ID], l1.ID)
			}
		}
	}
	for _, l1 := range v.byLevel[L1] {
		for _, l2 := range v.byLevel[L2] {
			if l1.Overlaps(l2) {
				v.l1OverlapsL2[l1.ID] = append(v.l1OverlapsL2[l1.ID], l2.ID)
			}
		}
	}

	return v
}

// Files returns every file at the given level, sorted by Before().
func (v *View) Files(level Level) []*File {
	return v.byLevel[level]
}

// File looks up a single file by id; ok is false if it is not in the view.
func (v *View) File(id FileID) (*File, bool) {
	f, ok := v.byID[id]
	return f, ok
}

// Len returns the total number of files across all levels in the view.
func (v *View) Len() int {
	return len(v.byID)
}

// TotalBytes sums SizeBytes over every file at the given level.
func (v *View) TotalBytes(level Level) int64 {
	var total int64
	for _, f := range v.byLevel[level] {
		total += f.SizeBytes
	}
	return total
}

// OverlapsL1 returns the L1 files (by id) whose time range intersects the
// given L0 file.
func (v *View) OverlapsL1(l0 FileID) []FileID {
	return v.l0OverlapsL1[l0]
}

// OverlapsL2 returns the L2 files (by id) whose time range intersects the
// given L1 file.
func (v *View) OverlapsL2(l1 FileID) []FileID {
	return v.l1OverlapsL2[l1]
}

// resolve maps a slice of ids back to *File, in the view's own sort order,
// skipping any id the view doesn't (no longer) hold.
func (v *View) resolve(ids []FileID) []*File {
	out := make([]*File, 0, len(ids))
	for _, id := range ids {
		if f, ok := v.byID[id]; ok {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return Before(out[i], out[j]) })
	return out
}
