package executor

import "context"
import "io"

// ConcatMerger is the default RowMerger: it concatenates every input's raw
// bytes and divides them evenly across the requested output segments. It
// does not parse or sort by time at all, so it is only correct when the
// caller's storage format is itself a sequence of pre-sorted, splittable
// byte ranges. Real deployments with a columnar on-disk format plug in their
// own RowMerger that actually decodes rows and re-partitions them by time.
//
// ConcatMerger also never learns a segment's actual time range — it has no
// way to parse one out of raw bytes — so every MergeSegment it returns
// carries MinTime/MaxTime == 0, and the driver commits that zeroed range to
// the catalog as-is (executor.Adapter.Run does not recompute it). ConcatMerger
// is therefore only usable for a round whose output time ranges are never
// read back by the planner or any other consumer; a real deployment needs a
// RowMerger that derives genuine per-segment ranges from its rows.
type ConcatMerger struct{}

// Merge implements RowMerger.
func (ConcatMerger) Merge(ctx context.Context, inputs []io.Reader, splitTimes []int64, outputs []io.Writer) ([]MergeSegment, error) {
	var all []byte
	for _, r := range inputs {
		b, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		all = append(all, b...)
	}

	segs := make([]MergeSegment, len(outputs))
	per := len(all) / len(outputs)
	if per == 0 {
		per = 1
	}
	for i, w := range outputs {
		start := i * per
		end := start + per
		if i == len(outputs)-1 || end > len(all) {
			end = len(all)
		}
		if start > len(all) {
			start = len(all)
		}
		chunk := all[start:end]
		if _, err := w.Write(chunk); err != nil {
			return nil, err
		}
		segs[i] = MergeSegment{SizeBytes: int64(len(chunk))}
	}
	return segs, nil
}
