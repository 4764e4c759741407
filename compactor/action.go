package compactor

import "sort"

// ActionKind discriminates the planner's decision for one round (spec.md §4.2).
type ActionKind int

const (
	// Noop means the partition is already in its final shape for this round.
	Noop ActionKind = iota
	// CompactAndSplit means: read Inputs, cut at SplitTimes, write to TargetLevel.
	CompactAndSplit
	// Abort means an unrecoverable condition was found (e.g. column count exceeded).
	Abort
)

func (k ActionKind) String() string {
	switch k {
	case CompactAndSplit:
		return "compact_and_split"
	case Abort:
		return "abort"
	default:
		return "noop"
	}
}

// Action is the single decision the round planner emits for a partition view.
type Action struct {
	Kind ActionKind

	// Inputs is the ordered, deterministic set of files to compact. Ordering
	// follows Before() (MaxL0CreatedAt, then ID) so two runs over the same
	// view produce the identical Action (P6).
	Inputs []FileID

	// SplitTimes are strictly increasing, strictly-interior cut points.
	// Empty means a single output file (no split).
	SplitTimes []int64

	// TargetLevel is the level new output files are written at.
	TargetLevel Level

	// Reason explains an Abort; empty otherwise.
	Reason string
}

// IsNoop reports whether the action requires no work.
func (a Action) IsNoop() bool { return a.Kind == Noop }

// abortAction builds an Abort action with a reason string.
func abortAction(reason string) Action {
	return Action{Kind: Abort, Reason: reason}
}

// noopAction is the zero-work action.
func noopAction() Action {
	return Action{Kind: Noop}
}

// planSplit computes the CompactAndSplit action for a chosen, deterministically
// ordered set of input files compacting to targetLevel (spec.md §4.2.2 /
// §4.2.3). inputs must already be sorted by Before().
func planSplit(inputs []*File, targetLevel Level, cfg Config) Action {
	ids := make([]FileID, len(inputs))
	var total int64
	minTime, maxTime := inputs[0].MinTime, inputs[0].MaxTime
	allSameLevel := true
	for i, f := range inputs {
		ids[i] = f.ID
		total += f.SizeBytes
		if f.MinTime < minTime {
			minTime = f.MinTime
		}
		if f.MaxTime > maxTime {
			maxTime = f.MaxTime
		}
		if f.Level != inputs[0].Level {
			allSameLevel = false
		}
	}

	// Passthrough: a single input that already satisfies the size ceiling is
	// emitted as the sole output at the target level, same bytes, new id
	// (spec.md §4.2.3). The executor may short-circuit this to a copy.
	if len(inputs) == 1 && total <= cfg.SizeCeiling() {
		return Action{Kind: CompactAndSplit, Inputs: ids, TargetLevel: targetLevel}
	}

	ceiling := cfg.SizeCeiling()
	if total <= ceiling {
		// Special small-set rule (spec.md §4.2.2): all-one-level inputs that
		// fit the ceiling get the canonical split_percentage/(100-split_percentage)
		// two-way split — the "five 5MiB L0s -> ~20MiB + small tail" pattern.
		if allSameLevel {
			cut := splitPercentagePoint(minTime, maxTime, inputs, cfg.SplitPercentage)
			if cut > minTime && cut < maxTime {
				return Action{Kind: CompactAndSplit, Inputs: ids, SplitTimes: []int64{cut}, TargetLevel: targetLevel}
			}
		}
		return Action{Kind: CompactAndSplit, Inputs: ids, TargetLevel: targetLevel}
	}

	splitTimes := computeSplitTimes(inputs, minTime, maxTime, total, cfg.MaxDesiredFileSizeBytes)
	return Action{Kind: CompactAndSplit, Inputs: ids, SplitTimes: splitTimes, TargetLevel: targetLevel}
}

// splitPercentagePoint finds the timestamp where cumulative bytes (assuming
// uniform density per input file across its own time range) reach
// splitPercentage% of the combined byte total.
func splitPercentagePoint(minTime, maxTime int64, inputs []*File, splitPercentage int) int64 {
	var total int64
	for _, f := range inputs {
		total += f.SizeBytes
	}
	target := total * int64(splitPercentage) / 100
	return cumulativeByteCut(inputs, minTime, maxTime, target)
}

// computeSplitTimes picks k-1 split timestamps so that each of the k outputs
// holds approximately cap bytes (spec.md §4.2.2), k = ceil(total/cap).
// Candidates are found by linear interpolation across the combined time
// range, weighted by per-input size (bytes assumed uniformly distributed
// across each file's own [MinTime, MaxTime]). Collapsing candidates (same
// nanosecond) are merged, reducing k.
func computeSplitTimes(inputs []*File, minTime, maxTime, total, targetSize int64) []int64 {
	k := (total + targetSize - 1) / targetSize
	if k < 1 {
		k = 1
	}

	candidates := make([]int64, 0, k-1)
	for i := int64(1); i < k; i++ {
		target := i * targetSize
		if target >= total {
			break
		}
		cut := cumulativeByteCut(inputs, minTime, maxTime, target)
		if cut <= minTime || cut >= maxTime {
			continue
		}
		candidates = append(candidates, cut)
	}

	// Merge duplicate/non-increasing candidates (spec.md §4.2.2: "if two
	// candidates collapse to the same nanosecond, they are merged").
	sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })
	out := candidates[:0]
	for _, c := range candidates {
		if len(out) == 0 || out[len(out)-1] != c {
			out = append(out, c)
		}
	}
	return out
}

// cumulativeByteCut returns the timestamp at which the cumulative bytes of
// inputs, assumed uniformly spread across each file's own time range and
// summed over the combined range, first reaches targetBytes. inputs need not
// be sorted by time; the combined range is cut at every input's MinTime and
// MaxTime and walked segment by segment, left to right. The result can be
// minTime or maxTime itself (maxTime when targetBytes is never reached), so
// callers check that a cut is strictly interior.
func cumulativeByteCut(inputs []*File, minTime, maxTime, targetBytes int64) int64 {
	// Build the sorted list of boundary timestamps (every input's min/max,
	// clipped to [minTime, maxTime]) and compute the byte-density contributed
	// by each input at any point in time, then integrate left to right.
	bset := map[int64]struct{}{minTime: {}, maxTime: {}}
	for _, f := range inputs {
		if f.MinTime > minTime && f.MinTime < maxTime {
			bset[f.MinTime] = struct{}{}
		}
		if f.MaxTime > minTime && f.MaxTime < maxTime {
			bset[f.MaxTime] = struct{}{}
		}
	}
	bounds := make([]int64, 0, len(bset))
	for t := range bset {
		bounds = append(bounds, t)
	}
	sort.Slice(bounds, func(i, j int) bool { return bounds[i] < bounds[j] })

	density := func(f *File) float64 {
		d := f.Duration()
		if d <= 0 {
			return 0
		}
		return float64(f.SizeBytes) / float64(d)
	}

	var cumulative float64
	target := float64(targetBytes)
	for i := 0; i+1 < len(bounds); i++ {
		segStart, segEnd := bounds[i], bounds[i+1]
		segLen := segEnd - segStart
		if segLen <= 0 {
			continue
		}
		var segDensity float64
		for _, f := range inputs {
			if f.MinTime <= segStart && segEnd <= f.MaxTime {
				segDensity += density(f)
			}
		}
		segBytes := segDensity * float64(segLen)
		if cumulative+segBytes >= target {
			remaining := target - cumulative
			if segDensity <= 0 {
				return segEnd
			}
			offset := int64(remaining / segDensity)
			return segStart + offset
		}
		cumulative += segBytes
	}
	return maxTime
}
