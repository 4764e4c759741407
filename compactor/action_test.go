package compactor

import "testing"

func TestPlanSplitPassthroughSingleFile(t *testing.T) {
	cfg := DefaultConfig()
	f := &File{ID: 1, Level: L0, MinTime: 0, MaxTime: 100, SizeBytes: 10 << 20}
	action := planSplit([]*File{f}, L1, cfg)

	if action.Kind != CompactAndSplit {
		t.Fatalf("Kind = %v, want CompactAndSplit", action.Kind)
	}
	if len(action.SplitTimes) != 0 {
		t.Errorf("expected no splits for a passthrough file, got %v", action.SplitTimes)
	}
	if action.TargetLevel != L1 {
		t.Errorf("TargetLevel = %v, want L1", action.TargetLevel)
	}
}

func TestPlanSplitSmallSetTwoWaySplit(t *testing.T) {
	cfg := DefaultConfig()
	// Five small L0 files whose combined size fits the ceiling; expect
	// exactly one split at the split_percentage point (spec.md §4.2.2).
	var inputs []*File
	for i := 0; i < 5; i++ {
		inputs = append(inputs, &File{
			ID:        FileID(i + 1),
			Level:     L0,
			MinTime:   int64(i) * 1000,
			MaxTime:   int64(i)*1000 + 999,
			SizeBytes: 5 << 20,
		})
	}
	action := planSplit(inputs, L1, cfg)
	if action.Kind != CompactAndSplit {
		t.Fatalf("Kind = %v, want CompactAndSplit", action.Kind)
	}
	if len(action.SplitTimes) != 1 {
		t.Fatalf("SplitTimes = %v, want exactly one cut", action.SplitTimes)
	}
	cut := action.SplitTimes[0]
	if cut <= inputs[0].MinTime || cut >= inputs[len(inputs)-1].MaxTime {
		t.Errorf("split time %d not strictly interior", cut)
	}
}

func TestPlanSplitOversizedProducesMultipleOutputs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxDesiredFileSizeBytes = 10 << 20

	var inputs []*File
	for i := 0; i < 10; i++ {
		inputs = append(inputs, &File{
			ID:        FileID(i + 1),
			Level:     L1,
			MinTime:   int64(i) * 1_000_000,
			MaxTime:   int64(i)*1_000_000 + 999_999,
			SizeBytes: 8 << 20, // 80 MiB combined, cap at 10 MiB -> ~8 outputs
		})
	}
	action := planSplit(inputs, L2, cfg)
	if action.Kind != CompactAndSplit {
		t.Fatalf("Kind = %v, want CompactAndSplit", action.Kind)
	}
	wantSegments := 8
	if len(action.SplitTimes) != wantSegments-1 {
		t.Errorf("len(SplitTimes) = %d, want %d", len(action.SplitTimes), wantSegments-1)
	}
	for i := 0; i < len(action.SplitTimes)-1; i++ {
		if action.SplitTimes[i] >= action.SplitTimes[i+1] {
			t.Errorf("split times not strictly increasing: %v", action.SplitTimes)
		}
	}
}

func TestActionKindString(t *testing.T) {
	if Noop.String() != "noop" || CompactAndSplit.String() != "compact_and_split" || Abort.String() != "abort" {
		t.Fatalf("unexpected ActionKind strings")
	}
}
