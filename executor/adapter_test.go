package executor

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/miretskiy/tiercompactor/compactor"
	"github.com/miretskiy/tiercompactor/objectstore/memstore"
)

// concatMerger is a RowMerger fake that ignores splitTimes granularity and
// just distributes input bytes evenly across the requested output segments,
// enough to exercise Adapter's plumbing without a real columnar format.
type concatMerger struct{}

func (concatMerger) Merge(ctx context.Context, inputs []io.Reader, splitTimes []int64, outputs []io.Writer) ([]MergeSegment, error) {
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
		segs[i] = MergeSegment{MinTime: int64(i), MaxTime: int64(i + 1), SizeBytes: int64(len(chunk))}
	}
	return segs, nil
}

func TestAdapterRunWritesOneOutputPerSegment(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	_ = store.Put(ctx, "in/1", bytes.NewReader([]byte("aaaa")))
	_ = store.Put(ctx, "in/2", bytes.NewReader([]byte("bbbb")))

	cfg := compactor.DefaultConfig()
	a := &Adapter{
		Store:  store,
		Merger: concatMerger{},
		Cfg:    cfg,
		Namer: PathNamerFunc(func(partitionID int64, level compactor.Level, segment int) string {
			return "out/seg"
		}),
	}

	req := Request{
		PartitionID: 1,
		TargetLevel: compactor.L1,
		SplitTimes:  []int64{50},
		Inputs: []InputFile{
			{ID: 1, ObjectPath: "in/1", MinTime: 0, MaxTime: 100, MaxL0CreatedAt: 7},
			{ID: 2, ObjectPath: "in/2", MinTime: 0, MaxTime: 100, MaxL0CreatedAt: 12},
		},
	}

	result, err := a.Run(ctx, req)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(result.Outputs) != 2 {
		t.Fatalf("len(Outputs) = %d, want 2", len(result.Outputs))
	}
	for _, out := range result.Outputs {
		if out.MaxL0CreatedAt != 12 {
			t.Errorf("MaxL0CreatedAt = %d, want max over inputs (12)", out.MaxL0CreatedAt)
		}
	}
}

func TestAdapterRunRejectsTooManyInputs(t *testing.T) {
	cfg := compactor.DefaultConfig()
	cfg.MaxNumFilesPerPlan = 1

	a := &Adapter{Store: memstore.New(), Merger: concatMerger{}, Cfg: cfg, Namer: PathNamerFunc(func(int64, compactor.Level, int) string { return "x" })}
	req := Request{
		Inputs: []InputFile{{ID: 1, ObjectPath: "a"}, {ID: 2, ObjectPath: "b"}},
	}

	_, err := a.Run(context.Background(), req)
	classified, ok := err.(*compactor.ClassifiedError)
	if !ok || classified.Kind != compactor.KindResourceExhausted {
		t.Fatalf("err = %v, want KindResourceExhausted", err)
	}
}
