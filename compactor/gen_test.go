package compactor

import "math/rand"

// genConfig is a small seeded random partition-view generator used by the
// property tests below. It is modeled on the teacher's Distribution
// interface (Uniform/Exponential/Geometric/Fixed in the example pack): the
// per-level file counts and the size and time bounds are fixed, while file
// sizes, L0 placement and widths, and ingest stamps are drawn from the
// seeded generator, so different seeds produce different partition shapes.
type genConfig struct {
	rng *rand.Rand

	numL0 int
	numL1 int
	numL2 int

	minFileSize int64
	maxFileSize int64

	timeSpan int64
}

func newGenConfig(seed int64) *genConfig {
	return &genConfig{
		rng:         rand.New(rand.NewSource(seed)),
		numL0:       8,
		numL1:       6,
		numL2:       4,
		minFileSize: 1 << 20,
		maxFileSize: 50 << 20,
		timeSpan:    1_000_000_000,
	}
}

// genFiles produces a random, internally consistent (L1/L2 non-overlapping)
// file set for one partition, with the given counts per level.
func (g *genConfig) genFiles() []*File {
	var files []*File
	var nextID FileID = 1

	// L2: lay out non-overlapping contiguous ranges first.
	segment := g.timeSpan / int64(maxInt(g.numL2, 1))
	var l2 []*File
	for i := 0; i < g.numL2; i++ {
		start := int64(i) * segment
		f := &File{
			ID:             nextID,
			Level:          L2,
			MinTime:        start,
			MaxTime:        start + segment - 1,
			SizeBytes:      g.randSize(),
			MaxL0CreatedAt: g.rng.Int63n(g.timeSpan),
		}
		nextID++
		l2 = append(l2, f)
		files = append(files, f)
	}

	// L1: non-overlapping ranges placed independently of L2 (so some overlap
	// L2, exercising the planner's extend-to-absorb-L2 path).
	l1Segment := g.timeSpan / int64(maxInt(g.numL1, 1))
	var l1 []*File
	for i := 0; i < g.numL1; i++ {
		start := int64(i) * l1Segment
		f := &File{
			ID:             nextID,
			Level:          L1,
			MinTime:        start,
			MaxTime:        start + l1Segment - 1,
			SizeBytes:      g.randSize(),
			MaxL0CreatedAt: g.rng.Int63n(g.timeSpan),
		}
		nextID++
		l1 = append(l1, f)
		files = append(files, f)
	}

	// L0: arbitrary overlapping ranges anywhere in the span.
	for i := 0; i < g.numL0; i++ {
		start := g.rng.Int63n(g.timeSpan)
		width := g.rng.Int63n(g.timeSpan/4 + 1)
		f := &File{
			ID:             nextID,
			Level:          L0,
			MinTime:        start,
			MaxTime:        start + width,
			SizeBytes:      g.randSize(),
			MaxL0CreatedAt: start,
		}
		nextID++
		files = append(files, f)
	}

	return files
}

func (g *genConfig) randSize() int64 {
	span := g.maxFileSize - g.minFileSize
	if span <= 0 {
		return g.minFileSize
	}
	return g.minFileSize + g.rng.Int63n(span)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
