package driver

import (
	"strconv"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/miretskiy/tiercompactor/compactor"
)

// BreakerSet holds one gobreaker.CircuitBreaker per partition, trading a bit
// of memory for isolation: a flaky partition (bad data, an overloaded shard)
// trips its own breaker without throttling healthy partitions (spec.md §7).
//
// byID is read and written from every partition goroutine the driver fans
// out (RunOnce runs up to PartitionConcurrency of these concurrently), so it
// is guarded by mu the same way catalog/memstore guards its partition map.
type BreakerSet struct {
	mu       sync.Mutex
	settings gobreaker.Settings
	byID     map[int64]*gobreaker.CircuitBreaker
	gauge    func(state gobreaker.State)
}

// NewBreakerSet builds a BreakerSet. onStateChange, if non-nil, is invoked
// whenever any partition's breaker changes state. driver.New uses it to set
// Metrics.breakerState to the new state of whichever breaker changed last;
// the gauge is not an aggregate over partitions.
func NewBreakerSet(onStateChange func(name string, from, to gobreaker.State)) *BreakerSet {
	bs := &BreakerSet{byID: make(map[int64]*gobreaker.CircuitBreaker)}
	bs.settings = gobreaker.Settings{
		Name:        "partition",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}
	if onStateChange != nil {
		bs.settings.OnStateChange = func(name string, from, to gobreaker.State) {
			onStateChange(name, from, to)
		}
	}
	return bs
}

func (bs *BreakerSet) forPartition(partitionID int64) *gobreaker.CircuitBreaker {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if cb, ok := bs.byID[partitionID]; ok {
		return cb
	}
	settings := bs.settings
	settings.Name = partitionName(partitionID)
	cb := gobreaker.NewCircuitBreaker(settings)
	bs.byID[partitionID] = cb
	return cb
}

// Execute runs fn through partitionID's breaker. A transient error trips the
// breaker towards open; a resource-exhausted, concurrency-conflict or
// schema-violation error does not count against it, since those are expected
// load-shedding or skip signals rather than partition health signals, and
// Execute returns nil for them.
func (bs *BreakerSet) Execute(partitionID int64, fn func() error) error {
	cb := bs.forPartition(partitionID)
	_, err := cb.Execute(func() (interface{}, error) {
		err := fn()
		if isBreakerExempt(err) {
			return nil, nil
		}
		return nil, err
	})
	return err
}

func isBreakerExempt(err error) bool {
	var classified *compactor.ClassifiedError
	if err == nil {
		return true
	}
	if as, ok := err.(*compactor.ClassifiedError); ok {
		classified = as
	}
	if classified == nil {
		return false
	}
	switch classified.Kind {
	case compactor.KindResourceExhausted, compactor.KindConcurrencyConflict, compactor.KindSchemaViolation:
		return true
	default:
		return false
	}
}

func partitionName(partitionID int64) string {
	return "partition-" + strconv.FormatInt(partitionID, 10)
}
