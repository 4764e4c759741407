package compactor

import "fmt"

// ConfigError reports an invalid Config value, in the teacher's SimError style.
type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("invalid config: %s", e.Message)
}

// ErrInvalidConfig constructs a ConfigError.
func ErrInvalidConfig(msg string) error {
	return ConfigError{Message: msg}
}

// ErrorKind classifies a planner/driver-facing error for retry and
// circuit-breaker purposes (spec.md §7).
type ErrorKind int

const (
	// KindNone is the zero value: no error, or an error not otherwise classified.
	KindNone ErrorKind = iota
	// KindTransient is object-store/network flakiness; retried with backoff.
	KindTransient
	// KindConcurrencyConflict is a commit race; the round is discarded and re-planned.
	KindConcurrencyConflict
	// KindResourceExhausted is memory-budget or executor oversubscription; treated as Noop.
	KindResourceExhausted
	// KindSchemaViolation is a column-count overage; the partition is skip-marked.
	KindSchemaViolation
	// KindPlannerInvariant is an internal bug: a committed round would have violated
	// an invariant. Always fatal to the partition's current cycle.
	KindPlannerInvariant
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindConcurrencyConflict:
		return "concurrency_conflict"
	case KindResourceExhausted:
		return "resource_exhausted"
	case KindSchemaViolation:
		return "schema_violation"
	case KindPlannerInvariant:
		return "planner_invariant"
	default:
		return "none"
	}
}

// ClassifiedError pairs an error with its ErrorKind so callers can switch on
// Kind without re-deriving it from the error chain.
type ClassifiedError struct {
	Kind ErrorKind
	Err  error
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// Classify wraps err with the given kind. A nil err yields a nil error, so
// callers can write `return Classify(KindTransient, err)` unconditionally.
func Classify(kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Kind: kind, Err: err}
}
