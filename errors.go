package boxtrain

import (
	"errors"
)

// Sentinel errors making up the pipeline failure taxonomy.  Call sites wrap
// these with fmt.Errorf and %w so callers can test the category with
// errors.Is.  None of them are retried internally: a schema or shape
// mismatch cannot succeed on retry without caller-side correction.
var (
	// ErrSchema is a raw record or sample violating the canonical schema,
	// such as missing fields or a box/class count mismatch
	ErrSchema = errors.New("schema violation")
	// ErrShape is a batch whose dense shape disagrees with the shape the
	// consumer was configured for
	ErrShape = errors.New("shape mismatch")
	// ErrResource is a failure acquiring or adjusting a process resource,
	// such as the open file limit
	ErrResource = errors.New("resource failure")
	// ErrCheckpoint is a missing or unreadable model weight state
	ErrCheckpoint = errors.New("checkpoint unreadable")
	// ErrOverflow is a sample carrying more boxes than the densifier
	// capacity when the overflow policy forbids truncation
	ErrOverflow = errors.New("box capacity overflow")
	// ErrConfig is a malformed configuration or environment value
	ErrConfig = errors.New("invalid configuration")
)

// Kind maps an error to the name of its taxonomy category for use in log
// lines and CLI output
func Kind(err error) string {

	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrSchema):
		return "schema"
	case errors.Is(err, ErrShape):
		return "shape"
	case errors.Is(err, ErrResource):
		return "resource"
	case errors.Is(err, ErrCheckpoint):
		return "checkpoint"
	case errors.Is(err, ErrOverflow):
		return "overflow"
	case errors.Is(err, ErrConfig):
		return "config"
	}

	return "unknown"
}
