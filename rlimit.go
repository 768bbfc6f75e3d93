package boxtrain

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

var (
	raiseFileLimitOnce sync.Once
	raiseFileLimitErr  error
)

// RaiseFileLimit lifts the process soft limit on open file handles to the
// hard limit.  Concurrent prefetching holds one handle per in-flight
// shard, which overruns conservative default soft limits.  The adjustment
// is global and applied at most once per process regardless of how many
// times this is called; it belongs at the process entry point before any
// pipeline is constructed.
func RaiseFileLimit() error {

	raiseFileLimitOnce.Do(func() {
		raiseFileLimitErr = raiseFileLimit()
	})

	return raiseFileLimitErr
}

func raiseFileLimit() error {

	var lim unix.Rlimit

	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &lim); err != nil {
		return fmt.Errorf("reading open file limit: %v: %w", err, ErrResource)
	}

	if lim.Cur >= lim.Max {
		return nil
	}

	lim.Cur = lim.Max

	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &lim); err != nil {
		return fmt.Errorf("raising open file limit to %d: %v: %w", lim.Max, err, ErrResource)
	}

	return nil
}
