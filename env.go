package boxtrain

import (
	"fmt"
	"os"
	"strconv"
)

// Environment variables configuring process-level defaults
const (
	// EnvKeyCheckpointPath names the directory training checkpoints are
	// written to
	EnvKeyCheckpointPath = "CHECKPOINT_PATH"
	// EnvKeyInferenceCheckpointPath names the directory inference loads
	// weights from
	EnvKeyInferenceCheckpointPath = "INFERENCE_CHECKPOINT_PATH"
	// EnvKeyEpochs is the number of training epochs to run
	EnvKeyEpochs = "EPOCHS"

	// DefaultCheckpointPath is used when no checkpoint directory is
	// configured
	DefaultCheckpointPath = "checkpoint/"
	// DefaultEpochs is used when no epoch count is configured
	DefaultEpochs = 1
)

// EnvCheckpointPath returns the configured training checkpoint directory
func EnvCheckpointPath() string {

	if v := os.Getenv(EnvKeyCheckpointPath); v != "" {
		return v
	}

	return DefaultCheckpointPath
}

// EnvInferenceCheckpointPath returns the configured directory inference
// loads weights from
func EnvInferenceCheckpointPath() string {

	if v := os.Getenv(EnvKeyInferenceCheckpointPath); v != "" {
		return v
	}

	return DefaultCheckpointPath
}

// EnvEpochs returns the configured epoch count.  A malformed value is a
// configuration error, never a silent default.
func EnvEpochs() (int, error) {

	v := os.Getenv(EnvKeyEpochs)

	if v == "" {
		return DefaultEpochs, nil
	}

	n, err := strconv.Atoi(v)

	if err != nil {
		return 0, fmt.Errorf("%s=%q is not an integer: %w", EnvKeyEpochs, v, ErrConfig)
	}

	if n < 1 {
		return 0, fmt.Errorf("%s=%d, want >= 1: %w", EnvKeyEpochs, n, ErrConfig)
	}

	return n, nil
}
