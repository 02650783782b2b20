package core

import "errors"

// Every failure in the training core belongs to one of these families and
// propagates to the driver untouched. None of them are recoverable: a
// corrupted environment, a NaN loss or a miscomputed buffer index all mean
// the run is over.
var (
	// ErrUnsupportedSpace is a configuration error raised at construction
	// time when a component is given a space variant it does not implement.
	ErrUnsupportedSpace = errors.New("unsupported space")

	// ErrInvalidConfig is a configuration error for out-of-range
	// hyperparameters, raised before any allocation happens.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEnvironmentFault marks environment-side failures: a crashed
	// worker, a malformed step result, a batch shape mismatch.
	ErrEnvironmentFault = errors.New("environment fault")

	// ErrNumericalFault marks a NaN or Inf in the loss or gradients.
	ErrNumericalFault = errors.New("numerical fault")

	// ErrBufferOverrun marks a write past the rollout buffer capacity,
	// which indicates a driver bug.
	ErrBufferOverrun = errors.New("rollout buffer overrun")
)
