package boxtrain

import (
	"fmt"
)

// StepSchedule is a piecewise-constant learning rate schedule over the
// global step count: values[i] applies while step < boundaries[i] and the
// final value applies from the last boundary onward
type StepSchedule struct {
	boundaries []int64
	values     []float64
}

// NewStepSchedule builds a schedule from ascending step boundaries and the
// rate values between them.  There must be exactly one more value than
// boundaries.
func NewStepSchedule(boundaries []int64, values []float64) (*StepSchedule, error) {

	if len(values) != len(boundaries)+1 {
		return nil, fmt.Errorf("schedule has %d boundaries and %d values, want one more value: %w",
			len(boundaries), len(values), ErrConfig)
	}

	for i := 1; i < len(boundaries); i++ {
		if boundaries[i] <= boundaries[i-1] {
			return nil, fmt.Errorf("schedule boundaries not ascending at %d: %w", i, ErrConfig)
		}
	}

	return &StepSchedule{
		boundaries: append([]int64(nil), boundaries...),
		values:     append([]float64(nil), values...),
	}, nil
}

// NewDetectionSchedule returns the standard detection training schedule:
// the base rate until step t1, a tenth of it until t2, and a hundredth from
// t2 onward.  t1 and t2 are given in number of batches.
func NewDetectionSchedule(base float64, t1, t2 int64) *StepSchedule {

	s, err := NewStepSchedule(
		[]int64{t1, t2},
		[]float64{base, base * 0.1, base * 0.01},
	)

	if err != nil {
		// t1 < t2 is the caller's contract; enforce it loudly
		panic(err)
	}

	return s
}

// LearningRate returns the rate in effect at the given global step
func (s *StepSchedule) LearningRate(step int64) float64 {

	for i, b := range s.boundaries {
		if step < b {
			return s.values[i]
		}
	}

	return s.values[len(s.values)-1]
}
