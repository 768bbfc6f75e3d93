package boxtrain

import (
	"fmt"
)

// Detection is a single decoded object detection
type Detection struct {
	// Box is the object location in the canonical convention, in
	// model-input pixels unless unmapped to source coordinates
	Box Box
	// ClassID is the detected object class
	ClassID int32
	// Confidence is the decoded score of the detection
	Confidence float32
}

// RawOutput is the undecoded model output for a single image: a fixed set
// of candidate box regressions with per-class scores.  Decoders turn this
// into final detections.
type RawOutput struct {
	// Boxes is a flat (Candidates * 4) coordinate buffer in the canonical
	// convention, in model-input pixels
	Boxes []float32
	// Scores is a flat (Candidates * Classes) score buffer, candidate
	// major
	Scores []float32
	// Candidates is the number of candidate boxes
	Candidates int
	// Classes is the number of classes scored per candidate
	Classes int
}

// Validate checks the raw output buffers against the declared counts
func (r *RawOutput) Validate() error {

	if len(r.Boxes) != r.Candidates*4 {
		return fmt.Errorf("raw output has %d box values for %d candidates: %w",
			len(r.Boxes), r.Candidates, ErrShape)
	}

	if len(r.Scores) != r.Candidates*r.Classes {
		return fmt.Errorf("raw output has %d scores for %d candidates of %d classes: %w",
			len(r.Scores), r.Candidates, r.Classes, ErrShape)
	}

	return nil
}

// BoxAt returns candidate box n in the canonical convention
func (r *RawOutput) BoxAt(n int) Box {
	return boxFromFlat(r.Boxes, n)
}

// ScoreAt returns the score of class c for candidate n
func (r *RawOutput) ScoreAt(n int, c int) float32 {
	return r.Scores[n*r.Classes+c]
}

// Decoder turns one image's raw model output into final detections.  The
// decode policy, including its thresholds, belongs to the decoder and is
// swappable at inference time without retraining.
type Decoder interface {
	Decode(raw RawOutput) ([]Detection, error)
}
