package preprocess

import (
	"math/rand"

	"github.com/boxtrain/boxtrain"
	"gocv.io/x/gocv"
)

// HorizontalFlip mirrors a sample left to right with the given
// probability, remapping every box so it stays glued to its object.
type HorizontalFlip struct {
	// Prob is the chance a sample gets flipped, in [0,1].
	Prob float64
}

// NewHorizontalFlip returns a flip stage with the conventional 50% chance
func NewHorizontalFlip() *HorizontalFlip {
	return &HorizontalFlip{Prob: 0.5}
}

// Apply flips the sample or passes a copy through untouched
func (f *HorizontalFlip) Apply(s *boxtrain.Sample, rng *rand.Rand) (*boxtrain.Sample, error) {

	if rng.Float64() >= f.Prob {
		return s.Clone(), nil
	}

	dst := gocv.NewMat()
	// flip code 1 mirrors around the vertical axis
	gocv.Flip(s.Image, &dst, 1)

	width := float32(s.Width())

	boxes := make([]boxtrain.Box, len(s.Boxes))

	for i, b := range s.Boxes {
		boxes[i] = b.FlipHorizontal(width)
	}

	classes := make([]int32, len(s.Classes))
	copy(classes, s.Classes)

	return boxtrain.NewSample(dst, boxes, classes)
}
