package preprocess

import (
	"math/rand"

	"github.com/boxtrain/boxtrain"
)

// RandomBrightness shifts all pixel values by a delta drawn uniformly from
// [-MaxDelta, MaxDelta].  Purely photometric, boxes pass through unchanged.
type RandomBrightness struct {
	// MaxDelta is the largest shift in 8-bit pixel values.
	MaxDelta float32
}

// NewRandomBrightness returns a brightness stage with the conventional
// maximum shift of 32 pixel values
func NewRandomBrightness() *RandomBrightness {
	return &RandomBrightness{MaxDelta: 32}
}

// Apply shifts the sample's pixel values, saturating at the 8-bit range
func (a *RandomBrightness) Apply(s *boxtrain.Sample, rng *rand.Rand) (*boxtrain.Sample, error) {

	delta := (rng.Float32()*2 - 1) * a.MaxDelta

	out := s.Clone()
	out.Image.AddFloat(delta)

	return out, nil
}

// RandomContrast scales all pixel values by a factor drawn uniformly from
// [Lower, Upper].  Purely photometric, boxes pass through unchanged.
type RandomContrast struct {
	Lower float32
	Upper float32
}

// NewRandomContrast returns a contrast stage with the conventional
// 0.5 to 1.5 factor range
func NewRandomContrast() *RandomContrast {
	return &RandomContrast{Lower: 0.5, Upper: 1.5}
}

// Apply scales the sample's pixel values, saturating at the 8-bit range
func (a *RandomContrast) Apply(s *boxtrain.Sample, rng *rand.Rand) (*boxtrain.Sample, error) {

	factor := a.Lower + rng.Float32()*(a.Upper-a.Lower)

	out := s.Clone()
	out.Image.MultiplyFloat(factor)

	return out, nil
}
