package boxtrain

import (
	"fmt"

	"gocv.io/x/gocv"
)

// Sample is a single annotated image in the canonical schema shared by
// every pipeline stage
type Sample struct {
	// Image is an 8-bit 3 channel Mat owned by this sample
	Image gocv.Mat
	// Boxes holds the object bounding boxes in the canonical convention
	Boxes []Box
	// Classes holds the object class ids, one per box
	Classes []int32
}

// NewSample wraps an image and its annotations into a Sample, taking
// ownership of the Mat.  The sample is validated against the canonical
// schema before being returned.
func NewSample(img gocv.Mat, boxes []Box, classes []int32) (*Sample, error) {

	s := &Sample{
		Image:   img,
		Boxes:   boxes,
		Classes: classes,
	}

	if err := s.Validate(); err != nil {
		_ = img.Close()
		return nil, err
	}

	return s, nil
}

// Validate checks the sample against the canonical schema
func (s *Sample) Validate() error {

	if s.Image.Empty() {
		return fmt.Errorf("sample has no image data: %w", ErrSchema)
	}

	if s.Image.Channels() != 3 {
		return fmt.Errorf("sample image has %d channels, want 3: %w",
			s.Image.Channels(), ErrSchema)
	}

	if len(s.Boxes) != len(s.Classes) {
		return fmt.Errorf("sample has %d boxes but %d classes: %w",
			len(s.Boxes), len(s.Classes), ErrSchema)
	}

	return nil
}

// Width returns the image width in pixels
func (s *Sample) Width() int {
	return s.Image.Cols()
}

// Height returns the image height in pixels
func (s *Sample) Height() int {
	return s.Image.Rows()
}

// Clone returns a deep copy of the sample.  Stages that transform samples
// operate on copies so no caller-owned data is ever mutated.
func (s *Sample) Clone() *Sample {
	return &Sample{
		Image:   s.Image.Clone(),
		Boxes:   append([]Box(nil), s.Boxes...),
		Classes: append([]int32(nil), s.Classes...),
	}
}

// Close releases the image memory held by the sample
func (s *Sample) Close() error {
	return s.Image.Close()
}
