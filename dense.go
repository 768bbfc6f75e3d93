package boxtrain

import (
	"fmt"

	"gocv.io/x/gocv"
)

// PadClassID is the sentinel class id marking padding slots in a
// DenseBatch.  Real class ids are always >= 0.
const PadClassID int32 = -1

// OverflowPolicy fixes what the densifier does with a sample whose true box
// count exceeds the configured capacity.  The choice is explicit and never
// silent.
type OverflowPolicy int

const (
	// OverflowTruncate keeps the first MaxBoxes boxes in their original
	// annotation order and discards the rest
	OverflowTruncate OverflowPolicy = 1
	// OverflowError rejects the batch with ErrOverflow
	OverflowError OverflowPolicy = 2
)

// DenseBatch is the fixed-shape form of a batch: all images concatenated
// into a single Mat of shape (size, height, width, channels), with box and
// class buffers padded to a uniform per-image capacity so fixed-shape model
// interfaces get one memory layout regardless of the true box counts.
type DenseBatch struct {
	// images is the concatenated image Mat
	images gocv.Mat
	// boxes is a flat (size * capacity * 4) coordinate buffer in the
	// canonical convention, zero box in padding slots
	boxes []float32
	// classes is a flat (size * capacity) buffer with PadClassID in
	// padding slots
	classes []int32
	// counts is the true box count per row
	counts []int
	// size is the number of images in the batch
	size int
	// capacity is the per-image box capacity M
	capacity int
	// width is the uniform image width
	width int
	// height is the uniform image height
	height int
	// channels is the uniform image channel count
	channels int
	// pool optionally recycles the image Mat on Close
	pool *DensePool
}

// Size returns the number of images in the batch
func (d *DenseBatch) Size() int {
	return d.size
}

// Capacity returns the per-image box capacity M
func (d *DenseBatch) Capacity() int {
	return d.capacity
}

// Width returns the uniform image width
func (d *DenseBatch) Width() int {
	return d.width
}

// Height returns the uniform image height
func (d *DenseBatch) Height() int {
	return d.height
}

// Channels returns the uniform image channel count
func (d *DenseBatch) Channels() int {
	return d.channels
}

// Images returns the concatenated image Mat of shape
// (size, height, width, channels)
func (d *DenseBatch) Images() gocv.Mat {
	return d.images
}

// FlatBoxes returns the flat (size * capacity * 4) box coordinate buffer
func (d *DenseBatch) FlatBoxes() []float32 {
	return d.boxes
}

// FlatClasses returns the flat (size * capacity) class id buffer
func (d *DenseBatch) FlatClasses() []int32 {
	return d.classes
}

// Count returns the true box count of the given row
func (d *DenseBatch) Count(idx int) int {
	return d.counts[idx]
}

// BoxesAt materializes the true (unpadded) boxes of the given row
func (d *DenseBatch) BoxesAt(idx int) []Box {

	n := d.counts[idx]
	out := make([]Box, n)

	for i := 0; i < n; i++ {
		out[i] = boxFromFlat(d.boxes, idx*d.capacity+i)
	}

	return out
}

// ClassesAt returns the true (unpadded) class ids of the given row
func (d *DenseBatch) ClassesAt(idx int) []int32 {
	off := idx * d.capacity
	return d.classes[off : off+d.counts[idx]]
}

// Close releases the image memory, or hands it back to the originating
// pool for reuse
func (d *DenseBatch) Close() error {

	if d.pool != nil {
		p := d.pool
		d.pool = nil
		p.put(d.images)
		return nil
	}

	return d.images.Close()
}

// Densifier converts a ragged Batch into a DenseBatch with a fixed
// per-image box capacity
type Densifier struct {
	// MaxBoxes is the per-image box capacity M
	MaxBoxes int
	// Overflow is the policy applied when a sample carries more than
	// MaxBoxes boxes.  Defaults to OverflowTruncate.
	Overflow OverflowPolicy
	// Pool optionally recycles dense image Mats between batches
	Pool *DensePool
}

// NewDensifier returns a densifier with the given box capacity and the
// default truncation overflow policy
func NewDensifier(maxBoxes int) *Densifier {
	return &Densifier{
		MaxBoxes: maxBoxes,
		Overflow: OverflowTruncate,
	}
}

// Densify builds the DenseBatch for a ragged batch.  All images must
// already share one shape (the augmentation pipeline and the inference
// normalizer both end on a fixed target resolution); a differing image is
// a shape error.  Box count handling beyond MaxBoxes follows the
// configured overflow policy.
func (d *Densifier) Densify(batch *Batch) (*DenseBatch, error) {

	if d.MaxBoxes < 1 {
		return nil, fmt.Errorf("box capacity %d, want >= 1: %w", d.MaxBoxes, ErrConfig)
	}

	if batch == nil || batch.Len() == 0 {
		return nil, fmt.Errorf("empty batch: %w", ErrSchema)
	}

	for i, s := range batch.Samples {
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
	}

	first := batch.Samples[0]
	height := first.Height()
	width := first.Width()
	channels := first.Image.Channels()
	size := batch.Len()

	dense := &DenseBatch{
		boxes:    make([]float32, 0, size*d.MaxBoxes*4),
		classes:  make([]int32, size*d.MaxBoxes),
		counts:   make([]int, size),
		size:     size,
		capacity: d.MaxBoxes,
		width:    width,
		height:   height,
		channels: channels,
	}

	if d.Pool != nil {
		dense.images, dense.pool = d.Pool.get(size, height, width, channels)
	} else {
		shape := []int{size, height, width, channels}
		dense.images = gocv.NewMatWithSizes(shape, gocv.MatTypeCV8U)
	}

	imgSize := height * width * channels

	for i, s := range batch.Samples {

		// every image must match the batch shape
		if s.Height() != height || s.Width() != width ||
			s.Image.Channels() != channels {
			_ = dense.Close()
			return nil, fmt.Errorf(
				"sample %d image is %dx%dx%d, batch is %dx%dx%d: %w",
				i, s.Width(), s.Height(), s.Image.Channels(),
				width, height, channels, ErrShape)
		}

		if err := d.copyImage(dense, i, imgSize, s.Image); err != nil {
			_ = dense.Close()
			return nil, err
		}

		n := len(s.Boxes)

		if n > d.MaxBoxes {
			if d.Overflow == OverflowError {
				_ = dense.Close()
				return nil, fmt.Errorf("sample %d has %d boxes, capacity %d: %w",
					i, n, d.MaxBoxes, ErrOverflow)
			}
			// deterministic truncation in original annotation order
			n = d.MaxBoxes
		}

		dense.counts[i] = n

		for j := 0; j < n; j++ {
			dense.boxes = s.Boxes[j].appendFlat(dense.boxes)
		}

		// zero boxes in the padding slots
		for j := n; j < d.MaxBoxes; j++ {
			dense.boxes = append(dense.boxes, 0, 0, 0, 0)
		}

		row := i * d.MaxBoxes

		for j := 0; j < n; j++ {
			dense.classes[row+j] = s.Classes[j]
		}

		for j := n; j < d.MaxBoxes; j++ {
			dense.classes[row+j] = PadClassID
		}
	}

	return dense, nil
}

// copyImage copies one sample image into the batch Mat at the given index
func (d *Densifier) copyImage(dense *DenseBatch, idx, imgSize int, img gocv.Mat) error {

	if !img.IsContinuous() {
		cont := img.Clone()
		defer cont.Close()
		img = cont
	}

	dstAll, err := dense.images.DataPtrUint8()

	if err != nil {
		return fmt.Errorf("error accessing batch image memory: %w", err)
	}

	src, err := img.DataPtrUint8()

	if err != nil {
		return fmt.Errorf("error getting image data: %w", err)
	}

	offset := idx * imgSize
	copy(dstAll[offset:], src)

	return nil
}
