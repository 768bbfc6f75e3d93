package preprocess

import (
	"image"
	"image/color"
	"math/rand"

	"github.com/boxtrain/boxtrain"
	"github.com/chewxy/math32"
	"gocv.io/x/gocv"
)

// JitteredResize is the final training stage: it scales a sample by the
// aspect-preserving fit scale times a random jitter factor, then crops or
// pads at a random offset to the fixed target resolution.  Output images
// all share the target shape while box counts stay ragged.  Boxes are
// clipped to the canvas; a box losing too much of itself to the crop is
// dropped along with its class.
type JitteredResize struct {
	// TargetWidth and TargetHeight give the output resolution, which must
	// match the resolution the model trains at.
	TargetWidth  int
	TargetHeight int
	// ScaleMin and ScaleMax bound the random jitter applied on top of the
	// deterministic fit scale.
	ScaleMin float32
	ScaleMax float32
	// MinVisibility is the smallest visible area fraction a clipped box
	// may keep before it is dropped.
	MinVisibility float32
	// PadColor fills canvas regions the image does not cover.
	PadColor color.RGBA
}

// NewJitteredResize returns a jittered resize stage for the given target
// resolution with conventional jitter bounds of 0.75 to 1.3, a minimum
// box visibility of 0.3, and black padding
func NewJitteredResize(width, height int) *JitteredResize {
	return &JitteredResize{
		TargetWidth:   width,
		TargetHeight:  height,
		ScaleMin:      0.75,
		ScaleMax:      1.3,
		MinVisibility: 0.3,
		PadColor:      color.RGBA{R: 0, G: 0, B: 0, A: 255},
	}
}

// placement picks the crop offset inside the resized image and the paste
// offset inside the canvas for one axis.  When the resized image is
// smaller than the canvas the crop is zero and the paste offset is random,
// otherwise the paste is zero and the crop offset is random.
func placement(src, dst int, rng *rand.Rand) (crop, paste, span int) {

	if src <= dst {
		return 0, rng.Intn(dst - src + 1), src
	}

	return rng.Intn(src - dst + 1), 0, dst
}

// Apply scales, crops/pads, and remaps one sample onto the target canvas
func (j *JitteredResize) Apply(s *boxtrain.Sample, rng *rand.Rand) (*boxtrain.Sample, error) {

	srcWidth := s.Width()
	srcHeight := s.Height()

	// deterministic fit scale, the same calculation the inference
	// normalizer uses
	scaleW := float32(j.TargetWidth) / float32(srcWidth)
	scaleH := float32(j.TargetHeight) / float32(srcHeight)
	fit := math32.Min(scaleW, scaleH)

	jitter := j.ScaleMin + rng.Float32()*(j.ScaleMax-j.ScaleMin)
	scale := fit * jitter

	resizeW := int(math32.Round(float32(srcWidth) * scale))
	resizeH := int(math32.Round(float32(srcHeight) * scale))

	if resizeW < 1 {
		resizeW = 1
	}

	if resizeH < 1 {
		resizeH = 1
	}

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(s.Image, &resized, image.Pt(resizeW, resizeH), 0, 0,
		gocv.InterpolationArea)

	cropX, pasteX, spanW := placement(resizeW, j.TargetWidth, rng)
	cropY, pasteY, spanH := placement(resizeH, j.TargetHeight, rng)

	canvas := gocv.NewMatWithSizeFromScalar(
		gocv.NewScalar(float64(j.PadColor.B), float64(j.PadColor.G),
			float64(j.PadColor.R), 0),
		j.TargetHeight, j.TargetWidth, gocv.MatTypeCV8UC3)

	// place the visible part of the resized image onto the canvas
	srcRoi := resized.Region(image.Rect(cropX, cropY, cropX+spanW, cropY+spanH))
	dstRoi := canvas.Region(image.Rect(pasteX, pasteY, pasteX+spanW, pasteY+spanH))
	srcRoi.CopyTo(&dstRoi)
	srcRoi.Close()
	dstRoi.Close()

	dx := float32(pasteX - cropX)
	dy := float32(pasteY - cropY)

	boxes := make([]boxtrain.Box, 0, len(s.Boxes))
	classes := make([]int32, 0, len(s.Classes))

	for i, b := range s.Boxes {

		moved := b.Scale(scale).Translate(dx, dy)
		clipped := moved.Clip(float32(j.TargetWidth), float32(j.TargetHeight))

		if clipped.Empty() {
			continue
		}

		// a box mostly cropped away is dropped with its class
		if moved.Area() > 0 && clipped.Area()/moved.Area() < j.MinVisibility {
			continue
		}

		boxes = append(boxes, clipped)
		classes = append(classes, s.Classes[i])
	}

	return boxtrain.NewSample(canvas, boxes, classes)
}
