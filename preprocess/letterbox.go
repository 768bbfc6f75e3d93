package preprocess

import (
	"fmt"
	"image"
	"image/color"

	"github.com/boxtrain/boxtrain"
	"gocv.io/x/gocv"
)

// LetterboxParams are the scale factor and padding offsets a letterbox
// applied to one source size.  A decode stage uses them to map detections
// back into source image coordinates.
type LetterboxParams struct {
	// Scale is the uniform resize factor applied to the source image
	Scale float32
	// XPad is the left padding in target pixels
	XPad int
	// YPad is the top padding in target pixels
	YPad int
}

// letterboxGeom carries the params plus the intermediate resize dimensions
type letterboxGeom struct {
	params  LetterboxParams
	resizeW int
	resizeH int
}

// Letterbox is the deterministic inference normalizer: an aspect
// preserving resize to the fixed target resolution used in training,
// padding with a constant border rather than stretching, with boxes mapped
// through the same scale and offsets.  Normalizing an already normalized
// sample is the identity.
type Letterbox struct {
	// destWidth is the target width
	destWidth int
	// destHeight is the target height
	destHeight int
	// padColor is the color used for letterbox padding
	padColor color.RGBA
}

// NewLetterbox returns a normalizer to the given target resolution using
// black padding
func NewLetterbox(destWidth, destHeight int) *Letterbox {
	return &Letterbox{
		destWidth:  destWidth,
		destHeight: destHeight,
		padColor:   color.RGBA{R: 0, G: 0, B: 0, A: 255},
	}
}

// Size returns the target resolution samples are normalized to
func (l *Letterbox) Size() (width, height int) {
	return l.destWidth, l.destHeight
}

// geom calculates the scaling factors and padding for a source size
func (l *Letterbox) geom(srcWidth, srcHeight int) letterboxGeom {

	g := letterboxGeom{
		resizeW: l.destWidth,
		resizeH: l.destHeight,
	}

	scaleW := float32(l.destWidth) / float32(srcWidth)
	scaleH := float32(l.destHeight) / float32(srcHeight)
	g.params.Scale = scaleH

	if scaleW < scaleH {
		g.params.Scale = scaleW
		g.resizeH = int(float32(srcHeight) * g.params.Scale)
	} else {
		g.resizeW = int(float32(srcWidth) * g.params.Scale)
	}

	g.params.YPad = (l.destHeight - g.resizeH) / 2 // padding height / 2
	g.params.XPad = (l.destWidth - g.resizeW) / 2  // padding width / 2

	return g
}

// Params returns the scale and padding the letterbox applies to a source
// of the given size
func (l *Letterbox) Params(srcWidth, srcHeight int) LetterboxParams {
	return l.geom(srcWidth, srcHeight).params
}

// Apply normalizes one sample, producing a new sample and leaving the
// input untouched
func (l *Letterbox) Apply(s *boxtrain.Sample) (*boxtrain.Sample, error) {

	if err := s.Validate(); err != nil {
		return nil, err
	}

	g := l.geom(s.Width(), s.Height())

	tmp := gocv.NewMat()
	defer tmp.Close()

	gocv.Resize(s.Image, &tmp, image.Pt(g.resizeW, g.resizeH),
		0, 0, gocv.InterpolationArea)

	dest := gocv.NewMat()

	gocv.CopyMakeBorder(tmp, &dest,
		g.params.YPad, l.destHeight-g.resizeH-g.params.YPad,
		g.params.XPad, l.destWidth-g.resizeW-g.params.XPad,
		gocv.BorderConstant, l.padColor)

	boxes := make([]boxtrain.Box, len(s.Boxes))

	for i, b := range s.Boxes {
		boxes[i] = b.Scale(g.params.Scale).
			Translate(float32(g.params.XPad), float32(g.params.YPad))
	}

	return boxtrain.NewSample(dest, boxes,
		append([]int32(nil), s.Classes...))
}

// ApplyBatch normalizes every sample of a ragged batch, preserving sample
// order.  The input batch is left untouched.
func (l *Letterbox) ApplyBatch(batch *boxtrain.Batch) (*boxtrain.Batch, error) {

	out := &boxtrain.Batch{
		Samples: make([]*boxtrain.Sample, 0, batch.Len()),
	}

	for i, s := range batch.Samples {

		normalized, err := l.Apply(s)

		if err != nil {
			_ = out.Close()
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}

		out.Samples = append(out.Samples, normalized)
	}

	return out, nil
}
