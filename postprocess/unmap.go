package postprocess

import (
	"github.com/boxtrain/boxtrain"
	"github.com/boxtrain/boxtrain/preprocess"
)

// UnmapDetections translates detections from model-input coordinates back
// to source image coordinates by inverting the letterbox that produced
// the input: padding is subtracted, the fit scale divided out, and boxes
// clipped to the source bounds.  The input slice is left untouched.
func UnmapDetections(dets []boxtrain.Detection, p preprocess.LetterboxParams,
	srcWidth, srcHeight int) []boxtrain.Detection {

	out := make([]boxtrain.Detection, len(dets))

	for i, det := range dets {
		b := det.Box.Translate(float32(-p.XPad), float32(-p.YPad))
		b = b.Scale(1 / p.Scale)
		det.Box = b.Clip(float32(srcWidth), float32(srcHeight))
		out[i] = det
	}

	return out
}
