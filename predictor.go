package boxtrain

import (
	"fmt"

	"github.com/cyclopcam/logs"
)

// Predictor is the inference driver: it runs a trained model forward on
// dense batches and applies the decode policy.  Model weights are
// read-only here.  The Decoder field, and with it both suppression
// thresholds, is swappable at inference time without retraining.
type Predictor struct {
	// Log receives inference progress
	Log logs.Log
	// Model is the trained detector
	Model Model
	// Decoder turns each image's raw output into final detections
	Decoder Decoder
}

// NewPredictor returns an inference driver over the given model and decode
// policy
func NewPredictor(log logs.Log, model Model, decoder Decoder) *Predictor {
	return &Predictor{
		Log:     log,
		Model:   model,
		Decoder: decoder,
	}
}

// LoadCheckpoint restores the model weights serialized under the given
// directory.  Missing or corrupt weights are fatal for inference; there is
// no fallback state.
func (p *Predictor) LoadCheckpoint(dir string) error {

	if err := p.Model.LoadWeights(dir); err != nil {
		return fmt.Errorf("loading weights from %q: %w", dir, err)
	}

	p.Log.Infof("loaded checkpoint from %v", dir)

	return nil
}

// Predict runs the model on a dense batch and decodes detections for each
// image.  The result is ragged: every image keeps however many detections
// survive the decode policy, in decoder order.
func (p *Predictor) Predict(batch *DenseBatch) ([][]Detection, error) {

	if p.Decoder == nil {
		return nil, fmt.Errorf("predictor has no decoder: %w", ErrConfig)
	}

	raws, err := p.Model.Predict(batch)

	if err != nil {
		return nil, fmt.Errorf("model forward pass: %w", err)
	}

	if len(raws) != batch.Size() {
		return nil, fmt.Errorf("model returned %d outputs for %d images: %w",
			len(raws), batch.Size(), ErrShape)
	}

	detections := make([][]Detection, len(raws))

	for i, raw := range raws {

		dets, err := p.Decoder.Decode(raw)

		if err != nil {
			return nil, fmt.Errorf("decoding image %d: %w", i, err)
		}

		detections[i] = dets
	}

	return detections, nil
}
