package boxtrain

// CompileConfig carries the optimizer settings a model applies before
// training starts
type CompileConfig struct {
	// Optimizer names the optimization algorithm.  The reference backend
	// understands "sgd".
	Optimizer string
	// Momentum applies to optimizers that support it
	Momentum float64
	// ClipGlobalNorm bounds the global L2 norm of every gradient update
	// before it is applied.  Zero disables clipping.
	ClipGlobalNorm float64
}

// Model is the external detector driven by the Trainer and the Predictor.
// The pipeline treats it as an opaque collaborator: weights, losses and the
// optimization step itself are the model's own business, and checkpoints
// are opaque blobs under a directory path.
type Model interface {
	// Compile applies the optimizer configuration, once, before training
	Compile(cfg CompileConfig) error
	// TrainStep runs one atomic optimization step on a dense batch at the
	// given learning rate and returns the batch loss
	TrainStep(batch *DenseBatch, lr float32) (float32, error)
	// EvalStep computes the batch loss without updating any parameters
	EvalStep(batch *DenseBatch) (float32, error)
	// Predict runs the model forward and returns one raw output per image
	Predict(batch *DenseBatch) ([]RawOutput, error)
	// SaveWeights serializes the weight state under the given directory
	SaveWeights(dir string) error
	// LoadWeights restores weight state written by SaveWeights.  Only
	// weight values resume; epoch and step counters start over.
	LoadWeights(dir string) error
	// InputSize returns the image dimensions the model consumes
	InputSize() (width, height int)
}
