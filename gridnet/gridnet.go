// Package gridnet implements a small self-contained detection model used
// as the reference training backend.  The image is divided into a fixed
// grid; each cell contributes mean color features which two linear heads
// map to per-class scores and a box regression.  Training runs plain
// momentum SGD with analytic gradients, so the whole train/checkpoint/
// predict cycle works without any external runtime.
package gridnet

import (
	"fmt"
	"math"
	"math/rand"
	"strings"

	"github.com/boxtrain/boxtrain"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// featuresPerCell is the feature column height: mean blue, green, and red
// over the cell block scaled to 0..1, plus a constant bias term.
const featuresPerCell = 4

// Config fixes the model geometry
type Config struct {
	// Width and Height give the input resolution the model trains at
	Width  int
	Height int
	// GridSize is the number of cells per image side
	GridSize int
	// Classes is the number of object classes K
	Classes int
	// BoxLossWeight scales the box regression term against the score term
	BoxLossWeight float64
	// Seed fixes the weight initialization
	Seed int64
}

// Net is the grid detection model.  It implements the model contract used
// by the trainer and predictor.
type Net struct {
	cfg Config

	// scoreW maps cell features to class scores, boxW to box regressions
	scoreW *mat.Dense
	boxW   *mat.Dense

	// momentum SGD state
	scoreVel *mat.Dense
	boxVel   *mat.Dense
	momentum float64
	clipNorm float64
	compiled bool
}

// New returns a freshly initialized model for the given geometry
func New(cfg Config) (*Net, error) {

	if cfg.Width < 1 || cfg.Height < 1 || cfg.GridSize < 1 || cfg.Classes < 1 {
		return nil, fmt.Errorf("model geometry %dx%d grid %d classes %d is not positive: %w",
			cfg.Width, cfg.Height, cfg.GridSize, cfg.Classes, boxtrain.ErrConfig)
	}

	if cfg.Width%cfg.GridSize != 0 || cfg.Height%cfg.GridSize != 0 {
		return nil, fmt.Errorf("grid %d does not divide input %dx%d: %w",
			cfg.GridSize, cfg.Width, cfg.Height, boxtrain.ErrConfig)
	}

	if cfg.BoxLossWeight == 0 {
		cfg.BoxLossWeight = 1
	}

	rng := rand.New(rand.NewSource(cfg.Seed))

	n := &Net{
		cfg:      cfg,
		scoreW:   randomDense(cfg.Classes, featuresPerCell, rng),
		boxW:     randomDense(4, featuresPerCell, rng),
		scoreVel: mat.NewDense(cfg.Classes, featuresPerCell, nil),
		boxVel:   mat.NewDense(4, featuresPerCell, nil),
	}

	return n, nil
}

// randomDense builds an r-by-c matrix of small centered values
func randomDense(r, c int, rng *rand.Rand) *mat.Dense {

	m := mat.NewDense(r, c, nil)

	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			m.Set(i, j, rng.NormFloat64()*0.01)
		}
	}

	return m
}

// Config returns the model geometry
func (n *Net) Config() Config {
	return n.cfg
}

// InputSize returns the resolution the model consumes
func (n *Net) InputSize() (width, height int) {
	return n.cfg.Width, n.cfg.Height
}

// Compile fixes the optimizer settings and resets its state.  Training
// requires a compiled model; prediction does not.
func (n *Net) Compile(cfg boxtrain.CompileConfig) error {

	switch strings.ToLower(cfg.Optimizer) {
	case "", "sgd":
	default:
		return fmt.Errorf("unknown optimizer %q: %w", cfg.Optimizer, boxtrain.ErrConfig)
	}

	if cfg.Momentum < 0 || cfg.Momentum >= 1 {
		return fmt.Errorf("momentum %v outside [0,1): %w", cfg.Momentum, boxtrain.ErrConfig)
	}

	if cfg.ClipGlobalNorm < 0 {
		return fmt.Errorf("gradient clip norm %v is negative: %w",
			cfg.ClipGlobalNorm, boxtrain.ErrConfig)
	}

	n.momentum = cfg.Momentum
	n.clipNorm = cfg.ClipGlobalNorm
	n.scoreVel.Zero()
	n.boxVel.Zero()
	n.compiled = true

	return nil
}

// checkBatch verifies the dense batch matches the model geometry
func (n *Net) checkBatch(batch *boxtrain.DenseBatch) error {

	if batch.Width() != n.cfg.Width || batch.Height() != n.cfg.Height {
		return fmt.Errorf("batch images are %dx%d, model expects %dx%d: %w",
			batch.Width(), batch.Height(), n.cfg.Width, n.cfg.Height,
			boxtrain.ErrShape)
	}

	if batch.Channels() != 3 {
		return fmt.Errorf("batch images have %d channels, model expects 3: %w",
			batch.Channels(), boxtrain.ErrShape)
	}

	return nil
}

// forwardPass carries the activations of one batch
type forwardPass struct {
	// features is F x N with one column per grid cell over all images
	features *mat.Dense
	// probs is K x N of logistic class scores
	probs *mat.Dense
	// boxes is 4 x N of normalized box regressions
	boxes *mat.Dense
}

// forward extracts features and runs both heads
func (n *Net) forward(batch *boxtrain.DenseBatch) (*forwardPass, error) {

	features, err := n.extractFeatures(batch)

	if err != nil {
		return nil, err
	}

	var scores mat.Dense
	scores.Mul(n.scoreW, features)

	rows, cols := scores.Dims()
	probs := mat.NewDense(rows, cols, nil)

	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			probs.Set(i, j, sigmoid(scores.At(i, j)))
		}
	}

	var boxes mat.Dense
	boxes.Mul(n.boxW, features)

	return &forwardPass{features: features, probs: probs, boxes: &boxes}, nil
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// extractFeatures computes the feature columns of every grid cell: mean
// blue, green, and red over the cell block scaled to 0..1, plus bias
func (n *Net) extractFeatures(batch *boxtrain.DenseBatch) (*mat.Dense, error) {

	images := batch.Images()
	data, err := images.DataPtrUint8()

	if err != nil {
		return nil, fmt.Errorf("error accessing batch image memory: %w", err)
	}

	g := n.cfg.GridSize
	width := batch.Width()
	height := batch.Height()
	channels := batch.Channels()
	cellW := width / g
	cellH := height / g
	cols := batch.Size() * g * g

	features := mat.NewDense(featuresPerCell, cols, nil)
	area := float64(cellW * cellH * 255)

	for b := 0; b < batch.Size(); b++ {

		imgOff := b * height * width * channels

		for gy := 0; gy < g; gy++ {
			for gx := 0; gx < g; gx++ {

				var sumB, sumG, sumR float64

				for y := gy * cellH; y < (gy+1)*cellH; y++ {

					rowOff := imgOff + (y*width+gx*cellW)*channels

					for x := 0; x < cellW; x++ {
						px := rowOff + x*channels
						sumB += float64(data[px])
						sumG += float64(data[px+1])
						sumR += float64(data[px+2])
					}
				}

				col := (b*g+gy)*g + gx
				features.Set(0, col, sumB/area)
				features.Set(1, col, sumG/area)
				features.Set(2, col, sumR/area)
				features.Set(3, col, 1)
			}
		}
	}

	return features, nil
}

// gridTargets holds the training targets of one batch
type gridTargets struct {
	// score is K x N one-hot at cells owning a ground truth box
	score *mat.Dense
	// box is 4 x N of normalized box coordinates at owning cells
	box *mat.Dense
	// assigned marks cells owning a box; box loss is computed there only
	assigned []bool
	// count is the number of assigned cells
	count int
}

// buildTargets assigns each ground truth box to the grid cell holding its
// center
func (n *Net) buildTargets(batch *boxtrain.DenseBatch) (*gridTargets, error) {

	g := n.cfg.GridSize
	cols := batch.Size() * g * g
	cellW := float32(n.cfg.Width) / float32(g)
	cellH := float32(n.cfg.Height) / float32(g)

	t := &gridTargets{
		score:    mat.NewDense(n.cfg.Classes, cols, nil),
		box:      mat.NewDense(4, cols, nil),
		assigned: make([]bool, cols),
	}

	for b := 0; b < batch.Size(); b++ {

		boxes := batch.BoxesAt(b)
		classes := batch.ClassesAt(b)

		for i, bx := range boxes {

			class := classes[i]

			if class < 0 || int(class) >= n.cfg.Classes {
				return nil, fmt.Errorf("class id %d outside model range 0..%d: %w",
					class, n.cfg.Classes-1, boxtrain.ErrSchema)
			}

			gx := clampCell(int((bx.X+bx.W/2)/cellW), g)
			gy := clampCell(int((bx.Y+bx.H/2)/cellH), g)
			col := (b*g+gy)*g + gx

			t.score.Set(int(class), col, 1)
			t.box.Set(0, col, float64(bx.X)/float64(n.cfg.Width))
			t.box.Set(1, col, float64(bx.Y)/float64(n.cfg.Height))
			t.box.Set(2, col, float64(bx.W)/float64(n.cfg.Width))
			t.box.Set(3, col, float64(bx.H)/float64(n.cfg.Height))

			if !t.assigned[col] {
				t.assigned[col] = true
				t.count++
			}
		}
	}

	return t, nil
}

// clampCell keeps a cell coordinate on the grid
func clampCell(v, g int) int {

	if v < 0 {
		return 0
	}

	if v >= g {
		return g - 1
	}

	return v
}

// lossAndGrads computes the squared-error loss and the gradients at both
// head outputs
func (n *Net) lossAndGrads(fwd *forwardPass, t *gridTargets) (float32, *mat.Dense, *mat.Dense) {

	_, cols := fwd.probs.Dims()
	k := n.cfg.Classes
	invN := 1 / float64(cols)

	dScore := mat.NewDense(k, cols, nil)
	scoreLoss := 0.0

	for i := 0; i < k; i++ {
		for j := 0; j < cols; j++ {
			p := fwd.probs.At(i, j)
			d := p - t.score.At(i, j)
			scoreLoss += d * d * invN
			// squared error back through the logistic
			dScore.Set(i, j, 2*d*p*(1-p)*invN)
		}
	}

	assigned := t.count

	if assigned < 1 {
		assigned = 1
	}

	invA := 1 / float64(assigned)
	dBox := mat.NewDense(4, cols, nil)
	boxLoss := 0.0

	for j := 0; j < cols; j++ {

		if !t.assigned[j] {
			continue
		}

		for i := 0; i < 4; i++ {
			d := fwd.boxes.At(i, j) - t.box.At(i, j)
			boxLoss += d * d * invA
			dBox.Set(i, j, 2*d*invA*n.cfg.BoxLossWeight)
		}
	}

	loss := scoreLoss + n.cfg.BoxLossWeight*boxLoss
	return float32(loss), dScore, dBox
}

// clipGradients scales the gradient matrices so their joint L2 norm does
// not exceed limit.  A limit of zero disables clipping.
func clipGradients(limit float64, grads ...*mat.Dense) {

	if limit <= 0 {
		return
	}

	var all []float64

	for _, g := range grads {
		all = append(all, g.RawMatrix().Data...)
	}

	norm := floats.Norm(all, 2)

	if norm <= limit {
		return
	}

	scale := limit / norm

	for _, g := range grads {
		g.Scale(scale, g)
	}
}

// sgdUpdate applies one momentum SGD step to w in place:
// v = momentum*v - lr*grad, w = w + v
func sgdUpdate(w, vel, grad *mat.Dense, lr float32, momentum float64) {

	var step mat.Dense
	step.Scale(float64(lr), grad)

	vel.Scale(momentum, vel)
	vel.Sub(vel, &step)
	w.Add(w, vel)
}

// TrainStep runs one forward/backward pass over the batch and updates the
// weights at the given learning rate, returning the batch loss
func (n *Net) TrainStep(batch *boxtrain.DenseBatch, lr float32) (float32, error) {

	if !n.compiled {
		return 0, fmt.Errorf("model is not compiled: %w", boxtrain.ErrConfig)
	}

	if err := n.checkBatch(batch); err != nil {
		return 0, err
	}

	fwd, err := n.forward(batch)

	if err != nil {
		return 0, err
	}

	t, err := n.buildTargets(batch)

	if err != nil {
		return 0, err
	}

	loss, dScore, dBox := n.lossAndGrads(fwd, t)

	// map output gradients onto the weights
	var gScore mat.Dense
	gScore.Mul(dScore, fwd.features.T())

	var gBox mat.Dense
	gBox.Mul(dBox, fwd.features.T())

	clipGradients(n.clipNorm, &gScore, &gBox)

	sgdUpdate(n.scoreW, n.scoreVel, &gScore, lr, n.momentum)
	sgdUpdate(n.boxW, n.boxVel, &gBox, lr, n.momentum)

	return loss, nil
}

// EvalStep computes the loss of one batch without touching the weights
func (n *Net) EvalStep(batch *boxtrain.DenseBatch) (float32, error) {

	if err := n.checkBatch(batch); err != nil {
		return 0, err
	}

	fwd, err := n.forward(batch)

	if err != nil {
		return 0, err
	}

	t, err := n.buildTargets(batch)

	if err != nil {
		return 0, err
	}

	loss, _, _ := n.lossAndGrads(fwd, t)
	return loss, nil
}

// Predict runs the forward pass and expands every grid cell into one
// candidate per image, scores in 0..1 and boxes in input pixels
func (n *Net) Predict(batch *boxtrain.DenseBatch) ([]boxtrain.RawOutput, error) {

	if err := n.checkBatch(batch); err != nil {
		return nil, err
	}

	fwd, err := n.forward(batch)

	if err != nil {
		return nil, err
	}

	perImage := n.cfg.GridSize * n.cfg.GridSize
	outs := make([]boxtrain.RawOutput, batch.Size())

	for b := range outs {

		raw := boxtrain.RawOutput{
			Boxes:      make([]float32, perImage*4),
			Scores:     make([]float32, perImage*n.cfg.Classes),
			Candidates: perImage,
			Classes:    n.cfg.Classes,
		}

		for c := 0; c < perImage; c++ {

			col := b*perImage + c

			w := float32(fwd.boxes.At(2, col)) * float32(n.cfg.Width)
			h := float32(fwd.boxes.At(3, col)) * float32(n.cfg.Height)

			if w < 0 {
				w = 0
			}

			if h < 0 {
				h = 0
			}

			raw.Boxes[c*4+0] = float32(fwd.boxes.At(0, col)) * float32(n.cfg.Width)
			raw.Boxes[c*4+1] = float32(fwd.boxes.At(1, col)) * float32(n.cfg.Height)
			raw.Boxes[c*4+2] = w
			raw.Boxes[c*4+3] = h

			for k := 0; k < n.cfg.Classes; k++ {
				raw.Scores[c*n.cfg.Classes+k] = float32(fwd.probs.At(k, col))
			}
		}

		outs[b] = raw
	}

	return outs, nil
}
