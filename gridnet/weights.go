package gridnet

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/boxtrain/boxtrain"
)

const (
	modelFile      = "model.json"
	weightsFile    = "weights.bin"
	weightsF16File = "weights.f16"
)

// modelHeader is the geometry record stored beside the weights so a
// checkpoint can reject an incompatible model on load
type modelHeader struct {
	Width         int     `json:"width"`
	Height        int     `json:"height"`
	GridSize      int     `json:"grid_size"`
	Classes       int     `json:"classes"`
	BoxLossWeight float64 `json:"box_loss_weight"`
}

// flatWeights serializes both heads row-major into one float32 vector,
// score head first
func (n *Net) flatWeights() []float32 {

	score := n.scoreW.RawMatrix()
	box := n.boxW.RawMatrix()

	out := make([]float32, 0, len(score.Data)+len(box.Data))

	for _, v := range score.Data {
		out = append(out, float32(v))
	}

	for _, v := range box.Data {
		out = append(out, float32(v))
	}

	return out
}

// setFlatWeights restores both heads from one float32 vector
func (n *Net) setFlatWeights(vals []float32) error {

	scoreLen := n.cfg.Classes * featuresPerCell
	boxLen := 4 * featuresPerCell

	if len(vals) != scoreLen+boxLen {
		return fmt.Errorf("checkpoint holds %d weights, model needs %d: %w",
			len(vals), scoreLen+boxLen, boxtrain.ErrCheckpoint)
	}

	for i := 0; i < n.cfg.Classes; i++ {
		for j := 0; j < featuresPerCell; j++ {
			n.scoreW.Set(i, j, float64(vals[i*featuresPerCell+j]))
		}
	}

	for i := 0; i < 4; i++ {
		for j := 0; j < featuresPerCell; j++ {
			n.boxW.Set(i, j, float64(vals[scoreLen+i*featuresPerCell+j]))
		}
	}

	return nil
}

// SaveWeights writes the model geometry and weights into dir, creating it
// if needed.  Weights are stored as float32 with a half precision
// companion file.
func (n *Net) SaveWeights(dir string) error {

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating checkpoint dir: %v: %w", err, boxtrain.ErrCheckpoint)
	}

	header := modelHeader{
		Width:         n.cfg.Width,
		Height:        n.cfg.Height,
		GridSize:      n.cfg.GridSize,
		Classes:       n.cfg.Classes,
		BoxLossWeight: n.cfg.BoxLossWeight,
	}

	data, err := json.MarshalIndent(header, "", "  ")

	if err != nil {
		return fmt.Errorf("encoding model header: %v: %w", err, boxtrain.ErrCheckpoint)
	}

	if err := os.WriteFile(filepath.Join(dir, modelFile), data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %v: %w", modelFile, err, boxtrain.ErrCheckpoint)
	}

	weights := n.flatWeights()

	buf := make([]byte, len(weights)*4)

	for i, w := range weights {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(w))
	}

	if err := os.WriteFile(filepath.Join(dir, weightsFile), buf, 0o644); err != nil {
		return fmt.Errorf("writing %s: %v: %w", weightsFile, err, boxtrain.ErrCheckpoint)
	}

	bits := float32ToF16Bits(weights)
	f16Buf := make([]byte, len(bits)*2)

	for i, b := range bits {
		binary.LittleEndian.PutUint16(f16Buf[i*2:], b)
	}

	if err := os.WriteFile(filepath.Join(dir, weightsF16File), f16Buf, 0o644); err != nil {
		return fmt.Errorf("writing %s: %v: %w", weightsF16File, err, boxtrain.ErrCheckpoint)
	}

	return nil
}

// LoadWeights restores the model from a checkpoint directory, verifying
// the stored geometry matches this model.  The float32 weights are
// preferred; the half precision companion serves as fallback.
func (n *Net) LoadWeights(dir string) error {

	data, err := os.ReadFile(filepath.Join(dir, modelFile))

	if err != nil {
		return fmt.Errorf("reading %s: %v: %w", modelFile, err, boxtrain.ErrCheckpoint)
	}

	var header modelHeader

	if err := json.Unmarshal(data, &header); err != nil {
		return fmt.Errorf("decoding %s: %v: %w", modelFile, err, boxtrain.ErrCheckpoint)
	}

	if header.Width != n.cfg.Width || header.Height != n.cfg.Height ||
		header.GridSize != n.cfg.GridSize || header.Classes != n.cfg.Classes {
		return fmt.Errorf(
			"checkpoint geometry %dx%d grid %d classes %d does not match model %dx%d grid %d classes %d: %w",
			header.Width, header.Height, header.GridSize, header.Classes,
			n.cfg.Width, n.cfg.Height, n.cfg.GridSize, n.cfg.Classes,
			boxtrain.ErrCheckpoint)
	}

	want := n.cfg.Classes*featuresPerCell + 4*featuresPerCell
	weights, err := readWeights(dir, want)

	if err != nil {
		return err
	}

	if err := n.setFlatWeights(weights); err != nil {
		return err
	}

	// optimizer state does not carry across checkpoints
	n.scoreVel.Zero()
	n.boxVel.Zero()

	return nil
}

// Open builds a model from a checkpoint directory alone, reading the
// geometry from the stored header before the weights.  Inference callers
// need no prior knowledge of the training configuration.
func Open(dir string) (*Net, error) {

	data, err := os.ReadFile(filepath.Join(dir, modelFile))

	if err != nil {
		return nil, fmt.Errorf("reading %s: %v: %w", modelFile, err, boxtrain.ErrCheckpoint)
	}

	var header modelHeader

	if err := json.Unmarshal(data, &header); err != nil {
		return nil, fmt.Errorf("decoding %s: %v: %w", modelFile, err, boxtrain.ErrCheckpoint)
	}

	n, err := New(Config{
		Width:         header.Width,
		Height:        header.Height,
		GridSize:      header.GridSize,
		Classes:       header.Classes,
		BoxLossWeight: header.BoxLossWeight,
	})

	if err != nil {
		return nil, fmt.Errorf("checkpoint %s: %w", dir, err)
	}

	if err := n.LoadWeights(dir); err != nil {
		return nil, err
	}

	return n, nil
}

// readWeights loads the weight vector from dir, expecting exactly want
// values
func readWeights(dir string, want int) ([]float32, error) {

	if buf, err := os.ReadFile(filepath.Join(dir, weightsFile)); err == nil {

		if len(buf) != want*4 {
			return nil, fmt.Errorf("%s holds %d bytes, want %d: %w",
				weightsFile, len(buf), want*4, boxtrain.ErrCheckpoint)
		}

		vals := make([]float32, want)

		for i := range vals {
			vals[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
		}

		return vals, nil
	}

	buf, err := os.ReadFile(filepath.Join(dir, weightsF16File))

	if err != nil {
		return nil, fmt.Errorf("checkpoint %s has no weights: %w",
			dir, boxtrain.ErrCheckpoint)
	}

	if len(buf) != want*2 {
		return nil, fmt.Errorf("%s holds %d bytes, want %d: %w",
			weightsF16File, len(buf), want*2, boxtrain.ErrCheckpoint)
	}

	bits := make([]uint16, want)

	for i := range bits {
		bits[i] = binary.LittleEndian.Uint16(buf[i*2:])
	}

	return f16BitsToFloat32(bits), nil
}
