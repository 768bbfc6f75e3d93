package preprocess

import (
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/boxtrain/boxtrain"
)

// shiftStage moves every box one pixel right, leaving the image alone
type shiftStage struct{}

func (shiftStage) Apply(s *boxtrain.Sample, rng *rand.Rand) (*boxtrain.Sample, error) {

	out := s.Clone()

	for i, b := range out.Boxes {
		out.Boxes[i] = b.Translate(1, 0)
	}

	return out, nil
}

// growStage doubles every box
type growStage struct{}

func (growStage) Apply(s *boxtrain.Sample, rng *rand.Rand) (*boxtrain.Sample, error) {

	out := s.Clone()

	for i, b := range out.Boxes {
		out.Boxes[i] = b.Scale(2)
	}

	return out, nil
}

// failStage rejects every sample
type failStage struct {
	err error
}

func (f failStage) Apply(s *boxtrain.Sample, rng *rand.Rand) (*boxtrain.Sample, error) {
	return nil, f.err
}

func TestPipelinePassthrough(t *testing.T) {

	s := newTestSample(t, 8, 4, 100,
		[]boxtrain.Box{{X: 1, Y: 1, W: 2, H: 2}}, []int32{5})

	batch := &boxtrain.Batch{Samples: []*boxtrain.Sample{s}}
	defer batch.Close()

	// stages present but training disabled, nothing may change
	p := NewPipeline(1, false, shiftStage{}, growStage{})

	out, err := p.Apply(batch)

	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	defer out.Close()

	if out.Samples[0].Boxes[0] != s.Boxes[0] {
		t.Errorf("passthrough moved box to %+v", out.Samples[0].Boxes[0])
	}

	// the output is a copy, poking it must not reach the input
	data, err := out.Samples[0].Image.DataPtrUint8()

	if err != nil {
		t.Fatalf("DataPtrUint8 failed: %v", err)
	}

	data[0] = 9

	srcData, _ := s.Image.DataPtrUint8()

	if srcData[0] != 100 {
		t.Error("output shares image memory with the input sample")
	}
}

func TestPipelineStageOrder(t *testing.T) {

	s := newTestSample(t, 20, 20, 0,
		[]boxtrain.Box{{X: 2, Y: 2, W: 4, H: 4}}, []int32{0})

	batch := &boxtrain.Batch{Samples: []*boxtrain.Sample{s}}
	defer batch.Close()

	// shift then grow gives (2+1)*2, the reverse would give 2*2+1
	p := NewPipeline(1, true, shiftStage{}, growStage{})

	out, err := p.Apply(batch)

	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	defer out.Close()

	want := boxtrain.Box{X: 6, Y: 4, W: 8, H: 8}

	if out.Samples[0].Boxes[0] != want {
		t.Errorf("stages ran out of order: box = %+v; want %+v",
			out.Samples[0].Boxes[0], want)
	}
}

func TestPipelineStageError(t *testing.T) {

	bad := errors.New("distortion out of range")

	batch := &boxtrain.Batch{Samples: []*boxtrain.Sample{
		newTestSample(t, 8, 8, 0, nil, nil),
		newTestSample(t, 8, 8, 0, nil, nil),
	}}
	defer batch.Close()

	p := NewPipeline(1, true, failStage{err: bad})

	_, err := p.Apply(batch)

	if !errors.Is(err, bad) {
		t.Fatalf("Apply error = %v; want the stage error", err)
	}

	if !strings.Contains(err.Error(), "sample 0") {
		t.Errorf("error %q does not name the failing sample", err)
	}
}

func TestPipelineReproducible(t *testing.T) {

	build := func() *boxtrain.Batch {
		batch := &boxtrain.Batch{}
		for i := 0; i < 4; i++ {
			batch.Samples = append(batch.Samples, newTestSample(t, 64, 48,
				float64(10*i), []boxtrain.Box{{X: 8, Y: 8, W: 16, H: 16}},
				[]int32{int32(i)}))
		}
		return batch
	}

	run := func(batch *boxtrain.Batch) *boxtrain.Batch {
		p := NewPipeline(42, true,
			NewHorizontalFlip(), NewRandomBrightness(),
			NewJitteredResize(32, 32))

		out, err := p.Apply(batch)

		if err != nil {
			t.Fatalf("Apply failed: %v", err)
		}

		return out
	}

	first := build()
	defer first.Close()
	second := build()
	defer second.Close()

	outA := run(first)
	defer outA.Close()
	outB := run(second)
	defer outB.Close()

	for i := range outA.Samples {

		a, b := outA.Samples[i], outB.Samples[i]

		if len(a.Boxes) != len(b.Boxes) {
			t.Fatalf("sample %d: box counts %d and %d differ under the same seed",
				i, len(a.Boxes), len(b.Boxes))
		}

		for k := range a.Boxes {
			if a.Boxes[k] != b.Boxes[k] {
				t.Errorf("sample %d box %d: %+v vs %+v under the same seed",
					i, k, a.Boxes[k], b.Boxes[k])
			}
		}

		da, _ := a.Image.DataPtrUint8()
		db, _ := b.Image.DataPtrUint8()

		for k := range da {
			if da[k] != db[k] {
				t.Fatalf("sample %d: pixel %d differs under the same seed", i, k)
			}
		}
	}
}
