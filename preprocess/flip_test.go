package preprocess

import (
	"math/rand"
	"testing"

	"github.com/boxtrain/boxtrain"
)

func TestHorizontalFlip(t *testing.T) {

	s := newTestSample(t, 8, 4, 0,
		[]boxtrain.Box{{X: 1, Y: 2, W: 3, H: 1}}, []int32{2})
	defer s.Close()

	// mark one pixel so the mirror is visible in the image data
	data, err := s.Image.DataPtrUint8()

	if err != nil {
		t.Fatalf("DataPtrUint8 failed: %v", err)
	}

	data[(2*8+1)*3] = 200

	flip := &HorizontalFlip{Prob: 1}

	out, err := flip.Apply(s, rand.New(rand.NewSource(1)))

	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	defer out.Close()

	want := boxtrain.Box{X: 4, Y: 2, W: 3, H: 1}

	if out.Boxes[0] != want {
		t.Errorf("box flipped to %+v; want %+v", out.Boxes[0], want)
	}

	outData, _ := out.Image.DataPtrUint8()

	if outData[(2*8+6)*3] != 200 {
		t.Error("marked pixel did not mirror to column 6")
	}

	if outData[(2*8+1)*3] != 0 {
		t.Error("marked pixel still present at its original column")
	}

	// the input keeps its original orientation
	if data[(2*8+1)*3] != 200 {
		t.Error("Apply mutated its input sample")
	}
}

func TestHorizontalFlipInvolution(t *testing.T) {

	s := newTestSample(t, 10, 6, 30,
		[]boxtrain.Box{{X: 2, Y: 1, W: 3, H: 4}, {X: 7, Y: 0, W: 2, H: 2}},
		[]int32{0, 1})
	defer s.Close()

	flip := &HorizontalFlip{Prob: 1}
	rng := rand.New(rand.NewSource(1))

	once, err := flip.Apply(s, rng)

	if err != nil {
		t.Fatalf("first Apply failed: %v", err)
	}

	defer once.Close()

	twice, err := flip.Apply(once, rng)

	if err != nil {
		t.Fatalf("second Apply failed: %v", err)
	}

	defer twice.Close()

	// mirroring twice lands every box back where it started
	for i, want := range s.Boxes {
		if twice.Boxes[i] != want {
			t.Errorf("box %d ended at %+v; want %+v", i, twice.Boxes[i], want)
		}
	}
}

func TestHorizontalFlipNever(t *testing.T) {

	s := newTestSample(t, 8, 4, 50,
		[]boxtrain.Box{{X: 1, Y: 2, W: 3, H: 1}}, []int32{2})
	defer s.Close()

	flip := &HorizontalFlip{Prob: 0}

	out, err := flip.Apply(s, rand.New(rand.NewSource(1)))

	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	defer out.Close()

	if out.Boxes[0] != s.Boxes[0] {
		t.Errorf("zero probability still moved the box to %+v", out.Boxes[0])
	}
}
