package preprocess

import (
	"image/color"
	"math/rand"
	"testing"

	"github.com/boxtrain/boxtrain"
)

func TestJitteredResizeFitScale(t *testing.T) {

	// a unit jitter range pins the scale to the deterministic fit factor
	// of 0.5, and the resized image exactly covers the canvas so there is
	// no random placement left either
	tests := []struct {
		name          string
		minVisibility float32
		expectedBoxes []boxtrain.Box
		expectedIDs   []int32
	}{
		{
			"keeps clipped box",
			0.3,
			[]boxtrain.Box{{X: 10, Y: 10, W: 20, H: 20}, {X: 40, Y: 5, W: 10, H: 10}},
			[]int32{3, 9},
		},
		{
			"drops mostly cropped box",
			0.6,
			[]boxtrain.Box{{X: 10, Y: 10, W: 20, H: 20}},
			[]int32{3},
		},
	}

	for _, tc := range tests {

		s := newTestSample(t, 100, 100, 77,
			[]boxtrain.Box{
				{X: 20, Y: 20, W: 40, H: 40},
				{X: 80, Y: 10, W: 40, H: 20}, // half off the canvas at scale 0.5
			},
			[]int32{3, 9})

		stage := &JitteredResize{
			TargetWidth:   50,
			TargetHeight:  50,
			ScaleMin:      1,
			ScaleMax:      1,
			MinVisibility: tc.minVisibility,
			PadColor:      color.RGBA{A: 255},
		}

		out, err := stage.Apply(s, rand.New(rand.NewSource(1)))

		if err != nil {
			t.Fatalf("%s: Apply failed: %v", tc.name, err)
		}

		if out.Width() != 50 || out.Height() != 50 {
			t.Fatalf("%s: output is %dx%d; want 50x50",
				tc.name, out.Width(), out.Height())
		}

		if len(out.Boxes) != len(tc.expectedBoxes) {
			t.Fatalf("%s: got %d boxes; want %d",
				tc.name, len(out.Boxes), len(tc.expectedBoxes))
		}

		for i, want := range tc.expectedBoxes {
			if out.Boxes[i] != want {
				t.Errorf("%s: box %d = %+v; want %+v",
					tc.name, i, out.Boxes[i], want)
			}
			if out.Classes[i] != tc.expectedIDs[i] {
				t.Errorf("%s: class %d = %d; want %d",
					tc.name, i, out.Classes[i], tc.expectedIDs[i])
			}
		}

		// the resized image covers the whole canvas here
		data, _ := out.Image.DataPtrUint8()

		if data[(25*50+25)*3] != 77 {
			t.Errorf("%s: canvas pixel = %d; want 77", tc.name, data[(25*50+25)*3])
		}

		out.Close()
		s.Close()
	}
}

func TestJitteredResizeRandomPlacement(t *testing.T) {

	s := newTestSample(t, 100, 100, 30,
		[]boxtrain.Box{{X: 20, Y: 20, W: 40, H: 40}}, []int32{1})
	defer s.Close()

	stage := &JitteredResize{
		TargetWidth:   100,
		TargetHeight:  100,
		ScaleMin:      0.5,
		ScaleMax:      0.5,
		MinVisibility: 0.3,
		PadColor:      color.RGBA{A: 255},
	}

	rng := rand.New(rand.NewSource(3))

	for trial := 0; trial < 10; trial++ {

		out, err := stage.Apply(s, rng)

		if err != nil {
			t.Fatalf("trial %d: Apply failed: %v", trial, err)
		}

		if out.Width() != 100 || out.Height() != 100 {
			t.Fatalf("trial %d: output is %dx%d; want 100x100",
				trial, out.Width(), out.Height())
		}

		if len(out.Boxes) != 1 {
			t.Fatalf("trial %d: got %d boxes; want 1", trial, len(out.Boxes))
		}

		b := out.Boxes[0]

		// the box shrinks with the image and lands somewhere random, but
		// its size is exact and it never leaves the canvas
		if b.W != 20 || b.H != 20 {
			t.Errorf("trial %d: box size %gx%g; want 20x20", trial, b.W, b.H)
		}

		if b.X < 0 || b.Y < 0 || b.X2() > 100 || b.Y2() > 100 {
			t.Errorf("trial %d: box %+v outside the canvas", trial, b)
		}

		if out.Classes[0] != 1 {
			t.Errorf("trial %d: class = %d; want 1", trial, out.Classes[0])
		}

		out.Close()
	}
}
