package boxtrain

import (
	"errors"
	"testing"

	"gocv.io/x/gocv"
)

func TestDensifyPadding(t *testing.T) {

	s1 := testSample(t, 8, 4, 7)
	s1.Boxes = append(s1.Boxes, Box{X: 3, Y: 2, W: 1, H: 1})
	s1.Classes = append(s1.Classes, 9)

	img := gocv.NewMatWithSize(4, 8, gocv.MatTypeCV8UC3)
	s2, err := NewSample(img, nil, nil)

	if err != nil {
		t.Fatalf("NewSample failed: %v", err)
	}

	batch := &Batch{Samples: []*Sample{s1, s2}}
	defer batch.Close()

	dense, err := NewDensifier(4).Densify(batch)

	if err != nil {
		t.Fatalf("Densify failed: %v", err)
	}

	defer dense.Close()

	if dense.Size() != 2 || dense.Capacity() != 4 {
		t.Fatalf("dense batch is %dx%d; want 2x4", dense.Size(), dense.Capacity())
	}

	if dense.Width() != 8 || dense.Height() != 4 || dense.Channels() != 3 {
		t.Errorf("dense shape %dx%dx%d; want 8x4x3",
			dense.Width(), dense.Height(), dense.Channels())
	}

	if dense.Count(0) != 2 || dense.Count(1) != 0 {
		t.Errorf("counts = %d, %d; want 2, 0", dense.Count(0), dense.Count(1))
	}

	// real slots keep their values, padding slots carry the sentinel
	classes := dense.FlatClasses()
	wantClasses := []int32{7, 9, PadClassID, PadClassID,
		PadClassID, PadClassID, PadClassID, PadClassID}

	for i, want := range wantClasses {
		if classes[i] != want {
			t.Errorf("class slot %d = %d; want %d", i, classes[i], want)
		}
	}

	// padded box slots are all zero
	boxes := dense.FlatBoxes()

	if len(boxes) != 2*4*4 {
		t.Fatalf("flat boxes hold %d values; want %d", len(boxes), 2*4*4)
	}

	for i := 2 * 4; i < len(boxes); i++ {
		if boxes[i] != 0 {
			t.Errorf("padding box value %d = %f; want 0", i, boxes[i])
		}
	}

	// the unpadded views round-trip the originals
	got := dense.BoxesAt(0)

	if len(got) != 2 || got[0] != s1.Boxes[0] || got[1] != s1.Boxes[1] {
		t.Errorf("BoxesAt(0) = %v; want %v", got, s1.Boxes)
	}

	if len(dense.BoxesAt(1)) != 0 || len(dense.ClassesAt(1)) != 0 {
		t.Errorf("row 1 should expose no boxes or classes")
	}
}

func TestDensifyImageLayout(t *testing.T) {

	// two 2x3 images with distinct constant bytes
	mk := func(val uint8) *Sample {
		img := gocv.NewMatWithSizeFromScalar(
			gocv.NewScalar(float64(val), float64(val), float64(val), 0),
			2, 3, gocv.MatTypeCV8UC3)

		s, err := NewSample(img, nil, nil)

		if err != nil {
			t.Fatalf("NewSample failed: %v", err)
		}

		return s
	}

	batch := &Batch{Samples: []*Sample{mk(11), mk(22)}}
	defer batch.Close()

	dense, err := NewDensifier(1).Densify(batch)

	if err != nil {
		t.Fatalf("Densify failed: %v", err)
	}

	defer dense.Close()

	images := dense.Images()
	data, err := images.DataPtrUint8()

	if err != nil {
		t.Fatalf("DataPtrUint8 on dense images failed: %v", err)
	}

	imgSize := 2 * 3 * 3

	if len(data) != 2*imgSize {
		t.Fatalf("dense image buffer holds %d bytes; want %d", len(data), 2*imgSize)
	}

	// first image's bytes then the second's, nothing interleaved
	for i := 0; i < imgSize; i++ {
		if data[i] != 11 {
			t.Errorf("element %d = %d; want 11 from img1", i, data[i])
		}
	}

	for i := 0; i < imgSize; i++ {
		if data[imgSize+i] != 22 {
			t.Errorf("element %d = %d; want 22 from img2", imgSize+i, data[imgSize+i])
		}
	}
}

func TestDensifyOverflowPolicies(t *testing.T) {

	mk := func() *Batch {
		s := testSample(t, 8, 8, 0)
		s.Boxes = []Box{{X: 0, Y: 0, W: 1, H: 1}, {X: 1, Y: 1, W: 1, H: 1}, {X: 2, Y: 2, W: 1, H: 1}}
		s.Classes = []int32{0, 1, 2}
		return &Batch{Samples: []*Sample{s}}
	}

	// truncation keeps the first boxes in annotation order
	batch := mk()
	d := NewDensifier(2)

	dense, err := d.Densify(batch)

	if err != nil {
		t.Fatalf("Densify with truncation failed: %v", err)
	}

	if dense.Count(0) != 2 {
		t.Errorf("count = %d; want 2 after truncation", dense.Count(0))
	}

	if got := dense.ClassesAt(0); got[0] != 0 || got[1] != 1 {
		t.Errorf("truncation kept classes %v; want [0 1]", got)
	}

	dense.Close()
	batch.Close()

	// the error policy rejects the batch outright
	batch = mk()
	defer batch.Close()

	d.Overflow = OverflowError

	if _, err := d.Densify(batch); !errors.Is(err, ErrOverflow) {
		t.Errorf("expected overflow error, got %v", err)
	}
}

func TestDensifyShapeMismatch(t *testing.T) {

	batch := &Batch{Samples: []*Sample{
		testSample(t, 8, 8, 0),
		testSample(t, 8, 6, 1),
	}}
	defer batch.Close()

	if _, err := NewDensifier(4).Densify(batch); !errors.Is(err, ErrShape) {
		t.Errorf("expected shape error for mixed image sizes, got %v", err)
	}
}

func TestDensifyEmptyBatch(t *testing.T) {

	if _, err := NewDensifier(4).Densify(&Batch{}); !errors.Is(err, ErrSchema) {
		t.Errorf("expected schema error for empty batch, got %v", err)
	}
}

func TestDensifyPooledMats(t *testing.T) {

	mk := func(vals ...uint8) *Batch {
		batch := &Batch{}

		for _, v := range vals {
			img := gocv.NewMatWithSizeFromScalar(
				gocv.NewScalar(float64(v), float64(v), float64(v), 0),
				4, 4, gocv.MatTypeCV8UC3)

			s, err := NewSample(img, nil, nil)

			if err != nil {
				t.Fatalf("NewSample failed: %v", err)
			}

			batch.Samples = append(batch.Samples, s)
		}

		return batch
	}

	check := func(dense *DenseBatch, vals ...uint8) {
		t.Helper()

		data, err := dense.Images().DataPtrUint8()

		if err != nil {
			t.Fatalf("DataPtrUint8 on dense images failed: %v", err)
		}

		imgSize := 4 * 4 * 3

		if len(data) != len(vals)*imgSize {
			t.Fatalf("dense image buffer holds %d bytes; want %d",
				len(data), len(vals)*imgSize)
		}

		for i, v := range vals {
			for j := 0; j < imgSize; j++ {
				if data[i*imgSize+j] != v {
					t.Fatalf("image %d byte %d = %d; want %d",
						i, j, data[i*imgSize+j], v)
				}
			}
		}
	}

	pool := NewDensePool(1, 2, 4, 4, 3)
	defer pool.Close()

	den := NewDensifier(3)
	den.Pool = pool

	batch := mk(11, 22)
	dense, err := den.Densify(batch)

	if err != nil {
		t.Fatalf("Densify failed: %v", err)
	}

	check(dense, 11, 22)

	// hands the image mat back to the pool
	if err := dense.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	batch.Close()

	// the recycled mat carries no bytes from the previous batch
	batch = mk(33, 44)
	dense, err = den.Densify(batch)

	if err != nil {
		t.Fatalf("Densify on recycled mat failed: %v", err)
	}

	check(dense, 33, 44)

	if err := dense.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	batch.Close()

	// a batch of a different size bypasses the pool
	batch = mk(55)
	defer batch.Close()

	dense, err = den.Densify(batch)

	if err != nil {
		t.Fatalf("Densify on short batch failed: %v", err)
	}

	check(dense, 55)

	if err := dense.Close(); err != nil {
		t.Fatalf("Close on unpooled batch failed: %v", err)
	}
}
