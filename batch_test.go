package boxtrain

import (
	"errors"
	"io"
	"testing"

	"gocv.io/x/gocv"
)

// testSample builds a valid sample with one box whose class id tags the
// sample so tests can follow ordering
func testSample(t *testing.T, width, height int, tag int32) *Sample {
	t.Helper()

	img := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)

	s, err := NewSample(img,
		[]Box{{X: 1, Y: 1, W: 2, H: 2}}, []int32{tag})

	if err != nil {
		t.Fatalf("NewSample failed: %v", err)
	}

	return s
}

// sliceSource serves clones of a fixed sample list and counts resets
type sliceSource struct {
	samples []*Sample
	pos     int
	resets  int
}

func (s *sliceSource) Next() (*Sample, error) {

	if s.pos >= len(s.samples) {
		return nil, io.EOF
	}

	out := s.samples[s.pos].Clone()
	s.pos++

	return out, nil
}

func (s *sliceSource) Reset() error {
	s.pos = 0
	s.resets++
	return nil
}

func (s *sliceSource) Close() error {

	for _, smp := range s.samples {
		_ = smp.Close()
	}

	return nil
}

func newSliceSource(t *testing.T, count int) *sliceSource {
	t.Helper()

	src := &sliceSource{}

	for i := 0; i < count; i++ {
		src.samples = append(src.samples, testSample(t, 8, 8, int32(i)))
	}

	return src
}

func TestBatcherGroupingAndOrder(t *testing.T) {

	src := newSliceSource(t, 5)
	defer src.Close()

	b, err := NewBatcher(src, 2)

	if err != nil {
		t.Fatalf("NewBatcher failed: %v", err)
	}

	wantSizes := []int{2, 2, 1}
	tag := int32(0)

	for i, want := range wantSizes {

		batch, err := b.Next()

		if err != nil {
			t.Fatalf("batch %d: Next failed: %v", i, err)
		}

		if batch.Len() != want {
			t.Errorf("batch %d has %d samples; want %d", i, batch.Len(), want)
		}

		// arrival order must be preserved within and across batches
		for j, s := range batch.Samples {
			if s.Classes[0] != tag {
				t.Errorf("batch %d sample %d tagged %d; want %d", i, j, s.Classes[0], tag)
			}
			tag++
		}

		batch.Close()
	}

	if _, err := b.Next(); err != io.EOF {
		t.Errorf("expected io.EOF after exhaustion, got %v", err)
	}

	// a reset rewinds for another full pass
	if err := b.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	batch, err := b.Next()

	if err != nil {
		t.Fatalf("Next after Reset failed: %v", err)
	}

	if batch.Len() != 2 || batch.Samples[0].Classes[0] != 0 {
		t.Errorf("after Reset got %d samples starting at tag %d; want 2 starting at 0",
			batch.Len(), batch.Samples[0].Classes[0])
	}

	batch.Close()
}

func TestBatcherSizeValidation(t *testing.T) {

	src := newSliceSource(t, 1)
	defer src.Close()

	if _, err := NewBatcher(src, 0); !errors.Is(err, ErrConfig) {
		t.Errorf("expected config error for batch size 0, got %v", err)
	}
}
