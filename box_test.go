package boxtrain

import (
	"testing"
)

func TestBoxCorners(t *testing.T) {

	b := BoxFromCorners(10, 20, 30, 60)

	if b.X != 10 || b.Y != 20 || b.W != 20 || b.H != 40 {
		t.Errorf("BoxFromCorners gave %+v; want {10 20 20 40}", b)
	}

	if b.X2() != 30 || b.Y2() != 60 {
		t.Errorf("edges are %v, %v; want 30, 60", b.X2(), b.Y2())
	}

	if b.Area() != 800 {
		t.Errorf("Area is %v, not 800", b.Area())
	}

	n := BoxFromNormalized(0.25, 0.5, 0.75, 1.0, 100, 200)

	if n.X != 25 || n.Y != 100 || n.W != 50 || n.H != 100 {
		t.Errorf("BoxFromNormalized gave %+v; want {25 100 50 100}", n)
	}
}

func TestBoxIOU(t *testing.T) {

	a := Box{X: 0, Y: 0, W: 10, H: 10}
	b := Box{X: 5, Y: 5, W: 10, H: 10}

	// overlap 25, union 175
	want := float32(25.0 / 175.0)

	if got := a.IOU(b); got != want {
		t.Errorf("IOU is %v, not %v", got, want)
	}

	if got := a.IOU(Box{X: 20, Y: 20, W: 5, H: 5}); got != 0 {
		t.Errorf("IOU of disjoint boxes is %v, not 0", got)
	}

	if got := a.IOU(a); got != 1 {
		t.Errorf("IOU of a box with itself is %v, not 1", got)
	}

	if !a.Intersection(Box{X: 50, Y: 50, W: 1, H: 1}).Empty() {
		t.Error("intersection of disjoint boxes should be empty")
	}
}

func TestBoxFlipHorizontal(t *testing.T) {

	b := Box{X: 10, Y: 5, W: 20, H: 30}
	f := b.FlipHorizontal(100)

	if f.X != 70 || f.Y != 5 || f.W != 20 || f.H != 30 {
		t.Errorf("flipped box is %+v; want {70 5 20 30}", f)
	}

	// flipping twice is the identity
	if got := f.FlipHorizontal(100); got != b {
		t.Errorf("double flip gave %+v; want %+v", got, b)
	}
}

func TestBoxClip(t *testing.T) {

	b := Box{X: -10, Y: -5, W: 30, H: 20}
	c := b.Clip(100, 100)

	if c.X != 0 || c.Y != 0 || c.W != 20 || c.H != 15 {
		t.Errorf("clipped box is %+v; want {0 0 20 15}", c)
	}

	// fully outside clips to empty
	out := Box{X: 200, Y: 200, W: 10, H: 10}.Clip(100, 100)

	if !out.Empty() {
		t.Errorf("box outside the image clipped to %+v; want empty", out)
	}

	// fully inside is untouched
	in := Box{X: 10, Y: 10, W: 5, H: 5}

	if got := in.Clip(100, 100); got != in {
		t.Errorf("interior box clipped to %+v; want %+v", got, in)
	}
}

func TestBoxScaleTranslate(t *testing.T) {

	b := Box{X: 10, Y: 20, W: 30, H: 40}

	s := b.Scale(0.5)

	if s.X != 5 || s.Y != 10 || s.W != 15 || s.H != 20 {
		t.Errorf("scaled box is %+v; want {5 10 15 20}", s)
	}

	m := b.Translate(-10, 5)

	if m.X != 0 || m.Y != 25 || m.W != 30 || m.H != 40 {
		t.Errorf("translated box is %+v; want {0 25 30 40}", m)
	}
}
