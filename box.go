package boxtrain

import (
	"github.com/chewxy/math32"
)

// Box is a bounding box in the one canonical convention used across the
// whole pipeline: top-left corner plus width and height, in absolute
// pixels.  Components never guess at a coordinate convention; converters at
// the dataset boundary translate source formats into this one using the
// actual image dimensions.
type Box struct {
	X float32
	Y float32
	W float32
	H float32
}

// BoxFromCorners builds a Box from absolute min/max corner coordinates
func BoxFromCorners(xmin, ymin, xmax, ymax float32) Box {
	return Box{X: xmin, Y: ymin, W: xmax - xmin, H: ymax - ymin}
}

// BoxFromNormalized builds a Box from corner coordinates normalized to the
// 0..1 range, using the actual image dimensions
func BoxFromNormalized(xmin, ymin, xmax, ymax float32, imgWidth, imgHeight int) Box {
	return BoxFromCorners(
		xmin*float32(imgWidth), ymin*float32(imgHeight),
		xmax*float32(imgWidth), ymax*float32(imgHeight),
	)
}

// X2 returns the right edge of the box
func (b Box) X2() float32 {
	return b.X + b.W
}

// Y2 returns the bottom edge of the box
func (b Box) Y2() float32 {
	return b.Y + b.H
}

// Area returns the box area, zero for degenerate boxes
func (b Box) Area() float32 {
	if b.W <= 0 || b.H <= 0 {
		return 0
	}
	return b.W * b.H
}

// Empty reports whether the box encloses no area
func (b Box) Empty() bool {
	return b.W <= 0 || b.H <= 0
}

// Intersection returns the overlapping region of two boxes, which is empty
// when they do not overlap
func (b Box) Intersection(other Box) Box {
	x1 := math32.Max(b.X, other.X)
	y1 := math32.Max(b.Y, other.Y)
	x2 := math32.Min(b.X2(), other.X2())
	y2 := math32.Min(b.Y2(), other.Y2())

	if x2 <= x1 || y2 <= y1 {
		return Box{}
	}

	return BoxFromCorners(x1, y1, x2, y2)
}

// IOU returns the Intersection over Union of two boxes
func (b Box) IOU(other Box) float32 {

	intersection := b.Intersection(other).Area()
	union := b.Area() + other.Area() - intersection

	if union <= 0 {
		return 0
	}

	return intersection / union
}

// Scale returns the box scaled uniformly about the image origin
func (b Box) Scale(s float32) Box {
	return Box{X: b.X * s, Y: b.Y * s, W: b.W * s, H: b.H * s}
}

// Translate returns the box shifted by the given offsets
func (b Box) Translate(dx, dy float32) Box {
	return Box{X: b.X + dx, Y: b.Y + dy, W: b.W, H: b.H}
}

// FlipHorizontal mirrors the box inside an image of the given width
func (b Box) FlipHorizontal(imageWidth float32) Box {
	return Box{X: imageWidth - b.X - b.W, Y: b.Y, W: b.W, H: b.H}
}

// Clip restricts the box to the image bounds [0,0,width,height].  The
// result may be empty when the box lies entirely outside
func (b Box) Clip(width, height float32) Box {

	x1 := math32.Max(b.X, 0)
	y1 := math32.Max(b.Y, 0)
	x2 := math32.Min(b.X2(), width)
	y2 := math32.Min(b.Y2(), height)

	if x2 <= x1 || y2 <= y1 {
		return Box{X: math32.Min(x1, width), Y: math32.Min(y1, height)}
	}

	return BoxFromCorners(x1, y1, x2, y2)
}

// appendFlat appends the box to a flat [x y w h ...] coordinate buffer
func (b Box) appendFlat(dst []float32) []float32 {
	return append(dst, b.X, b.Y, b.W, b.H)
}

// boxFromFlat reads one box from a flat coordinate buffer at the given
// box index
func boxFromFlat(buf []float32, idx int) Box {
	off := idx * 4
	return Box{X: buf[off], Y: buf[off+1], W: buf[off+2], H: buf[off+3]}
}
