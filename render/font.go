package render

import (
	"image/color"

	"gocv.io/x/gocv"
)

// Alignment places a box label along the top edge of its bounding box.
// The zero value anchors labels to the left corner.
type Alignment int

const (
	// Left anchors the label to the top left corner of the box
	Left Alignment = iota
	// Center spreads the label across the middle of the top edge
	Center
	// Right anchors the label to the top right corner of the box
	Right
)

// Font bundles the gocv text parameters used to label boxes, along with the
// padding and placement of the filled plate the text is drawn on
type Font struct {
	Face      gocv.HersheyFont
	Scale     float64
	Color     color.RGBA
	Thickness int
	LineType  gocv.LineType
	// Padding between the text and the edges of its label plate
	LeftPad   int
	RightPad  int
	TopPad    int
	BottomPad int
	// Alignment of the label plate along the top edge of the box
	Alignment Alignment
}

// DefaultFont returns the style for detection labels, the class name and
// confidence score drawn above the top left corner of each predicted box
func DefaultFont() Font {
	return Font{
		Face:      gocv.FontHersheySimplex,
		Scale:     0.5,
		Color:     White,
		Thickness: 1,
		LineType:  gocv.LineAA,
		LeftPad:   4,
		RightPad:  4,
		TopPad:    4,
		BottomPad: 6,
		Alignment: Left,
	}
}

// GroundTruthFont returns the style for annotation labels.  It is smaller
// than DefaultFont and right aligned, so when a gallery tile carries both
// the annotations and the decoded detections the two labels for the same
// object land on opposite corners instead of on top of each other.
func GroundTruthFont() Font {
	return Font{
		Face:      gocv.FontHersheyPlain,
		Scale:     0.9,
		Color:     White,
		Thickness: 1,
		LineType:  gocv.LineAA,
		LeftPad:   3,
		RightPad:  3,
		TopPad:    3,
		BottomPad: 4,
		Alignment: Right,
	}
}
