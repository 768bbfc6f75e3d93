package render

import (
	"fmt"
	"image"
	"image/color"

	"github.com/boxtrain/boxtrain"
	"gocv.io/x/gocv"
)

// boxLabel holds the precalculated rendering details of one box label
type boxLabel struct {
	rect    image.Rectangle
	clr     color.RGBA
	text    string
	textPos image.Point
}

// DetectionBoxes renders the bounding boxes around the objects detected
func DetectionBoxes(img *gocv.Mat, dets []boxtrain.Detection,
	classes *boxtrain.ClassMapping, font Font, lineThickness int) {

	// keep a record of all box labels for later rendering
	boxLabels := make([]boxLabel, 0, len(dets))

	// draw detection boxes
	for _, det := range dets {

		useClr := classColor(det.ClassID)

		left := int(det.Box.X)
		top := int(det.Box.Y)
		right := int(det.Box.X2())
		bottom := int(det.Box.Y2())

		// draw rectangle around detected object
		rect := image.Rect(left, top, right, bottom)
		gocv.Rectangle(img, rect, useClr, lineThickness)

		// create text for label
		text := fmt.Sprintf("%s %.2f", classes.Name(det.ClassID), det.Confidence)

		boxLabels = append(boxLabels,
			labelFor(left, top, right, useClr, text, font, lineThickness))
	}

	drawLabels(img, boxLabels, font)
}

// GroundTruthBoxes renders the annotated boxes of a labelled sample, used to
// compare model output against the ground truth
func GroundTruthBoxes(img *gocv.Mat, boxes []boxtrain.Box, classIDs []int32,
	classes *boxtrain.ClassMapping, font Font, lineThickness int) {

	boxLabels := make([]boxLabel, 0, len(boxes))

	for i, b := range boxes {

		var classID int32 = -1

		if i < len(classIDs) {
			classID = classIDs[i]
		}

		useClr := classColor(classID)

		left := int(b.X)
		top := int(b.Y)
		right := int(b.X2())
		bottom := int(b.Y2())

		// draw rectangle around annotated object
		rect := image.Rect(left, top, right, bottom)
		gocv.Rectangle(img, rect, useClr, lineThickness)

		boxLabels = append(boxLabels,
			labelFor(left, top, right, useClr, classes.Name(classID), font,
				lineThickness))
	}

	drawLabels(img, boxLabels, font)
}

// labelFor calculates the placement of a box label along the top edge of a
// box rectangle, honouring the font alignment
func labelFor(left, top, right int, useClr color.RGBA, text string,
	font Font, lineThickness int) boxLabel {

	textSize := gocv.GetTextSize(text, font.Face, font.Scale, font.Thickness)

	// Calculate the alignment of text label
	var centerX int

	switch font.Alignment {
	case Center:
		centerX = (left + right) / 2

	case Right:
		centerX = right - (textSize.X / 2) - font.RightPad + (lineThickness / 2)

	case Left:
		fallthrough
	default:
		centerX = left + (textSize.X / 2) + font.LeftPad - (lineThickness / 2)
	}

	// Adjust the label position so the text is centered horizontally
	labelPosition := image.Pt(centerX-textSize.X/2, top-font.BottomPad)

	// create box for placing text on
	bRect := image.Rect(centerX-textSize.X/2-font.LeftPad,
		top-textSize.Y-font.TopPad-font.BottomPad,
		centerX+textSize.X/2+font.RightPad, top)

	return boxLabel{
		rect:    bRect,
		clr:     useClr,
		text:    text,
		textPos: labelPosition,
	}
}

// drawLabels draws all precalculated box labels so they are the top most
// layer on the image and don't get overlapped by neighbouring box lines
func drawLabels(img *gocv.Mat, boxLabels []boxLabel, font Font) {

	for _, box := range boxLabels {
		// draw box text gets written on
		gocv.Rectangle(img, box.rect, box.clr, -1)

		// Draw the label over box
		gocv.PutTextWithParams(img, box.text, box.textPos,
			font.Face, font.Scale, font.Color, font.Thickness,
			font.LineType, false)
	}
}
