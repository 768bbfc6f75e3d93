// Package postprocess decodes raw detection model outputs into final
// bounding box results and maps them back into source image coordinates.
package postprocess

import (
	"math"

	flatbush "github.com/bmharper/flatbush-go"
	"github.com/boxtrain/boxtrain"
)

// NMSDecoder turns one image's raw candidate grid into final detections:
// a confidence filter drops weak candidates, then per-class Non-Maximum
// Suppression keeps the higher-confidence box of any overlapping pair.
// Thresholds are plain fields so inference can swap them without touching
// trained weights.
type NMSDecoder struct {
	// ConfThreshold is the minimum best-class score required for a
	// candidate box to be considered for processing
	ConfThreshold float32
	// NMSThreshold is the maximum allowed Intersection over Union (IoU)
	// between two same-class boxes for both to be kept
	NMSThreshold float32
	// MaxDetections is the maximum number of detected objects that can be
	// returned for one image
	MaxDetections int
	// IndexedMin is the candidate count at which suppression switches
	// from the pairwise scan to a spatial index
	IndexedMin int
}

// NewNMSDecoder returns a decoder configured with the conventional
// detection defaults:
// - Confidence Threshold: 0.25
// - NMS Threshold: 0.45
// - Maximum Detections: 64
func NewNMSDecoder() *NMSDecoder {
	return &NMSDecoder{
		ConfThreshold: 0.25,
		NMSThreshold:  0.45,
		MaxDetections: 64,
		IndexedMin:    256,
	}
}

// Decode filters, suppresses, and collates the candidates of one image.
// Results come back in descending confidence order, capped at
// MaxDetections.
func (d *NMSDecoder) Decode(raw boxtrain.RawOutput) ([]boxtrain.Detection, error) {

	if err := raw.Validate(); err != nil {
		return nil, err
	}

	s := getScratch()
	defer putScratch(s)

	validCount := d.filter(raw, s)

	if validCount <= 0 {
		// no object detected
		return nil, nil
	}

	for i := 0; i < validCount; i++ {
		s.order = append(s.order, i)
	}

	quickSortIndiceInverse(s.objProbs, 0, validCount-1, s.order)

	if validCount >= d.IndexedMin {
		d.suppressIndexed(validCount, s.filterBoxes, s.classIDs, s.order)
	} else {
		d.suppress(validCount, s.filterBoxes, s.classIDs, s.order)
	}

	// collate surviving objects into results
	group := make([]boxtrain.Detection, 0, d.MaxDetections)

	for i := 0; i < validCount; i++ {

		if s.order[i] == -1 || len(group) >= d.MaxDetections {
			continue
		}

		n := s.order[i]

		group = append(group, boxtrain.Detection{
			Box: boxtrain.Box{
				X: s.filterBoxes[n*4+0],
				Y: s.filterBoxes[n*4+1],
				W: s.filterBoxes[n*4+2],
				H: s.filterBoxes[n*4+3],
			},
			ClassID:    s.classIDs[n],
			Confidence: s.objProbs[i],
		})
	}

	return group, nil
}

// filter runs the confidence filter over all candidates, keeping each
// candidate's best class when that score reaches the threshold.  Kept
// boxes, scores, and class ids are appended to the scratch buffers in
// candidate order.
func (d *NMSDecoder) filter(raw boxtrain.RawOutput, s *scratch) int {

	validCount := 0

	for n := 0; n < raw.Candidates; n++ {

		maxScore := float32(0)
		maxClassID := int32(-1)
		offset := n * raw.Classes

		for c := 0; c < raw.Classes; c++ {
			if raw.Scores[offset+c] > maxScore {
				maxScore = raw.Scores[offset+c]
				maxClassID = int32(c)
			}
		}

		// candidates below the threshold are dropped
		if maxClassID == -1 || maxScore < d.ConfThreshold {
			continue
		}

		s.filterBoxes = append(s.filterBoxes,
			raw.Boxes[n*4+0], raw.Boxes[n*4+1],
			raw.Boxes[n*4+2], raw.Boxes[n*4+3])
		s.objProbs = append(s.objProbs, maxScore)
		s.classIDs = append(s.classIDs, maxClassID)
		validCount++
	}

	return validCount
}

// suppress runs per-class NMS over the sorted candidates with a pairwise
// scan, marking suppressed entries in order with -1
func (d *NMSDecoder) suppress(validCount int, filterBoxes []float32,
	classIDs []int32, order []int) {

	// create a unique set of class ids (ie: eliminate any multiples found)
	classSet := make(map[int32]bool)

	for _, id := range classIDs {
		classSet[id] = true
	}

	// for each class id in the classSet calculate the NMS
	for c := range classSet {
		nms(validCount, filterBoxes, classIDs, order, c, d.NMSThreshold)
	}
}

// suppressIndexed produces the same marking as suppress but finds
// overlap partners through a spatial index instead of scanning all pairs
func (d *NMSDecoder) suppressIndexed(validCount int, filterBoxes []float32,
	classIDs []int32, order []int) {

	fb := flatbush.NewFlatbush[float32]()
	fb.Reserve(validCount)

	for n := 0; n < validCount; n++ {
		x1 := filterBoxes[n*4+0]
		y1 := filterBoxes[n*4+1]
		fb.Add(x1, y1, x1+filterBoxes[n*4+2], y1+filterBoxes[n*4+3])
	}

	fb.Finish()

	// rank maps a candidate back to its position in confidence order
	rank := make([]int, validCount)

	for i, n := range order {
		rank[n] = i
	}

	for i := 0; i < validCount; i++ {

		n := order[i]

		if n == -1 {
			continue
		}

		xmin0 := filterBoxes[n*4+0]
		ymin0 := filterBoxes[n*4+1]
		xmax0 := xmin0 + filterBoxes[n*4+2]
		ymax0 := ymin0 + filterBoxes[n*4+3]

		// widen the query by one pixel so it covers every pair the
		// inclusive overlap treats as intersecting
		for _, m := range fb.Search(xmin0-1, ymin0-1, xmax0+1, ymax0+1) {

			// only lower confidence same-class neighbours are candidates
			// for suppression
			if m == n || rank[m] <= i || order[rank[m]] == -1 ||
				classIDs[m] != classIDs[n] {
				continue
			}

			xmin1 := filterBoxes[m*4+0]
			ymin1 := filterBoxes[m*4+1]
			xmax1 := xmin1 + filterBoxes[m*4+2]
			ymax1 := ymin1 + filterBoxes[m*4+3]

			iou := calculateOverlap(xmin0, ymin0, xmax0, ymax0,
				xmin1, ymin1, xmax1, ymax1)

			if iou > d.NMSThreshold {
				order[rank[m]] = -1
			}
		}
	}
}

// quickSortIndiceInverse is a quick sort algorithm that sorts the objProbs
// vector and synchronously updates the indices vector to track the reordering
// of elements
func quickSortIndiceInverse(input []float32, left int, right int, indices []int) int {

	var key float32
	var keyIndex int

	low := left
	high := right

	if left < right {
		keyIndex = indices[left]
		key = input[left]

		for low < high {
			for low < high && input[high] <= key {
				high--
			}

			input[low] = input[high]
			indices[low] = indices[high]

			for low < high && input[low] >= key {
				low++
			}

			input[high] = input[low]
			indices[high] = indices[low]
		}

		input[low] = key
		indices[low] = keyIndex

		quickSortIndiceInverse(input, left, low-1, indices)
		quickSortIndiceInverse(input, low+1, right, indices)
	}

	return low
}

// nms implements a Non-Maximum Suppression (NMS) algorithm for one class,
// marking suppressed entries in the order vector with -1
func nms(validCount int, outputLocations []float32, classIds []int32,
	order []int, filterId int32, threshold float32) {

	for i := 0; i < validCount; i++ {

		if order[i] == -1 || classIds[order[i]] != filterId {
			continue
		}

		n := order[i]

		for j := i + 1; j < validCount; j++ {
			m := order[j]

			if m == -1 || classIds[m] != filterId {
				continue
			}

			xmin0 := outputLocations[n*4+0]
			ymin0 := outputLocations[n*4+1]
			xmax0 := xmin0 + outputLocations[n*4+2]
			ymax0 := ymin0 + outputLocations[n*4+3]

			xmin1 := outputLocations[m*4+0]
			ymin1 := outputLocations[m*4+1]
			xmax1 := xmin1 + outputLocations[m*4+2]
			ymax1 := ymin1 + outputLocations[m*4+3]

			iou := calculateOverlap(xmin0, ymin0, xmax0, ymax0, xmin1, ymin1, xmax1, ymax1)

			if iou > threshold {
				order[j] = -1
			}
		}
	}
}

// calculateOverlap works out the Intersection of Union (IoU) value of two
// boxes dimensions
func calculateOverlap(xmin0, ymin0, xmax0, ymax0, xmin1, ymin1,
	xmax1, ymax1 float32) float32 {

	w := math.Max(0.0, math.Min(float64(xmax0), float64(xmax1))-math.Max(float64(xmin0), float64(xmin1))+1.0)
	h := math.Max(0.0, math.Min(float64(ymax0), float64(ymax1))-math.Max(float64(ymin0), float64(ymin1))+1.0)
	intersection := w * h

	// Calculate the area of both rectangles with added 1.0 for inclusive pixel calculation
	area0 := (xmax0 - xmin0 + 1) * (ymax0 - ymin0 + 1)
	area1 := (xmax1 - xmin1 + 1) * (ymax1 - ymin1 + 1)

	// Calculate union
	union := area0 + area1 - float32(intersection)

	if union <= 0 {
		return 0.0
	}

	// Return Intersection of Union (IoU)
	return float32(intersection) / union
}
