package dataset

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/boxtrain/boxtrain"
	"gocv.io/x/gocv"
)

// Pascal VOC annotation XML structures
type vocBndbox struct {
	Xmin float32 `xml:"xmin"`
	Ymin float32 `xml:"ymin"`
	Xmax float32 `xml:"xmax"`
	Ymax float32 `xml:"ymax"`
}

type vocObject struct {
	Name      string    `xml:"name"`
	Difficult int       `xml:"difficult"`
	Bndbox    vocBndbox `xml:"bndbox"`
}

type vocAnnotation struct {
	Filename string      `xml:"filename"`
	Objects  []vocObject `xml:"object"`
}

// VOCSource reads a Pascal VOC layout dataset: image ids come from
// ImageSets/Main/<split>.txt, annotations from Annotations/<id>.xml, and
// pixels from JPEGImages.  Annotation XML is parsed lazily per sample.
// Min/max corner coordinates are converted to the canonical convention.
type VOCSource struct {
	root    string
	ids     []string
	classes *boxtrain.ClassMapping
	pos     int

	// SkipDifficult drops objects flagged difficult in the annotations
	SkipDifficult bool
}

// OpenVOC prepares a source over one split of a VOC dataset rooted at
// root.  The class mapping fixes which object names are known; an
// annotation naming an unmapped class is a schema violation.
func OpenVOC(root, split string, classes *boxtrain.ClassMapping) (*VOCSource, error) {

	splitFile := filepath.Join(root, "ImageSets", "Main", split+".txt")

	ids, err := readSplitFile(splitFile)

	if err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		return nil, fmt.Errorf("split %s lists no images: %w",
			splitFile, boxtrain.ErrSchema)
	}

	return &VOCSource{
		root:    root,
		ids:     ids,
		classes: classes,
	}, nil
}

// readSplitFile reads one image id per line, skipping blanks
func readSplitFile(file string) ([]string, error) {

	f, err := os.Open(file)

	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, boxtrain.ErrResource)
	}

	defer f.Close()

	scanner := bufio.NewScanner(f)

	var ids []string

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" {
			continue
		}

		// some split files carry a presence flag after the id
		ids = append(ids, strings.Fields(line)[0])
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}

	return ids, nil
}

// Classes returns the class mapping the source was opened with
func (v *VOCSource) Classes() *boxtrain.ClassMapping {
	return v.classes
}

// Len returns the number of images in the split
func (v *VOCSource) Len() int {
	return len(v.ids)
}

// At parses the annotation for the id at position i and loads its image
func (v *VOCSource) At(i int) (*boxtrain.Sample, error) {

	id := v.ids[i]
	annPath := filepath.Join(v.root, "Annotations", id+".xml")

	f, err := os.Open(annPath)

	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, boxtrain.ErrResource)
	}

	var ann vocAnnotation
	err = xml.NewDecoder(f).Decode(&ann)
	f.Close()

	if err != nil {
		return nil, fmt.Errorf("decoding annotation XML %s: %v: %w",
			annPath, err, boxtrain.ErrSchema)
	}

	filename := ann.Filename

	if filename == "" {
		filename = id + ".jpg"
	}

	var boxes []boxtrain.Box
	var classes []int32

	for _, obj := range ann.Objects {

		if v.SkipDifficult && obj.Difficult != 0 {
			continue
		}

		classID, ok := v.classes.ID(obj.Name)

		if !ok {
			return nil, fmt.Errorf("annotation %s names unknown class %q: %w",
				annPath, obj.Name, boxtrain.ErrSchema)
		}

		b := obj.Bndbox

		if b.Xmax < b.Xmin || b.Ymax < b.Ymin {
			return nil, fmt.Errorf("annotation %s has an inverted box: %w",
				annPath, boxtrain.ErrSchema)
		}

		boxes = append(boxes, boxtrain.BoxFromCorners(b.Xmin, b.Ymin, b.Xmax, b.Ymax))
		classes = append(classes, classID)
	}

	imgPath := filepath.Join(v.root, "JPEGImages", filename)
	img := gocv.IMRead(imgPath, gocv.IMReadColor)

	if img.Empty() {
		return nil, fmt.Errorf("cannot read image %s: %w",
			imgPath, boxtrain.ErrResource)
	}

	return boxtrain.NewSample(img, boxes, classes)
}

// Next returns the next sample in split order
func (v *VOCSource) Next() (*boxtrain.Sample, error) {

	if v.pos >= len(v.ids) {
		return nil, io.EOF
	}

	s, err := v.At(v.pos)

	if err != nil {
		return nil, err
	}

	v.pos++
	return s, nil
}

// Reset rewinds to the first id of the split
func (v *VOCSource) Reset() error {
	v.pos = 0
	return nil
}

// Close releases the source
func (v *VOCSource) Close() error {
	return nil
}
