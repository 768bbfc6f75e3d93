package dataset

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/boxtrain/boxtrain"
	"gocv.io/x/gocv"
)

// COCO JSON structures.  Only the object detection fields are read.
type cocoImage struct {
	ID       int    `json:"id"`
	Filename string `json:"file_name"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

type cocoAnnotation struct {
	ImageID    int        `json:"image_id"`
	CategoryID int        `json:"category_id"`
	Bbox       [4]float32 `json:"bbox"`
}

type cocoCategory struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type cocoJSON struct {
	Images      []cocoImage      `json:"images"`
	Annotations []cocoAnnotation `json:"annotations"`
	Categories  []cocoCategory   `json:"categories"`
}

// cocoRecord is one image with its grouped annotations, boxes already in
// the canonical convention and classes remapped to contiguous ids
type cocoRecord struct {
	path    string
	width   int
	height  int
	boxes   []boxtrain.Box
	classes []int32
}

// COCOSource reads a COCO format detection dataset: one annotations JSON
// file plus a directory of images.  All annotation metadata is parsed up
// front; image pixels load lazily per sample.  Sparse COCO category ids
// are remapped to contiguous class ids in category order.
type COCOSource struct {
	records []cocoRecord
	classes *boxtrain.ClassMapping
	pos     int

	// StrictDims verifies each image file's actual dimensions against the
	// annotation metadata before decoding it
	StrictDims bool
}

// OpenCOCO parses a COCO annotations file and prepares a source over the
// images in imageDir
func OpenCOCO(annotations, imageDir string) (*COCOSource, error) {

	data, err := os.ReadFile(annotations)

	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, boxtrain.ErrResource)
	}

	var coco cocoJSON

	if err := json.Unmarshal(data, &coco); err != nil {
		return nil, fmt.Errorf("decoding annotation JSON %s: %v: %w",
			annotations, err, boxtrain.ErrSchema)
	}

	if len(coco.Categories) == 0 {
		return nil, fmt.Errorf("%s has no categories: %w",
			annotations, boxtrain.ErrSchema)
	}

	// remap the sparse category ids to contiguous class ids
	names := make([]string, 0, len(coco.Categories))
	idToClass := make(map[int]int32, len(coco.Categories))

	for i, cat := range coco.Categories {
		names = append(names, cat.Name)
		idToClass[cat.ID] = int32(i)
	}

	mapping, err := boxtrain.NewClassMapping(names)

	if err != nil {
		return nil, err
	}

	// group annotations by the image they belong to
	groups := make(map[int][]cocoAnnotation)

	for _, a := range coco.Annotations {
		groups[a.ImageID] = append(groups[a.ImageID], a)
	}

	src := &COCOSource{
		records: make([]cocoRecord, 0, len(coco.Images)),
		classes: mapping,
	}

	for _, img := range coco.Images {

		if img.Filename == "" {
			return nil, fmt.Errorf("image %d has no file_name: %w",
				img.ID, boxtrain.ErrSchema)
		}

		rec := cocoRecord{
			path:   filepath.Join(imageDir, img.Filename),
			width:  img.Width,
			height: img.Height,
		}

		for _, a := range groups[img.ID] {

			classID, ok := idToClass[a.CategoryID]

			if !ok {
				return nil, fmt.Errorf("image %s references unknown category %d: %w",
					img.Filename, a.CategoryID, boxtrain.ErrSchema)
			}

			if a.Bbox[2] < 0 || a.Bbox[3] < 0 {
				return nil, fmt.Errorf("image %s has a negative bbox extent: %w",
					img.Filename, boxtrain.ErrSchema)
			}

			// COCO bbox is already [x, y, width, height] in absolute pixels
			rec.boxes = append(rec.boxes, boxtrain.Box{
				X: a.Bbox[0], Y: a.Bbox[1], W: a.Bbox[2], H: a.Bbox[3],
			})
			rec.classes = append(rec.classes, classID)
		}

		src.records = append(src.records, rec)
	}

	return src, nil
}

// Classes returns the contiguous class mapping built from the categories
func (c *COCOSource) Classes() *boxtrain.ClassMapping {
	return c.classes
}

// Len returns the number of images
func (c *COCOSource) Len() int {
	return len(c.records)
}

// At loads the image at position i and wraps it with its annotations
func (c *COCOSource) At(i int) (*boxtrain.Sample, error) {

	rec := c.records[i]

	if c.StrictDims {

		w, h, err := ProbeDims(rec.path)

		if err != nil {
			return nil, err
		}

		if w != rec.width || h != rec.height {
			return nil, fmt.Errorf("%s is %dx%d but annotations declare %dx%d: %w",
				rec.path, w, h, rec.width, rec.height, boxtrain.ErrSchema)
		}
	}

	img := gocv.IMRead(rec.path, gocv.IMReadColor)

	if img.Empty() {
		return nil, fmt.Errorf("cannot read image %s: %w",
			rec.path, boxtrain.ErrResource)
	}

	return boxtrain.NewSample(img,
		append([]boxtrain.Box(nil), rec.boxes...),
		append([]int32(nil), rec.classes...))
}

// Next returns the next sample in dataset order
func (c *COCOSource) Next() (*boxtrain.Sample, error) {

	if c.pos >= len(c.records) {
		return nil, io.EOF
	}

	s, err := c.At(c.pos)

	if err != nil {
		return nil, err
	}

	c.pos++
	return s, nil
}

// Reset rewinds to the first record
func (c *COCOSource) Reset() error {
	c.pos = 0
	return nil
}

// Close releases the source.  Annotation metadata is held in memory only,
// so there is nothing to free.
func (c *COCOSource) Close() error {
	return nil
}
