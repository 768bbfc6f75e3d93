package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"

	"github.com/boxtrain/boxtrain"
	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// captionHeight is the pixel height reserved below each tile for its
// caption, sized for the 7x13 basic font plus padding
const captionHeight = 18

// GalleryTile is one cell of a gallery sheet, an image with the ground
// truth annotations and decoded detections to draw over it
type GalleryTile struct {
	Sample     *boxtrain.Sample
	Detections []boxtrain.Detection
	Caption    string
}

// GalleryOptions configure the gallery sheet layout
type GalleryOptions struct {
	// Columns is the number of tiles per row
	Columns int
	// TileWidth and TileHeight bound each thumbnail in pixels
	TileWidth  int
	TileHeight int
	// Margin is the gap between tiles in pixels
	Margin int
	// Background fills the sheet behind the tiles
	Background color.RGBA
	// Font renders the detection labels drawn on each tile
	Font Font
	// TruthFont renders the ground truth labels drawn on each tile
	TruthFont Font
	// LineThickness of the box outlines drawn on each tile
	LineThickness int
}

// DefaultGalleryOptions returns the gallery layout used when the caller has
// no special requirements
func DefaultGalleryOptions() GalleryOptions {
	return GalleryOptions{
		Columns:       4,
		TileWidth:     320,
		TileHeight:    320,
		Margin:        8,
		Background:    color.RGBA{R: 24, G: 24, B: 24, A: 255},
		Font:          DefaultFont(),
		TruthFont:     GroundTruthFont(),
		LineThickness: 2,
	}
}

func (o GalleryOptions) withDefaults() GalleryOptions {

	def := DefaultGalleryOptions()

	if o.Columns <= 0 {
		o.Columns = def.Columns
	}

	if o.TileWidth <= 0 {
		o.TileWidth = def.TileWidth
	}

	if o.TileHeight <= 0 {
		o.TileHeight = def.TileHeight
	}

	if o.Margin < 0 {
		o.Margin = def.Margin
	}

	if o.Font == (Font{}) {
		o.Font = def.Font
	}

	if o.TruthFont == (Font{}) {
		o.TruthFont = def.TruthFont
	}

	if o.LineThickness <= 0 {
		o.LineThickness = def.LineThickness
	}

	return o
}

// SaveGallery composes annotated tiles into one contact sheet and writes it
// to path as a PNG.  Each tile shows the sample with its ground truth boxes
// and decoded detections drawn over it, scaled to fit the tile bounds, with
// a caption underneath.  The sheet is a debugging aid, nothing downstream
// consumes it.
func SaveGallery(path string, tiles []GalleryTile,
	classes *boxtrain.ClassMapping, opts GalleryOptions) error {

	if len(tiles) == 0 {
		return fmt.Errorf("gallery has no tiles: %w", boxtrain.ErrConfig)
	}

	opts = opts.withDefaults()

	cols := opts.Columns
	if cols > len(tiles) {
		cols = len(tiles)
	}
	rows := (len(tiles) + cols - 1) / cols

	cellH := opts.TileHeight + captionHeight

	sheetW := cols*opts.TileWidth + (cols+1)*opts.Margin
	sheetH := rows*cellH + (rows+1)*opts.Margin

	sheet := image.NewRGBA(image.Rect(0, 0, sheetW, sheetH))
	draw.Draw(sheet, sheet.Bounds(), image.NewUniform(opts.Background),
		image.Point{}, draw.Src)

	for i, tile := range tiles {

		thumb, err := renderTile(tile, classes, opts)

		if err != nil {
			return fmt.Errorf("tile %d: %w", i, err)
		}

		col := i % cols
		row := i / cols

		cellX := opts.Margin + col*(opts.TileWidth+opts.Margin)
		cellY := opts.Margin + row*(cellH+opts.Margin)

		// center the thumbnail inside its cell
		offX := (opts.TileWidth - thumb.Bounds().Dx()) / 2
		offY := (opts.TileHeight - thumb.Bounds().Dy()) / 2

		dstRect := image.Rect(cellX+offX, cellY+offY,
			cellX+offX+thumb.Bounds().Dx(), cellY+offY+thumb.Bounds().Dy())
		draw.Draw(sheet, dstRect, thumb, image.Point{}, draw.Src)

		caption := tile.Caption

		if caption == "" {
			caption = fmt.Sprintf("sample %d", i)
		}

		// baseline sits the font ascent below the tile bottom
		drawCaption(sheet, caption, cellX,
			cellY+opts.TileHeight+basicfont.Face7x13.Ascent+2)
	}

	f, err := os.Create(path)

	if err != nil {
		return fmt.Errorf("creating gallery file: %v: %w", err, boxtrain.ErrResource)
	}

	if err := png.Encode(f, sheet); err != nil {
		f.Close()
		return fmt.Errorf("encoding gallery: %v: %w", err, boxtrain.ErrResource)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("writing gallery: %v: %w", err, boxtrain.ErrResource)
	}

	return nil
}

// renderTile draws the tile annotations on a copy of the sample image and
// scales the result to fit the tile bounds
func renderTile(tile GalleryTile, classes *boxtrain.ClassMapping,
	opts GalleryOptions) (image.Image, error) {

	if tile.Sample == nil {
		return nil, fmt.Errorf("tile has no sample: %w", boxtrain.ErrSchema)
	}

	annotated := tile.Sample.Image.Clone()
	defer annotated.Close()

	if len(tile.Sample.Boxes) > 0 {
		GroundTruthBoxes(&annotated, tile.Sample.Boxes, tile.Sample.Classes,
			classes, opts.TruthFont, opts.LineThickness)
	}

	if len(tile.Detections) > 0 {
		DetectionBoxes(&annotated, tile.Detections, classes, opts.Font,
			opts.LineThickness)
	}

	img, err := annotated.ToImage()

	if err != nil {
		return nil, fmt.Errorf("converting tile image: %v: %w", err,
			boxtrain.ErrResource)
	}

	return imaging.Fit(img, opts.TileWidth, opts.TileHeight, imaging.Lanczos), nil
}

// drawCaption writes the caption text onto the sheet at the given baseline
func drawCaption(dst *image.RGBA, text string, x, y int) {

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(White),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}

	d.DrawString(text)
}
