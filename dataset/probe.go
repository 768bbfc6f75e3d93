package dataset

import (
	"fmt"
	"os"

	"github.com/boxtrain/boxtrain"
	"github.com/rubenfonseca/fastimage"
)

// ProbeDims reads the pixel dimensions of an image file from its header
// without decoding the pixel data
func ProbeDims(path string) (width, height int, err error) {

	file, err := os.Open(path)

	if err != nil {
		return 0, 0, fmt.Errorf("%v: %w", err, boxtrain.ErrResource)
	}

	defer file.Close()

	_, size, err := fastimage.DetectImageTypeFromReader(file)

	if err != nil {
		return 0, 0, fmt.Errorf("probing %s: %v: %w", path, err, boxtrain.ErrSchema)
	}

	if size == nil {
		return 0, 0, fmt.Errorf("probing %s: unknown image format: %w",
			path, boxtrain.ErrSchema)
	}

	return int(size.Width), int(size.Height), nil
}
