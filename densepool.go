package boxtrain

import (
	"sync"

	"gocv.io/x/gocv"
)

// DensePool recycles the concatenated image Mats used by DenseBatches so a
// steadily running prefetch pipeline does not allocate a fresh multi-image
// buffer for every batch
type DensePool struct {
	// pool of image mats
	mats chan gocv.Mat
	// size of pool
	size int
	// batch shape the pooled mats were allocated for
	batchSize int
	height    int
	width     int
	channels  int
	close     sync.Once
}

// NewDensePool returns a pool of image Mats for dense batches of the given
// shape.  Batches of any other shape (the short final batch of an epoch)
// bypass the pool and allocate normally.
func NewDensePool(size, batchSize, height, width, channels int) *DensePool {

	p := &DensePool{
		mats:      make(chan gocv.Mat, size),
		size:      size,
		batchSize: batchSize,
		height:    height,
		width:     width,
		channels:  channels,
	}

	shape := []int{batchSize, height, width, channels}

	for i := 0; i < size; i++ {
		p.mats <- gocv.NewMatWithSizes(shape, gocv.MatTypeCV8U)
	}

	return p
}

// get returns a pooled Mat when one is free and the requested shape matches
// the pool shape, otherwise a freshly allocated Mat.  The second return
// value is the pool the Mat must be handed back to on Close, nil when the
// Mat is unpooled and must be closed directly.
func (p *DensePool) get(batchSize, height, width, channels int) (gocv.Mat, *DensePool) {

	shape := []int{batchSize, height, width, channels}

	if batchSize != p.batchSize || height != p.height ||
		width != p.width || channels != p.channels {
		return gocv.NewMatWithSizes(shape, gocv.MatTypeCV8U), nil
	}

	select {
	case m := <-p.mats:
		return m, p
	default:
		// pool exhausted, allocate an extra mat that put() may later absorb
		return gocv.NewMatWithSizes(shape, gocv.MatTypeCV8U), p
	}
}

// put hands a Mat back for reuse, closing it when the pool is already full
// or has been closed
func (p *DensePool) put(m gocv.Mat) {
	select {
	case p.mats <- m:
	default:
		_ = m.Close()
	}
}

// Close the pool and all mats held in it
func (p *DensePool) Close() {
	p.close.Do(func() {
		close(p.mats)

		for next := range p.mats {
			_ = next.Close()
		}
	})
}
