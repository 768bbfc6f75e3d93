package boxtrain

import (
	"fmt"
	"io"
)

// SampleSource is the pull-based iterator contract satisfied by dataset
// loaders.  Next returns io.EOF once the source is exhausted, Reset rewinds
// it for another pass (the next epoch), and any shuffling between passes is
// the source's responsibility, not the consumer's.
type SampleSource interface {
	Next() (*Sample, error)
	Reset() error
	Close() error
}

// Batch is an ordered collection of samples grouped for joint processing.
// Before densification a batch is ragged: images may differ in size and
// each sample may carry a different box count.
type Batch struct {
	Samples []*Sample
}

// Len returns the number of samples in the batch
func (b *Batch) Len() int {
	return len(b.Samples)
}

// Close releases the image memory of every sample in the batch
func (b *Batch) Close() error {

	var firstErr error

	for _, s := range b.Samples {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// Batcher groups samples from a source into fixed-size ragged batches,
// preserving arrival order.  The final batch of a finite source may be
// shorter.  No sample or box is dropped or truncated at this stage.
type Batcher struct {
	src  SampleSource
	size int
}

// NewBatcher returns a batcher producing batches of the given size
func NewBatcher(src SampleSource, size int) (*Batcher, error) {

	if size < 1 {
		return nil, fmt.Errorf("batch size %d, want >= 1: %w", size, ErrConfig)
	}

	return &Batcher{
		src:  src,
		size: size,
	}, nil
}

// Size returns the configured batch size
func (b *Batcher) Size() int {
	return b.size
}

// Next returns the next batch of samples in arrival order, or io.EOF once
// the source is exhausted
func (b *Batcher) Next() (*Batch, error) {

	batch := &Batch{
		Samples: make([]*Sample, 0, b.size),
	}

	for len(batch.Samples) < b.size {

		s, err := b.src.Next()

		if err == io.EOF {
			break
		}

		if err != nil {
			// release whatever was accumulated before the failure
			_ = batch.Close()
			return nil, err
		}

		batch.Samples = append(batch.Samples, s)
	}

	if len(batch.Samples) == 0 {
		return nil, io.EOF
	}

	return batch, nil
}

// Reset rewinds the underlying source for another pass
func (b *Batcher) Reset() error {
	return b.src.Reset()
}
