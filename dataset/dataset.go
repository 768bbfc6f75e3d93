// Package dataset adapts on-disk detection datasets into the canonical
// sample schema.  Each source reads annotation metadata up front, loads
// image pixels lazily, and converts the source's box convention into
// top-left plus width and height in absolute pixels.
package dataset

import (
	"fmt"
	"io"
	"math/rand"

	"github.com/boxtrain/boxtrain"
)

// IndexedSource is a sample source whose records can also be loaded by
// position, which makes epoch shuffling possible without materializing
// the whole dataset
type IndexedSource interface {
	boxtrain.SampleSource
	// Len returns the number of records
	Len() int
	// At loads the record at position i
	At(i int) (*boxtrain.Sample, error)
}

// Concat chains several sources into one sequence, exhausting each in
// turn
type Concat struct {
	sources []boxtrain.SampleSource
	cur     int
}

// NewConcat returns a source yielding all samples of the given sources in
// order
func NewConcat(sources ...boxtrain.SampleSource) *Concat {
	return &Concat{sources: sources}
}

// Next returns the next sample, moving to the following source when the
// current one is exhausted
func (c *Concat) Next() (*boxtrain.Sample, error) {

	for c.cur < len(c.sources) {

		s, err := c.sources[c.cur].Next()

		if err == io.EOF {
			c.cur++
			continue
		}

		return s, err
	}

	return nil, io.EOF
}

// Reset rewinds all chained sources
func (c *Concat) Reset() error {

	for i, src := range c.sources {
		if err := src.Reset(); err != nil {
			return fmt.Errorf("resetting source %d: %w", i, err)
		}
	}

	c.cur = 0
	return nil
}

// Close closes all chained sources, returning the first error seen
func (c *Concat) Close() error {

	var firstErr error

	for _, src := range c.sources {
		if err := src.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// Shuffler yields the records of an indexed source in a seeded random
// order, drawing a fresh permutation on every reset so each training
// epoch sees a different order while staying reproducible overall
type Shuffler struct {
	src  IndexedSource
	rng  *rand.Rand
	perm []int
	pos  int
}

// NewShuffler returns a shuffling view over the given source
func NewShuffler(src IndexedSource, seed int64) *Shuffler {

	s := &Shuffler{
		src: src,
		rng: rand.New(rand.NewSource(seed)),
	}

	s.perm = s.rng.Perm(src.Len())
	return s
}

// Next returns the next sample of the current permutation
func (s *Shuffler) Next() (*boxtrain.Sample, error) {

	if s.pos >= len(s.perm) {
		return nil, io.EOF
	}

	sample, err := s.src.At(s.perm[s.pos])

	if err != nil {
		return nil, err
	}

	s.pos++
	return sample, nil
}

// Reset draws a new permutation and rewinds
func (s *Shuffler) Reset() error {
	s.perm = s.rng.Perm(s.src.Len())
	s.pos = 0
	return nil
}

// Close closes the underlying source
func (s *Shuffler) Close() error {
	return s.src.Close()
}
