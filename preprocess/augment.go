package preprocess

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/boxtrain/boxtrain"
)

// Augmenter is a single stochastic box-aware transform: it produces a new
// sample whose image and boxes have moved together, never mutating its
// input.  Implementations draw randomness only from the supplied rng so a
// pipeline stays reproducible under a fixed seed.
type Augmenter interface {
	Apply(s *boxtrain.Sample, rng *rand.Rand) (*boxtrain.Sample, error)
}

// Pipeline is the ordered augmentation chain applied to training batches.
// Stage order is fixed at construction and matters: spatial flips run
// before photometric distortions, which run before the final jittered
// resize.  The training flag gates the whole chain; when unset every
// sample passes through as an untouched copy.  A Pipeline may be shared by
// concurrent prefetch workers.
type Pipeline struct {
	stages []Augmenter
	train  bool

	mu  sync.Mutex
	rng *rand.Rand
}

// NewPipeline returns an augmentation pipeline running the given stages in
// order.  The seed fixes the stream of randomness for reproducibility.
func NewPipeline(seed int64, train bool, stages ...Augmenter) *Pipeline {
	return &Pipeline{
		stages: stages,
		train:  train,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Training reports whether the pipeline transforms batches or passes them
// through
func (p *Pipeline) Training() bool {
	return p.train
}

// batchRng derives an independent rng for one batch so workers never
// contend on the shared source mid-transform
func (p *Pipeline) batchRng() *rand.Rand {
	p.mu.Lock()
	seed := p.rng.Int63()
	p.mu.Unlock()
	return rand.New(rand.NewSource(seed))
}

// Apply transforms one batch, producing a new batch in the same sample
// order and leaving the input batch and its samples untouched
func (p *Pipeline) Apply(batch *boxtrain.Batch) (*boxtrain.Batch, error) {

	out := &boxtrain.Batch{
		Samples: make([]*boxtrain.Sample, 0, batch.Len()),
	}

	rng := p.batchRng()

	for i, s := range batch.Samples {

		transformed, err := p.applySample(s, rng)

		if err != nil {
			_ = out.Close()
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}

		out.Samples = append(out.Samples, transformed)
	}

	return out, nil
}

// applySample runs the stage chain over one sample
func (p *Pipeline) applySample(s *boxtrain.Sample, rng *rand.Rand) (*boxtrain.Sample, error) {

	if err := s.Validate(); err != nil {
		return nil, err
	}

	if !p.train || len(p.stages) == 0 {
		return s.Clone(), nil
	}

	cur := s
	owned := false

	for _, stage := range p.stages {

		next, err := stage.Apply(cur, rng)

		if owned {
			_ = cur.Close()
		}

		if err != nil {
			return nil, err
		}

		// every stage must keep boxes and classes moving together
		if err := next.Validate(); err != nil {
			_ = next.Close()
			return nil, err
		}

		cur = next
		owned = true
	}

	return cur, nil
}
