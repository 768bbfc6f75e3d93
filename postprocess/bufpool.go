package postprocess

import (
	"sync"
)

// scratch holds the working buffers of one decode pass.  Buffers are
// recycled between decodes so a steady inference loop does not churn
// allocations.
type scratch struct {
	// filterBoxes is the flat coordinate buffer of candidates that passed
	// the confidence filter
	filterBoxes []float32
	// objProbs holds the best-class score of each kept candidate
	objProbs []float32
	// classIDs holds the best class of each kept candidate
	classIDs []int32
	// order tracks the confidence ordering, -1 marking suppressed entries
	order []int
}

var scratchPool = sync.Pool{
	New: func() any {
		return &scratch{}
	},
}

// getScratch returns an empty scratch from the pool
func getScratch() *scratch {
	s := scratchPool.Get().(*scratch)
	s.filterBoxes = s.filterBoxes[:0]
	s.objProbs = s.objProbs[:0]
	s.classIDs = s.classIDs[:0]
	s.order = s.order[:0]
	return s
}

// putScratch returns a scratch to the pool once its buffers are no longer
// referenced
func putScratch(s *scratch) {
	scratchPool.Put(s)
}
