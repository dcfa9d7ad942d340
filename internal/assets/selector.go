package assets

import (
	"math/rand"
	"time"
)

// Selector picks the run's overlay and music track. With a non-zero seed
// the choice is reproducible, so a rerun can be made to pick the same
// assets; seed 0 means pick freshly each run.
type Selector struct {
	rng *rand.Rand
}

func NewSelector(seed int64) *Selector {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Selector{rng: rand.New(rand.NewSource(seed))}
}

// Pick returns one of the candidate paths, or "" when there are none.
// Missing overlays and music are valid; downstream stages degrade
// gracefully without them.
func (s *Selector) Pick(paths []string) string {
	if len(paths) == 0 {
		return ""
	}
	return paths[s.rng.Intn(len(paths))]
}
