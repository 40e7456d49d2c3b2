package downloader

import (
	"math/rand/v2"
	"sync"
)

const (
	// ProcessingCap is the highest value reported before an outcome is known.
	ProcessingCap = 90.0
	// CompletePercent is reported once an item is Done.
	CompletePercent = 100.0
	// MaxIncrement bounds a single synthetic step.
	MaxIncrement = 10.0
)

// Increment returns a pseudo-random step in [0, MaxIncrement).
type Increment func() float64

// RandomIncrement draws steps from r. A nil r uses the global source.
func RandomIncrement(r *rand.Rand) Increment {
	if r == nil {
		return func() float64 { return rand.Float64() * MaxIncrement }
	}
	var mu sync.Mutex
	return func() float64 {
		mu.Lock()
		defer mu.Unlock()
		return r.Float64() * MaxIncrement
	}
}

// Tick advances prev by one increment and clamps the result to [prev, ProcessingCap].
func Tick(prev float64, inc Increment) float64 {
	step := 0.0
	if inc != nil {
		step = inc()
	}
	if step < 0 {
		step = 0
	}
	return clampProcessing(prev, prev+step)
}

func clampProcessing(prev, next float64) float64 {
	if next < prev {
		next = prev
	}
	if next > ProcessingCap {
		next = ProcessingCap
	}
	if next < 0 {
		next = 0
	}
	return next
}

// SyntheticProgress is a caller-driven generator of processing percentages.
// Values never decrease and stay at or below ProcessingCap until Finish.
type SyntheticProgress struct {
	inc      Increment
	value    float64
	finished bool
}

func NewSyntheticProgress(inc Increment) *SyntheticProgress {
	if inc == nil {
		inc = RandomIncrement(nil)
	}
	return &SyntheticProgress{inc: inc}
}

// Next advances one tick and returns the new value.
func (p *SyntheticProgress) Next() float64 {
	if p.finished {
		return p.value
	}
	p.value = Tick(p.value, p.inc)
	return p.value
}

// Observe folds a real progress reading into the sequence with the same clamp.
func (p *SyntheticProgress) Observe(real float64) float64 {
	if p.finished {
		return p.value
	}
	p.value = clampProcessing(p.value, real)
	return p.value
}

// Finish snaps to CompletePercent. Later calls to Next and Observe are no-ops.
func (p *SyntheticProgress) Finish() float64 {
	p.finished = true
	p.value = CompletePercent
	return p.value
}

// Value returns the last emitted value.
func (p *SyntheticProgress) Value() float64 {
	return p.value
}

// ProgressFeed supplies real processing progress for an item, when the
// service exposes it. Forget drops what is known about an item before a new
// run of it starts.
type ProgressFeed interface {
	Latest(itemID string) (float64, bool)
	Forget(itemID string)
}
