package kvs

import "time"

// Sampler decides which frames to keep so that saved frames are at least
// 1/fps apart in source time. It works in either direction of travel.
type Sampler struct {
	interval time.Duration
	last     time.Time
	primed   bool
}

// NewSampler returns a sampler for the target rate. A non-positive rate keeps every frame.
func NewSampler(fps float64) *Sampler {
	var interval time.Duration
	if fps > 0 {
		interval = time.Duration(float64(time.Second) / fps)
	}
	return &Sampler{interval: interval}
}

// Due reports whether a frame at ts is far enough from the last kept frame.
func (s *Sampler) Due(ts time.Time) bool {
	if !s.primed {
		return true
	}
	return absDuration(ts.Sub(s.last)) >= s.interval
}

// Mark records ts as the last kept frame.
func (s *Sampler) Mark(ts time.Time) {
	s.last = ts
	s.primed = true
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
