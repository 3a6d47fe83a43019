package l1history

// Ring is a fixed-capacity, time-ordered buffer of pose samples for a single
// agent. Adding to a full ring overwrites the oldest sample.
type Ring struct {
	samples  []PoseSample
	capacity int
	head     int // Points to next write position
	size     int // Current number of samples stored
}

// NewRing creates a ring with the given capacity. Capacity is fixed for the
// lifetime of the ring.
func NewRing(capacity int) *Ring {
	if capacity < 2 {
		capacity = 2 // detectors need a previous sample
	}
	return &Ring{
		samples:  make([]PoseSample, capacity),
		capacity: capacity,
	}
}

// Add stores a sample, evicting the oldest if at capacity. Samples that do not
// advance time past the newest stored sample are rejected so the ring stays
// strictly time-ordered.
func (r *Ring) Add(s PoseSample) bool {
	if r.size > 0 && s.Time <= r.Previous(1).Time {
		return false
	}
	r.samples[r.head] = s
	r.head = (r.head + 1) % r.capacity
	if r.size < r.capacity {
		r.size++
	}
	return true
}

// Previous returns the sample n steps back from the most recent.
// Previous(1) returns the most recently added sample. Returns the zero
// sample if the requested entry doesn't exist.
func (r *Ring) Previous(n int) PoseSample {
	if n < 1 || n > r.size {
		return PoseSample{}
	}
	idx := (r.head - n + r.capacity) % r.capacity
	return r.samples[idx]
}

// Size returns the current number of samples in the ring.
func (r *Ring) Size() int {
	return r.size
}

// Capacity returns the maximum number of samples that can be stored.
func (r *Ring) Capacity() int {
	return r.capacity
}

// Clear removes all samples.
func (r *Ring) Clear() {
	for i := range r.samples {
		r.samples[i] = PoseSample{}
	}
	r.head = 0
	r.size = 0
}

// Window returns the samples whose time lies within duration of the newest
// sample, oldest first. The returned slice is a copy.
func (r *Ring) Window(duration float64) []PoseSample {
	if r.size == 0 {
		return nil
	}
	newest := r.Previous(1).Time
	cutoff := newest - duration

	// Walk backwards to find how many samples qualify.
	n := 0
	for n < r.size && r.Previous(n+1).Time >= cutoff {
		n++
	}

	out := make([]PoseSample, n)
	for i := 0; i < n; i++ {
		out[i] = r.Previous(n - i)
	}
	return out
}

// All returns every stored sample from oldest to newest.
func (r *Ring) All() []PoseSample {
	if r.size == 0 {
		return nil
	}
	out := make([]PoseSample, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.Previous(r.size - i)
	}
	return out
}
