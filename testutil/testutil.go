package testutil

import (
	"math/rand"
	"sync"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Int63n returns a non-negative pseudo-random int64 in [0,n).
func (r *RNG) Int63n(n int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Int63n(n)
}

// Float64 returns, as a float64, a pseudo-random number in [0.0,1.0).
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

// NormFloat64 returns a normally distributed float64 with mean 0 and
// standard deviation 1.
func (r *RNG) NormFloat64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.NormFloat64()
}

// ExpFloat64 returns an exponentially distributed float64 with rate 1.
func (r *RNG) ExpFloat64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.ExpFloat64()
}

// Perm returns a pseudo-random permutation of [0,n).
func (r *RNG) Perm(n int) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Perm(n)
}

// FillGaussian fills dst with values from a standard normal distribution.
// Locks only once per call (preferred over calling NormFloat64 in a loop).
func (r *RNG) FillGaussian(dst []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range dst {
		dst[i] = float32(r.rand.NormFloat64())
	}
}

// SpikeTrain draws strictly increasing spike samples in
// [margin, numSamples-margin), at least minGap samples apart, until the
// segment end or n spikes are reached.
func (r *RNG) SpikeTrain(n int, numSamples, margin, minGap int64) []int64 {
	train := make([]int64, 0, n)
	sample := margin
	for len(train) < n {
		sample += minGap + r.Int63n(minGap*4+1)
		if sample >= numSamples-margin {
			break
		}
		train = append(train, sample)
	}
	return train
}

// Jitter shifts every sample by a uniform offset in [-maxShift, maxShift],
// keeping the train strictly increasing.
func (r *RNG) Jitter(train []int64, maxShift int64) []int64 {
	out := make([]int64, len(train))
	for i, sample := range train {
		shifted := sample + r.Int63n(2*maxShift+1) - maxShift
		if i > 0 && shifted <= out[i-1] {
			shifted = out[i-1] + 1
		}
		out[i] = shifted
	}
	return out
}

// Drop returns a copy of the train with each spike kept with probability
// keep. Order is preserved.
func (r *RNG) Drop(train []int64, keep float64) []int64 {
	out := make([]int64, 0, len(train))
	for _, sample := range train {
		if r.Float64() < keep {
			out = append(out, sample)
		}
	}
	return out
}
