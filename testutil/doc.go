// Package testutil provides testing utilities for spikego.
//
// This package is intended for use in tests and benchmarks only.
// It provides a seeded, thread-safe random number generator and helpers
// for generating synthetic spike trains.
//
// # Spike Train Generation
//
//	rng := testutil.NewRNG(seed)
//	train := rng.SpikeTrain(100, numSamples, margin, minGap)
//	noisy := rng.Jitter(rng.Drop(train, 0.9), maxShift)
package testutil
