package kmeans

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/hupe1980/spikego/internal/floats32"
)

// Train learns k centroids from the flattened vectors (n * dim) using
// Lloyd's algorithm with squared-L2 distance, and returns the flattened
// centroids (k * dim) plus the final per-vector assignments. The seed
// fixes the initialization, making the clustering deterministic.
func Train(ctx context.Context, vectors []float32, dim, k, maxIter int, seed int64) ([]float32, []int, error) {
	if dim <= 0 || len(vectors)%dim != 0 {
		return nil, nil, fmt.Errorf("kmeans: %d values is not a whole number of %d-dim vectors", len(vectors), dim)
	}
	n := len(vectors) / dim
	if n < k {
		return nil, nil, fmt.Errorf("kmeans: %d vectors for %d clusters", n, k)
	}

	rng := rand.New(rand.NewSource(seed))
	centroids := make([]float32, k*dim)

	// Initialize centroids from distinct data points.
	perm := rng.Perm(n)
	for i := 0; i < k; i++ {
		copy(centroids[i*dim:(i+1)*dim], vectors[perm[i]*dim:(perm[i]+1)*dim])
	}

	assignments := make([]int, n)
	counts := make([]int, k)
	sums := make([]float32, k*dim)

	for iter := 0; iter < maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		// Assignment step
		changed := false
		for i := 0; i < n; i++ {
			best := Assign(vectors[i*dim:(i+1)*dim], centroids, dim)
			if assignments[i] != best {
				assignments[i] = best
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}

		// Update step
		for i := range sums {
			sums[i] = 0
		}
		for i := range counts {
			counts[i] = 0
		}
		for i := 0; i < n; i++ {
			cluster := assignments[i]
			vec := vectors[i*dim : (i+1)*dim]
			for d := 0; d < dim; d++ {
				sums[cluster*dim+d] += vec[d]
			}
			counts[cluster]++
		}
		for j := 0; j < k; j++ {
			if counts[j] > 0 {
				scale := 1.0 / float32(counts[j])
				for d := 0; d < dim; d++ {
					centroids[j*dim+d] = sums[j*dim+d] * scale
				}
			} else {
				// Re-initialize empty cluster with a random point
				idx := rng.Intn(n)
				copy(centroids[j*dim:(j+1)*dim], vectors[idx*dim:(idx+1)*dim])
			}
		}
	}

	return centroids, assignments, nil
}

// Assign finds the closest centroid for a vector.
func Assign(vec []float32, centroids []float32, dim int) int {
	k := len(centroids) / dim
	best := -1
	minDist := float32(math.MaxFloat32)
	for j := 0; j < k; j++ {
		d := floats32.SquaredL2(vec, centroids[j*dim:(j+1)*dim])
		if d < minDist {
			minDist = d
			best = j
		}
	}

	return best
}
