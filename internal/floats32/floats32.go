// Package floats32 provides float32 kernels shared by localization,
// template averaging and the built-in sorters.
package floats32

import (
	"math"
	"slices"
)

// Dot calculates the dot product of two vectors.
func Dot(a, b []float32) float32 {
	var ret float32
	for i := range a {
		ret += a[i] * b[i]
	}
	return ret
}

// SquaredL2 calculates the squared L2 distance between two vectors.
func SquaredL2(a, b []float32) float32 {
	var d float32
	for i := range a {
		d += (a[i] - b[i]) * (a[i] - b[i])
	}
	return d
}

// ScaleInPlace multiplies all elements of a by scalar.
func ScaleInPlace(a []float32, scalar float32) {
	for i := range a {
		a[i] *= scalar
	}
}

// AddInPlace adds b to a element-wise. Slices must have equal length.
func AddInPlace(a, b []float32) {
	for i := range a {
		a[i] += b[i]
	}
}

// Ptp returns the peak-to-peak amplitude (max - min) of v.
// Returns 0 for an empty slice.
func Ptp(v []float32) float32 {
	if len(v) == 0 {
		return 0
	}
	minv, maxv := v[0], v[0]
	for _, x := range v[1:] {
		if x < minv {
			minv = x
		}
		if x > maxv {
			maxv = x
		}
	}
	return maxv - minv
}

// Energy returns the sum of squares of v.
func Energy(v []float32) float32 {
	var e float32
	for _, x := range v {
		e += x * x
	}
	return e
}

// ArgMin returns the index of the smallest element of v, or -1 if empty.
func ArgMin(v []float32) int {
	if len(v) == 0 {
		return -1
	}
	best := 0
	for i, x := range v[1:] {
		if x < v[best] {
			best = i + 1
		}
	}
	return best
}

// ArgMax returns the index of the largest element of v, or -1 if empty.
func ArgMax(v []float32) int {
	if len(v) == 0 {
		return -1
	}
	best := 0
	for i, x := range v[1:] {
		if x > v[best] {
			best = i + 1
		}
	}
	return best
}

// ArgAbsMax returns the index of the element with the largest absolute
// value, or -1 if empty.
func ArgAbsMax(v []float32) int {
	if len(v) == 0 {
		return -1
	}
	best := 0
	for i, x := range v[1:] {
		if abs(x) > abs(v[best]) {
			best = i + 1
		}
	}
	return best
}

// Mean returns the arithmetic mean of v, or 0 for an empty slice.
func Mean(v []float32) float32 {
	if len(v) == 0 {
		return 0
	}
	var sum float32
	for _, x := range v {
		sum += x
	}
	return sum / float32(len(v))
}

// Std returns the population standard deviation of v.
func Std(v []float32) float32 {
	if len(v) == 0 {
		return 0
	}
	m := Mean(v)
	var sum float32
	for _, x := range v {
		sum += (x - m) * (x - m)
	}
	return Sqrt(sum / float32(len(v)))
}

// MAD returns the median absolute deviation of v scaled to estimate the
// standard deviation of gaussian noise (factor 1.4826). The slice is not
// modified.
func MAD(v []float32) float32 {
	if len(v) == 0 {
		return 0
	}
	tmp := make([]float32, len(v))
	copy(tmp, v)
	med := median(tmp)
	for i, x := range tmp {
		tmp[i] = abs(x - med)
	}
	return 1.4826 * median(tmp)
}

// Sqrt is a float32 square root.
func Sqrt(x float32) float32 {
	return float32(math.Sqrt(float64(x)))
}

func abs(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}

// median sorts tmp in place and returns its median.
func median(tmp []float32) float32 {
	slices.Sort(tmp)
	n := len(tmp)
	if n%2 == 1 {
		return tmp[n/2]
	}
	return (tmp[n/2-1] + tmp[n/2]) / 2
}
