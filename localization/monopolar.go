package localization

import (
	"math"
)

// monopolar implements the monopolar_triangulation method: the spike is
// modeled as a point current source at (x, y, z) with amplitude alpha,
// whose field decays as alpha / distance. The per-channel peak-to-peak
// amplitudes are fit to that model.
//
// For a candidate position the optimal alpha has a closed form, so the
// fit reduces to a search over position, done coarse-to-fine on a grid
// around the center-of-mass initial guess. This keeps the estimate fully
// deterministic.
//
// Kwargs: radius_um (default 75), max_distance_um (default 150).
type monopolar struct {
	radiusUm      float64
	maxDistanceUm float64
}

var _ Localizer = (*monopolar)(nil)

func init() {
	RegisterMethod(MonopolarTriangulation, newMonopolar)
}

func newMonopolar(kwargs Kwargs) (Localizer, error) {
	kwargs = cloneKwargs(kwargs)
	radius, err := floatKwarg(kwargs, "radius_um", 75)
	if err != nil {
		return nil, err
	}
	maxDist, err := floatKwarg(kwargs, "max_distance_um", 150)
	if err != nil {
		return nil, err
	}
	if err := rejectUnknown(MonopolarTriangulation, kwargs); err != nil {
		return nil, err
	}
	return &monopolar{radiusUm: radius, maxDistanceUm: maxDist}, nil
}

func (l *monopolar) Name() Method { return MonopolarTriangulation }

func (l *monopolar) RadiusUm() float64 { return l.radiusUm }

func (l *monopolar) Localize(s *Snippet) (Location, error) {
	amps := s.ptps()

	// Initial guess: center of mass of the amplitudes, a little above
	// the probe plane.
	var sumW, sumX, sumY float64
	for c, a := range amps {
		w := float64(a)
		sumW += w
		sumX += w * float64(s.Positions[c][0])
		sumY += w * float64(s.Positions[c][1])
	}
	if sumW == 0 {
		center := s.Positions[s.CenterIndex]
		return Location{X: center[0], Y: center[1], Z: 1}, nil
	}
	x, y := sumX/sumW, sumY/sumW
	z := 1.0

	// Coarse-to-fine grid refinement.
	span := l.maxDistanceUm
	var alpha float64
	for level := 0; level < 4; level++ {
		x, y, z, alpha = l.refine(s, amps, x, y, z, span)
		span /= 4
	}
	return Location{X: float32(x), Y: float32(y), Z: float32(z), Alpha: float32(alpha)}, nil
}

const monopolarGridSteps = 7

// refine searches a (2*span)^3 box around (x, y, z) and returns the best
// candidate with its fitted alpha.
func (l *monopolar) refine(s *Snippet, amps []float32, x, y, z, span float64) (bx, by, bz, balpha float64) {
	bestCost := math.Inf(1)
	step := 2 * span / (monopolarGridSteps - 1)
	for i := 0; i < monopolarGridSteps; i++ {
		cx := x - span + float64(i)*step
		for j := 0; j < monopolarGridSteps; j++ {
			cy := y - span + float64(j)*step
			for k := 0; k < monopolarGridSteps; k++ {
				cz := z - span + float64(k)*step
				if cz < 1 {
					cz = 1 // sources sit off the probe plane
				}
				if cz > l.maxDistanceUm {
					cz = l.maxDistanceUm
				}
				alpha, cost := fitAlpha(s, amps, cx, cy, cz)
				if cost < bestCost {
					bestCost = cost
					bx, by, bz, balpha = cx, cy, cz, alpha
				}
			}
		}
	}
	return bx, by, bz, balpha
}

// fitAlpha solves the closed-form least-squares alpha for a candidate
// source position and returns the residual cost.
func fitAlpha(s *Snippet, amps []float32, x, y, z float64) (alpha, cost float64) {
	var num, den float64
	dists := make([]float64, len(amps))
	for c, a := range amps {
		dx := float64(s.Positions[c][0]) - x
		dy := float64(s.Positions[c][1]) - y
		d := math.Sqrt(dx*dx + dy*dy + z*z)
		dists[c] = d
		num += float64(a) / d
		den += 1 / (d * d)
	}
	if den == 0 {
		return 0, math.Inf(1)
	}
	alpha = num / den
	for c, a := range amps {
		r := float64(a) - alpha/dists[c]
		cost += r * r
	}
	return alpha, cost
}
