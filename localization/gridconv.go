package localization

import (
	"math"

	"github.com/hupe1980/spikego/core"
)

// gridConvolution implements the grid_convolution method: candidate
// source positions form a dense grid over the snippet's channel
// footprint, each scored by convolving the per-channel amplitudes with a
// gaussian prototype centered on the candidate. The location is the
// score-weighted mean of the near-best candidates, which interpolates
// between grid nodes.
//
// Kwargs: radius_um (default 40), upsampling_um (grid pitch, default 5),
// sigma_um (prototype width, default 25), margin_um (grid margin beyond
// the footprint, default 50).
type gridConvolution struct {
	radiusUm     float64
	upsamplingUm float64
	sigmaUm      float64
	marginUm     float64
}

var _ Localizer = (*gridConvolution)(nil)

func init() {
	RegisterMethod(GridConvolution, newGridConvolution)
}

func newGridConvolution(kwargs Kwargs) (Localizer, error) {
	kwargs = cloneKwargs(kwargs)
	radius, err := floatKwarg(kwargs, "radius_um", 40)
	if err != nil {
		return nil, err
	}
	upsampling, err := floatKwarg(kwargs, "upsampling_um", 5)
	if err != nil {
		return nil, err
	}
	sigma, err := floatKwarg(kwargs, "sigma_um", 25)
	if err != nil {
		return nil, err
	}
	margin, err := floatKwarg(kwargs, "margin_um", 50)
	if err != nil {
		return nil, err
	}
	if err := rejectUnknown(GridConvolution, kwargs); err != nil {
		return nil, err
	}
	return &gridConvolution{
		radiusUm:     radius,
		upsamplingUm: upsampling,
		sigmaUm:      sigma,
		marginUm:     margin,
	}, nil
}

func (l *gridConvolution) Name() Method { return GridConvolution }

func (l *gridConvolution) RadiusUm() float64 { return l.radiusUm }

func (l *gridConvolution) Localize(s *Snippet) (Location, error) {
	amps := s.ptps()

	minX, minY, maxX, maxY := footprint(s.Positions)
	minX -= float32(l.marginUm)
	minY -= float32(l.marginUm)
	maxX += float32(l.marginUm)
	maxY += float32(l.marginUm)

	twoSigma2 := 2 * l.sigmaUm * l.sigmaUm
	pitch := l.upsamplingUm

	type node struct {
		x, y  float64
		score float64
	}
	var best float64
	var nodes []node
	for x := float64(minX); x <= float64(maxX); x += pitch {
		for y := float64(minY); y <= float64(maxY); y += pitch {
			var score float64
			for c, a := range amps {
				dx := x - float64(s.Positions[c][0])
				dy := y - float64(s.Positions[c][1])
				score += float64(a) * math.Exp(-(dx*dx+dy*dy)/twoSigma2)
			}
			nodes = append(nodes, node{x: x, y: y, score: score})
			if score > best {
				best = score
			}
		}
	}
	if best == 0 {
		center := s.Positions[s.CenterIndex]
		return Location{X: center[0], Y: center[1]}, nil
	}

	// Score-weighted mean of the near-best nodes.
	threshold := 0.9 * best
	var sumW, sumX, sumY float64
	for _, n := range nodes {
		if n.score < threshold {
			continue
		}
		sumW += n.score
		sumX += n.score * n.x
		sumY += n.score * n.y
	}
	return Location{
		X:     float32(sumX / sumW),
		Y:     float32(sumY / sumW),
		Alpha: float32(best),
	}, nil
}

func footprint(positions []core.Position) (minX, minY, maxX, maxY float32) {
	minX, minY = positions[0][0], positions[0][1]
	maxX, maxY = minX, minY
	for _, p := range positions[1:] {
		if p[0] < minX {
			minX = p[0]
		}
		if p[0] > maxX {
			maxX = p[0]
		}
		if p[1] < minY {
			minY = p[1]
		}
		if p[1] > maxY {
			maxY = p[1]
		}
	}
	return minX, minY, maxX, maxY
}
