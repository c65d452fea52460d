package localization

import (
	"fmt"

	"github.com/hupe1980/spikego/internal/floats32"
)

// comFeatures are the per-channel weights center-of-mass can use.
var comFeatures = map[string]bool{
	"ptp":          true,
	"energy":       true,
	"peak_voltage": true,
}

// centerOfMass implements the center_of_mass method.
//
// Kwargs: radius_um (default 75), feature ("ptp" | "energy" |
// "peak_voltage", default "ptp").
type centerOfMass struct {
	radiusUm float64
	feature  string
}

var _ Localizer = (*centerOfMass)(nil)

func init() {
	RegisterMethod(CenterOfMass, newCenterOfMass)
}

func newCenterOfMass(kwargs Kwargs) (Localizer, error) {
	kwargs = cloneKwargs(kwargs)
	radius, err := floatKwarg(kwargs, "radius_um", 75)
	if err != nil {
		return nil, err
	}
	feature, err := stringKwarg(kwargs, "feature", "ptp")
	if err != nil {
		return nil, err
	}
	if !comFeatures[feature] {
		return nil, fmt.Errorf("method %q: unknown feature %q", CenterOfMass, feature)
	}
	if err := rejectUnknown(CenterOfMass, kwargs); err != nil {
		return nil, err
	}
	return &centerOfMass{radiusUm: radius, feature: feature}, nil
}

func (l *centerOfMass) Name() Method { return CenterOfMass }

func (l *centerOfMass) RadiusUm() float64 { return l.radiusUm }

func (l *centerOfMass) Localize(s *Snippet) (Location, error) {
	var sumW, sumX, sumY float32
	for c := range s.Channels {
		var w float32
		switch l.feature {
		case "energy":
			w = floats32.Energy(s.column(c))
		case "peak_voltage":
			v := s.Wave[s.PeakIndex][c]
			if v < 0 {
				v = -v
			}
			w = v
		default:
			w = floats32.Ptp(s.column(c))
		}
		sumW += w
		sumX += w * s.Positions[c][0]
		sumY += w * s.Positions[c][1]
	}
	if sumW == 0 {
		// Flat snippet, e.g. an all-zero window at a segment edge.
		center := s.Positions[s.CenterIndex]
		return Location{X: center[0], Y: center[1]}, nil
	}
	return Location{X: sumX / sumW, Y: sumY / sumW}, nil
}
