package calibration

import (
	"github.com/pkg/errors"

	"go.viam.com/camisp/rimage/transform"
	"go.viam.com/camisp/utils"
)

// TermCriteria bounds the nonlinear refinement.
type TermCriteria struct {
	MaxIterations int `json:"max_iterations"`
	// Epsilon is the relative cost change below which the refinement stops.
	Epsilon float64 `json:"epsilon"`
}

// DefaultTermCriteria is 30 iterations or a relative change at machine precision.
var DefaultTermCriteria = TermCriteria{MaxIterations: 30, Epsilon: utils.Epsilon}

// Flags select which parameters the solver holds fixed and which distortion terms it estimates.
type Flags struct {
	FixPrincipalPoint bool `json:"fix_principal_point"`
	ZeroTangentDist   bool `json:"zero_tangent_dist"`
	FixAspectRatio    bool `json:"fix_aspect_ratio"`
	RationalModel     bool `json:"rational_model"`
	ThinPrismModel    bool `json:"thin_prism_model"`
	FixK1             bool `json:"fix_k1"`
	FixK2             bool `json:"fix_k2"`
	FixK3             bool `json:"fix_k3"`
	FixK4             bool `json:"fix_k4"`
	FixK5             bool `json:"fix_k5"`
	FixK6             bool `json:"fix_k6"`

	Criteria TermCriteria `json:"criteria"`
}

// DefaultFlags estimates all radial terms of the five coefficient model with tangential distortion
// held at zero.
func DefaultFlags() Flags {
	return Flags{ZeroTangentDist: true, Criteria: DefaultTermCriteria}
}

// Validate checks the termination criteria.
func (f Flags) Validate() error {
	if f.Criteria.MaxIterations < 0 {
		return errors.Errorf("max_iterations must not be negative, got %d", f.Criteria.MaxIterations)
	}
	if f.Criteria.Epsilon < 0 {
		return errors.Errorf("epsilon must not be negative, got %v", f.Criteria.Epsilon)
	}
	return nil
}

// DistortionLength is the length of the distortion vector a solve with these flags produces.
func (f Flags) DistortionLength() int {
	switch {
	case f.ThinPrismModel:
		return transform.DistortionThinPrism
	case f.RationalModel:
		return transform.DistortionRational
	default:
		return transform.DistortionBasic
	}
}

// freeDistortion returns the indices of the distortion coefficients the solver may change.
func (f Flags) freeDistortion() []int {
	fixed := map[int]bool{
		0: f.FixK1,
		1: f.FixK2,
		2: f.ZeroTangentDist,
		3: f.ZeroTangentDist,
		4: f.FixK3,
		5: f.FixK4,
		6: f.FixK5,
		7: f.FixK6,
	}
	var free []int
	for i := 0; i < f.DistortionLength(); i++ {
		// rational terms only move with the rational model
		if i >= 5 && i < 8 && !f.RationalModel {
			continue
		}
		if !fixed[i] {
			free = append(free, i)
		}
	}
	return free
}
