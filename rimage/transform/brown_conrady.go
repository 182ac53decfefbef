package transform

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// Coefficient counts of the supported distortion vectors.
const (
	// DistortionBasic is [k1, k2, p1, p2, k3].
	DistortionBasic = 5
	// DistortionRational adds the rational denominator [k4, k5, k6].
	DistortionRational = 8
	// DistortionThinPrism adds the thin prism terms [s1, s2, s3, s4].
	DistortionThinPrism = 12
)

// BrownConrady is the polynomial lens model. Coefficients are stored in the full twelve slot order
// and Length records how many of them are meaningful.
type BrownConrady struct {
	Coefficients [DistortionThinPrism]float64 `json:"coefficients"`
	Length       int                          `json:"length"`
}

// NewBrownConrady takes in a slice of coefficients in [k1, k2, p1, p2, k3, k4, k5, k6, s1, s2, s3, s4]
// order. Accepted lengths are 0, 4, 5, 8 and 12.
func NewBrownConrady(inp []float64) (*BrownConrady, error) {
	switch len(inp) {
	case 0:
		return &BrownConrady{Length: DistortionBasic}, nil
	case 4, DistortionBasic, DistortionRational, DistortionThinPrism:
	default:
		return nil, errors.Errorf("distortion vector must have 4, 5, 8 or 12 coefficients, got %d", len(inp))
	}
	bc := &BrownConrady{Length: len(inp)}
	if bc.Length == 4 {
		bc.Length = DistortionBasic
	}
	copy(bc.Coefficients[:], inp)
	return bc, nil
}

// CheckValid checks if the fields for BrownConrady have valid inputs.
func (bc *BrownConrady) CheckValid() error {
	if bc == nil {
		return InvalidDistortionError("BrownConrady shaped distortion_parameters not provided")
	}
	switch bc.Length {
	case DistortionBasic, DistortionRational, DistortionThinPrism:
	default:
		return InvalidDistortionError(fmt.Sprintf("unsupported coefficient count %d", bc.Length))
	}
	for i, c := range bc.Coefficients {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return InvalidDistortionError(fmt.Sprintf("coefficient %d is not finite", i))
		}
	}
	return nil
}

// ModelType returns the type of distortion model.
func (bc *BrownConrady) ModelType() DistortionType {
	return BrownConradyDistortionType
}

// Parameters returns the first Length coefficients.
func (bc *BrownConrady) Parameters() []float64 {
	if bc == nil {
		return []float64{}
	}
	out := make([]float64, bc.Length)
	copy(out, bc.Coefficients[:bc.Length])
	return out
}

// Transform distorts a normalized image point:
//
//	r² = x² + y²
//	radial = (1 + k1·r² + k2·r⁴ + k3·r⁶) / (1 + k4·r² + k5·r⁴ + k6·r⁶)
//	x_d = x·radial + 2·p1·x·y + p2·(r² + 2x²) + s1·r² + s2·r⁴
//	y_d = y·radial + p1·(r² + 2y²) + 2·p2·x·y + s3·r² + s4·r⁴
func (bc *BrownConrady) Transform(x, y float64) (float64, float64) {
	if bc == nil {
		return x, y
	}
	c := &bc.Coefficients
	r2 := x*x + y*y
	r4 := r2 * r2
	r6 := r4 * r2
	radial := (1 + c[0]*r2 + c[1]*r4 + c[4]*r6) / (1 + c[5]*r2 + c[6]*r4 + c[7]*r6)
	xd := x*radial + 2*c[2]*x*y + c[3]*(r2+2*x*x) + c[8]*r2 + c[9]*r4
	yd := y*radial + c[2]*(r2+2*y*y) + 2*c[3]*x*y + c[10]*r2 + c[11]*r4
	return xd, yd
}
