package transform

// Inverse recovers the undistorted normalized point that Transform maps onto (xd, yd). It uses
// fixed point iteration, dividing out the radial term and subtracting the tangential and thin
// prism terms evaluated at the current estimate.
func (bc *BrownConrady) Inverse(xd, yd float64) (float64, float64) {
	if bc == nil {
		return xd, yd
	}
	c := &bc.Coefficients

	const maxIterations = 20
	const tolerance = 1e-10

	xu, yu := xd, yd
	for i := 0; i < maxIterations; i++ {
		r2 := xu*xu + yu*yu
		r4 := r2 * r2
		r6 := r4 * r2
		icdist := (1 + c[5]*r2 + c[6]*r4 + c[7]*r6) / (1 + c[0]*r2 + c[1]*r4 + c[4]*r6)
		if icdist < 0 {
			// the model folds over here, there is no meaningful inverse
			return xd, yd
		}
		deltaX := 2*c[2]*xu*yu + c[3]*(r2+2*xu*xu) + c[8]*r2 + c[9]*r4
		deltaY := c[2]*(r2+2*yu*yu) + 2*c[3]*xu*yu + c[10]*r2 + c[11]*r4
		xu = (xd - deltaX) * icdist
		yu = (yd - deltaY) * icdist

		xEst, yEst := bc.Transform(xu, yu)
		errX, errY := xEst-xd, yEst-yd
		if errX*errX+errY*errY < tolerance*tolerance {
			break
		}
	}
	return xu, yu
}
