package tracks

import (
	"gonum.org/v1/gonum/mat"
)

// point is one observed position of a trajectory.
type point struct {
	frame int
	y, x  float64
}

// extrapolate predicts the position of a trajectory at frame by fitting a
// least-squares polynomial in time to its most recent positions. The
// degree is order, reduced when fewer than order+1 positions are known.
func extrapolate(hist []point, frame, order int) (y, x float64) {
	n := len(hist)
	last := hist[n-1]
	if order <= 0 || n < 2 {
		return last.y, last.x
	}
	use := order + 1
	if use > n {
		use = n
	}
	recent := hist[n-use:]
	deg := use - 1

	// Times are relative to the target frame so the constant term is the
	// prediction.
	a := mat.NewDense(use, deg+1, nil)
	by := mat.NewVecDense(use, nil)
	bx := mat.NewVecDense(use, nil)
	for r, p := range recent {
		t := float64(p.frame - frame)
		v := 1.0
		for c := 0; c <= deg; c++ {
			a.Set(r, c, v)
			v *= t
		}
		by.SetVec(r, p.y)
		bx.SetVec(r, p.x)
	}

	var cy, cx mat.VecDense
	if err := cy.SolveVec(a, by); err != nil {
		return last.y, last.x
	}
	if err := cx.SolveVec(a, bx); err != nil {
		return last.y, last.x
	}
	return cy.AtVec(0), cx.AtVec(0)
}
