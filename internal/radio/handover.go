package radio

import (
	"math"

	"github.com/edgefabric/centralctl/internal/geo"
)

// DefaultHysteresis is the 7.0 dBm default hysteresis margin (spec §6
// "Constants").
const DefaultHysteresis = 7.0

// quadraticRealRoots solves a*x^2 + b*x + c = 0 for real roots. Handles
// the degenerate linear (a==0) case.
func quadraticRealRoots(a, b, c float64) []float64 {
	if a == 0 {
		if b == 0 {
			return nil
		}

		return []float64{-c / b}
	}

	disc := b*b - 4*a*c
	if disc < 0 {
		return nil
	}

	if disc == 0 {
		return []float64{-b / (2 * a)}
	}

	sq := math.Sqrt(disc)
	return []float64{(-b + sq) / (2 * a), (-b - sq) / (2 * a)}
}

// HandoverTime implements spec §4.3's trajectory-intersection form only
// (open question 3: the coefficient-solver path is not implemented,
// since the spec names it solely to rule it out). Given the user's
// current position (x0,y0), velocity (vx,vy), trajectory y=a·x+b, the
// source/destination BS positions, and a hysteresis margin, it returns
// the smallest non-negative time at which d_s² = ω·d_d² along the
// trajectory, or ok=false if no such time exists.
func HandoverTime(x0, y0, trajA, trajB, vx, vy, xs, ys, xd, yd, hys float64) (t float64, ok bool) {
	v := math.Hypot(vx, vy)
	if v == 0 {
		return 0, false
	}

	omega := math.Pow(10, hys/(5*PathLossN))

	a := trajA
	b := trajB

	// d_s^2 - omega*d_d^2 = 0, substituting y = a*x + b
	coefA := (1 + a*a) * (1 - omega)
	coefB := (-2*xs + 2*a*(b-ys)) - omega*(-2*xd+2*a*(b-yd))
	coefC := (xs*xs + (b-ys)*(b-ys)) - omega*(xd*xd+(b-yd)*(b-yd))

	roots := quadraticRealRoots(coefA, coefB, coefC)
	if len(roots) == 0 {
		return 0, false
	}

	best := math.Inf(1)
	found := false

	for _, x := range roots {
		y := a*x + b

		dx := x - x0
		dy := y - y0

		dot := dx*vx + dy*vy
		sign := 1.0
		if dot < 0 {
			sign = -1.0
		}

		candidate := sign * geo.Distance(x0, y0, x, y) / v
		if candidate < 0 {
			continue
		}

		if candidate < best {
			best = candidate
			found = true
		}
	}

	if !found {
		return 0, false
	}

	return best, true
}
