package radio

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Path-loss constants (spec §4.2/§4.3): n is the path-loss exponent, A
// the 1-meter reference. internal/store declares its own copies of the
// same values for its trilateration.
const (
	PathLossN = 3.0
	PathLossA = -30.0
	ridgeAlpha = 2.0
)

// transform maps a raw RSSI reading to the y* space the degree-2
// polynomial is fit in. The "5n" normalisation (rather than the textbook
// "10n") is deliberate — see SPEC_FULL.md open question 2.
func transform(rssi float64) float64 {
	return math.Pow(10, -(rssi-PathLossA)/(5*PathLossN))
}

// Fit ridge-regresses the (user,bs) ring's transformed samples against a
// degree-2 polynomial in τ, returning ok=false when fewer than 2 samples
// are available (spec §4.3: "fit requires ≥2 samples").
func (e *Estimator) Fit(user, bs string) (eta2, eta1, eta0 float64, ok bool) {
	ring := e.Ring(user, bs)
	if len(ring) < 2 {
		return 0, 0, 0, false
	}

	n := len(ring)
	x := mat.NewDense(n, 3, nil)
	y := mat.NewVecDense(n, nil)

	for i, s := range ring {
		tau := s.Tau
		x.Set(i, 0, tau*tau)
		x.Set(i, 1, tau)
		x.Set(i, 2, 1)
		y.SetVec(i, transform(s.Filtered))
	}

	beta := ridgeSolve(x, y, ridgeAlpha)
	return beta.AtVec(0), beta.AtVec(1), beta.AtVec(2), true
}

// ridgeSolve computes β = (XᵀX + αI)⁻¹Xᵀy.
func ridgeSolve(x *mat.Dense, y *mat.VecDense, alpha float64) *mat.VecDense {
	_, p := x.Dims()

	var xtx mat.Dense
	xtx.Mul(x.T(), x)

	for i := 0; i < p; i++ {
		xtx.Set(i, i, xtx.At(i, i)+alpha)
	}

	var xty mat.VecDense
	xty.MulVec(x.T(), y)

	var beta mat.VecDense
	if err := beta.SolveVec(&xtx, &xty); err != nil {
		return mat.NewVecDense(p, nil)
	}

	return &beta
}

// PredictedRSSI evaluates the fitted model at τ seconds since t0 (spec
// §4.3): d̂ = sqrt(max(η2τ²+η1τ+η0, 1)), rssî = -10n·log10(d̂) + A.
func PredictedRSSI(eta2, eta1, eta0, tau float64) float64 {
	dist2 := eta2*tau*tau + eta1*tau + eta0
	if dist2 < 1 {
		dist2 = 1
	}

	d := math.Sqrt(dist2)
	return -10*PathLossN*math.Log10(d) + PathLossA
}
