package geo_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edgefabric/centralctl/internal/geo"
)

// Trilateration round-trip: given BS positions and a user at (X,Y),
// computing distances and inverting via the 2x2 system recovers (X,Y)
// to floating-point tolerance (testable property 5).
func TestTrilaterate_RoundTrip(t *testing.T) {
	x1, y1 := 0.0, 0.0
	x2, y2 := 100.0, 0.0
	x3, y3 := 0.0, 100.0

	userX, userY := 37.0, 52.0

	r1 := geo.Distance(x1, y1, userX, userY)
	r2 := geo.Distance(x2, y2, userX, userY)
	r3 := geo.Distance(x3, y3, userX, userY)

	gotX, gotY, ok := geo.Trilaterate(x1, y1, r1, x2, y2, r2, x3, y3, r3)

	assert.True(t, ok)
	assert.InDelta(t, userX, gotX, 1e-6)
	assert.InDelta(t, userY, gotY, 1e-6)
}

func TestSolve2x2_Singular(t *testing.T) {
	_, _, ok := geo.Solve2x2(1, 2, 3, 2, 4, 6)
	assert.False(t, ok)
}

func TestLinearRegression_PerfectLine(t *testing.T) {
	xs := []float64{0, 1, 2, 3}
	ys := []float64{1, 3, 5, 7} // y = 2x + 1

	a, b, ok := geo.LinearRegression(xs, ys)

	assert.True(t, ok)
	assert.InDelta(t, 2.0, a, 1e-9)
	assert.InDelta(t, 1.0, b, 1e-9)
}

func TestLinearRegression_TooFewPoints(t *testing.T) {
	_, _, ok := geo.LinearRegression([]float64{1}, []float64{1})
	assert.False(t, ok)
}

func TestDistance_Basic(t *testing.T) {
	assert.InDelta(t, 5.0, geo.Distance(0, 0, 3, 4), 1e-9)
	assert.InDelta(t, math.Sqrt(2), geo.Distance(0, 0, 1, 1), 1e-9)
}
