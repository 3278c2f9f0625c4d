package radio_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgefabric/centralctl/internal/radio"
)

func TestFitRequiresAtLeastTwoSamples(t *testing.T) {
	e := radio.NewEstimator()
	e.Observe("alice", "bs1", 0, -60)

	_, _, _, ok := e.Fit("alice", "bs1")
	assert.False(t, ok)

	e.Observe("alice", "bs1", 1, -61)
	_, _, _, ok = e.Fit("alice", "bs1")
	assert.True(t, ok)
}

func TestRingEvictsOldestBeyondTen(t *testing.T) {
	e := radio.NewEstimator()
	for i := 0; i < 15; i++ {
		e.Observe("alice", "bs1", float64(i), -60)
	}

	ring := e.Ring("alice", "bs1")
	require.Len(t, ring, 10)
	assert.Equal(t, float64(5), ring[0].Tau)
	assert.Equal(t, float64(14), ring[9].Tau)
}

func TestPredictedRSSIFlatSignalStaysFlat(t *testing.T) {
	e := radio.NewEstimator()
	for i := 0; i < 5; i++ {
		e.Observe("alice", "bs1", float64(i), -60)
	}

	eta2, eta1, eta0, ok := e.Fit("alice", "bs1")
	require.True(t, ok)

	predicted := radio.PredictedRSSI(eta2, eta1, eta0, 2)
	assert.InDelta(t, -60, predicted, 2.0)
}

// Testable property 6: with a fixed trajectory and velocity, increasing
// hysteresis must not decrease the predicted handover time.
func TestHandoverTimeMonotonicInHysteresis(t *testing.T) {
	// User moving along y=0 toward the destination BS.
	x0, y0 := 0.0, 0.0
	vx, vy := 1.0, 0.0
	trajA, trajB := 0.0, 0.0

	xs, ys := 0.0, 5.0  // source BS, off to the side
	xd, yd := 20.0, 5.0 // destination BS, further along the path

	tLow, okLow := radio.HandoverTime(x0, y0, trajA, trajB, vx, vy, xs, ys, xd, yd, 3.0)
	tHigh, okHigh := radio.HandoverTime(x0, y0, trajA, trajB, vx, vy, xs, ys, xd, yd, 12.0)

	require.True(t, okLow)
	require.True(t, okHigh)
	assert.GreaterOrEqual(t, tHigh, tLow)
}

func TestHandoverTimeUndefinedWithoutVelocity(t *testing.T) {
	_, ok := radio.HandoverTime(0, 0, 0, 0, 0, 0, 0, 5, 20, 5, radio.DefaultHysteresis)
	assert.False(t, ok)
}

func TestNeighbourCandidatesRespectsLookbackAndThreshold(t *testing.T) {
	candidates := []radio.BSCandidate{
		{Name: "near", X: 1, Y: 0, LastMeasuredRSSI: -50, Age: time.Minute},
		{Name: "far-stale", X: 1000, Y: 0, LastMeasuredRSSI: -90, Age: 10 * time.Minute},
		{Name: "far-fresh", X: 1000, Y: 0, LastMeasuredRSSI: -95, Age: time.Minute},
	}

	out := radio.NeighbourCandidates(0, 0, 0, 0, 0, candidates, radio.DefaultThresholdMin)
	assert.Contains(t, out, "near")
	assert.NotContains(t, out, "far-stale")
	assert.NotContains(t, out, "far-fresh")
}
