package radio

import (
	"math"
	"time"

	"github.com/edgefabric/centralctl/internal/geo"
)

// NeighbourLookback bounds which BSs are considered at all: only those
// observed for the user within the last 5 minutes (spec §4.3).
const NeighbourLookback = 5 * time.Minute

// DefaultThresholdMin is the -83 dBm default RSSI floor (spec §6
// "Constants").
const DefaultThresholdMin = -83.0

// BSCandidate is one base station considered for the optimised planner's
// neighbour set.
type BSCandidate struct {
	Name             string
	X, Y             float64
	LastMeasuredRSSI float64
	Age              time.Duration
}

func distanceToRSSI(d float64) float64 {
	if d <= 0 {
		d = 0.01
	}

	return PathLossA - 10*PathLossN*math.Log10(d)
}

// NeighbourCandidates implements spec §4.3's neighbour-candidate rule:
// for each BS observed within the lookback window, project the user's
// position forward by deltaT using its current velocity, compute the
// predicted distance and RSSI to that BS, and include the BS if
// max(predicted, last_measured) exceeds thresholdMin.
func NeighbourCandidates(x0, y0, vx, vy, deltaT float64, candidates []BSCandidate, thresholdMin float64) []string {
	xPred := x0 + vx*deltaT
	yPred := y0 + vy*deltaT

	var out []string
	for _, c := range candidates {
		if c.Age > NeighbourLookback {
			continue
		}

		d := geo.Distance(xPred, yPred, c.X, c.Y)
		predicted := distanceToRSSI(d)

		best := predicted
		if c.LastMeasuredRSSI > best {
			best = c.LastMeasuredRSSI
		}

		if best > thresholdMin {
			out = append(out, c.Name)
		}
	}

	return out
}
