// Package radio is the Radio & Mobility Estimator (C3, spec §4.3): it
// keeps a short ring of filtered RSSI samples per (user, BS), fits a
// decaying log-distance model to predict future RSSI, and derives
// handover time from the trajectory the store maintains per user. The
// numerics are grounded on gonum.org/v1/gonum, the library a sibling in
// this retrieval pack (inference-sim-inference-sim) reaches for in place
// of a hand-rolled least-squares solver; the teacher itself carries no
// numerics dependency (see SPEC_FULL.md "DOMAIN STACK").
package radio

import "sync"

// ringLen bounds the per-(user,BS) sample history to the last 10 fixes
// (spec §4.3).
const ringLen = 10

// Sample is one filtered RSSI reading, timestamped in seconds relative
// to the controller's own start time t0.
type Sample struct {
	Tau      float64 // seconds since t0
	Filtered float64 // dBm
}

// Estimator owns the per-(user,BS) sample rings. All mutation is
// expected to happen on the dispatcher goroutine (spec §5); the mutex
// also makes concurrent calls safe. Construct it with NewEstimator: the
// zero value has no ring map, so Observe on it panics.
type Estimator struct {
	mu    sync.Mutex
	rings map[[2]string][]Sample
}

// NewEstimator returns an empty Estimator.
func NewEstimator() *Estimator {
	return &Estimator{rings: make(map[[2]string][]Sample)}
}

// Observe appends a filtered RSSI reading to (user,bs)'s ring, evicting
// the oldest sample once the ring exceeds 10 entries.
func (e *Estimator) Observe(user, bs string, tau, filtered float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := [2]string{user, bs}
	r := append(e.rings[key], Sample{Tau: tau, Filtered: filtered})
	if len(r) > ringLen {
		r = r[len(r)-ringLen:]
	}

	e.rings[key] = r
}

// Ring returns a copy of the current samples for (user,bs).
func (e *Estimator) Ring(user, bs string) []Sample {
	e.mu.Lock()
	defer e.mu.Unlock()

	r := e.rings[[2]string{user, bs}]
	out := make([]Sample, len(r))
	copy(out, r)
	return out
}

// KnownBS returns every BS this estimator has at least one sample for
// user against, in no particular order.
func (e *Estimator) KnownBS(user string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []string
	for k, r := range e.rings {
		if k[0] == user && len(r) > 0 {
			out = append(out, k[1])
		}
	}

	return out
}
