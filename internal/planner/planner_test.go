package planner_test

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgefabric/centralctl/internal/migcost"
	"github.com/edgefabric/centralctl/internal/model"
	"github.com/edgefabric/centralctl/internal/planner"
	"github.com/edgefabric/centralctl/internal/planner/lp"
	"github.com/edgefabric/centralctl/internal/radio"
	"github.com/edgefabric/centralctl/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestCloudPlaceServiceAlwaysPicksDistanceZero(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.RegisterServer(model.Server{Name: "cloud1", DistanceTier: 0}))
	require.NoError(t, s.RegisterServer(model.Server{Name: "edge1", DistanceTier: 2}))

	p := &planner.Cloud{Store: s}
	got, err := p.PlaceService("U1", "whatever-bs", "")
	require.NoError(t, err)
	assert.Equal(t, "cloud1", got)
}

func TestCloudComputePlanSwitchesBSAboveThreshold(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.RegisterServer(model.Server{Name: "cloud1", DistanceTier: 0}))
	require.NoError(t, s.RegisterBS(model.BaseStation{Name: "bs1", X: 0, Y: 0}))
	require.NoError(t, s.UpsertUser(model.EndUser{Name: "U1", CurrentBS: ""}))
	_, err := s.IngestRSSI(time.Now(), "U1", "bs1", 0, 0, -60)
	require.NoError(t, err)

	p := &planner.Cloud{Store: s}
	plan, err := p.ComputePlan(0)
	require.NoError(t, err)
	require.Len(t, plan, 1)
	assert.Equal(t, "bs1", plan[0].NextBS)
	assert.Empty(t, plan[0].NextServer) // cloud never moves the server
}

func TestCloudComputePlanSkipsBelowThreshold(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.RegisterServer(model.Server{Name: "cloud1", DistanceTier: 0}))
	require.NoError(t, s.RegisterBS(model.BaseStation{Name: "bs1"}))
	require.NoError(t, s.UpsertUser(model.EndUser{Name: "U1"}))
	_, err := s.IngestRSSI(time.Now(), "U1", "bs1", 0, 0, -90)
	require.NoError(t, err)

	p := &planner.Cloud{Store: s}
	plan, err := p.ComputePlan(0)
	require.NoError(t, err)
	assert.Empty(t, plan)
}

func TestNearestPlaceServiceFallsBackToRandomWithoutCPU(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.RegisterServer(model.Server{Name: "edge1", CPUMaxMHz: 0}))
	require.NoError(t, s.RegisterBS(model.BaseStation{Name: "bs1", ServerName: "edge1"}))

	p := &planner.Nearest{Store: s, Rand: rand.New(rand.NewSource(1))}
	got, err := p.PlaceService("U1", "bs1", "")
	require.NoError(t, err)
	assert.Equal(t, "edge1", got) // only candidate in the random pool
}

func TestRandomComputePlanOnlyTriggersBelowThreshold(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.RegisterServer(model.Server{Name: "edge1"}))
	require.NoError(t, s.RegisterServer(model.Server{Name: "edge2"}))
	require.NoError(t, s.RegisterBS(model.BaseStation{Name: "bs1"}))
	require.NoError(t, s.UpsertUser(model.EndUser{Name: "U1", CurrentBS: "bs1"}))
	_, err := s.IngestRSSI(time.Now(), "U1", "bs1", 0, 0, -50)
	require.NoError(t, err)

	p := &planner.Random{Store: s, Rand: rand.New(rand.NewSource(1))}
	plan, err := p.ComputePlan(0)
	require.NoError(t, err)
	assert.Empty(t, plan, "RSSI well above threshold must not trigger a reassignment")
}

// Testable property 8: until |servers|-1 distinct (src,dst) pairs have
// samples, the optimised planner emits no diffs.
func TestOptimisedEmitsNoDiffsBeforeCostEstimatorReady(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.RegisterServer(model.Server{Name: "edge1", CPUMaxMHz: 2000, RAMFreeMB: 4096, DiskFreeMB: 10000}))
	require.NoError(t, s.RegisterServer(model.Server{Name: "edge2", CPUMaxMHz: 2000, RAMFreeMB: 4096, DiskFreeMB: 10000}))
	require.NoError(t, s.RegisterBS(model.BaseStation{Name: "bs1", ServerName: "edge1"}))
	require.NoError(t, s.RegisterBS(model.BaseStation{Name: "bs2", ServerName: "edge2"}))
	require.NoError(t, s.UpsertUser(model.EndUser{Name: "U1", CurrentBS: "bs1"}))
	require.NoError(t, s.UpsertService(model.Service{ID: "svcU1", User: "U1", ServerName: "edge1"}))
	_, err := s.IngestRSSI(time.Now(), "U1", "bs2", 100, 0, -50)
	require.NoError(t, err)

	cost := migcost.NewEstimator(nil) // no pairs populated: not Ready(1)
	p := &planner.Optimised{Store: s, Radio: radio.NewEstimator(), Cost: cost}

	plan, err := p.ComputePlan(0)
	require.NoError(t, err)
	assert.Empty(t, plan)
}

// Testable property 7 (partial): a non-Optimal solver status keeps the
// current assignment — no diffs — even when candidate variables exist.
func TestOptimisedKeepsCurrentAssignmentOnNonOptimalSolve(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.RegisterServer(model.Server{Name: "edge1", CPUMaxMHz: 2000, RAMFreeMB: 4096, DiskFreeMB: 10000}))
	require.NoError(t, s.RegisterServer(model.Server{Name: "edge2", CPUMaxMHz: 2000, RAMFreeMB: 4096, DiskFreeMB: 10000}))
	require.NoError(t, s.RegisterBS(model.BaseStation{Name: "bs1", ServerName: "edge1"}))
	require.NoError(t, s.RegisterBS(model.BaseStation{Name: "bs2", ServerName: "edge2"}))
	require.NoError(t, s.UpsertUser(model.EndUser{Name: "U1", CurrentBS: "bs1"}))
	require.NoError(t, s.UpsertService(model.Service{ID: "svcU1", User: "U1", ServerName: "edge1", CPUMHz: 500, MemMB: 512, SizeMB: 100}))
	_, err := s.IngestRSSI(time.Now(), "U1", "bs2", 100, 0, -50)
	require.NoError(t, err)

	cost := migcost.NewEstimator(nil)
	cost.UpdateFromNeighbourCosts("U1", map[string]model.CostPair{
		"edge2": {Src: "edge1", Dst: "edge2", TPreMigS: 1, TMigS: 2},
	})

	forceInfeasible := func(lp.Problem) lp.Result { return lp.Result{Status: lp.StatusInfeasible} }
	p := &planner.Optimised{Store: s, Radio: radio.NewEstimator(), Cost: cost, Solve: forceInfeasible}

	plan, err := p.ComputePlan(0)
	require.NoError(t, err)
	assert.Empty(t, plan)
}

// When the solver reports Optimal with every variable selected, the
// optimised planner proposes the candidate reassignment.
func TestOptimisedEmitsDiffOnOptimalSolve(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.RegisterServer(model.Server{Name: "edge1", CPUMaxMHz: 2000, RAMFreeMB: 4096, DiskFreeMB: 10000}))
	require.NoError(t, s.RegisterServer(model.Server{Name: "edge2", CPUMaxMHz: 2000, RAMFreeMB: 4096, DiskFreeMB: 10000}))
	require.NoError(t, s.RegisterBS(model.BaseStation{Name: "bs1", ServerName: "edge1"}))
	require.NoError(t, s.RegisterBS(model.BaseStation{Name: "bs2", ServerName: "edge2"}))
	require.NoError(t, s.UpsertUser(model.EndUser{Name: "U1", CurrentBS: "bs1"}))
	require.NoError(t, s.UpsertService(model.Service{ID: "svcU1", User: "U1", ServerName: "edge1", CPUMHz: 500, MemMB: 512, SizeMB: 100}))
	_, err := s.IngestRSSI(time.Now(), "U1", "bs2", 100, 0, -50)
	require.NoError(t, err)

	cost := migcost.NewEstimator(nil)
	cost.UpdateFromNeighbourCosts("U1", map[string]model.CostPair{
		"edge2": {Src: "edge1", Dst: "edge2", TPreMigS: 1, TMigS: 2},
	})

	forceSelectAll := func(p lp.Problem) lp.Result {
		x := make([]float64, len(p.C))
		for i := range x {
			x[i] = 1
		}
		return lp.Result{X: x, Status: lp.StatusOptimal}
	}
	p := &planner.Optimised{Store: s, Radio: radio.NewEstimator(), Cost: cost, Solve: forceSelectAll}

	plan, err := p.ComputePlan(0)
	require.NoError(t, err)
	require.Len(t, plan, 1)
	assert.Equal(t, "U1", plan[0].User)
	assert.Equal(t, "edge2", plan[0].NextServer)
	assert.Equal(t, "bs2", plan[0].NextBS)
}
