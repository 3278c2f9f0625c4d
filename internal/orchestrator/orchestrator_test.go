package orchestrator

import (
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgefabric/centralctl/internal/bus"
	"github.com/edgefabric/centralctl/internal/migcost"
	"github.com/edgefabric/centralctl/internal/model"
	"github.com/edgefabric/centralctl/internal/planner"
	"github.com/edgefabric/centralctl/internal/radio"
	"github.com/edgefabric/centralctl/internal/store"
	"github.com/edgefabric/centralctl/internal/wire"
)

// mustHandoverTime computes the same trajectory-intersection prediction
// o.handoverEstimate would, for building expected values in tests.
func mustHandoverTime(t *testing.T, u model.EndUser, src, dst model.BaseStation) float64 {
	t.Helper()
	tt, ok := radio.HandoverTime(u.X, u.Y, u.TrajA, u.TrajB, u.VX, u.VY, src.X, src.Y, dst.X, dst.Y, radio.DefaultHysteresis)
	require.True(t, ok)
	return tt
}

// silentLogger discards every call; these tests assert on published
// messages and store state, not on log lines.
type silentLogger struct{}

func (silentLogger) Debug(string, logrus.Fields) {}
func (silentLogger) Info(string, logrus.Fields)  {}
func (silentLogger) Warn(string, logrus.Fields)  {}
func (silentLogger) Error(string, logrus.Fields) {}

func decodeDescriptor(t *testing.T, payload []byte) wire.ServiceDescriptor {
	t.Helper()
	var sd wire.ServiceDescriptor
	require.NoError(t, json.Unmarshal(payload, &sd))
	return sd
}

// S1 — fresh deploy: exactly one deploy/<server> publish, server chosen by
// the nearest planner's co-located-server rule (spec §8 S1), and
// allocated/<user> brings the service to running.
func TestDiscoverFreshDeployNearest(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.RegisterServer(model.Server{Name: "edge01", IP: "10.0.99.10", CPUMaxMHz: 2400, CoreCount: 4}))
	require.NoError(t, s.RegisterServer(model.Server{Name: "edge02", IP: "10.0.99.11", CPUMaxMHz: 2400, CoreCount: 4}))
	require.NoError(t, s.RegisterServer(model.Server{Name: "edge03", IP: "10.0.99.12", CPUMaxMHz: 2400, CoreCount: 4}))
	require.NoError(t, s.RegisterBS(model.BaseStation{Name: "edge01-bs", BSSID: "51:3e:aa:49:98:cb", ServerName: "edge01"}))
	require.NoError(t, s.RegisterBS(model.BaseStation{Name: "edge02-bs", BSSID: "51:3e:aa:49:98:cc", ServerName: "edge02"}))
	require.NoError(t, s.RegisterBS(model.BaseStation{Name: "edge03-bs", BSSID: "51:3e:aa:49:98:cd", ServerName: "edge03"}))

	b := bus.NewMemoryAdapter()
	p := &planner.Nearest{Store: s}
	o := New(s, b, p, migcost.NewEstimator(nil), radio.NewEstimator(), silentLogger{}, model.MigratePreCopy)

	o.OnDiscover(wire.Discover{ServiceName: "openface", EndUser: "U1", SSID: "edge01-bs", BSSID: "51:3e:aa:49:98:cb"})

	pub := b.Published()
	require.Len(t, pub, 1)
	assert.Equal(t, "deploy/edge01", pub[0].Topic)

	sd := decodeDescriptor(t, pub[0].Payload)
	assert.Equal(t, "U1", sd.EndUser)
	assert.Equal(t, "edge01", sd.Server)

	o.OnAllocated(sd)

	svc, err := s.ServiceForUser("U1")
	require.NoError(t, err)
	assert.Equal(t, model.ServiceRunning, svc.State)
}

// S6 — duplicate discover for an already-running service re-deploys rather
// than destroying (spec §8 S6).
func TestDiscoverDuplicateRedeploys(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.RegisterServer(model.Server{Name: "edge01", IP: "10.0.99.10", CPUMaxMHz: 2400, CoreCount: 4}))
	require.NoError(t, s.RegisterBS(model.BaseStation{Name: "edge01-bs", ServerName: "edge01"}))

	b := bus.NewMemoryAdapter()
	p := &planner.Nearest{Store: s}
	o := New(s, b, p, migcost.NewEstimator(nil), radio.NewEstimator(), silentLogger{}, model.MigratePreCopy)

	d := wire.Discover{ServiceName: "openface", EndUser: "U1", SSID: "edge01-bs"}
	o.OnDiscover(d)
	pub := b.Published()
	require.Len(t, pub, 1)
	sd := decodeDescriptor(t, pub[0].Payload)
	o.OnAllocated(sd)

	b.Reset()
	o.OnDiscover(d) // same service_name+user, service already running

	pub = b.Published()
	require.Len(t, pub, 1)
	assert.Equal(t, "deploy/edge01", pub[0].Topic)

	svc, err := s.ServiceForUser("U1")
	require.NoError(t, err)
	assert.NotEmpty(t, svc.ID) // not destroyed
}

// Testable property 2: after migrated/<u>, mask resets to RUNNING and the
// stored migrating plan is dropped.
func TestMigratedResetsMaskAndDropsPlan(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.RegisterServer(model.Server{Name: "edge01", IP: "10.0.99.10", CPUMaxMHz: 2400, CoreCount: 4}))
	require.NoError(t, s.RegisterServer(model.Server{Name: "edge03", IP: "10.0.99.12", CPUMaxMHz: 2400, CoreCount: 4}))
	require.NoError(t, s.UpsertUser(model.EndUser{Name: "U1", CurrentBS: "edge01-bs"}))
	require.NoError(t, s.UpsertService(model.Service{ID: "openfaceU1", User: "U1", ServerName: "edge01", State: model.ServicePreMigrated}))

	b := bus.NewMemoryAdapter()
	o := New(s, b, &planner.Nearest{Store: s}, migcost.NewEstimator(nil), radio.NewEstimator(), silentLogger{}, model.MigratePreCopy)

	// Seed in-flight state the way triggerPreMigrateLocked would, so we
	// can assert it gets cleared.
	o.mu.Lock()
	o.mask["U1"] = PreMigrated
	o.migrating["U1"] = &migratingPlan{sourceServer: "edge01", descriptor: wire.ServiceDescriptor{ServiceName: "openfaceU1", EndUser: "U1"}}
	o.mu.Unlock()

	o.OnMigrated(wire.ServiceDescriptor{ServiceName: "openfaceU1", EndUser: "U1", Server: "edge03"})

	svc, err := s.ServiceForUser("U1")
	require.NoError(t, err)
	assert.Equal(t, model.ServiceRunning, svc.State)
	assert.Equal(t, "edge03", svc.ServerName)

	o.mu.Lock()
	_, stillPlanned := o.migrating["U1"]
	mask := o.maskOf("U1")
	o.mu.Unlock()
	assert.False(t, stillPlanned)
	assert.Equal(t, Running, mask)

	// Idempotent: a repeated migrated ack is a no-op, not an error.
	o.OnMigrated(wire.ServiceDescriptor{ServiceName: "openfaceU1", EndUser: "U1", Server: "edge03"})
	svc2, err := s.ServiceForUser("U1")
	require.NoError(t, err)
	assert.Equal(t, model.ServiceRunning, svc2.State)
}

// S3 — optimised planner abandons a pre_migrated ack whose recomputed
// lifetime_to_mig exceeds 200s: no migrate publish, state back to running,
// and the stored plan is dropped (spec §8 S3).
func TestPreMigratedOptimisedDefersWhenLifetimeExceeds200s(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.RegisterServer(model.Server{Name: "edge01", IP: "10.0.99.10", CPUMaxMHz: 2400, CoreCount: 4}))
	require.NoError(t, s.RegisterServer(model.Server{Name: "edge03", IP: "10.0.99.12", CPUMaxMHz: 2400, CoreCount: 4}))

	src := model.BaseStation{Name: "edge01-bs", X: 0, Y: 5}
	dst := model.BaseStation{Name: "edge03-bs", X: 100000, Y: 5}
	require.NoError(t, s.RegisterBS(src))
	require.NoError(t, s.RegisterBS(dst))

	u := model.EndUser{Name: "U1", CurrentBS: "edge01-bs", X: 0, Y: 0, VX: 1, VY: 0}
	require.NoError(t, s.UpsertUser(u))
	require.NoError(t, s.UpsertService(model.Service{ID: "openfaceU1", User: "U1", ServerName: "edge01", State: model.ServicePreMigrated}))

	b := bus.NewMemoryAdapter()

	// Choose TMigS so that, against the real handover prediction for this
	// trajectory, lifetime_to_mig comes out well past the 200s defer
	// threshold (tillHandover - 1.1*tMig == 250).
	tillHandover := mustHandoverTime(t, u, src, dst)
	tMig := (tillHandover - 250) / 1.1
	require.Greater(t, tMig, 0.0)

	cost := migcost.NewEstimator(nil)
	cost.UpdateFromNeighbourCosts("U1", map[string]model.CostPair{
		"edge03": {Src: "edge01", Dst: "edge03", TPreMigS: 1.0, TMigS: tMig},
	})

	opt := &planner.Optimised{Store: s}
	o := New(s, b, opt, cost, radio.NewEstimator(), silentLogger{}, model.MigratePreCopy)

	o.mu.Lock()
	o.mask["U1"] = PreMigrated
	o.migrating["U1"] = &migratingPlan{
		sourceServer: "edge01",
		descriptor:   wire.ServiceDescriptor{ServiceName: "openfaceU1", EndUser: "U1", Server: "edge01", NextServer: "edge03", NextBS: "edge03-bs"},
	}
	o.mu.Unlock()

	o.OnPreMigrated(wire.ServiceDescriptor{ServiceName: "openfaceU1", EndUser: "U1"})

	for _, p := range b.Published() {
		assert.NotContains(t, p.Topic, "migrate/")
	}

	svc, err := s.ServiceForUser("U1")
	require.NoError(t, err)
	assert.Equal(t, model.ServiceRunning, svc.State)

	o.mu.Lock()
	_, stillPlanned := o.migrating["U1"]
	mask := o.maskOf("U1")
	o.mu.Unlock()
	assert.False(t, stillPlanned)
	assert.Equal(t, Running, mask)
}

// Testable property 1: a second reassignment for a user already mid-
// migration must not trigger a second pre_migrate publish.
func TestReassignmentNoOpWhileMidMigration(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.RegisterServer(model.Server{Name: "edge01", IP: "10.0.99.10", CPUMaxMHz: 2400, CoreCount: 4}))
	require.NoError(t, s.RegisterServer(model.Server{Name: "edge02", IP: "10.0.99.11", CPUMaxMHz: 2400, CoreCount: 4}))
	require.NoError(t, s.RegisterBS(model.BaseStation{Name: "edge01-bs", ServerName: "edge01"}))
	require.NoError(t, s.RegisterBS(model.BaseStation{Name: "edge02-bs", ServerName: "edge02"}))
	require.NoError(t, s.UpsertUser(model.EndUser{Name: "U1", CurrentBS: "edge01-bs"}))
	require.NoError(t, s.UpsertService(model.Service{ID: "openfaceU1", User: "U1", ServerName: "edge01", State: model.ServiceRunning}))

	b := bus.NewMemoryAdapter()
	o := New(s, b, &planner.Nearest{Store: s}, migcost.NewEstimator(nil), radio.NewEstimator(), silentLogger{}, model.MigratePreCopy)

	o.mu.Lock()
	o.applyReassignmentsLocked([]planner.Reassignment{{User: "U1", NextServer: "edge02", NextBS: "edge02-bs"}})
	o.mu.Unlock()

	first := b.Published()
	require.Len(t, first, 1)
	assert.Equal(t, "pre_migrate/edge01", first[0].Topic)

	b.Reset()
	// A second reassignment for the same user while PRE_MIGRATE is set
	// must not emit another pre_migrate (invariant: at most one of
	// PRE_MIGRATE/PRE_MIGRATED/MIGRATE set when a new one is emitted).
	o.mu.Lock()
	o.applyReassignmentsLocked([]planner.Reassignment{{User: "U1", NextServer: "edge02", NextBS: "edge02-bs"}})
	o.mu.Unlock()
	assert.Empty(t, b.Published())
}

// S4 — LWT/edge rehomes every service on the dying server and removes it
// from the store (spec §8 S4).
func TestLWTEdgeRehomesServices(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.RegisterServer(model.Server{Name: "edge01", IP: "10.0.99.10", CPUMaxMHz: 2400, CoreCount: 4}))
	require.NoError(t, s.RegisterServer(model.Server{Name: "edge02", IP: "10.0.99.11", CPUMaxMHz: 2400, CoreCount: 4}))
	require.NoError(t, s.RegisterBS(model.BaseStation{Name: "edge01-bs", BSSID: "aa:bb", ServerName: "edge01"}))
	require.NoError(t, s.RegisterBS(model.BaseStation{Name: "edge02-bs", BSSID: "cc:dd", ServerName: "edge02"}))
	// U1's radio association is already on edge01-bs (co-located with the
	// surviving server) even though its service still runs on edge02, so
	// the nearest planner's co-located-server rule picks edge01
	// deterministically rather than falling through to a random pick
	// that could still include the dying server.
	require.NoError(t, s.UpsertUser(model.EndUser{Name: "U1", CurrentBS: "edge01-bs"}))
	require.NoError(t, s.UpsertService(model.Service{ID: "openfaceU1", User: "U1", ServerName: "edge02", State: model.ServiceRunning}))

	b := bus.NewMemoryAdapter()
	o := New(s, b, &planner.Nearest{Store: s}, migcost.NewEstimator(nil), radio.NewEstimator(), silentLogger{}, model.MigratePreCopy)

	o.OnLWTEdge("edge02")

	pub := b.Published()
	require.Len(t, pub, 1)
	assert.Equal(t, "deploy/edge01", pub[0].Topic)

	_, err = s.ServerByName("edge02")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// LWT/eu destroys the bound service and deletes the user (spec §4.6).
func TestLWTEndUserDestroysServiceAndUser(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.RegisterServer(model.Server{Name: "edge01", IP: "10.0.99.10"}))
	require.NoError(t, s.UpsertUser(model.EndUser{Name: "U1"}))
	require.NoError(t, s.UpsertService(model.Service{ID: "openfaceU1", User: "U1", ServerName: "edge01"}))

	b := bus.NewMemoryAdapter()
	o := New(s, b, &planner.Nearest{Store: s}, migcost.NewEstimator(nil), radio.NewEstimator(), silentLogger{}, model.MigratePreCopy)

	o.OnLWTEndUser("U1")

	pub := b.Published()
	require.Len(t, pub, 1)
	assert.Equal(t, "destroy/edge01", pub[0].Topic)

	_, err = s.UserByName("U1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// S2 — a single nearest/random compute_plan reassignment that changes
// both server and BS together must still produce a handover right after
// the matching migrate command, even though applyReassignmentsLocked's
// own handover check is shadowed in that same iteration by the
// just-armed PRE_MIGRATE bit (spec §8 S2: "migrate/edge01 followed by
// handover/U1").
func TestPreMigratedNonOptimisedFiresDeferredHandover(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.RegisterServer(model.Server{Name: "edge01", IP: "10.0.99.10", CPUMaxMHz: 2400, CoreCount: 4}))
	require.NoError(t, s.RegisterServer(model.Server{Name: "edge03", IP: "10.0.99.12", CPUMaxMHz: 2400, CoreCount: 4}))
	require.NoError(t, s.RegisterBS(model.BaseStation{Name: "edge01-bs", BSSID: "aa:bb", ServerName: "edge01"}))
	require.NoError(t, s.RegisterBS(model.BaseStation{Name: "edge03-bs", BSSID: "cc:dd", ServerName: "edge03"}))
	require.NoError(t, s.UpsertUser(model.EndUser{Name: "U1", CurrentBS: "edge01-bs"}))
	require.NoError(t, s.UpsertService(model.Service{ID: "openfaceU1", User: "U1", ServerName: "edge01", State: model.ServiceRunning}))

	b := bus.NewMemoryAdapter()
	o := New(s, b, &planner.Nearest{Store: s}, migcost.NewEstimator(nil), radio.NewEstimator(), silentLogger{}, model.MigratePreCopy)

	o.mu.Lock()
	o.applyReassignmentsLocked([]planner.Reassignment{{User: "U1", NextServer: "edge03", NextBS: "edge03-bs"}})
	o.mu.Unlock()

	pre := b.Published()
	require.Len(t, pre, 1)
	assert.Equal(t, "pre_migrate/edge01", pre[0].Topic)

	sd := decodeDescriptor(t, pre[0].Payload)
	assert.Equal(t, "edge03", sd.NextServer)
	assert.Equal(t, "edge03-bs", sd.NextBS)

	b.Reset()
	o.OnPreMigrated(wire.ServiceDescriptor{ServiceName: "openfaceU1", EndUser: "U1"})

	pub := b.Published()
	require.Len(t, pub, 2)
	assert.Equal(t, "migrate/edge01", pub[0].Topic)
	assert.Equal(t, "handover/U1", pub[1].Topic)

	var cmd wire.HandoverCommand
	require.NoError(t, json.Unmarshal(pub[1].Payload, &cmd))
	assert.Equal(t, "edge03-bs", cmd.NextSSID)

	o.mu.Lock()
	mask := o.maskOf("U1")
	o.mu.Unlock()
	assert.True(t, mask.has(Migrate))
	assert.True(t, mask.has(Handover))
}

// lifetimeToMigLocked resolves the original's ambiguous lifetime_to_mig
// against the trajectory-based handover predictor: till_ho minus a 10%
// safety margin on the measured migration duration
// (_examples/original_source/planner.py's lifetime_to_mig).
func TestLifetimeToMigUsesHandoverPrediction(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	src := model.BaseStation{Name: "edge01-bs", X: 0, Y: 5}
	dst := model.BaseStation{Name: "edge03-bs", X: 20, Y: 5}
	require.NoError(t, s.RegisterBS(src))
	require.NoError(t, s.RegisterBS(dst))

	u := model.EndUser{Name: "U1", CurrentBS: "edge01-bs", X: 0, Y: 0, VX: 1, VY: 0}
	require.NoError(t, s.UpsertUser(u))

	b := bus.NewMemoryAdapter()
	cost := migcost.NewEstimator(nil)
	cost.UpdateFromNeighbourCosts("U1", map[string]model.CostPair{
		"edge03": {Src: "edge01", Dst: "edge03", TPreMigS: 1.0, TMigS: 5.0},
	})

	o := New(s, b, &planner.Optimised{Store: s}, cost, radio.NewEstimator(), silentLogger{}, model.MigratePreCopy)

	plan := &migratingPlan{
		sourceServer: "edge01",
		descriptor:   wire.ServiceDescriptor{ServiceName: "openfaceU1", EndUser: "U1", Server: "edge01", NextServer: "edge03", NextBS: "edge03-bs"},
	}

	tillHandover := mustHandoverTime(t, u, src, dst)
	want := tillHandover - 1.1*5.0

	got, ok := o.lifetimeToMigLocked("U1", plan)
	require.True(t, ok)
	assert.InDelta(t, want, got, 1e-9)
}

// Same BS on both ends forces an immediate migration regardless of the
// cost model (spec/original: cur_bts==dest_bts short-circuits to 0).
func TestLifetimeToMigZeroWhenBSUnchanged(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.RegisterBS(model.BaseStation{Name: "edge01-bs"}))
	require.NoError(t, s.UpsertUser(model.EndUser{Name: "U1", CurrentBS: "edge01-bs"}))

	b := bus.NewMemoryAdapter()
	cost := migcost.NewEstimator(nil)
	cost.UpdateFromNeighbourCosts("U1", map[string]model.CostPair{
		"edge03": {Src: "edge01", Dst: "edge03", TPreMigS: 1.0, TMigS: 5.0},
	})

	o := New(s, b, &planner.Optimised{Store: s}, cost, radio.NewEstimator(), silentLogger{}, model.MigratePreCopy)

	plan := &migratingPlan{
		sourceServer: "edge01",
		descriptor:   wire.ServiceDescriptor{ServiceName: "openfaceU1", EndUser: "U1", Server: "edge01", NextServer: "edge03", NextBS: "edge01-bs"},
	}

	got, ok := o.lifetimeToMigLocked("U1", plan)
	require.True(t, ok)
	assert.Zero(t, got)
}
