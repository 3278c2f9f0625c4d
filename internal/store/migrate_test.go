package store_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgefabric/centralctl/internal/model"
	"github.com/edgefabric/centralctl/internal/store"
)

func seedMigrationPair(t *testing.T, s *store.Store) (model.Service, model.Server, model.Server) {
	t.Helper()

	src := model.Server{Name: "edge1", CPUMaxMHz: 2400, CoreCount: 4}
	dst := model.Server{Name: "edge2", CPUMaxMHz: 2000, CoreCount: 2}
	require.NoError(t, s.RegisterServer(src))
	require.NoError(t, s.RegisterServer(dst))

	svc := model.Service{ID: "svc1::alice", User: "alice", ServerName: "edge1", SizeMB: 256}
	require.NoError(t, s.UpsertUser(model.EndUser{Name: "alice"}))
	require.NoError(t, s.UpsertService(svc))

	return svc, src, dst
}

// Testable property 3: a dest-side report arriving within the
// correlation window matches the newest uncompleted source-side record.
func TestCompleteMigrateRecordWithinWindow(t *testing.T) {
	s := newTestStore(t)
	svc, src, dst := seedMigrationPair(t, s)

	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rec := model.MigrateRecord{T: t0, Src: src.Name, Dst: dst.Name, Service: svc.ID, Method: model.MigratePreCopy, CheckpointS: 1.5}
	id, err := s.InsertMigrateRecord(rec, svc, src, dst)
	require.NoError(t, err)
	assert.NotZero(t, id)

	completed, err := s.CompleteMigrateRecord(src.Name, dst.Name, svc.ID, 2.0, 0.1, 0.2, t0.Add(30*time.Second))
	require.NoError(t, err)
	assert.NotEmpty(t, completed)
	_ = id
}

// A dest-side report arriving after the 60-second correlation window
// must not complete the stale source-side record.
func TestCompleteMigrateRecordOutsideWindow(t *testing.T) {
	s := newTestStore(t)
	svc, src, dst := seedMigrationPair(t, s)

	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rec := model.MigrateRecord{T: t0, Src: src.Name, Dst: dst.Name, Service: svc.ID, Method: model.MigratePreCopy}
	_, err := s.InsertMigrateRecord(rec, svc, src, dst)
	require.NoError(t, err)

	_, err = s.CompleteMigrateRecord(src.Name, dst.Name, svc.ID, 2.0, 0.1, 0.2, t0.Add(90*time.Second))
	assert.ErrorIs(t, err, store.ErrCorrelationWindowExpired)
}

func TestCompleteMigrateRecordNoCandidate(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CompleteMigrateRecord("edge1", "edge2", "svc1::alice", 1, 0, 0, time.Now())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdatePhiAveragesOverHistory(t *testing.T) {
	s := newTestStore(t)
	svc, src, dst := seedMigrationPair(t, s)

	for _, cs := range []float64{1.0, 2.0, 3.0} {
		rec := model.MigrateRecord{T: time.Now(), Src: src.Name, Dst: dst.Name, Service: svc.ID, CheckpointS: cs}
		_, err := s.InsertMigrateRecord(rec, svc, src, dst)
		require.NoError(t, err)
	}

	require.NoError(t, s.UpdatePhi(src.Name))

	updated, err := s.ServerByName(src.Name)
	require.NoError(t, err)
	assert.Greater(t, updated.Phi, 0.0)
}

func TestUpdateRhoRequiresCompletedRecords(t *testing.T) {
	s := newTestStore(t)
	svc, src, dst := seedMigrationPair(t, s)

	rec := model.MigrateRecord{T: time.Now(), Src: src.Name, Dst: dst.Name, Service: svc.ID}
	_, err := s.InsertMigrateRecord(rec, svc, src, dst)
	require.NoError(t, err)

	require.NoError(t, s.UpdateRho(dst.Name))

	updated, err := s.ServerByName(dst.Name)
	require.NoError(t, err)
	assert.Zero(t, updated.Rho)

	_, err = s.CompleteMigrateRecord(src.Name, dst.Name, svc.ID, 4.0, 0, 0, time.Now())
	require.NoError(t, err)

	require.NoError(t, s.UpdateRho(dst.Name))

	updated, err = s.ServerByName(dst.Name)
	require.NoError(t, err)
	assert.Greater(t, updated.Rho, 0.0)
}

func TestMigrationHistoryOrderedNewestFirst(t *testing.T) {
	s := newTestStore(t)
	svc, src, dst := seedMigrationPair(t, s)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		rec := model.MigrateRecord{T: base.Add(time.Duration(i) * time.Minute), Src: src.Name, Dst: dst.Name, Service: svc.ID}
		_, err := s.InsertMigrateRecord(rec, svc, src, dst)
		require.NoError(t, err)
	}

	hist, err := s.MigrationHistory(svc.ID, 2)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.True(t, hist[0].T.After(hist[1].T))
}

// Testable property 8: the cost estimator only becomes ready once enough
// distinct (src,dst) pairs have samples.
func TestMigrationCostModelReadyGating(t *testing.T) {
	m := model.NewMigrationCostModel("alice")
	assert.False(t, m.Ready(2))

	m.Set("edge1", "edge2", 1, 2)
	assert.False(t, m.Ready(2))

	m.Set("edge1", "edge3", 1, 2)
	assert.True(t, m.Ready(2))
}

func TestComputeNeighbourCosts(t *testing.T) {
	s := newTestStore(t)
	svc, src, dst := seedMigrationPair(t, s)
	src.Phi = 0.5
	dst.Rho = 0.5
	require.NoError(t, s.RegisterServer(src))
	require.NoError(t, s.RegisterServer(dst))

	costs, err := s.ComputeNeighbourCosts(svc, 10)
	require.NoError(t, err)
	require.Contains(t, costs, dst.Name)
	assert.Greater(t, costs[dst.Name].TMigS, 0.0)
}
