package store_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgefabric/centralctl/internal/model"
	"github.com/edgefabric/centralctl/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestServerCRUD(t *testing.T) {
	s := newTestStore(t)

	srv := model.Server{Name: "edge1", IP: "10.0.0.1", CoreCount: 4, CPUMaxMHz: 2400, RAMMB: 8192}
	require.NoError(t, s.RegisterServer(srv))

	got, err := s.ServerByName("edge1")
	require.NoError(t, err)
	assert.Equal(t, srv.IP, got.IP)
	assert.Equal(t, srv.CoreCount, got.CoreCount)

	_, err = s.ServerByIP("10.0.0.1")
	require.NoError(t, err)

	list, err := s.ListServers()
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = s.ServerByName("nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// Invariant 2: deleting a server detaches any co-located base station
// rather than leaving a dangling reference.
func TestDeleteServerDetachesBaseStation(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.RegisterServer(model.Server{Name: "edge1", IP: "10.0.0.1"}))
	require.NoError(t, s.RegisterBS(model.BaseStation{Name: "bts1", X: 1, Y: 2, ServerName: "edge1"}))

	require.NoError(t, s.DeleteServer("edge1"))

	bts, err := s.BTSByName("bts1")
	require.NoError(t, err)
	assert.Empty(t, bts.ServerName)
}

// Invariant 1: deleting a user also removes its bound service.
func TestDeleteUserRemovesBoundService(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.RegisterServer(model.Server{Name: "edge1"}))
	require.NoError(t, s.UpsertUser(model.EndUser{Name: "alice"}))
	require.NoError(t, s.UpsertService(model.Service{ID: "svc1::alice", User: "alice", ServerName: "edge1"}))

	_, err := s.ServiceForUser("alice")
	require.NoError(t, err)

	require.NoError(t, s.DeleteUser("alice"))

	_, err = s.ServiceByID("svc1::alice")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSetServiceStateUnknownService(t *testing.T) {
	s := newTestStore(t)
	err := s.SetServiceState("missing", model.ServiceRunning, "ok")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// Testable property 4: feeding the same raw RSSI repeatedly converges
// the EMA to that exact value (the filtered reading equals the raw
// reading as soon as they first coincide).
func TestEMAIdempotentOnRepeatedValue(t *testing.T) {
	v := -70.0
	filtered := store.EMA(v, nil)
	assert.Equal(t, v, filtered)

	for i := 0; i < 5; i++ {
		filtered = store.EMA(v, &filtered)
	}

	assert.InDelta(t, v, filtered, 1e-9)
}

func TestEMASmoothsTowardNewValue(t *testing.T) {
	prev := -70.0
	next := store.EMA(-60.0, &prev)
	assert.InDelta(t, -65.0, next, 1e-9)
}

func TestAverageBWFallsBackToSentinelWithNoSamples(t *testing.T) {
	s := newTestStore(t)

	bw, err := s.AverageBW("edge1", "edge2", 10)
	require.NoError(t, err)
	assert.Greater(t, bw, 0.0)
	assert.Less(t, bw, 1.0)
}

func TestAverageBWCoLocatedIsUnbounded(t *testing.T) {
	s := newTestStore(t)

	bw, err := s.AverageBW("edge1", "edge1", 10)
	require.NoError(t, err)
	assert.True(t, bw > 1e300)
}
