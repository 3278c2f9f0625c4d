// Package planner implements the pluggable Planner variants of spec
// §4.5: nearest, random, cloud, and optimised. Each exposes the same
// two-operation interface so the orchestrator (C6) can swap variants
// purely from configuration, and so the optimised planner's LP
// dependency can be stubbed out in tests without affecting the others
// (spec §9 "Planner polymorphism").
package planner

import (
	"math/rand"
	"time"

	"github.com/edgefabric/centralctl/internal/store"
)

// RSSIThreshold is the -76 dBm trigger for BS reassignment (spec §6
// "Constants").
const RSSIThreshold = -76.0

// fallbackRand backs Random/Nearest's random choices whenever no Rand is
// injected; seeded once from real entropy at process start so production
// wiring (which never injects one, see cmd/centralctl/main.go) actually
// picks among eligible servers instead of always the same one (spec
// §4.5 "random eligible server"). Tests inject their own seeded *rand.Rand
// instead of relying on this.
var fallbackRand = rand.New(rand.NewSource(time.Now().UnixNano()))

// Reassignment is one (user, next BS, next server) diff against the
// user's current assignment (spec §4.5: "emit only diffs").
type Reassignment struct {
	User       string
	NextBS     string
	NextServer string
}

// Planner is the two-operation interface every variant implements.
type Planner interface {
	// PlaceService chooses the initial server for user's new service,
	// given the BS it discovered on (spec §4.5 place_service).
	PlaceService(user, ssid, bssid string) (server string, err error)

	// ComputePlan returns zero-or-more reassignments, looking deltaT
	// into the future for planners that account for migration lead
	// time (spec §4.5 compute_plan).
	ComputePlan(deltaT time.Duration) ([]Reassignment, error)
}

// resolveBS looks a discovered BS up by name first (ssid), falling back
// to BSSID; ErrNotFound if neither matches.
func resolveBS(s *store.Store, ssid, bssid string) (string, error) {
	if bs, err := s.BTSByName(ssid); err == nil {
		return bs.Name, nil
	}

	bs, err := s.BTSByBSSID(bssid)
	if err != nil {
		return "", err
	}

	return bs.Name, nil
}

// currentAssignment returns user's current (bs, server), possibly empty
// strings if the user or its service isn't registered yet.
func currentAssignment(s *store.Store, user string) (bs, server string) {
	u, err := s.UserByName(user)
	if err != nil {
		return "", ""
	}

	bs = u.CurrentBS

	svc, err := s.ServiceForUser(user)
	if err == nil {
		server = svc.ServerName
	}

	return bs, server
}

// allUsers returns every registered end-user name.
func allUsers(s *store.Store) ([]string, error) {
	list, err := s.ListUsers()
	if err != nil {
		return nil, err
	}

	out := make([]string, len(list))
	for i, u := range list {
		out[i] = u.Name
	}

	return out, nil
}
