package planner

import (
	"math/rand"
	"time"

	"github.com/edgefabric/centralctl/internal/store"
)

// Nearest places a user on the server co-located with its discovered BS
// when that server exists and has compute capacity, falling back to a
// random server otherwise; compute_plan follows the user's strongest
// measured BS (spec §4.5 "nearest").
type Nearest struct {
	Store *store.Store
	Rand  *rand.Rand
}

func (p *Nearest) rng() *rand.Rand {
	if p.Rand != nil {
		return p.Rand
	}

	return fallbackRand
}

func (p *Nearest) randomServer() (string, error) {
	servers, err := p.Store.ListServers()
	if err != nil {
		return "", err
	}

	if len(servers) == 0 {
		return "", store.ErrNotFound
	}

	return servers[p.rng().Intn(len(servers))].Name, nil
}

// PlaceService picks the BS's co-located server if it exists and has
// non-zero CPU capacity, else a random server.
func (p *Nearest) PlaceService(user, ssid, bssid string) (string, error) {
	bsName, err := resolveBS(p.Store, ssid, bssid)
	if err == nil {
		bs, err := p.Store.BTSByName(bsName)
		if err == nil && bs.ServerName != "" {
			srv, err := p.Store.ServerByName(bs.ServerName)
			if err == nil && srv.CPUMaxMHz > 0 {
				return srv.Name, nil
			}
		}
	}

	return p.randomServer()
}

// ComputePlan moves each user to its strongest measured BS when it
// differs from the current one, following that BS's co-located server
// (or keeping the current server if the BS has none, or has zero CPU).
func (p *Nearest) ComputePlan(deltaT time.Duration) ([]Reassignment, error) {
	users, err := allUsers(p.Store)
	if err != nil {
		return nil, err
	}

	var out []Reassignment
	for _, user := range users {
		top, err := p.Store.StrongestBS(user, 1)
		if err != nil || len(top) == 0 {
			continue
		}

		curBS, curServer := currentAssignment(p.Store, user)
		if top[0].BS == curBS {
			continue
		}

		nextServer := curServer
		bs, err := p.Store.BTSByName(top[0].BS)
		if err == nil && bs.ServerName != "" {
			if srv, err := p.Store.ServerByName(bs.ServerName); err == nil && srv.CPUMaxMHz > 0 {
				nextServer = srv.Name
			}
		}

		r := Reassignment{User: user, NextBS: top[0].BS}
		if nextServer != curServer {
			r.NextServer = nextServer
		}

		out = append(out, r)
	}

	return out, nil
}
