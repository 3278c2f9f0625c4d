package planner

import (
	"math/rand"
	"time"

	"github.com/edgefabric/centralctl/internal/store"
)

// Random assigns users to a uniformly random eligible server (spec §4.5
// "random"). rand is injected so tests can seed it deterministically.
type Random struct {
	Store *store.Store
	Rand  *rand.Rand
}

func (p *Random) rng() *rand.Rand {
	if p.Rand != nil {
		return p.Rand
	}

	return fallbackRand
}

func (p *Random) eligibleServer() (string, error) {
	servers, err := p.Store.ListServers()
	if err != nil {
		return "", err
	}

	if len(servers) == 0 {
		return "", store.ErrNotFound
	}

	return servers[p.rng().Intn(len(servers))].Name, nil
}

// PlaceService returns a random eligible server, ignoring the BS given.
func (p *Random) PlaceService(user, ssid, bssid string) (string, error) {
	return p.eligibleServer()
}

// ComputePlan switches a user's BS (and a freshly-random server) whenever
// their current RSSI drops below the threshold.
func (p *Random) ComputePlan(deltaT time.Duration) ([]Reassignment, error) {
	users, err := allUsers(p.Store)
	if err != nil {
		return nil, err
	}

	var out []Reassignment
	for _, user := range users {
		u, err := p.Store.UserByName(user)
		if err != nil {
			continue
		}

		top, err := p.Store.StrongestBS(user, -1) // -1: every BS heard (unbounded LIMIT)
		if err != nil || len(top) == 0 {
			continue
		}

		current := top[0].Filtered
		for _, c := range top {
			if c.BS == u.CurrentBS {
				current = c.Filtered
				break
			}
		}

		if current >= RSSIThreshold {
			continue
		}

		server, err := p.eligibleServer()
		if err != nil {
			continue
		}

		out = append(out, Reassignment{User: user, NextBS: top[0].BS, NextServer: server})
	}

	return out, nil
}
