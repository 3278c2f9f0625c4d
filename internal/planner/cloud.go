package planner

import (
	"time"

	"github.com/edgefabric/centralctl/internal/store"
)

// Cloud always places services on the distance-0 server; compute_plan
// only ever proposes BS reassignment (spec §4.5 "cloud").
type Cloud struct {
	Store *store.Store
}

func (p *Cloud) cloudServer() (string, error) {
	servers, err := p.Store.ListServers()
	if err != nil {
		return "", err
	}

	for _, s := range servers {
		if s.DistanceTier == 0 {
			return s.Name, nil
		}
	}

	return "", store.ErrNotFound
}

// PlaceService always returns the cloud server, ignoring the discovered BS.
func (p *Cloud) PlaceService(user, ssid, bssid string) (string, error) {
	return p.cloudServer()
}

// ComputePlan switches a user's BS to their strongest BS once its RSSI
// exceeds the cloud threshold; the server assignment never changes.
func (p *Cloud) ComputePlan(deltaT time.Duration) ([]Reassignment, error) {
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

		if top[0].Filtered <= RSSIThreshold {
			continue
		}

		curBS, _ := currentAssignment(p.Store, user)
		if top[0].BS == curBS {
			continue
		}

		out = append(out, Reassignment{User: user, NextBS: top[0].BS})
	}

	return out, nil
}
