package planner

import (
	"time"

	"github.com/edgefabric/centralctl/internal/migcost"
	"github.com/edgefabric/centralctl/internal/model"
	"github.com/edgefabric/centralctl/internal/planner/lp"
	"github.com/edgefabric/centralctl/internal/radio"
	"github.com/edgefabric/centralctl/internal/store"
)

// MaxUsersPerBS is the per-BS user cap, LP constraint (iv) (spec §4.5).
const MaxUsersPerBS = 200

// Solver abstracts the LP backend so the optimised planner can be
// exercised in tests without pulling in the real simplex solver (spec
// §9 "the optimiser's LP library is an injectable dependency").
type Solver func(lp.Problem) lp.Result

// Optimised is the LP-based planner (spec §4.5 "optimised").
type Optimised struct {
	Store *store.Store
	Radio *radio.Estimator
	Cost  *migcost.Estimator
	Solve Solver // defaults to lp.Solve when nil
}

func (p *Optimised) solver() Solver {
	if p.Solve != nil {
		return p.Solve
	}

	return lp.Solve
}

// PlaceService shares Nearest's first choice, the BS's co-located server
// when it has non-zero CPU; where Nearest then picks a random server,
// this falls back to the first server in name order.
func (p *Optimised) PlaceService(user, ssid, bssid string) (string, error) {
	bsName, err := resolveBS(p.Store, ssid, bssid)
	if err == nil {
		if bs, err := p.Store.BTSByName(bsName); err == nil && bs.ServerName != "" {
			if srv, err := p.Store.ServerByName(bs.ServerName); err == nil && srv.CPUMaxMHz > 0 {
				return srv.Name, nil
			}
		}
	}

	servers, err := p.Store.ListServers()
	if err != nil {
		return "", err
	}

	if len(servers) == 0 {
		return "", store.ErrNotFound
	}

	return servers[0].Name, nil
}

// candidateVar is one LP decision variable x[u,s,b].
type candidateVar struct {
	user   string
	server string
	bs     string
	coeff  float64
	cpuMHz float64
	memMB  float64
	sizeMB float64
}

// transferDelayDelta implements spec §4.5's Δ_delay term.
func transferDelayDelta(procDelayMS, requestSizeB, bwCur, bwNext, rttCur, rttNext float64) float64 {
	capTerm := procDelayMS * (1 - bwCur/bwNext)
	sizeTerm := requestSizeB * 8 * (1/bwCur - 1/bwNext)
	rttTerm := rttCur - rttNext
	return capTerm + sizeTerm + rttTerm
}

// ComputePlan builds the LP relaxation of spec §4.5's assignment problem
// over each user's measured-neighbour candidates, solves it, and emits
// diffs for every variable whose relaxed value rounds to 1 and differs
// from the user's current assignment. A non-Optimal solve, or an empty
// variable set, yields no diffs (spec §4.5, §7 "Solver non-optimal").
func (p *Optimised) ComputePlan(deltaT time.Duration) ([]Reassignment, error) {
	users, err := allUsers(p.Store)
	if err != nil {
		return nil, err
	}

	servers, err := p.Store.ListServers()
	if err != nil {
		return nil, err
	}

	var vars []candidateVar

	for _, user := range users {
		svc, err := p.Store.ServiceForUser(user)
		if err != nil {
			continue
		}

		if !p.Cost.Ready(user, len(servers)) {
			continue
		}

		curBS, curServer := currentAssignment(p.Store, user)

		candidates, err := p.Store.StrongestBS(user, 5)
		if err != nil || len(candidates) == 0 {
			continue
		}

		for _, c := range candidates {
			bs, err := p.Store.BTSByName(c.BS)
			if err != nil || bs.ServerName == "" {
				continue
			}

			if c.BS == curBS && bs.ServerName == curServer {
				continue // not a reassignment candidate against itself
			}

			pair := p.Cost.ModelFor(user).Get(curServer, bs.ServerName)
			if pair == nil {
				continue
			}

			downtime := pair.TMigS
			if th, ok := p.handoverEstimate(user, curBS, c.BS); ok && th > downtime {
				downtime = th
			}

			bwCur, _ := p.Store.BTSToEdgeBW(curBS, curServer)
			bwNext, _ := p.Store.BTSToEdgeBW(bs.Name, bs.ServerName)
			rttCur, _ := p.Store.BTSToEdgeRTT(curBS, curServer)
			rttNext, _ := p.Store.BTSToEdgeRTT(bs.Name, bs.ServerName)

			if bwCur <= 0 {
				bwCur = 1e-3
			}
			if bwNext <= 0 {
				bwNext = 1e-3
			}

			procDelay, _ := p.Store.AverageProcDelay(user, curBS, curServer, 10)
			reqSize, _ := p.Store.AverageRequestSize(user, 10)
			nReqEst := float64(svc.RequestCount)

			delta := transferDelayDelta(procDelay, reqSize, bwCur, bwNext, rttCur, rttNext)
			coeff := delta*nReqEst - downtime

			vars = append(vars, candidateVar{
				user: user, server: bs.ServerName, bs: bs.Name, coeff: coeff,
				cpuMHz: svc.CPUMHz, memMB: svc.MemMB, sizeMB: svc.SizeMB,
			})
		}
	}

	if len(vars) == 0 {
		return nil, nil
	}

	result := p.solver()(buildProblem(vars, users, servers))
	if result.Status != lp.StatusOptimal {
		return nil, nil
	}

	var out []Reassignment
	for i, v := range vars {
		if result.X[i] < 0.5 {
			continue
		}

		curBS, curServer := currentAssignment(p.Store, v.user)
		if v.bs == curBS && v.server == curServer {
			continue
		}

		out = append(out, Reassignment{User: v.user, NextBS: v.bs, NextServer: v.server})
	}

	return out, nil
}

// handoverEstimate predicts handover time for user given a candidate BS
// switch, returning ok=false if the trajectory/velocity data needed is
// unavailable (estimator "undefined", spec §7).
func (p *Optimised) handoverEstimate(user, curBS, nextBS string) (float64, bool) {
	u, err := p.Store.UserByName(user)
	if err != nil {
		return 0, false
	}

	src, err := p.Store.BTSByName(curBS)
	if err != nil {
		return 0, false
	}

	dst, err := p.Store.BTSByName(nextBS)
	if err != nil {
		return 0, false
	}

	return radio.HandoverTime(u.X, u.Y, u.TrajA, u.TrajB, u.VX, u.VY, src.X, src.Y, dst.X, dst.Y, radio.DefaultHysteresis)
}

// buildProblem assembles the LP relaxation's constraint matrix: one
// row per user (constraint i), three rows per server for CPU/mem/disk
// capacity (constraint ii), and one row per BS for the 200-user cap
// (constraint iv). Constraint (iii) is enforced structurally: only
// neighbour-observed (s,b) pairs ever become variables.
func buildProblem(vars []candidateVar, users []string, servers []model.Server) lp.Problem {
	n := len(vars)

	userIdx := make(map[string]int, len(users))
	for i, u := range users {
		userIdx[u] = i
	}

	serverIdx := make(map[string]int, len(servers))
	for i, s := range servers {
		serverIdx[s.Name] = i
	}

	bsSeen := make(map[string]int)
	for _, v := range vars {
		if _, ok := bsSeen[v.bs]; !ok {
			bsSeen[v.bs] = len(bsSeen)
		}
	}

	rows := len(users) + 3*len(servers) + len(bsSeen)
	a := make([][]float64, rows)
	for i := range a {
		a[i] = make([]float64, n)
	}

	b := make([]float64, rows)

	for i, v := range vars {
		a[userIdx[v.user]][i] = 1
	}
	for u := range users {
		b[u] = 1
	}

	cpuBase := len(users)
	memBase := cpuBase + len(servers)
	diskBase := memBase + len(servers)

	for si, s := range servers {
		b[cpuBase+si] = s.CPUMaxMHz
		b[memBase+si] = s.RAMFreeMB
		b[diskBase+si] = s.DiskFreeMB
	}

	for i, v := range vars {
		si, ok := serverIdx[v.server]
		if !ok {
			continue
		}

		a[cpuBase+si][i] = v.cpuMHz
		a[memBase+si][i] = v.memMB
		a[diskBase+si][i] = v.sizeMB
	}

	bsBase := diskBase + len(servers)
	for i, v := range vars {
		a[bsBase+bsSeen[v.bs]][i] = 1
	}
	for _, idx := range bsSeen {
		b[bsBase+idx] = MaxUsersPerBS
	}

	c := make([]float64, n)
	for i, v := range vars {
		c[i] = v.coeff
	}

	return lp.Problem{C: c, A: a, B: b}
}
