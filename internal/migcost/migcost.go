// Package migcost is the Migration-Cost Estimator (C4, spec §4.4): it
// owns one model.MigrationCostModel per user, populated from container
// monitor reports (under the optimised planner) and from measured
// prepare durations reported by the source agent, and exposes the
// readiness gate the optimised planner depends on before it will emit
// any diff.
package migcost

import (
	"sync"

	"github.com/edgefabric/centralctl/internal/model"
)

// Persister is the subset of *store.Store the estimator needs to make a
// user's cost model survive a restart (spec §6 "Persisted state":
// `service_profile`). Narrowed to an interface so tests can supply a
// nil one and skip persistence entirely.
type Persister interface {
	SaveCostPair(user, src, dst string, tPreMigS, tMigS float64) error
	LoadCostPairs(user string) ([]model.CostPair, error)
}

// Estimator owns one MigrationCostModel per user. All mutation happens
// on the dispatcher (spec §5); the mutex only guards against incidental
// concurrent reads from outside the dispatcher (e.g. an operator query).
type Estimator struct {
	mu     sync.Mutex
	models map[string]*model.MigrationCostModel
	store  Persister
}

// NewEstimator returns an empty Estimator. store may be nil, in which
// case cost models live purely in memory (e.g. in tests).
func NewEstimator(store Persister) *Estimator {
	return &Estimator{models: make(map[string]*model.MigrationCostModel), store: store}
}

// ModelFor returns user's cost model, creating an empty one on first
// access — "created on user registration; inherited across
// re-registrations" (spec §3) — and rehydrating it from the durable
// `service_profile` table the first time this user is seen.
func (e *Estimator) ModelFor(user string) *model.MigrationCostModel {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, ok := e.models[user]
	if ok {
		return m
	}

	m = model.NewMigrationCostModel(user)
	e.models[user] = m

	if e.store != nil {
		if pairs, err := e.store.LoadCostPairs(user); err == nil {
			for _, p := range pairs {
				m.Set(p.Src, p.Dst, p.TPreMigS, p.TMigS)
			}
		}
	}

	return m
}

func (e *Estimator) persist(user, src, dst string, tPreMigS, tMigS float64) {
	if e.store == nil {
		return
	}

	_ = e.store.SaveCostPair(user, src, dst, tPreMigS, tMigS)
}

// UpdateFromNeighbourCosts records the estimator's store-computed
// (src,dst)→(T_pre_mig,T_mig) pairs for user (spec §4.2's
// update_container_monitor recompute, under the optimised planner).
func (e *Estimator) UpdateFromNeighbourCosts(user string, costs map[string]model.CostPair) {
	m := e.ModelFor(user)

	for dst, c := range costs {
		m.Set(c.Src, dst, c.TPreMigS, c.TMigS)
		e.persist(user, c.Src, dst, c.TPreMigS, c.TMigS)
	}
}

// UpdateMeasuredPrepare records the measured prepare-phase duration for
// (src,dst) from a source-side migrate_report (spec §4.6: "store
// measured prepare as T_pre_mig(src,dst)"). T_mig is left untouched if
// already populated, zero otherwise.
func (e *Estimator) UpdateMeasuredPrepare(user, src, dst string, prepareS float64) {
	m := e.ModelFor(user)

	existing := m.Get(src, dst)
	tMig := 0.0
	if existing != nil {
		tMig = existing.TMigS
	}

	m.Set(src, dst, prepareS, tMig)
	e.persist(user, src, dst, prepareS, tMig)
}

// Ready reports whether user's cost model has enough distinct pairs to
// be usable by the optimised planner: at least serverCount-1 (spec
// §4.4), i.e. a path from the user's current server to every other one.
func (e *Estimator) Ready(user string, serverCount int) bool {
	need := serverCount - 1
	if need < 0 {
		need = 0
	}

	return e.ModelFor(user).Ready(need)
}
