// Package orchestrator is the per-user migration state machine (C6, spec
// §4.6): a bitmask `M(u)` per end-user plus the `migrating_plan` and
// `handover_plan` payload maps described in spec §9 "Per-user state
// machine". All mutation happens through the methods on Orchestrator,
// which the handlers package (C7) calls after updating the store; the
// mutex here plays the role of the single dispatcher spec §5 requires,
// the way lxd/operations guards its in-memory operation map.
package orchestrator

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/edgefabric/centralctl/internal/bus"
	"github.com/edgefabric/centralctl/internal/migcost"
	"github.com/edgefabric/centralctl/internal/model"
	"github.com/edgefabric/centralctl/internal/planner"
	"github.com/edgefabric/centralctl/internal/radio"
	"github.com/edgefabric/centralctl/internal/store"
	"github.com/edgefabric/centralctl/internal/wire"
)

// Mask is the per-user migration bitmask of spec §4.6. The zero value
// serves as both INIT and RUNNING: the two are only ever distinguished
// by whether a Service row exists yet, never by the mask itself.
type Mask uint8

const (
	Running Mask = 0

	PreMigrate Mask = 1 << iota
	PreMigrated
	Migrate
	Handover
	Handovered
)

func (m Mask) has(bit Mask) bool { return m&bit != 0 }

// midMigration reports whether any of the three bits that gate a new
// pre-migrate decision are set (spec §4.6 guard "M ∩
// {PRE_MIGRATE,PRE_MIGRATED,MIGRATE}=∅", testable property 1).
func (m Mask) midMigration() bool {
	return m.has(PreMigrate) || m.has(PreMigrated) || m.has(Migrate)
}

// migratingPlan is the stored pre-migrate/migrate payload for a user,
// immutable once scheduled (spec §9 "Timers").
type migratingPlan struct {
	sourceServer string
	descriptor   wire.ServiceDescriptor
}

// handoverPlan is the stored handover payload for a user.
type handoverPlan struct {
	cmd wire.HandoverCommand
}

// Orchestrator owns the in-memory migration state and wires the store,
// bus, planner, and estimators together per spec §4.6.
type Orchestrator struct {
	Store   *store.Store
	Bus     bus.Adapter
	Planner planner.Planner
	Cost    *migcost.Estimator
	Radio   *radio.Estimator
	Log     Logger
	Method  model.MigrateMethod

	start time.Time

	mu          sync.Mutex
	mask        map[string]Mask
	migrating   map[string]*migratingPlan
	handover    map[string]*handoverPlan
	migTmr      map[string]*time.Timer
	handoverTmr map[string]*time.Timer
}

// Logger is the subset of *logging.Logger the orchestrator depends on,
// narrowed so tests can supply a no-op double.
type Logger interface {
	Debug(msg string, fields logrus.Fields)
	Info(msg string, fields logrus.Fields)
	Warn(msg string, fields logrus.Fields)
	Error(msg string, fields logrus.Fields)
}

// New returns a ready Orchestrator.
func New(s *store.Store, b bus.Adapter, p planner.Planner, cost *migcost.Estimator, rad *radio.Estimator, log Logger, method model.MigrateMethod) *Orchestrator {
	return &Orchestrator{
		Store: s, Bus: b, Planner: p, Cost: cost, Radio: rad, Log: log, Method: method,
		start:       time.Now(),
		mask:        make(map[string]Mask),
		migrating:   make(map[string]*migratingPlan),
		handover:    make(map[string]*handoverPlan),
		migTmr:      make(map[string]*time.Timer),
		handoverTmr: make(map[string]*time.Timer),
	}
}

// Tau returns the seconds elapsed between the orchestrator's own start
// (t0) and t, the time base the radio estimator's ring and fitted model
// operate in (spec §4.3).
func (o *Orchestrator) Tau(t time.Time) float64 {
	return t.Sub(o.start).Seconds()
}

// isOptimised reports whether the configured planner is the LP-based
// variant; the transition table branches repeatedly on this (spec
// §4.6 rows 7-9).
func (o *Orchestrator) isOptimised() bool {
	_, ok := o.Planner.(*planner.Optimised)
	return ok
}

// IsOptimised reports whether the configured planner is the LP-based
// variant, for handlers deciding whether a container-monitor report
// should feed the migration-cost estimator (spec §4.2, §4.4).
func (o *Orchestrator) IsOptimised() bool { return o.isOptimised() }

func (o *Orchestrator) maskOf(user string) Mask { return o.mask[user] }

func (o *Orchestrator) setMask(user string, m Mask) {
	if m == Running {
		delete(o.mask, user)
		return
	}

	o.mask[user] = m
}

// serviceID mirrors the source's `'{}{}'.format(service_name, end_user)`
// composite key (spec §3: Service.ID = service_name ∥ user).
func serviceID(serviceName, user string) string { return serviceName + user }

func (o *Orchestrator) publish(topic string, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		o.Log.Error("orchestrator: marshal publish payload", logrus.Fields{"topic": topic, "error": err})
		return
	}

	if err := o.Bus.Publish(topic, payload, bus.AtLeastOnce, false); err != nil {
		o.Log.Error("orchestrator: publish failed", logrus.Fields{"topic": topic, "error": err})
	}
}

// cancelTimers stops and clears every in-flight timer for user, used on
// terminal transitions (migrated, handovered-to-running, LWT) per spec
// §9 "cancel cleanly on terminal states".
func (o *Orchestrator) cancelTimers(user string) {
	if t, ok := o.migTmr[user]; ok {
		t.Stop()
		delete(o.migTmr, user)
	}

	if t, ok := o.handoverTmr[user]; ok {
		t.Stop()
		delete(o.handoverTmr, user)
	}
}

// destroyService publishes a destroy command for svc and removes it
// from the store, leaving the user row to the caller (OnDiscover places
// the user under a new service; OnLWTEndUser deletes the user).
func (o *Orchestrator) destroyService(svc model.Service) {
	o.publish("destroy/"+svc.ServerName, wire.ServiceDescriptor{
		ServiceName: svc.ID, EndUser: svc.User, Server: svc.ServerName,
	})

	if err := o.Store.DeleteService(svc.ID); err != nil {
		o.Log.Error("orchestrator: delete service", logrus.Fields{"service": svc.ID, "error": err})
	}
}
