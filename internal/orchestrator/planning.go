package orchestrator

import (
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/edgefabric/centralctl/internal/model"
	"github.com/edgefabric/centralctl/internal/planner"
	"github.com/edgefabric/centralctl/internal/radio"
	"github.com/edgefabric/centralctl/internal/wire"
)

// slaThresholdMS is the 50ms transmission-delay SLA ceiling (spec §6
// "Constants").
const slaThresholdMS = 50.0

// optimisedLookaheadS is the 60-second gate before the optimised planner
// is even asked to run the LP solve on an RSSI update (spec §4.6).
const optimisedLookaheadS = 60.0

// deferLifetimeS is the 200-second threshold above which a pre_migrated
// ack under the optimised planner is abandoned rather than scheduled
// (spec §4.6, §8 S3).
const deferLifetimeS = 200.0

// RunPlannerTick invokes the configured planner and applies whatever
// reassignments it returns (spec §4.6's periodic/event-driven planner
// invocations).
func (o *Orchestrator) RunPlannerTick(deltaT time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.runPlannerLocked(deltaT)
}

func (o *Orchestrator) runPlannerLocked(deltaT time.Duration) {
	reassignments, err := o.Planner.ComputePlan(deltaT)
	if err != nil {
		o.Log.Error("orchestrator: compute_plan failed", logrus.Fields{"error": err})
		return
	}

	o.applyReassignmentsLocked(reassignments)
}

// applyReassignmentsLocked implements spec §4.6's two planner-decision
// rows: a server change starts pre-migration (guarded by the mask and
// by the service not already being in flight); a BS change starts a
// handover (guarded by the mask and by not already awaiting one).
func (o *Orchestrator) applyReassignmentsLocked(reassignments []planner.Reassignment) {
	for _, r := range reassignments {
		mask := o.maskOf(r.User)

		if r.NextServer != "" && !mask.midMigration() {
			svc, err := o.Store.ServiceForUser(r.User)
			if err == nil && svc.ServerName != r.NextServer && !preMigrateBlocked(svc.State) {
				o.triggerPreMigrateLocked(r.User, svc, r.NextServer, r.NextBS)
				mask = o.maskOf(r.User)
			}
		}

		if r.NextBS != "" && !mask.midMigration() && !mask.has(Handover) {
			u, err := o.Store.UserByName(r.User)
			if err == nil && u.CurrentBS != r.NextBS {
				o.triggerHandoverLocked(r.User, r.NextBS)
			}
		}
	}
}

// preMigrateBlocked reports whether svc's current state forbids starting
// a new pre-migration (spec §4.6 row 5 guard: service state must not
// already be init/pre_migrate/pre_migrated/migrate).
func preMigrateBlocked(state model.ServiceState) bool {
	switch state {
	case model.ServiceInit, model.ServicePreMigrate, model.ServicePreMigrated, model.ServiceMigrate:
		return true
	default:
		return false
	}
}

// triggerPreMigrateLocked implements the `pre_migrate` row: the service
// moves to state pre_migrate, PRE_MIGRATE is set, and the descriptor
// (carrying the target server/ip/bs) is published and stored so the
// matching `pre_migrated` ack can find it.
func (o *Orchestrator) triggerPreMigrateLocked(user string, svc model.Service, nextServer, nextBS string) {
	var nextIP string
	if srv, err := o.Store.ServerByName(nextServer); err == nil {
		nextIP = srv.IP
	}

	svc.State = model.ServicePreMigrate
	if err := o.Store.UpsertService(svc); err != nil {
		o.Log.Error("orchestrator: pre_migrate upsert service", logrus.Fields{"service": svc.ID, "error": err})
		return
	}

	sd := o.deployDescriptor(svc)
	sd.NextServer = nextServer
	sd.NextIP = nextIP
	sd.NextBS = nextBS

	o.migrating[user] = &migratingPlan{sourceServer: svc.ServerName, descriptor: sd}
	o.setMask(user, o.maskOf(user)|PreMigrate)
	o.publish("pre_migrate/"+svc.ServerName, sd)
}

// triggerHandoverLocked implements the `handover` row: HANDOVER is set
// and a handover command is published carrying the predicted
// elapsed-time-to-handover (only the optimised planner has the
// trajectory data to predict it usefully; other planners hand over
// immediately, elapsed=0, spec §4.6 "(or handover scheduled at 0s
// elapsed-time)").
func (o *Orchestrator) triggerHandoverLocked(user, nextBS string) {
	bs, err := o.Store.BTSByName(nextBS)
	if err != nil {
		o.Log.Error("orchestrator: handover unknown BS", logrus.Fields{"bs": nextBS, "error": err})
		return
	}

	var elapsedMS float64
	if o.isOptimised() {
		if t, ok := o.handoverEstimate(user, nextBS); ok {
			elapsedMS = t * 1000
		}
	}

	cmd := wire.HandoverCommand{NextSSID: bs.Name, NextBSSID: bs.BSSID, NextPassword: bs.Password, ElapsedTimeMS: elapsedMS}

	o.handover[user] = &handoverPlan{cmd: cmd}
	o.setMask(user, o.maskOf(user)|Handover)
	o.publish("handover/"+user, cmd)
}

// triggerDeferredHandoverLocked fires the handover row a combined
// server+BS reassignment deferred: applyReassignmentsLocked's handover
// check is skipped in the same loop iteration a pre-migrate just armed
// (the mask it re-reads already carries PRE_MIGRATE), so for the
// non-optimised planners the handover is issued here instead, right
// after the matching `migrate` command (spec §8 S2: "migrate/edge01
// followed by handover/U1"). A no-op if there is no BS change to make,
// or HANDOVER is already set.
func (o *Orchestrator) triggerDeferredHandoverLocked(user, nextBS string) {
	if nextBS == "" || o.maskOf(user).has(Handover) {
		return
	}

	u, err := o.Store.UserByName(user)
	if err != nil || u.CurrentBS == nextBS {
		return
	}

	o.triggerHandoverLocked(user, nextBS)
}

// lifetimeToMigLocked implements the original's `lifetime_to_mig`: the
// predicted seconds remaining before the real handover, minus a 10%
// safety margin on the cost model's measured migration duration. The
// original also margins against a second, independently-estimated
// handover duration (its T_ho), but that statistic has no analogue here
// (and the original itself falls back to the migration duration alone
// whenever T_ho is unavailable), so the margin is T_mig alone.
// cur_bts==dest_bts forces an immediate migration (life_time=0);
// ok=false when no handover prediction is available yet
// (trajectory/velocity undefined), mirroring the original's
// "lifetime_to_mig is None" abandonment.
func (o *Orchestrator) lifetimeToMigLocked(user string, plan *migratingPlan) (float64, bool) {
	var tMig float64
	if plan.sourceServer != plan.descriptor.NextServer {
		pair := o.Cost.ModelFor(user).Get(plan.sourceServer, plan.descriptor.NextServer)
		if pair == nil {
			return 0, false
		}

		tMig = pair.TMigS
	}

	u, err := o.Store.UserByName(user)
	if err != nil {
		return 0, false
	}

	if u.CurrentBS == plan.descriptor.NextBS {
		return 0, true
	}

	tillHandover, ok := o.handoverEstimate(user, plan.descriptor.NextBS)
	if !ok {
		return 0, false
	}

	return tillHandover - 1.1*tMig, true
}

// handoverEstimate predicts the time to handover from a user's current
// BS to nextBS along its fitted trajectory (spec §4.3), returning
// ok=false when the estimator is undefined (no trajectory/velocity yet).
func (o *Orchestrator) handoverEstimate(user, nextBS string) (float64, bool) {
	u, err := o.Store.UserByName(user)
	if err != nil || u.CurrentBS == "" {
		return 0, false
	}

	src, err := o.Store.BTSByName(u.CurrentBS)
	if err != nil {
		return 0, false
	}

	dst, err := o.Store.BTSByName(nextBS)
	if err != nil {
		return 0, false
	}

	return radio.HandoverTime(u.X, u.Y, u.TrajA, u.TrajB, u.VX, u.VY, src.X, src.Y, dst.X, dst.Y, radio.DefaultHysteresis)
}

// minHandoverEstimate returns the smallest predicted handover time from
// a user's current BS to any other BS the radio estimator has samples
// for, used to gate the optimised planner's RSSI-update heuristic (spec
// §4.6).
func (o *Orchestrator) minHandoverEstimate(user string) (float64, bool) {
	u, err := o.Store.UserByName(user)
	if err != nil || u.CurrentBS == "" {
		return 0, false
	}

	src, err := o.Store.BTSByName(u.CurrentBS)
	if err != nil {
		return 0, false
	}

	best := math.Inf(1)
	found := false

	for _, bsName := range o.Radio.KnownBS(user) {
		if bsName == u.CurrentBS {
			continue
		}

		dst, err := o.Store.BTSByName(bsName)
		if err != nil {
			continue
		}

		if t, ok := radio.HandoverTime(u.X, u.Y, u.TrajA, u.TrajB, u.VX, u.VY, src.X, src.Y, dst.X, dst.Y, radio.DefaultHysteresis); ok && t < best {
			best = t
			found = true
		}
	}

	return best, found
}

// OnRSSIUpdate implements spec §4.6's RSSI-driven planner invocations:
// under `optimised`, gate the (expensive) LP solve behind a predicted
// 60-second handover lookahead; under `nearest`/`random`, trigger
// immediately once the current serving BS's RSSI crosses the -76dBm
// threshold.
func (o *Orchestrator) OnRSSIUpdate(user string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	mask := o.maskOf(user)

	if o.isOptimised() {
		if mask.midMigration() {
			return
		}

		avgPreMig, _ := o.Cost.ModelFor(user).Avg()

		handoverT, ok := o.minHandoverEstimate(user)
		if !ok {
			return
		}

		lifetime := handoverT - avgPreMig
		if lifetime < optimisedLookaheadS {
			o.runPlannerLocked(time.Duration(avgPreMig * float64(time.Second)))
		}

		return
	}

	u, err := o.Store.UserByName(user)
	if err != nil || u.CurrentBS == "" {
		return
	}

	top, err := o.Store.StrongestBS(user, -1) // -1: every BS heard (unbounded LIMIT)
	if err != nil || len(top) == 0 {
		return
	}

	var currentRSSI float64
	found := false
	for _, c := range top {
		if c.BS == u.CurrentBS {
			currentRSSI = c.Filtered
			found = true
			break
		}
	}

	if !found {
		currentRSSI = top[0].Filtered
	}

	if currentRSSI <= planner.RSSIThreshold {
		o.runPlannerLocked(0)
	}
}

// OnSLAViolation implements spec §4.6's "Any SLA violation... also
// triggers compute_plan(0)" row (spec §8 S5). Callers check
// TransferDelayMS() against slaThresholdMS before calling this.
func (o *Orchestrator) OnSLAViolation(user string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.runPlannerLocked(0)
}

// SLAThresholdMS exposes the 50ms SLA ceiling to callers (handlers)
// deciding whether to call OnSLAViolation.
func (o *Orchestrator) SLAThresholdMS() float64 { return slaThresholdMS }

// OnPreMigrated implements spec §4.6's `pre_migrated/<user>` rows: under
// non-optimised planners the migrate command is issued immediately;
// under `optimised`, the recomputed lifetime_to_mig either abandons the
// cycle (>200s, spec §8 S3) or schedules the two timers that will fire
// the handover and migrate commands once the predicted deadline nears.
func (o *Orchestrator) OnPreMigrated(sd wire.ServiceDescriptor) {
	o.mu.Lock()
	defer o.mu.Unlock()

	svc, err := o.Store.ServiceForUser(sd.EndUser)
	if err != nil {
		o.Log.Error("orchestrator: pre_migrated for unknown user (stale ack)", logrus.Fields{"user": sd.EndUser})
		return
	}

	plan, ok := o.migrating[sd.EndUser]
	if !ok {
		o.Log.Debug("orchestrator: pre_migrated with no stored plan (stale/duplicate)", logrus.Fields{"user": sd.EndUser})
		return
	}

	svc.State = model.ServicePreMigrated
	if err := o.Store.UpsertService(svc); err != nil {
		o.Log.Error("orchestrator: pre_migrated upsert service", logrus.Fields{"service": svc.ID, "error": err})
		return
	}

	o.setMask(sd.EndUser, o.maskOf(sd.EndUser)|PreMigrated)

	if !o.isOptimised() {
		o.setMask(sd.EndUser, o.maskOf(sd.EndUser)|Migrate)
		o.publish("migrate/"+plan.sourceServer, plan.descriptor)
		o.triggerDeferredHandoverLocked(sd.EndUser, plan.descriptor.NextBS)
		return
	}

	lifetimeToMig, ok := o.lifetimeToMigLocked(sd.EndUser, plan)
	if !ok {
		o.Log.Debug("orchestrator: pre_migrated lifetime_to_mig undefined", logrus.Fields{"user": sd.EndUser})
		return
	}

	if lifetimeToMig > deferLifetimeS {
		svc.State = model.ServiceRunning
		if err := o.Store.UpsertService(svc); err != nil {
			o.Log.Error("orchestrator: pre_migrated cancel upsert service", logrus.Fields{"service": svc.ID, "error": err})
		}

		o.setMask(sd.EndUser, Running)
		delete(o.migrating, sd.EndUser)
		delete(o.handover, sd.EndUser)
		o.cancelTimers(sd.EndUser)
		return
	}

	mask := o.maskOf(sd.EndUser)
	user := sd.EndUser

	if !mask.has(Handover) {
		delay := time.Duration(lifetimeToMig*float64(time.Second)) + 100*time.Millisecond
		if delay <= 0 {
			delay = 100 * time.Millisecond
		}

		o.handoverTmr[user] = time.AfterFunc(delay, func() { o.fireTriggerHandover(user) })
	}

	if !mask.has(Migrate) {
		delay := time.Duration(lifetimeToMig * float64(time.Second))
		if delay < 0 {
			delay = 0
		}

		o.migTmr[user] = time.AfterFunc(delay, func() { o.fireTriggerMigration(user) })
	}
}

// fireTriggerHandover is the optimised planner's scheduled trigger_handover
// callback (spec §4.6, §5 "superseded timers"): a no-op if the stored
// migrating plan this timer was scheduled for is no longer present, or
// HANDOVER is already set by the time it fires.
func (o *Orchestrator) fireTriggerHandover(user string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	delete(o.handoverTmr, user)

	plan, ok := o.migrating[user]
	if !ok {
		return
	}

	if o.maskOf(user).has(Handover) {
		return
	}

	o.triggerHandoverLocked(user, plan.descriptor.NextBS)
}

// fireTriggerMigration is the optimised planner's scheduled
// trigger_migration callback, same no-op-on-staleness contract as
// fireTriggerHandover.
func (o *Orchestrator) fireTriggerMigration(user string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	delete(o.migTmr, user)

	plan, ok := o.migrating[user]
	if !ok {
		return
	}

	if o.maskOf(user).has(Migrate) {
		return
	}

	o.setMask(user, o.maskOf(user)|Migrate)
	o.publish("migrate/"+plan.sourceServer, plan.descriptor)
}
