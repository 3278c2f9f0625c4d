package orchestrator

import (
	"github.com/sirupsen/logrus"

	"github.com/edgefabric/centralctl/internal/model"
	"github.com/edgefabric/centralctl/internal/store"
	"github.com/edgefabric/centralctl/internal/wire"
)

// OnAllocated implements spec §4.6's `allocated/<user>` row: create or
// update the Service as `running` and reset the mask (spec §8 S1).
func (o *Orchestrator) OnAllocated(sd wire.ServiceDescriptor) {
	o.mu.Lock()
	defer o.mu.Unlock()

	existing, err := o.Store.ServiceForUser(sd.EndUser)
	hadExisting := err == nil

	svc := model.Service{
		ID:         sd.ServiceName,
		User:       sd.EndUser,
		Image:      sd.Image,
		ServerName: sd.Server,
		HostPort:   sd.HostPort,
		ContainerPort: sd.ContainerPort,
		CheckpointDir: sd.CheckpointDir,
		Status:     "running",
		State:      model.ServiceRunning,
		Method:     o.Method,
	}

	if hadExisting {
		if svc.Image == "" {
			svc.Image = existing.Image
		}
		if svc.ServerName == "" {
			svc.ServerName = existing.ServerName
		}
		svc.Method = existing.Method
		svc.CPUMHz, svc.MemMB, svc.SizeMB = existing.CPUMHz, existing.MemMB, existing.SizeMB
		svc.DeltaMemoryBytes, svc.PreCheckpointBytes = existing.DeltaMemoryBytes, existing.PreCheckpointBytes
		svc.TimeXdeltaS, svc.TimeCheckpointS = existing.TimeXdeltaS, existing.TimeCheckpointS
		svc.RequestCount = existing.RequestCount
	}

	if sd.MigrateMethod != "" {
		svc.Method = model.MigrateMethod(sd.MigrateMethod)
	}

	if err := o.Store.UpsertService(svc); err != nil {
		o.Log.Error("orchestrator: allocated upsert service", logrus.Fields{"service": svc.ID, "error": err})
		return
	}

	o.setMask(sd.EndUser, Running)
}

// OnMigrated implements spec §4.6's `migrated/<user>` row: the service
// returns to running, the mask fully resets, and the migrating plan is
// dropped (testable property 2).
func (o *Orchestrator) OnMigrated(sd wire.ServiceDescriptor) {
	o.mu.Lock()
	defer o.mu.Unlock()

	svc, err := o.Store.ServiceForUser(sd.EndUser)
	if err != nil {
		o.Log.Error("orchestrator: migrated for unknown user (stale ack)", logrus.Fields{"user": sd.EndUser})
		return
	}

	svc.State = model.ServiceRunning
	svc.Status = "running"
	if sd.Server != "" {
		svc.ServerName = sd.Server
	}

	if err := o.Store.UpsertService(svc); err != nil {
		o.Log.Error("orchestrator: migrated upsert service", logrus.Fields{"service": svc.ID, "error": err})
		return
	}

	o.setMask(sd.EndUser, Running)
	delete(o.migrating, sd.EndUser)
	delete(o.handover, sd.EndUser)
	o.cancelTimers(sd.EndUser)
}

// OnHandovered implements spec §4.6's `handovered/<user>` row: set the
// user's current BS to the reported SSID, and clear to RUNNING only if HANDOVER was the sole
// in-flight bit.
func (o *Orchestrator) OnHandovered(user string, h wire.Handovered) {
	o.mu.Lock()
	defer o.mu.Unlock()

	u, err := o.Store.UserByName(user)
	if err != nil {
		o.Log.Error("orchestrator: handovered for unknown user (stale ack)", logrus.Fields{"user": user})
		return
	}

	u.CurrentBS = h.SSID
	if err := o.Store.UpsertUser(u); err != nil {
		o.Log.Error("orchestrator: handovered upsert user", logrus.Fields{"user": user, "error": err})
		return
	}

	mask := o.maskOf(user)
	if mask == Handover {
		o.setMask(user, Running)
		delete(o.handover, user)
		if t, ok := o.handoverTmr[user]; ok {
			t.Stop()
			delete(o.handoverTmr, user)
		}
		return
	}

	o.setMask(user, mask|Handovered)
}

// OnLWTEndUser implements spec §4.6's `LWT/eu/<user>` row: destroy the
// bound service, if any, and delete the user and service.
func (o *Orchestrator) OnLWTEndUser(user string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if svc, err := o.Store.ServiceForUser(user); err == nil {
		o.destroyService(svc)
	}

	if err := o.Store.DeleteUser(user); err != nil && err != store.ErrNotFound {
		o.Log.Error("orchestrator: delete user on LWT", logrus.Fields{"user": user, "error": err})
	}

	delete(o.mask, user)
	delete(o.migrating, user)
	delete(o.handover, user)
	o.cancelTimers(user)
}
