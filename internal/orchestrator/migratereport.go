package orchestrator

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/edgefabric/centralctl/internal/model"
	"github.com/edgefabric/centralctl/internal/store"
	"github.com/edgefabric/centralctl/internal/wire"
)

// OnMigrateReportSource implements spec §4.6's `migrate_report/source`
// row: insert the MigrateRecord, and under `optimised` recompute φ and
// record the measured prepare duration as T_pre_mig(src,dst).
func (o *Orchestrator) OnMigrateReportSource(server string, mr wire.MigrateReport) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if mr.Source != server {
		o.Log.Error("orchestrator: migrate_report/source server mismatch", logrus.Fields{"topic_server": server, "source": mr.Source})
		return
	}

	svc, err := o.Store.ServiceByID(mr.Service)
	if err != nil {
		o.Log.Error("orchestrator: migrate_report/source unknown service", logrus.Fields{"service": mr.Service})
		return
	}

	src, err := o.Store.ServerByName(mr.Source)
	if err != nil {
		o.Log.Error("orchestrator: migrate_report/source unknown server", logrus.Fields{"server": mr.Source})
		return
	}

	dst, err := o.Store.ServerByName(mr.Dest)
	if err != nil {
		o.Log.Error("orchestrator: migrate_report/source unknown dest", logrus.Fields{"server": mr.Dest})
		return
	}

	rec := model.MigrateRecord{
		T: time.Now(), Src: mr.Source, Dst: mr.Dest, Service: svc.ID, Method: svc.Method,
		PreCheckpointS: mr.PreCheckpoint, PreRsyncS: mr.PreRsync, PrepareS: mr.Prepare,
		CheckpointS: mr.Checkpoint, RsyncS: mr.Rsync, XdeltaSourceS: mr.XdeltaSource,
		FinalRsyncS: mr.FinalRsync, MigrateS: mr.Migrate, PremigrationS: mr.Premigration,
		XdeltaDestS: mr.XdeltaDest, SizePreRsyncB: mr.SizePreRsync, SizeRsyncB: mr.SizeRsync,
		SizeFinalRsyncB: mr.SizeFinalRsync,
	}

	if _, err := o.Store.InsertMigrateRecord(rec, svc, src, dst); err != nil {
		o.Log.Error("orchestrator: insert migrate record", logrus.Fields{"service": svc.ID, "error": err})
		return
	}

	if o.isOptimised() {
		if err := o.Store.UpdatePhi(server); err != nil {
			o.Log.Error("orchestrator: update phi", logrus.Fields{"server": server, "error": err})
		}

		o.Cost.UpdateMeasuredPrepare(svc.User, mr.Source, mr.Dest, mr.Prepare)
	}
}

// OnMigrateReportDest implements spec §4.6's `migrate_report/dest` row:
// complete the correlated source-side record within the 60-second
// window (testable property 3), and under `optimised` recompute ρ.
func (o *Orchestrator) OnMigrateReportDest(server string, mr wire.MigrateReport) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if mr.Dest != server {
		o.Log.Error("orchestrator: migrate_report/dest server mismatch", logrus.Fields{"topic_server": server, "dest": mr.Dest})
		return
	}

	correlationID, err := o.Store.CompleteMigrateRecord(mr.Source, mr.Dest, mr.Service, mr.Restore, mr.XdeltaDest, mr.Premigration, time.Now())
	if err == store.ErrCorrelationWindowExpired {
		o.Log.Warn("orchestrator: migrate_report/dest outside correlation window, dropped", logrus.Fields{"service": mr.Service, "error": err})
		return
	}
	if err == store.ErrNotFound {
		o.Log.Debug("orchestrator: migrate_report/dest no matching source record", logrus.Fields{"service": mr.Service, "error": err})
		return
	}
	if err != nil {
		o.Log.Error("orchestrator: complete migrate record", logrus.Fields{"service": mr.Service, "error": err})
		return
	}

	o.Log.Debug("orchestrator: migrate report correlated", logrus.Fields{"service": mr.Service, "correlation_id": correlationID})

	if o.isOptimised() {
		if err := o.Store.UpdateRho(server); err != nil {
			o.Log.Error("orchestrator: update rho", logrus.Fields{"server": server, "error": err})
		}
	}
}
