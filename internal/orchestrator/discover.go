package orchestrator

import (
	"github.com/sirupsen/logrus"

	"github.com/edgefabric/centralctl/internal/model"
	"github.com/edgefabric/centralctl/internal/store"
	"github.com/edgefabric/centralctl/internal/wire"
)

// OnDiscover implements spec §4.6's `discover` rows: unknown BS drops the
// message; a user with no existing service is placed and deployed; a
// user whose service shares the discovered id is either left alone
// (mid-deploy/mid-migration) or re-deployed; a different id destroys
// the old service before placing the new one (spec §8 S6).
func (o *Orchestrator) OnDiscover(d wire.Discover) {
	o.mu.Lock()
	defer o.mu.Unlock()

	bs, err := o.Store.BTSByName(d.SSID)
	if err != nil {
		o.Log.Debug("orchestrator: discover on unknown BS", logrus.Fields{"user": d.EndUser, "ssid": d.SSID})
		return
	}

	id := serviceID(d.ServiceName, d.EndUser)

	svc, err := o.Store.ServiceForUser(d.EndUser)
	switch {
	case err == store.ErrNotFound:
		o.placeAndDeploy(d, id, bs)
	case err != nil:
		o.Log.Error("orchestrator: lookup service", logrus.Fields{"user": d.EndUser, "error": err})
	case svc.ID == id:
		o.redeployOrIgnore(d, svc)
	default:
		o.destroyService(svc)
		o.placeAndDeploy(d, id, bs)
	}
}

func (o *Orchestrator) redeployOrIgnore(d wire.Discover, svc model.Service) {
	switch svc.State {
	case model.ServiceInit, model.ServicePreMigrate, model.ServicePreMigrated, model.ServiceMigrate:
		o.Log.Info("orchestrator: discover ignored, service in flight", logrus.Fields{"service": svc.ID, "state": svc.State})
	default:
		o.publish("deploy/"+svc.ServerName, o.deployDescriptor(svc))
	}
}

func (o *Orchestrator) placeAndDeploy(d wire.Discover, id string, bs model.BaseStation) {
	server, err := o.Planner.PlaceService(d.EndUser, d.SSID, d.BSSID)
	if err != nil {
		o.Log.Error("orchestrator: place_service failed", logrus.Fields{"user": d.EndUser, "error": err})
		return
	}

	if err := o.Store.UpsertUser(model.EndUser{Name: d.EndUser, CurrentBS: bs.Name}); err != nil {
		o.Log.Error("orchestrator: upsert user", logrus.Fields{"user": d.EndUser, "error": err})
		return
	}

	svc := model.Service{
		ID:         id,
		User:       d.EndUser,
		Image:      d.ServiceName,
		ServerName: server,
		Method:     o.Method,
		State:      model.ServiceInit,
	}

	if err := o.Store.UpsertService(svc); err != nil {
		o.Log.Error("orchestrator: upsert service", logrus.Fields{"service": id, "error": err})
		return
	}

	o.setMask(d.EndUser, Running)
	o.publish("deploy/"+server, o.deployDescriptor(svc))
}

func (o *Orchestrator) deployDescriptor(svc model.Service) wire.ServiceDescriptor {
	return wire.ServiceDescriptor{
		ServiceName:   svc.ID,
		EndUser:       svc.User,
		Image:         svc.Image,
		Server:        svc.ServerName,
		HostPort:      svc.HostPort,
		ContainerPort: svc.ContainerPort,
		CheckpointDir: svc.CheckpointDir,
		MigrateMethod: string(svc.Method),
	}
}
