package orchestrator

import (
	"github.com/sirupsen/logrus"

	"github.com/edgefabric/centralctl/internal/model"
)

// OnLWTEdge implements spec §4.6's `LWT/edge/<server>` row: every service
// on the dying server is re-planned and re-deployed elsewhere, then the
// server is removed (spec §8 S4).
func (o *Orchestrator) OnLWTEdge(server string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	services, err := o.Store.ServicesByServer(server)
	if err != nil {
		o.Log.Error("orchestrator: list services on dying server", logrus.Fields{"server": server, "error": err})
		return
	}

	for _, svc := range services {
		o.redeploy(svc)
	}

	if err := o.Store.DeleteServer(server); err != nil {
		o.Log.Error("orchestrator: delete server", logrus.Fields{"server": server, "error": err})
	}
}

func (o *Orchestrator) redeploy(svc model.Service) {
	u, err := o.Store.UserByName(svc.User)
	if err != nil {
		o.Log.Error("orchestrator: redeploy unknown user", logrus.Fields{"user": svc.User, "error": err})
		return
	}

	var bssid string
	if bs, err := o.Store.BTSByName(u.CurrentBS); err == nil {
		bssid = bs.BSSID
	}

	server, err := o.Planner.PlaceService(svc.User, u.CurrentBS, bssid)
	if err != nil {
		o.Log.Error("orchestrator: place_service on redeploy failed", logrus.Fields{"user": svc.User, "error": err})
		return
	}

	svc.ServerName = server
	svc.State = model.ServiceInit
	if err := o.Store.UpsertService(svc); err != nil {
		o.Log.Error("orchestrator: redeploy upsert service", logrus.Fields{"service": svc.ID, "error": err})
		return
	}

	o.publish("deploy/"+server, o.deployDescriptor(svc))
}
