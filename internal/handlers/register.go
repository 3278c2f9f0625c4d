package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/edgefabric/centralctl/internal/model"
	"github.com/edgefabric/centralctl/internal/wire"
)

// onRegister implements spec §4.7/§6's `register` topic: a server (and
// optionally its co-located BS) is created or updated, then the current
// server list republishes on `updated` (spec §5 "publish of `updated`
// ... precedes `deploy/<server>` commands that rely on it").
func (h *Handlers) onRegister(topic string, payload []byte) {
	var r wire.Register
	if !h.decode(topic, payload, &r) || !r.Valid() {
		h.Log.Error("handlers: register malformed payload", logrus.Fields{"topic": topic})
		return
	}

	srv := model.Server{
		Name: r.ServerName, IP: r.IP, DistanceTier: r.Distance,
		Phi: r.Phi, Rho: r.Rho,
	}

	if existing, err := h.Store.ServerByName(r.ServerName); err == nil {
		srv.CoreCount, srv.CPUMaxMHz = existing.CoreCount, existing.CPUMaxMHz
		srv.RAMMB, srv.RAMFreeMB = existing.RAMMB, existing.RAMFreeMB
		srv.DiskMB, srv.DiskFreeMB = existing.DiskMB, existing.DiskFreeMB
		if r.Phi == 0 {
			srv.Phi = existing.Phi
		}
		if r.Rho == 0 {
			srv.Rho = existing.Rho
		}
	}

	if err := h.Store.RegisterServer(srv); err != nil {
		h.Log.Error("handlers: register server", logrus.Fields{"server": r.ServerName, "error": err})
		return
	}

	if r.BS != "" {
		bs := model.BaseStation{Name: r.BS, X: r.BSX, Y: r.BSY, ServerName: r.ServerName}
		if existing, err := h.Store.BTSByName(r.BS); err == nil {
			bs.BSSID, bs.Password = existing.BSSID, existing.Password
		}

		if err := h.Store.RegisterBS(bs); err != nil {
			h.Log.Error("handlers: register bs", logrus.Fields{"bs": r.BS, "error": err})
			return
		}
	}

	h.publishUpdated()
}
