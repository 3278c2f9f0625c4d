package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/edgefabric/centralctl/internal/model"
	"github.com/edgefabric/centralctl/internal/store"
	"github.com/edgefabric/centralctl/internal/wire"
)

// onMonitor dispatches `monitor/<kind>/<...>` to the sub-handler for
// kind (spec §4.7/§6's five monitor streams).
func (h *Handlers) onMonitor(topic string, payload []byte) {
	segs := segments(topic)
	if len(segs) < 2 {
		h.Log.Error("handlers: monitor topic too short", logrus.Fields{"topic": topic})
		return
	}

	switch segs[1] {
	case "eu":
		h.onMonitorEU(topic, payload)
	case "service":
		h.onMonitorService(topic, payload)
	case "server":
		h.onMonitorServer(topic, payload)
	case "container":
		h.onMonitorContainer(topic, payload)
	case "edge":
		h.onMonitorEdge(topic, payload)
	default:
		h.Log.Debug("handlers: unknown monitor kind", logrus.Fields{"topic": topic})
	}
}

// onMonitorEU ingests a batch of AP scan entries for one end-user,
// filtering each with the EMA, refreshing trilateration/trajectory, and
// feeding the radio estimator's ring before triggering the RSSI-driven
// planner rows of spec §4.6.
func (h *Handlers) onMonitorEU(topic string, payload []byte) {
	var m wire.MonitorEU
	if !h.decode(topic, payload, &m) || !m.Valid() {
		h.Log.Error("handlers: monitor/eu malformed payload", logrus.Fields{"topic": topic})
		return
	}

	t := now()
	tau := h.Orchestrator.Tau(t)

	for _, ap := range m.NearbyAP {
		bs, err := h.Store.BTSByBSSID(ap.BSSID)
		if err != nil {
			h.Log.Debug("handlers: monitor/eu unknown bssid", logrus.Fields{"bssid": ap.BSSID})
			continue
		}

		filtered, err := h.Store.IngestRSSI(t, m.EndUser, bs.Name, bs.X, bs.Y, ap.Level)
		if err != nil {
			h.Log.Error("handlers: ingest rssi", logrus.Fields{"user": m.EndUser, "bs": bs.Name, "error": err})
			continue
		}

		h.Orchestrator.Radio.Observe(m.EndUser, bs.Name, tau, filtered)
	}

	h.Orchestrator.OnRSSIUpdate(m.EndUser)
}

// onMonitorService records one end-to-end request sample and triggers
// the SLA-violation planner row of spec §4.6/§8 S5 when the transfer
// delay exceeds the 50ms ceiling.
func (h *Handlers) onMonitorService(topic string, payload []byte) {
	var m wire.MonitorService
	if !h.decode(topic, payload, &m) || !m.Valid() {
		h.Log.Error("handlers: monitor/service malformed payload", logrus.Fields{"topic": topic})
		return
	}

	svc, err := h.Store.ServiceForUser(m.EndUser)
	if err != nil {
		h.Log.Debug("handlers: monitor/service unknown user", logrus.Fields{"user": m.EndUser})
		return
	}

	delay := m.TransferDelayMS()

	if err := h.Store.InsertRequestSample(model.RequestSample{
		T: now(), User: m.EndUser, Service: svc.ID, BS: m.BSSID, Server: svc.ServerName,
		ProcDelayMS: m.ProcessMS, E2EDelayMS: delay, RequestSizeB: m.SentSizeB,
	}); err != nil {
		h.Log.Error("handlers: insert request sample", logrus.Fields{"user": m.EndUser, "error": err})
	}

	if delay > h.Orchestrator.SLAThresholdMS() {
		h.Orchestrator.OnSLAViolation(m.EndUser)
	}
}

// onMonitorServer updates a server's own resource footprint.
func (h *Handlers) onMonitorServer(topic string, payload []byte) {
	var m wire.MonitorServer
	if !h.decode(topic, payload, &m) {
		h.Log.Error("handlers: monitor/server malformed payload", logrus.Fields{"topic": topic})
		return
	}

	server := lastSegment(topic)

	srv, err := h.Store.ServerByName(server)
	if err != nil {
		h.Log.Debug("handlers: monitor/server unknown server", logrus.Fields{"server": server})
		return
	}

	srv.CPUMaxMHz, srv.CoreCount = m.CPUMax, m.CPUCores
	srv.RAMMB, srv.RAMFreeMB = m.MemTotal, m.MemFree
	srv.DiskMB, srv.DiskFreeMB = m.DiskTotal, m.DiskFree

	if err := h.Store.RegisterServer(srv); err != nil {
		h.Log.Error("handlers: monitor/server update", logrus.Fields{"server": server, "error": err})
	}
}

// onMonitorContainer implements spec §4.2's `update_container_monitor`:
// the service's footprint is written through, and under the optimised
// planner the per-neighbour migration-cost recompute feeds the cost
// estimator (spec §4.2, §4.4).
func (h *Handlers) onMonitorContainer(topic string, payload []byte) {
	var m wire.MonitorContainer
	if !h.decode(topic, payload, &m) || !m.Valid() {
		h.Log.Error("handlers: monitor/container malformed payload", logrus.Fields{"topic": topic})
		return
	}

	updated, err := h.Store.UpdateContainerMonitor(m.Container, m.Status, m.CPU, m.Mem, m.Size,
		m.DeltaMemory, m.PreCheckpoint, m.TimeXdelta, m.TimeCheckpoint)
	if err == store.ErrNotFound {
		h.Log.Debug("handlers: monitor/container unknown service", logrus.Fields{"service": m.Container})
		return
	}
	if err != nil {
		h.Log.Error("handlers: update container monitor", logrus.Fields{"service": m.Container, "error": err})
		return
	}

	if !h.Orchestrator.IsOptimised() {
		return
	}

	costs, err := h.Store.ComputeNeighbourCosts(updated, 10)
	if err != nil {
		h.Log.Error("handlers: compute neighbour costs", logrus.Fields{"service": updated.ID, "error": err})
		return
	}

	h.Orchestrator.Cost.UpdateFromNeighbourCosts(updated.User, costs)
}

// onMonitorEdge records one inter-server latency/bandwidth sample.
func (h *Handlers) onMonitorEdge(topic string, payload []byte) {
	var m wire.MonitorEdge
	if !h.decode(topic, payload, &m) || !m.Valid() {
		h.Log.Error("handlers: monitor/edge malformed payload", logrus.Fields{"topic": topic})
		return
	}

	if err := h.Store.InsertNetworkSample(model.NetworkSample{
		T: now(), SrcServer: m.SrcNode, DstServer: m.DstNode, LatencyUS: m.Latency, BWMbps: m.BW,
	}); err != nil {
		h.Log.Error("handlers: insert network sample", logrus.Fields{"src": m.SrcNode, "dst": m.DstNode, "error": err})
	}
}
