package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/edgefabric/centralctl/internal/wire"
)

// onMigrateReport dispatches `migrate_report/{source,dest}/<server>` to
// the matching orchestrator row (spec §4.6, §9d).
func (h *Handlers) onMigrateReport(topic string, payload []byte) {
	segs := segments(topic)
	if len(segs) < 3 {
		h.Log.Error("handlers: migrate_report topic too short", logrus.Fields{"topic": topic})
		return
	}

	var mr wire.MigrateReport
	if !h.decode(topic, payload, &mr) || !mr.Valid() {
		h.Log.Error("handlers: migrate_report malformed payload", logrus.Fields{"topic": topic})
		return
	}

	server := segs[2]

	switch segs[1] {
	case "source":
		h.Orchestrator.OnMigrateReportSource(server, mr)
	case "dest":
		h.Orchestrator.OnMigrateReportDest(server, mr)
	default:
		h.Log.Debug("handlers: unknown migrate_report side", logrus.Fields{"topic": topic})
	}
}
