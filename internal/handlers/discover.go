package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/edgefabric/centralctl/internal/wire"
)

// onDiscover hands a `discover` payload straight to the orchestrator's
// state machine (spec §4.6, §4.7).
func (h *Handlers) onDiscover(topic string, payload []byte) {
	var d wire.Discover
	if !h.decode(topic, payload, &d) || !d.Valid() {
		h.Log.Error("handlers: discover malformed payload", logrus.Fields{"topic": topic})
		return
	}

	h.Orchestrator.OnDiscover(d)
}
