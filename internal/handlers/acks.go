package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/edgefabric/centralctl/internal/wire"
)

// onAllocated implements the `allocated/<user>` row (spec §4.6, §8 S1).
func (h *Handlers) onAllocated(topic string, payload []byte) {
	var sd wire.ServiceDescriptor
	if !h.decode(topic, payload, &sd) {
		h.Log.Error("handlers: allocated malformed payload", logrus.Fields{"topic": topic})
		return
	}

	if sd.EndUser == "" {
		sd.EndUser = lastSegment(topic)
	}

	h.Orchestrator.OnAllocated(sd)
}

// onMigrated implements the `migrated/<user>` row (spec §4.6).
func (h *Handlers) onMigrated(topic string, payload []byte) {
	var sd wire.ServiceDescriptor
	if !h.decode(topic, payload, &sd) {
		h.Log.Error("handlers: migrated malformed payload", logrus.Fields{"topic": topic})
		return
	}

	if sd.EndUser == "" {
		sd.EndUser = lastSegment(topic)
	}

	h.Orchestrator.OnMigrated(sd)
}

// onPreMigrated implements the `pre_migrated/<user>` row (spec §4.6).
func (h *Handlers) onPreMigrated(topic string, payload []byte) {
	var sd wire.ServiceDescriptor
	if !h.decode(topic, payload, &sd) {
		h.Log.Error("handlers: pre_migrated malformed payload", logrus.Fields{"topic": topic})
		return
	}

	if sd.EndUser == "" {
		sd.EndUser = lastSegment(topic)
	}

	h.Orchestrator.OnPreMigrated(sd)
}

// onHandovered implements the `handovered/<user>` row (spec §4.6).
func (h *Handlers) onHandovered(topic string, payload []byte) {
	var hv wire.Handovered
	if !h.decode(topic, payload, &hv) {
		h.Log.Error("handlers: handovered malformed payload", logrus.Fields{"topic": topic})
		return
	}

	h.Orchestrator.OnHandovered(lastSegment(topic), hv)
}
