package handlers

import "github.com/sirupsen/logrus"

// onLWT dispatches `LWT/<kind>/<name>` last-will notifications: an
// end-user's disconnect destroys its service (spec §4.6 `LWT/eu`), an
// edge server's disconnect re-plans every service it hosted (spec §4.6
// `LWT/edge`, §8 S4). `LWT/centre` is this controller's own last will,
// published for other subscribers' benefit; it is never meaningful
// received back, so it is logged and dropped.
func (h *Handlers) onLWT(topic string, _ []byte) {
	segs := segments(topic)
	if len(segs) < 2 {
		h.Log.Error("handlers: LWT topic too short", logrus.Fields{"topic": topic})
		return
	}

	switch segs[1] {
	case "eu":
		h.Orchestrator.OnLWTEndUser(lastSegment(topic))
		h.publishUpdated()
	case "edge":
		h.Orchestrator.OnLWTEdge(lastSegment(topic))
		h.publishUpdated()
	case "centre":
		h.Log.Debug("handlers: LWT/centre observed", logrus.Fields{"topic": topic})
	default:
		h.Log.Debug("handlers: unknown LWT kind", logrus.Fields{"topic": topic})
	}
}
