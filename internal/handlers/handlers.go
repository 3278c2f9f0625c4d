// Package handlers is the Message Handlers layer (C7, spec §4.7): one
// handler per inbound topic class. Each handler parses the payload into
// its narrow wire type, updates the store/estimators (C2-C4), and then
// either republishes a derived topic (register/LWT-edge/LWT-eu) or hands off to
// the orchestrator (C6). Malformed payloads and references to unknown
// entities are logged and dropped here, never propagated as errors (spec
// §7).
package handlers

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/r3labs/diff/v3"
	"github.com/sirupsen/logrus"

	"github.com/edgefabric/centralctl/internal/bus"
	"github.com/edgefabric/centralctl/internal/orchestrator"
	"github.com/edgefabric/centralctl/internal/store"
	"github.com/edgefabric/centralctl/internal/wire"
)

// Logger is the subset of *logging.Logger the handlers depend on.
type Logger interface {
	Debug(msg string, fields logrus.Fields)
	Info(msg string, fields logrus.Fields)
	Warn(msg string, fields logrus.Fields)
	Error(msg string, fields logrus.Fields)
}

// Handlers wires the store, estimators, orchestrator, and bus together
// for every inbound topic class (spec §4.7).
type Handlers struct {
	Store        *store.Store
	Orchestrator *orchestrator.Orchestrator
	Bus          bus.Adapter
	Log          Logger

	lastUpdatedMu sync.Mutex
	lastUpdated   []wire.ServerSummary
}

// Register subscribes every topic class named in spec §4.8's bootstrap
// list to its handler, at-least-once QoS throughout.
func (h *Handlers) Register() error {
	subs := []struct {
		pattern string
		fn      bus.Handler
	}{
		{"register", h.onRegister},
		{"monitor/#", h.onMonitor},
		{"discover", h.onDiscover},
		{"allocated/+", h.onAllocated},
		{"migrated/+", h.onMigrated},
		{"pre_migrated/+", h.onPreMigrated},
		{"handovered/+", h.onHandovered},
		{"LWT/#", h.onLWT},
		{"migrate_report/+/+", h.onMigrateReport},
	}

	for _, s := range subs {
		if err := h.Bus.Subscribe(s.pattern, bus.AtLeastOnce, s.fn); err != nil {
			return err
		}
	}

	return nil
}

// decode unmarshals payload into v, logging and reporting failure rather
// than propagating it (spec §7 "malformed payload").
func (h *Handlers) decode(topic string, payload []byte, v any) bool {
	if err := json.Unmarshal(payload, v); err != nil {
		h.Log.Error("handlers: malformed payload", logrus.Fields{"topic": topic, "error": err})
		return false
	}

	return true
}

// lastSegment returns the final "/"-separated component of topic, used
// to recover the <user>/<server> suffix of a subscribed wildcard.
func lastSegment(topic string) string {
	i := strings.LastIndexByte(topic, '/')
	if i < 0 {
		return topic
	}

	return topic[i+1:]
}

// segments splits topic on "/".
func segments(topic string) []string {
	return strings.Split(topic, "/")
}

// PublishUpdated publishes the current server list on the `updated`
// topic. Exported so bootstrap can emit the initial snapshot right
// after subscribing, before any register/LWT-edge event has fired.
func (h *Handlers) PublishUpdated() { h.publishUpdated() }

// publishUpdated publishes the current server list on the `updated`
// topic (spec §4.8, §6), used after every register/LWT-edge/LWT-eu mutation.
// The list is diffed against the last published one purely for
// operational visibility (spec's `updated` is always republished in
// full regardless of the diff, matching align_servers.go's own
// reconciliation-logging use of r3labs/diff/v3 against a live cluster).
func (h *Handlers) publishUpdated() {
	servers, err := h.Store.ListServers()
	if err != nil {
		h.Log.Error("handlers: list servers for updated", logrus.Fields{"error": err})
		return
	}

	out := make([]wire.ServerSummary, 0, len(servers))
	for _, srv := range servers {
		summary := wire.ServerSummary{ServerName: srv.Name, IP: srv.IP, Distance: srv.DistanceTier}
		if bts, err := h.bsForServer(srv.Name); err == nil {
			summary.BS = bts
		}
		out = append(out, summary)
	}

	h.logServerListChange(out)

	payload, err := json.Marshal(out)
	if err != nil {
		h.Log.Error("handlers: marshal updated", logrus.Fields{"error": err})
		return
	}

	if err := h.Bus.Publish("updated", payload, bus.AtLeastOnce, false); err != nil {
		h.Log.Error("handlers: publish updated", logrus.Fields{"error": err})
	}
}

// logServerListChange records at debug level what changed since the
// previous `updated` publish.
func (h *Handlers) logServerListChange(out []wire.ServerSummary) {
	h.lastUpdatedMu.Lock()
	prev := h.lastUpdated
	h.lastUpdated = out
	h.lastUpdatedMu.Unlock()

	changelog, err := diff.Diff(prev, out)
	if err != nil {
		h.Log.Debug("handlers: diff server list", logrus.Fields{"error": err})
		return
	}

	if len(changelog) > 0 {
		h.Log.Debug("handlers: server list changed", logrus.Fields{"changes": len(changelog)})
	}
}

func (h *Handlers) bsForServer(server string) (string, error) {
	all, err := h.Store.ListBaseStations()
	if err != nil {
		return "", err
	}

	for _, bts := range all {
		if bts.ServerName == server {
			return bts.Name, nil
		}
	}

	return "", store.ErrNotFound
}

// now is overridable in tests; production always uses wall-clock time.
var now = time.Now
