// Package bus is the Message Bus Adapter (C1, spec §4.1): a topic-routed
// publish/subscribe client with at-least-once delivery and a last-will
// per client. The core is only ever a client of the broker; it never
// hosts one. Transport is gorilla/websocket, the library the teacher's
// own client/events.go uses for its EventListener, generalized here from
// a fixed event-type filter to full MQTT-style topic patterns.
package bus

import "errors"

// Handler processes one inbound (topic, payload) delivery. Payloads are
// opaque UTF-8 JSON byte strings; handlers are responsible for parsing.
type Handler func(topic string, payload []byte)

// QoS mirrors the two delivery guarantees the core ever requests.
type QoS int

const (
	// AtMostOnce is unused by the core; kept for completeness of the enum.
	AtMostOnce QoS = iota
	// AtLeastOnce is the only QoS the core ever requests (spec §4.1).
	AtLeastOnce
)

// ErrNotConnected is returned by Publish before Connect succeeds.
// Subscribe before Connect does not fail; the subscription is sent on
// Connect.
var ErrNotConnected = errors.New("bus: not connected")

// Adapter is the interface the orchestrator and handlers depend on; see
// DESIGN.md for why the optimised planner's LP solver is injected the
// same way rather than hidden behind this interface.
type Adapter interface {
	// Connect dials the broker and re-establishes every previously
	// registered subscription atomically before any handler fires.
	Connect() error

	// Subscribe registers pattern with handler at the given QoS. Pattern
	// may use "+" and "#" wildcards (see Match).
	Subscribe(pattern string, qos QoS, handler Handler) error

	// Publish sends payload on topic. retain is accepted for interface
	// completeness; this deployment never sets it (spec §4.1 default).
	Publish(topic string, payload []byte, qos QoS, retain bool) error

	// RegisterLastWill sets the payload the broker publishes on topic if
	// this client disconnects uncleanly. Must be called before Connect.
	RegisterLastWill(topic string, payload []byte) error

	// OnConnect registers a callback fired after every successful
	// (re)connect, receiving a broker-defined reason code.
	OnConnect(func(rc int))

	// Close disconnects and releases resources.
	Close() error
}
