package bus

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/edgefabric/centralctl/internal/logging"
	"github.com/edgefabric/centralctl/internal/revert"
)

// frame is the wire envelope exchanged with the broker. Unlike MQTT's
// binary packet format (no client for it exists anywhere in the
// reference corpus, see DESIGN.md) this is a plain JSON object, matching
// the way client/events.go's api.Event is exchanged as JSON over the
// same websocket transport.
type frame struct {
	Kind    string          `json:"kind"` // subscribe | publish | lwt
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload,omitempty"`
	QoS     int             `json:"qos,omitempty"`
	Retain  bool            `json:"retain,omitempty"`
}

// WebSocketAdapter is the production Adapter, dialing a single broker
// endpoint and re-subscribing atomically on every reconnect.
type WebSocketAdapter struct {
	url      string
	clientID string
	log      *logging.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	router    *Router
	patterns  []registeredSub
	lastWill  *frame
	onConnect func(rc int)
	closed    bool
}

type registeredSub struct {
	pattern string
	qos     QoS
}

// NewWebSocketAdapter returns an adapter that will dial url once Connect
// is called. clientID is stored on the adapter but neither sent to the
// broker nor logged (the broker protocol here has no notion of durable
// client sessions).
func NewWebSocketAdapter(url, clientID string, log *logging.Logger) *WebSocketAdapter {
	return &WebSocketAdapter{
		url:      url,
		clientID: clientID,
		log:      log,
		router:   NewRouter(),
	}
}

// RegisterLastWill implements Adapter.
func (a *WebSocketAdapter) RegisterLastWill(topic string, payload []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.lastWill = &frame{Kind: "lwt", Topic: topic, Payload: payload}
	return nil
}

// OnConnect implements Adapter.
func (a *WebSocketAdapter) OnConnect(fn func(rc int)) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.onConnect = fn
}

// Subscribe implements Adapter. Re-subscribing after a reconnect is
// handled internally; callers subscribe exactly once.
func (a *WebSocketAdapter) Subscribe(pattern string, qos QoS, handler Handler) error {
	a.mu.Lock()
	a.patterns = append(a.patterns, registeredSub{pattern: pattern, qos: qos})
	a.router.Register(pattern, handler)
	conn := a.conn
	a.mu.Unlock()

	if conn == nil {
		return nil // will be sent on Connect
	}

	return a.send(conn, frame{Kind: "subscribe", Topic: pattern, QoS: int(qos)})
}

// Publish implements Adapter.
func (a *WebSocketAdapter) Publish(topic string, payload []byte, qos QoS, retain bool) error {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}

	return a.send(conn, frame{Kind: "publish", Topic: topic, Payload: payload, QoS: int(qos), Retain: retain})
}

func (a *WebSocketAdapter) send(conn *websocket.Conn, f frame) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteJSON(f)
}

// Connect dials the broker, replays the last-will registration and every
// subscription, then starts the read loop. On an unexpected disconnect it
// keeps retrying until Close is called, with a backoff that starts at one
// second and doubles up to 32 seconds.
func (a *WebSocketAdapter) Connect() error {
	rv := revert.New()
	defer rv.Fail()

	conn, _, err := websocket.DefaultDialer.Dial(a.url, nil)
	if err != nil {
		return fmt.Errorf("bus: dial %s: %w", a.url, err)
	}

	rv.Add(func() { _ = conn.Close() })

	a.mu.Lock()
	if a.lastWill != nil {
		if err := conn.WriteJSON(*a.lastWill); err != nil {
			a.mu.Unlock()
			return fmt.Errorf("bus: register last-will: %w", err)
		}
	}

	for _, s := range a.patterns {
		if err := conn.WriteJSON(frame{Kind: "subscribe", Topic: s.pattern, QoS: int(s.qos)}); err != nil {
			a.mu.Unlock()
			return fmt.Errorf("bus: resubscribe %s: %w", s.pattern, err)
		}
	}

	a.conn = conn
	onConnect := a.onConnect
	a.mu.Unlock()

	if onConnect != nil {
		onConnect(0)
	}

	go a.readLoop(conn)

	rv.Success()
	return nil
}

func (a *WebSocketAdapter) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			a.mu.Lock()
			closed := a.closed
			sameConn := a.conn == conn
			a.mu.Unlock()

			if closed || !sameConn {
				return
			}

			a.log.Warn("bus: connection lost, reconnecting", map[string]interface{}{"error": err.Error()})
			a.reconnect()
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			a.log.Warn("bus: malformed frame dropped", map[string]interface{}{"error": err.Error()})
			continue
		}

		if f.Kind != "publish" {
			continue
		}

		// Dispatched synchronously: callback invocation is serialised per
		// subscription from the client's perspective (§4.1), and this
		// read loop is the adapter's single dispatcher thread.
		a.router.Dispatch(f.Topic, f.Payload)
	}
}

func (a *WebSocketAdapter) reconnect() {
	backoff := time.Second
	for {
		a.mu.Lock()
		closed := a.closed
		a.mu.Unlock()

		if closed {
			return
		}

		if err := a.Connect(); err == nil {
			return
		}

		time.Sleep(backoff)
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

// Close implements Adapter.
func (a *WebSocketAdapter) Close() error {
	a.mu.Lock()
	a.closed = true
	conn := a.conn
	a.mu.Unlock()

	if conn == nil {
		return nil
	}

	return conn.Close()
}
