package bus

import "sync"

// MemoryAdapter is an in-process Adapter with no network transport, used
// by orchestrator/handlers tests so the migration state machine is
// exercised without a broker (the same rationale the teacher applies to
// keeping the optimised planner's LP dependency injectable, see
// DESIGN.md).
type MemoryAdapter struct {
	mu        sync.Mutex
	router    *Router
	lastWill  *frame
	onConnect func(rc int)
	published []Published
}

// Published records one call to Publish, for assertions in tests.
type Published struct {
	Topic   string
	Payload []byte
	QoS     QoS
	Retain  bool
}

// NewMemoryAdapter returns a ready-to-use in-process Adapter.
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{router: NewRouter()}
}

// RegisterLastWill implements Adapter.
func (m *MemoryAdapter) RegisterLastWill(topic string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastWill = &frame{Kind: "lwt", Topic: topic, Payload: payload}
	return nil
}

// OnConnect implements Adapter.
func (m *MemoryAdapter) OnConnect(fn func(rc int)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.onConnect = fn
}

// Subscribe implements Adapter.
func (m *MemoryAdapter) Subscribe(pattern string, qos QoS, handler Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.router.Register(pattern, handler)
	return nil
}

// Publish implements Adapter, dispatching synchronously to any matching
// subscription and recording the call for test assertions.
func (m *MemoryAdapter) Publish(topic string, payload []byte, qos QoS, retain bool) error {
	m.mu.Lock()
	m.published = append(m.published, Published{Topic: topic, Payload: payload, QoS: qos, Retain: retain})
	router := m.router
	m.mu.Unlock()

	router.Dispatch(topic, payload)
	return nil
}

// Connect implements Adapter; it simply fires OnConnect.
func (m *MemoryAdapter) Connect() error {
	m.mu.Lock()
	onConnect := m.onConnect
	m.mu.Unlock()

	if onConnect != nil {
		onConnect(0)
	}

	return nil
}

// Close implements Adapter.
func (m *MemoryAdapter) Close() error { return nil }

// Published returns a copy of every message published so far, for test
// assertions (e.g. "expect exactly one deploy/<server> publish").
func (m *MemoryAdapter) Published() []Published {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Published, len(m.published))
	copy(out, m.published)
	return out
}

// Reset clears the recorded publish history without tearing down
// subscriptions.
func (m *MemoryAdapter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.published = nil
}

var _ Adapter = (*MemoryAdapter)(nil)
var _ Adapter = (*WebSocketAdapter)(nil)
