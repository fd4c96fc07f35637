package radio

import (
	"math/rand"
	"sync"
)

// link describes one directed edge of the visibility graph: datagrams sent
// from the edge's owner to Peer are delivered unless the per-link drop
// probability rolls a loss.
type link struct {
	peer NodeID
	drop float64
}

// SimMedium is an in-process Medium for building many logical nodes inside
// one test process, the way plumtree_test.go constructs twenty nodes and
// wires them together without any real sockets. Visibility between nodes
// is an explicit directed graph (AddLink), so asymmetric or lossy links can
// be modeled; nodes with no edge between them never see each other's
// traffic regardless of Open/Close state.
type SimMedium struct {
	mu        sync.Mutex
	rng       *rand.Rand
	links     map[NodeID][]link
	listeners map[NodeID]map[Port]Receiver
}

// NewSimMedium returns an empty medium with no links and no listeners. Use
// AddLink to build the visibility graph before nodes start sending.
func NewSimMedium(seed int64) *SimMedium {
	return &SimMedium{
		rng:       rand.New(rand.NewSource(seed)),
		links:     make(map[NodeID][]link),
		listeners: make(map[NodeID]map[Port]Receiver),
	}
}

// AddLink makes b visible to a with the given probability (0..1) that any
// individual datagram from a to b is dropped. Calling it again for the same
// (a, b) pair replaces that probability. Call twice with swapped arguments
// for a symmetric link.
func (m *SimMedium) AddLink(a, b NodeID, dropProbability float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.links[a] {
		if m.links[a][i].peer == b {
			m.links[a][i].drop = dropProbability
			return
		}
	}
	m.links[a] = append(m.links[a], link{peer: b, drop: dropProbability})
}

// AddSymmetricLink is a convenience for the common case of a bidirectional
// link with the same drop probability in both directions.
func (m *SimMedium) AddSymmetricLink(a, b NodeID, dropProbability float64) {
	m.AddLink(a, b, dropProbability)
	m.AddLink(b, a, dropProbability)
}

func (m *SimMedium) Open(self NodeID, port Port, recv Receiver) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listeners[self] == nil {
		m.listeners[self] = make(map[Port]Receiver)
	}
	m.listeners[self][port] = recv
	return nil
}

func (m *SimMedium) Close(self NodeID, port Port) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.listeners[self], port)
	return nil
}

func (m *SimMedium) Broadcast(self NodeID, port Port, payload []byte) error {
	m.mu.Lock()
	links := append([]link(nil), m.links[self]...)
	m.mu.Unlock()
	for _, l := range links {
		m.deliver(self, l, port, payload)
	}
	return nil
}

func (m *SimMedium) Unicast(self NodeID, port Port, dst NodeID, payload []byte) error {
	m.mu.Lock()
	var target *link
	for _, l := range m.links[self] {
		if l.peer == dst {
			target = &l
			break
		}
	}
	m.mu.Unlock()
	if target == nil {
		return nil
	}
	m.deliver(self, *target, port, payload)
	return nil
}

func (m *SimMedium) deliver(from NodeID, l link, port Port, payload []byte) {
	m.mu.Lock()
	if l.drop > 0 && m.rng.Float64() < l.drop {
		m.mu.Unlock()
		return
	}
	recv := m.listeners[l.peer][port]
	m.mu.Unlock()
	if recv == nil {
		return
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	recv.Receive(Datagram{From: from, Port: port, Payload: cp})
}
