package radio

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"
)

// UDPMedium is a real Medium backed by net.ListenUDP, grounded on the raw
// socket server-loop idiom (net.ListenPacket + ReadFrom) rather than
// anything TCP/peer-sampling shaped. Node identity is mapped to a UDP
// address through a static table supplied at construction, since the
// 16-bit NodeID space this module uses has no relation to IP addressing.
//
// One UDPMedium only ever listens on a single local address; ports in the
// radio.Port sense are multiplexed on top of that single socket by
// prefixing every datagram with the two-byte big-endian port and the
// two-byte big-endian sender id, since a real UDP socket only has one
// local port of its own.
type UDPMedium struct {
	table map[NodeID]*net.UDPAddr

	mu       sync.Mutex
	conns    map[NodeID]*net.UDPConn
	self     NodeID
	listen   map[Port]Receiver
	closed   bool
}

// NewUDPMedium returns a medium that resolves NodeID to the given address
// table. The table's entry for self is the local address it binds.
func NewUDPMedium(self NodeID, table map[NodeID]*net.UDPAddr) (*UDPMedium, error) {
	addr, ok := table[self]
	if !ok {
		return nil, fmt.Errorf("radio: no listen address configured for node %s", self)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("radio: listen %s: %w", addr, err)
	}
	m := &UDPMedium{
		table:  table,
		conns:  map[NodeID]*net.UDPConn{self: conn},
		self:   self,
		listen: make(map[Port]Receiver),
	}
	go m.readLoop(conn)
	return m, nil
}

func (m *UDPMedium) readLoop(conn *net.UDPConn) {
	buf := make([]byte, 2048)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		if n < 4 {
			continue
		}
		port := Port(binary.BigEndian.Uint16(buf[0:2]))
		from := NodeID(binary.BigEndian.Uint16(buf[2:4]))
		payload := make([]byte, n-4)
		copy(payload, buf[4:n])

		m.mu.Lock()
		recv, ok := m.listen[port]
		closed := m.closed
		m.mu.Unlock()
		if closed {
			return
		}
		if ok {
			recv.Receive(Datagram{From: from, Port: port, Payload: payload})
		}
	}
}

func (m *UDPMedium) Open(self NodeID, port Port, recv Receiver) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listen[port] = recv
	return nil
}

func (m *UDPMedium) Close(self NodeID, port Port) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.listen, port)
	return nil
}

func (m *UDPMedium) Broadcast(self NodeID, port Port, payload []byte) error {
	for dst := range m.table {
		if dst == self {
			continue
		}
		if err := m.Unicast(self, port, dst, payload); err != nil {
			return err
		}
	}
	return nil
}

func (m *UDPMedium) Unicast(self NodeID, port Port, dst NodeID, payload []byte) error {
	addr, ok := m.table[dst]
	if !ok {
		return fmt.Errorf("radio: no address for node %s", dst)
	}
	conn := m.conns[self]
	if conn == nil {
		return fmt.Errorf("radio: node %s is not the local socket owner", self)
	}
	frame := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint16(frame[0:2], uint16(port))
	binary.BigEndian.PutUint16(frame[2:4], uint16(self))
	copy(frame[4:], payload)
	_, err := conn.WriteToUDP(frame, addr)
	return err
}

// CloseMedium shuts down the underlying socket.
func (m *UDPMedium) CloseMedium() error {
	m.mu.Lock()
	m.closed = true
	conn := m.conns[m.self]
	m.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}
