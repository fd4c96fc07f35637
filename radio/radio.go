// Package radio models the out-of-scope collaborator every subsystem in
// this module sits on top of: a wireless broadcast/unicast link keyed by a
// 16-bit node identifier and a small integer port. Nothing in this package
// implements the gossip, tree, or reliable-unicast algorithms themselves —
// it only gives those packages a Medium to open ports on and a Demux to
// share one Medium between several listeners.
package radio

import (
	"fmt"
	"slices"
	"sync"
)

// NodeID identifies a node on the medium. 0 is reserved and never assigned
// to a real node; it is used as the "undefined" sentinel by package tree.
type NodeID uint16

func (id NodeID) String() string { return fmt.Sprintf("%d", uint16(id)) }

// Port is the small integer that demultiplexes datagrams on a Medium, the
// way MLST_PVN_PORT/MESSAGING_PORT/ACKNOWLEDGEMENT_PORT do in the original.
type Port uint16

// Datagram is one unit handed to a Receiver: the payload plus the sender's
// identity, the way a broadcast or unicast callback receives packetbuf
// contents alongside a linkaddr_t.
type Datagram struct {
	From    NodeID
	Port    Port
	Payload []byte
}

// Receiver is handed every Datagram arriving on the port it was registered
// for.
type Receiver interface {
	Receive(d Datagram)
}

// ReceiverFunc adapts a function to a Receiver.
type ReceiverFunc func(d Datagram)

func (f ReceiverFunc) Receive(d Datagram) { f(d) }

// Medium is the out-of-scope radio link. Open/Close model switching a
// port's networking on and off (pvn_set_online/offline, unicast_open/close
// in the original); Broadcast and Unicast model packetbuf_copyfrom +
// broadcast_send/unicast_send.
type Medium interface {
	// Open starts delivering datagrams addressed to port to recv.
	Open(self NodeID, port Port, recv Receiver) error
	// Close stops delivering datagrams addressed to port for self.
	Close(self NodeID, port Port) error
	// Broadcast sends payload on port to every node the medium considers
	// in range of self.
	Broadcast(self NodeID, port Port, payload []byte) error
	// Unicast sends payload on port to a single destination node.
	Unicast(self NodeID, port Port, dst NodeID, payload []byte) error
}

// Demux lets several listeners on one node share one Medium by routing
// strictly on the port number, the way the original's
// list_of_all_public_variable_neighborhoods walks every open PVN and
// matches on &(tmp->broadcast) == c. Unlike that linked list, Demux
// enforces that a port is never claimed twice.
type Demux struct {
	medium Medium
	self   NodeID

	mu   sync.Mutex
	open map[Port]Receiver
}

// NewDemux returns a Demux that dispatches for self over medium. The
// returned Demux does not open anything until Register is called.
func NewDemux(self NodeID, medium Medium) *Demux {
	return &Demux{
		medium: medium,
		self:   self,
		open:   make(map[Port]Receiver),
	}
}

// Register opens port on the underlying medium and routes every datagram
// arriving on it to recv. It panics if port is already registered, since a
// single port must never host two listeners simultaneously.
func (d *Demux) Register(port Port, recv Receiver) error {
	d.mu.Lock()
	if _, exists := d.open[port]; exists {
		d.mu.Unlock()
		panic(fmt.Sprintf("radio: port %d already registered", port))
	}
	d.open[port] = recv
	d.mu.Unlock()
	return d.medium.Open(d.self, port, ReceiverFunc(func(dg Datagram) {
		d.mu.Lock()
		r, ok := d.open[port]
		d.mu.Unlock()
		if ok {
			r.Receive(dg)
		}
	}))
}

// Unregister closes port and removes its route.
func (d *Demux) Unregister(port Port) error {
	d.mu.Lock()
	_, ok := d.open[port]
	delete(d.open, port)
	d.mu.Unlock()
	if !ok {
		return nil
	}
	return d.medium.Close(d.self, port)
}

// Broadcast sends payload on port through the underlying medium.
func (d *Demux) Broadcast(port Port, payload []byte) error {
	return d.medium.Broadcast(d.self, port, payload)
}

// Unicast sends payload on port to dst through the underlying medium.
func (d *Demux) Unicast(port Port, dst NodeID, payload []byte) error {
	return d.medium.Unicast(d.self, port, dst, payload)
}

// OpenPorts returns the ports currently registered, sorted, for use by
// diagnostic printers.
func (d *Demux) OpenPorts() []Port {
	d.mu.Lock()
	ports := mapKeys(d.open)
	d.mu.Unlock()
	slices.Sort(ports)
	return ports
}
