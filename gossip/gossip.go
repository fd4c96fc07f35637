// Package gossip implements the neighborhood gossip protocol: each node
// periodically broadcasts a public record and keeps a table of the most
// recent record received from every neighbor, evicting entries that have
// not been refreshed within a maximum age. It is a direct port of
// public_variable_neighborhood.h's PVN, restructured as an owned Go value
// instead of a global linked list threaded through a port-keyed callback.
package gossip

import (
	"encoding"
	"log"
	"sync"
	"time"

	"github.com/c12s/mlsttree/radio"
)

// Neighbor is one entry of the neighborhood table: the most recently heard
// record from a given node, plus when it was heard.
type Neighbor struct {
	ID        radio.NodeID
	Timestamp time.Time
	Record    []byte
}

// Callbacks are invoked on the changes PVN_callbacks notified about: a
// previously unseen neighbor, a changed record from a known neighbor, or a
// neighbor whose entry aged out.
type Callbacks struct {
	OnNew    func(n Neighbor)
	OnChange func(n Neighbor)
	OnDelete func(n Neighbor)
}

// ChangePredicate decides whether a newly received record counts as a
// change worth firing OnChange for, the way pvn_set_comparison_function
// lets a caller ignore fields like sequence numbers that always differ.
// The default, used when no predicate is set, is a byte-for-byte compare.
type ChangePredicate func(old, new []byte) bool

// Instance is one running neighborhood gossip protocol, bound to a single
// radio port. A node that needs more than one neighborhood (for example
// NG for MLST state and a second one for something unrelated) runs one
// Instance per port, sharing a radio.Demux.
type Instance struct {
	demux    *radio.Demux
	port     radio.Port
	self     radio.NodeID
	variable encoding.BinaryMarshaler
	maxAge   time.Duration
	cmp      ChangePredicate
	logger   *log.Logger

	mu       sync.Mutex
	nbrs     map[radio.NodeID]*Neighbor
	online   bool
	callbacks Callbacks
}

// New creates an Instance for self, broadcasting and listening on port.
// variable is marshaled fresh on every Broadcast call, so its contents can
// change between calls (this is the own public variable the caller
// maintains and re-broadcasts each period, exactly like
// own_mlst_public_variable). maxAge is how long an entry survives without
// a refresh before RemoveStale evicts it.
func New(self radio.NodeID, demux *radio.Demux, port radio.Port, variable encoding.BinaryMarshaler, maxAge time.Duration, logger *log.Logger) *Instance {
	inst := &Instance{
		demux:    demux,
		port:     port,
		self:     self,
		variable: variable,
		maxAge:   maxAge,
		logger:   logger,
		nbrs:     make(map[radio.NodeID]*Neighbor),
	}
	inst.SetOnline(true)
	return inst
}

// SetComparisonFunction installs a non-default ChangePredicate.
func (i *Instance) SetComparisonFunction(cmp ChangePredicate) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.cmp = cmp
}

// SetCallbacks installs the new/change/delete observer callbacks.
func (i *Instance) SetCallbacks(cb Callbacks) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.callbacks = cb
}

// IsOnline reports whether the instance's port is currently open.
func (i *Instance) IsOnline() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.online
}

// SetOnline opens or closes the underlying port, mirroring
// pvn_set_online/pvn_set_offline.
func (i *Instance) SetOnline(online bool) {
	i.mu.Lock()
	already := i.online
	i.mu.Unlock()
	if online == already {
		return
	}
	if online {
		i.demux.Register(i.port, radio.ReceiverFunc(i.receive))
	} else {
		i.demux.Unregister(i.port)
	}
	i.mu.Lock()
	i.online = online
	i.mu.Unlock()
}

// Broadcast sends the current value of the owned variable to every
// neighbor in range, mirroring pvn_broadcast's temporary-open-if-closed
// behavior so a node can still announce itself once right before going
// permanently offline.
func (i *Instance) Broadcast() error {
	i.mu.Lock()
	wasOffline := !i.online
	i.mu.Unlock()
	if wasOffline {
		i.demux.Register(i.port, radio.ReceiverFunc(i.receive))
	}

	payload, err := i.variable.MarshalBinary()
	if err == nil {
		err = i.demux.Broadcast(i.port, payload)
	}

	if wasOffline {
		i.demux.Unregister(i.port)
	}
	if err != nil && i.logger != nil {
		i.logger.Printf("gossip: broadcast failed: %v", err)
	}
	return err
}

// receive implements on_new_neighbor_information: find-or-create the
// neighbor entry, then either fire OnNew (first record ever seen from this
// id) or compare against the stored record and fire OnChange if it
// differs, before overwriting the stored record.
func (i *Instance) receive(d radio.Datagram) {
	i.mu.Lock()
	nbr, existed := i.nbrs[d.From]
	if !existed {
		nbr = &Neighbor{ID: d.From}
		i.nbrs[d.From] = nbr
	}
	nbr.Timestamp = time.Now()

	var fireNew, fireChange bool
	var snapshot Neighbor
	if nbr.Record == nil {
		nbr.Record = append([]byte(nil), d.Payload...)
		fireNew = true
	} else {
		if i.changed(nbr.Record, d.Payload) {
			fireChange = true
		}
		nbr.Record = append([]byte(nil), d.Payload...)
	}
	snapshot = *nbr
	cb := i.callbacks
	i.mu.Unlock()

	if fireNew && cb.OnNew != nil {
		cb.OnNew(snapshot)
	} else if fireChange && cb.OnChange != nil {
		cb.OnChange(snapshot)
	}
}

func (i *Instance) changed(old, new []byte) bool {
	if i.cmp != nil {
		return i.cmp(old, new)
	}
	if len(old) != len(new) {
		return true
	}
	for idx := range old {
		if old[idx] != new[idx] {
			return true
		}
	}
	return false
}

// RemoveStale evicts every neighbor whose entry has not been refreshed
// within maxAge, firing OnDelete for each, mirroring
// pvn_remove_old_neighbor_information. Call this once per period before
// consulting Neighbors.
func (i *Instance) RemoveStale() {
	cutoff := time.Now().Add(-i.maxAge)
	i.mu.Lock()
	var deleted []Neighbor
	for id, nbr := range i.nbrs {
		if nbr.Timestamp.Before(cutoff) {
			deleted = append(deleted, *nbr)
			delete(i.nbrs, id)
		}
	}
	cb := i.callbacks
	i.mu.Unlock()

	if cb.OnDelete != nil {
		for _, nbr := range deleted {
			cb.OnDelete(nbr)
		}
	}
}

// Neighbors returns a snapshot of the current neighborhood table.
func (i *Instance) Neighbors() []Neighbor {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]Neighbor, 0, len(i.nbrs))
	for _, nbr := range i.nbrs {
		out = append(out, *nbr)
	}
	return out
}

// Size returns the current neighborhood size.
func (i *Instance) Size() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.nbrs)
}

// PrintState logs neighbor ids and ages for debugging, mirroring
// pvn_print_state.
func (i *Instance) PrintState() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.logger == nil {
		return
	}
	state := "online"
	if !i.online {
		state = "offline"
	}
	i.logger.Printf("gossip: size=%d %s", len(i.nbrs), state)
	for _, nbr := range i.nbrs {
		i.logger.Printf("gossip:   [id=%s] age=%s", nbr.ID, time.Since(nbr.Timestamp))
	}
}
