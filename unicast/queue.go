package unicast

import "github.com/c12s/mlsttree/radio"

// queueEntry is one message waiting to be sent (or currently in flight) to
// the parent, mirroring struct RSUnicastQueueElement. tries counts the
// attempts made so far; the element is discarded once tries exceeds
// maxTries.
type queueEntry struct {
	seqNo   uint8
	payload []byte
	tries   int
}

// historyEntry records the last sequence number seen from one sender, for
// duplicate detection on the receive side.
type historyEntry struct {
	from  radio.NodeID
	seqNo uint8
}

// history is a bounded, per-sender duplicate filter, a slice-backed port
// of rsu_history_list. Only the most recent sequence number per sender is
// kept: add evicts every existing entry for the sender before inserting
// the new one, so a sender can never end up with two entries. When the
// total size exceeds the configured capacity, the oldest entry (the one
// at the front, regardless of which sender it belongs to) is dropped.
type history struct {
	entries  []historyEntry
	capacity int
}

func newHistory(capacity int) *history {
	return &history{capacity: capacity}
}

// check reports whether (from, seqNo) matches the most recently recorded
// sequence number for from — i.e. whether this is a duplicate delivery,
// most likely caused by our ACK being lost after we already delivered it.
func (h *history) check(from radio.NodeID, seqNo uint8) bool {
	for _, e := range h.entries {
		if e.from == from && e.seqNo == seqNo {
			return true
		}
	}
	return false
}

// add records (from, seqNo), evicting any existing entry for from first so
// each sender occupies at most one slot, then trims from the front if the
// history has grown past capacity.
func (h *history) add(from radio.NodeID, seqNo uint8) {
	kept := h.entries[:0]
	for _, e := range h.entries {
		if e.from != from {
			kept = append(kept, e)
		}
	}
	h.entries = append(kept, historyEntry{from: from, seqNo: seqNo})
	for len(h.entries) > h.capacity {
		h.entries = h.entries[1:]
	}
}
