package unicast

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/c12s/mlsttree/radio"
)

func TestHistory_AddEvictsPriorEntryForSameSender(t *testing.T) {
	h := newHistory(30)
	h.add(radio.NodeID(2), 1)
	h.add(radio.NodeID(2), 5)

	assert.False(t, h.check(radio.NodeID(2), 1), "the old sequence number for sender 2 must have been evicted")
	assert.True(t, h.check(radio.NodeID(2), 5))
	assert.Len(t, h.entries, 1)
}

func TestHistory_TrimsOldestPastCapacity(t *testing.T) {
	h := newHistory(2)
	h.add(radio.NodeID(1), 1)
	h.add(radio.NodeID(2), 1)
	h.add(radio.NodeID(3), 1)

	assert.Len(t, h.entries, 2)
	assert.False(t, h.check(radio.NodeID(1), 1), "the oldest entry should have been trimmed")
	assert.True(t, h.check(radio.NodeID(2), 1))
	assert.True(t, h.check(radio.NodeID(3), 1))
}

func TestHistory_DistinctSendersCoexist(t *testing.T) {
	h := newHistory(30)
	h.add(radio.NodeID(1), 9)
	h.add(radio.NodeID(2), 9)

	assert.True(t, h.check(radio.NodeID(1), 9))
	assert.True(t, h.check(radio.NodeID(2), 9))
}
