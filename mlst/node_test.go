package mlst

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/c12s/mlsttree/radio"
	"github.com/c12s/mlsttree/tree"
)

// fleet is a small set of mlst.Node instances sharing one radio.SimMedium,
// used to assert the literal convergence scenarios from spec.md.
type fleet struct {
	medium *radio.SimMedium
	nodes  map[radio.NodeID]*Node
}

func newFleet() *fleet {
	return &fleet{medium: radio.NewSimMedium(1), nodes: make(map[radio.NodeID]*Node)}
}

func (f *fleet) add(t *testing.T, id radio.NodeID, isRoot bool) *Node {
	t.Helper()
	demux := radio.NewDemux(id, f.medium)
	n := New(Config{
		Self:              id,
		IsRoot:            isRoot,
		Variant:           tree.VariantBase,
		MaxNeighborAge:    5 * time.Second,
		Period:            30 * time.Millisecond,
		StayActivePeriods: 3,
		MaxParentAge:      5 * time.Second,
		UnicastTimeout:    50 * time.Millisecond,
		UnicastMaxTries:   5,
	}, demux, nil)
	f.nodes[id] = n
	n.Start()
	t.Cleanup(n.Stop)
	return n
}

func (f *fleet) link(a, b radio.NodeID) {
	f.medium.AddSymmetricLink(a, b, 0)
}

const (
	rootID radio.NodeID = 1
	aID    radio.NodeID = 2
	bID    radio.NodeID = 3
	cID    radio.NodeID = 4
	dID    radio.NodeID = 5
)

// buildLinearChain wires R-A-B-C-D as a line where only consecutive pairs
// can hear each other, matching scenario 1.
func buildLinearChain(t *testing.T) *fleet {
	t.Helper()
	f := newFleet()
	f.add(t, rootID, true)
	f.add(t, aID, false)
	f.add(t, bID, false)
	f.add(t, cID, false)
	f.add(t, dID, false)
	f.link(rootID, aID)
	f.link(aID, bID)
	f.link(bID, cID)
	f.link(cID, dID)
	return f
}

func TestScenario1_LinearChainConverges(t *testing.T) {
	f := buildLinearChain(t)

	assert.Eventually(t, func() bool {
		return f.nodes[aID].Parent() == rootID &&
			f.nodes[bID].Parent() == aID &&
			f.nodes[cID].Parent() == bID &&
			f.nodes[dID].Parent() == cID
	}, 5*time.Second, 20*time.Millisecond)

	assert.True(t, f.nodes[dID].IsLeaf())
	assert.False(t, f.nodes[aID].IsLeaf())
	assert.False(t, f.nodes[bID].IsLeaf())
	assert.False(t, f.nodes[cID].IsLeaf())
}

func TestScenario2_StarConverges(t *testing.T) {
	f := newFleet()
	f.add(t, rootID, true)
	leaves := []radio.NodeID{2, 3, 4, 5, 6}
	for _, id := range leaves {
		f.add(t, id, false)
		f.link(rootID, id)
	}
	// every leaf can also hear every other leaf, as scenario 2 specifies.
	for i := 0; i < len(leaves); i++ {
		for j := i + 1; j < len(leaves); j++ {
			f.link(leaves[i], leaves[j])
		}
	}

	assert.Eventually(t, func() bool {
		for _, id := range leaves {
			if f.nodes[id].Parent() != rootID {
				return false
			}
		}
		return true
	}, 5*time.Second, 20*time.Millisecond)

	for _, id := range leaves {
		assert.True(t, f.nodes[id].IsLeaf())
		assert.Equal(t, uint8(0), f.nodes[id].ChildrenCount())
	}
}

func TestScenario3_TiedCandidatesSplitByChildrenThenID(t *testing.T) {
	f := newFleet()
	f.add(t, rootID, true)
	p1 := f.add(t, 2, false)
	p2 := f.add(t, 3, false)
	children := []radio.NodeID{4, 5, 6}
	for _, id := range children {
		f.add(t, id, false)
	}

	f.link(rootID, 2)
	f.link(rootID, 3)
	for _, id := range children {
		f.link(2, id)
		f.link(3, id)
	}

	assert.Eventually(t, func() bool {
		return p1.Parent() == rootID && p2.Parent() == rootID
	}, 5*time.Second, 20*time.Millisecond)

	assert.Eventually(t, func() bool {
		for _, id := range children {
			if f.nodes[id].IsUndefined() {
				return false
			}
		}
		return true
	}, 5*time.Second, 20*time.Millisecond)

	// All three children must agree on the same chosen parent, and the
	// loser ends up with zero children (a leaf).
	chosen := f.nodes[children[0]].Parent()
	assert.Contains(t, []radio.NodeID{2, 3}, chosen)
	for _, id := range children {
		assert.Equal(t, chosen, f.nodes[id].Parent())
	}
	var winner, loser *Node
	if chosen == 2 {
		winner, loser = p1, p2
	} else {
		winner, loser = p2, p1
	}
	assert.Eventually(t, func() bool { return winner.ChildrenCount() == 3 }, 5*time.Second, 20*time.Millisecond)
	assert.True(t, loser.IsLeaf())
}

func TestExportDOT_ReflectsConvergedChainEdges(t *testing.T) {
	f := buildLinearChain(t)
	assert.Eventually(t, func() bool {
		return f.nodes[aID].Parent() == rootID &&
			f.nodes[bID].Parent() == aID &&
			f.nodes[cID].Parent() == bID &&
			f.nodes[dID].Parent() == cID
	}, 5*time.Second, 20*time.Millisecond)

	nodes := []*Node{f.nodes[rootID], f.nodes[aID], f.nodes[bID], f.nodes[cID], f.nodes[dID]}
	var buf bytes.Buffer
	assert.NoError(t, ExportDOT(nodes, &buf))
	out := buf.String()

	for _, id := range []radio.NodeID{rootID, aID, bID, cID, dID} {
		assert.Contains(t, out, id.String(), "every node should appear as a vertex")
	}

	var edge bytes.Buffer
	assert.NoError(t, f.nodes[dID].ExportDOT(&edge))
	assert.Contains(t, edge.String(), cID.String())
	assert.Contains(t, edge.String(), dID.String())
}

func TestScenario5_MessageDeliveryAlongConvergedChain(t *testing.T) {
	f := buildLinearChain(t)
	assert.Eventually(t, func() bool {
		return f.nodes[aID].Parent() == rootID &&
			f.nodes[bID].Parent() == aID &&
			f.nodes[cID].Parent() == bID &&
			f.nodes[dID].Parent() == cID
	}, 5*time.Second, 20*time.Millisecond)

	var mu sync.Mutex
	var payloads [][]byte
	f.nodes[rootID].SetRootReceiveCallback(func(from radio.NodeID, payload []byte) {
		mu.Lock()
		payloads = append(payloads, payload)
		mu.Unlock()
	})

	f.nodes[dID].Send([]byte("hi"))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(payloads) == 1 && string(payloads[0]) == "hi"
	}, 5*time.Second, 20*time.Millisecond)
}
