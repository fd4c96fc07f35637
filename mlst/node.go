// Package mlst wires package gossip, package tree, and package unicast
// together into the single public object a program embeds: one Node per
// physical radio. It plays the role plumtree.go's Plumtree does in the
// teacher repo — owning the moving parts, exposing a small public API, and
// keeping the wiring between them (here: keeping the reliable-unicast
// layer's parent and sleep state in sync with whatever the tree controller
// elects) out of the caller's hands.
package mlst

import (
	"io"
	"log"
	"time"

	"github.com/c12s/mlsttree/radio"
	"github.com/c12s/mlsttree/tree"
	"github.com/c12s/mlsttree/treegraph"
	"github.com/c12s/mlsttree/unicast"
)

// Config configures a Node. IsRoot and Self apply to every subsystem;
// Variant/EnergyState select the tree election heuristic; the remaining
// fields are forwarded to tree.Config (MaxNeighborAge through
// MaxParentAge) and unicast.Config (UnicastTimeout, UnicastMaxTries), with
// those packages' own zero-value defaults applying when left unset.
type Config struct {
	Self        radio.NodeID
	IsRoot      bool
	Variant     tree.Variant
	EnergyState uint8

	MaxNeighborAge    time.Duration
	Period            time.Duration
	StayActivePeriods int
	MaxParentAge      time.Duration

	UnicastTimeout  time.Duration
	UnicastMaxTries int
}

// Node is one running instance of the self-stabilizing maximum-leaf
// spanning tree protocol, combining neighborhood gossip (package gossip),
// parent election (package tree), and reliable delivery to the root
// (package unicast) over a single shared radio.Demux.
type Node struct {
	cfg     Config
	demux   *radio.Demux
	tree    *tree.Controller
	unicast *unicast.Controller
	logger  *log.Logger
}

// New constructs a Node bound to demux, wiring the tree controller's
// elected parent straight into the unicast layer's SetParent on every
// tick, mirroring mlst_network_example's call to rsunicast_setparent
// immediately after mlst_recalculate. It does not start the periodic
// tick loop; call Start for that.
func New(cfg Config, demux *radio.Demux, logger *log.Logger) *Node {
	n := &Node{
		cfg:    cfg,
		demux:  demux,
		logger: logger,
	}

	n.unicast = unicast.New(unicast.Config{
		Self:     cfg.Self,
		IsRoot:   cfg.IsRoot,
		Timeout:  cfg.UnicastTimeout,
		MaxTries: cfg.UnicastMaxTries,
	}, demux, logger)

	n.tree = tree.New(tree.Config{
		Self:              cfg.Self,
		IsRoot:            cfg.IsRoot,
		Variant:           cfg.Variant,
		EnergyState:       cfg.EnergyState,
		MaxNeighborAge:    cfg.MaxNeighborAge,
		Period:            cfg.Period,
		StayActivePeriods: cfg.StayActivePeriods,
		MaxParentAge:      cfg.MaxParentAge,
	}, demux, n.unicast, logger)
	n.tree.SetOnParentChange(n.unicast.SetParent)

	return n
}

// Start begins the tree controller's periodic tick loop. The unicast
// layer needs no separate start: unicast.New already opened its ports.
func (n *Node) Start() {
	n.tree.Start()
}

// Stop halts the tick loop and takes the gossip port offline. The unicast
// layer's ports are left as they are.
func (n *Node) Stop() {
	n.tree.Stop()
}

// Send queues payload for reliable delivery to the root, hop by hop along
// the current spanning tree, mirroring rsunicast_send.
func (n *Node) Send(payload []byte) {
	n.unicast.Send(payload)
}

// SetRootReceiveCallback installs the callback invoked with every message
// that reaches this node acting as the root. It has no effect on a
// non-root Node.
func (n *Node) SetRootReceiveCallback(fn func(from radio.NodeID, payload []byte)) {
	n.unicast.SetRootReceiveCallback(fn)
}

// SetFailureCallback installs the callback invoked each time a send
// attempt of the front-of-queue message times out without being
// acknowledged.
func (n *Node) SetFailureCallback(fn func(parent radio.NodeID, tries int)) {
	n.unicast.SetFailureCallback(fn)
}

// IsUndefined reports whether this node has not yet determined its
// position in the tree.
func (n *Node) IsUndefined() bool { return n.tree.IsUndefined() }

// IsLeaf reports whether this node currently has no children.
func (n *Node) IsLeaf() bool { return n.tree.IsLeaf() }

// Parent returns this node's currently elected parent, or 0 if undefined.
func (n *Node) Parent() radio.NodeID { return n.tree.Parent() }

// ChildrenCount returns the number of neighbors currently listing this
// node as their parent.
func (n *Node) ChildrenCount() uint8 { return n.tree.ChildrenCount() }

// SetEnergyState updates the node's energy class for the EA1/EA2/EA3
// variants (1: high, 2: middle, 3: low). It has no effect under
// tree.VariantBase.
func (n *Node) SetEnergyState(s uint8) {
	n.cfg.EnergyState = s
	n.tree.SetEnergyState(s)
}

// QueueLength reports how many messages are currently queued (including
// one in flight) for delivery to the root.
func (n *Node) QueueLength() int { return n.unicast.QueueLength() }

// PrintState logs a summary of both subsystems' state for debugging.
func (n *Node) PrintState() {
	n.tree.PrintState()
	n.unicast.PrintState()
}

// View returns this node's current contribution to a tree topology
// snapshot: its own id and whichever parent it has elected, or 0 if it
// is undefined. Used by ExportDOT.
func (n *Node) View() treegraph.NodeView {
	return treegraph.NodeView{ID: n.cfg.Self, Parent: n.Parent()}
}

// ExportDOT renders this node's current edge to its parent as Graphviz
// DOT, so a single running process can dump its own placement in the
// tree for external inspection without needing every other node's state.
func (n *Node) ExportDOT(w io.Writer) error {
	return treegraph.WriteDOT([]treegraph.NodeView{n.View()}, w)
}

// ExportDOT renders the current tree shape of every node in nodes as
// Graphviz DOT, mirroring the teacher's drawTrees test helper but over
// whatever set of mlst.Node instances a caller actually holds in memory
// (a simulation harness running many nodes in one process, or a test).
func ExportDOT(nodes []*Node, w io.Writer) error {
	views := make([]treegraph.NodeView, len(nodes))
	for i, node := range nodes {
		views[i] = node.View()
	}
	return treegraph.WriteDOT(views, w)
}
