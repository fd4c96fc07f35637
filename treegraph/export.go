// Package treegraph renders a snapshot of the spanning tree across many
// mlst.Node instances to Graphviz DOT, for inspecting convergence. It
// promotes the teacher's plumtree_test.go drawTrees helper, which built a
// dominikbraun/graph from a fleet of in-process Plumtree instances purely
// for a test's own visualization, into a first-class export usable from
// any caller (tests, a CLI, an example program).
package treegraph

import (
	"io"

	"github.com/dominikbraun/graph"
	"github.com/dominikbraun/graph/draw"

	"github.com/c12s/mlsttree/radio"
)

// Edge is one parent-to-child relationship observed in a tree snapshot.
type Edge struct {
	Parent radio.NodeID
	Child  radio.NodeID
}

// NodeView is the minimum a caller must report about one node to have it
// included in the graph, even if it currently has no parent (the root, or
// a node still undefined).
type NodeView struct {
	ID     radio.NodeID
	Parent radio.NodeID // 0 if root or undefined
}

// Build constructs a directed graph of the tree from a snapshot of every
// node's currently elected parent, with an edge from parent to child for
// every node that has one. A parent that is not itself in nodes is added
// as a vertex so that its edge is still drawn.
func Build(nodes []NodeView) graph.Graph[string, string] {
	g := graph.New(graph.StringHash, graph.Directed())
	for _, n := range nodes {
		_ = g.AddVertex(n.ID.String())
	}
	for _, n := range nodes {
		if n.Parent == 0 {
			continue
		}
		_ = g.AddVertex(n.Parent.String())
		_ = g.AddEdge(n.Parent.String(), n.ID.String())
	}
	return g
}

// WriteDOT renders nodes' current tree shape as Graphviz DOT to w,
// mirroring the teacher's drawTrees, which wrote one .gv file per tree id
// via draw.DOT before shelling out to `dot` to render an SVG. Running
// Graphviz itself is left to the caller.
func WriteDOT(nodes []NodeView, w io.Writer) error {
	return draw.DOT(Build(nodes), w)
}
