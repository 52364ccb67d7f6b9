package engine

import (
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/quadtree"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lrs-events/internal/model"
)

// indexedNode adapts a node for the quadtree.
type indexedNode struct {
	pos  int
	node *model.Node
}

func (n indexedNode) Point() orb.Point { return n.node.Point }

// nodeIndex is a quadtree over nodes answering "which nodes lie within d of
// this bound" queries.
type nodeIndex struct {
	qt  *quadtree.Quadtree
	buf []orb.Pointer
}

func newNodeIndex(nodes []model.Node) (*nodeIndex, error) {
	if len(nodes) == 0 {
		return &nodeIndex{}, nil
	}
	bound := nodes[0].Point.Bound()
	for i := range nodes[1:] {
		bound = bound.Extend(nodes[i+1].Point)
	}
	qt := quadtree.New(bound.Pad(1))
	for i := range nodes {
		if err := qt.Add(indexedNode{pos: i, node: &nodes[i]}); err != nil {
			return nil, eris.Wrapf(err, "engine: index node %d", nodes[i].ID)
		}
	}
	return &nodeIndex{qt: qt}, nil
}

// near returns the nodes inside b padded by d, in input order.
func (ix *nodeIndex) near(b orb.Bound, d float64) []indexedNode {
	if ix.qt == nil {
		return nil
	}
	ix.buf = ix.qt.InBound(ix.buf[:0], b.Pad(d))
	out := make([]indexedNode, len(ix.buf))
	for i, p := range ix.buf {
		out[i] = p.(indexedNode)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].pos < out[j].pos })
	return out
}
