package merk

import (
	"fmt"

	"github.com/emicklei/dot"
)

// WriteDOTGraph renders the resident part of the tree rooted at node as a
// Graphviz graph. Pruned children are drawn as dashed boxes. Nodes and edges
// that are not in lastGraph, or that are modified, are colored red, so
// rendering successive trees shows what each batch touched. lastGraph may be
// nil.
func WriteDOTGraph(node *Node, lastGraph *dot.Graph) *dot.Graph {
	graph := dot.NewGraph(dot.Directed)
	if lastGraph == nil {
		lastGraph = dot.NewGraph(dot.Directed)
	}

	var traverse func(node *Node) dot.Node
	traverse = func(node *Node) dot.Node {
		id := dotID(node.key, node.hash)
		n := graph.Node(id).Label(fmt.Sprintf("%X - %d", node.key, node.height))
		if _, found := lastGraph.FindNodeById(id); !found || node.modified {
			n.Attr("color", "red")
		}

		for _, left := range [2]bool{true, false} {
			l := node.Link(left)
			if l == nil {
				continue
			}
			var child dot.Node
			if l.IsPruned() {
				child = graph.Node(dotID(l.key, l.hash)).
					Label(fmt.Sprintf("%X - %d", l.key, l.height)).
					Attr("shape", "box").
					Attr("style", "dashed")
			} else {
				child = traverse(l.node)
			}
			edge := n.Edge(child, sideName(left)[:1])
			if edges := lastGraph.FindEdges(n, child); len(edges) == 0 {
				edge.Attr("color", "red")
			}
		}
		return n
	}

	if node != nil {
		traverse(node)
	}
	return graph
}

// A node's graph id changes whenever its hash does.
func dotID(key []byte, hash Hash) string {
	return fmt.Sprintf("%X-%s", key, hash.String()[:8])
}
