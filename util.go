package merk

import (
	"fmt"
	"io"
	"strings"
)

// PrintTree writes the resident part of the tree rooted at node to w, right
// subtree first, one node per line.
func PrintTree(w io.Writer, node *Node) {
	printNode(w, node, 0)
}

func printNode(w io.Writer, node *Node, indent int) {
	indentPrefix := strings.Repeat("    ", indent)

	if node == nil {
		fmt.Fprintf(w, "%s<nil>\n", indentPrefix)
		return
	}

	printLink(w, node.right, indent+1)
	fmt.Fprintf(w, "%s%X = %X (h=%d", indentPrefix, node.key, node.value, node.height)
	if node.modified {
		fmt.Fprint(w, " modified")
	}
	fmt.Fprintln(w, ")")
	printLink(w, node.left, indent+1)
}

func printLink(w io.Writer, l *Link, indent int) {
	switch {
	case l == nil:
	case l.IsPruned():
		fmt.Fprintf(w, "%sPRUNED %X #%s\n", strings.Repeat("    ", indent), l.key, l.hash)
	default:
		printNode(w, l.node, indent)
	}
}
