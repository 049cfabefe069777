package tree

import (
	"fmt"
	"io"
	"strings"
)

const (
	symPrefix = "│   "
	symIndent = "    "
	symConn   = "├── "
	symLast   = "└── "
)

// Printer writes a [Node] and its descendants to an underlying writer.
type Printer struct {
	w io.Writer
}

// NewPrinter creates a new Printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Print writes the tree rooted at root.
func (p *Printer) Print(root *Node) {
	p.printNode(root, "", "")
}

func (p *Printer) printNode(n *Node, linePrefix, childPrefix string) {
	fmt.Fprintf(p.w, "%s%s\n", linePrefix, formatNode(n))

	for i, child := range n.Children {
		if i == len(n.Children)-1 {
			p.printNode(child, childPrefix+symLast, childPrefix+symIndent)
		} else {
			p.printNode(child, childPrefix+symConn, childPrefix+symPrefix)
		}
	}
}

func formatNode(n *Node) string {
	var sb strings.Builder
	sb.WriteString(n.Name)
	for _, prop := range n.Properties {
		sb.WriteByte(' ')
		sb.WriteString(formatProperty(prop))
	}
	return sb.String()
}

func formatProperty(p Property) string {
	if !p.IsMultiValue {
		if len(p.Values) == 0 {
			return p.Key + "="
		}
		return fmt.Sprintf("%s=%v", p.Key, p.Values[0])
	}

	values := make([]string, len(p.Values))
	for i, v := range p.Values {
		values[i] = fmt.Sprint(v)
	}
	return fmt.Sprintf("%s=(%s)", p.Key, strings.Join(values, ", "))
}

// Sprint renders the tree rooted at root as a string.
func Sprint(root *Node) string {
	var sb strings.Builder
	NewPrinter(&sb).Print(root)
	return sb.String()
}
