package tree

import (
	"fmt"
	"io"
	"strings"
)

const (
	symConn = "├── "
	symLast = "└── "
	symPipe = "│   "
	symNone = "    "
)

// Printer writes a [Node] and its descendants to an io.Writer.
type Printer struct {
	w io.Writer
}

// NewPrinter returns a printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Print writes the tree rooted at n, one node per line.
func (p *Printer) Print(n *Node) {
	p.line("", n)
	p.descendants(n, "")
}

func (p *Printer) print(n *Node, prefix string, last bool) {
	conn, next := symConn, symPipe
	if last {
		conn, next = symLast, symNone
	}
	p.line(prefix+conn, n)
	p.descendants(n, prefix+next)
}

func (p *Printer) descendants(n *Node, prefix string) {
	commentPrefix := prefix + symNone
	if len(n.Children) > 0 {
		commentPrefix = prefix + symPipe
	}
	for i, c := range n.Comments {
		p.print(c, commentPrefix, i == len(n.Comments)-1)
	}
	for i, c := range n.Children {
		p.print(c, prefix, i == len(n.Children)-1)
	}
}

func (p *Printer) line(prefix string, n *Node) {
	var sb strings.Builder
	sb.WriteString(prefix)
	sb.WriteString(n.Name)
	for _, prop := range n.Properties {
		sb.WriteByte(' ')
		sb.WriteString(prop.Key)
		sb.WriteByte('=')
		if prop.IsMultiValue {
			sb.WriteByte('(')
		}
		for i, v := range prop.Values {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprint(&sb, v)
		}
		if prop.IsMultiValue {
			sb.WriteByte(')')
		}
	}
	sb.WriteByte('\n')
	_, _ = io.WriteString(p.w, sb.String())
}
