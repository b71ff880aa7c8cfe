package btree

import (
	"strings"

	"github.com/fatih/color"
)

// style decides how the pieces of a rendered line look.
type style[K any] interface {
	connector(s string) string
	keys(n *Node[K]) string
}

type plainStyle[K any] struct{}

func (plainStyle[K]) connector(s string) string { return s }
func (plainStyle[K]) keys(n *Node[K]) string    { return formatKeys(n.keys) }

/*
render writes one line per node:
the last child of a parent is prefixed with "└─" and its subtree indented by two spaces,
every other child is prefixed with "├─" and its subtree indented by "| ".
*/
func render[K any](sb *strings.Builder, n *Node[K], indent string, last bool, st style[K]) {
	sb.WriteString(st.connector(indent))
	if last {
		sb.WriteString(st.connector("└─"))
		indent += "  "
	} else {
		sb.WriteString(st.connector("├─"))
		indent += "| "
	}
	sb.WriteString(st.keys(n))
	sb.WriteString("\n")

	for i, child := range n.children {
		render(sb, child, indent, i == len(n.children)-1, st)
	}
}

// Visualizer prints a colored version of the tree dump for terminals.
type Visualizer[K any] struct {
	Tree *Tree[K]
}

type colorStyle[K any] struct {
	branch   *color.Color
	internal *color.Color
	leaf     *color.Color
}

func (c colorStyle[K]) connector(s string) string {
	if s == "" {
		return s
	}
	return c.branch.Sprint(s)
}

func (c colorStyle[K]) keys(n *Node[K]) string {
	if n.leaf {
		return c.leaf.Sprint(formatKeys(n.keys))
	}
	return c.internal.Sprint(formatKeys(n.keys))
}

// Visualize renders internal nodes in cyan and leaves in green.
// With color.NoColor set the output equals Tree.String().
func (v *Visualizer[K]) Visualize() string {
	st := colorStyle[K]{
		branch:   color.New(color.Faint),
		internal: color.New(color.FgCyan, color.Bold),
		leaf:     color.New(color.FgGreen),
	}
	var sb strings.Builder
	render(&sb, v.Tree.root, "", true, st)
	return sb.String()
}
