package doc

import (
	"strings"
)

// Document is the authoring tree of a post. Every mutation bumps Rev so
// selections captured against an older revision can be recognised as stale.
type Document struct {
	root *Node
	rev  uint64
}

// New returns a document holding one empty line.
func New() *Document {
	d := &Document{root: &Node{Kind: KindRoot}}
	d.root.Append(NewLine(NewText("")))
	return d
}

// FromBlocks builds a document from top-level blocks. Loose inline nodes are
// wrapped in lines.
func FromBlocks(blocks ...*Node) *Document {
	d := &Document{root: &Node{Kind: KindRoot}}
	var line *Node
	for _, b := range blocks {
		if b == nil {
			continue
		}
		if b.IsBlock() && b.Kind != KindRoot {
			line = nil
			d.root.Append(b)
			continue
		}
		if line == nil {
			line = NewLine()
			d.root.Append(line)
		}
		line.Append(b)
	}
	d.repair()
	return d
}

func (d *Document) Root() *Node {
	return d.root
}

// Rev is incremented on every mutation.
func (d *Document) Rev() uint64 {
	return d.rev
}

func (d *Document) touch() {
	d.rev++
}

// Contains reports whether n is attached to this document.
func (d *Document) Contains(n *Node) bool {
	if n == nil {
		return false
	}
	for p := n; p != nil; p = p.parent {
		if p == d.root {
			return true
		}
	}
	return false
}

// Leaves returns all text and atomic nodes in document order.
func (d *Document) Leaves() []*Node {
	return d.root.leaves()
}

// LeafBlocks returns all lines and list items in document order.
func (d *Document) LeafBlocks() []*Node {
	var out []*Node
	var visit func(*Node)
	visit = func(n *Node) {
		if n.IsLeafBlock() {
			out = append(out, n)
			return
		}
		for _, c := range n.children {
			if c.IsBlock() {
				visit(c)
			}
		}
	}
	visit(d.root)
	return out
}

// Text is the visible text, one line per leaf block.
func (d *Document) Text() string {
	var b strings.Builder
	for i, blk := range d.LeafBlocks() {
		if i > 0 {
			b.WriteByte('\n')
		}
		for _, l := range blk.leaves() {
			b.WriteString(l.Label())
		}
	}
	return b.String()
}

// IsEmpty reports whether the document has no visible content. Embeds and
// mentions count as content; whitespace does not.
func (d *Document) IsEmpty() bool {
	for _, l := range d.Leaves() {
		switch l.Kind {
		case KindEmbed, KindMention:
			return false
		case KindText:
			if strings.TrimSpace(l.Text) != "" {
				return false
			}
		}
	}
	return true
}

// Start is the first caret position of the document.
func (d *Document) Start() Position {
	for _, l := range d.Leaves() {
		if l.Kind == KindText {
			return Position{Node: l}
		}
	}
	d.repair()
	return d.Start()
}

// End is the last caret position of the document.
func (d *Document) End() Position {
	ls := d.Leaves()
	for i := len(ls) - 1; i >= 0; i-- {
		if ls[i].Kind == KindText {
			return Position{Node: ls[i], Offset: ls[i].runeLen()}
		}
	}
	d.repair()
	return d.End()
}

// repair drops empty containers and guarantees every leaf block holds a text
// node, so a caret can be placed anywhere.
func (d *Document) repair() {
	var visit func(n *Node)
	visit = func(n *Node) {
		for i := len(n.children) - 1; i >= 0; i-- {
			c := n.children[i]
			if c.IsLeaf() {
				continue
			}
			visit(c)
			if len(c.children) == 0 {
				n.remove(c)
			}
		}
	}
	visit(d.root)
	if len(d.root.children) == 0 {
		d.root.Append(NewLine())
	}
	for _, blk := range d.LeafBlocks() {
		if !blk.hasText() {
			blk.Append(NewText(""))
		}
	}
}

// Within returns the nearest ancestor of p's node matching pred.
func (d *Document) Within(p Position, pred func(*Node) bool) *Node {
	if p.Node == nil {
		return nil
	}
	return p.Node.closest(pred)
}

// IsList matches lists of the given ordering.
func IsList(ordered bool) func(*Node) bool {
	return func(n *Node) bool { return n.Kind == KindList && n.Ordered == ordered }
}

// IsIndent matches indented blocks.
func IsIndent(n *Node) bool {
	return n.Kind == KindIndent
}

// IsFormat matches format nodes carrying mark.
func IsFormat(mark Mark) func(*Node) bool {
	return func(n *Node) bool { return n.Kind == KindFormat && n.Mark == mark }
}

// IsAnchor matches link nodes.
func IsAnchor(n *Node) bool {
	return n.Kind == KindAnchor
}
