// Package doc models a post as an abstract tree of blocks and inline nodes,
// independent of any rendering surface.
package doc

// Kind identifies what a Node represents.
type Kind uint8

const (
	KindRoot Kind = iota
	KindLine
	KindList
	KindListItem
	KindIndent
	KindText
	KindFormat
	KindStyle
	KindAnchor
	KindMention
	KindEmbed
	KindBreak
)

var kindNames = map[Kind]string{
	KindRoot:     "root",
	KindLine:     "line",
	KindList:     "list",
	KindListItem: "listItem",
	KindIndent:   "indent",
	KindText:     "text",
	KindFormat:   "format",
	KindStyle:    "style",
	KindAnchor:   "anchor",
	KindMention:  "mention",
	KindEmbed:    "embed",
	KindBreak:    "break",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Mark is an inline formatting flag carried by a KindFormat node.
type Mark uint8

const (
	MarkBold Mark = iota + 1
	MarkItalic
	MarkStrike
)

// Node is one element of the document tree. Only the fields relevant to
// Kind are meaningful.
type Node struct {
	Kind     Kind
	Text     string
	Mark     Mark
	Color    string
	Font     string
	Href     string
	Username string
	Src      string
	Alt      string
	Ordered  bool

	parent   *Node
	children []*Node
}

func NewText(text string) *Node {
	return &Node{Kind: KindText, Text: text}
}

func NewFormat(mark Mark, children ...*Node) *Node {
	return (&Node{Kind: KindFormat, Mark: mark}).Append(children...)
}

func NewStyle(color, font string, children ...*Node) *Node {
	return (&Node{Kind: KindStyle, Color: color, Font: font}).Append(children...)
}

func NewAnchor(href string, children ...*Node) *Node {
	return (&Node{Kind: KindAnchor, Href: href}).Append(children...)
}

// NewMention returns an atomic mention of username linking to its profile.
func NewMention(username string) *Node {
	return &Node{Kind: KindMention, Username: username, Href: ProfilePath(username)}
}

func NewEmbed(src, alt string) *Node {
	return &Node{Kind: KindEmbed, Src: src, Alt: alt}
}

func NewBreak() *Node {
	return &Node{Kind: KindBreak}
}

func NewLine(children ...*Node) *Node {
	return (&Node{Kind: KindLine}).Append(children...)
}

func NewList(ordered bool, items ...*Node) *Node {
	return (&Node{Kind: KindList, Ordered: ordered}).Append(items...)
}

func NewListItem(children ...*Node) *Node {
	return (&Node{Kind: KindListItem}).Append(children...)
}

func NewIndent(blocks ...*Node) *Node {
	return (&Node{Kind: KindIndent}).Append(blocks...)
}

// ProfilePath is the link target of a mention.
func ProfilePath(username string) string {
	return "/u/" + username
}

// Parent returns the containing node, or nil for the root and detached nodes.
func (n *Node) Parent() *Node {
	return n.parent
}

// Children returns the node's children. The slice must not be modified.
func (n *Node) Children() []*Node {
	return n.children
}

// Append attaches children at the end of n and returns n.
func (n *Node) Append(children ...*Node) *Node {
	for _, child := range children {
		if child == nil {
			continue
		}
		if child.parent != nil {
			child.parent.remove(child)
		}
		child.parent = n
		n.children = append(n.children, child)
	}
	return n
}

// IsBlock reports whether n structures lines rather than text.
func (n *Node) IsBlock() bool {
	switch n.Kind {
	case KindRoot, KindLine, KindList, KindListItem, KindIndent:
		return true
	}
	return false
}

// IsLeafBlock reports whether n directly holds inline content.
func (n *Node) IsLeafBlock() bool {
	return n.Kind == KindLine || n.Kind == KindListItem
}

// IsAtomic reports whether n is an indivisible inline unit the caret can
// only sit before or after.
func (n *Node) IsAtomic() bool {
	return n.Kind == KindMention || n.Kind == KindEmbed || n.Kind == KindBreak
}

// IsLeaf reports whether n is text or an atomic node.
func (n *Node) IsLeaf() bool {
	return n.Kind == KindText || n.IsAtomic()
}

// Label is the visible text of a leaf.
func (n *Node) Label() string {
	switch n.Kind {
	case KindText:
		return n.Text
	case KindMention:
		return "@" + n.Username
	case KindBreak:
		return "\n"
	}
	return ""
}

// width is the number of linear offset units a leaf occupies.
func (n *Node) width() int {
	switch n.Kind {
	case KindText, KindMention:
		return len([]rune(n.Label()))
	case KindEmbed, KindBreak:
		return 1
	}
	return 0
}

func (n *Node) runeLen() int {
	return len([]rune(n.Text))
}

func (n *Node) index(child *Node) int {
	for i, c := range n.children {
		if c == child {
			return i
		}
	}
	return -1
}

func (n *Node) insert(i int, child *Node) {
	if child.parent != nil {
		child.parent.remove(child)
	}
	if i < 0 {
		i = 0
	}
	if i > len(n.children) {
		i = len(n.children)
	}
	child.parent = n
	n.children = append(n.children, nil)
	copy(n.children[i+1:], n.children[i:])
	n.children[i] = child
}

func (n *Node) remove(child *Node) {
	i := n.index(child)
	if i < 0 {
		return
	}
	n.children = append(n.children[:i], n.children[i+1:]...)
	child.parent = nil
}

// detachFrom removes and returns the children from index i onwards.
func (n *Node) detachFrom(i int) []*Node {
	if i >= len(n.children) {
		return nil
	}
	moved := append([]*Node(nil), n.children[i:]...)
	n.children = n.children[:i]
	for _, c := range moved {
		c.parent = nil
	}
	return moved
}

// shell copies n without its children and parent.
func (n *Node) shell() *Node {
	clone := *n
	clone.parent = nil
	clone.children = nil
	return &clone
}

// unwrap replaces n by its children.
func (n *Node) unwrap() {
	p := n.parent
	if p == nil {
		return
	}
	i := p.index(n)
	kids := n.detachFrom(0)
	p.remove(n)
	for j, c := range kids {
		p.insert(i+j, c)
	}
}

// closest returns the nearest strict ancestor of n matching pred.
func (n *Node) closest(pred func(*Node) bool) *Node {
	for p := n.parent; p != nil; p = p.parent {
		if pred(p) {
			return p
		}
	}
	return nil
}

func (n *Node) descendantOf(anc *Node) bool {
	for p := n.parent; p != nil; p = p.parent {
		if p == anc {
			return true
		}
	}
	return false
}

// leafBlock returns the line or list item holding n.
func (n *Node) leafBlock() *Node {
	if n.IsLeafBlock() {
		return n
	}
	return n.closest((*Node).IsLeafBlock)
}

func (n *Node) leaves() []*Node {
	var out []*Node
	var visit func(*Node)
	visit = func(c *Node) {
		if c.IsLeaf() {
			out = append(out, c)
			return
		}
		for _, k := range c.children {
			visit(k)
		}
	}
	visit(n)
	return out
}

func (n *Node) firstLeaf() *Node {
	ls := n.leaves()
	if len(ls) == 0 {
		return nil
	}
	return ls[0]
}

func (n *Node) lastLeaf() *Node {
	ls := n.leaves()
	if len(ls) == 0 {
		return nil
	}
	return ls[len(ls)-1]
}

func (n *Node) hasText() bool {
	for _, l := range n.leaves() {
		if l.Kind == KindText {
			return true
		}
	}
	return false
}
