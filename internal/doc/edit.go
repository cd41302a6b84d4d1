package doc

import "errors"

var (
	ErrOutsideDocument = errors.New("doc: position is not inside the document")
	ErrUnknownCommand  = errors.New("doc: unknown command")
)

// TypingStyle is the formatting applied to text typed at a collapsed caret.
type TypingStyle struct {
	Marks []Mark
	Color string
	Font  string
}

func (t TypingStyle) IsZero() bool {
	return len(t.Marks) == 0 && t.Color == "" && t.Font == ""
}

func (t TypingStyle) Has(m Mark) bool {
	for _, x := range t.Marks {
		if x == m {
			return true
		}
	}
	return false
}

// ToggleMark flips m in the style.
func (t TypingStyle) ToggleMark(m Mark) TypingStyle {
	out := TypingStyle{Color: t.Color, Font: t.Font}
	found := false
	for _, x := range t.Marks {
		if x == m {
			found = true
			continue
		}
		out.Marks = append(out.Marks, x)
	}
	if !found {
		out.Marks = append(out.Marks, m)
	}
	return out
}

func (t TypingStyle) satisfiedAt(n *Node) bool {
	for _, m := range t.Marks {
		if n.closest(IsFormat(m)) == nil {
			return false
		}
	}
	if t.Color != "" {
		s := n.closest(func(x *Node) bool { return x.Kind == KindStyle && x.Color != "" })
		if s == nil || s.Color != t.Color {
			return false
		}
	}
	if t.Font != "" {
		s := n.closest(func(x *Node) bool { return x.Kind == KindStyle && x.Font != "" })
		if s == nil || s.Font != t.Font {
			return false
		}
	}
	return true
}

func splitText(n *Node, at int) *Node {
	r := []rune(n.Text)
	right := NewText(string(r[at:]))
	n.Text = string(r[:at])
	n.parent.insert(n.parent.index(n)+1, right)
	return right
}

// split cuts anc in two just before its descendant at. The part holding at
// and everything after it becomes a new sibling of anc, which is returned.
func split(anc, at *Node) *Node {
	cur := at
	var clone *Node
	for {
		p := cur.parent
		i := p.index(cur)
		moved := p.detachFrom(i)
		clone = p.shell()
		clone.Append(moved...)
		p.parent.insert(p.parent.index(p)+1, clone)
		if p == anc {
			return clone
		}
		cur = clone
	}
}

func leafAfter(d *Document, n *Node) *Node {
	ls := d.Leaves()
	for i, l := range ls {
		if l == n && i+1 < len(ls) {
			return ls[i+1]
		}
	}
	return nil
}

func leafBefore(d *Document, n *Node) *Node {
	ls := d.Leaves()
	for i, l := range ls {
		if l == n && i > 0 {
			return ls[i-1]
		}
	}
	return nil
}

// isolate splits text at the range ends and returns the leaves fully inside
// [start, end) in document order.
func (d *Document) isolate(start, end Position) []*Node {
	if d.Compare(start, end) >= 0 {
		return nil
	}
	var last *Node
	switch {
	case end.Offset == 0:
		last = leafBefore(d, end.Node)
	case end.Offset >= end.Node.runeLen():
		last = end.Node
	default:
		splitText(end.Node, end.Offset)
		last = end.Node
	}
	var first *Node
	switch {
	case start.Offset == 0:
		first = start.Node
	case start.Offset >= start.Node.runeLen():
		first = leafAfter(d, start.Node)
	default:
		right := splitText(start.Node, start.Offset)
		if last == start.Node {
			last = right
		}
		first = right
	}
	if first == nil || last == nil {
		return nil
	}
	var out []*Node
	in := false
	for _, l := range d.Leaves() {
		if l == first {
			in = true
		}
		if in {
			out = append(out, l)
		}
		if l == last {
			break
		}
	}
	if !in {
		return nil
	}
	return out
}

// runs groups leaves into runs of adjacent siblings.
func runs(leaves []*Node) [][]*Node {
	var out [][]*Node
	for _, l := range leaves {
		if n := len(out); n > 0 {
			prev := out[n-1][len(out[n-1])-1]
			if prev.parent == l.parent && l.parent.index(l) == l.parent.index(prev)+1 {
				out[n-1] = append(out[n-1], l)
				continue
			}
		}
		out = append(out, []*Node{l})
	}
	return out
}

func wrapRun(run []*Node, wrapper *Node) {
	p := run[0].parent
	i := p.index(run[0])
	for _, c := range run {
		p.remove(c)
		wrapper.Append(c)
	}
	p.insert(i, wrapper)
}

func covered(leaves []*Node, pred func(*Node) bool) bool {
	found := false
	for _, l := range leaves {
		if l.Kind == KindText && l.Text == "" {
			continue
		}
		found = true
		if l.closest(pred) == nil {
			return false
		}
	}
	return found
}

// liftOut removes every ancestor matching pred from above the given leaves,
// splitting ancestors that also cover leaves outside the set.
func liftOut(d *Document, leaves []*Node, pred func(*Node) bool) {
	for {
		var anc *Node
		for _, l := range leaves {
			if a := l.closest(pred); a != nil {
				anc = a
				break
			}
		}
		if anc == nil {
			return
		}
		var inside []*Node
		for _, l := range leaves {
			if l.descendantOf(anc) {
				inside = append(inside, l)
			}
		}
		first, last := inside[0], inside[len(inside)-1]
		target := anc
		if anc.firstLeaf() != first {
			target = split(anc, first)
		}
		if target.lastLeaf() != last {
			split(target, leafAfter(d, last))
		}
		target.unwrap()
	}
}

// span returns a selection covering the given leaves.
func (d *Document) span(leaves []*Node, fallback Selection) Selection {
	var first, last *Node
	for _, l := range leaves {
		if l.Kind != KindText {
			continue
		}
		if first == nil {
			first = l
		}
		last = l
	}
	if first == nil {
		if d.ValidSelection(fallback) {
			return fallback
		}
		return Caret(d.End())
	}
	return Selection{
		Anchor: Position{Node: first},
		Focus:  Position{Node: last, Offset: last.runeLen()},
	}
}

// insertInline places nodes at p and returns the caret after them.
func (d *Document) insertInline(p Position, nodes ...*Node) Position {
	t := p.Node
	parent := t.parent
	var i int
	switch {
	case p.Offset == 0:
		i = parent.index(t)
	case p.Offset >= t.runeLen():
		i = parent.index(t) + 1
	default:
		splitText(t, p.Offset)
		i = parent.index(t) + 1
	}
	for j, n := range nodes {
		parent.insert(i+j, n)
	}
	lastNode := nodes[len(nodes)-1]
	if lastNode.Kind == KindText {
		return Position{Node: lastNode, Offset: lastNode.runeLen()}
	}
	after := i + len(nodes)
	if after < len(parent.children) && parent.children[after].Kind == KindText {
		return Position{Node: parent.children[after]}
	}
	tail := NewText("")
	parent.insert(after, tail)
	return Position{Node: tail}
}

// outsideAnchor moves p out of any link around it, splitting the link at p
// when p is strictly inside. The returned caret sits in an empty text node
// between the two halves, so links are never nested.
func (d *Document) outsideAnchor(p Position) Position {
	anc := p.Node.closest(IsAnchor)
	if anc == nil {
		return p
	}
	gap := NewText("")
	parent := anc.parent
	switch {
	case p.Offset == 0 && anc.firstLeaf() == p.Node:
		parent.insert(parent.index(anc), gap)
	case p.Offset >= p.Node.runeLen() && anc.lastLeaf() == p.Node:
		parent.insert(parent.index(anc)+1, gap)
	default:
		at := p.Node
		switch {
		case p.Offset >= p.Node.runeLen():
			at = leafAfter(d, p.Node)
		case p.Offset > 0:
			at = splitText(p.Node, p.Offset)
		}
		right := split(anc, at)
		parent.insert(parent.index(right), gap)
	}
	return Position{Node: gap}
}

// InsertText types s at p using style and returns the caret after it.
func InsertText(d *Document, p Position, s string, style TypingStyle) (Position, error) {
	if !d.Valid(p) {
		return p, ErrOutsideDocument
	}
	if s == "" {
		return p, nil
	}
	defer d.touch()
	if style.IsZero() || style.satisfiedAt(p.Node) {
		r := []rune(p.Node.Text)
		ins := []rune(s)
		out := make([]rune, 0, len(r)+len(ins))
		out = append(out, r[:p.Offset]...)
		out = append(out, ins...)
		out = append(out, r[p.Offset:]...)
		p.Node.Text = string(out)
		return Position{Node: p.Node, Offset: p.Offset + len(ins)}, nil
	}
	inner := NewText(s)
	n := inner
	for _, m := range style.Marks {
		n = NewFormat(m, n)
	}
	if style.Color != "" || style.Font != "" {
		n = NewStyle(style.Color, style.Font, n)
	}
	d.insertInline(p, n)
	return Position{Node: inner, Offset: inner.runeLen()}, nil
}

// DeleteRange removes the content between the selection's ends, joining the
// first and last leaf blocks, and returns the resulting caret.
func DeleteRange(d *Document, sel Selection) (Position, error) {
	if !d.ValidSelection(sel) {
		return sel.Focus, ErrOutsideDocument
	}
	start, end := d.Ordered(sel)
	leaves := d.isolate(start, end)
	if len(leaves) == 0 {
		return start, nil
	}
	defer d.touch()
	firstBlock := leaves[0].leafBlock()
	lastBlock := leaves[len(leaves)-1].leafBlock()
	if end.Offset == 0 && end.Node.leafBlock() != lastBlock {
		lastBlock = end.Node.leafBlock()
	}
	var pos Position
	if i := leaves[0].parent.index(leaves[0]); i > 0 && leaves[0].parent.children[i-1].Kind == KindText {
		prev := leaves[0].parent.children[i-1]
		pos = Position{Node: prev, Offset: prev.runeLen()}
	} else {
		t := NewText("")
		leaves[0].parent.insert(i, t)
		pos = Position{Node: t}
	}
	for _, l := range leaves {
		l.parent.remove(l)
	}
	if firstBlock != lastBlock {
		for _, c := range lastBlock.detachFrom(0) {
			firstBlock.Append(c)
		}
		lastBlock.parent.remove(lastBlock)
	}
	d.repair()
	return pos, nil
}

// InsertParagraph splits the leaf block at p and returns the caret at the
// start of the new block.
func InsertParagraph(d *Document, p Position) (Position, error) {
	if !d.Valid(p) {
		return p, ErrOutsideDocument
	}
	defer d.touch()
	blk := p.Node.leafBlock()
	var at *Node
	switch {
	case p.Offset == 0:
		at = p.Node
	case p.Offset >= p.Node.runeLen():
		if next := leafAfter(d, p.Node); next != nil && next.leafBlock() == blk {
			at = next
		}
	default:
		at = splitText(p.Node, p.Offset)
	}
	var nb *Node
	if at == nil {
		nb = blk.shell()
		blk.parent.insert(blk.parent.index(blk)+1, nb)
	} else {
		nb = split(blk, at)
	}
	if first := nb.firstLeaf(); first == nil || first.Kind != KindText {
		nb.insert(0, NewText(""))
	}
	d.repair()
	return Position{Node: nb.firstLeaf()}, nil
}

// Backspace deletes the unit before p, joining with the previous block at a
// block start.
func Backspace(d *Document, p Position) (Position, error) {
	if !d.Valid(p) {
		return p, ErrOutsideDocument
	}
	if p.Offset > 0 {
		defer d.touch()
		r := []rune(p.Node.Text)
		p.Node.Text = string(append(r[:p.Offset-1], r[p.Offset:]...))
		return Position{Node: p.Node, Offset: p.Offset - 1}, nil
	}
	blk := p.Node.leafBlock()
	prev := leafBefore(d, p.Node)
	for prev != nil && prev.Kind == KindText && prev.Text == "" && prev.leafBlock() == blk {
		prev = leafBefore(d, prev)
	}
	if prev == nil {
		return p, nil
	}
	defer d.touch()
	if prev.leafBlock() == blk {
		if prev.Kind == KindText {
			r := []rune(prev.Text)
			prev.Text = string(r[:len(r)-1])
			return Position{Node: prev, Offset: len(r) - 1}, nil
		}
		prev.parent.remove(prev)
		d.repair()
		return p, nil
	}
	target := prev.leafBlock()
	for _, c := range blk.detachFrom(0) {
		target.Append(c)
	}
	blk.parent.remove(blk)
	d.repair()
	return p, nil
}

// InsertEmbed places an embed at p and returns the caret after it.
func InsertEmbed(d *Document, p Position, src, alt string) (Position, error) {
	if !d.Valid(p) {
		return p, ErrOutsideDocument
	}
	defer d.touch()
	return d.insertInline(p, NewEmbed(src, alt)), nil
}

// InsertLink places an anchor labelled label at p followed by a
// non-breaking space and returns the caret after the space.
func InsertLink(d *Document, p Position, href, label string) (Position, error) {
	if !d.Valid(p) {
		return p, ErrOutsideDocument
	}
	if label == "" {
		label = href
	}
	defer d.touch()
	return d.insertInline(d.outsideAnchor(p), NewAnchor(href, NewText(label)), NewText("\u00a0")), nil
}

// CommitMention replaces the runes [from, to) of text node n with a mention
// of username followed by a non-breaking space. The caret lands after the
// space.
func CommitMention(d *Document, n *Node, from, to int, username string) (Position, error) {
	if n == nil || n.Kind != KindText || !d.Contains(n) {
		return Position{}, ErrOutsideDocument
	}
	r := []rune(n.Text)
	if from < 0 || to > len(r) || from > to {
		return Position{}, ErrOutsideDocument
	}
	defer d.touch()
	if n.closest(IsAnchor) != nil {
		n.Text = string(r[:from]) + string(r[to:])
		p := d.insertInline(d.outsideAnchor(Position{Node: n, Offset: from}), NewMention(username), NewText("\u00a0"))
		return Position{Node: p.Node, Offset: 1}, nil
	}
	n.Text = string(r[:from])
	tail := NewText("\u00a0" + string(r[to:]))
	i := n.parent.index(n)
	n.parent.insert(i+1, NewMention(username))
	n.parent.insert(i+2, tail)
	return Position{Node: tail, Offset: 1}, nil
}
