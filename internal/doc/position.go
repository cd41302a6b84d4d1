package doc

// Position is a caret location: a rune offset inside a text node.
type Position struct {
	Node   *Node
	Offset int
}

// Selection is an anchor/focus pair. Anchor may come after Focus.
type Selection struct {
	Anchor Position
	Focus  Position
}

// Caret returns a collapsed selection at p.
func Caret(p Position) Selection {
	return Selection{Anchor: p, Focus: p}
}

// Valid reports whether p addresses a text node of d.
func (d *Document) Valid(p Position) bool {
	return p.Node != nil && p.Node.Kind == KindText && d.Contains(p.Node) &&
		p.Offset >= 0 && p.Offset <= p.Node.runeLen()
}

// ValidSelection reports whether both ends of s lie inside d.
func (d *Document) ValidSelection(s Selection) bool {
	return d.Valid(s.Anchor) && d.Valid(s.Focus)
}

// IsCollapsed reports whether s covers no content.
func (d *Document) IsCollapsed(s Selection) bool {
	if s.Anchor == s.Focus {
		return true
	}
	return d.OffsetOf(s.Anchor) == d.OffsetOf(s.Focus)
}

func path(n *Node) []int {
	var rev []int
	for c := n; c.parent != nil; c = c.parent {
		rev = append(rev, c.parent.index(c))
	}
	out := make([]int, len(rev))
	for i := range rev {
		out[i] = rev[len(rev)-1-i]
	}
	return out
}

// Compare orders two positions of d: -1, 0 or 1.
func (d *Document) Compare(a, b Position) int {
	if a.Node == b.Node {
		switch {
		case a.Offset < b.Offset:
			return -1
		case a.Offset > b.Offset:
			return 1
		}
		return 0
	}
	pa, pb := path(a.Node), path(b.Node)
	for i := 0; i < len(pa) && i < len(pb); i++ {
		if pa[i] != pb[i] {
			if pa[i] < pb[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(pa) < len(pb):
		return -1
	case len(pa) > len(pb):
		return 1
	}
	return 0
}

// Ordered returns the selection's ends in document order.
func (d *Document) Ordered(s Selection) (start, end Position) {
	if d.Compare(s.Anchor, s.Focus) <= 0 {
		return s.Anchor, s.Focus
	}
	return s.Focus, s.Anchor
}

// OffsetOf maps p to a linear offset. Leaf blocks are separated by one unit;
// mentions occupy their label and embeds and breaks one unit each.
func (d *Document) OffsetOf(p Position) int {
	off := 0
	for i, blk := range d.LeafBlocks() {
		if i > 0 {
			off++
		}
		for _, l := range blk.leaves() {
			if l == p.Node {
				return off + p.Offset
			}
			off += l.width()
		}
	}
	return off
}

// PositionAt maps a linear offset back to a caret position. Offsets falling
// on a boundary resolve to the earlier text node; out-of-range offsets clamp.
func (d *Document) PositionAt(offset int) Position {
	if offset < 0 {
		offset = 0
	}
	var last Position
	off := 0
	for i, blk := range d.LeafBlocks() {
		if i > 0 {
			off++
		}
		for _, l := range blk.leaves() {
			w := l.width()
			if l.Kind == KindText {
				last = Position{Node: l, Offset: l.runeLen()}
				if offset <= off+w {
					if offset < off {
						return Position{Node: l}
					}
					return Position{Node: l, Offset: offset - off}
				}
			} else if offset < off+w && last.Node != nil && offset >= off {
				// inside an atomic leaf: snap to the preceding caret
				if last.Node.leafBlock() == blk {
					return last
				}
			}
			off += w
		}
	}
	if last.Node == nil {
		return d.Start()
	}
	return last
}
