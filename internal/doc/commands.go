package doc

// Command names a formatting operation understood by Apply.
type Command string

const (
	CmdBold        Command = "bold"
	CmdItalic      Command = "italic"
	CmdStrike      Command = "strike"
	CmdColor       Command = "color"
	CmdFont        Command = "font"
	CmdBulletList  Command = "bulletList"
	CmdOrderedList Command = "orderedList"
	CmdIndent      Command = "indent"
	CmdOutdent     Command = "outdent"
	CmdLink        Command = "link"
	CmdUnlink      Command = "unlink"
)

var commands = map[Command]bool{
	CmdBold: true, CmdItalic: true, CmdStrike: true, CmdColor: true, CmdFont: true,
	CmdBulletList: true, CmdOrderedList: true, CmdIndent: true, CmdOutdent: true,
	CmdLink: true, CmdUnlink: true,
}

// ParseCommand validates a command name.
func ParseCommand(name string) (Command, bool) {
	c := Command(name)
	return c, commands[c]
}

// IsInline reports whether c formats text rather than blocks. Inline
// commands on a collapsed selection only change the typing style.
func (c Command) IsInline() bool {
	switch c {
	case CmdBold, CmdItalic, CmdStrike, CmdColor, CmdFont:
		return true
	}
	return false
}

// Mark returns the mark toggled by c, if any.
func (c Command) Mark() (Mark, bool) {
	switch c {
	case CmdBold:
		return MarkBold, true
	case CmdItalic:
		return MarkItalic, true
	case CmdStrike:
		return MarkStrike, true
	}
	return 0, false
}

// Apply runs cmd over sel and returns the selection to restore afterwards.
// value carries the colour, font family or link target where relevant.
func Apply(d *Document, sel Selection, cmd Command, value string) (Selection, error) {
	if !commands[cmd] {
		return sel, ErrUnknownCommand
	}
	if !d.ValidSelection(sel) {
		return sel, ErrOutsideDocument
	}
	start, end := d.Ordered(sel)
	switch cmd {
	case CmdBulletList, CmdOrderedList:
		d.toggleList(start, end, cmd == CmdOrderedList)
	case CmdIndent:
		if anc := d.Within(start, IsIndent); anc != nil {
			anc.unwrap()
		} else {
			d.indent(start, end)
		}
	case CmdOutdent:
		if anc := d.Within(start, IsIndent); anc != nil {
			anc.unwrap()
		}
	default:
		if d.IsCollapsed(sel) {
			return sel, nil
		}
		leaves := d.isolate(start, end)
		if len(leaves) == 0 {
			return sel, nil
		}
		switch cmd {
		case CmdBold, CmdItalic, CmdStrike:
			m, _ := cmd.Mark()
			pred := IsFormat(m)
			if covered(leaves, pred) {
				liftOut(d, leaves, pred)
			} else {
				for _, run := range runs(uncovered(leaves, pred)) {
					wrapRun(run, NewFormat(m))
				}
			}
		case CmdColor:
			for _, run := range runs(leaves) {
				wrapRun(run, NewStyle(value, ""))
			}
		case CmdFont:
			for _, run := range runs(leaves) {
				wrapRun(run, NewStyle("", value))
			}
		case CmdLink:
			liftOut(d, leaves, IsAnchor)
			var linkable []*Node
			for _, l := range leaves {
				if l.Kind != KindMention {
					linkable = append(linkable, l)
				}
			}
			for _, run := range runs(linkable) {
				wrapRun(run, NewAnchor(value))
			}
		case CmdUnlink:
			liftOut(d, leaves, IsAnchor)
		}
		d.repair()
		d.touch()
		return d.span(leaves, sel), nil
	}
	d.repair()
	d.touch()
	return sel, nil
}

func uncovered(leaves []*Node, pred func(*Node) bool) []*Node {
	var out []*Node
	for _, l := range leaves {
		if l.closest(pred) == nil {
			out = append(out, l)
		}
	}
	return out
}

// blockIn returns the child of container holding n.
func blockIn(container, n *Node) *Node {
	for c := n; c != nil; c = c.parent {
		if c.parent == container {
			return c
		}
	}
	return nil
}

func (d *Document) leafBlocksBetween(start, end Position) []*Node {
	sb, eb := start.Node.leafBlock(), end.Node.leafBlock()
	var out []*Node
	in := false
	for _, b := range d.LeafBlocks() {
		if b == sb {
			in = true
		}
		if in {
			out = append(out, b)
		}
		if b == eb {
			break
		}
	}
	return out
}

// toggleList removes the list when the selection starts inside a list of the
// requested kind, switches its kind when it starts in the other kind, and
// wraps the selected lines in a new list otherwise.
func (d *Document) toggleList(start, end Position, ordered bool) {
	blocks := d.leafBlocksBetween(start, end)
	sb := blocks[0]
	if sb.Kind == KindListItem {
		list := sb.parent
		if list.Ordered != ordered {
			for _, b := range blocks {
				if b.Kind == KindListItem {
					b.parent.Ordered = ordered
				}
			}
			return
		}
		var items []*Node
		for _, b := range blocks {
			if b.Kind == KindListItem {
				items = append(items, b)
			}
		}
		unlist(items)
		return
	}
	var group []*Node
	flush := func() {
		if len(group) == 0 {
			return
		}
		p := group[0].parent
		list := NewList(ordered)
		p.insert(p.index(group[0]), list)
		for _, l := range group {
			l.Kind = KindListItem
			list.Append(l)
		}
		group = nil
	}
	for _, b := range blocks {
		if b.Kind != KindLine {
			flush()
			continue
		}
		if n := len(group); n > 0 {
			prev := group[n-1]
			if prev.parent != b.parent || b.parent.index(b) != prev.parent.index(prev)+1 {
				flush()
			}
		}
		group = append(group, b)
	}
	flush()
}

// unlist turns list items back into lines, splitting their lists around them.
func unlist(items []*Node) {
	for len(items) > 0 {
		list := items[0].parent
		var mine []*Node
		rest := items[:0:0]
		for _, it := range items {
			if it.parent == list {
				mine = append(mine, it)
			} else {
				rest = append(rest, it)
			}
		}
		items = rest

		first, last := list.index(mine[0]), list.index(mine[len(mine)-1])
		kids := list.detachFrom(0)
		before, selected, after := kids[:first], kids[first:last+1], kids[last+1:]
		parent := list.parent
		at := parent.index(list)
		parent.remove(list)
		if len(before) > 0 {
			parent.insert(at, list.Append(before...))
			at++
		}
		for _, it := range selected {
			it.Kind = KindLine
			parent.insert(at, it)
			at++
		}
		if len(after) > 0 {
			parent.insert(at, NewList(list.Ordered, after...))
		}
	}
}

// indent wraps the top-level blocks spanned by the range in an indent.
func (d *Document) indent(start, end Position) {
	sb := start.Node.leafBlock()
	container := sb.parent
	if sb.Kind == KindListItem {
		container = sb.parent.parent
	}
	first := blockIn(container, sb)
	last := blockIn(container, end.Node)
	if last == nil || container.index(last) < container.index(first) {
		last = first
	}
	i, j := container.index(first), container.index(last)
	kids := append([]*Node(nil), container.children[i:j+1]...)
	ind := NewIndent()
	container.insert(i, ind)
	ind.Append(kids...)
}
