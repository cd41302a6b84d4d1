package doc

import (
	"fmt"
	"strings"

	"github.com/aymerick/douceur/parser"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// EmbedStyle is the inline style every embedded image is rendered with.
const EmbedStyle = "max-width: 100%; border-radius: 10px; margin-top: 8px; display: block"

// Markup serialises the document. The first top-level line is written
// without a wrapper so a single-line post stays bare text.
func (d *Document) Markup() string {
	var b strings.Builder
	for i, blk := range d.root.children {
		if i == 0 && blk.Kind == KindLine {
			for _, c := range blk.children {
				_ = html.Render(&b, toHTML(c))
			}
			continue
		}
		_ = html.Render(&b, toHTML(blk))
	}
	return b.String()
}

func element(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String(), Attr: attrs}
}

func attr(key, val string) html.Attribute {
	return html.Attribute{Key: key, Val: val}
}

func styleAttr(color, font string) string {
	var parts []string
	if color != "" {
		parts = append(parts, "color: "+color)
	}
	if font != "" {
		parts = append(parts, "font-family: "+font)
	}
	return strings.Join(parts, "; ")
}

func toHTML(n *Node) *html.Node {
	var el *html.Node
	switch n.Kind {
	case KindText:
		return &html.Node{Type: html.TextNode, Data: n.Text}
	case KindBreak:
		return element(atom.Br)
	case KindEmbed:
		attrs := []html.Attribute{attr("src", n.Src)}
		if n.Alt != "" {
			attrs = append(attrs, attr("alt", n.Alt))
		}
		return element(atom.Img, append(attrs, attr("style", EmbedStyle))...)
	case KindMention:
		el = element(atom.A,
			attr("href", ProfilePath(n.Username)),
			attr("class", "mention"),
			attr("data-mention", n.Username),
			attr("contenteditable", "false"))
		el.AppendChild(&html.Node{Type: html.TextNode, Data: n.Label()})
		return el
	case KindLine:
		el = element(atom.Div)
	case KindListItem:
		el = element(atom.Li)
	case KindList:
		if n.Ordered {
			el = element(atom.Ol)
		} else {
			el = element(atom.Ul)
		}
	case KindIndent:
		el = element(atom.Blockquote)
	case KindFormat:
		switch n.Mark {
		case MarkItalic:
			el = element(atom.I)
		case MarkStrike:
			el = element(atom.S)
		default:
			el = element(atom.B)
		}
	case KindStyle:
		el = element(atom.Span, attr("style", styleAttr(n.Color, n.Font)))
	case KindAnchor:
		el = element(atom.A,
			attr("href", n.Href),
			attr("target", "_blank"),
			attr("rel", "noopener noreferrer"))
	default:
		el = element(atom.Span)
	}
	for _, c := range n.children {
		el.AppendChild(toHTML(c))
	}
	return el
}

// Parse rebuilds a document from markup, tolerating loose inline content and
// nested blocks. Unknown elements are unwrapped.
func Parse(markup string) (*Document, error) {
	ctx := &html.Node{Type: html.ElementNode, DataAtom: atom.Body, Data: "body"}
	nodes, err := html.ParseFragment(strings.NewReader(markup), ctx)
	if err != nil {
		return nil, fmt.Errorf("parse markup: %w", err)
	}
	d := &Document{root: &Node{Kind: KindRoot}}
	parseBlocks(d.root, nodes)
	d.repair()
	return d, nil
}

func childNodes(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, c)
	}
	return out
}

func getAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func parseBlocks(container *Node, nodes []*html.Node) {
	var line *Node
	flush := func() {
		if line != nil {
			container.Append(line)
			line = nil
		}
	}
	for _, n := range nodes {
		switch n.Type {
		case html.TextNode:
			if line == nil && strings.TrimSpace(n.Data) == "" {
				continue
			}
		case html.ElementNode:
		default:
			continue
		}
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Div, atom.P, atom.Li:
				flush()
				before := len(container.children)
				parseBlocks(container, childNodes(n))
				if len(container.children) == before {
					container.Append(NewLine())
				}
				continue
			case atom.Ul, atom.Ol:
				flush()
				list := NewList(n.DataAtom == atom.Ol)
				for _, c := range childNodes(n) {
					if c.Type == html.TextNode && strings.TrimSpace(c.Data) == "" {
						continue
					}
					item := NewListItem()
					if c.Type == html.ElementNode && c.DataAtom == atom.Li {
						parseInline(item, childNodes(c))
					} else {
						parseInline(item, []*html.Node{c})
					}
					list.Append(item)
				}
				if len(list.children) > 0 {
					container.Append(list)
				}
				continue
			case atom.Blockquote:
				flush()
				ind := NewIndent()
				parseBlocks(ind, childNodes(n))
				if len(ind.children) > 0 {
					container.Append(ind)
				}
				continue
			}
		}
		if line == nil {
			line = NewLine()
		}
		parseInline(line, []*html.Node{n})
	}
	flush()
}

func parseInline(parent *Node, nodes []*html.Node) {
	for _, n := range nodes {
		switch n.Type {
		case html.TextNode:
			parent.Append(NewText(n.Data))
			continue
		case html.ElementNode:
		default:
			continue
		}
		kids := childNodes(n)
		switch n.DataAtom {
		case atom.B, atom.Strong:
			parent.Append(wrapParsed(NewFormat(MarkBold), kids))
		case atom.I, atom.Em:
			parent.Append(wrapParsed(NewFormat(MarkItalic), kids))
		case atom.S, atom.Strike, atom.Del:
			parent.Append(wrapParsed(NewFormat(MarkStrike), kids))
		case atom.Span:
			style, _ := getAttr(n, "style")
			color, font := styleProps(style)
			if color == "" && font == "" {
				parseInline(parent, kids)
				continue
			}
			parent.Append(wrapParsed(NewStyle(color, font), kids))
		case atom.Font:
			color, _ := getAttr(n, "color")
			face, _ := getAttr(n, "face")
			if color == "" && face == "" {
				parseInline(parent, kids)
				continue
			}
			parent.Append(wrapParsed(NewStyle(color, face), kids))
		case atom.A:
			if user, ok := getAttr(n, "data-mention"); ok && user != "" {
				parent.Append(NewMention(user))
				continue
			}
			href, _ := getAttr(n, "href")
			if href == "" {
				parseInline(parent, kids)
				continue
			}
			parent.Append(wrapParsed(NewAnchor(href), kids))
		case atom.Img:
			src, _ := getAttr(n, "src")
			if src == "" {
				continue
			}
			alt, _ := getAttr(n, "alt")
			parent.Append(NewEmbed(src, alt))
		case atom.Br:
			parent.Append(NewBreak())
		case atom.Div, atom.P, atom.Li, atom.Ul, atom.Ol, atom.Blockquote:
			if len(parent.children) > 0 {
				parent.Append(NewBreak())
			}
			parseInline(parent, kids)
		default:
			parseInline(parent, kids)
		}
	}
}

func wrapParsed(n *Node, kids []*html.Node) *Node {
	parseInline(n, kids)
	return n
}

func styleProps(style string) (color, font string) {
	decls, err := parser.ParseDeclarations(style)
	if err != nil {
		return "", ""
	}
	for _, decl := range decls {
		switch strings.ToLower(decl.Property) {
		case "color":
			color = decl.Value
		case "font-family":
			font = decl.Value
		}
	}
	return color, font
}
