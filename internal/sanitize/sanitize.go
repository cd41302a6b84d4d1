package sanitize

import (
	"html"
	"strings"

	"github.com/aymerick/douceur/parser"
	xhtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Report counts what a sanitize pass took out.
type Report struct {
	RemovedElements   int `json:"removedElements"`
	UnwrappedElements int `json:"unwrappedElements"`
	RemovedAttrs      int `json:"removedAttrs"`
	NeutralizedEvents int `json:"neutralizedEvents"`
	RemovedStyles     int `json:"removedStyles"`
	RewrittenHrefs    int `json:"rewrittenHrefs"`
}

// Total is the number of changes recorded.
func (r Report) Total() int {
	return r.RemovedElements + r.UnwrappedElements + r.RemovedAttrs +
		r.NeutralizedEvents + r.RemovedStyles + r.RewrittenHrefs
}

// Stripped elements are removed together with their content.
var stripped = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"iframe":   true,
	"object":   true,
	"embed":    true,
	"template": true,
}

var allowedHrefSchemes = map[string]bool{"http": true, "https": true, "mailto": true}

var allowedSrcSchemes = map[string]bool{"http": true, "https": true}

// Sanitize returns markup restricted to the default policy. It never fails;
// input it cannot parse comes back as escaped text.
func Sanitize(markup string) string {
	out, _ := SanitizeReport(markup)
	return out
}

// maxPasses bounds the re-parse loop. Unwrapping a container can leave
// siblings the parser would restructure (an anchor inside an anchor), so the
// output is fed back through until it no longer changes.
const maxPasses = 8

// SanitizeReport is Sanitize plus a count of the changes made.
func SanitizeReport(markup string) (out string, rep Report) {
	defer func() {
		if r := recover(); r != nil {
			out, rep = html.EscapeString(markup), Report{}
		}
	}()
	if markup == "" {
		return "", rep
	}
	out, err := sanitizePass(markup, &rep)
	if err != nil {
		return html.EscapeString(markup), Report{}
	}
	for i := 1; i < maxPasses; i++ {
		next, err := sanitizePass(out, &rep)
		if err != nil || next == out {
			break
		}
		out = next
	}
	return out, rep
}

func sanitizePass(markup string, rep *Report) (string, error) {
	nodes, err := xhtml.ParseFragment(strings.NewReader(markup), bodyContext())
	if err != nil {
		return "", err
	}
	root := &xhtml.Node{Type: xhtml.ElementNode, DataAtom: atom.Div, Data: "div"}
	for _, n := range nodes {
		root.AppendChild(n)
	}
	s := &sanitizer{policy: defaultPolicy, report: rep}
	s.walk(root)

	var b strings.Builder
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if err := xhtml.Render(&b, c); err != nil {
			return "", err
		}
	}
	return b.String(), nil
}

func bodyContext() *xhtml.Node {
	return &xhtml.Node{Type: xhtml.ElementNode, DataAtom: atom.Body, Data: "body"}
}

type sanitizer struct {
	policy Policy
	report *Report
}

func (s *sanitizer) walk(parent *xhtml.Node) {
	for c := parent.FirstChild; c != nil; {
		next := c.NextSibling
		switch c.Type {
		case xhtml.TextNode:
		case xhtml.ElementNode:
			tag := strings.ToLower(c.Data)
			s.neutralize(c)
			if stripped[tag] {
				parent.RemoveChild(c)
				s.report.RemovedElements++
				break
			}
			if c.Namespace != "" || !s.policy.AllowsTag(tag) {
				first := c.FirstChild
				for gc := c.FirstChild; gc != nil; {
					after := gc.NextSibling
					c.RemoveChild(gc)
					parent.InsertBefore(gc, c)
					gc = after
				}
				parent.RemoveChild(c)
				s.report.UnwrappedElements++
				if first != nil {
					next = first
				}
				break
			}
			s.filterAttrs(c, tag)
			s.walk(c)
		default:
			parent.RemoveChild(c)
			s.report.RemovedElements++
		}
		c = next
	}
}

// neutralize renames event handler attributes so no later step can let them
// through under their original name.
func (s *sanitizer) neutralize(n *xhtml.Node) {
	for i, a := range n.Attr {
		if strings.HasPrefix(strings.ToLower(a.Key), "on") {
			n.Attr[i].Key = "data-removed-" + a.Key
			s.report.NeutralizedEvents++
		}
	}
}

func (s *sanitizer) filterAttrs(n *xhtml.Node, tag string) {
	kept := n.Attr[:0]
	hasRel := false
	for _, a := range n.Attr {
		key := strings.ToLower(a.Key)
		if a.Namespace != "" || !s.policy.AllowsAttr(tag, key) {
			s.report.RemovedAttrs++
			continue
		}
		a.Key = key
		switch key {
		case "style":
			v := s.cleanStyle(a.Val)
			if v == "" {
				s.report.RemovedAttrs++
				continue
			}
			a.Val = v
		case "href":
			if safe := safeHref(a.Val); safe != a.Val {
				s.report.RewrittenHrefs++
				a.Val = safe
			}
		case "src":
			if !safeSrc(a.Val) {
				s.report.RemovedAttrs++
				continue
			}
		case "rel":
			hasRel = true
			a.Val = "noopener noreferrer"
		}
		kept = append(kept, a)
	}
	n.Attr = kept
	if tag == "a" && !hasRel {
		n.Attr = append(n.Attr, xhtml.Attribute{Key: "rel", Val: "noopener noreferrer"})
	}
}

// cleanStyle keeps whitelisted declarations with harmless values and
// re-serialises them. An unparseable style is dropped whole.
func (s *sanitizer) cleanStyle(style string) string {
	decls, err := parser.ParseDeclarations(style)
	if err != nil {
		s.report.RemovedStyles++
		return ""
	}
	var parts []string
	for _, d := range decls {
		prop := strings.ToLower(strings.TrimSpace(d.Property))
		val := strings.TrimSpace(d.Value)
		if !s.policy.AllowsStyle(prop) || val == "" || dangerousValue(val) {
			s.report.RemovedStyles++
			continue
		}
		parts = append(parts, prop+": "+val)
	}
	return strings.Join(parts, "; ")
}

func dangerousValue(v string) bool {
	l := strings.ToLower(v)
	for _, bad := range []string{"url(", "expression", "javascript:", "\\", "<", ">", "@import"} {
		if strings.Contains(l, bad) {
			return true
		}
	}
	return false
}

// scheme returns the lowercased URL scheme of v, or "" for relative URLs.
func scheme(v string) string {
	compact := strings.Map(func(r rune) rune {
		if r <= ' ' || r == 0x7f {
			return -1
		}
		return r
	}, v)
	i := strings.IndexByte(compact, ':')
	if i <= 0 {
		return ""
	}
	candidate := strings.ToLower(compact[:i])
	for j, r := range candidate {
		switch {
		case r >= 'a' && r <= 'z':
		case j > 0 && (r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.'):
		default:
			return ""
		}
	}
	return candidate
}

func safeHref(raw string) string {
	v := strings.TrimSpace(raw)
	if sc := scheme(v); sc != "" && !allowedHrefSchemes[sc] {
		return "#"
	}
	return v
}

func safeSrc(raw string) bool {
	v := strings.TrimSpace(raw)
	if v == "" {
		return false
	}
	sc := scheme(v)
	return sc == "" || allowedSrcSchemes[sc]
}
