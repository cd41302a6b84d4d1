package sanitize

import (
	"regexp"
	"strings"

	"github.com/ShahafRSeza/feed-social/internal/doc"
	"github.com/ShahafRSeza/feed-social/internal/link"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

var richMarkup = regexp.MustCompile(`(?i)<(?:b|strong|i|em|s|strike|del|br|div|span|p|ul|ol|li|blockquote|font)[\s/>]|<a[\s>]|<img\s`)

// IsRich reports whether stored content is authored markup rather than the
// older lightweight syntax.
func IsRich(content string) bool {
	return richMarkup.MatchString(content)
}

// Render prepares stored post content for display: rich markup is
// sanitized, legacy content is converted and then sanitized.
func Render(content string) (string, Report) {
	if IsRich(content) {
		return SanitizeReport(content)
	}
	return SanitizeReport(Legacy(content).Markup())
}

// legacyParser only knows paragraphs, links, images and emphasis; anything
// else in legacy content stays literal text.
var legacyParser = parser.NewParser(
	parser.WithBlockParsers(
		util.Prioritized(parser.NewParagraphParser(), 1000),
	),
	parser.WithInlineParsers(
		util.Prioritized(parser.NewLinkParser(), 200),
		util.Prioritized(parser.NewEmphasisParser(), 500),
	),
)

// Legacy converts lightweight markup (`![alt](src)`, `[text](url)`,
// `**bold**`, `*italic*`) into a document.
func Legacy(content string) *doc.Document {
	src := []byte(content)
	root := legacyParser.Parse(text.NewReader(src))
	var blocks []*doc.Node
	for p := root.FirstChild(); p != nil; p = p.NextSibling() {
		line := doc.NewLine()
		legacyInline(line, p, src)
		blocks = append(blocks, line)
	}
	return doc.FromBlocks(blocks...)
}

func legacyInline(parent *doc.Node, n ast.Node, src []byte) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch v := c.(type) {
		case *ast.Text:
			parent.Append(doc.NewText(string(v.Segment.Value(src))))
			if v.SoftLineBreak() || v.HardLineBreak() {
				parent.Append(doc.NewBreak())
			}
		case *ast.String:
			parent.Append(doc.NewText(string(v.Value)))
		case *ast.Emphasis:
			mark := doc.MarkItalic
			if v.Level >= 2 {
				mark = doc.MarkBold
			}
			f := doc.NewFormat(mark)
			legacyInline(f, v, src)
			parent.Append(f)
		case *ast.Link:
			href := link.Normalize(string(v.Destination))
			if !link.IsValid(href) {
				legacyInline(parent, v, src)
				continue
			}
			a := doc.NewAnchor(href)
			legacyInline(a, v, src)
			parent.Append(a)
		case *ast.Image:
			parent.Append(doc.NewEmbed(string(v.Destination), plainText(v, src)))
		default:
			legacyInline(parent, c, src)
		}
	}
}

func plainText(n ast.Node, src []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := c.(type) {
		case *ast.Text:
			b.Write(v.Segment.Value(src))
		case *ast.String:
			b.Write(v.Value)
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}
