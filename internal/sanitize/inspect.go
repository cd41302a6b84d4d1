package sanitize

import (
	"strings"

	"github.com/andybalholm/cascadia"
	xhtml "golang.org/x/net/html"
)

var (
	mentionSelector = cascadia.MustCompile("a[data-mention]")
	embedSelector   = cascadia.MustCompile("img[src]")
	linkSelector    = cascadia.MustCompile("a[href]:not([data-mention])")
)

// Summary lists what a rendered post references.
type Summary struct {
	Mentions []string `json:"mentions"`
	Embeds   []string `json:"embeds"`
	Links    []string `json:"links"`
}

// Inspect reports the mentioned usernames, embedded image sources and link
// targets of sanitized markup, each de-duplicated in document order.
func Inspect(markup string) Summary {
	var sum Summary
	nodes, err := xhtml.ParseFragment(strings.NewReader(markup), bodyContext())
	if err != nil {
		return sum
	}
	root := bodyContext()
	for _, n := range nodes {
		root.AppendChild(n)
	}
	sum.Mentions = collect(mentionSelector.MatchAll(root), "data-mention")
	sum.Embeds = collect(embedSelector.MatchAll(root), "src")
	sum.Links = collect(linkSelector.MatchAll(root), "href")
	return sum
}

func collect(nodes []*xhtml.Node, key string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, n := range nodes {
		for _, a := range n.Attr {
			if a.Key != key || a.Val == "" || seen[a.Val] {
				continue
			}
			seen[a.Val] = true
			out = append(out, a.Val)
		}
	}
	return out
}
