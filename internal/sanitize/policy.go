// Package sanitize turns untrusted post markup into markup that only uses a
// fixed whitelist of tags, attributes and inline style properties.
package sanitize

import "sort"

// Policy is the whitelist applied by Sanitize. It is fixed; the zero value
// permits nothing.
type Policy struct {
	tags   map[string]map[string]bool
	styles map[string]bool
}

var defaultPolicy = Policy{
	tags: map[string]map[string]bool{
		"b":          nil,
		"strong":     nil,
		"i":          nil,
		"em":         nil,
		"s":          nil,
		"strike":     nil,
		"del":        nil,
		"a":          set("href", "target", "rel", "class", "data-mention"),
		"br":         nil,
		"div":        set("style"),
		"p":          nil,
		"img":        set("src", "alt", "style"),
		"span":       set("style"),
		"ul":         nil,
		"ol":         nil,
		"li":         nil,
		"blockquote": nil,
		"font":       set("face", "color"),
	},
	styles: set("font-family", "color", "max-width", "border-radius", "margin-top", "display", "margin-left"),
}

func set(keys ...string) map[string]bool {
	out := make(map[string]bool, len(keys))
	for _, k := range keys {
		out[k] = true
	}
	return out
}

// DefaultPolicy returns the whitelist used for every rendered post.
func DefaultPolicy() Policy {
	return defaultPolicy
}

func (p Policy) AllowsTag(tag string) bool {
	_, ok := p.tags[tag]
	return ok
}

func (p Policy) AllowsAttr(tag, attr string) bool {
	return p.tags[tag][attr]
}

func (p Policy) AllowsStyle(prop string) bool {
	return p.styles[prop]
}

// Tags lists the permitted tag names in sorted order.
func (p Policy) Tags() []string {
	out := make([]string, 0, len(p.tags))
	for t := range p.tags {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
