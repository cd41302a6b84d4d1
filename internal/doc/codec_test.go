package doc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMarkupRoundTrip(t *testing.T) {
	cases := []string{
		"hello <b>world</b><div>second</div>",
		"<ul><li>one</li><li><i>two</i></li></ul>",
		"<blockquote><div>quoted</div></blockquote>",
		`<span style="color: red">warm</span> and <span style="font-family: Georgia, serif">serif</span>`,
		"hi <a href=\"/u/alice\" class=\"mention\" data-mention=\"alice\" contenteditable=\"false\">@alice</a>\u00a0",
		`look <a href="https://x.io" target="_blank" rel="noopener noreferrer">here</a>`,
		"line<br/>break",
	}
	for _, markup := range cases {
		d, err := Parse(markup)
		require.NoError(t, err)
		assert.Equal(t, markup, d.Markup(), "markup %q", markup)
	}
}

func TestParseNormalisesLegacyTags(t *testing.T) {
	d, err := Parse(`<strong>a</strong><em>b</em><del>c</del><font color="blue">d</font>`)
	require.NoError(t, err)
	assert.Equal(t, `<b>a</b><i>b</i><s>c</s><span style="color: blue">d</span>`, d.Markup())
}

func TestParseEmbedGetsFixedStyle(t *testing.T) {
	d, err := Parse(`<img src="https://x/y.png" alt="image" style="width: 9000px">`)
	require.NoError(t, err)
	assert.Equal(t, `<img src="https://x/y.png" alt="image" style="`+EmbedStyle+`"/>`, d.Markup())
	assert.False(t, d.IsEmpty())
}

func TestParseMentionIsAtomic(t *testing.T) {
	d, err := Parse(`<a data-mention="bob" href="/elsewhere">@someone else</a>`)
	require.NoError(t, err)
	leaves := d.Leaves()
	require.Equal(t, KindMention, leaves[0].Kind)
	assert.Equal(t, "bob", leaves[0].Username)
	assert.Equal(t, "@bob", d.Text())
}

func TestParseEmptyAndUnknown(t *testing.T) {
	d, err := Parse("")
	require.NoError(t, err)
	assert.True(t, d.IsEmpty())
	assert.Equal(t, "", d.Markup())

	d, err = Parse("<section><article>kept</article></section>")
	require.NoError(t, err)
	assert.Equal(t, "kept", d.Markup())
}

func TestParseEmptyLinePreserved(t *testing.T) {
	d, err := Parse("a<div><br></div><div>b</div>")
	require.NoError(t, err)
	assert.Len(t, d.LeafBlocks(), 3)
	assert.Equal(t, "a<div><br/></div><div>b</div>", d.Markup())
}
