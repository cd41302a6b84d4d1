package doc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertTextWithTypingStyle(t *testing.T) {
	d := FromBlocks(NewLine(NewText("ab")))
	pos := Position{Node: lineText(d, 0), Offset: 2}
	style := TypingStyle{}.ToggleMark(MarkBold)

	pos, err := InsertText(d, pos, "c", style)
	require.NoError(t, err)
	pos, err = InsertText(d, pos, "d", style)
	require.NoError(t, err)

	assert.Equal(t, "ab<b>cd</b>", d.Markup())
	assert.Equal(t, 2, pos.Offset)
}

func TestTypingStyleToggle(t *testing.T) {
	s := TypingStyle{}.ToggleMark(MarkItalic)
	assert.True(t, s.Has(MarkItalic))
	s = s.ToggleMark(MarkItalic)
	assert.True(t, s.IsZero())
}

func TestInsertParagraphAndBackspaceJoin(t *testing.T) {
	d := FromBlocks(NewLine(NewText("hello")))
	pos, err := InsertParagraph(d, Position{Node: lineText(d, 0), Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, "he<div>llo</div>", d.Markup())
	assert.Equal(t, 0, pos.Offset)
	assert.Equal(t, "llo", pos.Node.Text)

	pos, err = Backspace(d, pos)
	require.NoError(t, err)
	assert.Equal(t, "hello", d.Markup())
	assert.Equal(t, "llo", pos.Node.Text)
}

func TestBackspaceRemovesRuneAndAtomic(t *testing.T) {
	d := FromBlocks(NewLine(NewText("ab"), NewEmbed("https://x/a.png", ""), NewText("")))
	tail := d.Leaves()[2]

	pos, err := Backspace(d, Position{Node: tail})
	require.NoError(t, err)
	assert.Equal(t, "ab", d.Markup())

	pos, err = Backspace(d, pos)
	require.NoError(t, err)
	assert.Equal(t, "a", d.Markup())
	assert.Equal(t, 1, pos.Offset)
}

func TestDeleteRangeAcrossLines(t *testing.T) {
	d := FromBlocks(NewLine(NewText("hello")), NewLine(NewText("world")))
	sel := Selection{
		Anchor: Position{Node: lineText(d, 0), Offset: 2},
		Focus:  Position{Node: lineText(d, 1), Offset: 3},
	}

	pos, err := DeleteRange(d, sel)
	require.NoError(t, err)
	assert.Equal(t, "held", d.Markup())
	assert.Equal(t, 2, pos.Offset)
	assert.Len(t, d.LeafBlocks(), 1)
}

func TestCommitMentionReplacesQuery(t *testing.T) {
	d := FromBlocks(NewLine(NewText("hi @al")))
	pos, err := CommitMention(d, lineText(d, 0), 3, 6, "alice")
	require.NoError(t, err)

	assert.Equal(t,
		"hi <a href=\"/u/alice\" class=\"mention\" data-mention=\"alice\" contenteditable=\"false\">@alice</a>\u00a0",
		d.Markup())
	assert.Equal(t, 1, pos.Offset)
	assert.Equal(t, "\u00a0", pos.Node.Text)
}

func TestInsertLinkAtCaret(t *testing.T) {
	d := FromBlocks(NewLine(NewText("see ")))
	pos, err := InsertLink(d, Position{Node: lineText(d, 0), Offset: 4}, "https://x.io", "x")
	require.NoError(t, err)
	assert.Equal(t,
		"see <a href=\"https://x.io\" target=\"_blank\" rel=\"noopener noreferrer\">x</a>\u00a0",
		d.Markup())
	assert.Equal(t, 1, pos.Offset)
}

func TestInsertEmbedPlacesCaretAfter(t *testing.T) {
	d := New()
	pos, err := InsertEmbed(d, d.Start(), "https://cdn/x.gif", "gif")
	require.NoError(t, err)
	assert.False(t, d.IsEmpty())
	assert.Equal(t, 1, d.OffsetOf(pos))
	assert.Equal(t, `<img src="https://cdn/x.gif" alt="gif" style="`+EmbedStyle+`"/>`, d.Markup())
}

func TestOffsetsRoundTrip(t *testing.T) {
	d := FromBlocks(NewLine(NewText("ab")), NewLine(NewText("cd")))
	p := d.PositionAt(3)
	assert.Equal(t, "cd", p.Node.Text)
	assert.Equal(t, 0, p.Offset)
	assert.Equal(t, 3, d.OffsetOf(p))

	p = d.PositionAt(99)
	assert.Equal(t, 2, p.Offset)
	assert.Equal(t, "ab\ncd", d.Text())
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, New().IsEmpty())
	assert.True(t, FromBlocks(NewLine(NewText(" \u00a0 ")), NewLine(NewBreak())).IsEmpty())
	assert.False(t, FromBlocks(NewLine(NewEmbed("https://x/y.png", ""))).IsEmpty())
}

const (
	linkA = `<a href="https://a.io" target="_blank" rel="noopener noreferrer">`
	linkB = `<a href="https://b.io" target="_blank" rel="noopener noreferrer">`
)

func assertStableMarkup(t *testing.T, d *Document) {
	t.Helper()
	reparsed, err := Parse(d.Markup())
	require.NoError(t, err)
	assert.Equal(t, d.Markup(), reparsed.Markup())
}

func TestInsertLinkInsideLinkSplitsIt(t *testing.T) {
	cases := []struct {
		name   string
		offset int
		want   string
	}{
		{"middle", 3, linkA + "abc</a>" + linkB + "x</a>\u00a0" + linkA + "def</a>"},
		{"start", 0, linkB + "x</a>\u00a0" + linkA + "abcdef</a>"},
		{"end", 6, linkA + "abcdef</a>" + linkB + "x</a>\u00a0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := FromBlocks(NewLine(NewAnchor("https://a.io", NewText("abcdef"))))
			text := d.Leaves()[0]

			pos, err := InsertLink(d, Position{Node: text, Offset: tc.offset}, "https://b.io", "x")
			require.NoError(t, err)
			assert.Equal(t, tc.want, d.Markup())
			assert.Nil(t, pos.Node.closest(IsAnchor))
			assertStableMarkup(t, d)
		})
	}
}

func TestCommitMentionInsideLinkSplitsIt(t *testing.T) {
	d := FromBlocks(NewLine(NewAnchor("https://a.io", NewText("hi @al there"))))
	text := d.Leaves()[0]

	pos, err := CommitMention(d, text, 3, 6, "alice")
	require.NoError(t, err)

	mention := `<a href="/u/alice" class="mention" data-mention="alice" contenteditable="false">@alice</a>`
	assert.Equal(t, linkA+"hi </a>"+mention+"\u00a0"+linkA+" there</a>", d.Markup())
	assert.Equal(t, "\u00a0", pos.Node.Text)
	assert.Equal(t, 1, pos.Offset)
	assertStableMarkup(t, d)
}
