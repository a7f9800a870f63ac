package edit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFullRange(t *testing.T) {
	assert.Equal(t, Range{End: Position{Line: 0, Character: 0}}, FullRange(""))
	assert.Equal(t, Range{End: Position{Line: 2, Character: 0}}, FullRange("a\nb\n"))
	assert.Equal(t, Range{End: Position{Line: 1, Character: 3}}, FullRange("x\nabc"))
}

func TestOffsetsUseUTF16Units(t *testing.T) {
	text := "const s = '😀';\nnext"
	// The emoji is two UTF-16 units and four bytes.
	pos := Position{Line: 0, Character: 13}
	off := OffsetAt(text, pos)
	assert.Equal(t, "';\nnext", text[off:])
	assert.Equal(t, pos, PositionAt(text, off))
}

func TestOffsetClamping(t *testing.T) {
	text := "ab\r\ncd"
	assert.Equal(t, 2, OffsetAt(text, Position{Line: 0, Character: 10}))
	assert.Equal(t, len(text), OffsetAt(text, Position{Line: 9, Character: 0}))
	assert.Equal(t, 4, OffsetAt(text, Position{Line: 1, Character: 0}))
}

func TestGetText(t *testing.T) {
	doc := Document{Text: "line one\nline two\nline three"}
	assert.Equal(t, "one\nline", doc.GetText(Range{Start: Position{0, 5}, End: Position{1, 4}}))
	assert.Equal(t, doc.Text, doc.GetText(FullRange(doc.Text)))
	assert.True(t, Document{Scheme: "untitled"}.Virtual())
	assert.False(t, Document{Scheme: SchemeFile}.Virtual())
	assert.False(t, Document{}.Virtual())
}

func TestSelector(t *testing.T) {
	sel := NewSelector("/w", []string{"**/*.svelte", " ", "scripts/*.es6"})

	assert.True(t, sel.Matches(Document{FileName: "/w/src/a.ts"}))
	assert.True(t, sel.Matches(Document{FileName: "/w/anything", LanguageID: "markdown"}))
	assert.True(t, sel.Matches(Document{FileName: "/w/app/Page.svelte"}))
	assert.True(t, sel.Matches(Document{FileName: "/w/scripts/build.es6"}))
	assert.False(t, sel.Matches(Document{FileName: "/w/other/build.es6"}))
	assert.False(t, sel.Matches(Document{FileName: "/elsewhere/Page.svelte"}))
	assert.False(t, sel.Matches(Document{FileName: "/w/main.go"}))

	assert.True(t, sel.MatchesRange(Document{FileName: "/w/a.tsx"}))
	assert.False(t, sel.MatchesRange(Document{FileName: "/w/a.css"}))
	assert.Equal(t, "typescriptreact", LanguageFor("/w/A.TSX"))
}

func TestUnitOffsetAtCountsUTF16(t *testing.T) {
	text := "é😀x\nb"
	assert.Equal(t, 3, UnitOffsetAt(text, Position{Line: 0, Character: 3}))
	assert.Equal(t, 6, UnitOffsetAt(text, Position{Line: 1, Character: 1}))
	assert.Equal(t, 0, UnitOffsetAt(text, Position{}))
}
