// Package edit turns formatting results into text edits for the host and
// manages provider registration per workspace folder.
package edit

import (
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// SchemeFile is the URI scheme of documents backed by a file.
const SchemeFile = "file"

// Position is a zero-based line and a character offset counted in UTF-16
// code units, as editors report them.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range is a half-open span of a document.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// TextEdit replaces Range with NewText.
type TextEdit struct {
	Range   Range  `json:"range"`
	NewText string `json:"newText"`
}

// Document is a snapshot of an open document.
type Document struct {
	URI        string
	Scheme     string
	FileName   string
	LanguageID string
	Text       string
}

// Virtual reports whether the document has no file on disk.
func (d Document) Virtual() bool {
	return d.Scheme != "" && d.Scheme != SchemeFile
}

// FullRange spans the whole text.
func FullRange(text string) Range {
	return Range{End: PositionAt(text, len(text))}
}

// GetText returns the text covered by r.
func (d Document) GetText(r Range) string {
	start, end := OffsetAt(d.Text, r.Start), OffsetAt(d.Text, r.End)
	if end < start {
		start, end = end, start
	}
	return d.Text[start:end]
}

// OffsetAt converts a position to a byte offset. Positions past the end of
// a line or of the text are clamped.
func OffsetAt(text string, p Position) int {
	offset := 0
	for line := 0; line < p.Line; line++ {
		i := strings.IndexByte(text[offset:], '\n')
		if i < 0 {
			return len(text)
		}
		offset += i + 1
	}
	units := 0
	for offset < len(text) && units < p.Character {
		r, size := utf8.DecodeRuneInString(text[offset:])
		if r == '\n' || (r == '\r' && strings.HasPrefix(text[offset:], "\r\n")) {
			break
		}
		units += utf16.RuneLen(r)
		offset += size
	}
	return offset
}

// UnitOffsetAt converts a position to an offset in UTF-16 code units from
// the start of text. JavaScript tools count ranges in these units.
func UnitOffsetAt(text string, p Position) int {
	units := 0
	for _, r := range text[:OffsetAt(text, p)] {
		units += utf16.RuneLen(r)
	}
	return units
}

// PositionAt converts a byte offset to a position.
func PositionAt(text string, offset int) Position {
	if offset > len(text) {
		offset = len(text)
	}
	head := text[:offset]
	line := strings.Count(head, "\n")
	lineStart := strings.LastIndexByte(head, '\n') + 1
	char := 0
	for _, r := range head[lineStart:] {
		char += utf16.RuneLen(r)
	}
	return Position{Line: line, Character: char}
}
