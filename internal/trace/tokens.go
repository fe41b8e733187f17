package trace

import (
	"strings"
	"unicode"
)

// Token boundary enumeration. The sampler queries goal states at candidate
// boundaries rather than every column: a boundary is the start of each
// lexical token plus the end of each line, which is where an elaborator can
// change its reported state.

type charClass int

const (
	classSpace charClass = iota
	classWord
	classSymbol
)

func classify(r rune) charClass {
	switch {
	case unicode.IsSpace(r):
		return classSpace
	case r == '_' || r == '\'' || unicode.IsLetter(r) || unicode.IsDigit(r):
		return classWord
	default:
		return classSymbol
	}
}

// lineBoundaries returns the candidate columns for one line: column 0, the
// column of every class transition, and the column past the last character.
func lineBoundaries(line string) []int {
	cols := []int{0}
	runes := []rune(line)
	for i := 1; i < len(runes); i++ {
		if classify(runes[i]) != classify(runes[i-1]) {
			cols = append(cols, i)
		}
	}
	if len(runes) > 0 {
		cols = append(cols, len(runes))
	}
	return cols
}

// Lines splits source text into lines without trailing newlines. Empty text
// has no lines.
func Lines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// FileExtent returns the position one past the last line of text: the
// exclusive upper bound every trace for the file must cover. An empty file
// has extent (0, 0).
func FileExtent(text string) Position {
	return Position{Line: len(Lines(text))}
}

// Boundaries returns all candidate sample positions for text, in position
// order. Empty text yields none.
func Boundaries(text string) []Position {
	lines := Lines(text)
	return BoundariesRange(text, 0, len(lines))
}

// BoundariesRange returns candidate positions restricted to lines in
// [startLine, endLine). The range is clamped to the file.
func BoundariesRange(text string, startLine, endLine int) []Position {
	lines := Lines(text)
	if startLine < 0 {
		startLine = 0
	}
	if endLine > len(lines) {
		endLine = len(lines)
	}
	var out []Position
	for ln := startLine; ln < endLine; ln++ {
		for _, col := range lineBoundaries(lines[ln]) {
			out = append(out, Position{Line: ln, Column: col})
		}
	}
	return out
}
