// Copyright (c) 2026, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package validate

import (
	"fmt"
	"sort"
)

// LineResolver maps an offset in a document to a line number.
type LineResolver interface {
	LineOfOffset(offset int) (int, error)
}

// LineResolverFunc is a function implementing LineResolver.
type LineResolverFunc func(offset int) (int, error)

func (f LineResolverFunc) LineOfOffset(offset int) (int, error) { return f(offset) }

// LocationError is returned by a LineResolver when an offset is outside of
// the document it resolves against.
type LocationError struct {
	Offset int
	Size   int
}

func (e *LocationError) Error() string {
	return fmt.Sprintf("offset %d out of range [0, %d]", e.Offset, e.Size)
}

// TextLines is a LineResolver over a text buffer. Lines are 0-based.
type TextLines struct {
	size  int
	lines []int // offsets at which each line starts
}

// NewTextLines indexes the line starts of text.
func NewTextLines(text string) *TextLines {
	t := &TextLines{size: len(text), lines: []int{0}}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			t.lines = append(t.lines, i+1)
		}
	}
	return t
}

// LineOfOffset returns the 0-based line holding offset. The offset just
// past the end of the text is valid, as that is where end of input is
// reported.
func (t *TextLines) LineOfOffset(offset int) (int, error) {
	if offset < 0 || offset > t.size {
		return 0, &LocationError{Offset: offset, Size: t.size}
	}
	return sort.SearchInts(t.lines, offset+1) - 1, nil
}

// LineStart returns the offset at which a 0-based line starts, or -1 if
// there is no such line.
func (t *TextLines) LineStart(line int) int {
	if line < 0 || line >= len(t.lines) {
		return -1
	}
	return t.lines[line]
}

// Lines returns the number of lines in the text.
func (t *TextLines) Lines() int { return len(t.lines) }
