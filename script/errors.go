// Copyright (c) 2026, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package script

import "fmt"

// Severity is how serious an Error is.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	}
	return fmt.Sprintf("Severity(%d)", int(s))
}

// ErrorKind classifies an Error.
type ErrorKind int

const (
	// StructuralMismatch is a closer without a matching opener, or an
	// opener missing a required keyword such as "then".
	StructuralMismatch ErrorKind = iota

	// UnterminatedConstruct is a construct still open at the end of
	// the input.
	UnterminatedConstruct

	// UnterminatedQuote is a quote, substitution or here-document
	// still open at the end of the input.
	UnterminatedQuote
)

func (k ErrorKind) String() string {
	switch k {
	case StructuralMismatch:
		return "structural mismatch"
	case UnterminatedConstruct:
		return "unterminated construct"
	case UnterminatedQuote:
		return "unterminated quote"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Error is a finding about the structure of a script. Start and End are
// offsets into the source; End is exclusive.
type Error struct {
	Kind     ErrorKind
	Severity Severity
	Message  string
	Start    int
	End      int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d: %s", e.Start, e.Message)
}

// InputError is returned by Build when the source text cannot be
// tokenized at all, such as when it is not valid UTF-8.
type InputError struct {
	Offset int // offset of the first invalid byte
	Text   string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid input at offset %d: %s", e.Offset, e.Text)
}
