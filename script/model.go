// Copyright (c) 2026, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package script

import "fmt"

// Model is the structure of a bash script, as built by a Builder. It is
// not modified once Build returns.
type Model struct {
	// Functions holds every function definition, nested ones included,
	// in source order.
	Functions []*Function

	// Blocks holds the top-level blocks; nested blocks hang from their
	// parent's Children.
	Blocks []*Block

	// Variables holds the variables in order of first appearance.
	Variables []*Variable

	// Errors holds the findings, ordered by start offset.
	Errors []*Error

	// lines contains the offset of the first character for each line
	// (the first entry is always 0)
	lines []int
}

// HasErrors reports whether the model has any findings.
func (m *Model) HasErrors() bool { return len(m.Errors) > 0 }

// Function returns the first function with the given name, or nil.
func (m *Model) Function(name string) *Function {
	for _, fn := range m.Functions {
		if fn.Name == name {
			return fn
		}
	}
	return nil
}

// Variable returns the global variable with the given name, or nil.
// Variables local to a function are found via LocalVariable.
func (m *Model) Variable(name string) *Variable {
	return m.LocalVariable("", name)
}

// LocalVariable returns the variable with the given name that is local
// to the named function. An empty function name means the global scope.
func (m *Model) LocalVariable(function, name string) *Variable {
	for _, v := range m.Variables {
		if v.Name == name && v.Function == function {
			return v
		}
	}
	return nil
}

// Lines returns the offsets at which each line of the source starts.
func (m *Model) Lines() []int { return m.lines }

// Position describes a location in the source text.
type Position struct {
	Offset int // byte offset, starting at 0
	Line   int // line number, starting at 1
	Column int // column number, starting at 1 (byte count)
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Position converts an offset into a line and column.
func (m *Model) Position(offset int) (pos Position) {
	pos.Offset = offset
	if i := searchInts(m.lines, offset); i >= 0 {
		pos.Line, pos.Column = i+1, offset-m.lines[i]+1
	}
	return pos
}

// Inlined version of:
// sort.Search(len(a), func(i int) bool { return a[i] > x }) - 1
func searchInts(a []int, x int) int {
	i, j := 0, len(a)
	for i < j {
		h := i + (j-i)/2
		if a[h] <= x {
			i = h + 1
		} else {
			j = h
		}
	}
	return i - 1
}

// BlockKind is the kind of structural construct a Block represents.
type BlockKind int

const (
	IfBlock       BlockKind = iota // if ... fi
	LoopBlock                      // do ... done
	BraceBlock                     // { ... }
	FunctionBlock                  // a function body
	CaseBlock                      // case ... esac
	SubshellBlock                  // ( ... )
)

var kindNames = [...]string{
	IfBlock:       "if",
	LoopBlock:     "loop",
	BraceBlock:    "brace",
	FunctionBlock: "function",
	CaseBlock:     "case",
	SubshellBlock: "subshell",
}

func (k BlockKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("BlockKind(%d)", int(k))
	}
	return kindNames[k]
}

// Block is a structural construct such as if ... fi or { ... }.
type Block struct {
	Kind BlockKind

	// Keyword is the word that opened the block, such as "while" or
	// "{".
	Keyword string

	// Start is the offset of the opening word. End is the offset just
	// past the closing word, or -1 if the block was never closed.
	Start, End int

	Children []*Block
}

// Closed reports whether the block met its closer.
func (b *Block) Closed() bool { return b.End >= 0 }

// Function is a function definition.
type Function struct {
	Name string

	// Start is the offset of the definition, including the function
	// keyword if present. NameStart is the offset of the name.
	Start, NameStart int

	// End is the offset just past the body, or -1 if the body was
	// missing or never closed.
	End int

	// Body is nil if the definition had no body.
	Body *Block
}

// Variable is a shell variable and every assignment made to it.
type Variable struct {
	Name string

	// Local is set for variables declared with local, or with declare
	// or typeset inside a function.
	Local bool

	// Function is the name of the function a local variable belongs
	// to. It is empty for global variables.
	Function string

	Assignments []Assignment
}

// InitialValue returns the value of the first assignment. The boolean
// is false if the variable was declared without a value and never
// assigned.
func (v *Variable) InitialValue() (string, bool) {
	if len(v.Assignments) == 0 {
		return "", false
	}
	return v.Assignments[0].Value, true
}

// Assignment is a single assignment to a variable.
type Assignment struct {
	Offset int // offset of the variable name
	Value  string
}
