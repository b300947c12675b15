// Copyright (c) 2026, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package script

import "fmt"

// TokenType is the lexical class of a Token.
type TokenType int

const (
	EOF TokenType = iota
	Word
	Keyword
	Operator
	BraceOpen  // {
	BraceClose // }
	String     // a word starting with a quote
	Heredoc    // here-document body, delimiter line included
	Comment
	Space
	Newline
)

var typeNames = [...]string{
	EOF:        "EOF",
	Word:       "Word",
	Keyword:    "Keyword",
	Operator:   "Operator",
	BraceOpen:  "BraceOpen",
	BraceClose: "BraceClose",
	String:     "String",
	Heredoc:    "Heredoc",
	Comment:    "Comment",
	Space:      "Space",
	Newline:    "Newline",
}

func (t TokenType) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return fmt.Sprintf("TokenType(%d)", int(t))
	}
	return typeNames[t]
}

// Token is a span of the source text. Concatenating the Text of all
// tokens produced for an input, in order, yields the input again.
type Token struct {
	Type TokenType
	Text string

	// Start and End are byte offsets into the source; End is exclusive.
	Start, End int

	// Unclosed holds the closer that was still missing when the end of
	// the input was reached, such as `"`, ")" or a here-document
	// delimiter. It is empty for complete tokens.
	Unclosed string
}

func (t Token) String() string {
	return fmt.Sprintf("%s %q @%d", t.Type, t.Text, t.Start)
}

var keywords = map[string]bool{
	"if":       true,
	"then":     true,
	"else":     true,
	"elif":     true,
	"fi":       true,
	"for":      true,
	"while":    true,
	"until":    true,
	"select":   true,
	"do":       true,
	"done":     true,
	"function": true,
	"case":     true,
	"esac":     true,
}

// IsKeyword reports whether s is one of the reserved words the builder
// tracks.
func IsKeyword(s string) bool { return keywords[s] }

var operators = [...]string{
	// longest first, so that prefixes never win
	";;&", "<<<", "<<-", "&>>",
	";;", ";&", "&&", "||", "|&", ">>", "<<", "<&", ">&", "<>", ">|", "&>",
	";", "&", "|", "(", ")", "<", ">",
}

func isRedirect(op string) bool {
	switch op {
	case "<", ">", ">>", "<&", ">&", "<>", ">|", "&>", "&>>",
		"<<", "<<-", "<<<":
		return true
	}
	return false
}
