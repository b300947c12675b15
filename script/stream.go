// Copyright (c) 2026, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package script

// Significant filters a token stream down to the tokens that matter for
// structure. Spaces and comments are dropped; everything else keeps its
// original offsets, so errors can still point at the source.
func Significant(toks []Token) []Token {
	out := make([]Token, 0, len(toks))
	for _, tok := range toks {
		switch tok.Type {
		case Space, Comment:
			continue
		}
		out = append(out, tok)
	}
	return out
}
