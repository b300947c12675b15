// Copyright (c) 2026, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package script

import "strings"

// Tokenizer scans bash source into tokens, one at a time. It never
// fails: malformed input still produces tokens that cover all of it.
//
// A Tokenizer is not safe for concurrent use, but Reset allows reusing
// one for many inputs.
type Tokenizer struct {
	src  string
	npos int

	// here-documents whose delimiter was seen, waiting for their body
	hdocs    []hdoc
	hdocNext bool // a newline was just emitted; a body follows
	hdocWord bool // the next word is a here-document delimiter
	hdocDash bool
}

type hdoc struct {
	stop string
	dash bool
}

// NewTokenizer returns a Tokenizer positioned at the start of src.
func NewTokenizer(src string) *Tokenizer {
	t := &Tokenizer{}
	t.Reset(src)
	return t
}

// Reset discards any scanning state and restarts the scan on src.
func (t *Tokenizer) Reset(src string) {
	t.src = src
	t.npos = 0
	t.hdocs = t.hdocs[:0]
	t.hdocNext, t.hdocWord, t.hdocDash = false, false, false
}

// Tokenize returns all the tokens in src, the last one being EOF.
func Tokenize(src string) []Token {
	t := NewTokenizer(src)
	var toks []Token
	for {
		tok := t.Next()
		toks = append(toks, tok)
		if tok.Type == EOF {
			return toks
		}
	}
}

func (t *Tokenizer) tok(typ TokenType, start, end int) Token {
	t.npos = end
	return Token{Type: typ, Text: t.src[start:end], Start: start, End: end}
}

// Next returns the next token. Once the input is exhausted, it keeps
// returning a zero-width EOF token at the end of the input.
func (t *Tokenizer) Next() Token {
	if t.hdocNext {
		t.hdocNext = false
		return t.hdocBody()
	}
	start := t.npos
	if start >= len(t.src) {
		if len(t.hdocs) > 0 {
			return t.hdocBody()
		}
		return Token{Type: EOF, Start: len(t.src), End: len(t.src)}
	}
	switch c := t.src[start]; c {
	case ' ', '\t', '\r':
		return t.tok(Space, start, t.skipSpace(start))
	case '\\':
		if byteAt(t.src, start+1) == '\n' {
			return t.tok(Space, start, t.skipSpace(start))
		}
	case '\n':
		t.hdocWord = false
		if len(t.hdocs) > 0 {
			t.hdocNext = true
		}
		return t.tok(Newline, start, start+1)
	case '#':
		end := strings.IndexByte(t.src[start:], '\n')
		if end < 0 {
			end = len(t.src)
		} else {
			end += start
		}
		return t.tok(Comment, start, end)
	case '(':
		if byteAt(t.src, start+1) == '(' {
			// arithmetic command, such as ((i++))
			end, unclosed := t.skipParens(start + 1)
			tok := t.tok(Word, start, end)
			tok.Unclosed = unclosed
			return tok
		}
	case '<', '>':
		if byteAt(t.src, start+1) == '(' {
			// process substitution
			return t.word(start)
		}
	}
	if op := t.operator(start); op != "" {
		tok := t.tok(Operator, start, start+len(op))
		t.hdocWord = false
		switch op {
		case "<<", "<<-":
			t.hdocWord = true
			t.hdocDash = op == "<<-"
		}
		return tok
	}
	return t.word(start)
}

func (t *Tokenizer) operator(i int) string {
	rest := t.src[i:]
	for _, op := range operators {
		if strings.HasPrefix(rest, op) {
			return op
		}
	}
	return ""
}

func (t *Tokenizer) skipSpace(i int) int {
	for i < len(t.src) {
		switch t.src[i] {
		case ' ', '\t', '\r':
			i++
		case '\\':
			if byteAt(t.src, i+1) != '\n' {
				return i
			}
			i += 2
		default:
			return i
		}
	}
	return i
}

func wordBreak(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', ';', '&', '|', '<', '>', '(', ')':
		return true
	}
	return false
}

func (t *Tokenizer) word(start int) Token {
	src := t.src
	i := start
	unclosed := ""
loop:
	for i < len(src) && unclosed == "" {
		c := src[i]
		switch {
		case c == '(' && i > start && t.wordOpensParen(start, i):
			i, unclosed = t.skipParens(i + 1)
		case (c == '<' || c == '>') && i == start:
			i, unclosed = t.skipParens(i + 2)
		case wordBreak(c):
			break loop
		case c == '\\':
			i += 2
			if i > len(src) {
				i = len(src)
			}
		case c == '\'':
			i, unclosed = t.skipSingle(i+1, false)
		case c == '"':
			i, unclosed = t.skipDouble(i + 1)
		case c == '`':
			i, unclosed = t.skipBackquote(i + 1)
		case c == '$':
			i, unclosed = t.skipDollar(i)
		default:
			i++
		}
	}
	tok := t.tok(Word, start, i)
	tok.Unclosed = unclosed
	switch text := tok.Text; {
	case text == "{":
		tok.Type = BraceOpen
	case text == "}":
		tok.Type = BraceClose
	case keywords[text]:
		tok.Type = Keyword
	case text[0] == '\'' || text[0] == '"',
		strings.HasPrefix(text, "$'"), strings.HasPrefix(text, `$"`):
		tok.Type = String
	}
	if t.hdocWord {
		t.hdocWord = false
		t.hdocs = append(t.hdocs, hdoc{stop: unquote(tok.Text), dash: t.hdocDash})
	}
	return tok
}

// wordOpensParen reports whether a '(' at i continues the word that
// began at start, as in an array assignment or an extended glob.
func (t *Tokenizer) wordOpensParen(start, i int) bool {
	switch t.src[i-1] {
	case '=':
		name := t.src[start : i-1]
		name = strings.TrimSuffix(name, "+")
		return ValidName(name)
	case '?', '*', '+', '@', '!':
		return true
	}
	return false
}

// The skip helpers take the offset just past an opening delimiter and
// return the offset just past its closer. If the input ends first, they
// return the length of the input and the missing closer.

func (t *Tokenizer) skipSingle(i int, escapes bool) (int, string) {
	for ; i < len(t.src); i++ {
		switch t.src[i] {
		case '\\':
			if escapes {
				i++
			}
		case '\'':
			return i + 1, ""
		}
	}
	return len(t.src), "'"
}

func (t *Tokenizer) skipDouble(i int) (int, string) {
	unclosed := ""
	for i < len(t.src) && unclosed == "" {
		switch t.src[i] {
		case '\\':
			i += 2
		case '"':
			return i + 1, ""
		case '`':
			i, unclosed = t.skipBackquote(i + 1)
		case '$':
			i, unclosed = t.skipDollar(i)
		default:
			i++
		}
	}
	if unclosed != "" {
		return len(t.src), unclosed
	}
	return len(t.src), `"`
}

func (t *Tokenizer) skipBackquote(i int) (int, string) {
	for ; i < len(t.src); i++ {
		switch t.src[i] {
		case '\\':
			i++
		case '`':
			return i + 1, ""
		}
	}
	return len(t.src), "`"
}

// skipDollar takes the offset of a '$'.
func (t *Tokenizer) skipDollar(i int) (int, string) {
	switch byteAt(t.src, i+1) {
	case '(':
		return t.skipParens(i + 2)
	case '{':
		return t.skipBraces(i + 2)
	case '\'':
		return t.skipSingle(i+2, true)
	case '"':
		return t.skipDouble(i + 2)
	}
	return i + 1, ""
}

func (t *Tokenizer) skipParens(i int) (int, string) {
	return t.skipNested(i, '(', ')')
}

func (t *Tokenizer) skipBraces(i int) (int, string) {
	return t.skipNested(i, '{', '}')
}

func (t *Tokenizer) skipNested(i int, open, close byte) (int, string) {
	depth := 1
	unclosed := ""
	for i < len(t.src) && unclosed == "" {
		switch c := t.src[i]; c {
		case '\\':
			i += 2
		case '\'':
			i, unclosed = t.skipSingle(i+1, false)
		case '"':
			i, unclosed = t.skipDouble(i + 1)
		case '`':
			i, unclosed = t.skipBackquote(i + 1)
		case '$':
			i, unclosed = t.skipDollar(i)
		default:
			i++
			switch c {
			case open:
				depth++
			case close:
				if depth--; depth == 0 {
					return i, ""
				}
			}
		}
	}
	if unclosed != "" {
		return len(t.src), unclosed
	}
	return len(t.src), string(close)
}

// hdocBody emits the body of the oldest pending here-document, up to
// and including its delimiter line but not the newline after it.
func (t *Tokenizer) hdocBody() Token {
	h := t.hdocs[0]
	t.hdocs = t.hdocs[1:]
	start := t.npos
	for i := start; i < len(t.src); {
		eol := strings.IndexByte(t.src[i:], '\n')
		if eol < 0 {
			eol = len(t.src)
		} else {
			eol += i
		}
		line := t.src[i:eol]
		if h.dash {
			line = strings.TrimLeft(line, "\t")
		}
		if line == h.stop {
			return t.tok(Heredoc, start, eol)
		}
		i = eol + 1
	}
	tok := t.tok(Heredoc, start, len(t.src))
	tok.Unclosed = h.stop
	return tok
}

// unquote removes quoting from a here-document delimiter word.
func unquote(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '\'', '"', '\\':
			return -1
		}
		return r
	}, s)
}

func byteAt(src string, i int) byte {
	if i >= len(src) {
		return 0
	}
	return src[i]
}

// ValidName reports whether s is a valid shell variable name.
func ValidName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case 'a' <= r && r <= 'z':
		case 'A' <= r && r <= 'Z':
		case r == '_':
		case i > 0 && '0' <= r && r <= '9':
		default:
			return false
		}
	}
	return true
}
