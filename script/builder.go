// Copyright (c) 2026, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package script

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// Config selects which structural checks report errors. Disabling a
// check never changes the model that is built, only the errors.
type Config struct {
	IgnoreBlockValidation    bool // { }, ( ) and case ... esac
	IgnoreDoValidation       bool // do ... done
	IgnoreIfValidation       bool // if ... fi
	IgnoreFunctionValidation bool // function bodies
}

// BuilderOption is a function which can be passed to NewBuilder
// to alter its behavior. To apply option to existing Builder
// call it directly, for example IgnoreDoValidation(true)(builder).
type BuilderOption func(*Builder)

// IgnoreBlockValidation disables errors for unbalanced braces,
// subshells and case statements.
func IgnoreBlockValidation(enabled bool) BuilderOption {
	return func(b *Builder) { b.cfg.IgnoreBlockValidation = enabled }
}

// IgnoreDoValidation disables errors for unbalanced do and done.
func IgnoreDoValidation(enabled bool) BuilderOption {
	return func(b *Builder) { b.cfg.IgnoreDoValidation = enabled }
}

// IgnoreIfValidation disables errors for malformed if statements.
func IgnoreIfValidation(enabled bool) BuilderOption {
	return func(b *Builder) { b.cfg.IgnoreIfValidation = enabled }
}

// IgnoreFunctionValidation disables errors for functions without a
// body, or with a body that is never closed.
func IgnoreFunctionValidation(enabled bool) BuilderOption {
	return func(b *Builder) { b.cfg.IgnoreFunctionValidation = enabled }
}

// WithConfig replaces the whole validation configuration.
func WithConfig(cfg Config) BuilderOption {
	return func(b *Builder) { b.cfg = cfg }
}

// Builder builds script models. It holds no state between calls to
// Build, so it is safe for concurrent use once created.
type Builder struct {
	cfg Config
}

// NewBuilder allocates a new Builder and applies any number of options.
func NewBuilder(options ...BuilderOption) *Builder {
	b := &Builder{}
	for _, opt := range options {
		opt(b)
	}
	return b
}

// Config returns the validation configuration of the builder.
func (b *Builder) Config() Config { return b.cfg }

// Build is a shortcut for NewBuilder(WithConfig(cfg)).Build(src).
func Build(src string, cfg Config) (*Model, error) {
	return NewBuilder(WithConfig(cfg)).Build(src)
}

// Build tokenizes and parses src into a model. Malformed shell syntax
// is never a reason to fail; it is reported via Model.Errors. The only
// error returned is an *InputError for source text that is not valid
// UTF-8.
func (b *Builder) Build(src string) (*Model, error) {
	if !utf8.ValidString(src) {
		for i := 0; i < len(src); {
			r, size := utf8.DecodeRuneInString(src[i:])
			if r == utf8.RuneError && size == 1 {
				return nil, &InputError{Offset: i, Text: "invalid UTF-8 encoding"}
			}
			i += size
		}
	}
	s := &buildState{
		cfg:  b.cfg,
		m:    &Model{lines: lineOffsets(src)},
		toks: Significant(Tokenize(src)),
		cmd:  true,
		vars: make(map[varKey]*Variable),
	}
	s.run()
	return s.m, nil
}

func lineOffsets(src string) []int {
	lines := []int{0}
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' {
			lines = append(lines, i+1)
		}
	}
	return lines
}

type caseState int

const (
	caseHeader   caseState = iota // case WORD
	casePatterns                  // in PATTERN)
	caseBody                      // commands until ;; or esac
)

// frame is an open construct. Frames live in an arena and refer to
// their parent by index, so that the block tree can be built once the
// input is exhausted.
type frame struct {
	kind    BlockKind
	keyword string
	closer  string
	start   int
	end     int
	parent  int

	needThen  string // "if" or "elif" while waiting for "then"
	thenStart int
	needDo    bool
	cstate    caseState

	fn *Function
}

type varKey struct{ function, name string }

type declMode int

const (
	declNone declMode = iota
	declLocal
	declGlobal
	declScoped // declare and typeset: local only within a function
)

type buildState struct {
	cfg  Config
	m    *Model
	toks []Token

	frames []frame
	stack  []int

	// cmd is set when the next word is in command position, meaning
	// that it may be a keyword, an assignment or a function name.
	cmd bool

	// closed is set right after a compound command was closed, where
	// reserved words are still recognised but other words are not
	// commands.
	closed bool

	// redir is set when the next word is the target of a redirection.
	redir bool

	// test is set within [[ ... ]], where operators such as |, ( and )
	// are part of the conditional expression.
	test bool

	decl declMode

	// pending is a function header still waiting for its body.
	pending *Function

	vars map[varKey]*Variable
}

func (s *buildState) run() {
	for i := 0; i < len(s.toks); i++ {
		tok := s.toks[i]
		if tok.Unclosed != "" {
			s.unclosed(tok)
		}
		if s.pending != nil && tok.Type != Newline && tok.Type != EOF {
			if s.functionBody(tok) {
				continue
			}
		}
		if f := s.top(); f != nil && f.kind == CaseBlock && f.cstate == casePatterns {
			s.pattern(tok)
			continue
		}
		if s.test && s.condition(tok) {
			continue
		}
		reserved := s.cmd || s.closed
		s.closed = false
		switch tok.Type {
		case EOF:
			s.finish()
			return
		case Newline:
			s.separator()
		case Heredoc:
		case Operator:
			s.operator(tok)
		case BraceOpen:
			if s.cmd {
				s.push(BraceBlock, tok, "}")
				s.cmd = true
			} else {
				s.word(tok, i)
			}
		case BraceClose:
			if reserved {
				s.closeBrace(tok)
				s.cmd = false
			} else {
				s.word(tok, i)
			}
		case Keyword:
			if reserved && !s.redir {
				i = s.keyword(tok, i)
			} else {
				s.word(tok, i)
			}
		default:
			i = s.word(tok, i)
		}
	}
}

func (s *buildState) top() *frame {
	if len(s.stack) == 0 {
		return nil
	}
	return &s.frames[s.stack[len(s.stack)-1]]
}

func (s *buildState) push(kind BlockKind, tok Token, closer string) *frame {
	parent := -1
	if len(s.stack) > 0 {
		parent = s.stack[len(s.stack)-1]
	}
	s.frames = append(s.frames, frame{
		kind:    kind,
		keyword: tok.Text,
		closer:  closer,
		start:   tok.Start,
		end:     -1,
		parent:  parent,
	})
	s.stack = append(s.stack, len(s.frames)-1)
	return &s.frames[len(s.frames)-1]
}

func (s *buildState) pop(tok Token) {
	f := s.top()
	f.end = tok.End
	if f.fn != nil {
		f.fn.End = tok.End
	}
	s.stack = s.stack[:len(s.stack)-1]
	s.closed = true
}

// condition handles a token within [[ ... ]]. It reports whether the
// token was consumed; list terminators end the expression early, as
// they cannot appear within it.
func (s *buildState) condition(tok Token) bool {
	switch tok.Type {
	case EOF:
		s.test = false
		return false
	case Operator:
		switch tok.Text {
		case ";", "&", ";;", ";&", ";;&":
			s.test = false
			return false
		}
	case Word:
		if tok.Text == "]]" {
			s.test = false
			s.cmd = false
		}
	}
	return true
}

// function returns the name of the innermost function being defined.
func (s *buildState) function() string {
	for i := len(s.stack) - 1; i >= 0; i-- {
		if fn := s.frames[s.stack[i]].fn; fn != nil {
			return fn.Name
		}
	}
	return ""
}

func (s *buildState) ignored(kind BlockKind) bool {
	switch kind {
	case IfBlock:
		return s.cfg.IgnoreIfValidation
	case LoopBlock:
		return s.cfg.IgnoreDoValidation
	case FunctionBlock:
		return s.cfg.IgnoreFunctionValidation
	}
	return s.cfg.IgnoreBlockValidation
}

func (s *buildState) errorf(kind ErrorKind, start, end int, format string, a ...interface{}) {
	s.m.Errors = append(s.m.Errors, &Error{
		Kind:     kind,
		Severity: SeverityError,
		Message:  fmt.Sprintf(format, a...),
		Start:    start,
		End:      end,
	})
}

// mismatch reports a closer which does not match the innermost open
// construct. Nothing is popped; the closer is treated as a stray word,
// which keeps one mistake from turning into a cascade of errors.
func (s *buildState) mismatch(tok Token, kind BlockKind, opener string) {
	if s.ignored(kind) {
		return
	}
	for i := len(s.stack) - 1; i >= 0; i-- {
		if s.frames[s.stack[i]].closer == tok.Text {
			s.errorf(StructuralMismatch, tok.Start, tok.End,
				"%q found before %q was closed", tok.Text, s.top().keyword)
			return
		}
	}
	s.errorf(StructuralMismatch, tok.Start, tok.End,
		"%q without matching %q", tok.Text, opener)
}

func (s *buildState) followErr(kind BlockKind, start int, left, right string) {
	if s.ignored(kind) {
		return
	}
	s.errorf(StructuralMismatch, start, start+len(left),
		"%q must be followed by %s", left, right)
}

var openers = map[string]string{
	")": "(",
	"}": "${",
}

func (s *buildState) unclosed(tok Token) {
	if tok.Type == Heredoc {
		s.m.Errors = append(s.m.Errors, &Error{
			Kind:     UnterminatedQuote,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("unclosed here-document %q", tok.Unclosed),
			Start:    tok.Start,
			End:      tok.End,
		})
		return
	}
	if opener, ok := openers[tok.Unclosed]; ok {
		s.errorf(UnterminatedQuote, tok.Start, tok.End,
			"reached EOF without matching %s with %s", opener, tok.Unclosed)
		return
	}
	s.errorf(UnterminatedQuote, tok.Start, tok.End,
		"reached EOF without closing quote %s", tok.Unclosed)
}

func (s *buildState) separator() {
	s.cmd = true
	s.redir = false
	s.decl = declNone
}

func (s *buildState) operator(tok Token) {
	switch op := tok.Text; op {
	case ";;", ";&", ";;&":
		if f := s.top(); f != nil && f.kind == CaseBlock {
			f.cstate = casePatterns
			s.redir, s.decl = false, declNone
			return
		}
		s.separator()
	case ";", "&", "&&", "||", "|", "|&":
		s.separator()
	case "(":
		if s.cmd {
			s.push(SubshellBlock, tok, ")")
			s.separator()
		}
	case ")":
		f := s.top()
		if f != nil && f.closer == ")" {
			s.pop(tok)
		} else {
			s.mismatch(tok, SubshellBlock, "(")
		}
		s.cmd = false
	default:
		if isRedirect(op) {
			s.redir = true
		}
	}
}

func (s *buildState) closeBrace(tok Token) {
	if f := s.top(); f != nil && f.closer == "}" {
		s.pop(tok)
		return
	}
	s.mismatch(tok, BraceBlock, "{")
}

// keyword handles a reserved word in command position. It returns the
// index of the last token it consumed.
func (s *buildState) keyword(tok Token, i int) int {
	f := s.top()
	inIf := f != nil && f.kind == IfBlock
	s.cmd = true
	switch tok.Text {
	case "if":
		f := s.push(IfBlock, tok, "fi")
		f.needThen, f.thenStart = "if", tok.Start
	case "then":
		if !inIf {
			s.stray(tok, IfBlock, "an if")
			break
		}
		if f.needThen == "" {
			if !s.ignored(IfBlock) {
				s.errorf(StructuralMismatch, tok.Start, tok.End,
					`"then" can only be used once per if or elif`)
			}
			break
		}
		f.needThen = ""
	case "elif":
		if !inIf {
			s.stray(tok, IfBlock, "an if")
			break
		}
		if f.needThen != "" {
			s.followErr(IfBlock, f.thenStart, f.needThen, `"then"`)
		}
		f.needThen, f.thenStart = "elif", tok.Start
	case "else":
		if !inIf {
			s.stray(tok, IfBlock, "an if")
			break
		}
		if f.needThen != "" {
			s.followErr(IfBlock, f.thenStart, f.needThen, `"then"`)
			f.needThen = ""
		}
	case "fi":
		if !inIf {
			s.mismatch(tok, IfBlock, "if")
		} else {
			if f.needThen != "" {
				s.followErr(IfBlock, f.thenStart, f.needThen, `"then"`)
			}
			s.pop(tok)
		}
		s.cmd = false
	case "for", "select", "while", "until":
		f := s.push(LoopBlock, tok, "done")
		f.needDo = true
		// the loop variable of for and select is not a command
		s.cmd = tok.Text == "while" || tok.Text == "until"
	case "do":
		if f != nil && f.kind == LoopBlock && f.needDo {
			f.needDo = false
			break
		}
		s.stray(tok, LoopBlock, "a loop")
		// open a loop anyway, so that its done has a match
		s.push(LoopBlock, tok, "done")
	case "done":
		if f == nil || f.kind != LoopBlock {
			s.mismatch(tok, LoopBlock, "do")
		} else {
			if f.needDo {
				s.followErr(LoopBlock, f.start, f.keyword, `"do"`)
			}
			s.pop(tok)
		}
		s.cmd = false
	case "case":
		s.push(CaseBlock, tok, "esac")
		s.cmd = false
	case "esac":
		s.esac(tok)
	case "function":
		return s.functionHeader(tok, i)
	}
	return i
}

func (s *buildState) stray(tok Token, kind BlockKind, where string) {
	if s.ignored(kind) {
		return
	}
	s.errorf(StructuralMismatch, tok.Start, tok.End,
		"%q can only be used in %s", tok.Text, where)
}

func (s *buildState) esac(tok Token) {
	if f := s.top(); f != nil && f.kind == CaseBlock {
		s.pop(tok)
	} else {
		s.mismatch(tok, CaseBlock, "case")
	}
	s.cmd = false
}

// pattern handles a token within the patterns of a case clause, where
// nothing is a keyword except for esac.
func (s *buildState) pattern(tok Token) {
	switch {
	case tok.Type == EOF:
		s.finish()
	case tok.Text == "esac" && (tok.Type == Keyword || tok.Type == Word):
		s.esac(tok)
	case tok.Type == Operator && tok.Text == ")":
		s.top().cstate = caseBody
		s.separator()
	}
}

// functionHeader handles "function name [()]". It returns the index of
// the last token of the header.
func (s *buildState) functionHeader(tok Token, i int) int {
	next := s.toks[i+1]
	switch next.Type {
	case Word, Keyword, String:
	default:
		if !s.ignored(FunctionBlock) {
			s.errorf(StructuralMismatch, tok.Start, tok.End,
				`"function" must be followed by a name`)
		}
		return i
	}
	i++
	s.pending = &Function{Name: next.Text, Start: tok.Start, NameStart: next.Start, End: -1}
	if s.isOperator(i+1, "(") && s.isOperator(i+2, ")") {
		i += 2
	}
	s.m.Functions = append(s.m.Functions, s.pending)
	s.separator()
	return i
}

func (s *buildState) isOperator(i int, op string) bool {
	return i < len(s.toks) && s.toks[i].Type == Operator && s.toks[i].Text == op
}

// functionBody handles the first token after a function header. It
// reports whether the token opened the body.
func (s *buildState) functionBody(tok Token) bool {
	fn := s.pending
	s.pending = nil
	switch {
	case tok.Type == BraceOpen:
		s.push(FunctionBlock, tok, "}").fn = fn
	case tok.Type == Operator && tok.Text == "(":
		s.push(FunctionBlock, tok, ")").fn = fn
	default:
		s.missingBody(fn)
		return false
	}
	s.separator()
	return true
}

func (s *buildState) missingBody(fn *Function) {
	if s.ignored(FunctionBlock) {
		return
	}
	s.errorf(StructuralMismatch, fn.Start, fn.NameStart+len(fn.Name),
		"function %q must be followed by a body", fn.Name)
}

// word handles any word which is not acting as a keyword. It returns
// the index of the last token it consumed.
func (s *buildState) word(tok Token, i int) int {
	if s.redir {
		s.redir = false
		return i
	}
	if f := s.top(); f != nil && f.kind == CaseBlock && f.cstate == caseHeader {
		if tok.Text == "in" {
			f.cstate = casePatterns
		}
		return i
	}
	if !s.cmd {
		if s.decl != declNone && tok.Type == Word && !strings.HasPrefix(tok.Text, "-") {
			s.declare(tok)
		}
		if s.decl == declScoped && strings.HasPrefix(tok.Text, "-") &&
			strings.Contains(tok.Text, "g") {
			s.decl = declGlobal // declare -g
		}
		return i
	}
	if tok.Type != Word {
		s.cmd = false
		return i
	}
	if s.isOperator(i+1, "(") && s.isOperator(i+2, ")") && funcName(tok.Text) {
		s.pending = &Function{Name: tok.Text, Start: tok.Start, NameStart: tok.Start, End: -1}
		s.m.Functions = append(s.m.Functions, s.pending)
		s.separator()
		return i + 2
	}
	if name, value, ok := splitAssign(tok.Text); ok {
		// assignments may prefix a command, so stay in command position
		s.assignScoped(name, value, tok.Start, false, true)
		return i
	}
	s.cmd = false
	switch tok.Text {
	case "!", "time":
		s.cmd = true
	case "[[":
		s.test = true
	case "local":
		s.decl = declLocal
	case "declare", "typeset":
		s.decl = declScoped
	case "export", "readonly":
		s.decl = declGlobal
	}
	return i
}

func (s *buildState) declare(tok Token) {
	local := false
	switch s.decl {
	case declLocal:
		local = true
	case declScoped:
		local = s.function() != ""
	}
	if name, value, ok := splitAssign(tok.Text); ok {
		s.assignScoped(name, value, tok.Start, local, true)
		return
	}
	if s.decl != declGlobal && ValidName(tok.Text) {
		s.assignScoped(tok.Text, "", tok.Start, local, false)
	}
}

// assignScoped records an assignment, or a bare declaration if hasValue
// is false. Plain assignments inside a function go to a local variable
// of that name if one was declared there.
func (s *buildState) assignScoped(name, value string, offset int, local, hasValue bool) {
	key := varKey{name: name}
	if fn := s.function(); fn != "" {
		if local || s.vars[varKey{fn, name}] != nil {
			key.function = fn
		}
	}
	v := s.vars[key]
	if v == nil {
		v = &Variable{Name: name, Local: local, Function: key.function}
		s.vars[key] = v
		s.m.Variables = append(s.m.Variables, v)
	}
	if local {
		v.Local = true
	}
	if hasValue {
		v.Assignments = append(v.Assignments, Assignment{Offset: offset, Value: value})
	}
}

// splitAssign splits words like "name=value", "name+=value" and
// "name[i]=value".
func splitAssign(word string) (name, value string, ok bool) {
	i := strings.IndexByte(word, '=')
	if i <= 0 {
		return "", "", false
	}
	name, value = word[:i], word[i+1:]
	name = strings.TrimSuffix(name, "+")
	if j := strings.IndexByte(name, '['); j > 0 && strings.HasSuffix(name, "]") {
		name = name[:j]
	}
	if !ValidName(name) {
		return "", "", false
	}
	return name, value, true
}

// funcName reports whether a word can name a function. Bash is lenient
// here, allowing names like "foo-bar" or "ns::fn".
func funcName(word string) bool {
	return word != "" && !strings.ContainsAny(word, "=$`'\"\\{}[]")
}

// finish reports what is still open at the end of the input and builds
// the block tree.
func (s *buildState) finish() {
	if s.pending != nil {
		s.missingBody(s.pending)
		s.pending = nil
	}
	for _, idx := range s.stack {
		f := &s.frames[idx]
		if s.ignored(f.kind) {
			continue
		}
		s.errorf(UnterminatedConstruct, f.start, f.start+len(f.keyword),
			"reached EOF without matching %s with %s", readable(f.keyword), readable(f.closer))
	}
	s.stack = s.stack[:0]

	blocks := make([]*Block, len(s.frames))
	for i, f := range s.frames {
		b := &Block{Kind: f.kind, Keyword: f.keyword, Start: f.start, End: f.end}
		blocks[i] = b
		if f.parent < 0 {
			s.m.Blocks = append(s.m.Blocks, b)
		} else {
			parent := blocks[f.parent]
			parent.Children = append(parent.Children, b)
		}
		if f.fn != nil {
			f.fn.Body = b
		}
	}
	sort.SliceStable(s.m.Errors, func(i, j int) bool {
		return s.m.Errors[i].Start < s.m.Errors[j].Start
	})
}

// readable quotes reserved words, but not tokens like { or ).
func readable(s string) string {
	if s != "" && s[0] >= 'a' && s[0] <= 'z' {
		return fmt.Sprintf("%q", s)
	}
	return s
}
