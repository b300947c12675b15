// Copyright (c) 2026, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package script

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/google/go-cmp/cmp"
)

type errSummary struct {
	Start   int
	Kind    ErrorKind
	Message string
}

func summarizeErrors(errs []*Error) []errSummary {
	var sums []errSummary
	for _, e := range errs {
		sums = append(sums, errSummary{e.Start, e.Kind, e.Message})
	}
	return sums
}

func mustBuild(t *testing.T, b *Builder, src string) *Model {
	t.Helper()
	m, err := b.Build(src)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, m, qt.IsNotNil)
	return m
}

// wellFormed are scripts which must not produce any errors with every
// validation enabled.
var wellFormed = []string{
	"",
	"echo foo\n",
	`echo "if fi { }"`,
	"echo done fi } esac then",
	"if a; then b; fi",
	"if a; then b; elif c; then d; else e; fi",
	"if [ -f x ]\nthen\n\techo\nfi\n",
	"while true; do :; done",
	"until false\ndo\n\t:\ndone\n",
	"for i in 1 2 3; do echo $i; done",
	"for ((i=0; i<3; i++)); do echo $i; done",
	"select x in a b; do break; done",
	"{ a; b; }",
	"( cd dir; make )",
	"foo() { :; }",
	"foo()\n{\n\t:\n}\n",
	"function foo { :; }",
	"function foo() {\n\tlocal x=1\n}\n",
	"bar() ( :; )",
	"case $x in\n\ta) echo a ;;\n\tb|c) if true; then :; fi ;;\n\t(*) ;;\nesac\n",
	"case $x in done) ;; esac",
	"case $x in a) echo\nesac",
	"x=$(if true; then echo; fi)",
	"cat <<EOF\nif {\ndone\nEOF\necho\n",
	"a=(1 2 3) b=${a[@]} c=\"${x:-}\"",
	"[[ $a == b ]] && { echo; } || ( echo )",
	"echo } >file; ! true",
	"if true; then\n\tfor f in *; do\n\t\tcase $f in\n\t\t\t*.sh) { echo \"$f\"; } ;;\n\t\tesac\n\tdone\nfi\n",
	"# if {\n# done\n",
	"f() { (cd x && make) }",
	"{ { echo; } }",
	"if true; then if true; then :; fi fi",
	"while true; do if x; then :; fi done",
	"if (true) then :; fi",
	"while (true) do :; done",
	"{ case x in a) ;; esac }",
	"[[ $x =~ ^(a|b)$ ]]\n",
	"if [[ $x == a || ( $y && $z ) ]]; then :; fi",
	"[[ -n $a &&\n\t-n $b ]]\n",
}

func TestBuildWellFormed(t *testing.T) {
	t.Parallel()
	b := NewBuilder()
	for i, src := range wellFormed {
		src := src
		t.Run(fmt.Sprintf("%03d", i), func(t *testing.T) {
			t.Parallel()
			m := mustBuild(t, b, src)
			qt.Assert(t, summarizeErrors(m.Errors), qt.HasLen, 0, qt.Commentf("input: %q", src))
			qt.Assert(t, m.HasErrors(), qt.IsFalse)
			for _, blk := range m.AllBlocks() {
				qt.Assert(t, blk.Closed(), qt.IsTrue, qt.Commentf("input: %q, block %+v", src, blk))
			}
		})
	}
}

var errorTests = []struct {
	in   string
	want []errSummary
}{
	{
		"fi",
		[]errSummary{{0, StructuralMismatch, `"fi" without matching "if"`}},
	},
	{
		"echo hi\nfi\n",
		[]errSummary{{8, StructuralMismatch, `"fi" without matching "if"`}},
	},
	{
		"if true; then\n\techo x\n",
		[]errSummary{{0, UnterminatedConstruct, `reached EOF without matching "if" with "fi"`}},
	},
	{
		"while true; do\n\t:\n",
		[]errSummary{{0, UnterminatedConstruct, `reached EOF without matching "while" with "done"`}},
	},
	{
		"done",
		[]errSummary{{0, StructuralMismatch, `"done" without matching "do"`}},
	},
	{
		"{ echo",
		[]errSummary{{0, UnterminatedConstruct, `reached EOF without matching { with }`}},
	},
	{
		"{ echo }",
		[]errSummary{{0, UnterminatedConstruct, `reached EOF without matching { with }`}},
	},
	{
		"}",
		[]errSummary{{0, StructuralMismatch, `"}" without matching "{"`}},
	},
	{
		"if true; then { fi",
		[]errSummary{
			{0, UnterminatedConstruct, `reached EOF without matching "if" with "fi"`},
			{14, UnterminatedConstruct, `reached EOF without matching { with }`},
			{16, StructuralMismatch, `"fi" found before "{" was closed`},
		},
	},
	{
		"if true; fi",
		[]errSummary{{0, StructuralMismatch, `"if" must be followed by "then"`}},
	},
	{
		"if a; then b; elif c; fi",
		[]errSummary{{14, StructuralMismatch, `"elif" must be followed by "then"`}},
	},
	{
		"then",
		[]errSummary{{0, StructuralMismatch, `"then" can only be used in an if`}},
	},
	{
		"if a; then then b; fi",
		[]errSummary{{11, StructuralMismatch, `"then" can only be used once per if or elif`}},
	},
	{
		"[[ a ]] )",
		[]errSummary{{8, StructuralMismatch, `")" without matching "("`}},
	},
	{
		"{ { :; } echo }",
		[]errSummary{
			{0, UnterminatedConstruct, `reached EOF without matching { with }`},
		},
	},
	{
		"for i in 1 2; done",
		[]errSummary{{0, StructuralMismatch, `"for" must be followed by "do"`}},
	},
	{
		"do echo; done",
		[]errSummary{{0, StructuralMismatch, `"do" can only be used in a loop`}},
	},
	{
		"function foo\necho",
		[]errSummary{{0, StructuralMismatch, `function "foo" must be followed by a body`}},
	},
	{
		"foo()",
		[]errSummary{{0, StructuralMismatch, `function "foo" must be followed by a body`}},
	},
	{
		"foo() {\n\techo\n",
		[]errSummary{{6, UnterminatedConstruct, `reached EOF without matching { with }`}},
	},
	{
		`echo "unterminated`,
		[]errSummary{{5, UnterminatedQuote, `reached EOF without closing quote "`}},
	},
	{
		"x=$(echo",
		[]errSummary{{0, UnterminatedQuote, `reached EOF without matching ( with )`}},
	},
	{
		"cat <<EOF\nbody\n",
		[]errSummary{{10, UnterminatedQuote, `unclosed here-document "EOF"`}},
	},
	{
		"( cd x; make",
		[]errSummary{{0, UnterminatedConstruct, `reached EOF without matching ( with )`}},
	},
	{
		"echo )",
		[]errSummary{{5, StructuralMismatch, `")" without matching "("`}},
	},
	{
		"case x in a) ;;",
		[]errSummary{{0, UnterminatedConstruct, `reached EOF without matching "case" with "esac"`}},
	},
	{
		"esac",
		[]errSummary{{0, StructuralMismatch, `"esac" without matching "case"`}},
	},
	{
		"while true; do\n\tif x; then\n\tdone\n",
		[]errSummary{
			{0, UnterminatedConstruct, `reached EOF without matching "while" with "done"`},
			{16, UnterminatedConstruct, `reached EOF without matching "if" with "fi"`},
			{28, StructuralMismatch, `"done" found before "if" was closed`},
		},
	},
}

func TestBuildErrors(t *testing.T) {
	t.Parallel()
	b := NewBuilder()
	for i, tc := range errorTests {
		tc := tc
		t.Run(fmt.Sprintf("%03d", i), func(t *testing.T) {
			t.Parallel()
			t.Logf("input: %q", tc.in)
			m := mustBuild(t, b, tc.in)
			got := summarizeErrors(m.Errors)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("errors mismatch (-want +got):\n%s", diff)
			}
			qt.Assert(t, m.HasErrors(), qt.IsTrue)
			for _, e := range m.Errors {
				qt.Assert(t, e.Start >= 0 && e.Start <= e.End && e.End <= len(tc.in), qt.IsTrue,
					qt.Commentf("error %+v out of bounds", e))
			}
		})
	}
}

func TestBuildSeverity(t *testing.T) {
	t.Parallel()
	m := mustBuild(t, NewBuilder(), "cat <<EOF\nbody\nfi\n")
	qt.Assert(t, m.Errors, qt.HasLen, 1)
	qt.Assert(t, m.Errors[0].Severity, qt.Equals, SeverityWarning)

	m = mustBuild(t, NewBuilder(), "fi")
	qt.Assert(t, m.Errors[0].Severity, qt.Equals, SeverityError)
	qt.Assert(t, m.Errors[0].End, qt.Equals, 2)
	qt.Assert(t, m.Errors[0].Error(), qt.Equals, `0: "fi" without matching "if"`)
}

func TestBuildValidationFlags(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		opts []BuilderOption
		want int
	}{
		{"DoOnly", "done\ndo :; done\n", nil, 2},
		{"DoOnlyIgnored", "done\ndo :; done\n", []BuilderOption{IgnoreDoValidation(true)}, 0},
		{"DoIgnoredIfStill", "if true; then\ndone\n", []BuilderOption{IgnoreDoValidation(true)}, 1},
		{"IfIgnoredDoStill", "if true; then\ndone\n", []BuilderOption{IgnoreIfValidation(true)}, 1},
		{"Both", "if true; then\ndone\n", nil, 2},
		{"BlockIgnored", "{ echo\n}\n}\n( x\n", []BuilderOption{IgnoreBlockValidation(true)}, 0},
		{"BlockIgnoredKeepsIf", "fi\n}\n", []BuilderOption{IgnoreBlockValidation(true)}, 1},
		{"ThenTwiceIgnored", "if a; then then b; fi", []BuilderOption{IgnoreIfValidation(true)}, 0},
		{"FunctionIgnored", "foo()\nbar() {\n", []BuilderOption{IgnoreFunctionValidation(true)}, 0},
		{"FunctionIgnoredKeepsBlock", "foo()\n}\n", []BuilderOption{IgnoreFunctionValidation(true)}, 1},
		{"QuotesAlwaysReported", "echo 'x", []BuilderOption{
			WithConfig(Config{true, true, true, true}),
		}, 1},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			b := NewBuilder(tc.opts...)
			m := mustBuild(t, b, tc.in)
			qt.Assert(t, m.Errors, qt.HasLen, tc.want, qt.Commentf("%v", summarizeErrors(m.Errors)))
		})
	}
}

func TestBuildFlagsKeepModel(t *testing.T) {
	t.Parallel()
	src := "if a; then\n\tdone\n{\n"
	strict := mustBuild(t, NewBuilder(), src)
	lax := mustBuild(t, NewBuilder(WithConfig(Config{true, true, true, true})), src)
	qt.Assert(t, strict.HasErrors(), qt.IsTrue)
	qt.Assert(t, lax.HasErrors(), qt.IsFalse)
	qt.Assert(t, lax.Blocks, qt.DeepEquals, strict.Blocks)
}

func TestBuilderConfig(t *testing.T) {
	t.Parallel()
	b := NewBuilder(IgnoreIfValidation(true), IgnoreBlockValidation(true))
	qt.Assert(t, b.Config(), qt.Equals, Config{
		IgnoreBlockValidation: true,
		IgnoreIfValidation:    true,
	})
	IgnoreIfValidation(false)(b)
	qt.Assert(t, b.Config().IgnoreIfValidation, qt.IsFalse)
}

func TestBuildBlocks(t *testing.T) {
	t.Parallel()
	src := "if a; then\n  while b; do\n    { c; }\n  done\nfi\n"
	m := mustBuild(t, NewBuilder(), src)
	want := []*Block{{
		Kind: IfBlock, Keyword: "if", Start: 0, End: 45,
		Children: []*Block{{
			Kind: LoopBlock, Keyword: "while", Start: 13, End: 42,
			Children: []*Block{{
				Kind: BraceBlock, Keyword: "{", Start: 29, End: 35,
			}},
		}},
	}}
	qt.Assert(t, m.Blocks, qt.DeepEquals, want)

	var kinds []BlockKind
	Walk(m.Blocks, func(b *Block) bool {
		kinds = append(kinds, b.Kind)
		return b.Kind != LoopBlock
	})
	qt.Assert(t, kinds, qt.DeepEquals, []BlockKind{IfBlock, LoopBlock})
	qt.Assert(t, m.AllBlocks(), qt.HasLen, 3)
}

func TestBuildOpenBlock(t *testing.T) {
	t.Parallel()
	m := mustBuild(t, NewBuilder(), "while x; do\n\t{ y; }\n")
	qt.Assert(t, m.Blocks, qt.HasLen, 1)
	loop := m.Blocks[0]
	qt.Assert(t, loop.Closed(), qt.IsFalse)
	qt.Assert(t, loop.End, qt.Equals, -1)
	qt.Assert(t, loop.Children, qt.HasLen, 1)
	qt.Assert(t, loop.Children[0].Closed(), qt.IsTrue)
}

func TestBuildQuotedKeywords(t *testing.T) {
	t.Parallel()
	m := mustBuild(t, NewBuilder(), `echo "if fi { }"`)
	qt.Assert(t, m.Blocks, qt.HasLen, 0)
	qt.Assert(t, m.Errors, qt.HasLen, 0)
}

func TestBuildFunctions(t *testing.T) {
	t.Parallel()
	src := "function a {\n\t:\n}\nb() (\n\t:\n)\n"
	m := mustBuild(t, NewBuilder(), src)
	qt.Assert(t, m.Errors, qt.HasLen, 0)
	want := []*Function{
		{
			Name: "a", Start: 0, NameStart: 9, End: 17,
			Body: &Block{Kind: FunctionBlock, Keyword: "{", Start: 11, End: 17},
		},
		{
			Name: "b", Start: 18, NameStart: 18, End: 28,
			Body: &Block{Kind: FunctionBlock, Keyword: "(", Start: 22, End: 28},
		},
	}
	qt.Assert(t, m.Functions, qt.DeepEquals, want)
	qt.Assert(t, m.Function("b"), qt.Equals, m.Functions[1])
	qt.Assert(t, m.Function("c"), qt.IsNil)
	qt.Assert(t, m.Blocks, qt.HasLen, 2)
	qt.Assert(t, m.Blocks[0], qt.Equals, m.Functions[0].Body)
}

func TestBuildFunctionWithoutBody(t *testing.T) {
	t.Parallel()
	m := mustBuild(t, NewBuilder(IgnoreFunctionValidation(true)), "function foo\necho\n")
	qt.Assert(t, m.Errors, qt.HasLen, 0)
	qt.Assert(t, m.Functions, qt.HasLen, 1)
	fn := m.Functions[0]
	qt.Assert(t, fn.Name, qt.Equals, "foo")
	qt.Assert(t, fn.Body, qt.IsNil)
	qt.Assert(t, fn.End, qt.Equals, -1)
}

func TestBuildNestedFunctions(t *testing.T) {
	t.Parallel()
	m := mustBuild(t, NewBuilder(), "outer() {\n\tinner() { :; }\n}\n")
	qt.Assert(t, m.Errors, qt.HasLen, 0)
	qt.Assert(t, m.Functions, qt.HasLen, 2)
	qt.Assert(t, m.Functions[0].Name, qt.Equals, "outer")
	qt.Assert(t, m.Functions[0].Body.Children, qt.DeepEquals, []*Block{m.Functions[1].Body})
}

func TestBuildVariables(t *testing.T) {
	t.Parallel()

	m := mustBuild(t, NewBuilder(), "X=1\nX=2\n")
	qt.Assert(t, m.Variables, qt.HasLen, 1)
	x := m.Variable("X")
	qt.Assert(t, x, qt.IsNotNil)
	value, ok := x.InitialValue()
	qt.Assert(t, ok, qt.IsTrue)
	qt.Assert(t, value, qt.Equals, "1")
	qt.Assert(t, x.Local, qt.IsFalse)
	qt.Assert(t, x.Assignments, qt.DeepEquals, []Assignment{{0, "1"}, {4, "2"}})

	m = mustBuild(t, NewBuilder(), "f() {\n\tlocal Y=foo\n}\n")
	qt.Assert(t, m.Variable("Y"), qt.IsNil)
	y := m.LocalVariable("f", "Y")
	qt.Assert(t, y, qt.IsNotNil)
	qt.Assert(t, y.Local, qt.IsTrue)
	qt.Assert(t, y.Function, qt.Equals, "f")
	value, _ = y.InitialValue()
	qt.Assert(t, value, qt.Equals, "foo")
}

func TestBuildVariableScopes(t *testing.T) {
	t.Parallel()
	src := strings.Join([]string{
		"f() {",
		"\tlocal Y",
		"\tY=2",
		"\tdeclare D=d",
		"\tdeclare -g G=g",
		"\texport E=e",
		"\tZ=z",
		"}",
		"Y=3",
		"",
	}, "\n")
	m := mustBuild(t, NewBuilder(), src)
	qt.Assert(t, m.Errors, qt.HasLen, 0)

	type varSummary struct {
		Function, Name string
		Local          bool
		Values         []string
	}
	var got []varSummary
	for _, v := range m.Variables {
		vs := varSummary{Function: v.Function, Name: v.Name, Local: v.Local}
		for _, as := range v.Assignments {
			vs.Values = append(vs.Values, as.Value)
		}
		got = append(got, vs)
	}
	want := []varSummary{
		{"f", "Y", true, []string{"2"}},
		{"f", "D", true, []string{"d"}},
		{"", "G", false, []string{"g"}},
		{"", "E", false, []string{"e"}},
		{"", "Z", false, []string{"z"}},
		{"", "Y", false, []string{"3"}},
	}
	qt.Assert(t, got, qt.DeepEquals, want)
}

func TestBuildAssignmentForms(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in    string
		names []string
	}{
		{"FOO=bar cmd", []string{"FOO"}},
		{"a[1]=x b+=y c=(1 2)", []string{"a", "b", "c"}},
		{"echo X=1", nil},
		{"[ X=1 ]", nil},
		{"\"X=1\"", nil},
		{"export PATH", nil},
		{"local -r A B=1", []string{"A", "B"}},
		{"1x=2", nil},
	}
	for _, tc := range tests {
		m := mustBuild(t, NewBuilder(), tc.in)
		var names []string
		for _, v := range m.Variables {
			names = append(names, v.Name)
		}
		qt.Assert(t, names, qt.DeepEquals, tc.names, qt.Commentf("input: %q", tc.in))
	}
}

func TestBuildDeclarationWithoutValue(t *testing.T) {
	t.Parallel()
	m := mustBuild(t, NewBuilder(), "f() { local v; }")
	v := m.LocalVariable("f", "v")
	qt.Assert(t, v, qt.IsNotNil)
	_, ok := v.InitialValue()
	qt.Assert(t, ok, qt.IsFalse)
	qt.Assert(t, v.Assignments, qt.HasLen, 0)
}

func TestBuildInvalidEncoding(t *testing.T) {
	t.Parallel()
	m, err := NewBuilder().Build("echo \xff")
	qt.Assert(t, m, qt.IsNil)
	var inErr *InputError
	qt.Assert(t, errors.As(err, &inErr), qt.IsTrue)
	qt.Assert(t, inErr.Offset, qt.Equals, 5)
	qt.Assert(t, err, qt.ErrorMatches, `invalid input at offset 5: invalid UTF-8 encoding`)
}

func TestPosition(t *testing.T) {
	t.Parallel()
	m := mustBuild(t, NewBuilder(), "a\nbc\n")
	qt.Assert(t, m.Lines(), qt.DeepEquals, []int{0, 2, 5})
	qt.Assert(t, m.Position(0), qt.Equals, Position{Offset: 0, Line: 1, Column: 1})
	qt.Assert(t, m.Position(3), qt.Equals, Position{Offset: 3, Line: 2, Column: 2})
	qt.Assert(t, m.Position(3).String(), qt.Equals, "2:2")
	qt.Assert(t, m.Position(5).Line, qt.Equals, 3)
}

func TestBuildConcurrent(t *testing.T) {
	t.Parallel()
	b := NewBuilder(IgnoreDoValidation(true))
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for _, tc := range errorTests {
				if _, err := b.Build(tc.in); err != nil {
					t.Error(err)
				}
			}
			for _, src := range wellFormed {
				m, err := b.Build(src)
				if err != nil || m.HasErrors() {
					t.Errorf("unexpected failure on %q", src)
				}
			}
		}(i)
	}
	wg.Wait()
}

func FuzzBuild(f *testing.F) {
	for _, src := range wellFormed {
		f.Add(src)
	}
	for _, tc := range errorTests {
		f.Add(tc.in)
	}
	for _, src := range roundTripInputs {
		f.Add(src)
	}
	f.Fuzz(func(t *testing.T, src string) {
		toks := Tokenize(src)
		var sb strings.Builder
		for _, tok := range toks {
			sb.WriteString(tok.Text)
		}
		if got := sb.String(); got != src {
			t.Fatalf("tokens do not round-trip:\nwant %q\ngot  %q", src, got)
		}
		m, err := NewBuilder().Build(src)
		if err != nil {
			var inErr *InputError
			if !errors.As(err, &inErr) {
				t.Fatalf("unexpected error type: %T", err)
			}
			return
		}
		for _, e := range m.Errors {
			if e.Start < 0 || e.End > len(src) || e.Start > e.End {
				t.Fatalf("error out of bounds: %+v", e)
			}
		}
		for _, b := range m.AllBlocks() {
			if b.Start < 0 || b.End > len(src) {
				t.Fatalf("block out of bounds: %+v", b)
			}
		}
	})
}

func TestBuildAfterCompound(t *testing.T) {
	t.Parallel()
	m := mustBuild(t, NewBuilder(), "f() { (cd x && make) }")
	qt.Assert(t, m.Errors, qt.HasLen, 0)
	fn := m.Function("f")
	qt.Assert(t, fn, qt.IsNotNil)
	qt.Assert(t, fn.End, qt.Equals, 23)
	qt.Assert(t, fn.Body.Start, qt.Equals, 5)
	qt.Assert(t, fn.Body.Children, qt.HasLen, 1)
	sub := fn.Body.Children[0]
	qt.Assert(t, sub.Kind, qt.Equals, SubshellBlock)
	qt.Assert(t, sub.Start, qt.Equals, 7)
	qt.Assert(t, sub.End, qt.Equals, 21)
}
