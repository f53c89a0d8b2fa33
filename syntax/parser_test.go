// Copyright (c) 2024, the posh authors
// See LICENSE for licensing information

package syntax

import (
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"
)

func parseStr(t *testing.T, src string) *File {
	t.Helper()
	f, err := NewParser().Parse(strings.NewReader(src), "")
	qt.Assert(t, err, qt.IsNil)
	return f
}

func TestParsePrint(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string // if empty, the input prints back unchanged
	}{
		{in: "echo hi"},
		{in: "echo 'a b'"},
		{in: `echo "a $b c"`},
		{in: "a; b", want: "a; b"},
		{in: "a\nb", want: "a; b"},
		{in: "a && b || c"},
		{in: "a | b | c"},
		{in: "! foo"},
		{in: "! a | b"},
		{in: "a & b"},
		{in: "a && b &", want: "a && b &"},
		{in: "if a; then b; fi"},
		{in: "if a; then b; else c; fi"},
		{in: "if a; then b; elif c; then d; else e; fi"},
		{in: "while a; do b; done"},
		{in: "until a; do b; done"},
		{in: "for x in 1 2 3; do echo $x; done"},
		{in: "for x; do echo; done"},
		{in: "for x\nin a b\ndo echo; done", want: "for x in a b; do echo; done"},
		{in: "case $x in a | b) echo;; *) true;; esac"},
		{in: "case $x in\na|b) echo ;;\n*) true ;;\nesac",
			want: "case $x in a | b) echo;; *) true;; esac"},
		{in: "{ a; b; }"},
		{in: "(a; b)"},
		{in: "(a) | (b)"},
		{in: "f() { echo; }"},
		{in: "f() echo hi"},
		{in: "x=1 y=2 cmd a"},
		{in: "x="},
		{in: "x=$(date)"},
		{in: "echo `date`"},
		{in: "echo $(date; true)"},
		{in: "echo $((1 + 2))"},
		{in: "echo $(($x*3))"},
		{in: "echo ${x:-def}"},
		{in: "echo ${#x}"},
		{in: "echo ${x%.*}"},
		{in: "echo ${x##*/}"},
		{in: "echo $@ $* $# $? $- $$ $! $0 $1"},
		{in: "echo >f 2>&1"},
		{in: "cat <file >>log"},
		{in: ">out"},
		{in: "cmd <>rw"},
		{in: "echo a#b"},
		{in: "echo # comment", want: "echo"},
		{in: "echo a\\ b"},
	}
	p := NewParser()
	pr := NewPrinter()
	for _, tc := range tests {
		t.Run("", func(t *testing.T) {
			c := qt.New(t)
			f, err := p.Parse(strings.NewReader(tc.in), "")
			c.Assert(err, qt.IsNil)
			want := tc.want
			if want == "" {
				want = tc.in
			}
			c.Assert(pr.String(f), qt.Equals, want)
		})
	}
}

func TestParseErr(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in         string
		want       string
		incomplete bool
	}{
		{"echo 'a", `1:6: reached EOF without closing quote '`, true},
		{`echo "a`, `1:6: reached EOF without closing quote "`, true},
		{"echo `a", "1:6: reached EOF without closing quote `", true},
		{"if true; then echo; ", `1:1: if <cond>; then <body> must be followed by "fi"`, true},
		{"if true; echo; fi", `1:1: if <cond> must be followed by "then"`, false},
		{"while true; do echo", `1:1: while <cond>; do <body> must be followed by "done"`, true},
		{"for; do :; done", "1:1: for must be followed by a literal name", false},
		{"case x", `1:1: case x must be followed by "in"`, true},
		{"case x in a) echo", `1:1: case statement must end with "esac"`, true},
		{"echo $(foo", "1:6: reached EOF without matching $( with )", true},
		{"echo ${x", "1:6: reached EOF without matching ${ with }", true},
		{"echo $((1+2", "1:6: reached EOF without matching $(( with ))", true},
		{"{ echo", "1:1: reached EOF without matching { with }", true},
		{"(echo", "1:1: reached EOF without matching ( with )", true},
		{")", "1:1: ) can only be used to close a subshell", false},
		{";;", "1:1: ;; can only be used in a case clause", false},
		{"fi", `1:1: "fi" can only be used in its matching construct`, false},
		{"}", `1:1: "}" can only be used to close a block`, false},
		{"echo |", "1:7: EOF is not a valid start for a statement", true},
		{"foo &&", "1:7: EOF is not a valid start for a statement", true},
		{"cat <<EOF\nfoo", "1:5: unclosed here-document 'EOF'", true},
		{"echo >", "1:6: > must be followed by a word", true},
		{"echo ${x~}", "1:6: not a valid parameter expansion operator: ~", false},
	}
	p := NewParser()
	for _, tc := range tests {
		t.Run("", func(t *testing.T) {
			c := qt.New(t)
			_, err := p.Parse(strings.NewReader(tc.in), "")
			c.Assert(err, qt.Not(qt.IsNil))
			c.Assert(err.Error(), qt.Equals, tc.want)
			c.Assert(IsIncomplete(err), qt.Equals, tc.incomplete)
			c.Assert(p.Incomplete(), qt.Equals, tc.incomplete)
		})
	}
}

func TestParseCallWords(t *testing.T) {
	t.Parallel()
	c := qt.New(t)
	f := parseStr(t, "echo hi")
	call := f.Stmts[0].Cmd.(*CallExpr)
	c.Assert(call.Args, qt.HasLen, 2)
	c.Assert(call.Args[0].Parts, qt.HasLen, 1)
	c.Assert(call.Args[0].Lit(), qt.Equals, "echo")
	c.Assert(call.Args[1].Parts, qt.HasLen, 1)
	c.Assert(call.Args[1].Lit(), qt.Equals, "hi")

	f = parseStr(t, "a b 'c' $d")
	call = f.Stmts[0].Cmd.(*CallExpr)
	c.Assert(call.Args, qt.HasLen, 4)
	for _, w := range call.Args {
		c.Assert(w.Parts, qt.HasLen, 1)
	}
}

func TestParseAssign(t *testing.T) {
	t.Parallel()
	c := qt.New(t)
	f := parseStr(t, `FOO=bar BAZ="qux $x" cmd PATH=ignored`)
	call := f.Stmts[0].Cmd.(*CallExpr)
	c.Assert(call.Assigns, qt.HasLen, 2)
	c.Assert(call.Assigns[0].Name.Value, qt.Equals, "FOO")
	c.Assert(call.Assigns[0].Value.Lit(), qt.Equals, "bar")
	c.Assert(call.Assigns[1].Name.Value, qt.Equals, "BAZ")
	// assignment words after the command name are plain arguments
	c.Assert(call.Args, qt.HasLen, 2)
	c.Assert(call.Args[1].Lit(), qt.Equals, "PATH=ignored")

	f = parseStr(t, "FOO=")
	call = f.Stmts[0].Cmd.(*CallExpr)
	c.Assert(call.Assigns[0].Value, qt.IsNil)
	c.Assert(call.Args, qt.HasLen, 0)
}

func TestParseRedirects(t *testing.T) {
	t.Parallel()
	c := qt.New(t)
	f := parseStr(t, "echo hi 2>&1 >out <in")
	s := f.Stmts[0]
	c.Assert(s.Redirs, qt.HasLen, 3)
	c.Assert(s.Redirs[0].Op, qt.Equals, DplOut)
	c.Assert(s.Redirs[0].N.Value, qt.Equals, "2")
	c.Assert(s.Redirs[0].Word.Lit(), qt.Equals, "1")
	c.Assert(s.Redirs[1].Op, qt.Equals, RdrOut)
	c.Assert(s.Redirs[1].N, qt.IsNil)
	c.Assert(s.Redirs[2].Op, qt.Equals, RdrIn)

	// a digit with a space before the operator is an argument
	f = parseStr(t, "echo 2 >out")
	call := f.Stmts[0].Cmd.(*CallExpr)
	c.Assert(call.Args, qt.HasLen, 2)
	c.Assert(f.Stmts[0].Redirs, qt.HasLen, 1)

	// fd redirects attach to compound commands too
	f = parseStr(t, "{ echo; } 2>/dev/null")
	s = f.Stmts[0]
	_, ok := s.Cmd.(*Block)
	c.Assert(ok, qt.IsTrue)
	c.Assert(s.Redirs, qt.HasLen, 1)
	c.Assert(s.Redirs[0].Op, qt.Equals, RdrOut)
	c.Assert(s.Redirs[0].N.Value, qt.Equals, "2")
	c.Assert(s.Redirs[0].Word.Lit(), qt.Equals, "/dev/null")

	f = parseStr(t, "if true; then echo; fi >out 2>&1")
	s = f.Stmts[0]
	c.Assert(s.Redirs, qt.HasLen, 2)
	c.Assert(s.Redirs[1].N.Value, qt.Equals, "2")
}

func TestParseHeredoc(t *testing.T) {
	t.Parallel()
	c := qt.New(t)
	f := parseStr(t, "cat <<EOF\nhi $x\nEOF\n")
	rd := f.Stmts[0].Redirs[0]
	c.Assert(rd.Op, qt.Equals, Hdoc)
	c.Assert(rd.Hdoc.Parts, qt.HasLen, 3)
	c.Assert(rd.Hdoc.Parts[0].(*Lit).Value, qt.Equals, "hi ")
	c.Assert(rd.Hdoc.Parts[1].(*ParamExp).Param.Value, qt.Equals, "x")
	c.Assert(rd.Hdoc.Parts[2].(*Lit).Value, qt.Equals, "\n")

	// quoting any part of the delimiter disables expansion
	f = parseStr(t, "cat <<'EOF'\nhi $x\nEOF\n")
	rd = f.Stmts[0].Redirs[0]
	c.Assert(rd.Hdoc.Parts, qt.HasLen, 1)
	c.Assert(rd.Hdoc.Parts[0].(*SglQuoted).Value, qt.Equals, "hi $x\n")

	// <<- strips leading tabs from body lines and the delimiter
	f = parseStr(t, "cat <<-EOF\n\thi\n\tEOF\n")
	rd = f.Stmts[0].Redirs[0]
	c.Assert(rd.Op, qt.Equals, DashHdoc)
	c.Assert(rd.Hdoc.Parts[0].(*Lit).Value, qt.Equals, "hi\n")

	// two here-documents on one line are read in order
	f = parseStr(t, "cat <<A <<B\none\nA\ntwo\nB\n")
	rds := f.Stmts[0].Redirs
	c.Assert(rds[0].Hdoc.Parts[0].(*Lit).Value, qt.Equals, "one\n")
	c.Assert(rds[1].Hdoc.Parts[0].(*Lit).Value, qt.Equals, "two\n")

	// the body starts after the line with the operator even when more of
	// the command follows the delimiter word
	f = parseStr(t, "cat <<EOF >out\nbody\nEOF\n")
	rd = f.Stmts[0].Redirs[0]
	c.Assert(rd.Hdoc.Parts, qt.HasLen, 1)
	c.Assert(rd.Hdoc.Parts[0].(*Lit).Value, qt.Equals, "body\n")
	c.Assert(f.Stmts[0].Redirs[1].Word.Lit(), qt.Equals, "out")
}

func TestParseBackground(t *testing.T) {
	t.Parallel()
	c := qt.New(t)
	f := parseStr(t, "sleep 1 && echo done &\necho now")
	c.Assert(f.Stmts, qt.HasLen, 2)
	c.Assert(f.Stmts[0].Background, qt.IsTrue)
	_, ok := f.Stmts[0].Cmd.(*BinaryCmd)
	c.Assert(ok, qt.IsTrue)
	c.Assert(f.Stmts[1].Background, qt.IsFalse)
}

func TestParsePos(t *testing.T) {
	t.Parallel()
	c := qt.New(t)
	f := parseStr(t, "echo hi\necho bye\n")
	c.Assert(f.Stmts, qt.HasLen, 2)
	got := f.Position(f.Stmts[1].Pos())
	c.Assert(got, qt.Equals, Position{Offset: 8, Line: 2, Column: 1})
	got = f.Position(f.Stmts[0].Pos())
	c.Assert(got, qt.Equals, Position{Offset: 0, Line: 1, Column: 1})
}

func TestInteractive(t *testing.T) {
	t.Parallel()
	c := qt.New(t)
	src := "echo hi\n\nif true\nthen echo a\nfi\necho 'unclosed\nquote'\n"
	var lens []int
	p := NewParser()
	err := p.Interactive(strings.NewReader(src), func(stmts []*Stmt) bool {
		lens = append(lens, len(stmts))
		return true
	})
	c.Assert(err, qt.IsNil)
	// one call per complete input: "echo hi", the blank line, the
	// multi-line if, and the string spanning two lines
	c.Assert(lens, qt.DeepEquals, []int{1, 0, 1, 1})
}

func TestInteractiveStop(t *testing.T) {
	t.Parallel()
	c := qt.New(t)
	calls := 0
	err := NewParser().Interactive(strings.NewReader("a\nb\nc\n"), func(stmts []*Stmt) bool {
		calls++
		return false
	})
	c.Assert(err, qt.IsNil)
	c.Assert(calls, qt.Equals, 1)
}

func TestValidName(t *testing.T) {
	t.Parallel()
	c := qt.New(t)
	for _, name := range []string{"a", "_", "foo", "foo_bar", "a1", "_1"} {
		c.Assert(ValidName(name), qt.IsTrue, qt.Commentf("name %q", name))
	}
	for _, name := range []string{"", "1a", "foo-bar", "a.b", "$x", "a b"} {
		c.Assert(ValidName(name), qt.IsFalse, qt.Commentf("name %q", name))
	}
}

func TestWordLit(t *testing.T) {
	t.Parallel()
	c := qt.New(t)
	f := parseStr(t, "echo foo 'bar'")
	call := f.Stmts[0].Cmd.(*CallExpr)
	c.Assert(call.Args[1].Lit(), qt.Equals, "foo")
	c.Assert(call.Args[2].Lit(), qt.Equals, "")
}
