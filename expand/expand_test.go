// Copyright (c) 2024, the posh authors
// See LICENSE for licensing information

package expand

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/google/go-cmp/cmp"

	"github.com/poshsh/posh/syntax"
)

type testEnv map[string]Variable

func (e testEnv) Get(name string) Variable        { return e[name] }
func (e testEnv) Set(name string, vr Variable) error {
	e[name] = vr
	return nil
}
func (e testEnv) Delete(name string) { delete(e, name) }
func (e testEnv) Each(fn func(name string, vr Variable) bool) {
	for name, vr := range e {
		if !fn(name, vr) {
			return
		}
	}
}

func strVars(pairs ...string) testEnv {
	env := testEnv{}
	for i := 0; i < len(pairs); i += 2 {
		env[pairs[i]] = Variable{Value: pairs[i+1]}
	}
	return env
}

func parseWords(t *testing.T, src string) []*syntax.Word {
	t.Helper()
	f, err := syntax.NewParser().Parse(strings.NewReader("w "+src), "")
	qt.Assert(t, err, qt.IsNil)
	return f.Stmts[0].Cmd.(*syntax.CallExpr).Args[1:]
}

func parseWord(t *testing.T, src string) *syntax.Word {
	t.Helper()
	words := parseWords(t, src)
	qt.Assert(t, words, qt.HasLen, 1)
	return words[0]
}

func TestLiteral(t *testing.T) {
	t.Parallel()
	tests := []struct {
		src  string
		env  testEnv
		want string
	}{
		{`foo`, nil, "foo"},
		{`'a b'`, nil, "a b"},
		{`"a $x c"`, strVars("x", "b"), "a b c"},
		{`$x$y`, strVars("x", "1", "y", "2"), "12"},
		{`~`, strVars("HOME", "/home/u"), "/home/u"},
		{`~/dir`, strVars("HOME", "/home/u"), "/home/u/dir"},
		{`"~"`, strVars("HOME", "/home/u"), "~"},
		{`a\ b`, nil, "a b"},
		{`"a\$b"`, nil, "a$b"},
		{`"a\nb"`, nil, `a\nb`},
		{`${x:-def}`, nil, "def"},
		{`${x:-def}`, strVars("x", "val"), "val"},
		{`${x-def}`, strVars("x", ""), ""},
		{`${x:-def}`, strVars("x", ""), "def"},
		{`${x:+alt}`, strVars("x", "val"), "alt"},
		{`${x:+alt}`, nil, ""},
		{`${#x}`, strVars("x", "hello"), "5"},
		{`${x%.*}`, strVars("x", "a.b.c"), "a.b"},
		{`${x%%.*}`, strVars("x", "a.b.c"), "a"},
		{`${x#*.}`, strVars("x", "a.b.c"), "b.c"},
		{`${x##*.}`, strVars("x", "a.b.c"), "c"},
		{`$((2 + 3))`, nil, "5"},
		{`$((x * 2))`, strVars("x", "21"), "42"},
	}
	for _, tc := range tests {
		t.Run("", func(t *testing.T) {
			c := qt.New(t)
			env := tc.env
			if env == nil {
				env = testEnv{}
			}
			ec := &Context{Env: env}
			got := ec.Literal(context.Background(), parseWord(t, tc.src))
			c.Assert(got, qt.Equals, tc.want, qt.Commentf("src %q", tc.src))
		})
	}
}

func TestLiteralAssign(t *testing.T) {
	t.Parallel()
	c := qt.New(t)
	env := testEnv{}
	ec := &Context{Env: env}
	got := ec.Literal(context.Background(), parseWord(t, `${x:=def}`))
	c.Assert(got, qt.Equals, "def")
	c.Assert(env["x"].String(), qt.Equals, "def")
}

func TestLiteralUnsetErr(t *testing.T) {
	t.Parallel()
	c := qt.New(t)
	var got error
	ec := &Context{
		Env:     testEnv{},
		OnError: func(err error) { got = err },
	}
	ec.Literal(context.Background(), parseWord(t, `${x:?no value}`))
	c.Assert(got, qt.ErrorMatches, "x: no value")

	got = nil
	ec.NoUnset = true
	ec.Literal(context.Background(), parseWord(t, `$nope`))
	c.Assert(got, qt.ErrorMatches, "nope: parameter not set")
}

func TestFields(t *testing.T) {
	t.Parallel()
	tests := []struct {
		src  string
		env  testEnv
		want []string
	}{
		{`a b c`, nil, []string{"a", "b", "c"}},
		{`$x`, strVars("x", "a b  c"), []string{"a", "b", "c"}},
		{`"$x"`, strVars("x", "a b  c"), []string{"a b  c"}},
		{`$x`, strVars("x", "a:b", "IFS", ":"), []string{"a", "b"}},
		// adjacent non-whitespace separators delimit empty fields, while
		// a trailing one ends the last field without adding an empty one
		{`$x`, strVars("x", "a::b", "IFS", ":"), []string{"a", "", "b"}},
		{`$x`, strVars("x", ":a", "IFS", ":"), []string{"", "a"}},
		{`$x`, strVars("x", "a:", "IFS", ":"), []string{"a"}},
		{`$x`, strVars("x", "a : b", "IFS", ": "), []string{"a", "b"}},
		{`pre$x`, strVars("x", "a b"), []string{"prea", "b"}},
		{`pre$x`, strVars("x", " a"), []string{"pre", "a"}},
		{`$x`, nil, nil},
		{`""`, nil, []string{""}},
		{`''`, nil, []string{""}},
		{`"$x"`, nil, []string{""}},
	}
	for _, tc := range tests {
		t.Run("", func(t *testing.T) {
			env := tc.env
			if env == nil {
				env = testEnv{}
			}
			ec := &Context{Env: env}
			got := ec.Fields(context.Background(), parseWords(t, tc.src)...)
			if len(got) == 0 {
				got = nil
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("fields mismatch for %q (-want +got):\n%s", tc.src, diff)
			}
		})
	}
}

func TestFieldsParams(t *testing.T) {
	t.Parallel()
	c := qt.New(t)
	env := testEnv{
		"@": Variable{Value: []string{"a b", "c"}},
		"*": Variable{Value: []string{"a b", "c"}},
	}
	ec := &Context{Env: env}
	ctx := context.Background()

	got := ec.Fields(ctx, parseWord(t, `"$@"`))
	c.Assert(got, qt.DeepEquals, []string{"a b", "c"})

	got = ec.Fields(ctx, parseWord(t, `$@`))
	c.Assert(got, qt.DeepEquals, []string{"a", "b", "c"})

	got = ec.Fields(ctx, parseWord(t, `"$*"`))
	c.Assert(got, qt.DeepEquals, []string{"a b c"})

	// no parameters at all: "$@" produces no fields
	env["@"] = Variable{Value: []string{}}
	got = ec.Fields(ctx, parseWord(t, `"$@"`))
	c.Assert(got, qt.HasLen, 0)
}

func TestFieldsCmdSubst(t *testing.T) {
	t.Parallel()
	c := qt.New(t)
	ec := &Context{
		Env: testEnv{},
		CmdSubst: func(ctx context.Context, w io.Writer, stmts []*syntax.Stmt) {
			fmt.Fprintf(w, "out1 out2\n\n")
		},
	}
	got := ec.Fields(context.Background(), parseWord(t, `$(anything)`))
	c.Assert(got, qt.DeepEquals, []string{"out1", "out2"})

	lit := ec.Literal(context.Background(), parseWord(t, `"$(anything)"`))
	c.Assert(lit, qt.Equals, "out1 out2")
}

func TestFieldsGlob(t *testing.T) {
	c := qt.New(t)
	dir := t.TempDir()
	for _, name := range []string{"a.txt", "b.txt", "c.go", ".hidden.txt"} {
		err := os.WriteFile(filepath.Join(dir, name), nil, 0o644)
		c.Assert(err, qt.IsNil)
	}
	ec := &Context{Env: strVars("PWD", dir)}
	ctx := context.Background()

	got := ec.Fields(ctx, parseWord(t, `*.txt`))
	c.Assert(got, qt.DeepEquals, []string{"a.txt", "b.txt"})

	// no matches leave the pattern as-is
	got = ec.Fields(ctx, parseWord(t, `*.none`))
	c.Assert(got, qt.DeepEquals, []string{"*.none"})

	// quoting disables globbing
	got = ec.Fields(ctx, parseWord(t, `"*.txt"`))
	c.Assert(got, qt.DeepEquals, []string{"*.txt"})

	ec.NoGlob = true
	got = ec.Fields(ctx, parseWord(t, `*.txt`))
	c.Assert(got, qt.DeepEquals, []string{"*.txt"})
}

func TestArith(t *testing.T) {
	t.Parallel()
	tests := []struct {
		expr string
		env  testEnv
		want int64
	}{
		{"", nil, 0},
		{"3", nil, 3},
		{"0x10", nil, 16},
		{"010", nil, 8},
		{"1 + 2 * 3", nil, 7},
		{"(1 + 2) * 3", nil, 9},
		{"7 / 2", nil, 3},
		{"7 % 2", nil, 1},
		{"2 ** 10", nil, 1024},
		{"-2**2", nil, 4},
		{"1 < 2", nil, 1},
		{"2 <= 1", nil, 0},
		{"3 == 3 && 1 < 2", nil, 1},
		{"0 || 2", nil, 1},
		{"!0", nil, 1},
		{"~0", nil, -1},
		{"1 << 4", nil, 16},
		{"96 >> 5", nil, 3},
		{"6 & 3", nil, 2},
		{"6 | 3", nil, 7},
		{"6 ^ 3", nil, 5},
		{"1 ? 10 : 20", nil, 10},
		{"0 ? 10 : 20", nil, 20},
		{"x", nil, 0},
		{"x + 1", strVars("x", "41"), 42},
		{"x", strVars("x", "  7 "), 7},
	}
	for _, tc := range tests {
		t.Run("", func(t *testing.T) {
			c := qt.New(t)
			env := tc.env
			if env == nil {
				env = testEnv{}
			}
			ec := &Context{Env: env}
			got, err := ec.Arith(tc.expr)
			c.Assert(err, qt.IsNil, qt.Commentf("expr %q", tc.expr))
			c.Assert(got, qt.Equals, tc.want, qt.Commentf("expr %q", tc.expr))
		})
	}
}

func TestArithAssign(t *testing.T) {
	t.Parallel()
	c := qt.New(t)
	env := strVars("x", "5")
	ec := &Context{Env: env}

	got, err := ec.Arith("y = x + 1")
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.Equals, int64(6))
	c.Assert(env["y"].String(), qt.Equals, "6")

	got, err = ec.Arith("x += 10")
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.Equals, int64(15))

	got, err = ec.Arith("x++")
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.Equals, int64(15))
	c.Assert(env["x"].String(), qt.Equals, "16")

	got, err = ec.Arith("--x")
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.Equals, int64(15))

	// the untaken ternary branch must not assign
	_, err = ec.Arith("1 ? 2 : (x = 99)")
	c.Assert(err, qt.IsNil)
	c.Assert(env["x"].String(), qt.Equals, "15")
}

func TestArithErr(t *testing.T) {
	t.Parallel()
	tests := []string{
		"1 / 0",
		"5 % 0",
		"1 +",
		"(1",
		"08",
		"2 ** -1",
		"1 @ 2",
	}
	for _, expr := range tests {
		t.Run("", func(t *testing.T) {
			c := qt.New(t)
			ec := &Context{Env: testEnv{}}
			_, err := ec.Arith(expr)
			c.Assert(err, qt.Not(qt.IsNil), qt.Commentf("expr %q", expr))
		})
	}
}

func TestFormat(t *testing.T) {
	t.Parallel()
	tests := []struct {
		format   string
		args     []string
		want     string
		consumed int
	}{
		{"%d\n", []string{"5"}, "5\n", 1},
		{"%s-%s\n", []string{"a", "b"}, "a-b\n", 2},
		{"%s-%s\n", []string{"c"}, "c-\n", 1},
		{"plain", nil, "plain", 0},
		{"a\\tb\\n", nil, "a\tb\n", 0},
		{"%5d|", []string{"42"}, "   42|", 1},
		{"%-5d|", []string{"42"}, "42   |", 1},
		{"%05d", []string{"42"}, "00042", 1},
		{"%.2s", []string{"hello"}, "he", 1},
		{"%x", []string{"255"}, "ff", 1},
		{"%X", []string{"255"}, "FF", 1},
		{"%o", []string{"8"}, "10", 1},
		{"%i", []string{"-3"}, "-3", 1},
		{"%c", []string{"abc"}, "a", 1},
		{"%%", []string{"x"}, "%", 0},
		{"%d", []string{"'A"}, "65", 1},
		{"%b", []string{`a\tb`}, "a\tb", 1},
		{"%b", []string{`a\0101b`}, "aAb", 1},
		{"%d%s", nil, "0", 0},
	}
	for _, tc := range tests {
		t.Run("", func(t *testing.T) {
			c := qt.New(t)
			ec := &Context{Env: testEnv{}}
			got, consumed, err := ec.Format(tc.format, tc.args)
			c.Assert(err, qt.IsNil, qt.Commentf("format %q", tc.format))
			c.Assert(got, qt.Equals, tc.want, qt.Commentf("format %q", tc.format))
			c.Assert(consumed, qt.Equals, tc.consumed)
		})
	}
}

func TestFormatErr(t *testing.T) {
	t.Parallel()
	c := qt.New(t)
	ec := &Context{Env: testEnv{}}

	// a non-numeric argument formats as zero and reports the problem
	got, consumed, err := ec.Format("%d.", []string{"abc"})
	c.Assert(err, qt.ErrorMatches, "abc: expected a numeric value")
	c.Assert(got, qt.Equals, "0.")
	c.Assert(consumed, qt.Equals, 1)

	// \c in a %b argument stops all output
	got, _, err = ec.Format("%b-end", []string{`a\cb`})
	c.Assert(err, qt.Equals, ErrFormatStop)
	c.Assert(got, qt.Equals, "a")

	_, _, err = ec.Format("%y", []string{"x"})
	c.Assert(err, qt.ErrorMatches, "%y: invalid directive")

	_, _, err = ec.Format("%", []string{"x"})
	c.Assert(err, qt.ErrorMatches, "missing format character")
}

func TestReadFields(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		n    int
		ifs  string
		raw  bool
		want []string
	}{
		{"a b c", -1, " \t\n", false, []string{"a", "b", "c"}},
		{"  a  b  ", -1, " \t\n", false, []string{"a", "b"}},
		{"a b c", 2, " \t\n", false, []string{"a", "b c"}},
		{"1:2:3", 2, ":", false, []string{"1", "2:3"}},
		{"a::b", -1, ":", false, []string{"a", "", "b"}},
		{"a:", -1, ":", false, []string{"a"}},
		{":a", -1, ":", false, []string{"", "a"}},
		{" a : b ", -1, ": \t\n", false, []string{"a", "b"}},
		{`a\ b c`, -1, " \t\n", false, []string{"a b", "c"}},
		{`a\ b c`, -1, " \t\n", true, []string{`a\`, "b", "c"}},
		{"whole line  ", 1, " \t\n", false, []string{"whole line"}},
		{"", -1, " \t\n", false, nil},
		{"   ", -1, " \t\n", false, nil},
	}
	for _, tc := range tests {
		t.Run("", func(t *testing.T) {
			c := qt.New(t)
			ec := &Context{Env: strVars("IFS", tc.ifs)}
			got := ec.ReadFields(tc.in, tc.n, tc.raw)
			if len(got) == 0 {
				got = nil
			}
			c.Assert(got, qt.DeepEquals, tc.want, qt.Commentf("in %q", tc.in))
		})
	}
}
