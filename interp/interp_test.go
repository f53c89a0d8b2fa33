// Copyright (c) 2024, the posh authors
// See LICENSE for licensing information

package interp

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"syscall"
	"testing"

	"github.com/poshsh/posh/syntax"
)

func parse(tb testing.TB, parser *syntax.Parser, src string) *syntax.File {
	if parser == nil {
		parser = syntax.NewParser()
	}
	file, err := parser.Parse(strings.NewReader(src), "")
	if err != nil {
		tb.Fatal(err)
	}
	return file
}

// concBuffer wraps a bytes.Buffer in a mutex so that concurrent writes
// to it don't upset the race detector.
type concBuffer struct {
	buf bytes.Buffer
	sync.Mutex
}

func (c *concBuffer) Write(p []byte) (int, error) {
	c.Lock()
	n, err := c.buf.Write(p)
	c.Unlock()
	return n, err
}

func (c *concBuffer) WriteString(s string) (int, error) {
	c.Lock()
	n, err := c.buf.WriteString(s)
	c.Unlock()
	return n, err
}

func (c *concBuffer) String() string {
	c.Lock()
	s := c.buf.String()
	c.Unlock()
	return s
}

type runTest struct {
	in, want string
}

var runTests = []runTest{
	// no-op programs
	{"", ""},
	{"true", ""},
	{":", ""},
	{"exit", ""},
	{"exit 0", ""},
	{"{ :; }", ""},
	{"(:)", ""},

	// exit status codes
	{"exit 1", "exit status 1"},
	{"exit -1", "exit status 255"},
	{"exit 300", "exit status 44"},
	{"false", "exit status 1"},
	{"! false", ""},
	{"! true", "exit status 1"},
	{"false; true", ""},
	{"false; exit", "exit status 1"},
	{"exit; echo foo", ""},
	{"exit a", "exit: a: numeric argument required\nexit status 2"},
	{"exit 1 2", "exit: too many arguments\nexit status 2"},
	{"true; echo $?; false; echo $?", "0\n1\n"},
	{"! false; echo $?", "0\n"},
	{"(exit 4); echo $?", "4\n"},
	{
		"shouldnotexist",
		"\"shouldnotexist\": executable file not found in $PATH\nexit status 127",
	},

	// echo
	{"echo", "\n"},
	{"echo a b c", "a b c\n"},
	{"echo -n foo", "foo"},
	{"echo -e x", "-e x\n"},

	// printf
	{"printf", "usage: printf format [arguments]\nexit status 2"},
	{"printf foo", "foo"},
	{"printf %%", "%"},
	{"printf '%s\\n' one two", "one\ntwo\n"},
	{"printf '%s-%s\\n' a b c", "a-b\nc-\n"},
	{"printf '%d\\n' 42", "42\n"},
	{"printf '%05d\\n' 42", "00042\n"},
	{"printf '%x\\n' 255", "ff\n"},
	{"printf '%d\\n' \\'A", "65\n"},
	{"printf '%d\\n' foo", "0\nprintf: foo: expected a numeric value\nexit status 1"},
	{"printf '%b' 'a\\cb'; echo x", "ax\n"},

	// variables and assignments
	{"foo=bar; echo $foo", "bar\n"},
	{"foo=bar; foo=baz; echo $foo", "baz\n"},
	{"foo=bar true; echo $foo", "\n"},
	{"foo=bar eval 'echo $foo'; echo x$foo", "bar\nx\n"},
	{"foo=bar; unset foo; echo x$foo", "x\n"},
	{"readonly foo=bar; foo=baz; echo $?", "foo: readonly variable\n1\n"},
	{"readonly foo=bar; unset foo; echo $?", "foo: readonly variable\n1\n"},
	{"readonly foo=bar; readonly foo=baz; echo $?", "readonly: foo: readonly variable\n1\n"},
	{"x=$(false); echo $?", "1\n"},
	{"echo $0", "posh\n"},

	// positional parameters
	{"set -- a b c; echo $#; echo $2", "3\nb\n"},
	{"set -- a b c; shift; echo $1", "b\n"},
	{"set -- a b; shift 2; echo $#", "0\n"},
	{"set -- a b; set --; echo $#", "0\n"},
	{"shift; echo $#", "shift: can't shift that many\n0\n"},
	{"set -- a b; echo \"$@\"", "a b\n"},
	{"set -- a b; echo \"$*\"", "a b\n"},
	{"echo \"$@\"", "\n"},
	{"set -- 'a a' b; for x in \"$@\"; do echo $x; done", "a a\nb\n"},

	// parameter expansion
	{"echo ${foo-def}", "def\n"},
	{"foo=; echo x${foo-def}", "x\n"},
	{"foo=; echo ${foo:-def}", "def\n"},
	{"echo ${foo=assigned}; echo $foo", "assigned\nassigned\n"},
	{"foo=bar; echo ${foo+set}", "set\n"},
	{"foo=barbar; echo ${#foo}", "6\n"},
	{"foo=a.b.c; echo ${foo#*.}", "b.c\n"},
	{"foo=a.b.c; echo ${foo##*.}", "c\n"},
	{"foo=a.b.c; echo ${foo%.*}", "a.b\n"},
	{"foo=a.b.c; echo ${foo%%.*}", "a\n"},
	{"echo ${foo?msg here}", "posh: foo: msg here\nexit status 1"},
	{"echo x$nope", "x\n"},

	// shell options
	{"set -e; false; echo after", "exit status 1"},
	{"set -e; if false; then echo t; fi; echo ok", "ok\n"},
	{"set -e; false || echo rescued", "rescued\n"},
	{"set -e; ! true; echo ok", "ok\n"},
	{"set -u; echo $nope", "posh: nope: parameter not set\nexit status 1"},
	{"set -x; echo hi", "+ echo hi\nhi\n"},
	{"set -n; echo hi", ""},
	{"set -e -u; echo $-", "eu\n"},
	{
		"set -o",
		"allexport\toff\nerrexit\toff\nnoexec\toff\nnoglob\toff\n" +
			"nounset\toff\npipefail\toff\nxtrace\toff\n",
	},
	{"set -o badname; echo $?", "set: invalid option: \"badname\"\n2\n"},

	// if clauses
	{"if true; then echo t; fi", "t\n"},
	{"if false; then echo t; fi", ""},
	{"if false; then echo t; else echo f; fi", "f\n"},
	{"if false; then echo a; elif true; then echo b; else echo c; fi", "b\n"},

	// loops
	{"while false; do echo x; done", ""},
	{"i=0; while [ $i -lt 3 ]; do echo $i; i=$((i+1)); done", "0\n1\n2\n"},
	{"i=0; until [ $i -ge 2 ]; do echo $i; i=$((i+1)); done", "0\n1\n"},
	{"for i in 1 2 3; do echo $i; done", "1\n2\n3\n"},
	{"set -- a b; for x; do echo $x; done", "a\nb\n"},
	{"for i in 1 2 3; do if [ $i = 2 ]; then break; fi; echo $i; done", "1\n"},
	{"for i in 1 2 3; do [ $i = 2 ] && continue; echo $i; done", "1\n3\n"},
	{"for i in 1 2; do for j in a b; do break 2; done; echo $i; done; echo done", "done\n"},
	{"break", "break: only meaningful in a loop\n"},
	{"continue", "continue: only meaningful in a loop\n"},
	{"for i in 1; do break a; done", "usage: break [n]\nexit status 2"},

	// case clauses
	{"case foo in f*) echo match;; *) echo no;; esac", "match\n"},
	{"case foo in bar) echo a;; *) echo b;; esac", "b\n"},
	{"case x in a) echo a;; b) echo b;; esac; echo $?", "0\n"},
	{"case a.txt in *.txt | *.md) echo doc;; esac", "doc\n"},

	// functions
	{"f() { echo fn $1; }; f arg", "fn arg\n"},
	{"f() { return 3; echo no; }; f; echo $?", "3\n"},
	{"f() { echo $#; }; set -- a; f; echo $#", "0\n1\n"},
	{"f() { echo in $1; }; g() { f g-arg; echo back $1; }; g top", "in g-arg\nback top\n"},
	{"f() { exit 3; }; f; echo no", "exit status 3"},
	{"return", "return: can only be used from a function or sourced script\nexit status 1"},
	{"true() { echo f; }; true; command true; echo $?", "f\n0\n"},
	{"set() { echo func; }; set -- a; echo $#", "1\n"},

	// subshells
	{"foo=bar; (foo=baz); echo $foo", "bar\n"},
	{"foo=bar; (echo $foo)", "bar\n"},
	{"(cd /; pwd)", "/\n"},
	{"olddir=$PWD; (cd /); [ \"$PWD\" = \"$olddir\" ] && echo same", "same\n"},

	// pipelines
	{"echo foo | read line; echo $line", "foo\n"},
	{"echo a b | { read x y; echo $y $x; }", "b a\n"},
	{"true | false", "exit status 1"},
	{"false | true", ""},
	{"set -o pipefail; false | true", "exit status 1"},
	{"set -o pipefail; set +o pipefail; false | true; echo $?", "0\n"},
	{"false && echo a || echo b", "b\n"},
	{"true && echo a", "a\n"},

	// redirections
	{"echo foo >f; read l <f; echo $l", "foo\n"},
	{"echo a >f; echo b >>f; while read l; do echo $l; done <f", "a\nb\n"},
	{"echo hi >/dev/null", ""},
	{"{ echo out; shouldnotexist; } 2>/dev/null", "out\nexit status 127"},
	{"(exec >f; echo inside); read l <f; echo got $l", "got inside\n"},
	{">f; [ -f f ] && echo yes", "yes\n"},

	// here-documents
	{"read l <<EOF\nhello\nEOF\necho $l", "hello\n"},
	{"foo=bar; read l <<EOF\nhi $foo\nEOF\necho $l", "hi bar\n"},
	{"read -r l <<'EOF'\n$foo there\nEOF\necho \"$l\"", "$foo there\n"},
	{"read l <<-EOF\n\tindented\n\tEOF\necho $l", "indented\n"},
	{"while read l; do echo x$l; done <<EOF\na\nb\nEOF", "xa\nxb\n"},

	// command substitution
	{"echo $(echo nested)", "nested\n"},
	{"echo \"x$(echo y)z\"", "xyz\n"},
	{"echo `echo ticks`", "ticks\n"},
	{"foo=$(echo a; echo b); echo \"$foo\"", "a\nb\n"},
	{"echo $(echo a; echo b)", "a b\n"},

	// arithmetic expansion
	{"echo $((2 + 3 * 4))", "14\n"},
	{"x=5; echo $((x * 2))", "10\n"},
	{"echo $((2 ** 10))", "1024\n"},
	{"echo $((-2 ** 2))", "4\n"},
	{"echo $((8 / 3))", "2\n"},
	{"echo $((1 ? 2 : 3))", "2\n"},
	{"i=1; : $((i += 3)); echo $i", "4\n"},
	{"echo $((1 / 0))", "posh: arithmetic: division by zero\nexit status 1"},

	// pathname expansion
	{">a.posh; >b.posh; echo *.posh", "a.posh b.posh\n"},
	{"echo *.doesnotmatch", "*.doesnotmatch\n"},
	{"set -f; >c.posh; echo *.posh", "*.posh\n"},

	// read field splitting
	{"read x y <<EOF\n  a   b c \nEOF\necho \"$x|$y\"", "a|b c\n"},
	{"IFS=: read x y <<EOF\na:b:c\nEOF\necho \"$y\"", "b:c\n"},
	{"read x; echo $?", "1\n"},
	// EOF before a newline fails but keeps the partial assignment
	{"printf abc >f; read x <f; echo \"$? $x\"", "1 abc\n"},
	{"IFS=:; x=a::b; set -- $x; echo \"$#:$2\"", "3:\n"},
	{"IFS=:; x=:a; set -- $x; echo $#", "2\n"},

	// cd and pwd
	{"cd /; pwd", "/\n"},
	{"cd nosuchdir-posh; echo $?", "cd: nosuchdir-posh: No such file or directory\n1\n"},
	{"cd a b", "usage: cd [dir]\nexit status 2"},

	// test expressions
	{"[ a = a ]; echo $?", "0\n"},
	{"[ a = b ]; echo $?", "1\n"},
	{"[ 3 -gt 2 ] && echo yes", "yes\n"},
	{"test 5 -le 4 || echo no", "no\n"},
	{"[ -z '' ] && echo empty", "empty\n"},
	{"[ -n x -a y = y ]; echo $?", "0\n"},
	{"[ a = a -o b = c ]; echo $?", "0\n"},
	{"[ ! a = a ]; echo $?", "1\n"},
	{"[ -d . ] && echo yes", "yes\n"},
	{"[ a = a", "[: missing matching ]\nexit status 2"},
	{"[ x -gt 2 ]", "test: x: integer expression expected\nexit status 2"},

	// eval and dot
	{"eval 'echo evaled'", "evaled\n"},
	{"eval", ""},
	{"x='echo nested'; eval $x", "nested\n"},
	{"x=5; eval \"echo \\$x\"", "5\n"},
	{"echo 'echo sourced' >s.sh; . ./s.sh", "sourced\n"},
	{"echo 'return 5' >s.sh; . ./s.sh; echo $?", "5\n"},

	// type and command
	{"type cd", "cd is a shell builtin\n"},
	{"type exit", "exit is a special shell builtin\n"},
	{"f() { :; }; type f", "f is a function\n"},
	{"type nosuchthing123", "type: nosuchthing123: not found\nexit status 1"},
	{"command -v echo", "echo\n"},
	{"command echo via-command", "via-command\n"},

	// traps
	{"trap 'echo bye' EXIT; echo hi", "hi\nbye\n"},
	{"trap 'echo bye' EXIT; trap - EXIT; echo hi", "hi\n"},
	{"trap '' EXIT; echo hi", "hi\n"},
	{
		"trap 'echo bye' EXIT INT; trap",
		"trap -- 'echo bye' EXIT\ntrap -- 'echo bye' INT\nbye\n",
	},
	{"trap 'echo x' NOSUCHSIG", "trap: NOSUCHSIG: invalid signal specification\nexit status 1"},

	// getopts
	{
		"set -- -a -b arg; while getopts ab:c opt; do echo $opt $OPTARG; done; echo $OPTIND",
		"a\nb arg\n4\n",
	},
	{
		"set -- -ab; getopts ab opt; echo $opt; getopts ab opt; echo $opt $OPTIND",
		"a\nb 2\n",
	},
	{"set -- -z; getopts :ab opt; echo $opt $OPTARG", "? z\n"},
	{"set -- foo; getopts ab opt; echo $?", "1\n"},

	// background jobs and wait
	{"echo bg & wait", "bg\n"},
	{"true & echo $!", "1\n"},
	{"true & wait $!; echo $?", "0\n"},
	{"false & wait $!; echo $?", "1\n"},
	{"wait 99; echo $?", "127\n"},
	{"wait", ""},

	// umask
	{"umask 027; umask", "0027\n"},
	{"umask badmask", "umask: badmask: invalid mask\nexit status 1"},
}

func TestRunnerRun(t *testing.T) {
	p := syntax.NewParser()
	for i := range runTests {
		t.Run(fmt.Sprintf("%03d", i), func(t *testing.T) {
			c := runTests[i]
			file := parse(t, p, c.in)
			t.Parallel()
			dir := t.TempDir()
			var cb concBuffer
			r, err := New(Dir(dir), StdIO(nil, &cb, &cb))
			if err != nil {
				t.Fatal(err)
			}
			if err := r.Run(context.Background(), file); err != nil {
				cb.WriteString(err.Error())
			}
			if got := cb.String(); got != c.want {
				t.Fatalf("wrong output in %q:\nwant: %q\ngot:  %q",
					c.in, c.want, got)
			}
		})
	}
}

func TestRunnerIncremental(t *testing.T) {
	t.Parallel()
	var cb concBuffer
	r, err := New(Dir(t.TempDir()), StdIO(nil, &cb, &cb))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	for _, src := range []string{"foo=bar", "echo $foo"} {
		if err := r.Run(ctx, parse(t, nil, src)); err != nil {
			t.Fatal(err)
		}
	}
	if got := cb.String(); got != "bar\n" {
		t.Fatalf("shell state not kept between runs: %q", got)
	}
}

func TestRunnerReset(t *testing.T) {
	t.Parallel()
	var cb concBuffer
	r, err := New(Dir(t.TempDir()), StdIO(nil, &cb, &cb))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := r.Run(ctx, parse(t, nil, "foo=bar")); err != nil {
		t.Fatal(err)
	}
	r.Reset()
	if err := r.Run(ctx, parse(t, nil, "echo x$foo")); err != nil {
		t.Fatal(err)
	}
	if got := cb.String(); got != "x\n" {
		t.Fatalf("shell state kept after Reset: %q", got)
	}
}

func TestRunnerExited(t *testing.T) {
	t.Parallel()
	tests := []struct {
		src    string
		exited bool
	}{
		{"true", false},
		{"false", false},
		{"exit", true},
		{"exit 3", true},
		{"f() { exit; }; f", true},
	}
	for _, tc := range tests {
		r, err := New(Dir(t.TempDir()))
		if err != nil {
			t.Fatal(err)
		}
		r.Run(context.Background(), parse(t, nil, tc.src))
		if got := r.Exited(); got != tc.exited {
			t.Fatalf("Exited() after %q: got %v, want %v", tc.src, got, tc.exited)
		}
	}
}

func TestRunnerContextCancel(t *testing.T) {
	t.Parallel()
	r, err := New(Dir(t.TempDir()))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = r.Run(ctx, parse(t, nil, "echo never"))
	if err == nil {
		t.Fatal("expected an error from a cancelled context")
	}
	if _, ok := IsExitStatus(err); ok {
		t.Fatalf("wanted the context error, got %v", err)
	}
}

func TestHandleSignal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var cb concBuffer
	r, err := New(Dir(t.TempDir()), StdIO(nil, &cb, &cb))
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Run(ctx, parse(t, nil, "trap 'echo caught' INT")); err != nil {
		t.Fatal(err)
	}
	r.handleSignal(ctx, syscall.SIGINT)
	if got := cb.String(); got != "caught\n" {
		t.Fatalf("trap action did not run: %q", got)
	}

	// untrapped signals terminate the shell with 128+N
	r2, err := New(Dir(t.TempDir()))
	if err != nil {
		t.Fatal(err)
	}
	r2.Reset()
	r2.fillExpandContext(ctx)
	r2.handleSignal(ctx, syscall.SIGTERM)
	if !r2.exit.exiting || r2.exit.code != 128+15 {
		t.Fatalf("untrapped SIGTERM: exiting=%v code=%d", r2.exit.exiting, r2.exit.code)
	}

	// an interactive shell only abandons the current command on SIGINT
	r3, err := New(Dir(t.TempDir()), Interactive(true))
	if err != nil {
		t.Fatal(err)
	}
	r3.Reset()
	r3.fillExpandContext(ctx)
	r3.handleSignal(ctx, syscall.SIGINT)
	if r3.exit.exiting || !r3.aborted {
		t.Fatalf("interactive SIGINT: exiting=%v aborted=%v", r3.exit.exiting, r3.aborted)
	}
}

func TestIsExitStatus(t *testing.T) {
	t.Parallel()
	if code, ok := IsExitStatus(ExitStatus(3)); !ok || code != 3 {
		t.Fatalf("got %d, %v", code, ok)
	}
	if _, ok := IsExitStatus(context.Canceled); ok {
		t.Fatal("context.Canceled is not an exit status")
	}
}
