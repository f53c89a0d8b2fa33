// Copyright (c) 2024, the posh authors
// See LICENSE for licensing information

// posh is a POSIX shell. It runs a script file, a command string given with
// -c, or an interactive session when standard input is a terminal.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pborman/getopt/v2"
	"golang.org/x/term"

	"github.com/poshsh/posh/interp"
	"github.com/poshsh/posh/syntax"
)

var (
	flagCommand = getopt.Bool('c', "read commands from the first operand")
	flagErrExit = getopt.Bool('e', "exit on the first command failure")
	flagNoUnset = getopt.Bool('u', "treat unset parameters as an error")
	flagXTrace  = getopt.Bool('x', "print commands before running them")
	flagNoExec  = getopt.Bool('n', "read commands but do not run them")
)

func main() {
	os.Exit(main1())
}

func main1() int {
	getopt.SetParameters("[script-file | -c command] [args ...]")
	getopt.Parse()
	return run(getopt.Args())
}

func setFlags() []string {
	var flags []string
	if *flagErrExit {
		flags = append(flags, "-e")
	}
	if *flagNoUnset {
		flags = append(flags, "-u")
	}
	if *flagXTrace {
		flags = append(flags, "-x")
	}
	if *flagNoExec {
		flags = append(flags, "-n")
	}
	return flags
}

func run(args []string) int {
	switch {
	case *flagCommand:
		if len(args) == 0 {
			fmt.Fprintln(os.Stderr, "posh: -c requires an argument")
			return 2
		}
		src, name, params := args[0], "posh", []string(nil)
		if len(args) > 1 {
			name, params = args[1], args[2:]
		}
		return runScript(newRunner(params, false), strings.NewReader(src), name)
	case len(args) > 0:
		f, err := os.Open(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "posh: %v\n", err)
			return 127
		}
		defer f.Close()
		return runScript(newRunner(args[1:], false), f, args[0])
	case term.IsTerminal(int(os.Stdin.Fd())):
		runner := newRunner(nil, true)
		err := interactive(runner, os.Stdin, os.Stdout, prompt("PS1", "$ "), prompt("PS2", "> "))
		return status(err)
	default:
		return runScript(newRunner(nil, false), os.Stdin, "posh")
	}
}

func prompt(name, fallback string) string {
	if s := os.Getenv(name); s != "" {
		return s
	}
	return fallback
}

func newRunner(params []string, interactive bool) *interp.Runner {
	args := setFlags()
	if len(params) > 0 {
		args = append(args, "--")
		args = append(args, params...)
	}
	opts := []interp.RunnerOption{
		interp.StdIO(os.Stdin, os.Stdout, os.Stderr),
		interp.Interactive(interactive),
	}
	if len(args) > 0 {
		opts = append(opts, interp.Params(args...))
	}
	runner, err := interp.New(opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "posh: %v\n", err)
		os.Exit(2)
	}
	return runner
}

func runScript(runner *interp.Runner, src io.Reader, name string) int {
	file, err := syntax.NewParser().Parse(src, name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "posh: %v\n", err)
		return 2
	}
	return status(runner.Run(context.Background(), file))
}

func status(err error) int {
	if code, ok := interp.IsExitStatus(err); ok {
		return int(code)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "posh: %v\n", err)
		return 1
	}
	return 0
}

// promptReader prints the continuation prompt before each read done while a
// construct is left open.
type promptReader struct {
	r   io.Reader
	p   *syntax.Parser
	w   io.Writer
	ps2 string
}

func (pr promptReader) Read(b []byte) (int, error) {
	if pr.p.Incomplete() {
		fmt.Fprint(pr.w, pr.ps2)
	}
	return pr.r.Read(b)
}

// interactive runs a read-eval loop until stdin hits EOF or the shell exits.
// A syntax error abandons the offending line and the session continues, as
// POSIX requires of interactive shells.
func interactive(runner *interp.Runner, stdin io.Reader, stdout io.Writer, ps1, ps2 string) error {
	ctx := context.Background()
	var runErr error
	for {
		parser := syntax.NewParser()
		fmt.Fprint(stdout, ps1)
		fn := func(stmts []*syntax.Stmt) bool {
			for _, stmt := range stmts {
				runErr = runner.Run(ctx, stmt)
				if runner.Exited() {
					return false
				}
			}
			fmt.Fprint(stdout, ps1)
			return true
		}
		src := promptReader{r: stdin, p: parser, w: stdout, ps2: ps2}
		err := parser.Interactive(src, fn)
		if err == nil {
			// EOF, or the shell exited
			return runErr
		}
		// keep runErr: the final status is that of the last command run
		fmt.Fprintf(stdout, "posh: %v\n", err)
	}
}
