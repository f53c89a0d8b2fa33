// Copyright (c) 2024, the posh authors
// See LICENSE for licensing information

// Package interp implements an interpreter that executes shell programs. It
// aims to support POSIX, but it does not support all of its features yet.
//
// This package is a work in progress and its API is not subject to the 1.x
// backwards compatibility guarantee.
package interp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/poshsh/posh/expand"
	"github.com/poshsh/posh/syntax"
)

// Runner interprets shell programs. It can be reused, but it is not safe for
// concurrent use. Use [New] to build a new Runner.
//
// Note that writes to Stdout and Stderr may be concurrent if background
// commands are used. If you plan on using an [io.Writer] implementation that
// isn't safe for concurrent use, consider a workaround like hiding writes
// behind a mutex.
type Runner struct {
	// Env specifies the initial environment for the interpreter, which must
	// not be nil. It can only be set via [Env].
	Env expand.Environ

	// writeEnv overlays Env so that the shell can set and unset variables.
	writeEnv expand.WriteEnviron

	// Dir specifies the working directory of the command, which must be an
	// absolute path. It can only be set via [Dir].
	Dir string

	// Params are the current positional parameters, e.g. from running a
	// shell file or calling a function. It can only be set via [Params].
	Params []string

	// Funcs are the currently defined shell functions.
	Funcs map[string]*syntax.Stmt

	execHandler ExecHandlerFunc
	openHandler OpenHandlerFunc

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	ectx *expand.Context
	ctx  context.Context // so that expansion callbacks can use it again

	didReset bool
	usedNew  bool

	filename string // only if the node was a File

	// >0 to break or continue out of N enclosing loops
	breakEnclosing, contnEnclosing int

	inLoop       bool
	inFunc       bool
	inSource     bool
	handlingTrap bool

	// noErrExit prevents failing commands from triggering the errexit
	// option, such as the condition of an if clause.
	noErrExit bool

	// expandFail is set when a word expansion failed, so that the command
	// being built is not run.
	expandFail bool

	// keepRedirs makes redirections apply to the current shell, for "exec"
	// without arguments.
	keepRedirs bool

	// aborted is set when an untrapped SIGINT arrives in interactive
	// mode; the current command is abandoned but the shell survives.
	aborted bool

	// inBgJob marks a subshell spawned for a background statement, so
	// that external processes get their own process group.
	inBgJob bool

	// The current and last exit statuses. They can only differ while the
	// interpreter is in the middle of running a statement.
	exit     exitStatus
	lastExit exitStatus

	lastExpandExit exitStatus // surfaces exit statuses from command substitutions

	jobs      []*job
	lastBgPID int

	traps    map[string]trap
	sigch    chan os.Signal
	notified []os.Signal

	opts     runnerOpts
	optState getopts

	origDir    string
	origParams []string
	origOpts   runnerOpts
	origStdin  io.Reader
	origStdout io.Writer
	origStderr io.Writer
}

// exitStatus holds the state of the shell after running one command: the
// status code, whether a function is returning or the shell is exiting, and
// any fatal Go error to hand back to the caller of [Runner.Run].
type exitStatus struct {
	code uint8

	returning bool
	exiting   bool

	err error
}

func (e *exitStatus) ok() bool { return e.code == 0 }

func (e *exitStatus) oneIf(b bool) {
	if b {
		e.code = 1
	} else {
		e.code = 0
	}
}

func (e *exitStatus) fatal(err error) {
	if e.err == nil && err != nil {
		e.exiting = true
		e.err = err
		if e.code == 0 {
			e.code = 1
		}
	}
}

func (e *exitStatus) fromHandlerError(err error) {
	var es ExitStatus
	switch {
	case err == nil:
		e.code = 0
	case errors.As(err, &es):
		e.code = uint8(es)
	default:
		e.fatal(err)
	}
}

// New creates a new Runner, applying a number of options. If applying any of
// the options results in an error, it is returned.
//
// Any unset options fall back to their defaults. For example, not supplying
// the environment falls back to the process's environment, and not supplying
// the standard output writer means that the output will be discarded.
func New(opts ...RunnerOption) (*Runner, error) {
	r := &Runner{
		usedNew:     true,
		openHandler: DefaultOpenHandler(),
		execHandler: DefaultExecHandler(2 * time.Second),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	if r.Env == nil {
		Env(nil)(r)
	}
	if r.Dir == "" {
		if err := Dir("")(r); err != nil {
			return nil, err
		}
	}
	if r.stdout == nil || r.stderr == nil {
		StdIO(r.stdin, r.stdout, r.stderr)(r)
	}
	return r, nil
}

// RunnerOption can be passed to [New] to alter a [Runner]'s behaviour. It
// can also be applied directly on an existing Runner, such as
// interp.Params("-e")(runner). Options cannot be applied once Run or Reset
// have been called.
type RunnerOption func(*Runner) error

// Env sets the interpreter's environment. If nil, a copy of the current
// process's environment is used.
func Env(env expand.Environ) RunnerOption {
	return func(r *Runner) error {
		if env == nil {
			env = expand.ListEnviron(os.Environ()...)
		}
		r.Env = env
		return nil
	}
}

// Dir sets the interpreter's working directory. If empty, the process's
// current directory is used.
func Dir(path string) RunnerOption {
	return func(r *Runner) error {
		if path == "" {
			path, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("could not get current dir: %w", err)
			}
			r.Dir = path
			return nil
		}
		path, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("could not get absolute dir: %w", err)
		}
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("could not stat: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", path)
		}
		r.Dir = path
		return nil
	}
}

// Params populates the shell options and parameters. For example,
// Params("-e", "--", "foo") will set the "-e" option and the parameters
// ["foo"], and Params("+e") will unset the "-e" option and leave the
// parameters untouched.
//
// This is similar to what the interpreter's "set" builtin does.
func Params(args ...string) RunnerOption {
	return func(r *Runner) error {
		fp := flagParser{remaining: args}
		for fp.more() {
			flag := fp.flag()
			if flag == "-" {
				// "--" ends the options; the rest, even if empty,
				// becomes the positional parameters
				r.Params = fp.args()
				return nil
			}
			enable := flag[0] == '-'
			if flag[1:] == "o" {
				opt := fp.value()
				if opt == "" && enable {
					r.printOptLines()
					continue
				}
				if opt == "" && !enable {
					r.printOptCmds()
					continue
				}
				on := r.optByName(opt)
				if on == nil {
					return fmt.Errorf("invalid option: %q", opt)
				}
				*on = enable
				continue
			}
			on := r.optByFlag(flag[1])
			if on == nil {
				return fmt.Errorf("invalid option: %q", flag)
			}
			*on = enable
		}
		if args := fp.args(); args != nil {
			r.Params = args
		}
		return nil
	}
}

// Interactive configures the interpreter to behave like an interactive
// shell: an untrapped SIGINT aborts the command being run and control
// returns to the caller, rather than terminating the shell.
func Interactive(enabled bool) RunnerOption {
	return func(r *Runner) error {
		r.opts[optInteractive] = enabled
		return nil
	}
}

// StdIO configures an interpreter's standard input, standard output, and
// standard error. If out or err are nil, they default to a writer that
// discards the output.
func StdIO(in io.Reader, out, err io.Writer) RunnerOption {
	return func(r *Runner) error {
		r.stdin = in
		if out == nil {
			out = io.Discard
		}
		r.stdout = out
		if err == nil {
			err = io.Discard
		}
		r.stderr = err
		return nil
	}
}

// ExecHandler sets the command execution handler. See [ExecHandlerFunc] for
// more info.
func ExecHandler(f ExecHandlerFunc) RunnerOption {
	return func(r *Runner) error {
		r.execHandler = f
		return nil
	}
}

// OpenHandler sets file open handler. See [OpenHandlerFunc] for more info.
func OpenHandler(f OpenHandlerFunc) RunnerOption {
	return func(r *Runner) error {
		r.openHandler = f
		return nil
	}
}

type runnerOpts [len(shellOptsTable) + 1]bool

type shellOpt struct {
	flag byte
	name string
}

// sorted alphabetically by name; a space means the option has no flag form
var shellOptsTable = [...]shellOpt{
	{'a', "allexport"},
	{'e', "errexit"},
	{'n', "noexec"},
	{'f', "noglob"},
	{'u', "nounset"},
	{' ', "pipefail"},
	{'x', "xtrace"},
}

const (
	optAllExport = iota
	optErrExit
	optNoExec
	optNoGlob
	optNoUnset
	optPipeFail
	optXTrace

	// interactive mode is not settable via "set"
	optInteractive
)

func (r *Runner) optByFlag(flag byte) *bool {
	for i, opt := range &shellOptsTable {
		if opt.flag == flag {
			return &r.opts[i]
		}
	}
	return nil
}

func (r *Runner) optByName(name string) *bool {
	for i, opt := range &shellOptsTable {
		if opt.name == name {
			return &r.opts[i]
		}
	}
	return nil
}

func (r *Runner) printOptLines() {
	for i, opt := range &shellOptsTable {
		state := "off"
		if r.opts[i] {
			state = "on"
		}
		r.outf("%s\t%s\n", opt.name, state)
	}
}

func (r *Runner) printOptCmds() {
	for i, opt := range &shellOptsTable {
		cmd := "+o"
		if r.opts[i] {
			cmd = "-o"
		}
		r.outf("set %s %s\n", cmd, opt.name)
	}
}

// optFlags returns the single-letter options currently set, for $-.
func (r *Runner) optFlags() string {
	var buf []byte
	for i, opt := range &shellOptsTable {
		if r.opts[i] && opt.flag != ' ' {
			buf = append(buf, opt.flag)
		}
	}
	if r.opts[optInteractive] {
		buf = append(buf, 'i')
	}
	return string(buf)
}

// Reset returns a runner to its initial state, right before the first call
// to Run or Reset.
//
// Typically, this function only needs to be called if a runner is reused to
// run multiple programs non-incrementally. Not calling Reset between each
// run will mean that the shell state will be kept, including variables,
// options, and the current directory.
func (r *Runner) Reset() {
	if !r.usedNew {
		panic("use interp.New to construct a Runner")
	}
	if !r.didReset {
		r.origDir = r.Dir
		r.origParams = r.Params
		r.origOpts = r.opts
		r.origStdin = r.stdin
		r.origStdout = r.stdout
		r.origStderr = r.stderr
	}
	*r = Runner{
		Env:         r.Env,
		execHandler: r.execHandler,
		openHandler: r.openHandler,

		Dir:    r.origDir,
		Params: r.origParams,
		opts:   r.origOpts,
		stdin:  r.origStdin,
		stdout: r.origStdout,
		stderr: r.origStderr,

		origDir:    r.origDir,
		origParams: r.origParams,
		origOpts:   r.origOpts,
		origStdin:  r.origStdin,
		origStdout: r.origStdout,
		origStderr: r.origStderr,

		usedNew: r.usedNew,
	}
	r.writeEnv = &overlayEnviron{parent: r.Env}
	if !r.writeEnv.Get("HOME").IsSet() {
		home, _ := os.UserHomeDir()
		r.setVarString("HOME", home)
	}
	r.setVarString("PWD", r.Dir)
	r.setVarString("IFS", " \t\n")
	r.setVarString("OPTIND", "1")
	r.didReset = true
}

// ExitStatus is a non-zero status code resulting from running a shell node.
type ExitStatus uint8

func (s ExitStatus) Error() string { return fmt.Sprintf("exit status %d", s) }

// IsExitStatus checks whether error contains an exit status and returns it.
func IsExitStatus(err error) (status uint8, ok bool) {
	var es ExitStatus
	if errors.As(err, &es) {
		return uint8(es), true
	}
	return 0, false
}

// Run interprets a node, which can be a [*syntax.File], [*syntax.Stmt], or
// [syntax.Command]. If a non-nil error is returned, it will typically
// contain a command's exit status, which can be retrieved with
// [IsExitStatus].
//
// Run can be called multiple times synchronously to interpret programs
// incrementally. To reuse a [Runner] without keeping the internal shell
// state, call Reset.
//
// Calling Run on an entire [*syntax.File] implies an exit, meaning that an
// EXIT trap may run.
func (r *Runner) Run(ctx context.Context, node syntax.Node) error {
	if !r.didReset {
		r.Reset()
	}
	r.fillExpandContext(ctx)
	r.watchSignals()
	defer r.stopSignals()
	r.exit = exitStatus{}
	r.aborted = false
	r.filename = ""
	switch node := node.(type) {
	case *syntax.File:
		r.filename = node.Name
		r.stmts(ctx, node.Stmts)
		r.exitTrap(ctx)
	case *syntax.Stmt:
		r.stmt(ctx, node)
	case syntax.Command:
		r.cmd(ctx, node)
	default:
		return fmt.Errorf("node can only be File, Stmt, or Command: %T", node)
	}
	if err := r.exit.err; err != nil {
		return err
	}
	if code := r.exit.code; code != 0 {
		return ExitStatus(code)
	}
	return nil
}

// Exited reports whether the last Run call should exit an entire shell. This
// can be triggered by the "exit" builtin, or by a fatal signal.
//
// Note that this state is overwritten at every Run call, so it should be
// checked immediately after each Run call.
func (r *Runner) Exited() bool { return r.exit.exiting }

// watchSignals subscribes to the signals that the shell reacts to. They are
// queued on a channel and consumed at statement boundaries, so that trap
// actions run at a safe point.
func (r *Runner) watchSignals() {
	if r.sigch != nil {
		return
	}
	r.sigch = make(chan os.Signal, 16)
	r.notified = trappableSignals()
	signal.Notify(r.sigch, r.notified...)
}

func (r *Runner) stopSignals() {
	if r.sigch == nil {
		return
	}
	signal.Stop(r.sigch)
	r.sigch = nil
}

// Subshell makes a copy of the given [Runner], suitable for use concurrently
// with the original. The copy will have the same environment, including
// variables and functions, but they can all be modified without affecting
// the original.
//
// Subshell is not safe to use concurrently with [Run]. Orchestrating this is
// left up to the caller; no locking is performed.
func (r *Runner) Subshell() *Runner {
	if !r.didReset {
		r.Reset()
	}
	// Manually copy fields, to do deep copies of the mutable ones.
	r2 := &Runner{
		Env:         r.Env,
		Dir:         r.Dir,
		Params:      r.Params,
		execHandler: r.execHandler,
		openHandler: r.openHandler,
		stdin:       r.stdin,
		stdout:      r.stdout,
		stderr:      r.stderr,
		filename:    r.filename,
		opts:        r.opts,
		usedNew:     r.usedNew,
		exit:        r.exit,
		lastExit:    r.lastExit,
		optState:    r.optState,
		didReset:    true,
	}
	// Subshells inherit variables and functions, but modifying them does
	// not affect the parent shell.
	oenv := &overlayEnviron{parent: expand.ListEnviron()}
	r.writeEnv.Each(func(name string, vr expand.Variable) bool {
		oenv.Set(name, vr)
		return true
	})
	r2.writeEnv = oenv
	r2.Funcs = make(map[string]*syntax.Stmt, len(r.Funcs))
	for name, body := range r.Funcs {
		r2.Funcs[name] = body
	}
	// subshells reset traps to their defaults, but keep ignored signals
	for sig, tr := range r.traps {
		if tr.ignore {
			if r2.traps == nil {
				r2.traps = make(map[string]trap)
			}
			r2.traps[sig] = tr
		}
	}
	r2.inBgJob = r.inBgJob
	r2.fillExpandContext(r.ctx)
	return r2
}
