// Copyright (c) 2024, the posh authors
// See LICENSE for licensing information

package interp

import (
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/poshsh/posh/expand"
	"github.com/poshsh/posh/pattern"
	"github.com/poshsh/posh/syntax"
)

func (r *Runner) fillExpandContext(ctx context.Context) {
	r.ctx = ctx
	r.ectx = &expand.Context{
		Env: expandEnv{r},
		CmdSubst: func(ctx context.Context, w io.Writer, stmts []*syntax.Stmt) {
			r2 := r.Subshell()
			r2.stdout = w
			r2.stmts(ctx, stmts)
			r2.exit.exiting = false // subshells don't exit the parent shell
			r.lastExpandExit = r2.exit
		},
		OnError: func(err error) { r.expandErr(err) },
	}
	r.updateExpandOpts()
}

func (r *Runner) updateExpandOpts() {
	r.ectx.NoGlob = r.opts[optNoGlob]
	r.ectx.NoUnset = r.opts[optNoUnset]
}

// expandErr reports a word expansion error. The command being expanded must
// not run; under "set -u" and bad substitutions a non-interactive shell
// exits entirely.
func (r *Runner) expandErr(err error) {
	if err == nil {
		return
	}
	r.errf("posh: %v\n", err)
	r.expandFail = true
	if !r.opts[optInteractive] {
		r.exit.code = 1
		r.exit.exiting = true
	}
}

func (r *Runner) fields(words ...*syntax.Word) []string {
	return r.ectx.Fields(r.ctx, words...)
}

func (r *Runner) literal(word *syntax.Word) string {
	return r.ectx.Literal(r.ctx, word)
}

func (r *Runner) document(word *syntax.Word) string {
	return r.ectx.Document(r.ctx, word)
}

func (r *Runner) pattern(word *syntax.Word) string {
	return r.ectx.Pattern(r.ctx, word)
}

func (r *Runner) out(s string) {
	io.WriteString(r.stdout, s)
}

func (r *Runner) outf(format string, a ...any) {
	fmt.Fprintf(r.stdout, format, a...)
}

func (r *Runner) errf(format string, a ...any) {
	fmt.Fprintf(r.stderr, format, a...)
}

func (r *Runner) stop(ctx context.Context) bool {
	// Traps still run while the shell is exiting, such as the EXIT trap.
	if !r.handlingTrap && (r.exit.returning || r.exit.exiting || r.aborted) {
		return true
	}
	if err := ctx.Err(); err != nil {
		r.exit.fatal(err)
		return true
	}
	if r.opts[optNoExec] {
		return true
	}
	return false
}

func (r *Runner) stmt(ctx context.Context, st *syntax.Stmt) {
	r.checkSignals(ctx)
	if r.stop(ctx) {
		return
	}
	r.exit = exitStatus{}
	if st.Background {
		r2 := r.Subshell()
		r2.inBgJob = true
		st2 := *st
		st2.Background = false
		job := r.addJob(&st2)
		go func() {
			r2.stmt(ctx, &st2)
			r2.exit.exiting = false
			*job.exit = r2.exit
			close(job.done)
		}()
	} else {
		r.stmtSync(ctx, st)
		r.reapJobs()
	}
	r.lastExit = r.exit
}

func (r *Runner) stmtSync(ctx context.Context, st *syntax.Stmt) {
	oldIn, oldOut, oldErr := r.stdin, r.stdout, r.stderr
	var closers []io.Closer
	for _, rd := range st.Redirs {
		cls, err := r.redir(ctx, rd)
		if err != nil {
			r.exit.code = 1
			break
		}
		if cls != nil {
			closers = append(closers, cls)
		}
	}
	if r.exit.ok() && st.Cmd != nil {
		r.cmd(ctx, st.Cmd)
	}
	if st.Negated {
		r.exit.oneIf(r.exit.ok())
	} else if b, ok := st.Cmd.(*syntax.BinaryCmd); ok && (b.Op == syntax.AndStmt || b.Op == syntax.OrStmt) {
	} else if !r.exit.ok() && !r.noErrExit && r.opts[optErrExit] {
		// errexit does not apply to conditions, and-or list
		// elements other than the last, or negated commands
		r.exit.exiting = true
	}
	if r.keepRedirs {
		// "exec" with only redirections: they stick to the shell, so
		// the files stay open
		r.keepRedirs = false
		return
	}
	r.stdin, r.stdout, r.stderr = oldIn, oldOut, oldErr
	for _, cls := range closers {
		cls.Close()
	}
}

func (r *Runner) stmts(ctx context.Context, stmts []*syntax.Stmt) {
	for _, stmt := range stmts {
		r.stmt(ctx, stmt)
	}
}

func (r *Runner) cmd(ctx context.Context, cm syntax.Command) {
	if r.stop(ctx) {
		return
	}
	switch cm := cm.(type) {
	case *syntax.Block:
		r.stmts(ctx, cm.Stmts)
	case *syntax.Subshell:
		r2 := r.Subshell()
		r2.stmts(ctx, cm.Stmts)
		r2.exit.exiting = false
		r.exit = r2.exit
	case *syntax.CallExpr:
		r.callExpr(ctx, cm)
	case *syntax.BinaryCmd:
		r.binaryCmd(ctx, cm)
	case *syntax.IfClause:
		oldNoErrExit := r.noErrExit
		r.noErrExit = true
		r.stmts(ctx, cm.Cond)
		r.noErrExit = oldNoErrExit
		if r.exit.ok() {
			r.stmts(ctx, cm.Then)
			break
		}
		r.exit.code = 0
		if cm.Else != nil {
			r.cmd(ctx, cm.Else)
		}
	case *syntax.WhileClause:
		for !r.stop(ctx) {
			oldNoErrExit := r.noErrExit
			r.noErrExit = true
			r.stmts(ctx, cm.Cond)
			r.noErrExit = oldNoErrExit
			stop := r.exit.ok() == cm.Until
			r.exit.code = 0
			if stop || r.loopStmtsBroken(ctx, cm.Do) {
				break
			}
		}
	case *syntax.ForClause:
		name := cm.Name.Value
		items := r.Params // for name; do ...
		if cm.InPos.IsValid() {
			items = r.fields(cm.Items...)
			if r.expandFail {
				r.expandFail = false
				r.exit.code = 1
				break
			}
		}
		r.exit.code = 0
		for _, field := range items {
			r.setVarString(name, field)
			if r.loopStmtsBroken(ctx, cm.Do) {
				break
			}
		}
	case *syntax.CaseClause:
		str := r.literal(cm.Word)
		r.exit.code = 0
	itemLoop:
		for _, ci := range cm.Items {
			for _, word := range ci.Patterns {
				if match(r.pattern(word), str) {
					r.stmts(ctx, ci.Stmts)
					break itemLoop
				}
			}
		}
	case *syntax.FuncDecl:
		r.setFunc(cm.Name.Value, cm.Body)
	default:
		panic(fmt.Sprintf("unhandled command node: %T", cm))
	}
}

func (r *Runner) callExpr(ctx context.Context, cm *syntax.CallExpr) {
	r.expandFail = false
	r.lastExpandExit = exitStatus{}
	fields := r.fields(cm.Args...)
	if r.expandFail {
		r.expandFail = false
		if r.exit.code == 0 {
			r.exit.code = 1
		}
		return
	}
	if len(fields) == 0 {
		// no command; the assignments apply to the shell
		for _, as := range cm.Assigns {
			vr := r.assignVal(as)
			if r.expandFail {
				r.expandFail = false
				r.exit.code = 1
				return
			}
			r.setVar(as.Name.Value, vr)
			if !r.exit.ok() {
				return
			}
		}
		// surface the exit status of any command substitution used
		// within the assignment values
		if r.exit.ok() {
			r.exit = r.lastExpandExit
		}
		return
	}

	// command-scoped assignments are exported and restored afterwards
	type restoreVar struct {
		name string
		vr   expand.Variable
	}
	var restores []restoreVar
	for _, as := range cm.Assigns {
		name := as.Name.Value
		prev := r.lookupVar(name)
		vr := r.assignVal(as)
		if r.expandFail {
			r.expandFail = false
			r.exit.code = 1
			return
		}
		vr.Exported = true
		restores = append(restores, restoreVar{name, prev})
		r.setVar(name, vr)
	}
	if r.opts[optXTrace] {
		r.errf("+ %s\n", strings.Join(fields, " "))
	}
	r.call(ctx, fields)
	for _, restore := range restores {
		if restore.vr.IsSet() {
			r.writeEnv.Set(restore.name, restore.vr)
		} else {
			r.writeEnv.Delete(restore.name)
		}
	}
}

func (r *Runner) binaryCmd(ctx context.Context, cm *syntax.BinaryCmd) {
	switch cm.Op {
	case syntax.AndStmt, syntax.OrStmt:
		oldNoErrExit := r.noErrExit
		r.noErrExit = true
		r.stmt(ctx, cm.X)
		r.noErrExit = oldNoErrExit
		if r.exit.ok() == (cm.Op == syntax.AndStmt) {
			r.stmt(ctx, cm.Y)
		}
	case syntax.Pipe:
		pr, pw, err := os.Pipe()
		if err != nil {
			r.exit.fatal(err)
			return
		}
		// Each stage but the last runs in a subshell on its own
		// goroutine; the last stage runs in the current shell, which
		// is the no-fork optimization POSIX permits.
		r2 := r.Subshell()
		r2.stdout = pw
		var g errgroup.Group
		g.Go(func() error {
			r2.stmt(ctx, cm.X)
			r2.exit.exiting = false
			pw.Close()
			return r2.exit.err
		})
		oldIn := r.stdin
		r.stdin = pr
		r.stmt(ctx, cm.Y)
		r.stdin = oldIn
		pr.Close()
		err = g.Wait()
		if r.opts[optPipeFail] && r.exit.ok() && !r2.exit.ok() {
			r.exit.code = r2.exit.code
		}
		if err != nil {
			r.exit.fatal(err)
		}
	}
}

func match(pat, name string) bool {
	expr, err := pattern.Regexp(pat, pattern.EntireString)
	if err != nil {
		return false
	}
	rx, err := regexp.Compile(expr)
	if err != nil {
		return false
	}
	return rx.MatchString(name)
}

func (r *Runner) loopStmtsBroken(ctx context.Context, stmts []*syntax.Stmt) bool {
	oldInLoop := r.inLoop
	r.inLoop = true
	defer func() { r.inLoop = oldInLoop }()
	for _, stmt := range stmts {
		r.stmt(ctx, stmt)
		if r.contnEnclosing > 0 {
			r.contnEnclosing--
			return r.contnEnclosing > 0
		}
		if r.breakEnclosing > 0 {
			r.breakEnclosing--
			return true
		}
	}
	return false
}

func (r *Runner) hdocReader(rd *syntax.Redirect) (io.ReadCloser, error) {
	hdoc := r.document(rd.Hdoc)
	if r.expandFail {
		r.expandFail = false
		return nil, fmt.Errorf("here-document expansion failed")
	}
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	// Write on a separate goroutine; pipe writes block once the buffer
	// fills up.
	go func() {
		io.WriteString(pw, hdoc)
		pw.Close()
	}()
	return pr, nil
}

func (r *Runner) redir(ctx context.Context, rd *syntax.Redirect) (io.Closer, error) {
	if rd.Op == syntax.Hdoc || rd.Op == syntax.DashHdoc {
		pr, err := r.hdocReader(rd)
		if err != nil {
			return nil, err
		}
		r.stdin = pr
		return pr, nil
	}
	orig := &r.stdout
	if rd.N != nil {
		switch rd.N.Value {
		case "0", "1":
			// stdin for the input redirects, stdout for the
			// output ones; the defaults below
		case "2":
			orig = &r.stderr
		default:
			return nil, fmt.Errorf("unsupported file descriptor: %s", rd.N.Value)
		}
	}
	arg := r.literal(rd.Word)
	if r.expandFail {
		r.expandFail = false
		return nil, fmt.Errorf("redirect expansion failed")
	}
	switch rd.Op {
	case syntax.DplOut:
		switch arg {
		case "1":
			*orig = r.stdout
		case "2":
			*orig = r.stderr
		case "-":
			*orig = io.Discard
		default:
			return nil, fmt.Errorf("invalid fd in >&%s", arg)
		}
		return nil, nil
	case syntax.DplIn:
		switch arg {
		case "0":
		case "-":
			r.stdin = nil
		default:
			return nil, fmt.Errorf("invalid fd in <&%s", arg)
		}
		return nil, nil
	}
	mode := os.O_RDONLY
	switch rd.Op {
	case syntax.AppOut:
		mode = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	case syntax.RdrOut:
		mode = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	case syntax.RdrInOut:
		mode = os.O_RDWR | os.O_CREATE
	}
	f, err := r.open(ctx, arg, mode, 0o644, true)
	if err != nil {
		return nil, err
	}
	switch rd.Op {
	case syntax.RdrIn, syntax.RdrInOut:
		r.stdin = f
	case syntax.RdrOut, syntax.AppOut:
		*orig = f
	default:
		panic(fmt.Sprintf("unhandled redirect op: %v", rd.Op))
	}
	return f, nil
}

func (r *Runner) open(ctx context.Context, path string, flags int, mode os.FileMode, print bool) (io.ReadWriteCloser, error) {
	f, err := r.openHandler(ctx, absPath(r.Dir, path), flags, mode)
	switch err.(type) {
	case nil:
		return f, nil
	case *os.PathError:
		if print {
			r.errf("%v\n", err)
		}
	default:
		r.exit.fatal(err)
	}
	return nil, err
}

// call resolves and runs a command: special builtins first, then functions,
// then the remaining builtins, and finally programs found in $PATH.
func (r *Runner) call(ctx context.Context, args []string) {
	if r.stop(ctx) {
		return
	}
	name := args[0]
	if isSpecialBuiltin(name) {
		r.exit.code = uint8(r.builtinCode(ctx, name, args[1:]))
		return
	}
	if body := r.Funcs[name]; body != nil {
		// stacked to support nested function calls
		oldParams := r.Params
		r.Params = args[1:]
		oldInFunc := r.inFunc
		r.inFunc = true
		r.stmt(ctx, body)
		r.Params = oldParams
		r.inFunc = oldInFunc
		r.exit.returning = false
		return
	}
	if isBuiltin(name) {
		r.exit.code = uint8(r.builtinCode(ctx, name, args[1:]))
		return
	}
	r.exec(ctx, args)
}

func (r *Runner) exec(ctx context.Context, args []string) {
	hc := HandlerContext{
		Env:        &overlayEnviron{parent: r.writeEnv},
		Dir:        r.Dir,
		Stdin:      r.stdin,
		Stdout:     r.stdout,
		Stderr:     r.stderr,
		Background: r.inBgJob,
	}
	ctx = context.WithValue(ctx, handlerCtxKey{}, hc)
	r.exit.fromHandlerError(r.execHandler(ctx, args))
}
