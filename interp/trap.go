// Copyright (c) 2024, the posh authors
// See LICENSE for licensing information

package interp

import (
	"context"
	"os"
	"sort"
	"strings"

	"github.com/poshsh/posh/syntax"
)

// trap is the disposition of a signal: an action to run, or ignoring the
// signal entirely.
type trap struct {
	action string
	ignore bool
}

// checkSignals consumes any signals queued since the last statement
// boundary, running trap actions or terminating the shell.
func (r *Runner) checkSignals(ctx context.Context) {
	if r.sigch == nil {
		return
	}
	for {
		select {
		case sig := <-r.sigch:
			r.handleSignal(ctx, sig)
		default:
			return
		}
	}
}

func (r *Runner) handleSignal(ctx context.Context, sig os.Signal) {
	name, num := describeSignal(sig)
	if tr, ok := r.traps[name]; ok {
		if !tr.ignore {
			r.runTrap(ctx, tr.action, name)
		}
		return
	}
	// no trap: terminate with 128+N, except that an interactive shell
	// only abandons the command it was running
	r.exit.code = uint8(128 + num)
	if r.opts[optInteractive] && name == "INT" {
		r.aborted = true
	} else {
		r.exit.exiting = true
	}
}

// runTrap parses and runs a trap action. Trap actions do not recurse, and
// they do not modify the exit status of the interrupted command.
func (r *Runner) runTrap(ctx context.Context, action, name string) {
	if r.handlingTrap {
		return
	}
	r.handlingTrap = true
	defer func() { r.handlingTrap = false }()

	p := syntax.NewParser()
	file, err := p.Parse(strings.NewReader(action), name+" trap")
	if err != nil {
		r.errf("trap: %v\n", err)
		return
	}
	oldExit := r.exit
	r.stmts(ctx, file.Stmts)
	r.exit = oldExit
}

// exitTrap runs the EXIT trap, if set, once.
func (r *Runner) exitTrap(ctx context.Context) {
	tr, ok := r.traps["EXIT"]
	if !ok || tr.ignore {
		return
	}
	delete(r.traps, "EXIT")
	r.runTrap(ctx, tr.action, "EXIT")
}

// trapBuiltin implements the trap builtin: listing, setting, resetting, and
// ignoring signal dispositions.
func (r *Runner) trapBuiltin(args []string) int {
	if len(args) == 0 {
		names := make([]string, 0, len(r.traps))
		for name := range r.traps {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			r.outf("trap -- %s %s\n", syntaxQuote(r.traps[name].action), name)
		}
		return 0
	}
	action, conds := args[0], args[1:]
	if len(conds) == 0 {
		// "trap N..." with only conditions resets them
		conds = args
		action = "-"
	}
	reset := action == "-"
	for _, cond := range conds {
		name, ok := canonicalSignal(cond)
		if !ok {
			r.errf("trap: %s: invalid signal specification\n", cond)
			return 1
		}
		switch {
		case reset:
			delete(r.traps, name)
		case action == "":
			r.setTrap(name, trap{ignore: true})
		default:
			r.setTrap(name, trap{action: action})
		}
	}
	return 0
}

func (r *Runner) setTrap(name string, tr trap) {
	if r.traps == nil {
		r.traps = make(map[string]trap)
	}
	r.traps[name] = tr
}

// canonicalSignal maps a trap condition to a canonical name: EXIT, a signal
// name with or without the SIG prefix, or a signal number, with 0 meaning
// EXIT.
func canonicalSignal(cond string) (string, bool) {
	up := strings.ToUpper(cond)
	up = strings.TrimPrefix(up, "SIG")
	if up == "EXIT" || cond == "0" {
		return "EXIT", true
	}
	if name, ok := signalNameByNumber(cond); ok {
		return name, true
	}
	if _, ok := signalByName(up); ok {
		return up, true
	}
	return "", false
}

// syntaxQuote single-quotes a trap action for display.
func syntaxQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
