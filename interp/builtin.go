// Copyright (c) 2024, the posh authors
// See LICENSE for licensing information

package interp

import (
	"context"
	"errors"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/poshsh/posh/expand"
	"github.com/poshsh/posh/syntax"
)

// isSpecialBuiltin reports whether name is a POSIX special builtin, which is
// found before functions during command search.
func isSpecialBuiltin(name string) bool {
	switch name {
	case ":", ".", "break", "continue", "eval", "exec", "exit",
		"export", "readonly", "return", "set", "shift", "times",
		"trap", "unset":
		return true
	}
	return false
}

func isBuiltin(name string) bool {
	switch name {
	case "cd", "pwd", "read", "printf", "echo", "getopts", "umask",
		"type", "command", "wait", "jobs", "true", "false", "test", "[":
		return true
	}
	return isSpecialBuiltin(name)
}

// flagParser walks over short options like "-e", "+x", or grouped "-eu",
// stopping at the first operand or at "--".
type flagParser struct {
	remaining []string
	cur       string
}

func (p *flagParser) more() bool {
	if p.cur != "" {
		return true
	}
	if len(p.remaining) == 0 {
		return false
	}
	arg := p.remaining[0]
	if arg == "-" || arg == "--" {
		p.remaining = p.remaining[1:]
		p.cur = "-"
		return true
	}
	if len(arg) < 2 || (arg[0] != '-' && arg[0] != '+') {
		return false
	}
	p.remaining = p.remaining[1:]
	p.cur = arg
	return true
}

// flag returns the next option with its sign, like "-e", or "-" for the
// options terminator.
func (p *flagParser) flag() string {
	if p.cur == "-" {
		p.cur = ""
		return "-"
	}
	f := p.cur[:2]
	if len(p.cur) > 2 {
		p.cur = p.cur[:1] + p.cur[2:]
	} else {
		p.cur = ""
	}
	return f
}

func (p *flagParser) value() string {
	if len(p.remaining) == 0 {
		return ""
	}
	v := p.remaining[0]
	p.remaining = p.remaining[1:]
	return v
}

func (p *flagParser) args() []string { return p.remaining }

func (r *Runner) builtinCode(ctx context.Context, name string, args []string) int {
	switch name {
	case "true", ":":
	case "false":
		return 1
	case "exit":
		code := int(r.lastExit.code)
		switch len(args) {
		case 0:
		case 1:
			n, err := strconv.Atoi(args[0])
			if err != nil {
				r.errf("exit: %s: numeric argument required\n", args[0])
				code = 2
			} else {
				code = n
			}
		default:
			r.errf("exit: too many arguments\n")
			return 2
		}
		r.exit.code = uint8(code)
		r.exit.exiting = true
		return code
	case "set":
		if len(args) == 0 {
			r.printVars()
			break
		}
		if err := Params(args...)(r); err != nil {
			r.errf("set: %v\n", err)
			return 2
		}
		r.updateExpandOpts()
	case "shift":
		n := 1
		switch len(args) {
		case 0:
		case 1:
			if n2, err := strconv.Atoi(args[0]); err == nil {
				n = n2
				break
			}
			fallthrough
		default:
			r.errf("usage: shift [n]\n")
			return 2
		}
		if n < 0 || n > len(r.Params) {
			r.errf("shift: can't shift that many\n")
			return 1
		}
		r.Params = r.Params[n:]
	case "unset":
		vars, funcs := true, false
		fp := flagParser{remaining: args}
		for fp.more() {
			switch flag := fp.flag(); flag {
			case "-v":
				vars, funcs = true, false
			case "-f":
				vars, funcs = false, true
			case "-":
			default:
				r.errf("unset: invalid option %q\n", flag)
				return 2
			}
		}
		code := 0
		for _, arg := range fp.args() {
			if vars {
				if r.lookupVar(arg).ReadOnly {
					r.errf("%s: readonly variable\n", arg)
					code = 1
					continue
				}
				r.writeEnv.Delete(arg)
			}
			if funcs {
				delete(r.Funcs, arg)
			}
		}
		return code
	case "export", "readonly":
		print := false
		fp := flagParser{remaining: args}
		for fp.more() {
			switch flag := fp.flag(); flag {
			case "-p":
				print = true
			case "-":
			default:
				r.errf("%s: invalid option %q\n", name, flag)
				return 2
			}
		}
		rest := fp.args()
		if print || len(rest) == 0 {
			r.printAttrVars(name)
			break
		}
		for _, arg := range rest {
			vname, value, assign := strings.Cut(arg, "=")
			if !syntax.ValidName(vname) {
				r.errf("%s: %s: not a valid identifier\n", name, vname)
				return 1
			}
			vr := r.lookupVar(vname)
			if assign {
				if vr.ReadOnly {
					r.errf("%s: %s: readonly variable\n", name, vname)
					return 1
				}
				vr.Value = value
			}
			if name == "export" {
				vr.Exported = true
			} else {
				vr.ReadOnly = true
			}
			if vr.ReadOnly && !assign && !vr.IsSet() {
				// readonly on an unset name still marks it
				vr.Value = nil
			}
			if err := r.writeEnv.Set(vname, vr); err != nil {
				r.errf("%s: %v\n", name, err)
				return 1
			}
		}
	case "times":
		su, ss, cu, cs := cpuTimes()
		r.outf("%s %s\n%s %s\n",
			elapsedString(su), elapsedString(ss),
			elapsedString(cu), elapsedString(cs))
	case "trap":
		return r.trapBuiltin(args)
	case "eval":
		src := strings.Join(args, " ")
		if src == "" {
			break
		}
		p := syntax.NewParser()
		file, err := p.Parse(strings.NewReader(src), "eval")
		if err != nil {
			r.errf("eval: %v\n", err)
			return 2
		}
		r.stmts(ctx, file.Stmts)
		return int(r.exit.code)
	case ".":
		if len(args) < 1 {
			r.errf(".: need a file name\n")
			return 2
		}
		f, err := r.open(ctx, args[0], os.O_RDONLY, 0, false)
		if err != nil {
			r.errf(".: %v\n", err)
			return 1
		}
		defer f.Close()
		p := syntax.NewParser()
		file, err := p.Parse(f, args[0])
		if err != nil {
			r.errf(".: %v\n", err)
			return 2
		}
		oldInSource := r.inSource
		r.inSource = true
		r.stmts(ctx, file.Stmts)
		r.inSource = oldInSource
		r.exit.returning = false
		return int(r.exit.code)
	case "break", "continue":
		if !r.inLoop {
			r.errf("%s: only meaningful in a loop\n", name)
			break
		}
		n := 1
		switch len(args) {
		case 0:
		case 1:
			if n2, err := strconv.Atoi(args[0]); err == nil && n2 > 0 {
				n = n2
				break
			}
			fallthrough
		default:
			r.errf("usage: %s [n]\n", name)
			return 2
		}
		if name == "break" {
			r.breakEnclosing = n
		} else {
			r.contnEnclosing = n
		}
	case "exec":
		if len(args) == 0 {
			// the statement's redirections stick to the shell
			r.keepRedirs = true
			break
		}
		r.exec(ctx, args)
		r.exit.exiting = true
		return int(r.exit.code)
	case "return":
		if !r.inFunc && !r.inSource {
			r.errf("return: can only be used from a function or sourced script\n")
			return 1
		}
		code := int(r.lastExit.code)
		switch len(args) {
		case 0:
		case 1:
			if n, err := strconv.Atoi(args[0]); err == nil {
				code = n
				break
			}
			fallthrough
		default:
			r.errf("usage: return [n]\n")
			return 2
		}
		r.exit.returning = true
		r.exit.code = uint8(code)
		return code
	case "cd":
		var path string
		switch len(args) {
		case 0:
			path = r.envGet("HOME")
			if path == "" {
				r.errf("cd: HOME not set\n")
				return 1
			}
		case 1:
			path = args[0]
			if path == "-" {
				path = r.envGet("OLDPWD")
				if path == "" {
					r.errf("cd: OLDPWD not set\n")
					return 1
				}
				if code := r.changeDir(path); code != 0 {
					return code
				}
				r.outf("%s\n", r.Dir)
				return 0
			}
		default:
			r.errf("usage: cd [dir]\n")
			return 2
		}
		return r.changeDir(path)
	case "pwd":
		r.outf("%s\n", r.envGet("PWD"))
	case "read":
		return r.readBuiltin(args)
	case "printf":
		return r.printfBuiltin(args)
	case "echo":
		newline := true
		if len(args) > 0 && args[0] == "-n" {
			newline = false
			args = args[1:]
		}
		r.out(strings.Join(args, " "))
		if newline {
			r.out("\n")
		}
	case "getopts":
		return r.getoptsBuiltin(args)
	case "umask":
		return r.umaskBuiltin(args)
	case "type":
		code := 0
		for _, arg := range args {
			switch {
			case isSpecialBuiltin(arg):
				r.outf("%s is a special shell builtin\n", arg)
			case r.Funcs[arg] != nil:
				r.outf("%s is a function\n", arg)
			case isBuiltin(arg):
				r.outf("%s is a shell builtin\n", arg)
			default:
				if path, err := LookPathDir(r.Dir, r.writeEnv, arg); err == nil {
					r.outf("%s is %s\n", arg, path)
				} else {
					r.errf("type: %s: not found\n", arg)
					code = 1
				}
			}
		}
		return code
	case "command":
		show := false
		for len(args) > 0 && strings.HasPrefix(args[0], "-") {
			switch args[0] {
			case "-v":
				show = true
			default:
				r.errf("command: invalid option %q\n", args[0])
				return 2
			}
			args = args[1:]
		}
		if len(args) == 0 {
			break
		}
		if !show {
			// command search skips functions
			if isBuiltin(args[0]) {
				return r.builtinCode(ctx, args[0], args[1:])
			}
			r.exec(ctx, args)
			return int(r.exit.code)
		}
		code := 0
		for _, arg := range args {
			switch {
			case r.Funcs[arg] != nil || isBuiltin(arg):
				r.outf("%s\n", arg)
			default:
				if path, err := LookPathDir(r.Dir, r.writeEnv, arg); err == nil {
					r.outf("%s\n", path)
				} else {
					code = 1
				}
			}
		}
		return code
	case "wait":
		return r.waitJobs(args)
	case "jobs":
		return r.printJobs(args)
	case "test", "[":
		if name == "[" {
			if len(args) == 0 || args[len(args)-1] != "]" {
				r.errf("[: missing matching ]\n")
				return 2
			}
			args = args[:len(args)-1]
		}
		res, err := r.evalTest(args)
		if err != nil {
			r.errf("test: %v\n", err)
			return 2
		}
		return boolExit(res)
	default:
		panic("unhandled builtin: " + name)
	}
	return 0
}

func boolExit(b bool) int {
	if b {
		return 0
	}
	return 1
}

func elapsedString(d time.Duration) string {
	min := int(d.Minutes())
	sec := d.Seconds() - float64(min)*60
	return strconv.Itoa(min) + "m" + strconv.FormatFloat(sec, 'f', 6, 64) + "s"
}

func (r *Runner) printAttrVars(attr string) {
	r.writeEnv.Each(func(name string, vr expand.Variable) bool {
		switch attr {
		case "export":
			if !vr.Exported {
				return true
			}
		case "readonly":
			if !vr.ReadOnly {
				return true
			}
		}
		if s, ok := vr.Value.(string); ok {
			r.outf("%s %s=%s\n", attr, name, s)
		} else {
			r.outf("%s %s\n", attr, name)
		}
		return true
	})
}

func (r *Runner) changeDir(path string) int {
	if path == "" {
		path = "."
	}
	abs := absPath(r.Dir, path)
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		r.errf("cd: %s: No such file or directory\n", path)
		return 1
	}
	r.setVarString("OLDPWD", r.envGet("PWD"))
	r.Dir = abs
	r.setVarString("PWD", abs)
	return 0
}

func (r *Runner) readBuiltin(args []string) int {
	raw := false
	fp := flagParser{remaining: args}
	for fp.more() {
		switch flag := fp.flag(); flag {
		case "-r":
			raw = true
		case "-":
		default:
			r.errf("read: invalid option %q\n", flag)
			return 2
		}
	}
	names := fp.args()
	if len(names) == 0 {
		names = []string{"REPLY"}
	}
	for _, name := range names {
		if !syntax.ValidName(name) {
			r.errf("read: %s: not a valid identifier\n", name)
			return 2
		}
	}
	line, err := r.readLine(raw)
	fields := r.ectx.ReadFields(string(line), len(names), raw)
	for i, name := range names {
		val := ""
		if i < len(fields) {
			val = fields[i]
		}
		r.setVarString(name, val)
	}
	// EOF before a newline still assigns what was read, but fails
	if err != nil {
		return 1
	}
	return 0
}

// readLine reads one line from standard input, byte by byte so that nothing
// past the newline is consumed. Unless raw is set, a backslash-newline pair
// continues the line.
func (r *Runner) readLine(raw bool) ([]byte, error) {
	if r.stdin == nil {
		return nil, io.EOF
	}
	var line []byte
	esc := false
	for {
		var buf [1]byte
		n, err := r.stdin.Read(buf[:])
		if n > 0 {
			b := buf[0]
			switch {
			case !raw && b == '\\' && !esc:
				line = append(line, b)
				esc = true
			case !raw && b == '\n' && esc:
				// line continuation
				line = line[:len(line)-1]
				esc = false
			case b == '\n':
				return line, nil
			default:
				line = append(line, b)
				esc = false
			}
		}
		if err != nil {
			return line, err
		}
	}
}

func (r *Runner) printfBuiltin(args []string) int {
	if len(args) == 0 {
		r.errf("usage: printf format [arguments]\n")
		return 2
	}
	format, fargs := args[0], args[1:]
	code := 0
	// the format is reused until all arguments are consumed
	for {
		out, n, err := r.ectx.Format(format, fargs)
		r.out(out)
		if err != nil {
			var npe expand.NumParseError
			switch {
			case errors.Is(err, expand.ErrFormatStop):
				return code
			case errors.As(err, &npe):
				r.errf("printf: %v\n", err)
				code = 1
			default:
				r.errf("printf: %v\n", err)
				return 1
			}
		}
		fargs = fargs[n:]
		if n == 0 || len(fargs) == 0 {
			return code
		}
	}
}

func (r *Runner) umaskBuiltin(args []string) int {
	symbolic := false
	if len(args) > 0 && args[0] == "-S" {
		symbolic = true
		args = args[1:]
	}
	if len(args) == 0 {
		mask := currentUmask()
		if symbolic {
			perm := 0o777 &^ mask
			r.outf("u=%s,g=%s,o=%s\n",
				rwx(perm>>6), rwx(perm>>3), rwx(perm))
		} else {
			r.outf("%04o\n", mask)
		}
		return 0
	}
	mask, err := strconv.ParseUint(args[0], 8, 32)
	if err != nil || mask > 0o777 {
		r.errf("umask: %s: invalid mask\n", args[0])
		return 1
	}
	umask(int(mask))
	return 0
}

func rwx(perm int) string {
	var sb strings.Builder
	if perm&4 != 0 {
		sb.WriteByte('r')
	}
	if perm&2 != 0 {
		sb.WriteByte('w')
	}
	if perm&1 != 0 {
		sb.WriteByte('x')
	}
	return sb.String()
}

// getopts holds the parsing position between getopts calls: the OPTIND we
// last wrote, to detect scripts resetting it, and the position within a
// grouped option cluster like "-abc".
type getopts struct {
	optind int
	sub    int
}

func (r *Runner) getoptsBuiltin(args []string) int {
	if len(args) < 2 {
		r.errf("usage: getopts optstring name [arg ...]\n")
		return 2
	}
	optstr, name := args[0], args[1]
	if !syntax.ValidName(name) {
		r.errf("getopts: invalid identifier: %q\n", name)
		return 2
	}
	silent := strings.HasPrefix(optstr, ":")
	if silent {
		optstr = optstr[1:]
	}
	operands := r.Params
	if len(args) > 2 {
		operands = args[2:]
	}
	optind, err := strconv.Atoi(r.envGet("OPTIND"))
	if err != nil || optind < 1 {
		optind = 1
	}
	if optind != r.optState.optind {
		// OPTIND was changed by the script; restart cluster parsing
		r.optState = getopts{optind: optind}
	}
	i := optind - 1

	setOptind := func(n int) {
		r.optState.optind = n
		r.setVarString("OPTIND", strconv.Itoa(n))
	}
	finish := func() int {
		r.setVarString(name, "?")
		r.delVar("OPTARG")
		setOptind(i + 1)
		return 1
	}

	if i >= len(operands) {
		return finish()
	}
	arg := operands[i]
	if r.optState.sub == 0 {
		if arg == "--" {
			i++
			return finish()
		}
		if len(arg) < 2 || arg[0] != '-' {
			return finish()
		}
		r.optState.sub = 1
	}
	opt := arg[r.optState.sub]
	r.optState.sub++
	if r.optState.sub >= len(arg) {
		i++
		r.optState.sub = 0
	}
	idx := strings.IndexByte(optstr, opt)
	if opt == ':' || idx < 0 {
		if silent {
			r.setVarString(name, "?")
			r.setVarString("OPTARG", string(opt))
		} else {
			r.errf("getopts: illegal option -- %q\n", string(opt))
			r.setVarString(name, "?")
			r.delVar("OPTARG")
		}
		setOptind(i + 1)
		return 0
	}
	if idx+1 < len(optstr) && optstr[idx+1] == ':' {
		// the option takes an argument
		var optarg string
		switch {
		case r.optState.sub != 0:
			// the rest of the cluster is the argument
			optarg = arg[r.optState.sub:]
			i++
			r.optState.sub = 0
		case i < len(operands):
			optarg = operands[i]
			i++
		default:
			if silent {
				r.setVarString(name, ":")
				r.setVarString("OPTARG", string(opt))
			} else {
				r.errf("getopts: option requires an argument -- %q\n", string(opt))
				r.setVarString(name, "?")
				r.delVar("OPTARG")
			}
			setOptind(i + 1)
			return 0
		}
		r.setVarString(name, string(opt))
		r.setVarString("OPTARG", optarg)
		setOptind(i + 1)
		return 0
	}
	r.setVarString(name, string(opt))
	r.delVar("OPTARG")
	setOptind(i + 1)
	return 0
}
