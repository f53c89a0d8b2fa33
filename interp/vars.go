// Copyright (c) 2024, the posh authors
// See LICENSE for licensing information

package interp

import (
	"os"
	"sort"
	"strconv"

	"github.com/poshsh/posh/expand"
	"github.com/poshsh/posh/syntax"
)

// overlayEnviron writes variables to an in-memory map, falling back to a
// parent environment for the variables that have not been written to.
type overlayEnviron struct {
	parent expand.Environ
	values map[string]expand.Variable
}

func (o *overlayEnviron) Get(name string) expand.Variable {
	if vr, ok := o.values[name]; ok {
		return vr
	}
	return o.parent.Get(name)
}

func (o *overlayEnviron) Set(name string, vr expand.Variable) error {
	if o.values == nil {
		o.values = make(map[string]expand.Variable)
	}
	o.values[name] = vr
	return nil
}

func (o *overlayEnviron) Delete(name string) {
	if o.values == nil {
		o.values = make(map[string]expand.Variable)
	}
	// an unset entry masks any parent value
	o.values[name] = expand.Variable{}
}

func (o *overlayEnviron) Each(fn func(name string, vr expand.Variable) bool) {
	seen := make(map[string]bool, len(o.values))
	for name, vr := range o.values {
		seen[name] = true
		if vr.IsSet() && !fn(name, vr) {
			return
		}
	}
	o.parent.Each(func(name string, vr expand.Variable) bool {
		if seen[name] {
			return true
		}
		return fn(name, vr)
	})
}

// expandEnv exposes the runner's variables to the expand package, including
// the special parameters, which only exist at lookup time.
type expandEnv struct {
	r *Runner
}

var _ expand.WriteEnviron = expandEnv{}

func (e expandEnv) Get(name string) expand.Variable { return e.r.lookupVar(name) }

func (e expandEnv) Set(name string, vr expand.Variable) error {
	return e.r.setVarErr(name, vr)
}

func (e expandEnv) Delete(name string) { e.r.delVar(name) }

func (e expandEnv) Each(fn func(name string, vr expand.Variable) bool) {
	e.r.writeEnv.Each(fn)
}

func (r *Runner) lookupVar(name string) expand.Variable {
	if name == "" {
		panic("variable name must not be empty")
	}
	switch name {
	case "#":
		return strVar(strconv.Itoa(len(r.Params)))
	case "@", "*":
		// always a non-nil slice, so that "$@" with no parameters
		// expands to zero fields
		params := r.Params
		if params == nil {
			params = []string{}
		}
		return expand.Variable{Value: params}
	case "?":
		return strVar(strconv.Itoa(int(r.lastExit.code)))
	case "$":
		return strVar(strconv.Itoa(os.Getpid()))
	case "!":
		if r.lastBgPID == 0 {
			return expand.Variable{}
		}
		return strVar(strconv.Itoa(r.lastBgPID))
	case "-":
		return strVar(r.optFlags())
	case "0":
		if r.filename != "" {
			return strVar(r.filename)
		}
		return strVar("posh")
	case "1", "2", "3", "4", "5", "6", "7", "8", "9":
		i := int(name[0] - '1')
		if i < len(r.Params) {
			return strVar(r.Params[i])
		}
		return expand.Variable{}
	case "PPID":
		return strVar(strconv.Itoa(os.Getppid()))
	}
	return r.writeEnv.Get(name)
}

func strVar(s string) expand.Variable {
	return expand.Variable{Value: s}
}

func (r *Runner) envGet(name string) string {
	return r.lookupVar(name).String()
}

func (r *Runner) delVar(name string) {
	if r.lookupVar(name).ReadOnly {
		r.errf("%s: readonly variable\n", name)
		r.exit.code = 1
		return
	}
	r.writeEnv.Delete(name)
}

// setVarErr sets a variable, keeping the attributes of any existing one and
// refusing to overwrite a readonly variable.
func (r *Runner) setVarErr(name string, vr expand.Variable) error {
	cur := r.lookupVar(name)
	if cur.ReadOnly {
		return readonlyError(name)
	}
	vr.Exported = vr.Exported || cur.Exported
	if r.opts[optAllExport] {
		vr.Exported = true
	}
	return r.writeEnv.Set(name, vr)
}

func (r *Runner) setVar(name string, vr expand.Variable) {
	if err := r.setVarErr(name, vr); err != nil {
		r.errf("%v\n", err)
		r.exit.code = 1
	}
}

func (r *Runner) setVarString(name, value string) {
	r.setVar(name, expand.Variable{Value: value})
}

type readonlyError string

func (e readonlyError) Error() string { return string(e) + ": readonly variable" }

func (r *Runner) setFunc(name string, body *syntax.Stmt) {
	if r.Funcs == nil {
		r.Funcs = make(map[string]*syntax.Stmt, 4)
	}
	r.Funcs[name] = body
}

// assignVal expands the value of an assignment. A nil value, as in "name=",
// is an empty string rather than an unset variable.
func (r *Runner) assignVal(as *syntax.Assign) expand.Variable {
	if as.Value == nil {
		return strVar("")
	}
	return strVar(r.literal(as.Value))
}

// printVars writes the currently set variables in name=value form, sorted
// by name, as done by "set" with no arguments.
func (r *Runner) printVars() {
	type kv struct{ name, value string }
	var list []kv
	r.writeEnv.Each(func(name string, vr expand.Variable) bool {
		if s, ok := vr.Value.(string); ok {
			list = append(list, kv{name, s})
		}
		return true
	})
	sort.Slice(list, func(i, j int) bool { return list[i].name < list[j].name })
	for _, v := range list {
		r.outf("%s=%s\n", v.name, v.value)
	}
}
