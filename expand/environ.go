// Copyright (c) 2024, the posh authors
// See LICENSE for licensing information

package expand

import (
	"sort"
	"strings"
)

// Environ is the base interface for a shell's environment, allowing it to
// fetch variables by name and to iterate over all the currently set ones.
type Environ interface {
	// Get retrieves a variable by its name. To check if the variable is
	// set, use Variable.IsSet.
	Get(name string) Variable

	// Each iterates over all the set variables, calling the supplied
	// function on each variable. Iteration is stopped if the function
	// returns false.
	Each(func(name string, vr Variable) bool)
}

// WriteEnviron is an extension on Environ that supports modifying and
// deleting variables.
type WriteEnviron interface {
	Environ
	// Set sets a variable by name. If !vr.IsSet, the variable is being
	// unset; otherwise, the variable is being replaced.
	//
	// It is the implementation's responsibility to handle variable
	// attributes correctly. For example, changing an exported variable's
	// value does not unexport it, and overwriting a name reference
	// variable should modify its target.
	Set(name string, vr Variable) error

	// Delete deletes a variable by name.
	Delete(name string)
}

// Variable describes a shell variable, which can have a number of attributes
// and a value. A Variable is unset if its Value field is nil.
type Variable struct {
	Exported bool
	ReadOnly bool
	Value    any // string or, for the positional parameters, []string
}

// IsSet reports whether the variable is set. An empty variable is set, but
// an undeclared variable is not.
func (v Variable) IsSet() bool { return v.Value != nil }

// String returns the variable's value as a string. In general, this only
// makes sense if the variable has a string value or no value at all.
func (v Variable) String() string {
	switch x := v.Value.(type) {
	case string:
		return x
	case []string:
		if len(x) > 0 {
			return x[0]
		}
	}
	return ""
}

// FuncEnviron wraps a function mapping variable names to their string
// values, and implements Environ. Empty strings returned by the function
// will be treated as unset variables. All variables will be exported.
//
// Note that the returned Environ will not implement WriteEnviron, so it is
// not possible to set variables.
func FuncEnviron(fn func(string) string) Environ {
	return funcEnviron(fn)
}

type funcEnviron func(string) string

func (f funcEnviron) Get(name string) Variable {
	value := f(name)
	if value == "" {
		return Variable{}
	}
	return Variable{Exported: true, Value: value}
}

func (f funcEnviron) Each(func(name string, vr Variable) bool) {}

// ListEnviron returns an Environ with the supplied variables, in the form
// "key=value". All variables will be exported. The last value in pairs is
// used if multiple values share the same name.
//
// On Windows, where environment variable names are case-insensitive, use
// the native environment instead; this implementation is case-sensitive.
func ListEnviron(pairs ...string) Environ {
	list := append([]string{}, pairs...)
	sort.SliceStable(list, func(i, j int) bool {
		isep := strings.IndexByte(list[i], '=')
		jsep := strings.IndexByte(list[j], '=')
		if isep < 0 {
			isep = 0
		}
		if jsep < 0 {
			jsep = 0
		}
		return list[i][:isep] < list[j][:jsep]
	})
	last := ""
	for i := 0; i < len(list); i++ {
		s := list[i]
		sep := strings.IndexByte(s, '=')
		if sep <= 0 {
			// invalid element; remove it
			list = append(list[:i], list[i+1:]...)
			i--
			continue
		}
		name := s[:sep]
		if last == name {
			// duplicate; the last one wins
			list = append(list[:i-1], list[i:]...)
			i--
			continue
		}
		last = name
	}
	return listEnviron(list)
}

type listEnviron []string

func (l listEnviron) Get(name string) Variable {
	prefix := name + "="
	i := sort.SearchStrings(l, prefix)
	if i < len(l) && strings.HasPrefix(l[i], prefix) {
		return Variable{Exported: true, Value: strings.TrimPrefix(l[i], prefix)}
	}
	return Variable{}
}

func (l listEnviron) Each(fn func(name string, vr Variable) bool) {
	for _, pair := range l {
		i := strings.IndexByte(pair, '=')
		if i < 0 {
			// cannot happen; the constructor removes them
			panic("expand.listEnviron: did not expect malformed name-value pair: " + pair)
		}
		name, value := pair[:i], pair[i+1:]
		if !fn(name, Variable{Exported: true, Value: value}) {
			return
		}
	}
}
