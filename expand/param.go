// Copyright (c) 2024, the posh authors
// See LICENSE for licensing information

package expand

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/poshsh/posh/pattern"
	"github.com/poshsh/posh/syntax"
)

// UnsetParameterError is the error returned for the expansion of an unset
// or null parameter with the "?" modifier, such as "${foo:?msg}", and for
// unset parameters when NoUnset is active.
type UnsetParameterError struct {
	Expr    *syntax.ParamExp
	Message string
}

func (u UnsetParameterError) Error() string {
	return u.Param() + ": " + u.Message
}

// Param returns the name of the parameter that was unset or null.
func (u UnsetParameterError) Param() string {
	return u.Expr.Param.Value
}

func (c *Context) paramExp(ctx context.Context, pe *syntax.ParamExp) string {
	name := pe.Param.Value
	vr := c.Env.Get(name)
	set := vr.IsSet()
	str := vr.String()
	elems := []string{str}
	if x, ok := vr.Value.([]string); ok {
		set = true
		elems = x
		if name == "*" {
			str = c.ifsJoin(x)
		} else {
			str = strings.Join(x, " ")
		}
	}
	switch {
	case pe.Length:
		n := utf8.RuneCountInString(str)
		if name == "@" || name == "*" {
			n = len(elems)
		}
		str = strconv.Itoa(n)
		if !set && c.NoUnset {
			c.err(UnsetParameterError{Expr: pe, Message: "parameter not set"})
		}
	case pe.Exp != nil:
		arg := c.Literal(ctx, pe.Exp.Word)
		switch op := pe.Exp.Op; op {
		case syntax.SubstColPlus:
			if str == "" {
				break
			}
			fallthrough
		case syntax.SubstPlus:
			if set {
				str = arg
			} else {
				str = ""
			}
		case syntax.SubstMinus:
			if set {
				break
			}
			fallthrough
		case syntax.SubstColMinus:
			if str == "" {
				str = arg
			}
		case syntax.SubstQuest:
			if set {
				break
			}
			fallthrough
		case syntax.SubstColQuest:
			if str == "" {
				msg := arg
				if msg == "" {
					msg = "parameter null or not set"
					if !set {
						msg = "parameter not set"
					}
				}
				c.err(UnsetParameterError{Expr: pe, Message: msg})
			}
		case syntax.SubstAssgn:
			if set {
				break
			}
			fallthrough
		case syntax.SubstColAssgn:
			if str == "" {
				c.envSet(name, arg)
				str = arg
			}
		case syntax.RemSmallPrefix, syntax.RemLargePrefix,
			syntax.RemSmallSuffix, syntax.RemLargeSuffix:
			suffix := op == syntax.RemSmallSuffix || op == syntax.RemLargeSuffix
			large := op == syntax.RemLargePrefix || op == syntax.RemLargeSuffix
			for i, elem := range elems {
				elems[i] = removePattern(elem, arg, suffix, large)
			}
			str = strings.Join(elems, " ")
		}
	default:
		if !set && c.NoUnset && name != "@" && name != "*" {
			c.err(UnsetParameterError{Expr: pe, Message: "parameter not set"})
		}
	}
	return str
}

func removePattern(str, pat string, fromEnd, large bool) string {
	mode := pattern.Mode(0)
	if !large {
		mode |= pattern.Shortest
	}
	expr, err := pattern.Regexp(pat, mode)
	if err != nil {
		return str
	}
	switch {
	case fromEnd && !large:
		// use a greedy .* prefix to find the right-most, and thus
		// shortest, suffix match
		expr = ".*(" + expr + ")$"
	case fromEnd:
		expr = "(" + expr + ")$"
	default:
		expr = "^(" + expr + ")"
	}
	rx, err := regexp.Compile(expr)
	if err != nil {
		return str
	}
	if loc := rx.FindStringSubmatchIndex(str); loc != nil {
		// remove the submatch, which is the pattern itself
		str = str[:loc[2]] + str[loc[3]:]
	}
	return str
}
