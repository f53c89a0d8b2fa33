// Copyright (c) 2024, the posh authors
// See LICENSE for licensing information

package expand

import (
	"fmt"
	"strconv"
	"strings"
)

// Arith evaluates an arithmetic expression whose parameter, command, and
// arithmetic expansions have already been performed, as within "$((expr))".
// Signed 64-bit integer arithmetic with the C-like operator set: unary
// + - ! ~ and ++/--, binary + - * / % **, comparisons, shifts, bitwise and
// logical operators, the ternary conditional, and assignment operators.
func (c *Context) Arith(expr string) (n int64, err error) {
	p := &arithParser{c: c, src: expr}
	defer func() {
		if r := recover(); r != nil {
			ae, ok := r.(arithError)
			if !ok {
				panic(r)
			}
			err = ae.err
		}
	}()
	p.next()
	if p.kind == arithEnd {
		// $(( )) with nothing to evaluate
		return 0, nil
	}
	n = p.assign()
	if p.kind != arithEnd {
		p.bad("unexpected %q", p.val)
	}
	return n, nil
}

type arithError struct{ err error }

type arithKind uint8

const (
	arithEnd arithKind = iota
	arithNum
	arithName
	arithOp
)

type arithParser struct {
	c   *Context
	src string
	pos int

	kind arithKind
	val  string
	num  int64

	// when positive, skip side effects and division checks; used for the
	// untaken branches of ternaries and short-circuit operators
	noEval int
}

func (p *arithParser) bad(format string, args ...any) {
	panic(arithError{fmt.Errorf("arithmetic: "+format, args...)})
}

func isArithName(b byte, first bool) bool {
	switch {
	case b == '_', b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z':
		return true
	case b >= '0' && b <= '9':
		return !first
	}
	return false
}

var arithOps = []string{
	"<<=", ">>=",
	"**", "++", "--", "<<", ">>", "<=", ">=", "==", "!=", "&&", "||",
	"+=", "-=", "*=", "/=", "%=", "&=", "|=", "^=",
	"+", "-", "*", "/", "%", "&", "|", "^", "!", "~",
	"<", ">", "=", "?", ":", "(", ")",
}

func (p *arithParser) next() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
			continue
		}
		break
	}
	if p.pos >= len(p.src) {
		p.kind, p.val = arithEnd, ""
		return
	}
	b := p.src[p.pos]
	switch {
	case b >= '0' && b <= '9':
		start := p.pos
		for p.pos < len(p.src) && isArithName(p.src[p.pos], false) {
			p.pos++
		}
		p.val = p.src[start:p.pos]
		n, err := strconv.ParseInt(p.val, 0, 64)
		if err != nil {
			p.bad("invalid number %q", p.val)
		}
		p.kind, p.num = arithNum, n
	case isArithName(b, true):
		start := p.pos
		for p.pos < len(p.src) && isArithName(p.src[p.pos], false) {
			p.pos++
		}
		p.kind, p.val = arithName, p.src[start:p.pos]
	default:
		for _, op := range arithOps {
			if strings.HasPrefix(p.src[p.pos:], op) {
				p.pos += len(op)
				p.kind, p.val = arithOp, op
				return
			}
		}
		p.bad("unexpected character %q", string(b))
	}
}

func (p *arithParser) isOp(op string) bool {
	return p.kind == arithOp && p.val == op
}

func (p *arithParser) expect(op string) {
	if !p.isOp(op) {
		p.bad("expected %q", op)
	}
	p.next()
}

// lookup fetches a variable's numeric value; unset and empty variables
// evaluate to zero.
func (p *arithParser) lookup(name string) int64 {
	if p.noEval > 0 {
		return 0
	}
	s := strings.TrimSpace(p.c.envGet(name))
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		p.bad("invalid number %q", s)
	}
	return n
}

func (p *arithParser) set(name string, n int64) {
	if p.noEval > 0 {
		return
	}
	p.c.envSet(name, strconv.FormatInt(n, 10))
}

func b2i(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func (p *arithParser) binop(op string, a, b int64) int64 {
	switch op {
	case "+":
		return a + b
	case "-":
		return a - b
	case "*":
		return a * b
	case "/":
		if b == 0 {
			if p.noEval > 0 {
				return 0
			}
			p.bad("division by zero")
		}
		return a / b
	case "%":
		if b == 0 {
			if p.noEval > 0 {
				return 0
			}
			p.bad("division by zero")
		}
		return a % b
	case "**":
		if b < 0 {
			p.bad("exponent less than 0")
		}
		n := int64(1)
		for ; b > 0; b-- {
			n *= a
		}
		return n
	case "<<":
		return a << uint64(b)
	case ">>":
		return a >> uint64(b)
	case "&":
		return a & b
	case "|":
		return a | b
	case "^":
		return a ^ b
	case "==":
		return b2i(a == b)
	case "!=":
		return b2i(a != b)
	case "<":
		return b2i(a < b)
	case "<=":
		return b2i(a <= b)
	case ">":
		return b2i(a > b)
	case ">=":
		return b2i(a >= b)
	}
	p.bad("unhandled operator %q", op)
	return 0
}

func isAssignOp(op string) bool {
	switch op {
	case "=", "+=", "-=", "*=", "/=", "%=", "<<=", ">>=", "&=", "|=", "^=":
		return true
	}
	return false
}

func (p *arithParser) assign() int64 {
	if p.kind == arithName {
		save := *p
		name := p.val
		p.next()
		if p.kind == arithOp && isAssignOp(p.val) {
			op := p.val
			p.next()
			rhs := p.assign()
			n := rhs
			if op != "=" {
				n = p.binop(strings.TrimSuffix(op, "="), p.lookup(name), rhs)
			}
			p.set(name, n)
			return n
		}
		*p = save
	}
	return p.ternary()
}

func (p *arithParser) ternary() int64 {
	cond := p.logicalOr()
	if !p.isOp("?") {
		return cond
	}
	p.next()
	if cond == 0 {
		p.noEval++
	}
	a := p.assign()
	if cond == 0 {
		p.noEval--
	}
	p.expect(":")
	if cond != 0 {
		p.noEval++
	}
	b := p.ternary()
	if cond != 0 {
		p.noEval--
		return a
	}
	return b
}

func (p *arithParser) logicalOr() int64 {
	left := p.logicalAnd()
	for p.isOp("||") {
		p.next()
		if left != 0 {
			p.noEval++
			p.logicalAnd()
			p.noEval--
			left = 1
		} else {
			left = b2i(p.logicalAnd() != 0)
		}
	}
	return left
}

func (p *arithParser) logicalAnd() int64 {
	left := p.bitOr()
	for p.isOp("&&") {
		p.next()
		if left == 0 {
			p.noEval++
			p.bitOr()
			p.noEval--
		} else {
			left = b2i(p.bitOr() != 0)
		}
	}
	return left
}

func (p *arithParser) binaryLevel(ops []string, nextLevel func() int64) int64 {
	left := nextLevel()
	for p.kind == arithOp {
		matched := false
		for _, op := range ops {
			if p.val == op {
				p.next()
				left = p.binop(op, left, nextLevel())
				matched = true
				break
			}
		}
		if !matched {
			break
		}
	}
	return left
}

func (p *arithParser) bitOr() int64 {
	return p.binaryLevel([]string{"|"}, p.bitXor)
}

func (p *arithParser) bitXor() int64 {
	return p.binaryLevel([]string{"^"}, p.bitAnd)
}

func (p *arithParser) bitAnd() int64 {
	return p.binaryLevel([]string{"&"}, p.equality)
}

func (p *arithParser) equality() int64 {
	return p.binaryLevel([]string{"==", "!="}, p.relational)
}

func (p *arithParser) relational() int64 {
	return p.binaryLevel([]string{"<=", ">=", "<", ">"}, p.shift)
}

func (p *arithParser) shift() int64 {
	return p.binaryLevel([]string{"<<", ">>"}, p.additive)
}

func (p *arithParser) additive() int64 {
	return p.binaryLevel([]string{"+", "-"}, p.multiplicative)
}

func (p *arithParser) multiplicative() int64 {
	return p.binaryLevel([]string{"*", "/", "%"}, p.power)
}

// power is right-associative; unary operators on its left bind tighter, so
// -2**2 is (-2)**2.
func (p *arithParser) power() int64 {
	left := p.unary()
	if !p.isOp("**") {
		return left
	}
	p.next()
	return p.binop("**", left, p.power())
}

func (p *arithParser) unary() int64 {
	if p.kind == arithOp {
		switch p.val {
		case "+":
			p.next()
			return p.unary()
		case "-":
			p.next()
			return -p.unary()
		case "!":
			p.next()
			return b2i(p.unary() == 0)
		case "~":
			p.next()
			return ^p.unary()
		case "++", "--":
			delta := int64(1)
			if p.val == "--" {
				delta = -1
			}
			p.next()
			if p.kind != arithName {
				p.bad("++ and -- must follow or precede a variable")
			}
			name := p.val
			p.next()
			n := p.lookup(name) + delta
			p.set(name, n)
			return n
		}
	}
	return p.postfix()
}

func (p *arithParser) postfix() int64 {
	switch p.kind {
	case arithNum:
		n := p.num
		p.next()
		return n
	case arithName:
		name := p.val
		p.next()
		if p.isOp("++") || p.isOp("--") {
			delta := int64(1)
			if p.val == "--" {
				delta = -1
			}
			p.next()
			n := p.lookup(name)
			p.set(name, n+delta)
			return n
		}
		return p.lookup(name)
	case arithOp:
		if p.val == "(" {
			p.next()
			n := p.assign()
			p.expect(")")
			return n
		}
	}
	p.bad("expected a number, a variable, or a parenthesized expression")
	return 0
}
