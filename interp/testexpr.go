// Copyright (c) 2024, the posh authors
// See LICENSE for licensing information

package interp

import (
	"fmt"
	"os"
	"strconv"

	"golang.org/x/term"
)

// evalTest evaluates the classic test builtin expression grammar: unary and
// binary primaries joined by !, -a, -o, and parentheses. File operands are
// resolved relative to the runner's directory.
func (r *Runner) evalTest(args []string) (bool, error) {
	p := &testExpr{rem: args, dir: r.Dir, r: r}
	if len(args) == 0 {
		return false, nil
	}
	res, err := p.or()
	if err != nil {
		return false, err
	}
	if len(p.rem) > 0 {
		return false, fmt.Errorf("unexpected argument %q", p.rem[0])
	}
	return res, nil
}

type testExpr struct {
	rem []string
	dir string
	r   *Runner
}

func (p *testExpr) peek() (string, bool) {
	if len(p.rem) == 0 {
		return "", false
	}
	return p.rem[0], true
}

func (p *testExpr) next() (string, error) {
	s, ok := p.peek()
	if !ok {
		return "", fmt.Errorf("argument expected")
	}
	p.rem = p.rem[1:]
	return s, nil
}

func (p *testExpr) or() (bool, error) {
	res, err := p.and()
	if err != nil {
		return false, err
	}
	for {
		if s, ok := p.peek(); !ok || s != "-o" {
			return res, nil
		}
		p.rem = p.rem[1:]
		right, err := p.and()
		if err != nil {
			return false, err
		}
		res = res || right
	}
}

func (p *testExpr) and() (bool, error) {
	res, err := p.primary()
	if err != nil {
		return false, err
	}
	for {
		if s, ok := p.peek(); !ok || s != "-a" {
			return res, nil
		}
		p.rem = p.rem[1:]
		right, err := p.primary()
		if err != nil {
			return false, err
		}
		res = res && right
	}
}

func (p *testExpr) primary() (bool, error) {
	tok, err := p.next()
	if err != nil {
		return false, err
	}
	switch tok {
	case "!":
		res, err := p.primary()
		return !res, err
	case "(":
		res, err := p.or()
		if err != nil {
			return false, err
		}
		if tok, err := p.next(); err != nil || tok != ")" {
			return false, fmt.Errorf("expected )")
		}
		return res, nil
	}
	if isUnaryTest(tok) {
		arg, err := p.next()
		if err != nil {
			return false, err
		}
		return p.unary(tok, arg)
	}
	// a lone operand is true when non-empty, unless a binary operator
	// follows
	if op, ok := p.peek(); ok && isBinaryTest(op) {
		p.rem = p.rem[1:]
		right, err := p.next()
		if err != nil {
			return false, err
		}
		return binaryTest(op, tok, right)
	}
	return tok != "", nil
}

func isUnaryTest(op string) bool {
	switch op {
	case "-b", "-c", "-d", "-e", "-f", "-g", "-h", "-L", "-p",
		"-r", "-S", "-s", "-u", "-w", "-x", "-z", "-n", "-t":
		return true
	}
	return false
}

func isBinaryTest(op string) bool {
	switch op {
	case "=", "!=", "-eq", "-ne", "-gt", "-ge", "-lt", "-le":
		return true
	}
	return false
}

func (p *testExpr) unary(op, arg string) (bool, error) {
	switch op {
	case "-z":
		return arg == "", nil
	case "-n":
		return arg != "", nil
	case "-t":
		fd, err := strconv.Atoi(arg)
		if err != nil {
			return false, fmt.Errorf("%s: integer expression expected", arg)
		}
		// only the shell's own streams can be terminals; an fd that was
		// redirected to a pipe or file is not one
		var stream any
		switch fd {
		case 0:
			stream = p.r.stdin
		case 1:
			stream = p.r.stdout
		case 2:
			stream = p.r.stderr
		}
		if f, ok := stream.(*os.File); ok && f != nil {
			return term.IsTerminal(int(f.Fd())), nil
		}
		return false, nil
	case "-h", "-L":
		info, err := os.Lstat(absPath(p.dir, arg))
		return err == nil && info.Mode()&os.ModeSymlink != 0, nil
	}
	info, err := os.Stat(absPath(p.dir, arg))
	if err != nil {
		return false, nil
	}
	mode := info.Mode()
	switch op {
	case "-b":
		return mode&os.ModeDevice != 0 && mode&os.ModeCharDevice == 0, nil
	case "-c":
		return mode&os.ModeCharDevice != 0, nil
	case "-d":
		return mode.IsDir(), nil
	case "-e":
		return true, nil
	case "-f":
		return mode.IsRegular(), nil
	case "-g":
		return mode&os.ModeSetgid != 0, nil
	case "-p":
		return mode&os.ModeNamedPipe != 0, nil
	case "-r":
		return mode.Perm()&0o444 != 0, nil
	case "-S":
		return mode&os.ModeSocket != 0, nil
	case "-s":
		return info.Size() > 0, nil
	case "-u":
		return mode&os.ModeSetuid != 0, nil
	case "-w":
		return mode.Perm()&0o222 != 0, nil
	case "-x":
		return mode.Perm()&0o111 != 0, nil
	}
	return false, fmt.Errorf("unknown operator %s", op)
}

func binaryTest(op, left, right string) (bool, error) {
	switch op {
	case "=":
		return left == right, nil
	case "!=":
		return left != right, nil
	}
	l, err := strconv.ParseInt(left, 10, 64)
	if err != nil {
		return false, fmt.Errorf("%s: integer expression expected", left)
	}
	r, err := strconv.ParseInt(right, 10, 64)
	if err != nil {
		return false, fmt.Errorf("%s: integer expression expected", right)
	}
	switch op {
	case "-eq":
		return l == r, nil
	case "-ne":
		return l != r, nil
	case "-gt":
		return l > r, nil
	case "-ge":
		return l >= r, nil
	case "-lt":
		return l < r, nil
	case "-le":
		return l <= r, nil
	}
	return false, fmt.Errorf("unknown operator %s", op)
}
