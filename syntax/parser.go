// Copyright (c) 2024, the posh authors
// See LICENSE for licensing information

// Package syntax implements parsing of POSIX shell source into a syntax
// tree, following the Shell Command Language grammar.
package syntax

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// NewParser allocates a new [Parser]. A parser can be reused for any number
// of source inputs, but not concurrently.
func NewParser() *Parser {
	return &Parser{}
}

// Parser holds the internal state of the parsing mechanism of a program.
type Parser struct {
	src  []byte
	npos int // position within src of the next byte to scan

	filename string

	f *File

	pos    Pos    // position of the current token
	tok    token  // current token
	val    string // current value, if the token is a single-literal word
	parts  []WordPart
	spaced bool // whether a blank preceded the current token

	incomplete bool

	pendingHdocs []*Redirect
}

// Parse reads and parses a shell program with an optional name. It returns
// the parsed program if no issues were encountered, and a [ParseError]
// otherwise.
func (p *Parser) Parse(r io.Reader, name string) (*File, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return p.parse(src, name)
}

// Incomplete reports whether the last syntax error was caused by the input
// ending before a construct was closed, such as an unfinished quote or an
// "if" without its "fi". Interactive shells use it to prompt for more lines.
func (p *Parser) Incomplete() bool { return p.incomplete }

// Interactive parses the reader line by line, calling fn with the parsed
// statements once a line completes them. Lines that leave a construct open
// make the parser wait for further lines before calling fn. If fn returns
// false, parsing stops and the function returns.
//
// An empty line results in a call with no statements, so that the caller can
// print a prompt.
func (p *Parser) Interactive(r io.Reader, fn func([]*Stmt) bool) error {
	br := bufio.NewReader(r)
	var buf []byte
	for {
		line, rerr := br.ReadBytes('\n')
		buf = append(buf, line...)
		if len(buf) > 0 {
			f, err := p.parse(buf, p.filename)
			switch {
			case err != nil && p.incomplete && rerr == nil:
				// wait for more lines to close the construct
			case err != nil:
				return err
			default:
				if !fn(f.Stmts) {
					return nil
				}
				buf = buf[:0]
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}

// ParseError represents an error found when parsing a source file.
type ParseError struct {
	Filename string
	Pos      Position
	Text     string

	// Incomplete is true if the error was caused by the source ending
	// before a construct was closed.
	Incomplete bool
}

func (e ParseError) Error() string {
	if e.Filename == "" {
		return fmt.Sprintf("%d:%d: %s", e.Pos.Line, e.Pos.Column, e.Text)
	}
	return fmt.Sprintf("%s:%d:%d: %s", e.Filename, e.Pos.Line, e.Pos.Column, e.Text)
}

// IsIncomplete reports whether the error is a [ParseError] caused by the
// source ending mid-construct.
func IsIncomplete(err error) bool {
	var perr ParseError
	return errors.As(err, &perr) && perr.Incomplete
}

// parseSource parses an independent piece of source, such as the body of a
// backquoted command substitution.
func parseSource(src []byte, name string) ([]*Stmt, error) {
	p := &Parser{}
	f, err := p.parse(src, name)
	if err != nil {
		return nil, err
	}
	return f.Stmts, nil
}

func (p *Parser) parse(src []byte, name string) (f *File, err error) {
	p.reset(src, name)
	defer func() {
		if r := recover(); r != nil {
			perr, ok := r.(ParseError)
			if !ok {
				panic(r)
			}
			err = perr
		}
	}()
	p.next()
	p.f.Stmts = p.stmts()
	switch {
	case p.tok == _EOF:
	case p.tok == rghtParen:
		p.curErr("%s can only be used to close a subshell", p.tok)
	case p.tok == dblSemi:
		p.curErr("%s can only be used in a case clause", p.tok)
	case p.tok == _LitWord && p.val == "}":
		p.curErr("%q can only be used to close a block", p.val)
	case p.tok == _LitWord && closingWord(p.val):
		p.curErr("%q can only be used in its matching construct", p.val)
	default:
		p.curErr("unexpected token %s", p.tok)
	}
	if len(p.pendingHdocs) > 0 {
		rd := p.pendingHdocs[0]
		p.incomplete = true
		delim, _ := hdocDelim(rd.Word)
		p.posErr(rd.OpPos, "unclosed here-document '%s'", delim)
	}
	return p.f, nil
}

func (p *Parser) reset(src []byte, name string) {
	p.src = src
	p.npos = 0
	p.filename = name
	p.pos = defaultPos
	p.tok, p.val, p.parts = illegalTok, "", nil
	p.spaced = false
	p.incomplete = false
	p.pendingHdocs = nil
	lines := []int{0}
	for i, b := range src {
		if b == '\n' {
			lines = append(lines, i+1)
		}
	}
	p.f = &File{Name: name, Lines: lines}
}

// posErr aborts the parse with an error at the given position.
func (p *Parser) posErr(pos Pos, format string, args ...any) {
	panic(ParseError{
		Filename:   p.filename,
		Pos:        offsetPosition(p.src, pos),
		Text:       fmt.Sprintf(format, args...),
		Incomplete: p.incomplete,
	})
}

// curErr is like posErr, using the position of the current token. Reaching
// the end of the source where more tokens were required marks the error as
// incomplete.
func (p *Parser) curErr(format string, args ...any) {
	if p.tok == _EOF {
		p.incomplete = true
	}
	p.posErr(p.pos, format, args...)
}

func (p *Parser) followErr(lpos Pos, left, right string) {
	if p.tok == _EOF {
		p.incomplete = true
	}
	p.posErr(lpos, "%s must be followed by %s", left, right)
}

// followWord consumes the reserved word that must close or continue a
// construct, such as the "then" after an if's condition.
func (p *Parser) followWord(lpos Pos, left, word string) {
	if p.tok != _LitWord || p.val != word {
		p.followErr(lpos, left, fmt.Sprintf("%q", word))
	}
	p.next()
}

// matched ensures that the current token closes the construct opened at
// lpos. The token is not consumed, as command substitutions resume scanning
// a word right after the closing parenthesis.
func (p *Parser) matched(lpos Pos, left string, tok token) Pos {
	if p.tok != tok {
		if p.tok == _EOF {
			p.incomplete = true
		}
		p.posErr(lpos, "reached %s without matching %s with %s", p.tok, left, tok)
	}
	return p.pos
}

func offsetPosition(src []byte, pos Pos) Position {
	off := int(pos) - 1
	if off < 0 {
		off = 0
	}
	if off > len(src) {
		off = len(src)
	}
	position := Position{Offset: off, Line: 1, Column: 1}
	for _, b := range src[:off] {
		if b == '\n' {
			position.Line++
			position.Column = 1
		} else {
			position.Column++
		}
	}
	return position
}

type saveState struct {
	pos          Pos
	tok          token
	val          string
	parts        []WordPart
	spaced       bool
	pendingHdocs []*Redirect
}

// preserveState saves the current token so that a command substitution can
// be parsed in the middle of scanning a word. Pending here-documents are
// stashed too, as the substitution's newlines must not trigger them.
func (p *Parser) preserveState() saveState {
	s := saveState{p.pos, p.tok, p.val, p.parts, p.spaced, p.pendingHdocs}
	p.pendingHdocs = nil
	return s
}

func (p *Parser) restoreState(s saveState) {
	p.pos, p.tok, p.val, p.parts, p.spaced = s.pos, s.tok, s.val, s.parts, s.spaced
	p.pendingHdocs = s.pendingHdocs
}

func (p *Parser) skipNewl() {
	for p.tok == _Newl {
		p.next()
	}
}

func stopWord(stops []string, val string) bool {
	for _, stop := range stops {
		if stop == val {
			return true
		}
	}
	return false
}

// closingWord reports whether val is a reserved word that closes or
// continues some construct. At a command position one of these always ends
// the current statement list, so that the enclosing construct reports a
// missing keyword at its own position rather than a confusing error at the
// closing word.
func closingWord(val string) bool {
	switch val {
	case "then", "elif", "else", "fi", "do", "done", "esac", "}":
		return true
	}
	return false
}

// stmts parses a list of statements, stopping at the end of the source, a
// closing parenthesis, a double semicolon, or a reserved word at a command
// position.
func (p *Parser) stmts(stops ...string) []*Stmt {
	var sts []*Stmt
	for {
		p.skipNewl()
		if p.tok == _EOF || p.tok == rghtParen || p.tok == dblSemi {
			break
		}
		if p.tok == _LitWord && (stopWord(stops, p.val) || closingWord(p.val)) {
			break
		}
		sts = append(sts, p.getStmt())
	}
	return sts
}

// getStmt parses one and-or list, consuming its trailing control operator
// if any. An ampersand backgrounds the entire list.
func (p *Parser) getStmt() *Stmt {
	s := p.andOr()
	switch p.tok {
	case and:
		s.Background = true
		p.next()
	case semicolon:
		p.next()
	}
	return s
}

func (p *Parser) andOr() *Stmt {
	s := p.pipelineStmt()
	for p.tok == andAnd || p.tok == orOr {
		op := AndStmt
		if p.tok == orOr {
			op = OrStmt
		}
		b := &BinaryCmd{OpPos: p.pos, Op: op, X: s}
		p.next()
		p.skipNewl()
		b.Y = p.pipelineStmt()
		s = &Stmt{Position: b.X.Position, Cmd: b}
	}
	return s
}

func (p *Parser) pipelineStmt() *Stmt {
	pos := p.pos
	negated := false
	for p.tok == _LitWord && p.val == "!" {
		negated = !negated
		p.next()
	}
	s := p.cmdStmt()
	for p.tok == or {
		b := &BinaryCmd{OpPos: p.pos, Op: Pipe, X: s}
		p.next()
		p.skipNewl()
		b.Y = p.cmdStmt()
		s = &Stmt{Position: b.X.Position, Cmd: b}
	}
	s.Position = pos
	s.Negated = negated
	return s
}

// cmdStmt parses a single command with its redirections.
func (p *Parser) cmdStmt() *Stmt {
	s := &Stmt{Position: p.pos}
	switch p.tok {
	case leftParen:
		s.Cmd = p.subshell()
	case _LitWord:
		switch p.val {
		case "if":
			s.Cmd = p.ifClause(p.pos)
		case "while":
			s.Cmd = p.whileClause(false)
		case "until":
			s.Cmd = p.whileClause(true)
		case "for":
			s.Cmd = p.forClause()
		case "case":
			s.Cmd = p.caseClause()
		case "{":
			s.Cmd = p.block()
		case "}":
			p.curErr("%q can only be used to close a block", p.val)
		case "then", "elif", "else", "fi", "do", "done", "esac":
			p.curErr("%q can only be used in its matching construct", p.val)
		default:
			p.simpleCmd(s)
		}
	case _Lit, rdrOut, appOut, rdrIn, rdrInOut, dplIn, dplOut, hdoc, dashHdoc:
		p.simpleCmd(s)
	default:
		p.curErr("%s is not a valid start for a statement", p.tok)
	}
	for p.gotRedirect(s) {
	}
	return s
}

func (t token) isRedirect() bool { return t >= rdrOut && t <= dashHdoc }

func (p *Parser) gotRedirect(s *Stmt) bool {
	if p.tok == _Lit || p.tok == _LitWord {
		// a digit word directly attached to a redirect operator gives its
		// fd, as in `{ ...; } 2>/dev/null`
		if len(p.parts) == 1 {
			lit, ok := p.parts[0].(*Lit)
			if ok && allDigits(lit.Value) && p.npos < len(p.src) &&
				(p.src[p.npos] == '>' || p.src[p.npos] == '<') {
				n := p.getLit()
				rd := p.doRedirect()
				rd.N = n
				s.Redirs = append(s.Redirs, rd)
				return true
			}
		}
		return false
	}
	if !p.tok.isRedirect() {
		return false
	}
	s.Redirs = append(s.Redirs, p.doRedirect())
	return true
}

func (p *Parser) doRedirect() *Redirect {
	rd := &Redirect{OpPos: p.pos, Op: RedirOperator(p.tok)}
	p.next()
	if p.tok != _Lit && p.tok != _LitWord {
		p.followErr(rd.OpPos, rd.Op.String(), "a word")
	}
	// the heredoc must be pending before p.next sees the newline ending
	// this line, or its body would be read one line late
	rd.Word = &Word{Parts: p.parts}
	if rd.Op == Hdoc || rd.Op == DashHdoc {
		p.pendingHdocs = append(p.pendingHdocs, rd)
	}
	p.next()
	return rd
}

// word takes the current token's parts as a word and advances.
func (p *Parser) word() *Word {
	w := &Word{Parts: p.parts}
	p.next()
	return w
}

// getLit takes the current single-literal word as a Lit node and advances.
func (p *Parser) getLit() *Lit {
	l := p.parts[0].(*Lit)
	p.next()
	return l
}

// getAssign splits a word of the form name=value into an assignment node,
// or returns nil if the word is not one. The equals sign must be unescaped.
func getAssign(w *Word) *Assign {
	lit, ok := w.Parts[0].(*Lit)
	if !ok {
		return nil
	}
	eq := -1
	for i := 0; i < len(lit.Value); i++ {
		if lit.Value[i] == '\\' {
			i++
			continue
		}
		if lit.Value[i] == '=' {
			eq = i
			break
		}
	}
	if eq <= 0 || !ValidName(lit.Value[:eq]) {
		return nil
	}
	as := &Assign{Name: &Lit{
		ValuePos: lit.ValuePos,
		ValueEnd: lit.ValuePos + Pos(eq),
		Value:    lit.Value[:eq],
	}}
	var parts []WordPart
	if rest := lit.Value[eq+1:]; rest != "" {
		parts = append(parts, &Lit{
			ValuePos: lit.ValuePos + Pos(eq+1),
			ValueEnd: lit.ValueEnd,
			Value:    rest,
		})
	}
	parts = append(parts, w.Parts[1:]...)
	if len(parts) > 0 {
		as.Value = &Word{Parts: parts}
	}
	return as
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

// simpleCmd parses a simple command: assignments, words, and redirections
// in any order, or a function declaration. A statement with redirections
// but no words is left with a nil Cmd.
func (p *Parser) simpleCmd(s *Stmt) {
	ce := &CallExpr{}
	for {
		switch p.tok {
		case _Lit, _LitWord:
			w := p.word()
			if len(ce.Args) == 0 {
				if as := getAssign(w); as != nil {
					ce.Assigns = append(ce.Assigns, as)
					continue
				}
			}
			if p.tok.isRedirect() && !p.spaced {
				if lit := w.Lit(); allDigits(lit) {
					rd := p.doRedirect()
					rd.N = w.Parts[0].(*Lit)
					s.Redirs = append(s.Redirs, rd)
					continue
				}
			}
			if p.tok == leftParen {
				name, ok := w.Parts[0].(*Lit)
				if len(w.Parts) == 1 && ok && ValidName(name.Value) &&
					len(ce.Args) == 0 && len(ce.Assigns) == 0 && len(s.Redirs) == 0 {
					s.Cmd = p.funcDecl(name)
					return
				}
				p.curErr("a command can only contain words and redirects; encountered (")
			}
			ce.Args = append(ce.Args, w)
		case rdrOut, appOut, rdrIn, rdrInOut, dplIn, dplOut, hdoc, dashHdoc:
			s.Redirs = append(s.Redirs, p.doRedirect())
		case leftParen:
			p.curErr("a command can only contain words and redirects; encountered (")
		default:
			if len(ce.Args) > 0 || len(ce.Assigns) > 0 {
				s.Cmd = ce
			}
			return
		}
	}
}

// funcDecl parses a function declaration after its name, with the current
// token being the opening parenthesis.
func (p *Parser) funcDecl(name *Lit) *FuncDecl {
	p.next()
	if p.tok != rghtParen {
		p.followErr(name.ValuePos, name.Value+"(", ")")
	}
	p.next()
	p.skipNewl()
	return &FuncDecl{
		Position: name.ValuePos,
		Name:     name,
		Body:     p.cmdStmt(),
	}
}

func (p *Parser) subshell() *Subshell {
	s := &Subshell{Lparen: p.pos}
	p.next()
	s.Stmts = p.stmts()
	s.Rparen = p.matched(s.Lparen, "(", rghtParen)
	p.next()
	return s
}

func (p *Parser) block() *Block {
	b := &Block{Lbrace: p.pos}
	p.next()
	b.Stmts = p.stmts("}")
	b.Rbrace = p.pos
	if p.tok != _LitWord || p.val != "}" {
		if p.tok == _EOF {
			p.incomplete = true
		}
		p.posErr(b.Lbrace, "reached %s without matching { with }", p.tok)
	}
	p.next()
	return b
}

// ifClause parses an if clause starting at the given position; the current
// token is the "if" or "elif" word. An elif becomes a nested IfClause.
func (p *Parser) ifClause(pos Pos) *IfClause {
	p.next()
	ic := &IfClause{IfPos: pos}
	ic.Cond = p.stmts("then")
	p.followWord(ic.IfPos, "if <cond>", "then")
	ic.Then = p.stmts("elif", "else", "fi")
	if p.tok == _LitWord {
		switch p.val {
		case "elif":
			elif := p.ifClause(p.pos)
			ic.Else = elif
			ic.FiPos = elif.FiPos
			return ic
		case "else":
			b := &Block{Lbrace: p.pos}
			p.next()
			b.Stmts = p.stmts("fi")
			b.Rbrace = p.pos
			ic.Else = b
		}
	}
	ic.FiPos = p.pos
	p.followWord(ic.IfPos, "if <cond>; then <body>", "fi")
	return ic
}

func (p *Parser) whileClause(until bool) *WhileClause {
	wc := &WhileClause{WhilePos: p.pos, Until: until}
	name := "while"
	if until {
		name = "until"
	}
	p.next()
	wc.Cond = p.stmts("do")
	p.followWord(wc.WhilePos, name+" <cond>", "do")
	wc.Do = p.stmts("done")
	wc.DonePos = p.pos
	p.followWord(wc.WhilePos, name+" <cond>; do <body>", "done")
	return wc
}

func (p *Parser) forClause() *ForClause {
	fc := &ForClause{ForPos: p.pos}
	p.next()
	if p.tok != _LitWord || !ValidName(p.val) {
		p.followErr(fc.ForPos, "for", "a literal name")
	}
	fc.Name = p.getLit()
	p.skipNewl()
	if p.tok == _LitWord && p.val == "in" {
		fc.InPos = p.pos
		p.next()
		for p.tok == _Lit || p.tok == _LitWord {
			fc.Items = append(fc.Items, p.word())
		}
		switch p.tok {
		case semicolon:
			p.next()
		case _Newl:
		default:
			p.curErr("word list can only contain words")
		}
	} else if p.tok == semicolon {
		p.next()
	}
	p.skipNewl()
	p.followWord(fc.ForPos, "for foo [in words]", "do")
	fc.Do = p.stmts("done")
	fc.DonePos = p.pos
	p.followWord(fc.ForPos, "for foo [in words]; do <body>", "done")
	return fc
}

func (p *Parser) caseClause() *CaseClause {
	cc := &CaseClause{CasePos: p.pos}
	p.next()
	if p.tok != _Lit && p.tok != _LitWord {
		p.followErr(cc.CasePos, "case", "a word")
	}
	cc.Word = p.word()
	p.skipNewl()
	p.followWord(cc.CasePos, "case x", "in")
	p.skipNewl()
	for p.tok != _LitWord || p.val != "esac" {
		if p.tok == _EOF {
			p.incomplete = true
			p.posErr(cc.CasePos, `case statement must end with "esac"`)
		}
		ci := &CaseItem{}
		if p.tok == leftParen {
			p.next()
		}
		for {
			if p.tok != _Lit && p.tok != _LitWord {
				p.curErr("case patterns must consist of words")
			}
			ci.Patterns = append(ci.Patterns, p.word())
			if p.tok == rghtParen {
				p.next()
				break
			}
			if p.tok != or {
				p.curErr("case patterns must be separated with |")
			}
			p.next()
		}
		ci.Stmts = p.stmts("esac")
		if p.tok == dblSemi {
			ci.OpPos = p.pos
			p.next()
		}
		p.skipNewl()
		cc.Items = append(cc.Items, ci)
	}
	cc.EsacPos = p.pos
	p.next()
	return cc
}
