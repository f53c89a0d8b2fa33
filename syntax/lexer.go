// Copyright (c) 2024, the posh authors
// See LICENSE for licensing information

package syntax

import "strings"

// wordBreak reports whether a byte ends an unquoted word.
func wordBreak(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', ';', '&', '|', '(', ')', '<', '>':
		return true
	}
	return false
}

func litName(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') ||
		(b >= '0' && b <= '9')
}

func specialParam(b byte) bool {
	switch b {
	case '@', '*', '#', '?', '-', '$', '!':
		return true
	}
	return b >= '0' && b <= '9'
}

// next advances the parser to the next token, skipping blanks, comments,
// and escaped newlines.
func (p *Parser) next() {
	p.spaced = false
skipSpace:
	for p.npos < len(p.src) {
		switch p.src[p.npos] {
		case ' ', '\t', '\r':
			p.npos++
			p.spaced = true
		case '\\':
			if p.npos+1 < len(p.src) && p.src[p.npos+1] == '\n' {
				p.npos += 2
				p.spaced = true
				continue
			}
			break skipSpace
		case '#':
			for p.npos < len(p.src) && p.src[p.npos] != '\n' {
				p.npos++
			}
		default:
			break skipSpace
		}
	}
	p.pos = Pos(p.npos + 1)
	if p.npos >= len(p.src) {
		p.tok = _EOF
		return
	}
	switch b := p.src[p.npos]; b {
	case '\n':
		p.npos++
		p.tok = _Newl
		if len(p.pendingHdocs) > 0 {
			p.doHeredocs()
		}
	case '&':
		p.tok = p.punct(and, andAnd, '&')
	case '|':
		p.tok = p.punct(or, orOr, '|')
	case ';':
		p.tok = p.punct(semicolon, dblSemi, ';')
	case '(':
		p.npos++
		p.tok = leftParen
	case ')':
		p.npos++
		p.tok = rghtParen
	case '<':
		switch p.byteAt(p.npos + 1) {
		case '<':
			if p.byteAt(p.npos+2) == '-' {
				p.npos += 3
				p.tok = dashHdoc
			} else {
				p.npos += 2
				p.tok = hdoc
			}
		case '&':
			p.npos += 2
			p.tok = dplIn
		case '>':
			p.npos += 2
			p.tok = rdrInOut
		default:
			p.npos++
			p.tok = rdrIn
		}
	case '>':
		switch p.byteAt(p.npos + 1) {
		case '>':
			p.npos += 2
			p.tok = appOut
		case '&':
			p.npos += 2
			p.tok = dplOut
		default:
			p.npos++
			p.tok = rdrOut
		}
	default:
		p.advanceWord()
	}
}

// punct consumes a one-byte punctuation token, or its doubled two-byte form.
func (p *Parser) punct(single, double token, b byte) token {
	p.npos++
	if p.byteAt(p.npos) == b {
		p.npos++
		return double
	}
	return single
}

func (p *Parser) byteAt(i int) byte {
	if i >= len(p.src) {
		return 0
	}
	return p.src[i]
}

// advanceWord scans a full word at the current position, leaving its parts
// in p.parts. The token is _LitWord if the word is a single literal.
func (p *Parser) advanceWord() {
	p.parts = p.wordParts(ctxNormal)
	if len(p.parts) == 1 {
		if lit, ok := p.parts[0].(*Lit); ok {
			p.tok = _LitWord
			p.val = lit.Value
			return
		}
	}
	p.tok = _Lit
	p.val = ""
}

type scanCtx uint8

const (
	ctxNormal scanCtx = iota
	ctxDquote
	ctxParamWord // inside ${name:-...}, up to the closing brace
	ctxArithm    // inside $((...)), up to the closing parens
)

// wordParts scans consecutive word parts until a word boundary for the
// given context.
func (p *Parser) wordParts(ctx scanCtx) []WordPart {
	var parts []WordPart
	for {
		part := p.wordPart(ctx)
		if part == nil {
			return parts
		}
		parts = append(parts, part)
	}
}

func (p *Parser) wordPart(ctx scanCtx) WordPart {
	if p.npos >= len(p.src) {
		return nil
	}
	switch b := p.src[p.npos]; {
	case b == '\'' && ctx == ctxNormal || b == '\'' && ctx == ctxParamWord:
		left := Pos(p.npos + 1)
		p.npos++
		start := p.npos
		for p.npos < len(p.src) && p.src[p.npos] != '\'' {
			p.npos++
		}
		if p.npos >= len(p.src) {
			p.incomplete = true
			p.posErr(left, "reached EOF without closing quote %s", "'")
		}
		sq := &SglQuoted{Left: left, Right: Pos(p.npos + 1), Value: string(p.src[start:p.npos])}
		p.npos++
		return sq
	case b == '"' && ctx != ctxDquote:
		left := Pos(p.npos + 1)
		p.npos++
		var parts []WordPart
		for {
			if p.npos >= len(p.src) {
				p.incomplete = true
				p.posErr(left, "reached EOF without closing quote %s", `"`)
			}
			if p.src[p.npos] == '"' {
				break
			}
			parts = append(parts, p.wordPart(ctxDquote))
		}
		dq := &DblQuoted{Left: left, Right: Pos(p.npos + 1), Parts: parts}
		p.npos++
		return dq
	case b == '$':
		if part := p.dollar(ctx); part != nil {
			return part
		}
		// lone or trailing $, a literal
		p.npos++
		return &Lit{ValuePos: Pos(p.npos), ValueEnd: Pos(p.npos + 1), Value: "$"}
	case b == '`':
		return p.backquotes()
	default:
		// an untyped nil, so that wordParts sees the word boundary
		if l := p.lit(ctx); l != nil {
			return l
		}
		return nil
	}
}

// lit scans a literal run for the given context, stopping before any byte
// that starts another word part or ends the word. Backslash escapes are kept
// intact; they are resolved during expansion.
func (p *Parser) lit(ctx scanCtx) *Lit {
	start := p.npos
	var sb []byte
loop:
	for p.npos < len(p.src) {
		switch b := p.src[p.npos]; b {
		case '\\':
			if p.npos+1 >= len(p.src) {
				sb = append(sb, b)
				p.npos++
				break loop
			}
			if p.src[p.npos+1] == '\n' { // line continuation
				p.npos += 2
				continue
			}
			sb = append(sb, b, p.src[p.npos+1])
			p.npos += 2
		case '$', '`':
			break loop
		case '\'', '"':
			if ctx == ctxDquote && b == '\'' {
				sb = append(sb, b)
				p.npos++
				continue
			}
			break loop
		case '}':
			if ctx == ctxParamWord {
				break loop
			}
			sb = append(sb, b)
			p.npos++
		case '(', ')':
			if ctx == ctxArithm {
				break loop
			}
			if ctx == ctxNormal && wordBreak(b) {
				break loop
			}
			sb = append(sb, b)
			p.npos++
		default:
			if ctx == ctxNormal && wordBreak(b) {
				break loop
			}
			sb = append(sb, b)
			p.npos++
		}
	}
	if p.npos == start {
		return nil
	}
	return &Lit{
		ValuePos: Pos(start + 1),
		ValueEnd: Pos(p.npos + 1),
		Value:    string(sb),
	}
}

// dollar scans a part starting with '$': a parameter expansion, command
// substitution, or arithmetic expansion. A nil return means the dollar is
// literal.
func (p *Parser) dollar(ctx scanCtx) WordPart {
	dollar := Pos(p.npos + 1)
	switch b := p.byteAt(p.npos + 1); {
	case b == '(':
		if p.byteAt(p.npos+2) == '(' {
			return p.arithmExp(dollar)
		}
		p.npos += 2
		old := p.preserveState()
		p.next()
		stmts := p.stmts()
		right := p.pos
		p.matched(dollar, "$(", rghtParen)
		p.restoreState(old)
		return &CmdSubst{Left: dollar, Right: right, Stmts: stmts}
	case b == '{':
		return p.paramExp(dollar)
	case b == '#', b == '?', b == '$', b == '!', b == '-', b == '*', b == '@',
		b >= '0' && b <= '9':
		p.npos += 2
		return &ParamExp{
			Dollar: dollar,
			Short:  true,
			Param:  &Lit{ValuePos: dollar + 1, ValueEnd: dollar + 2, Value: string(b)},
		}
	case b == '_' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z':
		p.npos++
		start := p.npos
		for p.npos < len(p.src) && litName(p.src[p.npos]) {
			p.npos++
		}
		return &ParamExp{
			Dollar: dollar,
			Short:  true,
			Param: &Lit{
				ValuePos: Pos(start + 1),
				ValueEnd: Pos(p.npos + 1),
				Value:    string(p.src[start:p.npos]),
			},
		}
	}
	return nil
}

// paramExp scans a full ${...} parameter expansion.
func (p *Parser) paramExp(dollar Pos) *ParamExp {
	p.npos += 2 // consume ${
	pe := &ParamExp{Dollar: dollar}
	if p.byteAt(p.npos) == '#' && p.byteAt(p.npos+1) != '}' {
		pe.Length = true
		p.npos++
	}
	start := p.npos
	switch b := p.byteAt(p.npos); {
	case specialParam(b):
		p.npos++
		if b >= '0' && b <= '9' { // multi-digit positional
			for d := p.byteAt(p.npos); d >= '0' && d <= '9'; d = p.byteAt(p.npos) {
				p.npos++
			}
		}
	case b == '_' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z':
		for litName(p.byteAt(p.npos)) {
			p.npos++
		}
	default:
		p.posErr(dollar, "parameter expansion requires a literal")
	}
	pe.Param = &Lit{
		ValuePos: Pos(start + 1),
		ValueEnd: Pos(p.npos + 1),
		Value:    string(p.src[start:p.npos]),
	}
	if p.byteAt(p.npos) == '}' {
		p.npos++
		pe.Rbrace = Pos(p.npos)
		return pe
	}
	if pe.Length {
		p.posErr(dollar, "cannot combine multiple parameter expansion operators")
	}
	pe.Exp = &Expansion{Op: p.paramOp(dollar)}
	if parts := p.wordParts(ctxParamWord); len(parts) > 0 {
		pe.Exp.Word = &Word{Parts: parts}
	}
	if p.byteAt(p.npos) != '}' {
		p.incomplete = true
		p.posErr(dollar, "reached EOF without matching ${ with }")
	}
	p.npos++
	pe.Rbrace = Pos(p.npos)
	return pe
}

func (p *Parser) paramOp(dollar Pos) ParExpOperator {
	colon := false
	if p.byteAt(p.npos) == ':' {
		colon = true
		p.npos++
	}
	if p.npos >= len(p.src) {
		p.incomplete = true
		p.posErr(dollar, "reached EOF without matching ${ with }")
	}
	b := p.byteAt(p.npos)
	p.npos++
	if colon {
		switch b {
		case '-':
			return SubstColMinus
		case '=':
			return SubstColAssgn
		case '+':
			return SubstColPlus
		case '?':
			return SubstColQuest
		}
		p.posErr(dollar, "not a valid parameter expansion operator: :%c", b)
	}
	switch b {
	case '-':
		return SubstMinus
	case '=':
		return SubstAssgn
	case '+':
		return SubstPlus
	case '?':
		return SubstQuest
	case '%':
		if p.byteAt(p.npos) == '%' {
			p.npos++
			return RemLargeSuffix
		}
		return RemSmallSuffix
	case '#':
		if p.byteAt(p.npos) == '#' {
			p.npos++
			return RemLargePrefix
		}
		return RemSmallPrefix
	}
	p.posErr(dollar, "not a valid parameter expansion operator: %c", b)
	return 0
}

// arithmExp scans a $((...)) arithmetic expansion, keeping its contents as
// word parts to be expanded and evaluated later.
func (p *Parser) arithmExp(dollar Pos) *ArithmExp {
	p.npos += 3 // consume $((
	ae := &ArithmExp{Left: dollar}
	depth := 0
	for {
		if p.npos >= len(p.src) {
			p.incomplete = true
			p.posErr(dollar, "reached EOF without matching $(( with ))")
		}
		switch p.src[p.npos] {
		case '(':
			depth++
			ae.Parts = append(ae.Parts, p.litByte())
			continue
		case ')':
			if depth == 0 {
				if p.byteAt(p.npos+1) != ')' {
					p.posErr(dollar, "reached ) without matching $(( with ))")
				}
				p.npos += 2
				ae.Right = Pos(p.npos - 1)
				return ae
			}
			depth--
			ae.Parts = append(ae.Parts, p.litByte())
			continue
		case '\n':
			// newlines act as blanks inside arithmetic
			ae.Parts = append(ae.Parts, &Lit{
				ValuePos: Pos(p.npos + 1),
				ValueEnd: Pos(p.npos + 2),
				Value:    " ",
			})
			p.npos++
			continue
		}
		if part := p.wordPart(ctxArithm); part != nil {
			ae.Parts = append(ae.Parts, part)
		} else {
			// a word-breaking byte such as a blank or ';'
			ae.Parts = append(ae.Parts, p.litByte())
		}
	}
}

func (p *Parser) litByte() *Lit {
	l := &Lit{
		ValuePos: Pos(p.npos + 1),
		ValueEnd: Pos(p.npos + 2),
		Value:    string(p.src[p.npos]),
	}
	p.npos++
	return l
}

// backquotes scans a legacy `...` command substitution, unescaping the
// sequences the backquote form treats specially before re-parsing the body.
func (p *Parser) backquotes() WordPart {
	left := Pos(p.npos + 1)
	p.npos++
	var body []byte
	for {
		if p.npos >= len(p.src) {
			p.incomplete = true
			p.posErr(left, "reached EOF without closing quote %s", "`")
		}
		b := p.src[p.npos]
		if b == '`' {
			break
		}
		if b == '\\' {
			switch p.byteAt(p.npos + 1) {
			case '$', '`', '\\':
				body = append(body, p.src[p.npos+1])
				p.npos += 2
				continue
			}
		}
		body = append(body, b)
		p.npos++
	}
	right := Pos(p.npos + 1)
	p.npos++
	stmts, err := parseSource(body, p.filename)
	if err != nil {
		perr := err.(ParseError)
		p.incomplete = p.incomplete || perr.Incomplete
		p.posErr(left, "%s", perr.Text)
	}
	return &CmdSubst{Left: left, Right: right, Stmts: stmts, Backquotes: true}
}

// doHeredocs reads the pending here-document bodies after a newline token.
func (p *Parser) doHeredocs() {
	hdocs := p.pendingHdocs
	p.pendingHdocs = nil
	for _, rd := range hdocs {
		strip := rd.Op == DashHdoc
		delim, quoted := hdocDelim(rd.Word)
		start := Pos(p.npos + 1)
		var body []byte
		for {
			if p.npos >= len(p.src) {
				p.incomplete = true
				p.posErr(rd.OpPos, "unclosed here-document '%s'", delim)
			}
			lineStart := p.npos
			for p.npos < len(p.src) && p.src[p.npos] != '\n' {
				p.npos++
			}
			line := string(p.src[lineStart:p.npos])
			if p.npos < len(p.src) {
				p.npos++ // consume the newline
			}
			cmp := line
			if strip {
				cmp = strings.TrimLeft(line, "\t")
			}
			if cmp == delim {
				break
			}
			if strip {
				line = cmp
			}
			body = append(body, line...)
			body = append(body, '\n')
		}
		if quoted {
			// a quoted delimiter suppresses all expansion and escape
			// handling, so the body behaves like a single-quoted string
			rd.Hdoc = &Word{Parts: []WordPart{&SglQuoted{
				Left:  start,
				Right: Pos(int(start) + len(body)),
				Value: string(body),
			}}}
		} else {
			rd.Hdoc = parseHdocBody(body, start)
		}
	}
}

// hdocDelim returns the delimiter of a here-document after quote removal,
// and whether any part of it was quoted.
func hdocDelim(w *Word) (string, bool) {
	var sb strings.Builder
	quoted := false
	for _, part := range w.Parts {
		switch x := part.(type) {
		case *Lit:
			val := x.Value
			for i := 0; i < len(val); i++ {
				if val[i] == '\\' && i+1 < len(val) {
					quoted = true
					i++
				}
				sb.WriteByte(val[i])
			}
		case *SglQuoted:
			quoted = true
			sb.WriteString(x.Value)
		case *DblQuoted:
			quoted = true
			for _, dp := range x.Parts {
				if lit, ok := dp.(*Lit); ok {
					sb.WriteString(lit.Value)
				}
			}
		}
	}
	return sb.String(), quoted
}

// parseHdocBody scans an unquoted here-document body for parameter
// expansions, command substitutions, and arithmetic expansions.
func parseHdocBody(body []byte, start Pos) *Word {
	p := &Parser{src: body}
	w := &Word{}
	var sb []byte
	litStart := 0
	flush := func(end int) {
		if len(sb) > 0 {
			w.Parts = append(w.Parts, &Lit{
				ValuePos: start + Pos(litStart),
				ValueEnd: start + Pos(end),
				Value:    string(sb),
			})
			sb = nil
		}
		litStart = end
	}
	for p.npos < len(p.src) {
		switch b := p.src[p.npos]; b {
		case '\\':
			// only \$, \`, \\ and \newline are special here
			switch p.byteAt(p.npos + 1) {
			case '$', '`', '\\':
				sb = append(sb, p.src[p.npos+1])
				p.npos += 2
			case '\n':
				p.npos += 2
			default:
				sb = append(sb, b)
				p.npos++
			}
		case '$':
			if part := p.dollar(ctxDquote); part != nil {
				flush(p.npos)
				w.Parts = append(w.Parts, part)
				litStart = p.npos
				continue
			}
			sb = append(sb, b)
			p.npos++
		case '`':
			flush(p.npos)
			w.Parts = append(w.Parts, p.backquotes())
			litStart = p.npos
		default:
			sb = append(sb, b)
			p.npos++
		}
	}
	flush(p.npos)
	if len(w.Parts) == 0 {
		w.Parts = append(w.Parts, &Lit{ValuePos: start, ValueEnd: start})
	}
	return w
}
