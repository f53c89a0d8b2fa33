// Copyright (c) 2024, the posh authors
// See LICENSE for licensing information

package syntax

import (
	"io"
	"strings"
)

// Printer writes syntax tree nodes back as shell source on a single line,
// such as for the output of the jobs builtin. Here-document bodies are not
// included.
type Printer struct {
	sb strings.Builder
}

// NewPrinter allocates a new Printer.
func NewPrinter() *Printer {
	return &Printer{}
}

// Print writes the node as shell source to the writer.
func (p *Printer) Print(w io.Writer, node Node) error {
	p.sb.Reset()
	p.node(node)
	_, err := io.WriteString(w, p.sb.String())
	return err
}

// String returns the node as a shell source string.
func (p *Printer) String(node Node) string {
	p.sb.Reset()
	p.node(node)
	return p.sb.String()
}

func (p *Printer) str(s string) { p.sb.WriteString(s) }

func (p *Printer) node(node Node) {
	switch x := node.(type) {
	case *File:
		p.stmtList(x.Stmts)
	case *Stmt:
		p.stmt(x)
	case Command:
		p.command(x)
	case *Word:
		p.word(x)
	case WordPart:
		p.wordPart(x)
	case *Redirect:
		p.redirect(x)
	}
}

func (p *Printer) stmtList(stmts []*Stmt) {
	for i, s := range stmts {
		if i > 0 {
			if stmts[i-1].Background {
				p.str(" ")
			} else {
				p.str("; ")
			}
		}
		p.stmt(s)
	}
}

func (p *Printer) stmt(s *Stmt) {
	if s.Negated {
		p.str("! ")
	}
	if s.Cmd != nil {
		p.command(s.Cmd)
	}
	for i, rd := range s.Redirs {
		if s.Cmd != nil || i > 0 {
			p.str(" ")
		}
		p.redirect(rd)
	}
	if s.Background {
		p.str(" &")
	}
}

func (p *Printer) redirect(rd *Redirect) {
	if rd.N != nil {
		p.str(rd.N.Value)
	}
	p.str(rd.Op.String())
	p.word(rd.Word)
}

func (p *Printer) command(cmd Command) {
	switch x := cmd.(type) {
	case *CallExpr:
		for i, as := range x.Assigns {
			if i > 0 {
				p.str(" ")
			}
			p.str(as.Name.Value)
			p.str("=")
			if as.Value != nil {
				p.word(as.Value)
			}
		}
		for i, w := range x.Args {
			if i > 0 || len(x.Assigns) > 0 {
				p.str(" ")
			}
			p.word(w)
		}
	case *BinaryCmd:
		p.stmt(x.X)
		p.str(" " + x.Op.String() + " ")
		p.stmt(x.Y)
	case *IfClause:
		p.str("if ")
		p.stmtList(x.Cond)
		p.str("; then ")
		p.stmtList(x.Then)
		p.elseClause(x.Else)
		p.str("; fi")
	case *WhileClause:
		if x.Until {
			p.str("until ")
		} else {
			p.str("while ")
		}
		p.stmtList(x.Cond)
		p.str("; do ")
		p.stmtList(x.Do)
		p.str("; done")
	case *ForClause:
		p.str("for " + x.Name.Value)
		if x.InPos.IsValid() {
			p.str(" in")
			for _, w := range x.Items {
				p.str(" ")
				p.word(w)
			}
		}
		p.str("; do ")
		p.stmtList(x.Do)
		p.str("; done")
	case *CaseClause:
		p.str("case ")
		p.word(x.Word)
		p.str(" in")
		for _, ci := range x.Items {
			p.str(" ")
			for i, pat := range ci.Patterns {
				if i > 0 {
					p.str(" | ")
				}
				p.word(pat)
			}
			p.str(") ")
			p.stmtList(ci.Stmts)
			p.str(";;")
		}
		p.str(" esac")
	case *Block:
		p.str("{ ")
		p.stmtList(x.Stmts)
		p.str("; }")
	case *Subshell:
		p.str("(")
		p.stmtList(x.Stmts)
		p.str(")")
	case *FuncDecl:
		p.str(x.Name.Value + "() ")
		p.stmt(x.Body)
	}
}

func (p *Printer) elseClause(cmd Command) {
	switch x := cmd.(type) {
	case *IfClause:
		p.str("; elif ")
		p.stmtList(x.Cond)
		p.str("; then ")
		p.stmtList(x.Then)
		p.elseClause(x.Else)
	case *Block:
		p.str("; else ")
		p.stmtList(x.Stmts)
	}
}

func (p *Printer) word(w *Word) {
	for _, part := range w.Parts {
		p.wordPart(part)
	}
}

func (p *Printer) wordPart(part WordPart) {
	switch x := part.(type) {
	case *Lit:
		p.str(x.Value)
	case *SglQuoted:
		p.str("'" + x.Value + "'")
	case *DblQuoted:
		p.str(`"`)
		for _, dp := range x.Parts {
			p.wordPart(dp)
		}
		p.str(`"`)
	case *ParamExp:
		p.paramExp(x)
	case *CmdSubst:
		if x.Backquotes {
			p.str("`")
			p.stmtList(x.Stmts)
			p.str("`")
		} else {
			p.str("$(")
			p.stmtList(x.Stmts)
			p.str(")")
		}
	case *ArithmExp:
		p.str("$((")
		for _, ap := range x.Parts {
			p.wordPart(ap)
		}
		p.str("))")
	}
}

func (p *Printer) paramExp(pe *ParamExp) {
	if pe.Short {
		p.str("$" + pe.Param.Value)
		return
	}
	p.str("${")
	if pe.Length {
		p.str("#")
	}
	p.str(pe.Param.Value)
	if pe.Exp != nil {
		p.str(pe.Exp.Op.String())
		if pe.Exp.Word != nil {
			p.word(pe.Exp.Word)
		}
	}
	p.str("}")
}
