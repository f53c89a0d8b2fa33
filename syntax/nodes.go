// Copyright (c) 2024, the posh authors
// See LICENSE for licensing information

package syntax

// Node represents a syntax tree node.
type Node interface {
	// Pos returns the position of the first character of the node.
	Pos() Pos
	// End returns the position of the character immediately after the node.
	End() Pos
}

// File is a shell program.
type File struct {
	Name string // filename, if any

	Stmts []*Stmt

	// Lines contains the offset of the first character for each line
	// (the first entry is always 0).
	Lines []int
}

func (f *File) Pos() Pos { return stmtsPos(f.Stmts) }
func (f *File) End() Pos { return stmtsEnd(f.Stmts) }

// Position translates a [Pos] within the file into a [Position] with line
// and column information.
func (f *File) Position(p Pos) (pos Position) {
	intp := int(p)
	pos.Offset = intp - 1
	if i := searchInts(f.Lines, intp); i >= 0 {
		pos.Line, pos.Column = i+1, intp-f.Lines[i]
	}
	return
}

// Inlined version of:
// sort.Search(len(a), func(i int) bool { return a[i] > x }) - 1
func searchInts(a []int, x int) int {
	i, j := 0, len(a)
	for i < j {
		h := i + (j-i)/2
		if a[h] <= x {
			i = h + 1
		} else {
			j = h
		}
	}
	return i - 1
}

// Stmt represents a statement: a command with the components that may
// surround it, such as negation, redirections, and backgrounding.
type Stmt struct {
	Cmd        Command
	Position   Pos
	Negated    bool // ! stmt
	Background bool // stmt &
	Redirs     []*Redirect
}

func (s *Stmt) Pos() Pos { return s.Position }
func (s *Stmt) End() Pos {
	end := s.Position
	if s.Cmd != nil {
		end = s.Cmd.End()
	}
	if n := len(s.Redirs); n > 0 {
		end = posMax(end, s.Redirs[n-1].End())
	}
	return end
}

// Command represents all nodes that are placed directly in a [Stmt].
type Command interface {
	Node
	commandNode()
}

func (*CallExpr) commandNode()    {}
func (*BinaryCmd) commandNode()   {}
func (*IfClause) commandNode()    {}
func (*WhileClause) commandNode() {}
func (*ForClause) commandNode()   {}
func (*CaseClause) commandNode()  {}
func (*Block) commandNode()       {}
func (*Subshell) commandNode()    {}
func (*FuncDecl) commandNode()    {}

// Assign represents an assignment to a variable, preceding or forming a
// simple command.
type Assign struct {
	Name  *Lit
	Value *Word // nil for "name="
}

func (a *Assign) Pos() Pos { return a.Name.Pos() }
func (a *Assign) End() Pos {
	if a.Value != nil {
		return a.Value.End()
	}
	return a.Name.End() + 1
}

// Redirect represents an input/output redirection.
type Redirect struct {
	OpPos Pos
	Op    RedirOperator
	N     *Lit  // fd number, if any
	Word  *Word // target word, or here-doc delimiter
	Hdoc  *Word // here-doc body, filled in after the newline
}

func (r *Redirect) Pos() Pos {
	if r.N != nil {
		return r.N.Pos()
	}
	return r.OpPos
}
func (r *Redirect) End() Pos { return r.Word.End() }

// CallExpr represents a command execution or function call, including any
// preceding assignments. A CallExpr with no Args is a plain assignment.
type CallExpr struct {
	Assigns []*Assign
	Args    []*Word
}

func (c *CallExpr) Pos() Pos {
	if len(c.Assigns) > 0 {
		return c.Assigns[0].Pos()
	}
	return c.Args[0].Pos()
}

func (c *CallExpr) End() Pos {
	if len(c.Args) > 0 {
		return c.Args[len(c.Args)-1].End()
	}
	return c.Assigns[len(c.Assigns)-1].End()
}

// BinaryCmd represents a binary expression between two statements: an
// and-or list element or a pipeline.
type BinaryCmd struct {
	OpPos Pos
	Op    BinCmdOperator
	X, Y  *Stmt
}

func (b *BinaryCmd) Pos() Pos { return b.X.Pos() }
func (b *BinaryCmd) End() Pos { return b.Y.End() }

// IfClause represents an if statement. An "elif" is an IfClause as the Else
// of its parent IfClause.
type IfClause struct {
	IfPos, FiPos Pos
	Cond         []*Stmt
	Then         []*Stmt
	Else         Command // *IfClause for elif, *Block for else, or nil
}

func (c *IfClause) Pos() Pos { return c.IfPos }
func (c *IfClause) End() Pos { return c.FiPos + 2 }

// WhileClause represents a while or an until clause.
type WhileClause struct {
	WhilePos, DonePos Pos
	Until             bool
	Cond              []*Stmt
	Do                []*Stmt
}

func (w *WhileClause) Pos() Pos { return w.WhilePos }
func (w *WhileClause) End() Pos { return w.DonePos + 4 }

// ForClause represents a for clause iterating a name over words.
type ForClause struct {
	ForPos, DonePos Pos
	Name            *Lit
	InPos           Pos // invalid for the implicit "in $@" form
	Items           []*Word
	Do              []*Stmt
}

func (f *ForClause) Pos() Pos { return f.ForPos }
func (f *ForClause) End() Pos { return f.DonePos + 4 }

// CaseClause represents a case (switch) clause.
type CaseClause struct {
	CasePos, EsacPos Pos
	Word             *Word
	Items            []*CaseItem
}

func (c *CaseClause) Pos() Pos { return c.CasePos }
func (c *CaseClause) End() Pos { return c.EsacPos + 4 }

// CaseItem represents a pattern list within a [CaseClause].
type CaseItem struct {
	Patterns []*Word
	Stmts    []*Stmt
	OpPos    Pos // position of ";;", if any
}

// Block represents a series of commands executed in the current shell
// environment, within braces.
type Block struct {
	Lbrace, Rbrace Pos
	Stmts          []*Stmt
}

func (b *Block) Pos() Pos { return b.Lbrace }
func (b *Block) End() Pos { return b.Rbrace + 1 }

// Subshell represents a series of commands executed in a nested shell
// environment.
type Subshell struct {
	Lparen, Rparen Pos
	Stmts          []*Stmt
}

func (s *Subshell) Pos() Pos { return s.Lparen }
func (s *Subshell) End() Pos { return s.Rparen + 1 }

// FuncDecl represents the declaration of a function.
type FuncDecl struct {
	Position Pos
	Name     *Lit
	Body     *Stmt
}

func (f *FuncDecl) Pos() Pos { return f.Position }
func (f *FuncDecl) End() Pos { return f.Body.End() }

// Word represents a non-empty list of nodes that are contiguous to each
// other. A word is delimited by word boundaries.
type Word struct {
	Parts []WordPart
}

func (w *Word) Pos() Pos { return w.Parts[0].Pos() }
func (w *Word) End() Pos { return w.Parts[len(w.Parts)-1].End() }

// Lit returns the word as a literal string if all of its parts are literals,
// and an empty string otherwise.
func (w *Word) Lit() string {
	var s string
	for _, part := range w.Parts {
		lit, ok := part.(*Lit)
		if !ok {
			return ""
		}
		s += lit.Value
	}
	return s
}

// WordPart represents all nodes that can form part of a word.
type WordPart interface {
	Node
	wordPartNode()
}

func (*Lit) wordPartNode()       {}
func (*SglQuoted) wordPartNode() {}
func (*DblQuoted) wordPartNode() {}
func (*ParamExp) wordPartNode()  {}
func (*CmdSubst) wordPartNode()  {}
func (*ArithmExp) wordPartNode() {}

// Lit represents a string literal. Backslash escapes are kept intact, to be
// resolved at expansion time.
type Lit struct {
	ValuePos, ValueEnd Pos
	Value              string
}

func (l *Lit) Pos() Pos { return l.ValuePos }
func (l *Lit) End() Pos { return l.ValueEnd }

// SglQuoted represents a string within single quotes.
type SglQuoted struct {
	Left, Right Pos
	Value       string
}

func (q *SglQuoted) Pos() Pos { return q.Left }
func (q *SglQuoted) End() Pos { return q.Right + 1 }

// DblQuoted represents a list of nodes within double quotes.
type DblQuoted struct {
	Left, Right Pos
	Parts       []WordPart
}

func (q *DblQuoted) Pos() Pos { return q.Left }
func (q *DblQuoted) End() Pos { return q.Right + 1 }

// ParamExp represents a parameter expansion.
type ParamExp struct {
	Dollar, Rbrace Pos
	Short          bool // $a instead of ${a}
	Length         bool // ${#a}
	Param          *Lit
	Exp            *Expansion // ${a:-b} and friends
}

func (p *ParamExp) Pos() Pos { return p.Dollar }
func (p *ParamExp) End() Pos {
	if p.Rbrace.IsValid() {
		return p.Rbrace + 1
	}
	return p.Param.End()
}

// Expansion represents the modifier of a [ParamExp], such as ":-" plus its
// word in "${a:-b}".
type Expansion struct {
	Op   ParExpOperator
	Word *Word // may be nil, as in "${a:-}"
}

// CmdSubst represents a command substitution.
type CmdSubst struct {
	Left, Right Pos
	Stmts       []*Stmt
	Backquotes  bool
}

func (c *CmdSubst) Pos() Pos { return c.Left }
func (c *CmdSubst) End() Pos { return c.Right + 1 }

// ArithmExp represents an arithmetic expansion. The expression is kept as
// word parts; parameter expansions within it are expanded before the result
// is parsed and evaluated as an integer expression.
type ArithmExp struct {
	Left, Right Pos
	Parts       []WordPart
}

func (a *ArithmExp) Pos() Pos { return a.Left }
func (a *ArithmExp) End() Pos { return a.Right + 2 }

func posMax(p1, p2 Pos) Pos {
	if p2 > p1 {
		return p2
	}
	return p1
}

func stmtsPos(sts []*Stmt) Pos {
	if len(sts) == 0 {
		return defaultPos
	}
	return sts[0].Pos()
}

func stmtsEnd(sts []*Stmt) Pos {
	if len(sts) == 0 {
		return defaultPos
	}
	return sts[len(sts)-1].End()
}
