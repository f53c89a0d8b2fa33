// Copyright (c) 2024, the posh authors
// See LICENSE for licensing information

package syntax

type token uint8

// The list of all possible tokens.
const (
	illegalTok token = iota
	_EOF
	_Newl    // \n
	_Lit     // a word, possibly with non-literal parts
	_LitWord // a word consisting of a single literal part

	and       // &
	andAnd    // &&
	orOr      // ||
	or        // |
	semicolon // ;
	dblSemi   // ;;
	leftParen // (
	rghtParen // )

	rdrOut   // >
	appOut   // >>
	rdrIn    // <
	rdrInOut // <>
	dplIn    // <&
	dplOut   // >&
	hdoc     // <<
	dashHdoc // <<-
)

var tokNames = map[token]string{
	illegalTok: "illegal",
	_EOF:       "EOF",
	_Newl:      "newline",
	_Lit:       "word",
	_LitWord:   "word",

	and:       "&",
	andAnd:    "&&",
	orOr:      "||",
	or:        "|",
	semicolon: ";",
	dblSemi:   ";;",
	leftParen: "(",
	rghtParen: ")",

	rdrOut:   ">",
	appOut:   ">>",
	rdrIn:    "<",
	rdrInOut: "<>",
	dplIn:    "<&",
	dplOut:   ">&",
	hdoc:     "<<",
	dashHdoc: "<<-",
}

func (t token) String() string { return tokNames[t] }

// RedirOperator is the operator of a [Redirect].
type RedirOperator token

const (
	RdrOut   = RedirOperator(rdrOut)   // >
	AppOut   = RedirOperator(appOut)   // >>
	RdrIn    = RedirOperator(rdrIn)    // <
	RdrInOut = RedirOperator(rdrInOut) // <>
	DplIn    = RedirOperator(dplIn)    // <&
	DplOut   = RedirOperator(dplOut)   // >&
	Hdoc     = RedirOperator(hdoc)     // <<
	DashHdoc = RedirOperator(dashHdoc) // <<-
)

func (o RedirOperator) String() string { return token(o).String() }

// BinCmdOperator is the operator of a [BinaryCmd].
type BinCmdOperator token

const (
	AndStmt = BinCmdOperator(andAnd) // &&
	OrStmt  = BinCmdOperator(orOr)   // ||
	Pipe    = BinCmdOperator(or)     // |
)

func (o BinCmdOperator) String() string { return token(o).String() }

// ParExpOperator is the operator of a [ParamExp] expansion, such as the ":-"
// in "${foo:-bar}".
type ParExpOperator uint8

const (
	SubstMinus    ParExpOperator = iota + 1 // -
	SubstColMinus                           // :-
	SubstAssgn                              // =
	SubstColAssgn                           // :=
	SubstPlus                               // +
	SubstColPlus                            // :+
	SubstQuest                              // ?
	SubstColQuest                           // :?

	RemSmallSuffix // %
	RemLargeSuffix // %%
	RemSmallPrefix // #
	RemLargePrefix // ##
)

var parExpNames = [...]string{
	SubstMinus:     "-",
	SubstColMinus:  ":-",
	SubstAssgn:     "=",
	SubstColAssgn:  ":=",
	SubstPlus:      "+",
	SubstColPlus:   ":+",
	SubstQuest:     "?",
	SubstColQuest:  ":?",
	RemSmallSuffix: "%",
	RemLargeSuffix: "%%",
	RemSmallPrefix: "#",
	RemLargePrefix: "##",
}

func (o ParExpOperator) String() string { return parExpNames[o] }

// Pos is the internal representation of a position within a source file: a
// byte offset, starting at 1. The zero value means an unknown position.
type Pos int

const defaultPos = Pos(0)

// IsValid reports whether the position is valid, that is, set.
func (p Pos) IsValid() bool { return p > 0 }

// Position describes a position within a source file, including the line and
// column location. A Position is valid if the line number is > 0.
type Position struct {
	Offset int // byte offset, starting at 0
	Line   int // line number, starting at 1
	Column int // column number, starting at 1 (in bytes)
}

// ValidName reports whether the string is a valid shell variable name: a
// letter or underscore followed by letters, digits, or underscores.
func ValidName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
