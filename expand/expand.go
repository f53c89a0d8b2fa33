// Copyright (c) 2024, the posh authors
// See LICENSE for licensing information

// Package expand implements the word expansion of the shell: tilde,
// parameter, command, and arithmetic expansion, field splitting, and
// pathname expansion, in that order.
package expand

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/poshsh/posh/pattern"
	"github.com/poshsh/posh/syntax"
)

// Context is the set of knobs that the expansion of words requires. Env is
// the only mandatory field.
type Context struct {
	Env Environ

	// NoGlob corresponds to the shell option that disables pathname
	// expansion.
	NoGlob bool
	// NoUnset corresponds to the shell option that makes the expansion
	// of unset parameters an error.
	NoUnset bool

	// CmdSubst runs a command substitution's statements, writing their
	// standard output to w. If nil, command substitutions are an error.
	CmdSubst func(ctx context.Context, w io.Writer, stmts []*syntax.Stmt)

	// OnError is called for each expansion error, such as a bad
	// arithmetic expression or an unset parameter under NoUnset. If nil,
	// errors cause a panic.
	OnError func(error)

	bufferAlloc bytes.Buffer

	ifs string
}

func (c *Context) prepareIFS() {
	vr := c.Env.Get("IFS")
	if !vr.IsSet() {
		c.ifs = " \t\n"
	} else {
		c.ifs = vr.String()
	}
}

func (c *Context) ifsRune(r rune) bool {
	for _, r2 := range c.ifs {
		if r == r2 {
			return true
		}
	}
	return false
}

// ifsWhitespace reports whether r is IFS whitespace: runs of it collapse
// into a single delimiter and never produce empty fields.
func (c *Context) ifsWhitespace(r rune) bool {
	return (r == ' ' || r == '\t' || r == '\n') && c.ifsRune(r)
}

// ifsSep reports whether r is a non-whitespace IFS character, each
// occurrence of which delimits a field.
func (c *Context) ifsSep(r rune) bool {
	return c.ifsRune(r) && !c.ifsWhitespace(r)
}

func (c *Context) ifsJoin(strs []string) string {
	sep := ""
	if c.ifs != "" {
		sep = c.ifs[:1]
	}
	return strings.Join(strs, sep)
}

func (c *Context) err(err error) {
	if c.OnError == nil {
		panic(err)
	}
	c.OnError(err)
}

func (c *Context) strBuilder() *bytes.Buffer {
	b := &c.bufferAlloc
	b.Reset()
	return b
}

func (c *Context) envGet(name string) string {
	return c.Env.Get(name).String()
}

func (c *Context) envSet(name, value string) {
	wenv, ok := c.Env.(WriteEnviron)
	if !ok {
		c.err(fmt.Errorf("set: %s: environment is read-only", name))
		return
	}
	if err := wenv.Set(name, Variable{Value: value}); err != nil {
		c.err(err)
	}
}

// Literal expands a single word without field splitting or pathname
// expansion, as used for assignment values, case words, and redirect
// targets other than those of a simple command.
func (c *Context) Literal(ctx context.Context, word *syntax.Word) string {
	if word == nil {
		return ""
	}
	c.prepareIFS()
	field := c.wordField(ctx, word.Parts, quoteNone, true)
	return c.fieldJoin(field)
}

// Document expands a word as if it were within double quotes, as used for
// unquoted here-document bodies.
func (c *Context) Document(ctx context.Context, word *syntax.Word) string {
	if word == nil {
		return ""
	}
	c.prepareIFS()
	field := c.wordField(ctx, word.Parts, quoteDouble, false)
	return c.fieldJoin(field)
}

// Pattern expands a word as a pattern: quoted parts have their pattern
// metacharacters escaped, so that only unquoted metacharacters are special.
// Used for case patterns.
func (c *Context) Pattern(ctx context.Context, word *syntax.Word) string {
	c.prepareIFS()
	field := c.wordField(ctx, word.Parts, quoteSingle, true)
	buf := c.strBuilder()
	for _, part := range field {
		if part.quote > quoteNone {
			buf.WriteString(pattern.QuoteMeta(part.val))
		} else {
			buf.WriteString(part.val)
		}
	}
	return buf.String()
}

// Fields expands a number of words, applying field splitting to the results
// of unquoted expansions and pathname expansion to the fields, as performed
// on the arguments of a simple command.
func (c *Context) Fields(ctx context.Context, words ...*syntax.Word) []string {
	c.prepareIFS()

	fields := make([]string, 0, len(words))
	dir := c.envGet("PWD")
	baseDir := pattern.QuoteMeta(dir)
	for _, word := range words {
		for _, field := range c.wordFields(ctx, word.Parts) {
			path, doGlob := c.escapedGlobField(field)
			var matches []string
			abs := filepath.IsAbs(path)
			if doGlob && !c.NoGlob {
				if !abs {
					path = filepath.Join(baseDir, path)
				}
				matches = glob(path)
			}
			if len(matches) == 0 {
				fields = append(fields, c.fieldJoin(field))
				continue
			}
			for _, match := range matches {
				if !abs {
					match, _ = filepath.Rel(dir, match)
				}
				fields = append(fields, match)
			}
		}
	}
	return fields
}

func (c *Context) fieldJoin(parts []fieldPart) string {
	switch len(parts) {
	case 0:
		return ""
	case 1: // short-cut without a string copy
		return parts[0].val
	}
	buf := c.strBuilder()
	for _, part := range parts {
		buf.WriteString(part.val)
	}
	return buf.String()
}

func (c *Context) escapedGlobField(parts []fieldPart) (escaped string, glob bool) {
	buf := c.strBuilder()
	for _, part := range parts {
		if part.quote > quoteNone {
			buf.WriteString(pattern.QuoteMeta(part.val))
			continue
		}
		buf.WriteString(part.val)
		if pattern.HasMeta(part.val) {
			glob = true
		}
	}
	if glob { // only copy the string if it will be used
		escaped = buf.String()
	}
	return escaped, glob
}

type fieldPart struct {
	val   string
	quote quoteLevel
}

type quoteLevel uint

const (
	quoteNone quoteLevel = iota
	quoteDouble
	quoteSingle
)

// wordField expands word parts into a single field without splitting.
// Tilde expansion is only applied to the first part when tilde is set.
func (c *Context) wordField(ctx context.Context, wps []syntax.WordPart, ql quoteLevel, tilde bool) []fieldPart {
	var field []fieldPart
	for i, wp := range wps {
		switch x := wp.(type) {
		case *syntax.Lit:
			s := x.Value
			if i == 0 && tilde {
				s = c.expandUser(s)
			}
			if ql == quoteDouble {
				s = unescapeDouble(s)
			} else {
				s = unescape(s)
			}
			field = append(field, fieldPart{val: s})
		case *syntax.SglQuoted:
			field = append(field, fieldPart{quote: quoteSingle, val: x.Value})
		case *syntax.DblQuoted:
			for _, part := range c.wordField(ctx, x.Parts, quoteDouble, false) {
				part.quote = quoteDouble
				field = append(field, part)
			}
		case *syntax.ParamExp:
			field = append(field, fieldPart{val: c.paramExp(ctx, x)})
		case *syntax.CmdSubst:
			field = append(field, fieldPart{val: c.cmdSubst(ctx, x)})
		case *syntax.ArithmExp:
			field = append(field, fieldPart{val: c.arithmExp(ctx, x)})
		default:
			panic(fmt.Sprintf("unhandled word part: %T", x))
		}
	}
	return field
}

// unescape removes unquoted backslashes, keeping the bytes they escape.
func unescape(s string) string {
	if !strings.Contains(s, "\\") {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b == '\\' && i+1 < len(s) {
			i++
			b = s[i]
		}
		sb.WriteByte(b)
	}
	return sb.String()
}

// unescapeDouble removes the backslashes that are special within double
// quotes, those before '$', '`', '"', and '\'.
func unescapeDouble(s string) string {
	if !strings.Contains(s, "\\") {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case '"', '\\', '$', '`':
				continue
			}
		}
		sb.WriteByte(b)
	}
	return sb.String()
}

func (c *Context) cmdSubst(ctx context.Context, cs *syntax.CmdSubst) string {
	if c.CmdSubst == nil {
		c.err(fmt.Errorf("command substitution is unsupported here"))
		return ""
	}
	buf := c.strBuilder()
	c.CmdSubst(ctx, buf, cs.Stmts)
	return strings.TrimRight(buf.String(), "\n")
}

func (c *Context) arithmExp(ctx context.Context, ae *syntax.ArithmExp) string {
	expr := c.fieldJoin(c.wordField(ctx, ae.Parts, quoteDouble, false))
	n, err := c.Arith(expr)
	if err != nil {
		c.err(err)
		return ""
	}
	return strconv.FormatInt(n, 10)
}

// wordFields expands word parts into any number of fields, splitting the
// results of unquoted expansions on the current IFS.
func (c *Context) wordFields(ctx context.Context, wps []syntax.WordPart) [][]fieldPart {
	var fields [][]fieldPart
	var curField []fieldPart
	allowEmpty := false
	flush := func() {
		if len(curField) == 0 {
			return
		}
		fields = append(fields, curField)
		curField = nil
	}
	// splitAdd splits val on the current IFS: runs of IFS whitespace act as
	// one delimiter and never produce empty fields, while each
	// non-whitespace IFS character delimits a field, so adjacent ones
	// produce empty fields. A trailing delimiter ends the field without
	// starting an empty one.
	splitAdd := func(val string) {
		rs := []rune(val)
		i := 0
		skipWS := func() {
			for i < len(rs) && c.ifsWhitespace(rs[i]) {
				i++
			}
		}
		for i < len(rs) {
			start := i
			for i < len(rs) && !c.ifsRune(rs[i]) {
				i++
			}
			piece := string(rs[start:i])
			if i >= len(rs) {
				// no trailing delimiter: the piece joins any parts
				// that follow
				curField = append(curField, fieldPart{val: piece})
				return
			}
			skipWS()
			sep := false
			if i < len(rs) && c.ifsSep(rs[i]) {
				sep = true
				i++
			}
			// whitespace alone does not delimit an empty field
			if piece != "" || sep || len(curField) > 0 {
				curField = append(curField, fieldPart{val: piece})
				flush()
			}
		}
	}
	for i, wp := range wps {
		switch x := wp.(type) {
		case *syntax.Lit:
			s := x.Value
			if i == 0 {
				s = c.expandUser(s)
			}
			curField = append(curField, fieldPart{val: unescape(s)})
		case *syntax.SglQuoted:
			allowEmpty = true
			curField = append(curField, fieldPart{quote: quoteSingle, val: x.Value})
		case *syntax.DblQuoted:
			if len(x.Parts) == 1 {
				pe, _ := x.Parts[0].(*syntax.ParamExp)
				if elems := c.quotedElems(pe); elems != nil {
					// "$@" expands to one field per parameter,
					// and to none at all when there are none
					for i, elem := range elems {
						if i > 0 {
							flush()
						}
						curField = append(curField, fieldPart{
							quote: quoteDouble,
							val:   elem,
						})
					}
					continue
				}
			}
			allowEmpty = true
			for _, part := range c.wordField(ctx, x.Parts, quoteDouble, false) {
				part.quote = quoteDouble
				curField = append(curField, part)
			}
		case *syntax.ParamExp:
			splitAdd(c.paramExp(ctx, x))
		case *syntax.CmdSubst:
			splitAdd(c.cmdSubst(ctx, x))
		case *syntax.ArithmExp:
			curField = append(curField, fieldPart{val: c.arithmExp(ctx, x)})
		default:
			panic(fmt.Sprintf("unhandled word part: %T", x))
		}
	}
	flush()
	if allowEmpty && len(fields) == 0 {
		fields = append(fields, curField)
	}
	return fields
}

// quotedElems reports whether a parameter expansion is exactly "$@", which
// expands to one field per positional parameter.
func (c *Context) quotedElems(pe *syntax.ParamExp) []string {
	if pe == nil || pe.Length || pe.Exp != nil || pe.Param.Value != "@" {
		return nil
	}
	elems, _ := c.Env.Get("@").Value.([]string)
	return elems
}

func (c *Context) expandUser(field string) string {
	if len(field) == 0 || field[0] != '~' {
		return field
	}
	name := field[1:]
	rest := ""
	if i := strings.Index(name, "/"); i >= 0 {
		rest = name[i:]
		name = name[:i]
	}
	if name == "" {
		return c.envGet("HOME") + rest
	}
	u, err := user.Lookup(name)
	if err != nil {
		return field
	}
	return u.HomeDir + rest
}

// glob matches the pattern against the file system, one path component at a
// time, returning the sorted matches. The pattern must be absolute.
func glob(pat string) []string {
	parts := strings.Split(pat, string(filepath.Separator))
	matches := []string{string(filepath.Separator)}
	if parts[0] == "" {
		parts = parts[1:]
	}
	for _, part := range parts {
		if part == "" {
			continue
		}
		expr, err := pattern.Regexp(part, pattern.EntireString)
		if err != nil {
			return nil
		}
		rx := regexp.MustCompile(expr)
		var newMatches []string
		for _, dir := range matches {
			newMatches = globDir(dir, rx, newMatches)
		}
		matches = newMatches
	}
	return matches
}

func globDir(dir string, rx *regexp.Regexp, matches []string) []string {
	d, err := os.Open(dir)
	if err != nil {
		return matches
	}
	defer d.Close()

	names, _ := d.Readdirnames(-1)
	sort.Strings(names)

	for _, name := range names {
		// hidden entries require an explicit leading dot
		if !strings.HasPrefix(rx.String(), `^\.`) && name[0] == '.' {
			continue
		}
		if rx.MatchString(name) {
			matches = append(matches, filepath.Join(dir, name))
		}
	}
	return matches
}
