// Copyright (c) 2024, the posh authors
// See LICENSE for licensing information

// Package pattern implements POSIX shell pattern matching notation, also
// known as wildcards or globbing, by translating patterns into regular
// expressions.
package pattern

import (
	"fmt"
	"regexp"
	"strings"
)

// Mode controls how a pattern is translated by [Regexp].
type Mode uint

const (
	// EntireString anchors the pattern so that it must match the entire
	// string, as in pathname expansion and case patterns.
	EntireString Mode = 1 << iota

	// NoSlash makes '*' and '?' stop at a path separator. Pathname
	// expansion matches one path component at a time.
	NoSlash

	// Shortest makes '*' match as few characters as possible, for the
	// shortest-match forms of suffix and prefix removal.
	Shortest
)

// SyntaxError is returned by [Regexp] when a pattern is malformed, such as
// an unterminated bracket expression.
type SyntaxError struct {
	msg string
}

func (e SyntaxError) Error() string { return e.msg }

func syntaxErrf(format string, args ...any) SyntaxError {
	return SyntaxError{msg: fmt.Sprintf(format, args...)}
}

var validClasses = map[string]bool{
	"alnum": true, "alpha": true, "blank": true, "cntrl": true,
	"digit": true, "graph": true, "lower": true, "print": true,
	"punct": true, "space": true, "upper": true, "xdigit": true,
}

// charClass recognizes a leading "[:name:]" inside a bracket expression,
// returning the consumed prefix.
func charClass(s string) (string, error) {
	if !strings.HasPrefix(s, "[:") {
		return "", nil
	}
	end := strings.Index(s, ":]")
	if end < 0 {
		return "", syntaxErrf("[: was not matched with a closing :]")
	}
	name := s[2:end]
	if !validClasses[name] {
		return "", syntaxErrf("invalid character class: %q", name)
	}
	return s[:end+2], nil
}

// Regexp turns a shell pattern into a regular expression string usable with
// [regexp.Compile]. An unescaped '*' matches any sequence of characters, '?'
// matches any single character, and '[...]' matches a bracket expression.
// A backslash escapes the following character.
func Regexp(pat string, mode Mode) (string, error) {
	needsWork := false
loop:
	for _, r := range pat {
		switch r {
		// pattern metacharacters plus regexp metacharacters that
		// would need escaping
		case '*', '?', '[', '\\', '.', '+', '(', ')', '|', ']',
			'{', '}', '^', '$':
			needsWork = true
			break loop
		}
	}
	if !needsWork && mode&EntireString == 0 { // short-cut without a copy
		return pat, nil
	}
	var sb strings.Builder
	if mode&EntireString != 0 {
		sb.WriteString("^")
	}
	for i := 0; i < len(pat); i++ {
		switch c := pat[i]; c {
		case '*':
			if mode&NoSlash != 0 {
				sb.WriteString("[^/]*")
			} else {
				sb.WriteString(".*")
			}
			if mode&Shortest != 0 {
				sb.WriteString("?")
			}
		case '?':
			if mode&NoSlash != 0 {
				sb.WriteString("[^/]")
			} else {
				sb.WriteString(".")
			}
		case '\\':
			if i++; i >= len(pat) {
				return "", syntaxErrf(`\ at end of pattern`)
			}
			sb.WriteString(regexp.QuoteMeta(string(pat[i])))
		case '[':
			sb.WriteByte(c)
			if i++; i >= len(pat) {
				return "", syntaxErrf("[ was not matched with a closing ]")
			}
			if c = pat[i]; c == '!' || c == '^' {
				sb.WriteByte('^')
				if i++; i >= len(pat) {
					return "", syntaxErrf("[ was not matched with a closing ]")
				}
				c = pat[i]
			}
			// the first character may be an unescaped ']'
			sb.WriteByte(c)
			for {
				if i++; i >= len(pat) {
					return "", syntaxErrf("[ was not matched with a closing ]")
				}
				if c = pat[i]; c == ']' {
					break
				}
				if c == '[' {
					name, err := charClass(pat[i:])
					if err != nil {
						return "", err
					}
					if name != "" {
						sb.WriteString(name)
						i += len(name) - 1
						continue
					}
				}
				sb.WriteByte(c)
			}
			sb.WriteByte(']')
		default:
			sb.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	if mode&EntireString != 0 {
		sb.WriteString("$")
	}
	return sb.String(), nil
}

// HasMeta reports whether a string contains any unescaped pattern
// metacharacters: '*', '?', or '['. When it returns false, the pattern can
// only ever match one string.
func HasMeta(pat string) bool {
	for i := 0; i < len(pat); i++ {
		switch pat[i] {
		case '\\':
			i++
		case '*', '?', '[':
			return true
		}
	}
	return false
}

// QuoteMeta returns a pattern matching the literal text, with all pattern
// metacharacters escaped.
func QuoteMeta(pat string) string {
	needsWork := false
loop:
	for _, r := range pat {
		switch r {
		case '*', '?', '[', '\\':
			needsWork = true
			break loop
		}
	}
	if !needsWork { // short-cut without a copy
		return pat
	}
	var sb strings.Builder
	for _, r := range pat {
		switch r {
		case '*', '?', '[', '\\':
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// Match reports whether the name matches the shell pattern, anchored to the
// entire string. Malformed patterns match nothing.
func Match(pat, name string) bool {
	expr, err := Regexp(pat, EntireString)
	if err != nil {
		return false
	}
	rx, err := regexp.Compile(expr)
	if err != nil {
		return false
	}
	return rx.MatchString(name)
}
