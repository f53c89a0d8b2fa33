// Copyright (c) 2024, the posh authors
// See LICENSE for licensing information

package expand

import "strings"

// ReadFields splits a line read by the read builtin into at most n fields
// using the current IFS, following the splitting rules for read: leading
// and trailing IFS whitespace is trimmed; runs of IFS whitespace collapse
// into one delimiter, while non-whitespace IFS characters each delimit a
// field, producing empty fields between adjacent occurrences. When the
// input has more fields than n, the last field receives the remainder of
// the line with its separators intact. With n < 0 there is no field limit.
//
// Unless raw is set, a backslash escapes the following character, keeping
// it from acting as a field separator.
func (c *Context) ReadFields(s string, n int, raw bool) []string {
	c.prepareIFS()
	rs := []rune(s)
	var fields []string
	i := 0
	skipWS := func() {
		for i < len(rs) && c.ifsWhitespace(rs[i]) {
			i++
		}
	}
	skipWS()
	for i < len(rs) {
		if n > 0 && len(fields) == n-1 {
			// the last name takes the rest of the line, with
			// trailing IFS whitespace removed
			end := len(rs)
			for end > i && c.ifsWhitespace(rs[end-1]) {
				end--
			}
			fields = append(fields, unescapeRunes(rs[i:end], raw))
			return fields
		}
		var sb strings.Builder
		for i < len(rs) {
			r := rs[i]
			if !raw && r == '\\' && i+1 < len(rs) {
				sb.WriteRune(rs[i+1])
				i += 2
				continue
			}
			if c.ifsRune(r) {
				break
			}
			sb.WriteRune(r)
			i++
		}
		fields = append(fields, sb.String())
		// delimiter: optional whitespace around at most one
		// non-whitespace IFS character
		skipWS()
		if i < len(rs) && c.ifsSep(rs[i]) {
			i++
			skipWS()
		}
	}
	return fields
}

func unescapeRunes(rs []rune, raw bool) string {
	var sb strings.Builder
	for i := 0; i < len(rs); i++ {
		if !raw && rs[i] == '\\' && i+1 < len(rs) {
			i++
		}
		sb.WriteRune(rs[i])
	}
	return sb.String()
}
