// Copyright (c) 2024, the posh authors
// See LICENSE for licensing information

package expand

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrFormatStop is returned by Format when a %b argument contained the \c
// escape, which stops all further output.
var ErrFormatStop = errors.New("\\c found, stopping output")

// NumParseError is a non-fatal formatting error: an argument for a numeric
// conversion was not a valid number. The conversion uses zero instead.
type NumParseError struct {
	Arg string
}

func (e NumParseError) Error() string {
	return fmt.Sprintf("%s: expected a numeric value", e.Arg)
}

// Format interprets a printf format string with the given arguments,
// returning the produced text and the number of arguments consumed.
//
// Conversions are %d %i %o %u %x %X %c %s %b and %%, with the optional
// flags '-', '0', '+', and ' ', a field width, and a precision. Backslash
// escapes are interpreted in the format itself and, additionally with \0NNN
// and \c, in the arguments of %b conversions. A non-numeric argument to a
// numeric conversion formats as zero and makes the returned error a
// [NumParseError]; callers are expected to report it and carry on. A %b
// argument containing \c truncates the output and returns [ErrFormatStop].
//
// A format with conversions is typically applied repeatedly until all
// arguments are consumed, which is the caller's loop.
func (c *Context) Format(format string, args []string) (string, int, error) {
	var sb strings.Builder
	consumed := 0
	var numErr error
	nextArg := func() string {
		if consumed < len(args) {
			s := args[consumed]
			consumed++
			return s
		}
		return ""
	}
	for i := 0; i < len(format); {
		switch b := format[i]; b {
		case '\\':
			out, n, _ := escSeq(format[i:], false)
			sb.WriteString(out)
			i += n
		case '%':
			i++
			if i < len(format) && format[i] == '%' {
				sb.WriteByte('%')
				i++
				continue
			}
			start := i
			for i < len(format) && strings.IndexByte("-+0 ", format[i]) >= 0 {
				i++
			}
			for i < len(format) && format[i] >= '0' && format[i] <= '9' {
				i++
			}
			if i < len(format) && format[i] == '.' {
				i++
				for i < len(format) && format[i] >= '0' && format[i] <= '9' {
					i++
				}
			}
			if i >= len(format) {
				return "", 0, fmt.Errorf("missing format character")
			}
			spec := format[start:i]
			verb := format[i]
			i++
			switch verb {
			case 'd', 'i':
				n, err := parseNum(nextArg())
				if err != nil && numErr == nil {
					numErr = err
				}
				fmt.Fprintf(&sb, "%"+spec+"d", n)
			case 'u':
				n, err := parseNum(nextArg())
				if err != nil && numErr == nil {
					numErr = err
				}
				fmt.Fprintf(&sb, "%"+spec+"d", uint64(n))
			case 'o', 'x', 'X':
				n, err := parseNum(nextArg())
				if err != nil && numErr == nil {
					numErr = err
				}
				fmt.Fprintf(&sb, "%"+spec+string(verb), uint64(n))
			case 'c':
				arg := nextArg()
				s := ""
				for _, r := range arg {
					s = string(r)
					break
				}
				fmt.Fprintf(&sb, "%"+spec+"s", s)
			case 's':
				fmt.Fprintf(&sb, "%"+spec+"s", nextArg())
			case 'b':
				arg := nextArg()
				out, stopped := escArg(arg)
				fmt.Fprintf(&sb, "%"+spec+"s", out)
				if stopped {
					return sb.String(), consumed, ErrFormatStop
				}
			default:
				return "", 0, fmt.Errorf("%%%c: invalid directive", verb)
			}
		default:
			sb.WriteByte(b)
			i++
		}
	}
	return sb.String(), consumed, numErr
}

// parseNum parses a printf numeric argument: decimal, octal with a leading
// 0, or hexadecimal with 0x; a leading single or double quote yields the
// numeric value of the following character.
func parseNum(arg string) (int64, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return 0, nil
	}
	if arg[0] == '\'' || arg[0] == '"' {
		for _, r := range arg[1:] {
			return int64(r), nil
		}
		return 0, NumParseError{Arg: arg}
	}
	n, err := strconv.ParseInt(arg, 0, 64)
	if err != nil {
		return 0, NumParseError{Arg: arg}
	}
	return n, nil
}

// escArg interprets the backslash escapes of a %b argument.
func escArg(arg string) (string, bool) {
	var sb strings.Builder
	for i := 0; i < len(arg); {
		if arg[i] != '\\' {
			sb.WriteByte(arg[i])
			i++
			continue
		}
		out, n, stop := escSeq(arg[i:], true)
		if stop {
			return sb.String(), true
		}
		sb.WriteString(out)
		i += n
	}
	return sb.String(), false
}

// escSeq interprets one backslash escape at the start of s, returning the
// replacement text and the number of bytes consumed. The \0NNN and \c
// forms are only recognized in %b arguments.
func escSeq(s string, inBArg bool) (string, int, bool) {
	if len(s) < 2 {
		return "\\", 1, false
	}
	switch b := s[1]; b {
	case 'a':
		return "\a", 2, false
	case 'b':
		return "\b", 2, false
	case 'f':
		return "\f", 2, false
	case 'n':
		return "\n", 2, false
	case 'r':
		return "\r", 2, false
	case 't':
		return "\t", 2, false
	case 'v':
		return "\v", 2, false
	case '\\':
		return "\\", 2, false
	case '\'':
		return "'", 2, false
	case '"':
		return `"`, 2, false
	case 'c':
		if inBArg {
			return "", 2, true
		}
	case 'x':
		n := 0
		val := 0
		for n < 2 && 2+n < len(s) {
			d := hexVal(s[2+n])
			if d < 0 {
				break
			}
			val = val*16 + d
			n++
		}
		if n > 0 {
			return string([]byte{byte(val)}), 2 + n, false
		}
	case '0', '1', '2', '3', '4', '5', '6', '7':
		i := 1
		if b == '0' && inBArg {
			i = 2 // \0NNN
		}
		n := 0
		val := 0
		for n < 3 && i+n < len(s) && s[i+n] >= '0' && s[i+n] <= '7' {
			val = val*8 + int(s[i+n]-'0')
			n++
		}
		if n > 0 || i == 2 {
			return string([]byte{byte(val)}), i + n, false
		}
	}
	// unknown escapes are kept as-is
	return s[:2], 2, false
}

func hexVal(b byte) int {
	switch {
	case b >= '0' && b <= '9':
		return int(b - '0')
	case b >= 'a' && b <= 'f':
		return int(b-'a') + 10
	case b >= 'A' && b <= 'F':
		return int(b-'A') + 10
	}
	return -1
}
