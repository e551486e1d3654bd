// Package util provides string helpers for command line arguments.
package util

import (
	"errors"
	"strings"
)

// ErrUnterminatedQuote is returned by SplitFields for an unclosed quote.
var ErrUnterminatedQuote = errors.New("unterminated quote")

// SplitFields splits s on whitespace. A field wrapped in double quotes may
// contain spaces, and "" inside it stands for one quote character. The
// returned fields are unquoted.
func SplitFields(s string) ([]string, error) {
	var (
		fields  []string
		cur     strings.Builder
		inField bool
		quoted  bool
	)

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quoted:
			if c != '"' {
				cur.WriteByte(c)
				continue
			}
			if i+1 < len(s) && s[i+1] == '"' {
				cur.WriteByte('"')
				i++
				continue
			}
			quoted = false
		case c == '"' && !inField:
			quoted, inField = true, true
		case c == ' ' || c == '\t':
			if inField {
				fields = append(fields, cur.String())
				cur.Reset()
				inField = false
			}
		default:
			cur.WriteByte(c)
			inField = true
		}
	}

	if quoted {
		return nil, ErrUnterminatedQuote
	}
	if inField {
		fields = append(fields, cur.String())
	}
	return fields, nil
}
