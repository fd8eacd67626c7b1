package forth

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

type tokKind int

const (
	tokWord tokKind = iota
	tokComment
)

// token is one lexical unit. For tokComment, text is the trimmed comment
// body; for tokWord it is the raw token, including quotes for string
// literals.
type token struct {
	kind tokKind
	text string
}

// tokenize splits source into tokens. Supported lexical forms:
//
//	whitespace      separates tokens
//	\ ...           line comment, dropped
//	( ... )         parenthesized comment, kept (doc extraction)
//	"..."           string literal with backslash escapes, one token
//
// Everything else runs to the next whitespace.
func tokenize(src string) ([]token, error) {
	var toks []token
	runes := []rune(src)
	i := 0
	for i < len(runes) {
		r := runes[i]
		if unicode.IsSpace(r) {
			i++
			continue
		}
		switch r {
		case '\\':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
		case '(':
			end := -1
			for j := i + 1; j < len(runes); j++ {
				if runes[j] == ')' {
					end = j
					break
				}
			}
			if end < 0 {
				return nil, errors.New("unterminated comment")
			}
			body := strings.TrimSpace(string(runes[i+1 : end]))
			toks = append(toks, token{kind: tokComment, text: body})
			i = end + 1
		case '"':
			j := i + 1
			for j < len(runes) {
				if runes[j] == '\\' && j+1 < len(runes) {
					j += 2
					continue
				}
				if runes[j] == '"' {
					break
				}
				j++
			}
			if j >= len(runes) {
				return nil, errors.New("unterminated string literal")
			}
			lit := string(runes[i : j+1])
			if _, ok := ParseLiteral(lit); !ok {
				return nil, fmt.Errorf("malformed string literal %s", lit)
			}
			toks = append(toks, token{kind: tokWord, text: lit})
			i = j + 1
		default:
			j := i
			for j < len(runes) && !unicode.IsSpace(runes[j]) {
				j++
			}
			toks = append(toks, token{kind: tokWord, text: string(runes[i:j])})
			i = j
		}
	}
	return toks, nil
}
