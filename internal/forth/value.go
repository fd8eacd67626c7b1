package forth

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind discriminates the value types the machine can hold.
type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindString
	KindBool
)

// Value is one cell on the data stack.
type Value struct {
	Kind  Kind
	Int   int64
	Float float64
	Str   string
	Bool  bool
}

func IntValue(i int64) Value     { return Value{Kind: KindInt, Int: i} }
func FloatValue(f float64) Value { return Value{Kind: KindFloat, Float: f} }
func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }
func BoolValue(b bool) Value     { return Value{Kind: KindBool, Bool: b} }

// Literal renders the value in source form, such that feeding the result to
// ParseLiteral yields the value back. This is the serialization used for
// stack snapshots crossing the worker boundary.
func (v Value) Literal() string {
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		s := strconv.FormatFloat(v.Float, 'g', -1, 64)
		// A float literal must stay distinguishable from an int literal.
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		return s
	case KindString:
		return strconv.Quote(v.Str)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	default:
		return ""
	}
}

// Display renders the value for user-facing output (`.` and friends):
// strings print their contents without quotes, everything else prints its
// literal form.
func (v Value) Display() string {
	if v.Kind == KindString {
		return v.Str
	}
	return v.Literal()
}

// ParseLiteral decodes one source token into a value: integers, floats
// (containing '.' or an exponent), double-quoted strings, and the booleans
// true/false. Anything else is not a literal.
func ParseLiteral(tok string) (Value, bool) {
	if tok == "" {
		return Value{}, false
	}
	switch tok {
	case "true":
		return BoolValue(true), true
	case "false":
		return BoolValue(false), true
	}
	if tok[0] == '"' {
		s, err := strconv.Unquote(tok)
		if err != nil {
			return Value{}, false
		}
		return StringValue(s), true
	}
	if i, err := strconv.ParseInt(tok, 10, 64); err == nil {
		return IntValue(i), true
	}
	if strings.ContainsAny(tok, ".eE") {
		if f, err := strconv.ParseFloat(tok, 64); err == nil {
			return FloatValue(f), true
		}
	}
	return Value{}, false
}

// parseStackLiteral is ParseLiteral with an error for snapshot restoration,
// where a non-literal is a malformed snapshot rather than a word.
func parseStackLiteral(tok string) (Value, error) {
	v, ok := ParseLiteral(tok)
	if !ok {
		return Value{}, fmt.Errorf("not a value literal: %q", tok)
	}
	return v, nil
}
