// Package forth implements the evaluator unit: a small Forth-style
// stack-language engine living behind the pool's Evaluator interface.
//
// One Machine is owned by exactly one worker host and is never called
// concurrently. Between tasks the host resets it to a clean baseline and
// restores the caller's snapshot: stack values first, then user-defined
// words, in that order.
//
// Language-level failures (unknown word, stack underflow, type mismatch,
// division by zero, malformed definitions) are reported as a StatusError
// result; the only Go error Execute returns is the run context's
// cancellation, which is the cooperative interruption the host asked for.
package forth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"stackpool/internal/pool"
)

// maxCallDepth bounds user-word recursion.
const maxCallDepth = 64

// definition is one user-defined word. The body is kept both in source form
// (for snapshots) and tokenized (so calls do not re-tokenize).
type definition struct {
	name string
	body string
	doc  string
	toks []token
}

// Machine is one evaluator instance: a data stack, a user dictionary in
// definition order, and the output accumulated by the current run.
type Machine struct {
	stack []Value
	words map[string]*definition
	order []string
	out   strings.Builder
	calls int
}

// New returns an empty machine.
func New() *Machine {
	return &Machine{words: make(map[string]*definition)}
}

// Factory adapts New to the pool's evaluator factory signature.
func Factory() (pool.Evaluator, error) {
	return New(), nil
}

// Reset discards all machine state.
func (m *Machine) Reset() {
	m.stack = nil
	m.words = make(map[string]*definition)
	m.order = nil
	m.out.Reset()
	m.calls = 0
}

// RestoreState loads a snapshot: stack values first, then definitions.
// Definitions are stored, not executed; their bodies are tokenized eagerly
// so malformed snapshots surface here rather than at first call.
func (m *Machine) RestoreState(stack []string, defs []pool.Definition) error {
	for i, lit := range stack {
		v, err := parseStackLiteral(lit)
		if err != nil {
			return fmt.Errorf("stack value %d: %w", i, err)
		}
		m.stack = append(m.stack, v)
	}
	for _, d := range defs {
		if d.Name == "" {
			return errors.New("definition with empty name")
		}
		toks, err := tokenize(d.Body)
		if err != nil {
			return fmt.Errorf("definition %q: %w", d.Name, err)
		}
		m.define(d.Name, d.Body, d.Doc, toks)
	}
	return nil
}

// Execute runs a program against the current machine state.
func (m *Machine) Execute(ctx context.Context, program string) (*pool.ExecuteResult, error) {
	m.out.Reset()
	toks, err := tokenize(program)
	if err != nil {
		return m.errorResult(err), nil
	}
	if err := m.exec(ctx, toks); err != nil {
		if cerr := ctx.Err(); cerr != nil && errors.Is(err, cerr) {
			return nil, err
		}
		return m.errorResult(err), nil
	}
	return &pool.ExecuteResult{
		Status: pool.StatusOK,
		Output: m.out.String(),
		State:  m.Snapshot(),
	}, nil
}

// Snapshot serializes the machine's current state.
func (m *Machine) Snapshot() pool.Snapshot {
	s := pool.Snapshot{}
	if len(m.stack) > 0 {
		s.Stack = make([]string, len(m.stack))
		for i, v := range m.stack {
			s.Stack[i] = v.Literal()
		}
	}
	if len(m.order) > 0 {
		s.Definitions = make([]pool.Definition, len(m.order))
		for i, name := range m.order {
			d := m.words[name]
			s.Definitions[i] = pool.Definition{Name: d.name, Body: d.body, Doc: d.doc}
		}
	}
	return s
}

func (m *Machine) errorResult(err error) *pool.ExecuteResult {
	return &pool.ExecuteResult{
		Status: pool.StatusError,
		Output: err.Error(),
		State:  m.Snapshot(),
	}
}

// Incomplete reports whether src ends inside an unclosed definition, so an
// interactive caller can keep reading continuation lines before executing.
func Incomplete(src string) bool {
	toks, err := tokenize(src)
	if err != nil {
		return false
	}
	open := 0
	for _, t := range toks {
		if t.kind != tokWord {
			continue
		}
		switch t.text {
		case ":":
			open++
		case ";":
			if open > 0 {
				open--
			}
		}
	}
	return open > 0
}

// exec interprets a token sequence, checking for cooperative interruption
// between tokens.
func (m *Machine) exec(ctx context.Context, toks []token) error {
	for i := 0; i < len(toks); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		t := toks[i]
		if t.kind == tokComment {
			continue
		}
		switch t.text {
		case ":":
			end, err := m.compile(toks, i)
			if err != nil {
				return err
			}
			i = end
		case ";":
			return errors.New("\";\" outside a definition")
		default:
			if v, ok := ParseLiteral(t.text); ok {
				m.push(v)
				continue
			}
			if err := m.call(ctx, t.text); err != nil {
				return err
			}
		}
	}
	return nil
}

// compile consumes a ": name ( doc ) body ;" definition starting at the ":"
// token and returns the index of the terminating ";". The first comment in
// the body becomes the word's description.
func (m *Machine) compile(toks []token, start int) (int, error) {
	i := start + 1
	for i < len(toks) && toks[i].kind == tokComment {
		i++
	}
	if i >= len(toks) {
		return 0, errors.New("\":\" without a word name")
	}
	name := toks[i].text
	if name == ":" || name == ";" {
		return 0, fmt.Errorf("invalid word name %q", name)
	}
	if _, isLit := ParseLiteral(name); isLit {
		return 0, fmt.Errorf("invalid word name %q: literals cannot be redefined", name)
	}

	doc := ""
	var body []token
	var parts []string
	for j := i + 1; j < len(toks); j++ {
		t := toks[j]
		if t.kind == tokComment {
			if doc == "" {
				doc = t.text
			}
			continue
		}
		if t.text == ";" {
			m.define(name, strings.Join(parts, " "), doc, body)
			return j, nil
		}
		if t.text == ":" {
			return 0, fmt.Errorf("nested definition inside %q", name)
		}
		body = append(body, t)
		parts = append(parts, t.text)
	}
	return 0, fmt.Errorf("unterminated definition of %q", name)
}

// define adds or replaces a word. Redefinition keeps the word's original
// position in definition order, so snapshots replay identically.
func (m *Machine) define(name, body, doc string, toks []token) {
	if d, ok := m.words[name]; ok {
		d.body = body
		d.doc = doc
		d.toks = toks
		return
	}
	m.words[name] = &definition{name: name, body: body, doc: doc, toks: toks}
	m.order = append(m.order, name)
}

// call executes a word: user definitions shadow builtins, so users may
// redefine anything.
func (m *Machine) call(ctx context.Context, name string) error {
	if d, ok := m.words[name]; ok {
		if m.calls >= maxCallDepth {
			return fmt.Errorf("call depth exceeded in %q", name)
		}
		m.calls++
		err := m.exec(ctx, d.toks)
		m.calls--
		return err
	}
	if fn, ok := builtins[name]; ok {
		return fn(m)
	}
	return fmt.Errorf("unknown word: %q", name)
}

func (m *Machine) push(v Value) {
	m.stack = append(m.stack, v)
}

func (m *Machine) pop() (Value, error) {
	if len(m.stack) == 0 {
		return Value{}, errors.New("stack underflow")
	}
	v := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return v, nil
}

func (m *Machine) peek(depth int) (Value, error) {
	if len(m.stack) <= depth {
		return Value{}, errors.New("stack underflow")
	}
	return m.stack[len(m.stack)-1-depth], nil
}
