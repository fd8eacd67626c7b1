package forth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// builtinFn is one primitive word.
type builtinFn func(m *Machine) error

// builtins is the core dictionary. User definitions shadow these.
var builtins = map[string]builtinFn{
	// arithmetic
	"+":      wordAdd,
	"-":      wordSub,
	"*":      wordMul,
	"/":      wordDiv,
	"mod":    wordMod,
	"negate": wordNegate,

	// stack manipulation
	"dup":   wordDup,
	"drop":  wordDrop,
	"swap":  wordSwap,
	"over":  wordOver,
	"rot":   wordRot,
	"depth": wordDepth,
	"clear": wordClear,

	// comparison and logic
	"=":   wordEq,
	"<":   wordLt,
	">":   wordGt,
	"<=":  wordLe,
	">=":  wordGe,
	"and": wordAnd,
	"or":  wordOr,
	"not": wordNot,

	// output
	".":    wordPrint,
	".s":   wordPrintStack,
	"cr":   wordCr,
	"emit": wordEmit,
}

func (m *Machine) popNumeric(word string) (Value, error) {
	v, err := m.pop()
	if err != nil {
		return Value{}, err
	}
	if v.Kind != KindInt && v.Kind != KindFloat {
		return Value{}, fmt.Errorf("%s: expected a number, got %s", word, v.Literal())
	}
	return v, nil
}

func (m *Machine) popBool(word string) (bool, error) {
	v, err := m.pop()
	if err != nil {
		return false, err
	}
	if v.Kind != KindBool {
		return false, fmt.Errorf("%s: expected a boolean, got %s", word, v.Literal())
	}
	return v.Bool, nil
}

// binNumeric pops b then a and applies a <op> b, promoting to float when
// either operand is a float.
func (m *Machine) binNumeric(word string, ints func(a, b int64) (Value, error), floats func(a, b float64) (Value, error)) error {
	b, err := m.popNumeric(word)
	if err != nil {
		return err
	}
	a, err := m.popNumeric(word)
	if err != nil {
		return err
	}
	if a.Kind == KindInt && b.Kind == KindInt {
		v, err := ints(a.Int, b.Int)
		if err != nil {
			return err
		}
		m.push(v)
		return nil
	}
	v, err := floats(a.asFloat(), b.asFloat())
	if err != nil {
		return err
	}
	m.push(v)
	return nil
}

func (v Value) asFloat() float64 {
	if v.Kind == KindInt {
		return float64(v.Int)
	}
	return v.Float
}

func wordAdd(m *Machine) error {
	return m.binNumeric("+",
		func(a, b int64) (Value, error) { return IntValue(a + b), nil },
		func(a, b float64) (Value, error) { return FloatValue(a + b), nil })
}

func wordSub(m *Machine) error {
	return m.binNumeric("-",
		func(a, b int64) (Value, error) { return IntValue(a - b), nil },
		func(a, b float64) (Value, error) { return FloatValue(a - b), nil })
}

func wordMul(m *Machine) error {
	return m.binNumeric("*",
		func(a, b int64) (Value, error) { return IntValue(a * b), nil },
		func(a, b float64) (Value, error) { return FloatValue(a * b), nil })
}

func wordDiv(m *Machine) error {
	return m.binNumeric("/",
		func(a, b int64) (Value, error) {
			if b == 0 {
				return Value{}, errors.New("division by zero")
			}
			return IntValue(a / b), nil
		},
		func(a, b float64) (Value, error) {
			if b == 0 {
				return Value{}, errors.New("division by zero")
			}
			return FloatValue(a / b), nil
		})
}

func wordMod(m *Machine) error {
	b, err := m.pop()
	if err != nil {
		return err
	}
	a, err := m.pop()
	if err != nil {
		return err
	}
	if a.Kind != KindInt || b.Kind != KindInt {
		return errors.New("mod: expected integers")
	}
	if b.Int == 0 {
		return errors.New("division by zero")
	}
	m.push(IntValue(a.Int % b.Int))
	return nil
}

func wordNegate(m *Machine) error {
	v, err := m.popNumeric("negate")
	if err != nil {
		return err
	}
	if v.Kind == KindInt {
		m.push(IntValue(-v.Int))
	} else {
		m.push(FloatValue(-v.Float))
	}
	return nil
}

func wordDup(m *Machine) error {
	v, err := m.peek(0)
	if err != nil {
		return err
	}
	m.push(v)
	return nil
}

func wordDrop(m *Machine) error {
	_, err := m.pop()
	return err
}

func wordSwap(m *Machine) error {
	b, err := m.pop()
	if err != nil {
		return err
	}
	a, err := m.pop()
	if err != nil {
		return err
	}
	m.push(b)
	m.push(a)
	return nil
}

func wordOver(m *Machine) error {
	v, err := m.peek(1)
	if err != nil {
		return err
	}
	m.push(v)
	return nil
}

func wordRot(m *Machine) error {
	c, err := m.pop()
	if err != nil {
		return err
	}
	b, err := m.pop()
	if err != nil {
		return err
	}
	a, err := m.pop()
	if err != nil {
		return err
	}
	m.push(b)
	m.push(c)
	m.push(a)
	return nil
}

func wordDepth(m *Machine) error {
	m.push(IntValue(int64(len(m.stack))))
	return nil
}

func wordClear(m *Machine) error {
	m.stack = nil
	return nil
}

// wordEq compares any two values: numbers numerically (across int/float),
// strings and booleans by value, mismatched kinds as unequal.
func wordEq(m *Machine) error {
	b, err := m.pop()
	if err != nil {
		return err
	}
	a, err := m.pop()
	if err != nil {
		return err
	}
	m.push(BoolValue(valuesEqual(a, b)))
	return nil
}

func valuesEqual(a, b Value) bool {
	numeric := func(v Value) bool { return v.Kind == KindInt || v.Kind == KindFloat }
	if numeric(a) && numeric(b) {
		return a.asFloat() == b.asFloat()
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindString:
		return a.Str == b.Str
	case KindBool:
		return a.Bool == b.Bool
	default:
		return false
	}
}

func compareWord(word string, cmp func(a, b float64) bool) builtinFn {
	return func(m *Machine) error {
		b, err := m.popNumeric(word)
		if err != nil {
			return err
		}
		a, err := m.popNumeric(word)
		if err != nil {
			return err
		}
		m.push(BoolValue(cmp(a.asFloat(), b.asFloat())))
		return nil
	}
}

var (
	wordLt = compareWord("<", func(a, b float64) bool { return a < b })
	wordGt = compareWord(">", func(a, b float64) bool { return a > b })
	wordLe = compareWord("<=", func(a, b float64) bool { return a <= b })
	wordGe = compareWord(">=", func(a, b float64) bool { return a >= b })
)

func wordAnd(m *Machine) error {
	b, err := m.popBool("and")
	if err != nil {
		return err
	}
	a, err := m.popBool("and")
	if err != nil {
		return err
	}
	m.push(BoolValue(a && b))
	return nil
}

func wordOr(m *Machine) error {
	b, err := m.popBool("or")
	if err != nil {
		return err
	}
	a, err := m.popBool("or")
	if err != nil {
		return err
	}
	m.push(BoolValue(a || b))
	return nil
}

func wordNot(m *Machine) error {
	a, err := m.popBool("not")
	if err != nil {
		return err
	}
	m.push(BoolValue(!a))
	return nil
}

func wordPrint(m *Machine) error {
	v, err := m.pop()
	if err != nil {
		return err
	}
	m.out.WriteString(v.Display())
	m.out.WriteByte(' ')
	return nil
}

// wordPrintStack writes the whole stack, bottom first, without consuming it.
func wordPrintStack(m *Machine) error {
	var parts []string
	for _, v := range m.stack {
		parts = append(parts, v.Literal())
	}
	m.out.WriteString("<" + strconv.Itoa(len(m.stack)) + "> " + strings.Join(parts, " "))
	m.out.WriteByte('\n')
	return nil
}

func wordCr(m *Machine) error {
	m.out.WriteByte('\n')
	return nil
}

func wordEmit(m *Machine) error {
	v, err := m.pop()
	if err != nil {
		return err
	}
	if v.Kind != KindInt {
		return errors.New("emit: expected an integer")
	}
	m.out.WriteRune(rune(v.Int))
	return nil
}
