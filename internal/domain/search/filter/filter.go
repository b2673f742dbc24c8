package filter

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// MaxFragments is the maximum number of fragments in one expression.
const MaxFragments = 32

// Operator is a comparison applied by a fragment.
type Operator string

// Supported operators.
const (
	OpEq  Operator = "eq"
	OpNe  Operator = "ne"
	OpGt  Operator = "gt"
	OpGte Operator = "gte"
	OpLt  Operator = "lt"
	OpLte Operator = "lte"
)

// ParseOperator accepts both "gte" and "$gte" spellings.
func ParseOperator(s string) (Operator, error) {
	op := Operator(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "$"))
	switch op {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte:
		return op, nil
	case "==", "=":
		return OpEq, nil
	case "!=":
		return OpNe, nil
	case ">":
		return OpGt, nil
	case ">=":
		return OpGte, nil
	case "<":
		return OpLt, nil
	case "<=":
		return OpLte, nil
	}
	return "", fmt.Errorf("unknown operator %q", s)
}

// IsOrdering reports whether the operator compares order rather than equality.
func (o Operator) IsOrdering() bool {
	return o == OpGt || o == OpGte || o == OpLt || o == OpLte
}

// Kind is the type tag of a Value.
type Kind int

// Value kinds.
const (
	KindString Kind = iota
	KindNumber
	KindBool
)

// Value is a fragment operand: a string, a number or a bool.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
}

// String creates a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number creates a numeric value.
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }

// Bool creates a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// ValueOf converts a decoded JSON scalar into a Value.
func ValueOf(v any) (Value, error) {
	switch x := v.(type) {
	case string:
		return String(x), nil
	case float64:
		return Number(x), nil
	case float32:
		return Number(float64(x)), nil
	case int:
		return Number(float64(x)), nil
	case int64:
		return Number(float64(x)), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("parse number %q: %w", x, err)
		}
		return Number(f), nil
	case bool:
		return Bool(x), nil
	}
	return Value{}, fmt.Errorf("unsupported filter value type %T", v)
}

// Kind returns the value kind.
func (v Value) Kind() Kind { return v.kind }

// Str returns the string operand.
func (v Value) Str() string { return v.str }

// Num returns the numeric operand.
func (v Value) Num() float64 { return v.num }

// Bool returns the boolean operand.
func (v Value) Bool() bool { return v.b }

// Any returns the operand as a plain Go value.
func (v Value) Any() any {
	switch v.kind {
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	default:
		return v.str
	}
}

// Text renders the operand the way it is stored in record metadata.
func (v Value) Text() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return v.str
	}
}

// Fragment is a single field-operator-value test.
type Fragment struct {
	Field string
	Op    Operator
	Value Value
}

// NewFragment validates and creates a Fragment.
func NewFragment(field string, op Operator, v Value) (Fragment, error) {
	if strings.TrimSpace(field) == "" {
		return Fragment{}, fmt.Errorf("filter field is required")
	}
	if _, err := ParseOperator(string(op)); err != nil {
		return Fragment{}, err
	}
	return Fragment{Field: field, Op: op, Value: v}, nil
}

// Eq is shorthand for an equality fragment on a string value.
func Eq(field, value string) Fragment {
	return Fragment{Field: field, Op: OpEq, Value: String(value)}
}

// Expression is a conjunction of fragments. Disjunction is never constructed.
type Expression struct {
	fragments []Fragment
}

// And creates an expression from the given fragments.
func And(fragments ...Fragment) Expression {
	out := make([]Fragment, len(fragments))
	copy(out, fragments)
	return Expression{fragments: out}
}

// Fragments returns a copy of the fragments in order.
func (e Expression) Fragments() []Fragment {
	out := make([]Fragment, len(e.fragments))
	copy(out, e.fragments)
	return out
}

// Len returns the number of fragments.
func (e Expression) Len() int { return len(e.fragments) }

// IsEmpty reports whether the expression has no fragments.
func (e Expression) IsEmpty() bool { return len(e.fragments) == 0 }

// With returns a new expression with one more fragment.
func (e Expression) With(f Fragment) Expression {
	return And(append(e.Fragments(), f)...)
}

// Count returns how many fragments test the given field.
func (e Expression) Count(field string) int {
	n := 0
	for _, f := range e.fragments {
		if f.Field == field {
			n++
		}
	}
	return n
}

// Map renders the expression in the {"field": {"$op": v}} form, with "$and" when
// there is more than one fragment.
func (e Expression) Map() map[string]any {
	switch len(e.fragments) {
	case 0:
		return map[string]any{}
	case 1:
		return fragmentMap(e.fragments[0])
	}
	parts := make([]any, 0, len(e.fragments))
	for _, f := range e.fragments {
		parts = append(parts, fragmentMap(f))
	}
	return map[string]any{"$and": parts}
}

// String returns the JSON form of Map, for logs.
func (e Expression) String() string {
	b, err := json.Marshal(e.Map())
	if err != nil {
		return "{}"
	}
	return string(b)
}

func fragmentMap(f Fragment) map[string]any {
	return map[string]any{f.Field: map[string]any{"$" + string(f.Op): f.Value.Any()}}
}
