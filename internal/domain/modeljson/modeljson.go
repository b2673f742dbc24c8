// Package modeljson extracts a JSON object or array embedded in free model output.
package modeljson

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoJSON is returned when the text contains no parsable object or array.
var ErrNoJSON = errors.New("no json object or array found")

// Extract returns the first balanced {...} or [...] block in text that parses as
// JSON, either strictly or after literal normalization (single quotes, Python
// constants, trailing commas).
func Extract(text string) (json.RawMessage, error) {
	for i := 0; i < len(text); i++ {
		if text[i] != '{' && text[i] != '[' {
			continue
		}
		end := matchClose(text, i)
		if end < 0 {
			continue
		}
		candidate := text[i : end+1]
		if json.Valid([]byte(candidate)) {
			return json.RawMessage(candidate), nil
		}
		if normalized, ok := normalize(candidate); ok && json.Valid([]byte(normalized)) {
			return json.RawMessage(normalized), nil
		}
		i = end
	}
	return nil, ErrNoJSON
}

// Decode extracts the embedded JSON from text and unmarshals it into v.
func Decode(text string, v any) error {
	raw, err := Extract(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode model json: %w", err)
	}
	return nil
}

// matchClose returns the index of the bracket closing the one at start, skipping
// brackets inside single- or double-quoted literals. -1 if unbalanced.
func matchClose(s string, start int) int {
	stack := make([]byte, 0, 8)
	var quote byte
	for i := start; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return -1
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i
			}
		}
	}
	return -1
}

// normalize rewrites a Python-style literal into JSON.
func normalize(s string) (string, bool) {
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' || c == '\'':
			end, ok := writeString(&b, s, i)
			if !ok {
				return "", false
			}
			i = end
		case c == ',':
			if next := nextSignificant(s, i+1); next == '}' || next == ']' {
				continue
			}
			b.WriteByte(c)
		case isIdentStart(c):
			j := i
			for j < len(s) && isIdentPart(s[j]) {
				j++
			}
			switch word := s[i:j]; word {
			case "True":
				b.WriteString("true")
			case "False":
				b.WriteString("false")
			case "None":
				b.WriteString("null")
			default:
				b.WriteString(word)
			}
			i = j - 1
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), true
}

// writeString copies the quoted literal starting at s[start] as a double-quoted
// JSON string and returns the index of its closing quote.
func writeString(b *strings.Builder, s string, start int) (int, bool) {
	quote := s[start]
	b.WriteByte('"')
	for i := start + 1; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s):
			next := s[i+1]
			if next == '\'' {
				b.WriteByte('\'')
			} else {
				b.WriteByte(c)
				b.WriteByte(next)
			}
			i++
		case c == quote:
			b.WriteByte('"')
			return i, true
		case c == '"':
			b.WriteString(`\"`)
		case c == '\n':
			b.WriteString(`\n`)
		default:
			b.WriteByte(c)
		}
	}
	return 0, false
}

func nextSignificant(s string, from int) byte {
	for i := from; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return s[i]
		}
	}
	return 0
}

func isIdentStart(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
