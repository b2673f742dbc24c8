// Package template substitutes named placeholders in model-produced text.
// Only a fixed set of slots is recognized; everything else is left verbatim and
// substituted values are never re-scanned.
package template

import "strings"

// Slot is a recognized placeholder name, written as {name} in text.
type Slot string

// Recognized slots.
const (
	SlotCount    Slot = "count"
	SlotResult   Slot = "result"
	SlotField    Slot = "field"
	SlotFunction Slot = "function"
	SlotList     Slot = "list"
	SlotLists    Slot = "lists"
	SlotQuestion Slot = "question"
	SlotToday    Slot = "today"
)

var known = map[Slot]struct{}{
	SlotCount: {}, SlotResult: {}, SlotField: {}, SlotFunction: {},
	SlotList: {}, SlotLists: {}, SlotQuestion: {}, SlotToday: {},
}

// Values maps slots to their replacement text.
type Values map[Slot]string

// Substitute replaces every {slot} in text whose slot is known and present in values.
func Substitute(text string, values Values) string {
	if len(values) == 0 || !strings.Contains(text, "{") {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))

	for {
		open := strings.IndexByte(text, '{')
		if open < 0 {
			b.WriteString(text)
			break
		}
		closeRel := strings.IndexByte(text[open+1:], '}')
		if closeRel < 0 {
			b.WriteString(text)
			break
		}
		end := open + 1 + closeRel
		name := Slot(strings.TrimSpace(text[open+1 : end]))

		if v, ok := values[name]; ok && isKnown(name) {
			b.WriteString(text[:open])
			b.WriteString(v)
		} else {
			b.WriteString(text[:open+1])
			end = open
		}
		text = text[end+1:]
	}
	return b.String()
}

func isKnown(s Slot) bool {
	_, ok := known[s]
	return ok
}
