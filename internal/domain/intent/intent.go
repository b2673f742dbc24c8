// Package intent holds the typed contracts of the classification subtasks.
package intent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/avdivo/dev-organizer/internal/domain/note"
	"github.com/avdivo/dev-organizer/internal/domain/search/filter"
)

// Flags are the independent intent signals produced once per query.
type Flags struct {
	Semantic        bool
	NeedFilter      bool
	NeedCount       bool
	NeedAnalysis    bool
	NeedCalculation bool
	QueryAboutLists bool
	Complexity      float64
}

// Calculation is the requested arithmetic aggregate.
type Calculation struct {
	Function string `json:"function"`
	Field    string `json:"field"`
}

// RawFilter is a filter fragment as returned by the model, before validation.
type RawFilter struct {
	Field string `json:"field"`
	Op    string `json:"op"`
	Value any    `json:"value"`
}

// Search is the primary parse of a search query.
type Search struct {
	Flags
	Filters       []RawFilter
	WhereDocument string
	Calculation   Calculation
	Query         string
}

type searchDTO struct {
	Semantic        looseBool   `json:"semantic"`
	NeedFilter      looseBool   `json:"need_filter"`
	NeedCount       looseBool   `json:"need_count"`
	NeedAnalysis    looseBool   `json:"need_analysis"`
	NeedCalculation looseBool   `json:"need_calculation"`
	QueryAboutLists looseBool   `json:"query_about_lists"`
	Complexity      looseFloat  `json:"complexity"`
	Filters         []RawFilter `json:"filters"`
	WhereDocument   string      `json:"where_document"`
	Calculation     Calculation `json:"calculation"`
	Query           string      `json:"query"`
}

// ParseSearch decodes the primary search parse. Missing flags default to false.
func ParseSearch(raw json.RawMessage) (Search, error) {
	var dto searchDTO
	if err := json.Unmarshal(raw, &dto); err != nil {
		return Search{}, fmt.Errorf("parse search intent: %w", err)
	}
	return Search{
		Flags: Flags{
			Semantic:        bool(dto.Semantic),
			NeedFilter:      bool(dto.NeedFilter),
			NeedCount:       bool(dto.NeedCount),
			NeedAnalysis:    bool(dto.NeedAnalysis),
			NeedCalculation: bool(dto.NeedCalculation),
			QueryAboutLists: bool(dto.QueryAboutLists),
			Complexity:      float64(dto.Complexity),
		},
		Filters:       dto.Filters,
		WhereDocument: strings.TrimSpace(dto.WhereDocument),
		Calculation:   dto.Calculation,
		Query:         strings.TrimSpace(dto.Query),
	}, nil
}

// Fragments converts the raw filters into typed fragments, skipping invalid ones.
func (s Search) Fragments() []filter.Fragment {
	out := make([]filter.Fragment, 0, len(s.Filters))
	for _, rf := range s.Filters {
		if f, err := rf.Fragment(); err == nil {
			out = append(out, f)
		}
	}
	return out
}

// Fragment validates the raw filter. A missing operator means equality.
func (rf RawFilter) Fragment() (filter.Fragment, error) {
	op := filter.OpEq
	if rf.Op != "" {
		parsed, err := filter.ParseOperator(rf.Op)
		if err != nil {
			return filter.Fragment{}, err
		}
		op = parsed
	}
	v, err := filter.ValueOf(rf.Value)
	if err != nil {
		return filter.Fragment{}, fmt.Errorf("filter %q: %w", rf.Field, err)
	}
	return filter.NewFragment(strings.TrimSpace(rf.Field), op, v)
}

// MetadataFilter is a numeric mention from the metadata subtask of a search: the
// unit text still has to be resolved to a canonical field.
type MetadataFilter struct {
	Unit  string
	Op    filter.Operator
	Value filter.Value
}

// ParseMetadataFilters accepts [{"unit","op","value"}] as well as the compact
// [{"<unit text>": {"$op": value}}] and [{"<unit text>": value}] forms.
// Entries that cannot be understood are skipped.
func ParseMetadataFilters(raw json.RawMessage) []MetadataFilter {
	items := decodeObjects(raw)
	out := make([]MetadataFilter, 0, len(items))
	for _, item := range items {
		if _, ok := item["unit"]; ok {
			var rf struct {
				Unit  string `json:"unit"`
				Op    string `json:"op"`
				Value any    `json:"value"`
			}
			if remarshal(item, &rf) != nil {
				continue
			}
			if mf, ok := newMetadataFilter(rf.Unit, rf.Op, rf.Value); ok {
				out = append(out, mf)
			}
			continue
		}
		for _, unit := range sortedKeys(item) {
			var cond map[string]any
			if json.Unmarshal(item[unit], &cond) == nil {
				for _, op := range sortedAnyKeys(cond) {
					if mf, ok := newMetadataFilter(unit, op, cond[op]); ok {
						out = append(out, mf)
					}
				}
				continue
			}
			var scalar any
			if json.Unmarshal(item[unit], &scalar) == nil {
				if mf, ok := newMetadataFilter(unit, "eq", scalar); ok {
					out = append(out, mf)
				}
			}
		}
	}
	return out
}

func newMetadataFilter(unit, op string, value any) (MetadataFilter, bool) {
	unit = strings.TrimSpace(unit)
	if unit == "" {
		return MetadataFilter{}, false
	}
	if op == "" {
		op = "eq"
	}
	parsedOp, err := filter.ParseOperator(op)
	if err != nil {
		return MetadataFilter{}, false
	}
	n, ok := toNumber(value)
	if !ok {
		return MetadataFilter{}, false
	}
	return MetadataFilter{Unit: unit, Op: parsedOp, Value: filter.Number(n)}, true
}

// ParseEntities accepts [{"value","unit"}] as well as the compact [{"<number>": "<unit text>"}]
// form. Index is the position in the list; unparsable entries keep their slot empty
// so positions stay aligned with the primary parse.
func ParseEntities(raw json.RawMessage) []note.NumericEntity {
	items := decodeObjects(raw)
	out := make([]note.NumericEntity, 0, len(items))
	for i, item := range items {
		if _, ok := item["unit"]; ok {
			var e struct {
				Value any    `json:"value"`
				Unit  string `json:"unit"`
			}
			if remarshal(item, &e) != nil {
				continue
			}
			if n, ok := toNumber(e.Value); ok && strings.TrimSpace(e.Unit) != "" {
				out = append(out, note.NumericEntity{Value: n, Unit: strings.TrimSpace(e.Unit), Index: i})
			}
			continue
		}
		for _, k := range sortedKeys(item) {
			n, ok := toNumber(k)
			if !ok {
				continue
			}
			var unit string
			if json.Unmarshal(item[k], &unit) != nil || strings.TrimSpace(unit) == "" {
				continue
			}
			out = append(out, note.NumericEntity{Value: n, Unit: strings.TrimSpace(unit), Index: i})
			break
		}
	}
	return out
}

func decodeObjects(raw json.RawMessage) []map[string]json.RawMessage {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	if raw[0] == '[' {
		var elems []json.RawMessage
		if json.Unmarshal(raw, &elems) != nil {
			return nil
		}
		// A non-object element leaves a nil slot so indices stay positional.
		list := make([]map[string]json.RawMessage, len(elems))
		for i, e := range elems {
			var obj map[string]json.RawMessage
			if json.Unmarshal(e, &obj) == nil {
				list[i] = obj
			}
		}
		return list
	}
	var single map[string]json.RawMessage
	if json.Unmarshal(raw, &single) != nil {
		return nil
	}
	return []map[string]json.RawMessage{single}
}

func remarshal(item map[string]json.RawMessage, v any) error {
	b, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("unmarshal item: %w", err)
	}
	return nil
}

func toNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(x), ",", "."), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func sortedKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedAnyKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// looseBool accepts true/false, "true"/"false", "yes"/"no" and 0/1.
type looseBool bool

func (b *looseBool) UnmarshalJSON(data []byte) error {
	s := strings.ToLower(strings.Trim(strings.TrimSpace(string(data)), `"`))
	switch s {
	case "true", "yes", "1":
		*b = true
	case "false", "no", "0", "", "null":
		*b = false
	default:
		return fmt.Errorf("invalid boolean %s", data)
	}
	return nil
}

// looseFloat accepts numbers and numeric strings.
type looseFloat float64

func (f *looseFloat) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid number %s: %w", data, err)
	}
	*f = looseFloat(v)
	return nil
}
